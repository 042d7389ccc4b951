package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meridianimaging/meridian/backend/internal/validation"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const bcryptCost = 10

var (
	errMissingDatabase   = errors.New("auth: database handle is required")
	errMissingIDProvider = errors.New("auth: id provider is required")
	noOpLogger           = zap.NewNop()
)

// IDProvider issues identifiers for new accounts.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies required by the account service.
type ServiceConfig struct {
	Database   *gorm.DB
	IDProvider IDProvider
	Clock      func() time.Time
	Logger     *zap.Logger

	// AdminEmails lists addresses that receive the admin flag at signup.
	// The flag itself remains server-side ground truth thereafter.
	AdminEmails []string
}

// Service manages accounts and answers the server-side role predicate.
type Service struct {
	db          *gorm.DB
	idProvider  IDProvider
	clock       func() time.Time
	logger      *zap.Logger
	adminEmails map[string]struct{}
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	adminEmails := make(map[string]struct{}, len(cfg.AdminEmails))
	for _, email := range cfg.AdminEmails {
		normalized := normalizeEmail(email)
		if normalized != "" {
			adminEmails[normalized] = struct{}{}
		}
	}
	return &Service{
		db:          cfg.Database,
		idProvider:  cfg.IDProvider,
		clock:       clock,
		logger:      logger,
		adminEmails: adminEmails,
	}, nil
}

// SignUp validates the credentials, hashes the password, and creates the
// account. Duplicate emails and weak passwords surface as category errors.
func (s *Service) SignUp(ctx context.Context, email, password string) (Account, error) {
	email = normalizeEmail(validation.SanitizeInput(email))
	if !validation.ValidateEmail(email) {
		return Account{}, ErrInvalidEmail
	}

	if check := validation.ValidatePassword(password); !check.Valid {
		return Account{}, &WeakPasswordError{Violations: check.Violations}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		s.logger.Error("password hashing failed", zap.Error(err))
		return Account{}, fmt.Errorf("auth: sign up failed")
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logger.Error("account id generation failed", zap.Error(err))
		return Account{}, fmt.Errorf("auth: sign up failed")
	}

	account := Account{
		ID:           id,
		Email:        email,
		PasswordHash: hash,
		IsAdmin:      s.isAdminEmail(email),
		Confirmed:    true,
		CreatedAt:    s.clock().UTC(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Account
		result := tx.Where("email = ?", email).Limit(1).Find(&existing)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != 0 {
			return ErrDuplicateAccount
		}
		return tx.Create(&account).Error
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateAccount) {
			return Account{}, ErrDuplicateAccount
		}
		s.logger.Error("account insert failed", zap.Error(err))
		return Account{}, fmt.Errorf("auth: sign up failed")
	}

	s.logger.Info("account created", zap.String("account_id", account.ID), zap.Bool("is_admin", account.IsAdmin))
	return account, nil
}

// SignIn verifies the password for the given email. Unknown emails and wrong
// passwords produce the same category error so the response shape does not
// reveal which accounts exist.
func (s *Service) SignIn(ctx context.Context, email, password string) (Account, error) {
	email = normalizeEmail(validation.SanitizeInput(email))
	if email == "" {
		return Account{}, ErrInvalidCredentials
	}

	var account Account
	result := s.db.WithContext(ctx).Where("email = ?", email).Limit(1).Find(&account)
	if result.Error != nil {
		s.logger.Error("account lookup failed", zap.Error(result.Error))
		return Account{}, fmt.Errorf("auth: sign in failed")
	}
	if result.RowsAffected == 0 {
		return Account{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(account.PasswordHash, []byte(password)); err != nil {
		return Account{}, ErrInvalidCredentials
	}

	if !account.Confirmed {
		return Account{}, ErrEmailNotConfirmed
	}

	return account, nil
}

// IsAdmin is the trusted role predicate. It reads the flag from the database
// for the authenticated account; a missing account is simply not privileged.
// Database failures are returned so callers can apply their own fail-closed
// policy at the point of use.
func (s *Service) IsAdmin(ctx context.Context, accountID string) (bool, error) {
	if accountID == "" {
		return false, nil
	}

	var account Account
	result := s.db.WithContext(ctx).Select("id", "is_admin").Where("id = ?", accountID).Limit(1).Find(&account)
	if result.Error != nil {
		s.logger.Error("role predicate query failed", zap.Error(result.Error), zap.String("account_id", accountID))
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	return account.IsAdmin, nil
}

// GetAccount returns the stored account for the given identifier.
func (s *Service) GetAccount(ctx context.Context, accountID string) (Account, error) {
	var account Account
	result := s.db.WithContext(ctx).Where("id = ?", accountID).Limit(1).Find(&account)
	if result.Error != nil {
		s.logger.Error("account fetch failed", zap.Error(result.Error), zap.String("account_id", accountID))
		return Account{}, fmt.Errorf("auth: account fetch failed")
	}
	if result.RowsAffected == 0 {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}

func (s *Service) isAdminEmail(email string) bool {
	_, ok := s.adminEmails[email]
	return ok
}
