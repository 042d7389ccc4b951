package signups

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/meridianimaging/meridian/backend/internal/validation"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrInvalidEmail indicates the address failed validation before any insert.
	ErrInvalidEmail = errors.New("signups: invalid email address")

	errMissingDatabase = errors.New("signups: database handle is required")
	noOpLogger         = zap.NewNop()
)

// EmailSignup is one waitlist entry. The unique index carries the idempotency
// guarantee: signing up twice is indistinguishable from signing up once.
type EmailSignup struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement"`
	Email     string    `gorm:"column:email;size:320;not null;uniqueIndex"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (EmailSignup) TableName() string {
	return "email_signups"
}

// Result reports the outcome of a signup. AlreadySubscribed distinguishes the
// duplicate case for logging; both cases are success to the end user.
type Result struct {
	AlreadySubscribed bool
}

// ServiceConfig describes the dependencies of the signup service.
type ServiceConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Service records waitlist email signups.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewService constructs the signup service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, logger: logger}, nil
}

// Signup validates and stores the address. A unique-constraint violation is a
// successful outcome; every other insert failure is an error.
func (s *Service) Signup(ctx context.Context, email string) (Result, error) {
	email = strings.ToLower(validation.SanitizeInput(email))
	if !validation.ValidateEmail(email) {
		return Result{}, ErrInvalidEmail
	}

	err := s.db.WithContext(ctx).Create(&EmailSignup{Email: email}).Error
	if err != nil {
		if isDuplicateKeyError(err) {
			s.logger.Info("duplicate waitlist signup treated as success")
			return Result{AlreadySubscribed: true}, nil
		}
		s.logger.Error("waitlist signup insert failed", zap.Error(err))
		return Result{}, fmt.Errorf("signups: insert failed: %w", err)
	}

	s.logger.Info("waitlist signup recorded")
	return Result{}, nil
}

// isDuplicateKeyError recognizes unique-constraint violations from the
// driver. GORM translates most of them to ErrDuplicatedKey; the sqlite
// message check covers drivers that bypass the translator.
func isDuplicateKeyError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
