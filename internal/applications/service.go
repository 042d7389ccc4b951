package applications

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/meridianimaging/meridian/backend/internal/storage"
	"github.com/meridianimaging/meridian/backend/internal/validation"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("applications: database handle is required")
	errMissingUploader   = errors.New("applications: resume uploader is required")
	errMissingIDProvider = errors.New("applications: id provider is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError attaches an operation.reason code to an underlying cause so
// handlers can map failures to stable response codes.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew = "applications.service.new"
	opSubmit     = "applications.submit"
	opList       = "applications.list"
	opGet        = "applications.get"
)

// ErrNotFound indicates no application exists with the requested id.
var ErrNotFound = errors.New("applications: application not found")

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// Validation failures surfaced to submitters.
var (
	ErrMissingField = errors.New("applications: required field missing")
	ErrInvalidEmail = errors.New("applications: invalid email address")
)

// ResumeUploader stores a resume privately and returns its path and display
// filename. Satisfied by storage.Service.
type ResumeUploader interface {
	UploadPrivateFile(data io.Reader, ownerScopeID, filename string) (storage.StoredObject, error)
}

// IDProvider issues identifiers for new applications.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies of the application record service.
type ServiceConfig struct {
	Database   *gorm.DB
	Uploader   ResumeUploader
	IDProvider IDProvider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service lists and inserts application records.
type Service struct {
	db       *gorm.DB
	uploader ResumeUploader
	ids      IDProvider
	clock    func() time.Time
	logger   *zap.Logger
}

// NewService constructs the application record service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Uploader == nil {
		return nil, newServiceError(opServiceNew, "missing_uploader", errMissingUploader)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:       cfg.Database,
		uploader: cfg.Uploader,
		ids:      cfg.IDProvider,
		clock:    clock,
		logger:   logger,
	}, nil
}

// List returns all applications, newest first. No applications is an empty
// slice, not an error.
func (s *Service) List(ctx context.Context) ([]Application, error) {
	var records []Application
	if err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&records).Error; err != nil {
		s.logger.Error("application list query failed", zap.Error(err))
		return nil, newServiceError(opList, "query_failed", err)
	}
	if records == nil {
		records = []Application{}
	}
	return records, nil
}

// Get returns a single application by id.
func (s *Service) Get(ctx context.Context, id string) (Application, error) {
	var record Application
	result := s.db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&record)
	if result.Error != nil {
		s.logger.Error("application fetch failed", zap.Error(result.Error), zap.String("application_id", id))
		return Application{}, newServiceError(opGet, "query_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return Application{}, ErrNotFound
	}
	return record, nil
}

// Submit validates and stores one application. When a resume is supplied the
// upload happens first; if it fails, no record is inserted, so a stored row
// can never reference an upload that does not exist.
func (s *Service) Submit(ctx context.Context, request SubmitRequest, resume *ResumeUpload) (Application, error) {
	record, err := s.buildRecord(request)
	if err != nil {
		return Application{}, err
	}

	if resume != nil {
		object, err := s.uploader.UploadPrivateFile(resume.Data, record.ID, resume.Filename)
		if err != nil {
			s.logger.Error("resume upload failed", zap.Error(err), zap.String("application_id", record.ID))
			return Application{}, newServiceError(opSubmit, "resume_upload_failed", err)
		}
		record.ResumePath = object.Path
		record.ResumeFilename = object.Filename
	}

	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		s.logger.Error("application insert failed", zap.Error(err), zap.String("application_id", record.ID))
		return Application{}, newServiceError(opSubmit, "insert_failed", err)
	}

	s.logger.Info("application submitted",
		zap.String("application_id", record.ID),
		zap.String("role", string(record.Role)),
		zap.Bool("has_resume", record.HasResume()))
	return record, nil
}

func (s *Service) buildRecord(request SubmitRequest) (Application, error) {
	firstName := validation.SanitizeInput(request.FirstName)
	lastName := validation.SanitizeInput(request.LastName)
	email := validation.SanitizeInput(request.Email)
	phone := validation.SanitizeInput(request.Phone)
	experience := validation.SanitizeInput(request.Experience)
	qualifications := validation.SanitizeInput(request.Qualifications)
	availability := validation.SanitizeInput(request.Availability)

	required := map[string]string{
		"first_name":     firstName,
		"last_name":      lastName,
		"email":          email,
		"phone":          phone,
		"experience":     experience,
		"qualifications": qualifications,
		"availability":   availability,
	}
	for field, value := range required {
		if value == "" {
			return Application{}, newServiceError(opSubmit, "missing_field", fmt.Errorf("%w: %s", ErrMissingField, field))
		}
	}

	if !validation.ValidateEmail(email) {
		return Application{}, newServiceError(opSubmit, "invalid_email", ErrInvalidEmail)
	}

	role, err := ParseRole(request.Role)
	if err != nil {
		return Application{}, newServiceError(opSubmit, "unknown_role", err)
	}

	id, err := s.ids.NewID()
	if err != nil {
		return Application{}, newServiceError(opSubmit, "id_generation_failed", err)
	}

	return Application{
		ID:             id,
		FirstName:      firstName,
		LastName:       lastName,
		Email:          email,
		Phone:          phone,
		Role:           role,
		Experience:     experience,
		Qualifications: qualifications,
		Availability:   availability,
		AdditionalInfo: validation.SanitizeInput(request.AdditionalInfo),
		CreatedAt:      s.clock().UTC(),
	}, nil
}
