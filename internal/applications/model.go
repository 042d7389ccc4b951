package applications

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Role enumerates the positions an applicant may apply for.
type Role string

const (
	RoleAdministrativeStaff Role = "Administrative Staff"
	RoleRadiographer        Role = "Radiographer"
	RoleSonographer         Role = "Sonographer"
)

// ErrUnknownRole indicates a role outside the fixed set.
var ErrUnknownRole = errors.New("applications: unknown role")

// ParseRole validates raw input against the fixed role set.
func ParseRole(value string) (Role, error) {
	trimmed := strings.TrimSpace(value)
	switch Role(trimmed) {
	case RoleAdministrativeStaff, RoleRadiographer, RoleSonographer:
		return Role(trimmed), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, value)
	}
}

// Application is one team-join submission. Records are immutable after
// insert; there is no edit or delete flow. ResumePath, when set, is a private
// object-store key — never a publicly resolvable URL — so reading the file
// always goes through signed-URL issuance.
type Application struct {
	ID             string    `gorm:"column:id;primaryKey;size:190;not null"`
	FirstName      string    `gorm:"column:first_name;size:190;not null"`
	LastName       string    `gorm:"column:last_name;size:190;not null"`
	Email          string    `gorm:"column:email;size:320;not null"`
	Phone          string    `gorm:"column:phone;size:64;not null"`
	Role           Role      `gorm:"column:role;size:64;not null"`
	Experience     string    `gorm:"column:experience;type:text;not null"`
	Qualifications string    `gorm:"column:qualifications;type:text;not null"`
	Availability   string    `gorm:"column:availability;type:text;not null"`
	AdditionalInfo string    `gorm:"column:additional_info;type:text;not null;default:''"`
	ResumePath     string    `gorm:"column:resume_path;size:512;not null;default:''"`
	ResumeFilename string    `gorm:"column:resume_filename;size:320;not null;default:''"`
	CreatedAt      time.Time `gorm:"column:created_at;not null;index:idx_applications_created"`
}

// TableName provides the explicit table binding for GORM.
func (Application) TableName() string {
	return "job_applications"
}

// HasResume reports whether the record carries a stored resume.
func (a Application) HasResume() bool {
	return a.ResumePath != ""
}

// SubmitRequest carries the applicant-supplied fields of a submission.
type SubmitRequest struct {
	FirstName      string
	LastName       string
	Email          string
	Phone          string
	Role           string
	Experience     string
	Qualifications string
	Availability   string
	AdditionalInfo string
}

// ResumeUpload pairs a resume payload with its display filename.
type ResumeUpload struct {
	Filename string
	Data     io.Reader
}
