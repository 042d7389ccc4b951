package auth

import (
	"errors"
	"fmt"
	"strings"
)

// Category errors shown to end users. Raw database or crypto errors never
// cross this boundary; callers match on these sentinels and render fixed
// messages.
var (
	ErrDuplicateAccount   = errors.New("auth: an account with this email already exists")
	ErrInvalidEmail       = errors.New("auth: please enter a valid email address")
	ErrInvalidCredentials = errors.New("auth: invalid email or password")
	ErrEmailNotConfirmed  = errors.New("auth: please check your email and confirm your account")
	ErrAccountNotFound    = errors.New("auth: account not found")
)

// WeakPasswordError carries every violated password rule so the caller can
// present complete feedback rather than one rule at a time.
type WeakPasswordError struct {
	Violations []string
}

func (e *WeakPasswordError) Error() string {
	if len(e.Violations) == 0 {
		return "auth: password does not meet security requirements"
	}
	return fmt.Sprintf("auth: password does not meet security requirements: %s", strings.Join(e.Violations, ". "))
}

// IsWeakPassword reports whether err is a password-strength rejection and, if
// so, returns the violated rules.
func IsWeakPassword(err error) ([]string, bool) {
	var weak *WeakPasswordError
	if errors.As(err, &weak) {
		return weak.Violations, true
	}
	return nil, false
}
