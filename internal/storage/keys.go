package storage

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

const maxExtensionLength = 10

var errMissingOwnerScope = errors.New("storage: owner scope id is required")

// BuildObjectKey derives a collision-resistant storage key from the owner
// scope and a high-resolution timestamp. The caller's filename contributes
// only its extension; the name itself never reaches the filesystem.
func BuildObjectKey(ownerScopeID, filename string, now time.Time) (string, error) {
	owner := sanitizeKeySegment(ownerScopeID)
	if owner == "" {
		return "", errMissingOwnerScope
	}

	ext := sanitizeExtension(filename)
	if ext == "" {
		return fmt.Sprintf("%s/%d", owner, now.UnixMilli()), nil
	}
	return fmt.Sprintf("%s/%d.%s", owner, now.UnixMilli(), ext), nil
}

// sanitizeKeySegment keeps only characters safe inside a single key segment.
func sanitizeKeySegment(value string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(value) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// sanitizeExtension extracts a lowercase alphanumeric extension from the
// user-supplied filename, or empty when none is usable.
func sanitizeExtension(filename string) string {
	ext := strings.TrimPrefix(path.Ext(path.Base(filename)), ".")
	ext = strings.ToLower(ext)
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	if len(ext) > maxExtensionLength {
		return ""
	}
	return ext
}
