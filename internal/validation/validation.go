package validation

import (
	"html"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

const (
	maxFieldLength    = 1000
	maxEmailLength    = 320
	minPasswordLength = 8
)

// Password rule descriptions surfaced to callers in a fixed order so that
// feedback is complete and stable.
const (
	passwordRuleLength = "Password must be at least 8 characters long"
	passwordRuleUpper  = "Password must contain at least one uppercase letter"
	passwordRuleLower  = "Password must contain at least one lowercase letter"
	passwordRuleDigit  = "Password must contain at least one number"
	passwordRuleSymbol = "Password must contain at least one special character"
)

var strictPolicy = bluemonday.StrictPolicy()

// PasswordCheck reports the outcome of password validation. Violations lists
// every rule the candidate failed, not just the first.
type PasswordCheck struct {
	Valid      bool
	Violations []string
}

// ValidateEmail reports whether the input looks like a deliverable address:
// a non-empty local part, an "@", and a domain containing at least one dot.
// Whitespace anywhere disqualifies the input.
func ValidateEmail(input string) bool {
	if input == "" || len(input) > maxEmailLength {
		return false
	}
	if strings.ContainsFunc(input, unicode.IsSpace) {
		return false
	}

	at := strings.Index(input, "@")
	if at <= 0 || at != strings.LastIndex(input, "@") {
		return false
	}

	local, domain := input[:at], input[at+1:]
	if local == "" || domain == "" {
		return false
	}

	dot := strings.Index(domain, ".")
	if dot <= 0 || strings.HasSuffix(domain, ".") {
		return false
	}
	if strings.Contains(domain, "..") {
		return false
	}

	return true
}

// SanitizeInput trims surrounding whitespace, strips any HTML markup and
// control characters, and caps the result length. Applying it twice yields
// the same output as applying it once.
func SanitizeInput(input string) string {
	// Sanitize entity-escapes surviving text; unescape so the output is plain
	// text and a second pass leaves it unchanged.
	cleaned := html.UnescapeString(strictPolicy.Sanitize(input))
	cleaned = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, cleaned)
	cleaned = strings.TrimSpace(cleaned)
	if len(cleaned) > maxFieldLength {
		// Back up to a rune boundary so the cap never splits a multi-byte
		// character.
		cut := maxFieldLength
		for cut > 0 && !utf8.RuneStart(cleaned[cut]) {
			cut--
		}
		cleaned = strings.TrimSpace(cleaned[:cut])
	}
	return cleaned
}

// ValidatePassword checks the candidate against the full rule set and
// reports every violated rule.
func ValidatePassword(candidate string) PasswordCheck {
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range candidate {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSymbol = true
		}
	}

	var violations []string
	if len(candidate) < minPasswordLength {
		violations = append(violations, passwordRuleLength)
	}
	if !hasUpper {
		violations = append(violations, passwordRuleUpper)
	}
	if !hasLower {
		violations = append(violations, passwordRuleLower)
	}
	if !hasDigit {
		violations = append(violations, passwordRuleDigit)
	}
	if !hasSymbol {
		violations = append(violations, passwordRuleSymbol)
	}

	return PasswordCheck{Valid: len(violations) == 0, Violations: violations}
}
