package storage

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultSignedURLTTL bounds how long a minted download URL stays valid.
	DefaultSignedURLTTL = time.Hour

	signedURLAudience = "meridian-files"
)

var (
	errMissingSignerSecret = errors.New("storage: signing secret must be provided")
	errMissingObjectPath   = errors.New("storage: object path must be provided")
	// ErrInvalidSignedToken marks a token that fails signature or path checks.
	ErrInvalidSignedToken = errors.New("storage: invalid signed token")
	// ErrExpiredSignedToken marks a token past its validity window.
	ErrExpiredSignedToken = errors.New("storage: signed token expired")
)

// URLSignerConfig configures signed download URL issuance.
type URLSignerConfig struct {
	SigningSecret []byte
	Issuer        string
	// PublicPath is the URL prefix the file handler is mounted on, e.g. "/files".
	PublicPath string
	TTL        time.Duration
	Clock      func() time.Time
}

// URLSigner mints short-lived, path-bound download URLs for private objects.
// Each URL embeds an HS256 token scoped to exactly one object path; a token
// minted for one object cannot fetch another.
type URLSigner struct {
	config URLSignerConfig
	clock  func() time.Time
}

// NewURLSigner constructs a signer with sane defaults.
func NewURLSigner(cfg URLSignerConfig) *URLSigner {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultSignedURLTTL
	}
	if cfg.PublicPath == "" {
		cfg.PublicPath = "/files"
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	cfg.Clock = clock
	return &URLSigner{config: cfg, clock: clock}
}

// TTL exposes the configured validity window.
func (s *URLSigner) TTL() time.Duration {
	return s.config.TTL
}

// IssueSignedURL mints a fresh URL for the object path, valid for the
// configured TTL from now. Callers must mint per download action rather than
// caching the result.
func (s *URLSigner) IssueSignedURL(objectPath string) (string, error) {
	if len(s.config.SigningSecret) == 0 {
		return "", errMissingSignerSecret
	}
	cleaned, err := cleanKey(objectPath)
	if err != nil {
		return "", err
	}

	now := s.clock().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   cleaned,
		Issuer:    s.config.Issuer,
		Audience:  []string{signedURLAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TTL)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.config.SigningSecret)
	if err != nil {
		return "", fmt.Errorf("storage: signing download token: %w", err)
	}

	return fmt.Sprintf("%s/%s?token=%s",
		strings.TrimSuffix(s.config.PublicPath, "/"),
		cleaned,
		url.QueryEscape(signed),
	), nil
}

// ValidateSignedToken verifies the token signature, expiry, and that it was
// minted for exactly the requested object path.
func (s *URLSigner) ValidateSignedToken(tokenString, objectPath string) error {
	if len(s.config.SigningSecret) == 0 {
		return errMissingSignerSecret
	}
	cleaned, err := cleanKey(objectPath)
	if err != nil {
		return err
	}

	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing algorithm: %s", token.Method.Alg())
			}
			return s.config.SigningSecret, nil
		},
		jwt.WithAudience(signedURLAudience),
		jwt.WithIssuer(s.config.Issuer),
		jwt.WithTimeFunc(s.clock),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpiredSignedToken
		}
		return fmt.Errorf("%w: %v", ErrInvalidSignedToken, err)
	}
	if claims.Subject == "" {
		return errMissingObjectPath
	}
	if claims.Subject != cleaned {
		return fmt.Errorf("%w: token path mismatch", ErrInvalidSignedToken)
	}
	return nil
}
