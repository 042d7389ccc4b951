package storage

import (
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"
)

func newTestSigner(clock func() time.Time) *URLSigner {
	return NewURLSigner(URLSignerConfig{
		SigningSecret: []byte("test-secret"),
		Issuer:        "meridian-storage",
		PublicPath:    "/files",
		TTL:           time.Hour,
		Clock:         clock,
	})
}

func tokenFromSignedURL(t *testing.T, signedURL string) string {
	t.Helper()
	parsed, err := url.Parse(signedURL)
	if err != nil {
		t.Fatalf("failed to parse signed url: %v", err)
	}
	token := parsed.Query().Get("token")
	if token == "" {
		t.Fatalf("signed url missing token: %q", signedURL)
	}
	return token
}

func TestIssueSignedURLValidatesWithinWindow(t *testing.T) {
	now := time.Unix(1700000000, 0)
	signer := newTestSigner(func() time.Time { return now })

	signedURL, err := signer.IssueSignedURL("owner/100.pdf")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if !strings.HasPrefix(signedURL, "/files/owner/100.pdf?token=") {
		t.Fatalf("unexpected url shape: %q", signedURL)
	}

	token := tokenFromSignedURL(t, signedURL)
	if err := signer.ValidateSignedToken(token, "owner/100.pdf"); err != nil {
		t.Fatalf("validation failed inside window: %v", err)
	}
}

func TestSignedTokenExpiresAfterTTL(t *testing.T) {
	now := time.Unix(1700000000, 0)
	signer := newTestSigner(func() time.Time { return now })

	signedURL, err := signer.IssueSignedURL("owner/100.pdf")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	token := tokenFromSignedURL(t, signedURL)

	now = now.Add(time.Hour + time.Minute)
	err = signer.ValidateSignedToken(token, "owner/100.pdf")
	if !errors.Is(err, ErrExpiredSignedToken) {
		t.Fatalf("expected expired token error, got %v", err)
	}
}

func TestSignedTokenIsBoundToExactPath(t *testing.T) {
	now := time.Unix(1700000000, 0)
	signer := newTestSigner(func() time.Time { return now })

	signedURL, err := signer.IssueSignedURL("owner/100.pdf")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	token := tokenFromSignedURL(t, signedURL)

	err = signer.ValidateSignedToken(token, "owner/999.pdf")
	if !errors.Is(err, ErrInvalidSignedToken) {
		t.Fatalf("expected invalid token error for other path, got %v", err)
	}
}

func TestSignedTokenFromForeignSecretIsRejected(t *testing.T) {
	now := time.Unix(1700000000, 0)
	signerA := newTestSigner(func() time.Time { return now })
	signerB := NewURLSigner(URLSignerConfig{
		SigningSecret: []byte("other-secret"),
		Issuer:        "meridian-storage",
		Clock:         func() time.Time { return now },
	})

	signedURL, err := signerA.IssueSignedURL("owner/100.pdf")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	token := tokenFromSignedURL(t, signedURL)

	if err := signerB.ValidateSignedToken(token, "owner/100.pdf"); !errors.Is(err, ErrInvalidSignedToken) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
}
