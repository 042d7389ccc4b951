package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/meridianimaging/meridian/backend/internal/applications"
	"github.com/meridianimaging/meridian/backend/internal/auth"
	"github.com/meridianimaging/meridian/backend/internal/signups"
	"github.com/meridianimaging/meridian/backend/internal/storage"
	"go.uber.org/zap"
)

func newTestHandler(t *testing.T, deps Dependencies) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if deps.Accounts == nil {
		deps.Accounts = &stubAccountService{}
	}
	if deps.Tokens == nil {
		deps.Tokens = &stubTokenManager{}
	}
	if deps.Applications == nil {
		deps.Applications = &stubApplicationService{}
	}
	if deps.Signups == nil {
		deps.Signups = &stubSignupService{}
	}
	if deps.Artifacts == nil {
		deps.Artifacts = &stubArtifactService{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	handler, err := NewHTTPHandler(deps)
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	return handler
}

func TestNewHTTPHandlerRequiresDependencies(t *testing.T) {
	gin.SetMode(gin.TestMode)
	if _, err := NewHTTPHandler(Dependencies{}); err == nil {
		t.Fatalf("expected error for empty dependencies")
	}
	if _, err := NewHTTPHandler(Dependencies{
		Accounts:     &stubAccountService{},
		Tokens:       &stubTokenManager{},
		Applications: &stubApplicationService{},
		Signups:      &stubSignupService{},
	}); err == nil {
		t.Fatalf("expected error when artifact service is missing")
	}
}

func TestListApplicationsRequiresAdminRole(t *testing.T) {
	handler := newTestHandler(t, Dependencies{
		Accounts: &stubAccountService{isAdmin: map[string]bool{"admin-1": true}},
		Tokens: &stubTokenManager{subjects: map[string]string{
			"admin-token":  "admin-1",
			"member-token": "member-1",
		}},
		Applications: &stubApplicationService{records: []applications.Application{{ID: "application-1"}}},
	})

	cases := []struct {
		name       string
		token      string
		wantStatus int
	}{
		{name: "admin allowed", token: "admin-token", wantStatus: http.StatusOK},
		{name: "non-admin denied", token: "member-token", wantStatus: http.StatusForbidden},
	}
	for _, tc := range cases {
		recorder := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodGet, "/applications", http.NoBody)
		request.Header.Set("Authorization", "Bearer "+tc.token)
		handler.ServeHTTP(recorder, request)
		if recorder.Code != tc.wantStatus {
			t.Fatalf("%s: got status %d, want %d", tc.name, recorder.Code, tc.wantStatus)
		}
	}
}

func TestListApplicationsDeniesWhenRoleCheckErrors(t *testing.T) {
	handler := newTestHandler(t, Dependencies{
		Accounts: &stubAccountService{predicateErr: io.ErrUnexpectedEOF},
		Tokens:   &stubTokenManager{subjects: map[string]string{"admin-token": "admin-1"}},
	})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/applications", http.NoBody)
	request.Header.Set("Authorization", "Bearer admin-token")
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected predicate failure to deny access, got status %d", recorder.Code)
	}
}

func TestListApplicationsOmitsPrivateResumePath(t *testing.T) {
	createdAt := time.Date(2026, time.August, 20, 9, 30, 0, 0, time.UTC)
	handler := newTestHandler(t, Dependencies{
		Accounts: &stubAccountService{isAdmin: map[string]bool{"admin-1": true}},
		Tokens:   &stubTokenManager{subjects: map[string]string{"admin-token": "admin-1"}},
		Applications: &stubApplicationService{records: []applications.Application{{
			ID:             "application-1",
			FirstName:      "Dana",
			LastName:       "Reyes",
			Email:          "dana@example.com",
			Phone:          "555-0101",
			Role:           applications.RoleSonographer,
			Experience:     "8 years",
			Qualifications: "ARDMS",
			Availability:   "Full time",
			ResumePath:     "application-1/1700000000123.pdf",
			ResumeFilename: "dana-cv.pdf",
			CreatedAt:      createdAt,
		}}},
	})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/applications", http.NoBody)
	request.Header.Set("Authorization", "Bearer admin-token")
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body %s", recorder.Code, recorder.Body.String())
	}
	body := recorder.Body.String()
	if strings.Contains(body, "application-1/1700000000123.pdf") {
		t.Fatalf("private resume path leaked into list payload: %s", body)
	}

	var payload struct {
		Applications []applicationPayload `json:"applications"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if len(payload.Applications) != 1 {
		t.Fatalf("expected one application, got %d", len(payload.Applications))
	}
	record := payload.Applications[0]
	if !record.HasResume {
		t.Fatalf("expected has_resume to be true")
	}
	if record.ResumeFilename != "dana-cv.pdf" {
		t.Fatalf("unexpected resume filename: %q", record.ResumeFilename)
	}
	if record.CreatedAt != "2026-08-20T09:30:00Z" {
		t.Fatalf("unexpected created_at: %q", record.CreatedAt)
	}
}

func TestResumeURLEndpoint(t *testing.T) {
	withResume := applications.Application{
		ID:             "application-1",
		ResumePath:     "application-1/1700000000123.pdf",
		ResumeFilename: "dana-cv.pdf",
	}
	withoutResume := applications.Application{ID: "application-2"}

	handler := newTestHandler(t, Dependencies{
		Accounts:     &stubAccountService{isAdmin: map[string]bool{"admin-1": true}},
		Tokens:       &stubTokenManager{subjects: map[string]string{"admin-token": "admin-1"}},
		Applications: &stubApplicationService{records: []applications.Application{withResume, withoutResume}},
	})

	get := func(path string) *httptest.ResponseRecorder {
		recorder := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodGet, path, http.NoBody)
		request.Header.Set("Authorization", "Bearer admin-token")
		handler.ServeHTTP(recorder, request)
		return recorder
	}

	recorder := get("/applications/application-1/resume-url")
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body %s", recorder.Code, recorder.Body.String())
	}
	var payload struct {
		URL      string `json:"url"`
		Filename string `json:"filename"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if !strings.HasPrefix(payload.URL, "/files/application-1/") {
		t.Fatalf("unexpected signed url: %q", payload.URL)
	}
	if !strings.Contains(payload.URL, "token=") {
		t.Fatalf("signed url missing token: %q", payload.URL)
	}
	if payload.Filename != "dana-cv.pdf" {
		t.Fatalf("unexpected filename: %q", payload.Filename)
	}

	if recorder := get("/applications/application-2/resume-url"); recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for application without resume, got %d", recorder.Code)
	}
	if recorder := get("/applications/missing/resume-url"); recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown application, got %d", recorder.Code)
	}
}

func TestResumeURLReportsMissingObject(t *testing.T) {
	handler := newTestHandler(t, Dependencies{
		Accounts: &stubAccountService{isAdmin: map[string]bool{"admin-1": true}},
		Tokens:   &stubTokenManager{subjects: map[string]string{"admin-token": "admin-1"}},
		Applications: &stubApplicationService{records: []applications.Application{{
			ID:             "application-1",
			ResumePath:     "application-1/1700000000123.pdf",
			ResumeFilename: "dana-cv.pdf",
		}}},
		Artifacts: &stubArtifactService{signedErr: storage.ErrObjectNotFound},
	})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/applications/application-1/resume-url", http.NoBody)
	request.Header.Set("Authorization", "Bearer admin-token")
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when stored object is gone, got %d", recorder.Code)
	}
}

func TestSignedDownload(t *testing.T) {
	objects := map[string]string{"application-1/1700000000123.pdf": "resume bytes"}

	t.Run("valid token serves object", func(t *testing.T) {
		handler := newTestHandler(t, Dependencies{
			Artifacts: &stubArtifactService{objects: objects},
		})
		recorder := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodGet, "/files/application-1/1700000000123.pdf?token=stub-token", http.NoBody)
		handler.ServeHTTP(recorder, request)
		if recorder.Code != http.StatusOK {
			t.Fatalf("unexpected status: %d", recorder.Code)
		}
		if recorder.Body.String() != "resume bytes" {
			t.Fatalf("unexpected body: %q", recorder.Body.String())
		}
		if cacheControl := recorder.Header().Get("Cache-Control"); !strings.Contains(cacheControl, "no-store") {
			t.Fatalf("expected no-store cache directive, got %q", cacheControl)
		}
	})

	t.Run("expired token is forbidden", func(t *testing.T) {
		handler := newTestHandler(t, Dependencies{
			Artifacts: &stubArtifactService{objects: objects, validateErr: storage.ErrExpiredSignedToken},
		})
		recorder := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodGet, "/files/application-1/1700000000123.pdf?token=stale", http.NoBody)
		handler.ServeHTTP(recorder, request)
		if recorder.Code != http.StatusForbidden {
			t.Fatalf("unexpected status: %d", recorder.Code)
		}
		if !strings.Contains(recorder.Body.String(), "link_expired") {
			t.Fatalf("expected link_expired code, got %s", recorder.Body.String())
		}
	})

	t.Run("missing token is forbidden", func(t *testing.T) {
		handler := newTestHandler(t, Dependencies{
			Artifacts: &stubArtifactService{objects: objects},
		})
		recorder := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodGet, "/files/application-1/1700000000123.pdf", http.NoBody)
		handler.ServeHTTP(recorder, request)
		if recorder.Code != http.StatusForbidden {
			t.Fatalf("unexpected status: %d", recorder.Code)
		}
	})

	t.Run("missing object is not found", func(t *testing.T) {
		handler := newTestHandler(t, Dependencies{
			Artifacts: &stubArtifactService{objects: objects},
		})
		recorder := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodGet, "/files/application-9/other.pdf?token=stub-token", http.NoBody)
		handler.ServeHTTP(recorder, request)
		if recorder.Code != http.StatusNotFound {
			t.Fatalf("unexpected status: %d", recorder.Code)
		}
	})
}

func TestEmailSignupEndpoint(t *testing.T) {
	t.Run("new address", func(t *testing.T) {
		handler := newTestHandler(t, Dependencies{
			Signups: &stubSignupService{result: signups.Result{}},
		})
		recorder := httptest.NewRecorder()
		body := bytes.NewBufferString(`{"email":"reader@example.com"}`)
		request := httptest.NewRequest(http.MethodPost, "/signups", body)
		request.Header.Set("Content-Type", "application/json")
		handler.ServeHTTP(recorder, request)
		if recorder.Code != http.StatusOK {
			t.Fatalf("unexpected status: %d body %s", recorder.Code, recorder.Body.String())
		}
	})

	t.Run("duplicate address still succeeds", func(t *testing.T) {
		handler := newTestHandler(t, Dependencies{
			Signups: &stubSignupService{result: signups.Result{AlreadySubscribed: true}},
		})
		recorder := httptest.NewRecorder()
		body := bytes.NewBufferString(`{"email":"reader@example.com"}`)
		request := httptest.NewRequest(http.MethodPost, "/signups", body)
		request.Header.Set("Content-Type", "application/json")
		handler.ServeHTTP(recorder, request)
		if recorder.Code != http.StatusOK {
			t.Fatalf("unexpected status: %d body %s", recorder.Code, recorder.Body.String())
		}
		var payload struct {
			Success           bool `json:"success"`
			AlreadySubscribed bool `json:"already_subscribed"`
		}
		if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
			t.Fatalf("failed to decode payload: %v", err)
		}
		if !payload.Success || !payload.AlreadySubscribed {
			t.Fatalf("expected duplicate signup to report success, got %+v", payload)
		}
	})

	t.Run("invalid address", func(t *testing.T) {
		handler := newTestHandler(t, Dependencies{
			Signups: &stubSignupService{err: signups.ErrInvalidEmail},
		})
		recorder := httptest.NewRecorder()
		body := bytes.NewBufferString(`{"email":"not-an-email"}`)
		request := httptest.NewRequest(http.MethodPost, "/signups", body)
		request.Header.Set("Content-Type", "application/json")
		handler.ServeHTTP(recorder, request)
		if recorder.Code != http.StatusBadRequest {
			t.Fatalf("unexpected status: %d", recorder.Code)
		}
	})
}

func TestSubmitApplicationMultipart(t *testing.T) {
	service := &stubApplicationService{}
	handler := newTestHandler(t, Dependencies{Applications: service})

	var buffer bytes.Buffer
	writer := multipart.NewWriter(&buffer)
	fields := map[string]string{
		"first_name":     "Dana",
		"last_name":      "Reyes",
		"email":          "dana@example.com",
		"phone":          "555-0101",
		"role":           "Sonographer",
		"experience":     "8 years",
		"qualifications": "ARDMS",
		"availability":   "Full time",
	}
	for field, value := range fields {
		if err := writer.WriteField(field, value); err != nil {
			t.Fatalf("failed to write form field: %v", err)
		}
	}
	part, err := writer.CreateFormFile("resume", "dana-cv.pdf")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write([]byte("%PDF-1.4 resume")); err != nil {
		t.Fatalf("failed to write resume bytes: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/applications", &buffer)
	request.Header.Set("Content-Type", writer.FormDataContentType())
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body %s", recorder.Code, recorder.Body.String())
	}
	if len(service.submitted) != 1 {
		t.Fatalf("expected one submitted request, got %d", len(service.submitted))
	}
	submitted := service.submitted[0]
	if submitted.Email != "dana@example.com" || submitted.Role != "Sonographer" {
		t.Fatalf("unexpected submitted request: %+v", submitted)
	}
}

func TestSubmitApplicationErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		serviceErr error
		wantStatus int
		wantCode   string
	}{
		{name: "missing field", serviceErr: applications.ErrMissingField, wantStatus: http.StatusBadRequest, wantCode: "missing_field"},
		{name: "invalid email", serviceErr: applications.ErrInvalidEmail, wantStatus: http.StatusBadRequest, wantCode: "invalid_email"},
		{name: "unknown role", serviceErr: applications.ErrUnknownRole, wantStatus: http.StatusBadRequest, wantCode: "unknown_role"},
		{name: "oversize resume", serviceErr: storage.ErrObjectTooLarge, wantStatus: http.StatusBadRequest, wantCode: "resume_too_large"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := newTestHandler(t, Dependencies{
				Applications: &stubApplicationService{submitErr: tc.serviceErr},
			})
			var buffer bytes.Buffer
			writer := multipart.NewWriter(&buffer)
			if err := writer.WriteField("first_name", "Dana"); err != nil {
				t.Fatalf("failed to write form field: %v", err)
			}
			if err := writer.Close(); err != nil {
				t.Fatalf("failed to close multipart writer: %v", err)
			}
			recorder := httptest.NewRecorder()
			request := httptest.NewRequest(http.MethodPost, "/applications", &buffer)
			request.Header.Set("Content-Type", writer.FormDataContentType())
			handler.ServeHTTP(recorder, request)
			if recorder.Code != tc.wantStatus {
				t.Fatalf("got status %d, want %d", recorder.Code, tc.wantStatus)
			}
			if !strings.Contains(recorder.Body.String(), tc.wantCode) {
				t.Fatalf("expected code %q in body %s", tc.wantCode, recorder.Body.String())
			}
		})
	}
}

func TestIsAdminEndpoint(t *testing.T) {
	t.Run("reports definite answer", func(t *testing.T) {
		handler := newTestHandler(t, Dependencies{
			Accounts: &stubAccountService{isAdmin: map[string]bool{"admin-1": true}},
			Tokens:   &stubTokenManager{subjects: map[string]string{"admin-token": "admin-1"}},
		})
		recorder := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodGet, "/auth/is-admin", http.NoBody)
		request.Header.Set("Authorization", "Bearer admin-token")
		handler.ServeHTTP(recorder, request)
		if recorder.Code != http.StatusOK {
			t.Fatalf("unexpected status: %d", recorder.Code)
		}
		var payload struct {
			IsAdmin bool `json:"is_admin"`
		}
		if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
			t.Fatalf("failed to decode payload: %v", err)
		}
		if !payload.IsAdmin {
			t.Fatalf("expected is_admin true")
		}
	})

	t.Run("predicate failure is an error, not an answer", func(t *testing.T) {
		handler := newTestHandler(t, Dependencies{
			Accounts: &stubAccountService{predicateErr: io.ErrUnexpectedEOF},
			Tokens:   &stubTokenManager{subjects: map[string]string{"admin-token": "admin-1"}},
		})
		recorder := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodGet, "/auth/is-admin", http.NoBody)
		request.Header.Set("Authorization", "Bearer admin-token")
		handler.ServeHTTP(recorder, request)
		if recorder.Code != http.StatusBadGateway {
			t.Fatalf("unexpected status: %d", recorder.Code)
		}
		if strings.Contains(recorder.Body.String(), "is_admin") {
			t.Fatalf("predicate failure must not report an answer: %s", recorder.Body.String())
		}
	})
}

func TestAuthEndpointErrorCodes(t *testing.T) {
	cases := []struct {
		name       string
		signInErr  error
		wantStatus int
		wantCode   string
	}{
		{name: "invalid credentials", signInErr: auth.ErrInvalidCredentials, wantStatus: http.StatusUnauthorized, wantCode: "invalid_credentials"},
		{name: "unconfirmed email", signInErr: auth.ErrEmailNotConfirmed, wantStatus: http.StatusForbidden, wantCode: "email_not_confirmed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := newTestHandler(t, Dependencies{
				Accounts: &stubAccountService{signInErr: tc.signInErr},
			})
			recorder := httptest.NewRecorder()
			body := bytes.NewBufferString(`{"email":"dana@example.com","password":"Sup3r-secret"}`)
			request := httptest.NewRequest(http.MethodPost, "/auth/signin", body)
			request.Header.Set("Content-Type", "application/json")
			handler.ServeHTTP(recorder, request)
			if recorder.Code != tc.wantStatus {
				t.Fatalf("got status %d, want %d", recorder.Code, tc.wantStatus)
			}
			if !strings.Contains(recorder.Body.String(), tc.wantCode) {
				t.Fatalf("expected code %q in body %s", tc.wantCode, recorder.Body.String())
			}
		})
	}
}

func TestSignUpReturnsWeakPasswordViolations(t *testing.T) {
	handler := newTestHandler(t, Dependencies{
		Accounts: &stubAccountService{signUpErr: &auth.WeakPasswordError{Violations: []string{
			"Password must be at least 8 characters long",
			"Password must contain at least one number",
		}}},
	})
	recorder := httptest.NewRecorder()
	body := bytes.NewBufferString(`{"email":"dana@example.com","password":"short"}`)
	request := httptest.NewRequest(http.MethodPost, "/auth/signup", body)
	request.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
	var payload struct {
		Error      string   `json:"error"`
		Violations []string `json:"violations"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if payload.Error != "weak_password" {
		t.Fatalf("unexpected error code: %q", payload.Error)
	}
	if len(payload.Violations) != 2 {
		t.Fatalf("expected both violations reported, got %v", payload.Violations)
	}
}
