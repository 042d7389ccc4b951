// Package client is the Go consumer of the Meridian API: a thin HTTP wrapper
// plus a session store that tracks the signed-in identity and its derived
// admin flag.
package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
)

// ErrUnauthorized is returned when the server rejects the session token.
var ErrUnauthorized = errors.New("client: unauthorized")

// Client wraps the HTTP API. The zero value is not usable; construct with New.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New builds a client for the given base URL. A nil httpClient falls back to
// http.DefaultClient.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

type httpRequest struct {
	client   *Client
	method   string
	endpoint string
	headers  map[string]string
	json     interface{}
	body     io.Reader
}

func (c *Client) request(method, endpoint string) *httpRequest {
	return &httpRequest{client: c, method: method, endpoint: endpoint}
}

func (r *httpRequest) header(key, value string) *httpRequest {
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[key] = value
	return r
}

func (r *httpRequest) auth(token string) *httpRequest {
	if token == "" {
		return r
	}
	return r.header("Authorization", "Bearer "+token)
}

func (r *httpRequest) jsonBody(data interface{}) *httpRequest {
	r.json = data
	return r
}

func (r *httpRequest) rawBody(contentType string, body io.Reader) *httpRequest {
	r.body = body
	return r.header("Content-Type", contentType)
}

func (r *httpRequest) do(result interface{}) error {
	fullEndpoint, err := url.JoinPath(r.client.baseURL, r.endpoint)
	if err != nil {
		return fmt.Errorf("error formatting url for endpoint %v: %w", r.endpoint, err)
	}

	if r.json != nil {
		body := new(bytes.Buffer)
		if err := json.NewEncoder(body).Encode(r.json); err != nil {
			return fmt.Errorf("error encoding json body for endpoint %v: %w", r.endpoint, err)
		}
		r.body = body
		r.header("Content-Type", "application/json")
	}

	request, err := http.NewRequest(r.method, fullEndpoint, r.body)
	if err != nil {
		return fmt.Errorf("error creating %v request for endpoint %v: %w", r.method, r.endpoint, err)
	}
	for key, value := range r.headers {
		request.Header.Set(key, value)
	}

	response, err := r.client.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("error sending %v request to endpoint %v: %w", r.method, r.endpoint, err)
	}
	defer response.Body.Close()

	if response.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if response.StatusCode != http.StatusOK {
		content, readErr := io.ReadAll(response.Body)
		if readErr != nil {
			return fmt.Errorf("%v request to endpoint %v returned status %d", r.method, r.endpoint, response.StatusCode)
		}
		return fmt.Errorf("%v request to endpoint %v returned status %d, content '%v'", r.method, r.endpoint, response.StatusCode, string(content))
	}

	if result != nil {
		if err := json.NewDecoder(response.Body).Decode(result); err != nil {
			return fmt.Errorf("error parsing %v response from endpoint %v: %w", r.method, r.endpoint, err)
		}
	}
	return nil
}

// Session is the server's answer to a successful sign-in or sign-up.
type Session struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
	AccountID   string `json:"account_id"`
	Email       string `json:"email"`
}

// SignUp registers an account and returns the opened session.
func (c *Client) SignUp(email, password string) (Session, error) {
	var session Session
	err := c.request(http.MethodPost, "/auth/signup").
		jsonBody(map[string]string{"email": email, "password": password}).
		do(&session)
	return session, err
}

// SignIn authenticates and returns the opened session.
func (c *Client) SignIn(email, password string) (Session, error) {
	var session Session
	err := c.request(http.MethodPost, "/auth/signin").
		jsonBody(map[string]string{"email": email, "password": password}).
		do(&session)
	return session, err
}

// SignOut tells the server the session is done. The token itself stays valid
// until expiry; discarding it is the caller's job.
func (c *Client) SignOut(token string) error {
	return c.request(http.MethodPost, "/auth/signout").auth(token).do(nil)
}

// SessionInfo identifies the account behind a still-valid token.
type SessionInfo struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
}

// CurrentSession asks the server who the token belongs to. ErrUnauthorized
// means the token is expired or invalid.
func (c *Client) CurrentSession(token string) (SessionInfo, error) {
	var info SessionInfo
	err := c.request(http.MethodGet, "/auth/session").auth(token).do(&info)
	return info, err
}

// IsAdmin asks the server-side role predicate. Any transport or server error
// is surfaced; callers must not substitute a default answer.
func (c *Client) IsAdmin(token string) (bool, error) {
	var payload struct {
		IsAdmin bool `json:"is_admin"`
	}
	if err := c.request(http.MethodGet, "/auth/is-admin").auth(token).do(&payload); err != nil {
		return false, err
	}
	return payload.IsAdmin, nil
}

// SignupResult reports a waitlist signup outcome. A duplicate address is a
// success with AlreadySubscribed set.
type SignupResult struct {
	Success           bool `json:"success"`
	AlreadySubscribed bool `json:"already_subscribed"`
}

// SignupEmail joins the launch waitlist.
func (c *Client) SignupEmail(email string) (SignupResult, error) {
	var result SignupResult
	err := c.request(http.MethodPost, "/signups").
		jsonBody(map[string]string{"email": email}).
		do(&result)
	return result, err
}

// ApplicationForm carries the fields of a team application.
type ApplicationForm struct {
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

// Resume pairs a resume stream with its display filename.
type Resume struct {
	Filename string
	Data     io.Reader
}

// SubmitApplication sends a team application, optionally with a resume. The
// server stores nothing if the resume upload fails.
func (c *Client) SubmitApplication(form ApplicationForm, resume *Resume) (string, error) {
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)

	fields := map[string]string{
		"first_name":      form.FirstName,
		"last_name":       form.LastName,
		"email":           form.Email,
		"phone":           form.Phone,
		"role":            form.Role,
		"experience":      form.Experience,
		"qualifications":  form.Qualifications,
		"availability":    form.Availability,
		"additional_info": form.AdditionalInfo,
	}
	for field, value := range fields {
		if err := writer.WriteField(field, value); err != nil {
			return "", fmt.Errorf("error writing form field %v: %w", field, err)
		}
	}
	if resume != nil {
		part, err := writer.CreateFormFile("resume", resume.Filename)
		if err != nil {
			return "", fmt.Errorf("error creating resume part: %w", err)
		}
		if _, err := io.Copy(part, resume.Data); err != nil {
			return "", fmt.Errorf("error writing resume: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("error closing multipart writer: %w", err)
	}

	var payload struct {
		ID string `json:"id"`
	}
	err := c.request(http.MethodPost, "/applications").
		rawBody(writer.FormDataContentType(), body).
		do(&payload)
	if err != nil {
		return "", err
	}
	return payload.ID, nil
}

// ApplicationRecord is one submission as the admin review screen sees it. The
// resume itself is reachable only through ResumeDownloadURL.
type ApplicationRecord struct {
	ID             string `json:"id"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Role           string `json:"role"`
	Experience     string `json:"experience"`
	Qualifications string `json:"qualifications"`
	Availability   string `json:"availability"`
	AdditionalInfo string `json:"additional_info"`
	HasResume      bool   `json:"has_resume"`
	ResumeFilename string `json:"resume_filename"`
	CreatedAt      string `json:"created_at"`
}

// ListApplications fetches all applications, newest first. Admin only.
func (c *Client) ListApplications(token string) ([]ApplicationRecord, error) {
	var payload struct {
		Applications []ApplicationRecord `json:"applications"`
	}
	if err := c.request(http.MethodGet, "/applications").auth(token).do(&payload); err != nil {
		return nil, err
	}
	return payload.Applications, nil
}

// ResumeDownload is a freshly minted, time-limited link to one resume.
type ResumeDownload struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// ResumeDownloadURL mints a fresh signed URL for an application's resume.
// Every call issues a new link; nothing is cached, so a link obtained earlier
// expiring has no effect on the next download action. Admin only.
func (c *Client) ResumeDownloadURL(token, applicationID string) (ResumeDownload, error) {
	var download ResumeDownload
	endpoint := fmt.Sprintf("/applications/%s/resume-url", url.PathEscape(applicationID))
	err := c.request(http.MethodGet, endpoint).auth(token).do(&download)
	return download, err
}
