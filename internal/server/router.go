package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/meridianimaging/meridian/backend/internal/applications"
	"github.com/meridianimaging/meridian/backend/internal/auth"
	"github.com/meridianimaging/meridian/backend/internal/signups"
	"github.com/meridianimaging/meridian/backend/internal/storage"
	"go.uber.org/zap"
)

const accountIDContextKey = "meridian_account_id"

var (
	errMissingAccountService     = errors.New("account service dependency required")
	errMissingTokenManager       = errors.New("token manager dependency required")
	errMissingApplicationService = errors.New("application service dependency required")
	errMissingSignupService      = errors.New("signup service dependency required")
	errMissingArtifactService    = errors.New("artifact service dependency required")
	errInvalidAuthorization      = errors.New("authorization header missing or invalid")
)

// AccountService covers account lifecycle and the server-side role predicate.
type AccountService interface {
	SignUp(ctx context.Context, email, password string) (auth.Account, error)
	SignIn(ctx context.Context, email, password string) (auth.Account, error)
	IsAdmin(ctx context.Context, accountID string) (bool, error)
	GetAccount(ctx context.Context, accountID string) (auth.Account, error)
}

// SessionTokenManager issues and validates bearer session tokens.
type SessionTokenManager interface {
	IssueSessionToken(account auth.Account) (string, int64, error)
	ValidateSessionToken(token string) (auth.SessionClaims, error)
}

// ApplicationService lists, fetches, and inserts application records.
type ApplicationService interface {
	List(ctx context.Context) ([]applications.Application, error)
	Get(ctx context.Context, id string) (applications.Application, error)
	Submit(ctx context.Context, request applications.SubmitRequest, resume *applications.ResumeUpload) (applications.Application, error)
}

// SignupService records waitlist signups.
type SignupService interface {
	Signup(ctx context.Context, email string) (signups.Result, error)
}

// ArtifactService mints signed URLs and serves validated downloads.
type ArtifactService interface {
	SignedURL(objectPath string) (string, error)
	ValidateSignedToken(token, objectPath string) error
	Open(objectPath string) (io.ReadCloser, error)
}

// Dependencies bundles everything the HTTP surface needs.
type Dependencies struct {
	Accounts     AccountService
	Tokens       SessionTokenManager
	Applications ApplicationService
	Signups      SignupService
	Artifacts    ArtifactService
	Logger       *zap.Logger
}

// NewHTTPHandler validates dependencies and builds the router.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Accounts == nil {
		return nil, errMissingAccountService
	}
	if deps.Tokens == nil {
		return nil, errMissingTokenManager
	}
	if deps.Applications == nil {
		return nil, errMissingApplicationService
	}
	if deps.Signups == nil {
		return nil, errMissingSignupService
	}
	if deps.Artifacts == nil {
		return nil, errMissingArtifactService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		accounts:     deps.Accounts,
		tokens:       deps.Tokens,
		applications: deps.Applications,
		signups:      deps.Signups,
		artifacts:    deps.Artifacts,
		logger:       logger,
	}

	router.POST("/auth/signup", handler.handleSignUp)
	router.POST("/auth/signin", handler.handleSignIn)
	router.POST("/signups", handler.handleEmailSignup)
	router.POST("/applications", handler.handleSubmitApplication)
	router.GET("/files/*object", handler.handleSignedDownload)

	authorized := router.Group("/")
	authorized.Use(handler.authorizeRequest)
	authorized.POST("/auth/signout", handler.handleSignOut)
	authorized.GET("/auth/session", handler.handleSession)
	authorized.GET("/auth/is-admin", handler.handleIsAdmin)

	admin := authorized.Group("/")
	admin.Use(handler.requireAdmin)
	admin.GET("/applications", handler.handleListApplications)
	admin.GET("/applications/:id/resume-url", handler.handleResumeURL)

	return router, nil
}

type httpHandler struct {
	accounts     AccountService
	tokens       SessionTokenManager
	applications ApplicationService
	signups      SignupService
	artifacts    ArtifactService
	logger       *zap.Logger
}

type credentialsPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
	AccountID   string `json:"account_id"`
	Email       string `json:"email"`
}

func (h *httpHandler) handleSignUp(c *gin.Context) {
	var request credentialsPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	account, err := h.accounts.SignUp(c.Request.Context(), request.Email, request.Password)
	if err != nil {
		h.respondAuthError(c, err, "signup_failed")
		return
	}

	h.respondWithSession(c, account)
}

func (h *httpHandler) handleSignIn(c *gin.Context) {
	var request credentialsPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	account, err := h.accounts.SignIn(c.Request.Context(), request.Email, request.Password)
	if err != nil {
		h.respondAuthError(c, err, "signin_failed")
		return
	}

	h.respondWithSession(c, account)
}

// respondAuthError maps category errors to stable codes. Raw error text from
// the database or crypto layers never reaches the response body.
func (h *httpHandler) respondAuthError(c *gin.Context, err error, fallback string) {
	if violations, ok := auth.IsWeakPassword(err); ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "weak_password", "violations": violations})
		return
	}
	switch {
	case errors.Is(err, auth.ErrDuplicateAccount):
		c.JSON(http.StatusConflict, gin.H{"error": "duplicate_account"})
	case errors.Is(err, auth.ErrInvalidEmail):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_email"})
	case errors.Is(err, auth.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
	case errors.Is(err, auth.ErrEmailNotConfirmed):
		c.JSON(http.StatusForbidden, gin.H{"error": "email_not_confirmed"})
	default:
		h.logger.Error("auth operation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

func (h *httpHandler) respondWithSession(c *gin.Context, account auth.Account) {
	token, expiresIn, err := h.tokens.IssueSessionToken(account)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, sessionResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
		AccountID:   account.ID,
		Email:       account.Email,
	})
}

// handleSignOut acknowledges sign-out. Session tokens are stateless; the
// client discards its copy and clears derived state synchronously.
func (h *httpHandler) handleSignOut(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "signed_out"})
}

func (h *httpHandler) handleSession(c *gin.Context) {
	accountID := c.GetString(accountIDContextKey)
	account, err := h.accounts.GetAccount(c.Request.Context(), accountID)
	if err != nil {
		if errors.Is(err, auth.ErrAccountNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		h.logger.Error("session account lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session_lookup_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"account_id": account.ID, "email": account.Email})
}

// handleIsAdmin exposes the server-side role predicate. A failed predicate is
// an explicit upstream error, never a default answer; clients treat anything
// but a definite true as false.
func (h *httpHandler) handleIsAdmin(c *gin.Context) {
	accountID := c.GetString(accountIDContextKey)
	isAdmin, err := h.accounts.IsAdmin(c.Request.Context(), accountID)
	if err != nil {
		h.logger.Error("role predicate failed", zap.Error(err), zap.String("account_id", accountID))
		c.JSON(http.StatusBadGateway, gin.H{"error": "role_check_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"is_admin": isAdmin})
}

type emailSignupPayload struct {
	Email string `json:"email"`
}

func (h *httpHandler) handleEmailSignup(c *gin.Context) {
	var request emailSignupPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	result, err := h.signups.Signup(c.Request.Context(), request.Email)
	if err != nil {
		if errors.Is(err, signups.ErrInvalidEmail) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_email"})
			return
		}
		h.logger.Error("waitlist signup failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "signup_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "already_subscribed": result.AlreadySubscribed})
}

func (h *httpHandler) handleSubmitApplication(c *gin.Context) {
	request := applications.SubmitRequest{
		FirstName:      c.PostForm("first_name"),
		LastName:       c.PostForm("last_name"),
		Email:          c.PostForm("email"),
		Phone:          c.PostForm("phone"),
		Role:           c.PostForm("role"),
		Experience:     c.PostForm("experience"),
		Qualifications: c.PostForm("qualifications"),
		Availability:   c.PostForm("availability"),
		AdditionalInfo: c.PostForm("additional_info"),
	}

	var resume *applications.ResumeUpload
	fileHeader, err := c.FormFile("resume")
	if err == nil && fileHeader != nil {
		file, openErr := fileHeader.Open()
		if openErr != nil {
			h.logger.Warn("resume form file open failed", zap.Error(openErr))
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_resume"})
			return
		}
		defer file.Close()
		resume = &applications.ResumeUpload{Filename: fileHeader.Filename, Data: file}
	}

	record, err := h.applications.Submit(c.Request.Context(), request, resume)
	if err != nil {
		h.respondSubmitError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": record.ID})
}

func (h *httpHandler) respondSubmitError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, applications.ErrMissingField):
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_field"})
	case errors.Is(err, applications.ErrInvalidEmail):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_email"})
	case errors.Is(err, applications.ErrUnknownRole):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_role"})
	case errors.Is(err, storage.ErrObjectTooLarge):
		c.JSON(http.StatusBadRequest, gin.H{"error": "resume_too_large"})
	default:
		h.logger.Error("application submit failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "submit_failed"})
	}
}

type applicationPayload struct {
	ID             string `json:"id"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Role           string `json:"role"`
	Experience     string `json:"experience"`
	Qualifications string `json:"qualifications"`
	Availability   string `json:"availability"`
	AdditionalInfo string `json:"additional_info,omitempty"`
	HasResume      bool   `json:"has_resume"`
	ResumeFilename string `json:"resume_filename,omitempty"`
	CreatedAt      string `json:"created_at"`
}

// handleListApplications returns records newest first. The private resume
// path never appears in the payload; downloads go through the resume-url
// endpoint, which mints a fresh signed URL per action.
func (h *httpHandler) handleListApplications(c *gin.Context) {
	records, err := h.applications.List(c.Request.Context())
	if err != nil {
		h.logger.Error("application list failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "list_failed"})
		return
	}

	payload := make([]applicationPayload, 0, len(records))
	for _, record := range records {
		payload = append(payload, applicationPayload{
			ID:             record.ID,
			FirstName:      record.FirstName,
			LastName:       record.LastName,
			Email:          record.Email,
			Phone:          record.Phone,
			Role:           string(record.Role),
			Experience:     record.Experience,
			Qualifications: record.Qualifications,
			Availability:   record.Availability,
			AdditionalInfo: record.AdditionalInfo,
			HasResume:      record.HasResume(),
			ResumeFilename: record.ResumeFilename,
			CreatedAt:      record.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, gin.H{"applications": payload})
}

func (h *httpHandler) handleResumeURL(c *gin.Context) {
	record, err := h.applications.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, applications.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "application_not_found"})
			return
		}
		h.logger.Error("application fetch failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "fetch_failed"})
		return
	}
	if !record.HasResume() {
		c.JSON(http.StatusNotFound, gin.H{"error": "no_resume"})
		return
	}

	signedURL, err := h.artifacts.SignedURL(record.ResumePath)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "resume_missing"})
			return
		}
		h.logger.Error("signed url issuance failed", zap.Error(err), zap.String("application_id", record.ID))
		c.JSON(http.StatusBadGateway, gin.H{"error": "signed_url_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": signedURL, "filename": record.ResumeFilename})
}

// handleSignedDownload serves a private object when the request carries a
// valid token minted for exactly that path. The token is the sole authority
// here; an expired or path-mismatched token is a 403 regardless of session.
func (h *httpHandler) handleSignedDownload(c *gin.Context) {
	objectPath := strings.TrimPrefix(c.Param("object"), "/")
	token := c.Query("token")
	if objectPath == "" || token == "" {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	if err := h.artifacts.ValidateSignedToken(token, objectPath); err != nil {
		if errors.Is(err, storage.ErrExpiredSignedToken) {
			c.JSON(http.StatusForbidden, gin.H{"error": "link_expired"})
			return
		}
		h.logger.Warn("signed download rejected", zap.Error(err), zap.String("path", objectPath))
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	reader, err := h.artifacts.Open(objectPath)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		h.logger.Error("signed download read failed", zap.Error(err), zap.String("path", objectPath))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "download_failed"})
		return
	}
	defer reader.Close()

	c.Header("Content-Type", "application/octet-stream")
	c.Header("Cache-Control", "private, max-age=0, no-store")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, reader); err != nil {
		h.logger.Warn("signed download stream interrupted", zap.Error(err), zap.String("path", objectPath))
	}
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	claims, err := h.tokens.ValidateSessionToken(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(accountIDContextKey, claims.Subject)
	c.Next()
}

// requireAdmin re-invokes the role predicate at the point of the privileged
// action rather than trusting any earlier answer. Any predicate failure
// denies access.
func (h *httpHandler) requireAdmin(c *gin.Context) {
	accountID := c.GetString(accountIDContextKey)
	isAdmin, err := h.accounts.IsAdmin(c.Request.Context(), accountID)
	if err != nil {
		h.logger.Warn("admin check failed closed", zap.Error(err), zap.String("account_id", accountID))
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	if !isAdmin {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.Next()
}
