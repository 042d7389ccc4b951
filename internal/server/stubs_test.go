package server

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/meridianimaging/meridian/backend/internal/applications"
	"github.com/meridianimaging/meridian/backend/internal/auth"
	"github.com/meridianimaging/meridian/backend/internal/signups"
	"github.com/meridianimaging/meridian/backend/internal/storage"
)

type stubAccountService struct {
	accounts     map[string]auth.Account
	isAdmin      map[string]bool
	predicateErr error
	signUpErr    error
	signInErr    error
}

func (s *stubAccountService) SignUp(_ context.Context, email, _ string) (auth.Account, error) {
	if s.signUpErr != nil {
		return auth.Account{}, s.signUpErr
	}
	return auth.Account{ID: "account-1", Email: email}, nil
}

func (s *stubAccountService) SignIn(_ context.Context, email, _ string) (auth.Account, error) {
	if s.signInErr != nil {
		return auth.Account{}, s.signInErr
	}
	return auth.Account{ID: "account-1", Email: email}, nil
}

func (s *stubAccountService) IsAdmin(_ context.Context, accountID string) (bool, error) {
	if s.predicateErr != nil {
		return false, s.predicateErr
	}
	return s.isAdmin[accountID], nil
}

func (s *stubAccountService) GetAccount(_ context.Context, accountID string) (auth.Account, error) {
	account, ok := s.accounts[accountID]
	if !ok {
		return auth.Account{}, auth.ErrAccountNotFound
	}
	return account, nil
}

type stubTokenManager struct {
	validateErr error
	subjects    map[string]string
}

func (s *stubTokenManager) IssueSessionToken(account auth.Account) (string, int64, error) {
	return "token-" + account.ID, 900, nil
}

func (s *stubTokenManager) ValidateSessionToken(token string) (auth.SessionClaims, error) {
	if s.validateErr != nil {
		return auth.SessionClaims{}, s.validateErr
	}
	subject, ok := s.subjects[token]
	if !ok {
		return auth.SessionClaims{}, errors.New("unknown token")
	}
	claims := auth.SessionClaims{}
	claims.Subject = subject
	return claims, nil
}

type stubApplicationService struct {
	records   []applications.Application
	listErr   error
	submitErr error
	submitted []applications.SubmitRequest
}

func (s *stubApplicationService) List(_ context.Context) ([]applications.Application, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.records, nil
}

func (s *stubApplicationService) Get(_ context.Context, id string) (applications.Application, error) {
	for _, record := range s.records {
		if record.ID == id {
			return record, nil
		}
	}
	return applications.Application{}, applications.ErrNotFound
}

func (s *stubApplicationService) Submit(_ context.Context, request applications.SubmitRequest, resume *applications.ResumeUpload) (applications.Application, error) {
	if s.submitErr != nil {
		return applications.Application{}, s.submitErr
	}
	s.submitted = append(s.submitted, request)
	record := applications.Application{ID: "application-1"}
	if resume != nil {
		record.ResumePath = "application-1/1700000000123.pdf"
		record.ResumeFilename = resume.Filename
	}
	return record, nil
}

type stubSignupService struct {
	result signups.Result
	err    error
}

func (s *stubSignupService) Signup(_ context.Context, email string) (signups.Result, error) {
	if s.err != nil {
		return signups.Result{}, s.err
	}
	return s.result, nil
}

type stubArtifactService struct {
	objects     map[string]string
	signedErr   error
	validateErr error
}

func (s *stubArtifactService) SignedURL(objectPath string) (string, error) {
	if s.signedErr != nil {
		return "", s.signedErr
	}
	return "/files/" + objectPath + "?token=stub-token", nil
}

func (s *stubArtifactService) ValidateSignedToken(token, objectPath string) error {
	return s.validateErr
}

func (s *stubArtifactService) Open(objectPath string) (io.ReadCloser, error) {
	content, ok := s.objects[objectPath]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(strings.NewReader(content)), nil
}
