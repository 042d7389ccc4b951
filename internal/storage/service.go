package storage

import (
	"errors"
	"io"
	"time"

	"go.uber.org/zap"
)

// DefaultMaxObjectBytes caps upload size at 10MB, matching the limit the
// public form advertises.
const DefaultMaxObjectBytes = 10 << 20

var (
	// ErrObjectTooLarge indicates an upload exceeded the configured size cap.
	ErrObjectTooLarge = errors.New("storage: object exceeds size limit")

	errMissingStore  = errors.New("storage: disk store is required")
	errMissingSigner = errors.New("storage: url signer is required")
	noOpLogger       = zap.NewNop()
)

// StoredObject pairs the private storage path with the original display
// filename. The path is internal bookkeeping for later signed-URL issuance;
// only the filename is ever shown to people.
type StoredObject struct {
	Path     string
	Filename string
}

// ServiceConfig describes the dependencies of the artifact access service.
type ServiceConfig struct {
	Store          *DiskStore
	Signer         *URLSigner
	MaxObjectBytes int64
	Clock          func() time.Time
	Logger         *zap.Logger
}

// Service is the single entry point for private artifact access: it performs
// uploads that produce private paths and mints the signed URLs that make
// those paths temporarily fetchable.
type Service struct {
	store    *DiskStore
	signer   *URLSigner
	maxBytes int64
	clock    func() time.Time
	logger   *zap.Logger
}

// NewService constructs the artifact access service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.Signer == nil {
		return nil, errMissingSigner
	}
	maxBytes := cfg.MaxObjectBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxObjectBytes
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		store:    cfg.Store,
		signer:   cfg.Signer,
		maxBytes: maxBytes,
		clock:    clock,
		logger:   logger,
	}, nil
}

// UploadPrivateFile stores the payload under a freshly built key scoped to
// ownerScopeID and returns the private path together with the display
// filename. The user-supplied filename never becomes part of the path beyond
// its sanitized extension.
func (s *Service) UploadPrivateFile(data io.Reader, ownerScopeID, filename string) (StoredObject, error) {
	key, err := BuildObjectKey(ownerScopeID, filename, s.clock())
	if err != nil {
		return StoredObject{}, err
	}

	limited := io.LimitReader(data, s.maxBytes+1)
	counted := &countingReader{reader: limited}
	if err := s.store.Save(key, counted); err != nil {
		s.logger.Error("object upload failed", zap.Error(err), zap.String("key", key))
		return StoredObject{}, err
	}
	if counted.bytes > s.maxBytes {
		// The oversize object was already written; remove it before failing.
		if removeErr := s.store.Remove(key); removeErr != nil {
			s.logger.Error("oversize object cleanup failed", zap.Error(removeErr), zap.String("key", key))
		}
		return StoredObject{}, ErrObjectTooLarge
	}

	s.logger.Info("object stored", zap.String("key", key), zap.Int64("bytes", counted.bytes))
	return StoredObject{Path: key, Filename: filename}, nil
}

// SignedURL mints a fresh time-limited URL for an existing object. A missing
// object yields ErrObjectNotFound rather than a URL that would dangle.
func (s *Service) SignedURL(objectPath string) (string, error) {
	exists, err := s.store.Exists(objectPath)
	if err != nil {
		s.logger.Error("object existence check failed", zap.Error(err), zap.String("path", objectPath))
		return "", err
	}
	if !exists {
		return "", ErrObjectNotFound
	}
	return s.signer.IssueSignedURL(objectPath)
}

// Open returns the stored object bytes for a path that has already passed
// signed-token validation.
func (s *Service) Open(objectPath string) (io.ReadCloser, error) {
	return s.store.Open(objectPath)
}

// ValidateSignedToken checks a download token against the requested path.
func (s *Service) ValidateSignedToken(token, objectPath string) error {
	return s.signer.ValidateSignedToken(token, objectPath)
}

type countingReader struct {
	reader io.Reader
	bytes  int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.reader.Read(p)
	c.bytes += int64(n)
	return n, err
}
