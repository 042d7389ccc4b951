package client

import (
	"sync"

	"go.uber.org/zap"
)

// Identity is the signed-in account as the store knows it.
type Identity struct {
	AccountID   string
	Email       string
	AccessToken string
}

// SessionState is a snapshot delivered to subscribers on every transition.
type SessionState struct {
	Identity *Identity
	Loading  bool
	IsAdmin  bool
}

type subscriber struct {
	id int
	fn func(SessionState)
}

// SessionStore tracks the current identity and a derived admin flag.
//
// The admin flag is a cache, never an authority: the server re-checks the
// role on every privileged request regardless of what this flag says. It is
// re-derived asynchronously on each identity transition, and each derivation
// is tagged with the generation of the identity it was started for, so an
// answer arriving after the identity has already changed again is discarded
// instead of flipping the flag for the wrong account. Any failure to get a
// definite answer leaves the flag false.
type SessionStore struct {
	client *Client
	logger *zap.Logger

	mu          sync.Mutex
	identity    *Identity
	loading     bool
	isAdmin     bool
	generation  uint64
	subscribers []subscriber
	nextSubID   int

	refreshDone chan struct{}
}

// NewSessionStore builds a store in the loading state; call Restore to
// resolve it. A nil logger is replaced with a no-op.
func NewSessionStore(apiClient *Client, logger *zap.Logger) *SessionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionStore{client: apiClient, logger: logger, loading: true}
}

// CurrentIdentity returns the signed-in identity, or nil when signed out or
// still loading. Use Loading to tell those two apart.
func (s *SessionStore) CurrentIdentity() *Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return nil
	}
	copied := *s.identity
	return &copied
}

// Loading reports whether the initial session restore is still unresolved.
func (s *SessionStore) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// IsAdmin returns the cached derived flag. False while a derivation is in
// flight, false when signed out, false when the last check failed.
func (s *SessionStore) IsAdmin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isAdmin
}

// Subscribe registers fn for every state transition and immediately delivers
// the current snapshot. The returned function unsubscribes and is safe to
// call more than once.
func (s *SessionStore) Subscribe(fn func(SessionState)) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers = append(s.subscribers, subscriber{id: id, fn: fn})
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	fn(snapshot)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subscribers {
				if sub.id == id {
					s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
					break
				}
			}
		})
	}
}

// Restore resolves the initial state from a persisted token. An empty token,
// or one the server no longer accepts, resolves to signed out. Either way
// Loading becomes false.
func (s *SessionStore) Restore(token string) {
	if token == "" {
		s.transition(nil)
		return
	}
	info, err := s.client.CurrentSession(token)
	if err != nil {
		if err != ErrUnauthorized {
			s.logger.Warn("session restore failed", zap.Error(err))
		}
		s.transition(nil)
		return
	}
	s.transition(&Identity{AccountID: info.AccountID, Email: info.Email, AccessToken: token})
}

// SignUp registers an account and signs it in.
func (s *SessionStore) SignUp(email, password string) error {
	session, err := s.client.SignUp(email, password)
	if err != nil {
		return err
	}
	s.transition(&Identity{AccountID: session.AccountID, Email: session.Email, AccessToken: session.AccessToken})
	return nil
}

// SignIn authenticates and records the identity.
func (s *SessionStore) SignIn(email, password string) error {
	session, err := s.client.SignIn(email, password)
	if err != nil {
		return err
	}
	s.transition(&Identity{AccountID: session.AccountID, Email: session.Email, AccessToken: session.AccessToken})
	return nil
}

// SignOut clears the identity and the admin flag synchronously, before the
// server call and before any in-flight admin derivation can resolve; a late
// answer for the old identity is stale by generation and dropped.
func (s *SessionStore) SignOut() {
	s.mu.Lock()
	token := ""
	if s.identity != nil {
		token = s.identity.AccessToken
	}
	s.mu.Unlock()

	s.transition(nil)

	if token != "" {
		if err := s.client.SignOut(token); err != nil {
			s.logger.Warn("sign-out request failed", zap.Error(err))
		}
	}
}

// transition swaps the identity, bumps the generation, resets the admin flag,
// notifies subscribers, and kicks off a fresh derivation when signed in.
func (s *SessionStore) transition(identity *Identity) {
	s.mu.Lock()
	s.identity = identity
	s.loading = false
	s.isAdmin = false
	s.generation++
	generation := s.generation
	s.refreshDone = make(chan struct{})
	done := s.refreshDone
	snapshot := s.snapshotLocked()
	subs := make([]subscriber, len(s.subscribers))
	copy(subs, s.subscribers)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(snapshot)
	}

	if identity == nil {
		close(done)
		return
	}
	go s.deriveAdmin(generation, identity.AccessToken, done)
}

func (s *SessionStore) deriveAdmin(generation uint64, token string, done chan struct{}) {
	defer close(done)

	isAdmin, err := s.client.IsAdmin(token)
	if err != nil {
		s.logger.Warn("admin check failed, treating as non-admin", zap.Error(err))
		isAdmin = false
	}

	s.mu.Lock()
	if s.generation != generation {
		s.mu.Unlock()
		return
	}
	changed := s.isAdmin != isAdmin
	s.isAdmin = isAdmin
	snapshot := s.snapshotLocked()
	subs := make([]subscriber, len(s.subscribers))
	copy(subs, s.subscribers)
	s.mu.Unlock()

	if !changed {
		return
	}
	for _, sub := range subs {
		sub.fn(snapshot)
	}
}

// WaitAdminRefresh blocks until the derivation started by the most recent
// transition has finished or been superseded. Intended for callers that need
// a settled flag, such as tests and one-shot tools.
func (s *SessionStore) WaitAdminRefresh() {
	s.mu.Lock()
	done := s.refreshDone
	s.mu.Unlock()
	if done == nil {
		return
	}
	<-done
}

func (s *SessionStore) snapshotLocked() SessionState {
	state := SessionState{Loading: s.loading, IsAdmin: s.isAdmin}
	if s.identity != nil {
		copied := *s.identity
		state.Identity = &copied
	}
	return state
}
