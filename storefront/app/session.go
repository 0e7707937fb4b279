package app

import (
	"sync"
	"time"

	"github.com/m3rciful/paperbot/storefront"
	"github.com/m3rciful/paperbot/storefront/nav"
)

// Model is the complete view state of one storefront session. It is treated
// as a value: handlers derive a new Model and swap it in whole.
type Model struct {
	Nav         nav.State
	User        *storefront.User
	Departments []string
	Semesters   []string
	Years       []string
	Papers      []storefront.Paper
	History     []storefront.PurchaseRecord
	Profile     *storefront.ProfileStats
}

// LoggedIn reports whether a session user is loaded.
func (m Model) LoggedIn() bool { return m.User != nil }

// PendingInvoice is an invoice opened for the user and not yet paid.
type PendingInvoice struct {
	ID      string
	Amount  int
	URL     string
	Created time.Time
}

// Session holds the model and in-flight bookkeeping for one user.
type Session struct {
	UserID int64

	mu       sync.Mutex
	model    Model
	inflight map[string]struct{}
	pending  *PendingInvoice
}

func newSession(userID int64) *Session {
	return &Session{
		UserID:   userID,
		model:    Model{Nav: nav.Initial()},
		inflight: make(map[string]struct{}),
	}
}

// Model returns a snapshot of the current model.
func (s *Session) Model() Model {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// Update applies fn to the current model and stores the result.
func (s *Session) Update(fn func(Model) Model) Model {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = fn(s.model)
	return s.model
}

// CommitAt applies fn only while the navigation generation is still gen. It
// reports false, leaving the model untouched, when another transition was
// committed in between.
func (s *Session) CommitAt(gen uint64, fn func(Model) Model) (Model, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.model.Nav.Gen != gen {
		return s.model, false
	}
	s.model = fn(s.model)
	return s.model, true
}

// Begin marks key as in flight. It returns false when key is already running.
func (s *Session) Begin(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[key]; busy {
		return false
	}
	s.inflight[key] = struct{}{}
	return true
}

// End clears an in-flight key.
func (s *Session) End(key string) {
	s.mu.Lock()
	delete(s.inflight, key)
	s.mu.Unlock()
}

// SetPending records the invoice last opened for the user.
func (s *Session) SetPending(inv PendingInvoice) {
	s.mu.Lock()
	s.pending = &inv
	s.mu.Unlock()
}

// TakePending returns and clears the pending invoice.
func (s *Session) TakePending() (PendingInvoice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return PendingInvoice{}, false
	}
	inv := *s.pending
	s.pending = nil
	return inv, true
}

// Sessions is the in-memory session store keyed by Telegram user id.
type Sessions struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

// NewSessions returns an empty store.
func NewSessions() *Sessions {
	return &Sessions{sessions: make(map[int64]*Session)}
}

// Get returns the session for userID, creating it on first use.
func (s *Sessions) Get(userID int64) *Session {
	s.mu.RLock()
	sess, ok := s.sessions[userID]
	s.mu.RUnlock()
	if ok {
		return sess
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[userID]; ok {
		return sess
	}
	sess = newSession(userID)
	s.sessions[userID] = sess
	return sess
}

// Len reports the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Clear drops the session of a user.
func (s *Sessions) Clear(userID int64) {
	s.mu.Lock()
	delete(s.sessions, userID)
	s.mu.Unlock()
}
