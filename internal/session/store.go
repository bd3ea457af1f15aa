// Package session holds import sessions in a bounded, TTL-expiring in-memory
// store. The store is the only component allowed to mutate a session after
// creation; callers always receive copies.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dietflow/importer/internal/domain"
)

var (
	// ErrNotFound is returned for unknown session ids.
	ErrNotFound = errors.New("import session not found")
	// ErrExpired is returned when a session outlived its TTL.
	ErrExpired = errors.New("import session expired; re-upload and validate again")
	// ErrNotValidated is returned when commit is attempted before validation.
	ErrNotValidated = errors.New("import session has no validation snapshot")
	// ErrCommitInFlight is returned when a commit is already running.
	ErrCommitInFlight = errors.New("commit already in progress for this session")
	// ErrStoreFull is returned when the bounded store has no free slot.
	ErrStoreFull = errors.New("session store is full; retry later")
)

// TerminalError reports an operation against a session in a terminal state.
type TerminalError struct {
	Status domain.SessionStatus
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("import session already %s", e.Status)
}

type entry struct {
	session    domain.ImportSession
	committing bool
}

// Store is a mutex-guarded session arena. Expiry is checked on every access
// and enforced by a background sweep.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*entry
	ttl      time.Duration
	capacity int
	now      func() time.Time
}

// NewStore creates a session store. ttl bounds how long a validated session
// stays committable; capacity bounds the number of live sessions.
func NewStore(ttl time.Duration, capacity int) *Store {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if capacity <= 0 {
		capacity = 256
	}
	return &Store{
		sessions: make(map[string]*entry),
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
	}
}

// Create registers a new session in the uploaded state.
func (s *Store) Create(fileName string) (domain.ImportSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictLocked()
	if len(s.sessions) >= s.capacity {
		return domain.ImportSession{}, ErrStoreFull
	}

	session := domain.NewImportSession(fileName, s.ttl)
	session.CreatedAt = s.now()
	session.ExpiresAt = session.CreatedAt.Add(s.ttl)
	s.sessions[session.ID] = &entry{session: session}
	return session, nil
}

// Get returns a copy of the session, applying lazy expiry.
func (s *Store) Get(id string) (domain.ImportSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, err := s.liveLocked(id)
	if err != nil {
		return domain.ImportSession{}, err
	}
	return copySession(ent.session), nil
}

// AttachValidation stores the validation snapshot and moves the session to
// the validated state. The TTL restarts from validation time.
func (s *Store) AttachValidation(id, fileType string, headers []string, validation domain.ValidationReport) (domain.ImportSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, err := s.liveLocked(id)
	if err != nil {
		return domain.ImportSession{}, err
	}
	if ent.session.Status.Terminal() {
		return domain.ImportSession{}, &TerminalError{Status: ent.session.Status}
	}

	ent.session.FileType = fileType
	ent.session.Headers = append([]string(nil), headers...)
	ent.session.TotalRows = validation.ValidRows + validation.InvalidRows + validation.UnmatchedRows
	ent.session.Validation = &validation
	ent.session.Status = domain.SessionStatusValidated
	ent.session.ExpiresAt = s.now().Add(s.ttl)
	return copySession(ent.session), nil
}

// BeginCommit claims the session for a commit. Exactly one commit may run per
// session; the claim is released by CompleteCommit.
func (s *Store) BeginCommit(id string) (domain.ImportSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, err := s.liveLocked(id)
	if err != nil {
		return domain.ImportSession{}, err
	}
	if ent.session.Status.Terminal() {
		return domain.ImportSession{}, &TerminalError{Status: ent.session.Status}
	}
	if ent.session.Status != domain.SessionStatusValidated || ent.session.Validation == nil {
		return domain.ImportSession{}, ErrNotValidated
	}
	if ent.committing {
		return domain.ImportSession{}, ErrCommitInFlight
	}

	ent.committing = true
	return copySession(ent.session), nil
}

// CompleteCommit finishes a claimed commit. On success the session becomes
// committed (terminal); on failure it returns to validated so the caller can
// retry the failed groups.
func (s *Store) CompleteCommit(id string, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.sessions[id]
	if !ok {
		return
	}
	ent.committing = false
	if success {
		ent.session.Status = domain.SessionStatusCommitted
	}
}

// Discard moves the session to the discarded state and releases its snapshot.
func (s *Store) Discard(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, err := s.liveLocked(id)
	if err != nil {
		return err
	}
	if ent.session.Status.Terminal() {
		return &TerminalError{Status: ent.session.Status}
	}
	if ent.committing {
		return ErrCommitInFlight
	}

	ent.session.Status = domain.SessionStatusDiscarded
	ent.session.Validation = nil
	return nil
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Run sweeps expired sessions until the context is cancelled.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("session sweeper started", "interval", interval, "ttl", s.ttl)
	for {
		select {
		case <-ctx.Done():
			slog.Info("session sweeper stopped")
			return
		case <-ticker.C:
			swept := s.sweep()
			if swept > 0 {
				slog.Debug("session sweep completed", "swept", swept)
			}
		}
	}
}

func (s *Store) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	swept := 0
	for id, ent := range s.sessions {
		if ent.committing {
			continue
		}
		if !ent.session.Status.Terminal() && now.After(ent.session.ExpiresAt) {
			ent.session.Status = domain.SessionStatusExpired
			ent.session.Validation = nil
			swept++
			continue
		}
		// Terminal sessions linger one TTL for status queries, then drop.
		if ent.session.Status.Terminal() && now.After(ent.session.ExpiresAt.Add(s.ttl)) {
			delete(s.sessions, id)
			swept++
		}
	}
	return swept
}

// liveLocked fetches a session and applies lazy expiry. Callers hold s.mu.
func (s *Store) liveLocked(id string) (*entry, error) {
	ent, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !ent.session.Status.Terminal() && s.now().After(ent.session.ExpiresAt) && !ent.committing {
		ent.session.Status = domain.SessionStatusExpired
		ent.session.Validation = nil
	}
	if ent.session.Status == domain.SessionStatusExpired {
		return nil, ErrExpired
	}
	return ent, nil
}

func (s *Store) evictLocked() {
	now := s.now()
	for id, ent := range s.sessions {
		if ent.committing {
			continue
		}
		if now.After(ent.session.ExpiresAt.Add(s.ttl)) {
			delete(s.sessions, id)
		}
	}
}

func copySession(session domain.ImportSession) domain.ImportSession {
	clone := session
	clone.Headers = append([]string(nil), session.Headers...)
	if session.Validation != nil {
		validation := *session.Validation
		clone.Validation = &validation
	}
	return clone
}
