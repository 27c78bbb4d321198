package memory

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/pneumonia-classifier/internal/core/domain"
)

var errSessionGone = errors.New("session expired or unknown")

// Store keeps sessions in process memory. Mutations of one session are
// serialized; different sessions never block each other. Readers see the last
// committed state and never wait for a running Update.
type Store struct {
	idleTimeout time.Duration
	now         func() time.Time

	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	// busy holds one token while an Update runs.
	busy chan struct{}

	mu      sync.Mutex
	session domain.Session
	removed bool
}

func newEntry(sess domain.Session) *entry {
	return &entry{busy: make(chan struct{}, 1), session: sess}
}

func NewStore(idleTimeout time.Duration) *Store {
	if idleTimeout <= 0 {
		idleTimeout = 12 * time.Hour
	}
	return &Store{
		idleTimeout: idleTimeout,
		now:         func() time.Time { return time.Now().UTC() },
		entries:     make(map[string]*entry),
	}
}

func (s *Store) Create(_ context.Context, username string) (*domain.Session, error) {
	now := s.now()
	e := newEntry(domain.Session{
		ID:         uuid.NewString(),
		Username:   username,
		CreatedAt:  now,
		LastSeenAt: now,
	})

	s.mu.Lock()
	s.entries[e.session.ID] = e
	s.mu.Unlock()

	out := snapshot(e.session)
	return &out, nil
}

func (s *Store) Get(_ context.Context, id string) (*domain.Session, error) {
	e, err := s.lockLive(id)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()

	e.session.LastSeenAt = s.now()
	out := snapshot(e.session)
	return &out, nil
}

// Update runs fn with exclusive write access to the session. fn works on a
// copy that is committed when it returns, so concurrent Get calls keep seeing
// the previous state. Changes made by fn are kept even when fn returns an
// error, so a failed step can record its outcome. Waiting for another Update
// on the same session stops when ctx is done.
func (s *Store) Update(ctx context.Context, id string, fn func(*domain.Session) error) error {
	slot, err := s.lookup(id)
	if err != nil {
		return err
	}

	select {
	case slot.busy <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-slot.busy }()
	if err := ctx.Err(); err != nil {
		return err
	}

	e, err := s.lockLive(id)
	if err != nil {
		return err
	}
	e.session.LastSeenAt = s.now()
	work := snapshot(e.session)
	e.mu.Unlock()

	fnErr := fn(&work)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return domain.WrapError(domain.ErrUnauthorized, "update session", errSessionGone)
	}
	work.LastSeenAt = s.now()
	e.session = work
	return fnErr
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	e, ok := s.entries[id]
	delete(s.entries, id)
	s.mu.Unlock()

	if ok {
		e.mu.Lock()
		e.removed = true
		e.session.Workflow = nil
		e.mu.Unlock()
	}
	return nil
}

// Sweep discards sessions idle for longer than the timeout together with any
// classification they hold. Sessions busy in Update are skipped.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.entries {
		select {
		case e.busy <- struct{}{}:
		default:
			continue
		}
		e.mu.Lock()
		if now.Sub(e.session.LastSeenAt) > s.idleTimeout {
			e.removed = true
			e.session.Workflow = nil
			delete(s.entries, id)
			removed++
		}
		e.mu.Unlock()
		<-e.busy
	}
	return removed
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// RunJanitor sweeps on every tick until ctx is done. onSweep, when set, receives
// the number of live sessions after each pass.
func (s *Store) RunJanitor(ctx context.Context, interval time.Duration, onSweep func(live int)) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(s.now()); n > 0 {
				slog.Info("sessions_expired", "count", n)
			}
			if onSweep != nil {
				onSweep(s.Len())
			}
		}
	}
}

func (s *Store) lookup(id string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.WrapError(domain.ErrUnauthorized, "load session", errSessionGone)
	}
	return e, nil
}

// lockLive returns the entry locked, or an error when it is gone or idle too long.
func (s *Store) lockLive(id string) (*entry, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.removed || s.now().Sub(e.session.LastSeenAt) > s.idleTimeout {
		e.mu.Unlock()
		_ = s.Delete(context.Background(), id)
		return nil, domain.WrapError(domain.ErrUnauthorized, "load session", errSessionGone)
	}
	return e, nil
}

// snapshot copies the session and its workflow header; image bytes and the
// tensor stay shared and are treated as read-only.
func snapshot(sess domain.Session) domain.Session {
	out := sess
	if sess.Workflow != nil {
		wf := *sess.Workflow
		out.Workflow = &wf
	}
	return out
}
