package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"messenger-service/internal/observability"
)

// ErrNoSnapshot is returned by a Backend when nothing has been persisted yet.
var ErrNoSnapshot = errors.New("no snapshot")

// Backend persists the encoded document as a single blob.
type Backend interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// Store owns the process-wide state. All mutation goes through Update.
type Store struct {
	mu      sync.RWMutex
	state   *State
	version uint64

	saveMu sync.Mutex
	saved  uint64

	backend  Backend
	interval time.Duration
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithAutosaveInterval sets the period of the autosave loop.
func WithAutosaveInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithClock overrides time.Now for message stamping.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Open loads the document from backend, or starts empty if there is none.
func Open(ctx context.Context, backend Backend, opts ...Option) (*Store, error) {
	s := &Store{
		backend:  backend,
		interval: 30 * time.Second,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	data, err := backend.Load(ctx)
	switch {
	case errors.Is(err, ErrNoSnapshot):
		s.state = NewState()
		log.Printf("store: no snapshot found, starting empty")
	case err != nil:
		return nil, fmt.Errorf("load snapshot: %w", err)
	default:
		state, err := Decode(data)
		if err != nil {
			return nil, err
		}
		s.state = state
		log.Printf("store: loaded users=%d chats=%d", len(state.Users), len(state.Chats))
	}
	return s, nil
}

// Now returns the store clock.
func (s *Store) Now() time.Time {
	return s.now()
}

// View runs fn with shared access to the state. fn must not retain it.
func (s *Store) View(fn func(st *State)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.state)
}

// Update runs fn with exclusive access and persists the result when fn
// succeeds. A failed save does not undo the mutation; the autosave loop
// picks it up.
func (s *Store) Update(ctx context.Context, fn func(st *State) error) error {
	s.mu.Lock()
	if err := fn(s.state); err != nil {
		s.mu.Unlock()
		return err
	}
	s.version++
	s.mu.Unlock()

	if err := s.Flush(ctx); err != nil {
		log.Printf("store: save after update failed: %v", err)
	}
	return nil
}

// Flush writes the current document if it changed since the last save.
func (s *Store) Flush(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.RLock()
	version := s.version
	if version == s.saved {
		s.mu.RUnlock()
		return nil
	}
	data, err := Encode(s.state)
	s.mu.RUnlock()
	if err != nil {
		observability.IncStoreSave("error")
		return fmt.Errorf("encode state: %w", err)
	}

	if err := s.backend.Save(ctx, data); err != nil {
		observability.IncStoreSave("error")
		return fmt.Errorf("save snapshot: %w", err)
	}
	s.saved = version
	observability.IncStoreSave("ok")
	return nil
}

// Dirty reports whether there are mutations not yet written.
func (s *Store) Dirty() bool {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version != s.saved
}

// Run flushes on every tick until ctx is done.
func (s *Store) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Flush(ctx); err != nil {
				log.Printf("store: autosave failed: %v", err)
			}
		}
	}
}

// Close writes any pending mutation.
func (s *Store) Close(ctx context.Context) error {
	return s.Flush(ctx)
}
