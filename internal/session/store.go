package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"visionary-studio/internal/edit"
	"visionary-studio/internal/photo"
)

var ErrNotFound = errors.New("session not found")

// State is everything one editing session holds. Images are kept in memory only.
type State struct {
	ID string

	Original *photo.Image
	Edited   *photo.Image
	Analysis *photo.Analysis

	Params edit.Params
	Prompt string
	Preset string

	Analyzing  bool
	Processing bool
	Error      string

	LastActivity time.Time
}

func (s State) Busy() bool {
	return s.Analyzing || s.Processing
}

type Options struct {
	TTL           time.Duration
	SweepInterval time.Duration
	Now           func() time.Time
}

type Store struct {
	mu       sync.Mutex
	sessions map[string]*State
	ttl      time.Duration
	sweep    time.Duration
	now      func() time.Time
	onExpire []func(id string)
}

func NewStore(opts Options) *Store {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	sweep := opts.SweepInterval
	if sweep <= 0 {
		sweep = time.Minute
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Store{
		sessions: make(map[string]*State),
		ttl:      ttl,
		sweep:    sweep,
		now:      now,
	}
}

// Create starts a fresh session with default parameters.
func (s *Store) Create() State {
	return s.Ensure(uuid.NewString())
}

// Ensure returns the session with the given id, creating it when missing.
// Chat front ends use stable ids derived from the chat.
func (s *Store) Ensure(id string) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.getOrCreateLocked(id)
	st.LastActivity = s.now()
	return snapshot(st)
}

func (s *Store) Get(id string) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sessions[id]
	if !ok || s.expiredLocked(st) {
		return State{}, false
	}
	st.LastActivity = s.now()
	return snapshot(st), true
}

// Update applies fn under the store lock. Returning an error from fn leaves
// the session untouched.
func (s *Store) Update(id string, fn func(*State) error) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sessions[id]
	if !ok || s.expiredLocked(st) {
		return State{}, ErrNotFound
	}

	if fn != nil {
		draft := snapshot(st)
		if err := fn(&draft); err != nil {
			return snapshot(st), err
		}
		draft.ID = id
		*st = draft
	}
	st.LastActivity = s.now()
	return snapshot(st), nil
}

// ResetIf clears the session when check, run under the store lock, returns
// nil. A nil check always resets.
func (s *Store) ResetIf(id string, check func(*State) error) (State, error) {
	return s.Update(id, func(st *State) error {
		if check != nil {
			if err := check(st); err != nil {
				return err
			}
		}
		*st = newState(id, s.now())
		return nil
	})
}

func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Run evicts idle sessions until ctx is done.
func (s *Store) Run(ctx context.Context) {
	ticker := time.NewTicker(s.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// OnExpire registers fn to be called with the id of every session Sweep
// drops. Callbacks run outside the store lock.
func (s *Store) OnExpire(fn func(id string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onExpire = append(s.onExpire, fn)
}

// Sweep removes expired sessions and reports how many were dropped.
// Sessions with a remote call in flight are kept.
func (s *Store) Sweep() int {
	s.mu.Lock()
	var dropped []string
	for id, st := range s.sessions {
		if s.expiredLocked(st) {
			delete(s.sessions, id)
			dropped = append(dropped, id)
		}
	}
	hooks := append(([]func(string))(nil), s.onExpire...)
	s.mu.Unlock()

	for _, id := range dropped {
		for _, fn := range hooks {
			fn(id)
		}
	}
	return len(dropped)
}

func (s *Store) expiredLocked(st *State) bool {
	if st.Busy() {
		return false
	}
	return s.now().Sub(st.LastActivity) > s.ttl
}

func (s *Store) getOrCreateLocked(id string) *State {
	if st, ok := s.sessions[id]; ok && !s.expiredLocked(st) {
		return st
	}
	st := newState(id, s.now())
	s.sessions[id] = &st
	return s.sessions[id]
}

func newState(id string, now time.Time) State {
	return State{
		ID:           id,
		Params:       edit.DefaultParams(),
		LastActivity: now,
	}
}

// snapshot copies the pointers' targets so callers never share memory with the store.
func snapshot(st *State) State {
	out := *st
	if st.Original != nil {
		img := *st.Original
		out.Original = &img
	}
	if st.Edited != nil {
		img := *st.Edited
		out.Edited = &img
	}
	if st.Analysis != nil {
		a := *st.Analysis
		a.Suggestions = append([]string(nil), st.Analysis.Suggestions...)
		out.Analysis = &a
	}
	return out
}
