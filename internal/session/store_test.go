package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"visionary-studio/internal/edit"
	"visionary-studio/internal/photo"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestCreateUsesDefaults(t *testing.T) {
	s := NewStore(Options{})
	st := s.Create()

	assert.NotEmpty(t, st.ID)
	assert.Equal(t, edit.DefaultParams(), st.Params)
	assert.Nil(t, st.Original)

	got, ok := s.Get(st.ID)
	require.True(t, ok)
	assert.Equal(t, st.ID, got.ID)
}

func TestUpdateAndSnapshotIsolation(t *testing.T) {
	s := NewStore(Options{})
	id := s.Create().ID

	_, err := s.Update(id, func(st *State) error {
		st.Original = &photo.Image{Data: []byte("abc"), MimeType: "image/png"}
		st.Analysis = &photo.Analysis{Suggestions: []string{"one"}}
		return nil
	})
	require.NoError(t, err)

	got, _ := s.Get(id)
	got.Analysis.Suggestions[0] = "mutated"
	got.Original.MimeType = "image/gif"

	again, _ := s.Get(id)
	assert.Equal(t, "one", again.Analysis.Suggestions[0])
	assert.Equal(t, "image/png", again.Original.MimeType)
}

func TestUpdateErrorKeepsState(t *testing.T) {
	s := NewStore(Options{})
	id := s.Create().ID
	boom := errors.New("boom")

	_, err := s.Update(id, func(st *State) error {
		st.Prompt = "changed"
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, _ := s.Get(id)
	assert.Empty(t, got.Prompt)

	_, err = s.Update("missing", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResetKeepsID(t *testing.T) {
	s := NewStore(Options{})
	id := s.Create().ID
	_, err := s.Update(id, func(st *State) error {
		st.Params.Tone = 50
		st.Error = "Failed to process image."
		return nil
	})
	require.NoError(t, err)

	st, err := s.ResetIf(id, nil)
	require.NoError(t, err)
	assert.Equal(t, id, st.ID)
	assert.Equal(t, edit.DefaultParams(), st.Params)
	assert.Empty(t, st.Error)
}

func TestResetIfRefusalKeepsState(t *testing.T) {
	s := NewStore(Options{})
	id := s.Create().ID
	_, err := s.Update(id, func(st *State) error {
		st.Original = &photo.Image{Data: []byte("abc"), MimeType: "image/png"}
		st.Processing = true
		return nil
	})
	require.NoError(t, err)

	errBusy := errors.New("busy")
	_, err = s.ResetIf(id, func(st *State) error {
		if st.Busy() {
			return errBusy
		}
		return nil
	})
	require.ErrorIs(t, err, errBusy)

	got, ok := s.Get(id)
	require.True(t, ok)
	assert.NotNil(t, got.Original, "refused reset leaves the photo in place")
	assert.True(t, got.Processing)

	_, err = s.ResetIf("missing", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSweepNotifiesExpired(t *testing.T) {
	c := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewStore(Options{TTL: time.Minute, Now: c.Now})

	var mu sync.Mutex
	var got []string
	s.OnExpire(func(id string) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, id)
		// Hooks run unlocked, so they may call back into the store.
		_ = s.Len()
	})

	idle := s.Ensure("tg:1").ID
	c.Advance(30 * time.Second)
	kept := s.Ensure("tg:2").ID
	c.Advance(45 * time.Second)

	assert.Equal(t, 1, s.Sweep())
	mu.Lock()
	assert.Equal(t, []string{idle}, got)
	mu.Unlock()

	_, ok := s.Get(kept)
	assert.True(t, ok)
	assert.Zero(t, s.Sweep())
}

func TestExpiry(t *testing.T) {
	c := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewStore(Options{TTL: time.Minute, Now: c.Now})

	idle := s.Create().ID
	busy := s.Create().ID
	_, err := s.Update(busy, func(st *State) error {
		st.Processing = true
		return nil
	})
	require.NoError(t, err)

	c.Advance(2 * time.Minute)

	_, ok := s.Get(idle)
	assert.False(t, ok)
	assert.Equal(t, 1, s.Sweep())

	_, ok = s.Get(busy)
	assert.True(t, ok, "busy sessions never expire")
	assert.Equal(t, 1, s.Len())

	fresh := s.Ensure(idle)
	assert.Equal(t, idle, fresh.ID)
	assert.Equal(t, 2, s.Len())
}

func TestRunStopsOnCancel(t *testing.T) {
	s := NewStore(Options{SweepInterval: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
