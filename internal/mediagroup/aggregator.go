package mediagroup

import (
	"fmt"
	"sync"
	"time"
)

// Item is one photo of a Telegram album.
type Item struct {
	ChatID       int64
	UserID       int64
	MediaGroupID string
	Caption      string
	FileID       string
}

type Group struct {
	ChatID  int64
	UserID  int64
	Caption string
	FileIDs []string
}

// Last is the photo the studio edits; earlier album entries are ignored.
func (g Group) Last() string {
	if len(g.FileIDs) == 0 {
		return ""
	}
	return g.FileIDs[len(g.FileIDs)-1]
}

type Options struct {
	Debounce time.Duration
	OnFlush  func(Group)
}

type Aggregator struct {
	mu       sync.Mutex
	debounce time.Duration
	onFlush  func(Group)
	groups   map[string]*pendingGroup
	closed   bool
}

type pendingGroup struct {
	group Group
	timer *time.Timer
}

func New(opts Options) *Aggregator {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 1200 * time.Millisecond
	}

	return &Aggregator{
		debounce: debounce,
		onFlush:  opts.OnFlush,
		groups:   make(map[string]*pendingGroup),
	}
}

// Add reports false for items that are not part of an album.
func (a *Aggregator) Add(item Item) bool {
	if item.MediaGroupID == "" || item.FileID == "" {
		return false
	}

	key := makeKey(item.ChatID, item.MediaGroupID)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return true
	}

	pg, ok := a.groups[key]
	if !ok {
		pg = &pendingGroup{
			group: Group{
				ChatID:  item.ChatID,
				UserID:  item.UserID,
				Caption: item.Caption,
				FileIDs: []string{item.FileID},
			},
		}
		a.groups[key] = pg
	} else {
		pg.group.FileIDs = append(pg.group.FileIDs, item.FileID)
		if item.Caption != "" {
			pg.group.Caption = item.Caption
		}
	}

	if pg.timer != nil {
		pg.timer.Stop()
	}
	pg.timer = time.AfterFunc(a.debounce, func() {
		a.flush(key)
	})
	return true
}

// Pending is the number of albums still waiting for their debounce window.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.groups)
}

// Stop drops pending albums without flushing them.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	for key, pg := range a.groups {
		if pg.timer != nil {
			pg.timer.Stop()
		}
		delete(a.groups, key)
	}
}

func (a *Aggregator) flush(key string) {
	a.mu.Lock()
	pg, ok := a.groups[key]
	if !ok {
		a.mu.Unlock()
		return
	}
	delete(a.groups, key)
	group := pg.group
	onFlush := a.onFlush
	a.mu.Unlock()

	if onFlush != nil {
		onFlush(group)
	}
}

func makeKey(chatID int64, mediaGroupID string) string {
	return fmt.Sprintf("%d:%s", chatID, mediaGroupID)
}
