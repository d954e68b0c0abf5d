// Package chatfeed keeps the most recent chat messages visible to readers.
// The chat table itself is append-only; truncation happens here.
package chatfeed

import (
	"slices"
	"sort"
	"sync"

	"blockguess/internal/models"
	"blockguess/internal/table"
)

// DefaultCapacity is how many messages a feed retains.
const DefaultCapacity = 100

// Feed is a bounded projection of a chat table fed by its insert stream.
type Feed struct {
	capacity int

	mu   sync.RWMutex
	msgs []models.ChatMessage // arrival order

	unsubscribe table.Unsubscribe
}

// New subscribes to src and seeds the feed with the messages already stored.
func New(src table.Reactive[models.ChatMessage], capacity int) *Feed {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	f := &Feed{capacity: capacity}
	f.unsubscribe = src.SubscribeInsert(f)
	for msg := range src.All() {
		f.add(msg)
	}
	return f
}

// OnInsert implements table.InsertObserver.
func (f *Feed) OnInsert(msg models.ChatMessage) {
	f.add(msg)
}

func (f *Feed) add(msg models.ChatMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.msgs {
		if m.ID == msg.ID {
			return
		}
	}
	f.msgs = append(f.msgs, msg)
	for len(f.msgs) > f.capacity {
		i := f.oldest()
		f.msgs = slices.Delete(f.msgs, i, i+1)
	}
}

// oldest returns the index of the message that sorts last in Messages.
func (f *Feed) oldest() int {
	idx := 0
	for i, m := range f.msgs[1:] {
		if newer(f.msgs[idx], m) {
			idx = i + 1
		}
	}
	return idx
}

func newer(a, b models.ChatMessage) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	return a.ID > b.ID
}

// Messages returns the retained messages, most recent first. Messages with
// the same timestamp are ordered by descending id.
func (f *Feed) Messages() []models.ChatMessage {
	f.mu.RLock()
	out := make([]models.ChatMessage, len(f.msgs))
	copy(out, f.msgs)
	f.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return newer(out[i], out[j])
	})
	return out
}

// Len returns how many messages are retained.
func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.msgs)
}

// Close stops following the table.
func (f *Feed) Close() {
	if f.unsubscribe != nil {
		f.unsubscribe()
	}
}
