// Package queue keeps work items ordered by descending priority.
//
// All mutation goes through one mutex. Snapshot and Summary take the read lock and copy, so
// a snapshot is strictly consistent: it reflects every Insert/Pop/Remove that returned
// before it was taken and none that started after.
package queue

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"mailtriage/pkg/proto"
)

var (
	// ErrDuplicateItem is returned when an item with the same ID is already queued.
	ErrDuplicateItem = errors.New("item already queued")
	// ErrInvalidItem is returned for items without an ID.
	ErrInvalidItem = errors.New("invalid work item")
)

// Entry wraps a queued item with its scheduling metadata.
type Entry struct {
	Item       proto.WorkItem `json:"item"`
	Priority   int            `json:"priority"`
	EnqueuedAt time.Time      `json:"enqueuedAt"`
	Attempts   int            `json:"attempts"`
}

// Summary is a point-in-time view of the queue head and counts.
type Summary struct {
	TotalItems  int
	UrgentItems int
	Next        *proto.WorkItem
}

// Queue is a priority-ordered work queue. Equal priorities drain in insertion order.
type Queue struct {
	mu      sync.RWMutex
	entries []Entry
	ids     map[string]struct{}
	now     func() time.Time
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock overrides the clock used for scoring and enqueue timestamps.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		q.now = now
	}
}

// New creates an empty queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		ids: make(map[string]struct{}),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Insert scores item with the queue clock and places it after every entry of
// equal or higher priority.
func (q *Queue) Insert(item proto.WorkItem) (Entry, error) {
	if item.ID == "" {
		return Entry{}, fmt.Errorf("%w: missing id", ErrInvalidItem)
	}
	now := q.now()
	entry := Entry{
		Item:       item,
		Priority:   ComputePriority(item, now),
		EnqueuedAt: now,
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.ids[item.ID]; exists {
		return Entry{}, fmt.Errorf("%w: %s", ErrDuplicateItem, item.ID)
	}
	q.insertLocked(entry)
	return entry, nil
}

// ReinsertWithPenalty lowers the entry's priority by FailurePenalty (floored at zero),
// bumps its attempt count and inserts it with the same ordering rule as Insert.
func (q *Queue) ReinsertWithPenalty(entry Entry) (Entry, error) {
	entry.Priority = penalize(entry.Priority)
	entry.Attempts++

	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.ids[entry.Item.ID]; exists {
		return Entry{}, fmt.Errorf("%w: %s", ErrDuplicateItem, entry.Item.ID)
	}
	q.insertLocked(entry)
	return entry, nil
}

// insertLocked places e before the first entry with strictly lower priority.
func (q *Queue) insertLocked(e Entry) {
	i := sort.Search(len(q.entries), func(i int) bool {
		return q.entries[i].Priority < e.Priority
	})
	q.entries = slices.Insert(q.entries, i, e)
	q.ids[e.Item.ID] = struct{}{}
}

// PopHighest removes and returns the front entry. ok is false when the queue is empty.
func (q *Queue) PopHighest() (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return Entry{}, false
	}
	e := q.entries[0]
	q.entries[0] = Entry{}
	q.entries = q.entries[1:]
	delete(q.ids, e.Item.ID)
	return e, true
}

// Remove drops the entry with the given id and reports whether one was present.
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.ids[id]; !ok {
		return false
	}
	i := slices.IndexFunc(q.entries, func(e Entry) bool { return e.Item.ID == id })
	q.entries = slices.Delete(q.entries, i, i+1)
	delete(q.ids, id)
	return true
}

// Contains reports whether id is queued.
func (q *Queue) Contains(id string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	_, ok := q.ids[id]
	return ok
}

// RecalculateAll rescores every entry against the current clock and re-sorts.
// Entries that tie after rescoring keep their previous relative order.
func (q *Queue) RecalculateAll() {
	now := q.now()

	q.mu.Lock()
	defer q.mu.Unlock()
	old := q.entries
	q.entries = make([]Entry, 0, len(old))
	for _, e := range old {
		e.Priority = ComputePriority(e.Item, now)
		q.insertLocked(e)
	}
}

// Snapshot returns a copy of the entries in drain order.
func (q *Queue) Snapshot() []Entry {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return slices.Clone(q.entries)
}

// Summary returns counts and the next item to drain.
func (q *Queue) Summary() Summary {
	q.mu.RLock()
	defer q.mu.RUnlock()
	s := Summary{TotalItems: len(q.entries)}
	for i := range q.entries {
		if q.entries[i].Item.IsUrgent() {
			s.UrgentItems++
		}
	}
	if len(q.entries) > 0 {
		next := q.entries[0].Item
		s.Next = &next
	}
	return s
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.entries)
}

// Clear drops every entry and returns how many were removed.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.entries)
	q.entries = nil
	q.ids = make(map[string]struct{})
	return n
}
