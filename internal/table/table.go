// Package table provides an observable, id-keyed record table.
package table

import (
	"errors"
	"fmt"
	"iter"
	"sync"

	"blockguess/internal/logger"
)

// ErrNotFound is returned by Update when the id is absent.
var ErrNotFound = errors.New("record not found")

// Row is implemented by records that carry their own identifier.
type Row[T any] interface {
	RowID() uint64
	WithID(id uint64) T
}

// Reactive is the contract shared by every backing implementation.
type Reactive[T any] interface {
	Insert(rec T) (uint64, error)
	Update(id uint64, rec T) error
	Get(id uint64) (T, bool)
	Len() int
	// All yields a point-in-time snapshot in insertion order. Ranging over
	// the same sequence again replays the same snapshot.
	All() iter.Seq[T]
	SubscribeInsert(o InsertObserver[T]) Unsubscribe
	SubscribeUpdate(o UpdateObserver[T]) Unsubscribe
}

// Persister is called with the final record before it becomes visible.
// A non-nil error aborts the mutation; the consumed id is not reused.
type Persister[T any] func(rec T) error

// Option configures a Table.
type Option[T Row[T]] func(*Table[T])

// WithPersister makes the table write-through.
func WithPersister[T Row[T]](p Persister[T]) Option[T] {
	return func(t *Table[T]) { t.persist = p }
}

// WithRows restores previously stored rows. The id counter resumes past the
// highest restored id.
func WithRows[T Row[T]](rows []T) Option[T] {
	return func(t *Table[T]) {
		for _, r := range rows {
			id := r.RowID()
			if _, dup := t.rows[id]; dup {
				continue
			}
			t.rows[id] = r
			t.order = append(t.order, id)
			if id > t.nextID {
				t.nextID = id
			}
		}
	}
}

// WithCounter resumes the id counter at least at last and calls reserve with
// every newly assigned id before the record is persisted. Storing the
// reserved ids keeps ids burned by failed persists from being handed out
// again after a restart.
func WithCounter[T Row[T]](last uint64, reserve func(id uint64) error) Option[T] {
	return func(t *Table[T]) {
		if last > t.nextID {
			t.nextID = last
		}
		t.reserve = reserve
	}
}

// WithLogger sets the logger used to report failing observers.
func WithLogger[T Row[T]](l *logger.Logger) Option[T] {
	return func(t *Table[T]) { t.log = l }
}

// Table is the in-process Reactive implementation.
//
// Mutations and their notifications are serialized by notifyMu, so observers
// see events in mutation order. Observers may read the table but must not
// mutate it synchronously.
type Table[T Row[T]] struct {
	name string
	log  *logger.Logger

	notifyMu sync.Mutex

	mu      sync.RWMutex
	nextID  uint64
	order   []uint64
	rows    map[uint64]T
	persist Persister[T]
	reserve func(id uint64) error

	obs observers[T]
}

// New creates an empty table.
func New[T Row[T]](name string, opts ...Option[T]) *Table[T] {
	t := &Table[T]{
		name: name,
		log:  logger.Nop(),
		rows: make(map[uint64]T),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name returns the table name.
func (t *Table[T]) Name() string {
	return t.name
}

// Insert assigns the next id, stores the record and notifies insert observers.
func (t *Table[T]) Insert(rec T) (uint64, error) {
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()

	t.mu.Lock()
	t.nextID++
	id := t.nextID
	rec = rec.WithID(id)
	if t.reserve != nil {
		if err := t.reserve(id); err != nil {
			t.mu.Unlock()
			return 0, fmt.Errorf("%s: reserve id %d: %w", t.name, id, err)
		}
	}
	if t.persist != nil {
		if err := t.persist(rec); err != nil {
			t.mu.Unlock()
			return 0, fmt.Errorf("%s: persist insert %d: %w", t.name, id, err)
		}
	}
	t.rows[id] = rec
	t.order = append(t.order, id)
	t.mu.Unlock()

	t.obs.emitInsert(t.observerPanicked, rec)
	return id, nil
}

// Update replaces the record stored under id and notifies update observers
// with the previous and the new record.
func (t *Table[T]) Update(id uint64, rec T) error {
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()

	t.mu.Lock()
	old, ok := t.rows[id]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%s: update %d: %w", t.name, id, ErrNotFound)
	}
	rec = rec.WithID(id)
	if t.persist != nil {
		if err := t.persist(rec); err != nil {
			t.mu.Unlock()
			return fmt.Errorf("%s: persist update %d: %w", t.name, id, err)
		}
	}
	t.rows[id] = rec
	t.mu.Unlock()

	t.obs.emitUpdate(t.observerPanicked, old, rec)
	return nil
}

// Get returns the record stored under id.
func (t *Table[T]) Get(id uint64) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.rows[id]
	return rec, ok
}

// Len returns the number of stored records.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order)
}

// All returns a restartable sequence over a snapshot taken now.
func (t *Table[T]) All() iter.Seq[T] {
	t.mu.RLock()
	snap := make([]T, 0, len(t.order))
	for _, id := range t.order {
		snap = append(snap, t.rows[id])
	}
	t.mu.RUnlock()

	return func(yield func(T) bool) {
		for _, rec := range snap {
			if !yield(rec) {
				return
			}
		}
	}
}

// SubscribeInsert registers o for insert notifications.
func (t *Table[T]) SubscribeInsert(o InsertObserver[T]) Unsubscribe {
	return t.obs.addInsert(o)
}

// SubscribeUpdate registers o for update notifications.
func (t *Table[T]) SubscribeUpdate(o UpdateObserver[T]) Unsubscribe {
	return t.obs.addUpdate(o)
}

func (t *Table[T]) observerPanicked(event string, r any) {
	t.log.Errorf("%s: %s observer panicked: %v", t.name, event, r)
}
