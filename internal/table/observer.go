package table

import (
	"sync"
)

// InsertObserver receives every inserted record.
type InsertObserver[T any] interface {
	OnInsert(rec T)
}

// UpdateObserver receives the record before and after each update.
type UpdateObserver[T any] interface {
	OnUpdate(old, rec T)
}

// InsertFunc adapts a function to InsertObserver.
type InsertFunc[T any] func(rec T)

func (f InsertFunc[T]) OnInsert(rec T) { f(rec) }

// UpdateFunc adapts a function to UpdateObserver.
type UpdateFunc[T any] func(old, rec T)

func (f UpdateFunc[T]) OnUpdate(old, rec T) { f(old, rec) }

// Unsubscribe deregisters an observer. Calling it more than once is a no-op.
type Unsubscribe func()

type insertSub[T any] struct {
	id uint64
	o  InsertObserver[T]
}

type updateSub[T any] struct {
	id uint64
	o  UpdateObserver[T]
}

// observers keeps registrations in registration order.
type observers[T any] struct {
	mu      sync.Mutex
	seq     uint64
	inserts []insertSub[T]
	updates []updateSub[T]
}

func (s *observers[T]) addInsert(o InsertObserver[T]) Unsubscribe {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	id := s.seq
	s.inserts = append(s.inserts, insertSub[T]{id: id, o: o})
	return s.remover(func() {
		for i, sub := range s.inserts {
			if sub.id == id {
				s.inserts = append(s.inserts[:i:i], s.inserts[i+1:]...)
				return
			}
		}
	})
}

func (s *observers[T]) addUpdate(o UpdateObserver[T]) Unsubscribe {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	id := s.seq
	s.updates = append(s.updates, updateSub[T]{id: id, o: o})
	return s.remover(func() {
		for i, sub := range s.updates {
			if sub.id == id {
				s.updates = append(s.updates[:i:i], s.updates[i+1:]...)
				return
			}
		}
	})
}

func (s *observers[T]) remover(remove func()) Unsubscribe {
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			remove()
		})
	}
}

func (s *observers[T]) emitInsert(onPanic func(event string, r any), rec T) {
	s.mu.Lock()
	subs := append([]insertSub[T](nil), s.inserts...)
	s.mu.Unlock()
	for _, sub := range subs {
		isolate(onPanic, "insert", func() { sub.o.OnInsert(rec) })
	}
}

func (s *observers[T]) emitUpdate(onPanic func(event string, r any), old, rec T) {
	s.mu.Lock()
	subs := append([]updateSub[T](nil), s.updates...)
	s.mu.Unlock()
	for _, sub := range subs {
		isolate(onPanic, "update", func() { sub.o.OnUpdate(old, rec) })
	}
}

// isolate runs fn so that a panicking observer does not stop the others.
func isolate(onPanic func(event string, r any), event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			onPanic(event, r)
		}
	}()
	fn()
}
