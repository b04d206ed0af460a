package viewmodel

import (
	"slices"
	"sync"
)

// State is what a model exposes to the presentation layer. Items is never
// nil. A non-nil Err is terminal until the parent changes or Retry is
// called.
type State[T any] struct {
	Items   []T
	Loading bool
	Err     error
}

func (s State[T]) clone() State[T] {
	s.Items = slices.Clone(s.Items)
	if s.Items == nil {
		s.Items = []T{}
	}
	return s
}

// event is one state queued for the observers registered when it was
// produced.
type event[T any] struct {
	state     State[T]
	observers []uint64
}

// base holds the state, generation and observers every model shares.
//
// State transitions are queued under mu in the order they apply and
// delivered by whichever goroutine finds the queue idle. No lock is held
// while an observer runs, so an observer may call back into the model; the
// states that call produces are delivered after the observer returns.
type base[T any] struct {
	mu         sync.Mutex
	state      State[T]
	parent     string
	gen        uint64
	closed     bool
	nextObs    uint64
	observers  map[uint64]func(State[T])
	queue      []event[T]
	delivering bool
}

func newBase[T any]() base[T] {
	return base[T]{
		state:     State[T]{Items: []T{}},
		observers: make(map[uint64]func(State[T])),
	}
}

// State returns a copy of the current state.
func (b *base[T]) State() State[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.clone()
}

// Parent returns the current parent id.
func (b *base[T]) Parent() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.parent
}

// Observe calls fn with the current state and then after every change
// until cancel is called. Calls to fn are serialised and ordered. When
// another goroutine is delivering, the first call may happen on that
// goroutine shortly after Observe returns.
func (b *base[T]) Observe(fn func(State[T])) (cancel func()) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	b.nextObs++
	id := b.nextObs
	b.observers[id] = fn
	b.queue = append(b.queue, event[T]{state: b.state.clone(), observers: []uint64{id}})
	b.mu.Unlock()

	b.flush()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.observers, id)
			b.mu.Unlock()
		})
	}
}

// reset moves to parent and starts a new generation.
func (b *base[T]) reset(parent string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gen++
	b.parent = parent
	return b.gen
}

// current returns the parent and generation, and whether the model is open.
func (b *base[T]) current() (string, uint64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.parent, b.gen, !b.closed
}

// apply runs fn on the state under the lock if gen is still current, then
// delivers the result. It reports whether the change applied. fn must not
// call back into the model.
func (b *base[T]) apply(gen uint64, fn func(*State[T])) bool {
	b.mu.Lock()
	if b.closed || gen != b.gen {
		b.mu.Unlock()
		return false
	}
	fn(&b.state)
	if b.state.Items == nil {
		b.state.Items = []T{}
	}

	ids := make([]uint64, 0, len(b.observers))
	for id := range b.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	b.queue = append(b.queue, event[T]{state: b.state.clone(), observers: ids})
	b.mu.Unlock()

	b.flush()
	return true
}

// flush delivers queued states unless another call is already doing so.
// Observers cancelled since an event was queued are skipped.
func (b *base[T]) flush() {
	b.mu.Lock()
	if b.delivering {
		b.mu.Unlock()
		return
	}
	b.delivering = true
	for len(b.queue) > 0 {
		ev := b.queue[0]
		b.queue[0] = event[T]{}
		b.queue = b.queue[1:]
		for _, id := range ev.observers {
			fn, ok := b.observers[id]
			if !ok {
				continue
			}
			b.mu.Unlock()
			fn(ev.state)
			b.mu.Lock()
		}
	}
	b.queue = nil
	b.delivering = false
	b.mu.Unlock()
}

// shut marks the model closed and drops every observer and queued state.
func (b *base[T]) shut() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	b.closed = true
	b.gen++
	b.observers = make(map[uint64]func(State[T]))
	b.queue = nil
	return true
}
