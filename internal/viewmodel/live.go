package viewmodel

import (
	"context"

	"github.com/nerrad567/smarthome-core/internal/infrastructure/docstore"
)

// subscribeFunc opens a live query for the children of parentID.
type subscribeFunc[T any] func(ctx context.Context, parentID string, fn func([]T, error)) (*docstore.Subscription, error)

// liveModel keeps its list in step with a docstore subscription.
type liveModel[T any] struct {
	base[T]
	subscribe subscribeFunc[T]
	ctx       context.Context
	cancel    context.CancelFunc
	sub       *docstore.Subscription
}

func newLiveModel[T any](subscribe subscribeFunc[T]) *liveModel[T] {
	ctx, cancel := context.WithCancel(context.Background())
	return &liveModel[T]{
		base:      newBase[T](),
		subscribe: subscribe,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// SetParent points the model at parentID. An empty id clears the list.
// Setting the current parent again is a no-op unless the model failed.
// It may be called from an observer.
func (m *liveModel[T]) SetParent(parentID string) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	unchanged := parentID == m.parent && m.state.Err == nil && (parentID == "" || m.sub != nil)
	m.mu.Unlock()
	if unchanged {
		return
	}
	m.open(parentID)
}

// Retry reopens the subscription for the current parent.
func (m *liveModel[T]) Retry() {
	parent, _, open := m.current()
	if open {
		m.open(parent)
	}
}

// Close releases the subscription and drops every observer.
func (m *liveModel[T]) Close() {
	if m.shut() {
		m.cancel()
	}
	m.mu.Lock()
	sub := m.sub
	m.sub = nil
	m.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
}

// open starts a generation for parentID, releasing the previous
// subscription, and subscribes. A delivery still in flight for the old
// subscription is stale by the time it could apply.
func (m *liveModel[T]) open(parentID string) {
	m.mu.Lock()
	old := m.sub
	m.sub = nil
	m.gen++
	m.parent = parentID
	gen := m.gen
	m.mu.Unlock()
	if old != nil {
		old.Unsubscribe()
	}

	if parentID == "" {
		m.apply(gen, func(s *State[T]) { *s = State[T]{} })
		return
	}
	m.apply(gen, func(s *State[T]) { *s = State[T]{Loading: true} })

	sub, err := m.subscribe(m.ctx, parentID, func(items []T, err error) {
		m.deliver(gen, items, err)
	})
	if err != nil {
		m.apply(gen, func(s *State[T]) { *s = State[T]{Err: err} })
		return
	}

	m.mu.Lock()
	if m.closed || m.gen != gen {
		m.mu.Unlock()
		sub.Unsubscribe()
		return
	}
	m.sub = sub
	m.mu.Unlock()
}

func (m *liveModel[T]) deliver(gen uint64, items []T, err error) {
	if err != nil {
		m.apply(gen, func(s *State[T]) { *s = State[T]{Items: s.Items, Err: err} })
		return
	}
	m.apply(gen, func(s *State[T]) { *s = State[T]{Items: items} })
}
