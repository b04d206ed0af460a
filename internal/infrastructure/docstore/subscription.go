package docstore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// SnapshotFunc receives a full, newest-first result set each time a live
// query changes. A non-nil err is terminal: no further calls follow.
type SnapshotFunc func(records []Record, err error)

// Subscription is a live query over one collection.
type Subscription struct {
	store      Store
	collection string
	query      Query
	fn         SnapshotFunc

	ctx       context.Context
	cancel    context.CancelFunc
	dirty     chan struct{}
	done      chan struct{}
	stopWatch func()
	once      sync.Once
	closed    atomic.Bool

	mu   sync.Mutex
	err  error
	last []Record
}

// Subscribe starts a live query. The current result is delivered as soon as
// it is read, then again after every committed change that could affect it.
// Deliveries for one subscription are serialised and ordered.
//
// Cancelling ctx ends the subscription the same way Unsubscribe does.
func Subscribe(ctx context.Context, store Store, collection string, q Query, fn SnapshotFunc) (*Subscription, error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: snapshot callback is required", ErrValidation)
	}
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		store:      store,
		collection: collection,
		query:      q,
		fn:         fn,
		ctx:        subCtx,
		cancel:     cancel,
		dirty:      make(chan struct{}, 1),
		done:       make(chan struct{}),
	}

	// Watch before the first read so no commit falls between them.
	s.stopWatch = store.Feed().Watch(collection, func(c Change) {
		if c.Affects(s.query) {
			s.markDirty()
		}
	})
	s.markDirty()

	go s.run()
	return s, nil
}

// Unsubscribe stops delivery. It is safe to call more than once and from
// inside the callback. It does not wait: a delivery that had already read
// its snapshot may still reach the callback once after Unsubscribe returns,
// and no other delivery follows. Callers outside the callback that need a
// hard stop wait on Done afterwards.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.closed.Store(true)
		s.stopWatch()
		s.cancel()
	})
}

// Done is closed when the delivery goroutine has exited. After
// Unsubscribe, receiving from Done guarantees the callback is not running
// and will not be called again. Do not wait on Done from the callback.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err returns the terminal error, if the subscription failed.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription) markDirty() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

func (s *Subscription) run() {
	defer close(s.done)
	defer s.Unsubscribe()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.dirty:
		}

		records, err := s.store.Query(s.ctx, s.collection, s.query)
		if s.closed.Load() || s.ctx.Err() != nil {
			return
		}
		if err != nil {
			s.fail(err)
			return
		}
		if s.unchanged(records) {
			continue
		}
		s.fn(records, nil)
	}
}

func (s *Subscription) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.stopWatch()
	s.fn(nil, err)
}

// unchanged reports whether records match the previous delivery, and
// remembers them otherwise. The first result is always delivered.
func (s *Subscription) unchanged(records []Record) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.last != nil && sameSnapshot(s.last, records) {
		return true
	}
	s.last = records
	return false
}

func sameSnapshot(a, b []Record) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || !a[i].UpdatedAt.Equal(b[i].UpdatedAt) {
			return false
		}
	}
	return true
}
