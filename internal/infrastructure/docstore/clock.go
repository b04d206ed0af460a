package docstore

import (
	"sync"
	"time"
)

// stamper issues strictly increasing timestamps with nanosecond resolution,
// so two documents created in the same instant still have a total order.
type stamper struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func newStamper() *stamper {
	return &stamper{now: time.Now}
}

// next returns a stamp greater than every previous stamp and than floor.
func (s *stamper) next(floor int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns := s.now().UnixNano()
	if ns <= s.last {
		ns = s.last + 1
	}
	if ns <= floor {
		ns = floor + 1
	}
	s.last = ns
	return ns
}

func fromStamp(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}
