package service

import "sync"

// subscription detaches a listener on Close. Close is idempotent and safe
// to call from any goroutine.
type subscription struct {
	once   sync.Once
	cancel func()
}

func (s *subscription) Close() {
	s.once.Do(s.cancel)
}
