package fakeauditsink

import (
	"context"
	"sync"

	"github.com/jrsteele09/school-auth/audit"
)

var _ audit.Sink = (*FakeSink)(nil)

// FakeSink keeps events in memory. SetFailure simulates an unavailable sink.
type FakeSink struct {
	events  []audit.SecurityEvent
	failure error
	appends int
	lock    sync.RWMutex
}

func NewFakeSink() *FakeSink {
	return &FakeSink{}
}

func (s *FakeSink) SetFailure(err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.failure = err
}

// Attempts returns how many Append calls were made, successful or not
func (s *FakeSink) Attempts() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.appends
}

func (s *FakeSink) Append(ctx context.Context, ev audit.SecurityEvent) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.appends++
	if s.failure != nil {
		return s.failure
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *FakeSink) List(ctx context.Context, filter audit.Filter) ([]audit.SecurityEvent, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	out := make([]audit.SecurityEvent, 0)
	for _, ev := range s.events {
		if !filter.Matches(ev) {
			continue
		}
		out = append(out, ev)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// All returns every stored event in append order
func (s *FakeSink) All() []audit.SecurityEvent {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return append([]audit.SecurityEvent(nil), s.events...)
}
