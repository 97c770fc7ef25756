package sinks

import (
	"context"
	"sync"

	"warlane/server/logging"
)

// Memory retains events in order for assertions in tests.
type Memory struct {
	mu     sync.Mutex
	events []logging.Event
}

// NewMemory constructs an empty memory sink.
func NewMemory() *Memory {
	return &Memory{}
}

func (s *Memory) Write(event logging.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *Memory) Close(context.Context) error {
	return nil
}

// Events returns a copy of everything written so far.
func (s *Memory) Events() []logging.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]logging.Event(nil), s.events...)
}

// OfType filters recorded events by type.
func (s *Memory) OfType(t logging.EventType) []logging.Event {
	var matched []logging.Event
	for _, event := range s.Events() {
		if event.Type == t {
			matched = append(matched, event)
		}
	}
	return matched
}
