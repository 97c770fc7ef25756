package logging

import (
	"context"
	"sync"
	"testing"
	"time"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *captureSink) Write(event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) Close(context.Context) error { return nil }

func (s *captureSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func newTestRouter(t *testing.T, cfg Config, sink Sink) *Router {
	t.Helper()
	cfg.EnabledSinks = []string{"capture"}
	clock := ClockFunc(func() time.Time { return time.UnixMilli(1_000) })
	router, err := NewRouter(cfg, clock, nil, map[string]Sink{"capture": sink})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	return router
}

func TestRouterDeliversAndStampsTime(t *testing.T) {
	sink := &captureSink{}
	router := newTestRouter(t, DefaultConfig(), sink)

	router.Publish(context.Background(), Event{Type: EventDied, Tick: 7, Severity: SeverityInfo})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := router.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	events := sink.snapshot()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Time.IsZero() {
		t.Fatal("router must stamp missing timestamps")
	}
	if got := router.Stats().EventsTotal; got != 1 {
		t.Fatalf("expected 1 routed event, got %d", got)
	}
}

func TestRouterFiltersBelowMinimumSeverity(t *testing.T) {
	sink := &captureSink{}
	cfg := DefaultConfig()
	cfg.MinimumSeverity = SeverityWarn
	router := newTestRouter(t, cfg, sink)

	router.Publish(context.Background(), Event{Type: EventDamaged, Severity: SeverityInfo})
	router.Publish(context.Background(), Event{Type: EventTickOverrun, Severity: SeverityWarn})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := router.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	events := sink.snapshot()
	if len(events) != 1 || events[0].Type != EventTickOverrun {
		t.Fatalf("expected only the warn event, got %v", events)
	}
}

func TestRouterAppliesStaticFields(t *testing.T) {
	sink := &captureSink{}
	cfg := DefaultConfig()
	cfg.Fields = map[string]any{"match": "m1"}
	router := newTestRouter(t, cfg, sink)

	router.Publish(context.Background(), Event{Type: EventSpawned, Severity: SeverityInfo})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := router.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	events := sink.snapshot()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Extra["match"] != "m1" {
		t.Fatalf("expected static field, got %v", events[0].Extra)
	}
}

func TestWithFieldsDoesNotMutateOriginal(t *testing.T) {
	var got Event
	base := PublisherFunc(func(_ context.Context, event Event) { got = event })
	decorated := WithFields(base, map[string]any{"zone": "mid"})

	original := Event{Type: EventHealed}
	decorated.Publish(context.Background(), original)

	if original.Extra != nil {
		t.Fatal("decorator must not mutate the caller's event")
	}
	if got.Extra["zone"] != "mid" {
		t.Fatalf("expected decorated field, got %v", got.Extra)
	}
}
