package publishers

import (
	"context"
	"errors"
	"testing"
)

type stubPublisher struct {
	id    string
	typ   string
	err   error
	calls int
}

func (s *stubPublisher) ID() string   { return s.id }
func (s *stubPublisher) Type() string { return s.typ }
func (s *stubPublisher) Publish(context.Context, Event) error {
	s.calls++
	return s.err
}

type stubSender struct {
	err    error
	closed bool
}

func (s *stubSender) Send(context.Context, Event) error { return s.err }
func (s *stubSender) Close() error {
	s.closed = true
	return nil
}

func TestFanoutPublishAggregatesErrors(t *testing.T) {
	fanout := NewFanout([]Publisher{
		&stubPublisher{id: "ok", typ: "http"},
		&stubPublisher{id: "bad", typ: "http", err: errors.New("failed")},
		nil,
	})

	count, err := fanout.Publish(context.Background(), Event{})
	if count != 1 {
		t.Fatalf("expected 1 success, got %d", count)
	}
	if err == nil {
		t.Fatalf("expected aggregated error")
	}
	if fanout.Size() != 2 {
		t.Fatalf("nil publishers should be dropped, size %d", fanout.Size())
	}
}

func TestFanoutCloseClosesQueuePublishers(t *testing.T) {
	sender := &stubSender{}
	fanout := NewFanout([]Publisher{
		&queuePublisher{id: "q", typ: TypeSQS, sender: sender},
		&stubPublisher{id: "h", typ: TypeHTTP},
	})
	if err := fanout.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !sender.closed {
		t.Fatal("queue sender not closed")
	}
}

func TestQueuePublisherWrapsSenderError(t *testing.T) {
	boom := errors.New("boom")
	pub := &queuePublisher{id: "q", typ: TypeSNS, sender: &stubSender{err: boom}}
	if err := pub.Publish(context.Background(), Event{}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped sender error, got %v", err)
	}
}

func TestBuildAllWithDefaultRegistry(t *testing.T) {
	reg := DefaultRegistry()
	pubs, err := BuildAll(context.Background(), reg, []PublisherConfig{
		{ID: "http", Type: TypeHTTP, HTTP: &HTTPPublisherConfig{URL: "https://example.com"}},
	}, nil)
	if err != nil {
		t.Fatalf("BuildAll: %v", err)
	}
	if len(pubs) != 1 {
		t.Fatalf("expected 1 publisher, got %d", len(pubs))
	}
}

func TestBuildAllUnknownType(t *testing.T) {
	_, err := BuildAll(context.Background(), DefaultRegistry(), []PublisherConfig{
		{ID: "kafka", Type: "kafka"},
	}, nil)
	if err == nil {
		t.Fatal("expected error for unknown publisher type")
	}
}

func TestFanoutSkipsFilteredPublishers(t *testing.T) {
	nyaa := &stubPublisher{id: "nyaa-only", typ: TypeHTTP}
	magnets := &stubPublisher{id: "magnets", typ: TypeHTTP}
	fanout := NewFanout([]Publisher{
		&filteredPublisher{Publisher: nyaa, filter: EventFilter{Sources: []string{"nyaa"}}},
		&filteredPublisher{Publisher: magnets, filter: EventFilter{Kinds: []string{"resolvable"}}},
	})

	count, err := fanout.Publish(context.Background(), Event{SourceID: "acgnx", Kind: "direct"})
	if err != nil || count != 0 {
		t.Fatalf("expected no deliveries, got %d, %v", count, err)
	}
	count, err = fanout.Publish(context.Background(), Event{SourceID: "nyaa", Kind: "resolvable"})
	if err != nil || count != 2 {
		t.Fatalf("expected 2 deliveries, got %d, %v", count, err)
	}
	if nyaa.calls != 1 || magnets.calls != 1 {
		t.Fatalf("unexpected calls nyaa=%d magnets=%d", nyaa.calls, magnets.calls)
	}
}

func TestPublisherForWrapsFilteredConfig(t *testing.T) {
	reg := NewRegistry(map[string]Builder{
		"stub": func(context.Context, PublisherConfig, Logger) (Publisher, error) {
			return &queuePublisher{id: "q", typ: "stub", sender: &stubSender{}}, nil
		},
	})

	plain, err := reg.PublisherFor(context.Background(), PublisherConfig{ID: "q", Type: "STUB"}, nil)
	if err != nil {
		t.Fatalf("PublisherFor: %v", err)
	}
	if _, ok := plain.(*filteredPublisher); ok {
		t.Fatal("publisher without filter should not be wrapped")
	}

	wrapped, err := reg.PublisherFor(context.Background(), PublisherConfig{
		ID: "q", Type: "stub", Filter: EventFilter{Kinds: []string{"direct"}},
	}, nil)
	if err != nil {
		t.Fatalf("PublisherFor: %v", err)
	}
	fp, ok := wrapped.(*filteredPublisher)
	if !ok {
		t.Fatalf("expected filtered publisher, got %T", wrapped)
	}
	if err := fp.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !fp.Publisher.(*queuePublisher).sender.(*stubSender).closed {
		t.Fatal("Close did not reach the wrapped sender")
	}
}

func TestBuildAllClosesEarlierPublishersOnFailure(t *testing.T) {
	sender := &stubSender{}
	reg := NewRegistry(map[string]Builder{
		"ok": func(context.Context, PublisherConfig, Logger) (Publisher, error) {
			return &queuePublisher{id: "ok", typ: "ok", sender: sender}, nil
		},
		"bad": func(context.Context, PublisherConfig, Logger) (Publisher, error) {
			return nil, errors.New("no credentials")
		},
	})

	_, err := BuildAll(context.Background(), reg, []PublisherConfig{
		{ID: "first", Type: "ok"},
		{ID: "second", Type: "bad"},
	}, nil)
	if err == nil {
		t.Fatal("expected build error")
	}
	if !sender.closed {
		t.Fatal("publisher built before the failure was not closed")
	}
}
