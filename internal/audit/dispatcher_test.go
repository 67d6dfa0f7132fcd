package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

type blockingSink struct {
	release chan struct{}
	got     chan Event
}

func (s *blockingSink) Emit(_ context.Context, e Event) {
	<-s.release
	s.got <- e
}

type panicSink struct{ calls int }

func (s *panicSink) Emit(context.Context, Event) {
	s.calls++
	panic("boom")
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := NewDispatcher(Config{}, NoOpSink{}, nil)
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{Type: "x"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher must report zero drops")
	}
}

func TestDispatcherDeliversToChannel(t *testing.T) {
	sink := NewChannelSink(4)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink, nil)
	d.Emit(context.Background(), Event{Type: "login_success", AccountID: "a1"})
	d.Close()

	select {
	case e := <-sink.Events():
		if e.Type != "login_success" || e.AccountID != "a1" {
			t.Fatalf("unexpected event %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{}), got: make(chan Event, 8)}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink, nil)

	for i := 0; i < 8; i++ {
		d.Emit(context.Background(), Event{Type: "e"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops with a stalled sink")
	}
	close(sink.release)
	d.Close()
}

func TestDispatcherSurvivesSinkPanic(t *testing.T) {
	sink := &panicSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 2}, sink, nil)
	d.Emit(context.Background(), Event{Type: "a"})
	d.Emit(context.Background(), Event{Type: "b"})
	d.Close()
	if sink.calls != 2 {
		t.Fatalf("expected both events delivered, got %d", sink.calls)
	}
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewJSONWriterSink(&buf)
	s.Emit(context.Background(), Event{Type: "session_issued", SessionID: "s1", Success: true})

	line := strings.TrimSpace(buf.String())
	var got map[string]any
	if err := json.Unmarshal([]byte(line), &got); err != nil {
		t.Fatalf("invalid json line: %v", err)
	}
	if got["type"] != "session_issued" || got["session_id"] != "s1" {
		t.Fatalf("unexpected payload %v", got)
	}
}
