package talk

import (
	"testing"
	"time"
)

func recvEvent(t *testing.T, ch <-chan StatusEvent) StatusEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
		return StatusEvent{}
	}
}

func TestEventHubPublishSubscribe(t *testing.T) {
	h := NewEventHub()
	defer h.Close()

	a, cancelA := h.Subscribe()
	defer cancelA()
	b, cancelB := h.Subscribe()
	defer cancelB()

	h.Publish(StatusEvent{State: StateListening, Transcript: "hi"})

	for _, ch := range []<-chan StatusEvent{a, b} {
		ev := recvEvent(t, ch)
		if ev.State != StateListening || ev.Transcript != "hi" {
			t.Errorf("got event %+v, want Listening/hi", ev)
		}
		if ev.Timestamp.IsZero() {
			t.Error("Publish did not stamp a zero Timestamp")
		}
	}
}

func TestEventHubKeepsExplicitTimestamp(t *testing.T) {
	h := NewEventHub()
	defer h.Close()

	ch, cancel := h.Subscribe()
	defer cancel()

	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	h.Publish(StatusEvent{State: StateThinking, Timestamp: ts})

	if ev := recvEvent(t, ch); !ev.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, want %v", ev.Timestamp, ts)
	}
}

func TestEventHubCancelStopsDelivery(t *testing.T) {
	h := NewEventHub()
	defer h.Close()

	ch, cancel := h.Subscribe()
	cancel()
	cancel() // second cancel must be a no-op

	if _, ok := <-ch; ok {
		t.Fatal("cancelled subscription channel is not closed")
	}
	// Must not panic or block.
	h.Publish(StatusEvent{State: StateSpeaking})
}

func TestEventHubSlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewEventHub()
	defer h.Close()

	ch, cancel := h.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < eventBuf*2; i++ {
			h.Publish(StatusEvent{State: StateListening})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}

	// The buffer holds the first eventBuf events; the rest were dropped.
	if got := len(ch); got != eventBuf {
		t.Errorf("buffered events = %d, want %d", got, eventBuf)
	}
}

func TestEventHubClose(t *testing.T) {
	h := NewEventHub()

	ch, _ := h.Subscribe()
	h.Close()
	h.Close() // idempotent

	if _, ok := <-ch; ok {
		t.Fatal("subscriber channel not closed by Close")
	}

	// Both are no-ops after Close.
	h.Publish(StatusEvent{State: StateStopped})
	late, cancel := h.Subscribe()
	defer cancel()
	if _, ok := <-late; ok {
		t.Fatal("Subscribe after Close returned an open channel")
	}
}
