// Package talk implements the always-on voice interaction loop: wake-word
// gating, utterance capture with voice activity detection and echo
// cancellation, streaming transcription, agent delivery, and interruptible
// spoken replies.
//
// The [Controller] runs a single goroutine that owns every pipeline stage
// between the audio bus and the agent. Observers follow it through the
// [EventHub]; nothing outside the controller mutates pipeline state.
package talk

import (
	"fmt"
	"sync"
	"time"
)

// State is the controller's position in the interaction loop.
type State int

const (
	// StateWakeIdle is the always-on listening state. Only the wake-word
	// detector sees audio.
	StateWakeIdle State = iota

	// StateListening captures an utterance, watching for speech end.
	StateListening

	// StateTranscribing finalizes the utterance transcript.
	StateTranscribing

	// StateThinking waits for the agent's reply.
	StateThinking

	// StateSpeaking plays the synthesized reply while monitoring the
	// microphone for interruptions.
	StateSpeaking

	// StateStopped is terminal; the controller has shut down.
	StateStopped
)

// String returns the state name used in logs and status events.
func (s State) String() string {
	switch s {
	case StateWakeIdle:
		return "WAKE_IDLE"
	case StateListening:
		return "LISTENING"
	case StateTranscribing:
		return "TRANSCRIBING"
	case StateThinking:
		return "THINKING"
	case StateSpeaking:
		return "SPEAKING"
	case StateStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// StatusEvent is one observable moment in the interaction loop: a state
// transition, an interim transcript, or a spoken reply.
type StatusEvent struct {
	// State is the controller state after the event.
	State State `json:"state"`

	// Transcript carries the current utterance text. Interim while
	// Final is false.
	Transcript string `json:"transcript,omitempty"`

	// Final marks Transcript as the finalized utterance text.
	Final bool `json:"final,omitempty"`

	// Reply carries the agent's reply text when entering Speaking.
	Reply string `json:"reply,omitempty"`

	// Timestamp is when the event was published.
	Timestamp time.Time `json:"timestamp"`
}

// eventBuf is the buffer depth of subscriber channels. Events beyond a slow
// subscriber's buffer are dropped, never blocked on.
const eventBuf = 16

// EventHub broadcasts StatusEvents to any number of subscribers. Publish
// never blocks; a subscriber that stops draining loses events rather than
// stalling the pipeline.
type EventHub struct {
	mu     sync.Mutex
	subs   map[chan StatusEvent]struct{}
	closed bool
}

// NewEventHub creates an empty hub.
func NewEventHub() *EventHub {
	return &EventHub{subs: make(map[chan StatusEvent]struct{})}
}

// Subscribe registers a new subscriber and returns its event channel along
// with a cancel function that removes the subscription and closes the
// channel. The channel is also closed by [EventHub.Close].
func (h *EventHub) Subscribe() (<-chan StatusEvent, func()) {
	ch := make(chan StatusEvent, eventBuf)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
		})
	}
	return ch, cancel
}

// SubscriberCount returns the number of active subscriptions.
func (h *EventHub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Publish delivers ev to every subscriber without blocking. A zero Timestamp
// is stamped with the current time.
func (h *EventHub) Publish(ev StatusEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close closes every subscriber channel. Publish and Subscribe after Close
// are no-ops. Safe to call more than once.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		close(ch)
	}
	h.subs = nil
}
