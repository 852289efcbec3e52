// Package mock provides a mock implementation of the agent.Agent interface
// for testing. It records every delivery and returns scripted replies.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/hearsay-ai/hearsay/pkg/provider/agent"
)

// Delivery records one Deliver call.
type Delivery struct {
	SenderID string
	Text     string
}

// Agent is a scripted agent.Agent. The zero value echoes back a fixed reply.
type Agent struct {
	mu sync.Mutex

	// Replies are returned in order; after they run out, Default is used.
	Replies []string

	// Default is the reply used when Replies is exhausted.
	Default string

	// DeliverErr, when non-nil, is returned by every Deliver call.
	DeliverErr error

	// Delay, when non-zero, is slept (or the context awaited) before
	// responding. Tests use it to exercise delivery timeouts.
	Delay time.Duration

	// Deliveries records every call in order.
	Deliveries []Delivery

	next int
}

var _ agent.Agent = (*Agent)(nil)

// Deliver implements agent.Agent.
func (a *Agent) Deliver(ctx context.Context, senderID, text string) (string, error) {
	a.mu.Lock()
	a.Deliveries = append(a.Deliveries, Delivery{SenderID: senderID, Text: text})
	reply := a.Default
	if a.next < len(a.Replies) {
		reply = a.Replies[a.next]
		a.next++
	}
	err := a.DeliverErr
	delay := a.Delay
	a.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return reply, nil
}

// DeliveryCount returns how many Deliver calls have been recorded.
func (a *Agent) DeliveryCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.Deliveries)
}
