package statusfeed

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/hearsay-ai/hearsay/internal/talk"
)

// wsURL converts an httptest server HTTP URL to a WebSocket URL.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

// waitSubscribers blocks until n handler goroutines have subscribed to hub.
// The subscription happens after the WebSocket handshake, so Dial returning
// does not yet guarantee the client sees subsequent events.
func waitSubscribers(t *testing.T, hub *talk.EventHub, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for hub.SubscriberCount() < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d subscribers", n)
		}
		time.Sleep(time.Millisecond)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) talk.StatusEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	typ, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if typ != websocket.MessageText {
		t.Fatalf("message type = %v, want text", typ)
	}
	var ev talk.StatusEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return ev
}

func TestHandlerStreamsEvents(t *testing.T) {
	hub := talk.NewEventHub()
	defer hub.Close()

	srv := httptest.NewServer(NewHandler(hub))
	defer srv.Close()

	conn := dial(t, srv)
	waitSubscribers(t, hub, 1)

	hub.Publish(talk.StatusEvent{State: talk.StateListening, Transcript: "turn it"})
	hub.Publish(talk.StatusEvent{State: talk.StateThinking, Transcript: "turn it off", Final: true})

	first := readEvent(t, conn)
	if first.State != talk.StateListening || first.Transcript != "turn it" || first.Final {
		t.Errorf("first event = %+v, want interim Listening transcript", first)
	}
	if first.Timestamp.IsZero() {
		t.Error("event Timestamp not set")
	}

	second := readEvent(t, conn)
	if second.State != talk.StateThinking || !second.Final {
		t.Errorf("second event = %+v, want final Thinking transcript", second)
	}
}

func TestHandlerMultipleClients(t *testing.T) {
	hub := talk.NewEventHub()
	defer hub.Close()

	srv := httptest.NewServer(NewHandler(hub))
	defer srv.Close()

	a := dial(t, srv)
	b := dial(t, srv)
	waitSubscribers(t, hub, 2)

	hub.Publish(talk.StatusEvent{State: talk.StateSpeaking, Reply: "Done."})

	for _, conn := range []*websocket.Conn{a, b} {
		ev := readEvent(t, conn)
		if ev.State != talk.StateSpeaking || ev.Reply != "Done." {
			t.Errorf("event = %+v, want Speaking/Done.", ev)
		}
	}
}

func TestHandlerClosesWhenHubCloses(t *testing.T) {
	hub := talk.NewEventHub()

	srv := httptest.NewServer(NewHandler(hub))
	defer srv.Close()

	conn := dial(t, srv)
	hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, _, err := conn.Read(ctx); err == nil {
		t.Fatal("expected the connection to close after the hub closed")
	}
}

func TestHandlerClientDisconnect(t *testing.T) {
	hub := talk.NewEventHub()
	defer hub.Close()

	srv := httptest.NewServer(NewHandler(hub))
	defer srv.Close()

	conn := dial(t, srv)
	conn.Close(websocket.StatusNormalClosure, "bye")

	// Publishing after the client left must not panic or block.
	hub.Publish(talk.StatusEvent{State: talk.StateWakeIdle})
}
