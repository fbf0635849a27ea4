package api

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"kcu-coach-engine/internal/events"
)

func newTestHub() *Hub {
	return NewHub(zerolog.Nop())
}

func testEvent(symbol string) events.CoachingEvent {
	return events.CoachingEvent{
		Symbol:    symbol,
		EventType: events.EventVWAPCross,
		Priority:  events.PriorityHigh,
		Message: events.Message{
			Type:  "alert",
			Text:  "Reclaimed VWAP - buyers back in control",
			Emoji: "📈",
		},
		Context: events.EventContext{
			CurrentPrice: 185.20,
			Direction:    events.DirectionBullish,
		},
		Timestamp: time.Now().UTC(),
	}
}

func TestRegisterUnregisterCounts(t *testing.T) {
	hub := newTestHub()

	c1 := hub.Register("user-1")
	c2 := hub.Register("user-1")
	c3 := hub.Register("user-2")

	if got := hub.UserConnectionCount("user-1"); got != 2 {
		t.Fatalf("expected 2 connections for user-1, got %d", got)
	}
	if got := hub.TotalConnectionCount(); got != 3 {
		t.Fatalf("expected 3 total connections, got %d", got)
	}

	hub.Unregister(c1)
	if got := hub.UserConnectionCount("user-1"); got != 1 {
		t.Fatalf("expected 1 connection after unregister, got %d", got)
	}

	hub.Unregister(c2)
	hub.Unregister(c3)
	if got := hub.TotalConnectionCount(); got != 0 {
		t.Fatalf("expected empty hub, got %d connections", got)
	}
}

func TestBroadcastReachesAllUserConnections(t *testing.T) {
	hub := newTestHub()
	c1 := hub.Register("user-1")
	c2 := hub.Register("user-1")
	other := hub.Register("user-2")

	hub.BroadcastToUser("user-1", testEvent("AAPL"))

	for _, conn := range []*Conn{c1, c2} {
		select {
		case frame := <-conn.send:
			text := string(frame)
			if !strings.HasPrefix(text, "event: vwap_cross\n") {
				t.Errorf("unexpected frame start: %q", text)
			}
			if !strings.Contains(text, `"symbol":"AAPL"`) {
				t.Errorf("frame missing symbol: %q", text)
			}
			if !strings.HasSuffix(text, "\n\n") {
				t.Errorf("frame missing terminator: %q", text)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for frame")
		}
	}

	select {
	case frame := <-other.send:
		t.Fatalf("user-2 received user-1's frame: %q", frame)
	default:
	}
}

func TestBroadcastToUnknownUserIsNoOp(t *testing.T) {
	hub := newTestHub()
	hub.BroadcastToUser("nobody", testEvent("SPY"))
}

func TestFullQueueDropsFrameWithoutBlocking(t *testing.T) {
	hub := newTestHub()
	slow := hub.Register("user-1")
	healthy := hub.Register("user-1")

	for i := 0; i < sendBufferSize; i++ {
		slow.send <- []byte("stale")
	}

	done := make(chan struct{})
	go func() {
		hub.BroadcastToUser("user-1", testEvent("TSLA"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a full queue")
	}

	// The healthy connection still got the frame.
	select {
	case frame := <-healthy.send:
		if !strings.Contains(string(frame), "TSLA") {
			t.Errorf("unexpected frame: %q", frame)
		}
	case <-time.After(time.Second):
		t.Fatal("healthy connection missed the frame")
	}
}

func TestOnUserGoneFiresOnceOnLastConnection(t *testing.T) {
	hub := newTestHub()

	gone := make([]string, 0, 1)
	hub.OnUserGone(func(userID string) {
		gone = append(gone, userID)
	})

	c1 := hub.Register("user-1")
	c2 := hub.Register("user-1")

	hub.Unregister(c1)
	if len(gone) != 0 {
		t.Fatalf("teardown fired with a connection still open: %v", gone)
	}

	hub.Unregister(c2)
	hub.Unregister(c2) // double unregister must not re-fire
	if len(gone) != 1 || gone[0] != "user-1" {
		t.Fatalf("expected single teardown for user-1, got %v", gone)
	}
}

func TestConnDoneClosesOnUnregister(t *testing.T) {
	hub := newTestHub()
	conn := hub.Register("user-1")

	select {
	case <-conn.Done():
		t.Fatal("done closed before unregister")
	default:
	}

	hub.Unregister(conn)
	select {
	case <-conn.Done():
	case <-time.After(time.Second):
		t.Fatal("done not closed after unregister")
	}
}

func TestFrameEventFormat(t *testing.T) {
	frame, err := frameEvent("heartbeat", heartbeatPayload{Timestamp: time.Date(2026, 5, 4, 15, 30, 0, 0, time.UTC)})
	if err != nil {
		t.Fatalf("frameEvent failed: %v", err)
	}

	text := string(frame)
	if !strings.HasPrefix(text, "event: heartbeat\ndata: {") {
		t.Errorf("unexpected frame layout: %q", text)
	}
	if !strings.HasSuffix(text, "}\n\n") {
		t.Errorf("frame missing blank-line terminator: %q", text)
	}
}
