package server

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"pumpdump/internal/ws"
)

// recordingConn captures every frame written to it in order.
type recordingConn struct {
	mu     sync.Mutex
	frames [][]byte
}

func (c *recordingConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	frame := make([]byte, len(data))
	copy(frame, data)
	c.frames = append(c.frames, frame)
	return nil
}

func (c *recordingConn) SetWriteDeadline(t time.Time) error { return nil }

func (c *recordingConn) Close() error { return nil }

func (c *recordingConn) events(t *testing.T) []ws.Event {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ws.Event, 0, len(c.frames))
	for i, frame := range c.frames {
		var env ws.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			t.Fatalf("frame %d undecodable: %v", i, err)
		}
		out = append(out, env.Event)
	}
	return out
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d, want %d", hub.ClientCount(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub()

	if hub == nil {
		t.Fatal("NewHub() returned nil")
	}
	if hub.clients == nil {
		t.Error("Hub clients map is nil")
	}
	if hub.register == nil {
		t.Error("Hub register channel is nil")
	}
	if hub.unregister == nil {
		t.Error("Hub unregister channel is nil")
	}
}

func TestHub_ClientCount(t *testing.T) {
	hub := NewHub()

	if count := hub.ClientCount(); count != 0 {
		t.Errorf("ClientCount() = %v, want 0", count)
	}
	if clients := hub.Clients(); len(clients) != 0 {
		t.Errorf("Clients() returned %d entries, want 0", len(clients))
	}
}

func TestHub_BroadcastWithoutClients(t *testing.T) {
	hub := NewHub()

	// must not block or panic with nobody connected
	hub.Broadcast(ws.Envelope{Event: ws.WinningPool{NewPool: 5, Round: 1}})
}

func TestHub_BroadcastPreservesOrder(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	conn := &recordingConn{}
	client := hub.RegisterClient(conn, "player-1")
	waitForClients(t, hub, 1)
	defer hub.UnregisterClient(client)

	for i := uint64(1); i <= 50; i++ {
		hub.Broadcast(ws.Envelope{Event: ws.WinningPool{NewPool: i, Round: 1}})
	}

	events := conn.events(t)
	if len(events) != 50 {
		t.Fatalf("delivered %d events, want 50", len(events))
	}
	for i, ev := range events {
		pool, ok := ev.(ws.WinningPool)
		if !ok {
			t.Fatalf("event %d = %T, want WinningPool", i, ev)
		}
		if pool.NewPool != uint64(i+1) {
			t.Fatalf("event %d pool = %d, want %d (no reordering)", i, pool.NewPool, i+1)
		}
	}
}
