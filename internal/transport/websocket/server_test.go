package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func startHub(t *testing.T) (*Hub, *httptest.Server, context.CancelFunc) {
	t.Helper()

	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(func() {
		cancel()
		server.Close()
	})
	return hub, server, cancel
}

func dial(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	return conn
}

func waitForCount(t *testing.T, hub *Hub, want int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Count() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Expected %d connections, got %d", want, hub.Count())
}

func TestHub_RegisterAndUnregister(t *testing.T) {
	hub, server, _ := startHub(t)

	conn := dial(t, server, "")
	waitForCount(t, hub, 1)

	conn.Close()
	waitForCount(t, hub, 0)
}

func TestHub_Broadcast(t *testing.T) {
	hub, server, _ := startHub(t)

	conn := dial(t, server, "")
	defer conn.Close()
	waitForCount(t, hub, 1)

	hub.Broadcast(&Message{
		Type:    "ingest_progress",
		Channel: "ingest",
		Data:    map[string]string{"fileName": "a.pdf"},
	})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var received Message
	if err := conn.ReadJSON(&received); err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}

	if received.Type != "ingest_progress" {
		t.Errorf("Expected type 'ingest_progress', got '%s'", received.Type)
	}
	if received.Channel != "ingest" {
		t.Errorf("Expected channel 'ingest', got '%s'", received.Channel)
	}
	data, ok := received.Data.(map[string]interface{})
	if !ok || data["fileName"] != "a.pdf" {
		t.Errorf("Unexpected data: %#v", received.Data)
	}
}

func TestHub_ChannelFilter(t *testing.T) {
	hub, server, _ := startHub(t)

	exportOnly := dial(t, server, "?channel=export")
	defer exportOnly.Close()
	everything := dial(t, server, "")
	defer everything.Close()
	waitForCount(t, hub, 2)

	hub.Broadcast(&Message{Type: "ingest_progress", Channel: "ingest"})
	hub.Broadcast(&Message{Type: "export_complete", Channel: "export"})

	var msg Message

	everything.SetReadDeadline(time.Now().Add(time.Second))
	if err := everything.ReadJSON(&msg); err != nil || msg.Type != "ingest_progress" {
		t.Fatalf("Expected ingest_progress first, got %q (%v)", msg.Type, err)
	}
	if err := everything.ReadJSON(&msg); err != nil || msg.Type != "export_complete" {
		t.Fatalf("Expected export_complete second, got %q (%v)", msg.Type, err)
	}

	exportOnly.SetReadDeadline(time.Now().Add(time.Second))
	if err := exportOnly.ReadJSON(&msg); err != nil || msg.Type != "export_complete" {
		t.Fatalf("Filtered connection should only see export_complete, got %q (%v)", msg.Type, err)
	}
}

func TestHub_BroadcastChannelFull(t *testing.T) {
	// hub is not running, so nothing drains the buffer
	hub := NewHub(nil)

	for i := 0; i < cap(hub.broadcast); i++ {
		hub.Broadcast(&Message{Type: "fill"})
	}

	done := make(chan struct{})
	go func() {
		hub.Broadcast(&Message{Type: "overflow"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast should not block when the channel is full")
	}

	if len(hub.broadcast) != cap(hub.broadcast) {
		t.Fatalf("Expected full buffer, got %d", len(hub.broadcast))
	}
}

func TestHub_Shutdown(t *testing.T) {
	hub, server, cancel := startHub(t)

	conn := dial(t, server, "")
	defer conn.Close()
	waitForCount(t, hub, 1)

	cancel()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("Connection should be closed after shutdown")
	}
}
