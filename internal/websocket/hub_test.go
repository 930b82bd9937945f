package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dennisdiepolder/monti/callreport/internal/auth"
	"github.com/dennisdiepolder/monti/callreport/internal/types"
	"github.com/rs/zerolog"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(zerolog.New(&bytes.Buffer{}))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func TestNewHub(t *testing.T) {
	logger := zerolog.New(&bytes.Buffer{})
	hub := NewHub(logger)

	if hub == nil {
		t.Fatal("expected hub to be created")
	}

	if hub.clients == nil {
		t.Error("expected clients map to be initialized")
	}

	if hub.broadcast == nil {
		t.Error("expected broadcast channel to be initialized")
	}

	if hub.register == nil {
		t.Error("expected register channel to be initialized")
	}

	if hub.unregister == nil {
		t.Error("expected unregister channel to be initialized")
	}
}

func TestHubClientCount(t *testing.T) {
	logger := zerolog.New(&bytes.Buffer{})
	hub := NewHub(logger)

	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}

	hub.mu.Lock()
	hub.clients[&Client{id: "test1"}] = true
	hub.clients[&Client{id: "test2"}] = true
	hub.mu.Unlock()

	if hub.ClientCount() != 2 {
		t.Errorf("expected 2 clients, got %d", hub.ClientCount())
	}
}

func TestHubRegisterUnregister(t *testing.T) {
	hub := startHub(t)

	client := &Client{
		id:   "test-client",
		hub:  hub,
		send: make(chan []byte, 1),
	}

	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	if hub.ClientCount() != 1 {
		t.Errorf("expected 1 client after register, got %d", hub.ClientCount())
	}

	hub.unregister <- client
	time.Sleep(10 * time.Millisecond)

	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients after unregister, got %d", hub.ClientCount())
	}
}

func TestHubNotifyReachesEveryClient(t *testing.T) {
	hub := startHub(t)

	client1 := &Client{id: "client1", hub: hub, send: make(chan []byte, 10)}
	client2 := &Client{id: "client2", hub: hub, send: make(chan []byte, 10)}

	hub.register <- client1
	hub.register <- client2
	time.Sleep(10 * time.Millisecond)

	hub.Notify(types.Notification{Type: types.NotificationUploadCompleted, Audience: types.AudienceAll, UploadID: "up-7"})

	for _, c := range []*Client{client1, client2} {
		select {
		case msg := <-c.send:
			var n types.Notification
			if err := json.Unmarshal(msg, &n); err != nil {
				t.Fatalf("%s received invalid json: %v", c.id, err)
			}
			if n.UploadID != "up-7" {
				t.Errorf("%s expected upload up-7, got %q", c.id, n.UploadID)
			}
		case <-time.After(100 * time.Millisecond):
			t.Errorf("%s did not receive notification", c.id)
		}
	}
}

func TestHubNotifyDoesNotBlockWhenQueueFull(t *testing.T) {
	hub := NewHub(zerolog.New(&bytes.Buffer{}))

	done := make(chan struct{})
	go func() {
		for i := 0; i < cap(hub.broadcast)+5; i++ {
			hub.Notify(types.Notification{Type: types.NotificationUploadCompleted, Audience: types.AudienceAll})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full queue")
	}
	if len(hub.broadcast) != cap(hub.broadcast) {
		t.Errorf("expected queue to be full, got %d of %d", len(hub.broadcast), cap(hub.broadcast))
	}
}

func TestHubJoinAfterStop(t *testing.T) {
	hub := NewHub(zerolog.New(&bytes.Buffer{}))
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	joined := make(chan bool, 1)
	go func() { joined <- hub.join(&Client{id: "late", hub: hub, send: make(chan []byte, 1)}) }()

	select {
	case ok := <-joined:
		if ok {
			t.Error("expected join to fail after the hub stopped")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("join blocked after the hub stopped")
	}
}

func TestHubNotifyFiltersAudience(t *testing.T) {
	hub := startHub(t)

	admin := &Client{id: "admin", hub: hub, send: make(chan []byte, 10), claims: &auth.Claims{Role: auth.RoleAdmin}}
	viewer := &Client{id: "viewer", hub: hub, send: make(chan []byte, 10), claims: &auth.Claims{Role: auth.RoleViewer}}

	hub.register <- admin
	hub.register <- viewer
	time.Sleep(10 * time.Millisecond)

	hub.Notify(types.Notification{
		Type:     types.NotificationMetricsWiped,
		Audience: types.AudienceAdmins,
		Title:    "Metrics wiped",
	})
	hub.Notify(types.Notification{
		Type:     types.NotificationUploadCompleted,
		Audience: types.AudienceAll,
		UploadID: "up-1",
	})

	var got []types.Notification
	timeout := time.After(200 * time.Millisecond)
	for len(got) < 2 {
		select {
		case msg := <-admin.send:
			var n types.Notification
			if err := json.Unmarshal(msg, &n); err != nil {
				t.Fatalf("invalid notification json: %v", err)
			}
			got = append(got, n)
		case <-timeout:
			t.Fatalf("admin received %d of 2 notifications", len(got))
		}
	}

	select {
	case msg := <-viewer.send:
		var n types.Notification
		_ = json.Unmarshal(msg, &n)
		if n.Type != types.NotificationUploadCompleted {
			t.Errorf("viewer received admin-only notification %s", n.Type)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("viewer did not receive upload notification")
	}

	select {
	case msg := <-viewer.send:
		t.Errorf("viewer received unexpected message %s", msg)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHubStopsOnCancel(t *testing.T) {
	hub := NewHub(zerolog.New(&bytes.Buffer{}))
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	client := &Client{id: "c", hub: hub, send: make(chan []byte, 1)}
	hub.register <- client
	cancel()

	select {
	case <-stopped:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("hub did not stop")
	}

	if _, ok := <-client.send; ok {
		t.Error("expected client send channel to be closed")
	}
	// leave must not block once the hub has stopped
	hub.leave(client)
}

func TestClientAccepts(t *testing.T) {
	anonymous := &Client{}
	if !anonymous.Accepts(types.AudienceAll) {
		t.Error("expected anonymous client to accept broadcast audience")
	}
	if anonymous.Accepts(types.AudienceAdmins) {
		t.Error("expected anonymous client to reject admin audience")
	}
	if anonymous.Role() != auth.RoleViewer {
		t.Errorf("expected viewer role, got %s", anonymous.Role())
	}
}
