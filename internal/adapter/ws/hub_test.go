package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/Strob0t/ReleaseForge/internal/port/invalidation"
)

func TestNewHub(t *testing.T) {
	hub := NewHub("")
	if hub == nil {
		t.Fatal("expected non-nil hub")
	}
	if hub.ConnectionCount() != 0 {
		t.Fatalf("expected 0 connections, got %d", hub.ConnectionCount())
	}
	if got := NewHub("http://localhost:3000").originPatterns; len(got) != 1 || got[0] != "localhost:3000" {
		t.Errorf("origin patterns = %v", got)
	}
}

func TestHubBroadcastNoConnections(t *testing.T) {
	hub := NewHub("")

	// Broadcast with no connections should not panic.
	hub.Broadcast(context.Background(), Message{
		Type:    "test",
		Payload: []byte(`{"key":"value"}`),
	})
}

func TestHubBroadcastEventMarshalError(t *testing.T) {
	hub := NewHub("")

	// A channel cannot be marshaled to JSON; should log error, not panic.
	hub.BroadcastEvent(context.Background(), "bad", make(chan int))
}

func TestHubRemoveNonexistent(t *testing.T) {
	hub := NewHub("")

	// Removing a connection that was never added should not panic.
	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub.remove(&conn{cancel: cancel, planID: "plan-1"})
}

func TestConnWants(t *testing.T) {
	tests := []struct {
		filter, scope string
		want          bool
	}{
		{"", "", true},
		{"", "plan-1", true},
		{"plan-1", "", true},
		{"plan-1", "plan-1", true},
		{"plan-1", "plan-2", false},
	}
	for _, tt := range tests {
		c := &conn{planID: tt.filter}
		if got := c.wants(tt.scope); got != tt.want {
			t.Errorf("filter %q scope %q: wants = %v, want %v", tt.filter, tt.scope, got, tt.want)
		}
	}
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+query, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.CloseNow() })
	return c
}

func TestHubDeliversScopedInvalidations(t *testing.T) {
	hub := NewHub("")
	srv := httptest.NewServer(httpHandler(hub))
	defer srv.Close()

	all := dial(t, srv, "")
	scoped := dial(t, srv, "?plan_id=plan-2")

	deadline := time.Now().Add(5 * time.Second)
	for hub.ConnectionCount() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("connections = %d, want 2", hub.ConnectionCount())
		}
		time.Sleep(5 * time.Millisecond)
	}

	ctx := context.Background()
	hub.BroadcastEvent(ctx, "invalidate", invalidation.Signal{Kinds: []invalidation.Kind{invalidation.KindPlan}, PlanID: "plan-1"})
	hub.BroadcastEvent(ctx, "invalidate", invalidation.Signal{Kinds: []invalidation.Kind{invalidation.KindPlan}, PlanID: "plan-2"})

	read := func(c *websocket.Conn) invalidation.Signal {
		t.Helper()
		rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_, data, err := c.Read(rctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("decode: %v", err)
		}
		var sig invalidation.Signal
		if err := json.Unmarshal(msg.Payload, &sig); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		return sig
	}

	if got := read(all).PlanID; got != "plan-1" {
		t.Errorf("unscoped client first message = %q, want plan-1", got)
	}
	if got := read(all).PlanID; got != "plan-2" {
		t.Errorf("unscoped client second message = %q, want plan-2", got)
	}
	// The scoped client never sees plan-1.
	if got := read(scoped).PlanID; got != "plan-2" {
		t.Errorf("scoped client message = %q, want plan-2", got)
	}
}

func httpHandler(h *Hub) http.Handler { return http.HandlerFunc(h.HandleWS) }
