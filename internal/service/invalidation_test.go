package service

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"testing"

	"github.com/Strob0t/ReleaseForge/internal/port/invalidation"
	"github.com/Strob0t/ReleaseForge/internal/port/messagequeue"
)

type recordingHub struct {
	mu     sync.Mutex
	events []string
	last   any
}

func (h *recordingHub) BroadcastEvent(_ context.Context, eventType string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, eventType)
	h.last = payload
}

func TestQueueNotifierRoundTrip(t *testing.T) {
	ctx := context.Background()
	q := newFakeQueue()

	local := &recordingNotifier{}
	if _, err := ForwardInvalidations(ctx, q, "instance-b", local); err != nil {
		t.Fatalf("ForwardInvalidations: %v", err)
	}

	sig := invalidation.Signal{
		Kinds:      []invalidation.Kind{invalidation.KindPlan, invalidation.KindFeature},
		PlanID:     "plan-1",
		FeatureIDs: []string{"f1"},
	}
	if err := NewQueueNotifier(q, "instance-a").Invalidate(ctx, sig); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}

	if len(local.signals) != 1 {
		t.Fatalf("forwarded %d signals, want 1", len(local.signals))
	}
	got := local.signals[0]
	if got.PlanID != "plan-1" || got.Origin != "instance-a" || !got.Has(invalidation.KindFeature) {
		t.Errorf("forwarded signal = %+v", got)
	}
	if !slices.Equal(got.FeatureIDs, []string{"f1"}) {
		t.Errorf("FeatureIDs = %v", got.FeatureIDs)
	}
}

func TestForwardInvalidationsSkipsOwnOrigin(t *testing.T) {
	ctx := context.Background()
	q := newFakeQueue()
	local := &recordingNotifier{}
	if _, err := ForwardInvalidations(ctx, q, "me", local); err != nil {
		t.Fatal(err)
	}
	if err := NewQueueNotifier(q, "me").Invalidate(ctx, invalidation.Signal{Kinds: []invalidation.Kind{invalidation.KindPlan}}); err != nil {
		t.Fatal(err)
	}
	if len(local.signals) != 0 {
		t.Errorf("own signal was forwarded: %+v", local.signals)
	}
}

func TestForwardInvalidationsDropsMalformed(t *testing.T) {
	ctx := context.Background()
	q := newFakeQueue()
	local := &recordingNotifier{}
	if _, err := ForwardInvalidations(ctx, q, "me", local); err != nil {
		t.Fatal(err)
	}
	for _, h := range q.handlers[messagequeue.SubjectInvalidate] {
		if err := h(ctx, messagequeue.SubjectInvalidate, []byte(`{"kinds":"plan"}`)); err != nil {
			t.Errorf("malformed message should be acked, got %v", err)
		}
	}
	if len(local.signals) != 0 {
		t.Error("malformed message was forwarded")
	}
}

func TestBroadcastNotifier(t *testing.T) {
	hub := &recordingHub{}
	sig := invalidation.Signal{Kinds: []invalidation.Kind{invalidation.KindComponent}, ProductID: "prod-1"}
	if err := NewBroadcastNotifier(hub).Invalidate(context.Background(), sig); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(hub.events, []string{EventInvalidate}) {
		t.Fatalf("events = %v", hub.events)
	}
	data, _ := json.Marshal(hub.last)
	var back invalidation.Signal
	if err := json.Unmarshal(data, &back); err != nil || back.ProductID != "prod-1" {
		t.Errorf("payload = %s (%v)", data, err)
	}
}
