package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Strob0t/ReleaseForge/internal/port/broadcast"
	"github.com/Strob0t/ReleaseForge/internal/port/invalidation"
	"github.com/Strob0t/ReleaseForge/internal/port/messagequeue"
)

// EventInvalidate is the WebSocket event type carrying an invalidation signal.
const EventInvalidate = "invalidate"

// QueueNotifier publishes invalidation signals on the message bus, tagged with
// this instance's origin.
type QueueNotifier struct {
	queue  messagequeue.Queue
	origin string
}

// NewQueueNotifier creates a notifier publishing on messagequeue.SubjectInvalidate.
func NewQueueNotifier(q messagequeue.Queue, origin string) *QueueNotifier {
	return &QueueNotifier{queue: q, origin: origin}
}

func (n *QueueNotifier) Invalidate(ctx context.Context, sig invalidation.Signal) error {
	payload := messagequeue.InvalidatePayload{
		PlanID:     sig.PlanID,
		FeatureIDs: sig.FeatureIDs,
		ProductID:  sig.ProductID,
		Origin:     n.origin,
	}
	for _, k := range sig.Kinds {
		payload.Kinds = append(payload.Kinds, string(k))
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal invalidation: %w", err)
	}
	return n.queue.Publish(ctx, messagequeue.SubjectInvalidate, data)
}

// ForwardInvalidations subscribes to signals raised by other instances and
// hands them to local. Signals from origin are skipped; they were already
// delivered locally.
func ForwardInvalidations(ctx context.Context, q messagequeue.Queue, origin string, local invalidation.Notifier) (func(), error) {
	return q.Subscribe(ctx, messagequeue.SubjectInvalidate, func(ctx context.Context, _ string, data []byte) error {
		var p messagequeue.InvalidatePayload
		if err := json.Unmarshal(data, &p); err != nil {
			// Redelivery cannot fix a malformed message.
			slog.WarnContext(ctx, "dropping malformed invalidation", "error", err)
			return nil
		}
		if p.Origin == origin {
			return nil
		}
		sig := invalidation.Signal{
			PlanID:     p.PlanID,
			FeatureIDs: p.FeatureIDs,
			ProductID:  p.ProductID,
			Origin:     p.Origin,
		}
		for _, k := range p.Kinds {
			sig.Kinds = append(sig.Kinds, invalidation.Kind(k))
		}
		return local.Invalidate(ctx, sig)
	})
}

// BroadcastNotifier pushes invalidation signals to connected browsers.
type BroadcastNotifier struct {
	hub broadcast.Broadcaster
}

// NewBroadcastNotifier creates a notifier that emits EventInvalidate events.
func NewBroadcastNotifier(hub broadcast.Broadcaster) *BroadcastNotifier {
	return &BroadcastNotifier{hub: hub}
}

func (n *BroadcastNotifier) Invalidate(ctx context.Context, sig invalidation.Signal) error {
	n.hub.BroadcastEvent(ctx, EventInvalidate, sig)
	return nil
}
