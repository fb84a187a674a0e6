package ws

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/Strob0t/ReleaseForge/internal/port/broadcast"
	"github.com/Strob0t/ReleaseForge/internal/port/invalidation"
)

var _ broadcast.Broadcaster = (*Hub)(nil)

// BroadcastEvent marshals a typed event and broadcasts it. Invalidation
// signals naming a plan only reach clients watching that plan or all plans.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	var scope string
	if sig, ok := payload.(invalidation.Signal); ok {
		scope = sig.PlanID
	}
	h.BroadcastScoped(ctx, scope, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
