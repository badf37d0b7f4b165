package ws

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"chat-client/internal/observability"
)

func (m *Manager) publishLifecycle(ctx context.Context, event, connID, traceID, target, reason string, connectedAt time.Time) {
	var durationMS int64
	if !connectedAt.IsZero() {
		durationMS = time.Since(connectedAt).Milliseconds()
	}
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        m.kind,
			"event":       event,
			"conn_id":     connID,
			"target":      target,
			"duration_ms": durationMS,
			"reason":      reason,
		},
	}
	if id, ok := m.identity.Current(); ok {
		payload["identity"] = map[string]interface{}{
			"user_id":   id.UserID,
			"user_name": id.UserName,
		}
	}

	err := observability.PublishEvent(ctx, observability.WSRoutingKey(m.kind), observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}, observability.BuildHeaders(connID, traceID))
	if err != nil {
		m.logger.Debug().Err(err).Str("event", event).Msg("publish lifecycle event")
	}
	observability.IncWSEvent(m.kind, event)
}

// abnormal reports whether a read error is something other than a clean close.
func abnormal(err error) bool {
	return !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
