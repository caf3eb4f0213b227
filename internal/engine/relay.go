package engine

import (
	"context"
	"encoding/json"
)

// Relay forwards an opaque call-signaling payload to the target user's
// connection. At-most-once, best-effort: if the target has no bound connection
// the signal is silently dropped and no error reaches the sender. The payload
// is never inspected.
func (c *Coordinator) Relay(ctx context.Context, kind SignalKind, roomID, fromUserID, toUserID string, payload json.RawMessage) error {
	return c.do(ctx, func() {
		target, ok := c.registry.Lookup(toUserID)
		if !ok {
			c.log.Debug("signal dropped, no peer connection",
				"kind", string(kind), "from", fromUserID, "to", toUserID)
			return
		}
		_ = target.Send(Event{
			Name: kind.eventName(),
			Payload: SignalPayload{
				RoomID:     roomID,
				FromUserID: fromUserID,
				Payload:    payload,
			},
		})
	})
}
