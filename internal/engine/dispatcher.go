package engine

import (
	"github.com/hackhub/presence-service/pkg/metrics"
)

// Dispatcher fans an event out to every connection currently present in a
// room. Delivery is best-effort and non-blocking: a recipient that cannot
// accept the event is skipped and never aborts delivery to the rest.
// Events for one room reach recipients in dispatch order because fan-out runs
// inside the coordinator mailbox and each connection writes in FIFO order.
type Dispatcher struct {
	rooms *RoomState
}

func NewDispatcher(rooms *RoomState) *Dispatcher {
	return &Dispatcher{rooms: rooms}
}

// Broadcast delivers the event to the room, skipping excludeUserID if set.
// Returns the number of connections the event was handed to.
func (d *Dispatcher) Broadcast(roomID string, ev Event, excludeUserID string) int {
	delivered := 0
	for _, p := range d.rooms.snapshot(roomID) {
		if excludeUserID != "" && p.Info.UserID == excludeUserID {
			continue
		}
		if err := p.Conn.Send(ev); err != nil {
			metrics.BroadcastDropsTotal.Inc()
			continue
		}
		delivered++
	}
	return delivered
}
