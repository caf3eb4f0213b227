package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/hackhub/presence-service/internal/engine"

	"github.com/gorilla/websocket"
)

var errConnGone = errors.New("connection cannot accept events")

// wsConn wraps a gorilla connection behind a buffered outbound queue so that
// Send never blocks the coordinator. The write loop drains the queue in FIFO
// order, which is what keeps per-room broadcast ordering intact.
type wsConn struct {
	id   string
	conn *websocket.Conn

	out    chan engine.Event
	closed chan struct{}
	once   sync.Once
}

func newWSConn(id string, conn *websocket.Conn, sendBuffer int) *wsConn {
	return &wsConn{
		id:     id,
		conn:   conn,
		out:    make(chan engine.Event, sendBuffer),
		closed: make(chan struct{}),
	}
}

func (c *wsConn) ID() string { return c.id }

// Send enqueues without blocking. A closed connection or a full buffer
// reports an error; the dispatcher skips this recipient and moves on.
func (c *wsConn) Send(ev engine.Event) error {
	select {
	case <-c.closed:
		return errConnGone
	default:
	}
	select {
	case c.out <- ev:
		return nil
	default:
		return errConnGone
	}
}

func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

func (c *wsConn) writeLoop(pingEvery time.Duration) {
	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()

	for {
		select {
		case ev := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.conn.WriteJSON(ev); err != nil {
				_ = c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
		case <-c.closed:
			return
		}
	}
}
