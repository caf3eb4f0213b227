package domain

import "time"

// MaxMessageLen caps the chat body in bytes.
const MaxMessageLen = 4000

type MessageKind string

const (
	MessageKindText   MessageKind = "text"
	MessageKindSystem MessageKind = "system"
)

type Message struct {
	ID        string      `db:"id"`
	RoomID    string      `db:"room_id"`
	UserID    string      `db:"user_id"`
	Body      string      `db:"body"`
	Kind      MessageKind `db:"kind"`
	Deleted   bool        `db:"deleted"`
	CreatedAt time.Time   `db:"created_at"`
}
