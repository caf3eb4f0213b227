package domain

import "time"

// Membership is one continuous attendance interval of a user in a room.
// At most one row per (room, user) has LeftAt == nil; re-joining closes the
// stale open interval before opening a new one.
type Membership struct {
	ID           string     `db:"id"`
	RoomID       string     `db:"room_id"`
	UserID       string     `db:"user_id"`
	JoinedAt     time.Time  `db:"joined_at"`
	LeftAt       *time.Time `db:"left_at"`
	VideoEnabled bool       `db:"video_enabled"`
	AudioEnabled bool       `db:"audio_enabled"`
}
