package domain

import "time"

type RoomKind string

const (
	RoomKindGeneral     RoomKind = "general"
	RoomKindTrack       RoomKind = "track"
	RoomKindMentorHours RoomKind = "mentor-hours"
	RoomKindJudgeQA     RoomKind = "judge-qa"
	RoomKindBreakout    RoomKind = "breakout"
)

type Room struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	Kind         RoomKind  `db:"kind"`
	Track        *string   `db:"track"`
	IsActive     bool      `db:"is_active"`
	Capacity     int64     `db:"capacity"` // 0 means unbounded
	SecretHash   *string   `db:"secret_hash"`
	ParentRoomID *string   `db:"parent_room_id"`
	CreatedAt    time.Time `db:"created_at"`
}

// Protected reports whether joining requires a secret.
func (r *Room) Protected() bool {
	return r.SecretHash != nil && *r.SecretHash != ""
}
