package http

import (
	"time"

	"github.com/hackhub/presence-service/internal/domain"
	"github.com/hackhub/presence-service/internal/engine"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type CreateRoomRequest struct {
	Name     string  `json:"name"`
	Kind     string  `json:"kind,omitempty"`
	Track    *string `json:"track,omitempty"`
	Capacity int64   `json:"capacity,omitempty"`
	Secret   string  `json:"secret,omitempty"`
}

type CreateBreakoutRequest struct {
	Name     string `json:"name"`
	Capacity int64  `json:"capacity,omitempty"`
}

type RoomItem struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Kind         string    `json:"kind"`
	Track        *string   `json:"track,omitempty"`
	IsActive     bool      `json:"isActive"`
	Capacity     int64     `json:"capacity"`
	Protected    bool      `json:"protected"`
	ParentRoomID *string   `json:"parentRoomId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

func toRoomItem(r *domain.Room) RoomItem {
	return RoomItem{
		ID:           r.ID,
		Name:         r.Name,
		Kind:         string(r.Kind),
		Track:        r.Track,
		IsActive:     r.IsActive,
		Capacity:     r.Capacity,
		Protected:    r.Protected(),
		ParentRoomID: r.ParentRoomID,
		CreatedAt:    r.CreatedAt,
	}
}

type RoomsListResponse struct {
	Items      []RoomItem `json:"items"`
	NextCursor string     `json:"nextCursor,omitempty"`
}

type ParticipantsResponse struct {
	Items []engine.ParticipantInfo `json:"items"`
}

type ChatMessageItem struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	UserID    string    `json:"userId"`
	Content   string    `json:"content"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"createdAt"`
}

type ChatHistoryResponse struct {
	Items      []ChatMessageItem `json:"items"`
	NextCursor string            `json:"nextCursor,omitempty"`
}
