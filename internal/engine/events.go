package engine

import (
	"encoding/json"
	"time"
)

// Event is the envelope exchanged with clients and fanned out to rooms.
type Event struct {
	Name    string `json:"event"`
	Payload any    `json:"payload"`
}

// Room-scoped event names.
const (
	EvtParticipants = "room:participants"
	EvtMessages     = "room:messages"
	EvtUserJoined   = "room:user-joined"
	EvtUserLeft     = "room:user-left"
	EvtMessageNew   = "message:new"
	EvtTyping       = "message:typing"
	EvtStateChanged = "participant:state-changed"
	EvtOffer        = "webrtc:offer"
	EvtAnswer       = "webrtc:answer"
	EvtICECandidate = "webrtc:ice-candidate"
	EvtError        = "error"
)

type SignalKind string

const (
	SignalOffer        SignalKind = "offer"
	SignalAnswer       SignalKind = "answer"
	SignalICECandidate SignalKind = "ice-candidate"
)

func (k SignalKind) eventName() string {
	switch k {
	case SignalOffer:
		return EvtOffer
	case SignalAnswer:
		return EvtAnswer
	default:
		return EvtICECandidate
	}
}

// Conn is one live client connection. Send must not block: a connection that
// cannot accept the event reports an error and the caller skips it.
type Conn interface {
	ID() string
	Send(ev Event) error
	Close() error
}

type ParticipantInfo struct {
	UserID       string    `json:"userId"`
	Username     string    `json:"username"`
	AvatarURL    string    `json:"avatarUrl,omitempty"`
	JoinedAt     time.Time `json:"joinedAt"`
	VideoEnabled bool      `json:"videoEnabled"`
	AudioEnabled bool      `json:"audioEnabled"`
}

type RosterPayload struct {
	RoomID       string            `json:"roomId"`
	Participants []ParticipantInfo `json:"participants"`
}

type UserJoinedPayload struct {
	RoomID      string          `json:"roomId"`
	Participant ParticipantInfo `json:"participant"`
}

type UserLeftPayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

type MessagePayload struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	UserID    string    `json:"userId"`
	Body      string    `json:"content"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"createdAt"`
}

type HistoryPayload struct {
	RoomID   string           `json:"roomId"`
	Messages []MessagePayload `json:"messages"`
}

type TypingPayload struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

type StateChangedPayload struct {
	RoomID       string `json:"roomId"`
	UserID       string `json:"userId"`
	VideoEnabled bool   `json:"videoEnabled"`
	AudioEnabled bool   `json:"audioEnabled"`
}

// SignalPayload carries an opaque call-setup blob; the engine never inspects it.
type SignalPayload struct {
	RoomID     string          `json:"roomId"`
	FromUserID string          `json:"fromUserId"`
	Payload    json.RawMessage `json:"payload"`
}

type ErrorPayload struct {
	Reason string `json:"reason"`
}
