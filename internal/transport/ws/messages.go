package ws

import "encoding/json"

// Inbound action names.
const (
	ActJoin        = "room:join"
	ActLeave       = "room:leave"
	ActSendMessage = "message:send"
	ActTyping      = "message:typing"
	ActUpdateState = "participant:update-state"
	ActOffer       = "webrtc:offer"
	ActAnswer      = "webrtc:answer"
	ActICE         = "webrtc:ice-candidate"
)

// inbound is the client-to-server envelope; the payload stays raw until the
// action is known.
type inbound struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type JoinPayload struct {
	RoomID       string `json:"roomId"`
	Secret       string `json:"secret,omitempty"`
	VideoEnabled bool   `json:"videoEnabled"`
	AudioEnabled bool   `json:"audioEnabled"`
}

type LeavePayload struct {
	RoomID string `json:"roomId"`
}

type SendMessagePayload struct {
	RoomID  string `json:"roomId"`
	Content string `json:"content"`
	Kind    string `json:"kind,omitempty"`
}

type TypingActionPayload struct {
	RoomID   string `json:"roomId"`
	IsTyping bool   `json:"isTyping"`
}

type UpdateStatePayload struct {
	RoomID       string `json:"roomId"`
	VideoEnabled *bool  `json:"videoEnabled,omitempty"`
	AudioEnabled *bool  `json:"audioEnabled,omitempty"`
}

type SignalActionPayload struct {
	RoomID       string          `json:"roomId"`
	TargetUserID string          `json:"targetUserId"`
	Payload      json.RawMessage `json:"payload"`
}
