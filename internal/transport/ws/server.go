package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hackhub/presence-service/internal/domain"
	"github.com/hackhub/presence-service/internal/engine"
	"github.com/hackhub/presence-service/pkg/auth"
	"github.com/hackhub/presence-service/pkg/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// RoomAuthorizer checks the join preconditions that live in storage: the room
// exists, is active and the secret matches. The capacity check stays in the
// coordinator, against live presence.
type RoomAuthorizer interface {
	Authorize(ctx context.Context, roomID, secret string) (*domain.Room, error)
}

// HistoryLoader hydrates the recent-chat window delivered to a joiner.
type HistoryLoader interface {
	Recent(ctx context.Context, roomID string, limit int) ([]domain.Message, error)
}

type Server struct {
	upgrader websocket.Upgrader
	coord    *engine.Coordinator
	rooms    RoomAuthorizer
	history  HistoryLoader
	tokens   *auth.JWT

	historyLimit   int
	sendBufferSize int
	pingEvery      time.Duration
}

func NewServer(coord *engine.Coordinator, rooms RoomAuthorizer, history HistoryLoader, tokens *auth.JWT, historyLimit, sendBufferSize int) *Server {
	if historyLimit <= 0 {
		historyLimit = 50
	}
	if sendBufferSize <= 0 {
		sendBufferSize = 256
	}
	return &Server{
		coord:   coord,
		rooms:   rooms,
		history: history,
		tokens:  tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		historyLimit:   historyLimit,
		sendBufferSize: sendBufferSize,
		pingEvery:      15 * time.Second,
	}
}

// WS endpoint: GET /ws?access_token=...
// One connection per user; rooms are joined and left over it.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("access_token"))
	if token == "" {
		http.Error(w, "missing access_token", http.StatusUnauthorized)
		return
	}
	identity, err := s.tokens.Verify(token)
	if err != nil {
		http.Error(w, "invalid access_token", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "err", err)
		return
	}

	c := newWSConn(uuid.NewString(), conn, s.sendBufferSize)
	metrics.ActiveConnections.Inc()

	go c.writeLoop(s.pingEvery)
	s.readLoop(c, identity)

	// The read loop exited: the connection is gone. Sweep every room this
	// user was present in. Uses a fresh context: the request context dies
	// with the handler and must not cancel the cleanup.
	if err := s.coord.Disconnect(context.Background(), c); err != nil {
		slog.Warn("disconnect sweep failed", "user", identity.UserID, "err", err)
	}
	_ = c.Close()
	metrics.ActiveConnections.Dec()
}

func (s *Server) readLoop(c *wsConn, identity auth.Identity) {
	ctx := context.Background()

	c.conn.SetReadLimit(1 << 20)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Event {
		case ActJoin:
			var p JoinPayload
			if json.Unmarshal(msg.Payload, &p) == nil && p.RoomID != "" {
				s.handleJoin(ctx, c, identity, p)
			}

		case ActLeave:
			var p LeavePayload
			if json.Unmarshal(msg.Payload, &p) == nil && p.RoomID != "" {
				_ = s.coord.Leave(ctx, p.RoomID, identity.UserID)
			}

		case ActSendMessage:
			var p SendMessagePayload
			if json.Unmarshal(msg.Payload, &p) != nil {
				continue
			}
			text := strings.TrimSpace(p.Content)
			if p.RoomID == "" || text == "" {
				continue
			}
			err := s.coord.Message(ctx, p.RoomID, identity.UserID, text, domain.MessageKind(p.Kind))
			s.sendErr(c, err)

		case ActTyping:
			var p TypingActionPayload
			if json.Unmarshal(msg.Payload, &p) != nil || p.RoomID == "" {
				continue
			}
			err := s.coord.Typing(ctx, p.RoomID, identity.UserID, p.IsTyping)
			s.sendErr(c, err)

		case ActUpdateState:
			var p UpdateStatePayload
			if json.Unmarshal(msg.Payload, &p) != nil || p.RoomID == "" {
				continue
			}
			err := s.coord.UpdateState(ctx, p.RoomID, identity.UserID, p.VideoEnabled, p.AudioEnabled)
			s.sendErr(c, err)

		case ActOffer, ActAnswer, ActICE:
			var p SignalActionPayload
			if json.Unmarshal(msg.Payload, &p) != nil || p.TargetUserID == "" {
				continue
			}
			kind := engine.SignalOffer
			switch msg.Event {
			case ActAnswer:
				kind = engine.SignalAnswer
			case ActICE:
				kind = engine.SignalICECandidate
			}
			_ = s.coord.Relay(ctx, kind, p.RoomID, identity.UserID, p.TargetUserID, p.Payload)

		default:
			// ignore
		}
	}
}

func (s *Server) handleJoin(ctx context.Context, c *wsConn, identity auth.Identity, p JoinPayload) {
	room, err := s.rooms.Authorize(ctx, p.RoomID, p.Secret)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrRoomNotFound), errors.Is(err, domain.ErrRoomInactive):
			metrics.RejectedJoinsTotal.WithLabelValues("unavailable").Inc()
			s.reject(c, "room unavailable")
		case errors.Is(err, domain.ErrForbidden):
			metrics.RejectedJoinsTotal.WithLabelValues("forbidden").Inc()
			s.reject(c, "forbidden")
		default:
			slog.Error("authorize join failed", "room", p.RoomID, "user", identity.UserID, "err", err)
			s.reject(c, "room unavailable")
		}
		return
	}

	roster, err := s.coord.Join(ctx, engine.JoinRequest{
		Room:      room,
		UserID:    identity.UserID,
		Username:  identity.Username,
		AvatarURL: identity.AvatarURL,
		Video:     p.VideoEnabled,
		Audio:     p.AudioEnabled,
		Conn:      c,
	})
	if err != nil {
		if errors.Is(err, domain.ErrRoomFull) {
			s.reject(c, "full")
			return
		}
		slog.Error("join failed", "room", p.RoomID, "user", identity.UserID, "err", err)
		s.reject(c, "room unavailable")
		return
	}

	// Roster snapshot to the joiner only, then the recent-history window.
	_ = c.Send(engine.Event{
		Name:    engine.EvtParticipants,
		Payload: engine.RosterPayload{RoomID: room.ID, Participants: roster},
	})

	msgs, err := s.history.Recent(ctx, room.ID, s.historyLimit)
	if err != nil {
		slog.Warn("load history failed", "room", room.ID, "err", err)
		return
	}
	items := make([]engine.MessagePayload, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, engine.MessagePayload{
			ID: m.ID, RoomID: m.RoomID, UserID: m.UserID,
			Body: m.Body, Kind: string(m.Kind), CreatedAt: m.CreatedAt,
		})
	}
	_ = c.Send(engine.Event{
		Name:    engine.EvtMessages,
		Payload: engine.HistoryPayload{RoomID: room.ID, Messages: items},
	})
}

func (s *Server) reject(c *wsConn, reason string) {
	_ = c.Send(engine.Event{Name: engine.EvtError, Payload: engine.ErrorPayload{Reason: reason}})
}

// sendErr reports a rejected action back to the sender; nil is a no-op.
func (s *Server) sendErr(c *wsConn, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, domain.ErrNotInRoom) {
		s.reject(c, "not in room")
		return
	}
	if errors.Is(err, domain.ErrBadMessage) {
		s.reject(c, "invalid message")
		return
	}
	s.reject(c, "internal error")
}
