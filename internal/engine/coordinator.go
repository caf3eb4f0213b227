package engine

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hackhub/presence-service/internal/domain"
	"github.com/hackhub/presence-service/pkg/metrics"

	"github.com/google/uuid"
)

// MembershipStore persists attendance intervals. Calls are made asynchronously
// after the in-memory mutation; errors are logged and swallowed, never rolled
// back into live presence.
type MembershipStore interface {
	OpenInterval(ctx context.Context, roomID, userID string, joinedAt time.Time, video, audio bool) error
	CloseInterval(ctx context.Context, roomID, userID string, leftAt time.Time) error
	UpdateState(ctx context.Context, roomID, userID string, video, audio bool) error
}

// MessageStore appends chat messages.
type MessageStore interface {
	Append(ctx context.Context, m *domain.Message) error
}

// FeedEvent describes a membership change for downstream consumers.
type FeedEvent struct {
	Action string    `json:"action"` // joined|left
	RoomID string    `json:"roomId"`
	UserID string    `json:"userId"`
	At     time.Time `json:"at"`
}

// Feed receives membership events best-effort; may be nil.
type Feed interface {
	MembershipChanged(ev FeedEvent)
}

const persistTimeout = 5 * time.Second

// Coordinator is the single owner of the Connection Registry and the Room
// State Store. All mutation goes through its mailbox and runs to completion,
// so concurrent joins, leaves and disconnects serialize without locks and
// never observe a half-applied transition. In-memory state always mutates
// before any persistence write; storage is eventually consistent with the
// live view.
type Coordinator struct {
	registry *Registry
	rooms    *RoomState
	dispatch *Dispatcher

	members  MembershipStore
	messages MessageStore
	feed     Feed
	log      *slog.Logger

	cmds    chan func()
	persist chan func(context.Context)
}

func NewCoordinator(members MembershipStore, messages MessageStore, feed Feed, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	rooms := NewRoomState()
	return &Coordinator{
		registry: NewRegistry(),
		rooms:    rooms,
		dispatch: NewDispatcher(rooms),
		members:  members,
		messages: messages,
		feed:     feed,
		log:      log,
		cmds:     make(chan func(), 64),
		persist:  make(chan func(context.Context), 1024),
	}
}

// Run drains the mailbox until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	go c.persistLoop(ctx)
	for {
		select {
		case cmd := <-c.cmds:
			cmd()
		case <-ctx.Done():
			return
		}
	}
}

// persistLoop applies persistence writes one at a time, in the order the
// coordinator dispatched them, so a close enqueued by a sweep can never land
// after the open of the interval that replaced it.
func (c *Coordinator) persistLoop(ctx context.Context) {
	for {
		select {
		case op := <-c.persist:
			pctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
			op(pctx)
			cancel()
		case <-ctx.Done():
			return
		}
	}
}

// do enqueues a command and waits for it to run.
func (c *Coordinator) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case c.cmds <- func() { fn(); close(done) }:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type JoinRequest struct {
	Room      *domain.Room
	UserID    string
	Username  string
	AvatarURL string
	Video     bool
	Audio     bool
	Conn      Conn
}

// Join runs the join transition: supersede any prior connection of the user,
// bind the new one, add the participant, announce to the room and reply with
// the roster. The membership interval is persisted asynchronously. Room
// existence, activity and secret were already checked by the caller; the
// capacity precondition must be checked here, against live presence.
func (c *Coordinator) Join(ctx context.Context, req JoinRequest) ([]ParticipantInfo, error) {
	var (
		roster []ParticipantInfo
		err    error
	)
	if derr := c.do(ctx, func() { roster, err = c.handleJoin(req) }); derr != nil {
		return nil, derr
	}
	return roster, err
}

func (c *Coordinator) handleJoin(req JoinRequest) ([]ParticipantInfo, error) {
	roomID := req.Room.ID

	// Preconditions first: a rejected join must leave every room and every
	// binding untouched. The user's own stale entry does not count against
	// capacity, so re-joining a full room they already occupy succeeds.
	if req.Room.Capacity > 0 {
		count := c.rooms.Count(roomID)
		if _, ok := c.rooms.Get(roomID, req.UserID); ok {
			count--
		}
		if int64(count) >= req.Room.Capacity {
			metrics.RejectedJoinsTotal.WithLabelValues("full").Inc()
			return nil, domain.ErrRoomFull
		}
	}

	// A second connection for the same user supersedes the first: tear down
	// its presence everywhere before the new join becomes visible.
	if prev, ok := c.registry.Lookup(req.UserID); ok && prev.ID() != req.Conn.ID() {
		c.sweep(req.UserID, prev)
		_ = prev.Close()
	}

	c.registry.Bind(req.Conn, req.UserID)

	now := time.Now()
	p := &Participant{
		Info: ParticipantInfo{
			UserID:       req.UserID,
			Username:     req.Username,
			AvatarURL:    req.AvatarURL,
			JoinedAt:     now,
			VideoEnabled: req.Video,
			AudioEnabled: req.Audio,
		},
		Conn: req.Conn,
	}
	c.rooms.Add(roomID, p)
	roster := c.rooms.List(roomID)

	c.dispatch.Broadcast(roomID, Event{
		Name:    EvtUserJoined,
		Payload: UserJoinedPayload{RoomID: roomID, Participant: p.Info},
	}, req.UserID)

	c.persist <- func(ctx context.Context) {
		if err := c.members.OpenInterval(ctx, roomID, req.UserID, now, req.Video, req.Audio); err != nil {
			c.log.Warn("open membership interval failed",
				"room", roomID, "user", req.UserID, "err", err)
		}
	}
	c.publishFeed(FeedEvent{Action: "joined", RoomID: roomID, UserID: req.UserID, At: now})

	metrics.JoinsTotal.Inc()
	return roster, nil
}

// Leave removes the user from one room. Leaving a room the user is not
// present in is a no-op.
func (c *Coordinator) Leave(ctx context.Context, roomID, userID string) error {
	return c.do(ctx, func() { c.handleLeave(roomID, userID) })
}

func (c *Coordinator) handleLeave(roomID, userID string) {
	if !c.rooms.Remove(roomID, userID) {
		return
	}
	now := time.Now()

	c.dispatch.Broadcast(roomID, Event{
		Name:    EvtUserLeft,
		Payload: UserLeftPayload{RoomID: roomID, UserID: userID},
	}, "")

	c.persist <- func(ctx context.Context) {
		if err := c.members.CloseInterval(ctx, roomID, userID, now); err != nil {
			c.log.Warn("close membership interval failed",
				"room", roomID, "user", userID, "err", err)
		}
	}
	c.publishFeed(FeedEvent{Action: "left", RoomID: roomID, UserID: userID, At: now})
}

// Disconnect handles a severed connection: sweep every room the connection's
// user was present in, then drop the binding. A connection superseded earlier
// was already swept and unbound, so this is a no-op for it. A join that was
// in flight when the transport saw the disconnect completes first (mailbox
// order) and is immediately swept here.
func (c *Coordinator) Disconnect(ctx context.Context, conn Conn) error {
	return c.do(ctx, func() {
		uid, ok := c.registry.UserOf(conn)
		if !ok {
			return
		}
		c.sweep(uid, conn)
	})
}

// sweep performs the leave transition for every room the user is present in
// and unbinds the connection. Room order is sorted, so repeated sweeps produce
// identical event sequences.
func (c *Coordinator) sweep(userID string, conn Conn) {
	for _, roomID := range c.rooms.RoomsOf(userID) {
		c.handleLeave(roomID, userID)
	}
	c.registry.Unbind(conn)
}

// UpdateState toggles the user's av flags: mutates live metadata, persists it
// asynchronously, and announces the change to the room. Presence state does
// not change.
func (c *Coordinator) UpdateState(ctx context.Context, roomID, userID string, video, audio *bool) error {
	var err error
	derr := c.do(ctx, func() {
		p, ok := c.rooms.Get(roomID, userID)
		if !ok {
			err = domain.ErrNotInRoom
			return
		}
		if video != nil {
			p.Info.VideoEnabled = *video
		}
		if audio != nil {
			p.Info.AudioEnabled = *audio
		}
		v, a := p.Info.VideoEnabled, p.Info.AudioEnabled

		c.dispatch.Broadcast(roomID, Event{
			Name: EvtStateChanged,
			Payload: StateChangedPayload{
				RoomID: roomID, UserID: userID,
				VideoEnabled: v, AudioEnabled: a,
			},
		}, "")

		c.persist <- func(ctx context.Context) {
			if perr := c.members.UpdateState(ctx, roomID, userID, v, a); perr != nil {
				c.log.Warn("persist participant state failed",
					"room", roomID, "user", userID, "err", perr)
			}
		}
	})
	if derr != nil {
		return derr
	}
	return err
}

// Message appends a chat message and broadcasts it to the room, sender
// included. The body is validated before anything is delivered, so live
// participants and later history readers see the same set of messages. The
// append itself is asynchronous; the broadcast is not held back by it, and an
// I/O failure on append leaves the already-delivered message in place.
func (c *Coordinator) Message(ctx context.Context, roomID, userID, body string, kind domain.MessageKind) error {
	body = strings.TrimSpace(body)
	if body == "" || len(body) > domain.MaxMessageLen {
		return domain.ErrBadMessage
	}

	var err error
	derr := c.do(ctx, func() {
		if _, ok := c.rooms.Get(roomID, userID); !ok {
			err = domain.ErrNotInRoom
			return
		}
		if kind == "" {
			kind = domain.MessageKindText
		}
		msg := &domain.Message{
			ID:        uuid.NewString(),
			RoomID:    roomID,
			UserID:    userID,
			Body:      body,
			Kind:      kind,
			CreatedAt: time.Now(),
		}

		c.dispatch.Broadcast(roomID, Event{
			Name: EvtMessageNew,
			Payload: MessagePayload{
				ID: msg.ID, RoomID: roomID, UserID: userID,
				Body: msg.Body, Kind: string(msg.Kind), CreatedAt: msg.CreatedAt,
			},
		}, "")
		metrics.MessagesTotal.Inc()

		c.persist <- func(ctx context.Context) {
			if perr := c.messages.Append(ctx, msg); perr != nil {
				c.log.Warn("append message failed",
					"room", roomID, "user", userID, "err", perr)
			}
		}
	})
	if derr != nil {
		return derr
	}
	return err
}

// Typing relays a typing indicator to the room, excluding the sender. Nothing
// is persisted.
func (c *Coordinator) Typing(ctx context.Context, roomID, userID string, isTyping bool) error {
	var err error
	derr := c.do(ctx, func() {
		if _, ok := c.rooms.Get(roomID, userID); !ok {
			err = domain.ErrNotInRoom
			return
		}
		c.dispatch.Broadcast(roomID, Event{
			Name:    EvtTyping,
			Payload: TypingPayload{RoomID: roomID, UserID: userID, IsTyping: isTyping},
		}, userID)
	})
	if derr != nil {
		return derr
	}
	return err
}

// Roster returns the current join-ordered roster of a room.
func (c *Coordinator) Roster(ctx context.Context, roomID string) ([]ParticipantInfo, error) {
	var roster []ParticipantInfo
	if err := c.do(ctx, func() { roster = c.rooms.List(roomID) }); err != nil {
		return nil, err
	}
	return roster, nil
}

// publishFeed hands the event to the serialized persistence loop so a rapid
// join/leave pair reaches downstream consumers in dispatch order.
func (c *Coordinator) publishFeed(ev FeedEvent) {
	if c.feed == nil {
		return
	}
	c.persist <- func(context.Context) {
		c.feed.MembershipChanged(ev)
	}
}
