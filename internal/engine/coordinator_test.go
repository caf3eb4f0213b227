package engine_test

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hackhub/presence-service/internal/domain"
	"github.com/hackhub/presence-service/internal/engine"
)

type fakeConn struct {
	id string

	mu     sync.Mutex
	events []engine.Event
	closed bool
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(ev engine.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ev := range c.events {
		if ev.Name == name {
			n++
		}
	}
	return n
}

// fakeStore simulates the persisted membership table: at most one open
// interval per (room, user), stale intervals closed on re-open.
type fakeStore struct {
	mu       sync.Mutex
	open     map[string]bool // room/user -> interval open
	opens    int
	closes   int
	appended []domain.Message
}

func newFakeStore() *fakeStore { return &fakeStore{open: map[string]bool{}} }

func key(roomID, userID string) string { return roomID + "/" + userID }

func (s *fakeStore) OpenInterval(_ context.Context, roomID, userID string, _ time.Time, _, _ bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open[key(roomID, userID)] = true
	s.opens++
	return nil
}

func (s *fakeStore) CloseInterval(_ context.Context, roomID, userID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open[key(roomID, userID)] = false
	s.closes++
	return nil
}

func (s *fakeStore) UpdateState(_ context.Context, roomID, userID string, _, _ bool) error {
	return nil
}

func (s *fakeStore) Append(_ context.Context, m *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appended = append(s.appended, *m)
	return nil
}

func (s *fakeStore) intervalOpen(roomID, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open[key(roomID, userID)]
}

func (s *fakeStore) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

func (s *fakeStore) appendCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.appended)
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func startCoordinator(t *testing.T) (*engine.Coordinator, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	c := engine.NewCoordinator(store, store, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go c.Run(ctx)

	return c, store
}

func room(id string, capacity int64) *domain.Room {
	return &domain.Room{ID: id, Name: id, Kind: domain.RoomKindGeneral, IsActive: true, Capacity: capacity}
}

func join(t *testing.T, c *engine.Coordinator, rm *domain.Room, userID string, conn engine.Conn) ([]engine.ParticipantInfo, error) {
	t.Helper()
	return c.Join(context.Background(), engine.JoinRequest{
		Room: rm, UserID: userID, Username: userID, Conn: conn,
	})
}

func rosterIDs(parts []engine.ParticipantInfo) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, p.UserID)
	}
	return out
}

func TestCapacityScenario(t *testing.T) {
	c, store := startCoordinator(t)
	r1 := room("r1", 2)

	connA, connB, connC := newFakeConn("ca"), newFakeConn("cb"), newFakeConn("cc")

	roster, err := join(t, c, r1, "A", connA)
	if err != nil || len(roster) != 1 {
		t.Fatalf("A join: roster=%v err=%v", rosterIDs(roster), err)
	}
	roster, err = join(t, c, r1, "B", connB)
	if err != nil || len(roster) != 2 {
		t.Fatalf("B join: roster=%v err=%v", rosterIDs(roster), err)
	}

	if _, err := join(t, c, r1, "C", connC); err != domain.ErrRoomFull {
		t.Fatalf("C join should be rejected full, got %v", err)
	}
	roster, _ = c.Roster(context.Background(), "r1")
	if len(roster) != 2 {
		t.Fatalf("rejected join mutated the roster: %v", rosterIDs(roster))
	}

	if err := c.Disconnect(context.Background(), connA); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	roster, _ = c.Roster(context.Background(), "r1")
	if len(roster) != 1 || roster[0].UserID != "B" {
		t.Fatalf("after A disconnect expected [B], got %v", rosterIDs(roster))
	}
	waitFor(t, func() bool { return !store.intervalOpen("r1", "A") },
		"A's persisted interval was not closed")

	roster, err = join(t, c, r1, "C", connC)
	if err != nil || len(roster) != 2 {
		t.Fatalf("C join after slot freed: roster=%v err=%v", rosterIDs(roster), err)
	}
}

func TestRejectedJoinLeavesStateUntouched(t *testing.T) {
	c, store := startCoordinator(t)
	r1, r2 := room("r1", 0), room("r2", 1)

	c1 := newFakeConn("c1")
	if _, err := join(t, c, r1, "A", c1); err != nil {
		t.Fatalf("A join r1: %v", err)
	}
	x := newFakeConn("cx")
	if _, err := join(t, c, r2, "X", x); err != nil {
		t.Fatalf("X join r2: %v", err)
	}

	// r2 is full: A's attempt from a second connection must fail without
	// touching A's presence in r1 or the binding to c1.
	c2 := newFakeConn("c2")
	if _, err := join(t, c, r2, "A", c2); err != domain.ErrRoomFull {
		t.Fatalf("expected ErrRoomFull, got %v", err)
	}

	roster, _ := c.Roster(context.Background(), "r1")
	if len(roster) != 1 || roster[0].UserID != "A" {
		t.Fatalf("rejected join swept r1: %v", rosterIDs(roster))
	}
	if c1.isClosed() {
		t.Fatal("rejected join closed the prior connection")
	}
	if store.closeCount() != 0 {
		t.Fatalf("rejected join closed %d persisted intervals", store.closeCount())
	}

	// A is still reachable through the original binding.
	if err := c.Relay(context.Background(), engine.SignalOffer, "r1", "X", "A",
		json.RawMessage(`{"sdp":"x"}`)); err != nil {
		t.Fatalf("relay: %v", err)
	}
	if c1.count(engine.EvtOffer) != 1 {
		t.Fatal("A lost the connection binding after a rejected join")
	}
}

func TestRejoinFullRoomOwnSlot(t *testing.T) {
	c, _ := startCoordinator(t)
	r1 := room("r1", 1)

	c1 := newFakeConn("c1")
	if _, err := join(t, c, r1, "A", c1); err != nil {
		t.Fatalf("first join: %v", err)
	}

	// A's stale entry does not count against capacity on their own re-join.
	c2 := newFakeConn("c2")
	roster, err := join(t, c, r1, "A", c2)
	if err != nil {
		t.Fatalf("rejoin of own slot at capacity: %v", err)
	}
	if len(roster) != 1 || roster[0].UserID != "A" {
		t.Fatalf("expected single entry for A, got %v", rosterIDs(roster))
	}
	if !c1.isClosed() {
		t.Fatal("superseded connection was not closed")
	}
}

func TestSupersedeSecondConnection(t *testing.T) {
	c, store := startCoordinator(t)
	r1 := room("r1", 0)

	old := newFakeConn("old")
	if _, err := join(t, c, r1, "A", old); err != nil {
		t.Fatalf("first join: %v", err)
	}

	fresh := newFakeConn("fresh")
	roster, err := join(t, c, r1, "A", fresh)
	if err != nil {
		t.Fatalf("rejoin from new connection: %v", err)
	}
	if len(roster) != 1 || roster[0].UserID != "A" {
		t.Fatalf("expected single roster entry for A, got %v", rosterIDs(roster))
	}
	if !old.isClosed() {
		t.Fatal("superseded connection was not closed")
	}

	// interval stays open, backed by the fresh connection
	waitFor(t, func() bool { return store.intervalOpen("r1", "A") },
		"A's interval should be open after rejoin")

	// events now reach the fresh connection only
	b := newFakeConn("cb")
	if _, err := join(t, c, r1, "B", b); err != nil {
		t.Fatalf("B join: %v", err)
	}
	if fresh.count(engine.EvtUserJoined) != 1 {
		t.Fatalf("fresh connection missed the join announcement")
	}
}

func TestSupersedeSweepsOtherRooms(t *testing.T) {
	c, store := startCoordinator(t)
	r1, r2 := room("r1", 0), room("r2", 0)

	observer := newFakeConn("co")
	if _, err := join(t, c, r1, "watcher", observer); err != nil {
		t.Fatalf("watcher join: %v", err)
	}

	c1 := newFakeConn("c1")
	if _, err := join(t, c, r1, "A", c1); err != nil {
		t.Fatalf("A join r1: %v", err)
	}
	if _, err := join(t, c, r2, "A", c1); err != nil {
		t.Fatalf("A join r2: %v", err)
	}

	// Re-joining only r2 from a new connection still tears down A's presence
	// in every room the old connection held.
	c2 := newFakeConn("c2")
	roster, err := join(t, c, r2, "A", c2)
	if err != nil {
		t.Fatalf("rejoin r2: %v", err)
	}
	if len(roster) != 1 || roster[0].UserID != "A" {
		t.Fatalf("r2 roster after rejoin: %v", rosterIDs(roster))
	}
	if !c1.isClosed() {
		t.Fatal("superseded connection was not closed")
	}

	roster, _ = c.Roster(context.Background(), "r1")
	if len(roster) != 1 || roster[0].UserID != "watcher" {
		t.Fatalf("A still present in r1 after supersede: %v", rosterIDs(roster))
	}
	if observer.count(engine.EvtUserLeft) != 1 {
		t.Fatalf("r1 was not told about A's departure, leaves=%d", observer.count(engine.EvtUserLeft))
	}

	waitFor(t, func() bool {
		return !store.intervalOpen("r1", "A") && store.intervalOpen("r2", "A")
	}, "persisted intervals diverge from live presence after supersede")
}

func TestDisconnectSweepsEveryRoom(t *testing.T) {
	c, store := startCoordinator(t)

	conn := newFakeConn("ca")
	observer := newFakeConn("co")

	for _, id := range []string{"r1", "r2", "r3"} {
		rm := room(id, 0)
		if _, err := join(t, c, rm, "watcher", observer); err != nil {
			t.Fatalf("watcher join %s: %v", id, err)
		}
		if _, err := join(t, c, rm, "A", conn); err != nil {
			t.Fatalf("A join %s: %v", id, err)
		}
	}

	if err := c.Disconnect(context.Background(), conn); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	if got := observer.count(engine.EvtUserLeft); got != 3 {
		t.Fatalf("expected 3 leave announcements, got %d", got)
	}
	for _, id := range []string{"r1", "r2", "r3"} {
		roster, _ := c.Roster(context.Background(), id)
		if len(roster) != 1 {
			t.Fatalf("room %s still shows A: %v", id, rosterIDs(roster))
		}
	}
	waitFor(t, func() bool { return store.closeCount() == 3 },
		"expected exactly 3 close side effects")

	// repeating the disconnect is a no-op
	if err := c.Disconnect(context.Background(), conn); err != nil {
		t.Fatalf("second disconnect: %v", err)
	}
	if got := observer.count(engine.EvtUserLeft); got != 3 {
		t.Fatalf("repeated disconnect produced extra leaves: %d", got)
	}
}

func TestLeaveIdempotent(t *testing.T) {
	c, store := startCoordinator(t)
	r1 := room("r1", 0)

	conn := newFakeConn("ca")
	if _, err := join(t, c, r1, "A", conn); err != nil {
		t.Fatalf("join: %v", err)
	}

	if err := c.Leave(context.Background(), "r1", "A"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if err := c.Leave(context.Background(), "r1", "A"); err != nil {
		t.Fatalf("second leave must be a no-op, got %v", err)
	}
	waitFor(t, func() bool { return store.closeCount() == 1 },
		"expected exactly one close for a double leave")
}

func TestMessageFromNonMemberRejected(t *testing.T) {
	c, store := startCoordinator(t)
	r1 := room("r1", 0)

	member := newFakeConn("cm")
	if _, err := join(t, c, r1, "A", member); err != nil {
		t.Fatalf("join: %v", err)
	}

	err := c.Message(context.Background(), "r1", "stranger", "hi", domain.MessageKindText)
	if err != domain.ErrNotInRoom {
		t.Fatalf("expected ErrNotInRoom, got %v", err)
	}
	if member.count(engine.EvtMessageNew) != 0 {
		t.Fatal("rejected message was broadcast")
	}

	time.Sleep(50 * time.Millisecond)
	if store.appendCount() != 0 {
		t.Fatal("rejected message was appended to history")
	}
}

func TestMessageBroadcastIncludesSender(t *testing.T) {
	c, store := startCoordinator(t)
	r1 := room("r1", 0)

	a, b := newFakeConn("ca"), newFakeConn("cb")
	if _, err := join(t, c, r1, "A", a); err != nil {
		t.Fatalf("join A: %v", err)
	}
	if _, err := join(t, c, r1, "B", b); err != nil {
		t.Fatalf("join B: %v", err)
	}

	if err := c.Message(context.Background(), "r1", "A", "hello", ""); err != nil {
		t.Fatalf("message: %v", err)
	}
	if a.count(engine.EvtMessageNew) != 1 || b.count(engine.EvtMessageNew) != 1 {
		t.Fatalf("message should reach sender and peer: a=%d b=%d",
			a.count(engine.EvtMessageNew), b.count(engine.EvtMessageNew))
	}
	waitFor(t, func() bool { return store.appendCount() == 1 },
		"message was not appended")
}

func TestInvalidMessageBodyRejectedBeforeBroadcast(t *testing.T) {
	c, store := startCoordinator(t)
	r1 := room("r1", 0)

	a, b := newFakeConn("ca"), newFakeConn("cb")
	if _, err := join(t, c, r1, "A", a); err != nil {
		t.Fatalf("join A: %v", err)
	}
	if _, err := join(t, c, r1, "B", b); err != nil {
		t.Fatalf("join B: %v", err)
	}

	// Over-long and whitespace-only bodies fail up front, so live listeners
	// and later history readers agree on what was said.
	big := strings.Repeat("x", domain.MaxMessageLen+1)
	if err := c.Message(context.Background(), "r1", "A", big, ""); err != domain.ErrBadMessage {
		t.Fatalf("oversized body: expected ErrBadMessage, got %v", err)
	}
	if err := c.Message(context.Background(), "r1", "A", "  \n\t ", ""); err != domain.ErrBadMessage {
		t.Fatalf("blank body: expected ErrBadMessage, got %v", err)
	}

	if b.count(engine.EvtMessageNew) != 0 {
		t.Fatal("invalid message was broadcast")
	}
	time.Sleep(50 * time.Millisecond)
	if store.appendCount() != 0 {
		t.Fatal("invalid message reached the store")
	}
}

func TestTypingExcludesSender(t *testing.T) {
	c, _ := startCoordinator(t)
	r1 := room("r1", 0)

	a, b := newFakeConn("ca"), newFakeConn("cb")
	_, _ = join(t, c, r1, "A", a)
	_, _ = join(t, c, r1, "B", b)

	if err := c.Typing(context.Background(), "r1", "A", true); err != nil {
		t.Fatalf("typing: %v", err)
	}
	if a.count(engine.EvtTyping) != 0 || b.count(engine.EvtTyping) != 1 {
		t.Fatalf("typing fan-out wrong: a=%d b=%d", a.count(engine.EvtTyping), b.count(engine.EvtTyping))
	}
}

func TestRelaySilentDropWithoutPeer(t *testing.T) {
	c, _ := startCoordinator(t)
	r1 := room("r1", 0)

	a := newFakeConn("ca")
	if _, err := join(t, c, r1, "A", a); err != nil {
		t.Fatalf("join: %v", err)
	}

	err := c.Relay(context.Background(), engine.SignalOffer, "r1", "A", "nobody",
		json.RawMessage(`{"sdp":"x"}`))
	if err != nil {
		t.Fatalf("relay to a missing peer must complete without error, got %v", err)
	}
}

func TestRelayForwardsOpaquePayload(t *testing.T) {
	c, _ := startCoordinator(t)
	r1 := room("r1", 0)

	a, b := newFakeConn("ca"), newFakeConn("cb")
	_, _ = join(t, c, r1, "A", a)
	_, _ = join(t, c, r1, "B", b)

	payload := json.RawMessage(`{"candidate":"udp 1 ..."}`)
	if err := c.Relay(context.Background(), engine.SignalICECandidate, "r1", "A", "B", payload); err != nil {
		t.Fatalf("relay: %v", err)
	}

	if b.count(engine.EvtICECandidate) != 1 {
		t.Fatal("target peer did not receive the signal")
	}
	b.mu.Lock()
	ev := b.events[len(b.events)-1]
	b.mu.Unlock()
	sp, ok := ev.Payload.(engine.SignalPayload)
	if !ok || sp.FromUserID != "A" || string(sp.Payload) != string(payload) {
		t.Fatalf("signal payload altered: %+v", ev.Payload)
	}
}

func TestUpdateStateBroadcastsAndRejectsNonMember(t *testing.T) {
	c, _ := startCoordinator(t)
	r1 := room("r1", 0)

	a, b := newFakeConn("ca"), newFakeConn("cb")
	_, _ = join(t, c, r1, "A", a)
	_, _ = join(t, c, r1, "B", b)

	video := true
	if err := c.UpdateState(context.Background(), "r1", "A", &video, nil); err != nil {
		t.Fatalf("update state: %v", err)
	}
	if a.count(engine.EvtStateChanged) != 1 || b.count(engine.EvtStateChanged) != 1 {
		t.Fatal("state change should be announced to the whole room")
	}

	roster, _ := c.Roster(context.Background(), "r1")
	if !roster[0].VideoEnabled {
		t.Fatal("live metadata not updated")
	}

	if err := c.UpdateState(context.Background(), "r1", "ghost", &video, nil); err != domain.ErrNotInRoom {
		t.Fatalf("expected ErrNotInRoom, got %v", err)
	}
}

type fakeFeed struct {
	mu      sync.Mutex
	actions []string
}

func (f *fakeFeed) MembershipChanged(ev engine.FeedEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, ev.Action)
}

func (f *fakeFeed) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.actions...)
}

func TestFeedEventsKeepDispatchOrder(t *testing.T) {
	store := newFakeStore()
	feed := &fakeFeed{}
	c := engine.NewCoordinator(store, store, feed, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go c.Run(ctx)

	// Rapid join/leave churn must reach the feed strictly alternating; a
	// goroutine per event would let a leave overtake its own join.
	rm := room("r1", 0)
	conn := newFakeConn("ca")
	const rounds = 20
	for i := 0; i < rounds; i++ {
		if _, err := join(t, c, rm, "A", conn); err != nil {
			t.Fatalf("join %d: %v", i, err)
		}
		if err := c.Leave(context.Background(), "r1", "A"); err != nil {
			t.Fatalf("leave %d: %v", i, err)
		}
	}

	waitFor(t, func() bool { return len(feed.snapshot()) == 2*rounds },
		"feed did not receive every membership event")
	for i, action := range feed.snapshot() {
		want := "joined"
		if i%2 == 1 {
			want = "left"
		}
		if action != want {
			t.Fatalf("feed out of order at %d: got %q, want %q", i, action, want)
		}
	}
}

func TestJoinAnnouncementExcludesJoiner(t *testing.T) {
	c, _ := startCoordinator(t)
	r1 := room("r1", 0)

	a, b := newFakeConn("ca"), newFakeConn("cb")
	_, _ = join(t, c, r1, "A", a)
	_, _ = join(t, c, r1, "B", b)

	if a.count(engine.EvtUserJoined) != 1 {
		t.Fatalf("existing member should see the join, got %d", a.count(engine.EvtUserJoined))
	}
	if b.count(engine.EvtUserJoined) != 0 {
		t.Fatal("joiner should not receive their own announcement")
	}
}
