package engine

import "sort"

// Participant is one user's live presence in one room.
type Participant struct {
	Info ParticipantInfo
	Conn Conn
}

// RoomState is the in-memory table of active rooms. A room exists only while
// someone is present: the entry is created on first join and evicted when the
// last participant is removed. Owned by the Coordinator, no locking.
type RoomState struct {
	rooms map[string]*roomEntry
}

type roomEntry struct {
	id           string
	participants map[string]*Participant
	order        []string // user ids in join order
}

func NewRoomState() *RoomState {
	return &RoomState{rooms: make(map[string]*roomEntry)}
}

func (s *RoomState) ensure(roomID string) *roomEntry {
	e, ok := s.rooms[roomID]
	if !ok {
		e = &roomEntry{id: roomID, participants: make(map[string]*Participant)}
		s.rooms[roomID] = e
	}
	return e
}

// Add inserts or overwrites the participant entry. An overwrite keeps the
// original join-order position.
func (s *RoomState) Add(roomID string, p *Participant) {
	e := s.ensure(roomID)
	uid := p.Info.UserID
	if _, exists := e.participants[uid]; !exists {
		e.order = append(e.order, uid)
	}
	e.participants[uid] = p
}

// Remove deletes the entry and reports whether it existed. The room entry is
// evicted when its participant set becomes empty; empty rooms hold no memory.
func (s *RoomState) Remove(roomID, userID string) bool {
	e, ok := s.rooms[roomID]
	if !ok {
		return false
	}
	if _, exists := e.participants[userID]; !exists {
		return false
	}
	delete(e.participants, userID)
	for i, uid := range e.order {
		if uid == userID {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	if len(e.participants) == 0 {
		delete(s.rooms, roomID)
	}
	return true
}

// Get returns the live participant entry, if present.
func (s *RoomState) Get(roomID, userID string) (*Participant, bool) {
	e, ok := s.rooms[roomID]
	if !ok {
		return nil, false
	}
	p, ok := e.participants[userID]
	return p, ok
}

// List returns a roster snapshot in join order.
func (s *RoomState) List(roomID string) []ParticipantInfo {
	e, ok := s.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]ParticipantInfo, 0, len(e.order))
	for _, uid := range e.order {
		out = append(out, e.participants[uid].Info)
	}
	return out
}

// Count returns the number of present participants.
func (s *RoomState) Count(roomID string) int {
	e, ok := s.rooms[roomID]
	if !ok {
		return 0
	}
	return len(e.participants)
}

// RoomsOf returns the ids of every room the user is present in, sorted so
// that a disconnect sweep is deterministic.
func (s *RoomState) RoomsOf(userID string) []string {
	var out []string
	for id, e := range s.rooms {
		if _, ok := e.participants[userID]; ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// snapshot returns the participants of a room in join order for fan-out.
func (s *RoomState) snapshot(roomID string) []*Participant {
	e, ok := s.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]*Participant, 0, len(e.order))
	for _, uid := range e.order {
		out = append(out, e.participants[uid])
	}
	return out
}
