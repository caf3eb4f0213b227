package engine

// Registry maps live connections to user identities and back. A user holds at
// most one connection process-wide; binding a second one supersedes the first.
//
// Owned by the Coordinator and mutated only inside its mailbox, so no locking.
type Registry struct {
	byUser map[string]Conn   // user id -> current connection
	byConn map[string]string // conn id -> user id
}

func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]Conn),
		byConn: make(map[string]string),
	}
}

// Bind records the connection for the user and returns the superseded
// connection, if a different one was bound.
func (r *Registry) Bind(c Conn, userID string) (Conn, bool) {
	prev, had := r.byUser[userID]
	if had && prev.ID() == c.ID() {
		return nil, false
	}
	if had {
		delete(r.byConn, prev.ID())
	}
	r.byUser[userID] = c
	r.byConn[c.ID()] = userID
	return prev, had
}

// Lookup returns the user's current connection.
func (r *Registry) Lookup(userID string) (Conn, bool) {
	c, ok := r.byUser[userID]
	return c, ok
}

// UserOf returns the identity bound to a connection.
func (r *Registry) UserOf(c Conn) (string, bool) {
	uid, ok := r.byConn[c.ID()]
	return uid, ok
}

// Unbind removes both directions of the mapping. Idempotent; the user side is
// only cleared while it still points at this connection.
func (r *Registry) Unbind(c Conn) {
	uid, ok := r.byConn[c.ID()]
	if !ok {
		return
	}
	delete(r.byConn, c.ID())
	if cur, ok := r.byUser[uid]; ok && cur.ID() == c.ID() {
		delete(r.byUser, uid)
	}
}

func (r *Registry) Len() int { return len(r.byUser) }
