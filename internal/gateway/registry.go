package gateway

import "sync"

// Registry tracks live connections per assessment. One connection per user
// per assessment: a reconnect (or second tab) replaces the previous socket,
// matching the coordinator's single presence entry per user.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]map[string]*Connection // assessmentID -> userID -> conn
}

func NewRegistry() *Registry {
	return &Registry{connections: make(map[string]map[string]*Connection)}
}

// Register adds conn, closing any previous connection for the same user. The
// old socket is closed asynchronously so registration never blocks on it.
func (r *Registry) Register(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	byUser := r.connections[conn.AssessmentID()]
	if byUser == nil {
		byUser = make(map[string]*Connection)
		r.connections[conn.AssessmentID()] = byUser
	}
	if existing, ok := byUser[conn.UserID()]; ok && existing != conn {
		go existing.Close()
	}
	byUser[conn.UserID()] = conn
	return nil
}

// Unregister removes conn and reports whether it was the registered instance.
// A connection replaced by a reconnect returns false so the caller knows not
// to drop the user's presence.
func (r *Registry) Unregister(conn *Connection) bool {
	if conn == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	byUser, ok := r.connections[conn.AssessmentID()]
	if !ok {
		return false
	}
	if byUser[conn.UserID()] != conn {
		return false
	}

	delete(byUser, conn.UserID())
	if len(byUser) == 0 {
		delete(r.connections, conn.AssessmentID())
	}
	return true
}

// Broadcast sends v to every participant of an assessment. Write failures are
// per-connection; one slow client never blocks the rest.
func (r *Registry) Broadcast(assessmentID string, v any) {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.connections[assessmentID]))
	for _, conn := range r.connections[assessmentID] {
		conns = append(conns, conn)
	}
	r.mu.RUnlock()

	for _, conn := range conns {
		_ = conn.WriteJSON(v)
	}
}

// Count returns the number of live connections across all assessments.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, byUser := range r.connections {
		n += len(byUser)
	}
	return n
}
