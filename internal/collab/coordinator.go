// Package collab implements the collaborative session coordinator: session
// lifecycle, presence tracking, per-question soft locks, optimistic answer
// submission with conflict records, and time-based cleanup of stale state.
package collab

import (
	"sync"

	"go.uber.org/zap"

	"collabd/internal/clock"
	"collabd/internal/config"
	"collabd/internal/monitoring"
	"collabd/internal/store"
	"collabd/pkg/types"
)

// Coordinator owns every live assessment session. Inbound transport calls and
// the sweeper both operate through it; per-session mutexes serialize the work
// so unrelated assessments never contend.
type Coordinator struct {
	cfg   config.CollabConfig
	clk   clock.Clock
	store store.AnswerStore
	log   *zap.Logger

	// events is the single multiplexed outbound stream, tagged per event by
	// assessment ID. Emission happens while the causing operation still holds
	// the session mutex, so per-session order equals apply order.
	events chan *types.Event

	mu       sync.RWMutex
	sessions map[string]*session
}

func NewCoordinator(cfg config.CollabConfig, clk clock.Clock, st store.AnswerStore, log *zap.Logger) *Coordinator {
	return &Coordinator{
		cfg:      cfg,
		clk:      clk,
		store:    st,
		log:      log,
		events:   make(chan *types.Event, cfg.EventBuffer),
		sessions: make(map[string]*session),
	}
}

// Events returns the outbound stream. The channel is never closed; consumers
// stop via their own context.
func (c *Coordinator) Events() <-chan *types.Event {
	return c.events
}

// emit pushes an event onto the stream without blocking. The session mutex is
// held by the caller; a full buffer drops the event rather than stalling the
// state machine for every other participant.
func (c *Coordinator) emit(ev *types.Event) {
	select {
	case c.events <- ev:
		monitoring.EventsEmitted.WithLabelValues(ev.Type).Inc()
	default:
		monitoring.EventsDropped.Inc()
		c.log.Warn("event buffer full, dropping event",
			zap.String("type", ev.Type),
			zap.String("assessment_id", ev.AssessmentID))
	}
}

// getSession returns the live session or nil. Mutating calls on a missing
// session are soft no-ops: a slow client may legitimately race the sweeper.
func (c *Coordinator) getSession(assessmentID string) *session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessions[assessmentID]
}

// getOrCreate returns the session for assessmentID, creating it on first
// join. The loop covers the narrow race where the sweeper destroys a session
// between lookup and use.
func (c *Coordinator) getOrCreate(assessmentID, organizationID string) *session {
	for {
		c.mu.Lock()
		s, ok := c.sessions[assessmentID]
		if !ok {
			s = newSession(assessmentID, organizationID, c.clk.Now())
			c.sessions[assessmentID] = s
			monitoring.ActiveSessions.Set(float64(len(c.sessions)))
			c.log.Info("session created",
				zap.String("assessment_id", assessmentID),
				zap.String("organization_id", organizationID))
		}
		c.mu.Unlock()

		s.mu.Lock()
		if !s.destroyed {
			return s // caller inherits s.mu
		}
		s.mu.Unlock()
	}
}

// Join registers a participant, creating the session lazily. Joining twice
// with the same user ID collapses to one presence entry and only refreshes
// lastSeen. Always emits user_joined with the resulting roster.
func (c *Coordinator) Join(assessmentID, organizationID string, identity types.Identity) (*types.SessionSnapshot, error) {
	if !types.IsValidID(assessmentID) {
		return nil, types.ErrInvalidAssessmentID
	}
	if err := identity.Validate(); err != nil {
		return nil, err
	}

	now := c.clk.Now()
	s := c.getOrCreate(assessmentID, organizationID)
	defer s.mu.Unlock()

	user, ok := s.users[identity.UserID]
	if ok {
		user.LastSeen = now
	} else {
		user = &types.SessionUser{
			UserID:      identity.UserID,
			DisplayName: identity.DisplayName,
			Role:        identity.Role,
			JoinedAt:    now,
			LastSeen:    now,
			Color:       s.assignColor(),
		}
		s.users[identity.UserID] = user
		monitoring.ConnectedUsers.Inc()
	}
	s.lastActivity = now

	c.emit(newEvent(types.EventUserJoined, assessmentID, identity.UserID, identity.DisplayName, now, map[string]any{
		"color":        user.Color,
		"participants": s.participants(),
		"count":        len(s.users),
	}))
	return s.snapshot(), nil
}

// Leave removes the participant, releasing every lock they hold first. It is
// idempotent: a missing session or user returns false with no error and no
// duplicate user_left event.
func (c *Coordinator) Leave(assessmentID, userID string) bool {
	s := c.getSession(assessmentID)
	if s == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return false
	}

	now := c.clk.Now()
	c.releaseUserLocks(s, userID, now)
	delete(s.users, userID)
	s.lastActivity = now
	monitoring.ConnectedUsers.Dec()

	c.emit(newEvent(types.EventUserLeft, assessmentID, userID, user.DisplayName, now, map[string]any{
		"participants": s.participants(),
		"count":        len(s.users),
	}))
	return true
}

// Heartbeat refreshes the participant's lastSeen timestamp. Silently ignored
// when the session or user no longer exists.
func (c *Coordinator) Heartbeat(assessmentID, userID string) {
	s := c.getSession(assessmentID)
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if user, ok := s.users[userID]; ok {
		user.LastSeen = c.clk.Now()
	}
}

// Snapshot returns a read-only copy of session state for late joiners and
// reconnect resync, or nil when no session exists. Expired locks are pruned
// on the way out so a reconnecting client never sees a stale holder.
func (c *Coordinator) Snapshot(assessmentID string) *types.SessionSnapshot {
	s := c.getSession(assessmentID)
	if s == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneExpiredLocks(c.clk.Now())
	return s.snapshot()
}

// UpdateProgress records advisory navigation state. The session-level section
// is last-write-wins; both fields are optional and each present field emits
// its own event. Always refreshes lastSeen.
func (c *Coordinator) UpdateProgress(assessmentID, userID string, update types.ProgressUpdate) {
	s := c.getSession(assessmentID)
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return
	}

	now := c.clk.Now()
	user.LastSeen = now
	s.lastActivity = now

	if update.CurrentSection != nil {
		s.currentSection = *update.CurrentSection
		c.emit(newEvent(types.EventSectionChanged, assessmentID, userID, user.DisplayName, now, map[string]any{
			"section": *update.CurrentSection,
		}))
	}
	if update.CompletionPercentage != nil {
		c.emit(newEvent(types.EventProgressUpdated, assessmentID, userID, user.DisplayName, now, map[string]any{
			"completion_percentage": *update.CompletionPercentage,
		}))
	}
}

// Stats reports registry-level counters for the health endpoint.
func (c *Coordinator) Stats() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	users := 0
	for _, s := range c.sessions {
		s.mu.Lock()
		users += len(s.users)
		s.mu.Unlock()
	}
	return map[string]int{
		"sessions": len(c.sessions),
		"users":    users,
	}
}

// displayName resolves a user ID to a name for event payloads and lock
// denials; falls back to the ID when the holder already left. Called under
// the session mutex.
func displayName(s *session, userID string) string {
	if u, ok := s.users[userID]; ok {
		return u.DisplayName
	}
	return userID
}
