package collab

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"collabd/pkg/types"
)

// Presence colors are assigned round-robin per session. A rejoining user
// keeps their color because the presence entry is refreshed, not recreated.
var colorPalette = []string{
	"#e6194b", "#3cb44b", "#4363d8", "#f58231",
	"#911eb4", "#46f0f0", "#f032e6", "#bcf60c",
}

// session holds all mutable state for one assessment being edited. Every
// operation on it runs under mu; sessions are independent units of
// concurrency, so no global lock is ever taken across two of them.
type session struct {
	assessmentID   string
	organizationID string

	mu             sync.Mutex
	users          map[string]*types.SessionUser
	locks          map[string]*types.QuestionLock
	currentSection string
	startedAt      time.Time
	lastActivity   time.Time
	nextColor      int
	destroyed      bool
}

func newSession(assessmentID, organizationID string, now time.Time) *session {
	return &session{
		assessmentID:   assessmentID,
		organizationID: organizationID,
		users:          make(map[string]*types.SessionUser),
		locks:          make(map[string]*types.QuestionLock),
		startedAt:      now,
		lastActivity:   now,
	}
}

// assignColor hands out the next palette entry. Called under mu.
func (s *session) assignColor() string {
	c := colorPalette[s.nextColor%len(colorPalette)]
	s.nextColor++
	return c
}

// pruneExpiredLocks drops every lock whose TTL has passed and returns the
// removed entries. Called under mu.
func (s *session) pruneExpiredLocks(now time.Time) []*types.QuestionLock {
	var removed []*types.QuestionLock
	for qid, lock := range s.locks {
		if lock.Expired(now) {
			removed = append(removed, lock)
			delete(s.locks, qid)
		}
	}
	return removed
}

// participants returns a copy of the roster for event payloads. Called under mu.
func (s *session) participants() []types.SessionUser {
	users := make([]types.SessionUser, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, *u)
	}
	return users
}

// snapshot copies the session state for read-only consumers. Called under mu.
func (s *session) snapshot() *types.SessionSnapshot {
	locks := make([]types.QuestionLock, 0, len(s.locks))
	for _, l := range s.locks {
		locks = append(locks, *l)
	}
	return &types.SessionSnapshot{
		AssessmentID:   s.assessmentID,
		OrganizationID: s.organizationID,
		Users:          s.participants(),
		Locks:          locks,
		CurrentSection: s.currentSection,
		StartedAt:      s.startedAt,
		LastActivity:   s.lastActivity,
	}
}

// newEvent stamps an event with identity and time. The caller emits it while
// still holding the session mutex so stream order matches apply order.
func newEvent(evType, assessmentID, userID, userName string, now time.Time, data map[string]any) *types.Event {
	return &types.Event{
		ID:           uuid.NewString(),
		Type:         evType,
		AssessmentID: assessmentID,
		UserID:       userID,
		UserName:     userName,
		Timestamp:    now,
		Data:         data,
	}
}
