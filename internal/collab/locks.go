package collab

import (
	"time"

	"go.uber.org/zap"

	"collabd/internal/monitoring"
	"collabd/pkg/types"
)

// Lock grants an exclusive, TTL-bounded edit claim on a question. A live lock
// held by another user denies the request with the holder's name; an expired
// lock never blocks and is replaced in place. Re-locking by the current
// holder refreshes the TTL.
func (c *Coordinator) Lock(assessmentID, questionID, userID string) *types.LockResult {
	if !types.IsValidID(questionID) {
		return &types.LockResult{Granted: false, Reason: types.ErrInvalidQuestionID.Error()}
	}

	s := c.getSession(assessmentID)
	if s == nil {
		return &types.LockResult{Granted: false, Reason: ReasonSessionNotFound}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return &types.LockResult{Granted: false, Reason: ErrUserNotFound.Error()}
	}

	now := c.clk.Now()
	if existing, held := s.locks[questionID]; held && !existing.Expired(now) && existing.LockedBy != userID {
		monitoring.LocksDenied.Inc()
		return &types.LockResult{
			Granted:    false,
			Reason:     ReasonLockHeld,
			HolderID:   existing.LockedBy,
			HolderName: displayName(s, existing.LockedBy),
			Lock:       existing,
		}
	}

	lock := &types.QuestionLock{
		QuestionID: questionID,
		LockedBy:   userID,
		LockedAt:   now,
		ExpiresAt:  now.Add(c.cfg.LockTTL),
	}
	s.locks[questionID] = lock
	user.CurrentQuestionID = questionID
	user.LastSeen = now
	s.lastActivity = now
	monitoring.LocksGranted.Inc()

	c.emit(newEvent(types.EventQuestionLocked, assessmentID, userID, user.DisplayName, now, map[string]any{
		"question_id": questionID,
		"expires_at":  lock.ExpiresAt,
	}))
	return &types.LockResult{Granted: true, Lock: lock}
}

// Unlock releases the caller's lock on a question. Unlocking a question with
// no live lock is a successful no-op; unlocking someone else's lock is denied
// without touching its owner or expiry.
func (c *Coordinator) Unlock(assessmentID, questionID, userID string) *types.LockResult {
	s := c.getSession(assessmentID)
	if s == nil {
		return &types.LockResult{Granted: false, Reason: ReasonSessionNotFound}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := c.clk.Now()
	lock, held := s.locks[questionID]
	if !held || lock.Expired(now) {
		// Already unlocked (or expired, which amounts to the same thing).
		delete(s.locks, questionID)
		return &types.LockResult{Granted: true}
	}
	if lock.LockedBy != userID {
		return &types.LockResult{
			Granted:    false,
			Reason:     ReasonNotLockOwner,
			HolderID:   lock.LockedBy,
			HolderName: displayName(s, lock.LockedBy),
		}
	}

	delete(s.locks, questionID)
	s.lastActivity = now
	userName := userID
	if user, ok := s.users[userID]; ok {
		userName = user.DisplayName
		user.LastSeen = now
		if user.CurrentQuestionID == questionID {
			user.CurrentQuestionID = ""
		}
	}

	c.emit(newEvent(types.EventQuestionUnlocked, assessmentID, userID, userName, now, map[string]any{
		"question_id": questionID,
	}))
	return &types.LockResult{Granted: true}
}

// releaseUserLocks unlocks every question held by userID, emitting
// question_unlocked for each. Safe when the user holds nothing. Called under
// the session mutex — leave must release synchronously so another user can
// lock the question immediately afterwards.
func (c *Coordinator) releaseUserLocks(s *session, userID string, now time.Time) {
	name := displayName(s, userID)
	for questionID, lock := range s.locks {
		if lock.LockedBy != userID {
			continue
		}
		delete(s.locks, questionID)
		c.emit(newEvent(types.EventQuestionUnlocked, s.assessmentID, userID, name, now, map[string]any{
			"question_id": questionID,
		}))
	}
	if user, ok := s.users[userID]; ok {
		user.CurrentQuestionID = ""
	}
	c.log.Debug("released user locks",
		zap.String("assessment_id", s.assessmentID),
		zap.String("user_id", userID))
}
