package collab

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"collabd/internal/monitoring"
	"collabd/pkg/types"
)

// Submit accepts an answer optimistically. Submission implies the edit is
// done, so any lock the submitter holds on the question is released first and
// answer_submitted is broadcast immediately. The compare-and-set against the
// answer store runs after the session mutex is dropped (no lock is ever held
// across store I/O); when the store reports that lastSeenValue no longer
// matches, both writes are archived in a ConflictResolution that must be
// resolved explicitly — the coordinator never discards either side.
func (c *Coordinator) Submit(ctx context.Context, assessmentID, questionID, userID, value, lastSeenValue string) (*types.SubmitResult, error) {
	if !types.IsValidID(questionID) {
		return nil, types.ErrInvalidQuestionID
	}

	s := c.getSession(assessmentID)
	if s == nil {
		return nil, ErrSessionNotFound
	}

	s.mu.Lock()
	user, ok := s.users[userID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrUserNotFound
	}
	userName := user.DisplayName

	now := c.clk.Now()
	if lock, held := s.locks[questionID]; held && lock.LockedBy == userID {
		delete(s.locks, questionID)
	}
	if user.CurrentQuestionID == questionID {
		user.CurrentQuestionID = ""
	}
	user.LastSeen = now
	s.lastActivity = now

	c.emit(newEvent(types.EventAnswerSubmitted, assessmentID, userID, userName, now, map[string]any{
		"question_id":    questionID,
		"value":          value,
		"previous_value": lastSeenValue,
	}))
	s.mu.Unlock()

	prev, conflict, err := c.store.SaveAnswer(ctx, assessmentID, questionID, userID, value, lastSeenValue, now)
	if err != nil {
		return nil, fmt.Errorf("failed to persist answer: %w", err)
	}
	if !conflict {
		return &types.SubmitResult{Accepted: true}, nil
	}

	record := &types.ConflictResolution{
		ID:           uuid.NewString(),
		AssessmentID: assessmentID,
		QuestionID:   questionID,
		Stored: types.Submission{
			UserID:      prev.UpdatedBy,
			Value:       prev.Value,
			SubmittedAt: prev.UpdatedAt,
		},
		Incoming: types.Submission{
			UserID:      userID,
			Value:       value,
			SubmittedAt: now,
		},
		DetectedAt: now,
	}
	if err := c.store.SaveConflict(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to record conflict: %w", err)
	}

	monitoring.ConflictsDetected.Inc()
	c.log.Warn("submission conflict detected",
		zap.String("assessment_id", assessmentID),
		zap.String("question_id", questionID),
		zap.String("stored_by", prev.UpdatedBy),
		zap.String("submitted_by", userID),
		zap.String("conflict_id", record.ID))

	return &types.SubmitResult{Accepted: true, Conflict: record}, nil
}

// ResolveConflict closes an open conflict with the chosen value. When the
// session is still live the final value is broadcast as answer_submitted so
// every participant converges on it.
func (c *Coordinator) ResolveConflict(ctx context.Context, conflictID, resolverID, value string) (*types.ConflictResolution, error) {
	now := c.clk.Now()
	record, err := c.store.ResolveConflict(ctx, conflictID, resolverID, value, now)
	if err != nil {
		return nil, err
	}

	if s := c.getSession(record.AssessmentID); s != nil {
		s.mu.Lock()
		s.lastActivity = now
		c.emit(newEvent(types.EventAnswerSubmitted, record.AssessmentID, resolverID, displayName(s, resolverID), now, map[string]any{
			"question_id": record.QuestionID,
			"value":       value,
			"conflict_id": record.ID,
		}))
		s.mu.Unlock()
	}
	return record, nil
}

// Comment appends a comment to a question. Comments are independent of lock
// state. The broadcast happens immediately; persistence is offloaded so the
// state machine never waits on the store.
func (c *Coordinator) Comment(assessmentID, questionID, userID, content string) (*types.Comment, error) {
	if !types.IsValidID(questionID) {
		return nil, types.ErrInvalidQuestionID
	}
	if err := types.ValidateCommentContent(content); err != nil {
		return nil, err
	}

	s := c.getSession(assessmentID)
	if s == nil {
		return nil, ErrSessionNotFound
	}

	s.mu.Lock()
	user, ok := s.users[userID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrUserNotFound
	}

	now := c.clk.Now()
	user.LastSeen = now
	s.lastActivity = now

	comment := &types.Comment{
		ID:           uuid.NewString(),
		AssessmentID: assessmentID,
		QuestionID:   questionID,
		AuthorID:     userID,
		AuthorName:   user.DisplayName,
		Content:      content,
		CreatedAt:    now,
	}

	c.emit(newEvent(types.EventCommentAdded, assessmentID, userID, user.DisplayName, now, map[string]any{
		"comment": comment,
	}))
	s.mu.Unlock()

	go func() {
		if err := c.store.SaveComment(context.Background(), comment); err != nil {
			c.log.Error("failed to persist comment",
				zap.String("comment_id", comment.ID),
				zap.Error(err))
		}
	}()
	return comment, nil
}
