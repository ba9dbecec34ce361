package store

import (
	"context"
	"sync"
	"time"

	"collabd/pkg/types"
)

// Memory is the in-process AnswerStore. It is the default driver and the one
// the coordinator tests run against.
type Memory struct {
	mu        sync.RWMutex
	answers   map[string]*types.Answer // assessmentID|questionID
	comments  []*types.Comment
	conflicts map[string]*types.ConflictResolution
}

func NewMemory() *Memory {
	return &Memory{
		answers:   make(map[string]*types.Answer),
		conflicts: make(map[string]*types.ConflictResolution),
	}
}

func answerKey(assessmentID, questionID string) string {
	return assessmentID + "|" + questionID
}

func (m *Memory) SaveAnswer(_ context.Context, assessmentID, questionID, userID, value, expectedPrev string, at time.Time) (*types.Answer, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := answerKey(assessmentID, questionID)
	var prev *types.Answer
	conflict := false
	version := int64(1)

	if stored, ok := m.answers[key]; ok {
		prevCopy := *stored
		prev = &prevCopy
		version = stored.Version + 1
		conflict = stored.UpdatedBy != userID && stored.Value != expectedPrev
	}

	m.answers[key] = &types.Answer{
		AssessmentID: assessmentID,
		QuestionID:   questionID,
		Value:        value,
		UpdatedBy:    userID,
		UpdatedAt:    at,
		Version:      version,
	}
	return prev, conflict, nil
}

func (m *Memory) GetAnswer(_ context.Context, assessmentID, questionID string) (*types.Answer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, ok := m.answers[answerKey(assessmentID, questionID)]
	if !ok {
		return nil, ErrAnswerNotFound
	}
	cp := *stored
	return &cp, nil
}

func (m *Memory) SaveComment(_ context.Context, comment *types.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *comment
	m.comments = append(m.comments, &cp)
	return nil
}

func (m *Memory) SaveConflict(_ context.Context, conflict *types.ConflictResolution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *conflict
	m.conflicts[conflict.ID] = &cp
	return nil
}

func (m *Memory) GetConflict(_ context.Context, conflictID string) (*types.ConflictResolution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conflicts[conflictID]
	if !ok {
		return nil, ErrConflictNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *Memory) ResolveConflict(_ context.Context, conflictID, resolvedBy, value string, at time.Time) (*types.ConflictResolution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conflicts[conflictID]
	if !ok {
		return nil, ErrConflictNotFound
	}
	if c.IsResolved() {
		return nil, ErrConflictResolved
	}

	c.ResolvedValue = value
	c.ResolvedBy = resolvedBy
	resolvedAt := at
	c.ResolvedAt = &resolvedAt

	key := answerKey(c.AssessmentID, c.QuestionID)
	version := int64(1)
	if stored, ok := m.answers[key]; ok {
		version = stored.Version + 1
	}
	m.answers[key] = &types.Answer{
		AssessmentID: c.AssessmentID,
		QuestionID:   c.QuestionID,
		Value:        value,
		UpdatedBy:    resolvedBy,
		UpdatedAt:    at,
		Version:      version,
	}

	cp := *c
	return &cp, nil
}

func (m *Memory) HealthCheck(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
