// Package store implements the assessment store the coordinator submits
// answers to. The store is the authority on read-modify-write conflicts: a
// submission carries the value the client last saw, and SaveAnswer reports
// whether that value still matched what was stored.
package store

import (
	"context"
	"errors"
	"time"

	"collabd/pkg/types"
)

var (
	ErrAnswerNotFound   = errors.New("answer not found")
	ErrConflictNotFound = errors.New("conflict not found")
	ErrConflictResolved = errors.New("conflict already resolved")
	ErrStoreClosed      = errors.New("store is closed")
)

// AnswerStore persists submitted answers, comments and conflict records.
//
// SaveAnswer is a compare-and-report upsert: the new value is always stored
// (last-editor-wins with audit), prev returns the answer it replaced, and
// conflict is true when prev was written by a different user and does not
// match expectedPrev. Neither write is lost — the caller archives both sides
// in a ConflictResolution.
type AnswerStore interface {
	SaveAnswer(ctx context.Context, assessmentID, questionID, userID, value, expectedPrev string, at time.Time) (prev *types.Answer, conflict bool, err error)
	GetAnswer(ctx context.Context, assessmentID, questionID string) (*types.Answer, error)

	SaveComment(ctx context.Context, comment *types.Comment) error
	SaveConflict(ctx context.Context, conflict *types.ConflictResolution) error
	GetConflict(ctx context.Context, conflictID string) (*types.ConflictResolution, error)
	// ResolveConflict closes an open conflict with the chosen value and
	// writes that value through as the stored answer.
	ResolveConflict(ctx context.Context, conflictID, resolvedBy, value string, at time.Time) (*types.ConflictResolution, error)

	HealthCheck(ctx context.Context) error
	Close() error
}
