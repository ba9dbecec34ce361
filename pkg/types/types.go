package types

import (
	"time"
)

// Event type constants. Every state change in a session is broadcast as
// exactly one of these.
const (
	EventUserJoined       = "user_joined"
	EventUserLeft         = "user_left"
	EventQuestionLocked   = "question_locked"
	EventQuestionUnlocked = "question_unlocked"
	EventAnswerSubmitted  = "answer_submitted"
	EventCommentAdded     = "comment_added"
	EventProgressUpdated  = "progress_updated"
	EventSectionChanged   = "section_changed"
)

// Participant roles accepted by the coordinator.
const (
	RoleAssessor = "assessor"
	RoleReviewer = "reviewer"
	RoleAdmin    = "admin"
)

// Identity is the verified caller identity supplied by the auth layer
// before any coordinator operation is invoked.
type Identity struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// SessionUser is one connected participant of an assessment session.
// A user reconnecting or opening a second tab collapses to the same entry,
// keyed by UserID.
type SessionUser struct {
	UserID            string    `json:"user_id"`
	DisplayName       string    `json:"display_name"`
	Role              string    `json:"role"`
	JoinedAt          time.Time `json:"joined_at"`
	LastSeen          time.Time `json:"last_seen"`
	Color             string    `json:"color"`
	CurrentQuestionID string    `json:"current_question_id,omitempty"`
}

// QuestionLock is an advisory, time-bounded claim that one user is editing
// a question. At most one live lock exists per question per session.
type QuestionLock struct {
	QuestionID string    `json:"question_id"`
	LockedBy   string    `json:"locked_by"`
	LockedAt   time.Time `json:"locked_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the lock no longer blocks other users.
func (l *QuestionLock) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// SessionSnapshot is a read-only copy of session state, used for late
// joiners and reconnect resync.
type SessionSnapshot struct {
	AssessmentID   string         `json:"assessment_id"`
	OrganizationID string         `json:"organization_id"`
	Users          []SessionUser  `json:"users"`
	Locks          []QuestionLock `json:"locks"`
	CurrentSection string         `json:"current_section,omitempty"`
	StartedAt      time.Time      `json:"started_at"`
	LastActivity   time.Time      `json:"last_activity"`
}

// Event is an immutable fact describing one state transition. Events for a
// session form a single ordered stream.
type Event struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	AssessmentID string         `json:"assessment_id"`
	UserID       string         `json:"user_id"`
	UserName     string         `json:"user_name"`
	Timestamp    time.Time      `json:"timestamp"`
	Data         map[string]any `json:"data,omitempty"`
}

// Comment is attached to a question, independent of lock state.
type Comment struct {
	ID           string    `json:"id"`
	AssessmentID string    `json:"assessment_id"`
	QuestionID   string    `json:"question_id"`
	AuthorID     string    `json:"author_id"`
	AuthorName   string    `json:"author_name"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"created_at"`
	Resolved     bool      `json:"resolved"`
}

// Answer is a submitted value for a question as seen by the answer store.
type Answer struct {
	AssessmentID string    `json:"assessment_id"`
	QuestionID   string    `json:"question_id"`
	Value        string    `json:"value"`
	UpdatedBy    string    `json:"updated_by"`
	UpdatedAt    time.Time `json:"updated_at"`
	Version      int64     `json:"version"`
}

// Submission is one side of a detected double-write.
type Submission struct {
	UserID      string    `json:"user_id"`
	Value       string    `json:"value"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// ConflictResolution records a detected race between two submissions for the
// same question. It stays open until explicitly resolved; neither write is
// discarded silently.
type ConflictResolution struct {
	ID            string     `json:"id"`
	AssessmentID  string     `json:"assessment_id"`
	QuestionID    string     `json:"question_id"`
	Stored        Submission `json:"stored"`
	Incoming      Submission `json:"incoming"`
	DetectedAt    time.Time  `json:"detected_at"`
	ResolvedValue string     `json:"resolved_value,omitempty"`
	ResolvedBy    string     `json:"resolved_by,omitempty"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
}

// IsResolved reports whether the conflict has been closed.
func (c *ConflictResolution) IsResolved() bool {
	return c.ResolvedAt != nil
}

// LockResult is returned by lock and unlock operations. A denial is a normal
// outcome, not an error: Denied carries a reason the UI can show and, for
// lock contention, the current holder.
type LockResult struct {
	Granted    bool          `json:"granted"`
	Reason     string        `json:"reason,omitempty"`
	HolderID   string        `json:"holder_id,omitempty"`
	HolderName string        `json:"holder_name,omitempty"`
	Lock       *QuestionLock `json:"lock,omitempty"`
}

// SubmitResult is returned by answer submission. Accepted is always true in
// the optimistic path; Conflict is set when the store reports that the value
// the client last saw is no longer the stored value.
type SubmitResult struct {
	Accepted bool                `json:"accepted"`
	Conflict *ConflictResolution `json:"conflict,omitempty"`
}

// ProgressUpdate carries the optional fields of an UpdateProgress call.
type ProgressUpdate struct {
	CurrentSection       *string  `json:"current_section,omitempty"`
	CompletionPercentage *float64 `json:"completion_percentage,omitempty"`
}
