package collab

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUserNotFound    = errors.New("user not in session")
)

// Denial reasons carried in LockResult. These reach the UI verbatim, so they
// read as sentences.
const (
	ReasonSessionNotFound = "session not found"
	ReasonLockHeld        = "question is locked by another user"
	ReasonNotLockOwner    = "not lock owner"
)
