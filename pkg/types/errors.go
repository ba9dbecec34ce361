package types

import "errors"

var (
	ErrInvalidAssessmentID = errors.New("assessment ID must be 1-64 characters, alphanumeric plus underscore/hyphen")
	ErrInvalidQuestionID   = errors.New("question ID must be 1-64 characters, alphanumeric plus underscore/hyphen")
	ErrInvalidUserID       = errors.New("user ID must be 1-64 characters, alphanumeric plus underscore/hyphen")
	ErrInvalidRole         = errors.New("role must be one of assessor, reviewer, admin")
	ErrEmptyDisplayName    = errors.New("display name cannot be empty")
	ErrEmptyComment        = errors.New("comment content cannot be empty")
	ErrCommentTooLarge     = errors.New("comment content exceeds 16KB limit")
)
