package types

import "regexp"

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

const maxCommentBytes = 16 * 1024

// IsValidID reports whether s is usable as an assessment, question, or user
// identifier. The same character set applies to all three.
func IsValidID(s string) bool {
	return idRegex.MatchString(s)
}

// IsValidRole reports whether role is one the coordinator accepts.
func IsValidRole(role string) bool {
	switch role {
	case RoleAssessor, RoleReviewer, RoleAdmin:
		return true
	}
	return false
}

// Validate ensures the identity can participate in a session.
func (id *Identity) Validate() error {
	if !IsValidID(id.UserID) {
		return ErrInvalidUserID
	}
	if id.DisplayName == "" {
		return ErrEmptyDisplayName
	}
	if !IsValidRole(id.Role) {
		return ErrInvalidRole
	}
	return nil
}

// ValidateCommentContent checks comment body constraints.
func ValidateCommentContent(content string) error {
	if content == "" {
		return ErrEmptyComment
	}
	if len(content) > maxCommentBytes {
		return ErrCommentTooLarge
	}
	return nil
}
