package gateway

import "errors"

var (
	ErrConnectionClosed = errors.New("connection is closed")
	ErrInvalidJSON      = errors.New("failed to marshal message")
	ErrWriteTimeout     = errors.New("write timed out")
	ErrNilConnection    = errors.New("connection is nil")
)
