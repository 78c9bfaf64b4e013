package domain

import "errors"

// Tracking errors
var (
	ErrFileNotFound      = errors.New("file tracking not found")
	ErrInvalidState      = errors.New("operation not legal in current state")
	ErrNotAssigned       = errors.New("employee is not the assigned worker")
	ErrIllegalTransition = errors.New("illegal transition: target stage not reachable from current stage")
	ErrInvalidStage      = errors.New("invalid stage")
)
