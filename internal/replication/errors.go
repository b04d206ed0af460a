package replication

import "errors"

// Domain errors.
var (
	ErrAlreadyStarted = errors.New("replication: relay already started")
	ErrInvalidChange  = errors.New("replication: invalid change message")
)
