package model

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist
	ErrNotFound = errors.New("record not found")
	// ErrInvalidRequest is returned for malformed inbound notifications
	ErrInvalidRequest = errors.New("invalid request")
)

// ErrUnknownJob is returned for a job class without a handler. Such jobs are not retried.
var ErrUnknownJob = errors.New("unknown job class")
