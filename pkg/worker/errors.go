package worker

import "errors"

var (
	ErrDispatcherNil  = errors.New("worker: dispatcher cannot be nil")
	ErrInvalidPayload = errors.New("worker: invalid task payload")
	ErrEnqueueFailed  = errors.New("worker: failed to enqueue task")
)
