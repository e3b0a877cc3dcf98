package model

import "errors"

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")

	// ErrNoConversation marks a message that carries neither a channel nor
	// a DM reference. This is an invariant violation, never retried.
	ErrNoConversation = errors.New("message has no conversation reference")
)
