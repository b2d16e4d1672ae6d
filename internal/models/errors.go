// Package models defines the error taxonomy surfaced by the engine.
package models

import "errors"

// Error variables for better error handling and testability.
// Every failure path out of the engine maps to exactly one of these.
var (
	// ErrInvalidInput marks malformed or empty requests; no state is mutated.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflictingState marks an attempted mutation of a TERMINATED conversation.
	ErrConflictingState = errors.New("conflicting state: conversation is terminated")
	// ErrClassificationUnavailable marks total classifier failure; the caller
	// decides the fallback reply.
	ErrClassificationUnavailable = errors.New("classification unavailable")
	// ErrGenerationUnavailable marks reply-generation failure; the directive
	// is still valid and the caller may retry generation independently.
	ErrGenerationUnavailable = errors.New("generation unavailable")
	// ErrStateTransitionCorrected is informational: the selector proposed an
	// invalid transition and the engine corrected it. The turn still completes.
	ErrStateTransitionCorrected = errors.New("state transition corrected")
	// ErrConversationNotFound marks a lookup of an unknown conversation id.
	ErrConversationNotFound = errors.New("conversation not found")
)
