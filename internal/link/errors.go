package link

import "errors"

// Domain-specific errors for the link.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrInvalidConfig is returned by New when the connection configuration is incomplete.
	ErrInvalidConfig = errors.New("link: invalid configuration")

	// ErrMissingCollaborator is returned by New when the transport or session is nil.
	ErrMissingCollaborator = errors.New("link: transport and session are required")

	// ErrAlreadyRunning is returned when Run is called more than once.
	ErrAlreadyRunning = errors.New("link: already running")
)
