package protocol

import "errors"

// Sentinel errors shared by the server and its clients. Wrap with %w and
// test with errors.Is.
var (
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrNotFound          = errors.New("ticket not found")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrTransientStore    = errors.New("ticket store unavailable")
)
