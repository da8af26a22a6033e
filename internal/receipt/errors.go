package receipt

import "errors"

var (
	// ErrNotFound is returned when a file, its stored bytes, or an active receipt is missing
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned when the caller's input breaks a constraint
	ErrValidation = errors.New("validation failed")

	// ErrNoTextExtracted is returned when every extraction strategy came back empty
	ErrNoTextExtracted = errors.New("no text extracted")
)
