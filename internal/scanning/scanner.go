package scanning

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrBackend is returned when a completion call fails or yields nothing usable
	ErrBackend = errors.New("extraction backend error")

	// ErrMalformedResponse is returned when the model reply cannot be read as receipt
	// fields. It is reported the same way as ErrBackend.
	ErrMalformedResponse = fmt.Errorf("%w: malformed model response", ErrBackend)
)

// Role tags a chat message
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// Part is one piece of message content: text or an embedded PNG image
type Part struct {
	Text     string
	ImagePNG []byte
}

// TextPart builds a text content part
func TextPart(text string) Part {
	return Part{Text: text}
}

// ImagePart builds an image content part from PNG bytes
func ImagePart(png []byte) Part {
	return Part{ImagePNG: png}
}

// IsImage reports whether the part carries an image
func (p Part) IsImage() bool {
	return len(p.ImagePNG) > 0
}

// Message is a role-tagged list of content parts
type Message struct {
	Role  Role
	Parts []Part
}

// CompletionOptions bounds a single completion call
type CompletionOptions struct {
	MaxTokens   int
	Temperature float32
}

// DefaultCompletionOptions are used for both page transcription and field structuring
var DefaultCompletionOptions = CompletionOptions{
	MaxTokens:   1000,
	Temperature: 0.5,
}

// Backend defines the interface for chat-completion style language model calls
type Backend interface {
	// Complete sends the messages and returns the text content of the first reply
	Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error)
	// Close closes the backend and releases resources
	Close() error
}
