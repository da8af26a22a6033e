package scanning

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Extractor turns raw receipt text into ExtractedFields with one backend call
type Extractor struct {
	backend Backend
	opts    CompletionOptions
}

// NewExtractor creates an Extractor using DefaultCompletionOptions
func NewExtractor(backend Backend) *Extractor {
	return &Extractor{
		backend: backend,
		opts:    DefaultCompletionOptions,
	}
}

// ExtractFields asks the model to structure the receipt text
func (e *Extractor) ExtractFields(ctx context.Context, text string) (*ExtractedFields, error) {
	messages := []Message{
		{Role: RoleUser, Parts: []Part{TextPart(buildFieldsPrompt(text))}},
	}

	reply, err := e.backend.Complete(ctx, messages, e.opts)
	if err != nil {
		return nil, fmt.Errorf("structuring receipt text: %w", err)
	}

	fields, err := parseFieldsJSON(reply)
	if err != nil {
		slog.Error("Failed to parse model reply", "reply_len", len(reply), "error", err)
		return nil, fmt.Errorf("parsing receipt fields: %w", err)
	}

	return fields, nil
}

// TranscribePage asks a vision model for the text of one rendered page
func TranscribePage(ctx context.Context, backend Backend, png []byte) (string, error) {
	messages := []Message{
		{Role: RoleUser, Parts: []Part{TextPart(pageTranscriptionPrompt), ImagePart(png)}},
	}

	reply, err := backend.Complete(ctx, messages, DefaultCompletionOptions)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}
