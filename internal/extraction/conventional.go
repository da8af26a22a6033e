package extraction

import (
	"context"
	"log/slog"
	"strings"
)

// ConventionalStrategy reads the embedded text layer and any detectable tables
// without rendering pages
type ConventionalStrategy struct{}

// NewConventionalStrategy creates a ConventionalStrategy
func NewConventionalStrategy() *ConventionalStrategy {
	return &ConventionalStrategy{}
}

// Name identifies the strategy in logs and errors
func (s *ConventionalStrategy) Name() string {
	return "conventional"
}

// Extract concatenates the text of every page. A page that fails to read
// contributes nothing.
func (s *ConventionalStrategy) Extract(ctx context.Context, doc Document) (string, error) {
	var b strings.Builder
	for i := 0; i < doc.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		text, err := doc.Text(i)
		if err != nil {
			slog.Warn("Failed to read page text", "page", i, "error", err)
			continue
		}
		b.WriteString(text)

		html, err := doc.HTML(i, false)
		if err != nil {
			slog.Warn("Failed to read page layout", "page", i, "error", err)
			continue
		}
		tables, err := detectTables(html)
		if err != nil {
			slog.Warn("Failed to detect tables", "page", i, "error", err)
			continue
		}
		b.WriteString(formatTables(tables))
	}
	return b.String(), nil
}
