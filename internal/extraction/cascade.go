package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Tier selects which class of strategies extracts a document
type Tier string

const (
	// TierStandard reads the text layer and falls back to local OCR
	TierStandard Tier = "standard"
	// TierHigh transcribes rendered pages with a vision model
	TierHigh Tier = "high"
)

// ParseTier parses a tier name
func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierStandard:
		return TierStandard, nil
	case TierHigh:
		return TierHigh, nil
	default:
		return "", fmt.Errorf("unknown extraction tier %q", s)
	}
}

// Strategy extracts text from a whole document.
// An empty result means "nothing found" and lets the cascade move on; an error is fatal.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, doc Document) (string, error)
}

// Cascade runs an ordered list of strategies per tier until one yields text
type Cascade struct {
	tiers map[Tier][]Strategy
}

// NewCascade creates a Cascade with the given strategies for each tier
func NewCascade(standard, high []Strategy) *Cascade {
	return &Cascade{
		tiers: map[Tier][]Strategy{
			TierStandard: standard,
			TierHigh:     high,
		},
	}
}

// ExtractText returns the first non-blank strategy result for the tier, or "" when
// every strategy came back empty. Deciding what empty means is up to the caller.
func (c *Cascade) ExtractText(ctx context.Context, doc Document, tier Tier) (string, error) {
	strategies, ok := c.tiers[tier]
	if !ok {
		return "", fmt.Errorf("unknown extraction tier %q", tier)
	}

	for _, strategy := range strategies {
		text, err := strategy.Extract(ctx, doc)
		if err != nil {
			return "", fmt.Errorf("%s extraction: %w", strategy.Name(), err)
		}
		if strings.TrimSpace(text) != "" {
			slog.Info("Extracted text", "tier", tier, "strategy", strategy.Name(), "chars", len(text))
			return text, nil
		}
		slog.Info("Strategy found no text", "tier", tier, "strategy", strategy.Name())
	}

	return "", nil
}
