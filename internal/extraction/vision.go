package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/zombor/receipt-processor/internal/scanning"
)

// VisionStrategy transcribes every rendered page with a vision-capable backend.
// One failed page fails the document.
type VisionStrategy struct {
	backend     scanning.Backend
	dpi         float64
	concurrency int
}

// NewVisionStrategy creates a VisionStrategy issuing at most concurrency calls at once
func NewVisionStrategy(backend scanning.Backend, concurrency int) *VisionStrategy {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &VisionStrategy{
		backend:     backend,
		dpi:         RenderDPI,
		concurrency: concurrency,
	}
}

// Name identifies the strategy in logs and errors
func (s *VisionStrategy) Name() string {
	return "vision"
}

// Extract renders all pages, then transcribes them, keeping page order
func (s *VisionStrategy) Extract(ctx context.Context, doc Document) (string, error) {
	images := make([][]byte, doc.NumPage())
	for i := range images {
		png, err := doc.ImagePNG(i, s.dpi)
		if err != nil {
			return "", fmt.Errorf("%w: rendering page %d: %w", scanning.ErrBackend, i, err)
		}
		images[i] = png
	}

	pages := make([]string, len(images))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, png := range images {
		g.Go(func() error {
			text, err := scanning.TranscribePage(gctx, s.backend, png)
			if err != nil {
				return fmt.Errorf("transcribing page %d: %w", i, err)
			}
			pages[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if !errors.Is(err, scanning.ErrBackend) {
			err = fmt.Errorf("%w: %w", scanning.ErrBackend, err)
		}
		return "", err
	}

	return strings.Join(pages, "\n\n"), nil
}
