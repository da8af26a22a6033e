package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// OCRConfig configures local OCR with the tesseract CLI
type OCRConfig struct {
	Tesseract   string  // binary name or absolute path; default "tesseract"
	Language    string  // default "eng"
	TessdataDir string  // optional --tessdata-dir
	DPI         float64 // default RenderDPI
	TempDir     string  // where page images are written; default os.TempDir()
}

// OCRStrategy renders each page and runs tesseract over it
type OCRStrategy struct {
	cfg    OCRConfig
	runner Runner
}

// NewOCRStrategy creates an OCRStrategy that shells out through runner
func NewOCRStrategy(cfg OCRConfig, runner Runner) *OCRStrategy {
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = RenderDPI
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &OCRStrategy{cfg: cfg, runner: runner}
}

// Name identifies the strategy in logs and errors
func (s *OCRStrategy) Name() string {
	return "ocr"
}

// Extract OCRs every page, joining page text with a blank line. A page that fails
// contributes nothing.
func (s *OCRStrategy) Extract(ctx context.Context, doc Document) (string, error) {
	pages := make([]string, 0, doc.NumPage())
	for i := 0; i < doc.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		text, err := s.ocrPage(ctx, doc, i)
		if err != nil {
			slog.Warn("Failed to OCR page", "page", i, "error", err)
			continue
		}
		pages = append(pages, text)
	}
	return strings.Join(pages, "\n\n"), nil
}

func (s *OCRStrategy) ocrPage(ctx context.Context, doc Document, page int) (string, error) {
	png, err := doc.ImagePNG(page, s.cfg.DPI)
	if err != nil {
		return "", fmt.Errorf("rendering page: %w", err)
	}

	f, err := os.CreateTemp(s.cfg.TempDir, "receipt-page-*.png")
	if err != nil {
		return "", fmt.Errorf("creating page image: %w", err)
	}
	path := f.Name()
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			slog.Warn("Failed to remove page image", "path", path, "error", err)
		}
	}()

	if _, err := f.Write(png); err != nil {
		f.Close()
		return "", fmt.Errorf("writing page image: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing page image: %w", err)
	}

	// tesseract <file> stdout -l <lang>
	args := []string{path, "stdout", "-l", s.cfg.Language}
	if s.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", s.cfg.TessdataDir)
	}
	out, _, err := s.runner.Run(ctx, s.cfg.Tesseract, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}
