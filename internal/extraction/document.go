package extraction

import (
	"fmt"

	"github.com/gen2brain/go-fitz"
)

// RenderDPI is the raster resolution used for OCR and vision pages
const RenderDPI = 300

// Document is an opened PDF. *fitz.Document satisfies it.
type Document interface {
	// NumPage returns the number of pages
	NumPage() int
	// Text returns the embedded text layer of a page
	Text(pageNumber int) (string, error)
	// HTML returns the positioned layout of a page as HTML
	HTML(pageNumber int, header bool) (string, error)
	// ImagePNG renders a page to PNG at the given DPI
	ImagePNG(pageNumber int, dpi float64) ([]byte, error)
	// Close releases the document handle
	Close() error
}

// Opener opens raw bytes as a Document
type Opener func(data []byte) (Document, error)

// OpenPDF opens PDF bytes with MuPDF
func OpenPDF(data []byte) (Document, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	return doc, nil
}
