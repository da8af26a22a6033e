package receipt

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Validator checks that stored bytes are a usable PDF
type Validator interface {
	// Validate returns the page count, or an error describing why the document is invalid
	Validate(data []byte) (int, error)
}

// PDFValidator validates PDF structure with pdfcpu
type PDFValidator struct{}

// NewPDFValidator creates a PDFValidator
func NewPDFValidator() *PDFValidator {
	// Keep pdfcpu from creating a config directory under the user's home
	api.DisableConfigDir()
	return &PDFValidator{}
}

// config is built per call since pdfcpu records the running command on it
func (v *PDFValidator) config() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Validate parses and validates data as a PDF
func (v *PDFValidator) Validate(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("file is empty")
	}
	if err := api.Validate(bytes.NewReader(data), v.config()); err != nil {
		return 0, fmt.Errorf("invalid PDF: %w", err)
	}
	pages, err := api.PageCount(bytes.NewReader(data), v.config())
	if err != nil {
		return 0, fmt.Errorf("counting pages: %w", err)
	}
	return pages, nil
}
