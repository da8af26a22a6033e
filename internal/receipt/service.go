package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/receipt-processor/internal/extraction"
	"github.com/zombor/receipt-processor/internal/scanning"
)

const (
	// DefaultMaxFileSize is the largest document accepted for processing
	DefaultMaxFileSize = 10 << 20
	// DefaultMaxPages is the largest page count accepted for processing
	DefaultMaxPages = 10

	maxListLimit = 100
)

// IDGenerator generates unique IDs for records
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// uuidGenerator generates random UUIDs
type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now().UTC()
}

// TextExtractor turns an opened document into raw text for a tier
type TextExtractor interface {
	ExtractText(ctx context.Context, doc extraction.Document, tier extraction.Tier) (string, error)
}

// FieldExtractor structures raw receipt text
type FieldExtractor interface {
	ExtractFields(ctx context.Context, text string) (*scanning.ExtractedFields, error)
}

// TierPolicy decides the extraction tier for a processing request
type TierPolicy interface {
	Tier(premiumRequested bool) extraction.Tier
}

// RequestTierPolicy trusts the caller's premium flag
type RequestTierPolicy struct{}

// Tier returns TierHigh for premium requests
func (RequestTierPolicy) Tier(premiumRequested bool) extraction.Tier {
	if premiumRequested {
		return extraction.TierHigh
	}
	return extraction.TierStandard
}

// FixedTierPolicy ignores the request and always uses one tier
type FixedTierPolicy struct {
	Fixed extraction.Tier
}

// Tier returns the fixed tier
func (p FixedTierPolicy) Tier(bool) extraction.Tier {
	return p.Fixed
}

// Pipeline holds the collaborators used to process a stored document
type Pipeline struct {
	Validator   Validator
	Open        extraction.Opener
	Text        TextExtractor
	Fields      FieldExtractor
	Tiers       TierPolicy
	MaxFileSize int64
	MaxPages    int
}

// Service handles receipt file and record operations
type Service struct {
	db          DB
	storage     Storage
	pipeline    Pipeline
	reconciler  *Reconciler
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with UUID ids and the wall clock
func NewService(db DB, storage Storage, pipeline Pipeline) *Service {
	return NewServiceWithDeps(db, storage, pipeline, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, storage Storage, pipeline Pipeline, idGen IDGenerator, timeSrc TimeSource) *Service {
	if pipeline.Open == nil {
		pipeline.Open = extraction.OpenPDF
	}
	if pipeline.Tiers == nil {
		pipeline.Tiers = RequestTierPolicy{}
	}
	if pipeline.MaxFileSize <= 0 {
		pipeline.MaxFileSize = DefaultMaxFileSize
	}
	if pipeline.MaxPages <= 0 {
		pipeline.MaxPages = DefaultMaxPages
	}
	return &Service{
		db:          db,
		storage:     storage,
		pipeline:    pipeline,
		reconciler:  NewReconciler(idGen, timeSrc),
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	filename = filepath.Base(filename)
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filename, filepath.Ext(filename))

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = repeatedSpaces.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "receipt"
	}

	return base + ext
}

func isPDFName(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

// Upload stores a PDF under its sanitized name and records whether it is valid.
// Uploading the same name again replaces the bytes and updates the existing record.
func (s *Service) Upload(filename string, data []byte) (*FileRecord, error) {
	if !isPDFName(filename) {
		return nil, fmt.Errorf("%w: only PDF files are allowed", ErrValidation)
	}
	name := sanitizeFilename(filename)

	locator, err := s.storage.Save(name, data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	validationErr := s.validate(data)
	now := s.timeSource.Now()

	var file *FileRecord
	err = s.db.Update(func(tx Tx) error {
		existing, err := tx.FindFileByName(name)
		switch {
		case errors.Is(err, ErrNotFound):
			file = &FileRecord{
				ID:        s.idGenerator.Generate(),
				FileName:  name,
				CreatedAt: now,
			}
		case err != nil:
			return err
		default:
			file = existing
		}

		file.FilePath = locator
		if validationErr != nil {
			file.markInvalid(validationErr.Error(), now)
		} else {
			file.markValid(now)
		}
		return tx.SaveFile(file)
	})
	if err != nil {
		if delErr := s.storage.Delete(locator); delErr != nil {
			slog.Warn("Failed to delete file", "path", locator, "error", delErr)
		}
		return nil, fmt.Errorf("saving file record: %w", err)
	}

	slog.Info("Uploaded receipt file", "file_id", file.ID, "file_name", file.FileName, "is_valid", file.IsValid)
	return file, nil
}

// validate checks size and structure of a document
func (s *Service) validate(data []byte) error {
	if len(data) == 0 {
		return errors.New("file is empty")
	}
	if int64(len(data)) > s.pipeline.MaxFileSize {
		return fmt.Errorf("file is larger than %d bytes", s.pipeline.MaxFileSize)
	}
	if s.pipeline.Validator == nil {
		return nil
	}
	pages, err := s.pipeline.Validator.Validate(data)
	if err != nil {
		return err
	}
	if pages > s.pipeline.MaxPages {
		return fmt.Errorf("document has %d pages, at most %d allowed", pages, s.pipeline.MaxPages)
	}
	return nil
}

// Validate re-checks a stored file and records the outcome
func (s *Service) Validate(fileID string) (*FileRecord, error) {
	file, err := s.getFile(fileID)
	if err != nil {
		return nil, err
	}

	data, err := s.storage.Get(file.FilePath)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	validationErr := s.validate(data)
	now := s.timeSource.Now()

	err = s.db.Update(func(tx Tx) error {
		current, err := tx.GetFile(fileID)
		if err != nil {
			return err
		}
		if validationErr != nil {
			current.markInvalid(validationErr.Error(), now)
		} else {
			current.markValid(now)
		}
		file = current
		return tx.SaveFile(current)
	})
	if err != nil {
		return nil, fmt.Errorf("saving file record: %w", err)
	}
	return file, nil
}

func (s *Service) getFile(id string) (*FileRecord, error) {
	var file *FileRecord
	err := s.db.View(func(tx Tx) error {
		var err error
		file, err = tx.GetFile(id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("getting file: %w", err)
	}
	return file, nil
}

// Process extracts a receipt from a stored file and upserts it. Input problems are
// ErrNotFound or ErrValidation, an empty extraction is ErrNoTextExtracted, and
// anything else is an internal failure that leaves the records untouched.
func (s *Service) Process(ctx context.Context, fileID string, premiumRequested bool) (*Receipt, error) {
	file, err := s.getFile(fileID)
	if err != nil {
		return nil, err
	}

	data, err := s.storage.Get(file.FilePath)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	if !isPDFName(file.FileName) {
		return nil, fmt.Errorf("%w: only PDF files can be processed", ErrValidation)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: file is empty", ErrValidation)
	}
	if int64(len(data)) > s.pipeline.MaxFileSize {
		return nil, fmt.Errorf("%w: file is larger than %d bytes", ErrValidation, s.pipeline.MaxFileSize)
	}

	doc, err := s.pipeline.Open(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	defer func() {
		if err := doc.Close(); err != nil {
			slog.Warn("Failed to close document", "file_id", fileID, "error", err)
		}
	}()

	if pages := doc.NumPage(); pages > s.pipeline.MaxPages {
		return nil, fmt.Errorf("%w: document has %d pages, at most %d allowed", ErrValidation, pages, s.pipeline.MaxPages)
	}

	tier := s.pipeline.Tiers.Tier(premiumRequested)
	text, err := s.pipeline.Text.ExtractText(ctx, doc, tier)
	if err != nil {
		return nil, fmt.Errorf("extracting text: %w", err)
	}

	if strings.TrimSpace(text) == "" {
		if err := s.markUnreadable(fileID); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("file %s: %w", fileID, ErrNoTextExtracted)
	}

	fields, err := s.pipeline.Fields.ExtractFields(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("extracting fields: %w", err)
	}

	purchasedAt := NormalizeDate(fields.PurchasedAt)

	var receipt *Receipt
	err = s.db.Update(func(tx Tx) error {
		current, err := tx.GetFile(fileID)
		if err != nil {
			return err
		}

		receipt, err = s.reconciler.Upsert(tx, current.FilePath, fields, purchasedAt)
		if err != nil {
			return err
		}

		current.markValid(s.timeSource.Now())
		current.IsProcessed = true
		return tx.SaveFile(current)
	})
	if err != nil {
		return nil, fmt.Errorf("saving receipt: %w", err)
	}

	slog.Info("Processed receipt", "file_id", fileID, "receipt_id", receipt.ID, "tier", tier)
	return receipt, nil
}

// markUnreadable records that no text could be extracted from a file
func (s *Service) markUnreadable(fileID string) error {
	err := s.db.Update(func(tx Tx) error {
		file, err := tx.GetFile(fileID)
		if err != nil {
			return err
		}
		file.markInvalid(ErrNoTextExtracted.Error(), s.timeSource.Now())
		file.IsProcessed = true
		return tx.SaveFile(file)
	})
	if err != nil {
		return fmt.Errorf("marking file invalid: %w", err)
	}
	return nil
}

// GetReceipt retrieves an active receipt by ID
func (s *Service) GetReceipt(id string) (*Receipt, error) {
	var receipt *Receipt
	err := s.db.View(func(tx Tx) error {
		var err error
		receipt, err = tx.GetReceipt(id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	if !receipt.IsActive {
		return nil, fmt.Errorf("receipt %s is inactive: %w", id, ErrNotFound)
	}
	return receipt, nil
}

// ListReceipts returns one page of active receipts, oldest first
func (s *Service) ListReceipts(page, limit int) (*ReceiptPage, error) {
	if page < 1 {
		return nil, fmt.Errorf("%w: page must be at least 1", ErrValidation)
	}
	if limit < 1 || limit > maxListLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", ErrValidation, maxListLimit)
	}
	if page-1 > math.MaxInt/limit {
		return nil, fmt.Errorf("%w: page %d is out of range", ErrValidation, page)
	}

	var results []*Receipt
	var total int
	err := s.db.View(func(tx Tx) error {
		var err error
		results, total, err = tx.ListReceipts((page-1)*limit, limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}

	return &ReceiptPage{
		Total:   total,
		Page:    page,
		Limit:   limit,
		Pages:   (total + limit - 1) / limit,
		Results: results,
	}, nil
}
