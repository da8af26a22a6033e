package receipt

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Receipts"

var exportHeaders = []string{
	"Receipt ID",
	"Purchased At",
	"Merchant",
	"Total",
	"Store Address",
	"Phone",
	"Store #",
	"Items",
	"File Path",
}

// ExportReceipts writes every active receipt to w as an XLSX workbook
func (s *Service) ExportReceipts(w io.Writer) error {
	var receipts []*Receipt
	err := s.db.View(func(tx Tx) error {
		var err error
		receipts, _, err = tx.ListReceipts(0, 0)
		return err
	})
	if err != nil {
		return fmt.Errorf("listing receipts: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	// Rename the default sheet so the workbook has exactly one
	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	headers := make([]any, len(exportHeaders))
	for i, h := range exportHeaders {
		headers[i] = h
	}
	if err := writeRow(f, exportSheet, 1, headers); err != nil {
		return err
	}

	for i, r := range receipts {
		if err := writeRow(f, exportSheet, i+2, receiptRow(r)); err != nil {
			return err
		}
	}

	widths := []struct {
		col   string
		width float64
	}{
		{"A", 38}, // id
		{"B", 20}, // date
		{"C", 28}, // merchant
		{"E", 40}, // address
		{"I", 48}, // path
	}
	for _, cw := range widths {
		if err := f.SetColWidth(exportSheet, cw.col, cw.col, cw.width); err != nil {
			return fmt.Errorf("sizing column %s: %w", cw.col, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

// receiptRow lays out one receipt in header order. Nil cells are left blank.
func receiptRow(r *Receipt) []any {
	row := []any{r.ID, nil, deref(r.MerchantName), nil, deref(r.StoreAddress), deref(r.PhoneNumber), deref(r.StoreNumber), len(r.Items), r.FilePath}
	if r.PurchasedAt != nil {
		row[1] = r.PurchasedAt.Format("2006-01-02 15:04:05")
	}
	if r.TotalAmount != nil {
		row[3] = *r.TotalAmount
	}
	return row
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	for i, v := range values {
		if v == nil {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return fmt.Errorf("cell for row %d: %w", row, err)
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("writing %s: %w", cell, err)
		}
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
