package receipt

import (
	"errors"
	"fmt"
	"time"

	"github.com/zombor/receipt-processor/internal/scanning"
)

// Reconciler keeps at most one receipt per file path
type Reconciler struct {
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewReconciler creates a Reconciler
func NewReconciler(idGen IDGenerator, timeSrc TimeSource) *Reconciler {
	return &Reconciler{
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// Upsert updates the receipt already tied to filePath or creates one. It must run
// inside a write transaction so the lookup and the save are not interleaved with
// another upsert for the same path.
func (r *Reconciler) Upsert(tx Tx, filePath string, fields *scanning.ExtractedFields, purchasedAt *time.Time) (*Receipt, error) {
	now := r.timeSource.Now()

	receipt, err := tx.FindReceiptByFilePath(filePath)
	switch {
	case errors.Is(err, ErrNotFound):
		receipt = &Receipt{
			ID:        r.idGenerator.Generate(),
			FilePath:  filePath,
			IsActive:  true,
			CreatedAt: now,
		}
	case err != nil:
		return nil, fmt.Errorf("finding receipt: %w", err)
	}

	// Reprocessing a file brings its receipt back
	receipt.IsActive = true
	receipt.MerchantName = fields.MerchantName
	receipt.TotalAmount = fields.TotalAmount
	receipt.PurchasedAt = purchasedAt
	receipt.StoreAddress = fields.StoreAddress
	receipt.PhoneNumber = fields.PhoneNumber
	receipt.StoreNumber = fields.StoreNumber
	receipt.CashierNumber = fields.CashierNumber
	receipt.BarcodeNum = fields.BarcodeNum
	receipt.Items = fields.Items
	receipt.PaymentDetails = fields.PaymentDetails
	receipt.AdditionalInfo = fields.AdditionalInfo
	receipt.UpdatedAt = now

	if err := tx.SaveReceipt(receipt); err != nil {
		return nil, fmt.Errorf("saving receipt: %w", err)
	}
	return receipt, nil
}
