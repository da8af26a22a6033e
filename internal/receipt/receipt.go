package receipt

import "time"

// FileRecord tracks an uploaded receipt document
type FileRecord struct {
	ID            string    `json:"id"`
	FileName      string    `json:"file_name"`
	FilePath      string    `json:"file_path"` // storage locator, shared with Receipt.FilePath
	IsValid       bool      `json:"is_valid"`
	InvalidReason *string   `json:"invalid_reason"` // set iff IsValid is false
	IsProcessed   bool      `json:"is_processed"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// markValid clears any invalid reason
func (f *FileRecord) markValid(now time.Time) {
	f.IsValid = true
	f.InvalidReason = nil
	f.UpdatedAt = now
}

// markInvalid records why the file cannot be used
func (f *FileRecord) markInvalid(reason string, now time.Time) {
	f.IsValid = false
	f.InvalidReason = &reason
	f.UpdatedAt = now
}

// Receipt is the structured data extracted from one file
type Receipt struct {
	ID             string           `json:"id"`
	MerchantName   *string          `json:"merchant_name"`
	TotalAmount    *float64         `json:"total_amount"`
	PurchasedAt    *time.Time       `json:"purchased_at"`
	StoreAddress   *string          `json:"store_address"`
	PhoneNumber    *string          `json:"phone_number"`
	StoreNumber    *string          `json:"store_number"`
	CashierNumber  *string          `json:"cashier_number"`
	BarcodeNum     *string          `json:"barcode_num"`
	Items          []map[string]any `json:"items"`
	PaymentDetails map[string]any   `json:"payment_details"`
	AdditionalInfo map[string]any   `json:"additional_info"`
	FilePath       string           `json:"file_path"`
	IsActive       bool             `json:"is_active"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// ReceiptPage is one page of the active receipt listing
type ReceiptPage struct {
	Total   int        `json:"total"`
	Page    int        `json:"page"`
	Limit   int        `json:"limit"`
	Pages   int        `json:"pages"`
	Results []*Receipt `json:"results"`
}
