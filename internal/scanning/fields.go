package scanning

// ExtractedFields contains the structured information a model read from receipt text.
// Every field is optional; the model may return null for any of them.
type ExtractedFields struct {
	MerchantName   *string          `json:"merchant_name"`
	TotalAmount    *float64         `json:"total_amount"`
	PurchasedAt    *string          `json:"purchased_at"` // raw, as returned by the model
	StoreAddress   *string          `json:"store_address"`
	PhoneNumber    *string          `json:"phone_number"`
	StoreNumber    *string          `json:"store_number"`
	CashierNumber  *string          `json:"cashier_number"`
	BarcodeNum     *string          `json:"barcode_num"`
	Items          []map[string]any `json:"items"`
	PaymentDetails map[string]any   `json:"payment_details"`
	AdditionalInfo map[string]any   `json:"additional_info"`
}

// stringFields lists the keys that must decode as nullable strings
var stringFields = []string{
	"merchant_name",
	"purchased_at",
	"store_address",
	"phone_number",
	"store_number",
	"cashier_number",
	"barcode_num",
}

// fieldsSchema describes the accepted shape of a model reply. Unknown keys are allowed
// and ignored; missing keys decode to nil.
const fieldsSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "merchant_name":  {"type": ["string", "null"]},
    "total_amount":   {"type": ["number", "null"]},
    "purchased_at":   {"type": ["string", "null"]},
    "store_address":  {"type": ["string", "null"]},
    "phone_number":   {"type": ["string", "null"]},
    "store_number":   {"type": ["string", "null"]},
    "cashier_number": {"type": ["string", "null"]},
    "barcode_num":    {"type": ["string", "null"]},
    "items": {
      "type": ["array", "null"],
      "items": {"type": "object"}
    },
    "payment_details": {"type": ["object", "null"]},
    "additional_info": {"type": ["object", "null"]}
  }
}`
