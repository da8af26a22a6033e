package scanning

import "strings"

// pageTranscriptionPrompt is sent with every rendered page on the vision tier
const pageTranscriptionPrompt = "Extract all text from this image, preserving the document structure as much as possible."

// receiptFieldsPrompt is the shared instruction used to structure receipt text.
// The receipt text is appended after it by buildFieldsPrompt.
const receiptFieldsPrompt = `Extract the following information from the receipt text:
- merchant_name (string): Name of the merchant or store
- total_amount (float): Total amount spent
- purchased_at (string): Date and time of purchase in 'YYYY-MM-DD HH:MM:SS' format.
  - Parse any date/time format in the text (e.g., MM/DD/YYYY, DD-MM-YYYY, Month DD YYYY, HH:MM AM/PM, etc.).
  - If time is missing, assume 00:00:00.
  - If date is ambiguous or missing, return null.
- store_address (string): Store address, if available
- phone_number (string): Store phone number, if available
- store_number (string): Store number, if available
- cashier_number (string): Cashier number, if available
- barcode_num (string): Barcode number, if available
- items (list of objects): List of purchased items, each with at least 'name' and 'price', if available
- payment_details (object): Payment method and details, if available
- additional_info (object): Any additional receipt information, if available`

const receiptFieldsTemplate = `Return the output in JSON format with null for missing fields:
{
  "merchant_name": null,
  "total_amount": null,
  "purchased_at": null,
  "store_address": null,
  "phone_number": null,
  "store_number": null,
  "cashier_number": null,
  "barcode_num": null,
  "items": null,
  "payment_details": null,
  "additional_info": null
}`

// buildFieldsPrompt embeds the raw receipt text between the field list and the output template
func buildFieldsPrompt(text string) string {
	var b strings.Builder
	b.WriteString(receiptFieldsPrompt)
	b.WriteString("\n\nReceipt text:\n")
	b.WriteString(text)
	b.WriteString("\n\n")
	b.WriteString(receiptFieldsTemplate)
	return b.String()
}
