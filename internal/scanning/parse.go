package scanning

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var compiledFieldsSchema = jsonschema.MustCompileString("receipt_fields.json", fieldsSchema)

// extractJSONObject returns the span between the first { and the last } of text
func extractJSONObject(text string) (string, error) {
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return "", fmt.Errorf("%w: no JSON object found in response", ErrMalformedResponse)
	}

	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return "", fmt.Errorf("%w: invalid JSON object in response", ErrMalformedResponse)
	}

	return text[startIdx : endIdx+1], nil
}

// parseFieldsJSON parses a model reply into ExtractedFields. Surrounding prose and
// markdown fences are tolerated.
func parseFieldsJSON(text string) (*ExtractedFields, error) {
	raw, err := extractJSONObject(text)
	if err != nil {
		return nil, err
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("%w: unmarshaling json: %v", ErrMalformedResponse, err)
	}

	if dropped := coerceFields(doc); len(dropped) > 0 {
		slog.Warn("Dropped unreadable receipt fields", "fields", dropped)
	}

	if err := compiledFieldsSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	normalized, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: re-encoding fields: %v", ErrMalformedResponse, err)
	}

	var fields ExtractedFields
	if err := json.Unmarshal(normalized, &fields); err != nil {
		return nil, fmt.Errorf("%w: decoding fields: %v", ErrMalformedResponse, err)
	}

	return &fields, nil
}

// coerceFields fixes the scalar type slips models commonly make so the reply can
// still pass the schema. It returns the keys it had to drop.
func coerceFields(doc map[string]any) []string {
	var dropped []string

	for _, key := range stringFields {
		switch v := doc[key].(type) {
		case float64:
			doc[key] = strconv.FormatFloat(v, 'f', -1, 64)
		case string:
			s := strings.TrimSpace(v)
			if s == "" || strings.EqualFold(s, "null") {
				doc[key] = nil
			} else {
				doc[key] = s
			}
		}
	}

	if s, ok := doc["total_amount"].(string); ok {
		amount, err := parseAmount(s)
		if err != nil {
			doc["total_amount"] = nil
			dropped = append(dropped, "total_amount")
		} else {
			doc["total_amount"] = amount
		}
	}

	return dropped
}

// parseAmount reads strings like "$1,234.50" or "12.34 USD"
func parseAmount(s string) (float64, error) {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			return r
		}
		return -1
	}, s)
	if cleaned == "" {
		return 0, fmt.Errorf("no digits in amount %q", s)
	}
	return strconv.ParseFloat(cleaned, 64)
}
