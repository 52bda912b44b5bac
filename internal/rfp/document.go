package rfp

import (
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// RFPDocument is the validated shape of an extracted RFP. Optional fields are
// pointers so "not mentioned" stays distinguishable from zero.
type RFPDocument struct {
	Title          string          `json:"title"`
	TotalBudget    *float64        `json:"total_budget,omitempty"`
	Currency       string          `json:"currency,omitempty"`
	DeliveryDays   *int            `json:"delivery_days,omitempty"`
	PaymentTerms   string          `json:"payment_terms,omitempty"`
	WarrantyMonths *int            `json:"warranty_months,omitempty"`
	Items          []RequestedItem `json:"items"`
}

// RequestedItem is one line item the buyer asked for, in RFP order.
type RequestedItem struct {
	Name  string `json:"name"`
	Qty   int    `json:"qty"`
	Unit  string `json:"unit"`
	Specs string `json:"specs,omitempty"`
}

// ProposalDocument is the validated shape of an extracted vendor proposal.
type ProposalDocument struct {
	GrandTotal     float64       `json:"grand_total"`
	Currency       string        `json:"currency,omitempty"`
	ShippingDays   *int          `json:"shipping_days,omitempty"`
	PaymentTerms   string        `json:"payment_terms,omitempty"`
	WarrantyMonths *int          `json:"warranty_months,omitempty"`
	Items          []OfferedItem `json:"items,omitempty"`
}

// OfferedItem is one line item quoted by the vendor.
type OfferedItem struct {
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unit_price"`
	Qty       int     `json:"qty"`
	Total     float64 `json:"total"`
	Specs     string  `json:"specs,omitempty"`
}

// DecodeRFPDocument converts a loosely-typed payload (parsed provider output or
// a structured_json column) into a typed document. Decoding is weakly typed
// because models occasionally quote numbers as strings.
func DecodeRFPDocument(payload map[string]any) (*RFPDocument, error) {
	var doc RFPDocument
	if err := decodeDocument(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode rfp document: %w", err)
	}
	return &doc, nil
}

// DecodeProposalDocument converts a loosely-typed payload into a typed
// proposal document.
func DecodeProposalDocument(payload map[string]any) (*ProposalDocument, error) {
	var doc ProposalDocument
	if err := decodeDocument(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode proposal document: %w", err)
	}
	return &doc, nil
}

func decodeDocument(payload map[string]any, result any) error {
	cfg := &mapstructure.DecoderConfig{
		Result:           result,
		TagName:          "json",
		WeaklyTypedInput: true,
	}

	decoder, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return err
	}

	return decoder.Decode(payload)
}

// UnmarshalRFPDocument reads a typed document back from a stored JSON column.
func UnmarshalRFPDocument(raw []byte) (*RFPDocument, error) {
	if len(raw) == 0 {
		return &RFPDocument{}, nil
	}

	var doc RFPDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal rfp document: %w", err)
	}
	return &doc, nil
}

// UnmarshalProposalDocument reads a typed proposal document back from a stored
// JSON column.
func UnmarshalProposalDocument(raw []byte) (*ProposalDocument, error) {
	if len(raw) == 0 {
		return &ProposalDocument{}, nil
	}

	var doc ProposalDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal proposal document: %w", err)
	}
	return &doc, nil
}
