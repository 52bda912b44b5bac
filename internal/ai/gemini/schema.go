package gemini

import (
	"fmt"

	"google.golang.org/genai"
)

// Declarative shapes handed to the model as response schemas. The required
// subsets double as the post-parse validation contract: a response missing any
// required field is rejected as an extraction failure, never patched up.

var rfpSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"title":           {Type: genai.TypeString, Description: "A concise, descriptive title for the RFP."},
		"total_budget":    {Type: genai.TypeNumber, Description: "The total budgeted amount, if explicitly mentioned."},
		"currency":        {Type: genai.TypeString, Description: "The currency of the budget (e.g., USD, EUR)."},
		"delivery_days":   {Type: genai.TypeInteger, Description: "The required delivery time in days."},
		"payment_terms":   {Type: genai.TypeString, Description: "The required payment terms (e.g., Net 30, COD)."},
		"warranty_months": {Type: genai.TypeInteger, Description: "The minimum required warranty period in months."},
		"items": {
			Type:        genai.TypeArray,
			Description: "Detailed breakdown of items requested in the RFP.",
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"name":  {Type: genai.TypeString, Description: "The name of the item requested."},
					"qty":   {Type: genai.TypeInteger, Description: "Quantity requested."},
					"unit":  {Type: genai.TypeString, Description: "Unit of measurement (e.g., each, box, lot)."},
					"specs": {Type: genai.TypeString, Description: "Key specifications or technical requirements for the item."},
				},
				Required: []string{"name", "qty", "unit"},
			},
		},
	},
	Required: []string{"title", "items"},
}

var proposalSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"grand_total":     {Type: genai.TypeNumber, Description: "The total price quoted by the vendor."},
		"currency":        {Type: genai.TypeString, Description: "The currency of the quote (e.g., USD, EUR)."},
		"shipping_days":   {Type: genai.TypeInteger, Description: "The estimated delivery time in days."},
		"payment_terms":   {Type: genai.TypeString, Description: "The payment terms offered (e.g., Net 30, COD)."},
		"warranty_months": {Type: genai.TypeInteger, Description: "The warranty period in months."},
		"items": {
			Type:        genai.TypeArray,
			Description: "Detailed breakdown of items proposed.",
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"name":       {Type: genai.TypeString, Description: "The exact name of the product offered."},
					"unit_price": {Type: genai.TypeNumber, Description: "Price per unit."},
					"qty":        {Type: genai.TypeInteger, Description: "Quantity offered."},
					"total":      {Type: genai.TypeNumber, Description: "Total price for this item (unit_price * qty)."},
					"specs":      {Type: genai.TypeString, Description: "Detailed specifications offered for this item."},
				},
				Required: []string{"name", "unit_price", "qty", "total"},
			},
		},
	},
	Required: []string{"grand_total", "currency", "shipping_days"},
}

var comparisonSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"ranked": {
			Type:        genai.TypeArray,
			Description: "A list of vendors ranked by overall fit, best first.",
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"vendor_id":   {Type: genai.TypeInteger},
					"vendor_name": {Type: genai.TypeString},
					"score":       {Type: genai.TypeNumber, Description: "Final score from 0-100."},
					"reason":      {Type: genai.TypeString, Description: "A one-sentence reason for the ranking."},
				},
				Required: []string{"vendor_id", "vendor_name", "score"},
			},
		},
		"proposal_scores": {
			Type:        genai.TypeArray,
			Description: "Detailed scoring for each individual proposal, matching the proposal id from the input.",
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"id":                 {Type: genai.TypeInteger, Description: "The proposal id this score belongs to."},
					"completeness_score": {Type: genai.TypeNumber, Description: "Score (0-100) based on how many RFP requirements were met."},
					"final_score":        {Type: genai.TypeNumber, Description: "The computed final score (0-100), considering price, delivery, and compliance."},
					"summary":            {Type: genai.TypeString, Description: "A short (2-3 sentence) summary of the proposal's strengths and weaknesses."},
				},
				Required: []string{"id", "final_score", "summary"},
			},
		},
		"explanation_text": {
			Type:        genai.TypeString,
			Description: "A detailed paragraph summarizing the overall comparison and the recommendation for the winning vendor.",
		},
		"comparative_table": {
			Type:        genai.TypeString,
			Description: "A complete Markdown-formatted table comparing key metrics (Price, Delivery Time, Warranty) for all vendors.",
		},
	},
	Required: []string{"ranked", "proposal_scores", "explanation_text"},
}

// requireFields verifies that every required top-level key is present and
// non-nil in the parsed payload.
func requireFields(payload map[string]any, fields ...string) error {
	for _, field := range fields {
		value, ok := payload[field]
		if !ok || value == nil {
			return fmt.Errorf("required field %q is missing", field)
		}
	}
	return nil
}
