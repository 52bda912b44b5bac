// Package scoring computes the local compliance score for one proposal
// against one RFP. It is pure: no provider calls, no storage, same inputs
// always produce the same score. The result seeds a proposal at intake time
// and stands in for the comparative ranking whenever that is unavailable.
package scoring

import (
	"math"

	"github.com/openprocure/rfp-pilot/internal/rfp"
)

// Breakdown records the points awarded per checkpoint.
type Breakdown struct {
	Price    float64 `json:"price"`
	Delivery float64 `json:"delivery"`
	Payment  float64 `json:"payment_terms"`
	Warranty float64 `json:"warranty"`
	Total    float64 `json:"total"`
	Max      float64 `json:"max"`
}

const maxPoints = 4.0

// Score awards one point each for price, delivery, payment terms and warranty,
// with half-credit for quoted-but-unfavorable values, and converts the sum to
// a 0-100 percentage rounded to two decimals.
func Score(requirements *rfp.RFPDocument, offer *rfp.ProposalDocument) (float64, Breakdown) {
	if requirements == nil {
		requirements = &rfp.RFPDocument{}
	}
	if offer == nil {
		offer = &rfp.ProposalDocument{}
	}

	b := Breakdown{Max: maxPoints}

	// 1. A positive grand total was quoted.
	if offer.GrandTotal > 0 {
		b.Price = 1
	}

	// 2. Delivery: full credit when the offer meets the requirement, half when
	// it is late but quoted, half when quoted with nothing to compare against.
	switch {
	case requirements.DeliveryDays != nil && offer.ShippingDays != nil:
		if *offer.ShippingDays <= *requirements.DeliveryDays {
			b.Delivery = 1
		} else {
			b.Delivery = 0.5
		}
	case offer.ShippingDays != nil:
		b.Delivery = 0.5
	}

	// 3. Payment terms were stated.
	if offer.PaymentTerms != "" {
		b.Payment = 1
	}

	// 4. Warranty meets the requirement (absent requirement counts as zero
	// months), half credit when quoted but insufficient.
	if offer.WarrantyMonths != nil {
		required := 0
		if requirements.WarrantyMonths != nil {
			required = *requirements.WarrantyMonths
		}
		if *offer.WarrantyMonths >= required {
			b.Warranty = 1
		} else {
			b.Warranty = 0.5
		}
	}

	b.Total = b.Price + b.Delivery + b.Payment + b.Warranty

	return round2(b.Total / maxPoints * 100), b
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
