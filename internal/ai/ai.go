package ai

import (
	"context"

	"github.com/openprocure/rfp-pilot/internal/rfp"
)

// Extractor turns free text into validated structured documents. A single
// attempt is made per call; retry policy belongs to the caller.
type Extractor interface {
	// ExtractRFP mines a buyer's free-text procurement ask.
	ExtractRFP(ctx context.Context, text string) (*rfp.RFPDocument, error)
	// ExtractProposal mines a vendor reply. The RFP requirements are passed as
	// context so item names can be aligned against what was asked for.
	ExtractProposal(ctx context.Context, requirements *rfp.RFPDocument, text string) (*rfp.ProposalDocument, error)
}

// Candidate is one live proposal reduced to what the comparator needs.
type Candidate struct {
	ProposalID   uint                  `json:"id"`
	VendorID     uint                  `json:"vendor_id"`
	VendorName   string                `json:"vendor_name"`
	Document     *rfp.ProposalDocument `json:"proposal"`
	CurrentScore float64               `json:"score"`
}

// RankedVendor is one entry of the comparator's best-first ordering.
type RankedVendor struct {
	VendorID   uint    `json:"vendor_id"`
	VendorName string  `json:"vendor_name"`
	Score      float64 `json:"score"`
	Reason     string  `json:"reason,omitempty"`
}

// ProposalScore carries the comparator's verdict for a single proposal,
// keyed by the proposal id it was handed in the candidate list.
type ProposalScore struct {
	ProposalID   uint    `json:"id"`
	Completeness float64 `json:"completeness_score"`
	FinalScore   float64 `json:"final_score"`
	Summary      string  `json:"summary"`
}

// Comparison is the full cross-proposal result for one RFP. ComparativeTable
// is human-readable text (markdown or similar) and opaque to the engine.
type Comparison struct {
	Ranked           []RankedVendor  `json:"ranked"`
	Scores           []ProposalScore `json:"proposal_scores"`
	Explanation      string          `json:"explanation_text"`
	ComparativeTable string          `json:"comparative_table,omitempty"`
}

// Comparator ranks all live proposals for one RFP against its requirements.
type Comparator interface {
	Compare(ctx context.Context, requirements *rfp.RFPDocument, candidates []Candidate) (*Comparison, error)
}
