// Package ranking merges the comparator's cross-proposal verdict into the
// stored per-proposal scores. The deterministic intake score is only a
// bootstrap signal: once the comparator has spoken for a proposal, its result
// wins, and proposals the comparator skipped keep whatever score they had.
package ranking

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/openprocure/rfp-pilot/internal/ai"
	"github.com/openprocure/rfp-pilot/internal/rfp"
	"github.com/openprocure/rfp-pilot/internal/store"
)

// Result is the outcome of one evaluation run. Updated and Missing together
// make a partially-applied batch detectable: every candidate id lands in
// exactly one of Updated, Missing, or Failed.
type Result struct {
	Ranked           []ai.RankedVendor `json:"ranked"`
	Explanation      string            `json:"explanation_text"`
	ComparativeTable string            `json:"comparative_table,omitempty"`
	Updated          []uint            `json:"updated_proposal_ids"`
	Missing          []uint            `json:"missing_proposal_ids,omitempty"`
	Failed           []uint            `json:"failed_proposal_ids,omitempty"`
}

type Merger struct {
	proposals  store.ProposalRepo
	comparator ai.Comparator
	logger     *zap.Logger
}

func New(proposals store.ProposalRepo, comparator ai.Comparator, log *zap.Logger) *Merger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Merger{proposals: proposals, comparator: comparator, logger: log}
}

// Evaluate runs the comparator over every live proposal of the RFP and writes
// the returned scores back one proposal at a time. The displayed order is the
// comparator's order; nothing is resorted by the deterministic score. A failed
// comparator call leaves every stored score untouched.
func (m *Merger) Evaluate(ctx context.Context, record *rfp.RFP) (*Result, error) {
	if record == nil {
		return nil, fmt.Errorf("rfp is required")
	}

	proposals, err := m.proposals.ListByRFP(ctx, record.ID)
	if err != nil {
		return nil, fmt.Errorf("list proposals for rfp %d: %w", record.ID, err)
	}
	if len(proposals) == 0 {
		return nil, &ai.ComparisonError{Reason: "no proposals received yet"}
	}

	requirements, err := rfp.UnmarshalRFPDocument(record.Structured)
	if err != nil {
		return nil, fmt.Errorf("read rfp requirements: %w", err)
	}

	candidates := make([]ai.Candidate, 0, len(proposals))
	for _, p := range proposals {
		doc, err := rfp.UnmarshalProposalDocument(p.Structured)
		if err != nil {
			return nil, fmt.Errorf("read proposal %d document: %w", p.ID, err)
		}

		name := ""
		if p.Vendor != nil {
			name = p.Vendor.Name
		}

		candidates = append(candidates, ai.Candidate{
			ProposalID:   p.ID,
			VendorID:     p.VendorID,
			VendorName:   name,
			Document:     doc,
			CurrentScore: p.Score,
		})
	}

	comparison, err := m.comparator.Compare(ctx, requirements, candidates)
	if err != nil {
		return nil, err
	}

	scoreByID := make(map[uint]ai.ProposalScore, len(comparison.Scores))
	for _, s := range comparison.Scores {
		scoreByID[s.ProposalID] = s
	}

	result := &Result{
		Ranked:           comparison.Ranked,
		Explanation:      comparison.Explanation,
		ComparativeTable: comparison.ComparativeTable,
	}

	for _, candidate := range candidates {
		score, ok := scoreByID[candidate.ProposalID]
		if !ok {
			// The comparator returned nothing for this id. Its prior score
			// stays in place rather than being blanked.
			m.logger.Warn("comparator returned no score for proposal",
				zap.Uint("proposal_id", candidate.ProposalID),
				zap.Uint("rfp_id", record.ID),
			)
			result.Missing = append(result.Missing, candidate.ProposalID)
			continue
		}

		if err := m.proposals.UpdateScores(ctx, candidate.ProposalID, score.Completeness, score.FinalScore, score.Summary); err != nil {
			m.logger.Warn("failed to apply comparator score",
				zap.Uint("proposal_id", candidate.ProposalID),
				zap.Error(err),
			)
			result.Failed = append(result.Failed, candidate.ProposalID)
			continue
		}

		result.Updated = append(result.Updated, candidate.ProposalID)
	}

	m.logger.Info("evaluation merged",
		zap.Uint("rfp_id", record.ID),
		zap.Int("updated", len(result.Updated)),
		zap.Int("missing", len(result.Missing)),
		zap.Int("failed", len(result.Failed)),
	)

	return result, nil
}
