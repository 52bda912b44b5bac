package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/openprocure/rfp-pilot/internal/ai"
	"github.com/openprocure/rfp-pilot/internal/logger"
	"github.com/openprocure/rfp-pilot/internal/rfp"
)

const comparatorInstruction = "You are an expert procurement analyst. Your primary goal is to provide a neutral, structured comparison of vendor proposals against a defined RFP. Prioritize compliance and value for money."

// Comparator produces the cross-proposal ranking for one RFP via Gemini.
type Comparator struct {
	generator jsonGenerator
	logger    *zap.Logger
	maxLogLen int
}

func NewComparator(generator jsonGenerator, log *zap.Logger, maxLogLength int) *Comparator {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Comparator{
		generator: generator,
		logger:    log,
		maxLogLen: maxLogLength,
	}
}

// Compare evaluates every candidate proposal against the RFP requirements and
// returns the comparator's ranking, per-proposal scores and rationale.
func (c *Comparator) Compare(ctx context.Context, requirements *rfp.RFPDocument, candidates []ai.Candidate) (*ai.Comparison, error) {
	if len(candidates) == 0 {
		return nil, &ai.ComparisonError{Reason: "no proposals to compare"}
	}

	requirementsJSON, err := json.MarshalIndent(requirements, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal rfp requirements: %w", err)
	}

	candidatesJSON, err := json.MarshalIndent(candidates, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal candidates: %w", err)
	}

	prompt := fmt.Sprintf(`Compare all provided vendor proposals against the original RFP requirements.

**Original RFP Requirements:**
%s

**Vendor Proposals (Structured Data):**
%s

**Instructions:**
1. Evaluate each proposal based on compliance with RFP requirements (e.g., item specs, warranty, delivery time) and overall value (price). Lower price and faster delivery are preferred. Full compliance (specs, warranty) is mandatory for a high score.
2. Generate a 'ranked' list of vendors from best to worst.
3. Generate detailed 'proposal_scores' using the provided proposal id for mapping back to storage.
4. Provide a detailed 'explanation_text' summary.
5. Create a simple, clear Markdown 'comparative_table'.
6. Output the result ONLY as a JSON object matching the requested comparison schema.`, requirementsJSON, candidatesJSON)

	c.logger.Debug("gemini comparison request",
		zap.String("model", c.generator.Model()),
		zap.Int("candidates", len(candidates)),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", logger.TruncateForLog(prompt, c.maxLogLen)),
	)

	raw, err := c.generator.GenerateJSON(ctx, prompt, comparatorInstruction, comparisonSchema)
	if err != nil {
		return nil, &ai.ComparisonError{Reason: "comparator call failed", Err: err}
	}

	c.logger.Debug("gemini comparison response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", logger.TruncateForLog(raw, c.maxLogLen)),
	)

	var comparison ai.Comparison
	if err := json.Unmarshal([]byte(extractJSON(raw)), &comparison); err != nil {
		return nil, &ai.ComparisonError{Reason: "response is not valid JSON", Err: err}
	}

	if len(comparison.Ranked) == 0 {
		return nil, &ai.ComparisonError{Reason: "comparator returned no ranking"}
	}
	if len(comparison.Scores) == 0 {
		return nil, &ai.ComparisonError{Reason: "comparator returned no proposal scores"}
	}
	if comparison.Explanation == "" {
		comparison.Explanation = "Comparative evaluation completed; explanation missing from provider response."
	}

	return &comparison, nil
}
