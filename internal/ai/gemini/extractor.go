package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/openprocure/rfp-pilot/internal/ai"
	"github.com/openprocure/rfp-pilot/internal/logger"
	"github.com/openprocure/rfp-pilot/internal/rfp"
)

type jsonGenerator interface {
	GenerateJSON(ctx context.Context, prompt, systemInstruction string, schema *genai.Schema) (string, error)
	Model() string
}

const defaultMaxLogLength = 200

// Extractor is the structured-extraction provider built on Gemini JSON mode.
// Each call makes exactly one attempt against a fixed schema and either
// returns a fully validated document or fails.
type Extractor struct {
	generator jsonGenerator
	logger    *zap.Logger
	maxLogLen int
}

func NewExtractor(generator jsonGenerator, log *zap.Logger, maxLogLength int) *Extractor {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Extractor{
		generator: generator,
		logger:    log,
		maxLogLen: maxLogLength,
	}
}

// ExtractRFP mines a buyer's free-text procurement ask into an RFP document.
func (e *Extractor) ExtractRFP(ctx context.Context, text string) (*rfp.RFPDocument, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &ai.ExtractionError{Reason: "rfp text is empty"}
	}

	prompt := fmt.Sprintf(`Analyze the following Request for Proposal (RFP) text and extract the key requirements, budget, timeline, and item details.

**RFP Text:**
%s

**Instructions:**
1. Extract all specified fields and items.
2. Ensure the output strictly follows the required JSON schema.`, text)

	payload, err := e.generate(ctx, prompt, "", rfpSchema, "title", "items")
	if err != nil {
		return nil, fmt.Errorf("extract rfp: %w", err)
	}

	doc, err := rfp.DecodeRFPDocument(payload)
	if err != nil {
		return nil, &ai.ExtractionError{Reason: "response does not match the rfp schema", ProviderMessage: err.Error()}
	}

	return doc, nil
}

// ExtractProposal mines a vendor reply into a proposal document. The RFP
// requirements ride along in the prompt so offered item names get aligned to
// what was requested.
func (e *Extractor) ExtractProposal(ctx context.Context, requirements *rfp.RFPDocument, text string) (*rfp.ProposalDocument, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &ai.ExtractionError{Reason: "proposal text is empty"}
	}

	requirementsJSON := "{}"
	if requirements != nil {
		raw, err := json.MarshalIndent(requirements, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal rfp requirements: %w", err)
		}
		requirementsJSON = string(raw)
	}

	prompt := fmt.Sprintf(`Analyze the following vendor proposal text and extract structured data points.

**Original RFP Requirements (for context and item matching):**
%s

**Vendor Proposal Text (Extract data from here):**
%s

**Instructions:**
1. Extract the fields defined in the schema (grand_total, currency, shipping_days, etc.).
2. Create a detailed 'items' array, ensuring accurate matching and data extraction based on the proposal text.
3. Output the result ONLY as a JSON object matching the requested schema.`, requirementsJSON, text)

	payload, err := e.generate(ctx, prompt, "", proposalSchema, "grand_total", "currency", "shipping_days")
	if err != nil {
		return nil, fmt.Errorf("extract proposal: %w", err)
	}

	doc, err := rfp.DecodeProposalDocument(payload)
	if err != nil {
		return nil, &ai.ExtractionError{Reason: "response does not match the proposal schema", ProviderMessage: err.Error()}
	}

	return doc, nil
}

// generate makes a single JSON-mode call and parses the result into a loosely
// typed payload, verifying the required top-level fields are present.
func (e *Extractor) generate(ctx context.Context, prompt, systemInstruction string, schema *genai.Schema, required ...string) (map[string]any, error) {
	e.logger.Debug("gemini extraction request",
		zap.String("model", e.generator.Model()),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", logger.TruncateForLog(prompt, e.maxLogLen)),
	)

	raw, err := e.generator.GenerateJSON(ctx, prompt, systemInstruction, schema)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("gemini extraction response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", logger.TruncateForLog(raw, e.maxLogLen)),
	)

	cleaned := extractJSON(raw)

	var payload map[string]any
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, &ai.ExtractionError{
			Reason:          "response is not valid JSON",
			ProviderMessage: logger.TruncateForLog(raw, e.maxLogLen),
		}
	}

	if err := requireFields(payload, required...); err != nil {
		return nil, &ai.ExtractionError{
			Reason:          err.Error(),
			ProviderMessage: logger.TruncateForLog(cleaned, e.maxLogLen),
		}
	}

	return payload, nil
}

// extractJSON strips markdown code fences some models insist on wrapping
// around JSON-mode output.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}
