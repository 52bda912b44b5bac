// Package intake reconciles inbound vendor mail against RFP, vendor and
// proposal identity. Each message runs through a fixed-order pipeline: resolve
// the RFP from the subject tag, resolve the vendor from the sender address,
// persist the raw message, extract a structured proposal, then create or
// revise the single proposal for the (rfp, vendor) pair and move the dispatch
// status forward. The raw message is persisted before extraction and is never
// rolled back by a later failure.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/openprocure/rfp-pilot/internal/ai"
	"github.com/openprocure/rfp-pilot/internal/rfp"
	"github.com/openprocure/rfp-pilot/internal/scoring"
	"github.com/openprocure/rfp-pilot/internal/store"
)

// The subject tag convention: an RFPID:<n> token, case-insensitive, anywhere
// in the subject, with or without brackets.
var rfpTagPattern = regexp.MustCompile(`(?i)RFPID:\s*(\d+)`)

// PendingReevaluationSummary marks a revised proposal whose scores were reset
// and are waiting for the next comparative evaluation run.
const PendingReevaluationSummary = "Revision received, pending re-evaluation."

// InboundMessage is the raw inbound email shape consumed by the reconciler.
type InboundMessage struct {
	From      string `json:"from"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	MessageID string `json:"message_id"`
	InReplyTo string `json:"in_reply_to,omitempty"`
}

// Outcome reports what one ingested message produced. Created distinguishes a
// first proposal from a revision so callers can notify only on create.
type Outcome struct {
	RFP      *rfp.RFP
	Vendor   *rfp.Vendor
	Response *rfp.VendorResponse
	Proposal *rfp.Proposal
	Created  bool
}

// Config holds the deployment policy knobs for intake.
type Config struct {
	// AutoCreateVendors lets replies from unknown addresses create a vendor
	// record instead of being rejected.
	AutoCreateVendors bool
}

// Deps aggregates the collaborators the reconciler operates against.
type Deps struct {
	RFPs      store.RFPRepo
	Vendors   store.VendorRepo
	Responses store.VendorResponseRepo
	Proposals store.ProposalRepo
	Statuses  store.RFPVendorRepo
	Extractor ai.Extractor
	Logger    *zap.Logger
}

type Reconciler struct {
	cfg  Config
	deps Deps
}

func New(cfg Config, deps Deps) *Reconciler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Reconciler{cfg: cfg, deps: deps}
}

// Ingest runs the full reconciliation pipeline for one inbound message.
// Identity failures mutate nothing; extraction failures leave the persisted
// VendorResponse behind as the audit trail.
func (r *Reconciler) Ingest(ctx context.Context, msg *InboundMessage) (*Outcome, error) {
	if msg == nil {
		return nil, errors.New("inbound message is required")
	}

	rfpID, err := ParseRFPID(msg.Subject)
	if err != nil {
		return nil, err
	}

	record, err := r.deps.RFPs.GetByID(ctx, rfpID)
	if err != nil {
		return nil, fmt.Errorf("load rfp %d: %w", rfpID, err)
	}
	if record == nil {
		return nil, fmt.Errorf("rfp %d: %w", rfpID, rfp.ErrUnknownRFP)
	}

	vendor, err := r.resolveVendor(ctx, msg.From)
	if err != nil {
		return nil, err
	}

	response := &rfp.VendorResponse{
		RFPID:     record.ID,
		VendorID:  vendor.ID,
		Subject:   msg.Subject,
		Body:      msg.Body,
		MessageID: msg.MessageID,
		InReplyTo: msg.InReplyTo,
	}
	if err := r.deps.Responses.Create(ctx, response); err != nil {
		return nil, fmt.Errorf("persist vendor response: %w", err)
	}

	r.deps.Logger.Info("recorded vendor response",
		zap.Uint("rfp_id", record.ID),
		zap.Uint("vendor_id", vendor.ID),
		zap.String("message_id", msg.MessageID),
	)

	requirements, err := rfp.UnmarshalRFPDocument(record.Structured)
	if err != nil {
		return nil, fmt.Errorf("read rfp requirements: %w", err)
	}

	doc, err := r.deps.Extractor.ExtractProposal(ctx, requirements, msg.Body)
	if err != nil {
		// The raw response stays on record; no proposal is touched and the
		// dispatch status does not advance.
		return nil, err
	}

	outcome, err := r.upsertProposal(ctx, record, vendor, response, requirements, doc)
	if err != nil {
		return nil, err
	}

	if err := r.deps.Statuses.MarkResponded(ctx, record.ID, vendor.ID); err != nil {
		return nil, fmt.Errorf("mark rfp vendor responded: %w", err)
	}

	outcome.RFP = record
	outcome.Vendor = vendor
	outcome.Response = response

	return outcome, nil
}

func (r *Reconciler) resolveVendor(ctx context.Context, from string) (*rfp.Vendor, error) {
	email := NormalizeEmail(from)
	if email == "" {
		return nil, fmt.Errorf("empty sender address: %w", rfp.ErrUnknownVendor)
	}

	vendor, err := r.deps.Vendors.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("look up vendor %q: %w", email, err)
	}
	if vendor != nil {
		return vendor, nil
	}

	if !r.cfg.AutoCreateVendors {
		return nil, fmt.Errorf("%q: %w", email, rfp.ErrUnknownVendor)
	}

	vendor = &rfp.Vendor{Name: VendorNameFromEmail(email), Email: email}
	if err := r.deps.Vendors.Create(ctx, vendor); err != nil {
		// Concurrent intake from the same address created it first.
		if errors.Is(err, rfp.ErrConflict) {
			return r.deps.Vendors.GetByEmail(ctx, email)
		}
		return nil, fmt.Errorf("create vendor %q: %w", email, err)
	}

	r.deps.Logger.Info("auto-created vendor",
		zap.Uint("vendor_id", vendor.ID),
		zap.String("email", email),
	)

	return vendor, nil
}

// upsertProposal enforces the one-live-proposal-per-pair rule. A concurrent
// create losing the uniqueness race is retried as an update instead of being
// surfaced to the caller.
func (r *Reconciler) upsertProposal(ctx context.Context, record *rfp.RFP, vendor *rfp.Vendor, response *rfp.VendorResponse, requirements *rfp.RFPDocument, doc *rfp.ProposalDocument) (*Outcome, error) {
	existing, err := r.deps.Proposals.GetByPair(ctx, record.ID, vendor.ID)
	if err != nil {
		return nil, fmt.Errorf("look up proposal: %w", err)
	}

	structured, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal proposal document: %w", err)
	}

	if existing == nil {
		det, _ := scoring.Score(requirements, doc)

		proposal := &rfp.Proposal{
			RFPID:             record.ID,
			VendorID:          vendor.ID,
			VendorResponseID:  &response.ID,
			Structured:        structured,
			TotalPrice:        doc.GrandTotal,
			DeliveryDays:      doc.ShippingDays,
			PaymentTerms:      doc.PaymentTerms,
			WarrantyMonths:    doc.WarrantyMonths,
			Currency:          doc.Currency,
			CompletenessScore: det,
			Score:             det,
			ReceivedAt:        response.ReceivedAt,
		}

		err = r.deps.Proposals.Create(ctx, proposal)
		if err == nil {
			r.deps.Logger.Info("created proposal",
				zap.Uint("proposal_id", proposal.ID),
				zap.Uint("rfp_id", record.ID),
				zap.Uint("vendor_id", vendor.ID),
				zap.Float64("deterministic_score", det),
			)
			return &Outcome{Proposal: proposal, Created: true}, nil
		}
		if !errors.Is(err, rfp.ErrConflict) {
			return nil, fmt.Errorf("create proposal: %w", err)
		}

		// Someone else created the pair between lookup and insert; fall
		// through and revise that row instead.
		existing, err = r.deps.Proposals.GetByPair(ctx, record.ID, vendor.ID)
		if err != nil {
			return nil, fmt.Errorf("reload proposal after conflict: %w", err)
		}
		if existing == nil {
			return nil, fmt.Errorf("proposal conflict but pair not found: %w", rfp.ErrConflict)
		}
	}

	// Revision: replace the extracted fields in place, relink the fresh
	// response and reset the scores so the pair is re-evaluated before the
	// proposal is trusted again.
	existing.VendorResponseID = &response.ID
	existing.Structured = structured
	existing.TotalPrice = doc.GrandTotal
	existing.DeliveryDays = doc.ShippingDays
	existing.PaymentTerms = doc.PaymentTerms
	existing.WarrantyMonths = doc.WarrantyMonths
	existing.Currency = doc.Currency
	existing.CompletenessScore = 0
	existing.Score = 0
	existing.Summary = PendingReevaluationSummary
	existing.ReceivedAt = response.ReceivedAt

	if err := r.deps.Proposals.Update(ctx, existing); err != nil {
		return nil, fmt.Errorf("update proposal: %w", err)
	}

	r.deps.Logger.Info("revised proposal",
		zap.Uint("proposal_id", existing.ID),
		zap.Uint("rfp_id", record.ID),
		zap.Uint("vendor_id", vendor.ID),
	)

	return &Outcome{Proposal: existing, Created: false}, nil
}

// ParseRFPID extracts the numeric RFP id from a subject line tag.
func ParseRFPID(subject string) (uint, error) {
	m := rfpTagPattern.FindStringSubmatch(subject)
	if m == nil {
		return 0, fmt.Errorf("subject %q: %w", subject, rfp.ErrMissingRFPReference)
	}

	id, err := strconv.ParseUint(m[1], 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("subject %q: %w", subject, rfp.ErrMissingRFPReference)
	}

	return uint(id), nil
}

// NormalizeEmail lowercases and trims an address for natural-key matching.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// VendorNameFromEmail derives a display name from the address local part:
// dot-separated tokens are capitalized and concatenated, so
// "global.supplies@vendor.com" becomes "GlobalSupplies".
func VendorNameFromEmail(email string) string {
	local := email
	if at := strings.Index(email, "@"); at >= 0 {
		local = email[:at]
	}

	var b strings.Builder
	for _, part := range strings.Split(local, ".") {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}

	if b.Len() == 0 {
		return email
	}
	return b.String()
}
