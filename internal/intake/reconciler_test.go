package intake

import (
	"context"
	"errors"
	"testing"

	"gorm.io/datatypes"

	"github.com/openprocure/rfp-pilot/internal/rfp"
)

type fakeRFPRepo struct {
	records map[uint]*rfp.RFP
}

func (f *fakeRFPRepo) Create(_ context.Context, r *rfp.RFP) error {
	f.records[r.ID] = r
	return nil
}

func (f *fakeRFPRepo) GetByID(_ context.Context, id uint) (*rfp.RFP, error) {
	return f.records[id], nil
}

func (f *fakeRFPRepo) List(_ context.Context) ([]*rfp.RFP, error) {
	out := make([]*rfp.RFP, 0, len(f.records))
	for _, r := range f.records {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeRFPRepo) UpdateStructured(_ context.Context, _ uint, _ *rfp.RFPDocument) error {
	return nil
}

type fakeVendorRepo struct {
	vendors     map[string]*rfp.Vendor
	nextID      uint
	createErr   error
	createCalls int
}

func (f *fakeVendorRepo) Create(_ context.Context, v *rfp.Vendor) error {
	f.createCalls++
	if f.createErr != nil {
		return f.createErr
	}
	f.nextID++
	v.ID = f.nextID
	f.vendors[v.Email] = v
	return nil
}

func (f *fakeVendorRepo) GetByID(_ context.Context, id uint) (*rfp.Vendor, error) {
	for _, v := range f.vendors {
		if v.ID == id {
			return v, nil
		}
	}
	return nil, nil
}

func (f *fakeVendorRepo) GetByEmail(_ context.Context, email string) (*rfp.Vendor, error) {
	return f.vendors[NormalizeEmail(email)], nil
}

func (f *fakeVendorRepo) GetByIDs(_ context.Context, _ []uint) ([]*rfp.Vendor, error) {
	return nil, nil
}

func (f *fakeVendorRepo) List(_ context.Context) ([]*rfp.Vendor, error) {
	return nil, nil
}

type fakeResponseRepo struct {
	responses []*rfp.VendorResponse
	nextID    uint
}

func (f *fakeResponseRepo) Create(_ context.Context, vr *rfp.VendorResponse) error {
	f.nextID++
	vr.ID = f.nextID
	f.responses = append(f.responses, vr)
	return nil
}

func (f *fakeResponseRepo) ListByRFP(_ context.Context, rfpID uint) ([]*rfp.VendorResponse, error) {
	out := make([]*rfp.VendorResponse, 0)
	for _, vr := range f.responses {
		if vr.RFPID == rfpID {
			out = append(out, vr)
		}
	}
	return out, nil
}

type pairKey struct {
	rfpID    uint
	vendorID uint
}

type fakeProposalRepo struct {
	proposals map[pairKey]*rfp.Proposal
	nextID    uint

	// conflictOnCreate simulates losing the uniqueness race once: the first
	// Create fails with ErrConflict after inserting a competing row.
	conflictOnCreate bool
}

func (f *fakeProposalRepo) Create(_ context.Context, p *rfp.Proposal) error {
	key := pairKey{p.RFPID, p.VendorID}

	if f.conflictOnCreate {
		f.conflictOnCreate = false
		f.nextID++
		f.proposals[key] = &rfp.Proposal{
			ID:       f.nextID,
			RFPID:    p.RFPID,
			VendorID: p.VendorID,
			Score:    42,
		}
		return rfp.ErrConflict
	}

	if _, ok := f.proposals[key]; ok {
		return rfp.ErrConflict
	}

	f.nextID++
	p.ID = f.nextID
	f.proposals[key] = p
	return nil
}

func (f *fakeProposalRepo) GetByPair(_ context.Context, rfpID, vendorID uint) (*rfp.Proposal, error) {
	return f.proposals[pairKey{rfpID, vendorID}], nil
}

func (f *fakeProposalRepo) Update(_ context.Context, p *rfp.Proposal) error {
	f.proposals[pairKey{p.RFPID, p.VendorID}] = p
	return nil
}

func (f *fakeProposalRepo) UpdateScores(_ context.Context, id uint, completeness, score float64, summary string) error {
	for _, p := range f.proposals {
		if p.ID == id {
			p.CompletenessScore = completeness
			p.Score = score
			p.Summary = summary
			return nil
		}
	}
	return nil
}

func (f *fakeProposalRepo) ListByRFP(_ context.Context, rfpID uint) ([]*rfp.Proposal, error) {
	out := make([]*rfp.Proposal, 0)
	for _, p := range f.proposals {
		if p.RFPID == rfpID {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeStatusRepo struct {
	responded map[pairKey]bool
	sent      map[pairKey]bool
}

func (f *fakeStatusRepo) MarkSent(_ context.Context, rfpID, vendorID uint) error {
	f.sent[pairKey{rfpID, vendorID}] = true
	return nil
}

func (f *fakeStatusRepo) MarkResponded(_ context.Context, rfpID, vendorID uint) error {
	f.responded[pairKey{rfpID, vendorID}] = true
	return nil
}

func (f *fakeStatusRepo) GetByPair(_ context.Context, _, _ uint) (*rfp.RFPVendor, error) {
	return nil, nil
}

func (f *fakeStatusRepo) ListByRFP(_ context.Context, _ uint) ([]*rfp.RFPVendor, error) {
	return nil, nil
}

type stubExtractor struct {
	doc   *rfp.ProposalDocument
	err   error
	calls int
}

func (s *stubExtractor) ExtractRFP(_ context.Context, _ string) (*rfp.RFPDocument, error) {
	return nil, errors.New("not used")
}

func (s *stubExtractor) ExtractProposal(_ context.Context, _ *rfp.RFPDocument, _ string) (*rfp.ProposalDocument, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.doc, nil
}

type fixture struct {
	rfps      *fakeRFPRepo
	vendors   *fakeVendorRepo
	responses *fakeResponseRepo
	proposals *fakeProposalRepo
	statuses  *fakeStatusRepo
	extractor *stubExtractor
}

func intPtr(v int) *int { return &v }

func newFixture() *fixture {
	structured := datatypes.JSON([]byte(`{"title": "Office chairs", "delivery_days": 30, "warranty_months": 12, "items": [{"name": "Ergonomic chair", "qty": 40, "unit": "pcs"}]}`))

	return &fixture{
		rfps: &fakeRFPRepo{records: map[uint]*rfp.RFP{
			7: {ID: 7, Title: "Office chairs", Structured: structured},
		}},
		vendors: &fakeVendorRepo{vendors: map[string]*rfp.Vendor{
			"sales@acme.com": {ID: 1, Name: "Acme", Email: "sales@acme.com"},
		}, nextID: 1},
		responses: &fakeResponseRepo{},
		proposals: &fakeProposalRepo{proposals: map[pairKey]*rfp.Proposal{}},
		statuses:  &fakeStatusRepo{responded: map[pairKey]bool{}, sent: map[pairKey]bool{}},
		extractor: &stubExtractor{doc: &rfp.ProposalDocument{
			GrandTotal:     4200,
			Currency:       "USD",
			ShippingDays:   intPtr(21),
			PaymentTerms:   "Net 30",
			WarrantyMonths: intPtr(24),
		}},
	}
}

func (f *fixture) reconciler(cfg Config) *Reconciler {
	return New(cfg, Deps{
		RFPs:      f.rfps,
		Vendors:   f.vendors,
		Responses: f.responses,
		Proposals: f.proposals,
		Statuses:  f.statuses,
		Extractor: f.extractor,
	})
}

func TestIngestCreatesProposal(t *testing.T) {
	f := newFixture()
	r := f.reconciler(Config{})

	outcome, err := r.Ingest(context.Background(), &InboundMessage{
		From:      "sales@acme.com",
		Subject:   "Re: RFP: Office chairs [RFPID:7]",
		Body:      "Our offer: 4200 USD, ships in 3 weeks, Net 30, 24 month warranty",
		MessageID: "<m1@acme.com>",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !outcome.Created {
		t.Fatalf("expected a created proposal")
	}
	if outcome.Proposal.TotalPrice != 4200 {
		t.Fatalf("unexpected total price: %v", outcome.Proposal.TotalPrice)
	}
	if outcome.Proposal.Score != 100 {
		t.Fatalf("expected seed score 100, got %v", outcome.Proposal.Score)
	}
	if outcome.Proposal.CompletenessScore != 100 {
		t.Fatalf("expected seed completeness 100, got %v", outcome.Proposal.CompletenessScore)
	}

	if len(f.responses.responses) != 1 {
		t.Fatalf("expected one recorded response, got %d", len(f.responses.responses))
	}
	if !f.statuses.responded[pairKey{7, 1}] {
		t.Fatalf("expected the pair to be marked responded")
	}
}

func TestIngestRevisionResetsScores(t *testing.T) {
	f := newFixture()
	r := f.reconciler(Config{})

	first, err := r.Ingest(context.Background(), &InboundMessage{
		From:      "sales@acme.com",
		Subject:   "[RFPID:7] proposal",
		Body:      "first offer",
		MessageID: "<m1@acme.com>",
	})
	if err != nil {
		t.Fatalf("unexpected error on first ingest: %v", err)
	}

	// Pretend an evaluation ran in between.
	first.Proposal.Score = 88
	first.Proposal.Summary = "Strong offer"

	f.extractor.doc = &rfp.ProposalDocument{GrandTotal: 3900, Currency: "USD"}

	second, err := r.Ingest(context.Background(), &InboundMessage{
		From:      "sales@acme.com",
		Subject:   "[RFPID:7] revised proposal",
		Body:      "better offer",
		MessageID: "<m2@acme.com>",
	})
	if err != nil {
		t.Fatalf("unexpected error on revision: %v", err)
	}

	if second.Created {
		t.Fatalf("expected a revision, not a create")
	}
	if second.Proposal.ID != first.Proposal.ID {
		t.Fatalf("expected the same proposal row, got %d and %d", first.Proposal.ID, second.Proposal.ID)
	}
	if second.Proposal.Score != 0 || second.Proposal.CompletenessScore != 0 {
		t.Fatalf("expected scores reset to zero, got %v / %v", second.Proposal.Score, second.Proposal.CompletenessScore)
	}
	if second.Proposal.Summary != PendingReevaluationSummary {
		t.Fatalf("unexpected summary: %s", second.Proposal.Summary)
	}
	if second.Proposal.TotalPrice != 3900 {
		t.Fatalf("expected revised price, got %v", second.Proposal.TotalPrice)
	}
	if second.Proposal.VendorResponseID == nil || *second.Proposal.VendorResponseID != second.Response.ID {
		t.Fatalf("expected proposal relinked to the fresh response")
	}

	if len(f.proposals.proposals) != 1 {
		t.Fatalf("expected one live proposal for the pair, got %d", len(f.proposals.proposals))
	}
	if len(f.responses.responses) != 2 {
		t.Fatalf("expected both raw responses kept, got %d", len(f.responses.responses))
	}
}

func TestIngestMissingSubjectTag(t *testing.T) {
	f := newFixture()
	r := f.reconciler(Config{})

	_, err := r.Ingest(context.Background(), &InboundMessage{
		From:    "sales@acme.com",
		Subject: "Re: your request",
		Body:    "an offer",
	})
	if !errors.Is(err, rfp.ErrMissingRFPReference) {
		t.Fatalf("expected missing reference error, got: %v", err)
	}

	if len(f.responses.responses) != 0 {
		t.Fatalf("expected nothing persisted, got %d responses", len(f.responses.responses))
	}
	if f.extractor.calls != 0 {
		t.Fatalf("expected no extraction, got %d calls", f.extractor.calls)
	}
}

func TestIngestUnknownRFP(t *testing.T) {
	f := newFixture()
	r := f.reconciler(Config{})

	_, err := r.Ingest(context.Background(), &InboundMessage{
		From:    "sales@acme.com",
		Subject: "[RFPID:99] proposal",
		Body:    "an offer",
	})
	if !errors.Is(err, rfp.ErrUnknownRFP) {
		t.Fatalf("expected unknown rfp error, got: %v", err)
	}
}

func TestIngestUnknownVendorRejected(t *testing.T) {
	f := newFixture()
	r := f.reconciler(Config{})

	_, err := r.Ingest(context.Background(), &InboundMessage{
		From:    "stranger@elsewhere.com",
		Subject: "[RFPID:7] proposal",
		Body:    "an offer",
	})
	if !errors.Is(err, rfp.ErrUnknownVendor) {
		t.Fatalf("expected unknown vendor error, got: %v", err)
	}

	if len(f.responses.responses) != 0 {
		t.Fatalf("expected nothing persisted, got %d responses", len(f.responses.responses))
	}
}

func TestIngestAutoCreatesVendor(t *testing.T) {
	f := newFixture()
	r := f.reconciler(Config{AutoCreateVendors: true})

	outcome, err := r.Ingest(context.Background(), &InboundMessage{
		From:    "Global.Supplies@Vendor.com",
		Subject: "[RFPID:7] our offer",
		Body:    "an offer",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if outcome.Vendor.Name != "GlobalSupplies" {
		t.Fatalf("unexpected derived vendor name: %s", outcome.Vendor.Name)
	}
	if outcome.Vendor.Email != "global.supplies@vendor.com" {
		t.Fatalf("expected the normalized address, got: %s", outcome.Vendor.Email)
	}
	if f.vendors.createCalls != 1 {
		t.Fatalf("expected one vendor create, got %d", f.vendors.createCalls)
	}
}

func TestIngestExtractionFailureKeepsResponse(t *testing.T) {
	f := newFixture()
	f.extractor.err = errors.New("provider exploded")
	r := f.reconciler(Config{})

	_, err := r.Ingest(context.Background(), &InboundMessage{
		From:      "sales@acme.com",
		Subject:   "[RFPID:7] proposal",
		Body:      "unparseable offer",
		MessageID: "<m1@acme.com>",
	})
	if err == nil {
		t.Fatalf("expected the extraction failure to surface")
	}

	if len(f.responses.responses) != 1 {
		t.Fatalf("expected the raw response kept, got %d", len(f.responses.responses))
	}
	if len(f.proposals.proposals) != 0 {
		t.Fatalf("expected no proposal, got %d", len(f.proposals.proposals))
	}
	if f.statuses.responded[pairKey{7, 1}] {
		t.Fatalf("expected the dispatch status untouched")
	}
}

func TestIngestCreateConflictRetriesAsUpdate(t *testing.T) {
	f := newFixture()
	f.proposals.conflictOnCreate = true
	r := f.reconciler(Config{})

	outcome, err := r.Ingest(context.Background(), &InboundMessage{
		From:    "sales@acme.com",
		Subject: "[RFPID:7] proposal",
		Body:    "an offer",
	})
	if err != nil {
		t.Fatalf("expected the conflict to be retried as an update, got: %v", err)
	}

	if outcome.Created {
		t.Fatalf("expected the outcome to be a revision of the winning row")
	}
	if outcome.Proposal.Score != 0 || outcome.Proposal.Summary != PendingReevaluationSummary {
		t.Fatalf("expected the competing row revised, got %+v", outcome.Proposal)
	}
	if len(f.proposals.proposals) != 1 {
		t.Fatalf("expected a single proposal row, got %d", len(f.proposals.proposals))
	}
}

func TestParseRFPID(t *testing.T) {
	cases := []struct {
		subject  string
		expected uint
		ok       bool
	}{
		{"Re: RFP: Office chairs [RFPID:48]", 48, true},
		{"rfpid: 7 proposal attached", 7, true},
		{"FW: RE: [rfpid:123]", 123, true},
		{"RFPID:0 is not a valid id", 0, false},
		{"no tag at all", 0, false},
		{"RFPID: abc", 0, false},
		{"", 0, false},
	}

	for _, tc := range cases {
		id, err := ParseRFPID(tc.subject)
		if tc.ok {
			if err != nil {
				t.Fatalf("subject %q: unexpected error: %v", tc.subject, err)
			}
			if id != tc.expected {
				t.Fatalf("subject %q: expected %d, got %d", tc.subject, tc.expected, id)
			}
			continue
		}
		if !errors.Is(err, rfp.ErrMissingRFPReference) {
			t.Fatalf("subject %q: expected missing reference error, got: %v", tc.subject, err)
		}
	}
}

func TestVendorNameFromEmail(t *testing.T) {
	cases := []struct {
		email    string
		expected string
	}{
		{"global.supplies@vendor.com", "GlobalSupplies"},
		{"sales@acme.com", "Sales"},
		{"a.b.c@x.io", "ABC"},
		{"noat", "Noat"},
	}

	for _, tc := range cases {
		if got := VendorNameFromEmail(tc.email); got != tc.expected {
			t.Fatalf("email %q: expected %q, got %q", tc.email, tc.expected, got)
		}
	}
}
