package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openprocure/rfp-pilot/internal/ai"
	"github.com/openprocure/rfp-pilot/internal/ranking"
	"github.com/openprocure/rfp-pilot/internal/rfp"
)

type fakeRFPRepo struct {
	record *rfp.RFP
}

func (f *fakeRFPRepo) Create(_ context.Context, _ *rfp.RFP) error { return nil }

func (f *fakeRFPRepo) GetByID(_ context.Context, id uint) (*rfp.RFP, error) {
	if f.record != nil && f.record.ID == id {
		return f.record, nil
	}
	return nil, nil
}

func (f *fakeRFPRepo) List(_ context.Context) ([]*rfp.RFP, error) { return nil, nil }

func (f *fakeRFPRepo) UpdateStructured(_ context.Context, _ uint, _ *rfp.RFPDocument) error {
	return nil
}

type fakeVendorRepo struct {
	vendors []*rfp.Vendor
}

func (f *fakeVendorRepo) Create(_ context.Context, _ *rfp.Vendor) error { return nil }

func (f *fakeVendorRepo) GetByID(_ context.Context, _ uint) (*rfp.Vendor, error) { return nil, nil }

func (f *fakeVendorRepo) GetByEmail(_ context.Context, _ string) (*rfp.Vendor, error) {
	return nil, nil
}

func (f *fakeVendorRepo) GetByIDs(_ context.Context, ids []uint) ([]*rfp.Vendor, error) {
	out := make([]*rfp.Vendor, 0)
	for _, v := range f.vendors {
		for _, id := range ids {
			if v.ID == id {
				out = append(out, v)
			}
		}
	}
	return out, nil
}

func (f *fakeVendorRepo) List(_ context.Context) ([]*rfp.Vendor, error) { return f.vendors, nil }

type fakeStatusRepo struct {
	sent [][2]uint
}

func (f *fakeStatusRepo) MarkSent(_ context.Context, rfpID, vendorID uint) error {
	f.sent = append(f.sent, [2]uint{rfpID, vendorID})
	return nil
}

func (f *fakeStatusRepo) MarkResponded(_ context.Context, _, _ uint) error { return nil }

func (f *fakeStatusRepo) GetByPair(_ context.Context, _, _ uint) (*rfp.RFPVendor, error) {
	return nil, nil
}

func (f *fakeStatusRepo) ListByRFP(_ context.Context, _ uint) ([]*rfp.RFPVendor, error) {
	return nil, nil
}

type fakeUserRepo struct {
	user *rfp.User
}

func (f *fakeUserRepo) Create(_ context.Context, _ *rfp.User) error { return nil }

func (f *fakeUserRepo) GetByID(_ context.Context, id uint) (*rfp.User, error) {
	if f.user != nil && f.user.ID == id {
		return f.user, nil
	}
	return nil, nil
}

type sentMail struct {
	to      string
	subject string
	body    string
}

type fakeMailer struct {
	mails []sentMail

	// failFor makes Send fail for one recipient address.
	failFor string
}

func (f *fakeMailer) Send(_ context.Context, to, subject, body string) error {
	if to == f.failFor {
		return errors.New("smtp refused")
	}
	f.mails = append(f.mails, sentMail{to: to, subject: subject, body: body})
	return nil
}

func newDispatcher(record *rfp.RFP, vendors []*rfp.Vendor, user *rfp.User, mail *fakeMailer) (*Dispatcher, *fakeStatusRepo) {
	statuses := &fakeStatusRepo{}
	d := New(Deps{
		RFPs:     &fakeRFPRepo{record: record},
		Vendors:  &fakeVendorRepo{vendors: vendors},
		Statuses: statuses,
		Users:    &fakeUserRepo{user: user},
		Mailer:   mail,
	})
	return d, statuses
}

func TestSendTagsSubjectAndMarksSent(t *testing.T) {
	record := &rfp.RFP{ID: 48, Title: "Office chairs", Description: "40 ergonomic chairs"}
	vendors := []*rfp.Vendor{
		{ID: 1, Name: "Acme", Email: "sales@acme.com"},
		{ID: 2, Name: "GlobalSupplies", Email: "global.supplies@vendor.com"},
	}
	mail := &fakeMailer{}
	d, statuses := newDispatcher(record, vendors, nil, mail)

	results, err := d.Send(context.Background(), 48, []uint{1, 2}, "")
	require.NoError(t, err)
	require.Len(t, results, 2)

	for _, result := range results {
		require.Equal(t, rfp.StatusSent, result.Status)
	}

	require.Len(t, mail.mails, 2)
	require.Equal(t, "RFP: Office chairs [RFPID:48]", mail.mails[0].subject)
	require.Contains(t, mail.mails[0].body, "40 ergonomic chairs")

	require.Equal(t, [][2]uint{{48, 1}, {48, 2}}, statuses.sent)
}

func TestSendCustomTemplate(t *testing.T) {
	record := &rfp.RFP{ID: 7, Title: "Laptops", Description: "ten laptops"}
	mail := &fakeMailer{}
	d, _ := newDispatcher(record, []*rfp.Vendor{{ID: 1, Email: "sales@acme.com"}}, nil, mail)

	_, err := d.Send(context.Background(), 7, []uint{1}, "Custom body here")
	require.NoError(t, err)
	require.Equal(t, "Custom body here", mail.mails[0].body)
}

func TestSendContinuesAfterMailFailure(t *testing.T) {
	record := &rfp.RFP{ID: 7, Title: "Laptops"}
	vendors := []*rfp.Vendor{
		{ID: 1, Email: "down@acme.com"},
		{ID: 2, Email: "up@vendor.com"},
	}
	mail := &fakeMailer{failFor: "down@acme.com"}
	d, statuses := newDispatcher(record, vendors, nil, mail)

	results, err := d.Send(context.Background(), 7, []uint{1, 2}, "")
	require.NoError(t, err)
	require.Len(t, results, 2)

	require.Equal(t, "failed", results[0].Status)
	require.NotEmpty(t, results[0].Error)
	require.Equal(t, rfp.StatusSent, results[1].Status)

	// Only the delivered vendor is marked sent.
	require.Equal(t, [][2]uint{{7, 2}}, statuses.sent)
}

func TestSendUnknownRFP(t *testing.T) {
	mail := &fakeMailer{}
	d, _ := newDispatcher(nil, nil, nil, mail)

	_, err := d.Send(context.Background(), 99, []uint{1}, "")
	require.ErrorIs(t, err, rfp.ErrUnknownRFP)
	require.Empty(t, mail.mails)
}

func TestNotifyOutcomeMailsBuyer(t *testing.T) {
	userID := uint(5)
	record := &rfp.RFP{ID: 7, Title: "Office chairs", UserID: &userID}
	user := &rfp.User{ID: 5, Name: "Dana", Email: "dana@buyer.com"}
	mail := &fakeMailer{}
	d, _ := newDispatcher(record, nil, user, mail)

	result := &ranking.Result{
		Ranked: []ai.RankedVendor{
			{VendorID: 2, VendorName: "GlobalSupplies", Score: 91.5, Reason: "best value"},
		},
		Explanation:      "GlobalSupplies wins.",
		ComparativeTable: "| Vendor | Price |",
	}

	require.NoError(t, d.NotifyOutcome(context.Background(), record, result))
	require.Len(t, mail.mails, 1)

	sent := mail.mails[0]
	require.Equal(t, "dana@buyer.com", sent.to)
	require.Equal(t, "Best vendor for RFP: Office chairs", sent.subject)
	require.True(t, strings.Contains(sent.body, "GlobalSupplies"))
	require.True(t, strings.Contains(sent.body, "91.50"))
	require.True(t, strings.Contains(sent.body, "GlobalSupplies wins."))
}

func TestNotifyOutcomeSkipsWithoutOwner(t *testing.T) {
	record := &rfp.RFP{ID: 7, Title: "Office chairs"}
	mail := &fakeMailer{}
	d, _ := newDispatcher(record, nil, nil, mail)

	result := &ranking.Result{Ranked: []ai.RankedVendor{{VendorID: 1, VendorName: "Acme"}}}

	require.NoError(t, d.NotifyOutcome(context.Background(), record, result))
	require.Empty(t, mail.mails)
}

func TestNotifyOutcomeSkipsEmptyRanking(t *testing.T) {
	userID := uint(5)
	record := &rfp.RFP{ID: 7, UserID: &userID}
	mail := &fakeMailer{}
	d, _ := newDispatcher(record, nil, &rfp.User{ID: 5, Email: "dana@buyer.com"}, mail)

	require.NoError(t, d.NotifyOutcome(context.Background(), record, &ranking.Result{}))
	require.Empty(t, mail.mails)
}
