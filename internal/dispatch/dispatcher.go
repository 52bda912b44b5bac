// Package dispatch sends an RFP out to selected vendors and reports
// evaluation outcomes back to the buyer.
package dispatch

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/openprocure/rfp-pilot/internal/mailer"
	"github.com/openprocure/rfp-pilot/internal/ranking"
	"github.com/openprocure/rfp-pilot/internal/rfp"
	"github.com/openprocure/rfp-pilot/internal/store"
)

// Mailer is the outbound notifier collaborator.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// VendorResult reports the per-vendor outcome of one dispatch run.
type VendorResult struct {
	VendorID uint   `json:"vendor_id"`
	Email    string `json:"email"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

type Deps struct {
	RFPs     store.RFPRepo
	Vendors  store.VendorRepo
	Statuses store.RFPVendorRepo
	Users    store.UserRepo
	Mailer   Mailer
	Logger   *zap.Logger
}

type Dispatcher struct {
	deps Deps
}

func New(deps Deps) *Dispatcher {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Dispatcher{deps: deps}
}

// Send mails the RFP to each vendor with the tagged subject and records the
// pair as sent. A vendor whose mail fails is reported but does not abort the
// remaining sends.
func (d *Dispatcher) Send(ctx context.Context, rfpID uint, vendorIDs []uint, template string) ([]VendorResult, error) {
	record, err := d.deps.RFPs.GetByID(ctx, rfpID)
	if err != nil {
		return nil, fmt.Errorf("load rfp %d: %w", rfpID, err)
	}
	if record == nil {
		return nil, fmt.Errorf("rfp %d: %w", rfpID, rfp.ErrUnknownRFP)
	}

	vendors, err := d.deps.Vendors.GetByIDs(ctx, vendorIDs)
	if err != nil {
		return nil, fmt.Errorf("load vendors: %w", err)
	}

	subject := fmt.Sprintf("RFP: %s %s", record.Title, mailer.SubjectTag(record.ID))
	body := template
	if strings.TrimSpace(body) == "" {
		body = fmt.Sprintf("Please review the RFP below and reply with your proposal.\n\n%s", record.Description)
	}

	results := make([]VendorResult, 0, len(vendors))
	for _, v := range vendors {
		result := VendorResult{VendorID: v.ID, Email: v.Email, Status: rfp.StatusSent}

		if err := d.deps.Mailer.Send(ctx, v.Email, subject, body); err != nil {
			d.deps.Logger.Warn("dispatch mail failed",
				zap.Uint("rfp_id", record.ID),
				zap.Uint("vendor_id", v.ID),
				zap.Error(err),
			)
			result.Status = "failed"
			result.Error = err.Error()
			results = append(results, result)
			continue
		}

		if err := d.deps.Statuses.MarkSent(ctx, record.ID, v.ID); err != nil {
			return results, fmt.Errorf("mark rfp %d vendor %d sent: %w", record.ID, v.ID, err)
		}

		results = append(results, result)
	}

	d.deps.Logger.Info("dispatched rfp",
		zap.Uint("rfp_id", record.ID),
		zap.Int("vendors", len(results)),
	)

	return results, nil
}

// NotifyOutcome mails the buyer the winning vendor and the comparison summary
// after an evaluation run. An RFP without an owner is skipped silently.
func (d *Dispatcher) NotifyOutcome(ctx context.Context, record *rfp.RFP, result *ranking.Result) error {
	if record == nil || result == nil || len(result.Ranked) == 0 {
		return nil
	}
	if record.UserID == nil {
		return nil
	}

	user, err := d.deps.Users.GetByID(ctx, *record.UserID)
	if err != nil {
		return fmt.Errorf("load rfp owner: %w", err)
	}
	if user == nil || user.Email == "" {
		return nil
	}

	top := result.Ranked[0]
	body := fmt.Sprintf(`Hello %s,

After evaluating all proposals for your RFP %q, the best vendor is:

Vendor: %s
Score: %.2f

Reasoning:
%s

Comparative table of all vendors:
%s

Detailed explanation:
%s
`, user.Name, record.Title, top.VendorName, top.Score, top.Reason, result.ComparativeTable, result.Explanation)

	subject := fmt.Sprintf("Best vendor for RFP: %s", record.Title)
	if err := d.deps.Mailer.Send(ctx, user.Email, subject, body); err != nil {
		return fmt.Errorf("notify buyer: %w", err)
	}

	return nil
}
