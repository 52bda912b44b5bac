package rfp

import "errors"

// Intake identity failures. Each one maps to a distinct user-facing message
// about which resolution step rejected the inbound mail.
var (
	// ErrMissingRFPReference means the subject line carried no parseable RFPID token.
	ErrMissingRFPReference = errors.New("no RFP reference found in subject")
	// ErrUnknownRFP means the referenced RFP id does not exist.
	ErrUnknownRFP = errors.New("referenced RFP not found")
	// ErrUnknownVendor means the sender address matched no vendor and
	// auto-creation is disabled.
	ErrUnknownVendor = errors.New("sender is not a known vendor")
	// ErrConflict is a uniqueness violation on a natural key. Callers racing on
	// create-or-update recover from it locally by retrying as an update.
	ErrConflict = errors.New("record already exists")
)
