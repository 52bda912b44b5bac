package rfp

import (
	"time"

	"gorm.io/datatypes"
)

// RFPVendor dispatch states. Intake only ever moves a row forward; a revision
// arriving for an already responded pair is a no-op transition.
const (
	StatusSent      = "sent"
	StatusResponded = "responded"
)

// User is the buyer who owns RFPs and receives evaluation outcomes.
type User struct {
	ID    uint   `gorm:"primaryKey" json:"id"`
	Name  string `json:"name"`
	Email string `gorm:"size:320" json:"email"`
}

// RFP is a structured procurement ask created once from buyer free text.
// Structured holds the extracted RFPDocument; the scalar columns mirror it for
// cheap filtering and are refreshed whenever Structured is replaced.
type RFP struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	UserID         *uint          `gorm:"index" json:"user_id,omitempty"`
	Title          string         `json:"title"`
	Description    string         `gorm:"type:text" json:"description"`
	Structured     datatypes.JSON `json:"structured"`
	Budget         *float64       `json:"budget,omitempty"`
	Currency       string         `json:"currency,omitempty"`
	PaymentTerms   string         `json:"payment_terms,omitempty"`
	WarrantyMonths *int           `json:"warranty_months,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Vendor is matched on inbound mail by its case-normalized email address.
type Vendor struct {
	ID    uint   `gorm:"primaryKey" json:"id"`
	Name  string `json:"name"`
	Email string `gorm:"size:320;uniqueIndex" json:"email"`
}

// RFPVendor tracks the dispatch/response state between one RFP and one vendor.
type RFPVendor struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	RFPID       uint       `gorm:"column:rfp_id;uniqueIndex:idx_rfp_vendor_pair" json:"rfp_id"`
	VendorID    uint       `gorm:"uniqueIndex:idx_rfp_vendor_pair" json:"vendor_id"`
	Status      string     `gorm:"default:sent" json:"status"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
}

func (RFPVendor) TableName() string { return "rfp_vendors" }

// VendorResponse is the immutable audit record of one raw inbound message.
// Rows are never updated or deleted, even when downstream extraction fails.
type VendorResponse struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	RFPID      uint      `gorm:"column:rfp_id;index" json:"rfp_id"`
	VendorID   uint      `gorm:"index" json:"vendor_id"`
	Subject    string    `gorm:"column:email_subject" json:"subject"`
	Body       string    `gorm:"column:email_body;type:text" json:"body"`
	MessageID  string    `json:"message_id"`
	InReplyTo  string    `json:"in_reply_to,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// Proposal is the single evaluable unit per (rfp, vendor) pair. A second
// inbound message for the same pair revises this row in place; it never
// creates a sibling.
type Proposal struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	RFPID             uint           `gorm:"column:rfp_id;uniqueIndex:idx_proposal_pair" json:"rfp_id"`
	VendorID          uint           `gorm:"uniqueIndex:idx_proposal_pair" json:"vendor_id"`
	VendorResponseID  *uint          `json:"vendor_response_id,omitempty"`
	Structured        datatypes.JSON `gorm:"column:structured_json" json:"structured_json"`
	TotalPrice        float64        `json:"total_price"`
	DeliveryDays      *int           `json:"delivery_days,omitempty"`
	PaymentTerms      string         `json:"payment_terms,omitempty"`
	WarrantyMonths    *int           `json:"warranty_months,omitempty"`
	Currency          string         `json:"currency,omitempty"`
	CompletenessScore float64        `json:"completeness_score"`
	Score             float64        `json:"score"`
	Summary           string         `gorm:"type:text" json:"summary,omitempty"`
	ReceivedAt        time.Time      `json:"received_at"`

	Vendor *Vendor `gorm:"foreignKey:VendorID" json:"vendor,omitempty"`
}
