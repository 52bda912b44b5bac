package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/openprocure/rfp-pilot/internal/rfp"
)

func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "duplicate key")
}

type userRepo struct {
	db *gorm.DB
}

func (r *userRepo) Create(ctx context.Context, user *rfp.User) error {
	return translateError(r.db.WithContext(ctx).Create(user).Error)
}

func (r *userRepo) GetByID(ctx context.Context, id uint) (*rfp.User, error) {
	var user rfp.User
	err := r.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

type rfpRepo struct {
	db *gorm.DB
}

func (r *rfpRepo) Create(ctx context.Context, record *rfp.RFP) error {
	return translateError(r.db.WithContext(ctx).Create(record).Error)
}

func (r *rfpRepo) GetByID(ctx context.Context, id uint) (*rfp.RFP, error) {
	var record rfp.RFP
	err := r.db.WithContext(ctx).First(&record, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *rfpRepo) List(ctx context.Context) ([]*rfp.RFP, error) {
	var records []*rfp.RFP
	if err := r.db.WithContext(ctx).Order("id DESC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// UpdateStructured replaces the extracted document and refreshes the mirrored
// scalar columns in one update. Item-level diffs are not reconciled.
func (r *rfpRepo) UpdateStructured(ctx context.Context, id uint, doc *rfp.RFPDocument) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal rfp document: %w", err)
	}

	updates := map[string]any{
		"structured":      raw,
		"budget":          doc.TotalBudget,
		"currency":        doc.Currency,
		"payment_terms":   doc.PaymentTerms,
		"warranty_months": doc.WarrantyMonths,
	}

	return r.db.WithContext(ctx).Model(&rfp.RFP{}).Where("id = ?", id).Updates(updates).Error
}

type vendorRepo struct {
	db *gorm.DB
}

func (r *vendorRepo) Create(ctx context.Context, v *rfp.Vendor) error {
	v.Email = strings.ToLower(strings.TrimSpace(v.Email))
	return translateError(r.db.WithContext(ctx).Create(v).Error)
}

func (r *vendorRepo) GetByID(ctx context.Context, id uint) (*rfp.Vendor, error) {
	var vendor rfp.Vendor
	err := r.db.WithContext(ctx).First(&vendor, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &vendor, nil
}

func (r *vendorRepo) GetByEmail(ctx context.Context, email string) (*rfp.Vendor, error) {
	var vendor rfp.Vendor
	err := r.db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&vendor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &vendor, nil
}

func (r *vendorRepo) GetByIDs(ctx context.Context, ids []uint) ([]*rfp.Vendor, error) {
	var vendors []*rfp.Vendor
	if len(ids) == 0 {
		return vendors, nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&vendors).Error; err != nil {
		return nil, err
	}
	return vendors, nil
}

func (r *vendorRepo) List(ctx context.Context) ([]*rfp.Vendor, error) {
	var vendors []*rfp.Vendor
	if err := r.db.WithContext(ctx).Order("name").Find(&vendors).Error; err != nil {
		return nil, err
	}
	return vendors, nil
}

type responseRepo struct {
	db *gorm.DB
}

func (r *responseRepo) Create(ctx context.Context, vr *rfp.VendorResponse) error {
	if vr.ReceivedAt.IsZero() {
		vr.ReceivedAt = time.Now()
	}
	return translateError(r.db.WithContext(ctx).Create(vr).Error)
}

func (r *responseRepo) ListByRFP(ctx context.Context, rfpID uint) ([]*rfp.VendorResponse, error) {
	var responses []*rfp.VendorResponse
	err := r.db.WithContext(ctx).
		Where("rfp_id = ?", rfpID).
		Order("received_at DESC").
		Find(&responses).Error
	if err != nil {
		return nil, err
	}
	return responses, nil
}

type proposalRepo struct {
	db  *gorm.DB
	log *zap.Logger
}

func (r *proposalRepo) Create(ctx context.Context, p *rfp.Proposal) error {
	return translateError(r.db.WithContext(ctx).Create(p).Error)
}

func (r *proposalRepo) GetByPair(ctx context.Context, rfpID, vendorID uint) (*rfp.Proposal, error) {
	var proposal rfp.Proposal
	err := r.db.WithContext(ctx).
		Where("rfp_id = ? AND vendor_id = ?", rfpID, vendorID).
		First(&proposal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &proposal, nil
}

func (r *proposalRepo) Update(ctx context.Context, p *rfp.Proposal) error {
	return r.db.WithContext(ctx).Save(p).Error
}

func (r *proposalRepo) UpdateScores(ctx context.Context, id uint, completeness, score float64, summary string) error {
	res := r.db.WithContext(ctx).Model(&rfp.Proposal{}).Where("id = ?", id).Updates(map[string]any{
		"completeness_score": completeness,
		"score":              score,
		"summary":            summary,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		r.log.Warn("score update matched no proposal", zap.Uint("proposal_id", id))
	}
	return nil
}

func (r *proposalRepo) ListByRFP(ctx context.Context, rfpID uint) ([]*rfp.Proposal, error) {
	var proposals []*rfp.Proposal
	err := r.db.WithContext(ctx).
		Preload("Vendor").
		Where("rfp_id = ?", rfpID).
		Order("score DESC").
		Find(&proposals).Error
	if err != nil {
		return nil, err
	}
	return proposals, nil
}

type rfpVendorRepo struct {
	db *gorm.DB
}

func (r *rfpVendorRepo) MarkSent(ctx context.Context, rfpID, vendorID uint) error {
	existing, err := r.GetByPair(ctx, rfpID, vendorID)
	if err != nil {
		return err
	}

	now := time.Now()
	if existing == nil {
		row := &rfp.RFPVendor{RFPID: rfpID, VendorID: vendorID, Status: rfp.StatusSent, SentAt: &now}
		if err := translateError(r.db.WithContext(ctx).Create(row).Error); err != nil {
			// Lost the race to another dispatch of the same pair; the row exists.
			if errors.Is(err, rfp.ErrConflict) {
				return nil
			}
			return err
		}
		return nil
	}

	// Re-sending refreshes the timestamp but never regresses a responded pair.
	updates := map[string]any{"sent_at": now}
	return r.db.WithContext(ctx).Model(existing).Updates(updates).Error
}

func (r *rfpVendorRepo) MarkResponded(ctx context.Context, rfpID, vendorID uint) error {
	existing, err := r.GetByPair(ctx, rfpID, vendorID)
	if err != nil {
		return err
	}

	now := time.Now()
	if existing == nil {
		// Unsolicited reply from an auto-created vendor: record the pair
		// directly in its terminal intake state.
		row := &rfp.RFPVendor{RFPID: rfpID, VendorID: vendorID, Status: rfp.StatusResponded, RespondedAt: &now}
		if err := translateError(r.db.WithContext(ctx).Create(row).Error); err != nil {
			if errors.Is(err, rfp.ErrConflict) {
				return r.MarkResponded(ctx, rfpID, vendorID)
			}
			return err
		}
		return nil
	}

	if existing.Status == rfp.StatusResponded {
		return nil
	}

	return r.db.WithContext(ctx).Model(existing).Updates(map[string]any{
		"status":       rfp.StatusResponded,
		"responded_at": now,
	}).Error
}

func (r *rfpVendorRepo) GetByPair(ctx context.Context, rfpID, vendorID uint) (*rfp.RFPVendor, error) {
	var row rfp.RFPVendor
	err := r.db.WithContext(ctx).
		Where("rfp_id = ? AND vendor_id = ?", rfpID, vendorID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *rfpVendorRepo) ListByRFP(ctx context.Context, rfpID uint) ([]*rfp.RFPVendor, error) {
	var rows []*rfp.RFPVendor
	if err := r.db.WithContext(ctx).Where("rfp_id = ?", rfpID).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
