// Package store is the persistence collaborator. Each entity gets a narrow
// repository interface with natural-key lookups; the engine packages receive
// these interfaces by construction and never touch gorm directly. Every
// operation re-reads current state: there is no in-process caching of RFP or
// proposal state between requests.
package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/openprocure/rfp-pilot/internal/rfp"
)

type UserRepo interface {
	Create(ctx context.Context, user *rfp.User) error
	GetByID(ctx context.Context, id uint) (*rfp.User, error)
}

type RFPRepo interface {
	Create(ctx context.Context, r *rfp.RFP) error
	GetByID(ctx context.Context, id uint) (*rfp.RFP, error)
	List(ctx context.Context) ([]*rfp.RFP, error)
	UpdateStructured(ctx context.Context, id uint, doc *rfp.RFPDocument) error
}

type VendorRepo interface {
	Create(ctx context.Context, v *rfp.Vendor) error
	GetByID(ctx context.Context, id uint) (*rfp.Vendor, error)
	// GetByEmail matches on the case-normalized address.
	GetByEmail(ctx context.Context, email string) (*rfp.Vendor, error)
	GetByIDs(ctx context.Context, ids []uint) ([]*rfp.Vendor, error)
	List(ctx context.Context) ([]*rfp.Vendor, error)
}

type VendorResponseRepo interface {
	Create(ctx context.Context, vr *rfp.VendorResponse) error
	ListByRFP(ctx context.Context, rfpID uint) ([]*rfp.VendorResponse, error)
}

type ProposalRepo interface {
	// Create returns rfp.ErrConflict when a proposal for the same
	// (rfp, vendor) pair already exists.
	Create(ctx context.Context, p *rfp.Proposal) error
	GetByPair(ctx context.Context, rfpID, vendorID uint) (*rfp.Proposal, error)
	Update(ctx context.Context, p *rfp.Proposal) error
	// UpdateScores atomically replaces the evaluation fields of one proposal.
	UpdateScores(ctx context.Context, id uint, completeness, score float64, summary string) error
	ListByRFP(ctx context.Context, rfpID uint) ([]*rfp.Proposal, error)
}

type RFPVendorRepo interface {
	// MarkSent creates or refreshes the dispatch row for the pair.
	MarkSent(ctx context.Context, rfpID, vendorID uint) error
	// MarkResponded moves the pair forward to responded, creating the row if
	// the reply was unsolicited. Calling it again is a no-op.
	MarkResponded(ctx context.Context, rfpID, vendorID uint) error
	GetByPair(ctx context.Context, rfpID, vendorID uint) (*rfp.RFPVendor, error)
	ListByRFP(ctx context.Context, rfpID uint) ([]*rfp.RFPVendor, error)
}

// Store aggregates all repositories over one database handle.
type Store struct {
	Users     UserRepo
	RFPs      RFPRepo
	Vendors   VendorRepo
	Responses VendorResponseRepo
	Proposals ProposalRepo
	Statuses  RFPVendorRepo

	db *gorm.DB
}

// Open connects to postgres and builds the repository set.
func Open(dsn string, log *zap.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(10 * time.Minute)

	return New(db, log), nil
}

// New builds a Store on an existing gorm handle.
func New(db *gorm.DB, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}

	return &Store{
		Users:     &userRepo{db: db},
		RFPs:      &rfpRepo{db: db},
		Vendors:   &vendorRepo{db: db},
		Responses: &responseRepo{db: db},
		Proposals: &proposalRepo{db: db, log: log.With(zap.String("repo", "proposals"))},
		Statuses:  &rfpVendorRepo{db: db},
		db:        db,
	}
}

// AutoMigrate creates or updates the schema for all engine entities.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(
		&rfp.User{},
		&rfp.RFP{},
		&rfp.Vendor{},
		&rfp.RFPVendor{},
		&rfp.VendorResponse{},
		&rfp.Proposal{},
	)
}

// translateError maps driver uniqueness violations onto the domain conflict
// sentinel so callers can recover by retrying as an update.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if isDuplicate(err) {
		return rfp.ErrConflict
	}
	return err
}
