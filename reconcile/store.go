package reconcile

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/a2n2k3p4/payments-relay/models"
)

var (
	ErrNotFound = errors.New("discrepancy not found")
	ErrConflict = errors.New("discrepancy already reported with a different user or amount")
)

type Filters struct {
	Status string
	UserID string
}

// Store persists ledger discrepancies.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&models.LedgerDiscrepancy{})
}

// Record stores a discrepancy keyed by payment intent id and reports whether
// the row is new. A repeated report returns the stored row untouched; one that
// names a different user or amount fails with ErrConflict.
func (s *Store) Record(ctx context.Context, req models.ReportDiscrepancyRequest) (*models.LedgerDiscrepancy, bool, error) {
	var addr datatypes.JSONMap
	if req.Address != nil {
		addr = datatypes.JSONMap(req.Address)
	}

	d := models.LedgerDiscrepancy{
		Reference:       uuid.NewString(),
		PaymentIntentID: req.PaymentIntentID,
		UserID:          req.UserID,
		Amount:          req.Amount,
		Address:         addr,
		LedgerMessage:   req.LedgerMessage,
		Status:          models.DiscrepancyPending,
	}

	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "payment_intent_id"}},
		DoNothing: true,
	}).Create(&d)
	if res.Error != nil {
		return nil, false, res.Error
	}
	created := res.RowsAffected == 1

	stored, err := s.ByIntent(ctx, req.PaymentIntentID)
	if err != nil {
		return nil, false, err
	}
	if !created && (stored.UserID != req.UserID || stored.Amount != req.Amount) {
		return stored, false, ErrConflict
	}
	return stored, created, nil
}

func (s *Store) ByIntent(ctx context.Context, intentID string) (*models.LedgerDiscrepancy, error) {
	var d models.LedgerDiscrepancy
	err := s.db.WithContext(ctx).Where("payment_intent_id = ?", intentID).First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Get looks up by numeric primary key first, then by reference.
func (s *Store) Get(ctx context.Context, id string) (*models.LedgerDiscrepancy, error) {
	var d models.LedgerDiscrepancy
	db := s.db.WithContext(ctx)

	if n, err := strconv.ParseUint(id, 10, 64); err == nil {
		err = db.First(&d, uint(n)).Error
		if err == nil {
			return &d, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	if err := db.Where("reference = ?", id).First(&d).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func applyFilters(f Filters) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if f.Status != "" {
			db = db.Where("status = ?", f.Status)
		}
		if f.UserID != "" {
			db = db.Where("user_id = ?", f.UserID)
		}
		return db
	}
}

// List returns one page, newest first, and the total matching count.
func (s *Store) List(ctx context.Context, f Filters, limit, offset int) ([]models.LedgerDiscrepancy, int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&models.LedgerDiscrepancy{}).
		Scopes(applyFilters(f)).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var out []models.LedgerDiscrepancy
	if err := s.db.WithContext(ctx).Model(&models.LedgerDiscrepancy{}).
		Scopes(applyFilters(f)).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).Offset(offset).
		Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Pending returns open discrepancies oldest first.
func (s *Store) Pending(ctx context.Context, limit int) ([]models.LedgerDiscrepancy, error) {
	var out []models.LedgerDiscrepancy
	err := s.db.WithContext(ctx).
		Where("status = ?", models.DiscrepancyPending).
		Order("id ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (s *Store) MarkResolved(ctx context.Context, id uint, at time.Time) error {
	return s.db.WithContext(ctx).Model(&models.LedgerDiscrepancy{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":      models.DiscrepancyResolved,
			"resolved_at": at,
			"last_error":  nil,
			"attempts":    gorm.Expr("attempts + 1"),
		}).Error
}

func (s *Store) MarkRejected(ctx context.Context, id uint, reason string) error {
	return s.db.WithContext(ctx).Model(&models.LedgerDiscrepancy{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     models.DiscrepancyRejected,
			"last_error": reason,
		}).Error
}

// RecordAttempt stores a failed retry; the row moves to failed once attempts
// reaches maxAttempts. It returns the new status.
func (s *Store) RecordAttempt(ctx context.Context, d *models.LedgerDiscrepancy, reason string, maxAttempts int) (string, error) {
	attempts := d.Attempts + 1
	status := models.DiscrepancyPending
	if attempts >= maxAttempts {
		status = models.DiscrepancyFailed
	}

	err := s.db.WithContext(ctx).Model(&models.LedgerDiscrepancy{}).
		Where("id = ?", d.ID).
		Updates(map[string]any{
			"status":     status,
			"attempts":   attempts,
			"last_error": reason,
		}).Error
	if err != nil {
		return "", err
	}
	return status, nil
}
