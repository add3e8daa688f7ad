package persistence

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stocklens/backend/internal/domain/sync"
)

// GormProductVisibilityRepository implements ProductVisibilityRepository
// using GORM.
type GormProductVisibilityRepository struct {
	db *gorm.DB
}

// NewGormProductVisibilityRepository creates a new repository.
func NewGormProductVisibilityRepository(db *gorm.DB) *GormProductVisibilityRepository {
	return &GormProductVisibilityRepository{db: db}
}

// Upsert writes rows keyed by offer_id, overwriting the visibility fields on
// conflict. Replaying the same rows is idempotent by construction.
func (r *GormProductVisibilityRepository) Upsert(ctx context.Context, rows []sync.ProductVisibility) (int, int, error) {
	if len(rows) == 0 {
		return 0, 0, nil
	}

	offerIDs := make([]string, 0, len(rows))
	for _, row := range rows {
		offerIDs = append(offerIDs, row.OfferID)
	}

	var existing []string
	if err := r.db.WithContext(ctx).
		Model(&sync.ProductVisibility{}).
		Where("offer_id IN ?", offerIDs).
		Pluck("offer_id", &existing).Error; err != nil {
		return 0, 0, err
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "offer_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"product_id", "product_name", "visibility", "raw_status", "last_synced_at",
			}),
		}).
		CreateInBatches(rows, 500).Error
	if err != nil {
		return 0, 0, err
	}

	updated := len(existing)
	inserted := len(rows) - updated
	return inserted, updated, nil
}

// FindByOfferID returns one row or sync.ErrNotFound.
func (r *GormProductVisibilityRepository) FindByOfferID(ctx context.Context, offerID string) (*sync.ProductVisibility, error) {
	var row sync.ProductVisibility
	if err := r.db.WithContext(ctx).First(&row, "offer_id = ?", offerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sync.ErrNotFound
		}
		return nil, err
	}
	return &row, nil
}

// Count returns the number of rows in the product dimension.
func (r *GormProductVisibilityRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&sync.ProductVisibility{}).Count(&count).Error
	return count, err
}

// PurgeAll removes every row. Administrative operation only; the sync
// pipeline never deletes visibility rows.
func (r *GormProductVisibilityRepository) PurgeAll(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&sync.ProductVisibility{})
	return result.RowsAffected, result.Error
}

// Ensure interface compliance
var _ sync.ProductVisibilityRepository = (*GormProductVisibilityRepository)(nil)
