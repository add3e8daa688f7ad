package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stocklens/backend/internal/domain/sync"
)

// GormBatchRepository implements BatchRepository using GORM.
type GormBatchRepository struct {
	db *gorm.DB
}

// NewGormBatchRepository creates a new repository.
func NewGormBatchRepository(db *gorm.DB) *GormBatchRepository {
	return &GormBatchRepository{db: db}
}

// Save upserts the batch by batch_id. Applying the same terminal state twice
// writes identical values, so redelivery never double-counts.
func (r *GormBatchRepository) Save(ctx context.Context, batch *sync.ETLBatch) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "batch_id"}},
			UpdateAll: true,
		}).
		Create(batch).Error
}

// FindByID returns one batch or sync.ErrBatchNotFound.
func (r *GormBatchRepository) FindByID(ctx context.Context, batchID uuid.UUID) (*sync.ETLBatch, error) {
	var batch sync.ETLBatch
	if err := r.db.WithContext(ctx).First(&batch, "batch_id = ?", batchID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sync.ErrBatchNotFound
		}
		return nil, err
	}
	return &batch, nil
}

// LastSuccessful returns the most recent completed batch of a type, or
// sync.ErrBatchNotFound when no run of that type has ever completed.
func (r *GormBatchRepository) LastSuccessful(ctx context.Context, etlType sync.ETLType) (*sync.ETLBatch, error) {
	var batch sync.ETLBatch
	err := r.db.WithContext(ctx).
		Where("etl_type = ? AND status = ?", etlType, sync.BatchStatusCompleted).
		Order("completed_at DESC").
		First(&batch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, sync.ErrBatchNotFound
	}
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// Recent returns the latest batches of any type, newest first.
func (r *GormBatchRepository) Recent(ctx context.Context, limit int) ([]sync.ETLBatch, error) {
	if limit <= 0 {
		limit = 20
	}
	var batches []sync.ETLBatch
	err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&batches).Error
	return batches, err
}

// Ensure interface compliance
var _ sync.BatchRepository = (*GormBatchRepository)(nil)
