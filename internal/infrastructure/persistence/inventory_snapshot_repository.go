package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stocklens/backend/internal/domain/sync"
)

// GormInventorySnapshotRepository implements InventorySnapshotRepository with
// stage-then-swap semantics: rows are staged under their batch ID and become
// visible only when the dataset's active-batch pointer moves. A failed run
// therefore never exposes a partially overwritten refresh.
type GormInventorySnapshotRepository struct {
	db *gorm.DB
}

// NewGormInventorySnapshotRepository creates a new repository.
func NewGormInventorySnapshotRepository(db *gorm.DB) *GormInventorySnapshotRepository {
	return &GormInventorySnapshotRepository{db: db}
}

// StageRows writes rows under their not-yet-active batch. Restaging the same
// (batch, offer, warehouse) key overwrites in place, so redelivered pages do
// not duplicate rows.
func (r *GormInventorySnapshotRepository) StageRows(ctx context.Context, rows []sync.InventorySnapshot) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "sync_batch_id"}, {Name: "offer_id"}, {Name: "warehouse_name"},
			},
			UpdateAll: true,
		}).
		CreateInBatches(rows, 500).Error
}

// Swap atomically repoints the active dataset to batchID and prunes rows of
// superseded batches in the same transaction.
func (r *GormInventorySnapshotRepository) Swap(ctx context.Context, batchID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		state := sync.SyncState{
			Dataset:       sync.DatasetInventory,
			ActiveBatchID: batchID,
			SwappedAt:     time.Now().UTC(),
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "dataset"}},
			DoUpdates: clause.AssignmentColumns([]string{"active_batch_id", "swapped_at"}),
		}).Create(&state).Error; err != nil {
			return err
		}

		return tx.Where("sync_batch_id <> ?", batchID).
			Delete(&sync.InventorySnapshot{}).Error
	})
}

// DiscardBatch removes staged rows of an abandoned batch. The active batch
// is never discarded.
func (r *GormInventorySnapshotRepository) DiscardBatch(ctx context.Context, batchID uuid.UUID) error {
	active, err := r.ActiveBatchID(ctx)
	if err != nil {
		return err
	}
	if active == batchID {
		return nil
	}
	return r.db.WithContext(ctx).
		Where("sync_batch_id = ?", batchID).
		Delete(&sync.InventorySnapshot{}).Error
}

// ActiveBatchID returns the batch currently visible to readers, or uuid.Nil
// when no refresh has ever committed.
func (r *GormInventorySnapshotRepository) ActiveBatchID(ctx context.Context) (uuid.UUID, error) {
	var state sync.SyncState
	err := r.db.WithContext(ctx).First(&state, "dataset = ?", sync.DatasetInventory).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, err
	}
	return state.ActiveBatchID, nil
}

// ActiveRows returns the visible snapshot rows.
func (r *GormInventorySnapshotRepository) ActiveRows(ctx context.Context) ([]sync.InventorySnapshot, error) {
	batchID, err := r.ActiveBatchID(ctx)
	if err != nil {
		return nil, err
	}
	if batchID == uuid.Nil {
		return nil, nil
	}

	var rows []sync.InventorySnapshot
	err = r.db.WithContext(ctx).
		Where("sync_batch_id = ?", batchID).
		Order("offer_id, warehouse_name").
		Find(&rows).Error
	return rows, err
}

// ActiveCount returns the number of visible rows.
func (r *GormInventorySnapshotRepository) ActiveCount(ctx context.Context) (int64, error) {
	batchID, err := r.ActiveBatchID(ctx)
	if err != nil {
		return 0, err
	}
	if batchID == uuid.Nil {
		return 0, nil
	}

	var count int64
	err = r.db.WithContext(ctx).
		Model(&sync.InventorySnapshot{}).
		Where("sync_batch_id = ?", batchID).
		Count(&count).Error
	return count, err
}

// Ensure interface compliance
var _ sync.InventorySnapshotRepository = (*GormInventorySnapshotRepository)(nil)
