package sync

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned by repositories when a keyed lookup has no match.
var ErrNotFound = errors.New("sync: not found")

// ProductVisibilityRepository persists the product dimension.
type ProductVisibilityRepository interface {
	// Upsert writes rows keyed by offer_id, overwriting visibility on conflict
	Upsert(ctx context.Context, rows []ProductVisibility) (inserted, updated int, err error)
	// FindByOfferID returns one row, or ErrNotFound when the offer is unknown
	FindByOfferID(ctx context.Context, offerID string) (*ProductVisibility, error)
	// Count returns the number of rows in the dimension
	Count(ctx context.Context) (int64, error)
	// PurgeAll removes every row; administrative operation only
	PurgeAll(ctx context.Context) (int64, error)
}

// InventorySnapshotRepository persists the inventory fact table with
// stage-then-swap full-refresh semantics.
type InventorySnapshotRepository interface {
	// StageRows writes rows under a not-yet-active batch
	StageRows(ctx context.Context, rows []InventorySnapshot) error
	// Swap atomically repoints the active dataset to batchID and prunes
	// rows of superseded batches
	Swap(ctx context.Context, batchID uuid.UUID) error
	// DiscardBatch removes staged rows of an abandoned batch
	DiscardBatch(ctx context.Context, batchID uuid.UUID) error
	// ActiveBatchID returns the batch currently visible to readers, or
	// uuid.Nil when no refresh has ever committed
	ActiveBatchID(ctx context.Context) (uuid.UUID, error)
	// ActiveRows returns the visible snapshot rows
	ActiveRows(ctx context.Context) ([]InventorySnapshot, error)
	// ActiveCount returns the number of visible rows
	ActiveCount(ctx context.Context) (int64, error)
}

// BatchRepository persists the ETL audit log.
type BatchRepository interface {
	// Save upserts the batch by batch_id; re-applied terminal transitions
	// must not double-count
	Save(ctx context.Context, batch *ETLBatch) error
	// FindByID returns one batch or ErrBatchNotFound
	FindByID(ctx context.Context, batchID uuid.UUID) (*ETLBatch, error)
	// LastSuccessful returns the most recent completed batch of a type,
	// or ErrBatchNotFound when none exists
	LastSuccessful(ctx context.Context, etlType ETLType) (*ETLBatch, error)
	// Recent returns the latest batches of any type, newest first
	Recent(ctx context.Context, limit int) ([]ETLBatch, error)
}
