package sync

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stocklens/backend/internal/domain/analytics"
)

// ---------------------------------------------------------------------------
// ProductVisibility
// ---------------------------------------------------------------------------

// ProductVisibility is the product-dimension row: the catalog status of one
// offer. Rows are created on first sighting and overwritten on every product
// sync; they are never deleted outside an explicit administrative purge.
type ProductVisibility struct {
	// OfferID is the seller-side offer identifier and unique key
	OfferID string `json:"offer_id" gorm:"type:varchar(64);primaryKey"`
	// ProductID is the marketplace-side product identifier
	ProductID string `json:"product_id" gorm:"type:varchar(64);index"`
	// ProductName is the listing title from the last sync
	ProductName string `json:"product_name" gorm:"type:varchar(512)"`
	// Visibility is the normalized catalog status
	Visibility analytics.Visibility `json:"visibility" gorm:"type:varchar(16);not null;index"`
	// RawStatus preserves the upstream free-text value for diagnostics
	RawStatus string `json:"raw_status" gorm:"type:varchar(128)"`
	// LastSyncedAt is when the row was last overwritten by a product sync
	LastSyncedAt time.Time `json:"last_synced_at" gorm:"not null"`
}

// TableName returns the table name for GORM.
func (ProductVisibility) TableName() string {
	return "product_visibility"
}

// ---------------------------------------------------------------------------
// InventorySnapshot
// ---------------------------------------------------------------------------

// InventorySnapshot is the inventory fact row: one offer-per-warehouse stock
// observation. Rows are written under the batch that produced them; readers
// only ever see the active batch, so a failed refresh never exposes a
// partial dataset.
type InventorySnapshot struct {
	ID uint `json:"-" gorm:"primaryKey"`

	OfferID       string `json:"offer_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_snapshot_batch_offer_wh,priority:2"`
	WarehouseName string `json:"warehouse_name" gorm:"type:varchar(256);not null;uniqueIndex:idx_snapshot_batch_offer_wh,priority:3"`

	// Present is the physical quantity reported by the warehouse
	Present int64 `json:"present" gorm:"not null;default:0"`
	// Reserved is the quantity held against open orders
	Reserved int64 `json:"reserved" gorm:"not null;default:0"`
	// Available is derived as present - reserved
	Available int64 `json:"available" gorm:"not null;default:0"`

	ProductName string          `json:"product_name" gorm:"type:varchar(512)"`
	Category    string          `json:"category" gorm:"type:varchar(256)"`
	Brand       string          `json:"brand" gorm:"type:varchar(256)"`
	Price       decimal.Decimal `json:"price" gorm:"type:decimal(18,4);not null;default:0"`
	Currency    string          `json:"currency" gorm:"type:varchar(3)"`

	DataSource       analytics.DataSource `json:"data_source" gorm:"type:varchar(16);not null"`
	DataQualityScore int                  `json:"data_quality_score" gorm:"not null;default:0"`

	// SyncBatchID correlates the row with the batch that produced it
	SyncBatchID uuid.UUID `json:"sync_batch_id" gorm:"type:uuid;not null;uniqueIndex:idx_snapshot_batch_offer_wh,priority:1"`
	// LastAnalyticsSync is the upstream observation timestamp
	LastAnalyticsSync time.Time `json:"last_analytics_sync" gorm:"not null"`
}

// TableName returns the table name for GORM.
func (InventorySnapshot) TableName() string {
	return "inventory_snapshots"
}

// ---------------------------------------------------------------------------
// SyncState
// ---------------------------------------------------------------------------

// SyncState is the single-row active-batch pointer for a dataset. Swapping
// the pointer is the atomic commit of a full-table refresh.
type SyncState struct {
	// Dataset names the logical dataset, e.g. "inventory"
	Dataset string `json:"dataset" gorm:"type:varchar(32);primaryKey"`
	// ActiveBatchID is the batch whose rows are currently visible
	ActiveBatchID uuid.UUID `json:"active_batch_id" gorm:"type:uuid;not null"`
	// SwappedAt is when the pointer last moved
	SwappedAt time.Time `json:"swapped_at" gorm:"not null"`
}

// TableName returns the table name for GORM.
func (SyncState) TableName() string {
	return "sync_state"
}

// DatasetInventory is the dataset key for the inventory snapshot store.
const DatasetInventory = "inventory"
