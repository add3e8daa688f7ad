package sync

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

var (
	// ErrBatchNotRunning is returned when a terminal transition is applied
	// to a batch that is not in the running state
	ErrBatchNotRunning = errors.New("sync: batch is not running")
	// ErrBatchImmutable is returned when a completed or failed batch is mutated
	ErrBatchImmutable = errors.New("sync: batch is terminal and immutable")
	// ErrBatchNotFound is returned when no batch matches a query
	ErrBatchNotFound = errors.New("sync: batch not found")
)

// ---------------------------------------------------------------------------
// ETLType / BatchStatus
// ---------------------------------------------------------------------------

// ETLType identifies which pipeline stage owns a batch.
type ETLType string

const (
	// ETLTypeProduct is the product-visibility sync stage
	ETLTypeProduct ETLType = "product"
	// ETLTypeInventory is the inventory-quantity sync stage
	ETLTypeInventory ETLType = "inventory"
)

// IsValid returns true for a known ETL type.
func (t ETLType) IsValid() bool {
	return t == ETLTypeProduct || t == ETLTypeInventory
}

// BatchStatus is the lifecycle state of an ETL batch.
type BatchStatus string

const (
	// BatchStatusRunning means the owning stage is still executing
	BatchStatusRunning BatchStatus = "running"
	// BatchStatusCompleted means the stage finished and committed its data
	BatchStatusCompleted BatchStatus = "completed"
	// BatchStatusFailed means the stage aborted; prior store state was retained
	BatchStatusFailed BatchStatus = "failed"
)

// Terminal reports whether the status permits no further transitions.
func (s BatchStatus) Terminal() bool {
	return s == BatchStatusCompleted || s == BatchStatusFailed
}

// ---------------------------------------------------------------------------
// BatchCounters
// ---------------------------------------------------------------------------

// BatchCounters accumulates per-stage record and request counts.
type BatchCounters struct {
	Extracted  int `json:"extracted" gorm:"not null;default:0"`
	Validated  int `json:"validated" gorm:"not null;default:0"`
	Normalized int `json:"normalized" gorm:"not null;default:0"`
	Inserted   int `json:"inserted" gorm:"not null;default:0"`
	Updated    int `json:"updated" gorm:"not null;default:0"`
	Failed     int `json:"failed" gorm:"not null;default:0"`

	APIRequests int `json:"api_requests" gorm:"not null;default:0"`
	APIFailures int `json:"api_failures" gorm:"not null;default:0"`
}

// ---------------------------------------------------------------------------
// ETLBatch
// ---------------------------------------------------------------------------

// ETLBatch is the audit record of one stage run. It is created at stage
// start, mutated only by the owning stage and immutable once terminal.
type ETLBatch struct {
	// BatchID is the opaque correlation token for the run
	BatchID uuid.UUID `json:"batch_id" gorm:"type:uuid;primaryKey"`
	// Type names the owning stage
	Type ETLType `json:"etl_type" gorm:"column:etl_type;type:varchar(16);not null;index"`
	// Status is the lifecycle state
	Status BatchStatus `json:"status" gorm:"type:varchar(16);not null;index"`

	StartedAt   time.Time  `json:"started_at" gorm:"not null"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	BatchCounters `gorm:"embedded"`

	// ErrorMessage holds the failure description for failed batches
	ErrorMessage string `json:"error_message,omitempty" gorm:"type:text"`
}

// TableName returns the table name for GORM.
func (ETLBatch) TableName() string {
	return "etl_batches"
}

// NewETLBatch opens a new running batch for the given stage.
func NewETLBatch(etlType ETLType) *ETLBatch {
	return &ETLBatch{
		BatchID:   uuid.New(),
		Type:      etlType,
		Status:    BatchStatusRunning,
		StartedAt: time.Now().UTC(),
	}
}

// Complete transitions the batch to completed. Applying it twice is a no-op
// so redelivered transitions never double-count.
func (b *ETLBatch) Complete() error {
	if b.Status == BatchStatusCompleted {
		return nil
	}
	if b.Status.Terminal() {
		return ErrBatchImmutable
	}
	now := time.Now().UTC()
	b.Status = BatchStatusCompleted
	b.CompletedAt = &now
	return nil
}

// Fail transitions the batch to failed with the given cause.
func (b *ETLBatch) Fail(cause string) error {
	if b.Status == BatchStatusFailed {
		return nil
	}
	if b.Status.Terminal() {
		return ErrBatchImmutable
	}
	now := time.Now().UTC()
	b.Status = BatchStatusFailed
	b.CompletedAt = &now
	b.ErrorMessage = cause
	return nil
}

// Duration returns the wall-clock time the batch ran for, or zero while the
// batch is still running.
func (b *ETLBatch) Duration() time.Duration {
	if b.CompletedAt == nil {
		return 0
	}
	return b.CompletedAt.Sub(b.StartedAt)
}
