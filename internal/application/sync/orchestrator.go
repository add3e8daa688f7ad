package sync

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	syncdomain "github.com/stocklens/backend/internal/domain/sync"
)

// DefaultFreshnessWindow bounds how stale the product dimension may be
// before the inventory stage is declined.
const DefaultFreshnessWindow = 24 * time.Hour

// ---------------------------------------------------------------------------
// Orchestrator
// ---------------------------------------------------------------------------

// Orchestrator sequences the two ETL stages. The inventory stage joins
// against the product dimension, so it is only admitted when a sufficiently
// fresh product sync has completed. At most one run is in flight at a time;
// a second caller gets an already-running status instead of an error.
type Orchestrator struct {
	product   *ProductETL
	inventory *InventoryETL
	batches   syncdomain.BatchRepository
	snapshots syncdomain.InventorySnapshotRepository
	products  syncdomain.ProductVisibilityRepository
	window    time.Duration
	logger    *zap.Logger

	running atomic.Bool
	lastRun atomic.Pointer[RunStatus]
}

// OrchestratorOption customizes the orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithFreshnessWindow overrides the product-dimension freshness bound.
func WithFreshnessWindow(window time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if window > 0 {
			o.window = window
		}
	}
}

// WithOrchestratorLogger attaches a logger.
func WithOrchestratorLogger(logger *zap.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOrchestrator assembles the pipeline front door.
func NewOrchestrator(
	product *ProductETL,
	inventory *InventoryETL,
	batches syncdomain.BatchRepository,
	snapshots syncdomain.InventorySnapshotRepository,
	products syncdomain.ProductVisibilityRepository,
	opts ...OrchestratorOption,
) *Orchestrator {
	o := &Orchestrator{
		product:   product,
		inventory: inventory,
		batches:   batches,
		snapshots: snapshots,
		products:  products,
		window:    DefaultFreshnessWindow,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Running reports whether a run is currently in flight.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// LastRun returns the status of the most recently finished run, or nil
// when no run has happened since startup.
func (o *Orchestrator) LastRun() *RunStatus {
	return o.lastRun.Load()
}

// Run executes one full pipeline pass: product stage first, then the
// inventory stage if the gate admits it. Stage failures are reported in the
// returned status rather than raised, so the scheduler treats them as
// normal outcomes.
func (o *Orchestrator) Run(ctx context.Context) *RunStatus {
	if !o.running.CompareAndSwap(false, true) {
		return &RunStatus{
			State:      RunStateAlreadyRunning,
			StartedAt:  time.Now().UTC(),
			FinishedAt: time.Now().UTC(),
		}
	}
	defer o.running.Store(false)

	status := &RunStatus{StartedAt: time.Now().UTC()}
	defer func() {
		status.FinishedAt = time.Now().UTC()
		o.lastRun.Store(status)
	}()

	productBatch, productErr := o.product.Run(ctx)
	status.Product = newStageStatus(productBatch, productErr)
	if productErr != nil {
		status.State = RunStateFailed
		status.GateReason = "product stage failed"
		return status
	}

	ok, reason, err := o.CanRunInventoryETL(ctx)
	status.GateReason = reason
	if err != nil {
		status.State = RunStateFailed
		status.GateReason = fmt.Sprintf("gate check: %v", err)
		return status
	}
	if !ok {
		o.logger.Info("inventory stage skipped", zap.String("reason", reason))
		status.State = RunStateSkipped
		return status
	}

	inventoryBatch, inventoryErr := o.inventory.Run(ctx)
	status.Inventory = newStageStatus(inventoryBatch, inventoryErr)
	if inventoryErr != nil {
		status.State = RunStateFailed
		return status
	}

	status.State = RunStateCompleted
	return status
}

// RunInventoryOnly executes the inventory stage alone, still subject to the
// dependency gate.
func (o *Orchestrator) RunInventoryOnly(ctx context.Context) *RunStatus {
	if !o.running.CompareAndSwap(false, true) {
		return &RunStatus{
			State:      RunStateAlreadyRunning,
			StartedAt:  time.Now().UTC(),
			FinishedAt: time.Now().UTC(),
		}
	}
	defer o.running.Store(false)

	status := &RunStatus{StartedAt: time.Now().UTC()}
	defer func() {
		status.FinishedAt = time.Now().UTC()
		o.lastRun.Store(status)
	}()

	ok, reason, err := o.CanRunInventoryETL(ctx)
	status.GateReason = reason
	if err != nil {
		status.State = RunStateFailed
		status.GateReason = fmt.Sprintf("gate check: %v", err)
		return status
	}
	if !ok {
		status.State = RunStateSkipped
		return status
	}

	batch, runErr := o.inventory.Run(ctx)
	status.Inventory = newStageStatus(batch, runErr)
	if runErr != nil {
		status.State = RunStateFailed
		return status
	}
	status.State = RunStateCompleted
	return status
}

// CanRunInventoryETL evaluates the dependency gate. The inventory stage is
// admitted when a product sync completed within the freshness window and
// its data has not already been consumed by a later inventory sync.
func (o *Orchestrator) CanRunInventoryETL(ctx context.Context) (bool, string, error) {
	lastProduct, err := o.batches.LastSuccessful(ctx, syncdomain.ETLTypeProduct)
	if err != nil {
		if errors.Is(err, syncdomain.ErrBatchNotFound) {
			return false, "no successful product sync exists", nil
		}
		return false, "", err
	}

	age := time.Since(*lastProduct.CompletedAt)
	if age > o.window {
		return false, fmt.Sprintf("product data is stale: synced %s ago, window is %s",
			age.Round(time.Second), o.window), nil
	}

	lastInventory, err := o.batches.LastSuccessful(ctx, syncdomain.ETLTypeInventory)
	if err != nil {
		if errors.Is(err, syncdomain.ErrBatchNotFound) {
			return true, "product data is fresh, no prior inventory sync", nil
		}
		return false, "", err
	}
	if !lastInventory.CompletedAt.Before(*lastProduct.CompletedAt) {
		return false, "inventory is already up to date with the latest product sync", nil
	}
	return true, "product data is fresh", nil
}

// ---------------------------------------------------------------------------
// Pipeline status
// ---------------------------------------------------------------------------

// PipelineStatus is the aggregate state reported by the status endpoint.
type PipelineStatus struct {
	Running       bool                  `json:"running"`
	LastProduct   *syncdomain.ETLBatch  `json:"last_product,omitempty"`
	LastInventory *syncdomain.ETLBatch  `json:"last_inventory,omitempty"`
	ActiveBatchID string                `json:"active_batch_id,omitempty"`
	ProductCount  int64                 `json:"product_count"`
	SnapshotCount int64                 `json:"snapshot_count"`
	GateOpen      bool                  `json:"inventory_gate_open"`
	GateReason    string                `json:"gate_reason,omitempty"`
	LastRun       *RunStatus            `json:"last_run,omitempty"`
	Recent        []syncdomain.ETLBatch `json:"recent_batches"`
}

// Status assembles the aggregate pipeline state.
func (o *Orchestrator) Status(ctx context.Context) (*PipelineStatus, error) {
	st := &PipelineStatus{
		Running: o.running.Load(),
		LastRun: o.lastRun.Load(),
	}

	if batch, err := o.batches.LastSuccessful(ctx, syncdomain.ETLTypeProduct); err == nil {
		st.LastProduct = batch
	} else if !errors.Is(err, syncdomain.ErrBatchNotFound) {
		return nil, err
	}
	if batch, err := o.batches.LastSuccessful(ctx, syncdomain.ETLTypeInventory); err == nil {
		st.LastInventory = batch
	} else if !errors.Is(err, syncdomain.ErrBatchNotFound) {
		return nil, err
	}

	activeID, err := o.snapshots.ActiveBatchID(ctx)
	if err != nil {
		return nil, err
	}
	if activeID != uuid.Nil {
		st.ActiveBatchID = activeID.String()
	}

	if st.ProductCount, err = o.products.Count(ctx); err != nil {
		return nil, err
	}
	if st.SnapshotCount, err = o.snapshots.ActiveCount(ctx); err != nil {
		return nil, err
	}

	if st.GateOpen, st.GateReason, err = o.CanRunInventoryETL(ctx); err != nil {
		return nil, err
	}

	if st.Recent, err = o.batches.Recent(ctx, 20); err != nil {
		return nil, err
	}
	return st, nil
}
