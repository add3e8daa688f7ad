package sync

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	domain "github.com/stocklens/backend/internal/domain/analytics"
	"github.com/stocklens/backend/internal/domain/quality"
	syncdomain "github.com/stocklens/backend/internal/domain/sync"
)

// ---------------------------------------------------------------------------
// InventoryETL
// ---------------------------------------------------------------------------

// InventoryETL rebuilds the inventory snapshot with a full refresh. Pages
// are staged under the batch as they stream in; the dataset pointer only
// moves to the new batch after the whole traversal succeeded, so readers
// never observe a partial refresh.
type InventoryETL struct {
	source     StockSource
	snapshots  syncdomain.InventorySnapshotRepository
	batches    syncdomain.BatchRepository
	validator  *quality.Validator
	normalizer *quality.Normalizer
	filters    domain.Filters
	logger     *zap.Logger
}

// NewInventoryETL assembles the inventory stage. The filters narrow every
// traversal the stage opens.
func NewInventoryETL(
	source StockSource,
	snapshots syncdomain.InventorySnapshotRepository,
	batches syncdomain.BatchRepository,
	validator *quality.Validator,
	normalizer *quality.Normalizer,
	filters domain.Filters,
	logger *zap.Logger,
) *InventoryETL {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InventoryETL{
		source:     source,
		snapshots:  snapshots,
		batches:    batches,
		validator:  validator,
		normalizer: normalizer,
		filters:    filters,
		logger:     logger,
	}
}

// Run executes one full inventory refresh under a fresh batch. On any
// failure the staged rows are discarded and the previously active batch
// stays visible.
func (e *InventoryETL) Run(ctx context.Context) (*syncdomain.ETLBatch, error) {
	batch := syncdomain.NewETLBatch(syncdomain.ETLTypeInventory)
	if err := e.batches.Save(ctx, batch); err != nil {
		return batch, fmt.Errorf("save batch: %w", err)
	}

	e.logger.Info("inventory etl started", zap.String("batch_id", batch.BatchID.String()))

	tally := newRequestTally(e.source)

	stream := e.source.StreamAll(e.filters)
	pages := 0
	for stream.Next(ctx) {
		page := stream.Page()
		pages++

		rows := e.transformPage(batch, page)
		if len(rows) == 0 {
			continue
		}
		if err := e.snapshots.StageRows(ctx, rows); err != nil {
			return e.fail(ctx, batch, tally, fmt.Errorf("stage rows: %w", err))
		}
		batch.Inserted += len(rows)
	}
	if err := stream.Err(); err != nil {
		return e.fail(ctx, batch, tally, fmt.Errorf("stream stock: %w", err))
	}

	// An empty traversal is a normal outcome, not an error. The pointer is
	// left alone so the previous snapshot stays visible.
	if batch.Inserted == 0 {
		tally.record(batch)
		batch.Complete()
		if err := e.batches.Save(ctx, batch); err != nil {
			return batch, fmt.Errorf("save batch: %w", err)
		}
		e.logger.Info("inventory etl found nothing to sync",
			zap.String("batch_id", batch.BatchID.String()))
		return batch, nil
	}

	if err := e.snapshots.Swap(ctx, batch.BatchID); err != nil {
		return e.fail(ctx, batch, tally, fmt.Errorf("swap active batch: %w", err))
	}

	tally.record(batch)
	batch.Complete()
	if err := e.batches.Save(ctx, batch); err != nil {
		return batch, fmt.Errorf("save batch: %w", err)
	}

	e.logger.Info("inventory etl completed",
		zap.String("batch_id", batch.BatchID.String()),
		zap.Int("pages", pages),
		zap.Int("extracted", batch.Extracted),
		zap.Int("staged", batch.Inserted),
		zap.Int("discarded", batch.Failed),
		zap.Duration("duration", batch.Duration()))
	return batch, nil
}

// transformPage validates and normalizes one page into snapshot rows,
// updating the batch counters as it goes.
func (e *InventoryETL) transformPage(batch *syncdomain.ETLBatch, page *domain.StockPage) []syncdomain.InventorySnapshot {
	rows := make([]syncdomain.InventorySnapshot, 0, len(page.Records))
	for i := range page.Records {
		rec := &page.Records[i]
		batch.Extracted++

		if err := e.validator.ValidateStock(rec); err != nil {
			if errors.Is(err, quality.ErrRecordDiscarded) {
				batch.Failed++
				e.logger.Warn("stock record discarded",
					zap.String("warehouse", rec.WarehouseName),
					zap.Error(err))
				continue
			}
			batch.Failed++
			continue
		}
		batch.Validated++

		e.normalizer.NormalizeStock(rec)
		batch.Normalized++

		rows = append(rows, syncdomain.InventorySnapshot{
			OfferID:           rec.OfferID,
			WarehouseName:     rec.WarehouseName,
			Present:           rec.TotalStock,
			Reserved:          rec.ReservedStock,
			Available:         rec.TotalStock - rec.ReservedStock,
			ProductName:       rec.ProductName,
			Category:          rec.Category,
			Brand:             rec.Brand,
			Price:             rec.Price,
			Currency:          rec.Currency,
			DataSource:        rec.DataSource,
			DataQualityScore:  rec.DataQualityScore,
			SyncBatchID:       batch.BatchID,
			LastAnalyticsSync: rec.UpdatedAt,
		})
	}
	return rows
}

func (e *InventoryETL) fail(ctx context.Context, batch *syncdomain.ETLBatch, tally requestTally, cause error) (*syncdomain.ETLBatch, error) {
	if err := e.snapshots.DiscardBatch(ctx, batch.BatchID); err != nil {
		e.logger.Error("discard staged rows", zap.Error(err))
	}
	tally.record(batch)
	batch.Fail(cause.Error())
	if err := e.batches.Save(ctx, batch); err != nil {
		e.logger.Error("save failed batch", zap.Error(err))
	}
	e.logger.Error("inventory etl failed",
		zap.String("batch_id", batch.BatchID.String()),
		zap.Error(cause))
	return batch, cause
}
