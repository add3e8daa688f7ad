package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	domain "github.com/stocklens/backend/internal/domain/analytics"
	"github.com/stocklens/backend/internal/domain/quality"
	syncdomain "github.com/stocklens/backend/internal/domain/sync"
)

// ---------------------------------------------------------------------------
// Source interfaces
// ---------------------------------------------------------------------------

// VisibilitySource produces the full visibility report for the account.
type VisibilitySource interface {
	FetchVisibilityReport(ctx context.Context) ([]domain.VisibilityRecord, error)
}

// PageIterator walks a finite forward-only sequence of stock pages.
type PageIterator interface {
	Next(ctx context.Context) bool
	Page() *domain.StockPage
	Err() error
}

// StockSource opens paginated traversals over warehouse stock.
type StockSource interface {
	StreamAll(filters domain.Filters) PageIterator
}

// RequestCounter is implemented by sources that can report how many upstream
// requests they have issued so far and how many of those failed.
type RequestCounter interface {
	RequestCounts() (made, failed int64)
}

// requestTally snapshots a source's cumulative request counters at stage
// start so the per-run delta can be written onto the audit batch.
type requestTally struct {
	counter      RequestCounter
	made, failed int64
}

func newRequestTally(source any) requestTally {
	rc, ok := source.(RequestCounter)
	if !ok {
		return requestTally{}
	}
	t := requestTally{counter: rc}
	t.made, t.failed = rc.RequestCounts()
	return t
}

// record writes the requests consumed since the snapshot onto the batch.
func (t requestTally) record(batch *syncdomain.ETLBatch) {
	if t.counter == nil {
		return
	}
	made, failed := t.counter.RequestCounts()
	batch.APIRequests = int(made - t.made)
	batch.APIFailures = int(failed - t.failed)
}

// ---------------------------------------------------------------------------
// ProductETL
// ---------------------------------------------------------------------------

// ProductETL refreshes the product visibility dimension. It runs the
// report workflow end to end and upserts one row per offer, so a product
// that disappears from the report keeps its last known state.
type ProductETL struct {
	source     VisibilitySource
	products   syncdomain.ProductVisibilityRepository
	batches    syncdomain.BatchRepository
	validator  *quality.Validator
	normalizer *quality.Normalizer
	logger     *zap.Logger
}

// NewProductETL assembles the product stage.
func NewProductETL(
	source VisibilitySource,
	products syncdomain.ProductVisibilityRepository,
	batches syncdomain.BatchRepository,
	validator *quality.Validator,
	normalizer *quality.Normalizer,
	logger *zap.Logger,
) *ProductETL {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductETL{
		source:     source,
		products:   products,
		batches:    batches,
		validator:  validator,
		normalizer: normalizer,
		logger:     logger,
	}
}

// Run executes one product refresh under a fresh batch. The returned batch
// always reflects the terminal state; err is non-nil only when the stage
// failed.
func (e *ProductETL) Run(ctx context.Context) (*syncdomain.ETLBatch, error) {
	batch := syncdomain.NewETLBatch(syncdomain.ETLTypeProduct)
	if err := e.batches.Save(ctx, batch); err != nil {
		return batch, fmt.Errorf("save batch: %w", err)
	}

	e.logger.Info("product etl started", zap.String("batch_id", batch.BatchID.String()))

	tally := newRequestTally(e.source)

	records, err := e.source.FetchVisibilityReport(ctx)
	if err != nil {
		return e.fail(ctx, batch, tally, fmt.Errorf("fetch visibility report: %w", err))
	}
	batch.Extracted = len(records)

	now := time.Now().UTC()
	rows := make([]syncdomain.ProductVisibility, 0, len(records))
	for i := range records {
		rec := &records[i]
		if err := e.validator.ValidateVisibility(rec); err != nil {
			if errors.Is(err, quality.ErrRecordDiscarded) {
				batch.Failed++
				e.logger.Warn("visibility record discarded",
					zap.String("product_id", rec.ProductID),
					zap.Error(err))
				continue
			}
			return e.fail(ctx, batch, tally, fmt.Errorf("validate visibility: %w", err))
		}
		batch.Validated++

		e.normalizer.NormalizeVisibility(rec)
		batch.Normalized++

		rows = append(rows, syncdomain.ProductVisibility{
			OfferID:      rec.OfferID,
			ProductID:    rec.ProductID,
			ProductName:  rec.ProductName,
			RawStatus:    rec.RawStatus,
			Visibility:   rec.Visibility,
			LastSyncedAt: now,
		})
	}

	if len(rows) > 0 {
		inserted, updated, err := e.products.Upsert(ctx, rows)
		if err != nil {
			return e.fail(ctx, batch, tally, fmt.Errorf("upsert visibility: %w", err))
		}
		batch.Inserted = inserted
		batch.Updated = updated
	}

	tally.record(batch)
	batch.Complete()
	if err := e.batches.Save(ctx, batch); err != nil {
		return batch, fmt.Errorf("save batch: %w", err)
	}

	e.logger.Info("product etl completed",
		zap.String("batch_id", batch.BatchID.String()),
		zap.Int("extracted", batch.Extracted),
		zap.Int("inserted", batch.Inserted),
		zap.Int("updated", batch.Updated),
		zap.Int("discarded", batch.Failed),
		zap.Duration("duration", batch.Duration()))
	return batch, nil
}

func (e *ProductETL) fail(ctx context.Context, batch *syncdomain.ETLBatch, tally requestTally, cause error) (*syncdomain.ETLBatch, error) {
	tally.record(batch)
	batch.Fail(cause.Error())
	if err := e.batches.Save(ctx, batch); err != nil {
		e.logger.Error("save failed batch", zap.Error(err))
	}
	e.logger.Error("product etl failed",
		zap.String("batch_id", batch.BatchID.String()),
		zap.Error(cause))
	return batch, cause
}
