package quality

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/stocklens/backend/internal/domain/analytics"
)

var (
	// ErrRecordDiscarded is returned when a record fails a hard structural
	// check and must be dropped from the batch. This is the only validation
	// outcome that is surfaced to the caller; everything else lowers the
	// quality score and lets the batch continue.
	ErrRecordDiscarded = errors.New("quality: record discarded")
)

// Penalty points per finding. The score starts at 100 and is clamped at 0.
const (
	penaltyMissingField   = 10
	penaltyNegativeNumber = 20
	penaltyReconciliation = 15
	penaltyBadCurrency    = 5
)

// Validator applies schema and business-rule checks to extracted records.
// It is stateless and safe for concurrent use.
type Validator struct{}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateStock checks one stock record. The record's quality score and
// issue list are populated in place. A non-nil error means the record must
// be discarded (missing primary key); all other findings are soft.
func (v *Validator) ValidateStock(rec *analytics.StockRecord) error {
	if strings.TrimSpace(rec.SKU) == "" && strings.TrimSpace(rec.OfferID) == "" {
		return fmt.Errorf("%w: missing sku and offer_id", ErrRecordDiscarded)
	}

	score := analytics.MaxQualityScore
	var issues []analytics.QualityIssue

	flag := func(field, msg string, penalty int) {
		issues = append(issues, analytics.QualityIssue{Field: field, Message: msg, Penalty: penalty})
		score -= penalty
	}

	if strings.TrimSpace(rec.WarehouseName) == "" {
		flag("warehouse_name", "warehouse name is empty", penaltyMissingField)
	}
	if strings.TrimSpace(rec.ProductName) == "" {
		flag("product_name", "product name is empty", penaltyMissingField)
	}

	if rec.AvailableStock < 0 {
		flag("available_stock", "negative available stock clamped to 0", penaltyNegativeNumber)
		rec.AvailableStock = 0
	}
	if rec.ReservedStock < 0 {
		flag("reserved_stock", "negative reserved stock clamped to 0", penaltyNegativeNumber)
		rec.ReservedStock = 0
	}
	if rec.Price.IsNegative() {
		flag("price", "negative price clamped to 0", penaltyNegativeNumber)
		rec.Price = decimal.Zero
	}

	// Upstream-provided total is authoritative when present; a zero total with
	// non-zero components means the source omitted it and we derive locally.
	if rec.TotalStock == 0 && rec.DerivedTotal() != 0 {
		rec.TotalStock = rec.DerivedTotal()
	} else if !rec.Reconciled() {
		flag("total_stock",
			fmt.Sprintf("total %d does not reconcile with available %d + reserved %d",
				rec.TotalStock, rec.AvailableStock, rec.ReservedStock),
			penaltyReconciliation)
	}

	if rec.Currency != "" && len(rec.Currency) != 3 {
		flag("currency", "currency is not a three-letter ISO code", penaltyBadCurrency)
	}

	if score < 0 {
		score = 0
	}
	rec.DataQualityScore = score
	rec.Issues = issues
	return nil
}

// ValidateVisibility checks one visibility report row. A non-nil error means
// the row must be discarded.
func (v *Validator) ValidateVisibility(rec *analytics.VisibilityRecord) error {
	if strings.TrimSpace(rec.OfferID) == "" {
		return fmt.Errorf("%w: missing offer_id", ErrRecordDiscarded)
	}
	return nil
}
