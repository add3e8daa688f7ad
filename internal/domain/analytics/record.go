package analytics

import (
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// DataSource
// ---------------------------------------------------------------------------

// DataSource indicates where an extracted record originated.
type DataSource string

const (
	// DataSourceAPI indicates the record came from a live upstream call
	DataSourceAPI DataSource = "api"
	// DataSourceCache indicates the record was served from the response cache
	DataSourceCache DataSource = "cache"
	// DataSourceFallback indicates the record was reconstructed from prior data
	DataSourceFallback DataSource = "fallback"
)

// IsValid returns true if the data source is a known value.
func (s DataSource) IsValid() bool {
	switch s {
	case DataSourceAPI, DataSourceCache, DataSourceFallback:
		return true
	default:
		return false
	}
}

// ---------------------------------------------------------------------------
// QualityIssue
// ---------------------------------------------------------------------------

// QualityIssue describes a single data-quality finding on a record.
// Issues lower the quality score but never abort a batch.
type QualityIssue struct {
	// Field is the record field the issue was found on
	Field string `json:"field"`
	// Message describes the finding
	Message string `json:"message"`
	// Penalty is the number of quality points deducted
	Penalty int `json:"penalty"`
}

// ---------------------------------------------------------------------------
// StockRecord
// ---------------------------------------------------------------------------

// MaxQualityScore is the score of a record with no quality findings.
const MaxQualityScore = 100

// StockRecord is the unit of extraction from the analytics API: one
// SKU-per-warehouse stock observation plus catalog attributes.
type StockRecord struct {
	SKU           string          `json:"sku"`
	OfferID       string          `json:"offer_id"`
	WarehouseName string          `json:"warehouse_name"`

	// AvailableStock is the quantity free for sale
	AvailableStock int64 `json:"available_stock"`
	// ReservedStock is the quantity held against open orders
	ReservedStock int64 `json:"reserved_stock"`
	// TotalStock is available + reserved; reconciled against an
	// upstream-provided total when one is present
	TotalStock int64 `json:"total_stock"`

	ProductName string          `json:"product_name"`
	Category    string          `json:"category"`
	Brand       string          `json:"brand"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`

	UpdatedAt time.Time `json:"updated_at"`

	// DataSource records where this observation came from
	DataSource DataSource `json:"data_source"`
	// DataQualityScore is 0-100, produced by the validator
	DataQualityScore int `json:"data_quality_score"`
	// Issues holds the validator findings that lowered the score
	Issues []QualityIssue `json:"issues,omitempty"`
}

// DerivedTotal returns available + reserved.
func (r *StockRecord) DerivedTotal() int64 {
	return r.AvailableStock + r.ReservedStock
}

// Reconciled reports whether available + reserved matches the stored total.
func (r *StockRecord) Reconciled() bool {
	return r.DerivedTotal() == r.TotalStock
}

// ---------------------------------------------------------------------------
// VisibilityRecord
// ---------------------------------------------------------------------------

// VisibilityRecord is one row of the product visibility report: the catalog
// status of a single offer as reported by the marketplace.
type VisibilityRecord struct {
	OfferID   string `json:"offer_id"`
	ProductID string `json:"product_id"`
	// ProductName is the listing title, when the report carries one
	ProductName string `json:"product_name"`
	// RawStatus is the free-text status string exactly as reported upstream;
	// the normalization layer maps it onto the closed Visibility enum
	RawStatus string `json:"raw_status"`
	// Visibility is the normalized status, populated by the normalizer
	Visibility Visibility `json:"visibility"`
}
