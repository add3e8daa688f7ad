package analytics

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/stocklens/backend/internal/domain/analytics"
	"github.com/stocklens/backend/internal/domain/quality"
)

// API endpoints, relative to the configured base URL.
const (
	endpointStocks       = "/v1/analytics/stock_on_warehouses"
	endpointReportCreate = "/v1/report/products/create"
	endpointReportInfo   = "/v1/report/info"
)

// maxResponseSize limits the response body size to prevent memory exhaustion
const maxResponseSize = 32 * 1024 * 1024 // 32MB

// ---------------------------------------------------------------------------
// Flexible scalars
// ---------------------------------------------------------------------------

// flexInt accepts a JSON number or a numeric string; the upstream is not
// consistent about quantity typing across report versions.
type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, _ := quality.CoerceInt64(s)
		*f = flexInt(v)
		return nil
	}
	var v json.Number
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	n, err := v.Int64()
	if err != nil {
		fl, ferr := v.Float64()
		if ferr != nil {
			return ferr
		}
		n = int64(fl)
	}
	*f = flexInt(n)
	return nil
}

// flexDecimal accepts a JSON number or a numeric string for money fields.
type flexDecimal struct {
	decimal.Decimal
}

func (f *flexDecimal) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		f.Decimal = decimal.Zero
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		d, ok := quality.CoerceDecimal(s)
		if !ok {
			d = decimal.Zero
		}
		f.Decimal = d
		return nil
	}
	return f.Decimal.UnmarshalJSON(data)
}

// ---------------------------------------------------------------------------
// Stock endpoint envelopes
// ---------------------------------------------------------------------------

// stockRequest is the request body of the paginated stock endpoint.
type stockRequest struct {
	Offset  int          `json:"offset"`
	Limit   int          `json:"limit"`
	Filters stockFilters `json:"filters"`
}

type stockFilters struct {
	DateFrom   string   `json:"date_from,omitempty"`
	DateTo     string   `json:"date_to,omitempty"`
	Warehouses []string `json:"warehouse_name,omitempty"`
	SKUs       []string `json:"sku,omitempty"`
}

func newStockFilters(f domain.Filters) stockFilters {
	out := stockFilters{
		Warehouses: f.Warehouses,
		SKUs:       f.SKUs,
	}
	if f.DateFrom != nil {
		out.DateFrom = f.DateFrom.UTC().Format("2006-01-02")
	}
	if f.DateTo != nil {
		out.DateTo = f.DateTo.UTC().Format("2006-01-02")
	}
	return out
}

// stockResponse is the top-level response envelope.
type stockResponse struct {
	Result *stockResult `json:"result"`
}

type stockResult struct {
	Rows       []stockRow `json:"rows"`
	TotalCount int64      `json:"total_count"`
	HasMore    bool       `json:"has_more"`
}

// stockRow is one upstream stock observation.
type stockRow struct {
	SKU           string      `json:"sku"`
	OfferID       string      `json:"offer_id"`
	WarehouseName string      `json:"warehouse_name"`
	FreeToSell    flexInt     `json:"free_to_sell_amount"`
	Reserved      flexInt     `json:"reserved_amount"`
	Total         *flexInt    `json:"total_amount,omitempty"`
	ProductName   string      `json:"item_name"`
	Category      string      `json:"item_category"`
	Brand         string      `json:"brand"`
	Price         flexDecimal `json:"price"`
	Currency      string      `json:"currency_code"`
	UpdatedAt     string      `json:"updated_at"`
}

// toRecord converts an upstream row to the domain extraction unit.
func (r stockRow) toRecord(fetchedAt time.Time) domain.StockRecord {
	rec := domain.StockRecord{
		SKU:            r.SKU,
		OfferID:        r.OfferID,
		WarehouseName:  r.WarehouseName,
		AvailableStock: int64(r.FreeToSell),
		ReservedStock:  int64(r.Reserved),
		ProductName:    r.ProductName,
		Category:       r.Category,
		Brand:          r.Brand,
		Price:          r.Price.Decimal,
		Currency:       r.Currency,
		DataSource:     domain.DataSourceAPI,
	}
	if r.Total != nil {
		rec.TotalStock = int64(*r.Total)
	} else {
		rec.TotalStock = rec.DerivedTotal()
	}
	if ts, err := time.Parse(time.RFC3339, r.UpdatedAt); err == nil {
		rec.UpdatedAt = ts
	} else {
		rec.UpdatedAt = fetchedAt
	}
	return rec
}

// ---------------------------------------------------------------------------
// Report endpoint envelopes
// ---------------------------------------------------------------------------

// reportCreateRequest submits an asynchronous product visibility report.
type reportCreateRequest struct {
	Language string `json:"language"`
}

type reportCreateResponse struct {
	Result *struct {
		Code string `json:"code"`
	} `json:"result"`
}

// reportInfoRequest polls the state of a submitted report.
type reportInfoRequest struct {
	Code string `json:"code"`
}

type reportInfoResponse struct {
	Result *reportInfo `json:"result"`
}

type reportInfo struct {
	Status string `json:"status"`
	File   string `json:"file"`
	Error  string `json:"error"`
}

// Report status values used by the upstream.
const (
	reportStatusSuccess    = "success"
	reportStatusFailed     = "failed"
	reportStatusProcessing = "processing"
	reportStatusWaiting    = "waiting"
)
