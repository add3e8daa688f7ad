package analytics

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	// ErrInvalidLimit is returned when a page limit is outside (0, MaxPageLimit]
	ErrInvalidLimit = errors.New("analytics: limit must be in (0, 1000]")
	// ErrInvalidOffset is returned when a page offset is negative
	ErrInvalidOffset = errors.New("analytics: offset must be >= 0")
)

// MaxPageLimit is the largest page size the upstream accepts.
const MaxPageLimit = 1000

// ---------------------------------------------------------------------------
// Filters
// ---------------------------------------------------------------------------

// Filters narrows an analytics query. The zero value selects everything.
type Filters struct {
	// DateFrom/DateTo bound the observation window (inclusive)
	DateFrom *time.Time `json:"date_from,omitempty"`
	DateTo   *time.Time `json:"date_to,omitempty"`
	// Warehouses restricts results to the named warehouses
	Warehouses []string `json:"warehouses,omitempty"`
	// SKUs restricts results to the listed SKUs
	SKUs []string `json:"skus,omitempty"`
}

// canonical returns a deterministic encoding of the filters. List order and
// map iteration must not influence the cache fingerprint, and list elements
// are length-prefixed so separator characters inside a value cannot make two
// distinct filter sets collide.
func (f Filters) canonical() string {
	var b strings.Builder
	if f.DateFrom != nil {
		b.WriteString("from=" + f.DateFrom.UTC().Format(time.RFC3339) + ";")
	}
	if f.DateTo != nil {
		b.WriteString("to=" + f.DateTo.UTC().Format(time.RFC3339) + ";")
	}
	if len(f.Warehouses) > 0 {
		b.WriteString("wh=")
		writeCanonicalList(&b, f.Warehouses)
		b.WriteString(";")
	}
	if len(f.SKUs) > 0 {
		b.WriteString("sku=")
		writeCanonicalList(&b, f.SKUs)
		b.WriteString(";")
	}
	return b.String()
}

// writeCanonicalList appends a sorted copy of items, each element prefixed
// with its byte length.
func writeCanonicalList(b *strings.Builder, items []string) {
	sorted := append([]string(nil), items...)
	sort.Strings(sorted)
	for _, item := range sorted {
		fmt.Fprintf(b, "%d:%s,", len(item), item)
	}
}

// Fingerprint derives the deterministic cache key for one page request.
func (f Filters) Fingerprint(endpoint string, offset, limit int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d|%s", endpoint, offset, limit, f.canonical())))
	return hex.EncodeToString(sum[:])
}

// ---------------------------------------------------------------------------
// StockPage
// ---------------------------------------------------------------------------

// StockPage is one page of stock records as returned by FetchPage.
type StockPage struct {
	Records    []StockRecord `json:"records"`
	Offset     int           `json:"offset"`
	BatchSize  int           `json:"batch_size"`
	TotalCount int64         `json:"total_count"`
	HasMore    bool          `json:"has_more"`
	// DataSource tells the consumer whether the page was served live or cached
	DataSource DataSource `json:"data_source"`
}

// ValidatePageArgs checks FetchPage preconditions.
func ValidatePageArgs(offset, limit int) error {
	if limit <= 0 || limit > MaxPageLimit {
		return NewError(KindValidation, "fetchPage", ErrInvalidLimit)
	}
	if offset < 0 {
		return NewError(KindValidation, "fetchPage", ErrInvalidOffset)
	}
	return nil
}
