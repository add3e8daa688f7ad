package quality

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/stocklens/backend/internal/domain/analytics"
)

// ---------------------------------------------------------------------------
// Match Confidence
// ---------------------------------------------------------------------------

// MatchConfidence grades how a warehouse name was canonicalized.
type MatchConfidence string

const (
	// MatchExact means the name matched a canonical warehouse directly
	MatchExact MatchConfidence = "EXACT"
	// MatchAlias means the name matched through the alias table
	MatchAlias MatchConfidence = "ALIAS"
	// MatchPassthrough means the name is unmapped and kept as-is
	MatchPassthrough MatchConfidence = "PASSTHROUGH"
)

// ---------------------------------------------------------------------------
// Normalizer
// ---------------------------------------------------------------------------

// Normalizer canonicalizes warehouse names, coerces loosely typed fields and
// maps free-text status values onto the closed visibility enumeration.
// It is safe for concurrent use once constructed.
type Normalizer struct {
	// canonical maps a folded warehouse name to its canonical form
	canonical map[string]string
	// aliases maps folded alternative spellings to canonical forms
	aliases map[string]string
	// statuses maps folded free-text status values to visibility values
	statuses map[string]analytics.Visibility
}

// NormalizerOption configures a Normalizer.
type NormalizerOption func(*Normalizer)

// WithWarehouses registers canonical warehouse names.
func WithWarehouses(names ...string) NormalizerOption {
	return func(n *Normalizer) {
		for _, name := range names {
			n.canonical[fold(name)] = name
		}
	}
}

// WithWarehouseAlias registers an alternative spelling for a canonical name.
func WithWarehouseAlias(alias, canonical string) NormalizerOption {
	return func(n *Normalizer) {
		n.aliases[fold(alias)] = canonical
	}
}

// NewNormalizer creates a normalizer with the built-in status synonym table.
func NewNormalizer(opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{
		canonical: make(map[string]string),
		aliases:   make(map[string]string),
		statuses:  defaultStatusSynonyms(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// defaultStatusSynonyms is the exhaustive free-text to enum mapping.
// Keys are folded (lowercase, trimmed). The marketplace reports statuses in
// both English and Russian depending on account locale.
func defaultStatusSynonyms() map[string]analytics.Visibility {
	return map[string]analytics.Visibility{
		"visible":      analytics.VisibilityVisible,
		"active":       analytics.VisibilityVisible,
		"on sale":      analytics.VisibilityVisible,
		"продаётся":    analytics.VisibilityVisible,
		"продается":    analytics.VisibilityVisible,
		"в продаже":    analytics.VisibilityVisible,
		"hidden":       analytics.VisibilityHidden,
		"inactive":     analytics.VisibilityHidden,
		"archived":     analytics.VisibilityHidden,
		"скрыт":        analytics.VisibilityHidden,
		"скрыто":       analytics.VisibilityHidden,
		"в архиве":     analytics.VisibilityHidden,
		"moderation":   analytics.VisibilityModeration,
		"pending":      analytics.VisibilityModeration,
		"in review":    analytics.VisibilityModeration,
		"на модерации": analytics.VisibilityModeration,
		"проверяется":  analytics.VisibilityModeration,
		"declined":     analytics.VisibilityDeclined,
		"rejected":     analytics.VisibilityDeclined,
		"отклонён":     analytics.VisibilityDeclined,
		"отклонен":     analytics.VisibilityDeclined,
		"не прошёл модерацию": analytics.VisibilityDeclined,
	}
}

// fold produces the lookup form of a name: lowercased, trimmed, inner
// whitespace collapsed to single spaces.
func fold(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), " ")
}

// CanonicalWarehouse resolves a warehouse name to its canonical form.
// Exact matches rank above alias matches; unmapped names pass through
// unchanged with low confidence.
func (n *Normalizer) CanonicalWarehouse(name string) (string, MatchConfidence) {
	folded := fold(name)
	if canonical, ok := n.canonical[folded]; ok {
		return canonical, MatchExact
	}
	if canonical, ok := n.aliases[folded]; ok {
		return canonical, MatchAlias
	}
	return name, MatchPassthrough
}

// MapStatus maps a free-text status value onto the closed enumeration.
// Unrecognized values map to VisibilityUnknown, never an error.
func (n *Normalizer) MapStatus(raw string) analytics.Visibility {
	if v, ok := n.statuses[fold(raw)]; ok {
		return v
	}
	return analytics.VisibilityUnknown
}

// NormalizeStock canonicalizes a validated stock record in place and returns
// the warehouse match confidence.
func (n *Normalizer) NormalizeStock(rec *analytics.StockRecord) MatchConfidence {
	canonical, confidence := n.CanonicalWarehouse(rec.WarehouseName)
	rec.WarehouseName = canonical
	if rec.SKU == "" {
		rec.SKU = rec.OfferID
	}
	if rec.OfferID == "" {
		rec.OfferID = rec.SKU
	}
	rec.Currency = strings.ToUpper(strings.TrimSpace(rec.Currency))
	return confidence
}

// NormalizeVisibility maps a visibility row's raw status onto the enum.
func (n *Normalizer) NormalizeVisibility(rec *analytics.VisibilityRecord) {
	rec.Visibility = n.MapStatus(rec.RawStatus)
}

// ---------------------------------------------------------------------------
// Coercion helpers
// ---------------------------------------------------------------------------

// CoerceInt64 parses a numeric field that the upstream may deliver either as
// a number or as a string ("42", "42.0", "").
func CoerceInt64(raw string) (int64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f), true
	}
	return 0, false
}

// CoerceDecimal parses a money field delivered as free text. Commas used as
// decimal separators are tolerated.
func CoerceDecimal(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(strings.ReplaceAll(raw, ",", "."))
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
