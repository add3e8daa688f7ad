package analytics

// ---------------------------------------------------------------------------
// Visibility
// ---------------------------------------------------------------------------

// Visibility is the closed enumeration of product catalog statuses.
// Free-text upstream values are mapped onto it by the normalization layer;
// anything unrecognized maps to VisibilityUnknown rather than failing.
type Visibility string

const (
	// VisibilityVisible means the offer is live and purchasable
	VisibilityVisible Visibility = "VISIBLE"
	// VisibilityHidden means the seller has hidden the offer
	VisibilityHidden Visibility = "HIDDEN"
	// VisibilityModeration means the offer is under marketplace review
	VisibilityModeration Visibility = "MODERATION"
	// VisibilityDeclined means the marketplace rejected the offer
	VisibilityDeclined Visibility = "DECLINED"
	// VisibilityUnknown is the sentinel for unrecognized upstream values
	VisibilityUnknown Visibility = "UNKNOWN"
)

// IsValid returns true if the visibility is a known enum value.
func (v Visibility) IsValid() bool {
	switch v {
	case VisibilityVisible, VisibilityHidden, VisibilityModeration,
		VisibilityDeclined, VisibilityUnknown:
		return true
	default:
		return false
	}
}

// String returns the string representation of the visibility.
func (v Visibility) String() string {
	return string(v)
}
