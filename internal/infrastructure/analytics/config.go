package analytics

import (
	"errors"
	"time"
)

// Config holds configuration for the marketplace analytics API client.
type Config struct {
	// BaseURL is the analytics API root, e.g. https://api-seller.example.com
	BaseURL string
	// ClientID identifies the seller account
	ClientID string
	// APIKey authorizes requests for the account
	APIKey string
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int

	// PageLimit is the page size used by StreamAll (max 1000)
	PageLimit int
	// CacheTTL is how long fetched pages stay valid in the response cache
	CacheTTL time.Duration

	// RequestsPerMinute caps the outbound request rate
	RequestsPerMinute int
	// MinRequestInterval is the minimum spacing between granted requests
	MinRequestInterval time.Duration

	// Retry is the backoff policy applied to retryable failures
	Retry RetryPolicy

	// ReportPollInterval is the delay between report status polls
	ReportPollInterval time.Duration
	// ReportPollTimeout bounds how long a report is awaited
	ReportPollTimeout time.Duration
}

// Errors for analytics client configuration
var (
	ErrConfigMissingBaseURL  = errors.New("analytics: base URL is required")
	ErrConfigMissingClientID = errors.New("analytics: client ID is required")
	ErrConfigMissingAPIKey   = errors.New("analytics: API key is required")
	ErrConfigInvalidLimit    = errors.New("analytics: page limit must be in (0, 1000]")
)

// NewConfig creates a client configuration with defaults. The documented
// defaults of the surrounding system are starting points, not invariants;
// every knob is overridable.
func NewConfig(baseURL, clientID, apiKey string) *Config {
	return &Config{
		BaseURL:            baseURL,
		ClientID:           clientID,
		APIKey:             apiKey,
		TimeoutSeconds:     30,
		PageLimit:          1000,
		CacheTTL:           2 * time.Hour,
		RequestsPerMinute:  30,
		MinRequestInterval: 2 * time.Second,
		Retry:              DefaultRetryPolicy(),
		ReportPollInterval: 5 * time.Second,
		ReportPollTimeout:  5 * time.Minute,
	}
}

// Validate validates the configuration and fills zero values with defaults.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrConfigMissingBaseURL
	}
	if c.ClientID == "" {
		return ErrConfigMissingClientID
	}
	if c.APIKey == "" {
		return ErrConfigMissingAPIKey
	}
	if c.PageLimit < 0 || c.PageLimit > 1000 {
		return ErrConfigInvalidLimit
	}
	if c.PageLimit == 0 {
		c.PageLimit = 1000
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 2 * time.Hour
	}
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = 30
	}
	if c.MinRequestInterval <= 0 {
		c.MinRequestInterval = 2 * time.Second
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry = DefaultRetryPolicy()
	}
	if c.ReportPollInterval <= 0 {
		c.ReportPollInterval = 5 * time.Second
	}
	if c.ReportPollTimeout <= 0 {
		c.ReportPollTimeout = 5 * time.Minute
	}
	return nil
}
