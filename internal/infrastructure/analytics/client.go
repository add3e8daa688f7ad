package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	domain "github.com/stocklens/backend/internal/domain/analytics"
)

// ---------------------------------------------------------------------------
// Collaborator interfaces
// ---------------------------------------------------------------------------

// PageCache is the response cache consumed by the client. The client owns
// entry lifecycle: it decides keys, TTLs and what never gets cached.
type PageCache interface {
	// Get returns the cached payload for key, with a hit indicator
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores a payload under key for ttl
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
}

// cacheSizer is implemented by caches that can report their entry count.
type cacheSizer interface {
	EntryCount(ctx context.Context) (int64, error)
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

// Client is the paginated, rate-limited, retrying, cached HTTP client for
// the marketplace analytics endpoint family. All failures it raises are
// classified analytics errors.
type Client struct {
	config     *Config
	httpClient *http.Client
	limiter    *RateLimiter
	cache      PageCache
	logger     *zap.Logger

	cacheHits      atomic.Int64
	cacheMisses    atomic.Int64
	requestsMade   atomic.Int64
	requestsFailed atomic.Int64

	// sleep is replaceable in tests so backoff sequences can be observed
	// without real waiting
	sleep func(ctx context.Context, d time.Duration) error
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithLogger sets the client logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient injects a custom HTTP client (tests, proxies).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates an analytics client. The cache is an explicitly owned
// collaborator with its own lifecycle; pass nil to disable caching.
func NewClient(config *Config, cache PageCache, opts ...ClientOption) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		limiter: NewRateLimiter(config.RequestsPerMinute, config.MinRequestInterval),
		cache:   cache,
		logger:  zap.NewNop(),
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ---------------------------------------------------------------------------
// FetchPage
// ---------------------------------------------------------------------------

// FetchPage returns one page of stock records. Pages are served from the
// response cache when a fresh entry exists; otherwise the request goes
// through the rate limiter and retry policy, and a valid response is written
// through to the cache before returning.
func (c *Client) FetchPage(ctx context.Context, offset, limit int, filters domain.Filters) (*domain.StockPage, error) {
	if err := domain.ValidatePageArgs(offset, limit); err != nil {
		return nil, err
	}

	key := filters.Fingerprint(endpointStocks, offset, limit)
	if page, ok := c.cachedPage(ctx, key); ok {
		return page, nil
	}

	body, err := json.Marshal(stockRequest{
		Offset:  offset,
		Limit:   limit,
		Filters: newStockFilters(filters),
	})
	if err != nil {
		return nil, domain.NewError(domain.KindValidation, "fetchPage", err)
	}

	respBody, err := c.doWithRetry(ctx, "fetchPage", endpointStocks, body)
	if err != nil {
		return nil, err
	}

	page, err := parseStockPage(respBody, offset, limit)
	if err != nil {
		// A malformed payload must never poison the cache.
		return nil, err
	}

	c.writeCache(ctx, key, page)
	return page, nil
}

// cachedPage attempts to serve a page from the cache.
func (c *Client) cachedPage(ctx context.Context, key string) (*domain.StockPage, bool) {
	if c.cache == nil {
		return nil, false
	}
	payload, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("response cache read failed", zap.Error(err))
		return nil, false
	}
	if !ok {
		c.cacheMisses.Add(1)
		return nil, false
	}

	var page domain.StockPage
	if err := json.Unmarshal(payload, &page); err != nil {
		c.logger.Warn("response cache entry is unreadable, refetching", zap.Error(err))
		c.cacheMisses.Add(1)
		return nil, false
	}
	c.cacheHits.Add(1)
	page.DataSource = domain.DataSourceCache
	for i := range page.Records {
		page.Records[i].DataSource = domain.DataSourceCache
	}
	return &page, true
}

// writeCache stores a successfully parsed page.
func (c *Client) writeCache(ctx context.Context, key string, page *domain.StockPage) {
	if c.cache == nil {
		return
	}
	payload, err := json.Marshal(page)
	if err != nil {
		c.logger.Warn("failed to encode page for cache", zap.Error(err))
		return
	}
	if err := c.cache.Set(ctx, key, payload, c.config.CacheTTL); err != nil {
		c.logger.Warn("response cache write failed", zap.Error(err))
	}
}

// parseStockPage validates the response shape and converts rows.
func parseStockPage(body []byte, offset, limit int) (*domain.StockPage, error) {
	var resp stockResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.NewError(domain.KindInvalidResponse, "fetchPage", err)
	}
	if resp.Result == nil {
		return nil, domain.NewError(domain.KindInvalidResponse, "fetchPage",
			fmt.Errorf("response has no result object"))
	}
	if len(resp.Result.Rows) > limit {
		return nil, domain.NewError(domain.KindInvalidResponse, "fetchPage",
			fmt.Errorf("upstream returned %d rows for limit %d", len(resp.Result.Rows), limit))
	}

	now := time.Now().UTC()
	records := make([]domain.StockRecord, 0, len(resp.Result.Rows))
	for _, row := range resp.Result.Rows {
		records = append(records, row.toRecord(now))
	}

	return &domain.StockPage{
		Records:    records,
		Offset:     offset,
		BatchSize:  len(records),
		TotalCount: resp.Result.TotalCount,
		HasMore:    resp.Result.HasMore,
		DataSource: domain.DataSourceAPI,
	}, nil
}

// ---------------------------------------------------------------------------
// StreamAll
// ---------------------------------------------------------------------------

// PageStream is a finite, forward-only traversal over all pages matching a
// filter set. It is not restartable; create a new stream to traverse again.
// A consumer that stops calling Next terminates the traversal cooperatively.
type PageStream struct {
	client  *Client
	filters domain.Filters
	offset  int
	page    *domain.StockPage
	err     error
	done    bool
}

// StreamAll begins a fresh offset-0 traversal. The consumer holds at most
// one page in memory at a time.
func (c *Client) StreamAll(filters domain.Filters) *PageStream {
	return &PageStream{client: c, filters: filters}
}

// Next advances to the next page. It returns false when the traversal is
// exhausted or failed; check Err afterwards.
func (s *PageStream) Next(ctx context.Context) bool {
	if s.done || s.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		s.err = err
		return false
	}

	page, err := s.client.FetchPage(ctx, s.offset, s.client.config.PageLimit, s.filters)
	if err != nil {
		s.err = err
		return false
	}
	if len(page.Records) == 0 {
		s.done = true
		return false
	}

	// Advance by the page size actually returned, not the requested limit,
	// so short pages do not skip records.
	s.offset += page.BatchSize
	s.page = page
	if !page.HasMore {
		s.done = true
	}
	return true
}

// Page returns the page fetched by the last successful Next call.
func (s *PageStream) Page() *domain.StockPage {
	return s.page
}

// Err returns the error that terminated the traversal, if any.
func (s *PageStream) Err() error {
	return s.err
}

// ---------------------------------------------------------------------------
// Probe and stats
// ---------------------------------------------------------------------------

// ConnectionStatus reports the outcome of a connectivity probe.
type ConnectionStatus struct {
	Success bool             `json:"success"`
	Latency time.Duration    `json:"latency"`
	Error   string           `json:"error,omitempty"`
	Kind    domain.ErrorKind `json:"error_kind,omitempty"`
}

// TestConnection issues a minimal single-row probe without consuming a full
// pagination cycle or the retry budget.
func (c *Client) TestConnection(ctx context.Context) ConnectionStatus {
	body, _ := json.Marshal(stockRequest{Offset: 0, Limit: 1})

	start := time.Now()
	respBody, err := c.do(ctx, "testConnection", endpointStocks, body)
	latency := time.Since(start)
	if err != nil {
		return ConnectionStatus{
			Success: false,
			Latency: latency,
			Error:   err.Error(),
			Kind:    domain.KindOf(err),
		}
	}
	if _, err := parseStockPage(respBody, 0, 1); err != nil {
		return ConnectionStatus{
			Success: false,
			Latency: latency,
			Error:   err.Error(),
			Kind:    domain.KindOf(err),
		}
	}
	return ConnectionStatus{Success: true, Latency: latency}
}

// Stats is an observability snapshot of the client.
type Stats struct {
	CacheHits      int64 `json:"cache_hits"`
	CacheMisses    int64 `json:"cache_misses"`
	CacheEntries   int64 `json:"cache_entries"`
	RequestsMade   int64 `json:"requests_made"`
	RequestsFailed int64 `json:"requests_failed"`
	// RecentRequests counts requests granted within the trailing rate window
	RecentRequests int `json:"recent_requests"`
}

// RequestCounts reports the cumulative number of upstream requests issued
// and failed. Callers diff two readings to attribute usage to a span of work.
func (c *Client) RequestCounts() (made, failed int64) {
	return c.requestsMade.Load(), c.requestsFailed.Load()
}

// GetStats reports cache and request counters. It has no side effects.
func (c *Client) GetStats(ctx context.Context) Stats {
	st := Stats{
		CacheHits:      c.cacheHits.Load(),
		CacheMisses:    c.cacheMisses.Load(),
		RequestsMade:   c.requestsMade.Load(),
		RequestsFailed: c.requestsFailed.Load(),
		RecentRequests: c.limiter.RecentCount(),
	}
	if sizer, ok := c.cache.(cacheSizer); ok {
		if n, err := sizer.EntryCount(ctx); err == nil {
			st.CacheEntries = n
		}
	}
	return st
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

// doWithRetry issues a request, retrying retryable failures per the backoff
// policy. Non-retryable failures are returned on first occurrence; an
// exhausted budget surfaces as KindMaxRetries.
func (c *Client) doWithRetry(ctx context.Context, op, path string, body []byte) ([]byte, error) {
	policy := c.config.Retry

	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		respBody, err := c.do(ctx, op, path, body)
		if err == nil {
			return respBody, nil
		}

		var aerr *domain.Error
		if !errors.As(err, &aerr) || !aerr.Retryable() {
			return nil, err
		}
		lastErr = err

		delay := policy.Delay(attempt)
		c.logger.Warn("retryable analytics failure, backing off",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if serr := c.sleep(ctx, delay); serr != nil {
			return nil, serr
		}
	}

	return nil, &domain.Error{
		Kind:     domain.KindMaxRetries,
		Op:       op,
		Attempts: policy.MaxAttempts,
		Err:      lastErr,
	}
}

// do performs a single rate-limited request and classifies any failure.
func (c *Client) do(ctx context.Context, op, path string, body []byte) ([]byte, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, domain.NewError(domain.KindValidation, op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Client-Id", c.config.ClientID)
	req.Header.Set("Api-Key", c.config.APIKey)

	c.requestsMade.Add(1)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.requestsFailed.Add(1)
		return nil, domain.NewError(domain.KindNetwork, op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		c.requestsFailed.Add(1)
		return nil, domain.NewError(domain.KindNetwork, op, err)
	}

	if resp.StatusCode >= 400 {
		c.requestsFailed.Add(1)
		return nil, domain.NewError(classifyStatus(resp.StatusCode), op,
			fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(respBody, 256)))
	}

	return respBody, nil
}

// classifyStatus maps an HTTP status onto the error taxonomy.
func classifyStatus(status int) domain.ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.KindAuthentication
	case status == http.StatusNotFound:
		return domain.KindNotFound
	case status == http.StatusTooManyRequests:
		return domain.KindRateLimit
	case status >= 500:
		return domain.KindServer
	default:
		return domain.KindValidation
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
