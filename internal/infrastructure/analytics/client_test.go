package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/stocklens/backend/internal/domain/analytics"
	"github.com/stocklens/backend/internal/infrastructure/cache"
)

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

func newTestConfig(baseURL string) *Config {
	cfg := NewConfig(baseURL, "test-client", "test-key")
	cfg.PageLimit = 100
	cfg.RequestsPerMinute = 10000
	cfg.MinRequestInterval = time.Millisecond
	return cfg
}

func newTestClient(t *testing.T, cfg *Config, pageCache PageCache) *Client {
	t.Helper()
	client, err := NewClient(cfg, pageCache)
	require.NoError(t, err)
	// Backoff sleeps are captured instead of slept so retry sequences run
	// instantly.
	client.sleep = func(context.Context, time.Duration) error { return nil }
	return client
}

// stockServer serves a fixed dataset of total records through the paginated
// stock endpoint and records every requested offset.
func stockServer(t *testing.T, total int, offsets *[]int, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "test-client", r.Header.Get("Client-Id"))
		require.Equal(t, "test-key", r.Header.Get("Api-Key"))

		var req stockRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if offsets != nil {
			*offsets = append(*offsets, req.Offset)
		}
		if hits != nil {
			hits.Add(1)
		}

		end := req.Offset + req.Limit
		if end > total {
			end = total
		}
		rows := make([]map[string]any, 0)
		for i := req.Offset; i < end; i++ {
			rows = append(rows, map[string]any{
				"sku":                 fmt.Sprintf("SKU-%d", i),
				"offer_id":            fmt.Sprintf("OFFER-%d", i),
				"warehouse_name":      "Moscow Main",
				"free_to_sell_amount": 5,
				"reserved_amount":     1,
				"total_amount":        6,
				"item_name":           "Widget",
				"price":               "100.50",
				"currency_code":       "RUB",
				"updated_at":          "2025-03-01T10:00:00Z",
			})
		}
		resp := map[string]any{"result": map[string]any{
			"rows":        rows,
			"total_count": total,
			"has_more":    end < total,
		}}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

// ---------------------------------------------------------------------------
// FetchPage / StreamAll
// ---------------------------------------------------------------------------

func TestFetchPageReturnsRecords(t *testing.T) {
	srv := stockServer(t, 10, nil, nil)
	defer srv.Close()

	client := newTestClient(t, newTestConfig(srv.URL), nil)

	page, err := client.FetchPage(context.Background(), 0, 100, domain.Filters{})
	require.NoError(t, err)

	assert.Len(t, page.Records, 10)
	assert.Equal(t, 10, page.BatchSize)
	assert.EqualValues(t, 10, page.TotalCount)
	assert.False(t, page.HasMore)
	assert.Equal(t, domain.DataSourceAPI, page.DataSource)

	rec := page.Records[0]
	assert.Equal(t, "SKU-0", rec.SKU)
	assert.EqualValues(t, 5, rec.AvailableStock)
	assert.EqualValues(t, 1, rec.ReservedStock)
	assert.EqualValues(t, 6, rec.TotalStock)
	assert.Equal(t, "100.5", rec.Price.String())
	assert.Equal(t, "2025-03-01T10:00:00Z", rec.UpdatedAt.Format(time.RFC3339))
}

func TestFetchPageRejectsBadArgs(t *testing.T) {
	client := newTestClient(t, newTestConfig("http://unused"), nil)

	_, err := client.FetchPage(context.Background(), -1, 100, domain.Filters{})
	assert.ErrorIs(t, err, domain.ErrInvalidOffset)

	_, err = client.FetchPage(context.Background(), 0, 0, domain.Filters{})
	assert.ErrorIs(t, err, domain.ErrInvalidLimit)

	_, err = client.FetchPage(context.Background(), 0, domain.MaxPageLimit+1, domain.Filters{})
	assert.ErrorIs(t, err, domain.ErrInvalidLimit)
}

func TestStreamAllWalksEveryPage(t *testing.T) {
	var offsets []int
	srv := stockServer(t, 250, &offsets, nil)
	defer srv.Close()

	client := newTestClient(t, newTestConfig(srv.URL), nil)

	stream := client.StreamAll(domain.Filters{})
	var records []domain.StockRecord
	pages := 0
	for stream.Next(context.Background()) {
		pages++
		records = append(records, stream.Page().Records...)
	}
	require.NoError(t, stream.Err())

	assert.Equal(t, 3, pages)
	assert.Len(t, records, 250)
	assert.Equal(t, []int{0, 100, 200}, offsets, "offset advances by returned page size")
	assert.Equal(t, "SKU-249", records[249].SKU)
}

func TestStreamAllStopsOnEmptyDataset(t *testing.T) {
	srv := stockServer(t, 0, nil, nil)
	defer srv.Close()

	client := newTestClient(t, newTestConfig(srv.URL), nil)

	stream := client.StreamAll(domain.Filters{})
	assert.False(t, stream.Next(context.Background()))
	assert.NoError(t, stream.Err())
}

func TestStreamAllSurfacesFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := newTestClient(t, newTestConfig(srv.URL), nil)

	stream := client.StreamAll(domain.Filters{})
	assert.False(t, stream.Next(context.Background()))
	assert.Equal(t, domain.KindAuthentication, domain.KindOf(stream.Err()))
}

// ---------------------------------------------------------------------------
// Retry behavior
// ---------------------------------------------------------------------------

func TestFetchPageExhaustsRetryBudgetOn429(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := newTestClient(t, newTestConfig(srv.URL), nil)
	var delays []time.Duration
	client.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	_, err := client.FetchPage(context.Background(), 0, 100, domain.Filters{})
	require.Error(t, err)

	var aerr *domain.Error
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, domain.KindMaxRetries, aerr.Kind)
	assert.Equal(t, 3, aerr.Attempts)
	assert.True(t, aerr.Critical())

	assert.EqualValues(t, 3, hits.Load(), "each attempt reaches the upstream once")
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}, delays,
		"backoff doubles from one second")

	// The terminal error still reveals the last underlying failure.
	assert.Equal(t, domain.KindRateLimit, domain.KindOf(aerr.Err))
}

func TestFetchPageFailsFastOnAuthError(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := newTestClient(t, newTestConfig(srv.URL), nil)

	_, err := client.FetchPage(context.Background(), 0, 100, domain.Filters{})
	assert.Equal(t, domain.KindAuthentication, domain.KindOf(err))
	assert.EqualValues(t, 1, hits.Load(), "authentication failures are not retried")
}

func TestFetchPageRecoversAfterTransientFailure(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		resp := map[string]any{"result": map[string]any{"rows": []any{}, "total_count": 0, "has_more": false}}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := newTestClient(t, newTestConfig(srv.URL), nil)

	page, err := client.FetchPage(context.Background(), 0, 100, domain.Filters{})
	require.NoError(t, err)
	assert.Empty(t, page.Records)
	assert.EqualValues(t, 2, hits.Load())
}

// ---------------------------------------------------------------------------
// Cache behavior
// ---------------------------------------------------------------------------

func TestFetchPageServesSecondReadFromCache(t *testing.T) {
	var hits atomic.Int64
	srv := stockServer(t, 10, nil, &hits)
	defer srv.Close()

	pageCache := cache.NewMemoryResponseCache()
	defer pageCache.Close()
	client := newTestClient(t, newTestConfig(srv.URL), pageCache)

	first, err := client.FetchPage(context.Background(), 0, 100, domain.Filters{})
	require.NoError(t, err)
	assert.Equal(t, domain.DataSourceAPI, first.DataSource)

	second, err := client.FetchPage(context.Background(), 0, 100, domain.Filters{})
	require.NoError(t, err)

	assert.EqualValues(t, 1, hits.Load(), "second read must not reach the upstream")
	assert.Equal(t, domain.DataSourceCache, second.DataSource)
	for _, rec := range second.Records {
		assert.Equal(t, domain.DataSourceCache, rec.DataSource)
	}
	assert.Equal(t, len(first.Records), len(second.Records))

	stats := client.GetStats(context.Background())
	assert.EqualValues(t, 1, stats.CacheHits)
	assert.EqualValues(t, 1, stats.CacheMisses)
	assert.EqualValues(t, 1, stats.CacheEntries)
	assert.EqualValues(t, 1, stats.RequestsMade)
}

func TestFetchPageDistinguishesCacheKeys(t *testing.T) {
	var hits atomic.Int64
	srv := stockServer(t, 250, nil, &hits)
	defer srv.Close()

	pageCache := cache.NewMemoryResponseCache()
	defer pageCache.Close()
	client := newTestClient(t, newTestConfig(srv.URL), pageCache)

	_, err := client.FetchPage(context.Background(), 0, 100, domain.Filters{})
	require.NoError(t, err)
	_, err = client.FetchPage(context.Background(), 100, 100, domain.Filters{})
	require.NoError(t, err)
	_, err = client.FetchPage(context.Background(), 0, 100, domain.Filters{Warehouses: []string{"A"}})
	require.NoError(t, err)

	assert.EqualValues(t, 3, hits.Load(), "offset and filters produce distinct entries")
}

func TestMalformedResponseIsNotCached(t *testing.T) {
	var hits atomic.Int64
	malformed := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		if malformed {
			fmt.Fprint(w, `{"result": null}`)
			return
		}
		resp := map[string]any{"result": map[string]any{"rows": []any{}, "total_count": 0, "has_more": false}}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	pageCache := cache.NewMemoryResponseCache()
	defer pageCache.Close()
	client := newTestClient(t, newTestConfig(srv.URL), pageCache)

	_, err := client.FetchPage(context.Background(), 0, 100, domain.Filters{})
	assert.Equal(t, domain.KindInvalidResponse, domain.KindOf(err))

	entries, err := pageCache.EntryCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, entries, "malformed payloads must never be cached")

	malformed = false
	_, err = client.FetchPage(context.Background(), 0, 100, domain.Filters{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, hits.Load())
}

func TestResponseWithTooManyRowsIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		rows := make([]map[string]any, 3)
		for i := range rows {
			rows[i] = map[string]any{"sku": fmt.Sprintf("S-%d", i)}
		}
		resp := map[string]any{"result": map[string]any{"rows": rows, "total_count": 3, "has_more": false}}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := newTestClient(t, newTestConfig(srv.URL), nil)

	_, err := client.FetchPage(context.Background(), 0, 2, domain.Filters{})
	assert.Equal(t, domain.KindInvalidResponse, domain.KindOf(err))
}

// ---------------------------------------------------------------------------
// Loose upstream typing
// ---------------------------------------------------------------------------

func TestFetchPageCoercesLooseTypes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"result": {"rows": [{
			"sku": "S-1",
			"offer_id": "O-1",
			"warehouse_name": "W",
			"free_to_sell_amount": "42",
			"reserved_amount": null,
			"price": "99,90",
			"currency_code": "rub",
			"updated_at": "not-a-timestamp"
		}], "total_count": 1, "has_more": false}}`)
	}))
	defer srv.Close()

	client := newTestClient(t, newTestConfig(srv.URL), nil)

	page, err := client.FetchPage(context.Background(), 0, 100, domain.Filters{})
	require.NoError(t, err)
	require.Len(t, page.Records, 1)

	rec := page.Records[0]
	assert.EqualValues(t, 42, rec.AvailableStock, "string quantities are coerced")
	assert.EqualValues(t, 0, rec.ReservedStock)
	assert.EqualValues(t, 42, rec.TotalStock, "missing upstream total is derived")
	assert.Equal(t, "99.9", rec.Price.String(), "comma decimal separator is tolerated")
	assert.False(t, rec.UpdatedAt.IsZero(), "unparseable timestamps fall back to fetch time")
}

// ---------------------------------------------------------------------------
// Probe and stats
// ---------------------------------------------------------------------------

func TestTestConnection(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		srv := stockServer(t, 1, nil, nil)
		defer srv.Close()

		client := newTestClient(t, newTestConfig(srv.URL), nil)
		status := client.TestConnection(context.Background())
		assert.True(t, status.Success)
		assert.Empty(t, status.Error)
	})

	t.Run("failure carries the error kind", func(t *testing.T) {
		var hits atomic.Int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		client := newTestClient(t, newTestConfig(srv.URL), nil)
		status := client.TestConnection(context.Background())
		assert.False(t, status.Success)
		assert.Equal(t, domain.KindServer, status.Kind)
		assert.EqualValues(t, 1, hits.Load(), "the probe never consumes the retry budget")
	})
}

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(NewConfig("", "id", "key"), nil)
	assert.ErrorIs(t, err, ErrConfigMissingBaseURL)

	_, err = NewClient(NewConfig("http://x", "", "key"), nil)
	assert.ErrorIs(t, err, ErrConfigMissingClientID)

	_, err = NewClient(NewConfig("http://x", "id", ""), nil)
	assert.ErrorIs(t, err, ErrConfigMissingAPIKey)
}
