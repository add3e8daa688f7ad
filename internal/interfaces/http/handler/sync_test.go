package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/stocklens/backend/internal/domain/analytics"
	"github.com/stocklens/backend/internal/infrastructure/analytics"
	"github.com/stocklens/backend/internal/infrastructure/cache"
	"github.com/stocklens/backend/internal/interfaces/http/dto"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeProbe struct {
	status analytics.ConnectionStatus
	stats  analytics.Stats
}

func (f *fakeProbe) TestConnection(context.Context) analytics.ConnectionStatus { return f.status }

func (f *fakeProbe) GetStats(context.Context) analytics.Stats { return f.stats }

type fakeCache struct {
	removed  int
	entries  int64
	stats    cache.Stats
	clearErr error
}

func (f *fakeCache) ClearExpired(context.Context) (int, error) { return f.removed, f.clearErr }

func (f *fakeCache) EntryCount(context.Context) (int64, error) { return f.entries, nil }

func (f *fakeCache) GetStats() cache.Stats { return f.stats }

func serve(t *testing.T, h *SyncHandler, method, path string) (*httptest.ResponseRecorder, dto.Response) {
	t.Helper()
	engine := gin.New()
	h.RegisterRoutes(engine.Group("/api/v1"))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	engine.ServeHTTP(rec, req)

	var body dto.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

// ---------------------------------------------------------------------------
// Diagnostics endpoints
// ---------------------------------------------------------------------------

func TestTestConnectionEndpoint(t *testing.T) {
	probe := &fakeProbe{status: analytics.ConnectionStatus{Success: true}}
	h := NewSyncHandler(nil, probe, &fakeCache{}, nil)

	rec, body := serve(t, h, http.MethodGet, "/api/v1/sync/test-connection")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, body.Success)
	data := body.Data.(map[string]any)
	assert.Equal(t, true, data["success"])
}

func TestStatsEndpoint(t *testing.T) {
	probe := &fakeProbe{stats: analytics.Stats{CacheHits: 3, RequestsMade: 7}}
	c := &fakeCache{entries: 12, stats: cache.Stats{L1Hits: 5}}
	h := NewSyncHandler(nil, probe, c, nil)

	rec, body := serve(t, h, http.MethodGet, "/api/v1/sync/stats")

	assert.Equal(t, http.StatusOK, rec.Code)
	data := body.Data.(map[string]any)
	assert.EqualValues(t, 12, data["cache_entries"])
	client := data["client"].(map[string]any)
	assert.EqualValues(t, 7, client["requests_made"])
	cacheStats := data["cache"].(map[string]any)
	assert.EqualValues(t, 5, cacheStats["l1_hits"])
}

func TestClearExpiredCacheEndpoint(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		h := NewSyncHandler(nil, &fakeProbe{}, &fakeCache{removed: 4}, nil)

		rec, body := serve(t, h, http.MethodPost, "/api/v1/cache/clear-expired")

		assert.Equal(t, http.StatusOK, rec.Code)
		data := body.Data.(map[string]any)
		assert.EqualValues(t, 4, data["removed"])
	})

	t.Run("failure", func(t *testing.T) {
		h := NewSyncHandler(nil, &fakeProbe{}, &fakeCache{clearErr: errors.New("redis down")}, nil)

		rec, body := serve(t, h, http.MethodPost, "/api/v1/cache/clear-expired")

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.False(t, body.Success)
		assert.Equal(t, dto.ErrCodeInternal, body.Error.Code)
	})
}

// ---------------------------------------------------------------------------
// Error mapping
// ---------------------------------------------------------------------------

func TestHandleError(t *testing.T) {
	base := &BaseHandler{}

	call := func(err error) *httptest.ResponseRecorder {
		engine := gin.New()
		engine.GET("/x", func(c *gin.Context) { base.HandleError(c, err) })
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
		return rec
	}

	t.Run("classified upstream error", func(t *testing.T) {
		err := domain.NewError(domain.KindRateLimit, "fetchPage", fmt.Errorf("HTTP 429"))
		rec := call(err)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var body dto.Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "RATE_LIMIT", body.Error.Code)
	})

	t.Run("wrapped classified error", func(t *testing.T) {
		err := fmt.Errorf("product stage: %w",
			domain.NewError(domain.KindAuthentication, "createReport", nil))
		rec := call(err)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("unclassified error", func(t *testing.T) {
		rec := call(errors.New("boom"))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		var body dto.Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, dto.ErrCodeInternal, body.Error.Code)
	})
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(context.Context) error { return f.err }

func TestHealthEndpoint(t *testing.T) {
	call := func(p Pinger) (*httptest.ResponseRecorder, map[string]any) {
		engine := gin.New()
		engine.GET("/health", NewHealthHandler(p).Health)
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return rec, body
	}

	t.Run("healthy", func(t *testing.T) {
		rec, body := call(&fakePinger{})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, "up", body["database"])
	})

	t.Run("database down", func(t *testing.T) {
		rec, body := call(&fakePinger{err: errors.New("connection refused")})
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "degraded", body["status"])
		assert.Equal(t, "down", body["database"])
	})

	t.Run("no database configured", func(t *testing.T) {
		rec, body := call(nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", body["status"])
	})
}
