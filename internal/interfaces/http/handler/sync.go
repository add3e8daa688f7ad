package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appsync "github.com/stocklens/backend/internal/application/sync"
	"github.com/stocklens/backend/internal/infrastructure/analytics"
	"github.com/stocklens/backend/internal/infrastructure/cache"
	"github.com/stocklens/backend/internal/infrastructure/logger"
)

// AnalyticsProbe exposes the client's diagnostics surface.
type AnalyticsProbe interface {
	TestConnection(ctx context.Context) analytics.ConnectionStatus
	GetStats(ctx context.Context) analytics.Stats
}

// ResponseCache exposes the cache maintenance surface.
type ResponseCache interface {
	ClearExpired(ctx context.Context) (int, error)
	EntryCount(ctx context.Context) (int64, error)
	GetStats() cache.Stats
}

// SyncHandler serves the pipeline control and diagnostics endpoints.
type SyncHandler struct {
	BaseHandler
	orchestrator *appsync.Orchestrator
	probe        AnalyticsProbe
	cache        ResponseCache
	logger       *zap.Logger
}

// NewSyncHandler creates a sync handler.
func NewSyncHandler(orchestrator *appsync.Orchestrator, probe AnalyticsProbe, responseCache ResponseCache, log *zap.Logger) *SyncHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &SyncHandler{
		orchestrator: orchestrator,
		probe:        probe,
		cache:        responseCache,
		logger:       log,
	}
}

// RegisterRoutes registers the sync and cache endpoints.
func (h *SyncHandler) RegisterRoutes(rg *gin.RouterGroup) {
	syncGroup := rg.Group("/sync")
	{
		syncGroup.POST("/run", h.Run)
		syncGroup.POST("/run-inventory", h.RunInventory)
		syncGroup.GET("/status", h.Status)
		syncGroup.GET("/stats", h.Stats)
		syncGroup.GET("/test-connection", h.TestConnection)
	}
	cacheGroup := rg.Group("/cache")
	{
		cacheGroup.POST("/clear-expired", h.ClearExpiredCache)
	}
}

// Run starts a full pipeline pass in the background.
// POST /api/v1/sync/run
func (h *SyncHandler) Run(c *gin.Context) {
	if h.orchestrator.Running() {
		h.Conflict(c, "a sync run is already in progress")
		return
	}

	// The run outlives the request; it is detached from the request context
	// and observed through the status endpoint.
	go func() {
		status := h.orchestrator.Run(context.Background())
		h.logger.Info("sync run finished", zap.String("state", string(status.State)))
	}()

	h.Accepted(c, gin.H{"started": true})
}

// RunInventory starts an inventory-only pass in the background, subject to
// the dependency gate.
// POST /api/v1/sync/run-inventory
func (h *SyncHandler) RunInventory(c *gin.Context) {
	if h.orchestrator.Running() {
		h.Conflict(c, "a sync run is already in progress")
		return
	}

	go func() {
		status := h.orchestrator.RunInventoryOnly(context.Background())
		h.logger.Info("inventory run finished", zap.String("state", string(status.State)))
	}()

	h.Accepted(c, gin.H{"started": true})
}

// Status reports the aggregate pipeline state.
// GET /api/v1/sync/status
func (h *SyncHandler) Status(c *gin.Context) {
	status, err := h.orchestrator.Status(c.Request.Context())
	if err != nil {
		logger.FromGin(c).Error("collect pipeline status", zap.Error(err))
		h.InternalError(c, "failed to collect pipeline status")
		return
	}
	h.Success(c, status)
}

// Stats reports client request counters and cache hit rates.
// GET /api/v1/sync/stats
func (h *SyncHandler) Stats(c *gin.Context) {
	entries, err := h.cache.EntryCount(c.Request.Context())
	if err != nil {
		logger.FromGin(c).Error("count cache entries", zap.Error(err))
		h.InternalError(c, "failed to read cache stats")
		return
	}
	h.Success(c, gin.H{
		"client":        h.probe.GetStats(c.Request.Context()),
		"cache":         h.cache.GetStats(),
		"cache_entries": entries,
	})
}

// TestConnection probes the upstream API with the configured credentials.
// GET /api/v1/sync/test-connection
func (h *SyncHandler) TestConnection(c *gin.Context) {
	h.Success(c, h.probe.TestConnection(c.Request.Context()))
}

// ClearExpiredCache sweeps expired entries out of the response cache.
// POST /api/v1/cache/clear-expired
func (h *SyncHandler) ClearExpiredCache(c *gin.Context) {
	removed, err := h.cache.ClearExpired(c.Request.Context())
	if err != nil {
		logger.FromGin(c).Error("clear expired cache entries", zap.Error(err))
		h.InternalError(c, "failed to clear expired cache entries")
		return
	}
	h.Success(c, gin.H{"removed": removed})
}
