package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-schedule/internal/service"
	"github.com/noah-isme/sma-schedule/pkg/jobs"
	"github.com/noah-isme/sma-schedule/pkg/response"
)

// QueueStats exposes background queue counters.
type QueueStats interface {
	Stats() jobs.Stats
}

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	metrics   *service.MetricsService
	publisher QueueStats
	ready     func() bool
}

// NewMetricsHandler constructs a metrics handler. publisher and ready may be nil.
func NewMetricsHandler(metrics *service.MetricsService, publisher QueueStats, ready func() bool) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, publisher: publisher, ready: ready}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Summary godoc
// @Summary Scheduler counters
// @Tags Observability
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /metrics/summary [get]
func (h *MetricsHandler) Summary(c *gin.Context) {
	meta := map[string]interface{}{}
	if h.publisher != nil {
		meta["publisher"] = h.publisher.Stats()
	}
	response.JSON(c, http.StatusOK, h.metrics.Snapshot(), nil, meta)
}

// Health responds with a generic OK payload for liveness usage.
func (h *MetricsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready reports whether the schedule set has been loaded.
func (h *MetricsHandler) Ready(c *gin.Context) {
	if h.ready != nil && !h.ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "loading"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
