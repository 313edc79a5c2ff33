package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nightwatchhq/nightwatch-agent/internal/models"
	"github.com/nightwatchhq/nightwatch-agent/internal/repo"
	"github.com/nightwatchhq/nightwatch-agent/internal/services"
	"github.com/nightwatchhq/nightwatch-agent/internal/utils"
)

// WSHandler serves the WebSocket upgrade endpoint.
type WSHandler interface {
	HandleWS(c *gin.Context)
}

// Handlers binds the query service to the REST routes.
type Handlers struct {
	queries *services.QueryService
	ws      WSHandler
	logger  *slog.Logger
}

// NewHandlers builds the handler set. ws may be nil to disable the
// socket endpoint.
func NewHandlers(queries *services.QueryService, ws WSHandler, logger *slog.Logger) *Handlers {
	return &Handlers{queries: queries, ws: ws, logger: logger}
}

// Register attaches every route to the router.
func (h *Handlers) Register(router *gin.Engine) {
	router.GET("/healthz", h.handleHealthz)

	api := router.Group("/api")
	{
		api.GET("/status", h.handleStatus)
		api.GET("/databases", h.handleDatabases)
		api.GET("/metrics/:databaseId", h.handleMetrics)
		api.GET("/incidents", h.handleIncidents)
		api.GET("/actions", h.handleActions)
		api.GET("/action-history", h.handleActionHistory)
		api.GET("/summary", h.handleSummary)
	}

	if h.ws != nil {
		router.GET("/ws", h.ws.HandleWS)
	}
}

func (h *Handlers) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handlers) handleStatus(c *gin.Context) {
	status, err := h.queries.Status(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handlers) handleDatabases(c *gin.Context) {
	targets, err := h.queries.Databases(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"databases": targets, "count": len(targets)})
}

func (h *Handlers) handleMetrics(c *gin.Context) {
	var (
		samples []models.MetricSample
		err     error
	)
	if fromRaw := c.Query("from"); fromRaw != "" {
		from, perr := utils.ParseRFC3339(fromRaw)
		if perr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from timestamp"})
			return
		}
		to := time.Now().UTC()
		if toRaw := c.Query("to"); toRaw != "" {
			if to, perr = utils.ParseRFC3339(toRaw); perr != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to timestamp"})
				return
			}
		}
		samples, err = h.queries.MetricsBetween(c.Request.Context(), c.Param("databaseId"), from, to)
	} else {
		samples, err = h.queries.MetricsRange(c.Request.Context(), c.Param("databaseId"), c.Query("range"))
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"metrics": samples, "count": len(samples)})
}

func (h *Handlers) handleIncidents(c *gin.Context) {
	incidents, err := h.queries.Incidents(c.Request.Context(), c.Query("status"), limitParam(c, 100))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"incidents": incidents, "count": len(incidents)})
}

func (h *Handlers) handleActions(c *gin.Context) {
	actions, err := h.queries.RecentActions(c.Request.Context(), limitParam(c, 50))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": actions, "count": len(actions)})
}

func (h *Handlers) handleActionHistory(c *gin.Context) {
	entries, err := h.queries.ActionHistory(c.Request.Context(), limitParam(c, 100))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": entries, "count": len(entries)})
}

func (h *Handlers) handleSummary(c *gin.Context) {
	summary, err := h.queries.Summary(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handlers) fail(c *gin.Context, err error) {
	if errors.Is(err, repo.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	h.logger.Error("request failed", "path", c.Request.URL.Path, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func limitParam(c *gin.Context, def int) int {
	raw := c.Query("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
