// Package handler exposes the conversation module's ops API endpoints.
package handler

import (
	"time"

	"dealerline_backend/internal/conversation/domain"
	"dealerline_backend/internal/conversation/engine"
	"dealerline_backend/internal/conversation/metricsagg"
	"dealerline_backend/internal/conversation/repository"
	"dealerline_backend/internal/conversation/transport"
	"dealerline_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest = "invalid request"
	defaultPageSize   = 20
	maxPageSize       = 100
)

// Handler handles HTTP requests for conversations.
type Handler struct {
	repo    *repository.Repository
	agg     *metricsagg.Aggregator
	monitor *metricsagg.Monitor
	starter *engine.Starter
}

// New creates a conversations handler.
func New(repo *repository.Repository, agg *metricsagg.Aggregator, monitor *metricsagg.Monitor, starter *engine.Starter) *Handler {
	return &Handler{repo: repo, agg: agg, monitor: monitor, starter: starter}
}

// RegisterRoutes registers the conversation routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/:id", h.GetByID)
	rg.GET("/:id/messages", h.ListMessages)
}

// RegisterOpsRoutes registers the metrics and health surfaces.
func (h *Handler) RegisterOpsRoutes(rg *gin.RouterGroup) {
	rg.GET("/metrics/daily", h.DailyMetrics)
	rg.GET("/health/engine", h.EngineHealth)
	rg.POST("/leads", h.IngestLead)
}

func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, 400, msgInvalidRequest, "invalid conversation id")
		return
	}

	conv, err := h.repo.GetByID(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.FromDomain(conv))
}

func (h *Handler) ListMessages(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, 400, msgInvalidRequest, "invalid conversation id")
		return
	}

	messages, err := h.repo.ListMessages(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]transport.MessageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, transport.MessageFromDomain(m))
	}
	httpkit.OK(c, out)
}

func (h *Handler) List(c *gin.Context) {
	var query transport.ListConversationsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		httpkit.Error(c, 400, msgInvalidRequest, err.Error())
		return
	}

	params := repository.ListParams{
		DealershipID: query.DealershipID,
		Page:         query.Page,
		PageSize:     query.PageSize,
	}
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 {
		params.PageSize = defaultPageSize
	}
	if params.PageSize > maxPageSize {
		params.PageSize = maxPageSize
	}
	if query.State != "" {
		state := domain.State(query.State)
		switch state {
		case domain.StateActive, domain.StatePaused, domain.StateCompleted, domain.StateEscalated, domain.StateFailed:
			params.State = &state
		default:
			httpkit.Error(c, 400, msgInvalidRequest, "invalid state filter")
			return
		}
	}

	result, err := h.repo.ListByDealership(c.Request.Context(), params)
	if httpkit.HandleError(c, err) {
		return
	}

	items := make([]transport.ConversationResponse, 0, len(result.Items))
	for i := range result.Items {
		items = append(items, transport.FromDomain(&result.Items[i]))
	}
	httpkit.OK(c, transport.ListConversationsResponse{
		Items:      items,
		Total:      result.Total,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalPages: result.TotalPages,
	})
}

// DailyMetrics serves the per-dealership-day rollup. Today is answered from
// the aggregator's in-memory rollup when present (it includes unflushed
// events); past days come from the store.
func (h *Handler) DailyMetrics(c *gin.Context) {
	var query transport.DailyMetricsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		httpkit.Error(c, 400, msgInvalidRequest, err.Error())
		return
	}

	day := time.Now().UTC()
	if query.Date != "" {
		parsed, err := time.Parse("2006-01-02", query.Date)
		if err != nil {
			httpkit.Error(c, 400, msgInvalidRequest, "date must be YYYY-MM-DD")
			return
		}
		day = parsed
	}

	today := time.Now().UTC().Format("2006-01-02")
	if day.Format("2006-01-02") == today {
		if snapshot := h.agg.Snapshot(query.DealershipID, day); snapshot != nil {
			httpkit.OK(c, snapshot)
			return
		}
	}

	m, err := h.repo.DailyMetrics(c.Request.Context(), query.DealershipID, day)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, m)
}

// EngineHealth serves the latest sampled health report.
func (h *Handler) EngineHealth(c *gin.Context) {
	httpkit.OK(c, h.monitor.Report())
}

// IngestLead accepts a lead event over HTTP. This is the fallback path for
// producers that cannot write to the stream; the conversation starts
// synchronously.
func (h *Handler) IngestLead(c *gin.Context) {
	var ev domain.LeadEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		httpkit.Error(c, 400, msgInvalidRequest, err.Error())
		return
	}

	if err := h.starter.Start(c.Request.Context(), ev); httpkit.HandleError(c, err) {
		return
	}

	conv, err := h.repo.GetByLeadID(c.Request.Context(), ev.ID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromDomain(conv))
}
