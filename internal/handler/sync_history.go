package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"syncpanel/internal/repository"
	"syncpanel/internal/service"
)

type SyncHistoryHandler struct {
	History *service.SyncHistoryService
}

func (h *SyncHistoryHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/sync/history")
	g.GET("", h.list)
	g.GET("/:job_id", h.get)
}

var syncHistoryOrder = map[string]string{
	"started_at":  "started_at",
	"finished_at": "finished_at",
	"updated_at":  "updated_at",
	"status":      "status",
	"sync_type":   "sync_type",
}

// @Summary List sync job history
// @Tags sync
// @Param limit query int false "page size (default 50)"
// @Param offset query int false "offset"
// @Param sync_type query string false "sync_all|sync_ga4|sync_agency_analytics"
// @Param status query string false "pending|running|completed|failed"
// @Param trigger query string false "panel|cron|cli"
// @Param panel_id query string false "panel id"
// @Param since query string false "RFC3339 lower bound on started_at"
// @Param order_by query string false "started_at|finished_at|updated_at|status|sync_type"
// @Param asc query bool false "ascending order"
// @Success 200 {object} apiResponse
// @Router /api/v1/sync/history [get]
func (h *SyncHistoryHandler) list(c *gin.Context) {
	if h.History == nil || h.History.Repo == nil {
		Error(c, http.StatusServiceUnavailable, "history unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	params := repository.ListSyncJobRecordsParams{
		Limit:    limit,
		Offset:   offset,
		SyncType: strQueryPtr(c, "sync_type"),
		Status:   strQueryPtr(c, "status"),
		Trigger:  strQueryPtr(c, "trigger"),
		PanelID:  strQueryPtr(c, "panel_id"),
		Since:    timeQueryPtr(c, "since"),
		OrderBy:  parseOrder(c.Query("order_by"), syncHistoryOrder),
		Asc:      boolQueryPtr(c, "asc"),
	}
	page, err := h.History.List(c.Request.Context(), params)
	if err != nil {
		Fail(c, http.StatusBadGateway, err)
		return
	}
	Ok(c, page.Items, paginationMeta(limit, offset, page.Total))
}

// @Summary Get one sync job from history
// @Tags sync
// @Param job_id path string true "job id"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/v1/sync/history/{job_id} [get]
func (h *SyncHistoryHandler) get(c *gin.Context) {
	if h.History == nil || h.History.Repo == nil {
		Error(c, http.StatusServiceUnavailable, "history unavailable", nil)
		return
	}
	jobID := strings.TrimSpace(c.Param("job_id"))
	if jobID == "" {
		Error(c, http.StatusBadRequest, "invalid job id", nil)
		return
	}
	item, err := h.History.Get(c.Request.Context(), jobID)
	if err != nil {
		Fail(c, http.StatusBadGateway, err)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "job not found", nil)
		return
	}
	Ok(c, item, nil)
}
