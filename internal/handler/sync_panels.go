package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"syncpanel/internal/models"
	"syncpanel/internal/paas"
	"syncpanel/internal/service"
)

type SyncPanelHandler struct {
	Panels   *service.PanelManager
	Registry *service.ActiveJobsRegistry
	Logger   *zap.Logger
}

func (h *SyncPanelHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/panels")
	g.POST("", h.open)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.DELETE("/:id", h.close)
	g.POST("/:id/sync/:kind", h.startSync)
	g.GET("/:id/notifications", h.notifications)

	jobs := r.Group("/api/v1/sync/jobs")
	jobs.GET("/active", h.activeJobs)
	jobs.POST("/refresh", h.refreshJobs)
}

type openPanelRequest struct {
	Owner string `json:"owner"`
}

// @Summary Open a sync panel
// @Tags panels
// @Accept json
// @Param body body openPanelRequest false "panel owner"
// @Success 200 {object} apiResponse
// @Router /api/v1/panels [post]
func (h *SyncPanelHandler) open(c *gin.Context) {
	if h.Panels == nil {
		Error(c, http.StatusInternalServerError, "panels unavailable", nil)
		return
	}
	var req openPanelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			Error(c, http.StatusBadRequest, "invalid body", nil)
			return
		}
	}
	p := h.Panels.Open(service.PanelOptions{Owner: strings.TrimSpace(req.Owner)})
	Ok(c, p.View(), nil)
}

// @Summary List open sync panels
// @Tags panels
// @Success 200 {object} apiResponse
// @Router /api/v1/panels [get]
func (h *SyncPanelHandler) list(c *gin.Context) {
	if h.Panels == nil {
		Error(c, http.StatusInternalServerError, "panels unavailable", nil)
		return
	}
	items := h.Panels.List()
	Ok(c, items, map[string]any{"total": len(items)})
}

// @Summary Get a sync panel
// @Tags panels
// @Param id path string true "panel id"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/v1/panels/{id} [get]
func (h *SyncPanelHandler) get(c *gin.Context) {
	p, ok := h.panel(c)
	if !ok {
		return
	}
	p.Touch()
	Ok(c, p.View(), nil)
}

// @Summary Close a sync panel
// @Description Stops tracking on the panel. Jobs already started keep running on the job service.
// @Tags panels
// @Param id path string true "panel id"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/v1/panels/{id} [delete]
func (h *SyncPanelHandler) close(c *gin.Context) {
	if h.Panels == nil {
		Error(c, http.StatusInternalServerError, "panels unavailable", nil)
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	if !h.Panels.Close(id) {
		Error(c, http.StatusNotFound, "panel not found", nil)
		return
	}
	Ok(c, map[string]any{"id": id, "closed": true}, nil)
}

// @Summary Start a sync from a panel
// @Tags panels
// @Param id path string true "panel id"
// @Param kind path string true "full|ga4|agency_analytics"
// @Param mode query string false "new|complete (default complete)"
// @Success 200 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Failure 502 {object} apiResponse
// @Router /api/v1/panels/{id}/sync/{kind} [post]
func (h *SyncPanelHandler) startSync(c *gin.Context) {
	p, ok := h.panel(c)
	if !ok {
		return
	}
	kind, err := service.ParseSyncKind(c.Param("kind"))
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	mode, ok := models.ParseSyncMode(c.Query("mode"))
	if !ok {
		Error(c, http.StatusBadRequest, "invalid sync mode", nil)
		return
	}

	handle, err := p.Start(c.Request.Context(), kind, mode)
	if err != nil {
		var le *service.LaunchError
		if !errors.As(err, &le) {
			Error(c, http.StatusBadRequest, err.Error(), nil)
			return
		}
		if h.Logger != nil {
			h.Logger.Warn("panel sync start failed", zap.String("panel_id", p.ID), zap.Error(err))
		}
		paas.RecordSyncEvent(c.Request.Context(), paas.SyncEvent{
			Action:   "syncpanel_sync_start_failed",
			Level:    "warn",
			PanelID:  p.ID,
			SyncType: string(kind.SyncType()),
			SyncMode: string(mode),
			Err:      err,
		})
		Fail(c, http.StatusBadGateway, err)
		return
	}
	paas.RecordSyncEvent(c.Request.Context(), paas.SyncEvent{
		Action:   "syncpanel_sync_started",
		PanelID:  p.ID,
		JobID:    handle.JobID,
		SyncType: string(handle.SyncType),
		SyncMode: string(handle.SyncMode),
	})
	Ok(c, handle, nil)
}

// @Summary Recent notifications of a panel
// @Tags panels
// @Param id path string true "panel id"
// @Success 200 {object} apiResponse
// @Router /api/v1/panels/{id}/notifications [get]
func (h *SyncPanelHandler) notifications(c *gin.Context) {
	p, ok := h.panel(c)
	if !ok {
		return
	}
	p.Touch()
	Ok(c, p.Notifications(), nil)
}

// @Summary Active sync jobs
// @Tags sync
// @Success 200 {object} apiResponse
// @Router /api/v1/sync/jobs/active [get]
func (h *SyncPanelHandler) activeJobs(c *gin.Context) {
	if h.Registry == nil {
		Error(c, http.StatusInternalServerError, "registry unavailable", nil)
		return
	}
	snap := h.Registry.Snapshot()
	Ok(c, snap.Jobs, map[string]any{"version": snap.Version, "total": len(snap.Jobs)})
}

// @Summary Refresh active sync jobs from the job service
// @Tags sync
// @Success 200 {object} apiResponse
// @Failure 502 {object} apiResponse
// @Router /api/v1/sync/jobs/refresh [post]
func (h *SyncPanelHandler) refreshJobs(c *gin.Context) {
	if h.Registry == nil {
		Error(c, http.StatusInternalServerError, "registry unavailable", nil)
		return
	}
	if err := h.Registry.RefreshJobs(c.Request.Context()); err != nil {
		Fail(c, http.StatusBadGateway, err)
		return
	}
	snap := h.Registry.Snapshot()
	Ok(c, snap.Jobs, map[string]any{"version": snap.Version, "total": len(snap.Jobs)})
}

func (h *SyncPanelHandler) panel(c *gin.Context) (*service.SyncPanel, bool) {
	if h.Panels == nil {
		Error(c, http.StatusInternalServerError, "panels unavailable", nil)
		return nil, false
	}
	p, ok := h.Panels.Get(strings.TrimSpace(c.Param("id")))
	if !ok {
		Error(c, http.StatusNotFound, "panel not found", nil)
		return nil, false
	}
	return p, true
}
