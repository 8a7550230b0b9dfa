package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"syncpanel/internal/models"
	"syncpanel/internal/repository"
	"syncpanel/internal/service"
)

type SystemSettingsHandler struct {
	Repo     repository.SystemSettingRepository
	Settings *service.SystemSettingsService
}

func (h *SystemSettingsHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/system-settings")
	g.GET("", h.list)
	g.GET("/switches", h.listSwitches)
	g.GET("/switches/:name", h.getSwitch)
	g.PUT("/switches/:name", h.putSwitch)
	g.GET("/:key", h.get)
	g.PUT("/:key", h.put)
}

// @Summary List system settings
// @Tags settings
// @Param prefix query string false "key prefix"
// @Param limit query int false "page size"
// @Param offset query int false "offset"
// @Success 200 {object} apiResponse
// @Router /api/v1/system-settings [get]
func (h *SystemSettingsHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 200)
	offset := intQuery(c, "offset", 0)
	var prefix *string
	if v := strings.TrimSpace(c.Query("prefix")); v != "" {
		prefix = &v
	}
	params := repository.ListSystemSettingsParams{
		Limit:   limit,
		Offset:  offset,
		Prefix:  prefix,
		OrderBy: "key",
		Asc:     boolPtr(true),
	}
	items, err := h.Repo.ListSystemSettings(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountSystemSettings(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

// @Summary Get a system setting
// @Tags settings
// @Param key path string true "setting key"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/v1/system-settings/{key} [get]
func (h *SystemSettingsHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		Error(c, http.StatusBadRequest, "invalid key", nil)
		return
	}
	item, err := h.Repo.GetSystemSettingByKey(c.Request.Context(), key)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "setting not found", nil)
		return
	}
	Ok(c, item, nil)
}

type putSystemSettingRequest struct {
	Value       any    `json:"value"`
	Description string `json:"description"`
}

// @Summary Upsert a system setting
// @Tags settings
// @Accept json
// @Param key path string true "setting key"
// @Param body body putSystemSettingRequest true "value"
// @Success 200 {object} apiResponse
// @Router /api/v1/system-settings/{key} [put]
func (h *SystemSettingsHandler) put(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		Error(c, http.StatusBadRequest, "invalid key", nil)
		return
	}
	var req putSystemSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	raw, err := json.Marshal(req.Value)
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid value", nil)
		return
	}
	item := &models.SystemSetting{
		Key:         key,
		Value:       datatypes.JSON(raw),
		Description: strings.TrimSpace(req.Description),
		UpdatedBy:   actorFromGateway(c),
		UpdatedAt:   time.Now().UTC(),
	}
	if err := h.Repo.UpsertSystemSetting(c.Request.Context(), item); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	next, _ := h.Repo.GetSystemSettingByKey(c.Request.Context(), key)
	Ok(c, next, nil)
}

// @Summary List feature switches
// @Description Every known switch with its effective value; stored=false means the built-in default applies.
// @Tags settings
// @Success 200 {object} apiResponse
// @Router /api/v1/system-settings/switches [get]
func (h *SystemSettingsHandler) listSwitches(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings service unavailable", nil)
		return
	}
	items, err := h.Settings.Switches(c.Request.Context())
	if err != nil {
		Fail(c, http.StatusBadGateway, err)
		return
	}
	Ok(c, items, map[string]any{"total": len(items)})
}

// @Summary Get a feature switch
// @Tags settings
// @Param name path string true "switch name, e.g. scheduled_sync"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/v1/system-settings/switches/{name} [get]
func (h *SystemSettingsHandler) getSwitch(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings service unavailable", nil)
		return
	}
	sw, err := h.Settings.Switch(c.Request.Context(), c.Param("name"))
	if errors.Is(err, service.ErrUnknownSwitch) {
		Error(c, http.StatusNotFound, err.Error(), nil)
		return
	}
	if err != nil {
		Fail(c, http.StatusBadGateway, err)
		return
	}
	Ok(c, sw, nil)
}

type putSwitchRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// @Summary Turn a feature switch on or off
// @Tags settings
// @Accept json
// @Param name path string true "switch name, e.g. paas_notify"
// @Param body body putSwitchRequest true "enabled"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/v1/system-settings/switches/{name} [put]
func (h *SystemSettingsHandler) putSwitch(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings service unavailable", nil)
		return
	}
	if _, known := service.SwitchKey(c.Param("name")); !known {
		Error(c, http.StatusNotFound, service.ErrUnknownSwitch.Error(), nil)
		return
	}
	var req putSwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	sw, err := h.Settings.SetSwitch(c.Request.Context(), c.Param("name"), *req.Enabled, actorFromGateway(c))
	if err != nil {
		Fail(c, http.StatusBadGateway, err)
		return
	}
	Ok(c, sw, nil)
}

// actorFromGateway names the caller from the headers the PaaS gateway sets.
func actorFromGateway(c *gin.Context) string {
	role := strings.TrimSpace(c.GetHeader("X-Easyweb3-Role"))
	project := strings.TrimSpace(c.GetHeader("X-Easyweb3-Project"))
	switch {
	case role != "" && project != "":
		return project + "/" + role
	case role != "":
		return role
	default:
		return project
	}
}
