package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/calmlysettled/relocation-gateway/internal/domain"
	"github.com/calmlysettled/relocation-gateway/internal/utils"
)

// CacheUtilsRequest selects a cache-utils action.
type CacheUtilsRequest struct {
	// Action is one of stats, clear-old-versions, clear-expired.
	Action string `json:"action" example:"clear-expired"`
	// Version overrides the version kept by clear-old-versions.
	Version string `json:"version,omitempty" example:"2.3.0"`
}

// UsageResponse lists provider counters.
type UsageResponse struct {
	Days  int               `json:"days"`
	Usage []domain.APIUsage `json:"usage"`
}

// CacheUtils godoc
// @ID          cacheUtils
// @Summary     Recommendation cache maintenance
// @Description stats returns table statistics; clear-old-versions deletes rows not written by the current version; clear-expired deletes expired rows.
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       x-app-version  header  string                      false  "Version to keep"  example(2.3.0)
// @Param       body           body    handlers.CacheUtilsRequest  true   "Action"
//
// @Success     200  {object}  services.CacheAdminResult
// @Failure     400  {object}  handlers.FuncError  "Unknown action or missing version"
// @Failure     500  {object}  handlers.FuncError  "Internal error"
// @Router      /functions/v1/cache-utils [post]
func (h *Handlers) CacheUtils(c *gin.Context) {
	var req CacheUtilsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		funcError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	version := strings.TrimSpace(req.Version)
	if version == "" {
		version = appVersion(c)
	}
	if version == "" {
		version = h.version
	}
	res, err := h.cache.Run(c.Request.Context(), strings.TrimSpace(req.Action), version)
	if err != nil {
		funcError(c, funcStatus(err), err.Error())
		return
	}
	ok(c, http.StatusOK, res)
}

// ListUsage godoc
// @ID          listUsage
// @Summary     Provider usage counters
// @Description Returns per-day call and cost counters of upstream providers, newest day first.
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
//
// @Param       days  query  int  false  "Number of days including today"  minimum(1) maximum(90) default(7)
//
// @Success     200  {object}  handlers.UsageResponse
// @Failure     401  {object}  handlers.FuncError      "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /usage [get]
func (h *Handlers) ListUsage(c *gin.Context) {
	days := utils.ClampedInt(c.Query("days"), 7, 1, 90)
	rows, err := h.usage.List(c.Request.Context(), days)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeUsageFailed, err.Error())
		return
	}
	if rows == nil {
		rows = []domain.APIUsage{}
	}
	ok(c, http.StatusOK, UsageResponse{Days: days, Usage: rows})
}
