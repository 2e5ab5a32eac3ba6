package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/calmlysettled/relocation-gateway/internal/dispatch"
	"github.com/calmlysettled/relocation-gateway/internal/domain"
	"github.com/calmlysettled/relocation-gateway/internal/http/middleware"
)

// runFunction reads the raw body, calls fn and writes its result or error.
func runFunction(c *gin.Context, fn func(body []byte) (any, error)) {
	body, err := c.GetRawData()
	if err != nil {
		funcError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	out, err := fn(body)
	if err != nil {
		funcError(c, funcStatus(err), err.Error())
		return
	}
	ok(c, http.StatusOK, out)
}

// GenerateRecommendations godoc
// @ID          generateRecommendations
// @Summary     Generate recommendations
// @Description Returns businesses per category near a location, from the geographic cache when possible.
// @Tags        Functions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       x-app-version  header  string                  false  "Client app version (cache scope)"  example(2.3.0)
// @Param       body           body    domain.GenerateRequest  true   "Location and categories"
//
// @Success     200  {object}  domain.GenerateResponse
// @Failure     400  {object}  handlers.FuncError  "Bad request"
// @Failure     503  {object}  handlers.FuncError  "Generator unavailable"
// @Failure     500  {object}  handlers.FuncError  "Internal error"
// @Router      /functions/v1/generate-recommendations [post]
func (h *Handlers) GenerateRecommendations(c *gin.Context) {
	version := appVersion(c)
	runFunction(c, func(body []byte) (any, error) {
		return h.fn.generate(c.Request.Context(), version, body)
	})
}

// FilterRecommendations godoc
// @ID          filterRecommendations
// @Summary     Filter recommendations
// @Description Keeps requested categories, drops businesses beyond a distance and ranks by filter terms.
// @Tags        Functions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  domain.FilterRequest  true  "Recommendations and filters"
//
// @Success     200  {object}  domain.FilterResponse
// @Failure     400  {object}  handlers.FuncError  "Bad request"
// @Failure     500  {object}  handlers.FuncError  "Internal error"
// @Router      /functions/v1/filter-recommendations [post]
func (h *Handlers) FilterRecommendations(c *gin.Context) {
	runFunction(c, func(body []byte) (any, error) {
		return h.fn.filter(c.Request.Context(), body)
	})
}

// GeocodeAddress godoc
// @ID          geocodeAddress
// @Summary     Geocode an address
// @Tags        Functions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  domain.GeocodeRequest  true  "Address"
//
// @Success     200  {object}  domain.GeocodeResult
// @Failure     400  {object}  handlers.FuncError  "Bad request"
// @Failure     404  {object}  handlers.FuncError  "Address not found"
// @Failure     500  {object}  handlers.FuncError  "Internal error"
// @Router      /functions/v1/geocode-address [post]
func (h *Handlers) GeocodeAddress(c *gin.Context) {
	runFunction(c, func(body []byte) (any, error) {
		return h.fn.geocode(c.Request.Context(), body)
	})
}

// CheckCache godoc
// @ID          checkCache
// @Summary     Check the recommendation cache
// @Description Reports whether recommendations for a location are cached. cacheAge is in milliseconds.
// @Tags        Functions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       x-app-version  header  string                    false  "Client app version (cache scope)"  example(2.3.0)
// @Param       body           body    domain.CheckCacheRequest  true   "Coordinates and categories"
//
// @Success     200  {object}  domain.CheckCacheResponse
// @Failure     400  {object}  handlers.FuncError  "Bad request"
// @Failure     500  {object}  handlers.FuncError  "Internal error"
// @Router      /functions/v1/check-cache [post]
func (h *Handlers) CheckCache(c *gin.Context) {
	var req domain.CheckCacheRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		funcError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	resp, err := h.cache.Check(c.Request.Context(), h.cacheVersion(c), req)
	if err != nil {
		funcError(c, funcStatus(err), err.Error())
		return
	}
	ok(c, http.StatusOK, resp)
}

// BatchRecommendations godoc
// @ID          batchRecommendations
// @Summary     Run a batch of function calls
// @Description Deduplicates identical sub-requests and returns exactly one response per id, each with data or error.
// @Tags        Functions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       Idempotency-Key  header  string               false  "Replays the stored response for a repeated key"  example(batch-7f3a)
// @Param       body             body    domain.BatchRequest  true   "Sub-requests"
//
// @Success     200  {object}  domain.BatchResponse
// @Failure     400  {object}  handlers.FuncError  "Missing or empty requests"
// @Failure     500  {object}  handlers.FuncError  "Malformed body or batch failed"
// @Router      /functions/v1/batch-recommendations [post]
func (h *Handlers) BatchRecommendations(c *gin.Context) {
	// A body that does not decode fails the whole batch; only a missing or
	// empty requests array is a 400.
	var req domain.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		funcError(c, http.StatusInternalServerError, err.Error())
		return
	}
	ctx := dispatch.WithAppVersion(c.Request.Context(), appVersion(c))
	resp, err := h.batch.Dispatch(ctx, req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, dispatch.ErrEmptyBatch) {
			status = http.StatusBadRequest
		}
		funcError(c, status, err.Error())
		return
	}

	lg := middleware.LoggerFrom(c)
	lg.Debug().
		Str("user_id", userID(c)).
		Int("requests", len(req.Requests)).
		Msg("batch dispatched")
	ok(c, http.StatusOK, resp)
}
