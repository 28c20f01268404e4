package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dnsguard/companion-service/internal/api/dto"
	"github.com/dnsguard/companion-service/internal/api/middleware"
	"github.com/dnsguard/companion-service/internal/domain/models"
	"github.com/dnsguard/companion-service/internal/services/appliance"
	"github.com/dnsguard/companion-service/internal/services/registry"
)

// ApplianceHandler proxies instance-scoped calls through the request
// engine.
type ApplianceHandler struct {
	registry *registry.Registry
}

// NewApplianceHandler creates a new ApplianceHandler.
func NewApplianceHandler(reg *registry.Registry) *ApplianceHandler {
	return &ApplianceHandler{
		registry: reg,
	}
}

// client resolves the per-instance appliance client, writing the error
// response itself on failure.
func (h *ApplianceHandler) client(c *gin.Context) (*appliance.Client, bool) {
	entry, err := h.registry.GetOrCreate(c.Request.Context(), c.Param("instanceId"))
	if err != nil {
		middleware.HandleError(c, err)
		return nil, false
	}
	return entry.Client, true
}

// Summary handles GET /instances/:instanceId/summary
// @Summary Statistics summary
// @Description Fetches the appliance's query statistics summary
// @Tags Appliance
// @Produce json
// @Param instanceId path string true "Instance ID"
// @Success 200 {object} models.SummaryStats
// @Router /api/v1/instances/{instanceId}/summary [get]
func (h *ApplianceHandler) Summary(c *gin.Context) {
	client, ok := h.client(c)
	if !ok {
		return
	}

	stats, err := client.FetchSummary(c.Request.Context())
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetBlocking handles GET /instances/:instanceId/blocking
// @Summary Blocking status
// @Description Reads the appliance's current blocking state
// @Tags Appliance
// @Produce json
// @Param instanceId path string true "Instance ID"
// @Success 200 {object} models.BlockingStatus
// @Router /api/v1/instances/{instanceId}/blocking [get]
func (h *ApplianceHandler) GetBlocking(c *gin.Context) {
	client, ok := h.client(c)
	if !ok {
		return
	}

	status, err := client.GetBlocking(c.Request.Context())
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// SetBlocking handles POST /instances/:instanceId/blocking
// @Summary Toggle blocking
// @Description Enables or disables blocking, optionally on a timer
// @Tags Appliance
// @Accept json
// @Produce json
// @Param instanceId path string true "Instance ID"
// @Param request body dto.SetBlockingRequest true "Desired state"
// @Success 200 {object} models.BlockingStatus
// @Router /api/v1/instances/{instanceId}/blocking [post]
func (h *ApplianceHandler) SetBlocking(c *gin.Context) {
	var req dto.SetBlockingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	client, ok := h.client(c)
	if !ok {
		return
	}

	status, err := client.SetBlocking(c.Request.Context(), req.Blocking, req.Timer)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// Queries handles GET /instances/:instanceId/queries
// @Summary Query log
// @Description Fetches query-log entries matching the filter
// @Tags Appliance
// @Produce json
// @Param instanceId path string true "Instance ID"
// @Param length query int false "Maximum entries"
// @Param domain query string false "Domain filter"
// @Param client query string false "Client filter"
// @Success 200 {object} models.QueryList
// @Router /api/v1/instances/{instanceId}/queries [get]
func (h *ApplianceHandler) Queries(c *gin.Context) {
	client, ok := h.client(c)
	if !ok {
		return
	}

	filter := models.QueryFilter{
		Client: c.Query("client"),
		Domain: c.Query("domain"),
		Type:   c.Query("type"),
		Status: c.Query("status"),
	}
	if raw := c.Query("length"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			filter.Length = n
		}
	}
	if raw := c.Query("from"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filter.From = n
		}
	}
	if raw := c.Query("until"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filter.Until = n
		}
	}

	entries, err := client.Queries(c.Request.Context(), filter)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.QueryList{Queries: entries})
}

// ListDomains handles GET /instances/:instanceId/domains/:list/:kind
// @Summary List domains
// @Description Fetches one allow/deny list
// @Tags Appliance
// @Produce json
// @Param instanceId path string true "Instance ID"
// @Param list path string true "allow or deny"
// @Param kind path string true "exact or regex"
// @Success 200 {array} models.DomainEntry
// @Router /api/v1/instances/{instanceId}/domains/{list}/{kind} [get]
func (h *ApplianceHandler) ListDomains(c *gin.Context) {
	list, kind, ok := domainParams(c)
	if !ok {
		return
	}
	client, clientOK := h.client(c)
	if !clientOK {
		return
	}

	domains, err := client.ListDomains(c.Request.Context(), list, kind)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"domains": domains})
}

// AddDomain handles POST /instances/:instanceId/domains/:list/:kind
// @Summary Add a domain
// @Description Adds an entry to one allow/deny list
// @Tags Appliance
// @Accept json
// @Produce json
// @Param instanceId path string true "Instance ID"
// @Param list path string true "allow or deny"
// @Param kind path string true "exact or regex"
// @Param request body dto.DomainRequest true "Entry"
// @Success 201 "Added"
// @Router /api/v1/instances/{instanceId}/domains/{list}/{kind} [post]
func (h *ApplianceHandler) AddDomain(c *gin.Context) {
	list, kind, ok := domainParams(c)
	if !ok {
		return
	}

	var req dto.DomainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	client, clientOK := h.client(c)
	if !clientOK {
		return
	}

	if err := client.AddDomain(c.Request.Context(), list, kind, req.Domain, req.Comment); err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

// RemoveDomain handles DELETE /instances/:instanceId/domains/:list/:kind/:domain
// @Summary Remove a domain
// @Description Removes an entry from one allow/deny list
// @Tags Appliance
// @Produce json
// @Param instanceId path string true "Instance ID"
// @Param list path string true "allow or deny"
// @Param kind path string true "exact or regex"
// @Param domain path string true "Domain"
// @Success 204 "Removed"
// @Router /api/v1/instances/{instanceId}/domains/{list}/{kind}/{domain} [delete]
func (h *ApplianceHandler) RemoveDomain(c *gin.Context) {
	list, kind, ok := domainParams(c)
	if !ok {
		return
	}
	client, clientOK := h.client(c)
	if !clientOK {
		return
	}

	if err := client.RemoveDomain(c.Request.Context(), list, kind, c.Param("domain")); err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Search handles GET /instances/:instanceId/search/:domain
// @Summary Search lists
// @Description Looks a domain up across lists and gravity
// @Tags Appliance
// @Produce json
// @Param instanceId path string true "Instance ID"
// @Param domain path string true "Domain"
// @Success 200 {object} models.SearchResult
// @Router /api/v1/instances/{instanceId}/search/{domain} [get]
func (h *ApplianceHandler) Search(c *gin.Context) {
	client, ok := h.client(c)
	if !ok {
		return
	}

	result, err := client.Search(c.Request.Context(), c.Param("domain"))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Raw handles POST /instances/:instanceId/request
// @Summary Raw passthrough
// @Description Proxies an arbitrary appliance API call through the request engine
// @Tags Appliance
// @Accept json
// @Produce json
// @Param instanceId path string true "Instance ID"
// @Param request body dto.RawRequest true "Request to proxy"
// @Success 200 {object} models.Outcome
// @Router /api/v1/instances/{instanceId}/request [post]
func (h *ApplianceHandler) Raw(c *gin.Context) {
	var req dto.RawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	client, ok := h.client(c)
	if !ok {
		return
	}

	out := client.Do(c.Request.Context(), req.Method, req.Path, req.Body)
	c.JSON(http.StatusOK, out)
}

// domainParams validates the :list/:kind pair, writing the error
// response itself on failure.
func domainParams(c *gin.Context) (appliance.ListType, appliance.ListKind, bool) {
	list := appliance.ListType(c.Param("list"))
	kind := appliance.ListKind(c.Param("kind"))

	if list != appliance.ListAllow && list != appliance.ListDeny {
		middleware.HandleValidationError(c, errInvalidList)
		return "", "", false
	}
	if kind != appliance.KindExact && kind != appliance.KindRegex {
		middleware.HandleValidationError(c, errInvalidKind)
		return "", "", false
	}
	return list, kind, true
}

var (
	errInvalidList = listParamError("list must be allow or deny")
	errInvalidKind = listParamError("kind must be exact or regex")
)

type listParamError string

func (e listParamError) Error() string { return string(e) }
