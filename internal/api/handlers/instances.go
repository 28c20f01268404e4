package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dnsguard/companion-service/internal/api/dto"
	"github.com/dnsguard/companion-service/internal/api/middleware"
	"github.com/dnsguard/companion-service/internal/domain/models"
	"github.com/dnsguard/companion-service/internal/services/credentials"
	"github.com/dnsguard/companion-service/internal/services/registry"
)

// InstancesHandler handles instance profile and settings endpoints.
type InstancesHandler struct {
	credentials credentials.Service
	registry    *registry.Registry
}

// NewInstancesHandler creates a new InstancesHandler.
func NewInstancesHandler(creds credentials.Service, reg *registry.Registry) *InstancesHandler {
	return &InstancesHandler{
		credentials: creds,
		registry:    reg,
	}
}

// List handles GET /instances
// @Summary List instances
// @Description Returns all configured instances, the active selection and global settings
// @Tags Instances
// @Produce json
// @Success 200 {object} dto.ListInstancesResponse
// @Router /api/v1/instances [get]
func (h *InstancesHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	collection, err := h.credentials.ListInstances(ctx)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	resp := dto.ListInstancesResponse{
		Instances:        make([]dto.InstanceResponse, 0, len(collection.Instances)),
		ActiveInstanceID: collection.ActiveInstanceID,
		Settings:         collection.Settings,
	}
	for i := range collection.Instances {
		instance := &collection.Instances[i]
		resp.Instances = append(resp.Instances, dto.NewInstanceResponse(instance, h.authenticated(instance.ID)))
	}

	c.JSON(http.StatusOK, resp)
}

// Add handles POST /instances
// @Summary Register an instance
// @Description Creates a connection profile and encrypts its password
// @Tags Instances
// @Accept json
// @Produce json
// @Param request body dto.AddInstanceRequest true "Instance profile"
// @Success 201 {object} dto.InstanceResponse
// @Failure 400 {object} middleware.ErrorEnvelope
// @Router /api/v1/instances [post]
func (h *InstancesHandler) Add(c *gin.Context) {
	var req dto.AddInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	instance, err := h.credentials.AddInstance(c.Request.Context(), req.Name, req.BaseURL, req.Password, req.RememberPassword)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewInstanceResponse(instance, false))
}

// Update handles PATCH /instances/:instanceId
// @Summary Update an instance
// @Description Applies a partial update to a connection profile
// @Tags Instances
// @Accept json
// @Produce json
// @Param instanceId path string true "Instance ID"
// @Param request body dto.UpdateInstanceRequest true "Fields to update"
// @Success 200 {object} dto.InstanceResponse
// @Failure 400 {object} middleware.ErrorEnvelope
// @Failure 404 {object} middleware.ErrorEnvelope
// @Router /api/v1/instances/{instanceId} [patch]
func (h *InstancesHandler) Update(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("instanceId")

	var req dto.UpdateInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	instance, err := h.credentials.UpdateInstance(ctx, id, credentials.UpdateParams{
		Name:             req.Name,
		BaseURL:          req.BaseURL,
		Password:         req.Password,
		RememberPassword: req.RememberPassword,
	})
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	// A URL change must repoint the live client and drop its session.
	if req.BaseURL != nil {
		h.registry.Configure(ctx, id, instance.BaseURL)
	}

	c.JSON(http.StatusOK, dto.NewInstanceResponse(instance, h.authenticated(id)))
}

// Delete handles DELETE /instances/:instanceId
// @Summary Delete an instance
// @Description Removes the profile, its key material and live client
// @Tags Instances
// @Produce json
// @Param instanceId path string true "Instance ID"
// @Success 204 "Deleted"
// @Failure 404 {object} middleware.ErrorEnvelope
// @Router /api/v1/instances/{instanceId} [delete]
func (h *InstancesHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("instanceId")

	if err := h.credentials.DeleteInstance(ctx, id); err != nil {
		middleware.HandleError(c, err)
		return
	}
	h.registry.Remove(ctx, id)

	c.Status(http.StatusNoContent)
}

// SetActive handles PUT /instances/active
// @Summary Select the active instance
// @Description Sets the active instance, or null for the aggregate view
// @Tags Instances
// @Accept json
// @Produce json
// @Param request body dto.SetActiveRequest true "Active selection"
// @Success 204 "Selected"
// @Failure 404 {object} middleware.ErrorEnvelope
// @Router /api/v1/instances/active [put]
func (h *InstancesHandler) SetActive(c *gin.Context) {
	var req dto.SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	if err := h.credentials.SetActiveInstance(c.Request.Context(), req.InstanceID); err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// UpdateSettings handles PUT /settings
// @Summary Update global settings
// @Description Replaces the extension-wide settings
// @Tags Instances
// @Accept json
// @Produce json
// @Param request body dto.UpdateSettingsRequest true "Settings"
// @Success 204 "Updated"
// @Router /api/v1/settings [put]
func (h *InstancesHandler) UpdateSettings(c *gin.Context) {
	var req dto.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	settings := models.GlobalSettings{
		NotificationsEnabled: req.NotificationsEnabled,
		RefreshIntervalSecs:  req.RefreshIntervalSecs,
	}
	if settings.RefreshIntervalSecs == 0 {
		settings.RefreshIntervalSecs = models.DefaultGlobalSettings().RefreshIntervalSecs
	}

	if err := h.credentials.UpdateSettings(c.Request.Context(), settings); err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// authenticated reports whether a live session exists for the instance
// without creating a client as a side effect.
func (h *InstancesHandler) authenticated(instanceID string) bool {
	entry, ok := h.registry.Peek(instanceID)
	return ok && entry.Session.HasValidSession()
}
