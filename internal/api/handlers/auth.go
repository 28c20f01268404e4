package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dnsguard/companion-service/internal/api/dto"
	"github.com/dnsguard/companion-service/internal/api/middleware"
	apperrors "github.com/dnsguard/companion-service/internal/domain/errors"
	"github.com/dnsguard/companion-service/internal/services/credentials"
	"github.com/dnsguard/companion-service/internal/services/registry"
)

// AuthHandler handles per-instance session endpoints.
type AuthHandler struct {
	credentials credentials.Service
	registry    *registry.Registry
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(creds credentials.Service, reg *registry.Registry) *AuthHandler {
	return &AuthHandler{
		credentials: creds,
		registry:    reg,
	}
}

// Login handles POST /instances/:instanceId/auth
// @Summary Authenticate an instance
// @Description Authenticates against the appliance with the supplied or stored password
// @Tags Auth
// @Accept json
// @Produce json
// @Param instanceId path string true "Instance ID"
// @Param request body dto.AuthenticateRequest true "Credentials"
// @Success 200 {object} dto.AuthenticateResponse
// @Failure 401 {object} middleware.ErrorEnvelope
// @Failure 404 {object} middleware.ErrorEnvelope
// @Router /api/v1/instances/{instanceId}/auth [post]
func (h *AuthHandler) Login(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("instanceId")

	var req dto.AuthenticateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	entry, err := h.registry.GetOrCreate(ctx, id)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	password := req.Password
	if password == "" {
		password = h.credentials.GetDecryptedPassword(ctx, id)
		if password == "" {
			middleware.HandleError(c, apperrors.NewAuthFailed(http.StatusUnauthorized))
			return
		}
	}

	result, err := entry.Session.Authenticate(ctx, password, req.Totp)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	if result.TotpRequired {
		c.JSON(http.StatusOK, dto.AuthenticateResponse{TotpRequired: true})
		return
	}

	// A verified interactive password re-establishes custody: when the
	// stored copy no longer decrypts to it, rotate it under a
	// recovered-or-fresh master key.
	if req.Password != "" && h.credentials.GetDecryptedPassword(ctx, id) != req.Password {
		if _, err := h.credentials.UpdateInstance(ctx, id, credentials.UpdateParams{Password: &req.Password}); err != nil {
			middleware.HandleError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, dto.AuthenticateResponse{Authenticated: true})
}

// Logout handles DELETE /instances/:instanceId/auth
// @Summary Log out of an instance
// @Description Invalidates the appliance session and clears local state
// @Tags Auth
// @Produce json
// @Param instanceId path string true "Instance ID"
// @Success 204 "Logged out"
// @Router /api/v1/instances/{instanceId}/auth [delete]
func (h *AuthHandler) Logout(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("instanceId")

	if entry, ok := h.registry.Peek(id); ok {
		entry.Session.Logout(ctx)
	}

	c.Status(http.StatusNoContent)
}

// Status handles GET /instances/:instanceId/auth
// @Summary Session status
// @Description Reports whether a live session exists for the instance
// @Tags Auth
// @Produce json
// @Success 200 {object} dto.AuthenticateResponse
// @Router /api/v1/instances/{instanceId}/auth [get]
func (h *AuthHandler) Status(c *gin.Context) {
	id := c.Param("instanceId")

	entry, ok := h.registry.Peek(id)
	c.JSON(http.StatusOK, dto.AuthenticateResponse{
		Authenticated: ok && entry.Session.HasValidSession(),
	})
}

// TestConnection handles POST /instances/:instanceId/test
// @Summary Test connectivity
// @Description Probes the appliance URL without authenticating
// @Tags Auth
// @Produce json
// @Param instanceId path string true "Instance ID"
// @Success 200 {object} dto.ConnectionTestResponse
// @Failure 404 {object} middleware.ErrorEnvelope
// @Router /api/v1/instances/{instanceId}/test [post]
func (h *AuthHandler) TestConnection(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("instanceId")

	entry, err := h.registry.GetOrCreate(ctx, id)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	if apiErr := entry.Client.TestConnection(ctx); apiErr != nil {
		c.JSON(http.StatusOK, dto.ConnectionTestResponse{
			Reachable: false,
			Key:       apiErr.Key,
			Message:   apiErr.Message,
			Hint:      apiErr.Hint,
		})
		return
	}

	c.JSON(http.StatusOK, dto.ConnectionTestResponse{Reachable: true})
}
