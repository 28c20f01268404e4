package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	apperrors "github.com/dnsguard/companion-service/internal/domain/errors"
)

// ErrorMiddleware handles error recovery and formatting.
type ErrorMiddleware struct{}

// NewErrorMiddleware creates a new ErrorMiddleware.
func NewErrorMiddleware() *ErrorMiddleware {
	return &ErrorMiddleware{}
}

// Recovery returns a gin middleware that recovers from panics.
func (m *ErrorMiddleware) Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().
					Interface("error", err).
					Str("path", c.Request.URL.Path).
					Str("method", c.Request.Method).
					Msg("panic recovered")

				c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorEnvelope{
					Error: ErrorBody{
						Key:     apperrors.KeyInternal,
						Message: "internal server error",
					},
				})
			}
		}()
		c.Next()
	}
}

// ErrorBody is the inner error object of the envelope.
type ErrorBody struct {
	Key     string `json:"key"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// ErrorEnvelope is the standardized error response shape.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// HandleError translates an error into the envelope response with a
// key-derived HTTP status.
func HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	apiErr, ok := apperrors.AsAPIError(err)
	if !ok {
		log.Error().Err(err).Msg("unhandled error")
		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorEnvelope{
			Error: ErrorBody{
				Key:     apperrors.KeyInternal,
				Message: "internal server error",
			},
		})
		return
	}

	c.AbortWithStatusJSON(statusFor(apiErr), ErrorEnvelope{
		Error: ErrorBody{
			Key:     apiErr.Key,
			Message: apiErr.Message,
			Hint:    apiErr.Hint,
		},
	})
}

// HandleValidationError reports a malformed request body or query.
func HandleValidationError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorEnvelope{
		Error: ErrorBody{
			Key:     "validation_error",
			Message: err.Error(),
		},
	})
}

// statusFor maps the error taxonomy onto HTTP statuses. Upstream
// statuses are kept when they are already meaningful; transport-level
// failures (status 0) map to gateway errors.
func statusFor(err *apperrors.APIError) int {
	if err.Status >= 400 {
		return err.Status
	}

	switch err.Key {
	case apperrors.KeyNotConfigured:
		return http.StatusPreconditionFailed
	case apperrors.KeyTimeout:
		return http.StatusGatewayTimeout
	case apperrors.KeyCertError, apperrors.KeyNetworkError, apperrors.KeyParseError:
		return http.StatusBadGateway
	case apperrors.KeyAuthFailed:
		return http.StatusUnauthorized
	case apperrors.KeyNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// NotFound returns a 404 handler for unmatched routes.
func NotFound() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorEnvelope{
			Error: ErrorBody{
				Key:     apperrors.KeyNotFound,
				Message: "resource not found",
				Hint:    c.Request.URL.Path,
			},
		})
	}
}
