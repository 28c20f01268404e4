// Package routes defines the HTTP routes for the companion service.
package routes

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/dnsguard/companion-service/internal/api/handlers"
	"github.com/dnsguard/companion-service/internal/api/middleware"
)

// Config holds the dependencies for setting up routes.
type Config struct {
	HealthHandler    *handlers.HealthHandler
	InstancesHandler *handlers.InstancesHandler
	AuthHandler      *handlers.AuthHandler
	ApplianceHandler *handlers.ApplianceHandler
}

// Setup configures all routes on the Gin engine.
func Setup(r *gin.Engine, cfg *Config) {
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	r.NoRoute(middleware.NotFound())

	v1 := r.Group("/api/v1")
	{
		// Health check routes
		v1.GET("/health", cfg.HealthHandler.Health)
		v1.GET("/ready", cfg.HealthHandler.Ready)
		v1.GET("/live", cfg.HealthHandler.Live)

		// Global settings
		v1.PUT("/settings", cfg.InstancesHandler.UpdateSettings)

		instances := v1.Group("/instances")
		{
			instances.GET("", cfg.InstancesHandler.List)
			instances.POST("", cfg.InstancesHandler.Add)
			instances.PUT("/active", cfg.InstancesHandler.SetActive)

			scoped := instances.Group("/:instanceId")
			{
				scoped.PATCH("", cfg.InstancesHandler.Update)
				scoped.DELETE("", cfg.InstancesHandler.Delete)

				// Session lifecycle
				scoped.GET("/auth", cfg.AuthHandler.Status)
				scoped.POST("/auth", cfg.AuthHandler.Login)
				scoped.DELETE("/auth", cfg.AuthHandler.Logout)
				scoped.POST("/test", cfg.AuthHandler.TestConnection)

				// Appliance passthrough
				scoped.GET("/summary", cfg.ApplianceHandler.Summary)
				scoped.GET("/blocking", cfg.ApplianceHandler.GetBlocking)
				scoped.POST("/blocking", cfg.ApplianceHandler.SetBlocking)
				scoped.GET("/queries", cfg.ApplianceHandler.Queries)
				scoped.GET("/search/:domain", cfg.ApplianceHandler.Search)
				scoped.POST("/request", cfg.ApplianceHandler.Raw)

				domains := scoped.Group("/domains/:list/:kind")
				{
					domains.GET("", cfg.ApplianceHandler.ListDomains)
					domains.POST("", cfg.ApplianceHandler.AddDomain)
					domains.DELETE("/:domain", cfg.ApplianceHandler.RemoveDomain)
				}
			}
		}
	}
}

// SetupWithMiddleware sets up routes with common middleware.
func SetupWithMiddleware(r *gin.Engine, cfg *Config, loggingMw *middleware.LoggingMiddleware, errorMw *middleware.ErrorMiddleware, cors middleware.CORSConfig) {
	r.Use(middleware.NewCORSMiddleware(cors))
	r.Use(loggingMw.Logger())
	r.Use(errorMw.Recovery())
	r.Use(gin.Recovery())

	Setup(r, cfg)
}
