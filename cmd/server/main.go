// Package main is the entry point for the DNS Guard Companion Service.
// @title DNS Guard Companion Service API
// @version 1.0
// @description Local companion service for the DNS Guard browser extension: instance credential management and resilient appliance access

// @contact.name API Support
// @contact.url https://github.com/dnsguard/companion-service

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8090
// @BasePath /
// @schemes http
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/dnsguard/companion-service/internal/api/handlers"
	"github.com/dnsguard/companion-service/internal/api/middleware"
	"github.com/dnsguard/companion-service/internal/api/routes"
	"github.com/dnsguard/companion-service/internal/config"
	"github.com/dnsguard/companion-service/internal/core/cache"
	"github.com/dnsguard/companion-service/internal/core/store"
	"github.com/dnsguard/companion-service/internal/core/vault"
	rediscache "github.com/dnsguard/companion-service/internal/infrastructure/cache/redis"
	mongostore "github.com/dnsguard/companion-service/internal/infrastructure/store/mongodb"
	dotenvvault "github.com/dnsguard/companion-service/internal/infrastructure/vault/dotenv"
	"github.com/dnsguard/companion-service/internal/pkg/encryption"
	"github.com/dnsguard/companion-service/internal/services/appliance"
	"github.com/dnsguard/companion-service/internal/services/credentials"
	"github.com/dnsguard/companion-service/internal/services/registry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := newLogger(cfg.Log)
	ctx := context.Background()

	// Initialize vault client using factory pattern
	vaultClient, err := createVault(cfg.Vault)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize vault")
	}
	defer vaultClient.Close()

	// Initialize cache client using factory pattern
	cacheClient, err := createCache(cfg.Cache)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize cache")
	}
	defer cacheClient.Close()

	// Initialize durable store using factory pattern
	storeClient, err := createStore(ctx, cfg.Store, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize store")
	}
	defer storeClient.Close(ctx)

	// Initialize the key-wrap encryptor
	wrap := createWrapEncryptor(ctx, vaultClient, logger)

	// Initialize credential store
	credentialService, err := credentials.NewService(&credentials.Config{
		Store:  storeClient,
		Cache:  cacheClient,
		Wrap:   wrap,
		Logger: logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize credential store")
	}

	// Initialize the per-instance client registry
	policy := appliance.RetryPolicy{
		MaxRetries: cfg.Appliance.MaxRetries,
		BaseDelay:  cfg.Appliance.RetryBaseDelay,
		Multiplier: cfg.Appliance.RetryMultiplier,
		MaxDelay:   cfg.Appliance.RetryMaxDelay,
	}
	clientRegistry, err := registry.New(&registry.Config{
		Credentials:       credentialService,
		Cache:             cacheClient,
		RequestTimeout:    cfg.Appliance.RequestTimeout,
		Policy:            &policy,
		KeepAliveInterval: cfg.Appliance.KeepAliveInterval,
		Logger:            logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize client registry")
	}

	// Re-adopt sessions that survived a restart in the ephemeral tier
	clientRegistry.RestoreSessions(ctx)

	// Set Gin mode
	gin.SetMode(cfg.Server.GinMode)

	// Setup router
	router := setupRouter(credentialService, clientRegistry, cacheClient, storeClient, logger)

	// Create HTTP server
	srv := &http.Server{
		Addr:    cfg.Server.Address(),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		logger.Info().Str("address", cfg.Server.Address()).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientRegistry.ClearAll(shutdownCtx)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server exited")
}

// newLogger builds the root logger from the logging configuration.
func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

// createVault creates a vault client based on the configuration.
func createVault(cfg config.VaultConfig) (vault.Vault, error) {
	switch vault.Type(cfg.Type) {
	case vault.TypeDotEnv:
		return dotenvvault.NewVault()
	default:
		return nil, fmt.Errorf("unsupported vault type: %s", cfg.Type)
	}
}

// createCache creates a cache client based on the configuration.
func createCache(cfg config.CacheConfig) (cache.Cache, error) {
	switch cache.Type(cfg.Type) {
	case cache.TypeRedis:
		return rediscache.NewCache(rediscache.Config{
			Host:       cfg.Host,
			Port:       cfg.Port,
			Password:   cfg.Password,
			DB:         cfg.DB,
			DefaultTTL: cfg.TTL,
		})
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// createStore creates a durable store based on the configuration.
func createStore(ctx context.Context, cfg config.StoreConfig, logger zerolog.Logger) (store.Store, error) {
	switch store.Type(cfg.Type) {
	case store.TypeMongoDB:
		return mongostore.NewStore(ctx, &mongostore.StoreConfig{
			URI:          cfg.URI,
			DatabaseName: cfg.Database,
			PollInterval: cfg.PollInterval,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
	}
}

// createWrapEncryptor resolves the key-wrap passphrase from the vault.
// Without one, persisted master keys are only encoded, not encrypted,
// which disables the remember-password guarantee.
func createWrapEncryptor(ctx context.Context, v vault.Vault, logger zerolog.Logger) encryption.Encryptor {
	passphrase, err := v.GetSecret(ctx, vault.KeyWrapSecretURI)
	if err != nil || passphrase == "" {
		logger.Warn().Msg("key-wrap passphrase not configured, persisted master keys are not encrypted")
		return encryption.NewNoOpEncryptor()
	}

	enc, err := encryption.NewGCMEncryptor(passphrase)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to build key-wrap encryptor, falling back to encoding only")
		return encryption.NewNoOpEncryptor()
	}
	return enc
}

// setupRouter wires handlers, middleware and routes.
func setupRouter(creds credentials.Service, reg *registry.Registry, cacheClient cache.Cache, storeClient store.Store, logger zerolog.Logger) *gin.Engine {
	router := gin.New()

	routes.SetupWithMiddleware(router, &routes.Config{
		HealthHandler:    handlers.NewHealthHandler(cacheClient, storeClient),
		InstancesHandler: handlers.NewInstancesHandler(creds, reg),
		AuthHandler:      handlers.NewAuthHandler(creds, reg),
		ApplianceHandler: handlers.NewApplianceHandler(reg),
	},
		middleware.NewLoggingMiddleware(logger),
		middleware.NewErrorMiddleware(),
		middleware.DefaultCORSConfig(),
	)

	return router
}
