package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/wso2/consent-core-service/internal/cache"
	"github.com/wso2/consent-core-service/internal/config"
	"github.com/wso2/consent-core-service/internal/database"
	"github.com/wso2/consent-core-service/internal/notifier"
	"github.com/wso2/consent-core-service/internal/revocation"
	"github.com/wso2/consent-core-service/internal/router"
	"github.com/wso2/consent-core-service/internal/service"
)

// Version information (set by build script)
var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	logger.WithFields(logrus.Fields{
		"version":    version,
		"build_date": buildDate,
	}).Info("Starting Consent Core Service...")

	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(level)
	}

	logger.WithFields(logrus.Fields{
		"config_path": configPath,
		"log_level":   logger.GetLevel().String(),
	}).Info("Configuration loaded successfully")

	// Live consent store
	liveDB, err := database.Initialize(&cfg.Database.Consent, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize consent database")
	}
	defer liveDB.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := liveDB.HealthCheck(ctx); err != nil {
		cancel()
		logger.WithError(err).Fatal("Consent database health check failed")
	}
	cancel()

	// Optional retention store
	var retentionDB *database.DB
	if cfg.Database.IsRetentionConfigured() {
		retentionDB, err = database.Initialize(&cfg.Database.Retention, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize retention database")
		}
		defer retentionDB.Close()
		logger.Info("Retention store configured")
	}

	provider := database.NewProvider(liveDB, retentionDB)

	// State-change notifier
	var stateNotifier notifier.StateChangeNotifier
	if cfg.Notifier.Enabled {
		amqpNotifier, err := notifier.NewAMQPNotifier(&cfg.Notifier, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize state-change notifier")
		}
		stateNotifier = amqpNotifier
	} else {
		stateNotifier = notifier.NewNoopNotifier()
	}
	defer stateNotifier.Close()

	// Token revoker
	var tokenRevoker revocation.TokenRevoker
	if cfg.TokenRevocation.Enabled {
		tokenRevoker = revocation.NewHTTPTokenRevoker(&cfg.TokenRevocation, logger)
	} else {
		tokenRevoker = revocation.NewNoopTokenRevoker()
	}

	// Detailed-consent read cache
	var consentCache cache.DetailedConsentCache
	if cfg.Cache.Enabled {
		redisCache, err := cache.NewRedisCache(&cfg.Cache, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize consent cache")
		}
		consentCache = redisCache
	} else {
		consentCache = cache.NewNoopCache()
	}
	defer consentCache.Close()

	consentService := service.NewConsentService(provider, stateNotifier, tokenRevoker, consentCache, cfg, logger)
	logger.Info("Consent service initialized successfully")

	ginRouter := router.SetupRouter(consentService)

	serverAddr := cfg.Server.GetServerAddress()
	server := &http.Server{
		Addr:           serverAddr,
		Handler:        ginRouter,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}
	if cfg.Server.ReadTimeout > 0 {
		server.ReadTimeout = cfg.Server.ReadTimeout
	}
	if cfg.Server.WriteTimeout > 0 {
		server.WriteTimeout = cfg.Server.WriteTimeout
	}
	if cfg.Server.IdleTimeout > 0 {
		server.IdleTimeout = cfg.Server.IdleTimeout
	}

	go func() {
		logger.WithField("addr", serverAddr).Info("Starting HTTP server...")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited gracefully")
}
