package main

import (
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/skillcheck/session-engine/internal/config"
	"github.com/skillcheck/session-engine/internal/events"
	"github.com/skillcheck/session-engine/internal/gateway"
	"github.com/skillcheck/session-engine/internal/handlers"
	"github.com/skillcheck/session-engine/internal/services"
	"github.com/skillcheck/session-engine/internal/store"
	"github.com/skillcheck/session-engine/internal/validator"
	"github.com/skillcheck/session-engine/pkg"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	var logger *slog.Logger
	if cfg.Environment == "production" {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	} else {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	progressStore, cleanup, err := buildStore(cfg)
	if err != nil {
		logger.Error("Failed to initialize progress store", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}
	logger.Info("Progress store ready", "backend", cfg.StoreBackend)

	publisher, err := cfg.Events.CreateEventPublisher(logger)
	if err != nil {
		logger.Error("Failed to create event publisher, using mock", "error", err)
		publisher = events.NewMockEventPublisher(logger)
	}
	defer publisher.Close()

	gw := gateway.NewHTTPGateway(cfg.GatewayURL, cfg.GatewayTimeout, logger)
	engine := services.NewEngine(gw, progressStore, publisher, logger, validator.New())

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	handlers.NewHandlerManager(engine, logger).SetupRoutes(router)

	logger.Info("Session engine listening", "port", cfg.Port, "gateway_url", cfg.GatewayURL)
	if err := router.Run(":" + cfg.Port); err != nil {
		logger.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

func buildStore(cfg *config.Config) (store.ProgressStore, func() error, error) {
	switch cfg.StoreBackend {
	case "redis":
		client, err := pkg.NewRedisClient(cfg)
		if err != nil {
			return nil, nil, err
		}
		return store.NewRedisStore(client), client.Close, nil
	case "postgres":
		db, err := pkg.InitDatabase(cfg)
		if err != nil {
			return nil, nil, err
		}
		gormStore, err := store.NewGormStore(db)
		if err != nil {
			return nil, nil, err
		}
		return gormStore, nil, nil
	case "memory":
		return store.NewMemoryStore(), nil, nil
	default:
		boltStore, err := pkg.NewBoltStore(cfg)
		if err != nil {
			return nil, nil, err
		}
		return boltStore, boltStore.Close, nil
	}
}
