package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/Symple44/TopSteel-sub008/internal/bridge"
	"github.com/Symple44/TopSteel-sub008/internal/config"
	"github.com/Symple44/TopSteel-sub008/internal/database"
	"github.com/Symple44/TopSteel-sub008/internal/deliveries"
	"github.com/Symple44/TopSteel-sub008/internal/dispatcher"
	"github.com/Symple44/TopSteel-sub008/internal/events"
	"github.com/Symple44/TopSteel-sub008/internal/handlers"
	"github.com/Symple44/TopSteel-sub008/internal/logger"
	"github.com/Symple44/TopSteel-sub008/internal/maintenance"
	"github.com/Symple44/TopSteel-sub008/internal/metrics"
	"github.com/Symple44/TopSteel-sub008/internal/rabbitmq"
	"github.com/Symple44/TopSteel-sub008/internal/routes"
	"github.com/Symple44/TopSteel-sub008/internal/subscriptions"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}

	// Initialize logger
	if err := logger.Init(cfg.LogLevel); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	// Connect to PostgreSQL
	db, err := database.Connect(&cfg.Database, logger.L())
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := database.Close(db, logger.L()); err != nil {
			logger.Error("Error closing database", zap.Error(err))
		}
	}()

	// Run database migrations
	if err := database.RunMigrations(&cfg.Database, logger.L()); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Metrics and outbound HTTP client
	m := metrics.New()
	client := dispatcher.NewClient(&cfg.Dispatcher, logger.L())

	// Stores
	subStore := subscriptions.NewStore(db, client, logger.L())
	eventStore := events.NewStore(db, logger.L())
	deliveryStore := deliveries.NewStore(db, logger.L())

	// Dispatcher: turns emitted events into signed deliveries
	disp := dispatcher.NewDispatcher(
		subStore,
		eventStore,
		deliveryStore,
		client,
		clockwork.NewRealClock(),
		m,
		logger.L(),
		cfg.Dispatcher.MaxInFlight,
	)
	defer disp.Stop()

	// Re-arm deliveries that were pending when the previous process stopped
	if n, err := disp.RecoverPending(context.Background()); err != nil {
		logger.Error("Failed to recover pending deliveries", zap.Error(err))
	} else if n > 0 {
		logger.Info("Recovered pending deliveries", zap.Int("count", n))
	}

	// Optional RabbitMQ bridge for domain events published by other services
	var rmq *rabbitmq.Connection
	var eventBridge *bridge.Bridge
	if cfg.RabbitMQ.BridgeEnabled() {
		rmq = rabbitmq.NewConnection(&cfg.RabbitMQ, logger.L())
		if err := rmq.Connect(); err != nil {
			logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		defer rmq.Close()

		eventBridge = bridge.NewBridge(&cfg.RabbitMQ, rmq, disp, logger.L())
		if err := eventBridge.Start(); err != nil {
			logger.Fatal("Failed to start event bridge", zap.Error(err))
		}
	} else {
		logger.Info("RabbitMQ bridge disabled, events accepted in-process only")
	}

	// Scheduled maintenance: delivery retention and subscription health sweeps
	jobs := maintenance.NewJobs(deliveryStore, subStore, cfg.Maintenance.RetentionDays, m, logger.L())
	scheduler := cron.New()
	if err := jobs.Register(scheduler); err != nil {
		logger.Fatal("Failed to register maintenance jobs", zap.Error(err))
	}
	scheduler.Start()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Pricing Webhook Service",
		ServerHeader: "Fiber",
	})

	// Middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization," + handlers.SocieteHeader,
	}))

	// Setup routes
	healthHandler := handlers.NewHealthHandler(db, rmq)
	webhooksHandler := handlers.NewWebhooksHandler(subStore, eventStore, deliveryStore, client, logger.L())
	routes.SetupRoutes(app, healthHandler, webhooksHandler, m.Handler())

	// Start server in a goroutine
	go func() {
		addr := cfg.Server.Host + ":" + cfg.Server.Port
		logger.Info("Server starting",
			zap.String("address", addr),
		)
		if err := app.Listen(addr); err != nil {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")
	if err := app.Shutdown(); err != nil {
		logger.Error("Error during server shutdown", zap.Error(err))
	}

	// Stop accepting scheduled work, then drain in-flight deliveries
	cronCtx := scheduler.Stop()
	select {
	case <-cronCtx.Done():
	case <-time.After(10 * time.Second):
		logger.Warn("Timed out waiting for maintenance jobs to finish")
	}

	if eventBridge != nil {
		if err := eventBridge.Stop(); err != nil {
			logger.Error("Error stopping event bridge", zap.Error(err))
		}
	}
	disp.Stop()

	logger.Info("Server stopped")
}
