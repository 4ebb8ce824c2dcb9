package main

import (
	"log"
	"os"

	"tutorhub_go/config"
	"tutorhub_go/database"
	"tutorhub_go/database/seeders"
	"tutorhub_go/middleware"
	"tutorhub_go/routes"
	"tutorhub_go/services"
	"tutorhub_go/services/events"
	"tutorhub_go/services/notifications"
	"tutorhub_go/services/websocket"
	"tutorhub_go/storage"
	"tutorhub_go/store"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
)

func init() {
	setupLogging()
	config.LoadConfig()
	database.Connect()

	if config.AppConfig.AppEnv == "development" {
		seeders.SeedAll()
	}
}

func main() {
	// Change-event bus and WebSocket hub come up first: every other
	// service publishes into or reads from them.
	bus := events.NewBus()
	wsHub := websocket.NewHub()
	go wsHub.Run()
	wsHub.BridgeEvents(bus)

	// Wire notifications to the WebSocket hub globally so any new Service uses it
	notifications.SetDefaultWSHub(wsHub)
	notifService := notifications.NewService()
	notifService.SetWebSocketHub(wsHub)
	if config.AppConfig.UseRedisNotifications {
		stopNotif := make(chan struct{})
		notifService.StartWorker(stopNotif)
	}

	// Lesson services share one store
	lessonStore := store.NewGormStore(database.GetDB())
	lifecycle := services.NewLessonLifecycle(lessonStore, notifService, bus)
	policy := services.NewCancellationPolicy(lessonStore, bus)
	aggregator := services.NewAggregator(lessonStore)

	artifacts, err := storage.NewArtifactStore()
	if err != nil {
		logrus.WithError(err).Warn("artifact store unavailable, recording downloads disabled")
		artifacts = nil
	}

	// Background sweeps: overdue completion, auto-acknowledge, session
	// rollover, reminders
	maintenance := services.NewMaintenanceService(lifecycle, notifService, bus)
	maintenance.Start()
	defer maintenance.Stop()

	stopLogs := make(chan struct{})
	middleware.StartActivityLogWorker(stopLogs)
	defer close(stopLogs)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(helmet.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Custom middleware
	app.Use(middleware.LoggerMiddleware())
	app.Use(middleware.LogActivityMiddleware())

	// Health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "TutorHub API",
			"version": "1.0.0",
		})
	})

	// API routes
	routes.SetupRoutes(app, routes.Deps{
		Hub:           wsHub,
		Bus:           bus,
		Lifecycle:     lifecycle,
		Policy:        policy,
		Aggregator:    aggregator,
		Artifacts:     artifacts,
		Notifications: notifService,
	})

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":  "Route not found",
			"path":   c.Path(),
			"method": c.Method(),
		})
	})

	log.Printf("Server starting on port %s (env: %s)", config.AppConfig.Port, config.AppConfig.AppEnv)
	if err := app.Listen(":" + config.AppConfig.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

// setupLogging configures the logging system
func setupLogging() {
	if err := os.MkdirAll("logs", 0755); err != nil {
		log.Printf("Warning: Could not create logs directory: %v", err)
	}

	logrus.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if os.Getenv("APP_ENV") == "development" || os.Getenv("APP_ENV") == "" {
		logrus.SetOutput(os.Stdout)
	} else {
		file, err := os.OpenFile("logs/app.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err == nil {
			logrus.SetOutput(file)
		}
	}
}

// customErrorHandler handles application errors
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	logrus.WithFields(logrus.Fields{
		"error":  err.Error(),
		"path":   c.Path(),
		"method": c.Method(),
		"ip":     c.IP(),
		"status": code,
	}).Error("Request error")

	return c.Status(code).JSON(fiber.Map{
		"error":  message,
		"code":   code,
		"path":   c.Path(),
		"method": c.Method(),
	})
}
