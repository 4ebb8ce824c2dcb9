package routes

import (
	"tutorhub_go/controllers"
	"tutorhub_go/middleware"
	"tutorhub_go/services"
	"tutorhub_go/services/events"
	"tutorhub_go/services/notifications"
	"tutorhub_go/services/websocket"
	"tutorhub_go/storage"

	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
)

// Deps bundles the shared services the route handlers close over.
type Deps struct {
	Hub           *websocket.Hub
	Bus           *events.Bus
	Lifecycle     *services.LessonLifecycle
	Policy        *services.CancellationPolicy
	Aggregator    *services.Aggregator
	Artifacts     *storage.ArtifactStore
	Notifications *notifications.Service
}

// SetupRoutes configures all application routes
func SetupRoutes(app *fiber.App, deps Deps) {
	// Initialize controllers
	authController := &controllers.AuthController{}
	lessonController := controllers.NewLessonController(deps.Lifecycle, deps.Policy, deps.Artifacts, deps.Bus)
	availabilityController := controllers.NewAvailabilityController(deps.Aggregator)
	sessionController := controllers.NewCourseSessionController(deps.Bus)
	notificationController := controllers.NewNotificationController(deps.Notifications)
	reportsController := &controllers.ReportsController{}
	wsController := controllers.NewWebSocketController(deps.Hub, deps.Aggregator, deps.Bus)

	// API group
	api := app.Group("/api")

	// Authentication routes (no middleware)
	auth := api.Group("/auth")
	auth.Post("/login", authController.Login)
	auth.Get("/profile", middleware.JWTMiddleware(), authController.GetProfile)

	// Protected routes (require authentication)
	protected := api.Group("/", middleware.JWTMiddleware())

	// Profile routes (authenticated users)
	protected.Get("/profile", authController.GetProfile)
	protected.Put("/profile/password", authController.ChangePassword)
	protected.Post("/auth/logout", authController.Logout)

	// Availability dashboard
	protected.Get("/availability", availabilityController.GetAvailability)

	// Lesson lifecycle routes
	lessons := protected.Group("/lessons")
	lessons.Get("/:id", lessonController.GetLesson)
	lessons.Get("/:id/recording", lessonController.GetRecording)
	lessons.Post("/:id/acknowledge", middleware.RequireTeacherOrAbove(), lessonController.Acknowledge)
	lessons.Post("/:id/cancel", lessonController.Cancel)
	// Operator and collaborator webhooks
	lessons.Post("/:id/complete", middleware.RequireOwnerOrAdmin(), lessonController.Complete)
	lessons.Post("/:id/room", middleware.RequireOwnerOrAdmin(), lessonController.ProvisionRoom)
	lessons.Post("/:id/artifacts", middleware.RequireOwnerOrAdmin(), lessonController.AttachArtifacts)

	// Group course sessions
	courseSessions := protected.Group("/course-sessions")
	courseSessions.Get("/upcoming", sessionController.GetUpcoming)
	courseSessions.Post("/:id/live", middleware.RequireTeacherOrAbove(), sessionController.GoLive)
	courseSessions.Post("/:id/end", middleware.RequireTeacherOrAbove(), sessionController.EndSession)

	// Notification management routes
	notifs := protected.Group("/notifications")
	notifs.Get("/", notificationController.GetNotifications)
	notifs.Get("/unread-count", notificationController.GetUnreadCount)
	notifs.Post("/", middleware.RequireOwnerOrAdmin(), notificationController.CreateNotification)
	notifs.Patch("/:id/read", notificationController.MarkAsRead)
	notifs.Patch("/mark-all-read", notificationController.MarkAllAsRead)

	// Operator reports (Admin/Owner only)
	reports := protected.Group("/reports", middleware.RequireOwnerOrAdmin())
	reports.Get("/lessons.xlsx", reportsController.ExportLessons)

	// WebSocket routes
	ws := protected.Group("/ws")
	ws.Get("/stats", middleware.RequireOwnerOrAdmin(), wsController.GetWebSocketStats)

	// WebSocket connection endpoint - use websocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if fiberws.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", wsController.WebSocketHandler())
}
