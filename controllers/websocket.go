package controllers

import (
	"log"

	"tutorhub_go/config"
	"tutorhub_go/database"
	"tutorhub_go/models"
	"tutorhub_go/services"
	"tutorhub_go/services/events"
	"tutorhub_go/services/websocket"

	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
	"github.com/golang-jwt/jwt/v4"
)

// WebSocketController wires the realtime surface: each authenticated
// connection joins the hub for notification delivery and, for learner and
// guardian accounts, gets a per-connection availability reconciler that
// pushes fresh dashboard views on change and on the poll interval.
type WebSocketController struct {
	hub *websocket.Hub
	agg *services.Aggregator
	bus *events.Bus
}

func NewWebSocketController(hub *websocket.Hub, agg *services.Aggregator, bus *events.Bus) *WebSocketController {
	return &WebSocketController{hub: hub, agg: agg, bus: bus}
}

type wsClaims struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// validateJWT validates a JWT token and returns the user
func (wsc *WebSocketController) validateJWT(tokenString string) (*models.User, error) {
	token, err := jwt.ParseWithClaims(tokenString, &wsClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(config.AppConfig.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*wsClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrInvalidKey
	}

	var user models.User
	if err := database.DB.Preload("Learner").Where("id = ? AND status = ?", claims.UserID, "active").First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// viewerLearnerIDs resolves learner ids for WS viewers without a request
// context: students see their own learner, guardians their linked children.
func viewerLearnerIDs(user *models.User) []uint {
	switch user.Role {
	case "student":
		if user.Learner != nil {
			return []uint{user.Learner.ID}
		}
	case "guardian":
		var ids []uint
		database.DB.Model(&models.Learner{}).Where("guardian_user_id = ?", user.ID).Pluck("id", &ids)
		return ids
	}
	return nil
}

// WebSocketHandler returns a Fiber WebSocket handler that validates JWT
// and connects the client to the hub.
func (wsc *WebSocketController) WebSocketHandler() fiber.Handler {
	return fiberws.New(func(c *fiberws.Conn) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("WebSocket handler panic: %v", r)
			}
		}()

		token := c.Query("token")
		if token == "" {
			c.WriteMessage(fiberws.CloseMessage, []byte("Missing token"))
			c.Close()
			return
		}

		user, err := wsc.validateJWT(token)
		if err != nil {
			c.WriteMessage(fiberws.CloseMessage, []byte("Invalid token"))
			c.Close()
			return
		}

		// Learner-facing connections get a live availability feed alongside
		// notification delivery. The reconciler lives and dies with the
		// connection.
		if learnerIDs := viewerLearnerIDs(user); len(learnerIDs) > 0 {
			rec := services.NewReconciler(wsc.agg, wsc.bus, user.ID, learnerIDs).
				WithOnRefresh(func(view *services.AvailabilityView) {
					wsc.hub.BroadcastToUser(user.ID, fiber.Map{
						"type": "availability",
						"data": view,
					})
				})
			rec.Start()
			defer rec.Stop()
		}

		wsc.hub.ServeFiberWS(c, user.ID)
	})
}

// GetWebSocketStats returns WebSocket connection statistics (admin only)
func (wsc *WebSocketController) GetWebSocketStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"connected_clients": wsc.hub.GetClientCount(),
		"status":            "active",
	})
}
