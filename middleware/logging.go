package middleware

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"tutorhub_go/database"
	"tutorhub_go/models"
)

// LoggerMiddleware logs HTTP requests
func LoggerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start)
		status := c.Response().StatusCode()

		logrus.WithFields(logrus.Fields{
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     status,
			"duration":   duration.String(),
			"ip":         c.IP(),
			"user_agent": c.Get("User-Agent"),
		}).Info("HTTP Request")

		return err
	}
}

// LogActivity records a user action against a resource. Entries are
// buffered in Redis when available and flushed to the database by the
// log worker; without Redis they go straight to the database.
func LogActivity(c *fiber.Ctx, action, resource string, resourceID uint, details interface{}) {
	user, err := GetCurrentUser(c)
	if err != nil {
		// No authenticated user; log as system action
		user = &models.User{BaseModel: models.BaseModel{ID: 0}}
	}

	var detailsJSON models.JSON
	if details != nil {
		if detailsBytes, err := json.Marshal(details); err == nil {
			detailsJSON = detailsBytes
		}
	}

	entry := models.ActivityLog{
		UserID:     user.ID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Details:    detailsJSON,
		IPAddress:  c.IP(),
		UserAgent:  c.Get("User-Agent"),
	}

	rdb := database.GetRedisClient()
	if rdb != nil {
		if payload, err := json.Marshal(entry); err == nil {
			if err := rdb.RPush(context.Background(), activityLogKey, payload).Err(); err == nil {
				return
			}
		}
	}

	if err := database.DB.Create(&entry).Error; err != nil {
		logrus.WithError(err).Warn("activity log write failed")
	}
}

const activityLogKey = "activity:logs"

// StartActivityLogWorker drains the Redis activity buffer into the
// database every few seconds.
func StartActivityLogWorker(stop <-chan struct{}) {
	rdb := database.GetRedisClient()
	if rdb == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		ctx := context.Background()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				vals, err := rdb.LRange(ctx, activityLogKey, 0, 99).Result()
				if err != nil || len(vals) == 0 {
					continue
				}
				if err := rdb.LTrim(ctx, activityLogKey, int64(len(vals)), -1).Err(); err != nil {
					logrus.WithError(err).Warn("activity log trim failed")
				}

				entries := make([]models.ActivityLog, 0, len(vals))
				for _, raw := range vals {
					var entry models.ActivityLog
					if err := json.Unmarshal([]byte(raw), &entry); err != nil {
						continue
					}
					entries = append(entries, entry)
				}
				if len(entries) > 0 {
					if err := database.DB.Create(&entries).Error; err != nil {
						logrus.WithError(err).Warn("activity log batch insert failed")
					}
				}
			}
		}
	}()
}

// LogActivityMiddleware attaches automatic activity logging for mutating requests.
func LogActivityMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		switch c.Method() {
		case fiber.MethodPost, fiber.MethodPut, fiber.MethodPatch, fiber.MethodDelete:
			if c.Response().StatusCode() < 400 {
				LogActivity(c, c.Method(), c.Path(), 0, nil)
			}
		}

		return err
	}
}
