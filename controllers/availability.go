package controllers

import (
	"tutorhub_go/database"
	"tutorhub_go/middleware"
	"tutorhub_go/models"
	"tutorhub_go/services"

	"github.com/gofiber/fiber/v2"
)

// AvailabilityController serves the assembled dashboard view. The heavy
// lifting lives in services.Aggregator; this handler only resolves which
// learners the viewer is allowed to see.
type AvailabilityController struct {
	Aggregator *services.Aggregator
}

func NewAvailabilityController(agg *services.Aggregator) *AvailabilityController {
	return &AvailabilityController{Aggregator: agg}
}

// ResolveViewerLearnerIDs maps an authenticated user to the learner ids
// whose lessons they may view: a student sees their own, a guardian sees
// every child linked to their account, an admin may pass ?learner_id.
func ResolveViewerLearnerIDs(c *fiber.Ctx, user *models.User) ([]uint, error) {
	switch user.Role {
	case "student":
		if user.Learner == nil {
			return nil, fiber.NewError(fiber.StatusConflict, "No learner profile linked to this account")
		}
		return []uint{user.Learner.ID}, nil

	case "guardian":
		var children []models.Learner
		if err := database.DB.Where("guardian_user_id = ?", user.ID).Find(&children).Error; err != nil {
			return nil, fiber.NewError(fiber.StatusInternalServerError, "Failed to resolve linked learners")
		}
		ids := make([]uint, 0, len(children))
		for _, child := range children {
			ids = append(ids, child.ID)
		}
		if len(ids) == 0 {
			return nil, fiber.NewError(fiber.StatusConflict, "No learners linked to this guardian account")
		}
		return ids, nil

	case "admin", "owner":
		learnerID := c.QueryInt("learner_id")
		if learnerID <= 0 {
			return nil, fiber.NewError(fiber.StatusBadRequest, "learner_id query parameter required")
		}
		var learner models.Learner
		if err := database.DB.First(&learner, learnerID).Error; err != nil {
			return nil, fiber.NewError(fiber.StatusNotFound, "Learner not found")
		}
		return []uint{learner.ID}, nil
	}

	return nil, fiber.NewError(fiber.StatusForbidden, "Role cannot view availability")
}

// GetAvailability assembles the three dashboard lists for the viewer.
// Partial upstream failures are reported in the degraded field rather
// than failing the request.
func (avc *AvailabilityController) GetAvailability(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User not found"})
	}

	learnerIDs, err := ResolveViewerLearnerIDs(c, user)
	if err != nil {
		if fe, ok := err.(*fiber.Error); ok {
			return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}

	view, err := avc.Aggregator.Assemble(c.Context(), learnerIDs)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to assemble availability"})
	}

	return c.JSON(view)
}
