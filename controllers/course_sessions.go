package controllers

import (
	"time"

	"tutorhub_go/database"
	"tutorhub_go/middleware"
	"tutorhub_go/models"
	"tutorhub_go/services"
	"tutorhub_go/services/events"
	"tutorhub_go/storage"

	"github.com/gofiber/fiber/v2"
)

// CourseSessionController covers the group-class side: the upcoming
// preview for learners and the live/end switches for operators. Group
// sessions have no per-learner confirmation; enrollment gates visibility.
type CourseSessionController struct {
	Bus *events.Bus
}

func NewCourseSessionController(bus *events.Bus) *CourseSessionController {
	return &CourseSessionController{Bus: bus}
}

// GetUpcoming lists the next group sessions for the viewer's learners.
// The room code is included only while a session is live.
func (csc *CourseSessionController) GetUpcoming(c *fiber.Ctx) error {
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

	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var sessions []models.CourseSession
	if err := database.DB.
		Joins("JOIN enrollments ON enrollments.course_id = course_sessions.course_id").
		Where("enrollments.learner_id IN ? AND enrollments.status = ?", learnerIDs, "enrolled").
		Where("course_sessions.session_date >= ?", today).
		Preload("Course").Preload("Course.Subject").Preload("Course.Teacher").
		Order("course_sessions.session_date ASC, course_sessions.schedule_time ASC").
		Limit(50).
		Find(&sessions).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch course sessions"})
	}

	views := make([]services.CourseSessionView, 0, services.SessionPreviewCap)
	for _, cs := range sessions {
		if !cs.EndsAt().After(now) || cs.LiveStatus == models.LiveStatusEnded {
			continue
		}
		w := services.CourseSessionWindows(now, cs.StartsAt(), cs.DurationMinutes)
		v := services.CourseSessionView{
			Session: cs,
			Windows: w,
			CanJoin: w.CanJoin && cs.LiveStatus == models.LiveStatusLive && cs.RoomCode != nil,
		}
		if cs.LiveStatus == models.LiveStatusLive && cs.RoomCode != nil {
			v.RoomCode = *cs.RoomCode
		}
		views = append(views, v)
		if len(views) == services.SessionPreviewCap {
			break
		}
	}

	return c.JSON(fiber.Map{
		"generated_at": now,
		"sessions":     views,
	})
}

func loadCourseSession(c *fiber.Ctx) (*models.CourseSession, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return nil, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session ID"})
	}

	var session models.CourseSession
	if err := database.DB.Preload("Course").First(&session, id).Error; err != nil {
		return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Course session not found"})
	}
	return &session, nil
}

// canOperateSession allows the course's teacher and admins to flip the
// live status.
func canOperateSession(user *models.User, session *models.CourseSession) bool {
	switch user.Role {
	case "admin", "owner":
		return true
	case "teacher":
		return user.Teacher != nil && user.Teacher.ID == session.Course.TeacherID
	}
	return false
}

// GoLive marks a session live and provisions its room code. Idempotent
// while already live.
func (csc *CourseSessionController) GoLive(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User not found"})
	}

	session, ferr := loadCourseSession(c)
	if session == nil {
		return ferr
	}
	if !canOperateSession(user, session) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Access denied"})
	}
	if session.LiveStatus == models.LiveStatusEnded {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Session has already ended"})
	}
	if session.LiveStatus == models.LiveStatusLive {
		return c.JSON(fiber.Map{"message": "Session is already live", "room_code": session.RoomCode})
	}

	var req struct {
		RoomCode string `json:"room_code"`
	}
	_ = c.BodyParser(&req)
	if req.RoomCode == "" {
		req.RoomCode = storage.NewRoomReference()
	}

	if err := database.DB.Model(session).Updates(map[string]interface{}{
		"live_status": models.LiveStatusLive,
		"room_code":   req.RoomCode,
	}).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update session"})
	}

	csc.publishSessionChange(session)
	middleware.LogActivity(c, "UPDATE", "course_sessions", session.ID, fiber.Map{"action": "go_live"})

	return c.JSON(fiber.Map{
		"message":   "Session is live",
		"room_code": req.RoomCode,
	})
}

// EndSession flips a live session to ended. The room code stays on the
// row but is no longer exposed to learners.
func (csc *CourseSessionController) EndSession(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User not found"})
	}

	session, ferr := loadCourseSession(c)
	if session == nil {
		return ferr
	}
	if !canOperateSession(user, session) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Access denied"})
	}
	if session.LiveStatus == models.LiveStatusEnded {
		return c.JSON(fiber.Map{"message": "Session already ended"})
	}

	if err := database.DB.Model(session).Update("live_status", models.LiveStatusEnded).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update session"})
	}

	csc.publishSessionChange(session)
	middleware.LogActivity(c, "UPDATE", "course_sessions", session.ID, fiber.Map{"action": "end_session"})

	return c.JSON(fiber.Map{"message": "Session ended"})
}

// publishSessionChange notifies every enrolled learner's user.
func (csc *CourseSessionController) publishSessionChange(session *models.CourseSession) {
	if csc.Bus == nil {
		return
	}

	var userIDs []uint
	database.DB.Model(&models.Learner{}).
		Joins("JOIN enrollments ON enrollments.learner_id = learners.id").
		Where("enrollments.course_id = ? AND enrollments.status = ?", session.CourseID, "enrolled").
		Pluck("learners.user_id", &userIDs)

	csc.Bus.Publish(events.Change{
		Table:     events.TableCourseSessions,
		EventType: events.EventUpdate,
		RowID:     session.ID,
		UserIDs:   userIDs,
	})
}
