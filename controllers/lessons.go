package controllers

import (
	"errors"
	"time"

	"tutorhub_go/database"
	"tutorhub_go/middleware"
	"tutorhub_go/models"
	"tutorhub_go/services"
	"tutorhub_go/services/events"
	"tutorhub_go/storage"
	"tutorhub_go/store"

	"github.com/gofiber/fiber/v2"
)

// LessonController exposes the lesson lifecycle over HTTP. All state
// transitions go through the services layer; handlers only translate
// transport concerns and authorization.
type LessonController struct {
	Lifecycle *services.LessonLifecycle
	Policy    *services.CancellationPolicy
	Artifacts *storage.ArtifactStore
	Bus       *events.Bus
}

func NewLessonController(lifecycle *services.LessonLifecycle, policy *services.CancellationPolicy, artifacts *storage.ArtifactStore, bus *events.Bus) *LessonController {
	return &LessonController{Lifecycle: lifecycle, Policy: policy, Artifacts: artifacts, Bus: bus}
}

// canAccessLesson checks whether the user may read or act on the lesson:
// admins always, the assigned teacher, the learner's own account, or the
// learner's guardian.
func canAccessLesson(user *models.User, lesson *models.Lesson) bool {
	switch user.Role {
	case "admin", "owner":
		return true
	case "teacher":
		return user.Teacher != nil && user.Teacher.ID == lesson.TeacherID
	case "student":
		return user.Learner != nil && user.Learner.ID == lesson.LearnerID
	case "guardian":
		return lesson.Learner.GuardianUserID != nil && *lesson.Learner.GuardianUserID == user.ID
	}
	return false
}

func loadLesson(c *fiber.Ctx) (*models.Lesson, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return nil, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid lesson ID"})
	}

	var lesson models.Lesson
	if err := database.DB.Preload("Learner").Preload("Teacher").Preload("Subject").First(&lesson, id).Error; err != nil {
		return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Lesson not found"})
	}
	return &lesson, nil
}

// respondServiceError maps the service error taxonomy to HTTP statuses.
func respondServiceError(c *fiber.Ctx, err error) error {
	var invalid *services.InvalidTransitionError
	var closed *services.WindowClosedError
	var notProv *services.NotProvisionedError

	switch {
	case errors.Is(err, store.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Lesson not found"})
	case errors.As(err, &invalid):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":         "Invalid transition",
			"attempted":     invalid.Attempted,
			"current_state": invalid.Current,
		})
	case errors.Is(err, services.ErrConcurrencyConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "The lesson changed concurrently, please retry",
		})
	case errors.As(err, &closed):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":       "Window closed",
			"action":      closed.Action,
			"hours_until": closed.HoursUntil,
		})
	case errors.As(err, &notProv):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":    "Not provisioned yet",
			"resource": notProv.Resource,
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}
}

// GetLesson returns one lesson with its computed time windows and, when
// completed, the artifact flags.
func (lc *LessonController) GetLesson(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User not found"})
	}

	lesson, ferr := loadLesson(c)
	if lesson == nil {
		return ferr
	}
	if !canAccessLesson(user, lesson) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Access denied"})
	}

	now := time.Now()
	w := services.LessonWindows(now, lesson.ScheduledStart, lesson.DurationMinutes)

	resp := fiber.Map{
		"lesson":   lesson,
		"windows":  w,
		"can_join": w.CanJoin && lesson.RoomReference != nil,
	}
	if lesson.Status == models.LessonStatusCompleted {
		resp["artifacts"] = services.ResolveArtifacts(now, lesson)
	}
	return c.JSON(resp)
}

// Acknowledge confirms the lesson on behalf of the assigned teacher.
func (lc *LessonController) Acknowledge(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User not found"})
	}

	lesson, ferr := loadLesson(c)
	if lesson == nil {
		return ferr
	}
	if user.Role == "teacher" && (user.Teacher == nil || user.Teacher.ID != lesson.TeacherID) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Not your lesson"})
	}

	updated, err := lc.Lifecycle.Acknowledge(c.Context(), lesson.ID)
	if err != nil {
		return respondServiceError(c, err)
	}

	middleware.LogActivity(c, "UPDATE", "lessons", lesson.ID, fiber.Map{
		"action": "acknowledge",
	})

	return c.JSON(fiber.Map{
		"message": "Lesson acknowledged",
		"lesson":  updated,
	})
}

// CancelRequest carries the optional cancellation reason.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// Cancel applies the cancellation policy. A closed window is a structured
// 409 response carrying the reschedule offer, not a server error.
func (lc *LessonController) Cancel(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User not found"})
	}

	lesson, ferr := loadLesson(c)
	if lesson == nil {
		return ferr
	}
	if !canAccessLesson(user, lesson) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Access denied"})
	}

	var req CancelRequest
	_ = c.BodyParser(&req) // empty body means no reason given

	decision, err := lc.Policy.Cancel(c.Context(), lesson.ID, user.ID, req.Reason)
	if err != nil {
		return respondServiceError(c, err)
	}

	if !decision.Cancelled {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"code":               decision.Code,
			"hours_until":        decision.HoursUntil,
			"reschedule_offered": decision.RescheduleOffered,
		})
	}

	middleware.LogActivity(c, "UPDATE", "lessons", lesson.ID, fiber.Map{
		"action":           "cancel",
		"credits_refunded": decision.CreditsRefunded,
	})

	return c.JSON(fiber.Map{
		"message":          "Lesson cancelled",
		"credits_refunded": decision.CreditsRefunded,
		"record":           decision.Record,
	})
}

// Complete marks the lesson completed. Called by operators or the sweep
// job, not by learners.
func (lc *LessonController) Complete(c *fiber.Ctx) error {
	lesson, ferr := loadLesson(c)
	if lesson == nil {
		return ferr
	}

	if err := lc.Lifecycle.Complete(c.Context(), lesson.ID); err != nil {
		return respondServiceError(c, err)
	}

	middleware.LogActivity(c, "UPDATE", "lessons", lesson.ID, fiber.Map{
		"action": "complete",
	})

	return c.JSON(fiber.Map{"message": "Lesson completed"})
}

// GetRecording resolves the recording artifact and, when available,
// returns a presigned download URL. Every other state is a structured
// response the client can render without guessing.
func (lc *LessonController) GetRecording(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User not found"})
	}

	lesson, ferr := loadLesson(c)
	if lesson == nil {
		return ferr
	}
	if !canAccessLesson(user, lesson) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Access denied"})
	}
	if lesson.Status != models.LessonStatusCompleted {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Lesson is not completed"})
	}

	flags := services.ResolveArtifacts(time.Now(), lesson)
	switch flags.RecordingState {
	case services.RecordingProcessing:
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"state":   flags.RecordingState,
			"message": "Recording is still processing",
		})
	case services.RecordingExpired:
		return c.Status(fiber.StatusGone).JSON(fiber.Map{
			"state":   flags.RecordingState,
			"message": "Recording retention window has passed",
		})
	case services.RecordingNotRequested:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"state":   flags.RecordingState,
			"message": "No recording exists for this lesson",
		})
	}

	if lc.Artifacts == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Recording storage is not configured"})
	}

	url, err := lc.Artifacts.PresignDownload(c.Context(), *lesson.RecordingRef)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "Failed to presign recording URL"})
	}

	return c.JSON(fiber.Map{
		"state":     flags.RecordingState,
		"url":       url,
		"days_left": flags.RecordingDaysLeft,
	})
}

// ProvisionRoom is the webhook the room collaborator calls once a meeting
// room exists for the lesson. Idempotent: re-posting the same reference is
// a no-op.
func (lc *LessonController) ProvisionRoom(c *fiber.Ctx) error {
	lesson, ferr := loadLesson(c)
	if lesson == nil {
		return ferr
	}

	var req struct {
		RoomReference string `json:"room_reference"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.RoomReference == "" {
		req.RoomReference = storage.NewRoomReference()
	}

	if lesson.RoomReference != nil && *lesson.RoomReference == req.RoomReference {
		return c.JSON(fiber.Map{"message": "Room already provisioned", "room_reference": req.RoomReference})
	}

	if err := database.DB.Model(lesson).Update("room_reference", req.RoomReference).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to store room reference"})
	}

	lc.publishLessonChange(lesson)

	return c.JSON(fiber.Map{
		"message":        "Room provisioned",
		"room_reference": req.RoomReference,
	})
}

// AttachArtifacts is the webhook the recording/insight producers call when
// an artifact lands. Either field may arrive alone.
func (lc *LessonController) AttachArtifacts(c *fiber.Ctx) error {
	lesson, ferr := loadLesson(c)
	if lesson == nil {
		return ferr
	}

	var req struct {
		RecordingRef *string `json:"recording_ref"`
		InsightRef   *string `json:"insight_ref"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.RecordingRef == nil && req.InsightRef == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Nothing to attach"})
	}

	updates := map[string]interface{}{}
	if req.RecordingRef != nil {
		updates["recording_ref"] = *req.RecordingRef
	}
	if req.InsightRef != nil {
		updates["insight_ref"] = *req.InsightRef
	}
	if err := database.DB.Model(lesson).Updates(updates).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to store artifact references"})
	}

	lc.publishLessonChange(lesson)

	return c.JSON(fiber.Map{"message": "Artifacts attached"})
}

func (lc *LessonController) publishLessonChange(lesson *models.Lesson) {
	if lc.Bus == nil {
		return
	}
	userIDs := []uint{}
	if lesson.Learner.UserID != 0 {
		userIDs = append(userIDs, lesson.Learner.UserID)
	}
	if lesson.Teacher.UserID != 0 {
		userIDs = append(userIDs, lesson.Teacher.UserID)
	}
	lc.Bus.Publish(events.Change{
		Table:     events.TableLessons,
		EventType: events.EventUpdate,
		RowID:     lesson.ID,
		UserIDs:   userIDs,
	})
}
