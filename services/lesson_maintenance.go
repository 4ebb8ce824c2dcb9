package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tutorhub_go/database"
	"tutorhub_go/models"
	"tutorhub_go/services/events"
)

// completionGrace is how long after scheduled end a lesson may stay
// "booked" before the sweep completes it. The room collaborator normally
// reports session end itself; the sweep is the safety net for missed
// webhooks.
const completionGrace = 30 * time.Minute

// MaintenanceService runs the periodic lifecycle sweeps: overdue lesson
// completion, auto-acknowledgment near start time, course-session
// live-status rollover, upcoming-lesson reminders and the daily summary.
type MaintenanceService struct {
	db        *gorm.DB
	lifecycle *LessonLifecycle
	notifier  Notifier
	bus       *events.Bus
	cron      *cron.Cron
	log       *logrus.Entry
}

func NewMaintenanceService(lifecycle *LessonLifecycle, notifier Notifier, bus *events.Bus) *MaintenanceService {
	return &MaintenanceService{
		db:        database.GetDB(),
		lifecycle: lifecycle,
		notifier:  notifier,
		bus:       bus,
		cron:      cron.New(),
		log:       logrus.WithField("component", "maintenance"),
	}
}

// Start registers the cron entries and launches the scheduler.
func (m *MaintenanceService) Start() {
	m.cron.AddFunc("@every 5m", m.SweepOverdueLessons)
	m.cron.AddFunc("@every 5m", m.SweepAutoAcknowledge)
	m.cron.AddFunc("@every 1m", m.SweepCourseSessionStatus)
	m.cron.AddFunc("@every 15m", m.SendUpcomingReminders)
	m.cron.AddFunc("0 7 * * *", m.SendDailySummary)
	m.cron.Start()
	m.log.Info("maintenance scheduler started")
}

// Stop halts the scheduler and waits for running jobs.
func (m *MaintenanceService) Stop() {
	ctx := m.cron.Stop()
	<-ctx.Done()
}

// SweepOverdueLessons completes booked lessons whose scheduled end passed
// more than completionGrace ago.
func (m *MaintenanceService) SweepOverdueLessons() {
	cutoff := time.Now().Add(-completionGrace)

	var lessons []models.Lesson
	err := m.db.Preload("Learner").Preload("Teacher").
		Where("status = ?", models.LessonStatusBooked).
		Where("DATE_ADD(scheduled_start, INTERVAL duration_minutes MINUTE) < ?", cutoff).
		Find(&lessons).Error
	if err != nil {
		m.log.WithError(err).Error("overdue lesson query failed")
		return
	}

	for _, lesson := range lessons {
		if err := m.lifecycle.Complete(context.Background(), lesson.ID); err != nil {
			m.log.WithError(err).WithField("lesson_id", lesson.ID).Warn("overdue completion failed")
		}
	}
	if len(lessons) > 0 {
		m.log.WithField("count", len(lessons)).Info("completed overdue lessons")
	}
}

// SweepAutoAcknowledge flips still-pending lessons to auto_acknowledged
// once the start is less than an hour away, so the learner's join
// affordance does not stay blocked on an unresponsive teacher.
func (m *MaintenanceService) SweepAutoAcknowledge() {
	now := time.Now()
	horizon := now.Add(time.Hour)

	var lessons []models.Lesson
	err := m.db.
		Where("status = ? AND confirmation_status = ?", models.LessonStatusBooked, models.ConfirmationPending).
		Where("scheduled_start > ? AND scheduled_start <= ?", now, horizon).
		Find(&lessons).Error
	if err != nil {
		m.log.WithError(err).Error("auto-acknowledge query failed")
		return
	}

	for _, lesson := range lessons {
		if err := m.lifecycle.AutoAcknowledge(context.Background(), lesson.ID); err != nil {
			m.log.WithError(err).WithField("lesson_id", lesson.ID).Warn("auto-acknowledge failed")
		}
	}
}

// SweepCourseSessionStatus rolls course sessions to ended once their end
// time passes, and publishes the change so dashboards drop the room code.
func (m *MaintenanceService) SweepCourseSessionStatus() {
	now := time.Now()

	var sessions []models.CourseSession
	err := m.db.Where("live_status <> ?", models.LiveStatusEnded).Find(&sessions).Error
	if err != nil {
		m.log.WithError(err).Error("course session sweep query failed")
		return
	}

	for _, cs := range sessions {
		if cs.EndsAt().After(now) {
			continue
		}
		if err := m.db.Model(&models.CourseSession{}).
			Where("id = ? AND live_status = ?", cs.ID, cs.LiveStatus).
			Update("live_status", models.LiveStatusEnded).Error; err != nil {
			m.log.WithError(err).WithField("session_id", cs.ID).Warn("live status rollover failed")
			continue
		}
		if m.bus != nil {
			m.bus.Publish(events.Change{
				Table:     events.TableCourseSessions,
				EventType: events.EventUpdate,
				RowID:     cs.ID,
			})
		}
	}
}

// SendUpcomingReminders notifies participants 30 and 60 minutes before an
// acknowledged lesson starts. Already-sent reminders are deduplicated by
// the (lesson, lead) key stored on the notification payload.
func (m *MaintenanceService) SendUpcomingReminders() {
	now := time.Now()
	leads := []int{30, 60}

	for _, lead := range leads {
		target := now.Add(time.Duration(lead) * time.Minute)
		startRange := target.Add(-5 * time.Minute)
		endRange := target.Add(5 * time.Minute)

		var lessons []models.Lesson
		err := m.db.Preload("Learner").Preload("Teacher").Preload("Subject").
			Where("status = ? AND confirmation_status IN ?",
				models.LessonStatusBooked,
				[]string{models.ConfirmationAcknowledged, models.ConfirmationAutoAcknowledged}).
			Where("scheduled_start BETWEEN ? AND ?", startRange, endRange).
			Find(&lessons).Error
		if err != nil {
			m.log.WithError(err).Error("upcoming reminder query failed")
			continue
		}

		for _, lesson := range lessons {
			if m.reminderSent(lesson.ID, lead) {
				continue
			}
			msg := fmt.Sprintf("Your %s lesson starts in %d minutes at %s.",
				lesson.Subject.Name, lead, lesson.ScheduledStart.Format("15:04"))
			data := map[string]interface{}{
				"kind":         "upcoming_lesson",
				"lesson_id":    lesson.ID,
				"lead_minutes": lead,
			}
			userIDs := []uint{lesson.Learner.UserID, lesson.Teacher.UserID}
			if err := m.notifier.NotifyUsers(userIDs, "Upcoming Lesson", msg, "info", data); err != nil {
				m.log.WithError(err).WithField("lesson_id", lesson.ID).Warn("reminder enqueue failed")
			}
		}
	}
}

func (m *MaintenanceService) reminderSent(lessonID uint, lead int) bool {
	var count int64
	err := m.db.Model(&models.Notification{}).
		Where("created_at > ?", time.Now().Add(-2*time.Hour)).
		Where("JSON_EXTRACT(data, '$.kind') = ? AND JSON_EXTRACT(data, '$.lesson_id') = ? AND JSON_EXTRACT(data, '$.lead_minutes') = ?",
			"upcoming_lesson", lessonID, lead).
		Count(&count).Error
	if err != nil {
		return false
	}
	return count > 0
}

// SendDailySummary sends each participant one notification listing the
// day's lessons.
func (m *MaintenanceService) SendDailySummary() {
	now := time.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	var lessons []models.Lesson
	err := m.db.Preload("Learner").Preload("Teacher").Preload("Subject").
		Where("status = ?", models.LessonStatusBooked).
		Where("scheduled_start >= ? AND scheduled_start < ?", dayStart, dayEnd).
		Order("scheduled_start ASC").
		Find(&lessons).Error
	if err != nil {
		m.log.WithError(err).Error("daily summary query failed")
		return
	}

	perUser := make(map[uint][]models.Lesson)
	for _, lesson := range lessons {
		perUser[lesson.Learner.UserID] = append(perUser[lesson.Learner.UserID], lesson)
		perUser[lesson.Teacher.UserID] = append(perUser[lesson.Teacher.UserID], lesson)
	}

	for userID, list := range perUser {
		if userID == 0 {
			continue
		}
		msg := "Today's lessons:\n"
		for _, lesson := range list {
			msg += fmt.Sprintf("- %s at %s\n", lesson.Subject.Name, lesson.ScheduledStart.Format("15:04"))
		}
		data := map[string]interface{}{"kind": "daily_summary", "date": dayStart.Format("2006-01-02")}
		if err := m.notifier.NotifyUsers([]uint{userID}, "Daily Lesson Summary", msg, "info", data); err != nil {
			m.log.WithError(err).WithField("user_id", userID).Warn("daily summary enqueue failed")
		}
	}
}
