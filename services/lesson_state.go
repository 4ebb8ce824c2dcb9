package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"tutorhub_go/models"
	"tutorhub_go/services/events"
	"tutorhub_go/store"
)

// Notifier is the narrow notification contract the lifecycle needs. The
// notifications service satisfies it via an adapter in main.
type Notifier interface {
	NotifyUsers(userIDs []uint, title, message, typ string, data interface{}) error
}

// LessonLifecycle owns the canonical status/confirmation transitions.
// Nothing else mutates those two fields. Every transition is a single
// conditional write so two concurrent calls can never both succeed; the
// loser sees a conflict, re-reads once, and reports the real state.
type LessonLifecycle struct {
	store    store.Lessons
	notifier Notifier
	bus      *events.Bus
	log      *logrus.Entry
	now      func() time.Time
}

func NewLessonLifecycle(st store.Lessons, notifier Notifier, bus *events.Bus) *LessonLifecycle {
	return &LessonLifecycle{
		store:    st,
		notifier: notifier,
		bus:      bus,
		log:      logrus.WithField("component", "lesson_lifecycle"),
		now:      time.Now,
	}
}

// WithClock replaces the wall clock, for tests.
func (s *LessonLifecycle) WithClock(now func() time.Time) *LessonLifecycle {
	s.now = now
	return s
}

// Acknowledge performs the teacher acknowledgment: legal only from
// booked·pending. When this is the first-ever acknowledged or completed
// lesson between the teacher/learner pair, exactly one welcome
// notification is enqueued for the learner; the conditional write makes
// the winner of any race the only caller that reaches that step.
func (s *LessonLifecycle) Acknowledge(ctx context.Context, lessonID uint) (*models.Lesson, error) {
	lesson, err := s.store.GetLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}

	expected := store.LessonState{
		Status:             models.LessonStatusBooked,
		ConfirmationStatus: models.ConfirmationPending,
	}
	if lesson.Status != expected.Status || lesson.ConfirmationStatus != expected.ConfirmationStatus {
		return nil, &InvalidTransitionError{
			LessonID:  lessonID,
			Attempted: "acknowledge",
			Current:   store.LessonState{Status: lesson.Status, ConfirmationStatus: lesson.ConfirmationStatus}.String(),
		}
	}

	next := store.LessonState{
		Status:             models.LessonStatusBooked,
		ConfirmationStatus: models.ConfirmationAcknowledged,
	}
	if err := s.store.UpdateLessonStatus(ctx, lessonID, expected, next); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Lost the race; the current state decides the report.
			return nil, s.transitionConflict(ctx, lessonID, "acknowledge")
		}
		return nil, err
	}

	lesson.ConfirmationStatus = next.ConfirmationStatus
	s.maybeSendWelcome(ctx, lesson)
	s.publishChange(lesson)

	return lesson, nil
}

// AutoAcknowledge is the policy-triggered variant used by the maintenance
// sweep when a teacher has not acknowledged close to start time.
func (s *LessonLifecycle) AutoAcknowledge(ctx context.Context, lessonID uint) error {
	expected := store.LessonState{
		Status:             models.LessonStatusBooked,
		ConfirmationStatus: models.ConfirmationPending,
	}
	next := store.LessonState{
		Status:             models.LessonStatusBooked,
		ConfirmationStatus: models.ConfirmationAutoAcknowledged,
	}
	err := s.store.UpdateLessonStatus(ctx, lessonID, expected, next)
	if errors.Is(err, store.ErrConflict) {
		// Someone acknowledged in the meantime; nothing left to do.
		return nil
	}
	if err == nil {
		if lesson, gerr := s.store.GetLesson(ctx, lessonID); gerr == nil {
			s.publishChange(lesson)
		}
	}
	return err
}

// Complete is triggered when the room collaborator reports the call
// ended; it is not reachable from the UI layer. Legal from any booked
// state; completed is terminal.
func (s *LessonLifecycle) Complete(ctx context.Context, lessonID uint) error {
	for attempt := 0; attempt < 2; attempt++ {
		lesson, err := s.store.GetLesson(ctx, lessonID)
		if err != nil {
			return err
		}
		if lesson.Status != models.LessonStatusBooked {
			return &InvalidTransitionError{
				LessonID:  lessonID,
				Attempted: "complete",
				Current:   store.LessonState{Status: lesson.Status, ConfirmationStatus: lesson.ConfirmationStatus}.String(),
			}
		}

		expected := store.LessonState{Status: lesson.Status, ConfirmationStatus: lesson.ConfirmationStatus}
		next := store.LessonState{
			Status:             models.LessonStatusCompleted,
			ConfirmationStatus: models.ConfirmationCompleted,
		}
		err = s.store.UpdateLessonStatus(ctx, lessonID, expected, next)
		if err == nil {
			lesson.Status = next.Status
			lesson.ConfirmationStatus = next.ConfirmationStatus
			s.publishChange(lesson)
			return nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return err
		}
		// One automatic retry: re-read and re-run the guard.
	}
	return ErrConcurrencyConflict
}

// transitionConflict re-reads the lesson after a lost conditional write
// and translates the outcome into the error taxonomy.
func (s *LessonLifecycle) transitionConflict(ctx context.Context, lessonID uint, attempted string) error {
	lesson, err := s.store.GetLesson(ctx, lessonID)
	if err != nil {
		return ErrConcurrencyConflict
	}
	return &InvalidTransitionError{
		LessonID:  lessonID,
		Attempted: attempted,
		Current:   store.LessonState{Status: lesson.Status, ConfirmationStatus: lesson.ConfirmationStatus}.String(),
	}
}

func (s *LessonLifecycle) maybeSendWelcome(ctx context.Context, lesson *models.Lesson) {
	if s.notifier == nil {
		return
	}
	prior, err := s.store.CountPriorPairLessons(ctx, lesson.LearnerID, lesson.TeacherID, lesson.ID)
	if err != nil {
		s.log.WithError(err).WithField("lesson_id", lesson.ID).Warn("prior lesson count failed, skipping welcome notification")
		return
	}
	if prior > 0 {
		return
	}

	data := map[string]interface{}{
		"kind":      "welcome",
		"lesson_id": lesson.ID, // idempotency key
	}
	msg := fmt.Sprintf("Your teacher confirmed your first lesson together. It starts at %s.",
		lesson.ScheduledStart.Format("2006-01-02 15:04"))
	if err := s.notifier.NotifyUsers([]uint{lesson.Learner.UserID}, "Welcome to your new teacher", msg, "success", data); err != nil {
		s.log.WithError(err).WithField("lesson_id", lesson.ID).Warn("welcome notification enqueue failed")
	}
}

func (s *LessonLifecycle) publishChange(lesson *models.Lesson) {
	if s.bus == nil {
		return
	}
	userIDs := []uint{}
	if lesson.Learner.UserID != 0 {
		userIDs = append(userIDs, lesson.Learner.UserID)
	}
	if lesson.Teacher.UserID != 0 {
		userIDs = append(userIDs, lesson.Teacher.UserID)
	}
	s.bus.Publish(events.Change{
		Table:     events.TableLessons,
		EventType: events.EventUpdate,
		RowID:     lesson.ID,
		UserIDs:   userIDs,
	})
}
