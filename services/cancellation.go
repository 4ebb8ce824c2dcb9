package services

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"tutorhub_go/models"
	"tutorhub_go/services/events"
	"tutorhub_go/store"
)

// FlatRefundCredits is the refund on every eligible cancellation: one
// credit unit per lesson, not scaled by duration.
const FlatRefundCredits = 1

// CancelDecision is the structured outcome of a cancel request. When the
// window has closed this is a result, not an error, so the caller can
// present the reschedule path inline.
type CancelDecision struct {
	Cancelled         bool                       `json:"cancelled"`
	CreditsRefunded   int                        `json:"credits_refunded"`
	Record            *models.CancellationRecord `json:"record,omitempty"`
	Code              string                     `json:"code,omitempty"` // "TOO_LATE" when the cancel window has closed
	HoursUntil        float64                    `json:"hours_until,omitempty"`
	RescheduleOffered bool                       `json:"reschedule_offered"`
}

// CancellationPolicy applies the time windows plus business rules to a
// cancel request and emits the compensating credit transaction through
// the store. Reschedule itself is delegated to the external booking flow;
// this policy only decides whether to offer it.
type CancellationPolicy struct {
	store store.Lessons
	bus   *events.Bus
	log   *logrus.Entry
	now   func() time.Time
}

func NewCancellationPolicy(st store.Lessons, bus *events.Bus) *CancellationPolicy {
	return &CancellationPolicy{
		store: st,
		bus:   bus,
		log:   logrus.WithField("component", "cancellation"),
		now:   time.Now,
	}
}

// WithClock replaces the wall clock, for tests.
func (p *CancellationPolicy) WithClock(now func() time.Time) *CancellationPolicy {
	p.now = now
	return p
}

// Cancel recomputes eligibility server-side at execution time; a
// client-cached can_cancel flag is never trusted. Inside the window the
// lesson flips to cancelled, one cancellation record is written and
// exactly one credit unit is refunded, atomically.
func (p *CancellationPolicy) Cancel(ctx context.Context, lessonID, byUserID uint, reason string) (*CancelDecision, error) {
	for attempt := 0; attempt < 2; attempt++ {
		lesson, err := p.store.GetLesson(ctx, lessonID)
		if err != nil {
			return nil, err
		}
		if lesson.Status != models.LessonStatusBooked {
			return nil, &InvalidTransitionError{
				LessonID:  lessonID,
				Attempted: "cancel",
				Current:   store.LessonState{Status: lesson.Status, ConfirmationStatus: lesson.ConfirmationStatus}.String(),
			}
		}

		w := LessonWindows(p.now(), lesson.ScheduledStart, lesson.DurationMinutes)
		if !w.CanCancel {
			return &CancelDecision{
				Cancelled:         false,
				Code:              "TOO_LATE",
				HoursUntil:        w.HoursUntilStart,
				RescheduleOffered: w.CanReschedule,
			}, nil
		}

		expected := store.LessonState{Status: lesson.Status, ConfirmationStatus: lesson.ConfirmationStatus}
		record, err := p.store.CancelLesson(ctx, lessonID, expected, byUserID, reason, FlatRefundCredits)
		if err == nil {
			p.publishChange(lesson)
			return &CancelDecision{
				Cancelled:       true,
				CreditsRefunded: record.CreditsRefunded,
				Record:          record,
			}, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return nil, err
		}
		// Lost an optimistic write; retry once against the fresh state.
		p.log.WithField("lesson_id", lessonID).Debug("cancel lost conditional write, retrying once")
	}
	return nil, ErrConcurrencyConflict
}

func (p *CancellationPolicy) publishChange(lesson *models.Lesson) {
	if p.bus == nil {
		return
	}
	userIDs := []uint{}
	if lesson.Learner.UserID != 0 {
		userIDs = append(userIDs, lesson.Learner.UserID)
	}
	if lesson.Teacher.UserID != 0 {
		userIDs = append(userIDs, lesson.Teacher.UserID)
	}
	p.bus.Publish(events.Change{
		Table:     events.TableLessons,
		EventType: events.EventUpdate,
		RowID:     lesson.ID,
		UserIDs:   userIDs,
	})
}
