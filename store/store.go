package store

import (
	"context"
	"errors"
	"time"

	"tutorhub_go/models"
)

var (
	// ErrNotFound is returned when the referenced row does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is the optimistic-concurrency signal: a conditional
	// update matched the id but not the expected current state.
	ErrConflict = errors.New("store: conditional update conflict")
)

// LessonState pairs the two independent status axes of a lesson.
type LessonState struct {
	Status             string
	ConfirmationStatus string
}

func (s LessonState) String() string {
	return s.Status + "·" + s.ConfirmationStatus
}

// LessonFilter narrows ListLessons. Zero values mean "no constraint".
type LessonFilter struct {
	LearnerIDs  []uint
	TeacherID   uint
	Statuses    []string
	StartAfter  *time.Time
	StartBefore *time.Time
	EndAfter    *time.Time
	OrderDesc   bool
	Limit       int
}

// CourseSessionFilter narrows ListCourseSessions to the sessions of
// courses the given learners are enrolled in.
type CourseSessionFilter struct {
	LearnerIDs []uint
	DateFrom   *time.Time
	Limit      int
}

// Lessons is the narrow store contract consumed by the lesson lifecycle
// services. Updates go through conditional writes so two concurrent
// transitions can never both succeed.
type Lessons interface {
	GetLesson(ctx context.Context, id uint) (*models.Lesson, error)
	ListLessons(ctx context.Context, f LessonFilter) ([]models.Lesson, error)
	ListCourseSessions(ctx context.Context, f CourseSessionFilter) ([]models.CourseSession, error)

	// UpdateLessonStatus performs `UPDATE ... WHERE id = ? AND status = ?
	// AND confirmation_status = ?`. ErrConflict when the row exists but the
	// expected state no longer matches.
	UpdateLessonStatus(ctx context.Context, id uint, expected, next LessonState) error

	// CountPriorPairLessons counts lessons between the pair that are
	// completed or teacher-acknowledged, excluding the given lesson.
	CountPriorPairLessons(ctx context.Context, learnerID, teacherID, excludeLessonID uint) (int64, error)

	// CancelLesson atomically flips the lesson to cancelled (conditional on
	// expected), writes one immutable cancellation record and credits the
	// refund to the learner's wallet.
	CancelLesson(ctx context.Context, id uint, expected LessonState, cancelledBy uint, reason string, refundCredits int) (*models.CancellationRecord, error)
}
