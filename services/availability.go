package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"tutorhub_go/models"
	"tutorhub_go/store"
)

// View caps bound render cost on the dashboard.
const (
	UpcomingLessonsCap = 5
	SessionPreviewCap  = 3
	RecentCompletedCap = 5
)

// LessonView is a read-only projection of one lesson plus its computed
// flags. Never cached beyond the aggregation pass that produced it.
type LessonView struct {
	Lesson    models.Lesson  `json:"lesson"`
	Windows   TimeWindows    `json:"windows"`
	CanJoin   bool           `json:"can_join"`
	Artifacts *ArtifactFlags `json:"artifacts,omitempty"`
}

// CourseSessionView projects one group session. RoomCode is populated
// only while the session is live.
type CourseSessionView struct {
	Session  models.CourseSession `json:"session"`
	Windows  TimeWindows          `json:"windows"`
	CanJoin  bool                 `json:"can_join"`
	RoomCode string               `json:"room_code,omitempty"`
}

// AvailabilityView is the assembled dashboard view for one viewer.
type AvailabilityView struct {
	GeneratedAt     time.Time           `json:"generated_at"`
	UpcomingLessons []LessonView        `json:"upcoming_lessons"`
	UpcomingGroup   []CourseSessionView `json:"upcoming_group_sessions"`
	RecentLessons   []LessonView        `json:"recent_lessons"`
	Degraded        []string            `json:"degraded,omitempty"` // sources that failed and were replaced by empty lists
}

// Aggregator assembles the three dashboard lists for a viewer. It owns
// ordering and capping but never mutates source records.
type Aggregator struct {
	lessons store.Lessons
	log     *logrus.Entry
	now     func() time.Time
}

func NewAggregator(lessons store.Lessons) *Aggregator {
	return &Aggregator{
		lessons: lessons,
		log:     logrus.WithField("component", "availability"),
		now:     time.Now,
	}
}

// WithClock replaces the wall clock, for tests.
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

// Assemble produces the availability view for the given learner ids (a
// guardian passes several). Each sub-fetch is isolated: a failing source
// degrades to an empty list and is recorded in Degraded, so one
// unavailable upstream never blanks the rest of the dashboard.
func (a *Aggregator) Assemble(ctx context.Context, learnerIDs []uint) (*AvailabilityView, error) {
	now := a.now()
	view := &AvailabilityView{GeneratedAt: now}

	upcoming, err := a.fetchUpcomingLessons(ctx, learnerIDs, now)
	if err != nil {
		a.log.WithError(err).Warn("upcoming lessons fetch failed, degrading to empty list")
		view.Degraded = append(view.Degraded, "lessons")
	} else {
		view.UpcomingLessons = upcoming
	}

	group, err := a.fetchUpcomingGroup(ctx, learnerIDs, now)
	if err != nil {
		a.log.WithError(err).Warn("course sessions fetch failed, degrading to empty list")
		view.Degraded = append(view.Degraded, "course_sessions")
	} else {
		view.UpcomingGroup = group
	}

	recent, err := a.fetchRecentCompleted(ctx, learnerIDs, now)
	if err != nil {
		a.log.WithError(err).Warn("recent lessons fetch failed, degrading to empty list")
		view.Degraded = append(view.Degraded, "recent_lessons")
	} else {
		view.RecentLessons = recent
	}

	return view, nil
}

func (a *Aggregator) fetchUpcomingLessons(ctx context.Context, learnerIDs []uint, now time.Time) ([]LessonView, error) {
	// Status updates lag reality, so time is the authoritative filter: a
	// finished lesson whose status is still "booked" must not show up here.
	endAfter := now
	lessons, err := a.lessons.ListLessons(ctx, store.LessonFilter{
		LearnerIDs: learnerIDs,
		Statuses:   []string{models.LessonStatusBooked},
		EndAfter:   &endAfter,
		Limit:      UpcomingLessonsCap,
	})
	if err != nil {
		return nil, &UpstreamUnavailableError{Source: "lessons", Err: err}
	}

	views := make([]LessonView, 0, len(lessons))
	for _, l := range lessons {
		if !l.ScheduledEnd().After(now) {
			continue
		}
		w := LessonWindows(now, l.ScheduledStart, l.DurationMinutes)
		views = append(views, LessonView{
			Lesson:  l,
			Windows: w,
			// An unprovisioned room degrades join to a disabled affordance.
			CanJoin: w.CanJoin && l.RoomReference != nil,
		})
	}
	return views, nil
}

func (a *Aggregator) fetchUpcomingGroup(ctx context.Context, learnerIDs []uint, now time.Time) ([]CourseSessionView, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	sessions, err := a.lessons.ListCourseSessions(ctx, store.CourseSessionFilter{
		LearnerIDs: learnerIDs,
		DateFrom:   &today,
	})
	if err != nil {
		return nil, &UpstreamUnavailableError{Source: "course_sessions", Err: err}
	}

	views := make([]CourseSessionView, 0, SessionPreviewCap)
	for _, cs := range sessions {
		if !cs.EndsAt().After(now) || cs.LiveStatus == models.LiveStatusEnded {
			continue
		}
		w := CourseSessionWindows(now, cs.StartsAt(), cs.DurationMinutes)
		v := CourseSessionView{
			Session: cs,
			Windows: w,
			CanJoin: w.CanJoin && cs.LiveStatus == models.LiveStatusLive && cs.RoomCode != nil,
		}
		if cs.LiveStatus == models.LiveStatusLive && cs.RoomCode != nil {
			v.RoomCode = *cs.RoomCode
		}
		views = append(views, v)
		if len(views) == SessionPreviewCap {
			break
		}
	}
	return views, nil
}

func (a *Aggregator) fetchRecentCompleted(ctx context.Context, learnerIDs []uint, now time.Time) ([]LessonView, error) {
	lessons, err := a.lessons.ListLessons(ctx, store.LessonFilter{
		LearnerIDs: learnerIDs,
		Statuses:   []string{models.LessonStatusCompleted},
		OrderDesc:  true,
		Limit:      RecentCompletedCap,
	})
	if err != nil {
		return nil, &UpstreamUnavailableError{Source: "recent_lessons", Err: err}
	}

	// Artifact flags are resolved for the whole list in one pass rather
	// than per row.
	flags := ResolveArtifactsBatch(now, lessons)

	views := make([]LessonView, 0, len(lessons))
	for _, l := range lessons {
		f := flags[l.ID]
		views = append(views, LessonView{
			Lesson:    l,
			Windows:   LessonWindows(now, l.ScheduledStart, l.DurationMinutes),
			Artifacts: &f,
		})
	}
	return views, nil
}
