package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"tutorhub_go/models"
	"tutorhub_go/store"
)

func testClock(now time.Time) func() time.Time {
	return func() time.Time { return now }
}

func TestAssembleUpcomingExcludesStaleBooked(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	st := store.NewMemoryStore()

	// Finished two hours ago but the status sweep has not run yet; it must
	// not appear under upcoming.
	stale := bookedLesson(0, now.Add(-3*time.Hour))
	st.PutLesson(stale)

	fresh := bookedLesson(0, now.Add(4*time.Hour))
	freshID := st.PutLesson(fresh)

	agg := NewAggregator(st).WithClock(testClock(now))
	view, err := agg.Assemble(context.Background(), []uint{1})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	if len(view.UpcomingLessons) != 1 {
		t.Fatalf("upcoming = %d lessons, want 1", len(view.UpcomingLessons))
	}
	if view.UpcomingLessons[0].Lesson.ID != freshID {
		t.Errorf("upcoming lesson id = %d, want %d", view.UpcomingLessons[0].Lesson.ID, freshID)
	}
}

func TestAssembleInProgressLessonStaysVisible(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	st := store.NewMemoryStore()

	room := "room-abc"
	l := bookedLesson(0, now.Add(-30*time.Minute))
	l.RoomReference = &room
	st.PutLesson(l)

	agg := NewAggregator(st).WithClock(testClock(now))
	view, _ := agg.Assemble(context.Background(), []uint{1})

	if len(view.UpcomingLessons) != 1 {
		t.Fatalf("upcoming = %d lessons, want 1 (lesson is mid-flight)", len(view.UpcomingLessons))
	}
	if !view.UpcomingLessons[0].CanJoin {
		t.Error("expected CanJoin=true for an in-progress lesson with a room")
	}
}

func TestAssembleUpcomingCapAndOrder(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	st := store.NewMemoryStore()

	for i := 0; i < UpcomingLessonsCap+3; i++ {
		st.PutLesson(bookedLesson(0, now.Add(time.Duration(i+1)*24*time.Hour)))
	}

	agg := NewAggregator(st).WithClock(testClock(now))
	view, _ := agg.Assemble(context.Background(), []uint{1})

	if len(view.UpcomingLessons) != UpcomingLessonsCap {
		t.Fatalf("upcoming = %d lessons, want %d", len(view.UpcomingLessons), UpcomingLessonsCap)
	}
	for i := 1; i < len(view.UpcomingLessons); i++ {
		prev := view.UpcomingLessons[i-1].Lesson.ScheduledStart
		cur := view.UpcomingLessons[i].Lesson.ScheduledStart
		if cur.Before(prev) {
			t.Errorf("upcoming out of order at index %d", i)
		}
	}
}

func TestAssembleTieBreakByID(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	st := store.NewMemoryStore()

	start := now.Add(4 * time.Hour)
	lowID := st.PutLesson(bookedLesson(0, start))
	highID := st.PutLesson(bookedLesson(0, start))
	if highID <= lowID {
		t.Fatal("test setup expects ids to ascend")
	}

	agg := NewAggregator(st).WithClock(testClock(now))
	view, _ := agg.Assemble(context.Background(), []uint{1})

	if len(view.UpcomingLessons) != 2 {
		t.Fatalf("upcoming = %d, want 2", len(view.UpcomingLessons))
	}
	if view.UpcomingLessons[0].Lesson.ID != lowID {
		t.Errorf("tie broken wrong: first id = %d, want %d", view.UpcomingLessons[0].Lesson.ID, lowID)
	}
}

func TestAssembleJoinDisabledWithoutRoom(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	st := store.NewMemoryStore()

	// Inside the join window but the room reference has not arrived.
	st.PutLesson(bookedLesson(0, now.Add(2*time.Hour)))

	agg := NewAggregator(st).WithClock(testClock(now))
	view, _ := agg.Assemble(context.Background(), []uint{1})

	if len(view.UpcomingLessons) != 1 {
		t.Fatalf("upcoming = %d, want 1", len(view.UpcomingLessons))
	}
	v := view.UpcomingLessons[0]
	if !v.Windows.CanJoin {
		t.Error("window itself should be open two hours before start")
	}
	if v.CanJoin {
		t.Error("CanJoin must stay false until a room is provisioned")
	}
}

func TestAssembleGroupSessions(t *testing.T) {
	now := time.Date(2026, 3, 10, 18, 5, 0, 0, time.UTC)
	st := store.NewMemoryStore()
	st.Enroll(1, 7)

	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	slot := time.Date(0, 1, 1, 18, 0, 0, 0, time.UTC)
	code := "room-live"

	live := models.CourseSession{
		CourseID: 7, SessionDate: day, ScheduleTime: slot,
		DurationMinutes: 50, LiveStatus: models.LiveStatusLive, RoomCode: &code,
	}
	st.PutCourseSession(live)

	ended := models.CourseSession{
		CourseID: 7, SessionDate: day, ScheduleTime: time.Date(0, 1, 1, 9, 0, 0, 0, time.UTC),
		DurationMinutes: 50, LiveStatus: models.LiveStatusEnded, RoomCode: &code,
	}
	st.PutCourseSession(ended)

	scheduled := models.CourseSession{
		CourseID: 7, SessionDate: day.AddDate(0, 0, 2), ScheduleTime: slot,
		DurationMinutes: 50, LiveStatus: models.LiveStatusScheduled,
	}
	st.PutCourseSession(scheduled)

	// Session of a course the learner is not enrolled in.
	other := models.CourseSession{
		CourseID: 8, SessionDate: day.AddDate(0, 0, 1), ScheduleTime: slot,
		DurationMinutes: 50, LiveStatus: models.LiveStatusScheduled,
	}
	st.PutCourseSession(other)

	agg := NewAggregator(st).WithClock(testClock(now))
	view, _ := agg.Assemble(context.Background(), []uint{1})

	if len(view.UpcomingGroup) != 2 {
		t.Fatalf("group sessions = %d, want 2 (live + scheduled)", len(view.UpcomingGroup))
	}

	liveView := view.UpcomingGroup[0]
	if liveView.RoomCode != code {
		t.Errorf("live session room code = %q, want %q", liveView.RoomCode, code)
	}
	if !liveView.CanJoin {
		t.Error("expected CanJoin=true for a live session with a room code")
	}

	schedView := view.UpcomingGroup[1]
	if schedView.RoomCode != "" {
		t.Error("scheduled sessions must not expose a room code")
	}
	if schedView.CanJoin {
		t.Error("scheduled session outside the lead window must not be joinable")
	}
}

func TestAssembleGroupSessionCap(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	st := store.NewMemoryStore()
	st.Enroll(1, 7)

	day := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
	slot := time.Date(0, 1, 1, 18, 0, 0, 0, time.UTC)
	for i := 0; i < SessionPreviewCap+2; i++ {
		st.PutCourseSession(models.CourseSession{
			CourseID: 7, SessionDate: day.AddDate(0, 0, i), ScheduleTime: slot,
			DurationMinutes: 50, LiveStatus: models.LiveStatusScheduled,
		})
	}

	agg := NewAggregator(st).WithClock(testClock(now))
	view, _ := agg.Assemble(context.Background(), []uint{1})
	if len(view.UpcomingGroup) != SessionPreviewCap {
		t.Errorf("group sessions = %d, want %d", len(view.UpcomingGroup), SessionPreviewCap)
	}
}

func TestAssembleRecentCompleted(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	st := store.NewMemoryStore()

	rec := "recordings/42.mp4"
	for i := 0; i < RecentCompletedCap+2; i++ {
		l := bookedLesson(0, now.Add(-time.Duration(i+1)*24*time.Hour))
		l.Status = models.LessonStatusCompleted
		l.ConfirmationStatus = models.ConfirmationCompleted
		if i == 0 {
			l.RecordingRef = &rec
		}
		st.PutLesson(l)
	}

	agg := NewAggregator(st).WithClock(testClock(now))
	view, _ := agg.Assemble(context.Background(), []uint{1})

	if len(view.RecentLessons) != RecentCompletedCap {
		t.Fatalf("recent = %d, want %d", len(view.RecentLessons), RecentCompletedCap)
	}
	// Newest first.
	for i := 1; i < len(view.RecentLessons); i++ {
		if view.RecentLessons[i].Lesson.ScheduledStart.After(view.RecentLessons[i-1].Lesson.ScheduledStart) {
			t.Errorf("recent out of order at index %d", i)
		}
	}

	newest := view.RecentLessons[0]
	if newest.Artifacts == nil {
		t.Fatal("recent lessons must carry artifact flags")
	}
	if newest.Artifacts.RecordingState != RecordingAvailable {
		t.Errorf("newest recording state = %q, want %q", newest.Artifacts.RecordingState, RecordingAvailable)
	}
}

func TestAssembleDegradesPerSource(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	st := store.NewMemoryStore()
	st.Enroll(1, 7)
	st.PutCourseSession(models.CourseSession{
		CourseID: 7, SessionDate: time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC),
		ScheduleTime: time.Date(0, 1, 1, 18, 0, 0, 0, time.UTC),
		DurationMinutes: 50, LiveStatus: models.LiveStatusScheduled,
	})

	st.FailLessons = errors.New("lessons backend down")

	agg := NewAggregator(st).WithClock(testClock(now))
	view, err := agg.Assemble(context.Background(), []uint{1})
	if err != nil {
		t.Fatalf("Assemble must not fail on a single degraded source: %v", err)
	}

	degraded := fmt.Sprint(view.Degraded)
	if len(view.Degraded) != 2 {
		t.Fatalf("degraded = %v, want lessons and recent_lessons", view.Degraded)
	}
	if degraded != "[lessons recent_lessons]" {
		t.Errorf("degraded = %v", view.Degraded)
	}

	if len(view.UpcomingLessons) != 0 {
		t.Error("failed source must degrade to an empty list")
	}
	if len(view.UpcomingGroup) != 1 {
		t.Errorf("healthy source must still populate: group = %d, want 1", len(view.UpcomingGroup))
	}
}

func TestAssembleSessionsDegradeIndependently(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	st := store.NewMemoryStore()
	st.PutLesson(bookedLesson(0, now.Add(4*time.Hour)))
	st.FailSessions = errors.New("sessions backend down")

	agg := NewAggregator(st).WithClock(testClock(now))
	view, err := agg.Assemble(context.Background(), []uint{1})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	if len(view.Degraded) != 1 || view.Degraded[0] != "course_sessions" {
		t.Errorf("degraded = %v, want [course_sessions]", view.Degraded)
	}
	if len(view.UpcomingLessons) != 1 {
		t.Errorf("upcoming = %d, want 1", len(view.UpcomingLessons))
	}
}
