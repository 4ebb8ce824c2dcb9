package services

import (
	"testing"
	"time"
)

func TestLessonWindowsCancelBoundary(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		start         time.Time
		wantCanCancel bool
	}{
		{"three hours out", now.Add(3 * time.Hour), true},
		{"exactly two hours is still allowed", now.Add(2 * time.Hour), true},
		{"one second under two hours", now.Add(2*time.Hour - time.Second), false},
		{"one hour out", now.Add(1 * time.Hour), false},
		{"already started", now.Add(-10 * time.Minute), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := LessonWindows(now, tt.start, 60)
			if w.CanCancel != tt.wantCanCancel {
				t.Errorf("CanCancel = %v, want %v (start %v)", w.CanCancel, tt.wantCanCancel, tt.start)
			}
		})
	}
}

func TestLessonWindowsRescheduleBoundary(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name              string
		start             time.Time
		wantCanReschedule bool
	}{
		{"an hour out", now.Add(time.Hour), true},
		{"thirty-one minutes", now.Add(31 * time.Minute), true},
		{"exactly thirty minutes is too late", now.Add(30 * time.Minute), false},
		{"ten minutes", now.Add(10 * time.Minute), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := LessonWindows(now, tt.start, 60)
			if w.CanReschedule != tt.wantCanReschedule {
				t.Errorf("CanReschedule = %v, want %v", w.CanReschedule, tt.wantCanReschedule)
			}
		})
	}
}

func TestLessonWindowsCancelAndRescheduleDiverge(t *testing.T) {
	// Between 30 minutes and 2 hours before start, a lesson cannot be
	// cancelled but can still be rescheduled.
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	w := LessonWindows(now, now.Add(time.Hour), 60)

	if w.CanCancel {
		t.Error("expected CanCancel=false one hour before start")
	}
	if !w.CanReschedule {
		t.Error("expected CanReschedule=true one hour before start")
	}
}

func TestLessonWindowsJoinWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		start       time.Time
		duration    int
		wantCanJoin bool
	}{
		{"seven hours out", now.Add(7 * time.Hour), 60, false},
		{"exactly six hours out", now.Add(6 * time.Hour), 60, true},
		{"one minute out", now.Add(time.Minute), 60, true},
		{"mid lesson", now.Add(-30 * time.Minute), 60, true},
		{"at the final minute", now.Add(-59 * time.Minute), 60, true},
		{"after the end", now.Add(-61 * time.Minute), 60, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := LessonWindows(now, tt.start, tt.duration)
			if w.CanJoin != tt.wantCanJoin {
				t.Errorf("CanJoin = %v, want %v", w.CanJoin, tt.wantCanJoin)
			}
		})
	}
}

func TestCourseSessionWindowsShortLead(t *testing.T) {
	now := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)

	// Eleven minutes out: a one-to-one lesson would be joinable, a group
	// session is not yet.
	start := now.Add(11 * time.Minute)
	if w := CourseSessionWindows(now, start, 50); w.CanJoin {
		t.Error("expected group session join closed 11 minutes before start")
	}
	start = now.Add(10 * time.Minute)
	if w := CourseSessionWindows(now, start, 50); !w.CanJoin {
		t.Error("expected group session join open 10 minutes before start")
	}
}

func TestLessonWindowsTodayAndPast(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	w := LessonWindows(now, now.Add(5*time.Hour), 60)
	if !w.IsToday {
		t.Error("expected IsToday for a same-day start")
	}
	if w.IsPast {
		t.Error("IsPast should be false before the lesson ends")
	}

	w = LessonWindows(now, now.AddDate(0, 0, 1), 60)
	if w.IsToday {
		t.Error("expected IsToday=false for a next-day start")
	}

	w = LessonWindows(now, now.Add(-2*time.Hour), 60)
	if !w.IsPast {
		t.Error("expected IsPast after the lesson end")
	}
}

func TestRecordingDaysLeft(t *testing.T) {
	end := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	start := end.Add(-time.Hour)

	tests := []struct {
		name string
		now  time.Time
		want int
	}{
		{"just ended", end.Add(time.Minute), 7},
		{"three days later", end.AddDate(0, 0, 3), 4},
		{"six days and change", end.Add(6*24*time.Hour + 12*time.Hour), 1},
		{"exactly seven days", end.AddDate(0, 0, 7), 0},
		{"eight days", end.AddDate(0, 0, 8), -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := LessonWindows(tt.now, start, 60)
			if w.RecordingDaysLeft != tt.want {
				t.Errorf("RecordingDaysLeft = %d, want %d", w.RecordingDaysLeft, tt.want)
			}
		})
	}
}

func TestRecordingDaysLeftMonotonic(t *testing.T) {
	end := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	start := end.Add(-time.Hour)

	prev := LessonWindows(end, start, 60).RecordingDaysLeft
	for h := 1; h <= 24*9; h++ {
		cur := LessonWindows(end.Add(time.Duration(h)*time.Hour), start, 60).RecordingDaysLeft
		if cur > prev {
			t.Fatalf("days left increased from %d to %d at hour %d", prev, cur, h)
		}
		prev = cur
	}
}
