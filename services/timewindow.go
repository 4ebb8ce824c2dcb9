package services

import "time"

// Join-window lead times. One-to-one lessons open six hours early; group
// course sessions open ten minutes early because the operator gates entry
// with the live-status flag instead.
const (
	JoinLeadMinutesLesson        = 360
	JoinLeadMinutesCourseSession = 10

	// RescheduleMinMinutes and CancelMinHours are deliberately different
	// thresholds: a user blocked from cancelling is steered toward
	// rescheduling instead.
	RescheduleMinMinutes = 30
	CancelMinHours       = 2

	RecordingRetentionDays = 7
)

// TimeWindows holds the per-lesson flags derived from wall-clock time.
// Values are recomputed fresh on every aggregation pass and never
// persisted or cached; they are time-relative and go stale immediately.
type TimeWindows struct {
	MinutesUntilStart float64 `json:"minutes_until_start"`
	HoursUntilStart   float64 `json:"hours_until_start"`
	IsToday           bool    `json:"is_today"`
	IsPast            bool    `json:"is_past"`
	CanJoin           bool    `json:"can_join"`
	CanCancel         bool    `json:"can_cancel"`
	CanReschedule     bool    `json:"can_reschedule"`
	RecordingDaysLeft int     `json:"recording_days_left"`
}

// LessonWindows computes the derived flags for a one-to-one lesson.
// Deterministic given (now, start, durationMinutes).
func LessonWindows(now, start time.Time, durationMinutes int) TimeWindows {
	return computeWindows(now, start, durationMinutes, JoinLeadMinutesLesson)
}

// CourseSessionWindows computes the derived flags for a group session,
// which uses the shorter join lead.
func CourseSessionWindows(now, start time.Time, durationMinutes int) TimeWindows {
	return computeWindows(now, start, durationMinutes, JoinLeadMinutesCourseSession)
}

func computeWindows(now, start time.Time, durationMinutes, joinLeadMinutes int) TimeWindows {
	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	untilStart := start.Sub(now)
	minutes := untilStart.Minutes()
	hours := untilStart.Hours()

	return TimeWindows{
		MinutesUntilStart: minutes,
		HoursUntilStart:   hours,
		IsToday:           sameDay(now, start),
		IsPast:            now.After(end),
		CanJoin:           minutes <= float64(joinLeadMinutes) && minutes >= -float64(durationMinutes),
		CanCancel:         hours >= CancelMinHours, // boundary at exactly 2.0h is inclusive
		CanReschedule:     minutes > RescheduleMinMinutes,
		RecordingDaysLeft: recordingDaysLeft(now, end),
	}
}

// recordingDaysLeft returns how many whole days of the retention window
// remain since the lesson ended; negative means expired.
func recordingDaysLeft(now, end time.Time) int {
	daysElapsed := int(now.Sub(end).Hours() / 24)
	return RecordingRetentionDays - daysElapsed
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
