package services

import (
	"time"

	"tutorhub_go/models"
)

// Recording presentation states. The gate never infers availability from
// lesson status alone; only artifact presence plus elapsed time decide.
const (
	RecordingProcessing   = "processing"    // within 24h of lesson end, artifact not written yet
	RecordingAvailable    = "available"     // artifact present and inside the retention window
	RecordingExpired      = "expired"       // retention window passed
	RecordingNotRequested = "not_requested" // processing window passed without an artifact
)

// recordingProcessingWindow is how long the external producer may take to
// write RecordingRef after the lesson ends.
const recordingProcessingWindow = 24 * time.Hour

// ArtifactFlags is the resolved artifact view for one completed lesson.
type ArtifactFlags struct {
	HasRecording      bool   `json:"has_recording"`
	HasInsight        bool   `json:"has_insight"`
	RecordingState    string `json:"recording_state"`
	RecordingDaysLeft int    `json:"recording_days_left"`
}

// ResolveArtifacts computes the artifact flags for a single lesson.
func ResolveArtifacts(now time.Time, lesson *models.Lesson) ArtifactFlags {
	end := lesson.ScheduledEnd()
	daysLeft := recordingDaysLeft(now, end)

	flags := ArtifactFlags{
		// Insight visibility is independent of recording expiry: notes can
		// finish before video processing, or video may never be requested.
		HasInsight:        lesson.InsightRef != nil,
		RecordingDaysLeft: daysLeft,
	}

	switch {
	case daysLeft <= 0:
		flags.RecordingState = RecordingExpired
	case lesson.RecordingRef != nil:
		flags.RecordingState = RecordingAvailable
		flags.HasRecording = true
	case now.Sub(end) < recordingProcessingWindow:
		flags.RecordingState = RecordingProcessing
	default:
		flags.RecordingState = RecordingNotRequested
	}

	return flags
}

// ResolveArtifactsBatch resolves flags for a list of lessons in a single
// pass, keyed by lesson id. The aggregator uses this instead of per-row
// lookups so the recent-lessons view costs one call, not O(n).
func ResolveArtifactsBatch(now time.Time, lessons []models.Lesson) map[uint]ArtifactFlags {
	out := make(map[uint]ArtifactFlags, len(lessons))
	for i := range lessons {
		out[lessons[i].ID] = ResolveArtifacts(now, &lessons[i])
	}
	return out
}
