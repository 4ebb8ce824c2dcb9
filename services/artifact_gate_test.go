package services

import (
	"testing"
	"time"

	"tutorhub_go/models"
)

func completedLesson(start time.Time, duration int) *models.Lesson {
	l := &models.Lesson{
		ScheduledStart:     start,
		DurationMinutes:    duration,
		Status:             models.LessonStatusCompleted,
		ConfirmationStatus: models.ConfirmationCompleted,
	}
	l.ID = 1
	return l
}

func strPtr(s string) *string { return &s }

func TestResolveArtifactsStates(t *testing.T) {
	end := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	lesson := func(recording, insight *string) *models.Lesson {
		l := completedLesson(end.Add(-time.Hour), 60)
		l.RecordingRef = recording
		l.InsightRef = insight
		return l
	}

	tests := []struct {
		name          string
		now           time.Time
		recording     *string
		insight       *string
		wantState     string
		wantRecording bool
		wantInsight   bool
	}{
		{
			name:      "no artifact an hour after end is still processing",
			now:       end.Add(time.Hour),
			wantState: RecordingProcessing,
		},
		{
			name:          "artifact present inside retention",
			now:           end.Add(2 * time.Hour),
			recording:     strPtr("recordings/1.mp4"),
			wantState:     RecordingAvailable,
			wantRecording: true,
		},
		{
			name:      "processing window passed without artifact",
			now:       end.Add(25 * time.Hour),
			wantState: RecordingNotRequested,
		},
		{
			name:      "retention passed trumps a present artifact",
			now:       end.AddDate(0, 0, 7),
			recording: strPtr("recordings/1.mp4"),
			wantState: RecordingExpired,
		},
		{
			name:        "insight resolves independently of recording",
			now:         end.Add(time.Hour),
			insight:     strPtr("insights/1.json"),
			wantState:   RecordingProcessing,
			wantInsight: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags := ResolveArtifacts(tt.now, lesson(tt.recording, tt.insight))
			if flags.RecordingState != tt.wantState {
				t.Errorf("RecordingState = %q, want %q", flags.RecordingState, tt.wantState)
			}
			if flags.HasRecording != tt.wantRecording {
				t.Errorf("HasRecording = %v, want %v", flags.HasRecording, tt.wantRecording)
			}
			if flags.HasInsight != tt.wantInsight {
				t.Errorf("HasInsight = %v, want %v", flags.HasInsight, tt.wantInsight)
			}
		})
	}
}

func TestResolveArtifactsExpiryFlip(t *testing.T) {
	// The state must flip from available to expired the moment days-left
	// reaches zero, with the artifact still present.
	end := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	l := completedLesson(end.Add(-time.Hour), 60)
	l.RecordingRef = strPtr("recordings/1.mp4")

	before := ResolveArtifacts(end.AddDate(0, 0, 7).Add(-time.Hour), l)
	if before.RecordingState != RecordingAvailable {
		t.Fatalf("an hour before expiry: state = %q, want %q", before.RecordingState, RecordingAvailable)
	}
	after := ResolveArtifacts(end.AddDate(0, 0, 7), l)
	if after.RecordingState != RecordingExpired {
		t.Fatalf("at expiry: state = %q, want %q", after.RecordingState, RecordingExpired)
	}
	if after.HasRecording {
		t.Error("expired recordings must not report HasRecording")
	}
}

func TestResolveArtifactsBatch(t *testing.T) {
	end := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	now := end.Add(2 * time.Hour)

	withRef := *completedLesson(end.Add(-time.Hour), 60)
	withRef.ID = 1
	withRef.RecordingRef = strPtr("recordings/1.mp4")

	withoutRef := *completedLesson(end.Add(-time.Hour), 60)
	withoutRef.ID = 2

	flags := ResolveArtifactsBatch(now, []models.Lesson{withRef, withoutRef})
	if len(flags) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(flags))
	}
	if flags[1].RecordingState != RecordingAvailable {
		t.Errorf("lesson 1 state = %q, want %q", flags[1].RecordingState, RecordingAvailable)
	}
	if flags[2].RecordingState != RecordingProcessing {
		t.Errorf("lesson 2 state = %q, want %q", flags[2].RecordingState, RecordingProcessing)
	}
}
