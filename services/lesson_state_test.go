package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tutorhub_go/models"
	"tutorhub_go/store"
)

type recordingNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
}

type notifyCall struct {
	userIDs []uint
	title   string
	data    interface{}
}

func (n *recordingNotifier) NotifyUsers(userIDs []uint, title, message, typ string, data interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notifyCall{userIDs: userIDs, title: title, data: data})
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func bookedLesson(id uint, start time.Time) models.Lesson {
	l := models.Lesson{
		LearnerID:          1,
		TeacherID:          1,
		SubjectID:          1,
		ScheduledStart:     start,
		DurationMinutes:    60,
		Status:             models.LessonStatusBooked,
		ConfirmationStatus: models.ConfirmationPending,
	}
	l.ID = id
	l.Learner = models.Learner{UserID: 10}
	l.Teacher = models.Teacher{UserID: 20}
	return l
}

func TestAcknowledgeHappyPath(t *testing.T) {
	st := store.NewMemoryStore()
	id := st.PutLesson(bookedLesson(0, time.Now().Add(24*time.Hour)))

	notifier := &recordingNotifier{}
	lc := NewLessonLifecycle(st, notifier, nil)

	lesson, err := lc.Acknowledge(context.Background(), id)
	if err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	if lesson.ConfirmationStatus != models.ConfirmationAcknowledged {
		t.Errorf("confirmation = %q, want %q", lesson.ConfirmationStatus, models.ConfirmationAcknowledged)
	}

	// First lesson between the pair, so the learner gets the welcome.
	if notifier.count() != 1 {
		t.Fatalf("welcome notifications = %d, want 1", notifier.count())
	}
	if got := notifier.calls[0].userIDs; len(got) != 1 || got[0] != 10 {
		t.Errorf("notified users = %v, want [10]", got)
	}
}

func TestAcknowledgeTwiceReportsCurrentState(t *testing.T) {
	st := store.NewMemoryStore()
	id := st.PutLesson(bookedLesson(0, time.Now().Add(24*time.Hour)))

	lc := NewLessonLifecycle(st, nil, nil)
	if _, err := lc.Acknowledge(context.Background(), id); err != nil {
		t.Fatalf("first Acknowledge: %v", err)
	}

	_, err := lc.Acknowledge(context.Background(), id)
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("second Acknowledge error = %v, want InvalidTransitionError", err)
	}
	if invalid.Attempted != "acknowledge" {
		t.Errorf("Attempted = %q", invalid.Attempted)
	}
}

func TestAcknowledgeWelcomeOnlyOnFirstPairLesson(t *testing.T) {
	st := store.NewMemoryStore()

	// An earlier completed lesson between the same pair suppresses the
	// welcome for later acknowledgments.
	prior := bookedLesson(0, time.Now().Add(-48*time.Hour))
	prior.Status = models.LessonStatusCompleted
	prior.ConfirmationStatus = models.ConfirmationCompleted
	st.PutLesson(prior)

	id := st.PutLesson(bookedLesson(0, time.Now().Add(24*time.Hour)))

	notifier := &recordingNotifier{}
	lc := NewLessonLifecycle(st, notifier, nil)
	if _, err := lc.Acknowledge(context.Background(), id); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	if notifier.count() != 0 {
		t.Errorf("welcome notifications = %d, want 0", notifier.count())
	}
}

func TestAcknowledgeConcurrentExactlyOneWelcome(t *testing.T) {
	st := store.NewMemoryStore()
	id := st.PutLesson(bookedLesson(0, time.Now().Add(24*time.Hour)))

	notifier := &recordingNotifier{}
	lc := NewLessonLifecycle(st, notifier, nil)

	const workers = 8
	var wg sync.WaitGroup
	var successes int32
	var mu sync.Mutex

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := lc.Acknowledge(context.Background(), id); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("successful acknowledgments = %d, want exactly 1", successes)
	}
	if notifier.count() != 1 {
		t.Errorf("welcome notifications = %d, want exactly 1", notifier.count())
	}
}

func TestAutoAcknowledge(t *testing.T) {
	st := store.NewMemoryStore()
	id := st.PutLesson(bookedLesson(0, time.Now().Add(30*time.Minute)))

	lc := NewLessonLifecycle(st, nil, nil)
	if err := lc.AutoAcknowledge(context.Background(), id); err != nil {
		t.Fatalf("AutoAcknowledge: %v", err)
	}

	lesson, _ := st.GetLesson(context.Background(), id)
	if lesson.ConfirmationStatus != models.ConfirmationAutoAcknowledged {
		t.Errorf("confirmation = %q, want %q", lesson.ConfirmationStatus, models.ConfirmationAutoAcknowledged)
	}

	// Already-acknowledged lessons are silently left alone.
	if err := lc.AutoAcknowledge(context.Background(), id); err != nil {
		t.Errorf("second AutoAcknowledge: %v, want nil", err)
	}
}

func TestCompleteFromAnyBookedState(t *testing.T) {
	tests := []struct {
		name         string
		confirmation string
	}{
		{"from pending", models.ConfirmationPending},
		{"from acknowledged", models.ConfirmationAcknowledged},
		{"from auto acknowledged", models.ConfirmationAutoAcknowledged},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.NewMemoryStore()
			l := bookedLesson(0, time.Now().Add(-2*time.Hour))
			l.ConfirmationStatus = tt.confirmation
			id := st.PutLesson(l)

			lc := NewLessonLifecycle(st, nil, nil)
			if err := lc.Complete(context.Background(), id); err != nil {
				t.Fatalf("Complete: %v", err)
			}

			got, _ := st.GetLesson(context.Background(), id)
			if got.Status != models.LessonStatusCompleted || got.ConfirmationStatus != models.ConfirmationCompleted {
				t.Errorf("state = %s·%s, want completed·completed", got.Status, got.ConfirmationStatus)
			}
		})
	}
}

func TestCompleteIsTerminal(t *testing.T) {
	st := store.NewMemoryStore()
	id := st.PutLesson(bookedLesson(0, time.Now().Add(-2*time.Hour)))

	lc := NewLessonLifecycle(st, nil, nil)
	if err := lc.Complete(context.Background(), id); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	err := lc.Complete(context.Background(), id)
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("second Complete error = %v, want InvalidTransitionError", err)
	}

	// Acknowledge after completion is also rejected.
	_, err = lc.Acknowledge(context.Background(), id)
	if !errors.As(err, &invalid) {
		t.Fatalf("Acknowledge after Complete error = %v, want InvalidTransitionError", err)
	}
}

func TestLifecycleUnknownLesson(t *testing.T) {
	st := store.NewMemoryStore()
	lc := NewLessonLifecycle(st, nil, nil)

	if _, err := lc.Acknowledge(context.Background(), 999); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Acknowledge unknown = %v, want ErrNotFound", err)
	}
	if err := lc.Complete(context.Background(), 999); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Complete unknown = %v, want ErrNotFound", err)
	}
}
