package services

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"tutorhub_go/models"
	"tutorhub_go/store"
)

func TestCancelInsideWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	st := store.NewMemoryStore()

	// 90-minute lesson three hours out; the refund is still one credit.
	l := bookedLesson(0, now.Add(3*time.Hour))
	l.DurationMinutes = 90
	id := st.PutLesson(l)

	policy := NewCancellationPolicy(st, nil).WithClock(func() time.Time { return now })
	decision, err := policy.Cancel(context.Background(), id, 10, "schedule conflict")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	if !decision.Cancelled {
		t.Fatal("expected Cancelled=true")
	}
	if decision.CreditsRefunded != FlatRefundCredits {
		t.Errorf("CreditsRefunded = %d, want %d", decision.CreditsRefunded, FlatRefundCredits)
	}
	if decision.Record == nil || decision.Record.Reason != "schedule conflict" {
		t.Errorf("record = %+v", decision.Record)
	}

	got, _ := st.GetLesson(context.Background(), id)
	if got.Status != models.LessonStatusCancelled {
		t.Errorf("status = %q, want cancelled", got.Status)
	}
	if bal := st.WalletBalance(l.LearnerID); bal != FlatRefundCredits {
		t.Errorf("wallet balance = %d, want %d", bal, FlatRefundCredits)
	}
	if recs := st.Cancellations(id); len(recs) != 1 {
		t.Errorf("cancellation records = %d, want 1", len(recs))
	}
}

func TestCancelTooLateIsAResultNotAnError(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	st := store.NewMemoryStore()
	id := st.PutLesson(bookedLesson(0, now.Add(time.Hour)))

	policy := NewCancellationPolicy(st, nil).WithClock(func() time.Time { return now })
	decision, err := policy.Cancel(context.Background(), id, 10, "")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	if decision.Cancelled {
		t.Fatal("expected Cancelled=false inside the blocked window")
	}
	if decision.Code != "TOO_LATE" {
		t.Errorf("Code = %q, want TOO_LATE", decision.Code)
	}
	if math.Abs(decision.HoursUntil-1.0) > 1e-9 {
		t.Errorf("HoursUntil = %v, want 1.0", decision.HoursUntil)
	}
	// One hour out the reschedule path is still open.
	if !decision.RescheduleOffered {
		t.Error("expected RescheduleOffered=true one hour before start")
	}

	// Nothing changed.
	got, _ := st.GetLesson(context.Background(), id)
	if got.Status != models.LessonStatusBooked {
		t.Errorf("status = %q, want booked", got.Status)
	}
	if bal := st.WalletBalance(1); bal != 0 {
		t.Errorf("wallet balance = %d, want 0", bal)
	}
}

func TestCancelTooLateNoRescheduleAtTwentyMinutes(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	st := store.NewMemoryStore()
	id := st.PutLesson(bookedLesson(0, now.Add(20*time.Minute)))

	policy := NewCancellationPolicy(st, nil).WithClock(func() time.Time { return now })
	decision, err := policy.Cancel(context.Background(), id, 10, "")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if decision.Cancelled || decision.Code != "TOO_LATE" {
		t.Fatalf("decision = %+v, want TOO_LATE", decision)
	}
	if decision.RescheduleOffered {
		t.Error("expected RescheduleOffered=false twenty minutes before start")
	}
}

func TestCancelExactlyTwoHoursIsAllowed(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	st := store.NewMemoryStore()
	id := st.PutLesson(bookedLesson(0, now.Add(2*time.Hour)))

	policy := NewCancellationPolicy(st, nil).WithClock(func() time.Time { return now })
	decision, err := policy.Cancel(context.Background(), id, 10, "")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !decision.Cancelled {
		t.Error("expected cancellation to succeed at exactly the two-hour boundary")
	}
}

func TestCancelNonBookedLesson(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	st := store.NewMemoryStore()

	l := bookedLesson(0, now.Add(3*time.Hour))
	l.Status = models.LessonStatusCancelled
	id := st.PutLesson(l)

	policy := NewCancellationPolicy(st, nil).WithClock(func() time.Time { return now })
	_, err := policy.Cancel(context.Background(), id, 10, "")

	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("error = %v, want InvalidTransitionError", err)
	}
}

func TestCancelSecondAttemptRejected(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	st := store.NewMemoryStore()
	id := st.PutLesson(bookedLesson(0, now.Add(3*time.Hour)))

	policy := NewCancellationPolicy(st, nil).WithClock(func() time.Time { return now })
	if _, err := policy.Cancel(context.Background(), id, 10, ""); err != nil {
		t.Fatalf("first Cancel: %v", err)
	}

	_, err := policy.Cancel(context.Background(), id, 10, "")
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("second Cancel error = %v, want InvalidTransitionError", err)
	}

	// Still only one record and one credit.
	if recs := st.Cancellations(id); len(recs) != 1 {
		t.Errorf("cancellation records = %d, want 1", len(recs))
	}
	if bal := st.WalletBalance(1); bal != FlatRefundCredits {
		t.Errorf("wallet balance = %d, want %d", bal, FlatRefundCredits)
	}
}
