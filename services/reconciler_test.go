package services

import (
	"testing"
	"time"

	"tutorhub_go/services/events"
	"tutorhub_go/store"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func newTestReconciler(st *store.MemoryStore, bus *events.Bus, viewerUserID uint) *Reconciler {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	agg := NewAggregator(st).WithClock(testClock(now))
	// A long poll keeps the ticker out of trigger-specific tests.
	return NewReconciler(agg, bus, viewerUserID, []uint{1}).WithIntervals(time.Hour, time.Second)
}

func TestReconcilerInitialRefresh(t *testing.T) {
	st := store.NewMemoryStore()
	st.PutLesson(bookedLesson(0, time.Date(2026, 3, 10, 16, 0, 0, 0, time.UTC)))

	bus := events.NewBus()
	r := newTestReconciler(st, bus, 10)
	r.Start()
	defer r.Stop()

	view, err := r.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot error: %v", err)
	}
	if view == nil || len(view.UpcomingLessons) != 1 {
		t.Fatalf("initial view = %+v, want one upcoming lesson", view)
	}
	if r.RefreshCount() != 1 {
		t.Errorf("RefreshCount = %d, want 1 after Start", r.RefreshCount())
	}
}

func TestReconcilerRefreshesOnRelevantEvent(t *testing.T) {
	st := store.NewMemoryStore()
	bus := events.NewBus()
	r := newTestReconciler(st, bus, 10)
	r.Start()
	defer r.Stop()

	bus.Publish(events.Change{
		Table:     events.TableLessons,
		EventType: events.EventUpdate,
		RowID:     1,
		UserIDs:   []uint{10},
	})

	if !waitFor(t, time.Second, func() bool { return r.RefreshCount() >= 2 }) {
		t.Fatalf("RefreshCount = %d, want >= 2 after a relevant event", r.RefreshCount())
	}
}

func TestReconcilerIgnoresIrrelevantEvents(t *testing.T) {
	st := store.NewMemoryStore()
	bus := events.NewBus()
	r := newTestReconciler(st, bus, 10)
	r.Start()
	defer r.Stop()

	// Addressed to a different viewer.
	bus.Publish(events.Change{
		Table:     events.TableLessons,
		EventType: events.EventUpdate,
		RowID:     1,
		UserIDs:   []uint{99},
	})
	// Unrelated table.
	bus.Publish(events.Change{
		Table:     "notifications",
		EventType: events.EventInsert,
		RowID:     2,
	})

	time.Sleep(50 * time.Millisecond)
	if got := r.RefreshCount(); got != 1 {
		t.Errorf("RefreshCount = %d, want 1 (irrelevant events must not refresh)", got)
	}
}

func TestReconcilerCoalescesBursts(t *testing.T) {
	st := store.NewMemoryStore()
	bus := events.NewBus()
	r := newTestReconciler(st, bus, 10)
	r.Start()
	defer r.Stop()

	const burst = 20
	for i := 0; i < burst; i++ {
		bus.Publish(events.Change{
			Table:     events.TableLessons,
			EventType: events.EventUpdate,
			RowID:     uint(i + 1),
			UserIDs:   []uint{10},
		})
	}

	if !waitFor(t, time.Second, func() bool { return r.RefreshCount() >= 2 }) {
		t.Fatal("burst never produced a refresh")
	}
	time.Sleep(50 * time.Millisecond)

	// Pending triggers are drained before each pass, so a burst costs far
	// fewer refreshes than events.
	if got := r.RefreshCount(); got > burst/2 {
		t.Errorf("RefreshCount = %d for %d events, expected coalescing", got, burst)
	}
}

func TestReconcilerPollTriggersRefresh(t *testing.T) {
	st := store.NewMemoryStore()
	bus := events.NewBus()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	agg := NewAggregator(st).WithClock(testClock(now))
	r := NewReconciler(agg, bus, 10, []uint{1}).WithIntervals(20*time.Millisecond, time.Second)
	r.Start()
	defer r.Stop()

	if !waitFor(t, time.Second, func() bool { return r.RefreshCount() >= 3 }) {
		t.Fatalf("RefreshCount = %d, want >= 3 from polling alone", r.RefreshCount())
	}
}

func TestReconcilerKick(t *testing.T) {
	st := store.NewMemoryStore()
	bus := events.NewBus()
	r := newTestReconciler(st, bus, 10)
	r.Start()
	defer r.Stop()

	r.Kick()
	if !waitFor(t, time.Second, func() bool { return r.RefreshCount() >= 2 }) {
		t.Fatalf("RefreshCount = %d, want >= 2 after Kick", r.RefreshCount())
	}

	// Kick on a stopped reconciler must not block or panic.
	r.Stop()
	r.Kick()
}

func TestReconcilerStopReleasesSubscription(t *testing.T) {
	st := store.NewMemoryStore()
	bus := events.NewBus()

	r := newTestReconciler(st, bus, 10)
	r.Start()
	if got := bus.SubscriberCount(); got != 1 {
		t.Fatalf("SubscriberCount = %d, want 1 while running", got)
	}

	r.Stop()
	if got := bus.SubscriberCount(); got != 0 {
		t.Errorf("SubscriberCount = %d, want 0 after Stop", got)
	}

	// Stop is idempotent.
	r.Stop()
}

func TestReconcilerOnRefreshCallback(t *testing.T) {
	st := store.NewMemoryStore()
	bus := events.NewBus()

	got := make(chan *AvailabilityView, 4)
	r := newTestReconciler(st, bus, 10).WithOnRefresh(func(v *AvailabilityView) {
		select {
		case got <- v:
		default:
		}
	})
	r.Start()
	defer r.Stop()

	select {
	case v := <-got:
		if v == nil {
			t.Fatal("callback received nil view")
		}
	case <-time.After(time.Second):
		t.Fatal("OnRefresh was never invoked")
	}
}
