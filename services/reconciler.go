package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"tutorhub_go/services/events"
)

// Reconciliation defaults. The poll exists specifically to bound
// staleness when push delivery drops events; push is best-effort.
const (
	DefaultPollInterval   = 30 * time.Second
	DefaultRefreshTimeout = 10 * time.Second
)

// Reconciler keeps one viewer's availability view fresh from two
// independent triggers: the change-event subscription and a fixed
// interval poll. Both feed the same refresh entry point; triggers that
// arrive while a refresh is in flight coalesce into at most one queued
// run instead of firing concurrent fetches.
type Reconciler struct {
	agg          *Aggregator
	bus          *events.Bus
	viewerUserID uint
	learnerIDs   []uint

	pollInterval   time.Duration
	refreshTimeout time.Duration

	kick chan struct{} // user-initiated refresh requests, capacity 1
	stop chan struct{}
	done chan struct{}

	mu          sync.RWMutex
	view        *AvailabilityView
	lastErr     error
	refreshRuns int

	onRefresh func(*AvailabilityView)

	log *logrus.Entry
}

func NewReconciler(agg *Aggregator, bus *events.Bus, viewerUserID uint, learnerIDs []uint) *Reconciler {
	return &Reconciler{
		agg:            agg,
		bus:            bus,
		viewerUserID:   viewerUserID,
		learnerIDs:     learnerIDs,
		pollInterval:   DefaultPollInterval,
		refreshTimeout: DefaultRefreshTimeout,
		kick:           make(chan struct{}, 1),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
		log: logrus.WithFields(logrus.Fields{
			"component": "reconciler",
			"viewer":    viewerUserID,
		}),
	}
}

// WithIntervals overrides the poll interval and refresh timeout, for tests.
func (r *Reconciler) WithIntervals(poll, timeout time.Duration) *Reconciler {
	r.pollInterval = poll
	r.refreshTimeout = timeout
	return r
}

// WithOnRefresh registers a callback invoked with each successfully
// assembled view. Set before Start.
func (r *Reconciler) WithOnRefresh(fn func(*AvailabilityView)) *Reconciler {
	r.onRefresh = fn
	return r
}

// Start performs an initial refresh and launches the consumer loop.
func (r *Reconciler) Start() {
	sub := r.bus.Subscribe(32)
	ticker := time.NewTicker(r.pollInterval)

	r.refresh()

	go func() {
		// Subscription and ticker are released together so a departing
		// viewer leaks neither.
		defer func() {
			ticker.Stop()
			sub.Close()
			close(r.done)
		}()

		for {
			select {
			case <-r.stop:
				return
			case ev, ok := <-sub.C:
				if !ok {
					return
				}
				if !r.relevant(ev) {
					continue
				}
				r.drain(sub, ticker)
				r.refresh()
			case <-ticker.C:
				r.drain(sub, ticker)
				r.refresh()
			case <-r.kick:
				r.drain(sub, ticker)
				r.refresh()
			}
		}
	}()
}

// Stop tears the loop down; both the push subscription and the interval
// timer are released before it returns.
func (r *Reconciler) Stop() {
	select {
	case <-r.stop:
		return
	default:
		close(r.stop)
	}
	<-r.done
}

// Kick requests a refresh on behalf of the user. Non-blocking: if one is
// already queued the request coalesces with it.
func (r *Reconciler) Kick() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// Snapshot returns the last successfully assembled view and the error of
// the most recent refresh, if any.
func (r *Reconciler) Snapshot() (*AvailabilityView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.view, r.lastErr
}

// RefreshCount reports how many refresh passes have run.
func (r *Reconciler) RefreshCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.refreshRuns
}

// relevant filters the change feed down to rows this viewer can see.
func (r *Reconciler) relevant(ev events.Change) bool {
	if ev.Table != events.TableLessons && ev.Table != events.TableCourseSessions {
		return false
	}
	if len(ev.UserIDs) == 0 {
		return true
	}
	for _, id := range ev.UserIDs {
		if id == r.viewerUserID {
			return true
		}
	}
	return false
}

// drain swallows every trigger that is already pending so a burst of
// changes produces one refresh, not one per event.
func (r *Reconciler) drain(sub *events.Subscription, ticker *time.Ticker) {
	for {
		select {
		case <-sub.C:
		case <-ticker.C:
		case <-r.kick:
		default:
			return
		}
	}
}

// refresh runs one aggregation pass under a bounded timeout so a stuck
// fetch cannot starve the triggers that follow.
func (r *Reconciler) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), r.refreshTimeout)
	defer cancel()

	view, err := r.agg.Assemble(ctx, r.learnerIDs)

	r.mu.Lock()
	r.refreshRuns++
	r.lastErr = err
	if err == nil {
		r.view = view
	}
	r.mu.Unlock()

	if err != nil {
		r.log.WithError(err).Warn("availability refresh failed")
		return
	}
	if r.onRefresh != nil {
		r.onRefresh(view)
	}
}
