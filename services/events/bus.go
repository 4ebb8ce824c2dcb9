package events

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Change tables the reconciliation loop cares about.
const (
	TableLessons        = "lessons"
	TableCourseSessions = "course_sessions"
)

// Event types.
const (
	EventInsert = "insert"
	EventUpdate = "update"
	EventDelete = "delete"
)

// Change is one row-change notification. UserIDs lists the users whose
// views the change affects so subscribers can filter client-side.
type Change struct {
	Table     string `json:"table"`
	EventType string `json:"event_type"`
	RowID     uint   `json:"row_id"`
	UserIDs   []uint `json:"-"`
}

// Bus fans row-change notifications out to subscribers. Delivery is
// best-effort: a subscriber whose buffer is full loses the event, and the
// periodic poll on the consumer side bounds the resulting staleness.
type Bus struct {
	mu   sync.RWMutex
	subs map[*Subscription]bool
}

// Subscription receives changes on C until Close is called.
type Subscription struct {
	C   chan Change
	bus *Bus
}

func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]bool)}
}

// Subscribe registers a new subscriber with the given channel buffer.
func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 16
	}
	sub := &Subscription{C: make(chan Change, buffer), bus: b}
	b.mu.Lock()
	b.subs[sub] = true
	b.mu.Unlock()
	return sub
}

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	if s.bus.subs[s] {
		delete(s.bus.subs, s)
		close(s.C)
	}
	s.bus.mu.Unlock()
}

// Publish delivers the change to every subscriber without blocking the
// publisher.
func (b *Bus) Publish(c Change) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		select {
		case sub.C <- c:
		default:
			logrus.WithFields(logrus.Fields{
				"table":  c.Table,
				"row_id": c.RowID,
			}).Debug("event subscriber buffer full, dropping change")
		}
	}
}

// SubscriberCount reports the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
