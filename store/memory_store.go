package store

import (
	"context"
	"sort"
	"sync"

	"tutorhub_go/models"
)

// MemoryStore is a mutex-guarded in-memory Lessons implementation. It
// honours the same conditional-update semantics as the SQL store,
// including ErrConflict on lost writes, which makes it suitable for
// exercising the lifecycle services without a database.
type MemoryStore struct {
	mu sync.Mutex

	lessons       map[uint]*models.Lesson
	sessions      map[uint]*models.CourseSession
	enrollments   []models.Enrollment
	cancellations map[uint]*models.CancellationRecord
	wallets       map[uint]*models.CreditWallet // keyed by learner id
	transactions  []models.CreditTransaction

	nextID uint

	// Optional fault injection per source, used to exercise partial
	// failure handling in the aggregator.
	FailLessons  error
	FailSessions error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		lessons:       make(map[uint]*models.Lesson),
		sessions:      make(map[uint]*models.CourseSession),
		cancellations: make(map[uint]*models.CancellationRecord),
		wallets:       make(map[uint]*models.CreditWallet),
		nextID:        1,
	}
}

// PutLesson inserts or replaces a lesson, assigning an id when absent.
func (s *MemoryStore) PutLesson(l models.Lesson) uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == 0 {
		l.ID = s.nextID
		s.nextID++
	} else if l.ID >= s.nextID {
		s.nextID = l.ID + 1
	}
	cp := l
	s.lessons[l.ID] = &cp
	return l.ID
}

// PutCourseSession inserts or replaces a course session.
func (s *MemoryStore) PutCourseSession(cs models.CourseSession) uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cs.ID == 0 {
		cs.ID = s.nextID
		s.nextID++
	} else if cs.ID >= s.nextID {
		s.nextID = cs.ID + 1
	}
	cp := cs
	s.sessions[cs.ID] = &cp
	return cs.ID
}

// Enroll links a learner to a course.
func (s *MemoryStore) Enroll(learnerID, courseID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrollments = append(s.enrollments, models.Enrollment{
		LearnerID: learnerID,
		CourseID:  courseID,
		Status:    "enrolled",
	})
}

// WalletBalance reports a learner's current balance.
func (s *MemoryStore) WalletBalance(learnerID uint) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.wallets[learnerID]; ok {
		return w.Balance
	}
	return 0
}

// Cancellations returns all cancellation records for a lesson.
func (s *MemoryStore) Cancellations(lessonID uint) []models.CancellationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CancellationRecord
	if rec, ok := s.cancellations[lessonID]; ok {
		out = append(out, *rec)
	}
	return out
}

func (s *MemoryStore) GetLesson(ctx context.Context, id uint) (*models.Lesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lessons[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (s *MemoryStore) ListLessons(ctx context.Context, f LessonFilter) ([]models.Lesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailLessons != nil {
		return nil, s.FailLessons
	}

	var out []models.Lesson
	for _, l := range s.lessons {
		if len(f.LearnerIDs) > 0 && !containsID(f.LearnerIDs, l.LearnerID) {
			continue
		}
		if f.TeacherID != 0 && l.TeacherID != f.TeacherID {
			continue
		}
		if len(f.Statuses) > 0 && !containsString(f.Statuses, l.Status) {
			continue
		}
		if f.StartAfter != nil && !l.ScheduledStart.After(*f.StartAfter) {
			continue
		}
		if f.StartBefore != nil && !l.ScheduledStart.Before(*f.StartBefore) {
			continue
		}
		if f.EndAfter != nil && !l.ScheduledEnd().After(*f.EndAfter) {
			continue
		}
		out = append(out, *l)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledStart.Equal(out[j].ScheduledStart) {
			if f.OrderDesc {
				return out[i].ID > out[j].ID
			}
			return out[i].ID < out[j].ID
		}
		if f.OrderDesc {
			return out[i].ScheduledStart.After(out[j].ScheduledStart)
		}
		return out[i].ScheduledStart.Before(out[j].ScheduledStart)
	})

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) ListCourseSessions(ctx context.Context, f CourseSessionFilter) ([]models.CourseSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSessions != nil {
		return nil, s.FailSessions
	}

	enrolled := make(map[uint]bool)
	for _, e := range s.enrollments {
		if e.Status == "enrolled" && (len(f.LearnerIDs) == 0 || containsID(f.LearnerIDs, e.LearnerID)) {
			enrolled[e.CourseID] = true
		}
	}

	var out []models.CourseSession
	for _, cs := range s.sessions {
		if len(f.LearnerIDs) > 0 && !enrolled[cs.CourseID] {
			continue
		}
		if f.DateFrom != nil && cs.SessionDate.Before(*f.DateFrom) {
			continue
		}
		out = append(out, *cs)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartsAt().Equal(out[j].StartsAt()) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartsAt().Before(out[j].StartsAt())
	})

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) UpdateLessonStatus(ctx context.Context, id uint, expected, next LessonState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lessons[id]
	if !ok {
		return ErrNotFound
	}
	if l.Status != expected.Status || l.ConfirmationStatus != expected.ConfirmationStatus {
		return ErrConflict
	}
	l.Status = next.Status
	l.ConfirmationStatus = next.ConfirmationStatus
	return nil
}

func (s *MemoryStore) CountPriorPairLessons(ctx context.Context, learnerID, teacherID, excludeLessonID uint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, l := range s.lessons {
		if l.ID == excludeLessonID || l.LearnerID != learnerID || l.TeacherID != teacherID {
			continue
		}
		if l.Status == models.LessonStatusCompleted ||
			l.ConfirmationStatus == models.ConfirmationAcknowledged ||
			l.ConfirmationStatus == models.ConfirmationAutoAcknowledged {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) CancelLesson(ctx context.Context, id uint, expected LessonState, cancelledBy uint, reason string, refundCredits int) (*models.CancellationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lessons[id]
	if !ok {
		return nil, ErrNotFound
	}
	if l.Status != expected.Status || l.ConfirmationStatus != expected.ConfirmationStatus {
		return nil, ErrConflict
	}

	l.Status = models.LessonStatusCancelled

	rec := &models.CancellationRecord{
		LessonID:        id,
		CancelledByID:   cancelledBy,
		Reason:          reason,
		CreditsRefunded: refundCredits,
	}
	rec.ID = s.nextID
	s.nextID++
	s.cancellations[id] = rec

	w, ok := s.wallets[l.LearnerID]
	if !ok {
		w = &models.CreditWallet{LearnerID: l.LearnerID}
		w.ID = s.nextID
		s.nextID++
		s.wallets[l.LearnerID] = w
	}
	w.Balance += refundCredits

	lessonID := id
	s.transactions = append(s.transactions, models.CreditTransaction{
		WalletID: w.ID,
		Amount:   refundCredits,
		Kind:     "refund",
		LessonID: &lessonID,
	})

	cp := *rec
	return &cp, nil
}

func containsID(ids []uint, id uint) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func containsString(vals []string, v string) bool {
	for _, s := range vals {
		if s == v {
			return true
		}
	}
	return false
}
