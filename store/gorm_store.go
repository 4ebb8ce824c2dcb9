package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"tutorhub_go/models"
)

// GormStore is the production Lessons implementation backed by MySQL.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) GetLesson(ctx context.Context, id uint) (*models.Lesson, error) {
	var lesson models.Lesson
	err := s.db.WithContext(ctx).
		Preload("Learner").Preload("Teacher").Preload("Subject").
		First(&lesson, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &lesson, nil
}

func (s *GormStore) ListLessons(ctx context.Context, f LessonFilter) ([]models.Lesson, error) {
	q := s.db.WithContext(ctx).Model(&models.Lesson{}).
		Preload("Teacher").Preload("Subject")

	if len(f.LearnerIDs) > 0 {
		q = q.Where("learner_id IN ?", f.LearnerIDs)
	}
	if f.TeacherID != 0 {
		q = q.Where("teacher_id = ?", f.TeacherID)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.StartAfter != nil {
		q = q.Where("scheduled_start > ?", *f.StartAfter)
	}
	if f.StartBefore != nil {
		q = q.Where("scheduled_start < ?", *f.StartBefore)
	}
	if f.EndAfter != nil {
		// scheduled_end is derived, not stored
		q = q.Where("DATE_ADD(scheduled_start, INTERVAL duration_minutes MINUTE) > ?", *f.EndAfter)
	}
	if f.OrderDesc {
		q = q.Order("scheduled_start DESC, id DESC")
	} else {
		q = q.Order("scheduled_start ASC, id ASC")
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var lessons []models.Lesson
	if err := q.Find(&lessons).Error; err != nil {
		return nil, err
	}
	return lessons, nil
}

func (s *GormStore) ListCourseSessions(ctx context.Context, f CourseSessionFilter) ([]models.CourseSession, error) {
	q := s.db.WithContext(ctx).Model(&models.CourseSession{}).Preload("Course")

	if len(f.LearnerIDs) > 0 {
		q = q.Joins("JOIN enrollments ON enrollments.course_id = course_sessions.course_id").
			Where("enrollments.learner_id IN ? AND enrollments.status = ?", f.LearnerIDs, "enrolled")
	}
	if f.DateFrom != nil {
		q = q.Where("course_sessions.session_date >= ?", *f.DateFrom)
	}
	q = q.Order("course_sessions.session_date ASC, course_sessions.schedule_time ASC, course_sessions.id ASC")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var sessions []models.CourseSession
	if err := q.Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (s *GormStore) UpdateLessonStatus(ctx context.Context, id uint, expected, next LessonState) error {
	res := s.db.WithContext(ctx).Model(&models.Lesson{}).
		Where("id = ? AND status = ? AND confirmation_status = ?",
			id, expected.Status, expected.ConfirmationStatus).
		Updates(map[string]interface{}{
			"status":              next.Status,
			"confirmation_status": next.ConfirmationStatus,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.Lesson{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

func (s *GormStore) CountPriorPairLessons(ctx context.Context, learnerID, teacherID, excludeLessonID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Lesson{}).
		Where("learner_id = ? AND teacher_id = ? AND id <> ?", learnerID, teacherID, excludeLessonID).
		Where("status = ? OR confirmation_status IN ?",
			models.LessonStatusCompleted,
			[]string{models.ConfirmationAcknowledged, models.ConfirmationAutoAcknowledged}).
		Count(&count).Error
	return count, err
}

func (s *GormStore) CancelLesson(ctx context.Context, id uint, expected LessonState, cancelledBy uint, reason string, refundCredits int) (*models.CancellationRecord, error) {
	var record *models.CancellationRecord

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lesson models.Lesson
		if err := tx.First(&lesson, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		res := tx.Model(&models.Lesson{}).
			Where("id = ? AND status = ? AND confirmation_status = ?",
				id, expected.Status, expected.ConfirmationStatus).
			Updates(map[string]interface{}{
				"status":              models.LessonStatusCancelled,
				"confirmation_status": lesson.ConfirmationStatus,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}

		record = &models.CancellationRecord{
			LessonID:        id,
			CancelledByID:   cancelledBy,
			Reason:          reason,
			CreditsRefunded: refundCredits,
		}
		if err := tx.Create(record).Error; err != nil {
			return err
		}

		var wallet models.CreditWallet
		if err := tx.Where("learner_id = ?", lesson.LearnerID).
			FirstOrCreate(&wallet, models.CreditWallet{LearnerID: lesson.LearnerID}).Error; err != nil {
			return err
		}
		if err := tx.Model(&wallet).
			Update("balance", gorm.Expr("balance + ?", refundCredits)).Error; err != nil {
			return err
		}

		lessonID := id
		txn := models.CreditTransaction{
			WalletID:  wallet.ID,
			Amount:    refundCredits,
			Kind:      "refund",
			LessonID:  &lessonID,
			Reference: fmt.Sprintf("cancellation of lesson %d", id),
		}
		return tx.Create(&txn).Error
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}
