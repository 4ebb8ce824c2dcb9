package seeders

import (
	"log"
	"time"

	"tutorhub_go/database"
	"tutorhub_go/models"
	"tutorhub_go/storage"
	"tutorhub_go/utils"
)

// SeedAll runs all seeders
func SeedAll() {
	log.Println("Starting database seeding...")

	SeedUsers()
	SeedSubjects()
	SeedLessons()
	SeedCourses()

	log.Println("Database seeding completed successfully!")
}

// SeedUsers seeds users plus their learner and teacher profiles
func SeedUsers() {
	var count int64
	database.DB.Model(&models.User{}).Count(&count)
	if count > 0 {
		log.Println("Users already seeded, skipping...")
		return
	}

	hashedPassword, _ := utils.HashPassword("password123")

	users := []models.User{
		{
			BaseModel: models.BaseModel{ID: 1},
			Username:  "admin",
			Password:  hashedPassword,
			Email:     "admin@tutorhub.io",
			Phone:     "0812345678",
			Role:      "admin",
			Status:    "active",
		},
		{
			BaseModel: models.BaseModel{ID: 2},
			Username:  "mai_s",
			Password:  hashedPassword,
			Email:     "mai.suzuki@example.com",
			Role:      "student",
			Status:    "active",
		},
		{
			BaseModel: models.BaseModel{ID: 3},
			Username:  "kenta_s",
			Password:  hashedPassword,
			Email:     "kenta.suzuki@example.com",
			Role:      "student",
			Status:    "active",
		},
		{
			BaseModel: models.BaseModel{ID: 4},
			Username:  "suzuki_parent",
			Password:  hashedPassword,
			Email:     "parent.suzuki@example.com",
			Role:      "guardian",
			Status:    "active",
		},
		{
			BaseModel: models.BaseModel{ID: 5},
			Username:  "teacher_emma",
			Password:  hashedPassword,
			Email:     "emma.brown@tutorhub.io",
			Role:      "teacher",
			Status:    "active",
		},
	}

	for _, user := range users {
		if err := database.DB.Create(&user).Error; err != nil {
			log.Printf("Error seeding user %s: %v", user.Username, err)
		}
	}

	guardianID := uint(4)
	learners := []models.Learner{
		{
			BaseModel:  models.BaseModel{ID: 1},
			UserID:     2,
			FirstName:  "Mai",
			LastName:   "Suzuki",
			Nickname:   "Mai",
			GradeLevel: "G8",
			Timezone:   "Asia/Tokyo",
		},
		{
			BaseModel:      models.BaseModel{ID: 2},
			UserID:         3,
			FirstName:      "Kenta",
			LastName:       "Suzuki",
			Nickname:       "Ken",
			GradeLevel:     "G5",
			GuardianUserID: &guardianID,
			Timezone:       "Asia/Tokyo",
		},
	}
	for _, learner := range learners {
		if err := database.DB.Create(&learner).Error; err != nil {
			log.Printf("Error seeding learner %s: %v", learner.Nickname, err)
		}
	}

	teachers := []models.Teacher{
		{
			BaseModel:       models.BaseModel{ID: 1},
			UserID:          5,
			FirstName:       "Emma",
			LastName:        "Brown",
			Nickname:        "Emma",
			Specializations: "Mathematics, Physics",
			Active:          true,
		},
	}
	for _, teacher := range teachers {
		if err := database.DB.Create(&teacher).Error; err != nil {
			log.Printf("Error seeding teacher %s: %v", teacher.Nickname, err)
		}
	}

	wallets := []models.CreditWallet{
		{LearnerID: 1, Balance: 10},
		{LearnerID: 2, Balance: 6},
	}
	for _, wallet := range wallets {
		if err := database.DB.Create(&wallet).Error; err != nil {
			log.Printf("Error seeding wallet for learner %d: %v", wallet.LearnerID, err)
		}
	}

	log.Println("Users seeded successfully")
}

// SeedSubjects seeds the subjects table
func SeedSubjects() {
	var count int64
	database.DB.Model(&models.Subject{}).Count(&count)
	if count > 0 {
		log.Println("Subjects already seeded, skipping...")
		return
	}

	subjects := []models.Subject{
		{BaseModel: models.BaseModel{ID: 1}, Name: "Mathematics", Code: "MATH", Active: true},
		{BaseModel: models.BaseModel{ID: 2}, Name: "Physics", Code: "PHYS", Active: true},
		{BaseModel: models.BaseModel{ID: 3}, Name: "English Conversation", Code: "ENG-CONV", Active: true},
	}

	for _, subject := range subjects {
		if err := database.DB.Create(&subject).Error; err != nil {
			log.Printf("Error seeding subject %s: %v", subject.Code, err)
		}
	}

	log.Println("Subjects seeded successfully")
}

// SeedLessons seeds a handful of lessons around the current time so the
// dashboard has content immediately after a fresh start.
func SeedLessons() {
	var count int64
	database.DB.Model(&models.Lesson{}).Count(&count)
	if count > 0 {
		log.Println("Lessons already seeded, skipping...")
		return
	}

	now := time.Now()
	room := storage.NewRoomReference()
	recording := "recordings/seed/lesson-3.mp4"

	lessons := []models.Lesson{
		{
			// Upcoming, already acknowledged, room ready
			LearnerID:          1,
			TeacherID:          1,
			SubjectID:          1,
			ScheduledStart:     now.Add(3 * time.Hour),
			DurationMinutes:    60,
			Status:             models.LessonStatusBooked,
			ConfirmationStatus: models.ConfirmationAcknowledged,
			RoomReference:      &room,
		},
		{
			// Upcoming, not yet acknowledged by the teacher
			LearnerID:          2,
			TeacherID:          1,
			SubjectID:          3,
			ScheduledStart:     now.Add(48 * time.Hour),
			DurationMinutes:    45,
			Status:             models.LessonStatusBooked,
			ConfirmationStatus: models.ConfirmationPending,
		},
		{
			// Completed yesterday, recording available
			LearnerID:          1,
			TeacherID:          1,
			SubjectID:          1,
			ScheduledStart:     now.Add(-26 * time.Hour),
			DurationMinutes:    60,
			Status:             models.LessonStatusCompleted,
			ConfirmationStatus: models.ConfirmationCompleted,
			RecordingRef:       &recording,
		},
	}

	for i, lesson := range lessons {
		if err := database.DB.Create(&lesson).Error; err != nil {
			log.Printf("Error seeding lesson %d: %v", i+1, err)
		}
	}

	log.Println("Lessons seeded successfully")
}

// SeedCourses seeds one group course with sessions and enrollments
func SeedCourses() {
	var count int64
	database.DB.Model(&models.Course{}).Count(&count)
	if count > 0 {
		log.Println("Courses already seeded, skipping...")
		return
	}

	course := models.Course{
		BaseModel:   models.BaseModel{ID: 1},
		Name:        "Group English Conversation",
		Code:        "GRP-ENG-A",
		SubjectID:   3,
		TeacherID:   1,
		Description: "Small-group conversation practice",
		Status:      "active",
		MaxStudents: 6,
	}
	if err := database.DB.Create(&course).Error; err != nil {
		log.Printf("Error seeding course %s: %v", course.Code, err)
		return
	}

	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	slot := time.Date(0, 1, 1, 18, 0, 0, 0, now.Location())

	sessions := []models.CourseSession{
		{CourseID: 1, SessionDate: today, ScheduleTime: slot, DurationMinutes: 50, SessionNumber: 1, LiveStatus: models.LiveStatusScheduled, Topic: "Introductions"},
		{CourseID: 1, SessionDate: today.AddDate(0, 0, 2), ScheduleTime: slot, DurationMinutes: 50, SessionNumber: 2, LiveStatus: models.LiveStatusScheduled, Topic: "Daily routines"},
		{CourseID: 1, SessionDate: today.AddDate(0, 0, 4), ScheduleTime: slot, DurationMinutes: 50, SessionNumber: 3, LiveStatus: models.LiveStatusScheduled, Topic: "Travel"},
	}
	for _, session := range sessions {
		if err := database.DB.Create(&session).Error; err != nil {
			log.Printf("Error seeding course session %d: %v", session.SessionNumber, err)
		}
	}

	enrollments := []models.Enrollment{
		{LearnerID: 1, CourseID: 1, Status: "enrolled"},
		{LearnerID: 2, CourseID: 1, Status: "enrolled"},
	}
	for _, enrollment := range enrollments {
		if err := database.DB.Create(&enrollment).Error; err != nil {
			log.Printf("Error seeding enrollment for learner %d: %v", enrollment.LearnerID, err)
		}
	}

	log.Println("Courses seeded successfully")
}
