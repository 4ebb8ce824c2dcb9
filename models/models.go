package models

import (
	"database/sql/driver"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// JSON field type for GORM
type JSON []byte

func (j JSON) Value() (driver.Value, error) {
	if j.IsNull() {
		return nil, nil
	}
	return string(j), nil
}

func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	s, ok := value.([]byte)
	if !ok {
		return nil
	}
	*j = append((*j)[0:0], s...)
	return nil
}

func (j JSON) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *JSON) UnmarshalJSON(data []byte) error {
	if j == nil {
		return nil
	}
	*j = append((*j)[0:0], data...)
	return nil
}

func (j JSON) IsNull() bool {
	return len(j) == 0 || string(j) == "null"
}

// Lesson status values. Status is monotonic except for the explicit
// cancel transition; completed and cancelled are terminal.
const (
	LessonStatusBooked    = "booked"
	LessonStatusCompleted = "completed"
	LessonStatusCancelled = "cancelled"
)

// Confirmation status values. This axis is independent of Status: a
// lesson can be booked and pending at the same time.
const (
	ConfirmationPending          = "pending"
	ConfirmationAcknowledged     = "acknowledged"
	ConfirmationAutoAcknowledged = "auto_acknowledged"
	ConfirmationCompleted        = "completed"
)

// Course session live status values.
const (
	LiveStatusScheduled = "scheduled"
	LiveStatusLive      = "live"
	LiveStatusEnded     = "ended"
)

// User model
type User struct {
	BaseModel
	Username string `json:"username" gorm:"size:100;not null;uniqueIndex"`
	Password string `json:"-" gorm:"size:255;not null"`
	Email    string `json:"email" gorm:"size:255;uniqueIndex"`
	Phone    string `json:"phone" gorm:"size:20"`
	Role     string `json:"role" gorm:"size:50;not null;default:'student';type:enum('owner','admin','teacher','student','guardian')"` // owner, admin, teacher, student, guardian
	Status   string `json:"status" gorm:"size:50;not null;default:'active';type:enum('active','inactive','suspended')"`               // active, inactive, suspended
	Avatar   string `json:"avatar" gorm:"size:500"`

	// Relationships
	Learner *Learner `json:"learner,omitempty" gorm:"foreignKey:UserID"`
	Teacher *Teacher `json:"teacher,omitempty" gorm:"foreignKey:UserID"`
}

// Learner model holds the student-side profile and credit wallet link.
type Learner struct {
	BaseModel
	UserID         uint   `json:"user_id" gorm:"uniqueIndex;not null"`
	FirstName      string `json:"first_name" gorm:"size:100"`
	LastName       string `json:"last_name" gorm:"size:100"`
	Nickname       string `json:"nickname" gorm:"size:100"`
	GradeLevel     string `json:"grade_level" gorm:"size:50"`
	GuardianUserID *uint  `json:"guardian_user_id" gorm:"index;default:null"` // set for children viewed through a guardian account
	Timezone       string `json:"timezone" gorm:"size:64"`

	// Relationships
	User   User          `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Wallet *CreditWallet `json:"wallet,omitempty" gorm:"foreignKey:LearnerID"`
}

// Teacher model
type Teacher struct {
	BaseModel
	UserID          uint   `json:"user_id" gorm:"uniqueIndex;not null"`
	FirstName       string `json:"first_name" gorm:"size:100"`
	LastName        string `json:"last_name" gorm:"size:100"`
	Nickname        string `json:"nickname" gorm:"size:100"`
	Specializations string `json:"specializations" gorm:"type:text"`
	Active          bool   `json:"active" gorm:"default:true"`

	// Relationships
	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// Subject model
type Subject struct {
	BaseModel
	Name        string `json:"name" gorm:"size:255;not null"`
	Code        string `json:"code" gorm:"size:100;uniqueIndex"`
	Description string `json:"description" gorm:"type:text"`
	Active      bool   `json:"active" gorm:"default:true"`
}

// Lesson is the central entity: a scheduled one-to-one session between a
// learner and a teacher. RoomReference, RecordingRef and InsightRef are
// written asynchronously by external collaborators and may be absent for
// any amount of time; absence is a normal state, never an error.
type Lesson struct {
	BaseModel
	LearnerID          uint      `json:"learner_id" gorm:"not null;index"`
	TeacherID          uint      `json:"teacher_id" gorm:"not null;index"`
	SubjectID          uint      `json:"subject_id" gorm:"not null"`
	ScheduledStart     time.Time `json:"scheduled_start" gorm:"not null;index"`
	DurationMinutes    int       `json:"duration_minutes" gorm:"not null"`
	Status             string    `json:"status" gorm:"size:50;not null;default:'booked';type:enum('booked','completed','cancelled')"`                                       // booked, completed, cancelled
	ConfirmationStatus string    `json:"confirmation_status" gorm:"size:50;not null;default:'pending';type:enum('pending','acknowledged','auto_acknowledged','completed')"` // pending, acknowledged, auto_acknowledged, completed
	RoomReference      *string   `json:"room_reference" gorm:"size:255;default:null"` // opaque token from the room provisioning collaborator
	RecordingRef       *string   `json:"recording_ref" gorm:"size:500;default:null"`  // S3 object key, set by the recording producer up to 24h after end
	InsightRef         *string   `json:"insight_ref" gorm:"size:500;default:null"`    // arrives independently of RecordingRef
	Notes              string    `json:"notes" gorm:"type:text"`

	// Relationships
	Learner Learner `json:"learner,omitempty" gorm:"foreignKey:LearnerID"`
	Teacher Teacher `json:"teacher,omitempty" gorm:"foreignKey:TeacherID"`
	Subject Subject `json:"subject,omitempty" gorm:"foreignKey:SubjectID"`
}

// ScheduledEnd derives the lesson end instant from start plus duration.
func (l *Lesson) ScheduledEnd() time.Time {
	return l.ScheduledStart.Add(time.Duration(l.DurationMinutes) * time.Minute)
}

// BeforeSave enforces the duration invariant at the persistence boundary.
func (l *Lesson) BeforeSave(tx *gorm.DB) error {
	if l.DurationMinutes <= 0 {
		return errors.New("lesson duration_minutes must be positive")
	}
	return nil
}

// Course model (group class container)
type Course struct {
	BaseModel
	Name        string `json:"name" gorm:"size:255;not null"`
	Code        string `json:"code" gorm:"size:100;uniqueIndex"`
	SubjectID   uint   `json:"subject_id"`
	TeacherID   uint   `json:"teacher_id"`
	Description string `json:"description" gorm:"type:text"`
	Status      string `json:"status" gorm:"size:50;default:'active';type:enum('active','inactive')"` // active, inactive
	MaxStudents int    `json:"max_students"`

	// Relationships
	Subject Subject `json:"subject,omitempty" gorm:"foreignKey:SubjectID"`
	Teacher Teacher `json:"teacher,omitempty" gorm:"foreignKey:TeacherID"`
}

// CourseSession is one occurrence of a recurring group class. It has no
// per-learner confirmation axis; enrollment gates visibility and the
// RoomCode is exposed only while LiveStatus is live.
type CourseSession struct {
	BaseModel
	CourseID        uint      `json:"course_id" gorm:"not null;index"`
	SessionDate     time.Time `json:"session_date" gorm:"not null;index"`
	ScheduleTime    time.Time `json:"schedule_time" gorm:"not null"`
	DurationMinutes int       `json:"duration_minutes" gorm:"not null"`
	SessionNumber   int       `json:"session_number"`
	LiveStatus      string    `json:"live_status" gorm:"size:50;not null;default:'scheduled';type:enum('scheduled','live','ended')"` // scheduled, live, ended
	RoomCode        *string   `json:"-" gorm:"size:255;default:null"`
	Topic           string    `json:"topic" gorm:"size:255"`

	// Relationships
	Course Course `json:"course,omitempty" gorm:"foreignKey:CourseID"`
}

// StartsAt combines SessionDate and ScheduleTime into the session start instant.
func (cs *CourseSession) StartsAt() time.Time {
	d := cs.SessionDate
	t := cs.ScheduleTime
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), 0, 0, d.Location())
}

// EndsAt derives the session end instant.
func (cs *CourseSession) EndsAt() time.Time {
	return cs.StartsAt().Add(time.Duration(cs.DurationMinutes) * time.Minute)
}

// Enrollment links a learner to a course.
type Enrollment struct {
	BaseModel
	LearnerID uint   `json:"learner_id" gorm:"not null;index:idx_enrollment_learner_course,unique"`
	CourseID  uint   `json:"course_id" gorm:"not null;index:idx_enrollment_learner_course,unique"`
	Status    string `json:"status" gorm:"size:50;default:'enrolled';type:enum('enrolled','completed','dropped')"` // enrolled, completed, dropped

	// Relationships
	Learner Learner `json:"learner,omitempty" gorm:"foreignKey:LearnerID"`
	Course  Course  `json:"course,omitempty" gorm:"foreignKey:CourseID"`
}

// CancellationRecord is an append-only ledger entry created on every
// successful cancellation. Created once, immutable thereafter.
type CancellationRecord struct {
	BaseModel
	LessonID        uint   `json:"lesson_id" gorm:"not null;uniqueIndex"`
	CancelledByID   uint   `json:"cancelled_by_id" gorm:"not null"`
	Reason          string `json:"reason" gorm:"type:text"`
	CreditsRefunded int    `json:"credits_refunded" gorm:"not null"`

	// Relationships
	Lesson Lesson `json:"lesson,omitempty" gorm:"foreignKey:LessonID"`
}

// CreditWallet holds a learner's current credit balance.
type CreditWallet struct {
	BaseModel
	LearnerID uint `json:"learner_id" gorm:"uniqueIndex;not null"`
	Balance   int  `json:"balance" gorm:"not null;default:0"`
}

// CreditTransaction is the append-only movement ledger behind the wallet.
type CreditTransaction struct {
	BaseModel
	WalletID  uint   `json:"wallet_id" gorm:"not null;index"`
	Amount    int    `json:"amount" gorm:"not null"`                                                          // positive = credit, negative = debit
	Kind      string `json:"kind" gorm:"size:50;not null;type:enum('purchase','booking','refund','adjustment')"` // purchase, booking, refund, adjustment
	LessonID  *uint  `json:"lesson_id" gorm:"default:null"`
	Reference string `json:"reference" gorm:"size:255"`
}

// Notification model
type Notification struct {
	BaseModel
	UserID   uint       `json:"user_id" gorm:"not null;index"`
	Title    string     `json:"title" gorm:"size:255;not null"`
	Message  string     `json:"message" gorm:"type:text;not null"`
	Type     string     `json:"type" gorm:"size:50;not null;type:enum('info','warning','error','success')"` // info, warning, error, success
	Read     bool       `json:"read" gorm:"default:false"`
	ReadAt   *time.Time `json:"read_at"`
	Channels JSON       `json:"channels" gorm:"type:json"`
	Data     JSON       `json:"data" gorm:"type:json"`

	// Relationships
	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// Log model for activity tracking
type ActivityLog struct {
	BaseModel
	UserID     uint   `json:"user_id"`
	Action     string `json:"action" gorm:"size:100;not null"`
	Resource   string `json:"resource" gorm:"size:100;not null"`
	ResourceID uint   `json:"resource_id"`
	Details    JSON   `json:"details" gorm:"type:json"`
	IPAddress  string `json:"ip_address" gorm:"size:45"`
	UserAgent  string `json:"user_agent" gorm:"size:500"`

	// Relationships
	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}
