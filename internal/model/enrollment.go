package model

import "time"

type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentDropped   EnrollmentStatus = "dropped"
)

// swagger:model Enrollment
type Enrollment struct {
	BaseModel
	StudentID  uint             `gorm:"not null;uniqueIndex:idx_enrollment_student_course" json:"studentId"`
	Student    *User            `gorm:"foreignKey:StudentID;constraint:OnDelete:CASCADE" json:"student,omitempty"`
	CourseID   uint             `gorm:"not null;uniqueIndex:idx_enrollment_student_course;index" json:"courseId"`
	Course     *Course          `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"course,omitempty"`
	Status     EnrollmentStatus `gorm:"size:20;not null;default:'active'" json:"status"`
	Grade      *float64         `gorm:"type:decimal(5,2)" json:"grade"`
	EnrolledAt time.Time        `json:"enrolledAt"`
}

func (Enrollment) TableName() string {
	return "enrollments"
}

// LearningProgress is one-to-one with an Enrollment.
type LearningProgress struct {
	BaseModel
	EnrollmentID uint        `gorm:"not null;uniqueIndex" json:"enrollmentId"`
	Enrollment   *Enrollment `gorm:"foreignKey:EnrollmentID;constraint:OnDelete:CASCADE" json:"-"`
	LastViewedAt *time.Time  `json:"lastViewedAt"`
}

func (LearningProgress) TableName() string {
	return "learning_progress"
}

// LessonCompletion marks one lesson as done within a LearningProgress.
type LessonCompletion struct {
	BaseModel
	ProgressID uint              `gorm:"not null;uniqueIndex:idx_completion_progress_lesson" json:"progressId"`
	Progress   *LearningProgress `gorm:"foreignKey:ProgressID;constraint:OnDelete:CASCADE" json:"-"`
	LessonID   uint              `gorm:"not null;uniqueIndex:idx_completion_progress_lesson;index" json:"lessonId"`
	Lesson     *Lesson           `gorm:"foreignKey:LessonID;constraint:OnDelete:CASCADE" json:"-"`
}

func (LessonCompletion) TableName() string {
	return "lesson_completions"
}
