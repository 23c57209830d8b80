package model

import (
	"time"
)

// swagger:model
type BaseModel struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AllModels lists every table in migration order.
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Course{},
		&Lesson{},
		&Enrollment{},
		&LearningProgress{},
		&LessonCompletion{},
		&Payment{},
		&Quiz{},
		&Question{},
		&Answer{},
		&Submission{},
		&SubmissionAnswer{},
	}
}
