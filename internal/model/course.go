package model

// swagger:model Course
type Course struct {
	BaseModel
	InstructorID *uint   `gorm:"index" json:"instructorId"`
	Instructor   *User   `gorm:"foreignKey:InstructorID;constraint:OnDelete:SET NULL" json:"instructor,omitempty"`
	Title        string  `gorm:"size:200;not null" json:"title"`
	Description  string  `gorm:"type:text" json:"description"`
	ThumbnailURL string  `gorm:"size:500" json:"thumbnailUrl"`
	VideoURL     string  `gorm:"size:500" json:"videoUrl"`
	Price        float64 `gorm:"type:decimal(10,2);default:0" json:"price"`
	// TotalLessons is a cached count of the course's lessons, kept in sync by LessonRepository.
	TotalLessons int `gorm:"default:0" json:"totalLessons"`
}

func (Course) TableName() string {
	return "courses"
}

// IsOwnedBy reports whether userID is the course instructor.
func (c *Course) IsOwnedBy(userID uint) bool {
	return c.InstructorID != nil && *c.InstructorID == userID
}

// swagger:model Lesson
type Lesson struct {
	BaseModel
	CourseID        uint    `gorm:"not null;uniqueIndex:idx_lesson_course_order" json:"courseId"`
	Course          *Course `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"-"`
	Title           string  `gorm:"size:200;not null" json:"title"`
	Content         string  `gorm:"type:text" json:"content"`
	VideoURL        string  `gorm:"size:500" json:"videoUrl"`
	Order           int     `gorm:"column:sort_order;not null;default:1;uniqueIndex:idx_lesson_course_order" json:"order"`
	DurationSeconds int     `gorm:"default:0" json:"durationSeconds"`
}

func (Lesson) TableName() string {
	return "lessons"
}
