package repository

import (
	"context"
	"intellearn_backend/internal/model"

	"gorm.io/gorm"
)

type DashboardRepository struct {
	DB *gorm.DB
}

func NewDashboardRepository(db *gorm.DB) *DashboardRepository {
	return &DashboardRepository{DB: db}
}

type CourseStats struct {
	CourseID     uint    `json:"courseId"`
	Title        string  `json:"title"`
	Price        float64 `json:"price"`
	TotalLessons int     `json:"totalLessons"`
	StudentCount int64   `json:"studentCount"`
	Revenue      float64 `json:"revenue"`
}

// InstructorCourseStats aggregates enrollments and paid revenue per course.
// instructorID 0 covers every course.
func (r *DashboardRepository) InstructorCourseStats(ctx context.Context, instructorID uint) ([]CourseStats, error) {
	stats := []CourseStats{}
	db := r.DB.WithContext(ctx).
		Table("courses").
		Select(`courses.id AS course_id, courses.title, courses.price, courses.total_lessons,
			(SELECT COUNT(*) FROM enrollments WHERE enrollments.course_id = courses.id) AS student_count,
			COALESCE((SELECT SUM(payments.amount) FROM payments WHERE payments.course_id = courses.id AND payments.status = ?), 0) AS revenue`,
			model.PaymentPaid).
		Order("courses.id")
	if instructorID != 0 {
		db = db.Where("courses.instructor_id = ?", instructorID)
	}
	err := db.Scan(&stats).Error
	return stats, err
}
