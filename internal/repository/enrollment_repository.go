package repository

import (
	"context"
	"intellearn_backend/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EnrollmentRepository struct {
	DB *gorm.DB
}

func NewEnrollmentRepository(db *gorm.DB) *EnrollmentRepository {
	return &EnrollmentRepository{DB: db}
}

func (r *EnrollmentRepository) WithTx(tx *gorm.DB) *EnrollmentRepository {
	return &EnrollmentRepository{DB: tx}
}

// GetOrCreate returns the enrollment for (student, course), inserting an active one
// if none exists. Concurrent callers converge on the same row: the insert is a
// no-op on a unique conflict and the row is read back. created is true only for
// the caller whose insert landed.
func (r *EnrollmentRepository) GetOrCreate(ctx context.Context, studentID, courseID uint) (*model.Enrollment, bool, error) {
	db := r.DB.WithContext(ctx)

	enrollment := &model.Enrollment{
		StudentID:  studentID,
		CourseID:   courseID,
		Status:     model.EnrollmentActive,
		EnrolledAt: time.Now(),
	}
	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "student_id"}, {Name: "course_id"}},
		DoNothing: true,
	}).Create(enrollment)
	if res.Error != nil {
		return nil, false, res.Error
	}

	var existing model.Enrollment
	if err := db.Where("student_id = ? AND course_id = ?", studentID, courseID).First(&existing).Error; err != nil {
		return nil, false, err
	}
	return &existing, res.RowsAffected > 0, nil
}

func (r *EnrollmentRepository) Find(ctx context.Context, studentID, courseID uint) (*model.Enrollment, error) {
	var enrollment model.Enrollment
	err := r.DB.WithContext(ctx).
		Where("student_id = ? AND course_id = ?", studentID, courseID).
		First(&enrollment).Error
	return &enrollment, err
}

func (r *EnrollmentRepository) Exists(ctx context.Context, studentID, courseID uint) (bool, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&model.Enrollment{}).
		Where("student_id = ? AND course_id = ?", studentID, courseID).
		Count(&n).Error
	return n > 0, err
}

func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID uint) ([]model.Enrollment, error) {
	var enrollments []model.Enrollment
	err := r.DB.WithContext(ctx).
		Preload("Course").
		Preload("Course.Instructor").
		Where("student_id = ?", studentID).
		Order("enrolled_at DESC").
		Find(&enrollments).Error
	return enrollments, err
}

func (r *EnrollmentRepository) CountByCourse(ctx context.Context, courseID uint) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&model.Enrollment{}).Where("course_id = ?", courseID).Count(&n).Error
	return n, err
}
