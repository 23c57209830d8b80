package repository

import (
	"context"
	"intellearn_backend/internal/model"

	"gorm.io/gorm"
)

type LessonRepository struct {
	DB *gorm.DB
}

func NewLessonRepository(db *gorm.DB) *LessonRepository {
	return &LessonRepository{DB: db}
}

// recountLessons refreshes courses.total_lessons for one course.
func recountLessons(tx *gorm.DB, courseID uint) error {
	return tx.Model(&model.Course{}).
		Where("id = ?", courseID).
		UpdateColumn("total_lessons", gorm.Expr("(SELECT COUNT(*) FROM lessons WHERE lessons.course_id = ?)", courseID)).
		Error
}

func (r *LessonRepository) Create(ctx context.Context, lesson *model.Lesson) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(lesson).Error; err != nil {
			return err
		}
		return recountLessons(tx, lesson.CourseID)
	})
}

func (r *LessonRepository) Update(ctx context.Context, lesson *model.Lesson) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(lesson).
			Select("title", "content", "video_url", "sort_order", "duration_seconds").
			Updates(lesson).Error
		if err != nil {
			return err
		}
		return recountLessons(tx, lesson.CourseID)
	})
}

func (r *LessonRepository) Delete(ctx context.Context, lesson *model.Lesson) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("lesson_id = ?", lesson.ID).Delete(&model.LessonCompletion{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&model.Lesson{}, lesson.ID).Error; err != nil {
			return err
		}
		return recountLessons(tx, lesson.CourseID)
	})
}

func (r *LessonRepository) FindByID(ctx context.Context, id uint) (*model.Lesson, error) {
	var lesson model.Lesson
	err := r.DB.WithContext(ctx).First(&lesson, id).Error
	return &lesson, err
}

func (r *LessonRepository) ListByCourse(ctx context.Context, courseID uint) ([]model.Lesson, error) {
	var lessons []model.Lesson
	err := r.DB.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("sort_order").
		Find(&lessons).Error
	return lessons, err
}

func (r *LessonRepository) CountByCourse(ctx context.Context, courseID uint) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&model.Lesson{}).Where("course_id = ?", courseID).Count(&n).Error
	return n, err
}

// OrderTaken reports whether another lesson in the course already uses order.
func (r *LessonRepository) OrderTaken(ctx context.Context, courseID uint, order int, exceptID uint) (bool, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&model.Lesson{}).
		Where("course_id = ? AND sort_order = ? AND id <> ?", courseID, order, exceptID).
		Count(&n).Error
	return n > 0, err
}

// RecountAll rebuilds every cached lesson total.
func (r *LessonRepository) RecountAll(ctx context.Context) (int64, error) {
	res := r.DB.WithContext(ctx).Model(&model.Course{}).
		Where("1 = 1").
		UpdateColumn("total_lessons", gorm.Expr("(SELECT COUNT(*) FROM lessons WHERE lessons.course_id = courses.id)"))
	return res.RowsAffected, res.Error
}
