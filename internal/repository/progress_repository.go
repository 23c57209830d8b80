package repository

import (
	"context"
	"intellearn_backend/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProgressRepository struct {
	DB *gorm.DB
}

func NewProgressRepository(db *gorm.DB) *ProgressRepository {
	return &ProgressRepository{DB: db}
}

// GetOrCreate lazily creates the progress row of an enrollment, tolerating
// a concurrent insert of the same row.
func (r *ProgressRepository) GetOrCreate(ctx context.Context, enrollmentID uint) (*model.LearningProgress, error) {
	db := r.DB.WithContext(ctx)

	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "enrollment_id"}},
		DoNothing: true,
	}).Create(&model.LearningProgress{EnrollmentID: enrollmentID}).Error
	if err != nil {
		return nil, err
	}

	var progress model.LearningProgress
	err = db.Where("enrollment_id = ?", enrollmentID).First(&progress).Error
	return &progress, err
}

func (r *ProgressRepository) FindByEnrollment(ctx context.Context, enrollmentID uint) (*model.LearningProgress, error) {
	var progress model.LearningProgress
	err := r.DB.WithContext(ctx).Where("enrollment_id = ?", enrollmentID).First(&progress).Error
	return &progress, err
}

// AddCompletion is idempotent. It also stamps LastViewedAt.
func (r *ProgressRepository) AddCompletion(ctx context.Context, progressID, lessonID uint) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "progress_id"}, {Name: "lesson_id"}},
			DoNothing: true,
		}).Create(&model.LessonCompletion{ProgressID: progressID, LessonID: lessonID}).Error
		if err != nil {
			return err
		}
		return tx.Model(&model.LearningProgress{}).
			Where("id = ?", progressID).
			UpdateColumn("last_viewed_at", time.Now()).Error
	})
}

// RemoveCompletion is idempotent; removing an absent lesson is not an error.
func (r *ProgressRepository) RemoveCompletion(ctx context.Context, progressID, lessonID uint) error {
	return r.DB.WithContext(ctx).
		Where("progress_id = ? AND lesson_id = ?", progressID, lessonID).
		Delete(&model.LessonCompletion{}).Error
}

// CompletedLessonIDs returns completed lessons that still belong to courseID, in lesson order.
func (r *ProgressRepository) CompletedLessonIDs(ctx context.Context, progressID, courseID uint) ([]uint, error) {
	ids := []uint{}
	err := r.DB.WithContext(ctx).
		Table("lesson_completions").
		Joins("JOIN lessons ON lessons.id = lesson_completions.lesson_id").
		Where("lesson_completions.progress_id = ? AND lessons.course_id = ?", progressID, courseID).
		Order("lessons.sort_order").
		Pluck("lesson_completions.lesson_id", &ids).Error
	return ids, err
}
