package repository

import (
	"context"
	"intellearn_backend/internal/model"
	"strings"

	"gorm.io/gorm"
)

type CourseRepository struct {
	DB *gorm.DB
}

func NewCourseRepository(db *gorm.DB) *CourseRepository {
	return &CourseRepository{DB: db}
}

// SearchField narrows a catalog search to one column. Empty means any.
type SearchField string

const (
	SearchAny         SearchField = ""
	SearchTitle       SearchField = "title"
	SearchDescription SearchField = "description"
	SearchInstructor  SearchField = "instructor"
)

func (f SearchField) Valid() bool {
	switch f {
	case SearchAny, SearchTitle, SearchDescription, SearchInstructor:
		return true
	}
	return false
}

type CourseQuery struct {
	Search string
	Field  SearchField
	Page   int
	Limit  int
}

func (r *CourseRepository) Create(ctx context.Context, course *model.Course) error {
	return r.DB.WithContext(ctx).Create(course).Error
}

func (r *CourseRepository) FindByID(ctx context.Context, id uint) (*model.Course, error) {
	var course model.Course
	err := r.DB.WithContext(ctx).Preload("Instructor").First(&course, id).Error
	return &course, err
}

func (r *CourseRepository) Update(ctx context.Context, course *model.Course) error {
	return r.DB.WithContext(ctx).
		Model(course).
		Select("title", "description", "thumbnail_url", "video_url", "price").
		Updates(course).Error
}

// Delete removes the course and everything hanging off it in one transaction.
func (r *CourseRepository) Delete(ctx context.Context, id uint) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		quizIDs := tx.Model(&model.Quiz{}).Select("id").Where("course_id = ?", id)
		questionIDs := tx.Model(&model.Question{}).Select("id").Where("quiz_id IN (?)", quizIDs)
		submissionIDs := tx.Model(&model.Submission{}).Select("id").Where("quiz_id IN (?)", quizIDs)
		lessonIDs := tx.Model(&model.Lesson{}).Select("id").Where("course_id = ?", id)
		enrollmentIDs := tx.Model(&model.Enrollment{}).Select("id").Where("course_id = ?", id)

		steps := []struct {
			model interface{}
			query string
			arg   interface{}
		}{
			{&model.SubmissionAnswer{}, "submission_id IN (?)", submissionIDs},
			{&model.Submission{}, "quiz_id IN (?)", quizIDs},
			{&model.Answer{}, "question_id IN (?)", questionIDs},
			{&model.Question{}, "quiz_id IN (?)", quizIDs},
			{&model.Quiz{}, "course_id = ?", id},
			{&model.LessonCompletion{}, "lesson_id IN (?)", lessonIDs},
			{&model.LearningProgress{}, "enrollment_id IN (?)", enrollmentIDs},
			{&model.Enrollment{}, "course_id = ?", id},
			{&model.Payment{}, "course_id = ?", id},
			{&model.Lesson{}, "course_id = ?", id},
		}
		for _, s := range steps {
			if err := tx.Where(s.query, s.arg).Delete(s.model).Error; err != nil {
				return err
			}
		}

		res := tx.Delete(&model.Course{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *CourseRepository) List(ctx context.Context, q CourseQuery) ([]model.Course, int64, error) {
	db := r.DB.WithContext(ctx).Model(&model.Course{})

	if term := strings.TrimSpace(q.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		instructorIDs := r.DB.Model(&model.User{}).Select("id").Where("LOWER(name) LIKE ?", like)
		switch q.Field {
		case SearchTitle:
			db = db.Where("LOWER(title) LIKE ?", like)
		case SearchDescription:
			db = db.Where("LOWER(description) LIKE ?", like)
		case SearchInstructor:
			db = db.Where("instructor_id IN (?)", instructorIDs)
		default:
			db = db.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ? OR instructor_id IN (?)", like, like, instructorIDs)
		}
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var courses []model.Course
	err := db.Preload("Instructor").
		Order("created_at DESC").Order("id DESC").
		Scopes(Paginate(q.Page, q.Limit)).
		Find(&courses).Error
	return courses, total, err
}

// StudentCounts returns enrollment counts keyed by course id.
func (r *CourseRepository) StudentCounts(ctx context.Context, courseIDs []uint) (map[uint]int64, error) {
	counts := make(map[uint]int64, len(courseIDs))
	if len(courseIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		CourseID uint
		Count    int64
	}
	err := r.DB.WithContext(ctx).Model(&model.Enrollment{}).
		Select("course_id, COUNT(*) AS count").
		Where("course_id IN ?", courseIDs).
		Group("course_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.CourseID] = row.Count
	}
	return counts, nil
}
