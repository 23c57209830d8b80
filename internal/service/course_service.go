package service

import (
	"context"
	"errors"
	"intellearn_backend/internal/model"
	"intellearn_backend/internal/policy"
	"intellearn_backend/internal/repository"
	"intellearn_backend/internal/util"
	"intellearn_backend/pkg/logger"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type CourseService struct {
	CourseRepo     *repository.CourseRepository
	LessonRepo     *repository.LessonRepository
	EnrollmentRepo *repository.EnrollmentRepository
	Progress       *ProgressService
	Access         *Access
}

func NewCourseService(courseRepo *repository.CourseRepository, lessonRepo *repository.LessonRepository, enrollmentRepo *repository.EnrollmentRepository, progress *ProgressService, access *Access) *CourseService {
	return &CourseService{
		CourseRepo:     courseRepo,
		LessonRepo:     lessonRepo,
		EnrollmentRepo: enrollmentRepo,
		Progress:       progress,
		Access:         access,
	}
}

type CourseInput struct {
	Title        string  `json:"title" binding:"required,max=200"`
	Description  string  `json:"description"`
	ThumbnailURL string  `json:"thumbnailUrl"`
	VideoURL     string  `json:"videoUrl"`
	Price        float64 `json:"price"`
}

func (in CourseInput) validate() error {
	v := util.NewValidationError()
	if strings.TrimSpace(in.Title) == "" {
		v.Add("title", "is required")
	}
	if in.Price < 0 {
		v.Add("price", "must not be negative")
	}
	if in.Price >= 1e8 {
		v.Add("price", "is too large")
	}
	return v.OrNil()
}

func (in CourseInput) apply(c *model.Course) {
	c.Title = strings.TrimSpace(in.Title)
	c.Description = in.Description
	c.ThumbnailURL = in.ThumbnailURL
	c.VideoURL = in.VideoURL
	c.Price = util.Round2(in.Price)
}

func (s *CourseService) Create(ctx context.Context, actor *policy.Actor, in CourseInput) (*model.Course, error) {
	if err := s.Access.Require(ctx, actor, policy.CreateCourse, nil); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	course := &model.Course{InstructorID: &actor.ID}
	in.apply(course)
	if err := s.CourseRepo.Create(ctx, course); err != nil {
		return nil, err
	}
	logger.Log.Info("Course created", zap.Uint("course_id", course.ID), zap.Uint("instructor_id", actor.ID))
	return course, nil
}

func (s *CourseService) managed(ctx context.Context, actor *policy.Actor, id uint) (*model.Course, error) {
	course, err := s.CourseRepo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	if err := s.Access.Require(ctx, actor, policy.ManageCourse, course); err != nil {
		return nil, err
	}
	return course, nil
}

func (s *CourseService) Update(ctx context.Context, actor *policy.Actor, id uint, in CourseInput) (*model.Course, error) {
	course, err := s.managed(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	in.apply(course)
	if err := s.CourseRepo.Update(ctx, course); err != nil {
		return nil, err
	}
	return course, nil
}

// Delete removes the course with its lessons, quizzes, enrollments and payments.
func (s *CourseService) Delete(ctx context.Context, actor *policy.Actor, id uint) error {
	course, err := s.managed(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.CourseRepo.Delete(ctx, course.ID); err != nil {
		return notFound(err)
	}
	logger.Log.Info("Course deleted", zap.Uint("course_id", course.ID), zap.Uint("actor_id", actor.ID))
	return nil
}

type CourseListItem struct {
	model.Course
	LessonCount  int   `json:"lessonCount"`
	StudentCount int64 `json:"studentCount"`
}

func (s *CourseService) List(ctx context.Context, q repository.CourseQuery) ([]CourseListItem, int64, error) {
	if !q.Field.Valid() {
		v := util.NewValidationError()
		v.Add("field", "must be one of title, description, instructor")
		return nil, 0, v
	}

	courses, total, err := s.CourseRepo.List(ctx, q)
	if err != nil {
		return nil, 0, err
	}

	ids := make([]uint, 0, len(courses))
	for _, c := range courses {
		ids = append(ids, c.ID)
	}
	students, err := s.CourseRepo.StudentCounts(ctx, ids)
	if err != nil {
		return nil, 0, err
	}

	items := make([]CourseListItem, 0, len(courses))
	for _, c := range courses {
		items = append(items, CourseListItem{Course: c, LessonCount: c.TotalLessons, StudentCount: students[c.ID]})
	}
	return items, total, nil
}

type LessonSummary struct {
	ID              uint   `json:"id"`
	Title           string `json:"title"`
	Order           int    `json:"order"`
	DurationSeconds int    `json:"durationSeconds"`
}

type CourseDetail struct {
	Course       *model.Course     `json:"course"`
	LessonCount  int               `json:"lessonCount"`
	StudentCount int64             `json:"studentCount"`
	Lessons      []LessonSummary   `json:"lessons"`
	IsPaid       bool              `json:"isPaid"`
	CanManage    bool              `json:"canManage"`
	Enrollment   *model.Enrollment `json:"enrollment,omitempty"`
	Progress     *CourseProgress   `json:"progress,omitempty"`
}

// Detail is public. actor may be nil; when set, payment and progress state are filled in.
func (s *CourseService) Detail(ctx context.Context, actor *policy.Actor, id uint) (*CourseDetail, error) {
	course, err := s.CourseRepo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}

	lessons, err := s.LessonRepo.ListByCourse(ctx, course.ID)
	if err != nil {
		return nil, err
	}
	students, err := s.EnrollmentRepo.CountByCourse(ctx, course.ID)
	if err != nil {
		return nil, err
	}

	detail := &CourseDetail{
		Course:       course,
		LessonCount:  len(lessons),
		StudentCount: students,
		Lessons:      make([]LessonSummary, 0, len(lessons)),
	}
	for _, l := range lessons {
		detail.Lessons = append(detail.Lessons, LessonSummary{ID: l.ID, Title: l.Title, Order: l.Order, DurationSeconds: l.DurationSeconds})
	}

	if actor == nil {
		return detail, nil
	}

	detail.IsPaid = s.Access.Require(ctx, actor, policy.ViewContent, course) == nil
	detail.CanManage = policy.Decide(actor, policy.ManageCourse, policy.Resource{Course: course}).Allowed

	enrollment, err := s.EnrollmentRepo.Find(ctx, actor.ID, course.ID)
	switch {
	case err == nil:
		detail.Enrollment = enrollment
		if detail.Progress, err = s.Progress.CourseProgress(ctx, actor.ID, course.ID); err != nil {
			return nil, err
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}
	return detail, nil
}
