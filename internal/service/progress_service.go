package service

import (
	"context"
	"errors"
	"intellearn_backend/internal/model"
	"intellearn_backend/internal/repository"
	"intellearn_backend/internal/util"

	"gorm.io/gorm"
)

type ProgressService struct {
	EnrollmentRepo *repository.EnrollmentRepository
	LessonRepo     *repository.LessonRepository
	ProgressRepo   *repository.ProgressRepository
}

func NewProgressService(enrollmentRepo *repository.EnrollmentRepository, lessonRepo *repository.LessonRepository, progressRepo *repository.ProgressRepository) *ProgressService {
	return &ProgressService{
		EnrollmentRepo: enrollmentRepo,
		LessonRepo:     lessonRepo,
		ProgressRepo:   progressRepo,
	}
}

type CourseProgress struct {
	EnrollmentID       uint    `json:"enrollmentId"`
	CourseID           uint    `json:"courseId"`
	CourseTitle        string  `json:"courseTitle,omitempty"`
	Percent            float64 `json:"percent"`
	Done               int     `json:"done"`
	Total              int     `json:"total"`
	CompletedLessonIDs []uint  `json:"completedLessonIds"`
}

// percentOf is 0 for an empty course.
func percentOf(done, total int) float64 {
	if total == 0 {
		return 0
	}
	return util.Round2(float64(done) * 100 / float64(total))
}

func (s *ProgressService) enrollmentFor(ctx context.Context, studentID, courseID uint) (*model.Enrollment, error) {
	enrollment, err := s.EnrollmentRepo.Find(ctx, studentID, courseID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrNotEnrolled
	}
	return enrollment, err
}

func (s *ProgressService) lessonEnrollment(ctx context.Context, studentID, lessonID uint) (*model.Lesson, *model.Enrollment, error) {
	lesson, err := s.LessonRepo.FindByID(ctx, lessonID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, util.ErrNotFound
		}
		return nil, nil, err
	}
	enrollment, err := s.enrollmentFor(ctx, studentID, lesson.CourseID)
	if err != nil {
		return nil, nil, err
	}
	return lesson, enrollment, nil
}

func (s *ProgressService) MarkComplete(ctx context.Context, studentID, lessonID uint) (*CourseProgress, error) {
	lesson, enrollment, err := s.lessonEnrollment(ctx, studentID, lessonID)
	if err != nil {
		return nil, err
	}
	progress, err := s.ProgressRepo.GetOrCreate(ctx, enrollment.ID)
	if err != nil {
		return nil, err
	}
	if err := s.ProgressRepo.AddCompletion(ctx, progress.ID, lesson.ID); err != nil {
		return nil, err
	}
	return s.forEnrollment(ctx, enrollment)
}

func (s *ProgressService) UnmarkComplete(ctx context.Context, studentID, lessonID uint) (*CourseProgress, error) {
	lesson, enrollment, err := s.lessonEnrollment(ctx, studentID, lessonID)
	if err != nil {
		return nil, err
	}
	progress, err := s.ProgressRepo.GetOrCreate(ctx, enrollment.ID)
	if err != nil {
		return nil, err
	}
	if err := s.ProgressRepo.RemoveCompletion(ctx, progress.ID, lesson.ID); err != nil {
		return nil, err
	}
	return s.forEnrollment(ctx, enrollment)
}

// Percentage is the share of the course's current lessons the student completed.
func (s *ProgressService) Percentage(ctx context.Context, enrollment *model.Enrollment) (float64, error) {
	p, err := s.forEnrollment(ctx, enrollment)
	if err != nil {
		return 0, err
	}
	return p.Percent, nil
}

func (s *ProgressService) CourseProgress(ctx context.Context, studentID, courseID uint) (*CourseProgress, error) {
	enrollment, err := s.enrollmentFor(ctx, studentID, courseID)
	if err != nil {
		return nil, err
	}
	return s.forEnrollment(ctx, enrollment)
}

func (s *ProgressService) MyProgress(ctx context.Context, studentID uint) ([]CourseProgress, error) {
	enrollments, err := s.EnrollmentRepo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	out := make([]CourseProgress, 0, len(enrollments))
	for i := range enrollments {
		p, err := s.forEnrollment(ctx, &enrollments[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

func (s *ProgressService) forEnrollment(ctx context.Context, enrollment *model.Enrollment) (*CourseProgress, error) {
	total, err := s.LessonRepo.CountByCourse(ctx, enrollment.CourseID)
	if err != nil {
		return nil, err
	}

	completed := []uint{}
	progress, err := s.ProgressRepo.FindByEnrollment(ctx, enrollment.ID)
	switch {
	case err == nil:
		completed, err = s.ProgressRepo.CompletedLessonIDs(ctx, progress.ID, enrollment.CourseID)
		if err != nil {
			return nil, err
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	out := &CourseProgress{
		EnrollmentID:       enrollment.ID,
		CourseID:           enrollment.CourseID,
		Percent:            percentOf(len(completed), int(total)),
		Done:               len(completed),
		Total:              int(total),
		CompletedLessonIDs: completed,
	}
	if enrollment.Course != nil {
		out.CourseTitle = enrollment.Course.Title
	}
	return out, nil
}
