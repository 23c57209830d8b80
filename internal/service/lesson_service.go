package service

import (
	"context"
	"fmt"
	"intellearn_backend/internal/model"
	"intellearn_backend/internal/policy"
	"intellearn_backend/internal/repository"
	"intellearn_backend/internal/util"
	"intellearn_backend/pkg/logger"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

type LessonService struct {
	LessonRepo *repository.LessonRepository
	CourseRepo *repository.CourseRepository
	Storage    *StorageService
	Access     *Access
}

func NewLessonService(lessonRepo *repository.LessonRepository, courseRepo *repository.CourseRepository, storage *StorageService, access *Access) *LessonService {
	return &LessonService{
		LessonRepo: lessonRepo,
		CourseRepo: courseRepo,
		Storage:    storage,
		Access:     access,
	}
}

type LessonInput struct {
	Title    string `json:"title" binding:"required,max=200"`
	Content  string `json:"content"`
	VideoURL string `json:"videoUrl"`
	Order    int    `json:"order"`
}

func (in LessonInput) validate() error {
	v := util.NewValidationError()
	if strings.TrimSpace(in.Title) == "" {
		v.Add("title", "is required")
	}
	if in.Order <= 0 {
		v.Add("order", "must be greater than 0")
	}
	return v.OrNil()
}

func (s *LessonService) course(ctx context.Context, actor *policy.Actor, courseID uint, action policy.Action) (*model.Course, error) {
	course, err := s.CourseRepo.FindByID(ctx, courseID)
	if err != nil {
		return nil, notFound(err)
	}
	if err := s.Access.Require(ctx, actor, action, course); err != nil {
		return nil, err
	}
	return course, nil
}

func (s *LessonService) lesson(ctx context.Context, actor *policy.Actor, lessonID uint, action policy.Action) (*model.Lesson, error) {
	lesson, err := s.LessonRepo.FindByID(ctx, lessonID)
	if err != nil {
		return nil, notFound(err)
	}
	if _, err := s.course(ctx, actor, lesson.CourseID, action); err != nil {
		return nil, err
	}
	return lesson, nil
}

func (s *LessonService) checkOrder(ctx context.Context, courseID uint, order int, exceptID uint) error {
	taken, err := s.LessonRepo.OrderTaken(ctx, courseID, order, exceptID)
	if err != nil {
		return err
	}
	if taken {
		return util.ErrDuplicateOrder
	}
	return nil
}

func (s *LessonService) Create(ctx context.Context, actor *policy.Actor, courseID uint, in LessonInput) (*model.Lesson, error) {
	course, err := s.course(ctx, actor, courseID, policy.ManageCourse)
	if err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := s.checkOrder(ctx, course.ID, in.Order, 0); err != nil {
		return nil, err
	}

	lesson := &model.Lesson{
		CourseID: course.ID,
		Title:    strings.TrimSpace(in.Title),
		Content:  in.Content,
		VideoURL: in.VideoURL,
		Order:    in.Order,
	}
	if err := s.LessonRepo.Create(ctx, lesson); err != nil {
		return nil, duplicateOrder(err)
	}
	return lesson, nil
}

func (s *LessonService) Update(ctx context.Context, actor *policy.Actor, lessonID uint, in LessonInput) (*model.Lesson, error) {
	lesson, err := s.lesson(ctx, actor, lessonID, policy.ManageCourse)
	if err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := s.checkOrder(ctx, lesson.CourseID, in.Order, lesson.ID); err != nil {
		return nil, err
	}

	lesson.Title = strings.TrimSpace(in.Title)
	lesson.Content = in.Content
	lesson.VideoURL = in.VideoURL
	lesson.Order = in.Order
	if err := s.LessonRepo.Update(ctx, lesson); err != nil {
		return nil, duplicateOrder(err)
	}
	return lesson, nil
}

func (s *LessonService) Delete(ctx context.Context, actor *policy.Actor, lessonID uint) error {
	lesson, err := s.lesson(ctx, actor, lessonID, policy.ManageCourse)
	if err != nil {
		return err
	}
	return s.LessonRepo.Delete(ctx, lesson)
}

func (s *LessonService) Get(ctx context.Context, actor *policy.Actor, lessonID uint) (*model.Lesson, error) {
	return s.lesson(ctx, actor, lessonID, policy.ViewContent)
}

func (s *LessonService) ListByCourse(ctx context.Context, actor *policy.Actor, courseID uint) ([]model.Lesson, error) {
	course, err := s.course(ctx, actor, courseID, policy.ViewContent)
	if err != nil {
		return nil, err
	}
	return s.LessonRepo.ListByCourse(ctx, course.ID)
}

// UploadVideo stores a lesson video and records its duration when ffprobe is installed.
func (s *LessonService) UploadVideo(ctx context.Context, actor *policy.Actor, lessonID uint, fh *multipart.FileHeader) (*model.Lesson, error) {
	lesson, err := s.lesson(ctx, actor, lessonID, policy.ManageCourse)
	if err != nil {
		return nil, err
	}
	if fh == nil || !util.IsVideoFile(fh.Filename) {
		v := util.NewValidationError()
		v.Add("video", "must be one of "+strings.Join(util.AllowedVideoExtensions, ", "))
		return nil, v
	}

	ext := strings.ToLower(filepath.Ext(fh.Filename))
	tmp, err := os.CreateTemp("", "lesson-*"+ext)
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())

	src, err := fh.Open()
	if err != nil {
		tmp.Close()
		return nil, err
	}
	_, err = io.Copy(tmp, src)
	src.Close()
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("buffer video: %w", err)
	}

	if util.FFprobeAvailable() {
		if info, err := util.GetVideoInfo(tmp.Name()); err != nil {
			logger.Log.Warn("Could not probe lesson video", zap.Uint("lesson_id", lesson.ID), zap.Error(err))
		} else {
			lesson.DurationSeconds = info.DurationSeconds()
		}
	}

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "video/" + strings.TrimPrefix(ext, ".")
	}
	key := NewObjectKey(util.LessonVideoDir, ext)
	url, err := s.Storage.UploadFile(ctx, key, tmp.Name(), contentType)
	if err != nil {
		return nil, fmt.Errorf("store lesson video: %w", err)
	}

	lesson.VideoURL = url
	if err := s.LessonRepo.Update(ctx, lesson); err != nil {
		return nil, err
	}
	return lesson, nil
}
