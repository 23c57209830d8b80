package service

import (
	"context"
	"intellearn_backend/internal/repository"
	"intellearn_backend/pkg/logger"

	"go.uber.org/zap"
)

// RecountAll repairs the cached lesson and question totals after out-of-band writes.
func RecountAll(ctx context.Context, lessonRepo *repository.LessonRepository, quizRepo *repository.QuizRepository) error {
	courses, err := lessonRepo.RecountAll(ctx)
	if err != nil {
		return err
	}
	quizzes, err := quizRepo.RecountAll(ctx)
	if err != nil {
		return err
	}
	logger.Log.Info("Counters recomputed", zap.Int64("courses", courses), zap.Int64("quizzes", quizzes))
	return nil
}
