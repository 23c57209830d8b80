package repository

import (
	"context"
	"intellearn_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type QuizRepository struct {
	DB *gorm.DB
}

func NewQuizRepository(db *gorm.DB) *QuizRepository {
	return &QuizRepository{DB: db}
}

func recountQuestions(tx *gorm.DB, quizID uint) error {
	return tx.Model(&model.Quiz{}).
		Where("id = ?", quizID).
		UpdateColumn("total_questions", gorm.Expr("(SELECT COUNT(*) FROM questions WHERE questions.quiz_id = ?)", quizID)).
		Error
}

func (r *QuizRepository) Create(ctx context.Context, quiz *model.Quiz) error {
	return r.DB.WithContext(ctx).Omit("Questions").Create(quiz).Error
}

func (r *QuizRepository) Update(ctx context.Context, quiz *model.Quiz) error {
	return r.DB.WithContext(ctx).
		Model(quiz).
		Select("title", "instructions", "pass_score").
		Updates(quiz).Error
}

func (r *QuizRepository) Delete(ctx context.Context, id uint) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		submissionIDs := tx.Model(&model.Submission{}).Select("id").Where("quiz_id = ?", id)
		questionIDs := tx.Model(&model.Question{}).Select("id").Where("quiz_id = ?", id)

		if err := tx.Where("submission_id IN (?)", submissionIDs).Delete(&model.SubmissionAnswer{}).Error; err != nil {
			return err
		}
		if err := tx.Where("quiz_id = ?", id).Delete(&model.Submission{}).Error; err != nil {
			return err
		}
		if err := tx.Where("question_id IN (?)", questionIDs).Delete(&model.Answer{}).Error; err != nil {
			return err
		}
		if err := tx.Where("quiz_id = ?", id).Delete(&model.Question{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Quiz{}, id).Error
	})
}

func (r *QuizRepository) FindByID(ctx context.Context, id uint) (*model.Quiz, error) {
	var quiz model.Quiz
	err := r.DB.WithContext(ctx).First(&quiz, id).Error
	return &quiz, err
}

// FindWithQuestions loads the quiz with ordered questions and their answers.
func (r *QuizRepository) FindWithQuestions(ctx context.Context, id uint) (*model.Quiz, error) {
	var quiz model.Quiz
	err := r.DB.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order") }).
		Preload("Questions.Answers", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&quiz, id).Error
	return &quiz, err
}

func (r *QuizRepository) ListByCourse(ctx context.Context, courseID uint) ([]model.Quiz, error) {
	var quizzes []model.Quiz
	err := r.DB.WithContext(ctx).Where("course_id = ?", courseID).Order("id").Find(&quizzes).Error
	return quizzes, err
}

func (r *QuizRepository) CreateQuestion(ctx context.Context, q *model.Question) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Answers").Create(q).Error; err != nil {
			return err
		}
		return recountQuestions(tx, q.QuizID)
	})
}

func (r *QuizRepository) UpdateQuestion(ctx context.Context, q *model.Question) error {
	return r.DB.WithContext(ctx).
		Model(q).
		Select("text", "points", "sort_order").
		Updates(q).Error
}

func (r *QuizRepository) DeleteQuestion(ctx context.Context, q *model.Question) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("question_id = ?", q.ID).Delete(&model.SubmissionAnswer{}).Error; err != nil {
			return err
		}
		if err := tx.Where("question_id = ?", q.ID).Delete(&model.Answer{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&model.Question{}, q.ID).Error; err != nil {
			return err
		}
		return recountQuestions(tx, q.QuizID)
	})
}

func (r *QuizRepository) FindQuestion(ctx context.Context, id uint) (*model.Question, error) {
	var q model.Question
	err := r.DB.WithContext(ctx).Preload("Quiz").First(&q, id).Error
	return &q, err
}

func (r *QuizRepository) QuestionOrderTaken(ctx context.Context, quizID uint, order int, exceptID uint) (bool, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&model.Question{}).
		Where("quiz_id = ? AND sort_order = ? AND id <> ?", quizID, order, exceptID).
		Count(&n).Error
	return n > 0, err
}

func (r *QuizRepository) CreateAnswer(ctx context.Context, a *model.Answer) error {
	return r.DB.WithContext(ctx).Create(a).Error
}

func (r *QuizRepository) UpdateAnswer(ctx context.Context, a *model.Answer) error {
	return r.DB.WithContext(ctx).Model(a).Select("text", "is_correct").Updates(a).Error
}

func (r *QuizRepository) DeleteAnswer(ctx context.Context, id uint) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("answer_id = ?", id).Delete(&model.SubmissionAnswer{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Answer{}, id).Error
	})
}

// FindAnswer loads the answer together with its question and quiz, which
// callers need to reach the owning course.
func (r *QuizRepository) FindAnswer(ctx context.Context, id uint) (*model.Answer, error) {
	var a model.Answer
	err := r.DB.WithContext(ctx).Preload("Question.Quiz").First(&a, id).Error
	return &a, err
}

// SaveSubmission upserts the single submission for (enrollment, quiz) and
// replaces its answers, all in one transaction.
func (r *QuizRepository) SaveSubmission(ctx context.Context, sub *model.Submission, answers []model.SubmissionAnswer) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "enrollment_id"}, {Name: "quiz_id"}},
			DoNothing: true,
		}).Create(&model.Submission{
			EnrollmentID: sub.EnrollmentID,
			QuizID:       sub.QuizID,
			StudentID:    sub.StudentID,
			Status:       model.SubmissionInProgress,
		}).Error
		if err != nil {
			return err
		}

		var existing model.Submission
		if err := tx.Where("enrollment_id = ? AND quiz_id = ?", sub.EnrollmentID, sub.QuizID).First(&existing).Error; err != nil {
			return err
		}

		sub.ID = existing.ID
		sub.CreatedAt = existing.CreatedAt
		if err := tx.Model(&existing).
			Select("score", "max_score", "percent", "passed", "status", "selections", "submitted_at", "student_id").
			Updates(sub).Error; err != nil {
			return err
		}

		if err := tx.Where("submission_id = ?", sub.ID).Delete(&model.SubmissionAnswer{}).Error; err != nil {
			return err
		}
		for i := range answers {
			answers[i].SubmissionID = sub.ID
		}
		if len(answers) > 0 {
			if err := tx.Create(&answers).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *QuizRepository) FindSubmission(ctx context.Context, enrollmentID, quizID uint) (*model.Submission, error) {
	var sub model.Submission
	err := r.DB.WithContext(ctx).Where("enrollment_id = ? AND quiz_id = ?", enrollmentID, quizID).First(&sub).Error
	return &sub, err
}

// PassedCounts returns the number of passed submissions per enrollment.
func (r *QuizRepository) PassedCounts(ctx context.Context, enrollmentIDs []uint) (map[uint]int64, error) {
	counts := make(map[uint]int64, len(enrollmentIDs))
	if len(enrollmentIDs) == 0 {
		return counts, nil
	}
	var rows []struct {
		EnrollmentID uint
		Count        int64
	}
	err := r.DB.WithContext(ctx).Model(&model.Submission{}).
		Select("enrollment_id, COUNT(*) AS count").
		Where("enrollment_id IN ? AND passed = ?", enrollmentIDs, true).
		Group("enrollment_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.EnrollmentID] = row.Count
	}
	return counts, nil
}

func (r *QuizRepository) RecountAll(ctx context.Context) (int64, error) {
	res := r.DB.WithContext(ctx).Model(&model.Quiz{}).
		Where("1 = 1").
		UpdateColumn("total_questions", gorm.Expr("(SELECT COUNT(*) FROM questions WHERE questions.quiz_id = quizzes.id)"))
	return res.RowsAffected, res.Error
}
