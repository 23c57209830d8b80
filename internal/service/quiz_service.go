package service

import (
	"context"
	"errors"
	"intellearn_backend/internal/model"
	"intellearn_backend/internal/policy"
	"intellearn_backend/internal/repository"
	"intellearn_backend/internal/util"
	"intellearn_backend/pkg/logger"
	"intellearn_backend/pkg/monitoring"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type QuizService struct {
	QuizRepo       *repository.QuizRepository
	CourseRepo     *repository.CourseRepository
	EnrollmentRepo *repository.EnrollmentRepository
	Access         *Access
}

func NewQuizService(quizRepo *repository.QuizRepository, courseRepo *repository.CourseRepository, enrollmentRepo *repository.EnrollmentRepository, access *Access) *QuizService {
	return &QuizService{
		QuizRepo:       quizRepo,
		CourseRepo:     courseRepo,
		EnrollmentRepo: enrollmentRepo,
		Access:         access,
	}
}

type QuizInput struct {
	Title        string `json:"title" binding:"required,max=200"`
	Instructions string `json:"instructions"`
	PassScore    int    `json:"passScore"`
}

func (in QuizInput) validate() error {
	v := util.NewValidationError()
	if strings.TrimSpace(in.Title) == "" {
		v.Add("title", "is required")
	}
	if in.PassScore < 0 || in.PassScore > 100 {
		v.Add("passScore", "must be a percentage between 0 and 100")
	}
	return v.OrNil()
}

type QuestionInput struct {
	Text   string `json:"text" binding:"required"`
	Points int    `json:"points"`
	Order  int    `json:"order"`
}

func (in QuestionInput) validate() error {
	v := util.NewValidationError()
	if strings.TrimSpace(in.Text) == "" {
		v.Add("text", "is required")
	}
	if in.Points <= 0 {
		v.Add("points", "must be greater than 0")
	}
	if in.Order <= 0 {
		v.Add("order", "must be greater than 0")
	}
	return v.OrNil()
}

type AnswerInput struct {
	Text      string `json:"text" binding:"required,max=500"`
	IsCorrect bool   `json:"isCorrect"`
}

func (s *QuizService) course(ctx context.Context, id uint) (*model.Course, error) {
	course, err := s.CourseRepo.FindByID(ctx, id)
	return course, notFound(err)
}

// managedQuiz loads a quiz and checks the actor may change its course.
func (s *QuizService) managedQuiz(ctx context.Context, actor *policy.Actor, quizID uint) (*model.Quiz, *model.Course, error) {
	quiz, err := s.QuizRepo.FindByID(ctx, quizID)
	if err != nil {
		return nil, nil, notFound(err)
	}
	course, err := s.course(ctx, quiz.CourseID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.Access.Require(ctx, actor, policy.ManageCourse, course); err != nil {
		return nil, nil, err
	}
	return quiz, course, nil
}

func (s *QuizService) CreateQuiz(ctx context.Context, actor *policy.Actor, courseID uint, in QuizInput) (*model.Quiz, error) {
	course, err := s.course(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := s.Access.Require(ctx, actor, policy.ManageCourse, course); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	quiz := &model.Quiz{
		CourseID:     course.ID,
		Title:        strings.TrimSpace(in.Title),
		Instructions: in.Instructions,
		PassScore:    in.PassScore,
	}
	if err := s.QuizRepo.Create(ctx, quiz); err != nil {
		return nil, err
	}
	return quiz, nil
}

func (s *QuizService) UpdateQuiz(ctx context.Context, actor *policy.Actor, quizID uint, in QuizInput) (*model.Quiz, error) {
	quiz, _, err := s.managedQuiz(ctx, actor, quizID)
	if err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	quiz.Title = strings.TrimSpace(in.Title)
	quiz.Instructions = in.Instructions
	quiz.PassScore = in.PassScore
	if err := s.QuizRepo.Update(ctx, quiz); err != nil {
		return nil, err
	}
	return quiz, nil
}

func (s *QuizService) DeleteQuiz(ctx context.Context, actor *policy.Actor, quizID uint) error {
	quiz, _, err := s.managedQuiz(ctx, actor, quizID)
	if err != nil {
		return err
	}
	return s.QuizRepo.Delete(ctx, quiz.ID)
}

func (s *QuizService) ListByCourse(ctx context.Context, actor *policy.Actor, courseID uint) ([]model.Quiz, error) {
	course, err := s.course(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := s.Access.Require(ctx, actor, policy.ViewContent, course); err != nil {
		return nil, err
	}
	return s.QuizRepo.ListByCourse(ctx, course.ID)
}

// GetQuiz returns the full quiz, correct answers included, to those who manage the course.
func (s *QuizService) GetQuiz(ctx context.Context, actor *policy.Actor, quizID uint) (*model.Quiz, error) {
	if _, _, err := s.managedQuiz(ctx, actor, quizID); err != nil {
		return nil, err
	}
	quiz, err := s.QuizRepo.FindWithQuestions(ctx, quizID)
	return quiz, notFound(err)
}

type TakeAnswer struct {
	ID   uint   `json:"id"`
	Text string `json:"text"`
}

type TakeQuestion struct {
	ID      uint         `json:"id"`
	Text    string       `json:"text"`
	Points  int          `json:"points"`
	Order   int          `json:"order"`
	Answers []TakeAnswer `json:"answers"`
}

// TakeView is a quiz as shown to a student: no correctness flags.
type TakeView struct {
	ID           uint              `json:"id"`
	CourseID     uint              `json:"courseId"`
	Title        string            `json:"title"`
	Instructions string            `json:"instructions"`
	PassScore    int               `json:"passScore"`
	Questions    []TakeQuestion    `json:"questions"`
	Submission   *model.Submission `json:"submission,omitempty"`
}

// enrolledQuiz loads the quiz with its key and the actor's enrollment in its course.
func (s *QuizService) enrolledQuiz(ctx context.Context, actor *policy.Actor, quizID uint) (*model.Quiz, *model.Enrollment, error) {
	if actor == nil {
		return nil, nil, util.ErrPermissionDenied
	}
	quiz, err := s.QuizRepo.FindWithQuestions(ctx, quizID)
	if err != nil {
		return nil, nil, notFound(err)
	}
	enrollment, err := s.EnrollmentRepo.Find(ctx, actor.ID, quiz.CourseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, util.ErrNotEnrolled
		}
		return nil, nil, err
	}
	return quiz, enrollment, nil
}

func (s *QuizService) Take(ctx context.Context, actor *policy.Actor, quizID uint) (*TakeView, error) {
	quiz, enrollment, err := s.enrolledQuiz(ctx, actor, quizID)
	if err != nil {
		return nil, err
	}

	view := &TakeView{
		ID:           quiz.ID,
		CourseID:     quiz.CourseID,
		Title:        quiz.Title,
		Instructions: quiz.Instructions,
		PassScore:    quiz.PassScore,
		Questions:    make([]TakeQuestion, 0, len(quiz.Questions)),
	}
	for _, q := range quiz.Questions {
		tq := TakeQuestion{ID: q.ID, Text: q.Text, Points: q.Points, Order: q.Order, Answers: make([]TakeAnswer, 0, len(q.Answers))}
		for _, a := range q.Answers {
			tq.Answers = append(tq.Answers, TakeAnswer{ID: a.ID, Text: a.Text})
		}
		view.Questions = append(view.Questions, tq)
	}

	sub, err := s.QuizRepo.FindSubmission(ctx, enrollment.ID, quiz.ID)
	switch {
	case err == nil:
		view.Submission = sub
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}
	return view, nil
}

// Submit grades selections and stores them as the single submission of this
// enrollment for the quiz, overwriting any earlier attempt.
func (s *QuizService) Submit(ctx context.Context, actor *policy.Actor, quizID uint, selections map[uint]uint) (*model.Submission, GradeResult, error) {
	quiz, enrollment, err := s.enrolledQuiz(ctx, actor, quizID)
	if err != nil {
		return nil, GradeResult{}, err
	}

	result := Grade(NewQuizKey(quiz), selections)

	stored := datatypes.JSONMap{}
	answers := make([]model.SubmissionAnswer, 0, len(selections))
	for _, q := range quiz.Questions {
		answerID, ok := selections[q.ID]
		if !ok {
			continue
		}
		stored[strconv.FormatUint(uint64(q.ID), 10)] = answerID
		if _, belongs := findAnswer(q, answerID); belongs {
			answers = append(answers, model.SubmissionAnswer{QuestionID: q.ID, AnswerID: answerID})
		}
	}

	now := time.Now()
	sub := &model.Submission{
		EnrollmentID: enrollment.ID,
		QuizID:       quiz.ID,
		StudentID:    actor.ID,
		Score:        result.Score,
		MaxScore:     result.MaxScore,
		Percent:      result.Percent,
		Passed:       result.Passed,
		Status:       model.SubmissionSubmitted,
		Selections:   stored,
		SubmittedAt:  &now,
	}
	if err := s.QuizRepo.SaveSubmission(ctx, sub, answers); err != nil {
		return nil, GradeResult{}, err
	}

	monitoring.QuizSubmissions.WithLabelValues(strconv.FormatBool(result.Passed)).Inc()
	logger.Log.Info("Quiz submitted",
		zap.Uint("quiz_id", quiz.ID),
		zap.Uint("student_id", actor.ID),
		zap.Int("score", result.Score),
		zap.Int("max_score", result.MaxScore),
		zap.Bool("passed", result.Passed))
	return sub, result, nil
}

func findAnswer(q model.Question, answerID uint) (model.Answer, bool) {
	for _, a := range q.Answers {
		if a.ID == answerID {
			return a, true
		}
	}
	return model.Answer{}, false
}

func (s *QuizService) checkQuestionOrder(ctx context.Context, quizID uint, order int, exceptID uint) error {
	taken, err := s.QuizRepo.QuestionOrderTaken(ctx, quizID, order, exceptID)
	if err != nil {
		return err
	}
	if taken {
		return util.ErrDuplicateOrder
	}
	return nil
}

func duplicateOrder(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return util.ErrDuplicateOrder
	}
	return err
}

func (s *QuizService) CreateQuestion(ctx context.Context, actor *policy.Actor, quizID uint, in QuestionInput) (*model.Question, error) {
	quiz, _, err := s.managedQuiz(ctx, actor, quizID)
	if err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := s.checkQuestionOrder(ctx, quiz.ID, in.Order, 0); err != nil {
		return nil, err
	}

	q := &model.Question{QuizID: quiz.ID, Text: strings.TrimSpace(in.Text), Points: in.Points, Order: in.Order}
	if err := s.QuizRepo.CreateQuestion(ctx, q); err != nil {
		return nil, duplicateOrder(err)
	}
	return q, nil
}

func (s *QuizService) managedQuestion(ctx context.Context, actor *policy.Actor, questionID uint) (*model.Question, error) {
	q, err := s.QuizRepo.FindQuestion(ctx, questionID)
	if err != nil {
		return nil, notFound(err)
	}
	if _, _, err := s.managedQuiz(ctx, actor, q.QuizID); err != nil {
		return nil, err
	}
	return q, nil
}

func (s *QuizService) UpdateQuestion(ctx context.Context, actor *policy.Actor, questionID uint, in QuestionInput) (*model.Question, error) {
	q, err := s.managedQuestion(ctx, actor, questionID)
	if err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := s.checkQuestionOrder(ctx, q.QuizID, in.Order, q.ID); err != nil {
		return nil, err
	}
	q.Text = strings.TrimSpace(in.Text)
	q.Points = in.Points
	q.Order = in.Order
	if err := s.QuizRepo.UpdateQuestion(ctx, q); err != nil {
		return nil, duplicateOrder(err)
	}
	return q, nil
}

func (s *QuizService) DeleteQuestion(ctx context.Context, actor *policy.Actor, questionID uint) error {
	q, err := s.managedQuestion(ctx, actor, questionID)
	if err != nil {
		return err
	}
	return s.QuizRepo.DeleteQuestion(ctx, q)
}

func (s *QuizService) CreateAnswer(ctx context.Context, actor *policy.Actor, questionID uint, in AnswerInput) (*model.Answer, error) {
	q, err := s.managedQuestion(ctx, actor, questionID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Text) == "" {
		v := util.NewValidationError()
		v.Add("text", "is required")
		return nil, v
	}
	a := &model.Answer{QuestionID: q.ID, Text: strings.TrimSpace(in.Text), IsCorrect: in.IsCorrect}
	if err := s.QuizRepo.CreateAnswer(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *QuizService) managedAnswer(ctx context.Context, actor *policy.Actor, answerID uint) (*model.Answer, error) {
	a, err := s.QuizRepo.FindAnswer(ctx, answerID)
	if err != nil {
		return nil, notFound(err)
	}
	if _, err := s.managedQuestion(ctx, actor, a.QuestionID); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *QuizService) UpdateAnswer(ctx context.Context, actor *policy.Actor, answerID uint, in AnswerInput) (*model.Answer, error) {
	a, err := s.managedAnswer(ctx, actor, answerID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Text) == "" {
		v := util.NewValidationError()
		v.Add("text", "is required")
		return nil, v
	}
	a.Text = strings.TrimSpace(in.Text)
	a.IsCorrect = in.IsCorrect
	a.Question = nil
	if err := s.QuizRepo.UpdateAnswer(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *QuizService) DeleteAnswer(ctx context.Context, actor *policy.Actor, answerID uint) error {
	a, err := s.managedAnswer(ctx, actor, answerID)
	if err != nil {
		return err
	}
	return s.QuizRepo.DeleteAnswer(ctx, a.ID)
}
