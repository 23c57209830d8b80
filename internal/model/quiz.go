package model

import (
	"time"

	"gorm.io/datatypes"
)

// swagger:model Quiz
type Quiz struct {
	BaseModel
	CourseID     uint    `gorm:"not null;index" json:"courseId"`
	Course       *Course `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"-"`
	Title        string  `gorm:"size:200;not null" json:"title"`
	Instructions string  `gorm:"type:text" json:"instructions"`
	// PassScore is a percentage of the total achievable points (0-100).
	PassScore      int        `gorm:"default:0" json:"passScore"`
	TotalQuestions int        `gorm:"default:0" json:"totalQuestions"`
	Questions      []Question `gorm:"foreignKey:QuizID" json:"questions,omitempty"`
}

func (Quiz) TableName() string {
	return "quizzes"
}

// swagger:model Question
type Question struct {
	BaseModel
	QuizID  uint     `gorm:"not null;uniqueIndex:idx_question_quiz_order" json:"quizId"`
	Quiz    *Quiz    `gorm:"foreignKey:QuizID;constraint:OnDelete:CASCADE" json:"-"`
	Text    string   `gorm:"type:text;not null" json:"text"`
	Points  int      `gorm:"not null;default:1" json:"points"`
	Order   int      `gorm:"column:sort_order;not null;default:1;uniqueIndex:idx_question_quiz_order" json:"order"`
	Answers []Answer `gorm:"foreignKey:QuestionID" json:"answers,omitempty"`
}

func (Question) TableName() string {
	return "questions"
}

// swagger:model Answer
type Answer struct {
	BaseModel
	QuestionID uint      `gorm:"not null;index" json:"questionId"`
	Question   *Question `gorm:"foreignKey:QuestionID;constraint:OnDelete:CASCADE" json:"-"`
	Text       string    `gorm:"size:500;not null" json:"text"`
	IsCorrect  bool      `gorm:"default:false" json:"isCorrect"`
}

func (Answer) TableName() string {
	return "answers"
}

type SubmissionStatus string

const (
	SubmissionInProgress SubmissionStatus = "in_progress"
	SubmissionSubmitted  SubmissionStatus = "submitted"
)

// swagger:model Submission
type Submission struct {
	BaseModel
	EnrollmentID uint              `gorm:"not null;uniqueIndex:idx_submission_enrollment_quiz" json:"enrollmentId"`
	Enrollment   *Enrollment       `gorm:"foreignKey:EnrollmentID;constraint:OnDelete:CASCADE" json:"-"`
	QuizID       uint              `gorm:"not null;uniqueIndex:idx_submission_enrollment_quiz;index" json:"quizId"`
	Quiz         *Quiz             `gorm:"foreignKey:QuizID;constraint:OnDelete:CASCADE" json:"-"`
	StudentID    uint              `gorm:"not null;index" json:"studentId"`
	Score        int               `gorm:"default:0" json:"score"`
	MaxScore     int               `gorm:"default:0" json:"maxScore"`
	Percent      float64           `gorm:"type:decimal(6,2);default:0" json:"percent"`
	Passed       bool              `gorm:"default:false" json:"passed"`
	Status       SubmissionStatus  `gorm:"size:20;not null;default:'in_progress'" json:"status"`
	Selections   datatypes.JSONMap `json:"selections"`
	SubmittedAt  *time.Time        `json:"submittedAt"`
}

func (Submission) TableName() string {
	return "submissions"
}

type SubmissionAnswer struct {
	BaseModel
	SubmissionID uint        `gorm:"not null;uniqueIndex:idx_subanswer_submission_question" json:"submissionId"`
	Submission   *Submission `gorm:"foreignKey:SubmissionID;constraint:OnDelete:CASCADE" json:"-"`
	QuestionID   uint        `gorm:"not null;uniqueIndex:idx_subanswer_submission_question" json:"questionId"`
	AnswerID     uint        `gorm:"not null" json:"answerId"`
}

func (SubmissionAnswer) TableName() string {
	return "submission_answers"
}
