package service

import (
	"intellearn_backend/internal/model"
	"intellearn_backend/internal/util"
)

// QuizKey is the answer key of a quiz, detached from persistence.
type QuizKey struct {
	PassScore int
	Questions []QuestionKey
}

type QuestionKey struct {
	ID     uint
	Points int
	// Answers maps every answer id of this question to its is-correct flag.
	Answers map[uint]bool
}

type GradeResult struct {
	Score    int     `json:"score"`
	MaxScore int     `json:"maxScore"`
	Percent  float64 `json:"percent"`
	Passed   bool    `json:"passed"`
}

// NewQuizKey builds a key from a quiz loaded with questions and answers.
func NewQuizKey(quiz *model.Quiz) QuizKey {
	key := QuizKey{PassScore: quiz.PassScore, Questions: make([]QuestionKey, 0, len(quiz.Questions))}
	for _, q := range quiz.Questions {
		qk := QuestionKey{ID: q.ID, Points: q.Points, Answers: make(map[uint]bool, len(q.Answers))}
		for _, a := range q.Answers {
			qk.Answers[a.ID] = a.IsCorrect
		}
		key.Questions = append(key.Questions, qk)
	}
	return key
}

// Grade scores selections (question id -> answer id) against the key. A question
// earns its points only when the chosen answer belongs to it and is correct; a
// missing, unknown or foreign answer earns nothing. Pass is decided on the
// percentage of the achievable points.
func Grade(key QuizKey, selections map[uint]uint) GradeResult {
	var res GradeResult
	for _, q := range key.Questions {
		res.MaxScore += q.Points
		answerID, ok := selections[q.ID]
		if !ok {
			continue
		}
		if q.Answers[answerID] {
			res.Score += q.Points
		}
	}

	if res.MaxScore > 0 {
		res.Percent = util.Round2(float64(res.Score) * 100 / float64(res.MaxScore))
	}
	res.Passed = res.Percent >= float64(key.PassScore)
	return res
}
