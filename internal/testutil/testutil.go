// Package testutil opens throwaway SQLite databases and seeds fixtures for tests.
package testutil

import (
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"intellearn_backend/internal/model"
	"intellearn_backend/pkg/database"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const Password = "secret-password"

var seq atomic.Int64

// NewDB returns a migrated file-backed SQLite database that lives for the test.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "test.db") + "?_foreign_keys=on&_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func next() int64 { return seq.Add(1) }

func CreateUser(t *testing.T, db *gorm.DB, role model.UserRole, mutate ...func(*model.User)) *model.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
	require.NoError(t, err)

	n := next()
	u := &model.User{
		Name:     fmt.Sprintf("%s %d", role, n),
		Email:    fmt.Sprintf("%s%d@example.com", role, n),
		Password: string(hash),
		Role:     role,
	}
	for _, m := range mutate {
		m(u)
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

func CreateCourse(t *testing.T, db *gorm.DB, instructor *model.User, price float64) *model.Course {
	t.Helper()
	c := &model.Course{
		Title:       fmt.Sprintf("Course %d", next()),
		Description: "An introductory course",
		Price:       price,
	}
	if instructor != nil {
		c.InstructorID = &instructor.ID
	}
	require.NoError(t, db.Create(c).Error)
	return c
}

// CreateLessons inserts n lessons ordered 1..n and refreshes the cached total.
func CreateLessons(t *testing.T, db *gorm.DB, course *model.Course, n int) []model.Lesson {
	t.Helper()
	lessons := make([]model.Lesson, 0, n)
	for i := 1; i <= n; i++ {
		l := model.Lesson{CourseID: course.ID, Title: fmt.Sprintf("Lesson %d", i), Order: i}
		require.NoError(t, db.Create(&l).Error)
		lessons = append(lessons, l)
	}
	require.NoError(t, db.Model(course).UpdateColumn("total_lessons", n).Error)
	course.TotalLessons = n
	return lessons
}

func Enroll(t *testing.T, db *gorm.DB, student *model.User, course *model.Course) *model.Enrollment {
	t.Helper()
	e := &model.Enrollment{StudentID: student.ID, CourseID: course.ID, Status: model.EnrollmentActive}
	require.NoError(t, db.Create(e).Error)
	return e
}

func CreatePayment(t *testing.T, db *gorm.DB, student *model.User, course *model.Course, method model.PaymentMethod, status model.PaymentStatus) *model.Payment {
	t.Helper()
	p := &model.Payment{
		StudentID: student.ID,
		CourseID:  course.ID,
		Amount:    course.Price,
		Currency:  "thb",
		Method:    method,
		Status:    status,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

// QuestionSpec describes a question and its answers; Correct indexes into Answers.
type QuestionSpec struct {
	Points  int
	Answers []string
	Correct int
}

func CreateQuiz(t *testing.T, db *gorm.DB, course *model.Course, passScore int, specs ...QuestionSpec) *model.Quiz {
	t.Helper()
	quiz := &model.Quiz{CourseID: course.ID, Title: fmt.Sprintf("Quiz %d", next()), PassScore: passScore}
	require.NoError(t, db.Omit("Questions").Create(quiz).Error)

	for i, spec := range specs {
		q := model.Question{QuizID: quiz.ID, Text: fmt.Sprintf("Question %d", i+1), Points: spec.Points, Order: i + 1}
		require.NoError(t, db.Omit("Answers").Create(&q).Error)
		for j, text := range spec.Answers {
			a := model.Answer{QuestionID: q.ID, Text: text, IsCorrect: j == spec.Correct}
			require.NoError(t, db.Create(&a).Error)
			q.Answers = append(q.Answers, a)
		}
		quiz.Questions = append(quiz.Questions, q)
	}
	require.NoError(t, db.Model(quiz).UpdateColumn("total_questions", len(specs)).Error)
	quiz.TotalQuestions = len(specs)
	return quiz
}
