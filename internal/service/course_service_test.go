package service

import (
	"testing"

	"intellearn_backend/internal/model"
	"intellearn_backend/internal/repository"
	"intellearn_backend/internal/testutil"
	"intellearn_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCourseRequiresInstructor(t *testing.T) {
	f := newFixture(t)
	student := testutil.CreateUser(t, f.db, model.Student)
	instructor := testutil.CreateUser(t, f.db, model.Instructor)

	_, err := f.courses.Create(f.ctx, actorOf(student), CourseInput{Title: "Go"})
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	_, err = f.courses.Create(f.ctx, actorOf(instructor), CourseInput{Title: "Go", Price: -1})
	var ve *util.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "price")

	c, err := f.courses.Create(f.ctx, actorOf(instructor), CourseInput{Title: "  Go  ", Price: 19.999})
	require.NoError(t, err)
	assert.Equal(t, "Go", c.Title)
	assert.Equal(t, 20.0, c.Price)
	assert.True(t, c.IsOwnedBy(instructor.ID))
}

func TestOnlyOwnerOrSuperuserManagesCourse(t *testing.T) {
	f := newFixture(t)
	owner := testutil.CreateUser(t, f.db, model.Instructor)
	other := testutil.CreateUser(t, f.db, model.Instructor)
	admin := testutil.CreateUser(t, f.db, model.Instructor, func(u *model.User) { u.IsSuperuser = true; u.IsStaff = true })
	course := testutil.CreateCourse(t, f.db, owner, 10)

	_, err := f.courses.Update(f.ctx, actorOf(other), course.ID, CourseInput{Title: "Hijack"})
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	updated, err := f.courses.Update(f.ctx, actorOf(admin), course.ID, CourseInput{Title: "Renamed", Price: 15})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)

	assert.ErrorIs(t, f.courses.Delete(f.ctx, actorOf(other), course.ID), util.ErrPermissionDenied)
	require.NoError(t, f.courses.Delete(f.ctx, actorOf(owner), course.ID))
	assert.ErrorIs(t, f.courses.Delete(f.ctx, actorOf(owner), course.ID), util.ErrNotFound)
}

func TestCourseListAndSearch(t *testing.T) {
	f := newFixture(t)
	instructor := testutil.CreateUser(t, f.db, model.Instructor, func(u *model.User) { u.Name = "Ada Lovelace" })
	_, err := f.courses.Create(f.ctx, actorOf(instructor), CourseInput{Title: "Analytical Engines", Description: "gears"})
	require.NoError(t, err)
	c2 := testutil.CreateCourse(t, f.db, nil, 0)
	testutil.CreateLessons(t, f.db, c2, 2)
	student := testutil.CreateUser(t, f.db, model.Student)
	testutil.Enroll(t, f.db, student, c2)

	items, total, err := f.courses.List(f.ctx, repository.CourseQuery{Search: "lovelace", Field: repository.SearchInstructor})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "Analytical Engines", items[0].Title)

	items, total, err = f.courses.List(f.ctx, repository.CourseQuery{Search: c2.Title, Field: repository.SearchTitle})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	assert.Equal(t, 2, items[0].LessonCount)
	assert.Equal(t, int64(1), items[0].StudentCount)

	_, _, err = f.courses.List(f.ctx, repository.CourseQuery{Field: "price"})
	assert.True(t, util.IsValidation(err))
}

func TestCourseDetail(t *testing.T) {
	f := newFixture(t)
	instructor := testutil.CreateUser(t, f.db, model.Instructor)
	student := testutil.CreateUser(t, f.db, model.Student)
	course := testutil.CreateCourse(t, f.db, instructor, 40)
	testutil.CreateLessons(t, f.db, course, 3)

	anon, err := f.courses.Detail(f.ctx, nil, course.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, anon.LessonCount)
	assert.False(t, anon.IsPaid)
	assert.Nil(t, anon.Progress)

	d, err := f.courses.Detail(f.ctx, actorOf(student), course.ID)
	require.NoError(t, err)
	assert.False(t, d.IsPaid)
	assert.False(t, d.CanManage)

	testutil.CreatePayment(t, f.db, student, course, model.MethodCreditCard, model.PaymentPaid)
	testutil.Enroll(t, f.db, student, course)
	d, err = f.courses.Detail(f.ctx, actorOf(student), course.ID)
	require.NoError(t, err)
	assert.True(t, d.IsPaid)
	require.NotNil(t, d.Progress)
	assert.Equal(t, 3, d.Progress.Total)

	d, err = f.courses.Detail(f.ctx, actorOf(instructor), course.ID)
	require.NoError(t, err)
	assert.True(t, d.IsPaid)
	assert.True(t, d.CanManage)

	_, err = f.courses.Detail(f.ctx, nil, 999)
	assert.ErrorIs(t, err, util.ErrNotFound)
}

func TestEnrollFree(t *testing.T) {
	f := newFixture(t)
	instructor := testutil.CreateUser(t, f.db, model.Instructor)
	student := testutil.CreateUser(t, f.db, model.Student)
	free := testutil.CreateCourse(t, f.db, instructor, 0)
	paid := testutil.CreateCourse(t, f.db, instructor, 99)

	_, _, err := f.enrollments.EnrollFree(f.ctx, actorOf(student), paid.ID)
	assert.ErrorIs(t, err, util.ErrPaymentRequired)

	e1, created, err := f.enrollments.EnrollFree(f.ctx, actorOf(student), free.ID)
	require.NoError(t, err)
	assert.True(t, created)
	e2, created, err := f.enrollments.EnrollFree(f.ctx, actorOf(student), free.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, e1.ID, e2.ID)
	assert.Equal(t, 1, f.mailer.count())

	_, created, err = f.enrollments.EnrollFree(f.ctx, actorOf(instructor), paid.ID)
	require.NoError(t, err, "instructors enroll in their own courses for free")
	assert.True(t, created)
}

func TestLessonLifecycle(t *testing.T) {
	f := newFixture(t)
	instructor := testutil.CreateUser(t, f.db, model.Instructor)
	student := testutil.CreateUser(t, f.db, model.Student)
	course := testutil.CreateCourse(t, f.db, instructor, 25)
	owner := actorOf(instructor)

	l1, err := f.lessons.Create(f.ctx, owner, course.ID, LessonInput{Title: "Intro", Order: 1})
	require.NoError(t, err)
	_, err = f.lessons.Create(f.ctx, owner, course.ID, LessonInput{Title: "Again", Order: 1})
	assert.ErrorIs(t, err, util.ErrDuplicateOrder)
	_, err = f.lessons.Create(f.ctx, owner, course.ID, LessonInput{Title: "Zero", Order: 0})
	assert.True(t, util.IsValidation(err))
	l2, err := f.lessons.Create(f.ctx, owner, course.ID, LessonInput{Title: "Next", Order: 2})
	require.NoError(t, err)

	_, err = f.lessons.Create(f.ctx, actorOf(student), course.ID, LessonInput{Title: "Mine", Order: 3})
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	_, err = f.lessons.Update(f.ctx, owner, l2.ID, LessonInput{Title: "Next", Order: 1})
	assert.ErrorIs(t, err, util.ErrDuplicateOrder)
	_, err = f.lessons.Update(f.ctx, owner, l2.ID, LessonInput{Title: "Next", Order: 2, Content: "body"})
	require.NoError(t, err, "keeping its own order is fine")

	_, err = f.lessons.Get(f.ctx, actorOf(student), l1.ID)
	assert.ErrorIs(t, err, util.ErrPermissionDenied, "unpaid students cannot read lessons")

	testutil.CreatePayment(t, f.db, student, course, model.MethodCreditCard, model.PaymentPaid)
	lessons, err := f.lessons.ListByCourse(f.ctx, actorOf(student), course.ID)
	require.NoError(t, err)
	require.Len(t, lessons, 2)
	assert.Equal(t, "Intro", lessons[0].Title)

	require.NoError(t, f.lessons.Delete(f.ctx, owner, l1.ID))
	var reloaded model.Course
	require.NoError(t, f.db.First(&reloaded, course.ID).Error)
	assert.Equal(t, 1, reloaded.TotalLessons)
}

func TestUploadLessonVideo(t *testing.T) {
	f := newFixture(t)
	instructor := testutil.CreateUser(t, f.db, model.Instructor)
	course := testutil.CreateCourse(t, f.db, instructor, 0)
	lesson := testutil.CreateLessons(t, f.db, course, 1)[0]

	_, err := f.lessons.UploadVideo(f.ctx, actorOf(instructor), lesson.ID, multipartFile(t, "video", "notes.txt", []byte("hi")))
	assert.True(t, util.IsValidation(err))

	updated, err := f.lessons.UploadVideo(f.ctx, actorOf(instructor), lesson.ID, multipartFile(t, "video", "clip.mp4", []byte("not really a video")))
	require.NoError(t, err)
	assert.Contains(t, updated.VideoURL, "/uploads/"+util.LessonVideoDir+"/")
}

func TestDashboards(t *testing.T) {
	f := newFixture(t)
	instructor := testutil.CreateUser(t, f.db, model.Instructor)
	student := testutil.CreateUser(t, f.db, model.Student)
	course := testutil.CreateCourse(t, f.db, instructor, 50)
	lessons := testutil.CreateLessons(t, f.db, course, 2)
	quiz := testutil.CreateQuiz(t, f.db, course, 50, testutil.QuestionSpec{Points: 1, Answers: []string{"x", "y"}, Correct: 0})

	_, err := f.payments.Checkout(f.ctx, actorOf(student), course.ID, CheckoutInput{
		Method: model.MethodCreditCard, CardHolder: "S", CardNumber: "4242424242424242", Expiration: "01/30", CVV: "123",
	})
	require.NoError(t, err)
	_, err = f.progress.MarkComplete(f.ctx, student.ID, lessons[0].ID)
	require.NoError(t, err)
	_, _, err = f.quizzes.Submit(f.ctx, actorOf(student), quiz.ID, map[uint]uint{quiz.Questions[0].ID: quiz.Questions[0].Answers[0].ID})
	require.NoError(t, err)

	_, err = f.dashboard.Instructor(f.ctx, actorOf(student))
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	inst, err := f.dashboard.Instructor(f.ctx, actorOf(instructor))
	require.NoError(t, err)
	require.Len(t, inst.Courses, 1)
	assert.Equal(t, int64(1), inst.TotalStudents)
	assert.Equal(t, 50.0, inst.TotalRevenue)
	assert.Equal(t, 2, inst.Courses[0].TotalLessons)

	stu, err := f.dashboard.Student(f.ctx, actorOf(student))
	require.NoError(t, err)
	require.Len(t, stu.Courses, 1)
	assert.Equal(t, 50.0, stu.Courses[0].Percent)
	assert.Equal(t, int64(1), stu.Courses[0].QuizzesPassed)
	assert.Zero(t, stu.CompletedCount)
}

func TestRecountAll(t *testing.T) {
	f := newFixture(t)
	course := testutil.CreateCourse(t, f.db, nil, 0)
	testutil.CreateLessons(t, f.db, course, 3)
	quiz := testutil.CreateQuiz(t, f.db, course, 0, testutil.QuestionSpec{Points: 1, Answers: []string{"a"}})

	require.NoError(t, f.db.Model(&model.Course{}).Where("id = ?", course.ID).UpdateColumn("total_lessons", 99).Error)
	require.NoError(t, f.db.Model(&model.Quiz{}).Where("id = ?", quiz.ID).UpdateColumn("total_questions", 7).Error)

	require.NoError(t, RecountAll(f.ctx, f.lessonRepo, f.quizRepo))

	var c model.Course
	require.NoError(t, f.db.First(&c, course.ID).Error)
	assert.Equal(t, 3, c.TotalLessons)
	var q model.Quiz
	require.NoError(t, f.db.First(&q, quiz.ID).Error)
	assert.Equal(t, 1, q.TotalQuestions)
}
