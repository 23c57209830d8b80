package service

import (
	"testing"

	"intellearn_backend/internal/model"
	"intellearn_backend/internal/testutil"
	"intellearn_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressPercentage(t *testing.T) {
	f := newFixture(t)
	student := testutil.CreateUser(t, f.db, model.Student)
	course := testutil.CreateCourse(t, f.db, nil, 0)
	lessons := testutil.CreateLessons(t, f.db, course, 4)
	enrollment := testutil.Enroll(t, f.db, student, course)

	pct, err := f.progress.Percentage(f.ctx, enrollment)
	require.NoError(t, err)
	assert.Zero(t, pct)

	p, err := f.progress.MarkComplete(f.ctx, student.ID, lessons[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 25.0, p.Percent)

	// Completing the same lesson again changes nothing.
	p, err = f.progress.MarkComplete(f.ctx, student.ID, lessons[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 25.0, p.Percent)
	assert.Equal(t, 1, p.Done)

	for _, l := range lessons[1:] {
		p, err = f.progress.MarkComplete(f.ctx, student.ID, l.ID)
		require.NoError(t, err)
	}
	assert.Equal(t, 100.0, p.Percent)
	assert.Equal(t, 4, p.Total)

	p, err = f.progress.UnmarkComplete(f.ctx, student.ID, lessons[2].ID)
	require.NoError(t, err)
	assert.Equal(t, 75.0, p.Percent)
	assert.ElementsMatch(t, []uint{lessons[0].ID, lessons[1].ID, lessons[3].ID}, p.CompletedLessonIDs)
}

func TestProgressFollowsLessonDeletion(t *testing.T) {
	f := newFixture(t)
	instructor := testutil.CreateUser(t, f.db, model.Instructor)
	student := testutil.CreateUser(t, f.db, model.Student)
	course := testutil.CreateCourse(t, f.db, instructor, 0)
	lessons := testutil.CreateLessons(t, f.db, course, 3)
	testutil.Enroll(t, f.db, student, course)

	_, err := f.progress.MarkComplete(f.ctx, student.ID, lessons[0].ID)
	require.NoError(t, err)
	require.NoError(t, f.lessons.Delete(f.ctx, actorOf(instructor), lessons[2].ID))

	p, err := f.progress.CourseProgress(f.ctx, student.ID, course.ID)
	require.NoError(t, err)
	assert.Equal(t, 50.0, p.Percent)
}

func TestProgressEmptyCourse(t *testing.T) {
	f := newFixture(t)
	student := testutil.CreateUser(t, f.db, model.Student)
	course := testutil.CreateCourse(t, f.db, nil, 0)
	testutil.Enroll(t, f.db, student, course)

	p, err := f.progress.CourseProgress(f.ctx, student.ID, course.ID)
	require.NoError(t, err)
	assert.Zero(t, p.Percent)
	assert.Zero(t, p.Total)
	assert.Empty(t, p.CompletedLessonIDs)
}

func TestProgressRequiresEnrollment(t *testing.T) {
	f := newFixture(t)
	student := testutil.CreateUser(t, f.db, model.Student)
	course := testutil.CreateCourse(t, f.db, nil, 0)
	lessons := testutil.CreateLessons(t, f.db, course, 1)

	_, err := f.progress.MarkComplete(f.ctx, student.ID, lessons[0].ID)
	assert.ErrorIs(t, err, util.ErrNotEnrolled)

	_, err = f.progress.MarkComplete(f.ctx, student.ID, 424242)
	assert.ErrorIs(t, err, util.ErrNotFound)

	_, err = f.progress.CourseProgress(f.ctx, student.ID, course.ID)
	assert.ErrorIs(t, err, util.ErrNotEnrolled)
}

func TestMyProgress(t *testing.T) {
	f := newFixture(t)
	student := testutil.CreateUser(t, f.db, model.Student)
	c1 := testutil.CreateCourse(t, f.db, nil, 0)
	c2 := testutil.CreateCourse(t, f.db, nil, 0)
	l1 := testutil.CreateLessons(t, f.db, c1, 2)
	testutil.CreateLessons(t, f.db, c2, 1)
	testutil.Enroll(t, f.db, student, c1)
	testutil.Enroll(t, f.db, student, c2)

	_, err := f.progress.MarkComplete(f.ctx, student.ID, l1[1].ID)
	require.NoError(t, err)

	all, err := f.progress.MyProgress(f.ctx, student.ID)
	require.NoError(t, err)
	require.Len(t, all, 2)

	byCourse := map[uint]CourseProgress{}
	for _, p := range all {
		byCourse[p.CourseID] = p
	}
	assert.Equal(t, 50.0, byCourse[c1.ID].Percent)
	assert.Equal(t, c1.Title, byCourse[c1.ID].CourseTitle)
	assert.Zero(t, byCourse[c2.ID].Percent)
}
