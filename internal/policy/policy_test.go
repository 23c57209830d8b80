package policy

import (
	"testing"

	"intellearn_backend/internal/model"

	"github.com/stretchr/testify/assert"
)

func courseOwnedBy(id uint) *model.Course {
	return &model.Course{InstructorID: &id}
}

func TestDecide(t *testing.T) {
	student := &Actor{ID: 1, Role: model.Student}
	owner := &Actor{ID: 2, Role: model.Instructor}
	otherInstructor := &Actor{ID: 3, Role: model.Instructor}
	staff := &Actor{ID: 4, Role: model.Student, IsStaff: true}
	super := &Actor{ID: 5, Role: model.Student, IsSuperuser: true}
	course := courseOwnedBy(2)

	tests := []struct {
		name    string
		actor   *Actor
		action  Action
		res     Resource
		allowed bool
	}{
		{"anonymous denied", nil, ViewContent, Resource{Course: course}, false},
		{"student cannot create course", student, CreateCourse, Resource{}, false},
		{"instructor creates course", otherInstructor, CreateCourse, Resource{}, true},
		{"superuser creates course", super, CreateCourse, Resource{}, true},
		{"owner manages course", owner, ManageCourse, Resource{Course: course}, true},
		{"other instructor cannot manage", otherInstructor, ManageCourse, Resource{Course: course}, false},
		{"superuser manages any course", super, ManageCourse, Resource{Course: course}, true},
		{"unpaid student cannot view", student, ViewContent, Resource{Course: course}, false},
		{"paid student views", student, ViewContent, Resource{Course: course, HasPaid: true}, true},
		{"owner implicitly paid", owner, ViewContent, Resource{Course: course}, true},
		{"superuser implicitly paid", super, ViewContent, Resource{Course: course}, true},
		{"staff without payment cannot view", staff, ViewContent, Resource{Course: course}, false},
		{"staff confirms payment", staff, ConfirmPayment, Resource{}, true},
		{"student cannot confirm", student, ConfirmPayment, Resource{}, false},
		{"instructor cannot list all payments", owner, ViewAllPayments, Resource{}, false},
		{"student has no instructor dashboard", student, ViewInstructorDashboard, Resource{}, false},
		{"course without instructor is unmanaged", otherInstructor, ManageCourse, Resource{Course: &model.Course{}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.actor, tt.action, tt.res)
			assert.Equal(t, tt.allowed, d.Allowed)
			if !d.Allowed {
				assert.NotEmpty(t, d.Reason)
			}
		})
	}
}
