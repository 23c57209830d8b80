// Package policy decides who may do what. Every authorization rule in the
// application is evaluated here, so controllers ask once per request and map a
// denial to 403.
package policy

import "intellearn_backend/internal/model"

type Action string

const (
	CreateCourse            Action = "create_course"
	ManageCourse            Action = "manage_course"
	ViewContent             Action = "view_content"
	ConfirmPayment          Action = "confirm_payment"
	ViewAllPayments         Action = "view_all_payments"
	ViewInstructorDashboard Action = "view_instructor_dashboard"
)

// Actor is the authenticated user as seen by the policy.
type Actor struct {
	ID          uint
	Role        model.UserRole
	IsStaff     bool
	IsSuperuser bool
}

func (a *Actor) isInstructor() bool {
	return a != nil && (a.Role == model.Instructor || a.IsSuperuser)
}

// Resource is what the action targets. Course is nil for actions that are not
// course-scoped. HasPaid is the caller's lookup of a paid Payment or an
// enrollment for the actor in Course.
type Resource struct {
	Course  *model.Course
	HasPaid bool
}

type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason string) Decision { return Decision{Reason: reason} }

func Decide(actor *Actor, action Action, res Resource) Decision {
	if actor == nil {
		return deny("authentication required")
	}

	switch action {
	case CreateCourse, ViewInstructorDashboard:
		if actor.isInstructor() {
			return allow()
		}
		return deny("instructor role required")

	case ManageCourse:
		if res.Course == nil {
			return deny("course required")
		}
		if actor.IsSuperuser || res.Course.IsOwnedBy(actor.ID) {
			return allow()
		}
		return deny("only the course instructor may change this course")

	case ViewContent:
		if res.Course == nil {
			return deny("course required")
		}
		if IsImplicitlyPaid(actor, res.Course) || res.HasPaid {
			return allow()
		}
		return deny("enroll or pay for this course first")

	case ConfirmPayment, ViewAllPayments:
		if actor.IsStaff || actor.IsSuperuser {
			return allow()
		}
		return deny("staff only")
	}

	return deny("unknown action")
}

// IsImplicitlyPaid holds for the course instructor and superusers, who never
// need a Payment row to see content.
func IsImplicitlyPaid(actor *Actor, course *model.Course) bool {
	if actor == nil || course == nil {
		return false
	}
	return actor.IsSuperuser || course.IsOwnedBy(actor.ID)
}
