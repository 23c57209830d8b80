package service

import (
	"context"
	"errors"
	"fmt"
	"intellearn_backend/internal/model"
	"intellearn_backend/internal/policy"
	"intellearn_backend/internal/repository"
	"intellearn_backend/internal/util"

	"gorm.io/gorm"
)

// Access feeds policy.Decide with the facts it needs and turns a denial into
// util.ErrPermissionDenied.
type Access struct {
	EnrollmentRepo *repository.EnrollmentRepository
	PaymentRepo    *repository.PaymentRepository
}

func NewAccess(enrollmentRepo *repository.EnrollmentRepository, paymentRepo *repository.PaymentRepository) *Access {
	return &Access{EnrollmentRepo: enrollmentRepo, PaymentRepo: paymentRepo}
}

// HasPaid is true when the actor holds a paid payment or an enrollment for the course.
func (a *Access) HasPaid(ctx context.Context, actor *policy.Actor, course *model.Course) (bool, error) {
	if actor == nil {
		return false, nil
	}
	paid, err := a.PaymentRepo.HasPaid(ctx, actor.ID, course.ID)
	if err != nil || paid {
		return paid, err
	}
	return a.EnrollmentRepo.Exists(ctx, actor.ID, course.ID)
}

// Require evaluates action on course and returns nil when allowed.
func (a *Access) Require(ctx context.Context, actor *policy.Actor, action policy.Action, course *model.Course) error {
	res := policy.Resource{Course: course}
	if action == policy.ViewContent && course != nil && !policy.IsImplicitlyPaid(actor, course) {
		paid, err := a.HasPaid(ctx, actor, course)
		if err != nil {
			return err
		}
		res.HasPaid = paid
	}

	if d := policy.Decide(actor, action, res); !d.Allowed {
		return fmt.Errorf("%w: %s", util.ErrPermissionDenied, d.Reason)
	}
	return nil
}

// notFound maps a missing row to util.ErrNotFound and passes other errors through.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return util.ErrNotFound
	}
	return err
}
