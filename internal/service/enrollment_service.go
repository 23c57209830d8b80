package service

import (
	"context"
	"errors"
	"fmt"
	"intellearn_backend/internal/model"
	"intellearn_backend/internal/policy"
	"intellearn_backend/internal/repository"
	"intellearn_backend/internal/util"
	"intellearn_backend/pkg/logger"
	"intellearn_backend/pkg/monitoring"
	"strconv"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Reconciliation sources, used as a metrics label.
const (
	SourceCard    = "card"
	SourceGateway = "gateway"
	SourceStaff   = "staff"
	SourceFree    = "free"
)

type EnrollmentService struct {
	DB             *gorm.DB
	EnrollmentRepo *repository.EnrollmentRepository
	CourseRepo     *repository.CourseRepository
	UserRepo       *repository.UserRepository
	Mailer         Mailer
}

func NewEnrollmentService(db *gorm.DB, enrollmentRepo *repository.EnrollmentRepository, courseRepo *repository.CourseRepository, userRepo *repository.UserRepository, mailer Mailer) *EnrollmentService {
	return &EnrollmentService{
		DB:             db,
		EnrollmentRepo: enrollmentRepo,
		CourseRepo:     courseRepo,
		UserRepo:       userRepo,
		Mailer:         mailer,
	}
}

// Reconcile makes sure a paid payment has a matching enrollment. It runs on tx so
// the status flip and the enrollment commit together, and it is safe to call any
// number of times for the same payment.
func (s *EnrollmentService) Reconcile(ctx context.Context, tx *gorm.DB, payment *model.Payment, source string) (*model.Enrollment, bool, error) {
	if !payment.IsPaid() {
		return nil, false, util.ErrPaymentNotPaid
	}

	enrollment, created, err := s.EnrollmentRepo.WithTx(tx).GetOrCreate(ctx, payment.StudentID, payment.CourseID)
	if err != nil {
		return nil, false, fmt.Errorf("reconcile payment %d: %w", payment.ID, err)
	}

	monitoring.EnrollmentsReconciled.WithLabelValues(source, strconv.FormatBool(created)).Inc()
	if created {
		logger.FromContext(ctx).Info("Enrollment created",
			zap.Uint("payment_id", payment.ID),
			zap.Uint("student_id", payment.StudentID),
			zap.Uint("course_id", payment.CourseID),
			zap.String("source", source))
	}
	return enrollment, created, nil
}

// EnrollFree enrolls the actor without a payment. Only free courses qualify,
// plus the course's own instructor and superusers.
func (s *EnrollmentService) EnrollFree(ctx context.Context, actor *policy.Actor, courseID uint) (*model.Enrollment, bool, error) {
	course, err := s.CourseRepo.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, util.ErrNotFound
		}
		return nil, false, err
	}

	if course.Price > 0 && !policy.IsImplicitlyPaid(actor, course) {
		return nil, false, util.ErrPaymentRequired
	}

	enrollment, created, err := s.EnrollmentRepo.GetOrCreate(ctx, actor.ID, course.ID)
	if err != nil {
		return nil, false, err
	}
	monitoring.EnrollmentsReconciled.WithLabelValues(SourceFree, strconv.FormatBool(created)).Inc()
	if created {
		s.Notify(ctx, enrollment)
	}
	return enrollment, created, nil
}

func (s *EnrollmentService) ListByStudent(ctx context.Context, studentID uint) ([]model.Enrollment, error) {
	return s.EnrollmentRepo.ListByStudent(ctx, studentID)
}

// Notify sends the enrollment confirmation. Delivery problems are logged only;
// the enrollment itself is already committed.
func (s *EnrollmentService) Notify(ctx context.Context, enrollment *model.Enrollment) {
	if s.Mailer == nil {
		return
	}
	student, err := s.UserRepo.FindByID(ctx, enrollment.StudentID)
	if err != nil {
		logger.FromContext(ctx).Warn("Enrollment mail skipped", zap.Uint("enrollment_id", enrollment.ID), zap.Error(err))
		return
	}
	course, err := s.CourseRepo.FindByID(ctx, enrollment.CourseID)
	if err != nil {
		logger.FromContext(ctx).Warn("Enrollment mail skipped", zap.Uint("enrollment_id", enrollment.ID), zap.Error(err))
		return
	}

	err = s.Mailer.Send(ctx, EmailMessage{
		ToName:  student.Name,
		ToEmail: student.Email,
		Subject: "You are enrolled in " + course.Title,
		Text:    fmt.Sprintf("Hi %s, your enrollment in %q is active. Happy learning!", student.Name, course.Title),
	})
	if err != nil {
		logger.FromContext(ctx).Warn("Enrollment mail failed", zap.Uint("enrollment_id", enrollment.ID), zap.Error(err))
	}
}
