package service

import (
	"context"
	"errors"
	"fmt"
	"intellearn_backend/internal/config"
	"intellearn_backend/internal/model"
	"intellearn_backend/internal/policy"
	"intellearn_backend/internal/repository"
	"intellearn_backend/internal/util"
	"intellearn_backend/pkg/logger"
	"intellearn_backend/pkg/monitoring"
	"mime/multipart"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type PaymentService struct {
	DB          *gorm.DB
	PaymentRepo *repository.PaymentRepository
	CourseRepo  *repository.CourseRepository
	Enrollments *EnrollmentService
	Storage     *StorageService
	Gateway     Gateway
	Access      *Access
	Cfg         *config.PaymentConfig
}

func NewPaymentService(
	db *gorm.DB,
	paymentRepo *repository.PaymentRepository,
	courseRepo *repository.CourseRepository,
	enrollments *EnrollmentService,
	storage *StorageService,
	gateway Gateway,
	access *Access,
	cfg *config.PaymentConfig,
) *PaymentService {
	return &PaymentService{
		DB:          db,
		PaymentRepo: paymentRepo,
		CourseRepo:  courseRepo,
		Enrollments: enrollments,
		Storage:     storage,
		Gateway:     gateway,
		Access:      access,
		Cfg:         cfg,
	}
}

// CheckoutInput is the manual checkout form: a slip upload for transfer and
// promptpay, or mock card details for credit_card.
type CheckoutInput struct {
	Method     model.PaymentMethod
	Proof      *multipart.FileHeader
	CardHolder string
	CardNumber string
	Expiration string
	CVV        string
}

var (
	cardNumberRe = regexp.MustCompile(`^\d{15,16}$`)
	expirationRe = regexp.MustCompile(`^(0[1-9]|1[0-2])/\d{2}$`)
	cvvRe        = regexp.MustCompile(`^\d{3,4}$`)
)

func validateCard(in CheckoutInput, v *util.ValidationError) {
	if strings.TrimSpace(in.CardHolder) == "" {
		v.Add("cardholder", "is required")
	}
	if !cardNumberRe.MatchString(strings.ReplaceAll(in.CardNumber, " ", "")) {
		v.Add("card_number", "must be 15 or 16 digits")
	}
	if !expirationRe.MatchString(strings.TrimSpace(in.Expiration)) {
		v.Add("expiration", "must be MM/YY")
	}
	if !cvvRe.MatchString(strings.TrimSpace(in.CVV)) {
		v.Add("cvv", "must be 3 or 4 digits")
	}
}

// payableCourse loads the course and rejects free courses and courses the actor already has.
func (s *PaymentService) payableCourse(ctx context.Context, actor *policy.Actor, courseID uint) (*model.Course, error) {
	if actor == nil {
		return nil, util.ErrPermissionDenied
	}
	course, err := s.CourseRepo.FindByID(ctx, courseID)
	if err != nil {
		return nil, notFound(err)
	}
	if course.Price <= 0 {
		v := util.NewValidationError()
		v.Add("course", "is free, enroll directly")
		return nil, v
	}
	if policy.IsImplicitlyPaid(actor, course) {
		return nil, util.ErrAlreadyPaid
	}
	paid, err := s.PaymentRepo.HasPaid(ctx, actor.ID, course.ID)
	if err != nil {
		return nil, err
	}
	if paid {
		return nil, util.ErrAlreadyPaid
	}
	return course, nil
}

func (s *PaymentService) newPayment(actor *policy.Actor, course *model.Course, method model.PaymentMethod) *model.Payment {
	return &model.Payment{
		StudentID: actor.ID,
		CourseID:  course.ID,
		Amount:    course.Price,
		Currency:  s.Cfg.Currency,
		Method:    method,
		Status:    model.PaymentPending,
	}
}

// Checkout handles the manual form. Nothing is stored or written unless the
// whole input validates.
func (s *PaymentService) Checkout(ctx context.Context, actor *policy.Actor, courseID uint, in CheckoutInput) (*model.Payment, error) {
	course, err := s.payableCourse(ctx, actor, courseID)
	if err != nil {
		return nil, err
	}

	v := util.NewValidationError()
	var proofMime string
	switch {
	case !in.Method.Valid():
		v.Add("method", "must be transfer, credit_card or promptpay")
	case in.Method.RequiresProof():
		if in.Proof == nil {
			v.Add("proof", "a payment slip image is required")
		} else if proofMime, err = util.ValidateProofImage(in.Proof, s.Cfg.ProofMaxBytes); err != nil {
			v.Add("proof", err.Error())
		}
	default:
		validateCard(in, v)
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	payment := s.newPayment(actor, course, in.Method)

	if in.Method == model.MethodCreditCard {
		var enrollment *model.Enrollment
		var created bool
		err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.PaymentRepo.WithTx(tx).Create(ctx, payment); err != nil {
				return err
			}
			monitoring.PaymentsTotal.WithLabelValues(string(payment.Method), string(model.PaymentPending)).Inc()
			var err error
			payment, enrollment, created, err = s.markPaidTx(ctx, tx, payment.ID, "", SourceCard)
			return err
		})
		if err != nil {
			return nil, err
		}
		if created {
			s.Enrollments.Notify(ctx, enrollment)
		}
		return payment, nil
	}

	key := NewObjectKey(util.ProofDir, util.ProofExtension(proofMime, in.Proof.Filename))
	f, err := in.Proof.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	url, err := s.Storage.Upload(ctx, key, f, in.Proof.Size, proofMime)
	if err != nil {
		return nil, fmt.Errorf("store payment proof: %w", err)
	}

	payment.ProofURL = url
	payment.ProofKey = key
	if err := s.PaymentRepo.Create(ctx, payment); err != nil {
		if delErr := s.Storage.Delete(ctx, key); delErr != nil {
			logger.FromContext(ctx).Warn("Orphaned payment proof", zap.String("key", key), zap.Error(delErr))
		}
		return nil, err
	}

	monitoring.PaymentsTotal.WithLabelValues(string(payment.Method), string(model.PaymentPending)).Inc()
	logger.FromContext(ctx).Info("Payment proof uploaded",
		zap.Uint("payment_id", payment.ID),
		zap.Uint("student_id", actor.ID),
		zap.Uint("course_id", course.ID),
		zap.String("method", string(payment.Method)))
	return payment, nil
}

type CheckoutSessionResult struct {
	PaymentID uint   `json:"paymentId"`
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// CreateCheckoutSession starts a hosted card checkout. If the gateway refuses,
// the pending payment is removed again.
func (s *PaymentService) CreateCheckoutSession(ctx context.Context, actor *policy.Actor, email string, courseID uint) (*CheckoutSessionResult, error) {
	course, err := s.payableCourse(ctx, actor, courseID)
	if err != nil {
		return nil, err
	}

	payment := s.newPayment(actor, course, model.MethodCreditCard)
	if err := s.PaymentRepo.Create(ctx, payment); err != nil {
		return nil, err
	}

	site := strings.TrimRight(s.Cfg.SiteURL, "/")
	sess, err := s.Gateway.CreateCheckoutSession(ctx, CheckoutSessionRequest{
		PaymentID:     payment.ID,
		AmountMinor:   util.MinorUnits(course.Price),
		Currency:      s.Cfg.Currency,
		ProductName:   course.Title,
		CustomerEmail: email,
		SuccessURL:    fmt.Sprintf("%s/payments/%d?session_id={CHECKOUT_SESSION_ID}", site, payment.ID),
		CancelURL:     fmt.Sprintf("%s/courses/%d", site, course.ID),
	})
	if err != nil {
		if delErr := s.PaymentRepo.Delete(ctx, payment.ID); delErr != nil {
			logger.FromContext(ctx).Error("Failed to remove pending payment", zap.Uint("payment_id", payment.ID), zap.Error(delErr))
		}
		return nil, fmt.Errorf("%w: %v", util.ErrGateway, err)
	}

	if err := s.PaymentRepo.SetGatewaySession(ctx, payment.ID, sess.ID); err != nil {
		return nil, err
	}
	monitoring.PaymentsTotal.WithLabelValues(string(payment.Method), string(model.PaymentPending)).Inc()
	logger.FromContext(ctx).Info("Checkout session created",
		zap.Uint("payment_id", payment.ID),
		zap.String("session_id", sess.ID))
	return &CheckoutSessionResult{PaymentID: payment.ID, SessionID: sess.ID, URL: sess.URL}, nil
}

// markPaidTx flips a payment to paid on tx and reconciles its enrollment.
// Paying an already paid payment is a no-op that still reconciles; a failed
// payment cannot be paid.
func (s *PaymentService) markPaidTx(ctx context.Context, tx *gorm.DB, paymentID uint, intentID, source string) (*model.Payment, *model.Enrollment, bool, error) {
	repo := s.PaymentRepo.WithTx(tx)
	flipped, err := repo.MarkPaid(ctx, paymentID, intentID, time.Now())
	if err != nil {
		return nil, nil, false, err
	}
	payment, err := repo.FindByID(ctx, paymentID)
	if err != nil {
		return nil, nil, false, notFound(err)
	}

	switch {
	case flipped:
		monitoring.PaymentsTotal.WithLabelValues(string(payment.Method), string(model.PaymentPaid)).Inc()
		logger.FromContext(ctx).Info("Payment paid",
			zap.Uint("payment_id", payment.ID),
			zap.String("method", string(payment.Method)),
			zap.String("source", source))
	case payment.Status == model.PaymentFailed:
		return nil, nil, false, util.ErrInvalidTransition
	}

	enrollment, created, err := s.Enrollments.Reconcile(ctx, tx, payment, source)
	if err != nil {
		return nil, nil, false, err
	}
	return payment, enrollment, created, nil
}

func (s *PaymentService) markPaid(ctx context.Context, paymentID uint, intentID, source string) (*model.Payment, error) {
	var (
		payment    *model.Payment
		enrollment *model.Enrollment
		created    bool
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		payment, enrollment, created, err = s.markPaidTx(ctx, tx, paymentID, intentID, source)
		return err
	})
	if err != nil {
		return nil, err
	}
	if created {
		s.Enrollments.Notify(ctx, enrollment)
	}
	return payment, nil
}

// Fail moves a pending payment to failed. Failing a failed payment is a no-op;
// failing a paid one is an invalid transition.
func (s *PaymentService) Fail(ctx context.Context, paymentID uint, reason string) error {
	flipped, err := s.PaymentRepo.MarkFailed(ctx, paymentID, reason, time.Now())
	if err != nil {
		return err
	}
	payment, err := s.PaymentRepo.FindByID(ctx, paymentID)
	if err != nil {
		return notFound(err)
	}
	if !flipped {
		if payment.Status == model.PaymentPaid {
			return util.ErrInvalidTransition
		}
		return nil
	}
	monitoring.PaymentsTotal.WithLabelValues(string(payment.Method), string(model.PaymentFailed)).Inc()
	logger.FromContext(ctx).Info("Payment failed",
		zap.Uint("payment_id", payment.ID),
		zap.String("reason", reason))
	return nil
}

// HandleWebhook processes one gateway delivery. Only a bad signature is an error;
// anything unknown is acknowledged and ignored so the gateway stops retrying.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.Gateway.ParseWebhook(payload, signature)
	if err != nil {
		if errors.Is(err, util.ErrInvalidSignature) {
			monitoring.WebhookEvents.WithLabelValues("unknown", "invalid_signature").Inc()
			logger.FromContext(ctx).Warn("Rejected webhook", zap.Error(err))
		}
		return err
	}

	result := s.applyEvent(ctx, event)
	monitoring.WebhookEvents.WithLabelValues(event.Type, result).Inc()
	return nil
}

func (s *PaymentService) applyEvent(ctx context.Context, event *GatewayEvent) string {
	log := logger.FromContext(ctx).With(zap.String("event_id", event.ID), zap.String("event_type", event.Type))

	switch event.Type {
	case EventSessionCompleted, EventAsyncPaymentSucceeded, EventSessionExpired, EventAsyncPaymentFailed:
	default:
		return "ignored"
	}
	if event.Session == nil {
		log.Warn("Webhook without checkout session")
		return "ignored"
	}

	payment, err := s.paymentForSession(ctx, event.Session)
	if err != nil {
		log.Warn("Webhook for unknown payment", zap.String("session_id", event.Session.ID), zap.Error(err))
		return "unknown_payment"
	}

	switch event.Type {
	case EventSessionCompleted, EventAsyncPaymentSucceeded:
		if !event.Session.Paid {
			return "awaiting_payment"
		}
		if _, err := s.markPaid(ctx, payment.ID, event.Session.PaymentIntentID, SourceGateway); err != nil {
			log.Error("Failed to apply paid webhook", zap.Uint("payment_id", payment.ID), zap.Error(err))
			return "error"
		}
		return "paid"
	default:
		reason := "expired"
		if event.Type == EventAsyncPaymentFailed {
			reason = "async_payment_failed"
		}
		if err := s.Fail(ctx, payment.ID, reason); err != nil {
			log.Warn("Failed to apply failure webhook", zap.Uint("payment_id", payment.ID), zap.Error(err))
			return "ignored"
		}
		return "failed"
	}
}

// paymentForSession finds the payment by metadata id, falling back to the session id.
// A metadata id whose stored session differs is rejected.
func (s *PaymentService) paymentForSession(ctx context.Context, sess *GatewaySession) (*model.Payment, error) {
	if sess.PaymentID != 0 {
		payment, err := s.PaymentRepo.FindByID(ctx, sess.PaymentID)
		if err != nil {
			return nil, notFound(err)
		}
		if payment.GatewaySessionID != nil && *payment.GatewaySessionID != sess.ID {
			return nil, fmt.Errorf("payment %d belongs to session %s", payment.ID, *payment.GatewaySessionID)
		}
		return payment, nil
	}
	payment, err := s.PaymentRepo.FindBySessionID(ctx, sess.ID)
	return payment, notFound(err)
}

func (s *PaymentService) viewable(ctx context.Context, actor *policy.Actor, paymentID uint) (*model.Payment, error) {
	payment, err := s.PaymentRepo.FindByID(ctx, paymentID)
	if err != nil {
		return nil, notFound(err)
	}
	if actor == nil {
		return nil, util.ErrPermissionDenied
	}
	if payment.StudentID != actor.ID {
		if d := policy.Decide(actor, policy.ViewAllPayments, policy.Resource{}); !d.Allowed {
			return nil, util.ErrNotFound
		}
	}
	return payment, nil
}

// Verify is the return-page check: a pending hosted checkout is re-read from the
// gateway and settled if it has been paid. Gateway trouble leaves the stored state.
func (s *PaymentService) Verify(ctx context.Context, actor *policy.Actor, paymentID uint) (*model.Payment, error) {
	payment, err := s.viewable(ctx, actor, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != model.PaymentPending || payment.GatewaySessionID == nil {
		return payment, nil
	}

	sess, err := s.Gateway.GetCheckoutSession(ctx, *payment.GatewaySessionID)
	if err != nil {
		logger.FromContext(ctx).Warn("Checkout session lookup failed", zap.Uint("payment_id", payment.ID), zap.Error(err))
		return payment, nil
	}
	if !sess.Paid {
		return payment, nil
	}
	return s.markPaid(ctx, payment.ID, sess.PaymentIntentID, SourceGateway)
}

// Confirm lets staff approve an uploaded slip.
func (s *PaymentService) Confirm(ctx context.Context, actor *policy.Actor, paymentID uint) (*model.Payment, error) {
	if d := policy.Decide(actor, policy.ConfirmPayment, policy.Resource{}); !d.Allowed {
		return nil, fmt.Errorf("%w: %s", util.ErrPermissionDenied, d.Reason)
	}
	payment, err := s.markPaid(ctx, paymentID, "", SourceStaff)
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("Payment confirmed by staff", zap.Uint("payment_id", paymentID), zap.Uint("staff_id", actor.ID))
	return payment, nil
}

func (s *PaymentService) ListMine(ctx context.Context, actor *policy.Actor, page, limit int) ([]model.Payment, int64, error) {
	return s.PaymentRepo.List(ctx, repository.PaymentFilter{StudentID: actor.ID, Page: page, Limit: limit})
}

func (s *PaymentService) ListAll(ctx context.Context, actor *policy.Actor, status string, page, limit int) ([]model.Payment, int64, error) {
	if d := policy.Decide(actor, policy.ViewAllPayments, policy.Resource{}); !d.Allowed {
		return nil, 0, fmt.Errorf("%w: %s", util.ErrPermissionDenied, d.Reason)
	}
	st := model.PaymentStatus(status)
	switch st {
	case "", model.PaymentPending, model.PaymentPaid, model.PaymentFailed:
	default:
		v := util.NewValidationError()
		v.Add("status", "must be pending, paid or failed")
		return nil, 0, v
	}
	return s.PaymentRepo.List(ctx, repository.PaymentFilter{Status: st, Page: page, Limit: limit})
}
