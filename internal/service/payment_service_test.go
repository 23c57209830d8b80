package service

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"intellearn_backend/internal/model"
	"intellearn_backend/internal/testutil"
	"intellearn_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileIsIdempotent(t *testing.T) {
	f := newFixture(t)
	student := testutil.CreateUser(t, f.db, model.Student)
	course := testutil.CreateCourse(t, f.db, nil, 100)

	pending := testutil.CreatePayment(t, f.db, student, course, model.MethodTransfer, model.PaymentPending)
	_, _, err := f.enrollments.Reconcile(f.ctx, f.db, pending, SourceStaff)
	assert.ErrorIs(t, err, util.ErrPaymentNotPaid)
	assert.Zero(t, f.enrollmentCount(student.ID, course.ID))

	paid := testutil.CreatePayment(t, f.db, student, course, model.MethodTransfer, model.PaymentPaid)
	first, created, err := f.enrollments.Reconcile(f.ctx, f.db, paid, SourceStaff)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := f.enrollments.Reconcile(f.ctx, f.db, paid, SourceStaff)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(1), f.enrollmentCount(student.ID, course.ID))
}

func TestDuplicateWebhookYieldsOneEnrollment(t *testing.T) {
	f := newFixture(t)
	student := testutil.CreateUser(t, f.db, model.Student)
	course := testutil.CreateCourse(t, f.db, nil, 199.99)

	res, err := f.payments.CreateCheckoutSession(f.ctx, actorOf(student), student.Email, course.ID)
	require.NoError(t, err)
	require.Len(t, f.gateway.requests, 1)
	assert.Equal(t, int64(19999), f.gateway.requests[0].AmountMinor)
	assert.Equal(t, "thb", f.gateway.requests[0].Currency)
	assert.Equal(t, course.Title, f.gateway.requests[0].ProductName)

	payload, sig := signedEvent(t, "evt_1", EventSessionCompleted, res.SessionID, res.PaymentID, "paid")
	require.NoError(t, f.payments.HandleWebhook(f.ctx, payload, sig))
	require.NoError(t, f.payments.HandleWebhook(f.ctx, payload, sig))

	p := f.reloadPayment(res.PaymentID)
	assert.Equal(t, model.PaymentPaid, p.Status)
	assert.Equal(t, "pi_"+res.SessionID, p.GatewayPaymentIntentID)
	assert.Equal(t, int64(1), f.enrollmentCount(student.ID, course.ID))
	assert.Equal(t, 1, f.mailer.count(), "confirmation goes out once")
}

func TestWebhookWithInvalidSignatureChangesNothing(t *testing.T) {
	f := newFixture(t)
	student := testutil.CreateUser(t, f.db, model.Student)
	course := testutil.CreateCourse(t, f.db, nil, 50)

	res, err := f.payments.CreateCheckoutSession(f.ctx, actorOf(student), "", course.ID)
	require.NoError(t, err)

	payload, _ := signedEvent(t, "evt_2", EventSessionCompleted, res.SessionID, res.PaymentID, "paid")
	err = f.payments.HandleWebhook(f.ctx, payload, "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, util.ErrInvalidSignature)

	assert.Equal(t, model.PaymentPending, f.reloadPayment(res.PaymentID).Status)
	assert.Zero(t, f.enrollmentCount(student.ID, course.ID))
}

func TestWebhookIgnoresUnknownPaymentsAndEvents(t *testing.T) {
	f := newFixture(t)

	payload, sig := signedEvent(t, "evt_3", EventSessionCompleted, "cs_missing", 9999, "paid")
	assert.NoError(t, f.payments.HandleWebhook(f.ctx, payload, sig))

	payload, sig = signedEvent(t, "evt_4", "customer.created", "cs_missing", 0, "unpaid")
	assert.NoError(t, f.payments.HandleWebhook(f.ctx, payload, sig))
	assert.Zero(t, f.paymentCount())
}

func TestWebhookCompletedButUnpaidWaits(t *testing.T) {
	f := newFixture(t)
	student := testutil.CreateUser(t, f.db, model.Student)
	course := testutil.CreateCourse(t, f.db, nil, 50)
	res, err := f.payments.CreateCheckoutSession(f.ctx, actorOf(student), "", course.ID)
	require.NoError(t, err)

	payload, sig := signedEvent(t, "evt_5", EventSessionCompleted, res.SessionID, res.PaymentID, "unpaid")
	require.NoError(t, f.payments.HandleWebhook(f.ctx, payload, sig))
	assert.Equal(t, model.PaymentPending, f.reloadPayment(res.PaymentID).Status)

	payload, sig = signedEvent(t, "evt_6", EventAsyncPaymentSucceeded, res.SessionID, res.PaymentID, "paid")
	require.NoError(t, f.payments.HandleWebhook(f.ctx, payload, sig))
	assert.Equal(t, model.PaymentPaid, f.reloadPayment(res.PaymentID).Status)
	assert.Equal(t, int64(1), f.enrollmentCount(student.ID, course.ID))
}

func TestExpiredSessionIsTerminal(t *testing.T) {
	f := newFixture(t)
	student := testutil.CreateUser(t, f.db, model.Student)
	course := testutil.CreateCourse(t, f.db, nil, 50)
	res, err := f.payments.CreateCheckoutSession(f.ctx, actorOf(student), "", course.ID)
	require.NoError(t, err)

	payload, sig := signedEvent(t, "evt_7", EventSessionExpired, res.SessionID, res.PaymentID, "unpaid")
	require.NoError(t, f.payments.HandleWebhook(f.ctx, payload, sig))
	p := f.reloadPayment(res.PaymentID)
	assert.Equal(t, model.PaymentFailed, p.Status)
	assert.Equal(t, "expired", p.FailureReason)

	// A late success cannot revive a failed payment.
	payload, sig = signedEvent(t, "evt_8", EventSessionCompleted, res.SessionID, res.PaymentID, "paid")
	require.NoError(t, f.payments.HandleWebhook(f.ctx, payload, sig))
	assert.Equal(t, model.PaymentFailed, f.reloadPayment(res.PaymentID).Status)
	assert.Zero(t, f.enrollmentCount(student.ID, course.ID))
}

func TestWebhookRejectsSessionMismatch(t *testing.T) {
	f := newFixture(t)
	student := testutil.CreateUser(t, f.db, model.Student)
	course := testutil.CreateCourse(t, f.db, nil, 50)
	res, err := f.payments.CreateCheckoutSession(f.ctx, actorOf(student), "", course.ID)
	require.NoError(t, err)

	payload, sig := signedEvent(t, "evt_9", EventSessionCompleted, "cs_someone_else", res.PaymentID, "paid")
	require.NoError(t, f.payments.HandleWebhook(f.ctx, payload, sig))
	assert.Equal(t, model.PaymentPending, f.reloadPayment(res.PaymentID).Status)
}

func TestGatewayFailureDeletesPendingPayment(t *testing.T) {
	f := newFixture(t)
	student := testutil.CreateUser(t, f.db, model.Student)
	course := testutil.CreateCourse(t, f.db, nil, 50)
	f.gateway.createErr = errors.New("card network down")

	_, err := f.payments.CreateCheckoutSession(f.ctx, actorOf(student), "", course.ID)
	assert.ErrorIs(t, err, util.ErrGateway)
	assert.Zero(t, f.paymentCount())
}

func TestVerifySettlesPaidSession(t *testing.T) {
	f := newFixture(t)
	student := testutil.CreateUser(t, f.db, model.Student)
	other := testutil.CreateUser(t, f.db, model.Student)
	course := testutil.CreateCourse(t, f.db, nil, 50)
	res, err := f.payments.CreateCheckoutSession(f.ctx, actorOf(student), "", course.ID)
	require.NoError(t, err)

	p, err := f.payments.Verify(f.ctx, actorOf(student), res.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPending, p.Status)

	_, err = f.payments.Verify(f.ctx, actorOf(other), res.PaymentID)
	assert.ErrorIs(t, err, util.ErrNotFound, "other students cannot see it")

	f.gateway.getErr = errors.New("timeout")
	f.gateway.markSessionPaid(res.SessionID)
	p, err = f.payments.Verify(f.ctx, actorOf(student), res.PaymentID)
	require.NoError(t, err, "gateway trouble falls back to stored state")
	assert.Equal(t, model.PaymentPending, p.Status)

	f.gateway.getErr = nil
	p, err = f.payments.Verify(f.ctx, actorOf(student), res.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, p.Status)
	assert.Equal(t, int64(1), f.enrollmentCount(student.ID, course.ID))
}

func TestCheckoutMockCard(t *testing.T) {
	f := newFixture(t)
	student := testutil.CreateUser(t, f.db, model.Student)
	course := testutil.CreateCourse(t, f.db, nil, 120)

	_, err := f.payments.Checkout(f.ctx, actorOf(student), course.ID, CheckoutInput{
		Method:     model.MethodCreditCard,
		CardHolder: "",
		CardNumber: "4242 4242",
		Expiration: "1230",
		CVV:        "12",
	})
	var ve *util.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "cardholder")
	assert.Contains(t, ve.Fields, "card_number")
	assert.Contains(t, ve.Fields, "expiration")
	assert.Contains(t, ve.Fields, "cvv")
	assert.Zero(t, f.paymentCount())

	p, err := f.payments.Checkout(f.ctx, actorOf(student), course.ID, CheckoutInput{
		Method:     model.MethodCreditCard,
		CardHolder: "Jane Doe",
		CardNumber: "4242 4242 4242 4242",
		Expiration: "12/30",
		CVV:        "123",
	})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, p.Status)
	assert.Equal(t, 120.0, p.Amount)
	assert.Equal(t, int64(1), f.enrollmentCount(student.ID, course.ID))

	_, err = f.payments.Checkout(f.ctx, actorOf(student), course.ID, CheckoutInput{Method: model.MethodCreditCard})
	assert.ErrorIs(t, err, util.ErrAlreadyPaid)
}

func TestCheckoutProofUpload(t *testing.T) {
	f := newFixture(t)
	student := testutil.CreateUser(t, f.db, model.Student)
	course := testutil.CreateCourse(t, f.db, nil, 300)

	_, err := f.payments.Checkout(f.ctx, actorOf(student), course.ID, CheckoutInput{
		Method: model.MethodTransfer,
		Proof:  multipartFile(t, "proof", "slip.jpg", jpegOfSize(6*1024*1024)),
	})
	assert.True(t, util.IsValidation(err))
	assert.Zero(t, f.paymentCount())

	_, err = f.payments.Checkout(f.ctx, actorOf(student), course.ID, CheckoutInput{Method: model.MethodPromptPay})
	assert.True(t, util.IsValidation(err), "proof is required")

	p, err := f.payments.Checkout(f.ctx, actorOf(student), course.ID, CheckoutInput{
		Method: model.MethodPromptPay,
		Proof:  multipartFile(t, "proof", "slip.jpg", jpegOfSize(3*1024*1024)),
	})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPending, p.Status)
	assert.Contains(t, p.ProofURL, util.ProofDir+"/")
	assert.Zero(t, f.enrollmentCount(student.ID, course.ID))

	info, err := os.Stat(filepath.Join(f.cfg.Storage.LocalPath, filepath.FromSlash(p.ProofKey)))
	require.NoError(t, err)
	assert.Equal(t, int64(3*1024*1024), info.Size())
}

func TestCheckoutRejectsFreeCourseAndBadMethod(t *testing.T) {
	f := newFixture(t)
	student := testutil.CreateUser(t, f.db, model.Student)
	free := testutil.CreateCourse(t, f.db, nil, 0)
	paid := testutil.CreateCourse(t, f.db, nil, 10)

	_, err := f.payments.Checkout(f.ctx, actorOf(student), free.ID, CheckoutInput{Method: model.MethodCreditCard})
	assert.True(t, util.IsValidation(err))

	_, err = f.payments.Checkout(f.ctx, actorOf(student), paid.ID, CheckoutInput{Method: "bitcoin"})
	assert.True(t, util.IsValidation(err))

	_, err = f.payments.Checkout(f.ctx, actorOf(student), 4242, CheckoutInput{Method: model.MethodCreditCard})
	assert.ErrorIs(t, err, util.ErrNotFound)
}

func TestStaffConfirm(t *testing.T) {
	f := newFixture(t)
	student := testutil.CreateUser(t, f.db, model.Student)
	staff := testutil.CreateUser(t, f.db, model.Student, func(u *model.User) { u.IsStaff = true })
	course := testutil.CreateCourse(t, f.db, nil, 80)

	pending := testutil.CreatePayment(t, f.db, student, course, model.MethodTransfer, model.PaymentPending)

	_, err := f.payments.Confirm(f.ctx, actorOf(student), pending.ID)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	p, err := f.payments.Confirm(f.ctx, actorOf(staff), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, p.Status)
	assert.NotNil(t, p.PaidAt)

	_, err = f.payments.Confirm(f.ctx, actorOf(staff), pending.ID)
	require.NoError(t, err, "confirming twice is a no-op")
	assert.Equal(t, int64(1), f.enrollmentCount(student.ID, course.ID))

	failed := testutil.CreatePayment(t, f.db, student, course, model.MethodTransfer, model.PaymentFailed)
	_, err = f.payments.Confirm(f.ctx, actorOf(staff), failed.ID)
	assert.ErrorIs(t, err, util.ErrInvalidTransition)

	_, err = f.payments.Confirm(f.ctx, actorOf(staff), 12345)
	assert.ErrorIs(t, err, util.ErrNotFound)
}

func TestListPayments(t *testing.T) {
	f := newFixture(t)
	s1 := testutil.CreateUser(t, f.db, model.Student)
	s2 := testutil.CreateUser(t, f.db, model.Student)
	staff := testutil.CreateUser(t, f.db, model.Student, func(u *model.User) { u.IsStaff = true })
	course := testutil.CreateCourse(t, f.db, nil, 80)
	testutil.CreatePayment(t, f.db, s1, course, model.MethodTransfer, model.PaymentPending)
	testutil.CreatePayment(t, f.db, s2, course, model.MethodTransfer, model.PaymentPaid)

	mine, total, err := f.payments.ListMine(f.ctx, actorOf(s1), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, s1.ID, mine[0].StudentID)

	_, _, err = f.payments.ListAll(f.ctx, actorOf(s1), "", 1, 10)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	all, total, err := f.payments.ListAll(f.ctx, actorOf(staff), "paid", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, s2.ID, all[0].StudentID)

	_, _, err = f.payments.ListAll(f.ctx, actorOf(staff), "refunded", 1, 10)
	assert.True(t, util.IsValidation(err))
}

func TestSweeperExpiresStaleManualPayments(t *testing.T) {
	f := newFixture(t)
	student := testutil.CreateUser(t, f.db, model.Student)
	course := testutil.CreateCourse(t, f.db, nil, 80)

	stale := testutil.CreatePayment(t, f.db, student, course, model.MethodTransfer, model.PaymentPending)
	fresh := testutil.CreatePayment(t, f.db, student, course, model.MethodTransfer, model.PaymentPending)
	res, err := f.payments.CreateCheckoutSession(f.ctx, actorOf(student), "", course.ID)
	require.NoError(t, err)

	old := time.Now().Add(-100 * time.Hour)
	require.NoError(t, f.db.Model(&model.Payment{}).Where("id IN ?", []uint{stale.ID, res.PaymentID}).UpdateColumn("created_at", old).Error)

	sweeper := NewPaymentSweeper(f.payments, f.paymentRepo, nil, 0)
	n, err := sweeper.Sweep(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "zero TTL disables the sweep")

	sweeper.SetTTL(72 * time.Hour)
	n, err = sweeper.Sweep(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, model.PaymentFailed, f.reloadPayment(stale.ID).Status)
	assert.Equal(t, model.PaymentPending, f.reloadPayment(fresh.ID).Status)
	assert.Equal(t, model.PaymentPending, f.reloadPayment(res.PaymentID).Status, "hosted sessions expire via webhook")
}

func TestSweeperLeavesSlipsForStaff(t *testing.T) {
	f := newFixture(t)
	student := testutil.CreateUser(t, f.db, model.Student)
	staff := testutil.CreateUser(t, f.db, model.Instructor, func(u *model.User) { u.IsStaff = true })
	course := testutil.CreateCourse(t, f.db, nil, 120)

	slip, err := f.payments.Checkout(f.ctx, actorOf(student), course.ID, CheckoutInput{
		Method: model.MethodTransfer,
		Proof:  multipartFile(t, "proof", "slip.jpg", jpegOfSize(1024)),
	})
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&model.Payment{}).Where("id = ?", slip.ID).
		UpdateColumn("created_at", time.Now().Add(-73*time.Hour)).Error)

	sweeper := NewPaymentSweeper(f.payments, f.paymentRepo, nil, 72*time.Hour)
	n, err := sweeper.Sweep(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, model.PaymentPending, f.reloadPayment(slip.ID).Status)

	p, err := f.payments.Confirm(f.ctx, actorOf(staff), slip.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, p.Status)
	assert.Equal(t, int64(1), f.enrollmentCount(student.ID, course.ID))
}
