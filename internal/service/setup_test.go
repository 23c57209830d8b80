package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"intellearn_backend/internal/config"
	"intellearn_backend/internal/model"
	"intellearn_backend/internal/policy"
	"intellearn_backend/internal/repository"
	"intellearn_backend/internal/testutil"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"
	"gorm.io/gorm"
)

const testWebhookSecret = "whsec_test_secret"

// fakeGateway verifies webhooks with the real Stripe code but never touches the network.
type fakeGateway struct {
	*StripeGateway

	mu        sync.Mutex
	createErr error
	getErr    error
	requests  []CheckoutSessionRequest
	sessions  map[string]*GatewaySession
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		StripeGateway: NewStripeGateway("sk_test_unused", testWebhookSecret),
		sessions:      map[string]*GatewaySession{},
	}
}

func (g *fakeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*GatewaySession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.createErr != nil {
		return nil, g.createErr
	}
	id := fmt.Sprintf("cs_test_%d", req.PaymentID)
	sess := &GatewaySession{ID: id, URL: "https://checkout.example/" + id, PaymentID: req.PaymentID}
	g.sessions[id] = sess
	return sess, nil
}

func (g *fakeGateway) GetCheckoutSession(ctx context.Context, id string) (*GatewaySession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.getErr != nil {
		return nil, g.getErr
	}
	sess, ok := g.sessions[id]
	if !ok {
		return nil, errors.New("no such session")
	}
	cp := *sess
	return &cp, nil
}

func (g *fakeGateway) markSessionPaid(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions[id].Paid = true
	g.sessions[id].PaymentIntentID = "pi_" + id
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []EmailMessage
}

func (m *recordingMailer) Send(ctx context.Context, msg EmailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type fixture struct {
	t   *testing.T
	ctx context.Context
	db  *gorm.DB

	gateway *fakeGateway
	mailer  *recordingMailer
	cfg     *config.Config

	paymentRepo *repository.PaymentRepository
	lessonRepo  *repository.LessonRepository
	quizRepo    *repository.QuizRepository

	access      *Access
	enrollments *EnrollmentService
	progress    *ProgressService
	payments    *PaymentService
	quizzes     *QuizService
	courses     *CourseService
	lessons     *LessonService
	dashboard   *DashboardService
	auth        *AuthService
	users       *UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)

	cfg := &config.Config{
		JWT: config.JWTConfig{Secret: "test-secret-test-secret-test-secret", ExpireTime: time.Hour},
		Payment: config.PaymentConfig{
			Currency:      "thb",
			SiteURL:       "http://localhost:8080",
			ProofMaxBytes: 5 * 1024 * 1024,
			PendingTTL:    72 * time.Hour,
		},
		Storage: config.StorageConfig{Type: "local", LocalPath: t.TempDir()},
	}

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	lessonRepo := repository.NewLessonRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	progressRepo := repository.NewProgressRepository(db)
	quizRepo := repository.NewQuizRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	dashboardRepo := repository.NewDashboardRepository(db)

	f := &fixture{
		t:           t,
		ctx:         context.Background(),
		db:          db,
		gateway:     newFakeGateway(),
		mailer:      &recordingMailer{},
		cfg:         cfg,
		paymentRepo: paymentRepo,
		lessonRepo:  lessonRepo,
		quizRepo:    quizRepo,
	}

	f.access = NewAccess(enrollmentRepo, paymentRepo)
	f.enrollments = NewEnrollmentService(db, enrollmentRepo, courseRepo, userRepo, f.mailer)
	f.progress = NewProgressService(enrollmentRepo, lessonRepo, progressRepo)
	storage := NewStorageService(&cfg.Storage)
	f.payments = NewPaymentService(db, paymentRepo, courseRepo, f.enrollments, storage, f.gateway, f.access, &cfg.Payment)
	f.quizzes = NewQuizService(quizRepo, courseRepo, enrollmentRepo, f.access)
	f.courses = NewCourseService(courseRepo, lessonRepo, enrollmentRepo, f.progress, f.access)
	f.lessons = NewLessonService(lessonRepo, courseRepo, storage, f.access)
	f.dashboard = NewDashboardService(dashboardRepo, enrollmentRepo, quizRepo, f.progress, f.access)
	f.auth = NewAuthService(userRepo, cfg)
	f.users = NewUserService(userRepo)
	return f
}

func actorOf(u *model.User) *policy.Actor {
	return &policy.Actor{ID: u.ID, Role: u.Role, IsStaff: u.IsStaff, IsSuperuser: u.IsSuperuser}
}

func (f *fixture) enrollmentCount(studentID, courseID uint) int64 {
	var n int64
	require.NoError(f.t, f.db.Model(&model.Enrollment{}).
		Where("student_id = ? AND course_id = ?", studentID, courseID).Count(&n).Error)
	return n
}

func (f *fixture) paymentCount() int64 {
	var n int64
	require.NoError(f.t, f.db.Model(&model.Payment{}).Count(&n).Error)
	return n
}

func (f *fixture) reloadPayment(id uint) *model.Payment {
	var p model.Payment
	require.NoError(f.t, f.db.First(&p, id).Error)
	return &p
}

// signedEvent builds a checkout.session webhook delivery signed with the test secret.
func signedEvent(t *testing.T, eventID, eventType, sessionID string, paymentID uint, paymentStatus string) ([]byte, string) {
	t.Helper()
	payload := []byte(fmt.Sprintf(`{
  "id": %q,
  "object": "event",
  "api_version": "2023-10-16",
  "type": %q,
  "data": {
    "object": {
      "id": %q,
      "object": "checkout.session",
      "payment_status": %q,
      "payment_intent": "pi_%s",
      "metadata": {"payment_id": "%d"}
    }
  }
}`, eventID, eventType, sessionID, paymentStatus, sessionID, paymentID))

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: payload,
		Secret:  testWebhookSecret,
	})
	return signed.Payload, signed.Header
}

var jpegMagic = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

func multipartFile(t *testing.T, field, name string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(1<<20))
	return req.MultipartForm.File[field][0]
}

func jpegOfSize(n int) []byte {
	b := make([]byte, n)
	copy(b, jpegMagic)
	return b
}
