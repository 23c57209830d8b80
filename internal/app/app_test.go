package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"intellearn_backend/internal/config"
	"intellearn_backend/internal/model"
	"intellearn_backend/internal/service"
	"intellearn_backend/internal/testutil"
	"intellearn_backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testSecret = "route-test-secret-route-test-secret"

type recordingMailer struct {
	mu   sync.Mutex
	sent []service.EmailMessage
}

func (m *recordingMailer) Send(ctx context.Context, msg service.EmailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestApp(t *testing.T) (*App, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)

	cfg := &config.Config{
		Server: config.ServerConfig{Mode: gin.TestMode},
		JWT:    config.JWTConfig{Secret: testSecret, ExpireTime: time.Hour},
		Payment: config.PaymentConfig{
			Currency:      "thb",
			SiteURL:       "http://localhost:8080",
			ProofMaxBytes: 5 * 1024 * 1024,
			PendingTTL:    72 * time.Hour,
		},
		Storage:   config.StorageConfig{Type: "local", LocalPath: t.TempDir()},
		CORS:      config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
		RateLimit: config.RateLimitConfig{MaxRequests: 10000, WindowMinutes: 1},
	}

	a, err := New(cfg, Deps{
		DB:      db,
		Gateway: service.NewStripeGateway("sk_test_unused", "whsec_route_test"),
		Mailer:  &recordingMailer{},
	})
	require.NoError(t, err)
	return a, db
}

func tokenFor(t *testing.T, u *model.User) string {
	t.Helper()
	token, err := util.GenerateJWT(u, testSecret, time.Hour)
	require.NoError(t, err)
	return token
}

func do(t *testing.T, a *App, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.Router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w, env
}

func TestHealth(t *testing.T) {
	a, _ := newTestApp(t)
	w, env := do(t, a, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"database":"up"`)
}

func TestRegisterLoginProfile(t *testing.T) {
	a, _ := newTestApp(t)

	w, _ := do(t, a, http.MethodPost, "/api/register", "", gin.H{
		"name": "Ann", "email": "Ann@Example.com", "password": "password123",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w, _ = do(t, a, http.MethodPost, "/api/register", "", gin.H{
		"name": "Ann", "email": "ann@example.com", "password": "password123",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = do(t, a, http.MethodPost, "/api/register", "", gin.H{
		"name": "Eve", "email": "eve@example.com", "password": "password123", "role": "admin",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, a, http.MethodPost, "/api/login", "", gin.H{"email": "ann@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, env := do(t, a, http.MethodPost, "/api/login", "", gin.H{"email": "ann@example.com", "password": "password123"})
	require.Equal(t, http.StatusOK, w.Code)
	var login struct {
		Token string     `json:"token"`
		User  model.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &login))
	require.NotEmpty(t, login.Token)

	w, _ = do(t, a, http.MethodGet, "/api/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, env = do(t, a, http.MethodGet, "/api/profile", login.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), "ann@example.com")

	w, _ = do(t, a, http.MethodGet, "/api/profile", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCourseRoutes(t *testing.T) {
	a, db := newTestApp(t)
	instructor := testutil.CreateUser(t, db, model.Instructor)
	student := testutil.CreateUser(t, db, model.Student)

	w, _ := do(t, a, http.MethodPost, "/api/courses", tokenFor(t, student), gin.H{"title": "Go", "price": 10})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env := do(t, a, http.MethodPost, "/api/courses", tokenFor(t, instructor), gin.H{"title": "  Go Basics  ", "price": 10.005})
	require.Equal(t, http.StatusCreated, w.Code)
	var course model.Course
	require.NoError(t, json.Unmarshal(env.Data, &course))
	assert.Equal(t, "Go Basics", course.Title)

	w, env = do(t, a, http.MethodGet, "/api/courses?search=basics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Total int64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.EqualValues(t, 1, page.Total)

	w, _ = do(t, a, http.MethodGet, "/api/courses?field=price", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	path := "/api/courses/" + fmt.Sprint(course.ID)
	w, _ = do(t, a, http.MethodGet, path, "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, a, http.MethodGet, path, tokenFor(t, student), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, a, http.MethodGet, "/api/courses/999999", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(t, a, http.MethodGet, "/api/courses/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// A paid course cannot be enrolled in without paying.
	w, _ = do(t, a, http.MethodPost, path+"/enroll", tokenFor(t, student), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	a, _ := newTestApp(t)
	req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook/stripe", bytes.NewBufferString(`{"id":"evt_1"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	w := httptest.NewRecorder()
	a.Router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCardCheckoutUnlocksLessons(t *testing.T) {
	a, db := newTestApp(t)
	instructor := testutil.CreateUser(t, db, model.Instructor)
	student := testutil.CreateUser(t, db, model.Student)
	course := testutil.CreateCourse(t, db, instructor, 49.99)
	testutil.CreateLessons(t, db, course, 2)
	token := tokenFor(t, student)
	lessonsPath := "/api/courses/" + fmt.Sprint(course.ID) + "/lessons"

	w, _ := do(t, a, http.MethodGet, lessonsPath, token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	require.NoError(t, mw.WriteField("method", "credit_card"))
	require.NoError(t, mw.WriteField("cardholder", "Ann Student"))
	require.NoError(t, mw.WriteField("card_number", "4242 4242 4242 4242"))
	require.NoError(t, mw.WriteField("expiration", "12/30"))
	require.NoError(t, mw.WriteField("cvv", "123"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/courses/"+fmt.Sprint(course.ID)+"/checkout", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	a.Router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	var payment model.Payment
	require.NoError(t, json.Unmarshal(env.Data, &payment))
	assert.Equal(t, model.PaymentPaid, payment.Status)

	w, env = do(t, a, http.MethodGet, lessonsPath, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var lessons []model.Lesson
	require.NoError(t, json.Unmarshal(env.Data, &lessons))
	assert.Len(t, lessons, 2)

	w, _ = do(t, a, http.MethodGet, "/api/my-courses", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminRoutesRequireStaff(t *testing.T) {
	a, db := newTestApp(t)
	student := testutil.CreateUser(t, db, model.Student)
	staff := testutil.CreateUser(t, db, model.Instructor, func(u *model.User) { u.IsStaff = true })

	w, _ := do(t, a, http.MethodGet, "/api/admin/payments", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = do(t, a, http.MethodGet, "/api/admin/payments", tokenFor(t, student), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = do(t, a, http.MethodGet, "/api/admin/payments?status=pending", tokenFor(t, staff), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, a, http.MethodPost, "/api/admin/payments/424242/confirm", tokenFor(t, staff), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChangePasswordRoute(t *testing.T) {
	a, db := newTestApp(t)
	u := testutil.CreateUser(t, db, model.Student)
	token := tokenFor(t, u)

	w, env := do(t, a, http.MethodPut, "/api/profile/password", token, gin.H{"oldPassword": "wrong-password", "newPassword": "another-pass-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, string(env.Data), "oldPassword")

	w, _ = do(t, a, http.MethodPut, "/api/profile/password", token, gin.H{"oldPassword": testutil.Password, "newPassword": "another-pass-1"})
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, a, http.MethodPost, "/api/login", "", gin.H{"email": u.Email, "password": "another-pass-1"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestCheckoutRejectsOversizedBody(t *testing.T) {
	a, db := newTestApp(t)
	student := testutil.CreateUser(t, db, model.Student)
	course := testutil.CreateCourse(t, db, nil, 99)

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	require.NoError(t, mw.WriteField("method", "transfer"))
	part, err := mw.CreateFormFile("proof", "slip.jpg")
	require.NoError(t, err)
	_, err = part.Write(make([]byte, 8*1024*1024))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/courses/"+fmt.Sprint(course.ID)+"/checkout", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, student))
	w := httptest.NewRecorder()
	a.Router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	var n int64
	require.NoError(t, db.Model(&model.Payment{}).Count(&n).Error)
	assert.Zero(t, n)
}
