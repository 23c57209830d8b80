package app

import (
	"context"
	"errors"
	"intellearn_backend/internal/config"
	"intellearn_backend/internal/controller"
	"intellearn_backend/internal/middleware"
	"intellearn_backend/internal/repository"
	"intellearn_backend/internal/service"
	"intellearn_backend/pkg/configwatcher"
	"intellearn_backend/pkg/database"
	"intellearn_backend/pkg/logger"
	"intellearn_backend/pkg/monitoring"
	"intellearn_backend/pkg/security"
	"intellearn_backend/pkg/tracing"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const configDir = "configs"

type App struct {
	Config *config.Config
	Router *gin.Engine
	DB     *gorm.DB
	Redis  *redis.Client

	services    *services
	limiter     *security.RateLimiter
	sweeper     *service.PaymentSweeper
	tracer      *sdktrace.TracerProvider
	stop        chan struct{}
	stopWatcher context.CancelFunc
}

type repositories struct {
	user       *repository.UserRepository
	course     *repository.CourseRepository
	lesson     *repository.LessonRepository
	enrollment *repository.EnrollmentRepository
	progress   *repository.ProgressRepository
	quiz       *repository.QuizRepository
	payment    *repository.PaymentRepository
	dashboard  *repository.DashboardRepository
}

type services struct {
	auth       *service.AuthService
	user       *service.UserService
	storage    *service.StorageService
	access     *service.Access
	enrollment *service.EnrollmentService
	progress   *service.ProgressService
	course     *service.CourseService
	lesson     *service.LessonService
	quiz       *service.QuizService
	payment    *service.PaymentService
	dashboard  *service.DashboardService
}

type controllers struct {
	auth      *controller.AuthController
	course    *controller.CourseController
	lesson    *controller.LessonController
	progress  *controller.ProgressController
	quiz      *controller.QuizController
	payment   *controller.PaymentController
	dashboard *controller.DashboardController
	health    *controller.HealthController
}

// Deps are the outside collaborators New cannot build from config alone.
type Deps struct {
	DB      *gorm.DB
	Redis   *redis.Client
	Gateway service.Gateway
	Mailer  service.Mailer
}

func initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:       repository.NewUserRepository(db),
		course:     repository.NewCourseRepository(db),
		lesson:     repository.NewLessonRepository(db),
		enrollment: repository.NewEnrollmentRepository(db),
		progress:   repository.NewProgressRepository(db),
		quiz:       repository.NewQuizRepository(db),
		payment:    repository.NewPaymentRepository(db),
		dashboard:  repository.NewDashboardRepository(db),
	}
}

func initServices(repos *repositories, cfg *config.Config, deps Deps) *services {
	s := &services{}

	s.storage = service.NewStorageService(&cfg.Storage)
	s.auth = service.NewAuthService(repos.user, cfg)
	s.user = service.NewUserService(repos.user)
	s.access = service.NewAccess(repos.enrollment, repos.payment)
	s.enrollment = service.NewEnrollmentService(deps.DB, repos.enrollment, repos.course, repos.user, deps.Mailer)
	s.progress = service.NewProgressService(repos.enrollment, repos.lesson, repos.progress)
	s.course = service.NewCourseService(repos.course, repos.lesson, repos.enrollment, s.progress, s.access)
	s.lesson = service.NewLessonService(repos.lesson, repos.course, s.storage, s.access)
	s.quiz = service.NewQuizService(repos.quiz, repos.course, repos.enrollment, s.access)
	s.payment = service.NewPaymentService(
		deps.DB,
		repos.payment,
		repos.course,
		s.enrollment,
		s.storage,
		deps.Gateway,
		s.access,
		&cfg.Payment,
	)
	s.dashboard = service.NewDashboardService(repos.dashboard, repos.enrollment, repos.quiz, s.progress, s.access)

	return s
}

func initControllers(s *services, db *gorm.DB) *controllers {
	return &controllers{
		auth:      controller.NewAuthController(s.auth, s.user),
		course:    controller.NewCourseController(s.course, s.enrollment),
		lesson:    controller.NewLessonController(s.lesson),
		progress:  controller.NewProgressController(s.progress),
		quiz:      controller.NewQuizController(s.quiz),
		payment:   controller.NewPaymentController(s.payment),
		dashboard: controller.NewDashboardController(s.dashboard),
		health:    controller.NewHealthController(db),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(middleware.RequestID())
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(a.limiter.Middleware())

	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// New wires repositories, services, controllers and routes on top of deps.
// It starts nothing in the background.
func New(cfg *config.Config, deps Deps) (*App, error) {
	if err := controller.RegisterValidators(); err != nil {
		return nil, err
	}
	monitoring.Init()

	a := &App{
		Config:  cfg,
		DB:      deps.DB,
		Redis:   deps.Redis,
		limiter: security.NewRateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute),
		stop:    make(chan struct{}),
	}

	repos := initRepositories(deps.DB)
	a.services = initServices(repos, cfg, deps)
	a.sweeper = service.NewPaymentSweeper(a.services.payment, repos.payment, deps.Redis, cfg.Payment.PendingTTL)
	ctrls := initControllers(a.services, deps.DB)

	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Server.Mode == gin.DebugMode {
		router.Use(gin.Logger())
	}
	a.Router = router

	a.setupMiddlewares(router, cfg)
	a.registerRoutes(router, ctrls, cfg)

	if cfg.Storage.Type == "local" {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}
	return a, nil
}

// NewApp connects to the database, Redis, Stripe and the mailer from cfg and
// builds the application. Fatal startup errors are logged and exit.
func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	gin.SetMode(cfg.Server.Mode)

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode == gin.DebugMode)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	if cfg.Server.Mode != gin.ReleaseMode || cfg.ForceMigrate {
		if err := database.Migrate(db); err != nil {
			logger.Log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = database.InitRedis(&cfg.Redis)
		if err != nil {
			logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		}
	}

	if cfg.Stripe.SecretKey == "" {
		logger.Log.Warn("Stripe secret key is not set, hosted checkout will fail")
	}

	app, err := New(cfg, Deps{
		DB:      db,
		Redis:   rdb,
		Gateway: service.NewStripeGateway(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret),
		Mailer:  service.NewMailer(&cfg.Mail),
	})
	if err != nil {
		logger.Log.Fatal("Failed to build application", zap.Error(err))
	}

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("intellearn", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	if err := app.services.auth.SeedSuperuser(context.Background()); err != nil {
		logger.Log.Error("Failed to seed superuser", zap.Error(err))
	}

	if cfg.Recount {
		if err := app.Recount(context.Background()); err != nil {
			logger.Log.Fatal("Failed to recount cached counters", zap.Error(err))
		}
	}

	return app
}

// Recount repairs every cached lesson and question total.
func (a *App) Recount(ctx context.Context) error {
	repos := initRepositories(a.DB)
	if err := service.RecountAll(ctx, repos.lesson, repos.quiz); err != nil {
		return err
	}
	logger.Log.Info("Cached counters recounted")
	return nil
}

// reloaders are applied when configs/config.yaml changes on disk.
func (a *App) reloaders() []configwatcher.ConfigReloader {
	return []configwatcher.ConfigReloader{
		func(cfg *config.Config) {
			a.limiter.SetLimit(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute)
			logger.Log.Info("Rate limit updated", zap.Int("max_requests", cfg.RateLimit.MaxRequests))
		},
		func(cfg *config.Config) {
			a.sweeper.SetTTL(cfg.Payment.PendingTTL)
			logger.Log.Info("Pending payment TTL updated", zap.Duration("ttl", cfg.Payment.PendingTTL))
		},
	}
}

func (a *App) startBackgroundTasks() {
	go a.limiter.Run(a.stop)

	if err := a.sweeper.Start(a.Config.Payment.SweepCron); err != nil {
		logger.Log.Error("Payment sweeper not started", zap.Error(err))
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	a.stopWatcher = cancel
	configFile := filepath.Join(configDir, "config.yaml")
	if _, err := os.Stat(configFile); err == nil {
		go func() {
			if err := configwatcher.WatchConfig(watchCtx, configFile, a.reloaders()...); err != nil {
				logger.Log.Error("Config watcher stopped", zap.Error(err))
			}
		}()
	}
}

func (a *App) Run() {
	a.startBackgroundTasks()

	srv := &http.Server{
		Addr:              ":" + a.Config.Server.Port,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("listen", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	a.Close(ctx)
	logger.Log.Info("Server exiting")
}

// Close stops background work and releases connections.
func (a *App) Close(ctx context.Context) {
	close(a.stop)
	if a.stopWatcher != nil {
		a.stopWatcher()
	}
	a.sweeper.Stop()

	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		sqlDB.Close()
	}
}
