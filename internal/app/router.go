package app

import (
	"intellearn_backend/docs"
	"intellearn_backend/internal/config"
	"intellearn_backend/internal/middleware"
	"intellearn_backend/internal/model"
	"intellearn_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	a.registerPublicRoutes(router, c, cfg)

	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg.JWT.Secret))
	{
		a.registerStudentRoutes(authGroup, c)
		a.registerInstructorRoutes(authGroup, c)
	}

	a.registerAdminRoutes(router, c, cfg)
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)

		public.GET("/courses", c.course.List)
		public.GET("/courses/:id", middleware.TryAuthMiddleware(cfg.JWT.Secret), c.course.Detail)

		// Called by Stripe; authenticated by signature, not by JWT.
		public.POST("/payments/webhook/stripe", c.payment.Webhook)
	}
}

func (a *App) registerStudentRoutes(rg *gin.RouterGroup, c *controllers) {
	rg.GET("/profile", c.auth.GetProfile)
	rg.PUT("/profile", c.auth.UpdateProfile)
	rg.PUT("/profile/password", c.auth.ChangePassword)

	// Content
	rg.GET("/courses/:id/lessons", c.lesson.ListByCourse)
	rg.GET("/lessons/:id", c.lesson.Get)
	rg.GET("/courses/:id/quizzes", c.quiz.ListByCourse)

	// Enrollment and progress
	rg.POST("/courses/:id/enroll", c.course.Enroll)
	rg.GET("/my-courses", c.course.MyCourses)
	rg.POST("/lessons/:id/complete", c.progress.MarkComplete)
	rg.DELETE("/lessons/:id/complete", c.progress.UnmarkComplete)
	rg.GET("/progress", c.progress.MyProgress)
	rg.GET("/courses/:id/progress", c.progress.CourseProgress)

	// Quizzes
	rg.GET("/quizzes/:id/take", c.quiz.Take)
	rg.POST("/quizzes/:id/submit", c.quiz.Submit)

	// Payments
	rg.POST("/courses/:id/checkout", c.payment.Checkout)
	rg.POST("/courses/:id/checkout/session", c.payment.CreateSession)
	rg.GET("/payments", c.payment.ListMine)
	rg.GET("/payments/:id", c.payment.Get)

	rg.GET("/dashboard/student", c.dashboard.Student)
}

// Ownership is checked per course by the services; the role gate only keeps
// students away from authoring endpoints early.
func (a *App) registerInstructorRoutes(rg *gin.RouterGroup, c *controllers) {
	instructor := rg.Group("")
	instructor.Use(middleware.RoleMiddleware(model.Instructor))
	{
		instructor.POST("/courses", c.course.Create)
		instructor.PUT("/courses/:id", c.course.Update)
		instructor.DELETE("/courses/:id", c.course.Delete)

		instructor.POST("/courses/:id/lessons", c.lesson.Create)
		instructor.PUT("/lessons/:id", c.lesson.Update)
		instructor.DELETE("/lessons/:id", c.lesson.Delete)
		instructor.POST("/lessons/:id/video", c.lesson.UploadVideo)

		instructor.POST("/courses/:id/quizzes", c.quiz.Create)
		instructor.GET("/quizzes/:id", c.quiz.Get)
		instructor.PUT("/quizzes/:id", c.quiz.Update)
		instructor.DELETE("/quizzes/:id", c.quiz.Delete)
		instructor.POST("/quizzes/:id/questions", c.quiz.CreateQuestion)
		instructor.PUT("/questions/:id", c.quiz.UpdateQuestion)
		instructor.DELETE("/questions/:id", c.quiz.DeleteQuestion)
		instructor.POST("/questions/:id/answers", c.quiz.CreateAnswer)
		instructor.PUT("/answers/:id", c.quiz.UpdateAnswer)
		instructor.DELETE("/answers/:id", c.quiz.DeleteAnswer)

		instructor.GET("/dashboard/instructor", c.dashboard.Instructor)
	}
}

func (a *App) registerAdminRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	admin := router.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware(cfg.JWT.Secret), middleware.StaffMiddleware())
	{
		admin.GET("/payments", c.payment.ListAll)
		admin.POST("/payments/:id/confirm", c.payment.Confirm)
	}
}
