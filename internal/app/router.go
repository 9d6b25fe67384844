package app

import (
	"lms_quiz_backend/docs"
	"lms_quiz_backend/internal/config"
	"lms_quiz_backend/internal/middleware"
	"lms_quiz_backend/internal/model"
	"lms_quiz_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	a.registerPublicRoutes(router, c)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		// 学生/通用 授权接口
		a.registerStudentRoutes(authGroup, c)

		// 教师相关接口
		a.registerTeacherRoutes(authGroup, c)
	}
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
	}
}

func (a *App) registerStudentRoutes(group *gin.RouterGroup, c *controllers) {
	group.GET("/profile", c.auth.GetProfile)

	quizzes := group.Group("/quizzes")
	{
		quizzes.GET("/:quizId", c.attempt.GetQuiz)
		quizzes.POST("/:quizId/attempt", c.attempt.StartAttempt)
		quizzes.POST("/:quizId/answer", c.attempt.SaveAnswer)
		quizzes.POST("/:quizId/submit", c.attempt.SubmitAttempt)
		quizzes.GET("/:quizId/results", c.attempt.GetResults)
	}
}

func (a *App) registerTeacherRoutes(group *gin.RouterGroup, c *controllers) {
	teacher := group.Group("/teacher")
	teacher.Use(middleware.RoleMiddleware(model.Teacher))
	{
		teacher.GET("/courses", c.quiz.ListCourses)
		teacher.POST("/courses", c.quiz.CreateCourse)
		teacher.GET("/courses/:id/quizzes", c.quiz.ListCourseQuizzes)
		teacher.POST("/quizzes", c.quiz.CreateQuiz)
		teacher.GET("/quizzes/:id", c.quiz.GetQuiz)
		teacher.PUT("/quizzes/:id", c.quiz.UpdateQuiz)
		teacher.GET("/quizzes/:id/attempts", c.attempt.ListAttempts)
	}
}
