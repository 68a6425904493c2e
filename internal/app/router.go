package app

import (
	"prepcourse_backend/docs"
	"prepcourse_backend/internal/config"
	"prepcourse_backend/internal/middleware"
	"prepcourse_backend/internal/model"
	"prepcourse_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api/v1"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	public := router.Group("/api/v1")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/auth/register", c.auth.Register)
		public.POST("/auth/login", c.auth.Login)
		public.GET("/courses", c.course.ListCourses)
		// 证书验证只凭证书ID，无需登录
		public.GET("/courses/verify-certificate/:certificateId", c.courseTest.VerifyCertificate)
	}

	// 2. 需要授权的路由
	authGroup := router.Group("/api/v1")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		authGroup.GET("/profile", c.auth.Profile)

		courses := authGroup.Group("/courses")
		courses.POST("/generate", middleware.RoleMiddleware(model.Author), c.course.GenerateCourse)
		courses.GET("/mine", c.course.ListMyCourses)
		courses.GET("/:courseId", c.course.GetCourse)
		courses.PUT("/:courseId", c.course.UpdateCourse)
		courses.POST("/:courseId/enroll", c.course.Enroll)
		courses.POST("/:courseId/bookmark", c.course.ToggleBookmark)
		courses.GET("/:courseId/progress", c.course.GetProgress)
		courses.POST("/:courseId/chapters/:chapterId/generate", c.course.GenerateChapterContent)
		courses.POST("/:courseId/chapters/:chapterId/complete", c.course.CompleteChapter)

		// 认证考试
		courses.GET("/:courseId/tests", c.courseTest.ListTests)
		courses.GET("/:courseId/test/cooldown", c.courseTest.CooldownStatus)
		courses.POST("/:courseId/test/generate", c.courseTest.GenerateTest)
		courses.POST("/:courseId/test/:testId/submit", c.courseTest.SubmitTest)
		courses.GET("/:courseId/test/:testId/certificate", c.courseTest.GetCertificate)
	}
}
