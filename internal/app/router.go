package app

import (
	"edu_gap_analytics/docs"
	"edu_gap_analytics/internal/config"
	"edu_gap_analytics/internal/middleware"
	"edu_gap_analytics/internal/model"

	"edu_gap_analytics/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	a.registerPublicRoutes(router, c)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg), middleware.ActivityMiddleware(repos.user))
	{
		a.registerDataRoutes(authGroup, c)
		a.registerGapAnalysisRoutes(authGroup, c)

		authGroup.GET("/profile", c.auth.Profile)
	}
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers) {
	router.POST("/api/register", c.auth.Register)
	router.POST("/api/login", c.auth.Login)
	router.GET("/api/health", c.health.HealthCheck)
}

// registerDataRoutes 成绩数据采集接口
func (a *App) registerDataRoutes(group *gin.RouterGroup, c *controllers) {
	data := group.Group("/data")
	{
		data.POST("/quiz-submission", c.submission.SubmitQuiz)
		data.POST("/code-submission", c.submission.SubmitCode)
		data.POST("/assessment", c.submission.RecordAssessment)
		data.GET("/student/:studentId/performance", c.submission.GetStudentPerformance)
		data.GET("/student/:studentId/mastery/:conceptId", c.submission.GetConceptMastery)
		data.GET("/performance/stats/:studentId", c.submission.GetPerformanceStats)
	}
}

// registerGapAnalysisRoutes 差距分析接口，重训仅教师可用
func (a *App) registerGapAnalysisRoutes(group *gin.RouterGroup, c *controllers) {
	gapAnalysis := group.Group("/gap-analysis")
	{
		gapAnalysis.POST("/analyze/:studentId", c.gapAnalysis.AnalyzeStudent)
		gapAnalysis.POST("/trigger/:studentId", c.gapAnalysis.TriggerAnalysis)
		gapAnalysis.GET("/student/:studentId/gaps", c.gapAnalysis.GetStudentGaps)
		gapAnalysis.GET("/student/:studentId/history", c.gapAnalysis.GetAnalysisHistory)
		gapAnalysis.GET("/concept/:conceptId/students", c.gapAnalysis.GetConceptStudents)
		gapAnalysis.GET("/system/status", c.gapAnalysis.GetSystemStatus)

		teacherOnly := gapAnalysis.Group("/")
		teacherOnly.Use(middleware.RoleMiddleware(model.Teacher))
		{
			teacherOnly.POST("/retrain", c.gapAnalysis.RetrainModels)
		}
	}
}
