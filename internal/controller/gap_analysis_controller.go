package controller

import (
	"edu_gap_analytics/internal/model"
	"edu_gap_analytics/internal/repository"
	"edu_gap_analytics/internal/service"
	"edu_gap_analytics/internal/util"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

type GapAnalysisController struct {
	Coordinator *service.AnalysisCoordinator
	Detection   *service.GapDetectionService
	GapRepo     *repository.GapRepository
}

func NewGapAnalysisController(
	coordinator *service.AnalysisCoordinator,
	detection *service.GapDetectionService,
	gapRepo *repository.GapRepository,
) *GapAnalysisController {
	return &GapAnalysisController{
		Coordinator: coordinator,
		Detection:   detection,
		GapRepo:     gapRepo,
	}
}

// AnalyzeStudent godoc
// @Summary 分析学生学习差距
// @Description 同步执行差距检测并返回结果。urgent=true 时走紧急通道（跳过数据充分性检查并持久化结果）
// @Tags 差距分析
// @Produce json
// @Param studentId path string true "学生标识"
// @Param urgent query bool false "紧急分析"
// @Success 200 {object} util.Response{data=model.GapAnalysis}
// @Failure 500 {object} util.Response
// @Router /api/gap-analysis/analyze/{studentId} [post]
func (c *GapAnalysisController) AnalyzeStudent(ctx *gin.Context) {
	studentID := ctx.Param("studentId")

	if ctx.Query("urgent") == "true" {
		reason := ctx.DefaultQuery("reason", "api_request")
		analysis, err := c.Coordinator.TriggerUrgentAnalysis(ctx.Request.Context(), studentID, reason)
		if err != nil {
			util.LogInternalError(ctx, err)
			return
		}
		util.Success(ctx, analysis)
		return
	}

	gaps, err := c.Detection.DetectLearningGaps(studentID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	intervals := make(map[string]model.ConfidenceInterval)
	for _, gap := range gaps {
		if _, done := intervals[gap.ConceptID]; done {
			continue
		}
		interval, err := c.Detection.ConfidenceInterval(studentID, gap.ConceptID)
		if err != nil {
			util.LogInternalError(ctx, err)
			return
		}
		intervals[gap.ConceptID] = interval
	}

	averageSeverity := 0.0
	for _, gap := range gaps {
		averageSeverity += gap.GapSeverity
	}
	if len(gaps) > 0 {
		averageSeverity /= float64(len(gaps))
	}

	util.Success(ctx, model.GapAnalysis{
		StudentID:           studentID,
		AnalysisTimestamp:   time.Now(),
		IdentifiedGaps:      gaps,
		TotalGaps:           len(gaps),
		AverageSeverity:     averageSeverity,
		ConfidenceIntervals: intervals,
	})
}

// TriggerAnalysis godoc
// @Summary 触发后台差距分析
// @Description 请求入队后立即返回，分析在后台执行
// @Tags 差距分析
// @Produce json
// @Param studentId path string true "学生标识"
// @Success 202 {object} util.Response
// @Router /api/gap-analysis/trigger/{studentId} [post]
func (c *GapAnalysisController) TriggerAnalysis(ctx *gin.Context) {
	studentID := ctx.Param("studentId")

	c.Coordinator.TriggerGapAnalysis(studentID, nil)

	util.Accepted(ctx, gin.H{
		"studentId":   studentID,
		"queueStatus": c.Coordinator.GetQueueStatus(),
	})
}

// GetStudentGaps godoc
// @Summary 查询学生当前差距
// @Tags 差距分析
// @Produce json
// @Param studentId path string true "学生标识"
// @Param severity_threshold query number false "最低严重度"
// @Param include_resolved query bool false "包含已基本消除的差距"
// @Success 200 {object} util.Response{data=[]model.LearningGap}
// @Router /api/gap-analysis/student/{studentId}/gaps [get]
func (c *GapAnalysisController) GetStudentGaps(ctx *gin.Context) {
	studentID := ctx.Param("studentId")
	threshold, _ := strconv.ParseFloat(ctx.DefaultQuery("severity_threshold", "0"), 64)
	includeResolved := ctx.Query("include_resolved") == "true"

	gaps, err := c.GapRepo.ListByStudent(studentID, threshold, includeResolved)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{
		"studentId": studentID,
		"totalGaps": len(gaps),
		"gaps":      gaps,
	})
}

// GetAnalysisHistory godoc
// @Summary 查询历史分析记录
// @Tags 差距分析
// @Produce json
// @Param studentId path string true "学生标识"
// @Param limit query int false "返回条数，默认 10"
// @Success 200 {object} util.Response{data=[]model.GapAnalysis}
// @Router /api/gap-analysis/student/{studentId}/history [get]
func (c *GapAnalysisController) GetAnalysisHistory(ctx *gin.Context) {
	studentID := ctx.Param("studentId")
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "10"))

	history, err := c.Coordinator.GetAnalysisHistory(studentID, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{
		"studentId": studentID,
		"count":     len(history),
		"analyses":  history,
	})
}

// GetConceptStudents godoc
// @Summary 查询某概念下存在差距的学生
// @Tags 差距分析
// @Produce json
// @Param conceptId path string true "概念标识"
// @Param severity_threshold query number false "最低严重度，默认 0.5"
// @Success 200 {object} util.Response{data=[]model.ConceptGapStudent}
// @Router /api/gap-analysis/concept/{conceptId}/students [get]
func (c *GapAnalysisController) GetConceptStudents(ctx *gin.Context) {
	conceptID := ctx.Param("conceptId")
	threshold, _ := strconv.ParseFloat(ctx.DefaultQuery("severity_threshold", "0.5"), 64)

	gaps, err := c.GapRepo.ListByConcept(conceptID, threshold)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	students := make([]model.ConceptGapStudent, 0, len(gaps))
	for _, gap := range gaps {
		students = append(students, model.ConceptGapStudent{
			StudentID:        gap.StudentID,
			GapSeverity:      gap.GapSeverity,
			ConfidenceScore:  gap.ConfidenceScore,
			IdentifiedAt:     gap.IdentifiedAt,
			ImprovementTrend: gap.ImprovementTrend,
		})
	}

	util.Success(ctx, gin.H{
		"conceptId": conceptID,
		"count":     len(students),
		"students":  students,
	})
}

// GetSystemStatus godoc
// @Summary 差距分析系统状态
// @Tags 差距分析
// @Produce json
// @Success 200 {object} util.Response{data=model.SystemStatus}
// @Router /api/gap-analysis/system/status [get]
func (c *GapAnalysisController) GetSystemStatus(ctx *gin.Context) {
	status, err := c.Coordinator.GetSystemStatus()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, status)
}

// RetrainModels godoc
// @Summary 手动触发模型重训
// @Tags 差距分析
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response
// @Failure 500 {object} util.Response
// @Router /api/gap-analysis/retrain [post]
func (c *GapAnalysisController) RetrainModels(ctx *gin.Context) {
	trained, err := c.Coordinator.RetrainModels(ctx.Request.Context())
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	message := "models retrained"
	if !trained {
		message = "retraining skipped: insufficient training data"
	}
	util.Success(ctx, gin.H{
		"retrained": trained,
		"message":   message,
	})
}
