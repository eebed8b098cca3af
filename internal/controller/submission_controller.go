package controller

import (
	"edu_gap_analytics/internal/model"
	"edu_gap_analytics/internal/service"
	"edu_gap_analytics/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
)

type SubmissionController struct {
	SubmissionService *service.SubmissionService
}

func NewSubmissionController(submissionService *service.SubmissionService) *SubmissionController {
	return &SubmissionController{SubmissionService: submissionService}
}

// SubmitQuiz godoc
// @Summary 提交测验成绩
// @Description 记录测验作答并触发后台差距分析
// @Tags 数据采集
// @Accept  json
// @Produce  json
// @Param   body body model.QuizSubmissionRequest true "测验提交"
// @Success 201 {object} util.Response{data=model.SubmissionResponse}
// @Failure 400 {object} util.Response "请求参数错误"
// @Failure 500 {object} util.Response "服务器内部错误"
// @Router /api/data/quiz-submission [post]
func (c *SubmissionController) SubmitQuiz(ctx *gin.Context) {
	var req model.QuizSubmissionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	resp, err := c.SubmissionService.SubmitQuiz(&req)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Created(ctx, resp)
}

// SubmitCode godoc
// @Summary 提交代码成绩
// @Description 记录代码评测结果并触发后台差距分析
// @Tags 数据采集
// @Accept  json
// @Produce  json
// @Param   body body model.CodeSubmissionRequest true "代码提交"
// @Success 201 {object} util.Response{data=model.SubmissionResponse}
// @Failure 400 {object} util.Response "请求参数错误"
// @Failure 500 {object} util.Response "服务器内部错误"
// @Router /api/data/code-submission [post]
func (c *SubmissionController) SubmitCode(ctx *gin.Context) {
	var req model.CodeSubmissionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	resp, err := c.SubmissionService.SubmitCode(&req)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Created(ctx, resp)
}

// GetStudentPerformance godoc
// @Summary 查询学生成绩记录
// @Description 按时间窗口返回某学生的成绩记录
// @Tags 数据采集
// @Produce json
// @Param studentId path string true "学生标识"
// @Param days query int false "时间窗口（天），默认 30"
// @Success 200 {object} util.Response{data=[]model.PerformanceRecord}
// @Router /api/data/student/{studentId}/performance [get]
func (c *SubmissionController) GetStudentPerformance(ctx *gin.Context) {
	studentID := ctx.Param("studentId")
	days, _ := strconv.Atoi(ctx.DefaultQuery("days", "30"))

	records, err := c.SubmissionService.GetStudentPerformance(studentID, days)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{
		"studentId": studentID,
		"days":      days,
		"records":   records,
	})
}

// RecordAssessment godoc
// @Summary 录入概念掌握度评估
// @Description 记录学生对某概念的掌握度，作为特征提取的补充信号
// @Tags 数据采集
// @Accept  json
// @Produce  json
// @Param   body body model.AssessmentRequest true "掌握度评估"
// @Success 201 {object} util.Response{data=model.ConceptAssessment}
// @Failure 400 {object} util.Response "请求参数错误"
// @Router /api/data/assessment [post]
func (c *SubmissionController) RecordAssessment(ctx *gin.Context) {
	var req model.AssessmentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	assessment, err := c.SubmissionService.RecordAssessment(&req)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Created(ctx, assessment)
}

// GetConceptMastery godoc
// @Summary 查询学生概念掌握度
// @Description 返回学生对某概念的最新掌握度评估
// @Tags 数据采集
// @Produce json
// @Param studentId path string true "学生标识"
// @Param conceptId path string true "概念标识"
// @Success 200 {object} util.Response{data=model.ConceptAssessment}
// @Failure 404 {object} util.Response "暂无评估记录"
// @Router /api/data/student/{studentId}/mastery/{conceptId} [get]
func (c *SubmissionController) GetConceptMastery(ctx *gin.Context) {
	studentID := ctx.Param("studentId")
	conceptID := ctx.Param("conceptId")

	assessment, err := c.SubmissionService.GetConceptMastery(studentID, conceptID)
	if err != nil {
		util.NotFound(ctx)
		return
	}

	util.Success(ctx, assessment)
}

// GetPerformanceStats godoc
// @Summary 学生成绩统计
// @Tags 数据采集
// @Produce json
// @Param studentId path string true "学生标识"
// @Success 200 {object} util.Response{data=model.PerformanceStats}
// @Router /api/data/performance/stats/{studentId} [get]
func (c *SubmissionController) GetPerformanceStats(ctx *gin.Context) {
	studentID := ctx.Param("studentId")

	stats, err := c.SubmissionService.GetPerformanceStats(studentID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, stats)
}
