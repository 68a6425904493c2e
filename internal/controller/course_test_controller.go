package controller

import (
	"prepcourse_backend/internal/service"
	"prepcourse_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type SubmitTestRequest struct {
	Answers []string `json:"answers" binding:"required"`
}

// CourseTestController serves certification tests and certificates.
type CourseTestController struct {
	CertificationService *service.CertificationService
	CertificateService   *service.CertificateService
}

func NewCourseTestController(certification *service.CertificationService, certificates *service.CertificateService) *CourseTestController {
	return &CourseTestController{
		CertificationService: certification,
		CertificateService:   certificates,
	}
}

// ListTests godoc
// @Summary 课程测试记录
// @Tags 认证考试
// @Produce json
// @Security ApiKeyAuth
// @Param courseId path int true "课程ID"
// @Success 200 {object} util.Response
// @Router /courses/{courseId}/tests [get]
func (c *CourseTestController) ListTests(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	courseID, ok := parseID(ctx, "courseId")
	if !ok {
		return
	}

	tests, err := c.CertificationService.ListTests(ctx.Request.Context(), courseID, userID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, tests)
}

// GenerateTest godoc
// @Summary 生成认证考试
// @Description 返回进行中的考试；冷却期内返回 429
// @Tags 认证考试
// @Produce json
// @Security ApiKeyAuth
// @Param courseId path int true "课程ID"
// @Success 200 {object} util.Response
// @Failure 400 {object} util.ErrorResponse "章节内容不足"
// @Failure 429 {object} util.ErrorResponse "冷却中"
// @Router /courses/{courseId}/test/generate [post]
func (c *CourseTestController) GenerateTest(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	courseID, ok := parseID(ctx, "courseId")
	if !ok {
		return
	}

	test, err := c.CertificationService.GenerateTest(ctx.Request.Context(), courseID, userID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, test)
}

// CooldownStatus godoc
// @Summary 考试冷却状态
// @Tags 认证考试
// @Produce json
// @Security ApiKeyAuth
// @Param courseId path int true "课程ID"
// @Success 200 {object} util.Response{data=util.CooldownStatus}
// @Router /courses/{courseId}/test/cooldown [get]
func (c *CourseTestController) CooldownStatus(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	courseID, ok := parseID(ctx, "courseId")
	if !ok {
		return
	}

	status, err := c.CertificationService.CooldownStatus(ctx.Request.Context(), courseID, userID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, status)
}

// SubmitTest godoc
// @Summary 提交考试答案
// @Tags 认证考试
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param courseId path int true "课程ID"
// @Param testId path string true "考试ID"
// @Param body body SubmitTestRequest true "按题目顺序排列的答案"
// @Success 200 {object} util.Response
// @Failure 400 {object} util.ErrorResponse "已提交"
// @Failure 500 {object} util.ErrorResponse "评分失败"
// @Router /courses/{courseId}/test/{testId}/submit [post]
func (c *CourseTestController) SubmitTest(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	courseID, ok := parseID(ctx, "courseId")
	if !ok {
		return
	}

	var req SubmitTestRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.CertificationService.SubmitTest(ctx.Request.Context(), courseID, ctx.Param("testId"), userID, req.Answers)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// GetCertificate godoc
// @Summary 获取证书数据
// @Tags 认证考试
// @Produce json
// @Security ApiKeyAuth
// @Param courseId path int true "课程ID"
// @Param testId path string true "考试ID"
// @Success 200 {object} util.Response{data=service.Certificate}
// @Failure 400 {object} util.ErrorResponse "未通过考试"
// @Router /courses/{courseId}/test/{testId}/certificate [get]
func (c *CourseTestController) GetCertificate(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	courseID, ok := parseID(ctx, "courseId")
	if !ok {
		return
	}

	cert, err := c.CertificateService.GetCertificate(ctx.Request.Context(), courseID, ctx.Param("testId"), userID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, cert)
}

// VerifyCertificate godoc
// @Summary 公开验证证书
// @Tags 认证考试
// @Produce json
// @Param certificateId path string true "证书ID"
// @Success 200 {object} util.Response{data=service.Certificate}
// @Router /courses/verify-certificate/{certificateId} [get]
func (c *CourseTestController) VerifyCertificate(ctx *gin.Context) {
	cert, err := c.CertificateService.VerifyCertificate(ctx.Request.Context(), ctx.Param("certificateId"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, cert)
}
