package controller

import (
	"prepcourse_backend/internal/service"
	"prepcourse_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type CourseController struct {
	CourseService *service.CourseService
}

func NewCourseController(courseService *service.CourseService) *CourseController {
	return &CourseController{CourseService: courseService}
}

// GenerateCourse godoc
// @Summary 根据主题生成课程大纲
// @Tags 课程
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body service.CreateCourseRequest true "课程主题"
// @Success 201 {object} util.Response
// @Failure 500 {object} util.ErrorResponse "生成失败"
// @Router /courses/generate [post]
func (c *CourseController) GenerateCourse(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}

	var req service.CreateCourseRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	course, err := c.CourseService.CreateFromTopic(ctx.Request.Context(), userID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, course)
}

// GenerateChapterContent godoc
// @Summary 生成章节内容
// @Tags 课程
// @Produce json
// @Security ApiKeyAuth
// @Param courseId path int true "课程ID"
// @Param chapterId path int true "章节ID"
// @Success 200 {object} util.Response
// @Failure 403 {object} util.ErrorResponse
// @Router /courses/{courseId}/chapters/{chapterId}/generate [post]
func (c *CourseController) GenerateChapterContent(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	courseID, ok := parseID(ctx, "courseId")
	if !ok {
		return
	}
	chapterID, ok := parseID(ctx, "chapterId")
	if !ok {
		return
	}

	chapter, err := c.CourseService.GenerateChapterContent(ctx.Request.Context(), courseID, chapterID, userID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, chapter)
}

// ListCourses godoc
// @Summary 公开课程列表
// @Tags 课程
// @Produce json
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /courses [get]
func (c *CourseController) ListCourses(ctx *gin.Context) {
	page, limit := util.ParsePage(ctx.Query("page"), ctx.Query("limit"))

	courses, total, err := c.CourseService.ListPublic(ctx.Request.Context(), page, limit)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: courses, Total: total, Page: page, Limit: limit})
}

// ListMyCourses godoc
// @Summary 我创建或报名的课程
// @Tags 课程
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response
// @Router /courses/mine [get]
func (c *CourseController) ListMyCourses(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}

	courses, err := c.CourseService.ListMine(ctx.Request.Context(), userID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, courses)
}

// GetCourse godoc
// @Summary 课程详情
// @Tags 课程
// @Produce json
// @Security ApiKeyAuth
// @Param courseId path int true "课程ID"
// @Success 200 {object} util.Response
// @Failure 404 {object} util.ErrorResponse
// @Router /courses/{courseId} [get]
func (c *CourseController) GetCourse(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	courseID, ok := parseID(ctx, "courseId")
	if !ok {
		return
	}

	detail, err := c.CourseService.GetCourse(ctx.Request.Context(), courseID, userID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, detail)
}

// UpdateCourse godoc
// @Summary 更新课程
// @Tags 课程
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param courseId path int true "课程ID"
// @Param body body service.UpdateCourseRequest true "更新内容"
// @Success 200 {object} util.Response
// @Router /courses/{courseId} [put]
func (c *CourseController) UpdateCourse(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	courseID, ok := parseID(ctx, "courseId")
	if !ok {
		return
	}

	var req service.UpdateCourseRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	course, err := c.CourseService.UpdateCourse(ctx.Request.Context(), courseID, userID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, course)
}

// Enroll godoc
// @Summary 报名课程
// @Tags 课程
// @Produce json
// @Security ApiKeyAuth
// @Param courseId path int true "课程ID"
// @Success 200 {object} util.Response
// @Router /courses/{courseId}/enroll [post]
func (c *CourseController) Enroll(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	courseID, ok := parseID(ctx, "courseId")
	if !ok {
		return
	}

	enrollment, err := c.CourseService.Enroll(ctx.Request.Context(), courseID, userID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, enrollment)
}

// ToggleBookmark godoc
// @Summary 收藏/取消收藏课程
// @Tags 课程
// @Produce json
// @Security ApiKeyAuth
// @Param courseId path int true "课程ID"
// @Success 200 {object} util.Response
// @Router /courses/{courseId}/bookmark [post]
func (c *CourseController) ToggleBookmark(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	courseID, ok := parseID(ctx, "courseId")
	if !ok {
		return
	}

	bookmarked, err := c.CourseService.ToggleBookmark(ctx.Request.Context(), courseID, userID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"bookmarked": bookmarked})
}

// CompleteChapter godoc
// @Summary 标记章节完成
// @Tags 课程
// @Produce json
// @Security ApiKeyAuth
// @Param courseId path int true "课程ID"
// @Param chapterId path int true "章节ID"
// @Success 200 {object} util.Response
// @Router /courses/{courseId}/chapters/{chapterId}/complete [post]
func (c *CourseController) CompleteChapter(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	courseID, ok := parseID(ctx, "courseId")
	if !ok {
		return
	}
	chapterID, ok := parseID(ctx, "chapterId")
	if !ok {
		return
	}

	enrollment, err := c.CourseService.CompleteChapter(ctx.Request.Context(), courseID, chapterID, userID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, enrollment)
}

// GetProgress godoc
// @Summary 课程学习进度
// @Tags 课程
// @Produce json
// @Security ApiKeyAuth
// @Param courseId path int true "课程ID"
// @Success 200 {object} util.Response
// @Router /courses/{courseId}/progress [get]
func (c *CourseController) GetProgress(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	courseID, ok := parseID(ctx, "courseId")
	if !ok {
		return
	}

	progress, err := c.CourseService.GetProgress(ctx.Request.Context(), courseID, userID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, progress)
}
