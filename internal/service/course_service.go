package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"prepcourse_backend/internal/model"
	"prepcourse_backend/internal/repository"
	"prepcourse_backend/internal/util"
	"prepcourse_backend/pkg/logger"

	"go.uber.org/zap"
)

type CreateCourseRequest struct {
	Topic    string `json:"topic" binding:"required,notblank,max=255"`
	IsPublic bool   `json:"isPublic"`
}

type UpdateCourseRequest struct {
	Title       *string `json:"title" binding:"omitempty,notblank,max=255"`
	Description *string `json:"description"`
	IsPublic    *bool   `json:"isPublic"`
}

// CourseDetail is a course with the caller's relation to it.
type CourseDetail struct {
	*model.Course
	IsAuthor     bool `json:"isAuthor"`
	IsEnrolled   bool `json:"isEnrolled"`
	IsBookmarked bool `json:"isBookmarked"`
}

type CourseProgress struct {
	CourseID          uint       `json:"courseId"`
	Progress          int        `json:"progress"`
	IsCompleted       bool       `json:"isCompleted"`
	CompletedAt       *time.Time `json:"completedAt"`
	TotalChapters     int64      `json:"totalChapters"`
	CompletedChapters []uint     `json:"completedChapters"`
}

type CourseService struct {
	CourseRepo     *repository.CourseRepository
	EnrollmentRepo *repository.EnrollmentRepository
	Generator      *ContentGenerator
	Views          ViewCounter
	Clock          func() time.Time
}

func NewCourseService(courseRepo *repository.CourseRepository, enrollmentRepo *repository.EnrollmentRepository, generator *ContentGenerator, views ViewCounter) *CourseService {
	return &CourseService{
		CourseRepo:     courseRepo,
		EnrollmentRepo: enrollmentRepo,
		Generator:      generator,
		Views:          views,
		Clock:          time.Now,
	}
}

// CreateFromTopic generates an outline and stores it as a new course with empty chapters.
func (s *CourseService) CreateFromTopic(ctx context.Context, authorID uint, req CreateCourseRequest) (*model.Course, error) {
	// 1. 生成课程大纲
	outline, err := s.Generator.GenerateOutline(ctx, req.Topic)
	if err != nil {
		return nil, err
	}

	course := &model.Course{
		Title:       outline.Title,
		Description: outline.Description,
		Topic:       strings.TrimSpace(req.Topic),
		AuthorID:    authorID,
		IsPublic:    req.IsPublic,
	}
	chapters := make([]model.Chapter, 0, len(outline.Chapters))
	for _, ch := range outline.Chapters {
		chapters = append(chapters, model.Chapter{
			Title:       ch.Title,
			Description: ch.Description,
			OrderIndex:  *ch.OrderIndex,
		})
	}

	// 2. 课程与章节在同一事务中保存
	if err := s.CourseRepo.CreateWithChapters(ctx, course, chapters); err != nil {
		return nil, err
	}
	logger.Log.Info("Course created from topic",
		zap.Uint("courseId", course.ID),
		zap.Uint("authorId", authorID),
		zap.Int("chapters", len(chapters)))
	return course, nil
}

func (s *CourseService) authorCourse(ctx context.Context, courseID, userID uint) (*model.Course, error) {
	course, err := s.CourseRepo.FindByID(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if course.AuthorID != userID {
		return nil, util.ErrAccessDenied
	}
	return course, nil
}

// GenerateChapterContent fills one chapter with generated text. Author only.
func (s *CourseService) GenerateChapterContent(ctx context.Context, courseID, chapterID, userID uint) (*model.Chapter, error) {
	course, err := s.authorCourse(ctx, courseID, userID)
	if err != nil {
		return nil, err
	}
	chapter, err := s.CourseRepo.FindChapter(ctx, courseID, chapterID)
	if err != nil {
		return nil, err
	}

	content, err := s.Generator.GenerateChapterContent(ctx, chapter.Title, course.Title, chapter.Description)
	if err != nil {
		return nil, err
	}
	if err := s.CourseRepo.UpdateChapterContent(ctx, chapter.ID, content); err != nil {
		return nil, err
	}
	chapter.Content = &content
	return chapter, nil
}

func (s *CourseService) ListPublic(ctx context.Context, page, limit int) ([]model.Course, int64, error) {
	return s.CourseRepo.ListPublic(ctx, page, limit)
}

func (s *CourseService) ListMine(ctx context.Context, userID uint) ([]model.Course, error) {
	return s.CourseRepo.ListForUser(ctx, userID)
}

// GetCourse returns a public course or one the caller can access, and counts the view.
func (s *CourseService) GetCourse(ctx context.Context, courseID, userID uint) (*CourseDetail, error) {
	course, err := s.CourseRepo.FindWithChapters(ctx, courseID)
	if err != nil {
		return nil, err
	}

	// 私有课程仅作者和已报名用户可见
	enrolled, err := s.EnrollmentRepo.IsEnrolled(ctx, courseID, userID)
	if err != nil {
		return nil, err
	}
	isAuthor := course.AuthorID == userID
	if !course.IsPublic && !isAuthor && !enrolled {
		return nil, util.ErrAccessDenied
	}

	bookmarked, err := s.EnrollmentRepo.IsBookmarked(ctx, courseID, userID)
	if err != nil {
		return nil, err
	}

	// 浏览量统计失败不影响请求
	if err := s.Views.RecordView(ctx, courseID); err != nil {
		logger.Log.Warn("Failed to record course view", zap.Uint("courseId", courseID), zap.Error(err))
	}

	return &CourseDetail{
		Course:       course,
		IsAuthor:     isAuthor,
		IsEnrolled:   enrolled,
		IsBookmarked: bookmarked,
	}, nil
}

func (s *CourseService) UpdateCourse(ctx context.Context, courseID, userID uint, req UpdateCourseRequest) (*model.Course, error) {
	course, err := s.authorCourse(ctx, courseID, userID)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		course.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		course.Description = *req.Description
	}
	if req.IsPublic != nil {
		course.IsPublic = *req.IsPublic
	}

	if err := s.CourseRepo.Update(ctx, course); err != nil {
		return nil, err
	}
	return course, nil
}

// Enroll is allowed for public courses and for the author.
func (s *CourseService) Enroll(ctx context.Context, courseID, userID uint) (*model.Enrollment, error) {
	course, err := s.CourseRepo.FindByID(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if !course.IsPublic && course.AuthorID != userID {
		return nil, util.ErrAccessDenied
	}
	return s.EnrollmentRepo.Enroll(ctx, courseID, userID)
}

func (s *CourseService) ToggleBookmark(ctx context.Context, courseID, userID uint) (bool, error) {
	if _, err := s.CourseRepo.FindByID(ctx, courseID); err != nil {
		return false, err
	}
	return s.EnrollmentRepo.ToggleBookmark(ctx, courseID, userID)
}

func (s *CourseService) CompleteChapter(ctx context.Context, courseID, chapterID, userID uint) (*model.Enrollment, error) {
	if _, err := s.CourseRepo.FindChapter(ctx, courseID, chapterID); err != nil {
		return nil, err
	}
	enrolled, err := s.EnrollmentRepo.IsEnrolled(ctx, courseID, userID)
	if err != nil {
		return nil, err
	}
	if !enrolled {
		return nil, util.WithDetails(util.ErrAccessDenied, "enroll in the course first", nil)
	}
	return s.EnrollmentRepo.CompleteChapter(ctx, courseID, chapterID, userID, s.Clock())
}

func (s *CourseService) GetProgress(ctx context.Context, courseID, userID uint) (*CourseProgress, error) {
	enrollment, err := s.EnrollmentRepo.Find(ctx, courseID, userID)
	if errors.Is(err, util.ErrNotFound) {
		return nil, util.WithDetails(util.ErrAccessDenied, "not enrolled in this course", nil)
	}
	if err != nil {
		return nil, err
	}

	total, err := s.CourseRepo.CountChapters(ctx, courseID)
	if err != nil {
		return nil, err
	}
	done, err := s.EnrollmentRepo.CompletedChapterIDs(ctx, courseID, userID)
	if err != nil {
		return nil, err
	}
	if done == nil {
		done = []uint{}
	}

	return &CourseProgress{
		CourseID:          courseID,
		Progress:          enrollment.Progress,
		IsCompleted:       enrollment.IsCompleted,
		CompletedAt:       enrollment.CompletedAt,
		TotalChapters:     total,
		CompletedChapters: done,
	}, nil
}
