package repository

import (
	"context"

	"prepcourse_backend/internal/model"

	"gorm.io/gorm"
)

type CourseRepository struct {
	DB *gorm.DB
}

func NewCourseRepository(db *gorm.DB) *CourseRepository {
	return &CourseRepository{DB: db}
}

// CreateWithChapters inserts the course and its chapters in one transaction.
func (r *CourseRepository) CreateWithChapters(ctx context.Context, course *model.Course, chapters []model.Chapter) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Chapters").Create(course).Error; err != nil {
			return err
		}
		for i := range chapters {
			chapters[i].CourseID = course.ID
		}
		if len(chapters) > 0 {
			if err := tx.Create(&chapters).Error; err != nil {
				return err
			}
		}
		course.Chapters = chapters
		return nil
	})
}

func (r *CourseRepository) FindByID(ctx context.Context, id uint) (*model.Course, error) {
	var course model.Course
	if err := r.DB.WithContext(ctx).First(&course, id).Error; err != nil {
		return nil, translate(err)
	}
	return &course, nil
}

func (r *CourseRepository) FindWithChapters(ctx context.Context, id uint) (*model.Course, error) {
	var course model.Course
	err := r.DB.WithContext(ctx).
		Preload("Chapters", func(db *gorm.DB) *gorm.DB { return db.Order("order_index asc") }).
		First(&course, id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &course, nil
}

func (r *CourseRepository) ListPublic(ctx context.Context, page, limit int) ([]model.Course, int64, error) {
	var total int64
	query := r.DB.WithContext(ctx).Model(&model.Course{}).Where("is_public = ?", true)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var courses []model.Course
	err := query.Order("view_count desc, created_at desc").
		Offset((page - 1) * limit).Limit(limit).
		Find(&courses).Error
	return courses, total, err
}

// ListForUser returns courses the user authored or is enrolled in.
func (r *CourseRepository) ListForUser(ctx context.Context, userID uint) ([]model.Course, error) {
	var courses []model.Course
	err := r.DB.WithContext(ctx).
		Where("author_id = ? OR id IN (?)", userID,
			r.DB.Model(&model.Enrollment{}).Select("course_id").Where("user_id = ?", userID)).
		Order("updated_at desc").
		Find(&courses).Error
	return courses, err
}

func (r *CourseRepository) Update(ctx context.Context, course *model.Course) error {
	return r.DB.WithContext(ctx).Omit("Chapters").Save(course).Error
}

func (r *CourseRepository) IncrementViews(ctx context.Context, courseID uint, n int64) error {
	return r.DB.WithContext(ctx).Model(&model.Course{}).
		Where("id = ?", courseID).
		UpdateColumn("view_count", gorm.Expr("view_count + ?", n)).Error
}

func (r *CourseRepository) ListChapters(ctx context.Context, courseID uint) ([]model.Chapter, error) {
	var chapters []model.Chapter
	err := r.DB.WithContext(ctx).Where("course_id = ?", courseID).Order("order_index asc").Find(&chapters).Error
	return chapters, err
}

func (r *CourseRepository) FindChapter(ctx context.Context, courseID, chapterID uint) (*model.Chapter, error) {
	var chapter model.Chapter
	err := r.DB.WithContext(ctx).Where("id = ? AND course_id = ?", chapterID, courseID).First(&chapter).Error
	if err != nil {
		return nil, translate(err)
	}
	return &chapter, nil
}

func (r *CourseRepository) UpdateChapterContent(ctx context.Context, chapterID uint, content string) error {
	return r.DB.WithContext(ctx).Model(&model.Chapter{}).
		Where("id = ?", chapterID).
		Update("content", content).Error
}

func (r *CourseRepository) CountChapters(ctx context.Context, courseID uint) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.Chapter{}).Where("course_id = ?", courseID).Count(&count).Error
	return count, err
}
