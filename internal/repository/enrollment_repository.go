package repository

import (
	"context"
	"errors"
	"time"

	"prepcourse_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EnrollmentRepository struct {
	DB *gorm.DB
}

func NewEnrollmentRepository(db *gorm.DB) *EnrollmentRepository {
	return &EnrollmentRepository{DB: db}
}

func (r *EnrollmentRepository) Find(ctx context.Context, courseID, userID uint) (*model.Enrollment, error) {
	var e model.Enrollment
	err := r.DB.WithContext(ctx).Where("course_id = ? AND user_id = ?", courseID, userID).First(&e).Error
	if err != nil {
		return nil, translate(err)
	}
	return &e, nil
}

func (r *EnrollmentRepository) IsEnrolled(ctx context.Context, courseID, userID uint) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.Enrollment{}).
		Where("course_id = ? AND user_id = ?", courseID, userID).
		Count(&count).Error
	return count > 0, err
}

// Enroll is idempotent: the (course, user) unique index keeps one row per pair.
func (r *EnrollmentRepository) Enroll(ctx context.Context, courseID, userID uint) (*model.Enrollment, error) {
	e := &model.Enrollment{CourseID: courseID, UserID: userID}
	err := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(e).Error
	if err != nil {
		return nil, err
	}
	return r.Find(ctx, courseID, userID)
}

// CompleteChapter marks the chapter done and recomputes the enrollment progress.
func (r *EnrollmentRepository) CompleteChapter(ctx context.Context, courseID, chapterID, userID uint, now time.Time) (*model.Enrollment, error) {
	var enrollment model.Enrollment
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("course_id = ? AND user_id = ?", courseID, userID).First(&enrollment).Error; err != nil {
			return translate(err)
		}

		var progress model.ChapterProgress
		err := tx.Where("chapter_id = ? AND user_id = ?", chapterID, userID).First(&progress).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			progress = model.ChapterProgress{
				ChapterID:   chapterID,
				CourseID:    courseID,
				UserID:      userID,
				IsCompleted: true,
				CompletedAt: &now,
			}
			if err := tx.Create(&progress).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		case !progress.IsCompleted:
			if err := tx.Model(&progress).Updates(map[string]interface{}{
				"is_completed": true,
				"completed_at": now,
			}).Error; err != nil {
				return err
			}
		}

		var total, done int64
		if err := tx.Model(&model.Chapter{}).Where("course_id = ?", courseID).Count(&total).Error; err != nil {
			return err
		}
		if err := tx.Model(&model.ChapterProgress{}).
			Where("course_id = ? AND user_id = ? AND is_completed = ?", courseID, userID, true).
			Count(&done).Error; err != nil {
			return err
		}

		enrollment.Progress = ProgressPercent(done, total)
		if enrollment.Progress >= 100 && !enrollment.IsCompleted {
			enrollment.IsCompleted = true
			enrollment.CompletedAt = &now
		}
		return tx.Save(&enrollment).Error
	})
	if err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ProgressPercent is the rounded share of completed chapters, clamped to 0..100.
func ProgressPercent(done, total int64) int {
	if total <= 0 || done <= 0 {
		return 0
	}
	if done >= total {
		return 100
	}
	return int((done*100 + total/2) / total)
}

// ToggleBookmark flips the bookmark and reports the new state.
func (r *EnrollmentRepository) ToggleBookmark(ctx context.Context, courseID, userID uint) (bool, error) {
	bookmarked := false
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Unscoped().Where("course_id = ? AND user_id = ?", courseID, userID).Delete(&model.Bookmark{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
		bookmarked = true
		return tx.Create(&model.Bookmark{CourseID: courseID, UserID: userID}).Error
	})
	return bookmarked, err
}

func (r *EnrollmentRepository) CompletedChapterIDs(ctx context.Context, courseID, userID uint) ([]uint, error) {
	var ids []uint
	err := r.DB.WithContext(ctx).Model(&model.ChapterProgress{}).
		Where("course_id = ? AND user_id = ? AND is_completed = ?", courseID, userID, true).
		Pluck("chapter_id", &ids).Error
	return ids, err
}

func (r *EnrollmentRepository) IsBookmarked(ctx context.Context, courseID, userID uint) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.Bookmark{}).
		Where("course_id = ? AND user_id = ?", courseID, userID).
		Count(&count).Error
	return count > 0, err
}
