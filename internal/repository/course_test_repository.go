package repository

import (
	"context"
	"time"

	"prepcourse_backend/internal/model"
	"prepcourse_backend/internal/util"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type CourseTestRepository struct {
	DB *gorm.DB
}

func NewCourseTestRepository(db *gorm.DB) *CourseTestRepository {
	return &CourseTestRepository{DB: db}
}

// FindLatest returns the most recently created test for the pair, or util.ErrNotFound.
func (r *CourseTestRepository) FindLatest(ctx context.Context, courseID, userID uint) (*model.CourseTest, error) {
	var t model.CourseTest
	err := r.DB.WithContext(ctx).
		Where("course_id = ? AND user_id = ?", courseID, userID).
		Order("created_at desc").
		First(&t).Error
	if err != nil {
		return nil, translate(err)
	}
	return &t, nil
}

func (r *CourseTestRepository) FindInProgress(ctx context.Context, courseID, userID uint) (*model.CourseTest, error) {
	var t model.CourseTest
	err := r.DB.WithContext(ctx).
		Where("course_id = ? AND user_id = ? AND status = ?", courseID, userID, model.TestInProgress).
		Order("created_at desc").
		First(&t).Error
	if err != nil {
		return nil, translate(err)
	}
	return &t, nil
}

func (r *CourseTestRepository) FindByID(ctx context.Context, id string) (*model.CourseTest, error) {
	var t model.CourseTest
	if err := r.DB.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &t, nil
}

// FindForCourse looks a test up by id inside a course, regardless of owner.
func (r *CourseTestRepository) FindForCourse(ctx context.Context, courseID uint, id string) (*model.CourseTest, error) {
	var t model.CourseTest
	err := r.DB.WithContext(ctx).Where("id = ? AND course_id = ?", id, courseID).First(&t).Error
	if err != nil {
		return nil, translate(err)
	}
	return &t, nil
}

func (r *CourseTestRepository) FindForUser(ctx context.Context, courseID uint, id string, userID uint) (*model.CourseTest, error) {
	var t model.CourseTest
	err := r.DB.WithContext(ctx).
		Where("id = ? AND course_id = ? AND user_id = ?", id, courseID, userID).
		First(&t).Error
	if err != nil {
		return nil, translate(err)
	}
	return &t, nil
}

func (r *CourseTestRepository) ListForUser(ctx context.Context, courseID, userID uint) ([]model.CourseTest, error) {
	var tests []model.CourseTest
	err := r.DB.WithContext(ctx).
		Where("course_id = ? AND user_id = ?", courseID, userID).
		Order("created_at desc").
		Find(&tests).Error
	return tests, err
}

// Create inserts an in-progress test. The unique active_key rejects a second
// in-progress test for the same pair; callers re-read FindInProgress on error.
func (r *CourseTestRepository) Create(ctx context.Context, t *model.CourseTest) error {
	key := model.ActiveKeyFor(t.CourseID, t.UserID)
	t.Status = model.TestInProgress
	t.ActiveKey = &key
	return r.DB.WithContext(ctx).Create(t).Error
}

// TestResult is the full set of columns written on submission.
type TestResult struct {
	Answers       datatypes.JSON
	Evaluations   datatypes.JSON
	MarksObtained int
	Score         int
	HasPassed     bool
	SubmittedAt   time.Time
}

// Finalize moves an in-progress test to completed in a single conditional update.
// util.ErrAlreadySubmitted is returned when the row was no longer in progress.
func (r *CourseTestRepository) Finalize(ctx context.Context, id string, res TestResult) error {
	tx := r.DB.WithContext(ctx).Model(&model.CourseTest{}).
		Where("id = ? AND status = ?", id, model.TestInProgress).
		Updates(map[string]interface{}{
			"answers":            res.Answers,
			"evaluation_results": res.Evaluations,
			"marks_obtained":     res.MarksObtained,
			"score":              res.Score,
			"has_passed":         res.HasPassed,
			"submitted_at":       res.SubmittedAt,
			"status":             model.TestCompleted,
			"active_key":         gorm.Expr("NULL"),
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return util.ErrAlreadySubmitted
	}
	return nil
}
