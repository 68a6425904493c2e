package service

import (
	"context"
	"errors"
	"time"

	"prepcourse_backend/internal/model"
	"prepcourse_backend/internal/repository"
	"prepcourse_backend/internal/util"

	"golang.org/x/sync/errgroup"
)

// Certificate is the display and verification record of a passed test.
// The certificate id is the test id.
type Certificate struct {
	CertificateID  string     `json:"certificateId"`
	IsValid        bool       `json:"isValid"`
	CourseID       uint       `json:"courseId,omitempty"`
	CourseTitle    string     `json:"courseTitle,omitempty"`
	LearnerName    string     `json:"learnerName,omitempty"`
	Score          int        `json:"score,omitempty"`
	MarksObtained  int        `json:"marksObtained,omitempty"`
	TotalMarks     int        `json:"totalMarks,omitempty"`
	PassingScore   int        `json:"passingScore,omitempty"`
	CompletionDate string     `json:"completionDate,omitempty"`
	IssuedAt       *time.Time `json:"issuedAt,omitempty"`
}

type CertificateService struct {
	CourseRepo *repository.CourseRepository
	UserRepo   *repository.UserRepository
	TestRepo   *repository.CourseTestRepository
}

func NewCertificateService(courseRepo *repository.CourseRepository, userRepo *repository.UserRepository, testRepo *repository.CourseTestRepository) *CertificateService {
	return &CertificateService{CourseRepo: courseRepo, UserRepo: userRepo, TestRepo: testRepo}
}

// GetCertificate is the owner-only path.
func (s *CertificateService) GetCertificate(ctx context.Context, courseID uint, testID string, userID uint) (*Certificate, error) {
	// 1. 考试必须属于该课程和当前用户
	test, err := s.TestRepo.FindForCourse(ctx, courseID, testID)
	if err != nil {
		return nil, err
	}
	if test.UserID != userID {
		return nil, util.ErrAccessDenied
	}
	// 2. 只有已通过的考试才能出证书
	if !test.Passed() {
		return nil, util.ErrNotEligible
	}
	return s.assemble(ctx, test)
}

// VerifyCertificate looks a certificate up by id alone. Unknown ids and tests
// that were not passed yield an invalid record instead of an error.
func (s *CertificateService) VerifyCertificate(ctx context.Context, certificateID string) (*Certificate, error) {
	invalid := &Certificate{CertificateID: certificateID, IsValid: false}

	test, err := s.TestRepo.FindByID(ctx, certificateID)
	if errors.Is(err, util.ErrNotFound) {
		return invalid, nil
	}
	if err != nil {
		return nil, err
	}
	if !test.Passed() {
		return invalid, nil
	}

	cert, err := s.assemble(ctx, test)
	if errors.Is(err, util.ErrNotFound) {
		return invalid, nil
	}
	return cert, err
}

func (s *CertificateService) assemble(ctx context.Context, test *model.CourseTest) (*Certificate, error) {
	var (
		course *model.Course
		user   *model.User
	)
	// 并发加载课程和学员信息
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		course, err = s.CourseRepo.FindByID(gctx, test.CourseID)
		return err
	})
	g.Go(func() (err error) {
		user, err = s.UserRepo.FindByID(gctx, test.UserID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	completed := test.CreatedAt
	if test.SubmittedAt != nil {
		completed = *test.SubmittedAt
	}

	return &Certificate{
		CertificateID:  test.ID,
		IsValid:        true,
		CourseID:       course.ID,
		CourseTitle:    course.Title,
		LearnerName:    user.Name,
		Score:          derefInt(test.Score),
		MarksObtained:  derefInt(test.MarksObtained),
		TotalMarks:     test.TotalMarks,
		PassingScore:   test.PassingScore,
		CompletionDate: completed.Format(util.CertificateFormat),
		IssuedAt:       &completed,
	}, nil
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
