package service

import (
	"context"

	"prepcourse_backend/internal/model"
	"prepcourse_backend/internal/repository"
	"prepcourse_backend/internal/util"
)

// ensureCourseAccess loads the course and checks the user is its author or enrolled in it.
func ensureCourseAccess(ctx context.Context, courses *repository.CourseRepository, enrollments *repository.EnrollmentRepository, courseID, userID uint) (*model.Course, error) {
	course, err := courses.FindByID(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if course.AuthorID == userID {
		return course, nil
	}

	enrolled, err := enrollments.IsEnrolled(ctx, courseID, userID)
	if err != nil {
		return nil, err
	}
	if !enrolled {
		return nil, util.ErrAccessDenied
	}
	return course, nil
}
