package review

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/enrollment"
	"github.com/darasahq/darasa/core/user"
)

var (
	// errors
	ErrNotFound = errors.New("review not found")

	errNotEnrolled     = "not enrolled in this course"
	errAlreadyReviewed = "this course has already been reviewed"
)

type (
	Repository interface {
		CreateReview(ctx context.Context, rev Review, exec ...core.DBExecutor) (Review, error)
		GetReview(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Review, error)
		// QueryReviews applies AND operation on available QueryFilter fields.
		QueryReviews(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Review, error)
		UpdateReview(ctx context.Context, rev Review, exec ...core.DBExecutor) (Review, error)
		DeleteReviewsByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error)
		CountReviews(ctx context.Context, exec ...core.DBExecutor) (int, error)
	}

	Service interface {
		// Create reviews a course std is actively enrolled in or has completed.
		// An enrollment carries at most one review.
		Create(ctx context.Context, std user.User, courseID string, nr NewReview) (Review, error)
		GetByID(ctx context.Context, id string) (Review, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Review, error)
		Update(ctx context.Context, origRev Review, ur UpdateReview) (Review, error)
		Delete(ctx context.Context, ids ...string) error
		Count(ctx context.Context) (int, error)
	}

	service struct {
		repo      Repository
		enrollSvc enrollment.Service
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, enrollSvc enrollment.Service) Service {
	return &service{repo: repo, enrollSvc: enrollSvc}
}

func (svc *service) Create(ctx context.Context, std user.User, courseID string, nr NewReview) (Review, error) {
	enr, err := svc.reviewableEnrollment(ctx, std.ID, courseID)
	if err != nil {
		return Review{}, err
	}

	if _, err = svc.repo.GetReview(ctx, GetFilter{EnrollmentID: enr.ID}); err == nil {
		return Review{}, core.NewValidationError(errors.New(errAlreadyReviewed))
	} else if errors.Cause(err) != ErrNotFound {
		return Review{}, err
	}

	now := time.Now().UTC()
	rev := Review{
		EnrollmentID: enr.ID,
		StudentID:    std.ID,
		CourseID:     courseID,
		Rating:       nr.Rating,
		Comment:      nr.Comment,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return svc.repo.CreateReview(ctx, rev)
}

func (svc *service) GetByID(ctx context.Context, id string) (Review, error) {
	return svc.repo.GetReview(ctx, GetFilter{ID: id})
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Review, error) {
	if filter != nil && filter.IsEmpty() {
		filter = nil
	}
	if ordering == nil {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	return svc.repo.QueryReviews(ctx, filter, ordering)
}

func (svc *service) Update(ctx context.Context, origRev Review, ur UpdateReview) (Review, error) {
	rev := Review{
		ID:           origRev.ID,
		EnrollmentID: origRev.EnrollmentID,
		StudentID:    origRev.StudentID,
		CourseID:     origRev.CourseID,
		Rating:       origRev.Rating,
		Comment:      ur.Comment,
		UpdatedAt:    time.Now().UTC(),
	}
	if ur.Rating != nil {
		rev.Rating = *ur.Rating
	}
	return svc.repo.UpdateReview(ctx, rev)
}

func (svc *service) Delete(ctx context.Context, ids ...string) error {
	_, err := svc.repo.DeleteReviewsByID(ctx, ids)
	return err
}

func (svc *service) Count(ctx context.Context) (int, error) {
	return svc.repo.CountReviews(ctx)
}

// reviewableEnrollment finds the student's live enrollment in the course,
// active or completed.
func (svc *service) reviewableEnrollment(ctx context.Context, studentID, courseID string) (enrollment.Enrollment, error) {
	enrs, err := svc.enrollSvc.Query(ctx, &enrollment.QueryFilter{StudentID: studentID, CourseID: courseID}, nil)
	if err != nil {
		return enrollment.Enrollment{}, err
	}
	for _, enr := range enrs {
		if enr.Status == enrollment.StatusActive || enr.Status == enrollment.StatusCompleted {
			return enr, nil
		}
	}
	return enrollment.Enrollment{}, core.NewValidationError(errors.New(errNotEnrolled))
}
