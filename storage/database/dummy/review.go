package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/review"
)

type reviewRepository struct {
	db *reviewTable
}

var _ review.Repository = (*reviewRepository)(nil) // interface compliance check

func NewReviewRepository(db *DB) *reviewRepository {
	return &reviewRepository{db: db.review}
}

func (repo *reviewRepository) query() []review.Review {
	reviews := make([]review.Review, 0, len(repo.db.table))
	for _, rev := range repo.db.table {
		reviews = append(reviews, *rev)
	}
	sort.Slice(reviews, func(i, j int) bool { return reviews[i].CreatedAt.After(reviews[j].CreatedAt) })
	return reviews
}

func (repo *reviewRepository) CreateReview(ctx context.Context, rev review.Review, exec ...core.DBExecutor) (review.Review, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	rev.ID = uuid.New().String()
	repo.db.table[rev.ID] = &rev
	return rev, nil
}

func (repo *reviewRepository) GetReview(ctx context.Context, filter review.GetFilter, exec ...core.DBExecutor) (review.Review, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if filter.ID != "" {
		if rev, ok := repo.db.table[filter.ID]; ok {
			return *rev, nil
		}
		return review.Review{}, review.ErrNotFound
	}
	if filter.EnrollmentID != "" {
		for _, rev := range repo.db.table {
			if rev.EnrollmentID == filter.EnrollmentID {
				return *rev, nil
			}
		}
	}
	return review.Review{}, review.ErrNotFound
}

func (repo *reviewRepository) QueryReviews(ctx context.Context, filter *review.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]review.Review, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	reviews := repo.query()
	if filter == nil {
		return reviews, nil
	}

	if filter.CourseID != "" {
		var filtered []review.Review
		for _, rev := range reviews {
			if rev.CourseID == filter.CourseID {
				filtered = append(filtered, rev)
			}
		}
		reviews = filtered
	}
	if reviews != nil && filter.StudentID != "" {
		var filtered []review.Review
		for _, rev := range reviews {
			if rev.StudentID == filter.StudentID {
				filtered = append(filtered, rev)
			}
		}
		reviews = filtered
	}
	if reviews != nil && filter.Rating != nil {
		var filtered []review.Review
		for _, rev := range reviews {
			if rev.Rating == *filter.Rating {
				filtered = append(filtered, rev)
			}
		}
		reviews = filtered
	}

	return reviews, nil
}

func (repo *reviewRepository) UpdateReview(ctx context.Context, rev review.Review, exec ...core.DBExecutor) (review.Review, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	origRev, ok := repo.db.table[rev.ID]
	if !ok {
		return review.Review{}, review.ErrNotFound
	}
	origRev.Rating = rev.Rating
	origRev.Comment = rev.Comment
	origRev.UpdatedAt = rev.UpdatedAt

	return *origRev, nil
}

func (repo *reviewRepository) DeleteReviewsByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var cnt int
	for _, id := range ids {
		if _, ok := repo.db.table[id]; ok {
			delete(repo.db.table, id)
			cnt++
		}
	}
	return cnt, nil
}

func (repo *reviewRepository) CountReviews(ctx context.Context, exec ...core.DBExecutor) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return len(repo.db.table), nil
}
