package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/review"
)

type reviewRow struct {
	ID           string      `db:"id"`
	EnrollmentID string      `db:"enrollment_id"`
	StudentID    string      `db:"student_id"`
	CourseID     string      `db:"course_id"`
	Rating       int         `db:"rating"`
	Comment      null.String `db:"comment"`
	CreatedAt    null.Time   `db:"created_at"`
	UpdatedAt    null.Time   `db:"updated_at"`
}

type reviewRepository struct {
	exec core.DBExecutor
}

var _ review.Repository = (*reviewRepository)(nil) // interface compliance check

func NewReviewRepository(exec core.DBExecutor) *reviewRepository {
	return &reviewRepository{exec: exec}
}

func (repo reviewRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.exec
}

func (repo reviewRepository) pack(rev review.Review) reviewRow {
	return reviewRow{
		ID:           rev.ID,
		EnrollmentID: rev.EnrollmentID,
		StudentID:    rev.StudentID,
		CourseID:     rev.CourseID,
		Rating:       rev.Rating,
		Comment:      null.NewString(rev.Comment, rev.Comment != ""),
		CreatedAt:    null.NewTime(rev.CreatedAt.UTC(), !rev.CreatedAt.IsZero()),
		UpdatedAt:    null.NewTime(rev.UpdatedAt.UTC(), !rev.UpdatedAt.IsZero()),
	}
}

func (repo reviewRepository) unpack(row reviewRow) review.Review {
	return review.Review{
		ID:           row.ID,
		EnrollmentID: row.EnrollmentID,
		StudentID:    row.StudentID,
		CourseID:     row.CourseID,
		Rating:       row.Rating,
		Comment:      row.Comment.String,
		CreatedAt:    row.CreatedAt.Time,
		UpdatedAt:    row.UpdatedAt.Time,
	}
}

// trapNoRowsErr maps psql "no rows" err to review.ErrNotFound
func (repo reviewRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return review.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo reviewRepository) CreateReview(ctx context.Context, rev review.Review, exec ...core.DBExecutor) (review.Review, error) {
	rev.ID = uuid.New().String()
	row := repo.pack(rev)

	q := `INSERT INTO review (id, enrollment_id, student_id, course_id, rating, comment, created_at, updated_at)
		  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := repo.getExec(exec).ExecContext(ctx, q,
		row.ID, row.EnrollmentID, row.StudentID, row.CourseID,
		row.Rating, row.Comment, row.CreatedAt, row.UpdatedAt)
	if err != nil {
		return review.Review{}, errors.Wrap(err, "inserting review")
	}
	return repo.unpack(row), nil
}

func (repo reviewRepository) GetReview(ctx context.Context, filter review.GetFilter, exec ...core.DBExecutor) (review.Review, error) {
	var q string
	var args []interface{}

	if filter.ID != "" {
		if _, err := uuid.Parse(filter.ID); err != nil {
			return review.Review{}, review.ErrNotFound
		}
		q = `SELECT * FROM review WHERE id = $1`
		args = []interface{}{filter.ID}
	} else if filter.EnrollmentID != "" {
		q = `SELECT * FROM review WHERE enrollment_id = $1`
		args = []interface{}{filter.EnrollmentID}
	} else {
		return review.Review{}, review.ErrNotFound
	}

	var row reviewRow
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, args...); err != nil {
		return review.Review{}, repo.trapNoRowsErr(err, "finding review")
	}
	return repo.unpack(row), nil
}

func (repo reviewRepository) QueryReviews(ctx context.Context, filter *review.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]review.Review, error) {
	var conds []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter != nil {
		if filter.CourseID != "" {
			conds = append(conds, "course_id = "+arg(filter.CourseID))
		}
		if filter.StudentID != "" {
			conds = append(conds, "student_id = "+arg(filter.StudentID))
		}
		if filter.Rating != nil {
			conds = append(conds, "rating = "+arg(*filter.Rating))
		}
	}

	q := `SELECT * FROM review`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	if ordering != nil {
		orderList := make([]string, 0, len(ordering))
		for _, ord := range ordering {
			orderList = append(orderList, ord.String())
		}
		q += " ORDER BY " + strings.Join(orderList, ", ")
	}

	var rows []reviewRow
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying reviews")
	}

	reviews := make([]review.Review, 0, len(rows))
	for _, row := range rows {
		reviews = append(reviews, repo.unpack(row))
	}
	return reviews, nil
}

func (repo reviewRepository) UpdateReview(ctx context.Context, rev review.Review, exec ...core.DBExecutor) (review.Review, error) {
	row := repo.pack(rev)

	q := `UPDATE review SET rating = $1, comment = $2, updated_at = $3 WHERE id = $4 RETURNING *`
	var updated reviewRow
	err := sqlx.GetContext(ctx, repo.getExec(exec), &updated, q, row.Rating, row.Comment, row.UpdatedAt, row.ID)
	if err != nil {
		return review.Review{}, repo.trapNoRowsErr(err, "updating review")
	}
	return repo.unpack(updated), nil
}

func (repo reviewRepository) DeleteReviewsByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	q, args, err := sqlx.In(`DELETE FROM review WHERE id IN (?)`, ids)
	if err != nil {
		return 0, errors.Wrap(err, "deleting reviews")
	}
	res, err := repo.getExec(exec).ExecContext(ctx, sqlx.Rebind(sqlx.DOLLAR, q), args...)
	if err != nil {
		return 0, errors.Wrap(err, "deleting reviews")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "deleting reviews")
	}
	return int(cnt), nil
}

func (repo reviewRepository) CountReviews(ctx context.Context, exec ...core.DBExecutor) (int, error) {
	var cnt int
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &cnt, `SELECT COUNT(*) FROM review`); err != nil {
		return 0, errors.Wrap(err, "counting reviews")
	}
	return cnt, nil
}
