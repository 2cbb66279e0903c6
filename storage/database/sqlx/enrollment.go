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
	"github.com/darasahq/darasa/core/enrollment"
)

type enrollmentRow struct {
	ID              string      `db:"id"`
	StudentID       string      `db:"student_id"`
	CourseID        string      `db:"course_id"`
	Status          string      `db:"status"`
	ProgressPercent int         `db:"progress_percent"`
	EnrolledAt      null.Time   `db:"enrolled_at"`
	CompletedAt     null.Time   `db:"completed_at"`
	CreatedAt       null.Time   `db:"created_at"`
	UpdatedAt       null.Time   `db:"updated_at"`
}

type certificateRow struct {
	ID           string    `db:"id"`
	EnrollmentID string    `db:"enrollment_id"`
	Serial       string    `db:"serial"`
	IssuedAt     null.Time `db:"issued_at"`
}

type enrollmentRepository struct {
	exec core.DBExecutor
}

var _ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(exec core.DBExecutor) *enrollmentRepository {
	return &enrollmentRepository{exec: exec}
}

func (repo enrollmentRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.exec
}

func (repo enrollmentRepository) pack(enr enrollment.Enrollment) enrollmentRow {
	return enrollmentRow{
		ID:              enr.ID,
		StudentID:       enr.StudentID,
		CourseID:        enr.CourseID,
		Status:          enr.Status,
		ProgressPercent: enr.ProgressPercent,
		EnrolledAt:      null.NewTime(enr.EnrolledAt.UTC(), !enr.EnrolledAt.IsZero()),
		CompletedAt:     null.NewTime(enr.CompletedAt.UTC(), !enr.CompletedAt.IsZero()),
		CreatedAt:       null.NewTime(enr.CreatedAt.UTC(), !enr.CreatedAt.IsZero()),
		UpdatedAt:       null.NewTime(enr.UpdatedAt.UTC(), !enr.UpdatedAt.IsZero()),
	}
}

func (repo enrollmentRepository) unpack(row enrollmentRow) enrollment.Enrollment {
	return enrollment.Enrollment{
		ID:              row.ID,
		StudentID:       row.StudentID,
		CourseID:        row.CourseID,
		Status:          row.Status,
		ProgressPercent: row.ProgressPercent,
		EnrolledAt:      row.EnrolledAt.Time,
		CompletedAt:     row.CompletedAt.Time,
		CreatedAt:       row.CreatedAt.Time,
		UpdatedAt:       row.UpdatedAt.Time,
	}
}

// trapNoRowsErr maps psql "no rows" err to enrollment.ErrNotFound
func (repo enrollmentRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return enrollment.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo enrollmentRepository) CreateEnrollment(ctx context.Context, enr enrollment.Enrollment, exec ...core.DBExecutor) (enrollment.Enrollment, error) {
	enr.ID = uuid.New().String()
	row := repo.pack(enr)

	q := `INSERT INTO enrollment (id, student_id, course_id, status, progress_percent, enrolled_at, completed_at, created_at, updated_at)
		  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := repo.getExec(exec).ExecContext(ctx, q,
		row.ID, row.StudentID, row.CourseID, row.Status, row.ProgressPercent,
		row.EnrolledAt, row.CompletedAt, row.CreatedAt, row.UpdatedAt)
	if err != nil {
		return enrollment.Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}
	return repo.unpack(row), nil
}

func (repo enrollmentRepository) GetEnrollment(ctx context.Context, filter enrollment.GetFilter, exec ...core.DBExecutor) (enrollment.Enrollment, error) {
	if _, err := uuid.Parse(filter.ID); err != nil {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}

	var row enrollmentRow
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, `SELECT * FROM enrollment WHERE id = $1`, filter.ID); err != nil {
		return enrollment.Enrollment{}, repo.trapNoRowsErr(err, "finding enrollment")
	}
	return repo.unpack(row), nil
}

func (repo enrollmentRepository) QueryEnrollments(ctx context.Context, filter *enrollment.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]enrollment.Enrollment, error) {
	var conds []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter != nil {
		if filter.StudentID != "" {
			conds = append(conds, "student_id = "+arg(filter.StudentID))
		}
		if filter.CourseID != "" {
			conds = append(conds, "course_id = "+arg(filter.CourseID))
		}
		if filter.Status != "" {
			conds = append(conds, "status = "+arg(filter.Status))
		}
	}

	q := `SELECT * FROM enrollment`
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

	var rows []enrollmentRow
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}

	enrs := make([]enrollment.Enrollment, 0, len(rows))
	for _, row := range rows {
		enrs = append(enrs, repo.unpack(row))
	}
	return enrs, nil
}

func (repo enrollmentRepository) UpdateEnrollment(ctx context.Context, enr enrollment.Enrollment, exec ...core.DBExecutor) (enrollment.Enrollment, error) {
	row := repo.pack(enr)

	q := `UPDATE enrollment
		  SET status = $1, progress_percent = $2, enrolled_at = $3, completed_at = $4, updated_at = $5
		  WHERE id = $6
		  RETURNING *`
	var updated enrollmentRow
	err := sqlx.GetContext(ctx, repo.getExec(exec), &updated, q,
		row.Status, row.ProgressPercent, row.EnrolledAt, row.CompletedAt, row.UpdatedAt, row.ID)
	if err != nil {
		return enrollment.Enrollment{}, repo.trapNoRowsErr(err, "updating enrollment")
	}
	return repo.unpack(updated), nil
}

func (repo enrollmentRepository) LiveEnrollmentExists(ctx context.Context, studentID, courseID string, exec ...core.DBExecutor) (bool, error) {
	var exists bool
	q := `SELECT EXISTS (SELECT 1 FROM enrollment WHERE student_id = $1 AND course_id = $2 AND status <> 'CANCELLED')`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &exists, q, studentID, courseID); err != nil {
		return false, errors.Wrap(err, "checking live enrollment")
	}
	return exists, nil
}

func (repo enrollmentRepository) CountEnrollments(ctx context.Context, exec ...core.DBExecutor) (int, error) {
	var cnt int
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &cnt, `SELECT COUNT(*) FROM enrollment`); err != nil {
		return 0, errors.Wrap(err, "counting enrollments")
	}
	return cnt, nil
}

func (repo enrollmentRepository) CreateLessonProgress(ctx context.Context, lp enrollment.LessonProgress, exec ...core.DBExecutor) (bool, error) {
	q := `INSERT INTO lesson_progress (enrollment_id, lesson_id, completed_at)
		  VALUES ($1, $2, $3)
		  ON CONFLICT (enrollment_id, lesson_id) DO NOTHING`
	res, err := repo.getExec(exec).ExecContext(ctx, q, lp.EnrollmentID, lp.LessonID, lp.CompletedAt.UTC())
	if err != nil {
		return false, errors.Wrap(err, "inserting lesson progress")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "inserting lesson progress")
	}
	return cnt > 0, nil
}

func (repo enrollmentRepository) CountLessonProgress(ctx context.Context, enrollmentID string, exec ...core.DBExecutor) (int, error) {
	var cnt int
	q := `SELECT COUNT(*) FROM lesson_progress WHERE enrollment_id = $1`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &cnt, q, enrollmentID); err != nil {
		return 0, errors.Wrap(err, "counting lesson progress")
	}
	return cnt, nil
}

func (repo enrollmentRepository) QueryLessonProgress(ctx context.Context, enrollmentID string, exec ...core.DBExecutor) ([]enrollment.LessonProgress, error) {
	var rows []struct {
		EnrollmentID string    `db:"enrollment_id"`
		LessonID     string    `db:"lesson_id"`
		CompletedAt  null.Time `db:"completed_at"`
	}
	q := `SELECT * FROM lesson_progress WHERE enrollment_id = $1 ORDER BY completed_at ASC`
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, enrollmentID); err != nil {
		return nil, errors.Wrap(err, "querying lesson progress")
	}

	progress := make([]enrollment.LessonProgress, 0, len(rows))
	for _, row := range rows {
		progress = append(progress, enrollment.LessonProgress{
			EnrollmentID: row.EnrollmentID,
			LessonID:     row.LessonID,
			CompletedAt:  row.CompletedAt.Time,
		})
	}
	return progress, nil
}

func (repo enrollmentRepository) CreateCertificate(ctx context.Context, cert enrollment.Certificate, exec ...core.DBExecutor) (enrollment.Certificate, error) {
	cert.ID = uuid.New().String()

	q := `INSERT INTO certificate (id, enrollment_id, serial, issued_at) VALUES ($1, $2, $3, $4)`
	_, err := repo.getExec(exec).ExecContext(ctx, q, cert.ID, cert.EnrollmentID, cert.Serial, cert.IssuedAt.UTC())
	if err != nil {
		return enrollment.Certificate{}, errors.Wrap(err, "inserting certificate")
	}
	return cert, nil
}

func (repo enrollmentRepository) GetCertificate(ctx context.Context, filter enrollment.CertificateGetFilter, exec ...core.DBExecutor) (enrollment.Certificate, error) {
	var q string
	var args []interface{}

	if filter.EnrollmentID != "" {
		q = `SELECT * FROM certificate WHERE enrollment_id = $1`
		args = []interface{}{filter.EnrollmentID}
	} else if filter.Serial != "" {
		q = `SELECT * FROM certificate WHERE serial = $1`
		args = []interface{}{filter.Serial}
	} else {
		return enrollment.Certificate{}, enrollment.ErrCertificateNotFound
	}

	var row certificateRow
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, args...); err != nil {
		if err == sql.ErrNoRows {
			return enrollment.Certificate{}, enrollment.ErrCertificateNotFound
		}
		return enrollment.Certificate{}, errors.Wrap(err, "finding certificate")
	}
	return enrollment.Certificate{
		ID:           row.ID,
		EnrollmentID: row.EnrollmentID,
		Serial:       row.Serial,
		IssuedAt:     row.IssuedAt.Time,
	}, nil
}
