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
	"github.com/darasahq/darasa/core/course"
)

type courseRow struct {
	ID          string      `db:"id"`
	OwnerID     string      `db:"owner_id"`
	Title       null.String `db:"title"`
	Slug        null.String `db:"slug"`
	Description null.String `db:"description"`
	Category    null.String `db:"category"`
	PriceCents  int         `db:"price_cents"`
	IsPublished bool        `db:"is_published"`
	CreatedAt   null.Time   `db:"created_at"`
	UpdatedAt   null.Time   `db:"updated_at"`

	// review aggregates, only selected on reads
	RatingCount int     `db:"rating_count"`
	RatingAvg   float64 `db:"rating_avg"`
}

type lessonRow struct {
	ID              string      `db:"id"`
	CourseID        string      `db:"course_id"`
	Title           null.String `db:"title"`
	Body            null.String `db:"body"`
	VideoURL        null.String `db:"video_url"`
	Position        int         `db:"position"`
	DurationMinutes int         `db:"duration_minutes"`
	CreatedAt       null.Time   `db:"created_at"`
	UpdatedAt       null.Time   `db:"updated_at"`
}

// courseSelect joins review aggregates onto each course row.
const courseSelect = `
SELECT c.*,
       COUNT(r.id) AS rating_count,
       COALESCE(AVG(r.rating), 0) AS rating_avg
FROM course c
         LEFT JOIN review r ON r.course_id = c.id
%s
GROUP BY c.id
%s`

type courseRepository struct {
	exec core.DBExecutor
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(exec core.DBExecutor) *courseRepository {
	return &courseRepository{exec: exec}
}

func (repo courseRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.exec
}

func (repo courseRepository) pack(crs course.Course) courseRow {
	return courseRow{
		ID:          crs.ID,
		OwnerID:     crs.OwnerID,
		Title:       null.NewString(crs.Title, crs.Title != ""),
		Slug:        null.NewString(crs.Slug, crs.Slug != ""),
		Description: null.NewString(crs.Description, crs.Description != ""),
		Category:    null.NewString(crs.Category, crs.Category != ""),
		PriceCents:  crs.PriceCents,
		IsPublished: crs.IsPublished,
		CreatedAt:   null.NewTime(crs.CreatedAt.UTC(), !crs.CreatedAt.IsZero()),
		UpdatedAt:   null.NewTime(crs.UpdatedAt.UTC(), !crs.UpdatedAt.IsZero()),
	}
}

func (repo courseRepository) unpack(row courseRow) course.Course {
	return course.Course{
		ID:          row.ID,
		OwnerID:     row.OwnerID,
		Title:       row.Title.String,
		Slug:        row.Slug.String,
		Description: row.Description.String,
		Category:    row.Category.String,
		PriceCents:  row.PriceCents,
		IsPublished: row.IsPublished,
		CreatedAt:   row.CreatedAt.Time,
		UpdatedAt:   row.UpdatedAt.Time,
		RatingCount: row.RatingCount,
		RatingAvg:   row.RatingAvg,
	}
}

func (repo courseRepository) packLesson(lsn course.Lesson) lessonRow {
	return lessonRow{
		ID:              lsn.ID,
		CourseID:        lsn.CourseID,
		Title:           null.NewString(lsn.Title, lsn.Title != ""),
		Body:            null.NewString(lsn.Body, lsn.Body != ""),
		VideoURL:        null.NewString(lsn.VideoURL, lsn.VideoURL != ""),
		Position:        lsn.Position,
		DurationMinutes: lsn.DurationMinutes,
		CreatedAt:       null.NewTime(lsn.CreatedAt.UTC(), !lsn.CreatedAt.IsZero()),
		UpdatedAt:       null.NewTime(lsn.UpdatedAt.UTC(), !lsn.UpdatedAt.IsZero()),
	}
}

func (repo courseRepository) unpackLesson(row lessonRow) course.Lesson {
	return course.Lesson{
		ID:              row.ID,
		CourseID:        row.CourseID,
		Title:           row.Title.String,
		Body:            row.Body.String,
		VideoURL:        row.VideoURL.String,
		Position:        row.Position,
		DurationMinutes: row.DurationMinutes,
		CreatedAt:       row.CreatedAt.Time,
		UpdatedAt:       row.UpdatedAt.Time,
	}
}

// trapNoRowsErr maps psql "no rows" err to course.ErrNotFound
func (repo courseRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return course.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo courseRepository) CreateCourse(ctx context.Context, crs course.Course, exec ...core.DBExecutor) (course.Course, error) {
	crs.ID = uuid.New().String()
	row := repo.pack(crs)

	q := `INSERT INTO course (id, owner_id, title, slug, description, category, price_cents, is_published, created_at, updated_at)
		  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := repo.getExec(exec).ExecContext(ctx, q,
		row.ID, row.OwnerID, row.Title, row.Slug, row.Description, row.Category,
		row.PriceCents, row.IsPublished, row.CreatedAt, row.UpdatedAt)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return repo.unpack(row), nil
}

func (repo courseRepository) GetCourse(ctx context.Context, filter course.GetFilter, exec ...core.DBExecutor) (course.Course, error) {
	var where string
	var args []interface{}

	if filter.ID != "" {
		if _, err := uuid.Parse(filter.ID); err != nil {
			return course.Course{}, course.ErrNotFound
		}
		where = "WHERE c.id = $1"
		args = []interface{}{filter.ID}
	} else if filter.Slug != "" {
		where = "WHERE c.slug = $1"
		args = []interface{}{filter.Slug}
	} else {
		return course.Course{}, course.ErrNotFound
	}

	var row courseRow
	q := fmt.Sprintf(courseSelect, where, "")
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, args...); err != nil {
		return course.Course{}, repo.trapNoRowsErr(err, "finding course")
	}
	return repo.unpack(row), nil
}

func (repo courseRepository) QueryCourses(ctx context.Context, filter *course.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]course.Course, error) {
	var conds []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter != nil {
		// courses with Title or Description matching the search keyword
		if filter.Search != "" {
			p := arg("%" + filter.Search + "%")
			conds = append(conds, fmt.Sprintf("(c.title ILIKE %s OR c.description ILIKE %s)", p, p))
		}
		if filter.Category != "" {
			conds = append(conds, "c.category = "+arg(filter.Category))
		}
		if filter.OwnerID != "" {
			conds = append(conds, "c.owner_id = "+arg(filter.OwnerID))
		}
		if filter.PriceMin != nil {
			conds = append(conds, "c.price_cents >= "+arg(*filter.PriceMin))
		}
		if filter.PriceMax != nil {
			conds = append(conds, "c.price_cents <= "+arg(*filter.PriceMax))
		}
		if filter.IsPublished != nil {
			conds = append(conds, "c.is_published = "+arg(*filter.IsPublished))
		}
	}

	var where string
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}
	var orderBy string
	if ordering != nil {
		orderList := make([]string, 0, len(ordering))
		for _, ord := range ordering {
			orderList = append(orderList, "c."+ord.String())
		}
		orderBy = "ORDER BY " + strings.Join(orderList, ", ")
	}

	var rows []courseRow
	q := fmt.Sprintf(courseSelect, where, orderBy)
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}

	courses := make([]course.Course, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, repo.unpack(row))
	}
	return courses, nil
}

func (repo courseRepository) UpdateCourse(ctx context.Context, crs course.Course, exec ...core.DBExecutor) (course.Course, error) {
	row := repo.pack(crs)

	q := `UPDATE course
		  SET title = $1, description = $2, category = $3, price_cents = $4, is_published = $5, updated_at = $6
		  WHERE id = $7
		  RETURNING *`
	var updated courseRow
	err := sqlx.GetContext(ctx, repo.getExec(exec), &updated, q,
		row.Title, row.Description, row.Category, row.PriceCents, row.IsPublished, row.UpdatedAt, row.ID)
	if err != nil {
		return course.Course{}, repo.trapNoRowsErr(err, "updating course")
	}
	return repo.unpack(updated), nil
}

func (repo courseRepository) DeleteCoursesByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	q, args, err := sqlx.In(`DELETE FROM course WHERE id IN (?)`, ids)
	if err != nil {
		return 0, errors.Wrap(err, "deleting courses")
	}
	res, err := repo.getExec(exec).ExecContext(ctx, sqlx.Rebind(sqlx.DOLLAR, q), args...)
	if err != nil {
		return 0, errors.Wrap(err, "deleting courses")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "deleting courses")
	}
	return int(cnt), nil
}

func (repo courseRepository) SlugExists(ctx context.Context, slug string, exec ...core.DBExecutor) (bool, error) {
	var exists bool
	q := `SELECT EXISTS (SELECT 1 FROM course WHERE slug = $1)`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &exists, q, slug); err != nil {
		return false, errors.Wrap(err, "checking course slug")
	}
	return exists, nil
}

func (repo courseRepository) HasEnrollments(ctx context.Context, courseID string, exec ...core.DBExecutor) (bool, error) {
	var exists bool
	q := `SELECT EXISTS (SELECT 1 FROM enrollment WHERE course_id = $1 AND status <> 'CANCELLED')`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &exists, q, courseID); err != nil {
		return false, errors.Wrap(err, "checking course enrollments")
	}
	return exists, nil
}

func (repo courseRepository) CountCourses(ctx context.Context, exec ...core.DBExecutor) (int, error) {
	var cnt int
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &cnt, `SELECT COUNT(*) FROM course`); err != nil {
		return 0, errors.Wrap(err, "counting courses")
	}
	return cnt, nil
}

func (repo courseRepository) QueryCourseStats(ctx context.Context, ownerID string, exec ...core.DBExecutor) ([]course.CourseStats, error) {
	q := `
SELECT c.id                                                    AS course_id,
       COALESCE(c.title, '')                                   AS title,
       c.is_published,
       (SELECT COUNT(*)
        FROM enrollment e
        WHERE e.course_id = c.id AND e.status <> 'CANCELLED')  AS enrollment_count,
       (SELECT COUNT(*)
        FROM enrollment e
        WHERE e.course_id = c.id AND e.status = 'COMPLETED')   AS completed_count,
       (SELECT COUNT(*) FROM review r WHERE r.course_id = c.id) AS rating_count,
       (SELECT COALESCE(AVG(r.rating), 0)
        FROM review r
        WHERE r.course_id = c.id)                              AS rating_avg,
       (SELECT COALESCE(SUM(p.amount_cents), 0)
        FROM payment p
                 JOIN enrollment e ON e.id = p.enrollment_id
        WHERE e.course_id = c.id AND p.status = 'SUCCEEDED')   AS earnings_cents
FROM course c
WHERE c.owner_id = $1
ORDER BY c.created_at DESC`

	var stats []course.CourseStats
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &stats, q, ownerID); err != nil {
		return nil, errors.Wrap(err, "querying course stats")
	}
	return stats, nil
}

func (repo courseRepository) CreateLesson(ctx context.Context, lsn course.Lesson, exec ...core.DBExecutor) (course.Lesson, error) {
	lsn.ID = uuid.New().String()
	row := repo.packLesson(lsn)

	q := `INSERT INTO lesson (id, course_id, title, body, video_url, position, duration_minutes, created_at, updated_at)
		  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := repo.getExec(exec).ExecContext(ctx, q,
		row.ID, row.CourseID, row.Title, row.Body, row.VideoURL,
		row.Position, row.DurationMinutes, row.CreatedAt, row.UpdatedAt)
	if err != nil {
		return course.Lesson{}, errors.Wrap(err, "inserting lesson")
	}
	return repo.unpackLesson(row), nil
}

func (repo courseRepository) GetLesson(ctx context.Context, id string, exec ...core.DBExecutor) (course.Lesson, error) {
	if _, err := uuid.Parse(id); err != nil {
		return course.Lesson{}, course.ErrLessonNotFound
	}

	var row lessonRow
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, `SELECT * FROM lesson WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return course.Lesson{}, course.ErrLessonNotFound
		}
		return course.Lesson{}, errors.Wrap(err, "finding lesson")
	}
	return repo.unpackLesson(row), nil
}

func (repo courseRepository) QueryLessons(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]course.Lesson, error) {
	var rows []lessonRow
	q := `SELECT * FROM lesson WHERE course_id = $1 ORDER BY position ASC`
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, courseID); err != nil {
		return nil, errors.Wrap(err, "querying lessons")
	}

	lessons := make([]course.Lesson, 0, len(rows))
	for _, row := range rows {
		lessons = append(lessons, repo.unpackLesson(row))
	}
	return lessons, nil
}

func (repo courseRepository) CountLessons(ctx context.Context, courseID string, exec ...core.DBExecutor) (int, error) {
	var cnt int
	q := `SELECT COUNT(*) FROM lesson WHERE course_id = $1`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &cnt, q, courseID); err != nil {
		return 0, errors.Wrap(err, "counting lessons")
	}
	return cnt, nil
}

func (repo courseRepository) UpdateLesson(ctx context.Context, lsn course.Lesson, exec ...core.DBExecutor) (course.Lesson, error) {
	row := repo.packLesson(lsn)

	q := `UPDATE lesson
		  SET title = $1, body = $2, video_url = $3, duration_minutes = $4, updated_at = $5
		  WHERE id = $6
		  RETURNING *`
	var updated lessonRow
	err := sqlx.GetContext(ctx, repo.getExec(exec), &updated, q,
		row.Title, row.Body, row.VideoURL, row.DurationMinutes, row.UpdatedAt, row.ID)
	if err != nil {
		if err == sql.ErrNoRows {
			return course.Lesson{}, course.ErrLessonNotFound
		}
		return course.Lesson{}, errors.Wrap(err, "updating lesson")
	}
	return repo.unpackLesson(updated), nil
}

func (repo courseRepository) DeleteLesson(ctx context.Context, lsn course.Lesson, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)

	if _, err := exe.ExecContext(ctx, `DELETE FROM lesson WHERE id = $1`, lsn.ID); err != nil {
		return errors.Wrap(err, "deleting lesson")
	}
	// close the position gap
	q := `UPDATE lesson SET position = position - 1 WHERE course_id = $1 AND position > $2`
	if _, err := exe.ExecContext(ctx, q, lsn.CourseID, lsn.Position); err != nil {
		return errors.Wrap(err, "repositioning lessons")
	}
	return nil
}

func (repo courseRepository) UpdateLessonPositions(ctx context.Context, courseID string, ids []string, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	q := `UPDATE lesson SET position = $1 WHERE id = $2 AND course_id = $3`
	for i, id := range ids {
		if _, err := exe.ExecContext(ctx, q, i+1, id, courseID); err != nil {
			return errors.Wrap(err, "repositioning lessons")
		}
	}
	return nil
}
