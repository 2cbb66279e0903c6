package course

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core"
)

var (
	// errors
	ErrNotFound       = errors.New("course not found")
	ErrLessonNotFound = errors.New("lesson not found")

	errHasEnrollments  = "course has enrollments"
	errPublishNoLesson = "cannot publish a course without lessons"
	errBadLessonOrder  = "lesson ids must be a permutation of the course lessons"

	slugInvalidRegex = regexp.MustCompile(`[^a-z0-9]+`)
)

type (
	Repository interface {
		CreateCourse(ctx context.Context, crs Course, exec ...core.DBExecutor) (Course, error)
		GetCourse(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Course, error)
		// QueryCourses applies AND operation on available QueryFilter fields.
		// Review aggregates (RatingCount, RatingAvg) are populated.
		QueryCourses(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Course, error)
		UpdateCourse(ctx context.Context, crs Course, exec ...core.DBExecutor) (Course, error)
		DeleteCoursesByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error)
		SlugExists(ctx context.Context, slug string, exec ...core.DBExecutor) (bool, error)
		HasEnrollments(ctx context.Context, courseID string, exec ...core.DBExecutor) (bool, error)
		CountCourses(ctx context.Context, exec ...core.DBExecutor) (int, error)
		// QueryCourseStats aggregates enrollment/review/payment figures per course for an owner.
		QueryCourseStats(ctx context.Context, ownerID string, exec ...core.DBExecutor) ([]CourseStats, error)

		CreateLesson(ctx context.Context, lsn Lesson, exec ...core.DBExecutor) (Lesson, error)
		GetLesson(ctx context.Context, id string, exec ...core.DBExecutor) (Lesson, error)
		// QueryLessons returns the lessons of a course ordered by position.
		QueryLessons(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]Lesson, error)
		CountLessons(ctx context.Context, courseID string, exec ...core.DBExecutor) (int, error)
		UpdateLesson(ctx context.Context, lsn Lesson, exec ...core.DBExecutor) (Lesson, error)
		// DeleteLesson removes a lesson and closes the position gap it leaves.
		DeleteLesson(ctx context.Context, lsn Lesson, exec ...core.DBExecutor) error
		// UpdateLessonPositions re-assigns positions 1..n following the order of ids.
		UpdateLessonPositions(ctx context.Context, courseID string, ids []string, exec ...core.DBExecutor) error
	}

	Service interface {
		Create(ctx context.Context, ownerID string, nc NewCourse) (Course, error)
		GetByID(ctx context.Context, id string) (Course, error)
		GetBySlug(ctx context.Context, slug string) (Course, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error)
		Update(ctx context.Context, origCrs Course, uc UpdateCourse) (Course, error)
		SetPublished(ctx context.Context, crs Course, published bool) (Course, error)
		Delete(ctx context.Context, crs Course) error
		Count(ctx context.Context) (int, error)
		Stats(ctx context.Context, ownerID string) ([]CourseStats, error)

		AddLesson(ctx context.Context, courseID string, nl NewLesson) (Lesson, error)
		GetLesson(ctx context.Context, id string) (Lesson, error)
		Lessons(ctx context.Context, courseID string) ([]Lesson, error)
		UpdateLesson(ctx context.Context, origLsn Lesson, ul UpdateLesson) (Lesson, error)
		RemoveLesson(ctx context.Context, lsn Lesson) error
		ReorderLessons(ctx context.Context, courseID string, ids []string) ([]Lesson, error)
	}

	service struct {
		db   core.DB
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(db core.DB, repo Repository) Service {
	return &service{db: db, repo: repo}
}

func (svc *service) Create(ctx context.Context, ownerID string, nc NewCourse) (Course, error) {
	now := time.Now().UTC()
	crs := Course{
		OwnerID:     ownerID,
		Title:       nc.Title,
		Description: nc.Description,
		Category:    nc.Category,
		PriceCents:  nc.PriceCents,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	slug, err := svc.uniqueSlug(ctx, nc.Title)
	if err != nil {
		return Course{}, err
	}
	crs.Slug = slug

	return svc.repo.CreateCourse(ctx, crs)
}

func (svc *service) GetByID(ctx context.Context, id string) (Course, error) {
	crs, err := svc.repo.GetCourse(ctx, GetFilter{ID: id})
	if err != nil {
		return Course{}, err
	}
	return svc.withLessons(ctx, crs)
}

func (svc *service) GetBySlug(ctx context.Context, slug string) (Course, error) {
	crs, err := svc.repo.GetCourse(ctx, GetFilter{Slug: core.CleanString(slug, true /* lower */)})
	if err != nil {
		return Course{}, err
	}
	return svc.withLessons(ctx, crs)
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error) {
	if filter != nil && filter.IsEmpty() {
		filter = nil
	}
	if ordering == nil {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	return svc.repo.QueryCourses(ctx, filter, ordering)
}

func (svc *service) Update(ctx context.Context, origCrs Course, uc UpdateCourse) (Course, error) {
	crs := Course{
		ID:          origCrs.ID,
		OwnerID:     origCrs.OwnerID,
		Title:       uc.Title,
		Slug:        origCrs.Slug,
		Description: uc.Description,
		Category:    uc.Category,
		PriceCents:  origCrs.PriceCents,
		IsPublished: origCrs.IsPublished,
		UpdatedAt:   time.Now().UTC(),
	}

	if uc.PriceCents != nil && *uc.PriceCents != origCrs.PriceCents {
		enrolled, err := svc.repo.HasEnrollments(ctx, origCrs.ID)
		if err != nil {
			return Course{}, err
		}
		if enrolled {
			return Course{}, core.NewValidationError(nil, core.FieldError{Field: "price_cents", Error: "cannot change the price of a course with enrollments"})
		}
		crs.PriceCents = *uc.PriceCents
	}

	return svc.repo.UpdateCourse(ctx, crs)
}

func (svc *service) SetPublished(ctx context.Context, crs Course, published bool) (Course, error) {
	if published {
		cnt, err := svc.repo.CountLessons(ctx, crs.ID)
		if err != nil {
			return Course{}, err
		}
		if cnt == 0 {
			return Course{}, core.NewValidationError(errors.New(errPublishNoLesson))
		}
	}
	crs.IsPublished = published
	crs.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateCourse(ctx, crs)
}

func (svc *service) Delete(ctx context.Context, crs Course) error {
	enrolled, err := svc.repo.HasEnrollments(ctx, crs.ID)
	if err != nil {
		return err
	}
	if enrolled {
		return core.NewValidationError(errors.New(errHasEnrollments))
	}
	_, err = svc.repo.DeleteCoursesByID(ctx, []string{crs.ID})
	return err
}

func (svc *service) Count(ctx context.Context) (int, error) {
	return svc.repo.CountCourses(ctx)
}

func (svc *service) Stats(ctx context.Context, ownerID string) ([]CourseStats, error) {
	return svc.repo.QueryCourseStats(ctx, ownerID)
}

func (svc *service) AddLesson(ctx context.Context, courseID string, nl NewLesson) (Lesson, error) {
	cnt, err := svc.repo.CountLessons(ctx, courseID)
	if err != nil {
		return Lesson{}, err
	}

	now := time.Now().UTC()
	lsn := Lesson{
		CourseID:        courseID,
		Title:           nl.Title,
		Body:            nl.Body,
		VideoURL:        nl.VideoURL,
		Position:        cnt + 1,
		DurationMinutes: nl.DurationMinutes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return svc.repo.CreateLesson(ctx, lsn)
}

func (svc *service) GetLesson(ctx context.Context, id string) (Lesson, error) {
	return svc.repo.GetLesson(ctx, id)
}

func (svc *service) Lessons(ctx context.Context, courseID string) ([]Lesson, error) {
	return svc.repo.QueryLessons(ctx, courseID)
}

func (svc *service) UpdateLesson(ctx context.Context, origLsn Lesson, ul UpdateLesson) (Lesson, error) {
	lsn := Lesson{
		ID:              origLsn.ID,
		CourseID:        origLsn.CourseID,
		Title:           ul.Title,
		Body:            ul.Body,
		VideoURL:        ul.VideoURL,
		Position:        origLsn.Position,
		DurationMinutes: origLsn.DurationMinutes,
		UpdatedAt:       time.Now().UTC(),
	}
	if ul.DurationMinutes != nil {
		lsn.DurationMinutes = *ul.DurationMinutes
	}
	return svc.repo.UpdateLesson(ctx, lsn)
}

func (svc *service) RemoveLesson(ctx context.Context, lsn Lesson) error {
	return svc.repo.DeleteLesson(ctx, lsn)
}

func (svc *service) ReorderLessons(ctx context.Context, courseID string, ids []string) ([]Lesson, error) {
	lessons, err := svc.repo.QueryLessons(ctx, courseID)
	if err != nil {
		return nil, err
	}

	// ids must be a permutation of the course's lesson ids
	if len(ids) != len(lessons) {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "lesson_ids", Error: errBadLessonOrder})
	}
	known := make(map[string]bool, len(lessons))
	for _, lsn := range lessons {
		known[lsn.ID] = true
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !known[id] || seen[id] {
			return nil, core.NewValidationError(nil, core.FieldError{Field: "lesson_ids", Error: errBadLessonOrder})
		}
		seen[id] = true
	}

	err = core.Atomic(ctx, svc.db, func(exec core.DBExecutor) error {
		return svc.repo.UpdateLessonPositions(ctx, courseID, ids, exec)
	})
	if err != nil {
		return nil, err
	}
	return svc.repo.QueryLessons(ctx, courseID)
}

func (svc *service) withLessons(ctx context.Context, crs Course) (Course, error) {
	lessons, err := svc.repo.QueryLessons(ctx, crs.ID)
	if err != nil {
		return Course{}, err
	}
	crs.Lessons = lessons
	return crs, nil
}

// uniqueSlug derives a URL slug from title, uniquified with a short suffix on collision.
func (svc *service) uniqueSlug(ctx context.Context, title string) (string, error) {
	slug := slugify(title)
	exists, err := svc.repo.SlugExists(ctx, slug)
	if err != nil {
		return "", err
	}
	if !exists {
		return slug, nil
	}
	return slug + "-" + uuid.New().String()[:8], nil
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugInvalidRegex.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
