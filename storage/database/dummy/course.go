package dummydb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/course"
	"github.com/darasahq/darasa/core/enrollment"
	"github.com/darasahq/darasa/core/payment"
)

type courseRepository struct {
	db *DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *DB) *courseRepository {
	return &courseRepository{db: db}
}

func (repo *courseRepository) query() []course.Course {
	courses := make([]course.Course, 0, len(repo.db.course.table))
	for _, crs := range repo.db.course.table {
		courses = append(courses, repo.withAggregates(*crs))
	}
	sort.Slice(courses, func(i, j int) bool { return courses[i].CreatedAt.After(courses[j].CreatedAt) })
	return courses
}

func (repo *courseRepository) withAggregates(crs course.Course) course.Course {
	repo.db.review.RLock()
	defer repo.db.review.RUnlock()

	var sum int
	for _, rev := range repo.db.review.table {
		if rev.CourseID == crs.ID {
			crs.RatingCount++
			sum += rev.Rating
		}
	}
	if crs.RatingCount > 0 {
		crs.RatingAvg = float64(sum) / float64(crs.RatingCount)
	}
	crs.Lessons = nil
	return crs
}

func (repo *courseRepository) CreateCourse(ctx context.Context, crs course.Course, exec ...core.DBExecutor) (course.Course, error) {
	repo.db.course.Lock()
	defer repo.db.course.Unlock()

	crs.ID = uuid.New().String()
	repo.db.course.table[crs.ID] = &crs
	return crs, nil
}

func (repo *courseRepository) GetCourse(ctx context.Context, filter course.GetFilter, exec ...core.DBExecutor) (course.Course, error) {
	repo.db.course.RLock()
	defer repo.db.course.RUnlock()

	if filter.ID != "" {
		if crs, ok := repo.db.course.table[filter.ID]; ok {
			return repo.withAggregates(*crs), nil
		}
		return course.Course{}, course.ErrNotFound
	}
	if filter.Slug != "" {
		for _, crs := range repo.db.course.table {
			if crs.Slug == filter.Slug {
				return repo.withAggregates(*crs), nil
			}
		}
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *courseRepository) QueryCourses(ctx context.Context, filter *course.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]course.Course, error) {
	repo.db.course.RLock()
	defer repo.db.course.RUnlock()

	courses := repo.query()
	if filter == nil {
		return courses, nil
	}

	// courses with search keyword matching Title or Description
	if filter.Search != "" {
		var filtered []course.Course
		kw := strings.ToLower(filter.Search)
		for _, crs := range courses {
			if strings.Contains(strings.ToLower(crs.Title), kw) ||
				strings.Contains(strings.ToLower(crs.Description), kw) {
				filtered = append(filtered, crs)
			}
		}
		courses = filtered
	}
	if courses != nil && filter.Category != "" {
		var filtered []course.Course
		for _, crs := range courses {
			if crs.Category == filter.Category {
				filtered = append(filtered, crs)
			}
		}
		courses = filtered
	}
	if courses != nil && filter.OwnerID != "" {
		var filtered []course.Course
		for _, crs := range courses {
			if crs.OwnerID == filter.OwnerID {
				filtered = append(filtered, crs)
			}
		}
		courses = filtered
	}
	if courses != nil && filter.PriceMin != nil {
		var filtered []course.Course
		for _, crs := range courses {
			if crs.PriceCents >= *filter.PriceMin {
				filtered = append(filtered, crs)
			}
		}
		courses = filtered
	}
	if courses != nil && filter.PriceMax != nil {
		var filtered []course.Course
		for _, crs := range courses {
			if crs.PriceCents <= *filter.PriceMax {
				filtered = append(filtered, crs)
			}
		}
		courses = filtered
	}
	if courses != nil && filter.IsPublished != nil {
		var filtered []course.Course
		for _, crs := range courses {
			if crs.IsPublished == *filter.IsPublished {
				filtered = append(filtered, crs)
			}
		}
		courses = filtered
	}

	return courses, nil
}

func (repo *courseRepository) UpdateCourse(ctx context.Context, crs course.Course, exec ...core.DBExecutor) (course.Course, error) {
	repo.db.course.Lock()
	defer repo.db.course.Unlock()

	origCrs, ok := repo.db.course.table[crs.ID]
	if !ok {
		return course.Course{}, course.ErrNotFound
	}
	if crs.Title != "" {
		origCrs.Title = crs.Title
	}
	if crs.Description != "" {
		origCrs.Description = crs.Description
	}
	if crs.Category != "" {
		origCrs.Category = crs.Category
	}
	origCrs.PriceCents = crs.PriceCents
	origCrs.IsPublished = crs.IsPublished
	origCrs.UpdatedAt = crs.UpdatedAt

	return repo.withAggregates(*origCrs), nil
}

func (repo *courseRepository) DeleteCoursesByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	repo.db.course.Lock()
	defer repo.db.course.Unlock()

	var cnt int
	for _, id := range ids {
		if _, ok := repo.db.course.table[id]; ok {
			delete(repo.db.course.table, id)
			cnt++
		}
		for lid, lsn := range repo.db.course.lessons {
			if lsn.CourseID == id {
				delete(repo.db.course.lessons, lid)
			}
		}
	}
	return cnt, nil
}

func (repo *courseRepository) SlugExists(ctx context.Context, slug string, exec ...core.DBExecutor) (bool, error) {
	repo.db.course.RLock()
	defer repo.db.course.RUnlock()

	for _, crs := range repo.db.course.table {
		if crs.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (repo *courseRepository) HasEnrollments(ctx context.Context, courseID string, exec ...core.DBExecutor) (bool, error) {
	repo.db.enrollment.RLock()
	defer repo.db.enrollment.RUnlock()

	for _, enr := range repo.db.enrollment.table {
		if enr.CourseID == courseID && enr.Status != enrollment.StatusCancelled {
			return true, nil
		}
	}
	return false, nil
}

func (repo *courseRepository) CountCourses(ctx context.Context, exec ...core.DBExecutor) (int, error) {
	repo.db.course.RLock()
	defer repo.db.course.RUnlock()
	return len(repo.db.course.table), nil
}

func (repo *courseRepository) QueryCourseStats(ctx context.Context, ownerID string, exec ...core.DBExecutor) ([]course.CourseStats, error) {
	repo.db.course.RLock()
	courses := repo.query()
	repo.db.course.RUnlock()

	repo.db.enrollment.RLock()
	defer repo.db.enrollment.RUnlock()
	repo.db.payment.RLock()
	defer repo.db.payment.RUnlock()

	stats := make([]course.CourseStats, 0)
	for _, crs := range courses {
		if crs.OwnerID != ownerID {
			continue
		}
		st := course.CourseStats{
			CourseID:    crs.ID,
			Title:       crs.Title,
			IsPublished: crs.IsPublished,
			RatingCount: crs.RatingCount,
			RatingAvg:   crs.RatingAvg,
		}
		for _, enr := range repo.db.enrollment.table {
			if enr.CourseID != crs.ID {
				continue
			}
			if enr.Status != enrollment.StatusCancelled {
				st.EnrollmentCount++
			}
			if enr.Status == enrollment.StatusCompleted {
				st.CompletedCount++
			}
			for _, pmt := range repo.db.payment.table {
				if pmt.EnrollmentID == enr.ID && pmt.Status == payment.StatusSucceeded {
					st.EarningsCents += pmt.AmountCents
				}
			}
		}
		stats = append(stats, st)
	}
	return stats, nil
}

func (repo *courseRepository) CreateLesson(ctx context.Context, lsn course.Lesson, exec ...core.DBExecutor) (course.Lesson, error) {
	repo.db.course.Lock()
	defer repo.db.course.Unlock()

	lsn.ID = uuid.New().String()
	repo.db.course.lessons[lsn.ID] = &lsn
	return lsn, nil
}

func (repo *courseRepository) GetLesson(ctx context.Context, id string, exec ...core.DBExecutor) (course.Lesson, error) {
	repo.db.course.RLock()
	defer repo.db.course.RUnlock()

	if lsn, ok := repo.db.course.lessons[id]; ok {
		return *lsn, nil
	}
	return course.Lesson{}, course.ErrLessonNotFound
}

func (repo *courseRepository) QueryLessons(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]course.Lesson, error) {
	repo.db.course.RLock()
	defer repo.db.course.RUnlock()

	lessons := make([]course.Lesson, 0)
	for _, lsn := range repo.db.course.lessons {
		if lsn.CourseID == courseID {
			lessons = append(lessons, *lsn)
		}
	}
	sort.Slice(lessons, func(i, j int) bool { return lessons[i].Position < lessons[j].Position })
	return lessons, nil
}

func (repo *courseRepository) CountLessons(ctx context.Context, courseID string, exec ...core.DBExecutor) (int, error) {
	repo.db.course.RLock()
	defer repo.db.course.RUnlock()

	var cnt int
	for _, lsn := range repo.db.course.lessons {
		if lsn.CourseID == courseID {
			cnt++
		}
	}
	return cnt, nil
}

func (repo *courseRepository) UpdateLesson(ctx context.Context, lsn course.Lesson, exec ...core.DBExecutor) (course.Lesson, error) {
	repo.db.course.Lock()
	defer repo.db.course.Unlock()

	origLsn, ok := repo.db.course.lessons[lsn.ID]
	if !ok {
		return course.Lesson{}, course.ErrLessonNotFound
	}
	if lsn.Title != "" {
		origLsn.Title = lsn.Title
	}
	if lsn.Body != "" {
		origLsn.Body = lsn.Body
	}
	if lsn.VideoURL != "" {
		origLsn.VideoURL = lsn.VideoURL
	}
	origLsn.DurationMinutes = lsn.DurationMinutes
	origLsn.UpdatedAt = lsn.UpdatedAt

	return *origLsn, nil
}

func (repo *courseRepository) DeleteLesson(ctx context.Context, lsn course.Lesson, exec ...core.DBExecutor) error {
	repo.db.course.Lock()
	defer repo.db.course.Unlock()

	delete(repo.db.course.lessons, lsn.ID)
	// close the position gap
	for _, other := range repo.db.course.lessons {
		if other.CourseID == lsn.CourseID && other.Position > lsn.Position {
			other.Position--
		}
	}
	return nil
}

func (repo *courseRepository) UpdateLessonPositions(ctx context.Context, courseID string, ids []string, exec ...core.DBExecutor) error {
	repo.db.course.Lock()
	defer repo.db.course.Unlock()

	for i, id := range ids {
		if lsn, ok := repo.db.course.lessons[id]; ok && lsn.CourseID == courseID {
			lsn.Position = i + 1
		}
	}
	return nil
}
