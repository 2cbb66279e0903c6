package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/enrollment"
)

type enrollmentRepository struct {
	db *enrollmentTable
}

var _ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(db *DB) *enrollmentRepository {
	return &enrollmentRepository{db: db.enrollment}
}

func (repo *enrollmentRepository) query() []enrollment.Enrollment {
	enrs := make([]enrollment.Enrollment, 0, len(repo.db.table))
	for _, enr := range repo.db.table {
		enrs = append(enrs, *enr)
	}
	sort.Slice(enrs, func(i, j int) bool { return enrs[i].CreatedAt.After(enrs[j].CreatedAt) })
	return enrs
}

func (repo *enrollmentRepository) CreateEnrollment(ctx context.Context, enr enrollment.Enrollment, exec ...core.DBExecutor) (enrollment.Enrollment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	enr.ID = uuid.New().String()
	repo.db.table[enr.ID] = &enr
	return enr, nil
}

func (repo *enrollmentRepository) GetEnrollment(ctx context.Context, filter enrollment.GetFilter, exec ...core.DBExecutor) (enrollment.Enrollment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if enr, ok := repo.db.table[filter.ID]; ok {
		return *enr, nil
	}
	return enrollment.Enrollment{}, enrollment.ErrNotFound
}

func (repo *enrollmentRepository) QueryEnrollments(ctx context.Context, filter *enrollment.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]enrollment.Enrollment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	enrs := repo.query()
	if filter == nil {
		return enrs, nil
	}

	if filter.StudentID != "" {
		var filtered []enrollment.Enrollment
		for _, enr := range enrs {
			if enr.StudentID == filter.StudentID {
				filtered = append(filtered, enr)
			}
		}
		enrs = filtered
	}
	if enrs != nil && filter.CourseID != "" {
		var filtered []enrollment.Enrollment
		for _, enr := range enrs {
			if enr.CourseID == filter.CourseID {
				filtered = append(filtered, enr)
			}
		}
		enrs = filtered
	}
	if enrs != nil && filter.Status != "" {
		var filtered []enrollment.Enrollment
		for _, enr := range enrs {
			if enr.Status == filter.Status {
				filtered = append(filtered, enr)
			}
		}
		enrs = filtered
	}

	return enrs, nil
}

func (repo *enrollmentRepository) UpdateEnrollment(ctx context.Context, enr enrollment.Enrollment, exec ...core.DBExecutor) (enrollment.Enrollment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	origEnr, ok := repo.db.table[enr.ID]
	if !ok {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	origEnr.Status = enr.Status
	origEnr.ProgressPercent = enr.ProgressPercent
	origEnr.EnrolledAt = enr.EnrolledAt
	origEnr.CompletedAt = enr.CompletedAt
	origEnr.UpdatedAt = enr.UpdatedAt

	return *origEnr, nil
}

func (repo *enrollmentRepository) LiveEnrollmentExists(ctx context.Context, studentID, courseID string, exec ...core.DBExecutor) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, enr := range repo.db.table {
		if enr.StudentID == studentID && enr.CourseID == courseID && enr.Status != enrollment.StatusCancelled {
			return true, nil
		}
	}
	return false, nil
}

func (repo *enrollmentRepository) CountEnrollments(ctx context.Context, exec ...core.DBExecutor) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return len(repo.db.table), nil
}

func (repo *enrollmentRepository) CreateLessonProgress(ctx context.Context, lp enrollment.LessonProgress, exec ...core.DBExecutor) (bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	lessons, ok := repo.db.progress[lp.EnrollmentID]
	if !ok {
		lessons = make(map[string]enrollment.LessonProgress)
		repo.db.progress[lp.EnrollmentID] = lessons
	}
	if _, ok = lessons[lp.LessonID]; ok {
		return false, nil
	}
	lessons[lp.LessonID] = lp
	return true, nil
}

func (repo *enrollmentRepository) CountLessonProgress(ctx context.Context, enrollmentID string, exec ...core.DBExecutor) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return len(repo.db.progress[enrollmentID]), nil
}

func (repo *enrollmentRepository) QueryLessonProgress(ctx context.Context, enrollmentID string, exec ...core.DBExecutor) ([]enrollment.LessonProgress, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	progress := make([]enrollment.LessonProgress, 0, len(repo.db.progress[enrollmentID]))
	for _, lp := range repo.db.progress[enrollmentID] {
		progress = append(progress, lp)
	}
	sort.Slice(progress, func(i, j int) bool { return progress[i].CompletedAt.Before(progress[j].CompletedAt) })
	return progress, nil
}

func (repo *enrollmentRepository) CreateCertificate(ctx context.Context, cert enrollment.Certificate, exec ...core.DBExecutor) (enrollment.Certificate, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	cert.ID = uuid.New().String()
	repo.db.certificates[cert.ID] = &cert
	return cert, nil
}

func (repo *enrollmentRepository) GetCertificate(ctx context.Context, filter enrollment.CertificateGetFilter, exec ...core.DBExecutor) (enrollment.Certificate, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, cert := range repo.db.certificates {
		if (filter.EnrollmentID != "" && cert.EnrollmentID == filter.EnrollmentID) ||
			(filter.Serial != "" && cert.Serial == filter.Serial) {
			return *cert, nil
		}
	}
	return enrollment.Certificate{}, enrollment.ErrCertificateNotFound
}
