package enrollment

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/course"
	"github.com/darasahq/darasa/core/user"
)

var (
	// errors
	ErrNotFound            = errors.New("enrollment not found")
	ErrCertificateNotFound = errors.New("certificate not found")

	errOwnCourse       = "tutors cannot enroll in their own course"
	errAlreadyEnrolled = "already enrolled in this course"
	errNotActive       = "enrollment is not active"
	errNotCompleted    = "course is not completed yet"
	errCancelCompleted = "a completed enrollment cannot be cancelled"
)

type (
	Repository interface {
		CreateEnrollment(ctx context.Context, enr Enrollment, exec ...core.DBExecutor) (Enrollment, error)
		GetEnrollment(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Enrollment, error)
		// QueryEnrollments applies AND operation on available QueryFilter fields.
		QueryEnrollments(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Enrollment, error)
		UpdateEnrollment(ctx context.Context, enr Enrollment, exec ...core.DBExecutor) (Enrollment, error)
		// LiveEnrollmentExists reports whether the student has a non-cancelled enrollment in the course.
		LiveEnrollmentExists(ctx context.Context, studentID, courseID string, exec ...core.DBExecutor) (bool, error)
		CountEnrollments(ctx context.Context, exec ...core.DBExecutor) (int, error)

		// CreateLessonProgress records a completed lesson; it reports false when already recorded.
		CreateLessonProgress(ctx context.Context, lp LessonProgress, exec ...core.DBExecutor) (bool, error)
		CountLessonProgress(ctx context.Context, enrollmentID string, exec ...core.DBExecutor) (int, error)
		QueryLessonProgress(ctx context.Context, enrollmentID string, exec ...core.DBExecutor) ([]LessonProgress, error)

		CreateCertificate(ctx context.Context, cert Certificate, exec ...core.DBExecutor) (Certificate, error)
		GetCertificate(ctx context.Context, filter CertificateGetFilter, exec ...core.DBExecutor) (Certificate, error)
	}

	Service interface {
		// Enroll enrolls std in a published course. Free courses activate immediately;
		// paid ones start as PENDING_PAYMENT until checkout settles.
		Enroll(ctx context.Context, std user.User, courseID string) (Enrollment, course.Course, error)
		GetByID(ctx context.Context, id string) (Enrollment, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Enrollment, error)
		Cancel(ctx context.Context, enr Enrollment) (Enrollment, error)
		// CompleteLesson records a lesson as done and recomputes progress; reaching
		// 100% completes the enrollment and issues a certificate.
		CompleteLesson(ctx context.Context, std user.User, enr Enrollment, lessonID string) (Enrollment, error)
		Progress(ctx context.Context, enr Enrollment) ([]LessonProgress, error)
		Certificate(ctx context.Context, enr Enrollment) (Certificate, error)
		VerifyCertificate(ctx context.Context, serial string) (Certificate, error)
		Count(ctx context.Context) (int, error)
	}

	service struct {
		db        core.DB
		repo      Repository
		courseSvc course.Service
		mailSvc   core.EmailService
		conf      *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(db core.DB, repo Repository, courseSvc course.Service, mailSvc core.EmailService, conf *core.Config) Service {
	return &service{
		db:        db,
		repo:      repo,
		courseSvc: courseSvc,
		mailSvc:   mailSvc,
		conf:      conf,
	}
}

func (svc *service) Enroll(ctx context.Context, std user.User, courseID string) (Enrollment, course.Course, error) {
	crs, err := svc.courseSvc.GetByID(ctx, courseID)
	if err != nil {
		return Enrollment{}, course.Course{}, err
	}
	if !crs.IsPublished {
		return Enrollment{}, course.Course{}, course.ErrNotFound
	}
	if crs.OwnerID == std.ID {
		return Enrollment{}, course.Course{}, core.NewValidationError(errors.New(errOwnCourse))
	}

	exists, err := svc.repo.LiveEnrollmentExists(ctx, std.ID, crs.ID)
	if err != nil {
		return Enrollment{}, course.Course{}, err
	}
	if exists {
		return Enrollment{}, course.Course{}, core.NewValidationError(errors.New(errAlreadyEnrolled))
	}

	now := time.Now().UTC()
	enr := Enrollment{
		StudentID: std.ID,
		CourseID:  crs.ID,
		Status:    StatusPendingPayment,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if crs.IsFree() {
		enr.Status = StatusActive
		enr.EnrolledAt = now
	}

	enr, err = svc.repo.CreateEnrollment(ctx, enr)
	if err != nil {
		return Enrollment{}, course.Course{}, err
	}
	return enr, crs, nil
}

func (svc *service) GetByID(ctx context.Context, id string) (Enrollment, error) {
	return svc.repo.GetEnrollment(ctx, GetFilter{ID: id})
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Enrollment, error) {
	if filter != nil && filter.IsEmpty() {
		filter = nil
	}
	if ordering == nil {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	return svc.repo.QueryEnrollments(ctx, filter, ordering)
}

func (svc *service) Cancel(ctx context.Context, enr Enrollment) (Enrollment, error) {
	switch enr.Status {
	case StatusCompleted:
		return Enrollment{}, core.NewValidationError(errors.New(errCancelCompleted))
	case StatusCancelled:
		return enr, nil
	}
	enr.Status = StatusCancelled
	enr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateEnrollment(ctx, enr)
}

func (svc *service) CompleteLesson(ctx context.Context, std user.User, enr Enrollment, lessonID string) (Enrollment, error) {
	if enr.Status != StatusActive {
		return Enrollment{}, core.NewValidationError(errors.New(errNotActive))
	}

	crs, err := svc.courseSvc.GetByID(ctx, enr.CourseID)
	if err != nil {
		return Enrollment{}, err
	}
	var found bool
	for _, lsn := range crs.Lessons {
		if lsn.ID == lessonID {
			found = true
			break
		}
	}
	if !found {
		return Enrollment{}, course.ErrLessonNotFound
	}

	now := time.Now().UTC()
	var cert Certificate
	err = core.Atomic(ctx, svc.db, func(exec core.DBExecutor) error {
		created, err := svc.repo.CreateLessonProgress(ctx, LessonProgress{
			EnrollmentID: enr.ID,
			LessonID:     lessonID,
			CompletedAt:  now,
		}, exec)
		if err != nil {
			return err
		}
		if !created {
			// already recorded, nothing to recompute
			return nil
		}

		done, err := svc.repo.CountLessonProgress(ctx, enr.ID, exec)
		if err != nil {
			return err
		}
		if total := len(crs.Lessons); total > 0 {
			enr.ProgressPercent = 100 * done / total
		}
		enr.UpdatedAt = now
		if enr.ProgressPercent >= 100 {
			enr.Status = StatusCompleted
			enr.CompletedAt = now
		}
		if enr, err = svc.repo.UpdateEnrollment(ctx, enr, exec); err != nil {
			return err
		}

		if enr.Status == StatusCompleted {
			cert, err = svc.repo.CreateCertificate(ctx, Certificate{
				EnrollmentID: enr.ID,
				Serial:       MakeSerial(enr.ID, svc.conf),
				IssuedAt:     now,
			}, exec)
			return err
		}
		return nil
	})
	if err != nil {
		return Enrollment{}, err
	}

	if enr.Status == StatusCompleted {
		svc.sendCompletionMail(std, crs, cert)
	}
	return enr, nil
}

func (svc *service) Progress(ctx context.Context, enr Enrollment) ([]LessonProgress, error) {
	return svc.repo.QueryLessonProgress(ctx, enr.ID)
}

func (svc *service) Certificate(ctx context.Context, enr Enrollment) (Certificate, error) {
	if enr.Status != StatusCompleted {
		return Certificate{}, core.NewValidationError(errors.New(errNotCompleted))
	}
	return svc.repo.GetCertificate(ctx, CertificateGetFilter{EnrollmentID: enr.ID})
}

func (svc *service) VerifyCertificate(ctx context.Context, serial string) (Certificate, error) {
	serial = strings.ToUpper(core.CleanString(serial))
	cert, err := svc.repo.GetCertificate(ctx, CertificateGetFilter{Serial: serial})
	if err != nil {
		return Certificate{}, err
	}
	if !CheckSerial(cert.Serial, cert.EnrollmentID, svc.conf) {
		return Certificate{}, ErrCertificateNotFound
	}
	return cert, nil
}

func (svc *service) Count(ctx context.Context) (int, error) {
	return svc.repo.CountEnrollments(ctx)
}

func (svc *service) sendCompletionMail(std user.User, crs course.Course, cert Certificate) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: std.Name, Address: std.Email}},
		Subject:      "Congratulations, you completed " + crs.Title,
		TemplateName: "course-completed",
		TemplateData: struct{ Username, CourseTitle, Serial string }{
			Username:    std.Username,
			CourseTitle: crs.Title,
			Serial:      cert.Serial,
		},
	})
}
