package enrollment

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/course"
)

// Enrollment statuses
const (
	StatusPendingPayment = "PENDING_PAYMENT"
	StatusActive         = "ACTIVE"
	StatusCompleted      = "COMPLETED"
	StatusCancelled      = "CANCELLED"
)

var AllStatuses = []string{StatusPendingPayment, StatusActive, StatusCompleted, StatusCancelled}

type Enrollment struct {
	ID              string    `json:"id"`
	StudentID       string    `json:"student_id"`
	CourseID        string    `json:"course_id"`
	Status          string    `json:"status"`
	ProgressPercent int       `json:"progress_percent"`
	EnrolledAt      time.Time `json:"enrolled_at"`  // UTC
	CompletedAt     time.Time `json:"completed_at"` // UTC; zero until completed
	CreatedAt       time.Time `json:"created_at"`   // UTC
	UpdatedAt       time.Time `json:"updated_at"`   // UTC

	// populated on dashboard reads
	Course *course.Course `json:"course,omitempty"`
}

func (e *Enrollment) IsLive() bool {
	return e.Status != StatusCancelled
}

type LessonProgress struct {
	EnrollmentID string    `json:"enrollment_id"`
	LessonID     string    `json:"lesson_id"`
	CompletedAt  time.Time `json:"completed_at"` // UTC
}

type Certificate struct {
	ID           string    `json:"id"`
	EnrollmentID string    `json:"enrollment_id"`
	Serial       string    `json:"serial"`
	IssuedAt     time.Time `json:"issued_at"` // UTC
}

// NewEnrollment contains information needed to enroll in a Course.
type NewEnrollment struct {
	CourseID string `json:"course_id" validate:"required,uuid4"`
}

func (ne *NewEnrollment) Validate(validate *validator.Validate) error {
	ne.CourseID = core.CleanString(ne.CourseID, true /* lower */)
	return validate.Struct(ne)
}

// GetFilter selects a single Enrollment.
type GetFilter struct {
	ID string
}

// CertificateGetFilter selects a single Certificate. Exactly one field should be set.
type CertificateGetFilter struct {
	EnrollmentID string
	Serial       string
}

// QueryFilter narrows down QueryEnrollments results; fields are ANDed.
type QueryFilter struct {
	StudentID string `query:"student_id"`
	CourseID  string `query:"course_id"`
	Status    string `query:"status"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.StudentID == "" && qf.CourseID == "" && qf.Status == ""
}

func (qf *QueryFilter) Clean() {
	qf.StudentID = core.CleanString(qf.StudentID, true /* lower */)
	qf.CourseID = core.CleanString(qf.CourseID, true /* lower */)
	qf.Status = core.CleanString(qf.Status)
}
