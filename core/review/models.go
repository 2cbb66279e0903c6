package review

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/darasahq/darasa/core"
)

type Review struct {
	ID           string    `json:"id"`
	EnrollmentID string    `json:"enrollment_id"`
	StudentID    string    `json:"student_id"`
	CourseID     string    `json:"course_id"`
	Rating       int       `json:"rating"` // 1 to 5
	Comment      string    `json:"comment"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
}

// NewReview contains information needed to review a course.
type NewReview struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment"`
}

func (nr *NewReview) Validate(validate *validator.Validate) error {
	nr.Comment = core.CleanString(nr.Comment)
	return validate.Struct(nr)
}

// UpdateReview defines what information may be provided to modify an existing Review.
type UpdateReview struct {
	Rating  *int   `json:"rating" validate:"omitempty,min=1,max=5"`
	Comment string `json:"comment"`
}

func (ur *UpdateReview) Validate(origRev Review, validate *validator.Validate) error {
	comment := core.CleanString(ur.Comment)
	if comment != "" {
		ur.Comment = comment
	} else {
		ur.Comment = origRev.Comment
	}
	return validate.Struct(ur)
}

// GetFilter selects a single Review. Exactly one field should be set.
type GetFilter struct {
	ID           string
	EnrollmentID string
}

// QueryFilter narrows down QueryReviews results; fields are ANDed.
type QueryFilter struct {
	CourseID  string `query:"course_id"`
	StudentID string `query:"student_id"`
	Rating    *int   `query:"rating"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.CourseID == "" && qf.StudentID == "" && qf.Rating == nil
}

func (qf *QueryFilter) Clean() {
	qf.CourseID = core.CleanString(qf.CourseID, true /* lower */)
	qf.StudentID = core.CleanString(qf.StudentID, true /* lower */)
}
