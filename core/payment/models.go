package payment

import (
	"time"

	"github.com/darasahq/darasa/core"
)

// Payment statuses
const (
	StatusPending   = "PENDING"
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
)

var AllStatuses = []string{StatusPending, StatusSucceeded, StatusFailed}

type Payment struct {
	ID           string    `json:"id"`
	EnrollmentID string    `json:"enrollment_id"`
	StudentID    string    `json:"student_id"`
	AmountCents  int       `json:"amount_cents"`
	Currency     string    `json:"currency"`
	Status       string    `json:"status"`
	IntentID     string    `json:"intent_id"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC

	// ClientSecret confirms the gateway intent on the frontend; never persisted.
	ClientSecret string `json:"client_secret,omitempty"`
}

// GetFilter selects a single Payment. Exactly one field should be set.
type GetFilter struct {
	ID       string
	IntentID string
}

// QueryFilter narrows down QueryPayments results; fields are ANDed.
type QueryFilter struct {
	StudentID    string `query:"student_id"`
	EnrollmentID string `query:"enrollment_id"`
	Status       string `query:"status"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.StudentID == "" && qf.EnrollmentID == "" && qf.Status == ""
}

func (qf *QueryFilter) Clean() {
	qf.StudentID = core.CleanString(qf.StudentID, true /* lower */)
	qf.EnrollmentID = core.CleanString(qf.EnrollmentID, true /* lower */)
	qf.Status = core.CleanString(qf.Status)
}
