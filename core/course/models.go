package course

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/darasahq/darasa/core"
)

type Course struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Title       string    `json:"title"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	PriceCents  int       `json:"price_cents"`
	IsPublished bool      `json:"is_published"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC

	// aggregates, populated on reads
	RatingCount int     `json:"rating_count"`
	RatingAvg   float64 `json:"rating_avg"`

	// populated on detail reads
	Lessons []Lesson `json:"lessons,omitempty"`
}

func (c *Course) IsFree() bool {
	return c.PriceCents == 0
}

type Lesson struct {
	ID              string    `json:"id"`
	CourseID        string    `json:"course_id"`
	Title           string    `json:"title"`
	Body            string    `json:"body"`
	VideoURL        string    `json:"video_url"`
	Position        int       `json:"position"` // 1-based, dense per course
	DurationMinutes int       `json:"duration_minutes"`
	CreatedAt       time.Time `json:"created_at"` // UTC
	UpdatedAt       time.Time `json:"updated_at"` // UTC
}

// CourseStats is a tutor-dashboard aggregation row.
type CourseStats struct {
	CourseID        string  `json:"course_id"`
	Title           string  `json:"title"`
	IsPublished     bool    `json:"is_published"`
	EnrollmentCount int     `json:"enrollment_count"`
	CompletedCount  int     `json:"completed_count"`
	RatingCount     int     `json:"rating_count"`
	RatingAvg       float64 `json:"rating_avg"`
	EarningsCents   int     `json:"earnings_cents"`
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	Category    string `json:"category" validate:"required"`
	PriceCents  int    `json:"price_cents" validate:"gte=0"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.Description = core.CleanString(nc.Description)
	nc.Category = core.CleanString(nc.Category, true /* lower */)
	return validate.Struct(nc)
}

// UpdateCourse defines what information may be provided to modify an existing Course.
type UpdateCourse struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	PriceCents  *int   `json:"price_cents" validate:"omitempty,gte=0"`
}

func (uc *UpdateCourse) Validate(origCrs Course, validate *validator.Validate) error {
	title := core.CleanString(uc.Title)
	if title != "" {
		uc.Title = title
	} else {
		uc.Title = origCrs.Title
	}

	desc := core.CleanString(uc.Description)
	if desc != "" {
		uc.Description = desc
	} else {
		uc.Description = origCrs.Description
	}

	cat := core.CleanString(uc.Category, true /* lower */)
	if cat != "" {
		uc.Category = cat
	} else {
		uc.Category = origCrs.Category
	}

	return validate.Struct(uc)
}

// NewLesson contains information needed to add a Lesson to a Course.
type NewLesson struct {
	Title           string `json:"title" validate:"required"`
	Body            string `json:"body"`
	VideoURL        string `json:"video_url" validate:"omitempty,url"`
	DurationMinutes int    `json:"duration_minutes" validate:"gte=0"`
}

func (nl *NewLesson) Validate(validate *validator.Validate) error {
	nl.Title = core.CleanString(nl.Title)
	nl.Body = core.CleanString(nl.Body)
	nl.VideoURL = core.CleanString(nl.VideoURL)
	return validate.Struct(nl)
}

// UpdateLesson defines what information may be provided to modify an existing Lesson.
type UpdateLesson struct {
	Title           string `json:"title"`
	Body            string `json:"body"`
	VideoURL        string `json:"video_url" validate:"omitempty,url"`
	DurationMinutes *int   `json:"duration_minutes" validate:"omitempty,gte=0"`
}

func (ul *UpdateLesson) Validate(origLsn Lesson, validate *validator.Validate) error {
	title := core.CleanString(ul.Title)
	if title != "" {
		ul.Title = title
	} else {
		ul.Title = origLsn.Title
	}

	body := core.CleanString(ul.Body)
	if body != "" {
		ul.Body = body
	} else {
		ul.Body = origLsn.Body
	}

	videoURL := core.CleanString(ul.VideoURL)
	if videoURL != "" {
		ul.VideoURL = videoURL
	} else {
		ul.VideoURL = origLsn.VideoURL
	}

	return validate.Struct(ul)
}

// ReorderLessons carries the full lesson ordering for a Course.
type ReorderLessons struct {
	LessonIDs []string `json:"lesson_ids" validate:"required,min=1"`
}

func (rl *ReorderLessons) Validate(validate *validator.Validate) error {
	return validate.Struct(rl)
}

// GetFilter selects a single Course. Exactly one field should be set.
type GetFilter struct {
	ID   string
	Slug string
}

// QueryFilter narrows down QueryCourses results; fields are ANDed.
type QueryFilter struct {
	Search      string `query:"search"` // case-insensitive match on Title or Description
	Category    string `query:"category"`
	OwnerID     string `query:"owner_id"`
	PriceMin    *int   `query:"price_min"`
	PriceMax    *int   `query:"price_max"`
	IsPublished *bool  `query:"is_published"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Category == "" && qf.OwnerID == "" &&
		qf.PriceMin == nil && qf.PriceMax == nil && qf.IsPublished == nil
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Category = core.CleanString(qf.Category, true /* lower */)
}
