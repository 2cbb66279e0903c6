package testutil

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/darasahq/darasa/core/course"
	"github.com/darasahq/darasa/core/enrollment"
	"github.com/darasahq/darasa/core/payment"
	"github.com/darasahq/darasa/core/review"
	"github.com/darasahq/darasa/core/user"
	"github.com/darasahq/darasa/storage/database/dummy"
)

var slugRegex = regexp.MustCompile(`[^a-z0-9]+`)

// ResetDB empties all tables between tests.
func ResetDB(t *testing.T, db *dummydb.DB) {
	t.Helper()
	db.Reset()
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	usr.SetActive(isActive)
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateCourse(
	t *testing.T,
	repo course.Repository,
	ownerID, title, category string,
	priceCents int,
	isPublished bool,
	createdAt ...time.Time,
) course.Course {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	slug := strings.Trim(slugRegex.ReplaceAllString(strings.ToLower(title), "-"), "-")
	crs := course.Course{
		OwnerID:     ownerID,
		Title:       title,
		Slug:        slug,
		Description: title + " description",
		Category:    category,
		PriceCents:  priceCents,
		IsPublished: isPublished,
		CreatedAt:   tstamp,
		UpdatedAt:   tstamp,
	}
	crs, err := repo.CreateCourse(context.Background(), crs)
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return crs
}

func CreateLesson(t *testing.T, repo course.Repository, courseID, title string, position int) course.Lesson {
	t.Helper()

	tstamp := time.Now().UTC()
	lsn := course.Lesson{
		CourseID:        courseID,
		Title:           title,
		Body:            title + " body",
		Position:        position,
		DurationMinutes: 10,
		CreatedAt:       tstamp,
		UpdatedAt:       tstamp,
	}
	lsn, err := repo.CreateLesson(context.Background(), lsn)
	if err != nil {
		t.Fatalf("CreateLesson() failed: %v", err)
	}
	return lsn
}

func CreateEnrollment(t *testing.T, repo enrollment.Repository, studentID, courseID, status string) enrollment.Enrollment {
	t.Helper()

	tstamp := time.Now().UTC()
	enr := enrollment.Enrollment{
		StudentID: studentID,
		CourseID:  courseID,
		Status:    status,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	switch status {
	case enrollment.StatusActive:
		enr.EnrolledAt = tstamp
	case enrollment.StatusCompleted:
		enr.EnrolledAt = tstamp
		enr.CompletedAt = tstamp
		enr.ProgressPercent = 100
	}
	enr, err := repo.CreateEnrollment(context.Background(), enr)
	if err != nil {
		t.Fatalf("CreateEnrollment() failed: %v", err)
	}
	return enr
}

func CreateReview(t *testing.T, repo review.Repository, enr enrollment.Enrollment, rating int, comment string) review.Review {
	t.Helper()

	tstamp := time.Now().UTC()
	rev := review.Review{
		EnrollmentID: enr.ID,
		StudentID:    enr.StudentID,
		CourseID:     enr.CourseID,
		Rating:       rating,
		Comment:      comment,
		CreatedAt:    tstamp,
		UpdatedAt:    tstamp,
	}
	rev, err := repo.CreateReview(context.Background(), rev)
	if err != nil {
		t.Fatalf("CreateReview() failed: %v", err)
	}
	return rev
}

func CreatePayment(
	t *testing.T,
	repo payment.Repository,
	enr enrollment.Enrollment,
	amountCents int,
	status, intentID string,
) payment.Payment {
	t.Helper()

	tstamp := time.Now().UTC()
	pmt := payment.Payment{
		EnrollmentID: enr.ID,
		StudentID:    enr.StudentID,
		AmountCents:  amountCents,
		Currency:     "usd",
		Status:       status,
		IntentID:     intentID,
		CreatedAt:    tstamp,
		UpdatedAt:    tstamp,
	}
	pmt, err := repo.CreatePayment(context.Background(), pmt)
	if err != nil {
		t.Fatalf("CreatePayment() failed: %v", err)
	}
	return pmt
}
