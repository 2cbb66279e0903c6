package dummydb

import (
	"context"
	"database/sql"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/course"
	"github.com/darasahq/darasa/core/enrollment"
	"github.com/darasahq/darasa/core/payment"
	"github.com/darasahq/darasa/core/review"
	"github.com/darasahq/darasa/core/user"
)

type (
	DB struct {
		noopExec

		user       *userTable
		course     *courseTable
		enrollment *enrollmentTable
		review     *reviewTable
		payment    *paymentTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	courseTable struct {
		sync.RWMutex
		table   map[string]*course.Course
		lessons map[string]*course.Lesson
	}

	enrollmentTable struct {
		sync.RWMutex
		table        map[string]*enrollment.Enrollment
		progress     map[string]map[string]enrollment.LessonProgress // enrollmentID -> lessonID
		certificates map[string]*enrollment.Certificate
	}

	reviewTable struct {
		sync.RWMutex
		table map[string]*review.Review
	}

	paymentTable struct {
		sync.RWMutex
		table map[string]*payment.Payment
	}
)

var _ core.DB = (*DB)(nil) // interface compliance check

func Open() (*DB, error) {
	db := &DB{
		user: &userTable{table: make(map[string]*user.User)},
		course: &courseTable{
			table:   make(map[string]*course.Course),
			lessons: make(map[string]*course.Lesson),
		},
		enrollment: &enrollmentTable{
			table:        make(map[string]*enrollment.Enrollment),
			progress:     make(map[string]map[string]enrollment.LessonProgress),
			certificates: make(map[string]*enrollment.Certificate),
		},
		review:  &reviewTable{table: make(map[string]*review.Review)},
		payment: &paymentTable{table: make(map[string]*payment.Payment)},
	}
	return db, nil
}

func (db *DB) Begin(ctx context.Context) (core.DBTransactor, error) {
	return noopTx{}, nil
}

// Reset empties all tables. Intended for tests.
func (db *DB) Reset() {
	db.user.Lock()
	db.user.table = make(map[string]*user.User)
	db.user.Unlock()

	db.course.Lock()
	db.course.table = make(map[string]*course.Course)
	db.course.lessons = make(map[string]*course.Lesson)
	db.course.Unlock()

	db.enrollment.Lock()
	db.enrollment.table = make(map[string]*enrollment.Enrollment)
	db.enrollment.progress = make(map[string]map[string]enrollment.LessonProgress)
	db.enrollment.certificates = make(map[string]*enrollment.Certificate)
	db.enrollment.Unlock()

	db.review.Lock()
	db.review.table = make(map[string]*review.Review)
	db.review.Unlock()

	db.payment.Lock()
	db.payment.table = make(map[string]*payment.Payment)
	db.payment.Unlock()
}

// noopExec satisfies core.DBExecutor; repositories here never touch SQL.
type noopExec struct{}

func (noopExec) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return nil, nil
}
func (noopExec) QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error) {
	return nil, nil
}
func (noopExec) QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row {
	return nil
}
func (noopExec) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return nil, nil
}

type noopTx struct {
	noopExec
}

func (noopTx) Commit() error   { return nil }
func (noopTx) Rollback() error { return nil }
