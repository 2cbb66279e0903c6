package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/payment"
)

type paymentRow struct {
	ID           string      `db:"id"`
	EnrollmentID string      `db:"enrollment_id"`
	StudentID    string      `db:"student_id"`
	AmountCents  int         `db:"amount_cents"`
	Currency     string      `db:"currency"`
	Status       string      `db:"status"`
	IntentID     null.String `db:"intent_id"`
	CreatedAt    null.Time   `db:"created_at"`
	UpdatedAt    null.Time   `db:"updated_at"`
}

type paymentRepository struct {
	exec core.DBExecutor
}

var _ payment.Repository = (*paymentRepository)(nil) // interface compliance check

func NewPaymentRepository(exec core.DBExecutor) *paymentRepository {
	return &paymentRepository{exec: exec}
}

func (repo paymentRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.exec
}

func (repo paymentRepository) pack(pmt payment.Payment) paymentRow {
	return paymentRow{
		ID:           pmt.ID,
		EnrollmentID: pmt.EnrollmentID,
		StudentID:    pmt.StudentID,
		AmountCents:  pmt.AmountCents,
		Currency:     pmt.Currency,
		Status:       pmt.Status,
		IntentID:     null.NewString(pmt.IntentID, pmt.IntentID != ""),
		CreatedAt:    null.NewTime(pmt.CreatedAt.UTC(), !pmt.CreatedAt.IsZero()),
		UpdatedAt:    null.NewTime(pmt.UpdatedAt.UTC(), !pmt.UpdatedAt.IsZero()),
	}
}

func (repo paymentRepository) unpack(row paymentRow) payment.Payment {
	return payment.Payment{
		ID:           row.ID,
		EnrollmentID: row.EnrollmentID,
		StudentID:    row.StudentID,
		AmountCents:  row.AmountCents,
		Currency:     row.Currency,
		Status:       row.Status,
		IntentID:     row.IntentID.String,
		CreatedAt:    row.CreatedAt.Time,
		UpdatedAt:    row.UpdatedAt.Time,
	}
}

// trapNoRowsErr maps psql "no rows" err to payment.ErrNotFound
func (repo paymentRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return payment.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo paymentRepository) CreatePayment(ctx context.Context, pmt payment.Payment, exec ...core.DBExecutor) (payment.Payment, error) {
	pmt.ID = uuid.New().String()
	row := repo.pack(pmt)

	q := `INSERT INTO payment (id, enrollment_id, student_id, amount_cents, currency, status, intent_id, created_at, updated_at)
		  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := repo.getExec(exec).ExecContext(ctx, q,
		row.ID, row.EnrollmentID, row.StudentID, row.AmountCents, row.Currency,
		row.Status, row.IntentID, row.CreatedAt, row.UpdatedAt)
	if err != nil {
		return payment.Payment{}, errors.Wrap(err, "inserting payment")
	}
	return repo.unpack(row), nil
}

func (repo paymentRepository) GetPayment(ctx context.Context, filter payment.GetFilter, exec ...core.DBExecutor) (payment.Payment, error) {
	var q string
	var args []interface{}

	if filter.ID != "" {
		if _, err := uuid.Parse(filter.ID); err != nil {
			return payment.Payment{}, payment.ErrNotFound
		}
		q = `SELECT * FROM payment WHERE id = $1`
		args = []interface{}{filter.ID}
	} else if filter.IntentID != "" {
		q = `SELECT * FROM payment WHERE intent_id = $1`
		args = []interface{}{filter.IntentID}
	} else {
		return payment.Payment{}, payment.ErrNotFound
	}

	var row paymentRow
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, args...); err != nil {
		return payment.Payment{}, repo.trapNoRowsErr(err, "finding payment")
	}
	return repo.unpack(row), nil
}

func (repo paymentRepository) QueryPayments(ctx context.Context, filter *payment.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]payment.Payment, error) {
	var conds []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter != nil {
		if filter.StudentID != "" {
			conds = append(conds, "student_id = "+arg(filter.StudentID))
		}
		if filter.EnrollmentID != "" {
			conds = append(conds, "enrollment_id = "+arg(filter.EnrollmentID))
		}
		if filter.Status != "" {
			conds = append(conds, "status = "+arg(filter.Status))
		}
	}

	q := `SELECT * FROM payment`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	if ordering != nil {
		orderList := make([]string, 0, len(ordering))
		for _, ord := range ordering {
			orderList = append(orderList, ord.String())
		}
		q += " ORDER BY " + strings.Join(orderList, ", ")
	}

	var rows []paymentRow
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying payments")
	}

	payments := make([]payment.Payment, 0, len(rows))
	for _, row := range rows {
		payments = append(payments, repo.unpack(row))
	}
	return payments, nil
}

func (repo paymentRepository) UpdatePayment(ctx context.Context, pmt payment.Payment, exec ...core.DBExecutor) (payment.Payment, error) {
	row := repo.pack(pmt)

	q := `UPDATE payment SET status = $1, updated_at = $2 WHERE id = $3 RETURNING *`
	var updated paymentRow
	err := sqlx.GetContext(ctx, repo.getExec(exec), &updated, q, row.Status, row.UpdatedAt, row.ID)
	if err != nil {
		return payment.Payment{}, repo.trapNoRowsErr(err, "updating payment")
	}
	return repo.unpack(updated), nil
}

func (repo paymentRepository) CountPayments(ctx context.Context, exec ...core.DBExecutor) (int, error) {
	var cnt int
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &cnt, `SELECT COUNT(*) FROM payment`); err != nil {
		return 0, errors.Wrap(err, "counting payments")
	}
	return cnt, nil
}

func (repo paymentRepository) SumSucceededCents(ctx context.Context, exec ...core.DBExecutor) (int, error) {
	var sum int
	q := `SELECT COALESCE(SUM(amount_cents), 0) FROM payment WHERE status = 'SUCCEEDED'`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &sum, q); err != nil {
		return 0, errors.Wrap(err, "summing payments")
	}
	return sum, nil
}
