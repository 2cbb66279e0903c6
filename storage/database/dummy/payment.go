package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/payment"
)

type paymentRepository struct {
	db *paymentTable
}

var _ payment.Repository = (*paymentRepository)(nil) // interface compliance check

func NewPaymentRepository(db *DB) *paymentRepository {
	return &paymentRepository{db: db.payment}
}

func (repo *paymentRepository) query() []payment.Payment {
	payments := make([]payment.Payment, 0, len(repo.db.table))
	for _, pmt := range repo.db.table {
		payments = append(payments, *pmt)
	}
	sort.Slice(payments, func(i, j int) bool { return payments[i].CreatedAt.After(payments[j].CreatedAt) })
	return payments
}

func (repo *paymentRepository) CreatePayment(ctx context.Context, pmt payment.Payment, exec ...core.DBExecutor) (payment.Payment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	pmt.ID = uuid.New().String()
	pmt.ClientSecret = ""
	repo.db.table[pmt.ID] = &pmt
	return pmt, nil
}

func (repo *paymentRepository) GetPayment(ctx context.Context, filter payment.GetFilter, exec ...core.DBExecutor) (payment.Payment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if filter.ID != "" {
		if pmt, ok := repo.db.table[filter.ID]; ok {
			return *pmt, nil
		}
		return payment.Payment{}, payment.ErrNotFound
	}
	if filter.IntentID != "" {
		for _, pmt := range repo.db.table {
			if pmt.IntentID == filter.IntentID {
				return *pmt, nil
			}
		}
	}
	return payment.Payment{}, payment.ErrNotFound
}

func (repo *paymentRepository) QueryPayments(ctx context.Context, filter *payment.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]payment.Payment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	payments := repo.query()
	if filter == nil {
		return payments, nil
	}

	if filter.StudentID != "" {
		var filtered []payment.Payment
		for _, pmt := range payments {
			if pmt.StudentID == filter.StudentID {
				filtered = append(filtered, pmt)
			}
		}
		payments = filtered
	}
	if payments != nil && filter.EnrollmentID != "" {
		var filtered []payment.Payment
		for _, pmt := range payments {
			if pmt.EnrollmentID == filter.EnrollmentID {
				filtered = append(filtered, pmt)
			}
		}
		payments = filtered
	}
	if payments != nil && filter.Status != "" {
		var filtered []payment.Payment
		for _, pmt := range payments {
			if pmt.Status == filter.Status {
				filtered = append(filtered, pmt)
			}
		}
		payments = filtered
	}

	return payments, nil
}

func (repo *paymentRepository) UpdatePayment(ctx context.Context, pmt payment.Payment, exec ...core.DBExecutor) (payment.Payment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	origPmt, ok := repo.db.table[pmt.ID]
	if !ok {
		return payment.Payment{}, payment.ErrNotFound
	}
	origPmt.Status = pmt.Status
	origPmt.UpdatedAt = pmt.UpdatedAt

	return *origPmt, nil
}

func (repo *paymentRepository) CountPayments(ctx context.Context, exec ...core.DBExecutor) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return len(repo.db.table), nil
}

func (repo *paymentRepository) SumSucceededCents(ctx context.Context, exec ...core.DBExecutor) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var sum int
	for _, pmt := range repo.db.table {
		if pmt.Status == payment.StatusSucceeded {
			sum += pmt.AmountCents
		}
	}
	return sum, nil
}
