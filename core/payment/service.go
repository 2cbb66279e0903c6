package payment

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/course"
	"github.com/darasahq/darasa/core/enrollment"
	"github.com/darasahq/darasa/core/user"
)

var (
	// errors
	ErrNotFound = errors.New("payment not found")

	errNotPayable = "enrollment is not awaiting payment"
	errFreeCourse = "free courses need no payment"
)

type (
	Repository interface {
		CreatePayment(ctx context.Context, pmt Payment, exec ...core.DBExecutor) (Payment, error)
		GetPayment(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Payment, error)
		// QueryPayments applies AND operation on available QueryFilter fields.
		QueryPayments(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Payment, error)
		UpdatePayment(ctx context.Context, pmt Payment, exec ...core.DBExecutor) (Payment, error)
		CountPayments(ctx context.Context, exec ...core.DBExecutor) (int, error)
		// SumSucceededCents totals all succeeded payments.
		SumSucceededCents(ctx context.Context, exec ...core.DBExecutor) (int, error)
	}

	Service interface {
		// StartCheckout opens a gateway intent for a PENDING_PAYMENT enrollment and
		// records a pending Payment. The returned Payment carries the intent's
		// client secret for frontend confirmation.
		StartCheckout(ctx context.Context, std user.User, enr enrollment.Enrollment, crs course.Course) (Payment, error)
		// HandleWebhook settles a payment from a verified gateway event. Events for
		// already-settled payments are no-ops.
		HandleWebhook(ctx context.Context, payload []byte, signature string) error
		GetByID(ctx context.Context, id string) (Payment, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Payment, error)
		Count(ctx context.Context) (int, error)
		RevenueCents(ctx context.Context) (int, error)
	}

	service struct {
		db         core.DB
		repo       Repository
		enrollRepo enrollment.Repository
		userSvc    user.Service
		courseSvc  course.Service
		gateway    core.PaymentGateway
		mailSvc    core.EmailService
		conf       *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(
	db core.DB,
	repo Repository,
	enrollRepo enrollment.Repository,
	userSvc user.Service,
	courseSvc course.Service,
	gateway core.PaymentGateway,
	mailSvc core.EmailService,
	conf *core.Config,
) Service {
	return &service{
		db:         db,
		repo:       repo,
		enrollRepo: enrollRepo,
		userSvc:    userSvc,
		courseSvc:  courseSvc,
		gateway:    gateway,
		mailSvc:    mailSvc,
		conf:       conf,
	}
}

func (svc *service) StartCheckout(ctx context.Context, std user.User, enr enrollment.Enrollment, crs course.Course) (Payment, error) {
	if enr.Status != enrollment.StatusPendingPayment {
		return Payment{}, core.NewValidationError(errors.New(errNotPayable))
	}
	if crs.IsFree() {
		return Payment{}, core.NewValidationError(errors.New(errFreeCourse))
	}

	intent, err := svc.gateway.CreateIntent(ctx, int64(crs.PriceCents), svc.conf.Stripe.Currency, enr.ID)
	if err != nil {
		return Payment{}, errors.Wrap(err, "creating payment intent")
	}

	now := time.Now().UTC()
	pmt := Payment{
		EnrollmentID: enr.ID,
		StudentID:    std.ID,
		AmountCents:  crs.PriceCents,
		Currency:     svc.conf.Stripe.Currency,
		Status:       StatusPending,
		IntentID:     intent.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	pmt, err = svc.repo.CreatePayment(ctx, pmt)
	if err != nil {
		return Payment{}, err
	}
	pmt.ClientSecret = intent.ClientSecret
	return pmt, nil
}

func (svc *service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	evt, err := svc.gateway.VerifyWebhook(payload, signature)
	if err != nil {
		return errors.Wrap(err, "verifying webhook")
	}
	if evt.Type == core.PaymentEventIgnored {
		return nil
	}

	pmt, err := svc.repo.GetPayment(ctx, GetFilter{IntentID: evt.IntentID})
	if err != nil {
		return err
	}
	if pmt.Status != StatusPending {
		// already settled
		return nil
	}

	switch evt.Type {
	case core.PaymentEventSucceeded:
		return svc.settleSucceeded(ctx, pmt)
	case core.PaymentEventFailed:
		pmt.Status = StatusFailed
		pmt.UpdatedAt = time.Now().UTC()
		_, err = svc.repo.UpdatePayment(ctx, pmt)
		return err
	}
	return nil
}

func (svc *service) GetByID(ctx context.Context, id string) (Payment, error) {
	return svc.repo.GetPayment(ctx, GetFilter{ID: id})
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Payment, error) {
	if filter != nil && filter.IsEmpty() {
		filter = nil
	}
	if ordering == nil {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	return svc.repo.QueryPayments(ctx, filter, ordering)
}

func (svc *service) Count(ctx context.Context) (int, error) {
	return svc.repo.CountPayments(ctx)
}

func (svc *service) RevenueCents(ctx context.Context) (int, error) {
	return svc.repo.SumSucceededCents(ctx)
}

// settleSucceeded marks the payment succeeded and activates its enrollment
// in one transaction, then sends the receipt.
func (svc *service) settleSucceeded(ctx context.Context, pmt Payment) error {
	now := time.Now().UTC()
	err := core.Atomic(ctx, svc.db, func(exec core.DBExecutor) error {
		pmt.Status = StatusSucceeded
		pmt.UpdatedAt = now
		var err error
		if pmt, err = svc.repo.UpdatePayment(ctx, pmt, exec); err != nil {
			return err
		}

		enr, err := svc.enrollRepo.GetEnrollment(ctx, enrollment.GetFilter{ID: pmt.EnrollmentID}, exec)
		if err != nil {
			return err
		}
		if enr.Status != enrollment.StatusPendingPayment {
			return nil
		}
		enr.Status = enrollment.StatusActive
		enr.EnrolledAt = now
		enr.UpdatedAt = now
		_, err = svc.enrollRepo.UpdateEnrollment(ctx, enr, exec)
		return err
	})
	if err != nil {
		return err
	}

	svc.sendReceiptMail(ctx, pmt)
	return nil
}

func (svc *service) sendReceiptMail(ctx context.Context, pmt Payment) {
	std, err := svc.userSvc.GetByID(ctx, pmt.StudentID)
	if err != nil {
		return
	}
	enr, err := svc.enrollRepo.GetEnrollment(ctx, enrollment.GetFilter{ID: pmt.EnrollmentID})
	if err != nil {
		return
	}
	crs, err := svc.courseSvc.GetByID(ctx, enr.CourseID)
	if err != nil {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: std.Name, Address: std.Email}},
		Subject:      "Your " + svc.conf.AppName + " receipt",
		TemplateName: "payment-receipt",
		TemplateData: struct{ Username, Amount, CourseTitle string }{
			Username:    std.Username,
			Amount:      formatAmount(pmt.AmountCents, pmt.Currency),
			CourseTitle: crs.Title,
		},
	})
}

func formatAmount(cents int, currency string) string {
	return fmt.Sprintf("%.2f %s", float64(cents)/100, strings.ToUpper(currency))
}
