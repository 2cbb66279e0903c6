package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/course"
	"github.com/darasahq/darasa/core/enrollment"
	"github.com/darasahq/darasa/core/payment"
	"github.com/darasahq/darasa/core/user"
)

var errEnrNotFoundInCtx = errors.New("enrollment object not found in echo.Context")

type enrollmentApi struct {
	svc        enrollment.Service
	paymentSvc payment.Service
	userSvc    user.Service
	validate   *validator.Validate
}

func registerEnrollmentAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := enrollmentApi{
		svc:        deps.EnrollSvc,
		paymentSvc: deps.PaymentSvc,
		userSvc:    deps.UserSvc,
		validate:   deps.Validate,
	}

	// public certificate verification
	g.GET("/certificates/verify", api.verifyCertificate)

	eg := g.Group("/enrollments", jwt)
	eg.POST("", api.create, studentMiddleware())
	eg.GET("", api.query)

	// detail endpoints
	dg := eg.Group("/:id", enrollmentObjectMiddleware(api.svc))
	dg.GET("", api.retrieve)
	dg.DELETE("", api.cancel)
	dg.POST("/lessons/:lessonID/complete", api.completeLesson)
	dg.GET("/progress", api.progress)
	dg.GET("/certificate", api.certificate)
}

// EnrollmentResponse is the enroll response; Payment is set for paid courses and
// carries the gateway client secret for frontend confirmation.
type EnrollmentResponse struct {
	enrollment.Enrollment
	Payment *payment.Payment `json:"payment,omitempty"`
}

// Handlers

func (api *enrollmentApi) create(ctx echo.Context) error {
	var data enrollment.NewEnrollment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEnrollment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	std, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	enr, crs, err := api.svc.Enroll(ctx.Request().Context(), std, data.CourseID)
	if err != nil {
		if errors.Cause(err) == course.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "enrolling")
	}

	resp := EnrollmentResponse{Enrollment: enr}
	if enr.Status == enrollment.StatusPendingPayment {
		pmt, err := api.paymentSvc.StartCheckout(ctx.Request().Context(), std, enr, crs)
		if err != nil {
			return errors.Wrap(err, "starting checkout")
		}
		resp.Payment = &pmt
	}
	return ctx.JSON(http.StatusCreated, resp)
}

func (api *enrollmentApi) query(ctx echo.Context) error {
	filter := new(enrollment.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []enrollment.Enrollment{})
	}
	filter.Clean()

	// non-admins only see their own enrollments
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if !claims.IsAdmin {
		filter.StudentID = claims.Subject
	}

	ordering := new(Ordering)
	ordering.Bind(ctx)

	enrs, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying enrollments")
	}
	if enrs == nil {
		enrs = []enrollment.Enrollment{}
	}
	return ctx.JSON(http.StatusOK, enrs)
}

func (api *enrollmentApi) retrieve(ctx echo.Context) error {
	enr, ok := ctx.Get("object").(enrollment.Enrollment)
	if !ok {
		return errors.Wrap(errEnrNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, enr)
}

func (api *enrollmentApi) cancel(ctx echo.Context) error {
	enr, ok := ctx.Get("object").(enrollment.Enrollment)
	if !ok {
		return errors.Wrap(errEnrNotFoundInCtx, "retrieving object from context")
	}

	enr, err := api.svc.Cancel(ctx.Request().Context(), enr)
	if err != nil {
		return errors.Wrap(err, "cancelling enrollment")
	}
	return ctx.JSON(http.StatusOK, enr)
}

func (api *enrollmentApi) completeLesson(ctx echo.Context) error {
	enr, ok := ctx.Get("object").(enrollment.Enrollment)
	if !ok {
		return errors.Wrap(errEnrNotFoundInCtx, "retrieving object from context")
	}

	// only the enrolled student makes progress
	std, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if enr.StudentID != std.ID {
		return errHttpForbidden
	}

	enr, err = api.svc.CompleteLesson(ctx.Request().Context(), std, enr, ctx.Param("lessonID"))
	if err != nil {
		if errors.Cause(err) == course.ErrLessonNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "completing lesson")
	}
	return ctx.JSON(http.StatusOK, enr)
}

func (api *enrollmentApi) progress(ctx echo.Context) error {
	enr, ok := ctx.Get("object").(enrollment.Enrollment)
	if !ok {
		return errors.Wrap(errEnrNotFoundInCtx, "retrieving object from context")
	}

	progress, err := api.svc.Progress(ctx.Request().Context(), enr)
	if err != nil {
		return errors.Wrap(err, "querying lesson progress")
	}
	if progress == nil {
		progress = []enrollment.LessonProgress{}
	}
	return ctx.JSON(http.StatusOK, progress)
}

func (api *enrollmentApi) certificate(ctx echo.Context) error {
	enr, ok := ctx.Get("object").(enrollment.Enrollment)
	if !ok {
		return errors.Wrap(errEnrNotFoundInCtx, "retrieving object from context")
	}

	cert, err := api.svc.Certificate(ctx.Request().Context(), enr)
	if err != nil {
		if errors.Cause(err) == enrollment.ErrCertificateNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding certificate")
	}
	return ctx.JSON(http.StatusOK, cert)
}

func (api *enrollmentApi) verifyCertificate(ctx echo.Context) error {
	serial := ctx.QueryParam("serial")
	if serial == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "serial", Error: "this field is required"})
	}

	cert, err := api.svc.VerifyCertificate(ctx.Request().Context(), serial)
	if err != nil {
		if errors.Cause(err) == enrollment.ErrCertificateNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "verifying certificate")
	}
	return ctx.JSON(http.StatusOK, cert)
}

func enrollmentObjectMiddleware(svc enrollment.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}

			enr, err := svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				if errors.Cause(err) == enrollment.ErrNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding enrollment by ID")
			}
			if !(claims.IsAdmin || enr.StudentID == claims.Subject) {
				return errHttpNotFound
			}
			ctx.Set("object", enr)
			return next(ctx)
		}
	}
}
