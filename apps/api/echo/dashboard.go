package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core/course"
	"github.com/darasahq/darasa/core/enrollment"
	"github.com/darasahq/darasa/core/payment"
	"github.com/darasahq/darasa/core/review"
	"github.com/darasahq/darasa/core/user"
)

const recentSignupCount = 5

type dashboardApi struct {
	userSvc    user.Service
	courseSvc  course.Service
	enrollSvc  enrollment.Service
	reviewSvc  review.Service
	paymentSvc payment.Service
}

func registerDashboardAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := dashboardApi{
		userSvc:    deps.UserSvc,
		courseSvc:  deps.CourseSvc,
		enrollSvc:  deps.EnrollSvc,
		reviewSvc:  deps.ReviewSvc,
		paymentSvc: deps.PaymentSvc,
	}

	dg := g.Group("/dashboard", jwt)
	dg.GET("/student", api.student, studentMiddleware())
	dg.GET("/tutor", api.tutor, tutorMiddleware())
	dg.GET("/admin", api.admin, adminMiddleware())
}

type (
	StudentDashboard struct {
		Enrollments  []enrollment.Enrollment  `json:"enrollments"`
		Certificates []enrollment.Certificate `json:"certificates"`
		InProgress   int                      `json:"in_progress"`
		Completed    int                      `json:"completed"`
	}

	TutorDashboard struct {
		Courses []course.CourseStats `json:"courses"`
	}

	AdminDashboard struct {
		Users         int         `json:"users"`
		Courses       int         `json:"courses"`
		Enrollments   int         `json:"enrollments"`
		Reviews       int         `json:"reviews"`
		Payments      int         `json:"payments"`
		RevenueCents  int         `json:"revenue_cents"`
		RecentSignups []user.User `json:"recent_signups"`
	}
)

// Handlers

func (api *dashboardApi) student(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	rctx := ctx.Request().Context()

	enrs, err := api.enrollSvc.Query(rctx, &enrollment.QueryFilter{StudentID: claims.Subject}, nil)
	if err != nil {
		return errors.Wrap(err, "querying enrollments")
	}

	dash := StudentDashboard{
		Enrollments:  enrs,
		Certificates: []enrollment.Certificate{},
	}
	if dash.Enrollments == nil {
		dash.Enrollments = []enrollment.Enrollment{}
	}
	for i, enr := range enrs {
		if crs, err := api.courseSvc.GetByID(rctx, enr.CourseID); err == nil {
			crs.Lessons = nil // snippet only
			enrs[i].Course = &crs
		}
		switch enr.Status {
		case enrollment.StatusActive:
			dash.InProgress++
		case enrollment.StatusCompleted:
			dash.Completed++
			if cert, err := api.enrollSvc.Certificate(rctx, enr); err == nil {
				dash.Certificates = append(dash.Certificates, cert)
			}
		}
	}
	return ctx.JSON(http.StatusOK, dash)
}

func (api *dashboardApi) tutor(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	stats, err := api.courseSvc.Stats(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "querying course stats")
	}
	if stats == nil {
		stats = []course.CourseStats{}
	}
	return ctx.JSON(http.StatusOK, TutorDashboard{Courses: stats})
}

func (api *dashboardApi) admin(ctx echo.Context) error {
	rctx := ctx.Request().Context()
	var dash AdminDashboard
	var err error

	if dash.Users, err = api.userSvc.Count(rctx); err != nil {
		return errors.Wrap(err, "counting users")
	}
	if dash.Courses, err = api.courseSvc.Count(rctx); err != nil {
		return errors.Wrap(err, "counting courses")
	}
	if dash.Enrollments, err = api.enrollSvc.Count(rctx); err != nil {
		return errors.Wrap(err, "counting enrollments")
	}
	if dash.Reviews, err = api.reviewSvc.Count(rctx); err != nil {
		return errors.Wrap(err, "counting reviews")
	}
	if dash.Payments, err = api.paymentSvc.Count(rctx); err != nil {
		return errors.Wrap(err, "counting payments")
	}
	if dash.RevenueCents, err = api.paymentSvc.RevenueCents(rctx); err != nil {
		return errors.Wrap(err, "summing revenue")
	}

	// newest first by default ordering
	signups, err := api.userSvc.Query(rctx, nil, nil)
	if err != nil {
		return errors.Wrap(err, "querying recent signups")
	}
	if len(signups) > recentSignupCount {
		signups = signups[:recentSignupCount]
	}
	if signups == nil {
		signups = []user.User{}
	}
	dash.RecentSignups = signups

	return ctx.JSON(http.StatusOK, dash)
}
