package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/course"
	"github.com/darasahq/darasa/core/review"
	"github.com/darasahq/darasa/core/user"
)

var errRevNotFoundInCtx = errors.New("review object not found in echo.Context")

type reviewApi struct {
	svc       review.Service
	courseSvc course.Service
	userSvc   user.Service
	validate  *validator.Validate
}

func registerReviewAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := reviewApi{
		svc:       deps.ReviewSvc,
		courseSvc: deps.CourseSvc,
		userSvc:   deps.UserSvc,
		validate:  deps.Validate,
	}

	// public course reviews
	g.GET("/courses/:id/reviews", api.queryForCourse)

	rg := g.Group("/reviews", jwt)
	rg.GET("", api.query, adminMiddleware())
	rg.POST("", api.create, studentMiddleware())

	// detail endpoints
	dg := rg.Group("/:id", reviewObjectMiddleware(api.svc))
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
}

// CreateReviewRequest reviews the course identified by CourseID.
type CreateReviewRequest struct {
	CourseID string `json:"course_id" validate:"required,uuid4"`
	review.NewReview
}

func (cr *CreateReviewRequest) Validate(validate *validator.Validate) error {
	cr.CourseID = core.CleanString(cr.CourseID, true /* lower */)
	cr.Comment = core.CleanString(cr.Comment)
	return validate.Struct(cr)
}

// Handlers

func (api *reviewApi) create(ctx echo.Context) error {
	var data CreateReviewRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CreateReviewRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	std, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	rev, err := api.svc.Create(ctx.Request().Context(), std, data.CourseID, data.NewReview)
	if err != nil {
		return errors.Wrap(err, "creating review")
	}
	return ctx.JSON(http.StatusCreated, rev)
}

func (api *reviewApi) queryForCourse(ctx echo.Context) error {
	crs, err := api.courseSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == course.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding course")
	}
	if !crs.IsPublished {
		return errHttpNotFound
	}

	ordering := new(Ordering)
	ordering.Bind(ctx)

	reviews, err := api.svc.Query(ctx.Request().Context(), &review.QueryFilter{CourseID: crs.ID}, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying reviews")
	}
	if reviews == nil {
		reviews = []review.Review{}
	}
	return ctx.JSON(http.StatusOK, reviews)
}

func (api *reviewApi) query(ctx echo.Context) error {
	filter := new(review.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []review.Review{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	reviews, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying reviews")
	}
	if reviews == nil {
		reviews = []review.Review{}
	}
	return ctx.JSON(http.StatusOK, reviews)
}

func (api *reviewApi) update(ctx echo.Context) error {
	rev, ok := ctx.Get("object").(review.Review)
	if !ok {
		return errors.Wrap(errRevNotFoundInCtx, "retrieving object from context")
	}

	var data review.UpdateReview
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateReview")
	}
	if err := data.Validate(rev, api.validate); err != nil {
		return err
	}

	rev, err := api.svc.Update(ctx.Request().Context(), rev, data)
	if err != nil {
		return errors.Wrap(err, "updating review")
	}
	return ctx.JSON(http.StatusOK, rev)
}

func (api *reviewApi) destroy(ctx echo.Context) error {
	rev, ok := ctx.Get("object").(review.Review)
	if !ok {
		return errors.Wrap(errRevNotFoundInCtx, "retrieving object from context")
	}

	if err := api.svc.Delete(ctx.Request().Context(), rev.ID); err != nil {
		return errors.Wrap(err, "deleting review")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func reviewObjectMiddleware(svc review.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}

			rev, err := svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				if errors.Cause(err) == review.ErrNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding review by ID")
			}
			if !(claims.IsAdmin || rev.StudentID == claims.Subject) {
				return errHttpNotFound
			}
			ctx.Set("object", rev)
			return next(ctx)
		}
	}
}
