package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core/course"
	"github.com/darasahq/darasa/core/enrollment"
)

var errCrsNotFoundInCtx = errors.New("course object not found in echo.Context")

type courseApi struct {
	svc       course.Service
	enrollSvc enrollment.Service
	validate  *validator.Validate
}

func registerCourseAPI(g *echo.Group, jwt, optJWT echo.MiddlewareFunc, deps ServerDeps) {
	api := courseApi{
		svc:       deps.CourseSvc,
		enrollSvc: deps.EnrollSvc,
		validate:  deps.Validate,
	}

	cg := g.Group("/courses")

	// public catalog; claims are honored when a token is supplied
	cg.GET("", api.query, optJWT)
	cg.GET("/:id", api.retrieve, optJWT)

	cg.POST("", api.create, jwt, tutorMiddleware())

	// lesson content for enrolled students, the owner or admins
	cg.GET("/:id/lessons/:lessonID", api.retrieveLesson, jwt)

	// owner-or-admin management endpoints
	mg := cg.Group("/:id", jwt, tutorMiddleware(), courseObjectMiddleware(api.svc))
	mg.PUT("", api.update)
	mg.DELETE("", api.destroy)
	mg.POST("/publish", api.publish)
	mg.POST("/unpublish", api.unpublish)
	mg.POST("/lessons", api.addLesson)
	mg.POST("/lessons/reorder", api.reorderLessons)
	mg.PUT("/lessons/:lessonID", api.updateLesson)
	mg.DELETE("/lessons/:lessonID", api.removeLesson)
}

// Handlers

func (api *courseApi) create(ctx echo.Context) error {
	var data course.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	crs, err := api.svc.Create(ctx.Request().Context(), claims.Subject, data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, crs)
}

func (api *courseApi) query(ctx echo.Context) error {
	filter := new(course.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []course.Course{})
	}
	filter.Clean()

	// unpublished courses are only listable by admins and their owner
	claims, err := getContextClaims(ctx)
	if err != nil || !(claims.IsAdmin || (filter.OwnerID != "" && filter.OwnerID == claims.Subject)) {
		published := true
		filter.IsPublished = &published
	}

	ordering := new(Ordering)
	ordering.Bind(ctx)

	courses, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	if courses == nil {
		courses = []course.Course{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

// retrieve accepts a course id or slug.
func (api *courseApi) retrieve(ctx echo.Context) error {
	ref := ctx.Param("id")

	var crs course.Course
	var err error
	if _, uErr := uuid.Parse(ref); uErr == nil {
		crs, err = api.svc.GetByID(ctx.Request().Context(), ref)
	} else {
		crs, err = api.svc.GetBySlug(ctx.Request().Context(), ref)
	}
	if err != nil {
		if errors.Cause(err) == course.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding course")
	}

	if !crs.IsPublished && !canManageCourse(ctx, crs) {
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, crs)
}

func (api *courseApi) update(ctx echo.Context) error {
	crs, ok := ctx.Get("object").(course.Course)
	if !ok {
		return errors.Wrap(errCrsNotFoundInCtx, "retrieving object from context")
	}

	var data course.UpdateCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCourse")
	}
	if err := data.Validate(crs, api.validate); err != nil {
		return err
	}

	crs, err := api.svc.Update(ctx.Request().Context(), crs, data)
	if err != nil {
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, crs)
}

func (api *courseApi) publish(ctx echo.Context) error {
	return api.setPublished(ctx, true)
}

func (api *courseApi) unpublish(ctx echo.Context) error {
	return api.setPublished(ctx, false)
}

func (api *courseApi) setPublished(ctx echo.Context, published bool) error {
	crs, ok := ctx.Get("object").(course.Course)
	if !ok {
		return errors.Wrap(errCrsNotFoundInCtx, "retrieving object from context")
	}

	crs, err := api.svc.SetPublished(ctx.Request().Context(), crs, published)
	if err != nil {
		return errors.Wrap(err, "setting course published flag")
	}
	return ctx.JSON(http.StatusOK, crs)
}

func (api *courseApi) destroy(ctx echo.Context) error {
	crs, ok := ctx.Get("object").(course.Course)
	if !ok {
		return errors.Wrap(errCrsNotFoundInCtx, "retrieving object from context")
	}

	if err := api.svc.Delete(ctx.Request().Context(), crs); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) addLesson(ctx echo.Context) error {
	crs, ok := ctx.Get("object").(course.Course)
	if !ok {
		return errors.Wrap(errCrsNotFoundInCtx, "retrieving object from context")
	}

	var data course.NewLesson
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLesson")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	lsn, err := api.svc.AddLesson(ctx.Request().Context(), crs.ID, data)
	if err != nil {
		return errors.Wrap(err, "adding lesson")
	}
	return ctx.JSON(http.StatusCreated, lsn)
}

func (api *courseApi) updateLesson(ctx echo.Context) error {
	crs, ok := ctx.Get("object").(course.Course)
	if !ok {
		return errors.Wrap(errCrsNotFoundInCtx, "retrieving object from context")
	}

	lsn, err := api.courseLesson(ctx, crs)
	if err != nil {
		return err
	}

	var data course.UpdateLesson
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateLesson")
	}
	if err := data.Validate(lsn, api.validate); err != nil {
		return err
	}

	lsn, err = api.svc.UpdateLesson(ctx.Request().Context(), lsn, data)
	if err != nil {
		return errors.Wrap(err, "updating lesson")
	}
	return ctx.JSON(http.StatusOK, lsn)
}

func (api *courseApi) removeLesson(ctx echo.Context) error {
	crs, ok := ctx.Get("object").(course.Course)
	if !ok {
		return errors.Wrap(errCrsNotFoundInCtx, "retrieving object from context")
	}

	lsn, err := api.courseLesson(ctx, crs)
	if err != nil {
		return err
	}

	if err := api.svc.RemoveLesson(ctx.Request().Context(), lsn); err != nil {
		return errors.Wrap(err, "removing lesson")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) reorderLessons(ctx echo.Context) error {
	crs, ok := ctx.Get("object").(course.Course)
	if !ok {
		return errors.Wrap(errCrsNotFoundInCtx, "retrieving object from context")
	}

	var data course.ReorderLessons
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ReorderLessons")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	lessons, err := api.svc.ReorderLessons(ctx.Request().Context(), crs.ID, data.LessonIDs)
	if err != nil {
		return errors.Wrap(err, "reordering lessons")
	}
	return ctx.JSON(http.StatusOK, lessons)
}

// retrieveLesson serves lesson content to enrolled students, the course owner and admins.
func (api *courseApi) retrieveLesson(ctx echo.Context) error {
	crs, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == course.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding course")
	}

	lsn, err := api.courseLesson(ctx, crs)
	if err != nil {
		return err
	}

	if canManageCourse(ctx, crs) {
		return ctx.JSON(http.StatusOK, lsn)
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	enrs, err := api.enrollSvc.Query(ctx.Request().Context(), &enrollment.QueryFilter{StudentID: claims.Subject, CourseID: crs.ID}, nil)
	if err != nil {
		return errors.Wrap(err, "querying enrollments")
	}
	for _, enr := range enrs {
		if enr.Status == enrollment.StatusActive || enr.Status == enrollment.StatusCompleted {
			return ctx.JSON(http.StatusOK, lsn)
		}
	}
	return errHttpForbidden
}

func (api *courseApi) courseLesson(ctx echo.Context, crs course.Course) (course.Lesson, error) {
	lsn, err := api.svc.GetLesson(ctx.Request().Context(), ctx.Param("lessonID"))
	if err != nil {
		if errors.Cause(err) == course.ErrLessonNotFound {
			return course.Lesson{}, errHttpNotFound
		}
		return course.Lesson{}, errors.Wrap(err, "finding lesson")
	}
	if lsn.CourseID != crs.ID {
		return course.Lesson{}, errHttpNotFound
	}
	return lsn, nil
}

func canManageCourse(ctx echo.Context, crs course.Course) bool {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return false
	}
	return claims.IsAdmin || claims.Subject == crs.OwnerID
}

func courseObjectMiddleware(svc course.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			crs, err := svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				if errors.Cause(err) == course.ErrNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding course by ID")
			}
			if !canManageCourse(ctx, crs) {
				return errHttpNotFound
			}
			ctx.Set("object", crs)
			return next(ctx)
		}
	}
}
