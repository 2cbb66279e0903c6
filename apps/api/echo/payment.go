package echoapi

import (
	"io/ioutil"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core/payment"
)

type paymentApi struct {
	svc payment.Service
}

func registerPaymentAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := paymentApi{svc: deps.PaymentSvc}

	pg := g.Group("/payments")

	// gateway webhook; authenticated by its signature, not a JWT
	pg.POST("/stripe-webhook", api.webhook)

	ag := pg.Group("", jwt)
	ag.GET("", api.query)
	ag.GET("/:id", api.retrieve)
}

// Handlers

func (api *paymentApi) webhook(ctx echo.Context) error {
	payload, err := ioutil.ReadAll(ctx.Request().Body)
	if err != nil {
		return errors.Wrap(err, "reading webhook payload")
	}

	signature := ctx.Request().Header.Get("Stripe-Signature")
	if err := api.svc.HandleWebhook(ctx.Request().Context(), payload, signature); err != nil {
		if errors.Cause(err) == payment.ErrNotFound {
			// unknown intent; acknowledge so the gateway stops retrying
			return ctx.NoContent(http.StatusOK)
		}
		return echo.NewHTTPError(http.StatusBadRequest, "invalid webhook")
	}
	return ctx.NoContent(http.StatusOK)
}

func (api *paymentApi) query(ctx echo.Context) error {
	filter := new(payment.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []payment.Payment{})
	}
	filter.Clean()

	// non-admins only see their own payments
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if !claims.IsAdmin {
		filter.StudentID = claims.Subject
	}

	ordering := new(Ordering)
	ordering.Bind(ctx)

	payments, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying payments")
	}
	if payments == nil {
		payments = []payment.Payment{}
	}
	return ctx.JSON(http.StatusOK, payments)
}

func (api *paymentApi) retrieve(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	pmt, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == payment.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding payment by ID")
	}
	if !(claims.IsAdmin || pmt.StudentID == claims.Subject) {
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, pmt)
}
