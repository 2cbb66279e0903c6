package paymentsvc

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
	"github.com/stripe/stripe-go/v72/webhook"

	"github.com/darasahq/darasa/core"
)

type stripeGateway struct {
	api           *client.API
	webhookSecret string
}

var _ core.PaymentGateway = (*stripeGateway)(nil)

func NewStripeGateway(conf *core.Config) *stripeGateway {
	api := &client.API{}
	api.Init(conf.Stripe.SecretKey, nil)
	return &stripeGateway{
		api:           api,
		webhookSecret: conf.Stripe.WebhookSecret,
	}
}

func (gw stripeGateway) CreateIntent(ctx context.Context, amountCents int64, currency, reference string) (core.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Params:   stripe.Params{Context: ctx},
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(currency),
	}
	params.AddMetadata("enrollment_id", reference)

	pi, err := gw.api.PaymentIntents.New(params)
	if err != nil {
		return core.PaymentIntent{}, errors.Wrap(err, "creating stripe intent")
	}
	return core.PaymentIntent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (gw stripeGateway) VerifyWebhook(payload []byte, signature string) (core.PaymentEvent, error) {
	evt, err := webhook.ConstructEvent(payload, signature, gw.webhookSecret)
	if err != nil {
		return core.PaymentEvent{}, errors.Wrap(err, "constructing stripe event")
	}

	var evtType string
	switch evt.Type {
	case "payment_intent.succeeded":
		evtType = core.PaymentEventSucceeded
	case "payment_intent.payment_failed":
		evtType = core.PaymentEventFailed
	default:
		return core.PaymentEvent{Type: core.PaymentEventIgnored}, nil
	}

	var pi stripe.PaymentIntent
	if err = json.Unmarshal(evt.Data.Raw, &pi); err != nil {
		return core.PaymentEvent{}, errors.Wrap(err, "parsing stripe event data")
	}
	return core.PaymentEvent{Type: evtType, IntentID: pi.ID}, nil
}
