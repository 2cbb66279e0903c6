package core

import "context"

// Gateway event types every provider is mapped onto.
const (
	PaymentEventSucceeded = "payment.succeeded"
	PaymentEventFailed    = "payment.failed"
	PaymentEventIgnored   = "payment.ignored"
)

type (
	// PaymentIntent is a provider-side payment in progress.
	PaymentIntent struct {
		ID           string
		ClientSecret string
	}

	// PaymentEvent is a webhook notification normalized across providers.
	PaymentEvent struct {
		Type     string // one of the PaymentEvent* constants
		IntentID string
	}

	// PaymentGateway is any service that can collect card payments.
	// The provider (Stripe) is invoked as a black box behind this seam.
	PaymentGateway interface {
		// CreateIntent registers a payment of amountCents with the provider and
		// returns the intent along with the client secret the SPA needs to
		// confirm the payment.
		CreateIntent(ctx context.Context, amountCents int64, currency, reference string) (PaymentIntent, error)
		// VerifyWebhook authenticates a webhook delivery and maps it to a PaymentEvent.
		VerifyWebhook(payload []byte, signature string) (PaymentEvent, error)
	}
)
