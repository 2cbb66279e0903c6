package paymentsvc

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core"
)

// dummyGateway stands in for Stripe in debug mode and in tests. Webhook payloads
// are plain JSON of the form {"type": "...", "intent_id": "..."} and the
// signature must match DummySignature.
type dummyGateway struct {
	mu      sync.Mutex
	intents []core.PaymentIntent
}

const DummySignature = "dummy-signature"

var _ core.PaymentGateway = (*dummyGateway)(nil)

func NewDummyGateway() *dummyGateway {
	return &dummyGateway{}
}

func (gw *dummyGateway) CreateIntent(ctx context.Context, amountCents int64, currency, reference string) (core.PaymentIntent, error) {
	intent := core.PaymentIntent{ID: "pi_" + uuid.New().String()[:18]}
	intent.ClientSecret = intent.ID + "_secret_test"

	gw.mu.Lock()
	gw.intents = append(gw.intents, intent)
	gw.mu.Unlock()
	return intent, nil
}

func (gw *dummyGateway) VerifyWebhook(payload []byte, signature string) (core.PaymentEvent, error) {
	if signature != DummySignature {
		return core.PaymentEvent{}, errors.New("invalid webhook signature")
	}

	var evt struct {
		Type     string `json:"type"`
		IntentID string `json:"intent_id"`
	}
	if err := json.Unmarshal(payload, &evt); err != nil {
		return core.PaymentEvent{}, errors.Wrap(err, "parsing webhook payload")
	}

	switch evt.Type {
	case core.PaymentEventSucceeded, core.PaymentEventFailed:
		return core.PaymentEvent{Type: evt.Type, IntentID: evt.IntentID}, nil
	}
	return core.PaymentEvent{Type: core.PaymentEventIgnored}, nil
}

// Intents returns the intents created so far.
func (gw *dummyGateway) Intents() []core.PaymentIntent {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	out := make([]core.PaymentIntent, len(gw.intents))
	copy(out, gw.intents)
	return out
}
