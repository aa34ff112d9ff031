// Package stripe adapts the Stripe SDK to the payment provider port. The
// client is injected at construction; nothing here touches the SDK's global
// key.
package stripe

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/go-faster/errors"
	stripesdk "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/supplyhub/marketplace/internal/domain/payment"
)

// Metadata keys attached to every intent. The reconciler relies on orderId as
// the fallback correlation key, so these names are part of the wire contract.
const (
	metaOrderID    = "orderId"
	metaBuyerID    = "buyerId"
	metaSupplierID = "supplierId"
)

var _ payment.Provider = (*Provider)(nil)

// Provider implements payment.Provider on the Stripe PaymentIntents API.
type Provider struct {
	sc *client.API
}

// NewProvider creates a Provider with its own Stripe client for the given
// secret key.
func NewProvider(secretKey string) *Provider {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &Provider{sc: sc}
}

// CreateIntent registers a new PaymentIntent for the exact amount and
// currency passed in, with the correlation metadata the reconciler needs.
func (p *Provider) CreateIntent(ctx context.Context, amountCents int64, currency string, meta payment.Metadata) (*payment.Intent, error) {
	params := &stripesdk.PaymentIntentParams{
		Params:   stripesdk.Params{Context: ctx},
		Amount:   stripesdk.Int64(amountCents),
		Currency: stripesdk.String(strings.ToLower(currency)),
		AutomaticPaymentMethods: &stripesdk.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripesdk.Bool(true),
		},
	}
	params.AddMetadata(metaOrderID, meta.OrderID)
	params.AddMetadata(metaBuyerID, meta.BuyerID)
	params.AddMetadata(metaSupplierID, meta.SupplierID)

	pi, err := p.sc.PaymentIntents.New(params)
	if err != nil {
		return nil, errors.Wrap(err, "create payment intent")
	}
	return mapIntent(pi), nil
}

// RetrieveIntent fetches the current state of an intent by id.
func (p *Provider) RetrieveIntent(ctx context.Context, id string) (*payment.Intent, error) {
	pi, err := p.sc.PaymentIntents.Get(id, &stripesdk.PaymentIntentParams{
		Params: stripesdk.Params{Context: ctx},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "retrieve payment intent %s", id)
	}
	return mapIntent(pi), nil
}

func mapIntent(pi *stripesdk.PaymentIntent) *payment.Intent {
	return &payment.Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       payment.IntentStatus(pi.Status),
	}
}

var _ payment.EventVerifier = (*EventVerifier)(nil)

// EventVerifier checks Stripe webhook signatures and translates events into
// the provider-neutral event model.
type EventVerifier struct {
	secret string
}

// NewEventVerifier creates a verifier for the given webhook signing secret.
func NewEventVerifier(secret string) *EventVerifier {
	return &EventVerifier{secret: secret}
}

// VerifyEvent validates the Stripe-Signature header against the raw payload
// and parses the event. Event types this service does not act on come back as
// payment.EventIgnored.
func (v *EventVerifier) VerifyEvent(payload []byte, signatureHeader string) (*payment.Event, error) {
	event, err := webhook.ConstructEvent(payload, signatureHeader, v.secret)
	if err != nil {
		return nil, errors.Wrap(err, "construct event")
	}

	var kind payment.EventKind
	switch event.Type {
	case "payment_intent.succeeded":
		kind = payment.EventPaymentSucceeded
	case "payment_intent.payment_failed":
		kind = payment.EventPaymentFailed
	default:
		return &payment.Event{Kind: payment.EventIgnored}, nil
	}

	var pi stripesdk.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, errors.Wrap(err, "parse payment intent payload")
	}

	return &payment.Event{
		Kind:     kind,
		IntentID: pi.ID,
		Meta: payment.Metadata{
			OrderID:    pi.Metadata[metaOrderID],
			BuyerID:    pi.Metadata[metaBuyerID],
			SupplierID: pi.Metadata[metaSupplierID],
		},
	}, nil
}
