// Package payment contains the payment-intent coordinator and the webhook
// reconciler. The external card-payment provider is a constructor-injected
// port; nothing in this package knows it is Stripe.
package payment

import (
	"context"

	"github.com/go-faster/errors"
)

// IntentStatus is the provider-side lifecycle of a payment intent. Only the
// values the coordinator branches on are named; anything else passes through
// as an opaque string.
type IntentStatus string

const (
	IntentSucceeded IntentStatus = "succeeded"
	IntentCanceled  IntentStatus = "canceled"
)

// Intent is the provider's view of a payment attempt for a fixed amount.
type Intent struct {
	ID           string
	ClientSecret string
	Status       IntentStatus
}

// Usable reports whether the intent can still be handed to a client for
// confirmation: it must carry a secret and must not be canceled.
func (i *Intent) Usable() bool {
	return i != nil && i.ClientSecret != "" && i.Status != IntentCanceled
}

// Metadata is attached to every created intent. It is the fallback
// correlation key the reconciler uses when an event's intent id matches no
// local order.
type Metadata struct {
	OrderID    string
	BuyerID    string
	SupplierID string
}

// Provider is the port to the external payment service.
type Provider interface {
	// CreateIntent registers a new intent for amountCents in the given
	// ISO 4217 currency. amountCents is always read from the persisted order,
	// never from a caller.
	CreateIntent(ctx context.Context, amountCents int64, currency string, meta Metadata) (*Intent, error)

	// RetrieveIntent fetches the current provider-side state of an intent.
	RetrieveIntent(ctx context.Context, id string) (*Intent, error)
}

// EventKind classifies asynchronous provider events. Kinds this service does
// not act on are acknowledged and ignored.
type EventKind string

const (
	EventPaymentSucceeded EventKind = "payment_succeeded"
	EventPaymentFailed    EventKind = "payment_failed"
	EventIgnored          EventKind = "ignored"
)

// Event is a verified provider webhook event.
type Event struct {
	Kind     EventKind
	IntentID string
	Meta     Metadata
}

// EventVerifier checks a webhook delivery's signature against the raw body
// and parses it into an Event.
type EventVerifier interface {
	VerifyEvent(payload []byte, signatureHeader string) (*Event, error)
}

// Sentinel errors for the payment path.
var (
	// ErrBadSignature means webhook signature verification failed; the caller
	// responds non-2xx so the provider redelivers.
	ErrBadSignature = errors.New("webhook signature verification failed")

	// ErrProvider wraps provider call failures. Surfaced to buyers without
	// provider internals; the order's payment fields stay untouched.
	ErrProvider = errors.New("payment provider error")

	// ErrAlreadyPaid rejects intent creation for a paid order.
	ErrAlreadyPaid = errors.New("order already paid")

	// ErrForbidden covers role and ownership violations on the payment surface.
	ErrForbidden = errors.New("forbidden")
)
