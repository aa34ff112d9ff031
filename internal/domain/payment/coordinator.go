package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/supplyhub/marketplace/internal/domain/identity"
	"github.com/supplyhub/marketplace/internal/domain/order"
)

// OrderStore is the slice of order persistence the payment path needs.
// Satisfied by the full order store.
type OrderStore interface {
	Get(ctx context.Context, id string) (*order.Order, error)
	GetByIntentRef(ctx context.Context, ref string) (*order.Order, error)
	AttachIntent(ctx context.Context, id, intentRef string) error
	MarkPaid(ctx context.Context, id string, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, id string) (bool, error)
}

// IntentResult is the frontend-safe response for an intent request.
type IntentResult struct {
	OrderID      string
	IntentID     string
	ClientSecret string
}

// StatusResult is the polling read returned while a buyer waits for the
// asynchronous webhook.
type StatusResult struct {
	OrderID       string
	PaymentStatus order.PaymentStatus
	PaidAt        *time.Time
}

// Coordinator creates or reuses provider payment intents for orders,
// guaranteeing at most one active intent per order.
type Coordinator struct {
	orders   OrderStore
	provider Provider
	now      func() time.Time
}

// NewCoordinator creates a Coordinator with an injected provider client.
func NewCoordinator(orders OrderStore, provider Provider) *Coordinator {
	return &Coordinator{
		orders:   orders,
		provider: provider,
		now:      time.Now,
	}
}

// CreateOrReuseIntent returns a client secret the buyer can confirm with.
//
// An existing intent is reused while the provider still reports it usable,
// so page refreshes and client retries never spawn a second intent for the
// same order. Amount and currency always come from the persisted order.
func (c *Coordinator) CreateOrReuseIntent(ctx context.Context, ident identity.Identity, orderID string) (*IntentResult, error) {
	o, err := c.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !ident.Has(identity.RoleBuyer) {
		return nil, errors.Wrap(ErrForbidden, "only buyers can create payment intents")
	}
	if o.BuyerID != ident.UserID {
		return nil, errors.Wrap(ErrForbidden, "not the owner of this order")
	}
	if o.PaymentStatus == order.PaymentPaid {
		return nil, ErrAlreadyPaid
	}

	if o.PaymentIntentRef != "" {
		if res, ok := c.reuseExisting(ctx, o); ok {
			return res, nil
		}
		// Stored ref is dangling, canceled, or secretless: fall through and
		// mint a fresh intent. AttachIntent below replaces the stale ref, so
		// the order still holds at most one active reference.
	}

	intent, err := c.provider.CreateIntent(ctx, o.TotalCents, o.Currency, Metadata{
		OrderID:    o.ID,
		BuyerID:    o.BuyerID,
		SupplierID: o.SupplierID,
	})
	if err != nil {
		zctx.From(ctx).Error("payment intent creation failed",
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
		return nil, errors.Wrap(ErrProvider, "create intent")
	}

	if err := c.orders.AttachIntent(ctx, o.ID, intent.ID); err != nil {
		return nil, errors.Wrapf(err, "attach intent %s to order %s", intent.ID, o.ID)
	}

	return &IntentResult{
		OrderID:      o.ID,
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
	}, nil
}

// reuseExisting checks whether the order's stored intent ref is still usable.
// When the provider reports the intent already succeeded, the local payment
// status is synced first — this covers a missed webhook.
func (c *Coordinator) reuseExisting(ctx context.Context, o *order.Order) (*IntentResult, bool) {
	existing, err := c.provider.RetrieveIntent(ctx, o.PaymentIntentRef)
	if err != nil {
		zctx.From(ctx).Warn("stored payment intent not retrievable, creating a new one",
			zap.String("order_id", o.ID),
			zap.String("intent_ref", o.PaymentIntentRef),
			zap.Error(err),
		)
		return nil, false
	}
	if !existing.Usable() {
		return nil, false
	}

	if existing.Status == IntentSucceeded {
		if _, err := c.orders.MarkPaid(ctx, o.ID, c.now().UTC()); err != nil {
			zctx.From(ctx).Error("payment resync failed",
				zap.String("order_id", o.ID),
				zap.Error(err),
			)
		}
	}

	return &IntentResult{
		OrderID:      o.ID,
		IntentID:     existing.ID,
		ClientSecret: existing.ClientSecret,
	}, true
}

// PaymentStatus is the buyer-only, owner-only polling read. No side effects.
func (c *Coordinator) PaymentStatus(ctx context.Context, ident identity.Identity, orderID string) (*StatusResult, error) {
	o, err := c.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !ident.Has(identity.RoleBuyer) || o.BuyerID != ident.UserID {
		return nil, errors.Wrap(ErrForbidden, "not the owner of this order")
	}
	return &StatusResult{
		OrderID:       o.ID,
		PaymentStatus: o.PaymentStatus,
		PaidAt:        o.PaidAt,
	}, nil
}
