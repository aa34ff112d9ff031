package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/supplyhub/marketplace/internal/domain/order"
)

// Reconciler applies verified provider webhook events to orders. Every
// transition it performs is an idempotent check-and-set in the store, so
// duplicate and out-of-order deliveries converge on the same final state.
type Reconciler struct {
	orders   OrderStore
	verifier EventVerifier
	now      func() time.Time
}

// NewReconciler creates a Reconciler with an injected event verifier.
func NewReconciler(orders OrderStore, verifier EventVerifier) *Reconciler {
	return &Reconciler{
		orders:   orders,
		verifier: verifier,
		now:      time.Now,
	}
}

// HandleEvent verifies and applies a single webhook delivery.
//
// A nil return means the event is acknowledged; the HTTP layer answers
// {received:true} and the provider stops retrying. Unmatched events are
// acknowledged on purpose — failing them would make the provider exhaust its
// retries on something permanently unmatchable. Only signature failures and
// storage errors return non-nil.
func (r *Reconciler) HandleEvent(ctx context.Context, rawBody []byte, signatureHeader string) error {
	ev, err := r.verifier.VerifyEvent(rawBody, signatureHeader)
	if err != nil {
		return errors.Wrap(ErrBadSignature, err.Error())
	}

	lg := zctx.From(ctx).With(
		zap.String("event_kind", string(ev.Kind)),
		zap.String("intent_id", ev.IntentID),
	)

	switch ev.Kind {
	case EventPaymentSucceeded:
		o, err := r.resolveOrder(ctx, ev)
		if err != nil {
			return err
		}
		if o == nil {
			lg.Warn("payment event matched no local order, acknowledging")
			return nil
		}

		changed, err := r.orders.MarkPaid(ctx, o.ID, r.now().UTC())
		if err != nil {
			return errors.Wrapf(err, "mark order %s paid", o.ID)
		}
		if changed {
			lg.Info("order marked paid", zap.String("order_id", o.ID))
		} else {
			// Duplicate delivery; paidAt stays where the first one put it.
			lg.Debug("order already paid, event is a no-op", zap.String("order_id", o.ID))
		}

	case EventPaymentFailed:
		o, err := r.resolveOrder(ctx, ev)
		if err != nil {
			return err
		}
		if o == nil {
			lg.Warn("payment event matched no local order, acknowledging")
			return nil
		}

		changed, err := r.orders.MarkFailed(ctx, o.ID)
		if err != nil {
			return errors.Wrapf(err, "mark order %s failed", o.ID)
		}
		if changed {
			lg.Info("order payment marked failed", zap.String("order_id", o.ID))
		}

	default:
		lg.Debug("ignoring unhandled event kind")
	}

	return nil
}

// resolveOrder tries the correlation strategies in fixed priority order:
// the intent reference first, then the orderId the coordinator embedded in
// provider metadata. It returns (nil, nil) when neither matches.
func (r *Reconciler) resolveOrder(ctx context.Context, ev *Event) (*order.Order, error) {
	if ev.IntentID != "" {
		o, err := r.orders.GetByIntentRef(ctx, ev.IntentID)
		switch {
		case err == nil:
			return o, nil
		case !errors.Is(err, order.ErrNotFound):
			return nil, errors.Wrapf(err, "resolve by intent ref %s", ev.IntentID)
		}
	}

	if ev.Meta.OrderID != "" {
		o, err := r.orders.Get(ctx, ev.Meta.OrderID)
		switch {
		case err == nil:
			return o, nil
		case !errors.Is(err, order.ErrNotFound):
			return nil, errors.Wrapf(err, "resolve by metadata order id %s", ev.Meta.OrderID)
		}
	}

	return nil, nil
}
