package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Status is the supplier-facing fulfillment lifecycle of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusShipped   Status = "shipped"
	StatusCancelled Status = "cancelled"
)

// PaymentStatus is the buyer-facing funds-capture lifecycle, driven by the
// payment coordinator and the webhook reconciler.
type PaymentStatus string

const (
	PaymentUnpaid         PaymentStatus = "unpaid"
	PaymentRequiresAction PaymentStatus = "requires_action"
	PaymentPaid           PaymentStatus = "paid"
	PaymentFailed         PaymentStatus = "failed"
	PaymentRefunded       PaymentStatus = "refunded"
)

// transitions is the explicit fulfillment state machine. Shipped and cancelled
// are terminal; there is deliberately no way back out of either.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusShipped, StatusCancelled},
	StatusShipped:   {},
	StatusCancelled: {},
}

// ValidStatus reports whether s is a known fulfillment status.
func ValidStatus(s Status) bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to Status) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// RequiresPayment reports whether entering s requires the order to be paid.
// Fulfillment may never outrun payment.
func RequiresPayment(s Status) bool {
	return s == StatusConfirmed || s == StatusShipped
}

// Sentinel errors for the order lifecycle.
var (
	ErrNotFound          = errors.New("order not found")
	ErrForbidden         = errors.New("forbidden")
	ErrNotPaid           = errors.New("order must be paid before fulfillment")
	ErrInvalidTransition = errors.New("status transition not allowed")
	ErrInvalidQuantity   = errors.New("quantity must be at least 1")
	ErrInvalidStatus     = errors.New("unknown order status")
)

// Item is a line-item snapshot taken from the catalog at order-creation time.
// Later catalog changes never alter it.
type Item struct {
	ProductID      string `json:"productId"`
	Title          string `json:"title"`
	UnitPriceCents int64  `json:"unitPriceCents"`
	Quantity       int    `json:"quantity"`
}

// HistoryEntry records one fulfillment transition. The history is append-only,
// oldest first, starting with the pending entry written at creation.
type HistoryEntry struct {
	Status Status    `json:"status"`
	At     time.Time `json:"at"`
	Note   string    `json:"note,omitempty"`
}

// Order is the durable record of a single-supplier purchase.
type Order struct {
	ID         string
	BuyerID    string
	SupplierID string
	Items      []Item
	TotalCents int64
	Currency   string

	Status        Status
	StatusHistory []HistoryEntry

	PaymentStatus    PaymentStatus
	PaymentIntentRef string
	PaidAt           *time.Time

	Notes                string
	ExpectedDeliveryDate *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanView reports whether the given user may read this order.
func (o *Order) CanView(userID string, admin bool) bool {
	return admin || o.BuyerID == userID || o.SupplierID == userID
}

// Store is the persistence port for orders. Implementations must make the
// conditional updates (Transition, AttachIntent, MarkPaid, MarkFailed) atomic
// check-and-set operations so concurrent writers cannot lose updates.
type Store interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	GetByIntentRef(ctx context.Context, ref string) (*Order, error)
	ListByBuyer(ctx context.Context, buyerID string) ([]Order, error)
	ListBySupplier(ctx context.Context, supplierID string) ([]Order, error)

	// Transition moves the order from the expected current status to entry.Status
	// and appends entry to the history. When requirePaid is set the update only
	// applies while payment_status is paid. It returns ErrStaleOrder when the
	// row no longer matches the expected state.
	Transition(ctx context.Context, id string, from Status, entry HistoryEntry, requirePaid bool) (*Order, error)

	// AttachIntent stores the provider intent reference and raises the payment
	// status to requires_action unless the order is already paid.
	AttachIntent(ctx context.Context, id, intentRef string) error

	// MarkPaid sets payment_status=paid and paid_at=at, only when the order is
	// not yet paid or refunded. It reports whether a transition happened;
	// re-applying is a no-op and never moves paid_at.
	MarkPaid(ctx context.Context, id string, at time.Time) (bool, error)

	// MarkFailed sets payment_status=failed unless the order is already paid or
	// refunded. A failed event must never downgrade a paid order.
	MarkFailed(ctx context.Context, id string) (bool, error)

	CountByStatus(ctx context.Context) (map[Status]int64, error)
}

// ErrStaleOrder is returned by Store.Transition when the order changed between
// the service's read and the conditional write.
var ErrStaleOrder = errors.New("order changed concurrently")
