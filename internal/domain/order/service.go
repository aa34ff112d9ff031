package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/supplyhub/marketplace/internal/domain/catalog"
	"github.com/supplyhub/marketplace/internal/domain/identity"
)

// ThreadLink is a request to ensure a conversation thread exists for an order.
type ThreadLink struct {
	OrderID    string
	BuyerID    string
	SupplierID string
	ProductID  string
}

// ThreadLinker accepts thread-linkage requests emitted after an order commit.
// Implementations are expected to be durable and retried out of band; a
// failure here never fails order creation.
type ThreadLinker interface {
	EnqueueLink(ctx context.Context, link ThreadLink) error
}

// CreateRequest holds buyer input for placing an order. Amounts are absent on
// purpose: price and currency always come from the catalog snapshot.
type CreateRequest struct {
	ProductID            string
	Quantity             int
	Notes                string
	ExpectedDeliveryDate *time.Time
}

// Service is the order lifecycle manager: creation, ownership-checked reads,
// and fulfillment transitions.
type Service struct {
	store   Store
	catalog catalog.Repository
	linker  ThreadLinker
	now     func() time.Time
	newID   func() string
}

// NewService creates a Service with the required collaborators.
func NewService(store Store, cat catalog.Repository, linker ThreadLinker) *Service {
	return &Service{
		store:   store,
		catalog: cat,
		linker:  linker,
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
	}
}

// Create places an order for a published product on behalf of buyerID.
// Item title and unit price are snapshotted from the catalog; the total is
// computed once here and never recomputed from live catalog data.
func (s *Service) Create(ctx context.Context, buyerID string, req CreateRequest) (*Order, error) {
	if req.Quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	p, err := s.catalog.GetPublic(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, catalog.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %s", req.ProductID)
	}

	now := s.now().UTC()
	o := &Order{
		ID:         s.newID(),
		BuyerID:    buyerID,
		SupplierID: p.SupplierID,
		Items: []Item{{
			ProductID:      p.ID,
			Title:          p.Title,
			UnitPriceCents: p.PriceCents,
			Quantity:       req.Quantity,
		}},
		TotalCents:           p.PriceCents * int64(req.Quantity),
		Currency:             p.Currency,
		Status:               StatusPending,
		StatusHistory:        []HistoryEntry{{Status: StatusPending, At: now, Note: "Order created"}},
		PaymentStatus:        PaymentUnpaid,
		Notes:                req.Notes,
		ExpectedDeliveryDate: req.ExpectedDeliveryDate,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := s.store.Create(ctx, o); err != nil {
		return nil, errors.Wrapf(err, "create order %s", o.ID)
	}

	// Post-commit side effect: make sure a buyer<->supplier thread exists for
	// this order. Best effort; the linkage outbox worker retries failures.
	if err := s.linker.EnqueueLink(ctx, ThreadLink{
		OrderID:    o.ID,
		BuyerID:    o.BuyerID,
		SupplierID: o.SupplierID,
		ProductID:  p.ID,
	}); err != nil {
		zctx.From(ctx).Warn("thread linkage enqueue failed",
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}

	return o, nil
}

// Get returns the order when the requester is its buyer, its supplier, or an
// admin.
func (s *Service) Get(ctx context.Context, ident identity.Identity, orderID string) (*Order, error) {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.CanView(ident.UserID, ident.IsAdmin()) {
		return nil, errors.Wrap(ErrForbidden, "not a participant of this order")
	}
	return o, nil
}

// ListForBuyer returns the buyer's orders, newest first.
func (s *Service) ListForBuyer(ctx context.Context, buyerID string) ([]Order, error) {
	return s.store.ListByBuyer(ctx, buyerID)
}

// ListForSupplier returns the supplier's orders, newest first.
func (s *Service) ListForSupplier(ctx context.Context, supplierID string) ([]Order, error) {
	return s.store.ListBySupplier(ctx, supplierID)
}

// UpdateStatus applies a fulfillment transition. Only the order's supplier or
// an admin may call it; buyers never self-transition. The target must be in
// the transition table for the current status, and confirmed/shipped require
// the order to be paid first.
func (s *Service) UpdateStatus(ctx context.Context, ident identity.Identity, orderID string, newStatus Status) (*Order, error) {
	if !ValidStatus(newStatus) || newStatus == StatusPending {
		return nil, errors.Wrapf(ErrInvalidStatus, "%q", newStatus)
	}

	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !ident.IsAdmin() && o.SupplierID != ident.UserID {
		return nil, errors.Wrap(ErrForbidden, "only the supplier or an admin can update status")
	}

	if !CanTransition(o.Status, newStatus) {
		return nil, errors.Wrapf(ErrInvalidTransition, "%s -> %s", o.Status, newStatus)
	}

	requirePaid := RequiresPayment(newStatus)
	if requirePaid && o.PaymentStatus != PaymentPaid {
		return nil, ErrNotPaid
	}

	entry := HistoryEntry{Status: newStatus, At: s.now().UTC()}
	updated, err := s.store.Transition(ctx, orderID, o.Status, entry, requirePaid)
	if err != nil {
		if errors.Is(err, ErrStaleOrder) {
			// Someone else moved the order between our read and write. Re-check
			// once so the caller gets a precise error instead of a retry hint.
			cur, getErr := s.store.Get(ctx, orderID)
			if getErr != nil {
				return nil, getErr
			}
			if requirePaid && cur.PaymentStatus != PaymentPaid {
				return nil, ErrNotPaid
			}
			return nil, errors.Wrapf(ErrInvalidTransition, "%s -> %s", cur.Status, newStatus)
		}
		return nil, errors.Wrapf(err, "transition order %s", orderID)
	}
	return updated, nil
}

// Stats returns order counts grouped by fulfillment status. Admin only.
func (s *Service) Stats(ctx context.Context, ident identity.Identity) (map[Status]int64, error) {
	if !ident.IsAdmin() {
		return nil, errors.Wrap(ErrForbidden, "admin only")
	}
	return s.store.CountByStatus(ctx)
}
