package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/supplyhub/marketplace/internal/domain/order"
)

const orderColumns = `id, buyer_id, supplier_id, items, total_cents, currency,
	status, status_history, payment_status, payment_intent_ref, paid_at,
	notes, expected_delivery, created_at, updated_at`

const (
	createOrderSQL = `INSERT INTO orders
		(id, buyer_id, supplier_id, items, total_cents, currency, status,
		 status_history, payment_status, notes, expected_delivery, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderByIntentSQL = `SELECT ` + orderColumns + ` FROM orders WHERE payment_intent_ref = $1`

	listByBuyerSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE buyer_id = $1 ORDER BY created_at DESC`

	listBySupplierSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE supplier_id = $1 ORDER BY created_at DESC`

	// The status CAS: the write only applies while the row still holds the
	// status the service read, and (for confirmed/shipped) while it is paid.
	transitionSQL = `UPDATE orders
		SET status = $2,
		    status_history = status_history || $3::jsonb,
		    updated_at = now()
		WHERE id = $1 AND status = $4
		  AND ($5::bool = FALSE OR payment_status = 'paid')
		RETURNING ` + orderColumns

	attachIntentSQL = `UPDATE orders
		SET payment_intent_ref = $2,
		    payment_status = CASE
		        WHEN payment_status IN ('paid', 'refunded') THEN payment_status
		        ELSE 'requires_action'
		    END,
		    updated_at = now()
		WHERE id = $1`

	markPaidSQL = `UPDATE orders
		SET payment_status = 'paid', paid_at = $2, updated_at = now()
		WHERE id = $1 AND payment_status NOT IN ('paid', 'refunded')`

	markFailedSQL = `UPDATE orders
		SET payment_status = 'failed', updated_at = now()
		WHERE id = $1 AND payment_status NOT IN ('paid', 'refunded')`

	countByStatusSQL = `SELECT status, COUNT(*) FROM orders GROUP BY status`
)

var _ order.Store = (*OrderStore)(nil)

// OrderStore implements order.Store backed by PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore returns an OrderStore that uses the given pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Create persists a new order. Items and status history are serialized to
// JSONB columns.
func (s *OrderStore) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}
	historyJSON, err := json.Marshal(o.StatusHistory)
	if err != nil {
		return fmt.Errorf("marshaling status history: %w", err)
	}

	_, err = s.pool.Exec(ctx, createOrderSQL,
		o.ID, o.BuyerID, o.SupplierID, itemsJSON, o.TotalCents, o.Currency,
		o.Status, historyJSON, o.PaymentStatus, o.Notes, o.ExpectedDeliveryDate,
		o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// Get returns a single order by id, or order.ErrNotFound.
func (s *OrderStore) Get(ctx context.Context, id string) (*order.Order, error) {
	return s.queryOne(ctx, getOrderSQL, id)
}

// GetByIntentRef returns the order holding the given payment intent
// reference, or order.ErrNotFound.
func (s *OrderStore) GetByIntentRef(ctx context.Context, ref string) (*order.Order, error) {
	return s.queryOne(ctx, getOrderByIntentSQL, ref)
}

// ListByBuyer returns the buyer's orders, newest first.
func (s *OrderStore) ListByBuyer(ctx context.Context, buyerID string) ([]order.Order, error) {
	rows, err := s.pool.Query(ctx, listByBuyerSQL, buyerID)
	if err != nil {
		return nil, fmt.Errorf("listing orders for buyer %q: %w", buyerID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// ListBySupplier returns the supplier's orders, newest first.
func (s *OrderStore) ListBySupplier(ctx context.Context, supplierID string) ([]order.Order, error) {
	rows, err := s.pool.Query(ctx, listBySupplierSQL, supplierID)
	if err != nil {
		return nil, fmt.Errorf("listing orders for supplier %q: %w", supplierID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// Transition applies the fulfillment CAS described on order.Store.
func (s *OrderStore) Transition(ctx context.Context, id string, from order.Status, entry order.HistoryEntry, requirePaid bool) (*order.Order, error) {
	entryJSON, err := json.Marshal([]order.HistoryEntry{entry})
	if err != nil {
		return nil, fmt.Errorf("marshaling history entry: %w", err)
	}

	rows, err := s.pool.Query(ctx, transitionSQL, id, entry.Status, entryJSON, from, requirePaid)
	if err != nil {
		return nil, fmt.Errorf("transitioning order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrStaleOrder
		}
		return nil, fmt.Errorf("transitioning order %q: %w", id, err)
	}
	return &o, nil
}

// AttachIntent stores the intent ref and raises payment status to
// requires_action unless the order is already paid or refunded.
func (s *OrderStore) AttachIntent(ctx context.Context, id, intentRef string) error {
	tag, err := s.pool.Exec(ctx, attachIntentSQL, id, intentRef)
	if err != nil {
		return fmt.Errorf("attaching intent to order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// MarkPaid performs the idempotent paid transition. paid_at is written only by
// the first successful application.
func (s *OrderStore) MarkPaid(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, markPaidSQL, id, at)
	if err != nil {
		return false, fmt.Errorf("marking order %q paid: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkFailed records a failed payment unless the order is already paid or
// refunded.
func (s *OrderStore) MarkFailed(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, markFailedSQL, id)
	if err != nil {
		return false, fmt.Errorf("marking order %q failed: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// CountByStatus returns order counts grouped by fulfillment status.
func (s *OrderStore) CountByStatus(ctx context.Context) (map[order.Status]int64, error) {
	rows, err := s.pool.Query(ctx, countByStatusSQL)
	if err != nil {
		return nil, fmt.Errorf("counting orders: %w", err)
	}
	defer rows.Close()

	counts := make(map[order.Status]int64)
	for rows.Next() {
		var (
			st string
			n  int64
		)
		if err := rows.Scan(&st, &n); err != nil {
			return nil, fmt.Errorf("scanning order counts: %w", err)
		}
		counts[order.Status(st)] = n
	}
	return counts, rows.Err()
}

func (s *OrderStore) queryOne(ctx context.Context, sql string, arg any) (*order.Order, error) {
	rows, err := s.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("getting order: %w", err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order: %w", err)
	}
	return &o, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o           order.Order
		itemsJSON   []byte
		historyJSON []byte
		intentRef   *string
		paidAt      *time.Time
		expected    *time.Time
	)
	err := row.Scan(
		&o.ID, &o.BuyerID, &o.SupplierID, &itemsJSON, &o.TotalCents, &o.Currency,
		&o.Status, &historyJSON, &o.PaymentStatus, &intentRef, &paidAt,
		&o.Notes, &expected, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return order.Order{}, err
	}

	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return order.Order{}, fmt.Errorf("unmarshaling order items: %w", err)
	}
	if err := json.Unmarshal(historyJSON, &o.StatusHistory); err != nil {
		return order.Order{}, fmt.Errorf("unmarshaling status history: %w", err)
	}
	if intentRef != nil {
		o.PaymentIntentRef = *intentRef
	}
	o.PaidAt = paidAt
	o.ExpectedDeliveryDate = expected
	return o, nil
}
