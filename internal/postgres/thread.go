package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/supplyhub/marketplace/internal/domain/thread"
)

const (
	insertThreadSQL = `INSERT INTO threads (id, buyer_id, supplier_id, product_id, order_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (buyer_id, supplier_id, product_id, order_id) DO NOTHING`

	selectThreadSQL = `SELECT id, buyer_id, supplier_id, product_id, order_id, created_at
		FROM threads
		WHERE buyer_id = $1 AND supplier_id = $2 AND product_id = $3 AND order_id = $4`
)

var _ thread.Service = (*ThreadStore)(nil)

// ThreadStore implements thread.Service backed by PostgreSQL. The unique
// constraint on the participant tuple makes GetOrCreate race-free: concurrent
// inserts collapse onto one row and the follow-up select returns the winner.
type ThreadStore struct {
	pool *pgxpool.Pool
}

// NewThreadStore returns a ThreadStore that uses the given pool.
func NewThreadStore(pool *pgxpool.Pool) *ThreadStore {
	return &ThreadStore{pool: pool}
}

// GetOrCreate returns the thread for the tuple, creating it when absent.
func (s *ThreadStore) GetOrCreate(ctx context.Context, buyerID, supplierID string, ref thread.Ref) (*thread.Thread, error) {
	_, err := s.pool.Exec(ctx, insertThreadSQL,
		uuid.New().String(), buyerID, supplierID, ref.ProductID, ref.OrderID,
	)
	if err != nil {
		return nil, fmt.Errorf("creating thread: %w", err)
	}

	var t thread.Thread
	err = s.pool.QueryRow(ctx, selectThreadSQL, buyerID, supplierID, ref.ProductID, ref.OrderID).
		Scan(&t.ID, &t.BuyerID, &t.SupplierID, &t.ProductID, &t.OrderID, &t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("getting thread: %w", err)
	}
	return &t, nil
}
