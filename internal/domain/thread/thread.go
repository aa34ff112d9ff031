// Package thread is the port to the conversation service. The order core only
// needs get-or-create semantics: one thread per (buyer, supplier, product,
// order) tuple, created lazily and never duplicated.
package thread

import (
	"context"
	"time"
)

// Ref scopes a thread to an optional product and order.
type Ref struct {
	ProductID string
	OrderID   string
}

// Thread is a messaging thread between a buyer and a supplier.
type Thread struct {
	ID         string
	BuyerID    string
	SupplierID string
	ProductID  string
	OrderID    string
	CreatedAt  time.Time
}

// Service creates or returns the thread for a participant tuple. GetOrCreate
// must be idempotent: concurrent calls with the same tuple yield one thread.
type Service interface {
	GetOrCreate(ctx context.Context, buyerID, supplierID string, ref Ref) (*Thread, error)
}
