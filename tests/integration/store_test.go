//go:build integration

package integration

import (
	"context"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/supplyhub/marketplace/internal/domain/order"
	"github.com/supplyhub/marketplace/internal/domain/thread"
	"github.com/supplyhub/marketplace/internal/postgres"
)

var pool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("marketplace"),
		tcpostgres.WithUsername("marketplace"),
		tcpostgres.WithPassword("marketplace"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := container.Terminate(context.Background()); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Fatalf("connection string: %v", err)
	}

	pool, err = postgres.NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("create pool: %v", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	return m.Run()
}

func newOrder() *order.Order {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &order.Order{
		ID:         uuid.New().String(),
		BuyerID:    "buyer-1",
		SupplierID: "supplier-1",
		Items: []order.Item{{
			ProductID:      "p1",
			Title:          "Widget",
			UnitPriceCents: 1250,
			Quantity:       2,
		}},
		TotalCents:    2500,
		Currency:      "USD",
		Status:        order.StatusPending,
		StatusHistory: []order.HistoryEntry{{Status: order.StatusPending, At: now, Note: "Order created"}},
		PaymentStatus: order.PaymentUnpaid,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestOrderStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := postgres.NewOrderStore(pool)

	o := newOrder()
	require.NoError(t, store.Create(ctx, o))

	got, err := store.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)
	assert.Equal(t, o.Items, got.Items)
	assert.Equal(t, int64(2500), got.TotalCents)
	assert.Equal(t, order.StatusPending, got.Status)
	assert.Equal(t, order.PaymentUnpaid, got.PaymentStatus)
	require.Len(t, got.StatusHistory, 1)

	_, err = store.Get(ctx, uuid.New().String())
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestOrderStore_MarkPaidIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := postgres.NewOrderStore(pool)

	o := newOrder()
	require.NoError(t, store.Create(ctx, o))

	first := time.Now().UTC().Truncate(time.Microsecond)
	changed, err := store.MarkPaid(ctx, o.ID, first)
	require.NoError(t, err)
	assert.True(t, changed)

	// A later duplicate must not move paid_at.
	changed, err = store.MarkPaid(ctx, o.ID, first.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := store.Get(ctx, o.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PaidAt)
	assert.True(t, first.Equal(*got.PaidAt))
}

func TestOrderStore_ConcurrentMarkPaid(t *testing.T) {
	ctx := context.Background()
	store := postgres.NewOrderStore(pool)

	o := newOrder()
	require.NoError(t, store.Create(ctx, o))

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			changed, err := store.MarkPaid(ctx, o.ID, time.Now().UTC())
			if assert.NoError(t, err) && changed {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, applied, "exactly one delivery may win")
}

func TestOrderStore_MarkFailedNeverDowngradesPaid(t *testing.T) {
	ctx := context.Background()
	store := postgres.NewOrderStore(pool)

	o := newOrder()
	require.NoError(t, store.Create(ctx, o))

	_, err := store.MarkPaid(ctx, o.ID, time.Now().UTC())
	require.NoError(t, err)

	changed, err := store.MarkFailed(ctx, o.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := store.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentPaid, got.PaymentStatus)
}

func TestOrderStore_TransitionCAS(t *testing.T) {
	ctx := context.Background()
	store := postgres.NewOrderStore(pool)

	o := newOrder()
	require.NoError(t, store.Create(ctx, o))
	_, err := store.MarkPaid(ctx, o.ID, time.Now().UTC())
	require.NoError(t, err)

	entry := order.HistoryEntry{Status: order.StatusConfirmed, At: time.Now().UTC().Truncate(time.Microsecond)}
	updated, err := store.Transition(ctx, o.ID, order.StatusPending, entry, true)
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, updated.Status)
	require.Len(t, updated.StatusHistory, 2)

	// Replaying the same expected-from fails: the row moved on.
	_, err = store.Transition(ctx, o.ID, order.StatusPending, entry, true)
	require.ErrorIs(t, err, order.ErrStaleOrder)
}

func TestOrderStore_TransitionPaidGuard(t *testing.T) {
	ctx := context.Background()
	store := postgres.NewOrderStore(pool)

	o := newOrder()
	require.NoError(t, store.Create(ctx, o))

	entry := order.HistoryEntry{Status: order.StatusConfirmed, At: time.Now().UTC()}
	_, err := store.Transition(ctx, o.ID, order.StatusPending, entry, true)
	require.ErrorIs(t, err, order.ErrStaleOrder)

	// Cancelling has no payment requirement.
	entry = order.HistoryEntry{Status: order.StatusCancelled, At: time.Now().UTC()}
	updated, err := store.Transition(ctx, o.ID, order.StatusPending, entry, false)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, updated.Status)
}

func TestOrderStore_ConcurrentTransitions(t *testing.T) {
	ctx := context.Background()
	store := postgres.NewOrderStore(pool)

	o := newOrder()
	require.NoError(t, store.Create(ctx, o))

	// Competing writers race pending -> cancelled; exactly one wins.
	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry := order.HistoryEntry{Status: order.StatusCancelled, At: time.Now().UTC()}
			_, err := store.Transition(ctx, o.ID, order.StatusPending, entry, false)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, order.ErrStaleOrder)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)

	got, err := store.Get(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, got.StatusHistory, 2, "history must not gain duplicate entries")
}

func TestOrderStore_AttachIntentPreservesPaid(t *testing.T) {
	ctx := context.Background()
	store := postgres.NewOrderStore(pool)

	o := newOrder()
	require.NoError(t, store.Create(ctx, o))

	require.NoError(t, store.AttachIntent(ctx, o.ID, "pi_first"))
	got, err := store.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "pi_first", got.PaymentIntentRef)
	assert.Equal(t, order.PaymentRequiresAction, got.PaymentStatus)

	byRef, err := store.GetByIntentRef(ctx, "pi_first")
	require.NoError(t, err)
	assert.Equal(t, o.ID, byRef.ID)

	_, err = store.MarkPaid(ctx, o.ID, time.Now().UTC())
	require.NoError(t, err)

	// Replacing the ref after payment keeps payment_status at paid.
	require.NoError(t, store.AttachIntent(ctx, o.ID, "pi_second"))
	got, err = store.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "pi_second", got.PaymentIntentRef)
	assert.Equal(t, order.PaymentPaid, got.PaymentStatus)
}

func TestThreadStore_GetOrCreateIsRaceFree(t *testing.T) {
	ctx := context.Background()
	threads := postgres.NewThreadStore(pool)

	ref := thread.Ref{ProductID: "p-race", OrderID: uuid.New().String()}

	const workers = 8
	results := make([]*thread.Thread, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			th, err := threads.GetOrCreate(ctx, "buyer-1", "supplier-1", ref)
			if assert.NoError(t, err) {
				results[i] = th
			}
		}(i)
	}
	wg.Wait()

	require.NotNil(t, results[0])
	for _, th := range results[1:] {
		require.NotNil(t, th)
		assert.Equal(t, results[0].ID, th.ID, "all callers must converge on one thread")
	}
}

func TestLinkOutbox_Lifecycle(t *testing.T) {
	ctx := context.Background()
	outbox := postgres.NewLinkOutbox(pool)

	link := order.ThreadLink{
		OrderID:    uuid.New().String(),
		BuyerID:    "buyer-1",
		SupplierID: "supplier-1",
		ProductID:  "p1",
	}
	require.NoError(t, outbox.EnqueueLink(ctx, link))
	// Re-enqueueing the same order is a no-op.
	require.NoError(t, outbox.EnqueueLink(ctx, link))

	pending, err := outbox.Pending(ctx, 100)
	require.NoError(t, err)

	var found *postgres.PendingLink
	for i := range pending {
		if pending[i].Link.OrderID == link.OrderID {
			require.Nil(t, found, "duplicate outbox row for one order")
			found = &pending[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, link, found.Link)

	require.NoError(t, outbox.RecordAttempt(ctx, found.ID, "thread store unavailable"))
	require.NoError(t, outbox.MarkLinked(ctx, found.ID, time.Now().UTC()))

	pending, err = outbox.Pending(ctx, 100)
	require.NoError(t, err)
	for _, p := range pending {
		assert.NotEqual(t, link.OrderID, p.Link.OrderID, "linked rows must leave the pending set")
	}
}
