package handler

import (
	"net/http"

	"github.com/supplyhub/marketplace/internal/domain/identity"
	"github.com/supplyhub/marketplace/internal/domain/order"
	"github.com/supplyhub/marketplace/internal/domain/payment"
	"github.com/supplyhub/marketplace/pkg/httpmiddleware"
)

// Handler exposes the marketplace HTTP API, delegating business logic to the
// order service and payment coordinator.
type Handler struct {
	orders     *order.Service
	payments   *payment.Coordinator
	reconciler *payment.Reconciler
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	orders *order.Service,
	payments *payment.Coordinator,
	reconciler *payment.Reconciler,
) *Handler {
	return &Handler{
		orders:     orders,
		payments:   payments,
		reconciler: reconciler,
	}
}

// Register mounts all API routes on mux. Authenticated routes are wrapped
// with auth; the webhook endpoint is verified by signature instead and stays
// outside the API-key scheme.
func (h *Handler) Register(mux *http.ServeMux, auth httpmiddleware.Middleware) {
	authed := func(fn http.HandlerFunc) http.Handler {
		return auth(fn)
	}

	mux.Handle("POST /api/orders", authed(h.createOrder))
	mux.Handle("GET /api/orders/buyer", authed(h.listBuyerOrders))
	mux.Handle("GET /api/orders/supplier", authed(h.listSupplierOrders))
	mux.Handle("GET /api/orders/{id}", authed(h.getOrder))
	mux.Handle("PATCH /api/orders/{id}/status", authed(h.updateOrderStatus))

	mux.Handle("POST /api/payments/intent", authed(h.createPaymentIntent))
	mux.Handle("GET /api/payments/status/{orderId}", authed(h.paymentStatus))
	mux.Handle("POST /api/payments/webhook", http.HandlerFunc(h.handleWebhook))

	mux.Handle("GET /api/admin/orders/stats", authed(h.orderStats))
}

// requireIdentity fetches the authenticated identity from the request
// context, responding 401 if the auth middleware did not run.
func requireIdentity(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
	}
	return id, ok
}
