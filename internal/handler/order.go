package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/jx"

	"github.com/supplyhub/marketplace/internal/domain/identity"
	"github.com/supplyhub/marketplace/internal/domain/order"
)

// maxBodyBytes caps request bodies; order payloads are tiny.
const maxBodyBytes = 1 << 16

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read request body")
		return nil, false
	}
	return body, true
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if !ident.Has(identity.RoleBuyer) {
		respondError(w, http.StatusForbidden, "only buyers can place orders")
		return
	}

	body, ok := readBody(w, r)
	if !ok {
		return
	}
	req, err := decodeCreateOrderRequest(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	o, err := h.orders.Create(r.Context(), ident.UserID, order.CreateRequest{
		ProductID:            req.ProductID,
		Quantity:             req.Quantity,
		Notes:                req.Notes,
		ExpectedDeliveryDate: req.ExpectedDeliveryDate,
	})
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	e := &jx.Encoder{}
	encodeOrder(e, o)
	respondJSON(w, http.StatusCreated, e)
}

// listBuyerOrders returns the orders the caller placed, newest first.
func (h *Handler) listBuyerOrders(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if !ident.Has(identity.RoleBuyer) {
		respondError(w, http.StatusForbidden, "key does not grant the buyer role")
		return
	}

	orders, err := h.orders.ListForBuyer(r.Context(), ident.UserID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	e := &jx.Encoder{}
	encodeOrderList(e, orders)
	respondJSON(w, http.StatusOK, e)
}

// listSupplierOrders returns the orders placed against the caller's catalog.
func (h *Handler) listSupplierOrders(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if !ident.Has(identity.RoleSupplier) {
		respondError(w, http.StatusForbidden, "key does not grant the supplier role")
		return
	}

	orders, err := h.orders.ListForSupplier(r.Context(), ident.UserID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	e := &jx.Encoder{}
	encodeOrderList(e, orders)
	respondJSON(w, http.StatusOK, e)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	o, err := h.orders.Get(r.Context(), ident, r.PathValue("id"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	e := &jx.Encoder{}
	encodeOrder(e, o)
	respondJSON(w, http.StatusOK, e)
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	body, ok := readBody(w, r)
	if !ok {
		return
	}
	status, err := decodeStatusRequest(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), ident, r.PathValue("id"), status)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	e := &jx.Encoder{}
	encodeOrder(e, o)
	respondJSON(w, http.StatusOK, e)
}

func (h *Handler) orderStats(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	counts, err := h.orders.Stats(r.Context(), ident)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	e := &jx.Encoder{}
	encodeStats(e, counts)
	respondJSON(w, http.StatusOK, e)
}
