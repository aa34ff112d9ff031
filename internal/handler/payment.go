package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/jx"
)

// webhookMaxBytes bounds webhook payloads; provider events for payment
// intents are a few KB at most.
const webhookMaxBytes = 1 << 20

func (h *Handler) createPaymentIntent(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	body, ok := readBody(w, r)
	if !ok {
		return
	}
	orderID, err := decodeIntentRequest(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.payments.CreateOrReuseIntent(r.Context(), ident, orderID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	e := &jx.Encoder{}
	encodeIntentResult(e, res)
	respondJSON(w, http.StatusOK, e)
}

func (h *Handler) paymentStatus(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	res, err := h.payments.PaymentStatus(r.Context(), ident, r.PathValue("orderId"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	e := &jx.Encoder{}
	encodeStatusResult(e, res)
	respondJSON(w, http.StatusOK, e)
}

// handleWebhook receives provider payment events. Authentication is the
// payload signature, not an API key. A 2xx acknowledges the event; storage
// failures return 5xx so the provider redelivers.
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, webhookMaxBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	if err := h.reconciler.HandleEvent(r.Context(), body, r.Header.Get("Stripe-Signature")); err != nil {
		respondDomainError(w, r, err)
		return
	}

	e := &jx.Encoder{}
	e.ObjStart()
	e.FieldStart("received")
	e.Bool(true)
	e.ObjEnd()
	respondJSON(w, http.StatusOK, e)
}
