package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/supplyhub/marketplace/internal/domain/catalog"
	"github.com/supplyhub/marketplace/internal/domain/order"
	"github.com/supplyhub/marketplace/internal/domain/payment"
)

func respondJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func respondError(w http.ResponseWriter, status int, message string) {
	e := &jx.Encoder{}
	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(message)
	e.ObjEnd()
	respondJSON(w, status, e)
}

// respondDomainError maps domain sentinels onto HTTP statuses. Anything
// unrecognized is a 500 and gets logged with the request context.
func respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, order.ErrNotFound) || errors.Is(err, catalog.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, order.ErrInvalidTransition):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, order.ErrNotPaid):
		respondError(w, http.StatusForbidden, "order is not paid")
	case errors.Is(err, payment.ErrAlreadyPaid):
		respondError(w, http.StatusForbidden, "order is already paid")
	case errors.Is(err, order.ErrForbidden) || errors.Is(err, payment.ErrForbidden):
		respondError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, order.ErrInvalidQuantity) || errors.Is(err, order.ErrInvalidStatus):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, payment.ErrBadSignature):
		respondError(w, http.StatusBadRequest, "invalid webhook signature")
	case errors.Is(err, payment.ErrProvider):
		// Surfaced as a client-visible configuration problem rather than a
		// generic 500 so integrators can tell misconfiguration from outage.
		respondError(w, http.StatusForbidden, "payment provider configuration error")
	default:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
