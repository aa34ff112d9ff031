package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/supplyhub/marketplace/internal/domain/identity"
	"github.com/supplyhub/marketplace/pkg/httpmiddleware"
)

// apiKeyHeader carries the caller's API key on every authenticated request.
const apiKeyHeader = "X-Api-Key"

// Security authenticates API requests via HMAC-SHA256 hashed API keys.
type Security struct {
	keys   identity.Repository
	pepper []byte
}

// NewSecurity creates a Security with the given key repository and HMAC pepper.
func NewSecurity(keys identity.Repository, pepper []byte) *Security {
	return &Security{
		keys:   keys,
		pepper: pepper,
	}
}

// Middleware rejects requests without a valid API key and attaches the
// resolved identity to the request context.
func (s *Security) Middleware() httpmiddleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(apiKeyHeader)
			if key == "" {
				respondError(w, http.StatusUnauthorized, "missing API key")
				return
			}

			id, ok := s.authenticate(r, key)
			if !ok {
				respondError(w, http.StatusUnauthorized, "invalid API key")
				return
			}

			next.ServeHTTP(w, r.WithContext(identity.WithIdentity(r.Context(), id)))
		})
	}
}

// authenticate computes the HMAC-SHA256 of the provided API key, looks it up
// in the repository, and performs a constant-time comparison to prevent
// timing attacks.
func (s *Security) authenticate(r *http.Request, key string) (identity.Identity, bool) {
	mac := hmac.New(sha256.New, s.pepper)
	mac.Write([]byte(key))
	hash := mac.Sum(nil)

	info, err := s.keys.FindByHash(r.Context(), hex.EncodeToString(hash))
	if err != nil {
		return identity.Identity{}, false
	}

	// Constant-time comparison guards against timing side-channels even though
	// the lookup already succeeded — the stored hash could differ from what we
	// computed if the repository returns a stale/wrong row.
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return identity.Identity{}, false
	}
	if subtle.ConstantTimeCompare(hash, stored) != 1 {
		return identity.Identity{}, false
	}

	return identity.Identity{UserID: info.UserID, Roles: info.Roles}, true
}
