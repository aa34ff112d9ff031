package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/supplyhub/marketplace/internal/domain/identity"
)

const findKeyByHashSQL = `SELECT key_hash, user_id, roles, label
	FROM api_keys WHERE key_hash = $1`

var _ identity.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository implements identity.Repository backed by PostgreSQL.
type APIKeyRepository struct {
	pool *pgxpool.Pool
}

// NewAPIKeyRepository returns an APIKeyRepository that uses the given pool.
func NewAPIKeyRepository(pool *pgxpool.Pool) *APIKeyRepository {
	return &APIKeyRepository{pool: pool}
}

// FindByHash looks up an API key record by its peppered HMAC hash.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*identity.Key, error) {
	var (
		k     identity.Key
		roles []string
	)
	err := r.pool.QueryRow(ctx, findKeyByHashSQL, hash).
		Scan(&k.KeyHash, &k.UserID, &roles, &k.Label)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, identity.ErrUnknownKey
		}
		return nil, fmt.Errorf("finding api key: %w", err)
	}

	k.Roles = make([]identity.Role, len(roles))
	for i, role := range roles {
		k.Roles[i] = identity.Role(role)
	}
	return &k, nil
}
