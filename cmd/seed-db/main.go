package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klauspost/pgzip"

	"github.com/supplyhub/marketplace/internal/postgres"
)

type productJSON struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	PriceCents int64  `json:"priceCents"`
	Currency   string `json:"currency"`
	SupplierID string `json:"supplierId"`
	Published  bool   `json:"published"`
}

type seedKey struct {
	Key    string
	UserID string
	Roles  []string
	Label  string
}

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKeyPepper string
		demoKeys     string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json.gz", "path to gzipped products JSON file")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or MKT_API_KEY_PEPPER env)")
	flag.StringVar(&demoKeys, "demo-keys", "", "comma-separated key:userID:role[,role...] triples to seed (or MKT_SEED_KEYS env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("MKT_API_KEY_PEPPER")
	}
	if demoKeys == "" {
		demoKeys = os.Getenv("MKT_SEED_KEYS")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, apiKeyPepper, demoKeys); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, pepper, demoKeys string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	keys, err := parseSeedKeys(demoKeys)
	if err != nil {
		return errors.Wrap(err, "parse demo keys")
	}
	if err := seedAPIKeys(ctx, pool, keys, pepper); err != nil {
		return errors.Wrap(err, "seed api keys")
	}

	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	f, err := os.Open(productsFile)
	if err != nil {
		return errors.Wrap(err, "open products file")
	}
	defer f.Close()

	zr, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrap(err, "open gzip stream")
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	const upsertSQL = `
INSERT INTO products (id, title, price_cents, currency, supplier_id, published)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE
SET title = EXCLUDED.title,
    price_cents = EXCLUDED.price_cents,
    currency = EXCLUDED.currency,
    supplier_id = EXCLUDED.supplier_id,
    published = EXCLUDED.published`

	for _, p := range products {
		if _, err := pool.Exec(ctx, upsertSQL,
			p.ID, p.Title, p.PriceCents, p.Currency, p.SupplierID, p.Published,
		); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("title", p.Title))
	}

	return nil
}

// parseSeedKeys parses "key:userID:role[|role...]" entries separated by
// commas, e.g. "buyer-key:u-buyer:buyer,admin-key:u-admin:admin|buyer".
func parseSeedKeys(spec string) ([]seedKey, error) {
	if spec == "" {
		return nil, nil
	}

	var keys []seedKey
	for _, entry := range strings.Split(spec, ",") {
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
			return nil, errors.Errorf("malformed entry %q, want key:userID:role[|role...]", entry)
		}
		keys = append(keys, seedKey{
			Key:    parts[0],
			UserID: parts[1],
			Roles:  strings.Split(parts[2], "|"),
			Label:  "seeded key for " + parts[1],
		})
	}
	return keys, nil
}

func seedAPIKeys(ctx context.Context, pool *pgxpool.Pool, keys []seedKey, pepper string) error {
	if len(keys) == 0 {
		slog.Info("no demo keys requested, skipping")
		return nil
	}

	slog.Info("seeding API keys", slog.Int("count", len(keys)))

	const upsertSQL = `
INSERT INTO api_keys (key_hash, user_id, roles, label)
VALUES ($1, $2, $3, $4)
ON CONFLICT (key_hash) DO UPDATE
SET user_id = EXCLUDED.user_id,
    roles = EXCLUDED.roles,
    label = EXCLUDED.label`

	for _, k := range keys {
		mac := hmac.New(sha256.New, []byte(pepper))
		mac.Write([]byte(k.Key))
		keyHash := hex.EncodeToString(mac.Sum(nil))

		if _, err := pool.Exec(ctx, upsertSQL, keyHash, k.UserID, k.Roles, k.Label); err != nil {
			return errors.Wrapf(err, "upsert key for %s", k.UserID)
		}

		slog.Info("upserted API key", slog.String("user_id", k.UserID), slog.String("roles", strings.Join(k.Roles, ",")))
	}

	return nil
}
