// Package postgres upserts canonical product rows into Postgres with pgvector columns.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/catalog-ingest/internal/catalog"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// columns in insert order. The casts keep every parameter textual so pgx never
// needs codecs for numeric or vector.
var columns = []struct {
	name string
	cast string
}{
	{"id", ""},
	{"source", ""},
	{"product_url", ""},
	{"affiliate_url", ""},
	{"image_url", ""},
	{"additional_images", ""},
	{"brand", ""},
	{"merchant", ""},
	{"title", ""},
	{"description", ""},
	{"category", ""},
	{"gender", ""},
	{"price", "::text::numeric"},
	{"currency", ""},
	{"metadata", "::jsonb"},
	{"size", ""},
	{"second_hand", ""},
	{"embedding", "::text::vector"},
	{"info_embedding", "::text::vector"},
}

// ProductStoreConfig controls the Postgres connection pool.
type ProductStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	// StatementTimeout bounds each upsert.
	StatementTimeout time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// ProductStore implements catalog.ProductStore.
type ProductStore struct {
	pool    execCloser
	table   string
	timeout time.Duration
}

// NewProductStore connects a pool using cfg.
func NewProductStore(ctx context.Context, cfg ProductStoreConfig) (*ProductStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewProductStoreWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	store.timeout = cfg.StatementTimeout
	return store, nil
}

// NewProductStoreWithPool constructs a store from an existing pool.
func NewProductStoreWithPool(pool execCloser, table string) (*ProductStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "products"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ProductStore{pool: pool, table: table, timeout: 30 * time.Second}, nil
}

// Close releases the underlying pool resources.
func (s *ProductStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Upsert writes rows in one statement, replacing existing rows with the same
// (source, product_url).
func (s *ProductStore) Upsert(ctx context.Context, rows []catalog.Product) error {
	if s == nil || s.pool == nil {
		return catalog.ErrStoreDisabled
	}
	if len(rows) == 0 {
		return nil
	}
	query := s.upsertQuery(len(rows))
	args := make([]any, 0, len(rows)*len(columns))
	for _, row := range rows {
		rowArgs, err := productArgs(row)
		if err != nil {
			return err
		}
		args = append(args, rowArgs...)
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert %d products: %w", len(rows), err)
	}
	return nil
}

func (s *ProductStore) upsertQuery(n int) string {
	names := make([]string, len(columns))
	updates := make([]string, 0, len(columns))
	for i, c := range columns {
		names[i] = c.name
		if c.name != "source" && c.name != "product_url" {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", c.name, c.name))
		}
	}
	tuples := make([]string, n)
	param := 1
	for r := range n {
		holders := make([]string, len(columns))
		for i, c := range columns {
			holders[i] = fmt.Sprintf("$%d%s", param, c.cast)
			param++
		}
		tuples[r] = "(" + strings.Join(holders, ",") + ")"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s ON CONFLICT (source, product_url) DO UPDATE SET %s",
		s.table, strings.Join(names, ", "), strings.Join(tuples, ", "), strings.Join(updates, ", "))
}

func productArgs(p catalog.Product) ([]any, error) {
	meta := p.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata for %s: %w", p.ID, err)
	}
	return []any{
		p.ID,
		p.Source,
		p.ProductURL,
		p.AffiliateURL,
		p.ImageURL,
		p.AdditionalImages,
		p.Brand,
		p.Merchant,
		p.Title,
		p.Description,
		p.Category,
		p.Gender,
		p.Price,
		p.Currency,
		string(metaJSON),
		p.Size,
		p.SecondHand,
		vectorArg(p.Embedding),
		vectorArg(p.InfoEmbedding),
	}, nil
}

func vectorArg(v catalog.Vector) *string {
	if len(v) == 0 {
		return nil
	}
	s := v.String()
	return &s
}
