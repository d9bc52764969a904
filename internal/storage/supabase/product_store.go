// Package supabase upserts product rows through the Supabase REST API.
package supabase

import (
	"context"
	"fmt"

	supa "github.com/supabase-community/supabase-go"

	"github.com/JakeFAU/catalog-ingest/internal/catalog"
)

// OnConflict is the upsert conflict target.
const OnConflict = "source,product_url"

// Config holds Supabase credentials.
type Config struct {
	URL   string
	Key   string
	Table string
}

// ProductStore implements catalog.ProductStore via PostgREST.
type ProductStore struct {
	client *supa.Client
	table  string
}

// NewProductStore builds a client. Missing credentials yield catalog.ErrStoreDisabled.
func NewProductStore(cfg Config) (*ProductStore, error) {
	if cfg.URL == "" || cfg.Key == "" {
		return nil, catalog.ErrStoreDisabled
	}
	client, err := supa.NewClient(cfg.URL, cfg.Key, nil)
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	table := cfg.Table
	if table == "" {
		table = "products"
	}
	return &ProductStore{client: client, table: table}, nil
}

// Upsert sends rows in one request with merge-duplicates resolution.
func (s *ProductStore) Upsert(ctx context.Context, rows []catalog.Product) error {
	if len(rows) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, _, err := s.client.From(s.table).Upsert(rows, OnConflict, "minimal", "").Execute(); err != nil {
		return fmt.Errorf("supabase upsert %d products: %w", len(rows), err)
	}
	return nil
}

// Close is a no-op; the REST client holds no pooled resources.
func (s *ProductStore) Close() {}
