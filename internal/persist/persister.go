// Package persist validates canonical rows and writes them through a
// catalog.ProductStore in batches, falling back to single-row upserts when a
// batch is rejected.
package persist

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-ingest/internal/catalog"
	"github.com/JakeFAU/catalog-ingest/internal/metrics"
)

// DefaultBatchSize is the number of rows per upsert.
const DefaultBatchSize = 100

// Persister writes rows to a store.
type Persister struct {
	store     catalog.ProductStore
	batchSize int
	validate  *validator.Validate
	logger    *zap.Logger
}

// New builds a Persister. A nil store disables persistence.
func New(store catalog.ProductStore, batchSize int, logger *zap.Logger) *Persister {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Persister{
		store:     store,
		batchSize: batchSize,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger.Named("persist"),
	}
}

// Enabled reports whether a store is configured.
func (p *Persister) Enabled() bool {
	return p.store != nil
}

// Persist writes rows and returns how many were stored. Invalid rows are
// dropped; a failed batch is retried row by row.
func (p *Persister) Persist(ctx context.Context, rows []catalog.Product) int {
	if len(rows) == 0 {
		return 0
	}
	if p.store == nil {
		p.logger.Info("skipping persistence; store credentials not set", zap.Int("rows", len(rows)))
		return 0
	}
	valid := p.filterValid(rows)

	saved := 0
	for start := 0; start < len(valid); start += p.batchSize {
		if ctx.Err() != nil {
			break
		}
		batch := valid[start:min(start+p.batchSize, len(valid))]
		err := p.store.Upsert(ctx, batch)
		if err == nil {
			saved += len(batch)
			metrics.ObservePersisted("batch", len(batch))
			continue
		}
		p.logger.Warn("batch upsert failed; retrying rows individually",
			zap.Int("rows", len(batch)), zap.Error(err))
		saved += p.persistRows(ctx, batch)
	}
	p.logger.Info("persisted rows", zap.Int("saved", saved), zap.Int("input", len(rows)))
	return saved
}

func (p *Persister) persistRows(ctx context.Context, batch []catalog.Product) int {
	saved := 0
	for _, row := range batch {
		if err := p.store.Upsert(ctx, []catalog.Product{row}); err != nil {
			p.logger.Warn("row upsert failed",
				zap.String("id", row.ID), zap.String("product_url", row.ProductURL), zap.Error(err))
			metrics.ObserveRowFailures(1)
			continue
		}
		saved++
		metrics.ObservePersisted("row", 1)
	}
	return saved
}

func (p *Persister) filterValid(rows []catalog.Product) []catalog.Product {
	valid := make([]catalog.Product, 0, len(rows))
	for _, row := range rows {
		if err := p.validate.Struct(row); err != nil {
			p.logger.Warn("dropping invalid row",
				zap.String("id", row.ID), zap.String("product_url", row.ProductURL), zap.Error(err))
			metrics.ObserveRowFailures(1)
			continue
		}
		valid = append(valid, row)
	}
	return valid
}
