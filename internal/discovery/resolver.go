// Package discovery resolves a category to the product identifiers it
// contains by trying an ordered chain of strategies.
package discovery

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-ingest/internal/catalog"
	"github.com/JakeFAU/catalog-ingest/internal/jsonpath"
	"github.com/JakeFAU/catalog-ingest/internal/metrics"
)

// DefaultIDField is the discovery response field holding product identifiers.
const DefaultIDField = "productIds"

// JSONGetter fetches and decodes a JSON document.
type JSONGetter interface {
	GetJSON(ctx context.Context, url string) (any, error)
}

// Strategy is one way of discovering identifiers for a category. An empty
// result with a nil error means "nothing here, try the next one".
type Strategy interface {
	Name() string
	Discover(ctx context.Context, cat catalog.Category) ([]string, error)
}

// Config tunes how responses are read.
type Config struct {
	// IDField is read from discovery API responses.
	IDField string
	// ItemsPath locates product items in a direct products response.
	ItemsPath string
	// ItemIDPath locates the identifier inside each item.
	ItemIDPath string
}

// Result is the outcome of resolving one category.
type Result struct {
	IDs      []string
	Strategy string
	Fallback bool
}

// Resolver runs strategies in order and stops at the first non-empty result.
type Resolver struct {
	strategies []Strategy
	logger     *zap.Logger
}

// New builds the standard chain: direct URL, discovery API, rendered page
// (only when renderer is non-nil), then the static fallback list.
func New(api JSONGetter, renderer catalog.Renderer, cfg Config, logger *zap.Logger) (*Resolver, error) {
	if cfg.IDField == "" {
		cfg.IDField = DefaultIDField
	}
	if cfg.ItemsPath == "" {
		cfg.ItemsPath = "products"
	}
	if cfg.ItemIDPath == "" {
		cfg.ItemIDPath = "id"
	}
	itemsPath, err := jsonpath.Compile(cfg.ItemsPath)
	if err != nil {
		return nil, err
	}
	itemIDPath, err := jsonpath.Compile(cfg.ItemIDPath)
	if err != nil {
		return nil, err
	}
	idField, err := jsonpath.Compile(cfg.IDField)
	if err != nil {
		return nil, err
	}

	strategies := []Strategy{
		&DirectURL{api: api, items: itemsPath, itemID: itemIDPath},
		&DiscoveryAPI{api: api, field: idField},
	}
	if renderer != nil {
		strategies = append(strategies, &RenderedPage{renderer: renderer})
	}
	strategies = append(strategies, StaticFallback{})
	return NewWithStrategies(logger, strategies...), nil
}

// NewWithStrategies builds a resolver over an explicit chain.
func NewWithStrategies(logger *zap.Logger, strategies ...Strategy) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{strategies: strategies, logger: logger.Named("discovery")}
}

// Resolve returns the identifiers for cat. Strategy failures are logged and
// demote to the next strategy; an empty Result means every strategy came up dry.
func (r *Resolver) Resolve(ctx context.Context, cat catalog.Category) Result {
	log := r.logger.With(zap.String("category_id", cat.ID))
	for _, s := range r.strategies {
		if ctx.Err() != nil {
			break
		}
		ids, err := s.Discover(ctx, cat)
		switch {
		case errors.Is(err, catalog.ErrRendererUnavailable):
			log.Debug("strategy unavailable", zap.String("strategy", s.Name()))
			continue
		case err != nil:
			log.Warn("discovery strategy failed", zap.String("strategy", s.Name()), zap.Error(err))
			continue
		}
		ids = dedupe(ids)
		if len(ids) == 0 {
			continue
		}
		_, fallback := s.(StaticFallback)
		outcome := metrics.OutcomeLive
		if fallback {
			outcome = metrics.OutcomeFallback
		}
		metrics.ObserveDiscovery(s.Name(), outcome)
		log.Info("discovered products",
			zap.String("strategy", s.Name()),
			zap.Bool("fallback", fallback),
			zap.Int("count", len(ids)),
		)
		return Result{IDs: ids, Strategy: s.Name(), Fallback: fallback}
	}
	metrics.ObserveDiscovery("none", metrics.OutcomeEmpty)
	log.Warn("no products discovered; skipping category")
	return Result{}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
