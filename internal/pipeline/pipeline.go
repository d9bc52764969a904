// Package pipeline orchestrates one ingest run: discovery, batch fetch,
// normalization, embedding and persistence, category by category.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-ingest/internal/batch"
	"github.com/JakeFAU/catalog-ingest/internal/catalog"
	"github.com/JakeFAU/catalog-ingest/internal/discovery"
	"github.com/JakeFAU/catalog-ingest/internal/embedding"
	"github.com/JakeFAU/catalog-ingest/internal/logging"
	"github.com/JakeFAU/catalog-ingest/internal/normalize"
	"github.com/JakeFAU/catalog-ingest/internal/telemetry"
)

const publishTimeout = 10 * time.Second

// Resolver maps a category to product ids.
type Resolver interface {
	Resolve(ctx context.Context, cat catalog.Category) discovery.Result
}

// BatchFetcher turns ids into raw field maps.
type BatchFetcher interface {
	Fetch(ctx context.Context, req batch.Request) []map[string]any
}

// Normalizer maps raw field maps onto rows.
type Normalizer interface {
	Normalize(raw map[string]any) catalog.Product
}

// ImageEmbedder attaches image vectors.
type ImageEmbedder interface {
	Generate(ctx context.Context, rawURL string) (catalog.Vector, embedding.Outcome)
}

// Persister stores rows and returns how many were saved.
type Persister interface {
	Persist(ctx context.Context, rows []catalog.Product) int
}

// Deps are the collaborators of a Pipeline. TextModel, Publisher, Clock and
// IDs are optional.
type Deps struct {
	Resolver   Resolver
	Batches    BatchFetcher
	Normalizer Normalizer
	Embedder   ImageEmbedder
	TextModel  embedding.TextModel
	Persister  Persister
	Publisher  catalog.Publisher
	Clock      catalog.Clock
	IDs        catalog.IDGenerator
	Logger     *zap.Logger
}

// Config holds run limits.
type Config struct {
	// Limit caps collected items across the run; zero means unlimited.
	Limit   int
	Workers int
}

// Pipeline runs categories sequentially. Only embedding work is concurrent.
type Pipeline struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger

	mu       sync.Mutex
	progress Summary
}

// New builds a Pipeline.
func New(deps Deps, cfg Config) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = wallClock{}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = embedding.DefaultWorkers
	}
	return &Pipeline{deps: deps, cfg: cfg, logger: deps.Logger.Named("pipeline")}
}

// Progress returns a snapshot of the current or last run.
func (p *Pipeline) Progress() Summary {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress
}

func (p *Pipeline) update(fn func(*Summary)) Summary {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.progress)
	return p.progress
}

// Run processes categories in order until they are exhausted, the item limit
// is reached or ctx is canceled. Configuration problems are reported through
// Summary.Error; everything else degrades to smaller counts.
func (p *Pipeline) Run(ctx context.Context, categories []catalog.Category) Summary {
	started := p.deps.Clock.Now()
	runID := p.newRunID()
	log := logging.ForRun(p.logger, runID)
	p.update(func(s *Summary) {
		*s = Summary{RunID: runID, StartedAt: started, Categories: len(categories)}
	})

	ctx, span := telemetry.StartSpan(ctx, "pipeline.run",
		attribute.String("run_id", runID),
		attribute.Int("categories", len(categories)),
	)

	var runErr error
	switch {
	case len(categories) == 0:
		runErr = catalog.ErrNoCategories
	case p.deps.Resolver == nil || p.deps.Batches == nil || p.deps.Normalizer == nil:
		runErr = errors.New("pipeline is missing a required collaborator")
	}
	if runErr != nil {
		log.Error("run aborted", zap.Error(runErr))
		return p.finish(ctx, span, log, started, runErr)
	}

	rc := NewRunContext(runID, p.cfg.Limit)
	log.Info("run started", zap.Int("categories", len(categories)), zap.Int("limit", p.cfg.Limit))
	for _, cat := range categories {
		if rc.Exhausted() {
			log.Info("item limit reached, stopping", zap.Int("limit", rc.Limit))
			break
		}
		if ctx.Err() != nil {
			log.Warn("run canceled", zap.Error(ctx.Err()))
			break
		}
		p.runCategory(ctx, rc, cat, log)
	}
	return p.finish(ctx, span, log, started, nil)
}

func (p *Pipeline) finish(ctx context.Context, span trace.Span, log *zap.Logger, started time.Time, runErr error) Summary {
	summary := p.update(func(s *Summary) {
		s.Duration = p.deps.Clock.Now().Sub(started)
		s.Done = true
		s.Err = runErr
		if runErr != nil {
			s.Error = runErr.Error()
		}
	})
	span.SetAttributes(
		attribute.Int("total_collected", summary.TotalCollected),
		attribute.Int("saved", summary.Saved),
	)
	telemetry.EndSpan(span, runErr)

	log.Info("run finished",
		zap.Int("skipped", summary.Skipped),
		zap.Int("total_collected", summary.TotalCollected),
		zap.Int("processed", summary.Processed),
		zap.Int("saved", summary.Saved),
		zap.Duration("duration", summary.Duration),
	)
	p.publish(ctx, summary, log)
	return summary
}

func (p *Pipeline) publish(ctx context.Context, summary Summary, log *zap.Logger) {
	if p.deps.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	id, err := p.deps.Publisher.Publish(ctx, summary.Event(), summary)
	if err != nil {
		log.Warn("publish run summary failed", zap.Error(err))
		return
	}
	log.Debug("run summary published", zap.String("message_id", id))
}

func (p *Pipeline) runCategory(ctx context.Context, rc *RunContext, cat catalog.Category, log *zap.Logger) {
	ctx, span := telemetry.StartSpan(ctx, "pipeline.category",
		attribute.String("category_id", cat.ID),
		attribute.String("category_key", cat.Key),
	)
	defer telemetry.EndSpan(span, nil)
	log = log.With(zap.String("category_id", cat.ID), zap.String("category", cat.Key))

	res := p.deps.Resolver.Resolve(ctx, cat)
	if len(res.IDs) == 0 {
		log.Warn("no product ids discovered, skipping category")
		p.update(func(s *Summary) { s.Skipped++ })
		return
	}
	ids := rc.FilterNew(res.IDs)
	log.Info("product ids discovered",
		zap.String("strategy", res.Strategy),
		zap.Bool("fallback", res.Fallback),
		zap.Int("discovered", len(res.IDs)),
		zap.Int("new", len(ids)),
	)
	if len(ids) == 0 {
		return
	}

	items := p.deps.Batches.Fetch(ctx, batch.Request{
		RunID:    rc.RunID,
		Category: cat,
		IDs:      ids,
		Limit:    rc.Remaining(),
	})

	rows := make([]catalog.Product, 0, len(items))
	for _, raw := range items {
		if rc.Exhausted() {
			break
		}
		enrich(raw, cat, res, rc.RunID)
		row := p.deps.Normalizer.Normalize(raw)
		if row.ProductURL == "" || !rc.MarkURL(row.ProductURL) {
			continue
		}
		rc.Collect(1)
		rows = append(rows, row)
	}
	p.update(func(s *Summary) { s.TotalCollected += len(rows) })
	if len(rows) == 0 {
		return
	}

	p.embed(ctx, rows)
	kept := rows[:0]
	for _, row := range rows {
		if len(row.Embedding) == catalog.EmbeddingDim {
			kept = append(kept, row)
		}
	}
	p.update(func(s *Summary) { s.Processed += len(kept) })

	saved := 0
	if p.deps.Persister != nil && len(kept) > 0 {
		saved = p.deps.Persister.Persist(ctx, kept)
	}
	p.update(func(s *Summary) { s.Saved += saved })
	span.SetAttributes(
		attribute.Int("collected", len(rows)),
		attribute.Int("embedded", len(kept)),
		attribute.Int("saved", saved),
	)
	log.Info("category done",
		zap.Int("collected", len(rows)),
		zap.Int("embedded", len(kept)),
		zap.Int("saved", saved),
	)
}

// embed fills the embedding slots of rows through a bounded pool and waits
// for every job before returning.
func (p *Pipeline) embed(ctx context.Context, rows []catalog.Product) {
	if p.deps.Embedder == nil && p.deps.TextModel == nil {
		return
	}
	pool := embedding.NewPool(ctx, p.cfg.Workers)
	for i := range rows {
		row := &rows[i]
		pool.Submit(func(ctx context.Context) {
			if p.deps.Embedder != nil {
				row.Embedding, _ = p.deps.Embedder.Generate(ctx, row.ImageURL)
			}
			if p.deps.TextModel != nil {
				row.InfoEmbedding = embedding.EmbedText(ctx, p.deps.TextModel, productText(*row))
			}
		})
	}
	pool.Wait()
}

func productText(row catalog.Product) string {
	parts := []string{row.Title}
	if row.Description != nil {
		parts = append(parts, *row.Description)
	}
	return strings.TrimSpace(strings.Join(parts, ". "))
}

// enrich fills category-level fields the item payload does not carry.
func enrich(raw map[string]any, cat catalog.Category, res discovery.Result, runID string) {
	if isBlank(raw[normalize.KeyGender]) && cat.Gender != "" {
		raw[normalize.KeyGender] = cat.Gender
	}
	switch {
	case cat.Class != "":
		raw[normalize.KeyCategory] = cat.Class
	case isBlank(raw[normalize.KeyCategory]) && cat.Key != "":
		raw[normalize.KeyCategory] = cat.Key
	}

	meta, _ := raw[normalize.KeyMeta].(map[string]any)
	if meta == nil {
		meta = make(map[string]any)
	}
	setIfAbsent(meta, "category_id", cat.ID)
	setIfAbsent(meta, "category_key", cat.Key)
	setIfAbsent(meta, "discovery_strategy", res.Strategy)
	setIfAbsent(meta, "run_id", runID)
	raw[normalize.KeyMeta] = meta
}

func setIfAbsent(m map[string]any, key string, value any) {
	if _, ok := m[key]; !ok {
		m[key] = value
	}
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	}
	return false
}

func (p *Pipeline) newRunID() string {
	if p.deps.IDs != nil {
		if id, err := p.deps.IDs.NewID(); err == nil {
			return id
		}
	}
	return p.deps.Clock.Now().UTC().Format("20060102T150405Z")
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }
