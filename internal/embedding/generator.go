// Package embedding produces fixed-size image embeddings for product rows.
//
// Generation runs validate, fetch, decode and embed in order. Validation can
// skip a URL outright; the remaining steps are retried together with
// exponential backoff. A wrong-sized vector or an unavailable model stops
// immediately. Every failure yields a nil vector rather than an error.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-ingest/internal/catalog"
	"github.com/JakeFAU/catalog-ingest/internal/metrics"
)

// Outcome labels the result of one generation.
type Outcome string

// Outcomes.
const (
	OutcomeEmbedded    Outcome = "embedded"
	OutcomeSkipped     Outcome = "skipped"
	OutcomeFailed      Outcome = "failed"
	OutcomeDimension   Outcome = "dimension_mismatch"
	OutcomeUnavailable Outcome = "model_unavailable"
)

// DefaultMaxAttempts bounds fetch/decode/embed attempts per image.
const DefaultMaxAttempts = 3

var errDimension = errors.New("embedding dimension mismatch")

// ImageModel embeds decoded images.
type ImageModel interface {
	EmbedImage(ctx context.Context, img image.Image) ([]float32, error)
}

// TextModel embeds free text.
type TextModel interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Config tunes the generator.
type Config struct {
	MaxAttempts int
	// BackoffBase is the delay before the second attempt; it doubles after.
	BackoffBase time.Duration
	// Referer is sent with image requests.
	Referer    string
	Validation ValidationConfig
}

// Generator turns image URLs into vectors.
type Generator struct {
	fetcher catalog.Fetcher
	model   ImageModel
	cfg     Config
	sleep   func(context.Context, time.Duration) error
	logger  *zap.Logger
}

// New builds a Generator.
func New(fetcher catalog.Fetcher, model ImageModel, cfg Config, logger *zap.Logger) *Generator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		fetcher: fetcher,
		model:   model,
		cfg:     cfg,
		sleep:   sleepContext,
		logger:  logger.Named("embedding"),
	}
}

// Backoff returns the delay before the zero-based attempt: 0, base, 2*base, ...
func (g *Generator) Backoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return g.cfg.BackoffBase << (attempt - 1)
}

// Generate embeds the image at rawURL. The vector is nil unless the outcome is
// OutcomeEmbedded.
func (g *Generator) Generate(ctx context.Context, rawURL string) (catalog.Vector, Outcome) {
	vec, outcome := g.generate(ctx, rawURL)
	metrics.ObserveEmbedding(string(outcome))
	return vec, outcome
}

func (g *Generator) generate(ctx context.Context, rawURL string) (catalog.Vector, Outcome) {
	log := g.logger.With(zap.String("image_url", rawURL))
	u, reason, ok := Sanitize(rawURL, g.cfg.Validation)
	if !ok {
		log.Debug("image skipped", zap.String("reason", reason))
		return nil, OutcomeSkipped
	}

	var lastErr error
	for attempt := range g.cfg.MaxAttempts {
		if delay := g.Backoff(attempt); delay > 0 {
			if err := g.sleep(ctx, delay); err != nil {
				return nil, OutcomeFailed
			}
		}
		vec, err := g.attempt(ctx, u)
		switch {
		case err == nil:
			return vec, OutcomeEmbedded
		case errors.Is(err, catalog.ErrModelUnavailable):
			log.Debug("model unavailable", zap.Error(err))
			return nil, OutcomeUnavailable
		case errors.Is(err, errDimension):
			log.Warn("embedding rejected", zap.Error(err))
			return nil, OutcomeDimension
		case ctx.Err() != nil:
			return nil, OutcomeFailed
		}
		lastErr = err
		log.Debug("embedding attempt failed", zap.Int("attempt", attempt+1), zap.Error(err))
	}
	log.Warn("embedding failed", zap.Int("attempts", g.cfg.MaxAttempts), zap.Error(lastErr))
	return nil, OutcomeFailed
}

func (g *Generator) attempt(ctx context.Context, u string) (catalog.Vector, error) {
	headers := http.Header{"Accept": {"image/avif,image/webp,image/*,*/*;q=0.8"}}
	if g.cfg.Referer != "" {
		headers.Set("Referer", g.cfg.Referer)
	}
	resp, err := g.fetcher.Fetch(ctx, catalog.FetchRequest{URL: u, Headers: headers})
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	img, err := DecodeImage(resp.Body)
	if err != nil {
		return nil, err
	}
	vec, err := g.model.EmbedImage(ctx, img)
	if err != nil {
		return nil, err
	}
	if len(vec) != catalog.EmbeddingDim {
		return nil, fmt.Errorf("%w: got %d, want %d", errDimension, len(vec), catalog.EmbeddingDim)
	}
	return catalog.Vector(vec), nil
}

// EmbedText embeds text once without retries. Failures and wrong sizes yield nil.
func EmbedText(ctx context.Context, model TextModel, text string) catalog.Vector {
	if model == nil || text == "" {
		return nil
	}
	vec, err := model.EmbedText(ctx, text)
	if err != nil || len(vec) != catalog.EmbeddingDim {
		return nil
	}
	return catalog.Vector(vec)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
