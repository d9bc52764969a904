package embedding

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/catalog-ingest/internal/catalog"
)

// ServiceConfig points at the HTTP inference service.
type ServiceConfig struct {
	// BaseURL is the service root, e.g. http://localhost:8000.
	BaseURL    string
	EmbedPath  string
	HealthPath string
	Timeout    time.Duration
	InputSize  int
}

// Service calls a remote embedding model over HTTP. The first call probes the
// service; a failed probe is remembered and every later call fails fast with
// catalog.ErrModelUnavailable.
type Service struct {
	cfg     ServiceConfig
	client  *http.Client
	once    sync.Once
	initErr error
}

type embedRequest struct {
	Mode  string `json:"mode"`
	Image string `json:"image,omitempty"`
	Text  string `json:"text,omitempty"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// NewService builds a Service. client may be nil.
func NewService(cfg ServiceConfig, client *http.Client) *Service {
	if cfg.EmbedPath == "" {
		cfg.EmbedPath = "/embed"
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/healthz"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.InputSize <= 0 {
		cfg.InputSize = DefaultInputSize
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Service{cfg: cfg, client: client}
}

// EmbedImage returns the image embedding.
func (s *Service) EmbedImage(ctx context.Context, img image.Image) ([]float32, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	encoded, err := EncodePNG(Resize(img, s.cfg.InputSize))
	if err != nil {
		return nil, err
	}
	return s.embed(ctx, embedRequest{Mode: "image", Image: base64.StdEncoding.EncodeToString(encoded)})
}

// EmbedText returns the text embedding.
func (s *Service) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	return s.embed(ctx, embedRequest{Mode: "text", Text: text})
}

func (s *Service) ready(ctx context.Context) error {
	s.once.Do(func() {
		probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Timeout)
		defer cancel()
		if err := s.probe(probeCtx); err != nil {
			s.initErr = fmt.Errorf("%w: %w", catalog.ErrModelUnavailable, err)
		}
	})
	return s.initErr
}

func (s *Service) probe(ctx context.Context) error {
	if s.cfg.BaseURL == "" {
		return fmt.Errorf("no service url configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BaseURL+s.cfg.HealthPath, nil)
	if err != nil {
		return fmt.Errorf("build probe: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // body fully drained below
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("probe: status %d", resp.StatusCode)
	}
	return nil
}

func (s *Service) embed(ctx context.Context, body embedRequest) ([]float32, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+s.cfg.EmbedPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("embed: status %d", resp.StatusCode)
	}
	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embedding: %w", err)
	}
	return out.Embedding, nil
}
