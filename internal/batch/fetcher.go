// Package batch fetches product details for discovered identifiers in fixed
// size batches and maps each returned item through the site field map.
//
// Without expansion levels the field map runs against each item. With levels,
// every item is first expanded into scopes such as {item, variant, color}, one
// per leaf, and the field map runs against each scope.
package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-ingest/internal/catalog"
	"github.com/JakeFAU/catalog-ingest/internal/jsonpath"
	"github.com/JakeFAU/catalog-ingest/internal/metrics"
)

// DefaultBatchSize is the number of identifiers sent per products request.
const DefaultBatchSize = 50

// JSONGetter fetches and decodes a JSON document.
type JSONGetter interface {
	GetJSON(ctx context.Context, url string) (any, error)
}

// ItemScope is the scope name of the product item once expansion is on.
const ItemScope = "item"

// Level expands each scope into one child scope per value Path yields. Path
// is evaluated against the parent scope and stored under Name.
type Level struct {
	Name string
	Path jsonpath.Rule
}

// Config controls request building and extraction.
type Config struct {
	BatchSize int
	// IDParam is the query parameter carrying the comma joined identifiers.
	IDParam string
	// ItemsPath locates the product list inside a response.
	ItemsPath string
	// Fields maps output keys to extraction rules.
	Fields jsonpath.Spec
	// Expand lists the variant levels, outermost first.
	Expand []Level
}

// Request asks for the items behind ids in one category.
type Request struct {
	RunID    string
	Category catalog.Category
	IDs      []string
	// Limit caps the number of returned items; zero means unlimited.
	Limit int
}

// Fetcher fetches product batches.
type Fetcher struct {
	api     JSONGetter
	archive catalog.BlobStore
	cfg     Config
	items   jsonpath.Path
	logger  *zap.Logger
}

// New builds a Fetcher. archive may be nil.
func New(api JSONGetter, archive catalog.BlobStore, cfg Config, logger *zap.Logger) (*Fetcher, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.IDParam == "" {
		cfg.IDParam = "productIds"
	}
	if cfg.ItemsPath == "" {
		cfg.ItemsPath = "products"
	}
	items, err := jsonpath.Compile(cfg.ItemsPath)
	if err != nil {
		return nil, fmt.Errorf("items path: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{api: api, archive: archive, cfg: cfg, items: items, logger: logger.Named("batch")}, nil
}

// Fetch requests every batch in order and returns the extracted items. A
// failing batch is logged and contributes nothing; later batches still run.
func (f *Fetcher) Fetch(ctx context.Context, req Request) []map[string]any {
	log := f.logger.With(zap.String("category_id", req.Category.ID))
	var out []map[string]any
	for n, ids := range Partition(req.IDs, f.cfg.BatchSize) {
		if req.Limit > 0 && len(out) >= req.Limit {
			break
		}
		if ctx.Err() != nil {
			break
		}
		endpoint, err := BuildURL(req.Category.Endpoint, f.cfg.IDParam, ids)
		if err != nil {
			log.Warn("bad products endpoint", zap.Error(err))
			metrics.ObserveBatch("error", 0)
			return out
		}
		doc, err := f.api.GetJSON(ctx, endpoint)
		if err != nil {
			log.Warn("batch fetch failed", zap.Int("batch", n), zap.Int("ids", len(ids)), zap.Error(err))
			metrics.ObserveBatch("error", 0)
			continue
		}
		f.archiveBatch(ctx, req, n, doc)

		items := f.extract(doc)
		if req.Limit > 0 && len(out)+len(items) > req.Limit {
			items = items[:req.Limit-len(out)]
		}
		metrics.ObserveBatch("ok", len(items))
		log.Debug("batch fetched", zap.Int("batch", n), zap.Int("items", len(items)))
		out = append(out, items...)
	}
	return out
}

func (f *Fetcher) extract(doc any) []map[string]any {
	v, ok := f.items.Eval(doc)
	if !ok {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if _, isObject := item.(map[string]any); !isObject {
			continue
		}
		if len(f.cfg.Expand) == 0 {
			out = append(out, jsonpath.Extract(item, f.cfg.Fields))
			continue
		}
		for _, scope := range Expand(map[string]any{ItemScope: item}, f.cfg.Expand) {
			out = append(out, jsonpath.Extract(scope, f.cfg.Fields))
		}
	}
	return out
}

// Expand returns one scope per leaf of levels, in document order. Only object
// values open a child scope; a level that yields none drops the branch.
func Expand(scope map[string]any, levels []Level) []map[string]any {
	if len(levels) == 0 {
		return []map[string]any{scope}
	}
	level := levels[0]
	v, ok := level.Path.Resolve(scope)
	if !ok {
		return nil
	}
	values, isList := v.([]any)
	if !isList {
		values = []any{v}
	}
	var out []map[string]any
	for _, value := range values {
		if _, isObject := value.(map[string]any); !isObject {
			continue
		}
		child := make(map[string]any, len(scope)+1)
		for k, sv := range scope {
			child[k] = sv
		}
		child[level.Name] = value
		out = append(out, Expand(child, levels[1:])...)
	}
	return out
}

func (f *Fetcher) archiveBatch(ctx context.Context, req Request, n int, doc any) {
	if f.archive == nil {
		return
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return
	}
	runID := req.RunID
	if runID == "" {
		runID = "adhoc"
	}
	path := fmt.Sprintf("raw/%s/%s/batch-%04d.json", runID, req.Category.ID, n)
	if _, err := f.archive.PutObject(ctx, path, "application/json", bytes.NewReader(body)); err != nil {
		f.logger.Warn("archive batch failed", zap.String("path", path), zap.Error(err))
	}
}

// Partition splits ids into contiguous chunks of at most size.
func Partition(ids []string, size int) [][]string {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var out [][]string
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		out = append(out, ids[start:end])
	}
	return out
}

// BuildURL sets param on endpoint to the comma joined ids, replacing any
// value already present.
func BuildURL(endpoint, param string, ids []string) (string, error) {
	if endpoint == "" {
		return "", fmt.Errorf("empty endpoint")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set(param, strings.Join(ids, ","))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
