package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/JakeFAU/catalog-ingest/internal/catalog"
	"github.com/JakeFAU/catalog-ingest/internal/jsonpath"
)

// Strategy names, used as log fields and metric labels.
const (
	StrategyDirectURL    = "direct_url"
	StrategyDiscoveryAPI = "discovery_api"
	StrategyRenderedPage = "rendered_page"
	StrategyStatic       = "static_fallback"
)

// DirectURL reads identifiers from a ready-to-call products endpoint.
type DirectURL struct {
	api    JSONGetter
	items  jsonpath.Path
	itemID jsonpath.Path
}

// Name implements Strategy.
func (*DirectURL) Name() string { return StrategyDirectURL }

// Discover implements Strategy. It only applies when the category endpoint
// already carries product identifiers.
func (d *DirectURL) Discover(ctx context.Context, cat catalog.Category) ([]string, error) {
	if !HasProductIDs(cat.Endpoint) {
		return nil, nil
	}
	doc, err := d.api.GetJSON(ctx, cat.Endpoint)
	if err != nil {
		return nil, err
	}
	items, ok := d.items.Eval(doc)
	if !ok {
		return nil, nil
	}
	list, ok := items.([]any)
	if !ok {
		return nil, nil
	}
	var ids []string
	for _, item := range list {
		if v, ok := d.itemID.Eval(item); ok {
			ids = append(ids, idStrings(v)...)
		}
	}
	return ids, nil
}

// HasProductIDs reports whether endpoint carries a non-empty productIds query.
func HasProductIDs(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return false
	}
	return strings.TrimSpace(u.Query().Get(DefaultIDField)) != ""
}

// DiscoveryAPI asks the category metadata endpoints in order.
type DiscoveryAPI struct {
	api   JSONGetter
	field jsonpath.Path
}

// Name implements Strategy.
func (*DiscoveryAPI) Name() string { return StrategyDiscoveryAPI }

// Discover implements Strategy. A failing candidate URL demotes to the next one.
func (d *DiscoveryAPI) Discover(ctx context.Context, cat catalog.Category) ([]string, error) {
	var errs []error
	for _, candidate := range cat.DiscoveryURLs {
		doc, err := d.api.GetJSON(ctx, candidate)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if v, ok := d.field.Eval(doc); ok {
			if ids := idStrings(v); len(ids) > 0 {
				return ids, nil
			}
		}
	}
	return nil, errors.Join(errs...)
}

var productIDPattern = regexp.MustCompile(`\d{9,}`)

// RenderedPage renders the human category page and scrapes long numeric ids.
type RenderedPage struct {
	renderer catalog.Renderer
}

// Name implements Strategy.
func (*RenderedPage) Name() string { return StrategyRenderedPage }

// Discover implements Strategy.
func (r *RenderedPage) Discover(ctx context.Context, cat catalog.Category) ([]string, error) {
	if cat.PageURL == "" {
		return nil, nil
	}
	html, err := r.renderer.Render(ctx, cat.PageURL)
	if err != nil {
		return nil, err
	}
	return productIDPattern.FindAllString(html, -1), nil
}

// StaticFallback returns the identifiers listed in configuration.
type StaticFallback struct{}

// Name implements Strategy.
func (StaticFallback) Name() string { return StrategyStatic }

// Discover implements Strategy.
func (StaticFallback) Discover(_ context.Context, cat catalog.Category) ([]string, error) {
	return append([]string(nil), cat.FallbackIDs...), nil
}

// idStrings converts a decoded JSON value to identifier strings. Lists are
// flattened and comma separated strings are split.
func idStrings(v any) []string {
	switch t := v.(type) {
	case []any:
		var out []string
		for _, item := range t {
			out = append(out, idStrings(item)...)
		}
		return out
	case json.Number:
		return []string{numberID(t.String())}
	case float64:
		return []string{strconv.FormatFloat(t, 'f', -1, 64)}
	case string:
		var out []string
		for _, part := range strings.Split(t, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	default:
		if t == nil {
			return nil
		}
		return []string{fmt.Sprint(t)}
	}
}

func numberID(s string) string {
	if f, err := strconv.ParseFloat(s, 64); err == nil && strings.ContainsAny(s, ".eE") && f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return s
}
