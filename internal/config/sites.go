package config

import (
	"bufio"
	"bytes"
	"fmt"
	"net/http"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/catalog-ingest/internal/catalog"
	"github.com/JakeFAU/catalog-ingest/internal/jsonpath"
)

// Site describes one retailer: provenance defaults, API templates, the field
// map and the configured categories.
type Site struct {
	Source             string            `yaml:"source"`
	Brand              string            `yaml:"brand"`
	Merchant           string            `yaml:"merchant"`
	Currency           string            `yaml:"currency"`
	ImageHost          string            `yaml:"image_host"`
	ProductURLTemplate string            `yaml:"product_url_template"`
	Referer            string            `yaml:"referer"`
	Headers            map[string]string `yaml:"headers"`
	Prewarm            []string          `yaml:"prewarm"`
	API                APIConfig         `yaml:"api"`
	ImageRules         ImageRules        `yaml:"image_rules"`
	// Classes overrides the built-in category key to class table.
	Classes    map[string]string `yaml:"classes"`
	Categories []CategoryConfig  `yaml:"categories"`
}

// APIConfig holds endpoint templates. {base_url} and {category_id} are expanded.
type APIConfig struct {
	BaseURL            string        `yaml:"base_url"`
	ProductsEndpoint   string        `yaml:"products_endpoint"`
	DiscoveryTemplates []string      `yaml:"discovery_templates"`
	PageTemplate       string        `yaml:"page_template"`
	IDField            string        `yaml:"id_field"`
	IDParam            string        `yaml:"id_param"`
	ItemsPath          string        `yaml:"items_path"`
	ItemIDPath         string        `yaml:"item_id_path"`
	Fields             jsonpath.Spec `yaml:"field_map"`
	// Expand splits each item into variant scopes before field_map runs.
	Expand []ExpandLevel `yaml:"expand"`
}

// ExpandLevel names one variant level, such as a bundle member or a color.
type ExpandLevel struct {
	Name string        `yaml:"name"`
	Path jsonpath.Rule `yaml:"path"`
}

// reservedScope is the scope name the product item itself is bound to.
const reservedScope = "item"

// ImageRules describe which retailer image URLs are worth embedding. The
// zero value means the built-in defaults.
type ImageRules struct {
	RetailerMarker string `yaml:"retailer_marker"`
	StaticPrefix   string `yaml:"static_prefix"`
	AssetToken     string `yaml:"asset_token"`
	MinLength      int    `yaml:"min_length"`
}

// IsZero reports whether no rule is configured.
func (r ImageRules) IsZero() bool {
	return r == ImageRules{}
}

// CategoryConfig is one category entry as written in the site file.
type CategoryConfig struct {
	ID           string   `yaml:"id"`
	Key          string   `yaml:"key"`
	Section      string   `yaml:"section"`
	Class        string   `yaml:"class"`
	ProductsURL  string   `yaml:"products_url"`
	DiscoveryURL string   `yaml:"discovery_url"`
	PageURL      string   `yaml:"page_url"`
	FallbackIDs  []string `yaml:"fallback_ids"`
}

var defaultClasses = map[string]string{
	"shoes":            catalog.ClassFootwear,
	"bags_coin_purses": catalog.ClassAccessory,
	"accessories":      catalog.ClassAccessory,
}

// LoadSite reads and validates a site file.
func LoadSite(path string) (Site, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Site{}, fmt.Errorf("read site file: %w", err)
	}
	return ParseSite(data)
}

// ParseSite decodes a site definition and rejects unknown keys.
func ParseSite(data []byte) (Site, error) {
	var s Site
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return Site{}, fmt.Errorf("decode site file: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Site{}, err
	}
	return s, nil
}

// Validate checks the fields every run depends on.
func (s Site) Validate() error {
	if s.Source == "" {
		return fmt.Errorf("site.source must be set")
	}
	if len(s.API.Fields) == 0 {
		return fmt.Errorf("site.api.field_map must not be empty")
	}
	levels := make(map[string]struct{}, len(s.API.Expand))
	for i, l := range s.API.Expand {
		if l.Name == "" || l.Name == reservedScope {
			return fmt.Errorf("site.api.expand[%d].name must be set and not %q", i, reservedScope)
		}
		if _, dup := levels[l.Name]; dup {
			return fmt.Errorf("site.api.expand[%d].name %s is duplicated", i, l.Name)
		}
		levels[l.Name] = struct{}{}
	}
	seen := make(map[string]struct{}, len(s.Categories))
	for i, c := range s.Categories {
		if c.ID == "" {
			return fmt.Errorf("site.categories[%d].id must be set", i)
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("site.categories[%d].id %s is duplicated", i, c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	return nil
}

// HTTPHeaders converts the configured extra headers.
func (s Site) HTTPHeaders() http.Header {
	h := make(http.Header, len(s.Headers))
	for k, v := range s.Headers {
		h.Set(k, v)
	}
	return h
}

// ExpandCategories turns the configured entries into catalog categories,
// keeping only ids in filter when filter is non-empty. Order follows the file.
func (s Site) ExpandCategories(filter []string) []catalog.Category {
	allowed := make(map[string]struct{}, len(filter))
	for _, id := range filter {
		allowed[id] = struct{}{}
	}
	out := make([]catalog.Category, 0, len(s.Categories))
	for _, c := range s.Categories {
		if len(allowed) > 0 {
			if _, ok := allowed[c.ID]; !ok {
				continue
			}
		}
		out = append(out, s.expand(c))
	}
	return out
}

func (s Site) expand(c CategoryConfig) catalog.Category {
	cat := catalog.Category{
		ID:          c.ID,
		Key:         categoryKey(c),
		Section:     c.Section,
		Gender:      c.Section,
		Class:       s.classFor(c),
		Endpoint:    c.ProductsURL,
		PageURL:     c.PageURL,
		FallbackIDs: append([]string(nil), c.FallbackIDs...),
	}
	if cat.Endpoint == "" && s.API.ProductsEndpoint != "" {
		cat.Endpoint = s.fill(s.API.ProductsEndpoint, c.ID)
	}
	if c.DiscoveryURL != "" {
		cat.DiscoveryURLs = append(cat.DiscoveryURLs, c.DiscoveryURL)
	}
	for _, tmpl := range s.API.DiscoveryTemplates {
		u := s.fill(tmpl, c.ID)
		if u != c.DiscoveryURL {
			cat.DiscoveryURLs = append(cat.DiscoveryURLs, u)
		}
	}
	if cat.PageURL == "" && s.API.PageTemplate != "" {
		cat.PageURL = s.fill(s.API.PageTemplate, c.ID)
	}
	return cat
}

func (s Site) fill(tmpl, categoryID string) string {
	return strings.NewReplacer(
		"{base_url}", strings.TrimRight(s.API.BaseURL, "/"),
		"{category_id}", categoryID,
	).Replace(tmpl)
}

// categoryKey prefixes the section so labels read "Women Shoes".
func categoryKey(c CategoryConfig) string {
	if c.Section == "" || strings.HasPrefix(c.Key, c.Section+"_") {
		return c.Key
	}
	if c.Key == "" {
		return c.Section
	}
	return c.Section + "_" + c.Key
}

func (s Site) classFor(c CategoryConfig) string {
	if c.Class != "" {
		return c.Class
	}
	if class, ok := s.Classes[c.Key]; ok {
		return class
	}
	return defaultClasses[c.Key]
}

// ClassTable maps every configured category id that carries a class to that
// class, so items can be classified by the categories they belong to.
func (s Site) ClassTable() map[string]string {
	out := make(map[string]string, len(s.Categories))
	for _, c := range s.Categories {
		if class := s.classFor(c); class != "" {
			out[c.ID] = class
		}
	}
	return out
}

// LoadCategoryFilter reads one category id per line. Blank lines and lines
// starting with # are ignored; trailing # comments are stripped.
func LoadCategoryFilter(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open categories file: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only

	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line != "" {
			ids = append(ids, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read categories file: %w", err)
	}
	return ids, nil
}
