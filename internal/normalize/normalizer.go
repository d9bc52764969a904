// Package normalize turns extracted raw items into canonical product rows.
//
// Normalize is pure: it performs no I/O and running a normalized row's fields
// back through it does not change them.
package normalize

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/JakeFAU/catalog-ingest/internal/catalog"
)

// UnknownTitle is used when an item carries no usable title.
const UnknownTitle = "Unknown Product"

// Raw item keys understood by Normalize.
const (
	KeyExternalID   = "external_id"
	KeyTitle        = "title"
	KeyDescription  = "description"
	KeyBrand        = "brand"
	KeyMerchant     = "merchant"
	KeyPrice        = "price"
	KeyCurrency     = "currency"
	KeyImageURL     = "image_url"
	KeyAllImages    = "all_image_urls"
	KeyProductURL   = "product_url"
	KeyAffiliateURL = "affiliate_url"
	KeyGender       = "gender"
	KeyCategory     = "category"
	KeyCategoryIDs  = "category_ids"
	KeySize         = "size"
	KeySizes        = "sizes"
	KeyMeta         = "_meta"
)

// Defaults fill in what items leave out.
type Defaults struct {
	Source   string
	Brand    string
	Merchant string
	Currency string
	// ImageHost resolves host-relative image paths, e.g. https://static.bershka.net.
	ImageHost string
	// ProductURLTemplate receives the title slug and the external id.
	ProductURLTemplate string
	// ClassByCategoryID maps retailer category ids to reserved classes. Any
	// match among an item's category_ids overrides its category label.
	ClassByCategoryID map[string]string
}

// Normalizer applies Defaults and derives row ids.
type Normalizer struct {
	defaults Defaults
	hasher   catalog.Hasher
}

// New builds a Normalizer.
func New(defaults Defaults, hasher catalog.Hasher) *Normalizer {
	if defaults.Currency == "" {
		defaults.Currency = "EUR"
	}
	return &Normalizer{defaults: defaults, hasher: hasher}
}

// Normalize maps raw onto a canonical row. The embedding is left empty.
func (n *Normalizer) Normalize(raw map[string]any) catalog.Product {
	d := n.defaults
	row := catalog.Product{
		Source:   d.Source,
		Brand:    firstString(raw[KeyBrand], d.Brand),
		Merchant: firstString(raw[KeyMerchant], d.Merchant),
		Title:    firstString(raw[KeyTitle], UnknownTitle),
		Currency: strings.ToUpper(firstString(raw[KeyCurrency], d.Currency)),
	}
	row.Description = optional(raw[KeyDescription])
	row.AffiliateURL = optional(raw[KeyAffiliateURL])

	externalID := scalarString(raw[KeyExternalID])
	row.ProductURL = firstString(raw[KeyProductURL], n.productURL(row.Title, externalID))

	images := imageList(raw[KeyAllImages], d.ImageHost)
	row.ImageURL = FixImageURL(firstString(raw[KeyImageURL], ""), d.ImageHost)
	if row.ImageURL == "" || isDataURI(row.ImageURL) {
		row.ImageURL = ""
		if len(images) > 0 {
			row.ImageURL = images[0]
		}
	}
	var extra []string
	for _, img := range images {
		if img != row.ImageURL {
			extra = append(extra, img)
		}
	}
	row.AdditionalImages = joined(extra, " , ")

	if p, ok := Price(raw[KeyPrice]); ok {
		row.Price = &p
	}
	if g, ok := Gender(scalarString(raw[KeyGender])); ok {
		row.Gender = &g
	}
	row.Category = n.category(raw)

	sizes := raw[KeySize]
	if sizes == nil {
		sizes = raw[KeySizes]
	}
	row.Size = joined(dedupe(flattenStrings(sizes)), ", ")

	if n.hasher != nil && row.ProductURL != "" {
		row.ID = catalog.ProductID(n.hasher, row.Source, row.ProductURL)
	}
	row.Metadata = metadata(raw, row, externalID)
	return row
}

// Category keeps the reserved classes and title-cases free text. Blank input
// is the default clothing class, stored as null.
func Category(raw string) *string {
	c := strings.TrimSpace(raw)
	if c == "" {
		return nil
	}
	switch lower := strings.ToLower(c); lower {
	case catalog.ClassFootwear, catalog.ClassAccessory:
		return &lower
	}
	label := catalog.Category{Key: c}.Label()
	return &label
}

func (n *Normalizer) category(raw map[string]any) *string {
	for _, id := range flattenStrings(raw[KeyCategoryIDs]) {
		if class, ok := n.defaults.ClassByCategoryID[id]; ok {
			return Category(class)
		}
	}
	return Category(scalarString(raw[KeyCategory]))
}

var slugUnsafe = regexp.MustCompile(`[^a-z0-9]+`)

// Slug lowercases s and joins alphanumeric runs with hyphens.
func Slug(s string) string {
	return strings.Trim(slugUnsafe.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

func (n *Normalizer) productURL(title, externalID string) string {
	if externalID == "" || n.defaults.ProductURLTemplate == "" {
		return ""
	}
	slug := Slug(title)
	if slug == "" || title == UnknownTitle {
		slug = "product"
	}
	return fmt.Sprintf(n.defaults.ProductURLTemplate, slug, externalID)
}

func metadata(raw map[string]any, row catalog.Product, externalID string) map[string]any {
	meta := map[string]any{}
	if explicit, ok := raw[KeyMeta].(map[string]any); ok {
		for k, v := range explicit {
			meta[k] = v
		}
	}
	setDefault := func(key string, value any) {
		if _, exists := meta[key]; !exists && value != nil {
			meta[key] = value
		}
	}
	setDefault("source", row.Source)
	setDefault("id", row.ID)
	if externalID != "" {
		setDefault("external_id", externalID)
	}
	if p, ok := raw[KeyPrice]; ok && p != nil {
		setDefault("original_price", p)
	}
	if c, ok := raw[KeyCurrency]; ok && c != nil {
		setDefault("original_currency", c)
	}
	return meta
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		for _, item := range t {
			if s := scalarString(item); s != "" {
				return s
			}
		}
	}
	return ""
}

func firstString(v any, fallback string) string {
	if s := scalarString(v); s != "" {
		return s
	}
	return fallback
}

func optional(v any) *string {
	if s := scalarString(v); s != "" {
		return &s
	}
	return nil
}

// flattenStrings collects trimmed, non-empty strings from arbitrarily nested
// lists. Joined strings are kept whole.
func flattenStrings(v any) []string {
	switch t := v.(type) {
	case []any:
		var out []string
		for _, item := range t {
			out = append(out, flattenStrings(item)...)
		}
		return out
	case []string:
		var out []string
		for _, item := range t {
			out = append(out, flattenStrings(item)...)
		}
		return out
	default:
		if s := scalarString(t); s != "" {
			return []string{s}
		}
		return nil
	}
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func joined(values []string, sep string) *string {
	if len(values) == 0 {
		return nil
	}
	s := strings.Join(values, sep)
	return &s
}
