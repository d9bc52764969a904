package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-ingest/internal/catalog"
	"github.com/JakeFAU/catalog-ingest/internal/config"
	"github.com/JakeFAU/catalog-ingest/internal/discovery"
)

func pngImage(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// retailer fakes the catalog API and the image host.
func retailer(t *testing.T) *httptest.Server {
	t.Helper()
	img := pngImage(t)
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/img/"):
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(img)
		case r.URL.Path == "/category/100/product":
			_, _ = w.Write([]byte(`{"productIds":[1,2]}`))
		case r.URL.Path == "/category/200/product":
			w.WriteHeader(http.StatusInternalServerError)
		case r.URL.Path == "/productsArray":
			var products []map[string]any
			for _, id := range strings.Split(r.URL.Query().Get("productIds"), ",") {
				products = append(products, map[string]any{
					"id":     id,
					"nameEn": "Denim Jacket " + id,
					"image":  fmt.Sprintf("%s/img/%s.png", srv.URL, id),
					"price":  "3999",
				})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"products": products})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func embedder(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": make([]float32, catalog.EmbeddingDim)})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeSite(t *testing.T, baseURL string) string {
	t.Helper()
	site := fmt.Sprintf(`
source: scraper
brand: Bershka
currency: EUR
product_url_template: "https://shop.test/%%s-c0p%%s.html"
api:
  base_url: %s
  products_endpoint: "{base_url}/productsArray?categoryId={category_id}"
  discovery_templates: ["{base_url}/category/{category_id}/product"]
  items_path: products
  field_map:
    external_id: id
    title: nameEn
    image_url: image
    price: price
categories:
  - {id: "100", key: jackets_trench, section: women}
  - {id: "200", key: shoes, section: women, fallback_ids: ["2"]}
  - {id: "300", key: coats, section: women}
`, baseURL)
	path := filepath.Join(t.TempDir(), "sites.yaml")
	require.NoError(t, os.WriteFile(path, []byte(site), 0o600))
	return path
}

func testConfig(sitesFile, embedURL string) config.Config {
	return config.Config{
		HTTP:      config.HTTPConfig{TimeoutSeconds: 5},
		Fetch:     config.FetchConfig{BatchSize: 50},
		Embedding: config.EmbeddingConfig{ServiceURL: embedURL, Workers: 2, MaxAttempts: 1, TimeoutSeconds: 5, InputSize: 16},
		Storage:   config.StorageConfig{Backend: config.StorageMemory},
		DB:        config.DBConfig{BatchSize: 100},
		SitesFile: sitesFile,
	}
}

// Not parallel: Build installs the global tracer provider.
func TestBuildAndRunEndToEnd(t *testing.T) {
	api := retailer(t)
	model := embedder(t)
	cfg := testConfig(writeSite(t, api.URL), model.URL)

	app, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { app.Close(context.Background()) })

	require.Len(t, app.Categories(), 3)
	summary := app.Run(context.Background())

	require.NoError(t, summary.Err)
	assert.Equal(t, 3, summary.Categories)
	assert.Equal(t, 1, summary.Skipped, "category 300 has no ids anywhere")
	assert.Equal(t, 2, summary.TotalCollected, "fallback id 2 was already seen")
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 0, summary.Saved, "no row store configured")
}

func TestDiscoverReportsStrategies(t *testing.T) {
	api := retailer(t)
	cfg := testConfig(writeSite(t, api.URL), "")

	app, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { app.Close(context.Background()) })

	results := app.Discover(context.Background())
	require.Len(t, results, 3)
	assert.Equal(t, discovery.StrategyDiscoveryAPI, results["100"].Strategy)
	assert.Equal(t, []string{"1", "2"}, results["100"].IDs)
	assert.True(t, results["200"].Fallback)
	assert.Empty(t, results["300"].IDs)
}

func TestBuildAppliesCategoryFilter(t *testing.T) {
	api := retailer(t)
	cfg := testConfig(writeSite(t, api.URL), "")
	filter := filepath.Join(t.TempDir(), "categories.txt")
	require.NoError(t, os.WriteFile(filter, []byte("# only shoes\n200\n"), 0o600))
	cfg.CategoriesFile = filter

	app, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { app.Close(context.Background()) })

	cats := app.Categories()
	require.Len(t, cats, 1)
	assert.Equal(t, catalog.ClassFootwear, cats[0].Class)
}

func TestBuildFailsWithoutSiteFile(t *testing.T) {
	cfg := testConfig(filepath.Join(t.TempDir(), "missing.yaml"), "")
	_, err := Build(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "site config")
}
