package embedding

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-ingest/internal/catalog"
)

func TestServiceEmbedImageAndText(t *testing.T) {
	t.Parallel()

	var probes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/healthz":
			probes.Add(1)
			w.WriteHeader(http.StatusOK)
		case "/embed":
			var req embedRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if req.Mode == "image" {
				raw, err := base64.StdEncoding.DecodeString(req.Image)
				if err != nil {
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
				img, err := DecodeImage(raw)
				if err != nil || img.Bounds().Dx() > 16 {
					http.Error(w, "bad image", http.StatusBadRequest)
					return
				}
			}
			_ = json.NewEncoder(w).Encode(embedResponse{Embedding: make([]float32, catalog.EmbeddingDim)})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	svc := NewService(ServiceConfig{BaseURL: srv.URL + "/", InputSize: 16, Timeout: 5 * time.Second}, nil)
	vec, err := svc.EmbedImage(context.Background(), image.NewRGBA(image.Rect(0, 0, 64, 32)))
	require.NoError(t, err)
	assert.Len(t, vec, catalog.EmbeddingDim)

	vec, err = svc.EmbedText(context.Background(), "Denim jacket")
	require.NoError(t, err)
	assert.Len(t, vec, catalog.EmbeddingDim)
	assert.Equal(t, int32(1), probes.Load())
}

func TestServiceCachesInitFailure(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	svc := NewService(ServiceConfig{BaseURL: srv.URL}, srv.Client())
	for range 3 {
		_, err := svc.EmbedImage(context.Background(), image.NewRGBA(image.Rect(0, 0, 2, 2)))
		require.ErrorIs(t, err, catalog.ErrModelUnavailable)
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestServiceWithoutURLIsUnavailable(t *testing.T) {
	t.Parallel()

	_, err := NewService(ServiceConfig{}, nil).EmbedText(context.Background(), "x")
	require.ErrorIs(t, err, catalog.ErrModelUnavailable)
}

func TestServiceEmbedErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/embed" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	_, err := NewService(ServiceConfig{BaseURL: srv.URL}, nil).EmbedText(context.Background(), "x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, catalog.ErrModelUnavailable)
}
