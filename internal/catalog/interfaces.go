package catalog

import (
	"context"
	"io"
	"time"
)

// Fetcher retrieves remote resources over HTTP.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (FetchResponse, error)
}

// Renderer loads a page in a browser and returns the rendered document.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// Hasher produces hex digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock provides wall time.
type Clock interface {
	Now() time.Time
}

// IDGenerator creates run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// ProductStore upserts canonical rows keyed by (source, product_url).
type ProductStore interface {
	Upsert(ctx context.Context, rows []Product) error
	Close()
}

// BlobStore archives raw payloads.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher emits notifications.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
