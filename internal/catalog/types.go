package catalog

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// EmbeddingDim is the fixed dimensionality of every stored vector.
const EmbeddingDim = 768

// Reserved category classes. Anything else is free text; the clothing class is stored as null.
const (
	ClassFootwear  = "footwear"
	ClassAccessory = "accessory"
)

// Errors shared by adapters and the pipeline.
var (
	ErrRendererUnavailable = errors.New("renderer unavailable")
	ErrModelUnavailable    = errors.New("embedding model unavailable")
	ErrNoCategories        = errors.New("no categories configured")
	ErrStoreDisabled       = errors.New("row store disabled")
)

// Category is a configured catalog category after template expansion.
type Category struct {
	ID            string
	Key           string
	Section       string
	Gender        string
	Class         string
	Endpoint      string
	DiscoveryURLs []string
	PageURL       string
	FallbackIDs   []string
}

// Label returns the human category label derived from the configured key.
func (c Category) Label() string {
	if c.Key == "" {
		return ""
	}
	words := strings.Fields(strings.ReplaceAll(c.Key, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

// FetchRequest describes a single HTTP GET.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse captures the result of a fetch.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Vector is an embedding. It serializes to the pgvector text form.
type Vector []float32

// String renders the vector as "[a,b,c]".
func (v Vector) String() string {
	var b strings.Builder
	b.Grow(len(v) * 10)
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// MarshalJSON encodes the vector as its pgvector literal, or null when empty.
func (v Vector) MarshalJSON() ([]byte, error) {
	if len(v) == 0 {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(v.String())), nil
}

// Product is the canonical row persisted to the products table.
type Product struct {
	ID               string         `json:"id" validate:"required,len=64,hexadecimal"`
	Source           string         `json:"source" validate:"required"`
	ProductURL       string         `json:"product_url" validate:"required,url"`
	AffiliateURL     *string        `json:"affiliate_url"`
	ImageURL         string         `json:"image_url" validate:"required,url"`
	AdditionalImages *string        `json:"additional_images"`
	Brand            string         `json:"brand"`
	Merchant         string         `json:"merchant"`
	Title            string         `json:"title" validate:"required"`
	Description      *string        `json:"description"`
	Category         *string        `json:"category"`
	Gender           *string        `json:"gender"`
	Price            *string        `json:"price"`
	Currency         string         `json:"currency" validate:"omitempty,len=3"`
	Metadata         map[string]any `json:"metadata"`
	Size             *string        `json:"size"`
	SecondHand       bool           `json:"second_hand"`
	Embedding        Vector         `json:"embedding" validate:"len=768"`
	InfoEmbedding    Vector         `json:"info_embedding,omitempty" validate:"omitempty,len=768"`
}
