package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-ingest/internal/catalog"
)

type hasher struct{}

func (hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

const host = "https://static.bershka.net"

func newNormalizer() *Normalizer {
	return New(Defaults{
		Source:             "scraper",
		Brand:              "Bershka",
		Merchant:           "Bershka",
		ImageHost:          host,
		ProductURLTemplate: "https://www.bershka.com/us/%s-c0p%s.html",
	}, hasher{})
}

func TestNormalizeFullItem(t *testing.T) {
	t.Parallel()

	row := newNormalizer().Normalize(map[string]any{
		KeyExternalID: json.Number("205123456"),
		KeyTitle:      "Faux leather jacket",
		KeyPrice:      json.Number("3599"),
		KeyCurrency:   "EUR",
		KeyImageURL:   "//static.bershka.net/assets/public/a.jpg",
		KeyAllImages: []any{
			"/assets/public/a.jpg",
			"data:image/png;base64,AAAA",
			[]any{"https://static.bershka.net/assets/public/b.jpg", "/assets/public/b.jpg"},
		},
		KeyGender:   "women",
		KeyCategory: "women_jackets_trench",
		KeySizes:    []any{[]any{"XS", "S"}, "S", "M"},
		KeyMeta:     map[string]any{"category_id": "1010193212", "source": "override"},
	})

	assert.Equal(t, "https://www.bershka.com/us/faux-leather-jacket-c0p205123456.html", row.ProductURL)
	assert.Equal(t, catalog.ProductID(hasher{}, "scraper", row.ProductURL), row.ID)
	assert.Len(t, row.ID, 64)
	assert.Equal(t, "https://static.bershka.net/assets/public/a.jpg", row.ImageURL)
	require.NotNil(t, row.AdditionalImages)
	assert.Equal(t, "https://static.bershka.net/assets/public/b.jpg", *row.AdditionalImages)
	require.NotNil(t, row.Price)
	assert.Equal(t, "35.99", *row.Price)
	assert.Equal(t, "EUR", row.Currency)
	require.NotNil(t, row.Gender)
	assert.Equal(t, GenderWoman, *row.Gender)
	require.NotNil(t, row.Category)
	assert.Equal(t, "Women Jackets Trench", *row.Category)
	require.NotNil(t, row.Size)
	assert.Equal(t, "XS, S, M", *row.Size)
	assert.Equal(t, "Bershka", row.Brand)
	assert.False(t, row.SecondHand)

	assert.Equal(t, "override", row.Metadata["source"], "explicit _meta keys win")
	assert.Equal(t, "1010193212", row.Metadata["category_id"])
	assert.Equal(t, json.Number("3599"), row.Metadata["original_price"])
	assert.Equal(t, "EUR", row.Metadata["original_currency"])
	assert.Equal(t, "205123456", row.Metadata["external_id"])
}

func TestNormalizeSparseItem(t *testing.T) {
	t.Parallel()

	row := newNormalizer().Normalize(map[string]any{
		KeyProductURL: "https://www.bershka.com/us/p-c0p1.html",
		KeyAllImages:  []any{"/assets/public/only.jpg"},
		KeyPrice:      "n/a",
	})
	assert.Equal(t, UnknownTitle, row.Title)
	assert.Equal(t, "https://static.bershka.net/assets/public/only.jpg", row.ImageURL)
	assert.Nil(t, row.AdditionalImages)
	assert.Nil(t, row.Price)
	assert.Nil(t, row.Gender)
	assert.Nil(t, row.Category)
	assert.Nil(t, row.Size)
	assert.Nil(t, row.Description)
	assert.Equal(t, "scraper", row.Metadata["source"])
	assert.Equal(t, "n/a", row.Metadata["original_price"])
	assert.NotContains(t, row.Metadata, "original_currency", "defaulted currency is not an original value")
	assert.Equal(t, "EUR", row.Currency)
}

func TestNormalizeRecordsRawCurrency(t *testing.T) {
	t.Parallel()

	row := newNormalizer().Normalize(map[string]any{
		KeyProductURL: "https://www.bershka.com/us/p-c0p1.html",
		KeyCurrency:   "eur",
	})
	assert.Equal(t, "EUR", row.Currency)
	assert.Equal(t, "eur", row.Metadata["original_currency"])
}

func TestNormalizeClassifiesByCategoryIDs(t *testing.T) {
	t.Parallel()

	n := New(Defaults{
		Source:            "scraper",
		ClassByCategoryID: map[string]string{"1010193192": catalog.ClassFootwear, "1010193134": catalog.ClassAccessory},
	}, hasher{})

	tests := []struct {
		name string
		raw  map[string]any
		want *string
	}{
		{
			name: "related id wins over scraped category label",
			raw:  map[string]any{KeyCategory: "men_all", KeyCategoryIDs: []any{json.Number("1010834564"), json.Number("1010193192")}},
			want: ptr(catalog.ClassFootwear),
		},
		{
			name: "first matching id decides",
			raw:  map[string]any{KeyCategoryIDs: []any{"1010193134", "1010193192"}},
			want: ptr(catalog.ClassAccessory),
		},
		{
			name: "no match keeps label",
			raw:  map[string]any{KeyCategory: "men_all", KeyCategoryIDs: []any{json.Number("1")}},
			want: ptr("Men All"),
		},
		{
			name: "nothing is clothing",
			raw:  map[string]any{},
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			raw := tt.raw
			raw[KeyProductURL] = "https://www.bershka.com/us/p-c0p1.html"
			assert.Equal(t, tt.want, n.Normalize(raw).Category)
		})
	}
}

func ptr(s string) *string { return &s }

func TestNormalizeWithoutURLLeavesIDEmpty(t *testing.T) {
	t.Parallel()

	row := newNormalizer().Normalize(map[string]any{KeyTitle: "No id"})
	assert.Empty(t, row.ProductURL)
	assert.Empty(t, row.ID)
	assert.NotEmpty(t, row.Metadata)
}

func TestFixImageURLIdempotent(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"//static.bershka.net/a.jpg", "/assets/public/a.jpg", "https://x/a.jpg", " ", ""} {
		once := FixImageURL(in, host)
		assert.Equal(t, once, FixImageURL(once, host), in)
	}
	assert.Equal(t, "https://static.bershka.net/a.jpg", FixImageURL("//static.bershka.net/a.jpg", host))
	assert.Equal(t, "https://static.bershka.net/assets/a.jpg", FixImageURL("/assets/a.jpg", host+"/"))
}

func TestGender(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"women":  GenderWoman,
		"WOMEN":  GenderWoman,
		"Ladies": GenderWoman,
		"girls":  GenderWoman,
		"men":    GenderMan,
		"Man":    GenderMan,
		"boys":   GenderMan,
		"unisex": GenderUnisex,
		"kids":   "KIDS",
	}
	for in, want := range tests {
		got, ok := Gender(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := Gender("  ")
	assert.False(t, ok)
}

func TestCategory(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Category(""))
	assert.Equal(t, catalog.ClassFootwear, *Category("Footwear"))
	assert.Equal(t, catalog.ClassAccessory, *Category("accessory"))
	assert.Equal(t, "Women Sweatshirts Hoodies", *Category("women_sweatshirts_hoodies"))
	once := *Category("women_sweatshirts_hoodies")
	assert.Equal(t, once, *Category(once))
}

func TestSlug(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "baggy-jeans-90-s", Slug("Baggy jeans (90's)"))
	assert.Empty(t, Slug("!!"))
}
