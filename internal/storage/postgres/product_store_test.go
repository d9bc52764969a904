package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-ingest/internal/catalog"
)

func product(url string) catalog.Product {
	price := "29.9"
	return catalog.Product{
		ID:         strings.Repeat("a", 64),
		Source:     "scraper",
		ProductURL: url,
		ImageURL:   "https://static.bershka.net/assets/public/a.jpg",
		Brand:      "Bershka",
		Merchant:   "Bershka",
		Title:      "Jacket",
		Price:      &price,
		Currency:   "EUR",
		Metadata:   map[string]any{"source": "scraper"},
		Embedding:  catalog.Vector{0.5, 1},
	}
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestUpsertSingleRowArgs(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewProductStoreWithPool(mock, "products")
	require.NoError(t, err)

	p := product("https://www.bershka.com/us/jacket-c0p1.html")
	price := "29.9"
	vec := "[0.5,1]"
	mock.ExpectExec(`INSERT INTO products .* ON CONFLICT \(source, product_url\) DO UPDATE SET`).
		WithArgs(
			p.ID, p.Source, p.ProductURL, (*string)(nil), p.ImageURL, (*string)(nil),
			p.Brand, p.Merchant, p.Title, (*string)(nil), (*string)(nil), (*string)(nil),
			&price, "EUR", `{"source":"scraper"}`, (*string)(nil), false, &vec, (*string)(nil),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Upsert(context.Background(), []catalog.Product{p}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBatchUsesOneStatement(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewProductStoreWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectExec(`INSERT INTO products`).
		WithArgs(anyArgs(3 * len(columns))...).
		WillReturnResult(pgxmock.NewResult("INSERT", 3))
	rows := []catalog.Product{product("https://x/1"), product("https://x/2"), product("https://x/3")}
	require.NoError(t, store.Upsert(context.Background(), rows))
	require.NoError(t, mock.ExpectationsWereMet())

	q := store.upsertQuery(3)
	assert.Contains(t, q, "$57::text::vector")
	assert.NotContains(t, q, "$58")
	assert.Contains(t, q, "title = EXCLUDED.title")
	assert.NotContains(t, q, "product_url = EXCLUDED")
}

func TestUpsertWrapsErrors(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewProductStoreWithPool(mock, "products")
	require.NoError(t, err)

	boom := errors.New("duplicate key")
	mock.ExpectExec(`INSERT INTO products`).
		WithArgs(anyArgs(len(columns))...).
		WillReturnError(boom)
	err = store.Upsert(context.Background(), []catalog.Product{product("https://x/1")})
	require.ErrorIs(t, err, boom)
}

func TestNewProductStoreWithPoolValidation(t *testing.T) {
	t.Parallel()

	_, err := NewProductStoreWithPool(nil, "products")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewProductStoreWithPool(mock, "products; drop table x")
	require.Error(t, err)

	var nilStore *ProductStore
	require.ErrorIs(t, nilStore.Upsert(context.Background(), nil), catalog.ErrStoreDisabled)
}
