package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-ingest/internal/catalog"
)

func TestLimiterWaitPacesSameHost(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 10, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://www.bershka.com/itxrest/a"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://www.bershka.com/itxrest/b"))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiterHostsAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 1, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://www.bershka.com/a"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://static.bershka.net/a.jpg"))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterHostOverrideAndCancel(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 0, HostRPS: map[string]float64{"WWW.BERSHKA.COM": 0.01}})
	ctx := context.Background()
	require.NoError(t, l.Wait(ctx, "https://www.bershka.com/a"))

	canceled, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	require.Error(t, l.Wait(canceled, "https://www.bershka.com/b"))

	for range 5 {
		require.NoError(t, l.Wait(ctx, "https://other.example/a"))
	}
}

type countingFetcher struct{ calls int }

func (c *countingFetcher) Fetch(context.Context, catalog.FetchRequest) (catalog.FetchResponse, error) {
	c.calls++
	return catalog.FetchResponse{StatusCode: 200}, nil
}

func TestWrap(t *testing.T) {
	t.Parallel()

	next := &countingFetcher{}
	assert.Same(t, next, Wrap(next, nil))

	wrapped := Wrap(next, New(Config{}))
	resp, err := wrapped.Fetch(context.Background(), catalog.FetchRequest{URL: "https://www.bershka.com/"})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 1, next.calls)
}
