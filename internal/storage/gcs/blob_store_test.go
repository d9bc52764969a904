package gcs

import (
	"context"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = New(client, Config{})
	require.Error(t, err)

	store, err := New(client, Config{Bucket: "catalog-raw", Prefix: "/bershka/"})
	require.NoError(t, err)
	assert.Equal(t, "bershka/raw/run/77/batch-0000.json", store.ObjectName("raw/run/77/batch-0000.json"))
	assert.NoError(t, store.Close())

	_, err = store.PutObject(context.Background(), "", "", nil)
	require.Error(t, err)
}
