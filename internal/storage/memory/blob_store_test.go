package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitepdf/internal/crawler"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "job-1/site.pdf", "application/pdf", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, "memory://job-1/site.pdf", uri)

	payload[0] = 'C'
	rc, err := store.GetObject(context.Background(), "job-1/site.pdf")
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "content", string(got))
	assert.Equal(t, "application/pdf", store.ContentType("job-1/site.pdf"))
}

func TestBlobStoreGetObjectMissing(t *testing.T) {
	t.Parallel()

	_, err := NewBlobStore().GetObject(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, crawler.ErrObjectNotFound))
}

func TestBlobStoreList(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	ctx := context.Background()
	for _, p := range []string{"b/2", "a/1", "b/1"} {
		_, err := store.PutObject(ctx, p, "text/plain", bytes.NewReader([]byte(p)))
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"b/1", "b/2"}, store.List("b/"))
	assert.Len(t, store.List(""), 3)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestBlobStorePutObjectReadError(t *testing.T) {
	t.Parallel()

	_, err := NewBlobStore().PutObject(context.Background(), "x", "", failingReader{})
	require.Error(t, err)
	assert.Empty(t, NewBlobStore().List(""))
}
