package gcs_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	gcsclient "cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/epg-crawler/internal/storage/gcs"
)

func newTestStore(t *testing.T, handler http.Handler, cfg gcs.Config) *gcs.BlobStore {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := gcsclient.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := gcs.New(client, cfg)
	require.NoError(t, err)
	return store
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := gcs.New(nil, gcs.Config{Bucket: "b"})
	assert.Error(t, err)

	client, err := gcsclient.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer func() { _ = client.Close() }()
	_, err = gcs.New(client, gcs.Config{})
	assert.Error(t, err)
}

func TestObjectNameAppliesPrefix(t *testing.T) {
	t.Parallel()

	client, err := gcsclient.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	store, err := gcs.New(client, gcs.Config{Bucket: "b", Prefix: "/epg/prod/"})
	require.NoError(t, err)
	assert.Equal(t, "epg/prod/channels/1/26_10_14.json", store.ObjectName("channels/1/26_10_14.json"))

	bare, err := gcs.New(client, gcs.Config{Bucket: "b"})
	require.NoError(t, err)
	assert.Equal(t, "genres/1/26_10_14.json", bare.ObjectName("/genres/1/26_10_14.json"))
}

func TestPutObjectUploadsSnapshot(t *testing.T) {
	t.Parallel()

	const objectName = "epg/channels/1001/26_10_14.json"
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/guide-bucket/o")
		assert.Equal(t, objectName, r.URL.Query().Get("name"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), `{"plan":[]}`)

		fmt.Fprintln(w, `{ "name": "`+objectName+`" }`)
	})
	store := newTestStore(t, handler, gcs.Config{Bucket: "guide-bucket", Prefix: "epg"})

	uri, err := store.PutObject(context.Background(), "channels/1001/26_10_14.json", "application/json", strings.NewReader(`{"plan":[]}`))
	require.NoError(t, err)
	assert.Equal(t, "gs://guide-bucket/"+objectName, uri)
}

func TestPutObjectReportsServerError(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	store := newTestStore(t, handler, gcs.Config{Bucket: "guide-bucket"})

	_, err := store.PutObject(context.Background(), "genres/1/26_10_14.json", "", strings.NewReader("{}"))
	assert.Error(t, err)
}

func TestPutObjectRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, http.NotFoundHandler(), gcs.Config{Bucket: "guide-bucket"})
	_, err := store.PutObject(context.Background(), "  ", "", strings.NewReader("{}"))
	assert.Error(t, err)
}
