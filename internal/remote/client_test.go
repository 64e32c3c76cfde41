package remote_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/foro/internal/api"
	"github.com/pders01/foro/internal/remote"
	"github.com/pders01/foro/internal/storage"
)

func newStandIn(t *testing.T, apiKey string) *httptest.Server {
	t.Helper()
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "remote.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	server := httptest.NewServer(api.NewRouter(store, api.Options{APIKey: apiKey}))
	t.Cleanup(server.Close)
	return server
}

func TestClientAgainstStandIn(t *testing.T) {
	server := newStandIn(t, "anon-key")
	client := remote.NewClient(server.URL+"/", "anon-key", 5*time.Second)
	ctx := context.Background()

	assert.Equal(t, server.URL, client.BaseURL())

	first, err := client.Insert(ctx, "news", remote.Row{"content": "hi", "createdAt": int64(100)})
	require.NoError(t, err)
	id, ok := first["id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, id)

	_, err = client.Insert(ctx, "news", remote.Row{"content": "yo", "createdAt": int64(200)})
	require.NoError(t, err)

	rows, err := client.Select(ctx, "news", remote.Order{Column: "createdAt", Direction: remote.Descending})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "yo", rows[0]["content"])

	updated, err := client.Update(ctx, "news", id, remote.Row{"content": "edited"})
	require.NoError(t, err)
	assert.Equal(t, "edited", updated["content"])

	_, err = client.Update(ctx, "news", "does-not-exist", remote.Row{"content": "x"})
	assert.True(t, errors.Is(err, remote.ErrNotFound))
}

func TestClientUploadBlob(t *testing.T) {
	server := newStandIn(t, "anon-key")
	client := remote.NewClient(server.URL, "anon-key", 5*time.Second)
	ctx := context.Background()

	publicURL, err := client.UploadBlob(ctx, "chat-media", "files/1_my notes.txt", []byte("hello"), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/storage/v1/object/public/chat-media/files/1_my%20notes.txt", publicURL)

	// upserts
	_, err = client.UploadBlob(ctx, "chat-media", "files/1_my notes.txt", []byte("hello again"), "text/plain")
	require.NoError(t, err)

	resp, err := http.Get(publicURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello again", string(body))
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))

	_, err = client.UploadBlob(ctx, "chat-media", "files/empty", nil, "")
	assert.Error(t, err)
}

func TestClientWrongKey(t *testing.T) {
	server := newStandIn(t, "anon-key")
	client := remote.NewClient(server.URL, "wrong", 5*time.Second)

	_, err := client.Select(context.Background(), "news", remote.Order{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestClientSendsHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		assert.Equal(t, "*", r.URL.Query().Get("select"))
		assert.Equal(t, "createdAt.desc", r.URL.Query().Get("order"))
		assert.Contains(t, r.Header.Get("User-Agent"), "foro/")
		w.Write([]byte(`[{"id":1,"content":"numeric id"}]`))
	}))
	defer server.Close()

	client := remote.NewClient(server.URL, "k", time.Second)
	rows, err := client.Select(context.Background(), "news", remote.Order{Column: "createdAt", Direction: remote.Descending})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, float64(1), rows[0]["id"])
}

func TestClientErrorBodyIsTruncated(t *testing.T) {
	long := make([]byte, 1000)
	for i := range long {
		long[i] = 'x'
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write(long)
	}))
	defer server.Close()

	client := remote.NewClient(server.URL, "", time.Second)
	_, err := client.Insert(context.Background(), "news", remote.Row{"content": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP error 503")
	assert.Contains(t, err.Error(), "(truncated)")
	assert.Less(t, len(err.Error()), 400)
}

func TestClientErrorBodyKeepsRunesWhole(t *testing.T) {
	// "x" shifts every two-byte rune so the preview limit falls inside one
	body := "x" + strings.Repeat("é", 300)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, body)
	}))
	defer server.Close()

	client := remote.NewClient(server.URL, "", time.Second)
	_, err := client.Select(context.Background(), "news", remote.Order{})
	require.Error(t, err)
	assert.True(t, utf8.ValidString(err.Error()), "error message split a rune: %q", err.Error())
	assert.Contains(t, err.Error(), "é... (truncated)")
}

func TestClientEmptyInsertRepresentation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := remote.NewClient(server.URL, "", time.Second)
	_, err := client.Insert(context.Background(), "news", remote.Row{"content": "x"})
	assert.Error(t, err)
}

func TestPublicURLAndParseOrder(t *testing.T) {
	assert.Equal(t, "https://x.supabase.co/storage/v1/object/public/chat-media/images/1_a%23b.jpg",
		remote.PublicURL("https://x.supabase.co/", "chat-media", "/images/1_a#b.jpg"))

	o, err := remote.ParseOrder("createdAt.desc")
	require.NoError(t, err)
	assert.Equal(t, remote.Order{Column: "createdAt", Direction: remote.Descending}, o)

	o, err = remote.ParseOrder("createdAt")
	require.NoError(t, err)
	assert.Equal(t, remote.Ascending, o.Direction)

	_, err = remote.ParseOrder(".desc")
	assert.Error(t, err)
}

func TestCompare(t *testing.T) {
	assert.Equal(t, -1, remote.Compare(float64(1), int64(2)))
	assert.Equal(t, 0, remote.Compare(int64(5), float64(5)))
	assert.Equal(t, 1, remote.Compare("b", "a"))
	assert.Equal(t, -1, remote.Compare(nil, "a"))
	assert.Equal(t, 1, remote.Compare(1, nil))
	assert.Equal(t, 0, remote.Compare(nil, nil))
}
