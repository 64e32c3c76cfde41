package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/foro/internal/remote"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_InsertAssignsID(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	row, err := store.Insert(ctx, "news", remote.Row{"id": "client-chosen", "content": "hi", "createdAt": 100})
	require.NoError(t, err)

	id, ok := row["id"].(string)
	require.True(t, ok)
	assert.NotEmpty(t, id)
	assert.NotEqual(t, "client-chosen", id)
	assert.Equal(t, "hi", row["content"])
	assert.Equal(t, float64(100), row["createdAt"])

	other, err := store.Insert(ctx, "news", remote.Row{"content": "yo"})
	require.NoError(t, err)
	assert.NotEqual(t, id, other["id"])
}

func TestStore_SelectOrdersByColumn(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, ts := range []int64{200, 100, 300} {
		_, err := store.Insert(ctx, "news", remote.Row{"createdAt": ts})
		require.NoError(t, err)
	}

	rows, err := store.Select(ctx, "news", remote.Order{Column: "createdAt", Direction: remote.Descending})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, float64(300), rows[0]["createdAt"])
	assert.Equal(t, float64(200), rows[1]["createdAt"])
	assert.Equal(t, float64(100), rows[2]["createdAt"])

	rows, err = store.Select(ctx, "news", remote.Order{Column: "createdAt"})
	require.NoError(t, err)
	assert.Equal(t, float64(100), rows[0]["createdAt"])
}

func TestStore_SelectUnknownTable(t *testing.T) {
	store := setupTestStore(t)

	rows, err := store.Select(context.Background(), "missing", remote.Order{})
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.NotNil(t, rows)
}

func TestStore_UpdatePatchesRow(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	row, err := store.Insert(ctx, "news", remote.Row{"content": "hi", "userName": "ana"})
	require.NoError(t, err)
	id := row["id"].(string)

	updated, err := store.Update(ctx, "news", id, remote.Row{"content": "edited", "id": "ignored"})
	require.NoError(t, err)
	assert.Equal(t, id, updated["id"])
	assert.Equal(t, "edited", updated["content"])
	assert.Equal(t, "ana", updated["userName"])

	rows, err := store.Select(ctx, "news", remote.Order{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "edited", rows[0]["content"])
}

func TestStore_UpdateNotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Update(ctx, "news", "nope", remote.Row{"content": "x"})
	assert.True(t, errors.Is(err, remote.ErrNotFound))

	_, err = store.Insert(ctx, "news", remote.Row{"content": "hi"})
	require.NoError(t, err)
	_, err = store.Update(ctx, "news", "nope", remote.Row{"content": "x"})
	assert.True(t, errors.Is(err, remote.ErrNotFound))
}

func TestStore_UploadAndReadBlob(t *testing.T) {
	store := setupTestStore(t)
	store.SetPublicBaseURL("https://media.test/")
	ctx := context.Background()

	url, err := store.UploadBlob(ctx, "chat-media", "images/1_photo.jpeg", []byte{0xff, 0xd8}, "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "https://media.test/storage/v1/object/public/chat-media/images/1_photo.jpeg", url)

	data, contentType, err := store.ReadBlob(ctx, "chat-media", "images/1_photo.jpeg")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xd8}, data)
	assert.Equal(t, "image/jpeg", contentType)

	// upsert replaces the object
	_, err = store.UploadBlob(ctx, "chat-media", "images/1_photo.jpeg", []byte("new"), "")
	require.NoError(t, err)
	data, contentType, err = store.ReadBlob(ctx, "chat-media", "images/1_photo.jpeg")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), data)
	assert.Equal(t, "application/octet-stream", contentType)
}

func TestStore_BlobErrors(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.UploadBlob(ctx, "chat-media", "empty", nil, "text/plain")
	assert.Error(t, err)

	_, _, err = store.ReadBlob(ctx, "chat-media", "missing")
	assert.True(t, errors.Is(err, remote.ErrBlobNotFound))
}

func TestStore_ReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "persist.db")
	ctx := context.Background()

	store, err := NewStore(dbPath)
	require.NoError(t, err)
	_, err = store.Insert(ctx, "news", remote.Row{"content": "persisted"})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = NewStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	rows, err := store.Select(ctx, "news", remote.Order{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "persisted", rows[0]["content"])
}
