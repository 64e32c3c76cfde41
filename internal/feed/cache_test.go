package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/foro/internal/remote"
	"github.com/pders01/foro/internal/storage"
)

var errUnavailable = errors.New("service unavailable")

// fakeStore is an in-memory remote.Store with switchable failures.
type fakeStore struct {
	mu        sync.Mutex
	rows      []remote.Row
	nextID    int
	failFetch bool
	failPost  bool
	failEdit  bool
	updates   []string
}

func (f *fakeStore) Select(_ context.Context, _ string, order remote.Order) ([]remote.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFetch {
		return nil, errUnavailable
	}
	out := make([]remote.Row, len(f.rows))
	copy(out, f.rows)
	// rows are kept newest first
	if order.Direction == remote.Ascending {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

func (f *fakeStore) Insert(_ context.Context, _ string, row remote.Row) (remote.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPost {
		return nil, errUnavailable
	}
	f.nextID++
	stored := remote.Row{}
	for k, v := range row {
		stored[k] = v
	}
	stored["id"] = fmt.Sprint(f.nextID)
	f.rows = append([]remote.Row{stored}, f.rows...)
	return stored, nil
}

func (f *fakeStore) Update(_ context.Context, _ string, id string, patch remote.Row) (remote.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failEdit {
		return nil, errUnavailable
	}
	f.updates = append(f.updates, id)
	for _, r := range f.rows {
		if r["id"] == id {
			for k, v := range patch {
				r[k] = v
			}
			return r, nil
		}
	}
	return nil, remote.ErrNotFound
}

func (f *fakeStore) UploadBlob(context.Context, string, string, []byte, string) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeStore) seed(rows ...remote.Row) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, rows...)
	f.nextID += len(rows)
}

func seededCache(t *testing.T) (*Cache, *fakeStore) {
	t.Helper()
	store := &fakeStore{}
	store.seed(remote.Row{"id": "1", "userId": "u1", "userName": "ana", "content": "hi", "createdAt": int64(100)})
	cache := NewCache(store, "")
	_, err := cache.Refresh(context.Background())
	require.NoError(t, err)
	return cache, store
}

func TestNewCacheStartsEmpty(t *testing.T) {
	cache := NewCache(&fakeStore{}, "")

	assert.Equal(t, DefaultTable, cache.table)
	assert.NotNil(t, cache.Entries())
	assert.Empty(t, cache.Entries())
}

func TestPostPrependsStoredEntry(t *testing.T) {
	cache, _ := seededCache(t)

	stored, err := cache.Post(context.Background(), storage.Entry{Content: "yo", CreatedAt: 200})
	require.NoError(t, err)
	assert.Equal(t, "2", stored.ID)

	entries := cache.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "2", entries[0].ID)
	assert.Equal(t, int64(200), entries[0].CreatedAt)
	assert.Equal(t, "1", entries[1].ID)
	assert.Equal(t, int64(100), entries[1].CreatedAt)
}

func TestPostBackdatedEntryKeepsNewestFirst(t *testing.T) {
	cache, _ := seededCache(t)

	stored, err := cache.Post(context.Background(), storage.Entry{Content: "late", CreatedAt: 50})
	require.NoError(t, err)

	entries := cache.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "1", entries[0].ID)
	assert.Equal(t, stored.ID, entries[1].ID)

	// equal timestamps go ahead of the existing entry
	tied, err := cache.Post(context.Background(), storage.Entry{Content: "tie", CreatedAt: 100})
	require.NoError(t, err)
	assert.Equal(t, tied.ID, cache.Entries()[0].ID)
}

func TestPostIgnoresClientID(t *testing.T) {
	cache, _ := seededCache(t)

	stored, err := cache.Post(context.Background(), storage.Entry{ID: "mine", Content: "yo", CreatedAt: 200})
	require.NoError(t, err)
	assert.Equal(t, "2", stored.ID)
}

func TestPostSequenceKeepsOrderAndLength(t *testing.T) {
	cache, _ := seededCache(t)
	ctx := context.Background()

	stamps := []int64{300, 150, 500, 500, 120}
	for _, ts := range stamps {
		_, err := cache.Post(ctx, storage.Entry{Content: "x", CreatedAt: ts})
		require.NoError(t, err)
	}

	entries := cache.Entries()
	assert.Len(t, entries, len(stamps)+1)
	for i := 1; i < len(entries); i++ {
		assert.GreaterOrEqual(t, entries[i-1].CreatedAt, entries[i].CreatedAt, "entries must be newest first")
	}
}

func TestFailedPostLeavesCacheUnchanged(t *testing.T) {
	cache, store := seededCache(t)
	before := cache.Entries()

	var notified int
	sub := cache.Subscribe(func([]storage.Entry) { notified++ })
	defer sub.Unsubscribe()

	store.failPost = true
	_, err := cache.Post(context.Background(), storage.Entry{Content: "yo", CreatedAt: 200})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRemotePost))
	assert.True(t, errors.Is(err, errUnavailable))
	assert.Equal(t, before, cache.Entries())
	assert.Equal(t, 1, notified, "only the replay on subscribe")
}

func TestRefreshReplacesList(t *testing.T) {
	cache, store := seededCache(t)
	store.seed(remote.Row{"id": "9", "content": "older", "createdAt": float64(50)})

	entries, err := cache.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "1", entries[0].ID)
	assert.Equal(t, "9", entries[1].ID)
	assert.Equal(t, entries, cache.Entries())
}

func TestFailedRefreshLeavesCacheUnchanged(t *testing.T) {
	cache, store := seededCache(t)
	before := cache.Entries()

	store.failFetch = true
	_, err := cache.Refresh(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRemoteFetch))
	assert.Equal(t, before, cache.Entries())
}

func TestRefreshRejectsUndecodableRows(t *testing.T) {
	cache, store := seededCache(t)
	before := cache.Entries()
	store.seed(remote.Row{"content": "no id"})

	_, err := cache.Refresh(context.Background())
	assert.True(t, errors.Is(err, ErrRemoteFetch))
	assert.Equal(t, before, cache.Entries())
}

func TestRefreshThenSubscribeReplaysLatest(t *testing.T) {
	cache, _ := seededCache(t)
	refreshed, err := cache.Refresh(context.Background())
	require.NoError(t, err)

	var got [][]storage.Entry
	sub := cache.Subscribe(func(entries []storage.Entry) { got = append(got, entries) })
	defer sub.Unsubscribe()

	require.Len(t, got, 1)
	assert.Equal(t, refreshed, got[0])
}

func TestEditCachedEntry(t *testing.T) {
	cache, store := seededCache(t)
	ctx := context.Background()
	_, err := cache.Post(ctx, storage.Entry{AuthorID: "u2", Content: "yo", CreatedAt: 200})
	require.NoError(t, err)
	before := cache.Entries()

	var notified []storage.Entry
	sub := cache.Subscribe(func(entries []storage.Entry) { notified = entries })
	defer sub.Unsubscribe()

	require.NoError(t, cache.Edit(ctx, "1", "hello"))

	after := cache.Entries()
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.Equal(t, before[i].AuthorID, after[i].AuthorID)
		assert.Equal(t, before[i].AuthorName, after[i].AuthorName)
		assert.Equal(t, before[i].CreatedAt, after[i].CreatedAt)
	}
	assert.Equal(t, "hello", after[1].Content)
	assert.Equal(t, "yo", after[0].Content)
	assert.Equal(t, after, notified)
	assert.Equal(t, []string{"1"}, store.updates)
}

func TestEditUncachedEntryLeavesCacheAlone(t *testing.T) {
	cache, store := seededCache(t)
	// present remotely, absent from the cache
	store.seed(remote.Row{"id": "7", "content": "remote only", "createdAt": float64(10)})
	before := cache.Entries()

	var notified int
	sub := cache.Subscribe(func([]storage.Entry) { notified++ })
	defer sub.Unsubscribe()

	require.NoError(t, cache.Edit(context.Background(), "7", "changed"))
	assert.Equal(t, before, cache.Entries())
	assert.Equal(t, 1, notified)
	assert.Equal(t, []string{"7"}, store.updates)
}

func TestEditUnmatchedIDSucceeds(t *testing.T) {
	cache, store := seededCache(t)
	before := cache.Entries()

	var notified int
	sub := cache.Subscribe(func([]storage.Entry) { notified++ })
	defer sub.Unsubscribe()

	require.NoError(t, cache.Edit(context.Background(), "missing", "x"))
	assert.Equal(t, before, cache.Entries())
	assert.Equal(t, 1, notified)
	assert.Equal(t, []string{"missing"}, store.updates)
}

func TestEditCachedButNotStoredPatchesCache(t *testing.T) {
	cache, store := seededCache(t)
	// the row disappears remotely after the refresh
	store.mu.Lock()
	store.rows = nil
	store.mu.Unlock()

	require.NoError(t, cache.Edit(context.Background(), "1", "patched"))
	require.Len(t, cache.Entries(), 1)
	assert.Equal(t, "patched", cache.Entries()[0].Content)
}

func TestEditEmptyRepresentationFromService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(`[{"id":"1","userId":"u1","userName":"ana","userPhoto":"","content":"hi","createdAt":100}]`))
		case http.MethodPatch:
			_, _ = w.Write([]byte(`[]`))
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	defer srv.Close()

	cache := NewCache(remote.NewClient(srv.URL, "", 5*time.Second), "")
	_, err := cache.Refresh(context.Background())
	require.NoError(t, err)
	before := cache.Entries()

	require.NoError(t, cache.Edit(context.Background(), "nope", "x"))
	assert.Equal(t, before, cache.Entries())
}

func TestEditFailures(t *testing.T) {
	cache, store := seededCache(t)
	before := cache.Entries()

	store.failEdit = true
	err := cache.Edit(context.Background(), "1", "x")
	assert.True(t, errors.Is(err, ErrRemoteEdit))
	assert.True(t, errors.Is(err, errUnavailable))
	assert.Equal(t, before, cache.Entries())
}

func TestTwoObserversSeeSamePost(t *testing.T) {
	cache, _ := seededCache(t)

	var first, second []storage.Entry
	s1 := cache.Subscribe(func(entries []storage.Entry) { first = entries })
	s2 := cache.Subscribe(func(entries []storage.Entry) { second = entries })
	defer s1.Unsubscribe()
	defer s2.Unsubscribe()

	stored, err := cache.Post(context.Background(), storage.Entry{Content: "yo", CreatedAt: 200})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	require.Len(t, first, 2)
	var count int
	for _, e := range first {
		if e.ID == stored.ID {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestObserversGetCopies(t *testing.T) {
	cache, _ := seededCache(t)

	sub := cache.Subscribe(func(entries []storage.Entry) {
		if len(entries) > 0 {
			entries[0].Content = "mutated by observer"
		}
	})
	defer sub.Unsubscribe()

	assert.Equal(t, "hi", cache.Entries()[0].Content)
}

func TestUnsubscribe(t *testing.T) {
	cache, _ := seededCache(t)
	ctx := context.Background()

	var calls int
	sub := cache.Subscribe(func([]storage.Entry) { calls++ })
	assert.Equal(t, 1, cache.ObserverCount())

	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Equal(t, 0, cache.ObserverCount())

	_, err := cache.Post(ctx, storage.Entry{Content: "yo", CreatedAt: 200})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestUnsubscribeFromInsideObserver(t *testing.T) {
	cache, _ := seededCache(t)
	ctx := context.Background()

	var calls int
	var sub *Subscription
	sub = cache.Subscribe(func([]storage.Entry) {
		calls++
		if sub != nil {
			sub.Unsubscribe()
		}
	})

	_, err := cache.Post(ctx, storage.Entry{Content: "a", CreatedAt: 200})
	require.NoError(t, err)
	_, err = cache.Post(ctx, storage.Entry{Content: "b", CreatedAt: 300})
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, cache.ObserverCount())
}

func TestConcurrentPosts(t *testing.T) {
	cache, _ := seededCache(t)
	ctx := context.Background()

	var mu sync.Mutex
	var last []storage.Entry
	sub := cache.Subscribe(func(entries []storage.Entry) {
		mu.Lock()
		last = entries
		mu.Unlock()
	})
	defer sub.Unsubscribe()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := cache.Post(ctx, storage.Entry{Content: "x", CreatedAt: int64(1000 + i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, last, 21)
	assert.Equal(t, cache.Entries(), last)
}

func TestCacheWithBoltStore(t *testing.T) {
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "feed.db"))
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	cache := NewCache(store, "")
	first, err := cache.Post(ctx, storage.Entry{AuthorID: "u1", Content: "hi", CreatedAt: 100})
	require.NoError(t, err)
	second, err := cache.Post(ctx, storage.Entry{AuthorID: "u1", Content: "yo", CreatedAt: 200})
	require.NoError(t, err)
	require.NoError(t, cache.Edit(ctx, first.ID, "hi again"))

	other := NewCache(store, "")
	entries, err := other.Refresh(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, second.ID, entries[0].ID)
	assert.Equal(t, "hi again", entries[1].Content)
	assert.Equal(t, cache.Entries(), entries)
}
