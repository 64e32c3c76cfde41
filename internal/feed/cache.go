package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pders01/foro/internal/debuglog"
	"github.com/pders01/foro/internal/remote"
	"github.com/pders01/foro/internal/storage"
)

// DefaultTable is the table entries live in.
const DefaultTable = "news"

// Observer receives the full entry list, newest first. The slice is a copy
// owned by the observer.
type Observer func(entries []storage.Entry)

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	id     uint64
	active atomic.Bool
	cache  *Cache
	fn     Observer
}

// Unsubscribe stops further notifications. Calling it more than once is a no-op,
// and it is safe to call from inside the observer.
func (s *Subscription) Unsubscribe() {
	if !s.active.CompareAndSwap(true, false) {
		return
	}
	s.cache.obsMu.Lock()
	delete(s.cache.observers, s.id)
	s.cache.obsMu.Unlock()
}

// Cache holds the session's view of the feed and broadcasts every change to
// its observers. The store stays the durability authority; the cache is only
// brought back in line with it by Refresh.
//
// Remote calls run without holding the lock, so concurrent posts land in
// completion order. Mutation and broadcast happen under mu, so observers see
// states in the order they were produced. Observers run with mu held and must
// not call back into the cache other than Unsubscribe.
type Cache struct {
	store remote.Store
	table string

	mu      sync.Mutex
	entries []storage.Entry

	obsMu     sync.Mutex
	observers map[uint64]*Subscription
	nextID    uint64
}

func NewCache(store remote.Store, table string) *Cache {
	if table == "" {
		table = DefaultTable
	}
	return &Cache{
		store:     store,
		table:     table,
		entries:   []storage.Entry{},
		observers: make(map[uint64]*Subscription),
	}
}

// Entries returns a copy of the cached list.
func (c *Cache) Entries() []storage.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Refresh replaces the cached list with the store's, newest first.
// On failure the cached list is left as it was.
func (c *Cache) Refresh(ctx context.Context) ([]storage.Entry, error) {
	rows, err := c.store.Select(ctx, c.table, remote.Order{
		Column:    storage.ColumnCreatedAt,
		Direction: remote.Descending,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRemoteFetch, err)
	}

	entries, err := storage.EntriesFromRows(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRemoteFetch, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = entries
	debuglog.Debugf("feed refreshed: %d entries", len(entries))
	c.broadcastLocked()
	return c.snapshotLocked(), nil
}

// Post stores a new entry and adds the stored version, with its assigned id,
// to the cache. Entries are kept newest first, so an entry stamped "now" lands
// at the head. A back-dated entry is placed by its createdAt, after every newer
// one, as the next Refresh would order it.
func (c *Cache) Post(ctx context.Context, entry storage.Entry) (storage.Entry, error) {
	entry.ID = ""
	row, err := c.store.Insert(ctx, c.table, entry.Row())
	if err != nil {
		return storage.Entry{}, fmt.Errorf("%w: %w", ErrRemotePost, err)
	}

	stored, err := storage.EntryFromRow(row)
	if err != nil {
		return storage.Entry{}, fmt.Errorf("%w: %w", ErrRemotePost, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = insertSorted(c.entries, stored)
	debuglog.WithFields(map[string]any{"id": stored.ID}).Debugf("entry posted")
	c.broadcastLocked()
	return stored, nil
}

// Edit rewrites the content of entry id in the store. If the entry is cached its
// content is patched in place and observers are notified; otherwise the cache is
// left untouched even though the store was updated.
//
// An update that matches no stored row is not an error: the hosted service
// answers it with an empty result, and the cache is handled the same way.
func (c *Cache) Edit(ctx context.Context, id, content string) error {
	_, err := c.store.Update(ctx, c.table, id, remote.Row{storage.ColumnContent: content})
	switch {
	case errors.Is(err, remote.ErrNotFound):
		debuglog.WithFields(map[string]any{"id": id}).Warnf("edit matched no stored entry")
	case err != nil:
		return fmt.Errorf("%w: %w", ErrRemoteEdit, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.entries {
		if c.entries[i].ID == id {
			c.entries[i].Content = content
			c.broadcastLocked()
			return nil
		}
	}
	debuglog.WithFields(map[string]any{"id": id}).Warnf("edited entry is not cached")
	return nil
}

// Subscribe registers fn and immediately calls it with the current list.
func (c *Cache) Subscribe(fn Observer) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.obsMu.Lock()
	c.nextID++
	sub := &Subscription{id: c.nextID, cache: c, fn: fn}
	sub.active.Store(true)
	c.observers[sub.id] = sub
	c.obsMu.Unlock()

	fn(c.snapshotLocked())
	return sub
}

// ObserverCount reports the number of active subscriptions.
func (c *Cache) ObserverCount() int {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	return len(c.observers)
}

func (c *Cache) broadcastLocked() {
	c.obsMu.Lock()
	subs := make([]*Subscription, 0, len(c.observers))
	for _, s := range c.observers {
		subs = append(subs, s)
	}
	c.obsMu.Unlock()

	for _, s := range subs {
		if !s.active.Load() {
			continue
		}
		s.fn(c.snapshotLocked())
	}
}

func (c *Cache) snapshotLocked() []storage.Entry {
	out := make([]storage.Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// insertSorted places e before the first entry that is not newer than it.
func insertSorted(entries []storage.Entry, e storage.Entry) []storage.Entry {
	i := 0
	for i < len(entries) && entries[i].CreatedAt > e.CreatedAt {
		i++
	}
	entries = append(entries, storage.Entry{})
	copy(entries[i+1:], entries[i:])
	entries[i] = e
	return entries
}
