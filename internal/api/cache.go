package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BuzzLyutic/todo-client/internal/worker"
)

var errEvicted = errors.New("cache entry evicted")

// FetchFunc performs the network call behind a cache entry.
type FetchFunc func(ctx context.Context) (any, error)

type entry struct {
	key   string
	tags  []Tag
	fetch FetchFunc

	value  any
	err    error
	loaded bool
	stale  bool

	// gen is bumped by every invalidation; a fetch that started under an
	// older gen must not overwrite the entry.
	gen      uint64
	started  uint64
	fetching int
	queued   bool

	subs     map[uint64]chan struct{}
	released time.Time
}

func (e *entry) fresh() bool {
	return e.loaded && !e.stale && e.err == nil
}

func (e *entry) notify() {
	for _, ch := range e.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

type snapshot struct {
	value    any
	err      error
	loaded   bool
	stale    bool
	fetching bool
}

// Cache stores query results keyed by request signature and indexed by tag.
// Identical in-flight fetches are coalesced into one call.
type Cache struct {
	logger     *zap.Logger
	pool       *worker.Pool
	keepUnused time.Duration
	group      singleflight.Group
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
	byTag   map[Tag]map[string]struct{}
	byType  map[string]map[string]struct{}
	nextSub uint64
}

// NewCache returns a cache that refetches through pool. With a nil pool, or
// one that is full or stopped, refetches run on their own goroutines. The
// pool must be started by the caller.
func NewCache(pool *worker.Pool, keepUnused time.Duration, logger *zap.Logger) *Cache {
	return &Cache{
		logger:     logger,
		pool:       pool,
		keepUnused: keepUnused,
		now:        time.Now,
		entries:    make(map[string]*entry),
		byTag:      make(map[Tag]map[string]struct{}),
		byType:     make(map[string]map[string]struct{}),
	}
}

// Query returns the cached value for key when it is fresh and fetches it
// otherwise.
func (c *Cache) Query(ctx context.Context, key string, tags []Tag, fetch FetchFunc) (any, error) {
	c.mu.Lock()
	e := c.upsert(key, tags, fetch)
	if e.fresh() {
		v := e.value
		if len(e.subs) == 0 {
			e.released = c.now()
		}
		c.mu.Unlock()
		c.logger.Debug("cache hit", zap.String("key", key))
		return v, nil
	}
	c.mu.Unlock()

	return c.load(ctx, key)
}

// Refetch forces a new network call for key, dropping any in-flight one.
func (c *Cache) Refetch(ctx context.Context, key string) (any, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		e.gen++
		c.group.Forget(key)
	}
	c.mu.Unlock()

	return c.load(ctx, key)
}

// Invalidate marks every entry matching tags stale. Entries with active
// subscribers are refetched once; the rest refetch on their next use.
func (c *Cache) Invalidate(tags ...Tag) {
	c.mu.Lock()
	keys := c.match(tags)
	var refetch []string
	for key := range keys {
		e := c.entries[key]
		e.stale = true
		e.gen++
		c.group.Forget(key)
		e.notify()
		if len(e.subs) > 0 && !e.queued {
			e.queued = true
			refetch = append(refetch, key)
		}
	}
	c.mu.Unlock()

	c.logger.Debug("invalidated tags",
		zap.Stringers("tags", tags),
		zap.Int("entries", len(keys)),
		zap.Int("refetching", len(refetch)),
	)
	for _, key := range refetch {
		c.schedule(key)
	}
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Run evicts entries that have had no subscribers for longer than the
// keep-unused window. It returns when ctx is done.
func (c *Cache) Run(ctx context.Context) {
	interval := c.keepUnused / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.logger.Debug("evicted unused entries", zap.Int("count", n))
			}
		}
	}
}

// Sweep evicts unused entries once and returns how many were removed.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-c.keepUnused)
	n := 0
	for key, e := range c.entries {
		if len(e.subs) > 0 || e.fetching > 0 || e.queued || e.released.After(cutoff) {
			continue
		}
		c.remove(key, e)
		n++
	}
	return n
}

func (c *Cache) subscribe(key string, tags []Tag, fetch FetchFunc) (uint64, chan struct{}) {
	c.mu.Lock()
	e := c.upsert(key, tags, fetch)
	c.nextSub++
	id := c.nextSub
	ch := make(chan struct{}, 1)
	e.subs[id] = ch
	start := !e.fresh() && e.fetching == 0 && !e.queued
	if start {
		e.queued = true
	}
	c.mu.Unlock()

	if start {
		c.schedule(key)
	}
	return id, ch
}

func (c *Cache) unsubscribe(key string, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return
	}
	if ch, ok := e.subs[id]; ok {
		delete(e.subs, id)
		close(ch)
	}
	if len(e.subs) == 0 {
		e.released = c.now()
	}
}

func (c *Cache) snapshot(key string) snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return snapshot{}
	}
	return snapshot{
		value:    e.value,
		err:      e.err,
		loaded:   e.loaded,
		stale:    e.stale,
		fetching: e.fetching > 0 || e.queued,
	}
}

func (c *Cache) schedule(key string) {
	job := worker.Job{Key: key, Run: func(ctx context.Context) error {
		// Hold a fetching reservation so a subscriber arriving before the
		// shared call starts does not schedule a second one.
		c.mu.Lock()
		e, ok := c.entries[key]
		if ok {
			e.queued = false
			e.fetching++
		}
		c.mu.Unlock()
		if !ok {
			return nil
		}
		defer func() {
			c.mu.Lock()
			e.fetching--
			e.notify()
			c.mu.Unlock()
		}()

		_, err := c.load(ctx, key)
		if errors.Is(err, errEvicted) {
			return nil
		}
		return err
	}}
	job.Drop = func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if e, ok := c.entries[key]; ok && e.queued {
			e.queued = false
			e.notify()
		}
	}

	// Jobs schedule jobs; never wait on a full queue.
	if c.pool != nil && c.pool.TrySubmit(job) {
		return
	}
	go job.Run(context.Background())
}

// load joins or starts the single in-flight fetch for key. The shared call
// runs detached from ctx so one caller giving up does not fail the others.
func (c *Cache) load(ctx context.Context, key string) (any, error) {
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		return c.fetch(detached, key)
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) fetch(ctx context.Context, key string) (any, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return nil, errEvicted
	}
	gen := e.gen
	fetch := e.fetch
	e.started = gen
	e.fetching++
	e.notify()
	c.mu.Unlock()

	start := c.now()
	v, err := fetch(ctx)

	c.mu.Lock()
	e.fetching--
	if c.entries[key] != e {
		c.mu.Unlock()
		return v, err
	}
	if e.gen != gen {
		// Invalidated mid-flight: the caller still gets this result but the
		// entry waits for a fetch under the current gen.
		resched := len(e.subs) > 0 && !e.queued && e.started != e.gen
		if resched {
			e.queued = true
		}
		e.notify()
		c.mu.Unlock()

		c.logger.Debug("discarding superseded result", zap.String("key", key))
		if resched {
			c.schedule(key)
		}
		return v, err
	}
	defer c.mu.Unlock()

	if err != nil {
		e.err = err
	} else {
		e.value = v
		e.err = nil
	}
	e.loaded = true
	e.stale = false
	if len(e.subs) == 0 {
		e.released = c.now()
	}
	e.notify()

	c.logger.Debug("fetched",
		zap.String("key", key),
		zap.Duration("took", c.now().Sub(start)),
		zap.Error(err),
	)
	return v, err
}

// upsert must be called with c.mu held.
func (c *Cache) upsert(key string, tags []Tag, fetch FetchFunc) *entry {
	e, ok := c.entries[key]
	if ok {
		e.fetch = fetch
		return e
	}

	e = &entry{
		key:      key,
		tags:     tags,
		fetch:    fetch,
		subs:     make(map[uint64]chan struct{}),
		released: c.now(),
	}
	c.entries[key] = e
	for _, t := range tags {
		addKey(c.byTag, t, key)
		addKey(c.byType, t.Type, key)
	}
	return e
}

// remove must be called with c.mu held.
func (c *Cache) remove(key string, e *entry) {
	delete(c.entries, key)
	for _, t := range e.tags {
		removeKey(c.byTag, t, key)
		removeKey(c.byType, t.Type, key)
	}
	c.group.Forget(key)
}

// match must be called with c.mu held.
func (c *Cache) match(tags []Tag) map[string]struct{} {
	keys := make(map[string]struct{})
	for _, t := range tags {
		set := c.byTag[t]
		if t.ID == "" {
			set = c.byType[t.Type]
		}
		for key := range set {
			keys[key] = struct{}{}
		}
	}
	return keys
}

func addKey[K comparable](index map[K]map[string]struct{}, k K, key string) {
	set, ok := index[k]
	if !ok {
		set = make(map[string]struct{})
		index[k] = set
	}
	set[key] = struct{}{}
}

func removeKey[K comparable](index map[K]map[string]struct{}, k K, key string) {
	set, ok := index[k]
	if !ok {
		return
	}
	delete(set, key)
	if len(set) == 0 {
		delete(index, k)
	}
}
