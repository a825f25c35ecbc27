package api

import (
	"context"
	"sync"
)

type Status int

const (
	StatusLoading Status = iota
	StatusData
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusData:
		return "data"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// State is what an observer of a query sees. Data keeps the last good
// result while a refetch is running or after it failed.
type State[T any] struct {
	Status   Status
	Data     T
	Err      error
	Stale    bool
	Fetching bool
}

// Subscription keeps a query entry alive and refetched on invalidation
// until Close is called.
type Subscription[T any] struct {
	cache   *Cache
	key     string
	id      uint64
	changes chan struct{}
	once    sync.Once
}

func subscribe[T any](c *Cache, key string, tags []Tag, fetch func(ctx context.Context) (T, error)) *Subscription[T] {
	id, ch := c.subscribe(key, tags, erase(fetch))
	return &Subscription[T]{cache: c, key: key, id: id, changes: ch}
}

func (s *Subscription[T]) Key() string {
	return s.key
}

func (s *Subscription[T]) State() State[T] {
	snap := s.cache.snapshot(s.key)

	var st State[T]
	if v, ok := snap.value.(T); ok {
		st.Data = v
	}
	st.Err = snap.err
	st.Stale = snap.stale
	st.Fetching = snap.fetching
	switch {
	case !snap.loaded:
		st.Status = StatusLoading
	case snap.err != nil:
		st.Status = StatusError
	default:
		st.Status = StatusData
	}
	return st
}

// Changes signals whenever the state may have changed. Signals coalesce, so
// readers should call State after each receive. The channel is closed by
// Close.
func (s *Subscription[T]) Changes() <-chan struct{} {
	return s.changes
}

// Refetch issues a new network call regardless of freshness.
func (s *Subscription[T]) Refetch(ctx context.Context) (T, error) {
	v, err := s.cache.Refetch(ctx, s.key)
	return cast[T](v, err)
}

func (s *Subscription[T]) Close() {
	s.once.Do(func() {
		s.cache.unsubscribe(s.key, s.id)
	})
}

func query[T any](ctx context.Context, c *Cache, key string, tags []Tag, fetch func(ctx context.Context) (T, error)) (T, error) {
	v, err := c.Query(ctx, key, tags, erase(fetch))
	return cast[T](v, err)
}

func erase[T any](fetch func(ctx context.Context) (T, error)) FetchFunc {
	return func(ctx context.Context) (any, error) {
		return fetch(ctx)
	}
}

func cast[T any](v any, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	t, _ := v.(T)
	return t, nil
}
