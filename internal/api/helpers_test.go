package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/todo-client/internal/handler"
	"github.com/BuzzLyutic/todo-client/internal/repo"
	"github.com/BuzzLyutic/todo-client/internal/service"
	"github.com/BuzzLyutic/todo-client/internal/worker"
)

type recordedRequest struct {
	Method      string
	URI         string
	ContentType string
	RequestID   string
}

// testBackend is the reference API over an in-memory store, recording every
// request it receives. Setting gate holds requests until it is closed.
type testBackend struct {
	*httptest.Server

	mu       sync.Mutex
	requests []recordedRequest
	gate     chan struct{}
}

func newTestBackend(t *testing.T, perPage int) *testBackend {
	t.Helper()
	b := &testBackend{}
	todoService := service.NewTodoService(repo.NewMemoryRepo(), perPage)
	router := handler.NewRouter(handler.NewTodoHandler(todoService, zap.NewNop()), b.record)
	b.Server = httptest.NewServer(router)
	t.Cleanup(b.Close)
	return b
}

func (b *testBackend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.requests = append(b.requests, recordedRequest{
			Method:      r.Method,
			URI:         r.URL.RequestURI(),
			ContentType: r.Header.Get("Content-Type"),
			RequestID:   r.Header.Get("X-Request-ID"),
		})
		gate := b.gate
		b.mu.Unlock()

		if gate != nil {
			<-gate
		}
		next.ServeHTTP(w, r)
	})
}

func (b *testBackend) hold() chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gate = make(chan struct{})
	return b.gate
}

func (b *testBackend) release(gate chan struct{}) {
	b.mu.Lock()
	b.gate = nil
	b.mu.Unlock()
	close(gate)
}

// hits counts requests matching method and request URI.
func (b *testBackend) hits(method, uri string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, r := range b.requests {
		if r.Method == method && r.URI == uri {
			n++
		}
	}
	return n
}

func (b *testBackend) all() []recordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]recordedRequest(nil), b.requests...)
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	logger := zap.NewNop()

	pool := worker.NewPool(logger, 2)
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)

	cache := NewCache(pool, time.Minute, logger)
	client, err := NewClient(baseURL, &http.Client{Timeout: 5 * time.Second}, cache, logger)
	require.NoError(t, err)
	return client
}

// waitState blocks until the subscription reaches a settled state matching
// cond.
func waitState[T any](t *testing.T, sub *Subscription[T], cond func(State[T]) bool) State[T] {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		st := sub.State()
		if !st.Fetching && cond(st) {
			return st
		}
		select {
		case <-sub.Changes():
		case <-time.After(20 * time.Millisecond):
		case <-deadline:
			t.Fatalf("subscription %s did not reach expected state, last: %+v", sub.Key(), st)
		}
	}
}
