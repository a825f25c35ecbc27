package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/todo-client/internal/model"
)

func strPtr(s string) *string {
	return &s
}

func seed(t *testing.T, c *Client, names ...string) []model.Todo {
	t.Helper()
	out := make([]model.Todo, 0, len(names))
	for _, n := range names {
		todo, err := c.CreateTodo(context.Background(), model.CreateTodo{TodoName: n, Description: n + " desc"})
		require.NoError(t, err)
		out = append(out, todo)
	}
	return out
}

func TestNewClient(t *testing.T) {
	logger := zap.NewNop()
	_, err := NewClient("not a url", nil, NewCache(nil, time.Minute, logger), logger)
	assert.Error(t, err)

	c, err := NewClient("http://localhost:3001/api", nil, NewCache(nil, time.Minute, logger), logger)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3001/api/", c.baseURL.String())
}

func TestClient_Headers(t *testing.T) {
	backend := newTestBackend(t, 10)
	c := newTestClient(t, backend.URL+"/api/")
	ctx := context.Background()

	todo := seed(t, c, "Headers")[0]
	_, err := c.Todos(ctx, model.ListParams{})
	require.NoError(t, err)
	_, err = c.Todo(ctx, todo.ID)
	require.NoError(t, err)
	require.NoError(t, c.DeleteTodo(ctx, todo.ID))

	reqs := backend.all()
	require.Len(t, reqs, 4)
	seen := map[string]bool{}
	for _, r := range reqs {
		assert.Equal(t, "application/json", r.ContentType, "%s %s", r.Method, r.URI)
		assert.NotEmpty(t, r.RequestID)
		assert.False(t, seen[r.RequestID], "request ids must be unique")
		seen[r.RequestID] = true
	}
}

func TestClient_BareListEqualsAll(t *testing.T) {
	backend := newTestBackend(t, 10)
	c := newTestClient(t, backend.URL+"/api/")
	ctx := context.Background()

	_, err := c.Todos(ctx, model.ListParams{})
	require.NoError(t, err)
	_, err = c.Todos(ctx, model.ListParams{Completed: model.CompletedAll})
	require.NoError(t, err)

	assert.Equal(t, 1, backend.hits(http.MethodGet, "/api/todos"), "both calls share one cache entry")
}

func TestClient_InvalidParamsNeverSent(t *testing.T) {
	backend := newTestBackend(t, 10)
	c := newTestClient(t, backend.URL+"/api/")

	_, err := c.Todos(context.Background(), model.ListParams{Order: "sideways"})
	assert.Error(t, err)
	_, err = c.WatchTodos(model.ListParams{Page: -1})
	assert.Error(t, err)
	assert.Empty(t, backend.all())
}

func TestClient_CreateThenList(t *testing.T) {
	backend := newTestBackend(t, 10)
	c := newTestClient(t, backend.URL+"/api/")
	ctx := context.Background()
	seed(t, c, "Existing")

	before, err := c.Todos(ctx, model.ListParams{})
	require.NoError(t, err)
	require.NotNil(t, before.Pagination)

	created, err := c.CreateTodo(ctx, model.CreateTodo{TodoName: "Buy milk", Description: "2%"})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, "Buy milk", created.TodoName)

	after, err := c.Todos(ctx, model.ListParams{})
	require.NoError(t, err)
	assert.Equal(t, before.Pagination.TotalCount+1, after.Pagination.TotalCount)

	var found bool
	for _, td := range after.Todos {
		if td.ID == created.ID {
			found = true
		}
	}
	assert.True(t, found, "new todo must appear in the refetched list")
	assert.Equal(t, 2, backend.hits(http.MethodGet, "/api/todos"))
}

func TestClient_ToggleRefetchesSubscribedList(t *testing.T) {
	backend := newTestBackend(t, 10)
	c := newTestClient(t, backend.URL+"/api/")
	ctx := context.Background()
	todos := seed(t, c, "a", "b", "c", "d", "e")
	target := todos[4]

	sub, err := c.WatchTodos(model.ListParams{Order: model.OrderAsc})
	require.NoError(t, err)
	defer sub.Close()
	waitState(t, sub, func(st State[model.TodosResponse]) bool { return st.Status == StatusData })

	updated, err := c.ToggleTodo(ctx, target.ID, true)
	require.NoError(t, err)
	assert.True(t, updated.Completed)

	st := waitState(t, sub, func(st State[model.TodosResponse]) bool {
		for _, td := range st.Data.Todos {
			if td.ID == target.ID {
				return td.Completed
			}
		}
		return false
	})
	assert.Equal(t, StatusData, st.Status)
	assert.False(t, st.Stale)
	assert.Equal(t, 1, backend.hits(http.MethodPatch, "/api/todos/5"))
	assert.Equal(t, 2, backend.hits(http.MethodGet, "/api/todos?order=asc"))
}

func TestClient_ToggleBody(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/todos/5", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":5,"todo_name":"x","description":"y","completed":true}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/api/")
	_, err := c.ToggleTodo(context.Background(), 5, true)
	require.NoError(t, err)
	assert.JSONEq(t, `{"completed":true}`, body)

	_, err = c.UpdateTodo(context.Background(), model.UpdateTodo{ID: 5, Description: strPtr("new")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"description":"new"}`, body, "id is never part of the body")
}

func TestClient_DeleteMissing(t *testing.T) {
	backend := newTestBackend(t, 10)
	c := newTestClient(t, backend.URL+"/api/")
	ctx := context.Background()

	sub, err := c.WatchTodos(model.ListParams{})
	require.NoError(t, err)
	defer sub.Close()
	before := waitState(t, sub, func(st State[model.TodosResponse]) bool { return st.Status == StatusData })

	err = c.DeleteTodo(ctx, 7)
	require.Error(t, err)
	assert.Equal(t, "not found", err.Error())

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, KindClient, apiErr.Kind())

	// A failed mutation leaves the cache alone.
	time.Sleep(50 * time.Millisecond)
	after := sub.State()
	assert.False(t, after.Stale)
	assert.Equal(t, before.Data, after.Data)
	assert.Equal(t, 1, backend.hits(http.MethodGet, "/api/todos"))
	assert.Equal(t, 1, backend.hits(http.MethodDelete, "/api/todos/7"), "no retry")
}

func TestClient_ConcurrentListCoalesced(t *testing.T) {
	backend := newTestBackend(t, 10)
	c := newTestClient(t, backend.URL+"/api/")
	seed(t, c, "one", "two")

	gate := backend.hold()
	params := model.ListParams{Completed: model.CompletedFalse, Page: 1}

	var wg sync.WaitGroup
	results := make([]model.TodosResponse, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx], errs[idx] = c.Todos(context.Background(), params)
		}(i)
	}

	uri := "/api/todos?completed=false&page=1"
	assert.Eventually(t, func() bool { return backend.hits(http.MethodGet, uri) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	backend.release(gate)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, results[0], results[1])
	assert.Len(t, results[0].Todos, 2)
	assert.Equal(t, 1, backend.hits(http.MethodGet, uri), "exactly one network call")
}

func TestClient_GetOneCached(t *testing.T) {
	backend := newTestBackend(t, 10)
	c := newTestClient(t, backend.URL+"/api/")
	ctx := context.Background()
	todo := seed(t, c, "cached")[0]

	first, err := c.Todo(ctx, todo.ID)
	require.NoError(t, err)
	second, err := c.Todo(ctx, todo.ID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, backend.hits(http.MethodGet, "/api/todos/1"))
}

func TestClient_MutationRefetchesEveryListOnce(t *testing.T) {
	backend := newTestBackend(t, 2)
	c := newTestClient(t, backend.URL+"/api/")
	ctx := context.Background()
	seed(t, c, "a", "b", "c")

	paramSets := []struct {
		uri    string
		params model.ListParams
	}{
		{"/api/todos", model.ListParams{}},
		{"/api/todos?completed=true", model.ListParams{Completed: model.CompletedTrue}},
		{"/api/todos?completed=false&page=2", model.ListParams{Completed: model.CompletedFalse, Page: 2}},
		{"/api/todos?page=2&order=asc", model.ListParams{Page: 2, Order: model.OrderAsc}},
	}
	subs := make(map[string]*Subscription[model.TodosResponse])
	for _, ps := range paramSets {
		sub, err := c.WatchTodos(ps.params)
		require.NoError(t, err)
		defer sub.Close()
		subs[ps.uri] = sub
	}
	// A second subscriber on the same params shares the entry.
	dup, err := c.WatchTodos(model.ListParams{})
	require.NoError(t, err)
	defer dup.Close()

	for _, sub := range subs {
		waitState(t, sub, func(st State[model.TodosResponse]) bool { return st.Status == StatusData })
	}
	for uri := range subs {
		require.Equal(t, 1, backend.hits(http.MethodGet, uri), uri)
	}

	mutations := []struct {
		name string
		run  func() error
	}{
		{"create", func() error {
			_, err := c.CreateTodo(ctx, model.CreateTodo{TodoName: "d", Description: "d"})
			return err
		}},
		{"update", func() error {
			_, err := c.UpdateTodo(ctx, model.UpdateTodo{ID: 1, TodoName: strPtr("renamed")})
			return err
		}},
		{"toggle", func() error {
			_, err := c.ToggleTodo(ctx, 2, true)
			return err
		}},
		{"delete", func() error { return c.DeleteTodo(ctx, 3) }},
	}

	for i, m := range mutations {
		require.NoError(t, m.run(), m.name)
		want := i + 2
		for uri, sub := range subs {
			assert.Eventually(t, func() bool { return backend.hits(http.MethodGet, uri) == want }, 2*time.Second, 5*time.Millisecond, "%s after %s", uri, m.name)
			waitState(t, sub, func(st State[model.TodosResponse]) bool { return !st.Stale })
		}
		time.Sleep(30 * time.Millisecond)
		for uri := range subs {
			assert.Equal(t, want, backend.hits(http.MethodGet, uri), "%s refetched exactly once after %s", uri, m.name)
		}
	}
}

func TestClient_UnsubscribedEntriesRefetchLazily(t *testing.T) {
	backend := newTestBackend(t, 10)
	c := newTestClient(t, backend.URL+"/api/")
	ctx := context.Background()

	_, err := c.Todos(ctx, model.ListParams{Order: model.OrderDesc})
	require.NoError(t, err)

	seed(t, c, "new")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, backend.hits(http.MethodGet, "/api/todos?order=desc"), "nobody is watching, nothing refetched yet")

	resp, err := c.Todos(ctx, model.ListParams{Order: model.OrderDesc})
	require.NoError(t, err)
	assert.Len(t, resp.Todos, 1)
	assert.Equal(t, 2, backend.hits(http.MethodGet, "/api/todos?order=desc"))
}

func TestClient_UpdateInvalidatesOnlyThatTodo(t *testing.T) {
	backend := newTestBackend(t, 10)
	c := newTestClient(t, backend.URL+"/api/")
	ctx := context.Background()
	todos := seed(t, c, "one", "two")

	_, err := c.Todo(ctx, todos[0].ID)
	require.NoError(t, err)
	_, err = c.Todo(ctx, todos[1].ID)
	require.NoError(t, err)

	_, err = c.UpdateTodo(ctx, model.UpdateTodo{ID: todos[0].ID, Description: strPtr("changed")})
	require.NoError(t, err)

	got, err := c.Todo(ctx, todos[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "changed", got.Description)
	_, err = c.Todo(ctx, todos[1].ID)
	require.NoError(t, err)

	assert.Equal(t, 2, backend.hits(http.MethodGet, "/api/todos/1"))
	assert.Equal(t, 1, backend.hits(http.MethodGet, "/api/todos/2"))

	// Toggle invalidates the whole Todo type, single items included.
	_, err = c.ToggleTodo(ctx, todos[0].ID, true)
	require.NoError(t, err)
	_, err = c.Todo(ctx, todos[1].ID)
	require.NoError(t, err)
	assert.Equal(t, 2, backend.hits(http.MethodGet, "/api/todos/2"))
}

func TestClient_WatchTodoRefetchedOnUpdate(t *testing.T) {
	backend := newTestBackend(t, 10)
	c := newTestClient(t, backend.URL+"/api/")
	ctx := context.Background()
	todos := seed(t, c, "one", "two")

	first := c.WatchTodo(todos[0].ID)
	defer first.Close()
	second := c.WatchTodo(todos[1].ID)
	defer second.Close()
	waitState(t, first, func(st State[model.Todo]) bool { return st.Status == StatusData })
	waitState(t, second, func(st State[model.Todo]) bool { return st.Status == StatusData })

	_, err := c.UpdateTodo(ctx, model.UpdateTodo{ID: todos[0].ID, Description: strPtr("changed")})
	require.NoError(t, err)

	st := waitState(t, first, func(st State[model.Todo]) bool { return st.Data.Description == "changed" })
	assert.Equal(t, "one", st.Data.TodoName)

	// Give a stray refetch of the other todo time to show up.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 2, backend.hits(http.MethodGet, "/api/todos/1"))
	assert.Equal(t, 1, backend.hits(http.MethodGet, "/api/todos/2"))
	assert.Equal(t, "two desc", second.State().Data.Description)

	// A toggle invalidates every todo, so both watchers refetch once.
	_, err = c.ToggleTodo(ctx, todos[1].ID, true)
	require.NoError(t, err)
	waitState(t, second, func(st State[model.Todo]) bool { return st.Data.Completed })
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 3, backend.hits(http.MethodGet, "/api/todos/1"))
	assert.Equal(t, 2, backend.hits(http.MethodGet, "/api/todos/2"))
}

func TestClient_ShorthandEndpoints(t *testing.T) {
	backend := newTestBackend(t, 10)
	c := newTestClient(t, backend.URL+"/api/")
	ctx := context.Background()
	todos := seed(t, c, "open", "done")
	_, err := c.ToggleTodo(ctx, todos[1].ID, true)
	require.NoError(t, err)

	all, err := c.AllTodos(ctx)
	require.NoError(t, err)
	assert.Len(t, all.Todos, 2)

	done, err := c.CompletedTodos(ctx, 1, model.OrderAsc)
	require.NoError(t, err)
	require.Len(t, done.Todos, 1)
	assert.Equal(t, todos[1].ID, done.Todos[0].ID)

	open, err := c.IncompleteTodos(ctx, 0, "")
	require.NoError(t, err)
	require.Len(t, open.Todos, 1)
	assert.Equal(t, todos[0].ID, open.Todos[0].ID)

	assert.Equal(t, 1, backend.hits(http.MethodGet, "/api/todos?completed=all"))
	assert.Equal(t, 1, backend.hits(http.MethodGet, "/api/todos?completed=true&page=1&order=asc"))
	assert.Equal(t, 1, backend.hits(http.MethodGet, "/api/todos?completed=false"))
}

func TestClient_ServerErrorNoRetry(t *testing.T) {
	var hits int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`"database is down"`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/api/")
	sub, err := c.WatchTodos(model.ListParams{})
	require.NoError(t, err)
	defer sub.Close()

	st := waitState(t, sub, func(st State[model.TodosResponse]) bool { return st.Status == StatusError })
	var apiErr *Error
	require.ErrorAs(t, st.Err, &apiErr)
	assert.Equal(t, KindServer, apiErr.Kind())
	assert.Equal(t, "database is down", apiErr.Error())

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 1, hits, "errors are not retried")
	mu.Unlock()

	// Manual refetch is the only recovery.
	_, err = sub.Refetch(context.Background())
	assert.Error(t, err)
	mu.Lock()
	assert.Equal(t, 2, hits)
	mu.Unlock()
}

func TestClient_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := newTestClient(t, url+"/api/")
	_, err := c.Todo(context.Background(), 1)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KindNetwork, apiErr.Kind())
	assert.Zero(t, apiErr.Status)
}

func TestClient_CallerCancelDoesNotFailSharedFetch(t *testing.T) {
	backend := newTestBackend(t, 10)
	c := newTestClient(t, backend.URL+"/api/")
	seed(t, c, "x")

	gate := backend.hold()
	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	var abandonedErr, sharedErr error
	var shared model.TodosResponse
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, abandonedErr = c.Todos(ctx, model.ListParams{})
	}()
	go func() {
		defer wg.Done()
		shared, sharedErr = c.Todos(context.Background(), model.ListParams{})
	}()

	assert.Eventually(t, func() bool { return backend.hits(http.MethodGet, "/api/todos") == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)
	backend.release(gate)
	wg.Wait()

	assert.True(t, errors.Is(abandonedErr, context.Canceled))
	require.NoError(t, sharedErr)
	assert.Len(t, shared.Todos, 1)
}
