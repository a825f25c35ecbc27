package api

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/BuzzLyutic/todo-client/internal/model"
)

// Endpoint names prefix cache keys; the same URL reached through two
// endpoints is cached twice.
const (
	endpointTodos           = "getTodos"
	endpointAllTodos        = "getAllTodos"
	endpointCompletedTodos  = "getCompletedTodos"
	endpointIncompleteTodos = "getIncompleteTodos"
	endpointTodo            = "getTodo"
)

func cacheKey(endpoint, path string) string {
	return endpoint + "(" + path + ")"
}

func todoPath(id int64) string {
	return "todos/" + strconv.FormatInt(id, 10)
}

func (c *Client) listPath(params model.ListParams) (string, error) {
	q, err := ListQuery(params)
	if err != nil {
		return "", err
	}
	return "todos" + q, nil
}

func (c *Client) fetchList(path string) func(ctx context.Context) (model.TodosResponse, error) {
	return func(ctx context.Context) (model.TodosResponse, error) {
		var out model.TodosResponse
		err := c.do(ctx, http.MethodGet, path, nil, &out)
		return out, err
	}
}

func (c *Client) fetchTodo(id int64) func(ctx context.Context) (model.Todo, error) {
	return func(ctx context.Context) (model.Todo, error) {
		var out model.Todo
		err := c.do(ctx, http.MethodGet, todoPath(id), nil, &out)
		return out, err
	}
}

// Todos lists todos for params, served from cache while fresh.
func (c *Client) Todos(ctx context.Context, params model.ListParams) (model.TodosResponse, error) {
	path, err := c.listPath(params)
	if err != nil {
		return model.TodosResponse{}, err
	}
	return query(ctx, c.cache, cacheKey(endpointTodos, path), listTags(), c.fetchList(path))
}

// WatchTodos subscribes to the list for params. The subscription is
// refetched whenever a mutation invalidates the Todo tag.
func (c *Client) WatchTodos(params model.ListParams) (*Subscription[model.TodosResponse], error) {
	path, err := c.listPath(params)
	if err != nil {
		return nil, err
	}
	return subscribe(c.cache, cacheKey(endpointTodos, path), listTags(), c.fetchList(path)), nil
}

// AllTodos always sends completed=all explicitly.
func (c *Client) AllTodos(ctx context.Context) (model.TodosResponse, error) {
	path := "todos?completed=all"
	return query(ctx, c.cache, cacheKey(endpointAllTodos, path), listTags(), c.fetchList(path))
}

func (c *Client) CompletedTodos(ctx context.Context, page int, order string) (model.TodosResponse, error) {
	path, err := c.listPath(model.ListParams{Completed: model.CompletedTrue, Page: page, Order: order})
	if err != nil {
		return model.TodosResponse{}, err
	}
	return query(ctx, c.cache, cacheKey(endpointCompletedTodos, path), listTags(), c.fetchList(path))
}

func (c *Client) IncompleteTodos(ctx context.Context, page int, order string) (model.TodosResponse, error) {
	path, err := c.listPath(model.ListParams{Completed: model.CompletedFalse, Page: page, Order: order})
	if err != nil {
		return model.TodosResponse{}, err
	}
	return query(ctx, c.cache, cacheKey(endpointIncompleteTodos, path), listTags(), c.fetchList(path))
}

func (c *Client) Todo(ctx context.Context, id int64) (model.Todo, error) {
	return query(ctx, c.cache, cacheKey(endpointTodo, todoPath(id)), []Tag{todoIDTag(id)}, c.fetchTodo(id))
}

func (c *Client) WatchTodo(id int64) *Subscription[model.Todo] {
	return subscribe(c.cache, cacheKey(endpointTodo, todoPath(id)), []Tag{todoIDTag(id)}, c.fetchTodo(id))
}

func (c *Client) CreateTodo(ctx context.Context, in model.CreateTodo) (model.Todo, error) {
	var out model.Todo
	if err := c.do(ctx, http.MethodPost, "todos", in, &out); err != nil {
		return out, err
	}
	c.logger.Info("todo created", zap.Int64("id", out.ID))
	c.cache.Invalidate(todoTag())
	return out, nil
}

// UpdateTodo patches the given fields. It invalidates the todo itself and
// every list, since lists embed the edited fields.
func (c *Client) UpdateTodo(ctx context.Context, in model.UpdateTodo) (model.Todo, error) {
	var out model.Todo
	if err := c.do(ctx, http.MethodPatch, todoPath(in.ID), in, &out); err != nil {
		return out, err
	}
	c.logger.Info("todo updated", zap.Int64("id", in.ID))
	c.cache.Invalidate(todoIDTag(in.ID), todoListTag())
	return out, nil
}

func (c *Client) ToggleTodo(ctx context.Context, id int64, completed bool) (model.Todo, error) {
	body := struct {
		Completed bool `json:"completed"`
	}{completed}

	var out model.Todo
	if err := c.do(ctx, http.MethodPatch, todoPath(id), body, &out); err != nil {
		return out, err
	}
	c.logger.Info("todo toggled", zap.Int64("id", id), zap.Bool("completed", completed))
	c.cache.Invalidate(todoTag())
	return out, nil
}

func (c *Client) DeleteTodo(ctx context.Context, id int64) error {
	if err := c.do(ctx, http.MethodDelete, todoPath(id), nil, nil); err != nil {
		return err
	}
	c.logger.Info("todo deleted", zap.Int64("id", id))
	c.cache.Invalidate(todoTag())
	return nil
}
