package repo

import (
	"context"

	"github.com/BuzzLyutic/todo-client/internal/model"
)

// TodoRepository is the storage behind the reference API.
type TodoRepository interface {
	Create(ctx context.Context, t model.Todo) (model.Todo, error)
	Get(ctx context.Context, id int64) (model.Todo, error)
	// List returns one page of todos and the total count matching filter.
	List(ctx context.Context, filter model.TodoFilter, limit, offset int) ([]model.Todo, int, error)
	Update(ctx context.Context, patch model.UpdateTodo) (model.Todo, error)
	Delete(ctx context.Context, id int64) error
}
