package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BuzzLyutic/todo-client/internal/model"
)

// MemoryRepo keeps todos in process memory. Used when no database is
// configured and in tests.
type MemoryRepo struct {
	mu     sync.RWMutex
	todos  map[int64]model.Todo
	nextID int64
	now    func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		todos:  make(map[int64]model.Todo),
		nextID: 1,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryRepo) Create(ctx context.Context, t model.Todo) (model.Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t.ID = r.nextID
	r.nextID++
	t.CreatedAt = r.now()
	t.UpdatedAt = t.CreatedAt
	r.todos[t.ID] = t
	return t, nil
}

func (r *MemoryRepo) Get(ctx context.Context, id int64) (model.Todo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.todos[id]
	if !ok {
		return model.Todo{}, ErrorNotFound
	}
	return t, nil
}

func (r *MemoryRepo) List(ctx context.Context, filter model.TodoFilter, limit, offset int) ([]model.Todo, int, error) {
	r.mu.RLock()
	matched := make([]model.Todo, 0, len(r.todos))
	for _, t := range r.todos {
		if filter.Completed != nil && t.Completed != *filter.Completed {
			continue
		}
		matched = append(matched, t)
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		less := a.CreatedAt.Before(b.CreatedAt) || (a.CreatedAt.Equal(b.CreatedAt) && a.ID < b.ID)
		if filter.Order == model.OrderAsc {
			return less
		}
		return !less
	})

	total := len(matched)
	if offset >= total {
		return []model.Todo{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (r *MemoryRepo) Update(ctx context.Context, patch model.UpdateTodo) (model.Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.todos[patch.ID]
	if !ok {
		return model.Todo{}, ErrorNotFound
	}
	if patch.TodoName != nil {
		t.TodoName = *patch.TodoName
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.Completed != nil {
		t.Completed = *patch.Completed
	}
	t.UpdatedAt = r.now()
	r.todos[t.ID] = t
	return t, nil
}

func (r *MemoryRepo) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.todos[id]; !ok {
		return ErrorNotFound
	}
	delete(r.todos, id)
	return nil
}
