package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/BuzzLyutic/todo-client/internal/model"
	"github.com/BuzzLyutic/todo-client/internal/repo"
)

var (
	ErrValidation = errors.New("validation error")
)

var validate = validator.New()

type TodoService struct {
	repo    repo.TodoRepository
	perPage int
}

func NewTodoService(repo repo.TodoRepository, perPage int) *TodoService {
	if perPage <= 0 {
		perPage = 10
	}
	return &TodoService{repo: repo, perPage: perPage}
}

func (s *TodoService) Create(ctx context.Context, in model.CreateTodo) (model.Todo, error) {
	in.TodoName = strings.TrimSpace(in.TodoName)
	in.Description = strings.TrimSpace(in.Description)
	if err := validate.Struct(in); err != nil {
		return model.Todo{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	t := model.Todo{TodoName: in.TodoName, Description: in.Description}
	if in.Completed != nil {
		t.Completed = *in.Completed
	}
	return s.repo.Create(ctx, t)
}

func (s *TodoService) Get(ctx context.Context, id int64) (model.Todo, error) {
	return s.repo.Get(ctx, id)
}

// List returns one page. Pages past the end come back empty with the real
// pagination metadata.
func (s *TodoService) List(ctx context.Context, params model.ListParams) (model.TodosResponse, error) {
	if err := validate.Struct(params); err != nil {
		return model.TodosResponse{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	filter := model.TodoFilter{Order: params.Order}
	switch params.Completed {
	case model.CompletedTrue:
		done := true
		filter.Completed = &done
	case model.CompletedFalse:
		done := false
		filter.Completed = &done
	}

	page := params.Page
	if page < 1 {
		page = 1
	}

	todos, total, err := s.repo.List(ctx, filter, s.perPage, (page-1)*s.perPage)
	if err != nil {
		return model.TodosResponse{}, err
	}

	totalPages := (total + s.perPage - 1) / s.perPage
	if totalPages < 1 {
		totalPages = 1
	}
	return model.TodosResponse{
		Todos: todos,
		Pagination: &model.Pagination{
			CurrentPage: page,
			TotalPages:  totalPages,
			TotalCount:  total,
		},
	}, nil
}

func (s *TodoService) Update(ctx context.Context, patch model.UpdateTodo) (model.Todo, error) {
	if patch.TodoName != nil {
		name := strings.TrimSpace(*patch.TodoName)
		patch.TodoName = &name
	}
	if patch.Description != nil {
		desc := strings.TrimSpace(*patch.Description)
		patch.Description = &desc
	}
	if err := validate.Struct(patch); err != nil {
		return model.Todo{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if patch.Empty() {
		return model.Todo{}, fmt.Errorf("%w: nothing to update", ErrValidation)
	}
	return s.repo.Update(ctx, patch)
}

func (s *TodoService) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}
