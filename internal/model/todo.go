package model

import "time"

type Todo struct {
	ID          int64     `json:"id"`
	TodoName    string    `json:"todo_name"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Pagination struct {
	CurrentPage int `json:"current_page"`
	TotalPages  int `json:"total_pages"`
	TotalCount  int `json:"total_count"`
}

type TodosResponse struct {
	Todos      []Todo      `json:"todos"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// Completion filter values accepted by the list endpoint.
const (
	CompletedAll   = "all"
	CompletedTrue  = "true"
	CompletedFalse = "false"
)

const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// ListParams describes one view of the list. Zero values mean "absent".
type ListParams struct {
	Completed string `schema:"completed,omitempty" validate:"omitempty,oneof=all true false"`
	Page      int    `schema:"page,omitempty" validate:"gte=0"`
	Order     string `schema:"order,omitempty" validate:"omitempty,oneof=asc desc"`
}

type CreateTodo struct {
	TodoName    string `json:"todo_name" validate:"required"`
	Description string `json:"description" validate:"required"`
	Completed   *bool  `json:"completed,omitempty"`
}

// UpdateTodo is a partial update; nil fields are left out of the PATCH body.
type UpdateTodo struct {
	ID          int64   `json:"-"`
	TodoName    *string `json:"todo_name,omitempty" validate:"omitempty,min=1"`
	Description *string `json:"description,omitempty" validate:"omitempty,min=1"`
	Completed   *bool   `json:"completed,omitempty"`
}

// Empty reports whether the update carries no fields.
func (u UpdateTodo) Empty() bool {
	return u.TodoName == nil && u.Description == nil && u.Completed == nil
}

type TodoFilter struct {
	Completed *bool
	Order     string
}
