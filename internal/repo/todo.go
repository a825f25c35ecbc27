package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BuzzLyutic/todo-client/internal/model"
)

var (
	ErrorNotFound = errors.New("not found")
	ErrorInvalid  = errors.New("invalid todo")
)

const todoColumns = "id, todo_name, description, completed, created_at, updated_at"

type TodoRepo struct {
	pool *pgxpool.Pool
}

func NewTodoRepo(pool *pgxpool.Pool) *TodoRepo {
	return &TodoRepo{
		pool: pool,
	}
}

func scanTodo(row pgx.Row) (model.Todo, error) {
	var t model.Todo
	err := row.Scan(&t.ID, &t.TodoName, &t.Description, &t.Completed, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (r *TodoRepo) Create(ctx context.Context, t model.Todo) (model.Todo, error) {
	created, err := scanTodo(r.pool.QueryRow(ctx, `
		INSERT INTO todos (todo_name, description, completed)
		VALUES ($1, $2, $3)
		RETURNING `+todoColumns,
		t.TodoName, t.Description, t.Completed))
	return created, r.mapError(err)
}

func (r *TodoRepo) Get(ctx context.Context, id int64) (model.Todo, error) {
	t, err := scanTodo(r.pool.QueryRow(ctx, `
		SELECT `+todoColumns+`
		FROM todos
		WHERE id = $1
	`, id))

	if errors.Is(err, pgx.ErrNoRows) {
		return t, ErrorNotFound
	}
	return t, err
}

func (r *TodoRepo) List(ctx context.Context, filter model.TodoFilter, limit, offset int) ([]model.Todo, int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM todos WHERE ($1::boolean IS NULL OR completed = $1)
	`, filter.Completed).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	// Direction is whitelisted, never taken from input verbatim.
	dir := "DESC"
	if filter.Order == model.OrderAsc {
		dir = "ASC"
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+todoColumns+`
		FROM todos
		WHERE ($1::boolean IS NULL OR completed = $1)
		ORDER BY created_at `+dir+`, id `+dir+`
		LIMIT $2 OFFSET $3
	`, filter.Completed, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	todos := make([]model.Todo, 0, limit)
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			return nil, 0, err
		}
		todos = append(todos, t)
	}
	return todos, total, rows.Err()
}

func (r *TodoRepo) Update(ctx context.Context, patch model.UpdateTodo) (model.Todo, error) {
	t, err := scanTodo(r.pool.QueryRow(ctx, `
		UPDATE todos
		SET todo_name = COALESCE($2, todo_name),
		    description = COALESCE($3, description),
		    completed = COALESCE($4, completed),
		    updated_at = now()
		WHERE id = $1
		RETURNING `+todoColumns,
		patch.ID, patch.TodoName, patch.Description, patch.Completed))

	if errors.Is(err, pgx.ErrNoRows) {
		return t, ErrorNotFound
	}
	return t, r.mapError(err)
}

func (r *TodoRepo) Delete(ctx context.Context, id int64) error {
	cmd, err := r.pool.Exec(ctx, "DELETE FROM todos WHERE id = $1", id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrorNotFound
	}
	return nil
}

func (r *TodoRepo) mapError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// check_violation: empty name or description slipped past validation
		if pgErr.Code == "23514" {
			return ErrorInvalid
		}
	}
	return err
}
