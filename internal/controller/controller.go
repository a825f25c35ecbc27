package controller

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/todo-client/internal/api"
	"github.com/BuzzLyutic/todo-client/internal/model"
)

var (
	ErrValidation   = errors.New("validation error")
	ErrUnchanged    = errors.New("no change")
	ErrNotConfirmed = errors.New("not confirmed")
	ErrUnknownTodo  = errors.New("todo not in current list")
)

const (
	ConfirmDelete = "Are you sure you want to proceed?"
	NoChange      = "No change in todo!"
)

var validate = validator.New()

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(ctx context.Context, msg string) (bool, error)
}

// Notifier shows a fire-and-forget message.
type Notifier interface {
	Notify(msg string)
}

// ListSubscription is a live view of one list query.
type ListSubscription interface {
	State() api.State[model.TodosResponse]
	Changes() <-chan struct{}
	Refetch(ctx context.Context) (model.TodosResponse, error)
	Close()
}

// Registry is the set of remote operations the controller drives.
type Registry interface {
	WatchTodos(params model.ListParams) (ListSubscription, error)
	CreateTodo(ctx context.Context, in model.CreateTodo) (model.Todo, error)
	UpdateTodo(ctx context.Context, in model.UpdateTodo) (model.Todo, error)
	ToggleTodo(ctx context.Context, id int64, completed bool) (model.Todo, error)
	DeleteTodo(ctx context.Context, id int64) error
}

type clientRegistry struct {
	*api.Client
}

func (r clientRegistry) WatchTodos(params model.ListParams) (ListSubscription, error) {
	sub, err := r.Client.WatchTodos(params)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// FromClient adapts an api.Client to Registry.
func FromClient(c *api.Client) Registry {
	return clientRegistry{Client: c}
}

type Filter string

const (
	FilterAll        Filter = "all"
	FilterCompleted  Filter = "completed"
	FilterIncomplete Filter = "incomplete"
)

func (f Filter) completed() string {
	switch f {
	case FilterCompleted:
		return model.CompletedTrue
	case FilterIncomplete:
		return model.CompletedFalse
	default:
		return model.CompletedAll
	}
}

// Next cycles all -> incomplete -> completed.
func (f Filter) Next() Filter {
	switch f {
	case FilterAll:
		return FilterIncomplete
	case FilterIncomplete:
		return FilterCompleted
	default:
		return FilterAll
	}
}

// Draft holds the text fields of a todo being created or edited.
type Draft struct {
	TodoName    string `validate:"required"`
	Description string `validate:"required"`
}

func (d Draft) trimmed() Draft {
	return Draft{
		TodoName:    strings.TrimSpace(d.TodoName),
		Description: strings.TrimSpace(d.Description),
	}
}

type ListState struct {
	Status     api.Status
	Todos      []model.Todo
	Pagination *model.Pagination
	Err        error
	Fetching   bool
}

// TotalPages is at least 1.
func (s ListState) TotalPages() int {
	if s.Pagination == nil || s.Pagination.TotalPages < 1 {
		return 1
	}
	return s.Pagination.TotalPages
}

func (s ListState) find(id int64) (model.Todo, bool) {
	for _, t := range s.Todos {
		if t.ID == id {
			return t, true
		}
	}
	return model.Todo{}, false
}

// Controller holds the view state of the todo list and turns user intents
// into registry calls.
type Controller struct {
	registry Registry
	confirm  Confirmer
	notify   Notifier
	logger   *zap.Logger

	mu       sync.Mutex
	filter   Filter
	order    string
	page     int
	editing  *model.Todo
	sub      ListSubscription
	onChange func()

	// totalPages is the last total_pages the server reported for the
	// current filter; 0 until a page has loaded.
	totalPages int
}

func New(registry Registry, confirm Confirmer, notify Notifier, logger *zap.Logger) *Controller {
	return &Controller{
		registry: registry,
		confirm:  confirm,
		notify:   notify,
		logger:   logger,
		filter:   FilterAll,
		order:    model.OrderDesc,
		page:     1,
	}
}

// Start subscribes to the first page of the default list.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resubscribe()
}

// Close drops the list subscription.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub != nil {
		c.sub.Close()
		c.sub = nil
	}
}

// OnChange registers fn to be called whenever the list state may have
// changed. fn runs on a background goroutine.
func (c *Controller) OnChange(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

func (c *Controller) Filter() Filter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

func (c *Controller) Order() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order
}

func (c *Controller) Page() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page
}

// Editing returns the todo open for editing, if any.
func (c *Controller) Editing() (model.Todo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.editing == nil {
		return model.Todo{}, false
	}
	return *c.editing, true
}

func (c *Controller) State() ListState {
	c.mu.Lock()
	sub := c.sub
	c.mu.Unlock()
	return stateOf(sub)
}

func stateOf(sub ListSubscription) ListState {
	if sub == nil {
		return ListState{Status: api.StatusLoading}
	}
	st := sub.State()
	return ListState{
		Status:     st.Status,
		Todos:      st.Data.Todos,
		Pagination: st.Data.Pagination,
		Err:        st.Err,
		Fetching:   st.Fetching,
	}
}

// SetFilter switches the completion filter and goes back to page 1.
func (c *Controller) SetFilter(f Filter) error {
	switch f {
	case FilterAll, FilterCompleted, FilterIncomplete:
	default:
		return fmt.Errorf("%w: unknown filter %q", ErrValidation, f)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.filter == f {
		return nil
	}
	c.filter = f
	c.page = 1
	c.totalPages = 0
	return c.resubscribe()
}

func (c *Controller) SetSortOrder(order string) error {
	if order != model.OrderAsc && order != model.OrderDesc {
		return fmt.Errorf("%w: unknown order %q", ErrValidation, order)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.order == order {
		return nil
	}
	c.order = order
	return c.resubscribe()
}

// SetPage moves to page n, clamped to the pages the current list reports.
func (c *Controller) SetPage(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setPage(n)
}

func (c *Controller) NextPage() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setPage(c.page + 1)
}

func (c *Controller) PrevPage() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setPage(c.page - 1)
}

// setPage must be called with c.mu held.
func (c *Controller) setPage(n int) error {
	c.observe(stateOf(c.sub))
	total := c.totalPages
	if total == 0 {
		total = 1
	}
	n = max(1, min(n, total))
	if n == c.page {
		return nil
	}
	c.page = n
	return c.resubscribe()
}

// Refresh refetches the current list. It is the only way out of a list
// error.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	sub := c.sub
	c.mu.Unlock()
	if sub == nil {
		return nil
	}

	_, err := sub.Refetch(ctx)
	if err != nil {
		c.logger.Warn("refresh failed", zap.Error(err))
	}
	return err
}

func (c *Controller) Create(ctx context.Context, draft Draft) (model.Todo, error) {
	draft = draft.trimmed()
	if err := validate.Struct(draft); err != nil {
		return model.Todo{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	created, err := c.registry.CreateTodo(ctx, model.CreateTodo{
		TodoName:    draft.TodoName,
		Description: draft.Description,
	})
	if err != nil {
		c.failed("create", err)
		return model.Todo{}, err
	}
	c.notify.Notify(fmt.Sprintf("New todo created: %s", created.TodoName))
	return created, nil
}

func (c *Controller) BeginEdit(todo model.Todo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.editing = &todo
}

func (c *Controller) CancelEdit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.editing = nil
}

// Update sends only the fields that differ from the todo being edited. An
// empty or unchanged draft closes the editor without a request.
func (c *Controller) Update(ctx context.Context, id int64, draft Draft) (model.Todo, error) {
	c.mu.Lock()
	var (
		prev model.Todo
		ok   bool
	)
	if c.editing != nil && c.editing.ID == id {
		prev, ok = *c.editing, true
	} else {
		prev, ok = stateOf(c.sub).find(id)
	}
	c.mu.Unlock()
	if !ok {
		return model.Todo{}, ErrUnknownTodo
	}

	draft = draft.trimmed()
	patch := model.UpdateTodo{ID: id}
	if draft.TodoName != prev.TodoName {
		patch.TodoName = &draft.TodoName
	}
	if draft.Description != prev.Description {
		patch.Description = &draft.Description
	}

	var reject error
	if err := validate.Struct(draft); err != nil {
		reject = fmt.Errorf("%w: %v", ErrValidation, err)
	} else if patch.Empty() {
		reject = ErrUnchanged
	}
	if reject != nil {
		c.CancelEdit()
		c.notify.Notify(NoChange)
		return model.Todo{}, reject
	}

	updated, err := c.registry.UpdateTodo(ctx, patch)
	if err != nil {
		c.failed("update", err)
		return model.Todo{}, err
	}
	c.CancelEdit()
	c.notify.Notify(fmt.Sprintf("%s is updated.", updated.TodoName))
	return updated, nil
}

// Toggle flips the completion of a todo in the current list.
func (c *Controller) Toggle(ctx context.Context, id int64) (model.Todo, error) {
	todo, ok := c.State().find(id)
	if !ok {
		return model.Todo{}, ErrUnknownTodo
	}

	updated, err := c.registry.ToggleTodo(ctx, id, !todo.Completed)
	if err != nil {
		c.failed("toggle", err)
		return model.Todo{}, err
	}
	status := "completed"
	if todo.Completed {
		status = "undo"
	}
	c.notify.Notify("Todo status changed to " + status)
	return updated, nil
}

// Delete removes a todo after the user confirms.
func (c *Controller) Delete(ctx context.Context, id int64) error {
	name := strconv.FormatInt(id, 10)
	if todo, ok := c.State().find(id); ok {
		name = todo.TodoName
	}

	yes, err := c.confirm.Confirm(ctx, ConfirmDelete)
	if err != nil {
		return err
	}
	if !yes {
		return ErrNotConfirmed
	}

	if err := c.registry.DeleteTodo(ctx, id); err != nil {
		c.failed("delete", err)
		return err
	}
	c.notify.Notify(fmt.Sprintf("Todo %s is deleted.", name))
	return nil
}

func (c *Controller) failed(op string, err error) {
	c.logger.Warn(op+" failed", zap.Error(err))
	c.notify.Notify(err.Error())
}

// resubscribe must be called with c.mu held.
func (c *Controller) resubscribe() error {
	params := model.ListParams{
		Completed: c.filter.completed(),
		Page:      c.page,
		Order:     c.order,
	}
	sub, err := c.registry.WatchTodos(params)
	if err != nil {
		return err
	}
	if c.sub != nil {
		c.sub.Close()
	}
	c.sub = sub
	c.logger.Debug("watching list",
		zap.String("filter", string(c.filter)),
		zap.Int("page", c.page),
		zap.String("order", c.order),
	)

	go c.forward(sub)
	return nil
}

// observe records the page count of a loaded list. A list still loading
// keeps the previous count. Must be called with c.mu held.
func (c *Controller) observe(st ListState) {
	if st.Status == api.StatusData && st.Pagination != nil {
		c.totalPages = st.TotalPages()
	}
}

// forward relays subscription changes until the subscription is closed.
// A page left past the end by a shrinking list is pulled back in range.
func (c *Controller) forward(sub ListSubscription) {
	for range sub.Changes() {
		c.mu.Lock()
		if c.sub != sub {
			c.mu.Unlock()
			continue
		}
		st := stateOf(sub)
		c.observe(st)
		if st.Status == api.StatusData && !st.Fetching && c.page > st.TotalPages() {
			if err := c.setPage(st.TotalPages()); err != nil {
				c.logger.Warn("clamp page failed", zap.Error(err))
			}
		}
		fn := c.onChange
		c.mu.Unlock()

		if fn != nil {
			fn()
		}
	}
}
