package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/schema"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/todo-client/internal/model"
	"github.com/BuzzLyutic/todo-client/internal/repo"
	"github.com/BuzzLyutic/todo-client/internal/service"
	"github.com/BuzzLyutic/todo-client/pkg/respond"
)

var queryDecoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}()

type TodoHandler struct {
	service *service.TodoService
	logger  *zap.Logger
}

func NewTodoHandler(srv *service.TodoService, logger *zap.Logger) *TodoHandler {
	return &TodoHandler{
		service: srv,
		logger:  logger,
	}
}

func (h *TodoHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength == 0 {
		respond.Error(w, r, http.StatusBadRequest, "empty request body")
		return
	}

	var req model.CreateTodo
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debug("failed to decode json", zap.Error(err))
		respond.Error(w, r, http.StatusBadRequest, fmt.Sprintf("invalid json: %v", err))
		return
	}

	todo, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/todos/%d", todo.ID))
	respond.JSON(w, r, http.StatusCreated, todo)
}

func (h *TodoHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.todoID(w, r)
	if !ok {
		return
	}

	todo, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, todo)
}

func (h *TodoHandler) List(w http.ResponseWriter, r *http.Request) {
	var params model.ListParams
	if err := queryDecoder.Decode(&params, r.URL.Query()); err != nil {
		respond.Error(w, r, http.StatusBadRequest, fmt.Sprintf("invalid query: %v", err))
		return
	}

	resp, err := h.service.List(r.Context(), params)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, resp)
}

func (h *TodoHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.todoID(w, r)
	if !ok {
		return
	}

	var req model.UpdateTodo
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, r, http.StatusBadRequest, "invalid json")
		return
	}
	req.ID = id

	todo, err := h.service.Update(r.Context(), req)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}

	respond.JSON(w, r, http.StatusOK, todo)
}

func (h *TodoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.todoID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		h.handleErrors(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *TodoHandler) todoID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		respond.Error(w, r, http.StatusNotFound, "not found")
		return 0, false
	}
	return id, true
}

func (h *TodoHandler) handleErrors(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, repo.ErrorNotFound):
		respond.Error(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrValidation), errors.Is(err, repo.ErrorInvalid):
		respond.Error(w, r, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("internal error", zap.Error(err))
		respond.Error(w, r, http.StatusInternalServerError, "internal error")
	}
}
