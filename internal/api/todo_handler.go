package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-openapi/strfmt"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/mycelian/mycelian-todo/internal/actor"
	"github.com/mycelian/mycelian-todo/internal/api/respond"
	"github.com/mycelian/mycelian-todo/internal/api/validate"
	"github.com/mycelian/mycelian-todo/internal/model"
)

// TodoService is the slice of todo.Service the handlers need.
type TodoService interface {
	ListItems(ctx context.Context, key string) ([]model.ListItem, bool, error)
	AddItem(ctx context.Context, key, description string) error
}

// TodoItem is the wire form of a list item.
type TodoItem struct {
	Description  string          `json:"description"`
	DateAdded    strfmt.DateTime `json:"dateAdded"`
	DateFinished strfmt.DateTime `json:"dateFinished"`
	Finished     bool            `json:"finished"`
}

// AddItemRequest is the POST body.
type AddItemRequest struct {
	Description string `json:"description"`
}

// TodoHandler serves /api/todo/{email}.
type TodoHandler struct {
	svc TodoService
}

func NewTodoHandler(svc TodoService) *TodoHandler { return &TodoHandler{svc: svc} }

// ListItems GET /api/todo/{email}
func (h *TodoHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	email := mux.Vars(r)["email"]
	if ms := validate.ListItems(email); !ms.Valid() {
		respond.WriteModelState(w, ms)
		return
	}

	items, found, err := h.svc.ListItems(r.Context(), email)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !found {
		respond.WriteNotFound(w, fmt.Sprintf("no todo list for %s", email))
		return
	}

	out := make([]TodoItem, 0, len(items))
	for _, it := range items {
		out = append(out, TodoItem{
			Description:  it.Description,
			DateAdded:    strfmt.DateTime(it.AddedAt),
			DateFinished: strfmt.DateTime(it.FinishedAt),
			Finished:     it.Finished,
		})
	}
	respond.WriteJSON(w, http.StatusOK, out)
}

// AddItem POST /api/todo/{email}
func (h *TodoHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	email := mux.Vars(r)["email"]

	var req AddItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if ms := validate.AddItem(email, req.Description); !ms.Valid() {
		respond.WriteModelState(w, ms)
		return
	}

	if err := h.svc.AddItem(r.Context(), email, req.Description); err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]string{"status": "added"})
}

// writeServiceError maps domain errors to HTTP status codes.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case model.IsValidationError(err):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrCancelled):
		status = http.StatusRequestTimeout
	case errors.Is(err, model.ErrStorageUnavailable),
		errors.Is(err, model.ErrActivationFailed),
		errors.Is(err, actor.ErrMailboxFull),
		errors.Is(err, actor.ErrDirectoryClosed):
		status = http.StatusServiceUnavailable
	}

	ev := log.Ctx(r.Context()).Warn()
	if status >= http.StatusInternalServerError {
		ev = log.Ctx(r.Context()).Error().Stack()
	}
	ev.Err(err).Int("status", status).Str("path", r.URL.Path).Msg("request failed")
	respond.WriteError(w, status, err.Error())
}
