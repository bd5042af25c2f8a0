package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mycelian/mycelian-todo/internal/actor"
	"github.com/mycelian/mycelian-todo/internal/api/respond"
	"github.com/mycelian/mycelian-todo/internal/model"
	"github.com/mycelian/mycelian-todo/internal/reminder"
	"github.com/mycelian/mycelian-todo/internal/store/memory"
	"github.com/mycelian/mycelian-todo/internal/todo"
)

type staticHealth struct{ ok bool }

func (s staticHealth) IsHealthy() bool             { return s.ok }
func (s staticHealth) Components() map[string]bool { return map[string]bool{"store": s.ok} }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	st := memory.New()
	sched := reminder.New(st.Reminders(), reminder.Config{}, zerolog.Nop())
	dir := todo.NewDirectory(actor.Config{}, todo.Deps{
		States:         st.States(),
		Reminders:      sched,
		ReminderDue:    10 * time.Second,
		ReminderPeriod: 24 * time.Hour,
		Log:            zerolog.Nop(),
	})
	srv := httptest.NewServer(NewRouter(todo.NewService(dir), staticHealth{ok: true}, zerolog.Nop()))
	t.Cleanup(func() {
		srv.Close()
		_ = dir.Close()
	})
	return srv
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestTodoAPI_AddThenList(t *testing.T) {
	srv := newTestServer(t)

	assert.Equal(t, http.StatusOK, post(t, srv.URL+"/api/todo/a@x.com", `{"description":"buy milk"}`).StatusCode)
	assert.Equal(t, http.StatusOK, post(t, srv.URL+"/api/todo/a@x.com", `{"description":"walk dog"}`).StatusCode)

	resp := get(t, srv.URL+"/api/todo/a@x.com")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))

	var items []TodoItem
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&items))
	require.Len(t, items, 2)
	assert.Equal(t, "buy milk", items[0].Description)
	assert.Equal(t, "walk dog", items[1].Description)
	assert.False(t, items[0].Finished)
	assert.False(t, items[1].Finished)
	assert.False(t, time.Time(items[0].DateAdded).IsZero())

	assert.Equal(t, http.StatusNotFound, get(t, srv.URL+"/api/todo/b@x.com").StatusCode)
}

func TestTodoAPI_Validation(t *testing.T) {
	srv := newTestServer(t)

	resp := post(t, srv.URL+"/api/todo/a@x.com", `{"description":""}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var body respond.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body.ModelState, "description")

	assert.Equal(t, http.StatusBadRequest, post(t, srv.URL+"/api/todo/not-an-email", `{"description":"x"}`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, post(t, srv.URL+"/api/todo/a@x.com", `{`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, get(t, srv.URL+"/api/todo/not-an-email").StatusCode)
}

func TestTodoAPI_HealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	resp := get(t, srv.URL+"/api/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var h map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&h))
	assert.Equal(t, "healthy", h["status"])

	assert.Equal(t, http.StatusOK, get(t, srv.URL+"/metrics").StatusCode)
}

type failingService struct{ err error }

func (f failingService) ListItems(context.Context, string) ([]model.ListItem, bool, error) {
	return nil, false, f.err
}
func (f failingService) AddItem(context.Context, string, string) error { return f.err }

func TestWriteServiceError_StatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"storage", &model.StorageError{Op: "get state", Err: errors.New("io")}, http.StatusServiceUnavailable},
		{"activation", &model.ActivationError{Key: "a@x.com", Err: errors.New("boom")}, http.StatusServiceUnavailable},
		{"mailbox", &actor.MailboxFullError{Key: "a@x.com", Length: 1, Capacity: 1}, http.StatusServiceUnavailable},
		{"cancelled", model.ErrCancelled, http.StatusRequestTimeout},
		{"validation", model.NewValidationError("key", "empty"), http.StatusBadRequest},
		{"other", errors.New("surprise"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter(failingService{err: tt.err}, staticHealth{}, zerolog.Nop())
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/todo/a@x.com", nil))
			assert.Equal(t, tt.want, rr.Code)
		})
	}
}
