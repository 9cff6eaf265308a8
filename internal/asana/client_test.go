package asana

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Options{BaseURL: srv.URL, Token: "tok", MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond})
}

func TestTaskRequestsProjection(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/tasks/T1", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.Equal(t, TaskFields, r.URL.Query().Get("opt_fields"))
		_, _ = w.Write([]byte(`{"data":{"gid":"T1","name":"Ship","assignee":{"gid":"U1","name":"Anna"},"due_on":"2026-03-05","projects":[{"gid":"P","name":"Ops"}],"parent":{"gid":"T0","name":"Epic"},"completed":true}}`))
	})

	task, err := c.Task(context.Background(), "T1")
	require.NoError(t, err)
	require.Equal(t, "Ship", task.Name)
	require.Equal(t, "Anna", task.AssigneeLabel())
	require.Equal(t, "Ops", task.ProjectName())
	require.Equal(t, "Epic", task.Parent.Name)
	require.True(t, task.Completed)
}

func TestNotFound(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"errors":[{"message":"task: Unknown object"}]}`))
	})
	_, err := c.Story(context.Background(), "S1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRetriesOn429ThenSucceeds(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"gid":"U1","name":"Anna"}}`))
	})
	u, err := c.User(context.Background(), "U1")
	require.NoError(t, err)
	require.Equal(t, "Anna", u.Name)
	require.EqualValues(t, 2, calls.Load())
}

func TestAPIErrorMessage(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"errors":[{"message":"not authorized"}]}`))
	})
	_, err := c.Task(context.Background(), "T1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusForbidden, apiErr.Status)
	require.Equal(t, "not authorized", apiErr.Message)
}

func TestProjectTasksPaginates(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/projects/P1/tasks", r.URL.Path)
		if r.URL.Query().Get("offset") == "" {
			_, _ = w.Write([]byte(`{"data":[{"gid":"1","name":"a"}],"next_page":{"offset":"abc"}}`))
			return
		}
		require.Equal(t, "abc", r.URL.Query().Get("offset"))
		_, _ = w.Write([]byte(`{"data":[{"gid":"2","name":"b"}],"next_page":null}`))
	})
	tasks, err := c.ProjectTasks(context.Background(), "P1")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	require.Equal(t, "b", tasks[1].Name)
}

func TestCreateWebhookBody(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var body struct {
			Data struct {
				Resource string          `json:"resource"`
				Target   string          `json:"target"`
				Filters  []WebhookFilter `json:"filters"`
			} `json:"data"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "P1", body.Data.Resource)
		require.Equal(t, "https://bot.example/webhook", body.Data.Target)
		require.Len(t, body.Data.Filters, 6)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"gid":"W1","active":true,"target":"https://bot.example/webhook","resource":{"gid":"P1","name":"Ops"}}}`))
	})
	wh, err := c.CreateWebhook(context.Background(), "P1", "https://bot.example/webhook", DefaultWebhookFilters())
	require.NoError(t, err)
	require.Equal(t, "W1", wh.GID)
	require.True(t, wh.Active)
}

func TestEmptyToken(t *testing.T) {
	t.Parallel()
	c := New(Options{BaseURL: "http://127.0.0.1:0"})
	_, err := c.Task(context.Background(), "T1")
	require.ErrorIs(t, err, ErrNoToken)
}
