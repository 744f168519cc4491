package worker

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientAddTodoPR(t *testing.T) {
	var gotPath, gotContentType string
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	err := c.AddTodoPR(context.Background(), "task-1", AddTodoPRRequest{
		PRURL:       ptr("https://github.com/org/repo/pull/9"),
		Signature:   "sig",
		RoundNumber: 3,
		Success:     true,
		Message:     "",
	})
	require.NoError(t, err)

	assert.Equal(t, "/task/task-1/add-todo-pr", gotPath)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, map[string]any{
		"prUrl":       "https://github.com/org/repo/pull/9",
		"signature":   "sig",
		"roundNumber": float64(3),
		"success":     true,
		"message":     "",
	}, got)
}

func TestClientAddTodoPRNullURL(t *testing.T) {
	var raw []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	err := NewClient(srv.URL).AddTodoPR(context.Background(), "task-1", AddTodoPRRequest{Signature: "sig", RoundNumber: 1})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"prUrl":null`)
}

func TestClientAddTodoPRNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Failed to save PR"}`))
	}))
	defer srv.Close()

	err := NewClient(srv.URL).AddTodoPR(context.Background(), "task-1", AddTodoPRRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 400")
	assert.Contains(t, err.Error(), "Failed to save PR")
}

func TestClientAddTodoPRNetworkError(t *testing.T) {
	err := NewClient("http://127.0.0.1:1").AddTodoPR(context.Background(), "task-1", AddTodoPRRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "posting result")
}
