package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/assert/v2"

	"github.com/rickgao/roomsync/internal/config"
	"github.com/rickgao/roomsync/internal/connection"
	"github.com/rickgao/roomsync/internal/loop"
	"github.com/rickgao/roomsync/internal/session"
)

type fakeSession struct {
	status session.Status
	roots  map[string]any
	err    error
}

func (f *fakeSession) Status(context.Context) (session.Status, error) {
	return f.status, f.err
}

func (f *fakeSession) Roots(context.Context) (map[string]any, error) {
	return f.roots, f.err
}

func (f *fakeSession) Root(_ context.Context, name string) (any, error) {
	if f.err != nil {
		return nil, f.err
	}
	root, ok := f.roots[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", session.ErrUnknownRoot, name)
	}
	return root, nil
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %s: %v (%s)", path, err, rec.Body.String())
	}
	return rec, body
}

func TestDebugHandler_Health(t *testing.T) {
	tests := []struct {
		name     string
		state    connection.State
		err      error
		wantCode int
		want     string
	}{
		{"joined", connection.StateJoined, nil, http.StatusOK, "healthy"},
		{"reconnecting", connection.StateClosed, nil, http.StatusOK, "degraded"},
		{"auth error", connection.StateAuthError, nil, http.StatusServiceUnavailable, "unhealthy"},
		{"loop stopped", connection.StateJoined, loop.ErrStopped, http.StatusServiceUnavailable, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newDebugHandler(&fakeSession{status: session.Status{State: tt.state}, err: tt.err}, quiet)
			rec, body := get(t, h, "/health")
			assert.Equal(t, rec.Code, tt.wantCode)
			assert.Equal(t, body["status"], tt.want)
		})
	}
}

func TestDebugHandler_State(t *testing.T) {
	h := newDebugHandler(&fakeSession{status: session.Status{
		Room:    "lobby",
		State:   connection.StateJoined,
		Resyncs: 2,
	}}, quiet)

	rec, body := get(t, h, "/debug/state")
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.Equal(t, body["room"], "lobby")
	assert.Equal(t, body["state"], "JOINED")
	assert.Equal(t, body["resyncs"], 2.0)
}

func TestDebugHandler_Roots(t *testing.T) {
	h := newDebugHandler(&fakeSession{roots: map[string]any{
		"event": map[string]any{"title": "standup"},
	}}, quiet)

	rec, body := get(t, h, "/debug/roots")
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.Equal(t, body["event"].(map[string]any)["title"], "standup")

	rec, body = get(t, h, "/debug/roots/event")
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.Equal(t, body["title"], "standup")

	rec, _ = get(t, h, "/debug/roots/nope")
	assert.Equal(t, rec.Code, http.StatusNotFound)

	h = newDebugHandler(&fakeSession{err: errors.New("loop stopped")}, quiet)
	rec, _ = get(t, h, "/debug/roots/event")
	assert.Equal(t, rec.Code, http.StatusServiceUnavailable)
}

func TestNewLogger(t *testing.T) {
	ctx := context.Background()

	logger := newLogger(config.LoggingConfig{Level: "warn", Format: "json"})
	assert.Equal(t, logger.Enabled(ctx, slog.LevelInfo), false)
	assert.Equal(t, logger.Enabled(ctx, slog.LevelWarn), true)

	logger = newLogger(config.LoggingConfig{Level: "DEBUG"})
	assert.Equal(t, logger.Enabled(ctx, slog.LevelDebug), true)

	logger = newLogger(config.LoggingConfig{})
	assert.Equal(t, logger.Enabled(ctx, slog.LevelDebug), false)
	assert.Equal(t, logger.Enabled(ctx, slog.LevelInfo), true)
}
