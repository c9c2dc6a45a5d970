package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/rickgao/roomsync/internal/connection"
	"github.com/rickgao/roomsync/internal/session"
)

// sessionView is the read side of a session served by the debug endpoints.
type sessionView interface {
	Status(ctx context.Context) (session.Status, error)
	Roots(ctx context.Context) (map[string]any, error)
	Root(ctx context.Context, name string) (any, error)
}

// newDebugHandler creates the HTTP handler for health and state inspection.
func newDebugHandler(sess sessionView, logger *slog.Logger) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status string           `json:"status"`
			State  connection.State `json:"state"`
			Error  string           `json:"error,omitempty"`
		}{Status: "healthy"}

		st, err := sess.Status(ctx)
		switch {
		case err != nil:
			health.Status = "unhealthy"
			health.Error = err.Error()
		case st.State.Terminal():
			health.Status = "unhealthy"
		case st.State != connection.StateJoined:
			health.Status = "degraded"
		}
		health.State = st.State

		code := http.StatusOK
		if health.Status == "unhealthy" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, health, logger)
	}).Methods(http.MethodGet)

	r.HandleFunc("/debug/state", func(w http.ResponseWriter, req *http.Request) {
		st, err := sess.Status(req.Context())
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()}, logger)
			return
		}
		writeJSON(w, http.StatusOK, st, logger)
	}).Methods(http.MethodGet)

	r.HandleFunc("/debug/roots", func(w http.ResponseWriter, req *http.Request) {
		roots, err := sess.Roots(req.Context())
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()}, logger)
			return
		}
		writeJSON(w, http.StatusOK, roots, logger)
	}).Methods(http.MethodGet)

	r.HandleFunc("/debug/roots/{name}", func(w http.ResponseWriter, req *http.Request) {
		root, err := sess.Root(req.Context(), mux.Vars(req)["name"])
		switch {
		case errors.Is(err, session.ErrUnknownRoot):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()}, logger)
		case err != nil:
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()}, logger)
		default:
			writeJSON(w, http.StatusOK, root, logger)
		}
	}).Methods(http.MethodGet)

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("write response failed", "error", err)
	}
}
