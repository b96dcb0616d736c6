// Copyright 2024-2026 Aiku AI

package booster

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiku/mastodon-booster/pkg/booster/ledger"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

// Reconnector drops and reopens the live stream. It reports false when
// no supervisor is running.
type Reconnector interface {
	Reconnect() bool
}

// AdminAPI serves the status, reconnect and history endpoints.
type AdminAPI struct {
	Status      *StatusTracker
	Reconnector Reconnector
	// Ledger is optional; /api/history returns 404 without it.
	Ledger *ledger.Store
	Log    zerolog.Logger
}

// Handler returns the admin API routes.
func (a *AdminAPI) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", a.HandleStatus)
	mux.HandleFunc("/api/reconnect", a.HandleReconnect)
	mux.HandleFunc("/api/history", a.HandleHistory)
	return mux
}

// Serve listens on addr until ctx is done.
func (a *AdminAPI) Serve(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      a.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Log.Info().Str("addr", addr).Msg("Starting admin API")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			a.Log.Warn().Err(err).Msg("Admin API shutdown error")
		}
		return nil
	}
}

// HandleStatus is an HTTP handler for GET /api/status.
func (a *AdminAPI) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var status Status
	if a.Status != nil {
		status = a.Status.Snapshot()
	}
	a.writeJSON(w, http.StatusOK, status)
}

// HandleReconnect is an HTTP handler for POST /api/reconnect.
func (a *AdminAPI) HandleReconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	a.Log.Info().Str("remote_addr", r.RemoteAddr).Msg("Reconnect requested")

	if a.Reconnector == nil || !a.Reconnector.Reconnect() {
		http.Error(w, "supervisor not running", http.StatusServiceUnavailable)
		return
	}
	a.writeJSON(w, http.StatusAccepted, map[string]bool{"reconnecting": true})
}

// HandleHistory is an HTTP handler for GET /api/history?limit=N.
func (a *AdminAPI) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if a.Ledger == nil {
		http.Error(w, "ledger disabled", http.StatusNotFound)
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	entries, err := a.Ledger.Recent(r.Context(), limit)
	if err != nil {
		a.Log.Err(err).Msg("Failed to read ledger")
		http.Error(w, "failed to read ledger", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	a.writeJSON(w, http.StatusOK, entries)
}

func (a *AdminAPI) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.Log.Warn().Err(err).Msg("Failed to write admin API response")
	}
}
