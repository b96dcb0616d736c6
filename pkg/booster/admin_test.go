// Copyright 2024-2026 Aiku AI

package booster

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiku/mastodon-booster/pkg/booster/ledger"
)

type stubReconnector struct {
	running bool
	calls   int
}

func (r *stubReconnector) Reconnect() bool {
	r.calls++
	return r.running
}

func serveAdmin(api *AdminAPI, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestAdminStatus(t *testing.T) {
	t.Parallel()
	tracker := NewStatusTracker()
	tracker.StateChanged(StateChange{From: StateConnecting, To: StateStreaming, ConnID: "c1", At: time.Now()})
	tracker.EventClassified(nil, boostDecision("s1", ""))
	api := &AdminAPI{Status: tracker, Log: testLogger()}

	rec := serveAdmin(api, http.MethodGet, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "streaming", got.State)
	assert.Equal(t, "c1", got.ConnID)
	assert.Equal(t, 1, got.Matches)

	assert.Equal(t, http.StatusMethodNotAllowed, serveAdmin(api, http.MethodPost, "/api/status").Code)
}

func TestAdminReconnect(t *testing.T) {
	t.Parallel()
	rc := &stubReconnector{running: true}
	api := &AdminAPI{Reconnector: rc, Log: testLogger()}

	rec := serveAdmin(api, http.MethodPost, "/api/reconnect")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"reconnecting":true}`, rec.Body.String())
	assert.Equal(t, 1, rc.calls)

	assert.Equal(t, http.StatusMethodNotAllowed, serveAdmin(api, http.MethodGet, "/api/reconnect").Code)
	assert.Equal(t, 1, rc.calls)

	rc.running = false
	assert.Equal(t, http.StatusServiceUnavailable, serveAdmin(api, http.MethodPost, "/api/reconnect").Code)

	api.Reconnector = nil
	assert.Equal(t, http.StatusServiceUnavailable, serveAdmin(api, http.MethodPost, "/api/reconnect").Code)
}

func TestAdminHistory(t *testing.T) {
	t.Parallel()
	store, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer store.Close()
	api := &AdminAPI{Ledger: store, Log: testLogger()}

	rec := serveAdmin(api, http.MethodGet, "/api/history")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	for _, id := range []string{"s1", "s2", "s3"} {
		require.NoError(t, store.Record(context.Background(), ledger.Entry{StatusID: id, Outcome: ledger.OutcomeBoosted}))
	}

	rec = serveAdmin(api, http.MethodGet, "/api/history?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []ledger.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.Len(t, entries, 2)

	for _, bad := range []string{"0", "-1", "lots"} {
		assert.Equal(t, http.StatusBadRequest, serveAdmin(api, http.MethodGet, "/api/history?limit="+bad).Code, bad)
	}
	assert.Equal(t, http.StatusOK, serveAdmin(api, http.MethodGet, "/api/history?limit=100000").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serveAdmin(api, http.MethodDelete, "/api/history").Code)
}

func TestAdminHistoryWithoutLedger(t *testing.T) {
	t.Parallel()
	api := &AdminAPI{Log: testLogger()}
	assert.Equal(t, http.StatusNotFound, serveAdmin(api, http.MethodGet, "/api/history").Code)
}

func TestAdminServe(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	api := &AdminAPI{Status: NewStatusTracker(), Log: testLogger()}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- api.Serve(ctx, addr) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/api/status")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("admin API did not shut down")
	}
}
