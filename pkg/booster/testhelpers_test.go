// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package booster

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mattn/go-mastodon"
	"github.com/rs/zerolog"
)

// endpointCall records which API endpoints were hit during a test.
type endpointCall struct {
	Method string
	Path   string
	Query  string
	Body   string
	Auth   string
}

// fakeMastodon is a test helper that wraps an httptest.Server simulating
// the Mastodon REST and streaming APIs. It records calls and serves canned
// responses.
type fakeMastodon struct {
	Server *httptest.Server

	mu    sync.Mutex
	calls []endpointCall

	// Token is the accepted bearer token.
	Token string
	// AuthCode is the accepted authorization code for /oauth/token.
	AuthCode string
	// StatusURLs maps status ID to its public URL in reblog responses.
	StatusURLs map[string]string
	// Notifications is the raw JSON array served by /api/v1/notifications.
	Notifications string
	// StreamFrames are written to each streaming connection after the
	// upgrade.
	StreamFrames []string
	// CloseStream closes the streaming connection normally after the
	// frames instead of keeping it open.
	CloseStream bool
	// FailEndpoints maps path prefixes to the status code they return.
	FailEndpoints map[string]int

	upgrader websocket.Upgrader
	streams  chan *websocket.Conn
}

func newFakeMastodon() *fakeMastodon {
	f := &fakeMastodon{
		Token:         "test-token",
		AuthCode:      "test-code",
		StatusURLs:    make(map[string]string),
		Notifications: "[]",
		FailEndpoints: make(map[string]int),
		streams:       make(chan *websocket.Conn, 8),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handler))
	return f
}

func (f *fakeMastodon) Close() {
	f.Server.CloseClientConnections()
	f.Server.Close()
}

func (f *fakeMastodon) URL() string { return f.Server.URL }

// Session returns a session accepted by the fake server.
func (f *fakeMastodon) Session() *Session {
	return NewSession(f.URL(), "client-id", "client-secret", f.Token)
}

func (f *fakeMastodon) record(r *http.Request, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, endpointCall{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Body:   body,
		Auth:   r.Header.Get("Authorization"),
	})
}

func (f *fakeMastodon) Calls() []endpointCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]endpointCall, len(f.calls))
	copy(cp, f.calls)
	return cp
}

// CallsTo returns the calls whose path equals path.
func (f *fakeMastodon) CallsTo(method, path string) []endpointCall {
	var out []endpointCall
	for _, c := range f.Calls() {
		if c.Method == method && c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

// WaitStream returns the next accepted streaming connection.
func (f *fakeMastodon) WaitStream(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-f.streams:
		return conn
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for streaming connection")
		return nil
	}
}

func (f *fakeMastodon) authorized(r *http.Request) bool {
	return r.Header.Get("Authorization") == "Bearer "+f.Token
}

func (f *fakeMastodon) handler(w http.ResponseWriter, r *http.Request) {
	body := ""
	if r.Body != nil {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
	}
	f.record(r, body)

	f.mu.Lock()
	for prefix, code := range f.FailEndpoints {
		if strings.HasPrefix(r.URL.Path, prefix) {
			f.mu.Unlock()
			http.Error(w, `{"error":"injected failure"}`, code)
			return
		}
	}
	f.mu.Unlock()

	path := r.URL.Path
	switch {
	case path == "/api/v1/streaming":
		f.handleStreaming(w, r)

	case strings.HasPrefix(path, "/api/v1/statuses/") && strings.HasSuffix(path, "/reblog") && r.Method == http.MethodPost:
		if !f.authorized(r) {
			writeJSONError(w, http.StatusUnauthorized, "The access token is invalid")
			return
		}
		id := strings.TrimSuffix(strings.TrimPrefix(path, "/api/v1/statuses/"), "/reblog")
		f.mu.Lock()
		url := f.StatusURLs[id]
		f.mu.Unlock()
		writeJSON(w, map[string]any{
			"id":     "reblog-" + id,
			"reblog": map[string]any{"id": id, "url": url},
		})

	case path == "/api/v1/accounts/verify_credentials":
		if !f.authorized(r) {
			writeJSONError(w, http.StatusUnauthorized, "The access token is invalid")
			return
		}
		writeJSON(w, map[string]any{
			"id":       "1",
			"username": "booster",
			"acct":     "booster",
			"url":      f.URL() + "/@booster",
		})

	case path == "/api/v1/apps" && r.Method == http.MethodPost:
		writeJSON(w, map[string]any{
			"id":            "42",
			"redirect_uri":  oobRedirectURI,
			"client_id":     "client-id",
			"client_secret": "client-secret",
		})

	case path == "/oauth/token" && r.Method == http.MethodPost:
		if !strings.Contains(body, "code="+f.AuthCode) {
			writeJSONError(w, http.StatusBadRequest, "invalid_grant")
			return
		}
		writeJSON(w, map[string]any{
			"access_token": f.Token,
			"token_type":   "Bearer",
			"scope":        registerScopes,
		})

	case path == "/api/v1/notifications":
		if !f.authorized(r) {
			writeJSONError(w, http.StatusUnauthorized, "The access token is invalid")
			return
		}
		f.mu.Lock()
		notifs := f.Notifications
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, notifs)

	default:
		http.NotFound(w, r)
	}
}

func (f *fakeMastodon) handleStreaming(w http.ResponseWriter, r *http.Request) {
	if !f.authorized(r) {
		writeJSONError(w, http.StatusUnauthorized, "Error: Invalid access token")
		return
	}
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	f.mu.Lock()
	frames := append([]string(nil), f.StreamFrames...)
	closeAfter := f.CloseStream
	f.mu.Unlock()

	for _, frame := range frames {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			_ = conn.Close()
			return
		}
	}
	if closeAfter {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	f.streams <- conn
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// notificationJSON builds a notification payload as the server sends it.
func notificationJSON(id, typ, accountURL, statusID, statusURL string) string {
	n := map[string]any{
		"id":      id,
		"type":    typ,
		"account": map[string]any{"id": "7", "acct": "alice", "url": accountURL},
	}
	if statusID != "" {
		n["status"] = map[string]any{"id": statusID, "url": statusURL, "content": "<p>hello</p>"}
	}
	b, _ := json.Marshal(n)
	return string(b)
}

// streamFrameJSON wraps a payload in a streaming API envelope.
func streamFrameJSON(event, payload string) string {
	b, _ := json.Marshal(map[string]any{
		"stream":  []string{"user"},
		"event":   event,
		"payload": payload,
	})
	return string(b)
}

// mention builds a notification event directly.
func mention(id, accountURL, statusID, statusURL string) *NotificationEvent {
	n := &mastodon.Notification{
		ID:      mastodon.ID(id),
		Type:    NotificationMention,
		Account: mastodon.Account{URL: accountURL},
	}
	if statusID != "" {
		n.Status = &mastodon.Status{ID: mastodon.ID(statusID), URL: statusURL}
	}
	return &NotificationEvent{Notification: n}
}

func notification(id, typ, accountURL string) *NotificationEvent {
	return &NotificationEvent{Notification: &mastodon.Notification{
		ID:      mastodon.ID(id),
		Type:    typ,
		Account: mastodon.Account{URL: accountURL},
	}}
}

// scriptedStream delivers its events, then returns err. A nil err blocks
// until ctx is done.
type scriptedStream struct {
	source *scriptedSource
	events []Event
	err    error

	mu     sync.Mutex
	pos    int
	closed bool
}

func (s *scriptedStream) Next(ctx context.Context) (Event, error) {
	s.mu.Lock()
	if s.pos < len(s.events) {
		evt := s.events[s.pos]
		s.pos++
		s.mu.Unlock()
		return evt, nil
	}
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *scriptedStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		if s.source != nil {
			s.source.streamClosed()
		}
	}
	return nil
}

func (s *scriptedStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// openResult is one scripted answer to Open.
type openResult struct {
	stream *scriptedStream
	err    error
}

// scriptedSource answers Open calls in order. Once the script runs out,
// Open blocks until ctx is done.
type scriptedSource struct {
	mu      sync.Mutex
	results []openResult
	opens   int
	modes   []StreamMode
	live    int
	maxLive int
}

func newScriptedSource(results ...openResult) *scriptedSource {
	s := &scriptedSource{results: results}
	for _, r := range results {
		if r.stream != nil {
			r.stream.source = s
		}
	}
	return s
}

func (s *scriptedSource) Open(ctx context.Context, mode StreamMode) (EventStream, error) {
	s.mu.Lock()
	s.modes = append(s.modes, mode)
	if s.opens >= len(s.results) {
		s.opens++
		s.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	r := s.results[s.opens]
	s.opens++
	if r.err != nil {
		s.mu.Unlock()
		return nil, r.err
	}
	s.live++
	s.maxLive = max(s.maxLive, s.live)
	s.mu.Unlock()
	return r.stream, nil
}

func (s *scriptedSource) streamClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live--
}

func (s *scriptedSource) Opens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}

func (s *scriptedSource) MaxLive() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxLive
}

// recordingObserver captures every observer callback.
type recordingObserver struct {
	mu         sync.Mutex
	changes    []StateChange
	classified []Decision
	reactions  []reactionRecord

	onState   func(StateChange)
	onReacted func(Decision, error)
}

type reactionRecord struct {
	Decision Decision
	Ack      Ack
	Err      error
}

func (o *recordingObserver) StateChanged(c StateChange) {
	o.mu.Lock()
	o.changes = append(o.changes, c)
	fn := o.onState
	o.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

func (o *recordingObserver) EventClassified(_ Event, d Decision) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.classified = append(o.classified, d)
}

func (o *recordingObserver) Reacted(d Decision, ack Ack, err error) {
	o.mu.Lock()
	o.reactions = append(o.reactions, reactionRecord{Decision: d, Ack: ack, Err: err})
	fn := o.onReacted
	o.mu.Unlock()
	if fn != nil {
		fn(d, err)
	}
}

// States returns the target state of every transition.
func (o *recordingObserver) States() []State {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]State, len(o.changes))
	for i, c := range o.changes {
		out[i] = c.To
	}
	return out
}

func (o *recordingObserver) Changes() []StateChange {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]StateChange(nil), o.changes...)
}

func (o *recordingObserver) Reactions() []reactionRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]reactionRecord(nil), o.reactions...)
}

// fakeReactor records React calls and fails for configured statuses.
type fakeReactor struct {
	mu       sync.Mutex
	calls    []mastodon.ID
	failures map[mastodon.ID]error
	ctxErrs  []error
}

func (r *fakeReactor) React(ctx context.Context, d Decision) (Ack, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, d.StatusID)
	r.ctxErrs = append(r.ctxErrs, ctx.Err())
	if err := r.failures[d.StatusID]; err != nil {
		return Ack{}, &ReactionError{StatusID: d.StatusID, Err: err}
	}
	return Ack{URL: d.PublicURL}, nil
}

func (r *fakeReactor) Calls() []mastodon.ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]mastodon.ID(nil), r.calls...)
}

// fakeCatchUp returns canned events and records the since ids.
type fakeCatchUp struct {
	mu     sync.Mutex
	events []Event
	err    error
	since  []mastodon.ID
}

func (c *fakeCatchUp) Missed(_ context.Context, since mastodon.ID) ([]Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.since = append(c.since, since)
	return c.events, c.err
}

// immediateAfter fires at once and records the requested delays.
type immediateAfter struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (a *immediateAfter) After(d time.Duration) <-chan time.Time {
	a.mu.Lock()
	a.delays = append(a.delays, d)
	a.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

func (a *immediateAfter) Delays() []time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]time.Duration(nil), a.delays...)
}

// neverAfter never fires.
func neverAfter(time.Duration) <-chan time.Time { return nil }

var errTransient = fmt.Errorf("connection reset by peer")

func testLogger() zerolog.Logger { return zerolog.Nop() }

const trustedOrigin = "https://trusted.example/"

func testClassifier() Classifier {
	return Classifier{TrustedOrigin: trustedOrigin, Mode: MatchPrefix}
}
