// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package booster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	handshakeTimeout = 30 * time.Second
	pingInterval     = 30 * time.Second
	readTimeout      = 90 * time.Second
	writeTimeout     = 10 * time.Second
)

// EventSource opens subscriptions to the remote feed.
type EventSource interface {
	Open(ctx context.Context, mode StreamMode) (EventStream, error)
}

// EventStream is a lazy, unbounded sequence of events backed by one live
// connection. Next blocks until an event arrives, the stream fails, or ctx
// is done; it returns io.EOF once the remote closes the connection
// normally. Close releases the connection and is safe to call twice.
type EventStream interface {
	Next(ctx context.Context) (Event, error)
	Close() error
}

// WebSocketSource subscribes to the Mastodon streaming API. The session is
// fixed at construction; a new session needs a new source.
type WebSocketSource struct {
	session      *Session
	streamingURL string
	dialer       *websocket.Dialer
	log          zerolog.Logger

	pingInterval time.Duration
	readTimeout  time.Duration
}

var _ EventSource = (*WebSocketSource)(nil)

// NewWebSocketSource creates a source for the session. streamingURL may be
// empty, in which case the session's instance URL is used.
func NewWebSocketSource(session *Session, streamingURL string, log zerolog.Logger) *WebSocketSource {
	if streamingURL == "" && session != nil {
		streamingURL = session.Server()
	}
	return &WebSocketSource{
		session:      session,
		streamingURL: streamingURL,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		log:          log.With().Str("component", "stream").Logger(),
		pingInterval: pingInterval,
		readTimeout:  readTimeout,
	}
}

// Open dials the streaming API. A handshake rejected with 401 or 403 is
// reported as ErrAccessTokenRejected; any other failure is transient.
func (s *WebSocketSource) Open(ctx context.Context, mode StreamMode) (EventStream, error) {
	if err := s.session.Validate(); err != nil {
		return nil, err
	}
	endpoint, err := streamingEndpoint(s.streamingURL, mode)
	if err != nil {
		return nil, err
	}

	conn, resp, err := s.dialer.DialContext(ctx, endpoint, s.session.authHeader())
	if err != nil {
		if resp != nil {
			switch resp.StatusCode {
			case http.StatusUnauthorized, http.StatusForbidden:
				return nil, fmt.Errorf("%w: streaming handshake returned %d", ErrAccessTokenRejected, resp.StatusCode)
			}
			return nil, fmt.Errorf("streaming handshake returned %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial streaming api: %w", err)
	}

	connID := uuid.NewString()
	st := &wsStream{
		id:           connID,
		conn:         conn,
		frames:       make(chan frameResult),
		stopChan:     make(chan struct{}),
		log:          s.log.With().Str("conn_id", connID).Str("stream", mode.StreamName()).Logger(),
		pingInterval: s.pingInterval,
		readTimeout:  s.readTimeout,
	}
	st.wg.Add(2)
	go st.readLoop()
	go st.pingLoop()

	st.log.Info().Msg("Streaming connection opened")
	return st, nil
}

type frameResult struct {
	evt Event
	err error
}

// wsStream is one open streaming connection.
type wsStream struct {
	id   string
	conn *websocket.Conn

	frames   chan frameResult
	stopOnce sync.Once
	stopChan chan struct{}
	wg       sync.WaitGroup
	log      zerolog.Logger

	pingInterval time.Duration
	readTimeout  time.Duration
}

// ConnID returns the identifier used to correlate this connection in logs.
func (st *wsStream) ConnID() string { return st.id }

func (st *wsStream) Next(ctx context.Context) (Event, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res, ok := <-st.frames:
		if !ok {
			return nil, io.EOF
		}
		return res.evt, res.err
	}
}

func (st *wsStream) Close() error {
	var err error
	st.stopOnce.Do(func() {
		close(st.stopChan)
		_ = st.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeTimeout),
		)
		err = st.conn.Close()
		st.wg.Wait()
		st.log.Debug().Msg("Streaming connection closed")
	})
	return err
}

// readLoop is the only reader of the connection. It ends after delivering
// the first error, which is io.EOF for a normal close.
func (st *wsStream) readLoop() {
	defer st.wg.Done()
	defer close(st.frames)

	_ = st.conn.SetReadDeadline(time.Now().Add(st.readTimeout))
	st.conn.SetPongHandler(func(string) error {
		return st.conn.SetReadDeadline(time.Now().Add(st.readTimeout))
	})

	for {
		_, data, err := st.conn.ReadMessage()
		if err != nil {
			st.deliver(frameResult{err: readError(err)})
			return
		}
		_ = st.conn.SetReadDeadline(time.Now().Add(st.readTimeout))

		evt, err := DecodeFrame(data)
		if evt == nil && err == nil {
			continue
		}
		if !st.deliver(frameResult{evt: evt, err: err}) || err != nil {
			return
		}
	}
}

// deliver hands a result to Next. It returns false once the stream is
// being closed.
func (st *wsStream) deliver(res frameResult) bool {
	select {
	case st.frames <- res:
		return true
	case <-st.stopChan:
		return false
	}
}

func (st *wsStream) pingLoop() {
	defer st.wg.Done()
	ticker := time.NewTicker(st.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-st.stopChan:
			return
		case <-ticker.C:
			err := st.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			if err != nil {
				st.log.Debug().Err(err).Msg("Ping failed")
				return
			}
		}
	}
}

// readError maps a read failure. A normal close by the server ends the
// sequence; anything else is a transient fault.
func readError(err error) error {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return io.EOF
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && closeErr.Code == websocket.ClosePolicyViolation {
		return fmt.Errorf("%w: %s", ErrAccessTokenRejected, closeErr.Text)
	}
	return fmt.Errorf("stream read failed: %w", err)
}
