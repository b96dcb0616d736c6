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
	"sync/atomic"
	"time"

	"github.com/mattn/go-mastodon"
	"github.com/rs/zerolog"
)

// State is the supervisor's position in its lifecycle.
type State int32

const (
	StateConnecting State = iota
	StateStreaming
	StateBackoffWait
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateBackoffWait:
		return "backoff_wait"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// errReconnectRequested ends a stream on Reconnect. It is not a failure.
var errReconnectRequested = errors.New("reconnect requested")

// SupervisorParams wires a Supervisor. Source, Reactor and Classifier
// are required; the rest have defaults.
type SupervisorParams struct {
	Source     EventSource
	Mode       StreamMode
	Classifier Classifier
	Reactor    Reactor
	Policy     RestartPolicy
	Observer   Observer
	// CatchUp, when set, replays notifications missed while disconnected.
	CatchUp CatchUp
	// ReactTimeout bounds a single reaction. Reactions are not cancelled
	// by shutdown.
	ReactTimeout time.Duration

	After func(time.Duration) <-chan time.Time
	Now   func() time.Time
	Log   zerolog.Logger
}

// Supervisor drives one event stream at a time, restarting it according
// to its policy until a fatal error, policy exhaustion or cancellation.
type Supervisor struct {
	source       EventSource
	mode         StreamMode
	classifier   Classifier
	reactor      Reactor
	policy       RestartPolicy
	observer     Observer
	catchUp      CatchUp
	reactTimeout time.Duration
	after        func(time.Duration) <-chan time.Time
	now          func() time.Time
	log          zerolog.Logger

	state     atomic.Int32
	running   atomic.Bool
	reconnect chan struct{}

	// Owned by the Run goroutine.
	attempt int
	connID  string
	// lastNotificationID is the newest notification handled, the cursor
	// for catch-up. Delivery order is not ID order, so it never filters.
	lastNotificationID mastodon.ID
	seen               *recentIDs
}

// NewSupervisor creates a supervisor in the Connecting state.
func NewSupervisor(p SupervisorParams) *Supervisor {
	s := &Supervisor{
		source:       p.Source,
		mode:         p.Mode,
		classifier:   p.Classifier,
		reactor:      p.Reactor,
		policy:       p.Policy,
		observer:     p.Observer,
		catchUp:      p.CatchUp,
		reactTimeout: p.ReactTimeout,
		after:        p.After,
		now:          p.Now,
		log:          p.Log.With().Str("component", "supervisor").Logger(),
		reconnect:    make(chan struct{}, 1),
		seen:         newRecentIDs(recentIDsCapacity),
	}
	if s.policy == nil {
		s.policy = BoundedPolicy{
			MaxAttempts: defaultMaxAttempts,
			Backoff:     Backoff{Base: defaultBaseDelay, Max: defaultMaxDelay},
		}
	}
	if s.observer == nil {
		s.observer = NopObserver{}
	}
	if s.reactTimeout <= 0 {
		s.reactTimeout = defaultReactTimeout
	}
	if s.after == nil {
		s.after = time.After
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// State returns the current state. It is safe to call from any goroutine.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Reconnect drops the live stream and opens a new one without counting a
// failure. During BackoffWait it cuts the wait short. It never blocks.
func (s *Supervisor) Reconnect() {
	select {
	case s.reconnect <- struct{}{}:
	default:
	}
}

// Run drives the stream until it terminates. It returns ctx.Err() when
// cancelled, the fatal error on a credential failure, or an error
// wrapping ErrRestartsExhausted when the policy gives up.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("supervisor is already running")
	}
	defer s.running.Store(false)

	s.attempt = 0
	s.state.Store(int32(StateConnecting))

	for {
		stream, err := s.source.Open(ctx, s.mode)
		if err != nil {
			if ctx.Err() != nil {
				s.transition(StateTerminated, nil, 0)
				return ctx.Err()
			}
			if stop, err := s.handleFailure(ctx, err); stop {
				return err
			}
			continue
		}

		s.attempt = 0
		s.connID = connIDOf(stream)
		s.drainReconnect()
		s.transition(StateStreaming, nil, 0)

		err = s.consume(ctx, stream)
		if cerr := stream.Close(); cerr != nil {
			s.log.Debug().Err(cerr).Msg("Error closing stream")
		}

		if ctx.Err() != nil {
			s.transition(StateTerminated, nil, 0)
			s.connID = ""
			return ctx.Err()
		}
		if errors.Is(err, errReconnectRequested) {
			s.transition(StateBackoffWait, nil, 0)
			s.connID = ""
			s.transition(StateConnecting, nil, 0)
			continue
		}
		if stop, err := s.handleFailure(ctx, err); stop {
			return err
		}
	}
}

// handleFailure applies the failure taxonomy and restart policy. It
// returns true when Run must return the accompanying error.
func (s *Supervisor) handleFailure(ctx context.Context, err error) (bool, error) {
	defer func() { s.connID = "" }()

	if IsFatal(err) {
		s.transition(StateTerminated, err, 0)
		return true, err
	}

	s.attempt++
	decision := s.policy.Decide(s.attempt, err)
	if !decision.Retry {
		err = fmt.Errorf("%w after %d attempts: %w", ErrRestartsExhausted, s.attempt, err)
		s.transition(StateTerminated, err, 0)
		return true, err
	}

	s.transition(StateBackoffWait, err, decision.Delay)
	select {
	case <-ctx.Done():
		s.transition(StateTerminated, nil, 0)
		return true, ctx.Err()
	case <-s.after(decision.Delay):
	case <-s.reconnect:
	}
	s.transition(StateConnecting, nil, 0)
	return false, nil
}

// consume pulls events until the stream ends, fails, ctx is done or a
// reconnect is requested. Events are handled one at a time.
func (s *Supervisor) consume(ctx context.Context, stream EventStream) error {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var reconnecting atomic.Bool
	go func() {
		select {
		case <-s.reconnect:
			reconnecting.Store(true)
			cancel()
		case <-streamCtx.Done():
		}
	}()

	if s.catchUp != nil && s.lastNotificationID != "" {
		s.replayMissed(streamCtx, ctx)
	}

	for {
		evt, err := stream.Next(streamCtx)
		if err != nil {
			if reconnecting.Load() && ctx.Err() == nil {
				return errReconnectRequested
			}
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("stream closed by server: %w", err)
			}
			return err
		}
		s.handle(ctx, evt)
	}
}

// replayMissed handles notifications that arrived while disconnected.
// Failures are logged and otherwise ignored.
func (s *Supervisor) replayMissed(fetchCtx, ctx context.Context) {
	missed, err := s.catchUp.Missed(fetchCtx, s.lastNotificationID)
	if err != nil {
		s.log.Warn().Err(err).
			Str("since_id", string(s.lastNotificationID)).
			Msg("Failed to fetch missed notifications")
		return
	}
	if len(missed) > 0 {
		s.log.Info().Int("count", len(missed)).Msg("Replaying missed notifications")
	}
	for _, evt := range missed {
		if fetchCtx.Err() != nil {
			return
		}
		s.handle(ctx, evt)
	}
}

// handle classifies one event and reacts to it at most once. Only exact
// repeats of a recently handled notification are skipped.
func (s *Supervisor) handle(ctx context.Context, evt Event) {
	if ne, ok := evt.(*NotificationEvent); ok && ne.Notification != nil && ne.Notification.ID != "" {
		id := ne.Notification.ID
		if !s.seen.Add(id) {
			s.log.Debug().Str("notification_id", string(id)).Msg("Skipping already handled notification")
			return
		}
		if newerID(id, s.lastNotificationID) {
			s.lastNotificationID = id
		}
	}

	d := s.classifier.Classify(evt)
	s.observer.EventClassified(evt, d)
	if !d.Act() {
		return
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.reactTimeout)
	defer cancel()
	ack, err := s.reactor.React(rctx, d)
	s.observer.Reacted(d, ack, err)
}

func (s *Supervisor) transition(to State, err error, delay time.Duration) {
	from := State(s.state.Swap(int32(to)))
	s.observer.StateChanged(StateChange{
		From:    from,
		To:      to,
		Attempt: s.attempt,
		Delay:   delay,
		Err:     err,
		ConnID:  s.connID,
		At:      s.now(),
	})
}

func (s *Supervisor) drainReconnect() {
	select {
	case <-s.reconnect:
	default:
	}
}

func connIDOf(stream EventStream) string {
	if c, ok := stream.(interface{ ConnID() string }); ok {
		return c.ConnID()
	}
	return ""
}

// newerID reports whether notification id a sorts after b. Mastodon ids
// are decimal strings, so longer means newer. An empty b is older than
// everything. It orders the catch-up cursor and must not be used to drop
// events.
func newerID(a, b mastodon.ID) bool {
	if b == "" {
		return true
	}
	if len(a) != len(b) {
		return len(a) > len(b)
	}
	return a > b
}
