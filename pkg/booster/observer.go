// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package booster

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiku/mastodon-booster/pkg/booster/ledger"
)

// StateChange describes one supervisor transition. Err is the failure
// that caused it, if any. Delay is set when entering BackoffWait.
type StateChange struct {
	From    State
	To      State
	Attempt int
	Delay   time.Duration
	Err     error
	ConnID  string
	At      time.Time
}

// Observer receives the supervisor's structured events. Methods are
// called synchronously from the supervisor goroutine and must not block.
type Observer interface {
	StateChanged(StateChange)
	EventClassified(Event, Decision)
	Reacted(Decision, Ack, error)
}

// Observers fans events out to each observer in order.
type Observers []Observer

func (o Observers) StateChanged(c StateChange) {
	for _, obs := range o {
		obs.StateChanged(c)
	}
}

func (o Observers) EventClassified(evt Event, d Decision) {
	for _, obs := range o {
		obs.EventClassified(evt, d)
	}
}

func (o Observers) Reacted(d Decision, ack Ack, err error) {
	for _, obs := range o {
		obs.Reacted(d, ack, err)
	}
}

// NopObserver discards everything.
type NopObserver struct{}

func (NopObserver) StateChanged(StateChange)        {}
func (NopObserver) EventClassified(Event, Decision) {}
func (NopObserver) Reacted(Decision, Ack, error)    {}

// LogObserver writes progress and retry information to a zerolog logger.
type LogObserver struct {
	Log zerolog.Logger
}

func (o LogObserver) StateChanged(c StateChange) {
	var evt *zerolog.Event
	switch {
	case c.To == StateTerminated && c.Err != nil:
		evt = o.Log.Error().Err(c.Err)
	case c.To == StateBackoffWait:
		evt = o.Log.Warn().Err(c.Err).Dur("delay", c.Delay)
	default:
		evt = o.Log.Info()
	}
	if c.ConnID != "" {
		evt = evt.Str("conn_id", c.ConnID)
	}
	evt.Stringer("from", c.From).
		Stringer("to", c.To).
		Int("attempt", c.Attempt).
		Msg("Supervisor state changed")
}

func (o LogObserver) EventClassified(evt Event, d Decision) {
	if !d.Act() {
		o.Log.Debug().
			Str("event", evt.EventType()).
			Str("notification_id", string(d.NotificationID)).
			Str("reason", d.Reason).
			Msg("Ignoring event")
		return
	}
	o.Log.Info().
		Str("status_id", string(d.StatusID)).
		Str("origin", d.OriginURL).
		Str("text", statusExcerpt(d.Content)).
		Msg("Trusted mention received")
}

func (o LogObserver) Reacted(d Decision, ack Ack, err error) {
	if err != nil {
		o.Log.Err(err).
			Str("status_id", string(d.StatusID)).
			Msg("Failed to boost status")
		return
	}
	o.Log.Info().
		Str("status_id", string(d.StatusID)).
		Str("url", ack.URL).
		Bool("dry_run", ack.DryRun).
		Msg("Boosted status")
}

// Status is a point-in-time view of the supervisor.
type Status struct {
	State          string     `json:"state"`
	Attempt        int        `json:"attempt"`
	ConnID         string     `json:"conn_id,omitempty"`
	ConnectedSince *time.Time `json:"connected_since,omitempty"`
	Events         int        `json:"events"`
	Matches        int        `json:"matches"`
	Boosts         int        `json:"boosts"`
	Failures       int        `json:"failures"`
	LastError      string     `json:"last_error,omitempty"`
}

// StatusTracker keeps counters for the admin API.
type StatusTracker struct {
	mu     sync.Mutex
	status Status
}

// NewStatusTracker creates a tracker in the Connecting state.
func NewStatusTracker() *StatusTracker {
	return &StatusTracker{status: Status{State: StateConnecting.String()}}
}

func (t *StatusTracker) StateChanged(c StateChange) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.State = c.To.String()
	t.status.Attempt = c.Attempt
	if c.Err != nil {
		t.status.LastError = c.Err.Error()
	}
	if c.To == StateStreaming {
		at := c.At
		t.status.ConnectedSince = &at
		t.status.ConnID = c.ConnID
	} else if c.From == StateStreaming {
		t.status.ConnectedSince = nil
		t.status.ConnID = ""
	}
}

func (t *StatusTracker) EventClassified(_ Event, d Decision) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.Events++
	if d.Act() {
		t.status.Matches++
	}
}

func (t *StatusTracker) Reacted(_ Decision, _ Ack, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.status.Failures++
		t.status.LastError = err.Error()
		return
	}
	t.status.Boosts++
}

// Snapshot returns a copy of the current status.
func (t *StatusTracker) Snapshot() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.status
	if s.ConnectedSince != nil {
		at := *s.ConnectedSince
		s.ConnectedSince = &at
	}
	return s
}

// LedgerObserver records every reaction in the boost ledger.
type LedgerObserver struct {
	Store   *ledger.Store
	Log     zerolog.Logger
	Timeout time.Duration
}

func (LedgerObserver) StateChanged(StateChange)        {}
func (LedgerObserver) EventClassified(Event, Decision) {}

func (o LedgerObserver) Reacted(d Decision, ack Ack, err error) {
	entry := ledger.Entry{
		StatusID:  string(d.StatusID),
		OriginURL: d.OriginURL,
		PublicURL: ack.URL,
		Outcome:   ledger.OutcomeBoosted,
	}
	switch {
	case err != nil:
		entry.Outcome = ledger.OutcomeFailed
		entry.Error = err.Error()
		var rerr *ReactionError
		if errors.As(err, &rerr) && rerr.Err != nil {
			entry.Error = rerr.Err.Error()
		}
		entry.PublicURL = d.PublicURL
	case ack.DryRun:
		entry.Outcome = ledger.OutcomeDryRun
	}

	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := o.Store.Record(ctx, entry); err != nil {
		o.Log.Warn().Err(err).Str("status_id", entry.StatusID).Msg("Failed to record boost")
	}
}
