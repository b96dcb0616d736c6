// Copyright 2024-2026 Aiku AI

package booster

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// RunnerParams wires a Runner. The factories default to the production
// implementations built from Config.
type RunnerParams struct {
	Config      *Config
	Credentials CredentialProvider
	Observer    Observer
	Log         zerolog.Logger

	NewSource  func(*Session) EventSource
	NewReactor func(*Session) Reactor
	NewCatchUp func(*Session) CatchUp
	After      func(time.Duration) <-chan time.Time
}

// Runner owns the session and restarts the supervisor with a new session
// after a credential failure when configured to.
type Runner struct {
	cfg        *Config
	creds      CredentialProvider
	observer   Observer
	log        zerolog.Logger
	newSource  func(*Session) EventSource
	newReactor func(*Session) Reactor
	newCatchUp func(*Session) CatchUp
	after      func(time.Duration) <-chan time.Time

	current atomic.Pointer[Supervisor]
}

var _ Reconnector = (*Runner)(nil)

func NewRunner(p RunnerParams) *Runner {
	r := &Runner{
		cfg:        p.Config,
		creds:      p.Credentials,
		observer:   p.Observer,
		log:        p.Log,
		newSource:  p.NewSource,
		newReactor: p.NewReactor,
		newCatchUp: p.NewCatchUp,
		after:      p.After,
	}
	if r.newSource == nil {
		r.newSource = func(s *Session) EventSource {
			return NewWebSocketSource(s, r.cfg.StreamingURL, r.log)
		}
	}
	if r.newReactor == nil {
		r.newReactor = func(s *Session) Reactor {
			return NewBoostReactor(s, r.cfg.Reactions, r.log)
		}
	}
	if r.newCatchUp == nil && r.cfg.CatchUp {
		r.newCatchUp = func(s *Session) CatchUp {
			return NewNotificationCatchUp(s)
		}
	}
	return r
}

// Run loads or registers a session and supervises the stream. It returns
// nil on cancellation.
func (r *Runner) Run(ctx context.Context) error {
	session, err := r.creds.Load(ctx)
	if errors.Is(err, ErrNotRegistered) {
		r.log.Info().Msg("No registered session, starting registration")
		session, err = r.creds.Register(ctx)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to obtain session: %w", err)
	}

	for {
		policy, err := NewRestartPolicy(r.cfg.Restart)
		if err != nil {
			return err
		}
		params := SupervisorParams{
			Source:       r.newSource(session),
			Mode:         r.cfg.Mode(),
			Classifier:   r.cfg.Classifier(),
			Reactor:      r.newReactor(session),
			Policy:       policy,
			Observer:     r.observer,
			ReactTimeout: r.cfg.Reactions.Timeout,
			After:        r.after,
			Log:          r.log,
		}
		if r.newCatchUp != nil {
			params.CatchUp = r.newCatchUp(session)
		}
		sup := NewSupervisor(params)

		r.log.Info().
			Str("server", session.Server()).
			Stringer("stream_mode", r.cfg.Mode()).
			Str("trusted_origin", r.cfg.TrustedOrigin).
			Msg("Starting supervisor")

		r.current.Store(sup)
		err = sup.Run(ctx)
		r.current.Store(nil)

		if ctx.Err() != nil {
			return nil
		}
		if IsFatal(err) && r.cfg.ReregisterOnAuthFailure {
			r.log.Warn().Err(err).Msg("Credentials rejected, registering again")
			session, err = r.creds.Register(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("failed to register again: %w", err)
			}
			continue
		}
		return err
	}
}

// Reconnect asks the running supervisor to reopen its stream.
func (r *Runner) Reconnect() bool {
	sup := r.current.Load()
	if sup == nil {
		return false
	}
	sup.Reconnect()
	return true
}
