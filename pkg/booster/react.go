// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package booster

import (
	"context"
	"fmt"
	"time"

	"github.com/mattn/go-mastodon"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Ack confirms a reaction. URL is the public URL of the boosted status
// when known.
type Ack struct {
	URL    string
	DryRun bool
}

// Reactor performs the side effect for a boost decision. Repeated calls
// for the same status are harmless on the server side, but callers must
// not call it twice for the same delivered event.
type Reactor interface {
	React(ctx context.Context, d Decision) (Ack, error)
}

// ReblogFunc boosts a status. It matches (*mastodon.Client).Reblog.
type ReblogFunc func(ctx context.Context, id mastodon.ID) (*mastodon.Status, error)

// BoostReactor reblogs statuses through the REST API.
type BoostReactor struct {
	reblog  ReblogFunc
	limiter *rate.Limiter
	dryRun  bool
	log     zerolog.Logger
}

var _ Reactor = (*BoostReactor)(nil)

// NewBoostReactor creates a reactor for the session. perMinute of zero
// disables rate limiting.
func NewBoostReactor(session *Session, cfg ReactionConfig, log zerolog.Logger) *BoostReactor {
	return newBoostReactor(session.Client().Reblog, cfg, log)
}

func newBoostReactor(reblog ReblogFunc, cfg ReactionConfig, log zerolog.Logger) *BoostReactor {
	r := &BoostReactor{
		reblog: reblog,
		dryRun: cfg.DryRun,
		log:    log.With().Str("component", "reactor").Logger(),
	}
	if cfg.PerMinute > 0 {
		r.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.PerMinute)), 1)
	}
	return r
}

// React boosts the decision's status. Failures are returned as
// *ReactionError.
func (r *BoostReactor) React(ctx context.Context, d Decision) (Ack, error) {
	if !d.Act() {
		return Ack{}, &ReactionError{StatusID: d.StatusID, Err: fmt.Errorf("decision is %s", d.Action)}
	}

	if r.dryRun {
		r.log.Info().
			Str("status_id", string(d.StatusID)).
			Str("origin", d.OriginURL).
			Msg("Dry run, not boosting")
		return Ack{URL: d.PublicURL, DryRun: true}, nil
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return Ack{}, &ReactionError{StatusID: d.StatusID, Err: fmt.Errorf("rate limit wait: %w", err)}
		}
	}

	status, err := r.reblog(ctx, d.StatusID)
	if err != nil {
		return Ack{}, &ReactionError{StatusID: d.StatusID, Err: err}
	}
	return Ack{URL: boostedURL(status, d.PublicURL)}, nil
}

// boostedURL picks the public URL of the original status from a reblog
// response.
func boostedURL(resp *mastodon.Status, fallback string) string {
	if resp != nil {
		if resp.Reblog != nil && resp.Reblog.URL != "" {
			return resp.Reblog.URL
		}
	}
	return fallback
}
