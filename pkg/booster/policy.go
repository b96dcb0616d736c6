// Copyright 2024-2026 Aiku AI

package booster

import (
	"fmt"
	"math"
	"time"
)

// Restart policy names accepted in the config.
const (
	PolicyUnbounded = "unbounded"
	PolicyBounded   = "bounded"
	PolicyNone      = "none"
)

// RestartDecision tells the supervisor whether to reopen the stream and
// how long to wait first.
type RestartDecision struct {
	Retry bool
	Delay time.Duration
}

// RestartPolicy is consulted after every retryable failure. attempt is the
// number of consecutive failures so far, starting at 1; it resets when a
// stream opens successfully.
type RestartPolicy interface {
	Decide(attempt int, lastErr error) RestartDecision
}

// maxBackoff is where doubling stops when Max is not set.
const maxBackoff = time.Duration(math.MaxInt64)

// Backoff is an exponential delay doubling from Base and capped at Max.
// Max <= 0 means uncapped; the delay then saturates instead of wrapping.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the wait before the given attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		if d > maxBackoff/2 {
			d = maxBackoff
			break
		}
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// UnboundedPolicy retries forever.
type UnboundedPolicy struct {
	Backoff Backoff
}

func (p UnboundedPolicy) Decide(attempt int, _ error) RestartDecision {
	return RestartDecision{Retry: true, Delay: p.Backoff.Delay(attempt)}
}

// BoundedPolicy retries until MaxAttempts consecutive failures have been
// retried, then stops.
type BoundedPolicy struct {
	MaxAttempts int
	Backoff     Backoff
}

func (p BoundedPolicy) Decide(attempt int, _ error) RestartDecision {
	if attempt > p.MaxAttempts {
		return RestartDecision{}
	}
	return RestartDecision{Retry: true, Delay: p.Backoff.Delay(attempt)}
}

// NoRestartPolicy stops on the first failure.
type NoRestartPolicy struct{}

func (NoRestartPolicy) Decide(int, error) RestartDecision {
	return RestartDecision{}
}

// NewRestartPolicy builds the policy selected in the config.
func NewRestartPolicy(cfg RestartConfig) (RestartPolicy, error) {
	backoff := Backoff{Base: cfg.BaseDelay, Max: cfg.MaxDelay}
	switch cfg.Policy {
	case PolicyUnbounded:
		return UnboundedPolicy{Backoff: backoff}, nil
	case PolicyBounded, "":
		maxAttempts := defaultMaxAttempts
		if cfg.MaxAttempts != nil {
			maxAttempts = *cfg.MaxAttempts
		}
		return BoundedPolicy{MaxAttempts: maxAttempts, Backoff: backoff}, nil
	case PolicyNone:
		return NoRestartPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown restart policy %q", cfg.Policy)
	}
}
