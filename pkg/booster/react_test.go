// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package booster

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mattn/go-mastodon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boostDecision(id, publicURL string) Decision {
	return Decision{
		Action:    ActionBoost,
		StatusID:  mastodon.ID(id),
		OriginURL: "https://trusted.example/@alice",
		PublicURL: publicURL,
	}
}

func TestBoostReactorReblogs(t *testing.T) {
	t.Parallel()
	f := newFakeMastodon()
	defer f.Close()
	f.StatusURLs["s1"] = "https://trusted.example/@alice/s1"

	r := NewBoostReactor(f.Session(), ReactionConfig{}, testLogger())
	ack, err := r.React(context.Background(), boostDecision("s1", ""))
	require.NoError(t, err)
	assert.Equal(t, Ack{URL: "https://trusted.example/@alice/s1"}, ack)
	assert.Len(t, f.CallsTo("POST", "/api/v1/statuses/s1/reblog"), 1)
}

func TestBoostReactorFallsBackToDecisionURL(t *testing.T) {
	t.Parallel()
	f := newFakeMastodon()
	defer f.Close()

	r := NewBoostReactor(f.Session(), ReactionConfig{}, testLogger())
	ack, err := r.React(context.Background(), boostDecision("s2", "https://trusted.example/@alice/s2"))
	require.NoError(t, err)
	assert.Equal(t, "https://trusted.example/@alice/s2", ack.URL)
}

func TestBoostReactorServerError(t *testing.T) {
	t.Parallel()
	f := newFakeMastodon()
	defer f.Close()
	f.FailEndpoints["/api/v1/statuses/"] = 404

	r := NewBoostReactor(f.Session(), ReactionConfig{}, testLogger())
	_, err := r.React(context.Background(), boostDecision("gone", ""))
	require.Error(t, err)

	var re *ReactionError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, mastodon.ID("gone"), re.StatusID)
	assert.False(t, IsFatal(err), "reaction failures never stop the stream")
}

func TestBoostReactorDryRun(t *testing.T) {
	t.Parallel()
	called := false
	r := newBoostReactor(func(context.Context, mastodon.ID) (*mastodon.Status, error) {
		called = true
		return nil, nil
	}, ReactionConfig{DryRun: true}, testLogger())

	ack, err := r.React(context.Background(), boostDecision("s1", "https://trusted.example/@alice/s1"))
	require.NoError(t, err)
	assert.Equal(t, Ack{URL: "https://trusted.example/@alice/s1", DryRun: true}, ack)
	assert.False(t, called)
}

func TestBoostReactorRejectsIgnoreDecision(t *testing.T) {
	t.Parallel()
	r := newBoostReactor(func(context.Context, mastodon.ID) (*mastodon.Status, error) {
		t.Fatal("reblog called for an ignore decision")
		return nil, nil
	}, ReactionConfig{}, testLogger())

	_, err := r.React(context.Background(), Decision{Action: ActionIgnore})
	var re *ReactionError
	assert.ErrorAs(t, err, &re)
}

func TestBoostReactorRateLimit(t *testing.T) {
	t.Parallel()
	calls := 0
	r := newBoostReactor(func(context.Context, mastodon.ID) (*mastodon.Status, error) {
		calls++
		return &mastodon.Status{}, nil
	}, ReactionConfig{PerMinute: 1}, testLogger())

	_, err := r.React(context.Background(), boostDecision("s1", ""))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = r.React(ctx, boostDecision("s2", ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
	assert.Equal(t, 1, calls)
}

func TestBoostReactorPassesContext(t *testing.T) {
	t.Parallel()
	errCancelled := errors.New("cancelled")
	r := newBoostReactor(func(ctx context.Context, _ mastodon.ID) (*mastodon.Status, error) {
		if ctx.Err() != nil {
			return nil, errCancelled
		}
		return &mastodon.Status{}, nil
	}, ReactionConfig{}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.React(ctx, boostDecision("s1", ""))
	assert.ErrorIs(t, err, errCancelled)
}
