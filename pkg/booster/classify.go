// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package booster

import (
	"fmt"
	"strings"

	"github.com/mattn/go-mastodon"
)

// MatchMode selects how a profile URL is compared with the trusted origin.
type MatchMode string

const (
	MatchPrefix    MatchMode = "prefix"
	MatchSubstring MatchMode = "substring"
)

// ParseMatchMode parses the config spelling of a match mode. Empty means
// MatchPrefix.
func ParseMatchMode(s string) (MatchMode, error) {
	switch MatchMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", MatchPrefix:
		return MatchPrefix, nil
	case MatchSubstring:
		return MatchSubstring, nil
	default:
		return MatchPrefix, fmt.Errorf("unknown match mode %q", s)
	}
}

// Action is the outcome of classifying an event.
type Action int

const (
	ActionIgnore Action = iota
	ActionBoost
)

func (a Action) String() string {
	if a == ActionBoost {
		return "boost"
	}
	return "ignore"
}

// Decision is the result of Classify. StatusID and OriginURL are only set
// when Action is ActionBoost.
type Decision struct {
	Action         Action
	StatusID       mastodon.ID
	NotificationID mastodon.ID
	OriginURL      string
	PublicURL      string
	Content        string
	Reason         string
}

// Act reports whether the event should be boosted.
func (d Decision) Act() bool { return d.Action == ActionBoost }

func ignore(reason string) Decision {
	return Decision{Action: ActionIgnore, Reason: reason}
}

// Classifier decides which events to boost: mentions from the trusted
// origin that carry a status.
type Classifier struct {
	TrustedOrigin string
	Mode          MatchMode
}

// Classify never fails and never blocks.
func (c Classifier) Classify(evt Event) Decision {
	ne, ok := evt.(*NotificationEvent)
	if !ok || ne == nil || ne.Notification == nil {
		return ignore("not a notification")
	}
	n := ne.Notification
	if n.Type != NotificationMention {
		return ignore("notification type " + n.Type)
	}

	origin := n.Account.URL
	if n.Status == nil || n.Status.ID == "" {
		d := ignore("mention without status")
		d.NotificationID = n.ID
		d.OriginURL = origin
		return d
	}
	if !originMatches(origin, c.TrustedOrigin, c.Mode) {
		d := ignore("untrusted origin")
		d.NotificationID = n.ID
		d.OriginURL = origin
		return d
	}

	return Decision{
		Action:         ActionBoost,
		StatusID:       n.Status.ID,
		NotificationID: n.ID,
		OriginURL:      origin,
		PublicURL:      n.Status.URL,
		Content:        n.Status.Content,
		Reason:         "trusted mention",
	}
}
