// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package booster keeps a Mastodon account subscribed to its streaming
// timeline and boosts posts in which a trusted account mentions it.
//
// # Core Types
//
// [Supervisor] owns the subscription lifecycle. It opens an [EventSource],
// pulls events one at a time, runs them through the [Classifier] and hands
// matching posts to a [Reactor]. When the stream ends or fails, the
// supervisor either terminates (credentials are missing or rejected) or
// consults its [RestartPolicy] and reconnects after a delay.
//
// [WebSocketSource] is the production event source. It talks to the
// Mastodon streaming API over a WebSocket and decodes frames into [Event]
// values. [BoostReactor] reblogs posts through the REST API.
//
// [Runner] ties the pieces to a [CredentialProvider]: it loads or
// registers a [Session], runs a supervisor for it and optionally
// re-registers when the server rejects the credentials.
//
// # Failure Taxonomy
//
// Errors wrapping [ErrFatalAuth] are fatal: retrying without new
// credentials cannot succeed. A failed boost is a [ReactionError] and is
// scoped to a single event. Everything else is transient and drives a
// reconnect.
//
// # Observability
//
// The core never writes output itself. State transitions, classification
// decisions and reaction outcomes are reported to an [Observer];
// [LogObserver], [StatusTracker] and [LedgerObserver] are the stock
// implementations.
//
// # Sub-packages
//
//   - statusfmt converts status HTML to plain text.
//   - ledger records boost outcomes in SQLite.
package booster
