// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package booster

import (
	"errors"
	"fmt"

	"github.com/mattn/go-mastodon"
)

// ErrFatalAuth is wrapped by every error that cannot be fixed by retrying
// with the same credentials.
var ErrFatalAuth = errors.New("credentials required")

var (
	ErrClientIDMissing     = fmt.Errorf("%w: client id missing", ErrFatalAuth)
	ErrClientSecretMissing = fmt.Errorf("%w: client secret missing", ErrFatalAuth)
	ErrAccessTokenMissing  = fmt.Errorf("%w: access token missing", ErrFatalAuth)
	ErrAccessTokenRejected = fmt.Errorf("%w: access token rejected", ErrFatalAuth)
	ErrServerMissing       = fmt.Errorf("%w: instance url missing", ErrFatalAuth)
)

var (
	// ErrRestartsExhausted is returned by the supervisor when its restart
	// policy gives up on a run of transient failures.
	ErrRestartsExhausted = errors.New("restart policy exhausted")

	// ErrNotRegistered is returned by a CredentialProvider that has no
	// persisted session yet.
	ErrNotRegistered = errors.New("no registered session")
)

// ErrorClass tells the supervisor what to do with a failure.
type ErrorClass int

const (
	ClassTransient ErrorClass = iota
	ClassFatalAuth
)

func (c ErrorClass) String() string {
	switch c {
	case ClassFatalAuth:
		return "fatal_auth"
	default:
		return "transient"
	}
}

// ClassifyError sorts an error into the failure taxonomy. Only
// credential errors are fatal; network, protocol, rate limit and server
// errors are all transient.
func ClassifyError(err error) ErrorClass {
	if errors.Is(err, ErrFatalAuth) {
		return ClassFatalAuth
	}
	return ClassTransient
}

// IsFatal reports whether err wraps ErrFatalAuth.
func IsFatal(err error) bool {
	return ClassifyError(err) == ClassFatalAuth
}

// ReactionError is a failed boost. It only concerns one event and never
// stops the subscription.
type ReactionError struct {
	StatusID mastodon.ID
	Err      error
}

func (e *ReactionError) Error() string {
	return fmt.Sprintf("boost %s: %v", e.StatusID, e.Err)
}

func (e *ReactionError) Unwrap() error {
	return e.Err
}
