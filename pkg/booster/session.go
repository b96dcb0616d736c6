// Copyright 2024-2026 Aiku AI

package booster

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mattn/go-mastodon"
)

// userAgent is sent on every REST and streaming request.
const userAgent = "mastodon-booster"

// restTimeout bounds individual REST calls made with a session client.
const restTimeout = 30 * time.Second

// Session binds the registered app credentials and the user's access token
// to one instance. A Session is never modified after NewSession returns;
// re-registration produces a new value.
type Session struct {
	server       string
	clientID     string
	clientSecret string
	accessToken  string
}

// NewSession creates a session. The server URL is normalized by dropping
// any trailing slash.
func NewSession(server, clientID, clientSecret, accessToken string) *Session {
	return &Session{
		server:       strings.TrimRight(strings.TrimSpace(server), "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		accessToken:  accessToken,
	}
}

func (s *Session) Server() string       { return s.server }
func (s *Session) ClientID() string     { return s.clientID }
func (s *Session) ClientSecret() string { return s.clientSecret }
func (s *Session) AccessToken() string  { return s.accessToken }

// Validate reports the first missing credential. All returned errors wrap
// ErrFatalAuth.
func (s *Session) Validate() error {
	switch {
	case s == nil || s.server == "":
		return ErrServerMissing
	case s.clientID == "":
		return ErrClientIDMissing
	case s.clientSecret == "":
		return ErrClientSecretMissing
	case s.accessToken == "":
		return ErrAccessTokenMissing
	}
	return nil
}

// Client returns a REST client authenticated as the session's user.
func (s *Session) Client() *mastodon.Client {
	client := mastodon.NewClient(&mastodon.Config{
		Server:       s.server,
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		AccessToken:  s.accessToken,
	})
	client.UserAgent = userAgent
	client.Timeout = restTimeout
	return client
}

// authHeader returns the headers used to open the streaming connection.
func (s *Session) authHeader() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+s.accessToken)
	h.Set("User-Agent", userAgent)
	return h
}

// VerifySession checks the session against the server and returns the
// authenticated account.
func VerifySession(ctx context.Context, s *Session) (*mastodon.Account, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	acct, err := s.Client().GetAccountCurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("verify credentials: %w", err)
	}
	return acct, nil
}

// CredentialProvider supplies sessions to the runner. Load returns
// ErrNotRegistered when nothing has been persisted yet. Register runs the
// out-of-band registration flow, persists the result and returns it.
type CredentialProvider interface {
	Load(ctx context.Context) (*Session, error)
	Register(ctx context.Context) (*Session, error)
}
