// Copyright 2024-2026 Aiku AI

package booster

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-mastodon"
	"github.com/rs/zerolog"
)

const (
	// oobRedirectURI makes the server display the authorization code
	// instead of redirecting.
	oobRedirectURI = "urn:ietf:wg:oauth:2.0:oob"
	registerScopes = "read write"
)

// Prompter shows the authorization URL to the user and returns the code
// they paste back.
type Prompter interface {
	Prompt(ctx context.Context, authURL string) (string, error)
}

// Registrar runs the out-of-band OAuth flow: register an app, have the
// user authorize it, exchange the code for a token and verify it.
type Registrar struct {
	Server     string
	ClientName string
	Website    string
	Prompter   Prompter
	Log        zerolog.Logger
}

// Register returns a verified session for a freshly registered app.
func (r *Registrar) Register(ctx context.Context) (*Session, error) {
	server := strings.TrimRight(strings.TrimSpace(r.Server), "/")
	if server == "" {
		return nil, ErrServerMissing
	}
	if r.Prompter == nil {
		return nil, errors.New("registration needs a prompter")
	}
	clientName := r.ClientName
	if clientName == "" {
		clientName = defaultClientName
	}

	app, err := mastodon.RegisterApp(ctx, &mastodon.AppConfig{
		Server:       server,
		ClientName:   clientName,
		RedirectURIs: oobRedirectURI,
		Scopes:       registerScopes,
		Website:      r.Website,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register app: %w", err)
	}
	r.Log.Info().Str("server", server).Str("client_name", clientName).Msg("Registered app")

	code, err := r.Prompter.Prompt(ctx, app.AuthURI)
	if err != nil {
		return nil, fmt.Errorf("failed to read authorization code: %w", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("%w: empty authorization code", ErrAccessTokenMissing)
	}

	client := mastodon.NewClient(&mastodon.Config{
		Server:       server,
		ClientID:     app.ClientID,
		ClientSecret: app.ClientSecret,
	})
	client.UserAgent = userAgent
	if err := client.AuthenticateToken(ctx, code, oobRedirectURI); err != nil {
		return nil, fmt.Errorf("%w: failed to exchange authorization code: %v", ErrAccessTokenRejected, err)
	}

	session := NewSession(server, app.ClientID, app.ClientSecret, client.Config.AccessToken)
	acct, err := VerifySession(ctx, session)
	if err != nil {
		return nil, err
	}
	r.Log.Info().Str("account", acct.Acct).Str("url", acct.URL).Msg("Authorized account")
	return session, nil
}

// TerminalPrompter prints the URL to Out and reads one line from In.
type TerminalPrompter struct {
	In  io.Reader
	Out io.Writer
}

func (p TerminalPrompter) Prompt(ctx context.Context, authURL string) (string, error) {
	fmt.Fprintf(p.Out, "Open this URL in your browser and authorize the app:\n\n  %s\n\nAuthorization code: ", authURL)

	lines := make(chan string, 1)
	errs := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(p.In)
		if scanner.Scan() {
			lines <- scanner.Text()
			return
		}
		if err := scanner.Err(); err != nil {
			errs <- err
			return
		}
		errs <- io.ErrUnexpectedEOF
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line := <-lines:
		return strings.TrimSpace(line), nil
	case err := <-errs:
		return "", err
	}
}
