// Copyright 2024-2026 Aiku AI

package booster

import (
	"fmt"
	"net/url"
	"strings"
)

// StreamMode selects which streaming API channel to subscribe to.
type StreamMode int

const (
	// AllEvents subscribes to every event relevant to the user: home
	// timeline updates, deletions and notifications.
	AllEvents StreamMode = iota
	// NotificationsOnly subscribes to notifications.
	NotificationsOnly
)

// StreamName returns the streaming API channel name for the mode.
func (m StreamMode) StreamName() string {
	if m == NotificationsOnly {
		return "user:notification"
	}
	return "user"
}

func (m StreamMode) String() string {
	if m == NotificationsOnly {
		return "notifications"
	}
	return "all"
}

// ParseStreamMode parses the config spelling of a stream mode.
func ParseStreamMode(s string) (StreamMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all", "user":
		return AllEvents, nil
	case "notifications", "user:notification":
		return NotificationsOnly, nil
	default:
		return AllEvents, fmt.Errorf("unknown stream mode %q", s)
	}
}

// httpToWS converts an HTTP(S) URL to a WS(S) URL.
func httpToWS(url string) string {
	if strings.HasPrefix(url, "https://") {
		return "wss://" + strings.TrimPrefix(url, "https://")
	}
	if strings.HasPrefix(url, "http://") {
		return "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url
}

// streamingEndpoint builds the WebSocket URL for the given base and mode.
// The base may be the instance URL or a dedicated streaming host, in
// either http(s) or ws(s) form.
func streamingEndpoint(base string, mode StreamMode) (string, error) {
	u, err := url.Parse(httpToWS(strings.TrimRight(base, "/")))
	if err != nil {
		return "", fmt.Errorf("invalid streaming url %q: %w", base, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("invalid streaming url %q: unsupported scheme %q", base, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid streaming url %q: missing host", base)
	}
	if !strings.HasSuffix(u.Path, "/api/v1/streaming") {
		u.Path = strings.TrimRight(u.Path, "/") + "/api/v1/streaming"
	}
	q := u.Query()
	q.Set("stream", mode.StreamName())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// originMatches reports whether a profile URL belongs to the trusted
// origin. An empty origin matches nothing.
func originMatches(profileURL, origin string, mode MatchMode) bool {
	if origin == "" || profileURL == "" {
		return false
	}
	if mode == MatchSubstring {
		return strings.Contains(profileURL, origin)
	}
	return strings.HasPrefix(profileURL, origin)
}
