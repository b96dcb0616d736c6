// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package booster

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mattn/go-mastodon"
)

// Streaming API event names.
const (
	StreamEventUpdate       = "update"
	StreamEventStatusUpdate = "status.update"
	StreamEventNotification = "notification"
	StreamEventDelete       = "delete"
)

// Notification types the classifier cares about. Mastodon sends others
// (follow, reblog, favourite, poll, status, update, ...) which are ignored.
const (
	NotificationMention = "mention"
)

// Event is one occurrence delivered by the streaming API. The concrete
// types are *NotificationEvent, *UpdateEvent, *DeleteEvent and the
// *OtherEvent catch-all.
type Event interface {
	// EventType returns the streaming API event name.
	EventType() string
}

// NotificationEvent carries an interaction directed at the account.
type NotificationEvent struct {
	Notification *mastodon.Notification
}

func (*NotificationEvent) EventType() string { return StreamEventNotification }

// UpdateEvent is a new or edited status on the home timeline.
type UpdateEvent struct {
	Status *mastodon.Status
	Edited bool
}

func (e *UpdateEvent) EventType() string {
	if e.Edited {
		return StreamEventStatusUpdate
	}
	return StreamEventUpdate
}

// DeleteEvent reports a deleted status.
type DeleteEvent struct {
	StatusID mastodon.ID
}

func (*DeleteEvent) EventType() string { return StreamEventDelete }

// OtherEvent is every event the booster does not decode.
type OtherEvent struct {
	Type    string
	Payload string
}

func (e *OtherEvent) EventType() string { return e.Type }

// streamFrame is the envelope of a streaming API WebSocket message. The
// payload is itself a JSON document encoded as a string.
type streamFrame struct {
	Stream  []string `json:"stream"`
	Event   string   `json:"event"`
	Payload string   `json:"payload"`
	Error   string   `json:"error"`
}

// DecodeFrame parses one WebSocket message. It returns (nil, nil) for
// frames that carry no event, (nil, err) for malformed frames or error
// frames, and (evt, nil) otherwise.
func DecodeFrame(data []byte) (Event, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}

	var frame streamFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stream frame: %w", err)
	}

	if frame.Error != "" {
		return nil, frameError(frame.Error)
	}

	switch frame.Event {
	case "":
		return nil, nil
	case StreamEventNotification:
		var notif mastodon.Notification
		if err := json.Unmarshal([]byte(frame.Payload), &notif); err != nil {
			return nil, fmt.Errorf("failed to unmarshal notification: %w", err)
		}
		return &NotificationEvent{Notification: &notif}, nil
	case StreamEventUpdate, StreamEventStatusUpdate:
		var status mastodon.Status
		if err := json.Unmarshal([]byte(frame.Payload), &status); err != nil {
			return nil, fmt.Errorf("failed to unmarshal status: %w", err)
		}
		return &UpdateEvent{Status: &status, Edited: frame.Event == StreamEventStatusUpdate}, nil
	case StreamEventDelete:
		return &DeleteEvent{StatusID: mastodon.ID(frame.Payload)}, nil
	default:
		return &OtherEvent{Type: frame.Event, Payload: frame.Payload}, nil
	}
}

// frameError maps an error frame sent by the streaming server. The server
// reports token problems this way on some versions instead of failing the
// handshake.
func frameError(msg string) error {
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "access token") || strings.Contains(lower, "unauthorized") {
		return fmt.Errorf("%w: %s", ErrAccessTokenRejected, msg)
	}
	return fmt.Errorf("streaming server error: %s", msg)
}
