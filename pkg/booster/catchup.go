// Copyright 2024-2026 Aiku AI

package booster

import (
	"context"
	"fmt"
	"sort"

	"github.com/mattn/go-mastodon"
)

// defaultCatchUpLimit is the page size of a catch-up fetch. Mastodon caps
// notification pages at 40.
const defaultCatchUpLimit = 40

// CatchUp fetches events delivered while the stream was down.
type CatchUp interface {
	// Missed returns events newer than sinceID, oldest first.
	Missed(ctx context.Context, sinceID mastodon.ID) ([]Event, error)
}

// NotificationsFunc lists notifications. It matches
// (*mastodon.Client).GetNotifications.
type NotificationsFunc func(ctx context.Context, pg *mastodon.Pagination) ([]*mastodon.Notification, error)

// NotificationCatchUp replays missed notifications through the REST API.
type NotificationCatchUp struct {
	list  NotificationsFunc
	limit int64
}

var _ CatchUp = (*NotificationCatchUp)(nil)

// NewNotificationCatchUp creates a catch-up backed by the session.
func NewNotificationCatchUp(session *Session) *NotificationCatchUp {
	return &NotificationCatchUp{list: session.Client().GetNotifications, limit: defaultCatchUpLimit}
}

// Missed fetches one page of notifications after sinceID. Older missed
// notifications beyond that page are dropped.
func (c *NotificationCatchUp) Missed(ctx context.Context, sinceID mastodon.ID) ([]Event, error) {
	notifs, err := c.list(ctx, &mastodon.Pagination{SinceID: sinceID, Limit: c.limit})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch notifications since %s: %w", sinceID, err)
	}

	fresh := make([]*mastodon.Notification, 0, len(notifs))
	for _, n := range notifs {
		if n != nil && newerID(n.ID, sinceID) {
			fresh = append(fresh, n)
		}
	}

	// Sort chronologically (oldest first).
	sort.SliceStable(fresh, func(i, j int) bool {
		return newerID(fresh[j].ID, fresh[i].ID)
	})

	events := make([]Event, 0, len(fresh))
	for _, n := range fresh {
		events = append(events, &NotificationEvent{Notification: n})
	}
	return events, nil
}
