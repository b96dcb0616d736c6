// Copyright 2024-2026 Aiku AI

package booster

import "github.com/mattn/go-mastodon"

// recentIDsCapacity covers a full catch-up page plus the live events that
// can overlap it.
const recentIDsCapacity = 512

// recentIDs remembers the last N notification ids handled, evicting the
// oldest first.
type recentIDs struct {
	ring []mastodon.ID
	next int
	set  map[mastodon.ID]struct{}
}

func newRecentIDs(capacity int) *recentIDs {
	if capacity < 1 {
		capacity = 1
	}
	return &recentIDs{
		ring: make([]mastodon.ID, 0, capacity),
		set:  make(map[mastodon.ID]struct{}, capacity),
	}
}

// Add records id and reports whether it was new.
func (r *recentIDs) Add(id mastodon.ID) bool {
	if _, ok := r.set[id]; ok {
		return false
	}
	if len(r.ring) < cap(r.ring) {
		r.ring = append(r.ring, id)
	} else {
		delete(r.set, r.ring[r.next])
		r.ring[r.next] = id
		r.next = (r.next + 1) % len(r.ring)
	}
	r.set[id] = struct{}{}
	return true
}

func (r *recentIDs) Contains(id mastodon.ID) bool {
	_, ok := r.set[id]
	return ok
}
