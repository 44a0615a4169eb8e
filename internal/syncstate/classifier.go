// Package syncstate decides whether the provider meeting of an event or
// session still matches what the organizer asked for.
package syncstate

import (
	"slices"
	"time"

	"github.com/ocgroups/meetsync/internal/models"
)

// Classify compares the snapshot persisted before an edit with the one about
// to be persisted. A nil before means the owner is being created.
//
//   - NeverRequested: no meeting is wanted now or before, nothing to do.
//   - PendingAction: the provider must be updated, created or torn down.
//   - InSync: no tracked field changed.
func Classify(before, after *models.MeetingSnapshot) models.SyncState {
	if after == nil || !after.Requested {
		if before != nil && before.Requested {
			return models.PendingAction
		}
		return models.NeverRequested
	}

	if before == nil || !before.Requested {
		return models.PendingAction
	}

	// A session moved to a kind that cannot host a meeting owes a teardown
	// whatever else happened.
	if before.Kind != after.Kind && !after.Kind.SupportsMeeting() {
		return models.PendingAction
	}

	if !Equal(before, after) {
		return models.PendingAction
	}
	return models.InSync
}

// Next returns the state to persist for an owner whose current state is prev.
// A pending change is never cleared by a later edit; only the sync worker
// marks an owner in sync.
func Next(prev models.SyncState, before, after *models.MeetingSnapshot) models.SyncState {
	if prev == models.PendingAction {
		return models.PendingAction
	}
	return Classify(before, after)
}

// Equal reports whether two requested snapshots configure the same meeting.
// Host and speaker collections are compared as sets.
func Equal(a, b *models.MeetingSnapshot) bool {
	return a.Requested == b.Requested &&
		a.Name == b.Name &&
		sameInstant(a.StartsAt, b.StartsAt) &&
		sameInstant(a.EndsAt, b.EndsAt) &&
		a.Timezone == b.Timezone &&
		a.ProviderID == b.ProviderID &&
		a.PasswordRequired == b.PasswordRequired &&
		a.Kind == b.Kind &&
		sameSet(a.Hosts, b.Hosts) &&
		sameSet(a.Speakers, b.Speakers) &&
		sameSet(a.ParentHosts, b.ParentHosts)
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func sameSet(a, b []string) bool {
	return slices.Equal(normalize(a), normalize(b))
}

func normalize(ids []string) []string {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

// ParentChanged reports whether an event edit alters the fields its sessions'
// meetings inherit.
func ParentChanged(before, after *models.Event) bool {
	return before.Timezone != after.Timezone || !sameSet(before.MeetingHosts, after.MeetingHosts)
}
