// Package hostalloc picks a provider host account for a meeting window.
package hostalloc

import (
	"slices"
	"time"
)

// BusyBuffer keeps a host free for a while after each meeting so it is never
// booked into a meeting starting right after another one ends.
const BusyBuffer = 15 * time.Minute

// Booking is an existing meeting assigned to a host account.
type Booking struct {
	HostID   string
	StartsAt time.Time
	EndsAt   time.Time
}

// Overlaps reports whether the booking's busy window [start, end+buffer)
// intersects [start, end).
func (b Booking) Overlaps(start, end time.Time) bool {
	return b.StartsAt.Before(end) && start.Before(b.EndsAt.Add(BusyBuffer))
}

type load struct {
	host        string
	overlapping int
	future      int
}

// Select returns the candidate with the fewest overlapping bookings, then
// the fewest future bookings, then the lowest identifier. Hosts already at
// maxConcurrent overlapping bookings are skipped. It returns false when the
// window is empty or every candidate is full.
func Select(candidates []string, maxConcurrent int, start, end, now time.Time, bookings []Booking) (string, bool) {
	if !end.After(start) || maxConcurrent <= 0 || len(candidates) == 0 {
		return "", false
	}

	loads := make(map[string]*load, len(candidates))
	for _, host := range candidates {
		if _, ok := loads[host]; !ok {
			loads[host] = &load{host: host}
		}
	}
	for _, b := range bookings {
		l, ok := loads[b.HostID]
		if !ok {
			continue
		}
		if b.Overlaps(start, end) {
			l.overlapping++
		}
		if b.StartsAt.After(now) {
			l.future++
		}
	}

	var eligible []*load
	for _, l := range loads {
		if l.overlapping < maxConcurrent {
			eligible = append(eligible, l)
		}
	}
	if len(eligible) == 0 {
		return "", false
	}

	slices.SortFunc(eligible, func(a, b *load) int {
		if a.overlapping != b.overlapping {
			return a.overlapping - b.overlapping
		}
		if a.future != b.future {
			return a.future - b.future
		}
		switch {
		case a.host < b.host:
			return -1
		case a.host > b.host:
			return 1
		}
		return 0
	})
	return eligible[0].host, true
}
