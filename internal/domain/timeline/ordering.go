package timeline

import (
	"sort"
	"strings"
)

// Direction selects the overall orientation of a sorted timeline.
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// ParseDirection normalizes a direction string, defaulting to ascending.
func ParseDirection(s string) Direction {
	if Direction(strings.ToLower(s)) == Descending {
		return Descending
	}
	return Ascending
}

// Compare imposes a strict total order over events. Tiers, first
// discriminating one wins:
//
//  1. eventDate ascending, at date granularity
//  2. recordedAt ascending (earlier documentation wins same-date ties)
//  3. event type priority ascending
//  4. event id lexicographic ascending
//
// Returns -1 when a sorts before b, +1 when after, never 0 for distinct
// events.
func Compare(a, b *Event) int {
	ad, bd := DateOnly(a.EventDate), DateOnly(b.EventDate)
	if ad.Before(bd) {
		return -1
	}
	if ad.After(bd) {
		return 1
	}

	if a.RecordedAt.Before(b.RecordedAt) {
		return -1
	}
	if a.RecordedAt.After(b.RecordedAt) {
		return 1
	}

	if pa, pb := a.Type.Priority(), b.Type.Priority(); pa != pb {
		if pa < pb {
			return -1
		}
		return 1
	}

	return strings.Compare(a.ID.String(), b.ID.String())
}

// Sort orders events in place. Descending reverses the composite result of
// Compare, not the precedence of its tiers.
func Sort(events []*Event, dir Direction) {
	sort.Slice(events, func(i, j int) bool {
		c := Compare(events[i], events[j])
		if dir == Descending {
			return c > 0
		}
		return c < 0
	})
}
