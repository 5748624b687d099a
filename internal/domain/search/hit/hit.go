// Package hit defines the scored, grouped record shared by local collection and federation.
package hit

import (
	"math"
	"slices"
)

// Hit is a scored search result with its collapsing group (site).
// The zero Group is the empty-string group.
type Hit struct {
	ID    int64
	Score float64
	Group string
}

// Empty returns the sentinel used for unfilled selector slots.
// It is outranked by every real candidate.
func Empty() Hit {
	return Hit{ID: math.MaxInt64, Score: math.Inf(-1)}
}

// Outranks reports whether a ranks strictly before b:
// higher score first, smaller id on equal scores.
func Outranks(a, b Hit) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.ID < b.ID
}

// Compare orders hits for sorting: ranking order, ties by id.
func Compare(a, b Hit) int {
	switch {
	case Outranks(a, b):
		return -1
	case Outranks(b, a):
		return 1
	default:
		return 0
	}
}

// Sort orders hits best first.
func Sort(hs []Hit) {
	slices.SortFunc(hs, Compare)
}
