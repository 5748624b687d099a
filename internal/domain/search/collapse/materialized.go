package collapse

import (
	"slices"
	"strings"
)

// Materialized caps an already collected list: items are sorted by group,
// best first within a group, and at most perGroup items of each non-empty
// group survive. Items with an empty group are never collapsed.
// perGroup <= 0 leaves items untouched.
//
// The survivors are returned in group order and reuse the backing array.
func Materialized[T any](items []T, perGroup int, group func(T) string, outranks func(a, b T) bool) []T {
	if perGroup <= 0 || len(items) == 0 {
		return items
	}

	slices.SortStableFunc(items, func(a, b T) int {
		if c := strings.Compare(group(a), group(b)); c != 0 {
			return c
		}
		switch {
		case outranks(a, b):
			return -1
		case outranks(b, a):
			return 1
		}
		return 0
	})

	out := items[:0]
	prev, run := "", 0
	for i := range items {
		it := items[i]
		g := group(it)
		if g != "" && i > 0 && g == prev {
			run++
		} else {
			run = 1
		}
		prev = g
		if g == "" || run <= perGroup {
			out = append(out, it)
		}
	}
	return out
}
