// Package collapse keeps the best K hits of a candidate stream while capping
// how many of them may share a group (site).
package collapse

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/kailas-cloud/sitesearch/internal/domain/search/hit"
)

var (
	// ErrInvalidCapacity signals a selector capacity below 1.
	ErrInvalidCapacity = errors.New("collapse: capacity must be >= 1")
	// ErrInvalidCap signals a negative per-group cap.
	ErrInvalidCap = errors.New("collapse: per-group cap must be >= 0")
)

// Stats counts what happened to the offered candidates.
type Stats struct {
	Offered       int64
	ScorePassed   int64
	ScoreRejected int64
	GroupPassed   int64
	GroupRejected int64
}

// Selector maintains the top K hits with at most M hits per group.
//
// Hits live in a fixed arena of K slots. byScore orders every slot by rank,
// weakest first; slots not filled yet hold hit.Empty() and sort first.
// byGroup orders the filled slots by group, weakest first within a group.
//
// A Selector is not safe for concurrent use.
type Selector struct {
	slots   []hit.Hit
	byScore []int32
	byGroup []int32
	filled  int
	cap     int
	groups  GroupLookup
	stats   Stats
}

// NewSelector creates a selector keeping k hits with at most m per group.
// m = 0 disables the per-group cap.
func NewSelector(k, m int, groups GroupLookup) (*Selector, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, k)
	}
	if m < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCap, m)
	}
	if k > math.MaxInt32 {
		return nil, fmt.Errorf("%w: %d exceeds arena limit", ErrInvalidCapacity, k)
	}
	if groups == nil {
		groups = NoGroups{}
	}

	s := &Selector{
		slots:   make([]hit.Hit, k),
		byScore: make([]int32, k),
		cap:     m,
		groups:  groups,
	}
	for i := range s.slots {
		s.slots[i] = hit.Empty()
		s.byScore[i] = int32(i)
	}
	if m > 0 {
		s.byGroup = make([]int32, 0, k)
	}
	return s, nil
}

// Offer considers one candidate. The group is resolved only when the score
// alone could earn the candidate a slot. NaN scores rank last.
func (s *Selector) Offer(id int64, score float64) {
	if math.IsNaN(score) {
		score = math.Inf(-1)
	}
	cand := hit.Hit{ID: id, Score: score}
	s.stats.Offered++

	if s.Saturated() && !hit.Outranks(cand, s.slots[s.byScore[0]]) {
		s.stats.ScoreRejected++
		return
	}
	s.stats.ScorePassed++

	cand.Group = s.groups.Group(id)

	if s.cap == 0 {
		s.stats.GroupPassed++
		s.replaceWeakest(cand)
		return
	}

	lo, n := s.groupRun(cand.Group)
	if n < s.cap {
		s.stats.GroupPassed++
		s.replaceWeakest(cand)
		return
	}

	// The run is full: the candidate may only displace the group's weakest member.
	victim := s.byGroup[lo]
	if !hit.Outranks(cand, s.slots[victim]) {
		s.stats.GroupRejected++
		return
	}
	s.stats.GroupPassed++
	s.replaceSlot(victim, lo, cand)
}

// Results returns the kept hits, best first.
func (s *Selector) Results() []hit.Hit {
	out := make([]hit.Hit, 0, s.filled)
	for i := len(s.byScore) - 1; i >= len(s.byScore)-s.filled; i-- {
		out = append(out, s.slots[s.byScore[i]])
	}
	return out
}

// Len returns the number of filled slots.
func (s *Selector) Len() int { return s.filled }

// Saturated reports whether all K slots hold a hit.
func (s *Selector) Saturated() bool { return s.filled == len(s.slots) }

// Stats returns candidate counters accumulated so far.
func (s *Selector) Stats() Stats { return s.stats }

// replaceWeakest overwrites the weakest slot (an empty one while unsaturated).
func (s *Selector) replaceWeakest(cand hit.Hit) {
	slot := s.byScore[0]
	if s.Saturated() {
		if s.cap > 0 {
			s.byGroup = removeAt(s.byGroup, s.groupPos(slot))
		}
	} else {
		s.filled++
	}

	s.slots[slot] = cand
	s.reinsertScore(0, slot)
	if s.cap > 0 {
		s.insertGroup(slot)
	}
}

// replaceSlot overwrites the group victim in place with a stronger candidate.
func (s *Selector) replaceSlot(slot int32, groupPos int, cand hit.Hit) {
	pos := s.scorePos(slot)
	s.byGroup = removeAt(s.byGroup, groupPos)

	s.slots[slot] = cand
	s.reinsertScore(pos, slot)
	s.insertGroup(slot)
}

// reinsertScore moves slot from byScore[pos] to its rank position.
func (s *Selector) reinsertScore(pos int, slot int32) {
	copy(s.byScore[pos:], s.byScore[pos+1:])
	rest := s.byScore[:len(s.byScore)-1]

	cand := s.slots[slot]
	// upper bound: equal ranks (empty slots) stay in front of the new hit
	at := sort.Search(len(rest), func(i int) bool {
		return hit.Outranks(s.slots[rest[i]], cand)
	})
	copy(s.byScore[at+1:], s.byScore[at:len(s.byScore)-1])
	s.byScore[at] = slot
}

// scorePos locates slot in byScore.
func (s *Selector) scorePos(slot int32) int {
	target := s.slots[slot]
	i := sort.Search(len(s.byScore), func(i int) bool {
		return !hit.Outranks(target, s.slots[s.byScore[i]])
	})
	for i < len(s.byScore) && s.byScore[i] != slot {
		i++
	}
	return i
}

// groupRun returns the start of the group's run in byGroup and its length, counted up to the cap.
func (s *Selector) groupRun(group string) (int, int) {
	lo := sort.Search(len(s.byGroup), func(i int) bool {
		return s.slots[s.byGroup[i]].Group >= group
	})
	n := 0
	for lo+n < len(s.byGroup) && n < s.cap && s.slots[s.byGroup[lo+n]].Group == group {
		n++
	}
	return lo, n
}

// groupPos locates slot in byGroup.
func (s *Selector) groupPos(slot int32) int {
	target := s.slots[slot]
	i := sort.Search(len(s.byGroup), func(i int) bool {
		return !groupLess(s.slots[s.byGroup[i]], target)
	})
	for i < len(s.byGroup) && s.byGroup[i] != slot {
		i++
	}
	return i
}

func (s *Selector) insertGroup(slot int32) {
	cand := s.slots[slot]
	at := sort.Search(len(s.byGroup), func(i int) bool {
		return groupLess(cand, s.slots[s.byGroup[i]])
	})
	s.byGroup = append(s.byGroup, 0)
	copy(s.byGroup[at+1:], s.byGroup[at:])
	s.byGroup[at] = slot
}

// groupLess orders by group, then weakest first.
func groupLess(a, b hit.Hit) bool {
	if a.Group != b.Group {
		return a.Group < b.Group
	}
	return hit.Outranks(b, a)
}

func removeAt(v []int32, i int) []int32 {
	copy(v[i:], v[i+1:])
	return v[:len(v)-1]
}
