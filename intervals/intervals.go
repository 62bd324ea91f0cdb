// Package intervals provides a set container for disjoint integer ranges
// with a capacity-constrained union operation.
package intervals

import (
	"fmt"
	"sort"
	"strings"
)

// A Range is a half-open span [Start, End) of integers.
type Range struct {
	Start int
	End   int
}

// Len returns the number of integer points covered by the range.
func (r Range) Len() int {
	if r.End <= r.Start {
		return 0
	}

	return r.End - r.Start
}

// Contains returns true if x falls within the range.
func (r Range) Contains(x int) bool {
	return x >= r.Start && x < r.End
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

// A taggedRange remembers the merge generation that last touched the range,
// so that capacity clipping can prefer recently inserted content.
type taggedRange struct {
	Range
	gen int
}

// A Set is a collection of disjoint, sorted, half-open integer ranges.
// The zero value is not usable; create Sets with NewSet or MergeCapped.
type Set struct {
	ranges []taggedRange
	gen    int
}

// NewSet creates a Set covering the union of the given ranges.
func NewSet(rs ...Range) *Set {
	s := &Set{}

	return s.MergeCapped(rs, -1)
}

// Contains returns true if x is covered by the set.
func (s *Set) Contains(x int) bool {
	i := sort.Search(len(s.ranges), func(i int) bool {
		return s.ranges[i].End > x
	})

	return i < len(s.ranges) && s.ranges[i].Contains(x)
}

// Size returns the total count of integer points covered by the set.
func (s *Set) Size() int {
	size := 0
	for _, r := range s.ranges {
		size += r.Len()
	}

	return size
}

// NumRanges returns the number of disjoint ranges stored.
func (s *Set) NumRanges() int {
	return len(s.ranges)
}

// Ranges returns a sorted copy of the stored ranges.
func (s *Set) Ranges() []Range {
	rs := make([]Range, 0, len(s.ranges))
	for _, r := range s.ranges {
		rs = append(rs, r.Range)
	}

	return rs
}

func (s *Set) String() string {
	parts := make([]string, 0, len(s.ranges))
	for _, r := range s.ranges {
		parts = append(parts, r.Range.String())
	}

	return "{" + strings.Join(parts, " ") + "}"
}

// MergeCapped returns a new Set that unions the receiver with newRanges.
// If the union covers more than cap integer points, ranges are dropped,
// preferring to keep the most recently merged content; within the same
// merge generation, higher offsets are kept first. A negative cap disables
// clipping. The receiver is not modified.
func (s *Set) MergeCapped(newRanges []Range, cap int) *Set {
	merged := &Set{
		ranges: make([]taggedRange, len(s.ranges)),
		gen:    s.gen + 1,
	}
	copy(merged.ranges, s.ranges)

	for _, r := range newRanges {
		if r.Len() == 0 {
			continue
		}

		merged.insert(taggedRange{Range: r, gen: merged.gen})
	}

	if cap >= 0 {
		merged.clip(cap)
	}

	return merged
}

// insert adds one range, coalescing it with any overlapping or adjacent
// stored ranges. The coalesced range takes the newest generation of its
// constituents.
func (s *Set) insert(nr taggedRange) {
	// Find all stored ranges that overlap or touch [nr.Start, nr.End).
	lo := sort.Search(len(s.ranges), func(i int) bool {
		return s.ranges[i].End >= nr.Start
	})
	hi := lo
	for hi < len(s.ranges) && s.ranges[hi].Start <= nr.End {
		hi++
	}

	for i := lo; i < hi; i++ {
		old := s.ranges[i]
		if old.Start < nr.Start {
			nr.Start = old.Start
		}
		if old.End > nr.End {
			nr.End = old.End
		}
		if old.gen > nr.gen {
			nr.gen = old.gen
		}
	}

	s.ranges = append(s.ranges[:lo], append([]taggedRange{nr}, s.ranges[hi:]...)...)
}

// clip drops covered points until the set size fits within cap. Oldest
// generations go first; among equal generations, the lowest range goes
// first. A partially dropped range is trimmed at its low end.
func (s *Set) clip(cap int) {
	excess := s.Size() - cap
	if excess <= 0 {
		return
	}

	order := make([]int, len(s.ranges))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ra, rb := s.ranges[order[a]], s.ranges[order[b]]
		if ra.gen != rb.gen {
			return ra.gen < rb.gen
		}
		return ra.Start < rb.Start
	})

	drop := make(map[int]bool)
	for _, idx := range order {
		if excess <= 0 {
			break
		}

		r := &s.ranges[idx]
		if r.Len() <= excess {
			excess -= r.Len()
			drop[idx] = true
			continue
		}

		r.Start += excess
		excess = 0
	}

	kept := s.ranges[:0]
	for i, r := range s.ranges {
		if !drop[i] {
			kept = append(kept, r)
		}
	}
	s.ranges = kept
}
