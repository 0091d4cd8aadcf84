// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bytes

import (
	"fmt"
	"sort"
	"strings"
)

// Range defines a generic bytes range header.
type Range struct {
	Offset uint64
	Length uint64
}

func (r Range) String() string {
	return fmt.Sprintf(`{"Offset":"0x%x", "Length":"0x%x"}`, r.Offset, r.Length)
}

// End returns the exclusive end offset of the range.
func (r Range) End() uint64 {
	return r.Offset + r.Length
}

// Intersect returns true if ranges "r" and "cmp" have at least
// one byte with the same offset.
func (r Range) Intersect(cmp Range) bool {
	if r.Length == 0 || cmp.Length == 0 {
		return false
	}

	if r.End() <= cmp.Offset {
		return false
	}
	if r.Offset >= cmp.End() {
		return false
	}

	return true
}

// Contains returns true if "cmp" lies entirely inside "r".
func (r Range) Contains(cmp Range) bool {
	return cmp.Offset >= r.Offset && cmp.End() <= r.End()
}

// Ranges is a helper to manipulate multiple `Range`-s at once
type Ranges []Range

func (s Ranges) String() string {
	r := make([]string, 0, len(s))
	for _, oneRange := range s {
		r = append(r, oneRange.String())
	}
	return `[` + strings.Join(r, `, `) + `]`
}

// Sort sorts the slice by field Offset
func (s Ranges) Sort() {
	sort.Slice(s, func(i, j int) bool {
		return s[i].Offset < s[j].Offset
	})
}

// MergeRanges merges ranges which have distance less or equal to
// mergeDistance.
//
// Warning: should be called only on sorted ranges!
func MergeRanges(in Ranges, mergeDistance uint64) Ranges {
	if len(in) < 2 {
		return in
	}

	var result Ranges
	entry := in[0]
	for _, nextEntry := range in[1:] {
		if entry.Offset+entry.Length+mergeDistance >= nextEntry.Offset {
			entry.Length = (nextEntry.Offset - entry.Offset) + nextEntry.Length
			continue
		}

		result = append(result, entry)
		entry = nextEntry
	}
	result = append(result, entry)

	return result
}

// SortAndMerge sorts the slice (by field Offset) and then merges ranges
// which could be merged.
func (s *Ranges) SortAndMerge() {
	if len(*s) < 2 {
		return
	}
	s.Sort()

	*s = MergeRanges(*s, 0)
}

// Compile returns the bytes from `b` which are referenced by `Range`-s `s`.
// Out-of-bounds ranges are clamped to the buffer.
func (s Ranges) Compile(b []byte) []byte {
	var result []byte
	for _, r := range s {
		result = append(result, Mid(b, int(r.Offset), int(r.Length))...)
	}
	return result
}

// IsIn returns if the index is covered by these ranges
func (s Ranges) IsIn(index uint64) bool {
	for _, r := range s {
		// `r.Offset` is inclusive, while `r.End()` is exclusive,
		// the same as usual slice indices work.
		if r.Offset <= index && index < r.End() {
			return true
		}
	}
	return false
}
