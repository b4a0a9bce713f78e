// Package blocklist holds labeled IPv4 ranges loaded from PeerGuardian and
// ipfilter lists and answers containment lookups against them.
//
// Ranges are appended unordered by the parsers, then Finalize sorts them and
// coalesces overlapping or adjacent ranges. A coalesced range drops its own
// label and points into a SubRange arena that keeps every original range, so a
// match can still be attributed to the lists that caused it.
package blocklist

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

const (
	// MaxLabelLength bounds stored labels, terminator included.
	MaxLabelLength = 255
	// MaxRanges is the attribution depth used by the packet path.
	MaxRanges = 16

	deleted = -1
)

// Range is one entry of the finalized list. A Range that absorbed two or
// more original ranges has an empty Label and owns a run of SubRanges.
type Range struct {
	Min     uint32
	Max     uint32
	Label   string
	Hits    int
	LastHit time.Time

	subIndex int
}

// Merged reports whether the range was produced by coalescing.
func (r *Range) Merged() bool {
	return r.subIndex >= 0
}

// SubRange is an original range kept for attribution after a merge.
type SubRange struct {
	Min   uint32
	Max   uint32
	Label string
}

func (s SubRange) Contains(ip uint32) bool {
	return s.Min <= ip && ip <= s.Max
}

type Blocklist struct {
	ranges    []Range
	subs      []SubRange
	finalized bool

	logger zerolog.Logger
}

func New(logger zerolog.Logger) *Blocklist {
	return &Blocklist{
		logger: logger.With().Str("component", "blocklist").Logger(),
	}
}

// Append adds a range with its own label. Bounds given in reverse order are
// swapped.
func (b *Blocklist) Append(lo, hi uint32, label string) {
	if lo > hi {
		lo, hi = hi, lo
	}
	b.ranges = append(b.ranges, Range{Min: lo, Max: hi, Label: label, subIndex: -1})
	b.finalized = false
}

// Len returns the number of ranges currently held.
func (b *Blocklist) Len() int {
	return len(b.ranges)
}

// SubLen returns the size of the SubRange arena.
func (b *Blocklist) SubLen() int {
	return len(b.subs)
}

// Truncate drops every range appended after the first n. It is used to
// discard a failed parser pass.
func (b *Blocklist) Truncate(n int) {
	if n < 0 || n >= len(b.ranges) {
		return
	}
	clear(b.ranges[n:])
	b.ranges = b.ranges[:n]
}

// Clear releases all ranges and sub-ranges.
func (b *Blocklist) Clear() {
	b.ranges = nil
	b.subs = nil
	b.finalized = false
}

func (b *Blocklist) Sort() {
	slices.SortFunc(b.ranges, func(x, y Range) int {
		return cmp.Compare(x.Min, y.Min)
	})
}

// Trim coalesces overlapping and adjacent ranges of a sorted list and
// rebuilds the SubRange arena. Running it again on a trimmed list changes
// nothing.
func (b *Blocklist) Trim() {
	ranges := b.ranges
	subs := make([]SubRange, 0, len(b.subs))
	merged := 0

	for i := 0; i < len(ranges); {
		runMax := uint64(ranges[i].Max)
		j := i + 1
		for j < len(ranges) && uint64(ranges[j].Min) <= runMax+1 {
			runMax = max(runMax, uint64(ranges[j].Max))
			j++
		}

		if j-i == 1 {
			if ranges[i].Merged() {
				start := len(subs)
				subs = append(subs, b.run(&ranges[i])...)
				ranges[i].subIndex = start
			}
			i = j
			continue
		}

		start := len(subs)
		for k := i; k < j; k++ {
			r := &ranges[k]
			if r.Merged() {
				subs = append(subs, b.run(r)...)
			} else {
				subs = append(subs, SubRange{Min: r.Min, Max: r.Max, Label: r.Label})
			}
			if k > i {
				r.Hits = deleted
			}
		}

		first := &ranges[i]
		first.Label = ""
		first.Max = uint32(runMax)
		first.subIndex = start

		b.logger.Debug().
			Str("min", FormatIP(first.Min)).
			Str("max", FormatIP(first.Max)).
			Int("ranges", j-i).
			Int("subranges", len(subs)-start).
			Msg("merged ranges")

		merged += j - i - 1
		i = j
	}

	kept := ranges[:0]
	for _, r := range ranges {
		if r.Hits != deleted {
			kept = append(kept, r)
		}
	}
	clear(ranges[len(kept):])

	b.ranges = slices.Clone(kept)
	b.subs = slices.Clip(subs)

	b.logger.Debug().Int("merged", merged).Int("ranges", len(b.ranges)).Msg("trimmed blocklist")
}

// run returns the SubRanges owned by a merged range in the current arena.
func (b *Blocklist) run(r *Range) []SubRange {
	if !r.Merged() {
		return nil
	}
	end := r.subIndex
	for end < len(b.subs) && b.subs[end].Max <= r.Max {
		end++
	}
	return b.subs[r.subIndex:end]
}

// Finalize sorts and trims the list and enables lookups.
func (b *Blocklist) Finalize() {
	b.Sort()
	b.Trim()
	b.finalized = true
}

func (b *Blocklist) Finalized() bool {
	return b.finalized
}

// Find returns the range containing ip, or nil. Attribution is appended to
// dst[:0], bounded by cap(dst); a nil dst skips the attribution scan.
//
// The returned Range points into the list and stays valid until the next
// Append, Finalize or Clear.
func (b *Blocklist) Find(ip uint32, dst []SubRange) (*Range, []SubRange) {
	if !b.finalized || len(b.ranges) == 0 {
		return nil, dst[:0]
	}

	i := sort.Search(len(b.ranges), func(i int) bool {
		return b.ranges[i].Max >= ip
	})
	if i == len(b.ranges) || b.ranges[i].Min > ip {
		return nil, dst[:0]
	}
	r := &b.ranges[i]

	if dst == nil {
		return r, nil
	}
	limit := cap(dst)
	dst = dst[:0]

	if !r.Merged() {
		if limit > 0 {
			dst = append(dst, SubRange{Min: r.Min, Max: r.Max, Label: r.Label})
		}
		return r, dst
	}

	for k := r.subIndex; k < len(b.subs) && len(dst) < limit; k++ {
		s := b.subs[k]
		if s.Max > r.Max {
			break
		}
		if s.Contains(ip) {
			dst = append(dst, s)
		}
	}
	return r, dst
}

// Ranges exposes the finalized ranges for read-only iteration.
func (b *Blocklist) Ranges() []Range {
	return b.ranges
}

// SubRanges returns the attribution run of r.
func (b *Blocklist) SubRanges(r *Range) []SubRange {
	return b.run(r)
}

// Dump writes every range, followed by the constituents of merged ones.
func (b *Blocklist) Dump(w io.Writer) error {
	for i := range b.ranges {
		r := &b.ranges[i]
		if !r.Merged() {
			if _, err := fmt.Fprintf(w, "%d - %s-%s - %s\n", i, FormatIP(r.Min), FormatIP(r.Max), r.Label); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintf(w, "%d - %s-%s is a composite range:\n", i, FormatIP(r.Min), FormatIP(r.Max)); err != nil {
			return err
		}
		for _, s := range b.run(r) {
			if _, err := fmt.Fprintf(w, "  Sub-Range: %s-%s - %s\n", FormatIP(s.Min), FormatIP(s.Max), s.Label); err != nil {
				return err
			}
		}
	}
	return nil
}
