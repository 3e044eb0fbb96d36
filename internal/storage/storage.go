// Package storage holds the authoritative caches the sync pipeline writes
// to and the evaluator reads from: flags, segments, and the flag-set
// index, all versioned by change-number.
package storage

import "github.com/splitkit/splitkit-go/internal/engine"

// FlagUpdate describes a batch of flag additions/updates/removals to
// apply atomically, as returned by one page of the splitChanges feed.
type FlagUpdate struct {
	Upserts []engine.Flag
	Removes []string
	Till    int64
}

// SegmentUpdate describes one segment's delta, as returned by one page of
// the segmentChanges feed.
type SegmentUpdate struct {
	Name    string
	Added   []string
	Removed []string
	Till    int64
}

// Storage is the interface the sync pipeline writes through and the
// evaluator reads through. Implementations must apply updates
// transactionally: either the whole update lands, or none of it does.
type Storage interface {
	engine.FlagSource
	engine.SegmentView

	ApplyFlags(update FlagUpdate) error
	ApplySegment(update SegmentUpdate) error

	ChangeNumber() int64
	SegmentChangeNumber(name string) (int64, bool)

	FlagNames() []string
	FlagsInSet(set string) []string
	AllSets() []string

	// SegmentsReferencedBy returns the names of every segment any
	// IN_SEGMENT/IN_LARGE_SEGMENT matcher in flag refers to, so the
	// poller can enqueue them for immediate fetch.
	SegmentsReferencedBy(flagName string) []string
}
