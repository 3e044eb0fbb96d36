package storage

import (
	"sync"

	"github.com/splitkit/splitkit-go/internal/engine"
)

// Memory is the standalone in-process storage: everything lives behind a
// single RW-mutex, readers get a lock-light snapshot and writers replace
// entries transactionally. The Redis adapter in storage/redisstore
// implements the same Storage interface for consumer-mode deployments.
type Memory struct {
	mu sync.RWMutex

	flags        map[string]*engine.Flag
	flagChangeNo int64

	segments map[string]*engine.Segment

	// setIndex maps a flag-set tag to the set of flag names carrying it.
	setIndex map[string]map[string]struct{}
}

// NewMemory returns an empty Memory store, ready for the sync pipeline to
// populate via ApplyFlags/ApplySegment.
func NewMemory() *Memory {
	return &Memory{
		flags:        make(map[string]*engine.Flag),
		segments:     make(map[string]*engine.Segment),
		setIndex:     make(map[string]map[string]struct{}),
		flagChangeNo: -1,
	}
}

// Get implements engine.FlagSource.
func (m *Memory) Get(name string) (*engine.Flag, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.flags[name]
	return f, ok
}

// Contains implements engine.SegmentView.
func (m *Memory) Contains(name, key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seg, ok := m.segments[name]
	if !ok {
		return false
	}
	return seg.Contains(key)
}

// ApplyFlags installs a batch of flag upserts/removals and advances the
// global flag change-number, monotonically. Applying the same update
// twice (same Till, same contents) is idempotent — a second call is a
// no-op version-wise and leaves the map in the same state.
func (m *Memory) ApplyFlags(update FlagUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, f := range update.Upserts {
		flag := f
		m.removeFromSetIndexLocked(flag.Name)
		m.flags[flag.Name] = &flag
		m.addToSetIndexLocked(&flag)
	}
	for _, name := range update.Removes {
		m.removeFromSetIndexLocked(name)
		delete(m.flags, name)
	}

	if update.Till > m.flagChangeNo {
		m.flagChangeNo = update.Till
	}
	return nil
}

// ApplySegment installs one segment's added/removed member deltas.
func (m *Memory) ApplySegment(update SegmentUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seg, ok := m.segments[update.Name]
	if !ok {
		seg = &engine.Segment{Name: update.Name, Members: make(map[string]struct{})}
		m.segments[update.Name] = seg
	}
	for _, k := range update.Added {
		seg.Members[k] = struct{}{}
	}
	for _, k := range update.Removed {
		delete(seg.Members, k)
	}
	if update.Till > seg.ChangeNumber {
		seg.ChangeNumber = update.Till
	}
	return nil
}

// ChangeNumber returns the global flag feed's current change-number, -1
// if no successful apply has landed yet.
func (m *Memory) ChangeNumber() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.flagChangeNo
}

// SegmentChangeNumber returns a segment's change-number, if known.
func (m *Memory) SegmentChangeNumber(name string) (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seg, ok := m.segments[name]
	if !ok {
		return 0, false
	}
	return seg.ChangeNumber, true
}

// FlagNames returns every currently-stored flag's name.
func (m *Memory) FlagNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.flags))
	for n := range m.flags {
		names = append(names, n)
	}
	return names
}

// FlagsInSet returns the flags tagged with the given flag-set.
func (m *Memory) FlagsInSet(set string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	members, ok := m.setIndex[set]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(members))
	for name := range members {
		out = append(out, name)
	}
	return out
}

// AllSets returns every flag-set tag currently indexed.
func (m *Memory) AllSets() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.setIndex))
	for set := range m.setIndex {
		out = append(out, set)
	}
	return out
}

// SegmentsReferencedBy returns every segment name any IN_SEGMENT /
// IN_LARGE_SEGMENT matcher of the named flag itself refers to. Segments
// used only by its dependency flags are not included.
func (m *Memory) SegmentsReferencedBy(flagName string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	flag, ok := m.flags[flagName]
	if !ok {
		return nil
	}
	seen := make(map[string]struct{})
	for _, cond := range flag.Conditions {
		for _, matcher := range cond.Matchers {
			if matcher.Kind == engine.MatcherInSegment || matcher.Kind == engine.MatcherInLargeSegment {
				seen[matcher.SegmentName] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	return out
}

// removeFromSetIndexLocked and addToSetIndexLocked keep setIndex
// symmetric with each flag's Sets field: flag F lists tag T iff the
// flag-set index maps T to F. Callers must hold m.mu for writing.
func (m *Memory) removeFromSetIndexLocked(flagName string) {
	old, ok := m.flags[flagName]
	if !ok {
		return
	}
	for _, set := range old.Sets {
		if members, ok := m.setIndex[set]; ok {
			delete(members, flagName)
			if len(members) == 0 {
				delete(m.setIndex, set)
			}
		}
	}
}

func (m *Memory) addToSetIndexLocked(flag *engine.Flag) {
	for _, set := range flag.Sets {
		members, ok := m.setIndex[set]
		if !ok {
			members = make(map[string]struct{})
			m.setIndex[set] = members
		}
		members[flag.Name] = struct{}{}
	}
}
