package splitkit

import "github.com/splitkit/splitkit-go/internal/engine"

// SplitView is a read-only snapshot of one flag's current definition,
// for introspection rather than evaluation.
type SplitView struct {
	Name              string
	TrafficType       string
	Killed            bool
	Treatments        []string
	Configs           map[string]string
	ChangeNumber      int64
	Sets              []string
	DefaultTreatment  string
}

// Manager exposes read-only introspection over a Factory's current flag
// snapshot, distinct from Client's evaluation surface.
type Manager struct {
	factory *Factory
}

func toView(flag *engine.Flag) SplitView {
	treatments := map[string]struct{}{flag.DefaultTreatment: {}}
	for _, cond := range flag.Conditions {
		for _, part := range cond.Partitions {
			treatments[part.Treatment] = struct{}{}
		}
	}
	names := make([]string, 0, len(treatments))
	for t := range treatments {
		names = append(names, t)
	}
	return SplitView{
		Name:             flag.Name,
		Killed:           flag.Killed,
		Treatments:       names,
		Configs:          flag.Configurations,
		ChangeNumber:     flag.ChangeNumber,
		Sets:             flag.Sets,
		DefaultTreatment: flag.DefaultTreatment,
	}
}

// SplitNames lists every flag name currently in storage.
func (m *Manager) SplitNames() []string {
	return m.factory.store.FlagNames()
}

// Split returns a snapshot of one flag's definition, or false if it
// doesn't exist in the current snapshot.
func (m *Manager) Split(name string) (SplitView, bool) {
	flag, ok := m.factory.store.Get(name)
	if !ok {
		return SplitView{}, false
	}
	return toView(flag), true
}

// Splits returns a snapshot of every flag currently in storage.
func (m *Manager) Splits() []SplitView {
	names := m.factory.store.FlagNames()
	views := make([]SplitView, 0, len(names))
	for _, name := range names {
		if flag, ok := m.factory.store.Get(name); ok {
			views = append(views, toView(flag))
		}
	}
	return views
}
