package splitkit

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splitkit/splitkit-go/internal/engine"
	"github.com/splitkit/splitkit-go/internal/logging"
	"github.com/splitkit/splitkit-go/internal/storage"
	"github.com/splitkit/splitkit-go/internal/telemetry"
)

func newTestFactory(t *testing.T) (*Factory, *storage.Memory) {
	t.Helper()
	mem := storage.NewMemory()
	ready := make(chan struct{})
	close(ready)
	f := &Factory{
		store:     mem,
		evaluator: engine.NewEvaluator(mem, mem),
		ready:     ready,
		metrics:   telemetry.New(),
		logger:    logging.NewWithWriter("error", io.Discard),
	}
	f.client = &Client{factory: f}
	f.manager = &Manager{factory: f}
	return f, mem
}

func TestManager_SplitNames_ListsStoredFlags(t *testing.T) {
	f, mem := newTestFactory(t)
	mem.ApplyFlags(storage.FlagUpdate{Upserts: []engine.Flag{
		{Name: "f1", DefaultTreatment: "off"},
		{Name: "f2", DefaultTreatment: "off"},
	}})
	assert.Len(t, f.Manager().SplitNames(), 2)
}

func TestManager_Split_ReturnsFalseForUnknownFlag(t *testing.T) {
	f, _ := newTestFactory(t)
	_, ok := f.Manager().Split("missing")
	assert.False(t, ok)
}

func TestManager_Split_ReturnsViewWithTreatmentsAndSets(t *testing.T) {
	f, mem := newTestFactory(t)
	mem.ApplyFlags(storage.FlagUpdate{Upserts: []engine.Flag{
		{
			Name:             "f1",
			DefaultTreatment: "off",
			ChangeNumber:     42,
			Sets:             []string{"set_a"},
			Configurations:   map[string]string{"on": `{"color":"red"}`},
			Conditions: []engine.Condition{{
				Type:       engine.ConditionRollout,
				Partitions: []engine.Partition{{Treatment: "on", Size: 100}},
			}},
		},
	}})

	view, ok := f.Manager().Split("f1")
	require.True(t, ok)
	assert.Equal(t, int64(42), view.ChangeNumber)
	assert.Equal(t, []string{"set_a"}, view.Sets)
	assert.ElementsMatch(t, []string{"off", "on"}, view.Treatments)
}

func TestManager_Splits_ReturnsAllStoredFlags(t *testing.T) {
	f, mem := newTestFactory(t)
	mem.ApplyFlags(storage.FlagUpdate{Upserts: []engine.Flag{
		{Name: "f1", DefaultTreatment: "off"},
		{Name: "f2", DefaultTreatment: "off"},
	}})
	assert.Len(t, f.Manager().Splits(), 2)
}
