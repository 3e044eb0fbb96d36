package splitkit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splitkit/splitkit-go/internal/engine"
	"github.com/splitkit/splitkit-go/internal/storage"
	"github.com/splitkit/splitkit-go/internal/telemetry"
)

func allKeysFlag(name, onConfig string) engine.Flag {
	return engine.Flag{
		Name:              name,
		DefaultTreatment:  "off",
		TrafficAllocation: 100,
		Configurations:    map[string]string{"on": onConfig},
		Conditions: []engine.Condition{{
			Type:       engine.ConditionRollout,
			Matchers:   []engine.Matcher{{Kind: engine.MatcherAllKeys}},
			Partitions: []engine.Partition{{Treatment: "on", Size: 100}},
		}},
	}
}

func TestClient_GetTreatment_NotReadyDegradesToControl(t *testing.T) {
	mem := storage.NewMemory()
	f := &Factory{store: mem, evaluator: engine.NewEvaluator(mem, mem), ready: make(chan struct{})}
	f.client = &Client{factory: f}

	assert.Equal(t, engine.Control, f.Client().GetTreatment("user-1", "f1", nil))
}

func TestClient_GetTreatment_DestroyedDegradesToControl(t *testing.T) {
	f, mem := newTestFactory(t)
	mem.ApplyFlags(storage.FlagUpdate{Upserts: []engine.Flag{allKeysFlag("f1", "")}})
	f.destroyed.Store(true)

	assert.Equal(t, engine.Control, f.Client().GetTreatment("user-1", "f1", nil))
}

func TestClient_GetTreatmentWithConfig_ReturnsConfiguration(t *testing.T) {
	f, mem := newTestFactory(t)
	mem.ApplyFlags(storage.FlagUpdate{Upserts: []engine.Flag{allKeysFlag("f1", `{"color":"red"}`)}})

	treatment, config := f.Client().GetTreatmentWithConfig("user-1", "f1", nil)
	assert.Equal(t, "on", treatment)
	assert.Equal(t, `{"color":"red"}`, config)
}

func TestClient_GetTreatments_BatchEvaluatesEveryFlag(t *testing.T) {
	f, mem := newTestFactory(t)
	mem.ApplyFlags(storage.FlagUpdate{Upserts: []engine.Flag{
		allKeysFlag("f1", ""),
		allKeysFlag("f2", ""),
	}})

	out := f.Client().GetTreatments("user-1", []string{"f1", "f2"}, nil)
	assert.Equal(t, map[string]string{"f1": "on", "f2": "on"}, out)
}

func TestClient_GetTreatmentsByFlagSet_ResolvesTaggedFlags(t *testing.T) {
	f, mem := newTestFactory(t)
	tagged := allKeysFlag("f1", "")
	tagged.Sets = []string{"set_a"}
	mem.ApplyFlags(storage.FlagUpdate{Upserts: []engine.Flag{tagged, allKeysFlag("f2", "")}})

	out := f.Client().GetTreatmentsByFlagSet("user-1", "set_a", nil)
	assert.Contains(t, out, "f1")
	assert.NotContains(t, out, "f2")
}

func TestClient_GetTreatmentsByFlagSets_UnionsWithoutDuplicates(t *testing.T) {
	f, mem := newTestFactory(t)
	both := allKeysFlag("f1", "")
	both.Sets = []string{"set_a", "set_b"}
	mem.ApplyFlags(storage.FlagUpdate{Upserts: []engine.Flag{both}})

	out := f.Client().GetTreatmentsByFlagSets("user-1", []string{"set_a", "set_b"}, nil)
	assert.Len(t, out, 1)
}

func TestClient_GetTreatment_QueuesImpression(t *testing.T) {
	f, mem := newTestFactory(t)
	mem.ApplyFlags(storage.FlagUpdate{Upserts: []engine.Flag{allKeysFlag("f1", "")}})
	f.impQueue = telemetry.NewImpressionQueue(10, nil, nil)
	f.impPipe = telemetry.NewPipeline(telemetry.ModeDebug, nil)
	f.metrics = telemetry.New()

	f.Client().GetTreatment("user-1", "f1", nil)

	items := f.impQueue.Drain()
	require.Len(t, items, 1)
	assert.Equal(t, "f1", items[0].FeatureName)
	assert.Equal(t, "on", items[0].Treatment)
}

func TestClient_Track_DestroyedReturnsError(t *testing.T) {
	f, _ := newTestFactory(t)
	f.destroyed.Store(true)

	ok, err := f.Client().Track("user-1", "user", "purchase", nil, nil)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrDestroyed)
}

func TestClient_Track_QueuesValidEvent(t *testing.T) {
	f, _ := newTestFactory(t)
	f.eventQ = telemetry.NewEventQueue(10, nil)

	ok, err := f.Client().Track("user-1", "user", "purchase", nil, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, f.eventQ.Drain(), 1)
}

func TestClient_Track_NoEventQueueReturnsFalseWithoutError(t *testing.T) {
	f, _ := newTestFactory(t)
	ok, err := f.Client().Track("user-1", "user", "purchase", nil, nil)
	assert.False(t, ok)
	assert.NoError(t, err)
}
