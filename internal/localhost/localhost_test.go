package localhost

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/splitkit/splitkit-go/internal/engine"
	"github.com/splitkit/splitkit-go/internal/storage"
)

func writeTempFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile(%s) error = %v", path, err)
	}
	return path
}

func TestFormatFor(t *testing.T) {
	cases := map[string]Format{
		"splits.yaml": FormatYAML,
		"splits.yml":  FormatYAML,
		"splits.json": FormatJSON,
		".split":      FormatLegacy,
		"whatever":    FormatLegacy,
	}
	for filename, want := range cases {
		if got := FormatFor(filename); got != want {
			t.Errorf("FormatFor(%q) = %v, want %v", filename, got, want)
		}
	}
}

func TestSync_LegacyFormat(t *testing.T) {
	path := writeTempFile(t, ".split", "# comment\n\nfeature_a on\nfeature_b off\n")
	store := storage.NewMemory()
	if err := Sync(path, FormatLegacy, store); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	flagA, ok := store.Get("feature_a")
	if !ok {
		t.Fatal("feature_a should be present after sync")
	}
	if flagA.Conditions[0].Partitions[0].Treatment != "on" {
		t.Errorf("feature_a treatment = %q, want on", flagA.Conditions[0].Partitions[0].Treatment)
	}
	if _, ok := store.Get("feature_b"); !ok {
		t.Fatal("feature_b should be present after sync")
	}
}

func TestSync_LegacyFormatRemovesStaleFlags(t *testing.T) {
	store := storage.NewMemory()
	_ = store.ApplyFlags(storage.FlagUpdate{Upserts: []engine.Flag{{Name: "stale_flag", DefaultTreatment: "control"}}})

	path := writeTempFile(t, ".split", "feature_a on\n")
	if err := Sync(path, FormatLegacy, store); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if _, ok := store.Get("stale_flag"); ok {
		t.Error("stale_flag should have been removed by the replace-all sync")
	}
	if _, ok := store.Get("feature_a"); !ok {
		t.Error("feature_a should be present")
	}
}

func TestSync_YAMLFormat(t *testing.T) {
	yamlContent := `
- feature_a:
    treatment: "on"
    keys: "user-1"
- feature_a:
    treatment: "off"
`
	path := writeTempFile(t, "splits.yaml", yamlContent)
	store := storage.NewMemory()
	if err := Sync(path, FormatYAML, store); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	flag, ok := store.Get("feature_a")
	if !ok {
		t.Fatal("feature_a should be present after YAML sync")
	}
	if len(flag.Conditions) != 2 {
		t.Fatalf("feature_a should have a whitelist condition and an ALL_KEYS default, got %d conditions", len(flag.Conditions))
	}
}

func TestSync_JSONFormat(t *testing.T) {
	jsonContent := `{
		"since": 0,
		"till": 5,
		"splits": [{
			"name": "feature_a",
			"status": "ACTIVE",
			"defaultTreatment": "off",
			"trafficAllocation": 100,
			"changeNumber": 5,
			"algo": 2,
			"conditions": [{
				"conditionType": "ROLLOUT",
				"label": "default rule",
				"matcherGroup": {"combiner": "AND", "matchers": [{"matcherType": "ALL_KEYS", "negate": false}]},
				"partitions": [{"treatment": "on", "size": 100}]
			}]
		}]
	}`
	path := writeTempFile(t, "splits.json", jsonContent)
	store := storage.NewMemory()
	if err := Sync(path, FormatJSON, store); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if _, ok := store.Get("feature_a"); !ok {
		t.Fatal("feature_a should be present after JSON sync")
	}
}
