// Package localhost implements the file-polling localhost mode: flags are
// read from a local file instead of the Split backend, in one of three
// formats — legacy "feature treatment" lines, a YAML per-key mapping, or
// a full JSON splitChanges-shaped document.
package localhost

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/splitkit/splitkit-go/internal/engine"
	"github.com/splitkit/splitkit-go/internal/fetcher"
	"github.com/splitkit/splitkit-go/internal/storage"
)

var (
	legacyCommentLine    = regexp.MustCompile(`^#.*$`)
	legacyDefinitionLine = regexp.MustCompile(`^([\w-]+)\s+([\w-]+)$`)
)

const (
	localhostChangeNumber          = 123
	localhostTrafficAllocationSeed = 123456
	localhostSeed                  = 321654
)

func makeAllKeysCondition(treatment string) engine.Condition {
	return engine.Condition{
		Label: "some_other_label",
		Type:  engine.ConditionWhitelist,
		Matchers: []engine.Matcher{
			{Kind: engine.MatcherAllKeys},
		},
		Partitions: []engine.Partition{{Treatment: treatment, Size: 100}},
	}
}

func makeWhitelistCondition(keys []string, treatment string) engine.Condition {
	return engine.Condition{
		Label: "some_other_label",
		Type:  engine.ConditionWhitelist,
		Matchers: []engine.Matcher{
			{Kind: engine.MatcherWhitelist, Strings: keys},
		},
		Partitions: []engine.Partition{{Treatment: treatment, Size: 100}},
	}
}

func makeFlag(name string, conditions []engine.Condition, configs map[string]string) engine.Flag {
	return engine.Flag{
		Name:                  name,
		Status:                engine.StatusActive,
		Killed:                false,
		DefaultTreatment:      "control",
		TrafficAllocation:     100,
		TrafficAllocationSeed: localhostTrafficAllocationSeed,
		Algo:                  engine.HashMurmur3,
		Seed:                  localhostSeed,
		ChangeNumber:          localhostChangeNumber,
		Conditions:            conditions,
		Configurations:        configs,
	}
}

// readLegacyFile parses the ".split" text format: one "feature treatment"
// pair per line, '#' comments and blank lines skipped.
func readLegacyFile(filename string) (map[string]engine.Flag, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("localhost: open %s: %w", filename, err)
	}
	defer f.Close()

	out := make(map[string]engine.Flag)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || legacyCommentLine.MatchString(trimmed) {
			continue
		}
		m := legacyDefinitionLine.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		feature, treatment := m[1], m[2]
		out[feature] = makeFlag(feature, []engine.Condition{makeAllKeysCondition(treatment)}, nil)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("localhost: read %s: %w", filename, err)
	}
	return out, nil
}

type yamlStatement struct {
	Treatment string      `yaml:"treatment"`
	Keys      interface{} `yaml:"keys"`
	Config    interface{} `yaml:"config"`
}

// readYAMLFile parses the per-key YAML format: a list of single-key maps
// {featureName: {treatment, keys, config}}, grouped by feature name into
// one flag each, whitelist conditions first, an ALL_KEYS default last.
func readYAMLFile(filename string) (map[string]engine.Flag, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("localhost: open %s: %w", filename, err)
	}

	var docs []map[string]yamlStatement
	if err := yaml.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("localhost: parse %s: %w", filename, err)
	}

	type featureBuild struct {
		whitelist []engine.Condition
		allKeys   []engine.Condition
		configs   map[string]string
	}
	byFeature := map[string]*featureBuild{}
	var order []string

	for _, doc := range docs {
		for name, stmt := range doc {
			fb, ok := byFeature[name]
			if !ok {
				fb = &featureBuild{configs: map[string]string{}}
				byFeature[name] = fb
				order = append(order, name)
			}
			if stmt.Keys != nil {
				keys := toStringSlice(stmt.Keys)
				fb.whitelist = append(fb.whitelist, makeWhitelistCondition(keys, stmt.Treatment))
			} else {
				fb.allKeys = append(fb.allKeys, makeAllKeysCondition(stmt.Treatment))
			}
			if stmt.Config != nil {
				if encoded, err := json.Marshal(stmt.Config); err == nil {
					fb.configs[stmt.Treatment] = string(encoded)
				}
			}
		}
	}

	sort.Strings(order)
	out := make(map[string]engine.Flag, len(order))
	for _, name := range order {
		fb := byFeature[name]
		conditions := append(fb.whitelist, fb.allKeys...)
		out[name] = makeFlag(name, conditions, fb.configs)
	}
	return out, nil
}

func toStringSlice(v interface{}) []string {
	switch val := v.(type) {
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{val}
	default:
		return nil
	}
}

// readJSONFile parses a full splitChanges-shaped JSON document, the mode
// used when localhost mode should exercise the exact same targeting rule
// evaluation as production data.
func readJSONFile(filename string) (storage.FlagUpdate, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return storage.FlagUpdate{}, fmt.Errorf("localhost: open %s: %w", filename, err)
	}
	return fetcher.DecodeFullFlagSnapshot(raw)
}

// Sync reads filename in the requested format and applies a full
// replace-all update to store: any flag currently in storage that isn't
// present in the file is removed, matching the reference SDK's
// synchronize_splits reconciliation.
func Sync(filename string, format Format, store storage.Storage) error {
	if format == FormatJSON {
		update, err := readJSONFile(filename)
		if err != nil {
			return err
		}
		present := make(map[string]struct{}, len(update.Upserts))
		for _, f := range update.Upserts {
			present[f.Name] = struct{}{}
		}
		for _, name := range store.FlagNames() {
			if _, ok := present[name]; !ok {
				update.Removes = append(update.Removes, name)
			}
		}
		return store.ApplyFlags(update)
	}

	var fetched map[string]engine.Flag
	var err error
	if format == FormatYAML {
		fetched, err = readYAMLFile(filename)
	} else {
		fetched, err = readLegacyFile(filename)
	}
	if err != nil {
		return err
	}

	update := storage.FlagUpdate{Till: localhostChangeNumber}
	for _, name := range store.FlagNames() {
		if _, ok := fetched[name]; !ok {
			update.Removes = append(update.Removes, name)
		}
	}
	for _, flag := range fetched {
		update.Upserts = append(update.Upserts, flag)
	}
	return store.ApplyFlags(update)
}

// Format selects how the localhost source file should be parsed.
type Format int

const (
	FormatLegacy Format = iota
	FormatYAML
	FormatJSON
)

// FormatFor infers the format from a filename's extension, defaulting to
// legacy for anything unrecognized (matching the reference SDK, which
// treats non-.yaml/.yml files as legacy unless JSON mode is explicitly
// requested).
func FormatFor(filename string) Format {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".yaml"), strings.HasSuffix(lower, ".yml"):
		return FormatYAML
	case strings.HasSuffix(lower, ".json"):
		return FormatJSON
	default:
		return FormatLegacy
	}
}
