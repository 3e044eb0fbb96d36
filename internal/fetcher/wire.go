package fetcher

import (
	"encoding/json"
	"fmt"

	"github.com/splitkit/splitkit-go/internal/engine"
	"github.com/splitkit/splitkit-go/internal/storage"
)

type wirePartition struct {
	Treatment string `json:"treatment"`
	Size      int    `json:"size"`
}

type wireMatcher struct {
	Negate            bool             `json:"negate"`
	KeySelector       *wireKeySelector `json:"keySelector"`
	MatcherType       string           `json:"matcherType"`
	Whitelist         *wireWhitelist   `json:"whitelistMatcherData"`
	Unary             *wireUnary       `json:"unaryNumericMatcherData"`
	Between           *wireBetween     `json:"betweenMatcherData"`
	DependencyMatcher *wireDependency  `json:"dependencyMatcherData"`
	Segment           *wireSegmentRef  `json:"userDefinedSegmentMatcherData"`
	Boolean           *bool            `json:"booleanMatcherData"`
	StringValue       *string          `json:"stringMatcherData"`
	BetweenSemver     *wireBetweenSem  `json:"betweenStringMatcherData"`
}

type wireKeySelector struct {
	Attribute *string `json:"attribute"`
}

type wireWhitelist struct {
	Whitelist []string `json:"whitelist"`
}

type wireSegmentRef struct {
	SegmentName string `json:"segmentName"`
}

type wireUnary struct {
	DataType string `json:"dataType"`
	Value    int64  `json:"value"`
}

type wireBetween struct {
	DataType string `json:"dataType"`
	Start    int64  `json:"start"`
	End      int64  `json:"end"`
}

type wireBetweenSem struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type wireDependency struct {
	Split       string   `json:"split"`
	Treatments  []string `json:"treatments"`
}

type wireMatcherGroup struct {
	Combiner string        `json:"combiner"`
	Matchers []wireMatcher `json:"matchers"`
}

type wireCondition struct {
	ConditionType string           `json:"conditionType"`
	MatcherGroup  wireMatcherGroup `json:"matcherGroup"`
	Partitions    []wirePartition  `json:"partitions"`
	Label         string           `json:"label"`
}

type wireFlag struct {
	Name                  string            `json:"name"`
	Status                string            `json:"status"`
	Killed                bool              `json:"killed"`
	DefaultTreatment      string            `json:"defaultTreatment"`
	Seed                  int64             `json:"seed"`
	ChangeNumber          int64             `json:"changeNumber"`
	Algo                  int               `json:"algo"`
	TrafficAllocation     int               `json:"trafficAllocation"`
	TrafficAllocationSeed int64             `json:"trafficAllocationSeed"`
	Configurations        map[string]string `json:"configurations"`
	Sets                  []string          `json:"sets"`
	Conditions            []wireCondition   `json:"conditions"`
}

type splitChangesResponse struct {
	Splits []wireFlag `json:"splits"`
	Since  int64      `json:"since"`
	Till   int64      `json:"till"`
}

type segmentChangesResponse struct {
	Name    string   `json:"name"`
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
	Since   int64    `json:"since"`
	Till    int64    `json:"till"`
}

// DecodeFullFlagSnapshot decodes a whole splitChanges-shaped JSON document
// (a {since, till, splits} object) into a flag-update, for localhost
// JSON-mode and for tests that seed storage directly from a fixture file.
func DecodeFullFlagSnapshot(body []byte) (storage.FlagUpdate, error) {
	return decodeSplitChanges(body)
}

// decodeSplitChanges converts one page of the splitChanges wire response
// into a storage.FlagUpdate. Flags whose status is not ACTIVE are queued
// for removal instead of upsert, matching the reference SDK's handling
// (an archived split is functionally a delete).
func decodeSplitChanges(body []byte) (storage.FlagUpdate, error) {
	var resp splitChangesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return storage.FlagUpdate{}, fmt.Errorf("fetcher: decode splitChanges: %w", err)
	}

	update := storage.FlagUpdate{Till: resp.Till}
	for _, wf := range resp.Splits {
		if wf.Status != string(engine.StatusActive) {
			update.Removes = append(update.Removes, wf.Name)
			continue
		}
		flag, err := decodeFlag(wf)
		if err != nil {
			return storage.FlagUpdate{}, err
		}
		update.Upserts = append(update.Upserts, flag)
	}
	return update, nil
}

func decodeFlag(wf wireFlag) (engine.Flag, error) {
	algo := engine.HashLegacy
	if wf.Algo == 2 {
		algo = engine.HashMurmur3
	}

	allocation := wf.TrafficAllocation
	if allocation <= 0 {
		allocation = 100
	}

	flag := engine.Flag{
		Name:                  wf.Name,
		Status:                engine.Status(wf.Status),
		Killed:                wf.Killed,
		DefaultTreatment:      wf.DefaultTreatment,
		TrafficAllocation:     allocation,
		TrafficAllocationSeed: wf.TrafficAllocationSeed,
		Algo:                  algo,
		Seed:                  wf.Seed,
		ChangeNumber:          wf.ChangeNumber,
		Sets:                  wf.Sets,
		Configurations:        wf.Configurations,
	}

	for _, wc := range wf.Conditions {
		cond := engine.Condition{
			Label: wc.Label,
			Type:  conditionType(wc.ConditionType),
		}
		for _, wp := range wc.Partitions {
			cond.Partitions = append(cond.Partitions, engine.Partition{Treatment: wp.Treatment, Size: wp.Size})
		}
		for _, wm := range wc.MatcherGroup.Matchers {
			m, err := decodeMatcher(wm)
			if err != nil {
				return engine.Flag{}, err
			}
			cond.Matchers = append(cond.Matchers, m)
		}
		flag.Conditions = append(flag.Conditions, cond)
	}
	flag.UnsupportedMatcher = flag.HasUnsupportedMatcher()
	return flag, nil
}

func conditionType(s string) engine.ConditionType {
	if s == "WHITELIST" {
		return engine.ConditionWhitelist
	}
	return engine.ConditionRollout
}

func decodeMatcher(wm wireMatcher) (engine.Matcher, error) {
	m := engine.Matcher{
		Kind:   engine.MatcherKind(wm.MatcherType),
		Negate: wm.Negate,
	}
	if wm.KeySelector != nil && wm.KeySelector.Attribute != nil {
		m.Attribute = *wm.KeySelector.Attribute
	}
	if wm.Whitelist != nil {
		m.Strings = wm.Whitelist.Whitelist
	}
	if wm.Segment != nil {
		m.SegmentName = wm.Segment.SegmentName
	}
	if wm.Unary != nil {
		m.DataType = engine.DataType(wm.Unary.DataType)
		m.Value = wm.Unary.Value
	}
	if wm.Between != nil {
		m.DataType = engine.DataType(wm.Between.DataType)
		m.RangeStart = wm.Between.Start
		m.RangeEnd = wm.Between.End
	}
	if wm.Boolean != nil {
		m.BoolValue = *wm.Boolean
	}
	if wm.StringValue != nil {
		switch m.Kind {
		case engine.MatcherMatchesRegex:
			m.Regex = *wm.StringValue
		case engine.MatcherEqualToSemver, engine.MatcherGreaterEqualSemver, engine.MatcherLessThanSemver:
			m.Semver = *wm.StringValue
		default:
			m.Strings = []string{*wm.StringValue}
		}
	}
	if wm.BetweenSemver != nil {
		m.From = wm.BetweenSemver.Start
		m.To = wm.BetweenSemver.End
	}
	if wm.DependencyMatcher != nil {
		m.DependencyFlag = wm.DependencyMatcher.Split
		m.DependencyTreatments = wm.DependencyMatcher.Treatments
	}
	return m, nil
}
