package engine

import (
	"log/slog"
	"sync"
)

// FlagSource is the read view the evaluator needs from storage: look up a
// single flag by name. Kept minimal and interface-typed for the same
// reason as SegmentView — storage depends on engine, not vice versa.
type FlagSource interface {
	Get(name string) (*Flag, bool)
}

// Evaluator walks a flag's conditions against a key and attributes and
// returns the resulting treatment. It never mutates storage: every read
// goes through the FlagSource/SegmentView supplied by the caller.
type Evaluator struct {
	flags    FlagSource
	segments SegmentView
	logger   *slog.Logger

	warnedRegexMu sync.Mutex
	warnedRegex   map[string]struct{}
}

// NewEvaluator constructs an Evaluator that reads flags and segments
// through the given views. It takes no snapshot of them: each lookup sees
// storage as it is at that moment.
func NewEvaluator(flags FlagSource, segments SegmentView) *Evaluator {
	return &Evaluator{
		flags:       flags,
		segments:    segments,
		logger:      slog.Default(),
		warnedRegex: make(map[string]struct{}),
	}
}

// WithLogger sets the logger the evaluator warns unparseable regex
// patterns through. Returns the evaluator for chaining.
func (e *Evaluator) WithLogger(logger *slog.Logger) *Evaluator {
	if logger != nil {
		e.logger = logger
	}
	return e
}

// WarnUnparseableRegex logs a warning the first time pattern is seen as
// an unparseable MATCHES_STRING regex; later calls with the same pattern
// are silent, satisfying the once-per-pattern telemetry requirement.
func (e *Evaluator) WarnUnparseableRegex(pattern string) {
	e.warnedRegexMu.Lock()
	_, seen := e.warnedRegex[pattern]
	if !seen {
		e.warnedRegex[pattern] = struct{}{}
	}
	e.warnedRegexMu.Unlock()
	if !seen {
		e.logger.Warn("engine: matcher has an unparseable regex pattern, it will never match", "pattern", pattern)
	}
}

// Evaluate runs the full matching/rollout/dependency algorithm for one flag.
func (e *Evaluator) Evaluate(name string, key Key, attributes map[string]any) Result {
	return e.evaluate(name, key, attributes, 0)
}

// EvaluateBatch evaluates every named flag with the same attributes and
// key, calling Evaluate once per flag. Each flag is read from storage
// separately, so the batch is not atomic: a sync write landing mid-batch
// is seen by the flags evaluated after it.
func (e *Evaluator) EvaluateBatch(names []string, key Key, attributes map[string]any) map[string]Result {
	out := make(map[string]Result, len(names))
	for _, name := range names {
		out[name] = e.Evaluate(name, key, attributes)
	}
	return out
}

// EvaluateDependency implements engine.FlagEvaluator for the
// in-split-treatment matcher: it recurses into evaluate with an
// incremented depth counter.
func (e *Evaluator) EvaluateDependency(flagName, matchingKey, bucketingKey string, attrs map[string]any, depth int) (string, bool) {
	result := e.evaluate(flagName, Key{Matching: matchingKey, Bucketing: bucketingKey}, attrs, depth)
	unsupported := result.Label == LabelUnsupportedMatcher || result.Label == LabelSplitNotFound
	return result.Treatment, unsupported
}

func (e *Evaluator) evaluate(name string, key Key, attributes map[string]any, depth int) Result {
	flag, ok := e.flags.Get(name)
	if !ok {
		return Result{Treatment: Control, Label: LabelSplitNotFound, ChangeNumber: -1}
	}

	if flag.Killed {
		return Result{
			Treatment:     flag.DefaultTreatment,
			Label:         LabelKilled,
			ChangeNumber:  flag.ChangeNumber,
			Configuration: flag.ConfigurationFor(flag.DefaultTreatment),
		}
	}

	if flag.UnsupportedMatcher {
		return Result{
			Treatment:     flag.DefaultTreatment,
			Label:         LabelUnsupportedMatcher,
			ChangeNumber:  flag.ChangeNumber,
			Configuration: flag.ConfigurationFor(flag.DefaultTreatment),
		}
	}

	bucketingKey := key.EffectiveBucketing()

	rolloutChecked := false
	for _, cond := range flag.Conditions {
		if cond.Type == ConditionRollout && !rolloutChecked {
			rolloutChecked = true
			if flag.TrafficAllocation < 100 {
				taBucket := Bucket(HashMurmur3, bucketingKey, flag.TrafficAllocationSeed)
				if taBucket > flag.TrafficAllocation {
					return Result{
						Treatment:     flag.DefaultTreatment,
						Label:         LabelNotInSplit,
						ChangeNumber:  flag.ChangeNumber,
						Configuration: flag.ConfigurationFor(flag.DefaultTreatment),
					}
				}
			}
		}

		ctx := &MatchContext{
			MatchingKey:  key.Matching,
			BucketingKey: bucketingKey,
			Attributes:   attributes,
			Segments:     e.segments,
			Flags:        e,
			Warnings:     e,
			Depth:        depth,
		}

		if !allMatch(cond.Matchers, ctx) {
			if ctx.Unsupported {
				return Result{
					Treatment:     flag.DefaultTreatment,
					Label:         LabelUnsupportedMatcher,
					ChangeNumber:  flag.ChangeNumber,
					Configuration: flag.ConfigurationFor(flag.DefaultTreatment),
				}
			}
			continue
		}

		treatment := Split(flag.Algo, bucketingKey, flag.Seed, cond.Partitions)
		return Result{
			Treatment:     treatment,
			Label:         cond.Label,
			ChangeNumber:  flag.ChangeNumber,
			Configuration: flag.ConfigurationFor(treatment),
			Rollout:       cond.Type == ConditionRollout,
		}
	}

	return Result{
		Treatment:     flag.DefaultTreatment,
		Label:         LabelNoConditionMatched,
		ChangeNumber:  flag.ChangeNumber,
		Configuration: flag.ConfigurationFor(flag.DefaultTreatment),
	}
}

func allMatch(matchers []Matcher, ctx *MatchContext) bool {
	for _, m := range matchers {
		if !m.Evaluate(ctx) {
			return false
		}
		if ctx.Unsupported {
			return false
		}
	}
	return true
}
