package engine

import "testing"

func evalMatcher(t *testing.T, m Matcher, ctx *MatchContext) bool {
	t.Helper()
	return m.Evaluate(ctx)
}

func TestMatcher_AllKeys(t *testing.T) {
	m := Matcher{Kind: MatcherAllKeys}
	if !evalMatcher(t, m, &MatchContext{MatchingKey: "anyone"}) {
		t.Error("ALL_KEYS should always match")
	}
}

func TestMatcher_InSegment(t *testing.T) {
	segs := fakeSegments{"beta": {"member-1": {}}}
	m := Matcher{Kind: MatcherInSegment, SegmentName: "beta"}
	ctx := &MatchContext{MatchingKey: "member-1", Segments: segs}
	if !evalMatcher(t, m, ctx) {
		t.Error("member-1 should be in segment beta")
	}
	ctx2 := &MatchContext{MatchingKey: "stranger", Segments: segs}
	if evalMatcher(t, m, ctx2) {
		t.Error("stranger should not be in segment beta")
	}
}

func TestMatcher_Whitelist(t *testing.T) {
	m := Matcher{Kind: MatcherWhitelist, Strings: []string{"a", "b"}}
	if !evalMatcher(t, m, &MatchContext{MatchingKey: "a"}) {
		t.Error("a should be whitelisted")
	}
	if evalMatcher(t, m, &MatchContext{MatchingKey: "z"}) {
		t.Error("z should not be whitelisted")
	}
}

func TestMatcher_Negate(t *testing.T) {
	m := Matcher{Kind: MatcherWhitelist, Strings: []string{"a"}, Negate: true}
	if evalMatcher(t, m, &MatchContext{MatchingKey: "a"}) {
		t.Error("negated whitelist match should return false")
	}
	if !evalMatcher(t, m, &MatchContext{MatchingKey: "z"}) {
		t.Error("negated whitelist non-match should return true")
	}
}

func TestMatcher_NumericComparisons(t *testing.T) {
	ctx := &MatchContext{Attributes: map[string]any{"age": int64(30)}}

	eq := Matcher{Kind: MatcherEqualTo, Attribute: "age", Value: 30}
	if !evalMatcher(t, eq, ctx) {
		t.Error("EQUAL_TO 30 should match age=30")
	}

	ge := Matcher{Kind: MatcherGreaterEqual, Attribute: "age", Value: 18}
	if !evalMatcher(t, ge, ctx) {
		t.Error("GREATER_THAN_OR_EQUAL_TO 18 should match age=30")
	}

	le := Matcher{Kind: MatcherLessEqual, Attribute: "age", Value: 18}
	if evalMatcher(t, le, ctx) {
		t.Error("LESS_THAN_OR_EQUAL_TO 18 should not match age=30")
	}

	between := Matcher{Kind: MatcherBetween, Attribute: "age", RangeStart: 20, RangeEnd: 40}
	if !evalMatcher(t, between, ctx) {
		t.Error("BETWEEN 20-40 should match age=30")
	}
}

func TestMatcher_NumericAttribute_FractionalFloatNeverEqual(t *testing.T) {
	ctx := &MatchContext{Attributes: map[string]any{"score": 30.5}}
	eq := Matcher{Kind: MatcherEqualTo, Attribute: "score", Value: 30}
	if evalMatcher(t, eq, ctx) {
		t.Error("a fractional float must never equal an integer bound")
	}
}

func TestMatcher_NumericAttribute_FractionalFloatComparesOrdinally(t *testing.T) {
	ctx := &MatchContext{Attributes: map[string]any{"score": 3.5}}

	ge := Matcher{Kind: MatcherGreaterEqual, Attribute: "score", Value: 3}
	if !evalMatcher(t, ge, ctx) {
		t.Error("GREATER_THAN_OR_EQUAL_TO 3 should match score=3.5")
	}

	le := Matcher{Kind: MatcherLessEqual, Attribute: "score", Value: 3}
	if evalMatcher(t, le, ctx) {
		t.Error("LESS_THAN_OR_EQUAL_TO 3 should not match score=3.5")
	}

	between := Matcher{Kind: MatcherBetween, Attribute: "score", RangeStart: 3, RangeEnd: 4}
	if !evalMatcher(t, between, ctx) {
		t.Error("BETWEEN 3-4 should match score=3.5")
	}
}

func TestMatcher_DatetimeTruncatesToMinute(t *testing.T) {
	const minuteMillis = 60_000
	base := int64(1_700_000_000_000)
	base -= base % minuteMillis
	ctx := &MatchContext{Attributes: map[string]any{"ts": base + 45_000}}
	m := Matcher{Kind: MatcherEqualTo, Attribute: "ts", DataType: DataDatetime, Value: base}
	if !evalMatcher(t, m, ctx) {
		t.Error("DATETIME matcher should truncate to the minute boundary before comparing")
	}
}

func TestMatcher_EqualToBoolean(t *testing.T) {
	ctx := &MatchContext{Attributes: map[string]any{"enabled": true}}
	m := Matcher{Kind: MatcherEqualToBoolean, Attribute: "enabled", BoolValue: true}
	if !evalMatcher(t, m, ctx) {
		t.Error("EQUAL_TO_BOOLEAN true should match enabled=true")
	}
}

func TestMatcher_StringMatchers(t *testing.T) {
	ctx := &MatchContext{Attributes: map[string]any{"email": "user@example.com"}}

	starts := Matcher{Kind: MatcherStartsWith, Attribute: "email", Strings: []string{"user@"}}
	if !evalMatcher(t, starts, ctx) {
		t.Error("STARTS_WITH user@ should match")
	}

	ends := Matcher{Kind: MatcherEndsWith, Attribute: "email", Strings: []string{"@example.com"}}
	if !evalMatcher(t, ends, ctx) {
		t.Error("ENDS_WITH @example.com should match")
	}

	contains := Matcher{Kind: MatcherContainsString, Attribute: "email", Strings: []string{"@example"}}
	if !evalMatcher(t, contains, ctx) {
		t.Error("CONTAINS_STRING @example should match")
	}

	regex := Matcher{Kind: MatcherMatchesRegex, Attribute: "email", Regex: `^user@.+\.com$`}
	if !evalMatcher(t, regex, ctx) {
		t.Error("MATCHES_STRING regex should match")
	}
}

type recordingWarner struct {
	patterns []string
}

func (w *recordingWarner) WarnUnparseableRegex(pattern string) {
	w.patterns = append(w.patterns, pattern)
}

func TestMatcher_MatchesRegex_UnparseablePatternWarnsAndNeverMatches(t *testing.T) {
	warner := &recordingWarner{}
	ctx := &MatchContext{Attributes: map[string]any{"email": "user@example.com"}, Warnings: warner}
	m := Matcher{Kind: MatcherMatchesRegex, Attribute: "email", Regex: `(unclosed`}

	if evalMatcher(t, m, ctx) {
		t.Error("an unparseable regex should never match")
	}
	if len(warner.patterns) != 1 || warner.patterns[0] != `(unclosed` {
		t.Errorf("warner.patterns = %v, want one entry for the bad pattern", warner.patterns)
	}
}

func TestMatcher_SetMatchers(t *testing.T) {
	ctx := &MatchContext{Attributes: map[string]any{"roles": []string{"admin", "editor"}}}

	anyOf := Matcher{Kind: MatcherContainsAnyOfSet, Attribute: "roles", Strings: []string{"editor", "viewer"}}
	if !evalMatcher(t, anyOf, ctx) {
		t.Error("CONTAINS_ANY_OF_SET should match on editor")
	}

	allOf := Matcher{Kind: MatcherContainsAllOfSet, Attribute: "roles", Strings: []string{"admin", "editor"}}
	if !evalMatcher(t, allOf, ctx) {
		t.Error("CONTAINS_ALL_OF_SET should match when both present")
	}

	equal := Matcher{Kind: MatcherEqualToSet, Attribute: "roles", Strings: []string{"editor", "admin"}}
	if !evalMatcher(t, equal, ctx) {
		t.Error("EQUAL_TO_SET should match regardless of order")
	}

	partOf := Matcher{Kind: MatcherPartOfSet, Attribute: "roles", Strings: []string{"admin", "editor", "viewer"}}
	if !evalMatcher(t, partOf, ctx) {
		t.Error("PART_OF_SET should match when attribute set is a subset")
	}
}

func TestMatcher_SemverComparisons(t *testing.T) {
	ctx := &MatchContext{Attributes: map[string]any{"version": "2.1.0"}}

	eq := Matcher{Kind: MatcherEqualToSemver, Attribute: "version", Semver: "2.1.0"}
	if !evalMatcher(t, eq, ctx) {
		t.Error("EQUAL_TO_SEMVER 2.1.0 should match version=2.1.0")
	}

	ge := Matcher{Kind: MatcherGreaterEqualSemver, Attribute: "version", Semver: "2.0.0"}
	if !evalMatcher(t, ge, ctx) {
		t.Error("GREATER_THAN_OR_EQUAL_TO_SEMVER 2.0.0 should match version=2.1.0")
	}

	lt := Matcher{Kind: MatcherLessThanSemver, Attribute: "version", Semver: "2.0.0"}
	if evalMatcher(t, lt, ctx) {
		t.Error("LESS_THAN_SEMVER 2.0.0 should not match version=2.1.0")
	}

	between := Matcher{Kind: MatcherBetweenSemver, Attribute: "version", From: "2.0.0", To: "3.0.0"}
	if !evalMatcher(t, between, ctx) {
		t.Error("BETWEEN_SEMVER 2.0.0-3.0.0 should match version=2.1.0")
	}

	inList := Matcher{Kind: MatcherInSemverList, Attribute: "version", Strings: []string{"1.0.0", "2.1.0"}}
	if !evalMatcher(t, inList, ctx) {
		t.Error("IN_LIST_SEMVER should match an exact list entry")
	}
}

func TestMatcher_SemverPrereleaseOrdering(t *testing.T) {
	release, err := parseSemver("1.0.0")
	if err != nil {
		t.Fatalf("parseSemver(1.0.0) error = %v", err)
	}
	prerelease, err := parseSemver("1.0.0-rc.1")
	if err != nil {
		t.Fatalf("parseSemver(1.0.0-rc.1) error = %v", err)
	}
	if prerelease.compare(release) >= 0 {
		t.Error("a pre-release version must compare lower than its associated normal version")
	}
}

func TestMatcher_UnknownKindMarksUnsupported(t *testing.T) {
	m := Matcher{Kind: MatcherKind("SOMETHING_NEW")}
	ctx := &MatchContext{MatchingKey: "u1"}
	if evalMatcher(t, m, ctx) {
		t.Error("unknown matcher kind should never match")
	}
	if !ctx.Unsupported {
		t.Error("unknown matcher kind should set ctx.Unsupported")
	}
}

func TestMatcher_InSplitTreatment_DepthExceeded(t *testing.T) {
	deps := &countingFlagEvaluator{}
	m := Matcher{Kind: MatcherInSplitTreatment, DependencyFlag: "other", DependencyTreatments: []string{"on"}}
	ctx := &MatchContext{MatchingKey: "u1", Flags: deps, Depth: MaxDependencyDepth}
	if evalMatcher(t, m, ctx) {
		t.Error("exceeding MaxDependencyDepth should never match")
	}
	if !ctx.Unsupported {
		t.Error("exceeding MaxDependencyDepth should mark ctx.Unsupported")
	}
	if deps.calls != 0 {
		t.Error("EvaluateDependency should not be called once depth is exceeded")
	}
}

type countingFlagEvaluator struct {
	calls     int
	treatment string
}

func (c *countingFlagEvaluator) EvaluateDependency(flagName, matchingKey, bucketingKey string, attrs map[string]any, depth int) (string, bool) {
	c.calls++
	return c.treatment, false
}
