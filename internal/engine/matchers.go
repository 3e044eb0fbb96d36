package engine

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MatcherKind is the tag of a polymorphic matcher, dispatched at
// evaluation time. Matchers are data, not code — the same shape a
// definition arrives over the wire in, so a flag definition remains
// serializable end to end.
type MatcherKind string

const (
	MatcherAllKeys          MatcherKind = "ALL_KEYS"
	MatcherInSegment        MatcherKind = "IN_SEGMENT"
	MatcherInLargeSegment   MatcherKind = "IN_LARGE_SEGMENT"
	MatcherWhitelist        MatcherKind = "WHITELIST"
	MatcherEqualTo          MatcherKind = "EQUAL_TO"
	MatcherGreaterEqual     MatcherKind = "GREATER_THAN_OR_EQUAL_TO"
	MatcherLessEqual        MatcherKind = "LESS_THAN_OR_EQUAL_TO"
	MatcherBetween          MatcherKind = "BETWEEN"
	MatcherEqualToBoolean   MatcherKind = "EQUAL_TO_BOOLEAN"
	MatcherStartsWith       MatcherKind = "STARTS_WITH"
	MatcherEndsWith         MatcherKind = "ENDS_WITH"
	MatcherContainsString   MatcherKind = "CONTAINS_STRING"
	MatcherContainsAnyOfSet MatcherKind = "CONTAINS_ANY_OF_SET"
	MatcherContainsAllOfSet MatcherKind = "CONTAINS_ALL_OF_SET"
	MatcherEqualToSet       MatcherKind = "EQUAL_TO_SET"
	MatcherPartOfSet        MatcherKind = "PART_OF_SET"
	MatcherMatchesRegex     MatcherKind = "MATCHES_STRING"
	MatcherEqualToSemver    MatcherKind = "EQUAL_TO_SEMVER"
	MatcherGreaterEqualSemver MatcherKind = "GREATER_THAN_OR_EQUAL_TO_SEMVER"
	MatcherLessThanSemver   MatcherKind = "LESS_THAN_SEMVER"
	MatcherBetweenSemver    MatcherKind = "BETWEEN_SEMVER"
	MatcherInSemverList     MatcherKind = "IN_LIST_SEMVER"
	MatcherInSplitTreatment MatcherKind = "IN_SPLIT_TREATMENT"
)

// DataType distinguishes the two flavors of numeric matcher: plain
// numbers and dates expressed as epoch milliseconds.
type DataType string

const (
	DataNumber   DataType = "NUMBER"
	DataDatetime DataType = "DATETIME"
)

// Matcher is a single predicate over (key, attributes). Fields not used
// by a given Kind are simply left zero.
type Matcher struct {
	Kind      MatcherKind
	Negate    bool
	Attribute string // "" reads the matching key itself

	Strings []string // whitelist / starts-ends-contains(any|all) / equal-to-set / part-of-set / in-semver-list
	Regex   string
	Semver  string // equal-to / greater-equal / less-than semver
	From    string // between-semver lower bound
	To      string // between-semver upper bound

	DataType   DataType
	Value      int64 // equal-to / greater-equal / less-equal
	RangeStart int64 // between
	RangeEnd   int64

	SegmentName string
	BoolValue   bool

	DependencyFlag       string
	DependencyTreatments []string
}

// SegmentView is the read-only slice of storage the matcher package needs:
// segment membership. Kept minimal and interface-typed so the engine
// package never imports the storage package (storage depends downward on
// engine's types, not the other way around).
type SegmentView interface {
	Contains(name, key string) bool
}

// FlagEvaluator lets the in-split-treatment (dependency) matcher recurse
// into evaluating another flag against the same key and attributes.
// unsupported reports whether recursion bottomed out (depth exceeded or
// flag missing), which the caller treats the same as a matcher miss.
type FlagEvaluator interface {
	EvaluateDependency(flagName, matchingKey, bucketingKey string, attrs map[string]any, depth int) (treatment string, unsupported bool)
}

// MaxDependencyDepth bounds in-split-treatment recursion.
const MaxDependencyDepth = 50

// RegexWarner receives a one-time notice when a MATCHES_STRING matcher's
// pattern fails to compile, so the failure is visible without spamming a
// warning on every evaluation of a hot flag.
type RegexWarner interface {
	WarnUnparseableRegex(pattern string)
}

// MatchContext carries everything a matcher needs to evaluate itself.
type MatchContext struct {
	MatchingKey  string
	BucketingKey string
	Attributes   map[string]any
	Segments     SegmentView
	Flags        FlagEvaluator
	Warnings     RegexWarner
	Depth        int
	// Unsupported is set to true by evaluate when Kind is not recognized.
	Unsupported bool
}

func (m Matcher) attributeValue(ctx *MatchContext) (any, bool) {
	if m.Attribute == "" {
		return ctx.MatchingKey, true
	}
	if ctx.Attributes == nil {
		return nil, false
	}
	v, ok := ctx.Attributes[m.Attribute]
	return v, ok
}

// Evaluate dispatches to the matcher's predicate and applies negation.
func (m Matcher) Evaluate(ctx *MatchContext) bool {
	result := m.evaluateRaw(ctx)
	if m.Negate {
		return !result
	}
	return result
}

func (m Matcher) evaluateRaw(ctx *MatchContext) bool {
	switch m.Kind {
	case MatcherAllKeys:
		return true

	case MatcherInSegment:
		if ctx.Segments == nil {
			return false
		}
		return ctx.Segments.Contains(m.SegmentName, ctx.MatchingKey)

	case MatcherInLargeSegment:
		// Large segments share the same membership cache as regular
		// segments in this SDK's normative in-memory storage.
		if ctx.Segments == nil {
			return false
		}
		return ctx.Segments.Contains(m.SegmentName, ctx.MatchingKey)

	case MatcherWhitelist:
		return m.matchesWhitelist(ctx.MatchingKey)

	case MatcherEqualTo:
		num, ok := m.numericAttribute(ctx)
		if !ok {
			return false
		}
		return num == float64(m.Value)

	case MatcherGreaterEqual:
		num, ok := m.numericAttribute(ctx)
		if !ok {
			return false
		}
		return num >= float64(m.Value)

	case MatcherLessEqual:
		num, ok := m.numericAttribute(ctx)
		if !ok {
			return false
		}
		return num <= float64(m.Value)

	case MatcherBetween:
		num, ok := m.numericAttribute(ctx)
		if !ok {
			return false
		}
		return num >= float64(m.RangeStart) && num <= float64(m.RangeEnd)

	case MatcherEqualToBoolean:
		v, ok := m.attributeValue(ctx)
		if !ok {
			return false
		}
		b, ok := v.(bool)
		if !ok {
			return false
		}
		return b == m.BoolValue

	case MatcherStartsWith:
		s, ok := m.stringAttribute(ctx)
		if !ok {
			return false
		}
		return anyPrefix(s, m.Strings)

	case MatcherEndsWith:
		s, ok := m.stringAttribute(ctx)
		if !ok {
			return false
		}
		return anySuffix(s, m.Strings)

	case MatcherContainsString:
		s, ok := m.stringAttribute(ctx)
		if !ok {
			return false
		}
		return anyContains(s, m.Strings)

	case MatcherContainsAnyOfSet:
		set, ok := m.stringSetAttribute(ctx)
		if !ok {
			return false
		}
		return intersects(set, m.Strings)

	case MatcherContainsAllOfSet:
		set, ok := m.stringSetAttribute(ctx)
		if !ok {
			return false
		}
		return containsAll(set, m.Strings)

	case MatcherEqualToSet:
		set, ok := m.stringSetAttribute(ctx)
		if !ok {
			return false
		}
		return setsEqual(set, m.Strings)

	case MatcherPartOfSet:
		set, ok := m.stringSetAttribute(ctx)
		if !ok {
			return false
		}
		return isSubsetOf(set, m.Strings)

	case MatcherMatchesRegex:
		s, ok := m.stringAttribute(ctx)
		if !ok {
			return false
		}
		re, err := regexp.Compile(m.Regex)
		if err != nil {
			if ctx.Warnings != nil {
				ctx.Warnings.WarnUnparseableRegex(m.Regex)
			}
			return false
		}
		return re.MatchString(s)

	case MatcherEqualToSemver:
		s, ok := m.stringAttribute(ctx)
		if !ok {
			return false
		}
		a, err1 := parseSemver(s)
		b, err2 := parseSemver(m.Semver)
		if err1 != nil || err2 != nil {
			return false
		}
		return a.compare(b) == 0

	case MatcherGreaterEqualSemver:
		s, ok := m.stringAttribute(ctx)
		if !ok {
			return false
		}
		a, err1 := parseSemver(s)
		b, err2 := parseSemver(m.Semver)
		if err1 != nil || err2 != nil {
			return false
		}
		return a.compare(b) >= 0

	case MatcherLessThanSemver:
		s, ok := m.stringAttribute(ctx)
		if !ok {
			return false
		}
		a, err1 := parseSemver(s)
		b, err2 := parseSemver(m.Semver)
		if err1 != nil || err2 != nil {
			return false
		}
		return a.compare(b) < 0

	case MatcherBetweenSemver:
		s, ok := m.stringAttribute(ctx)
		if !ok {
			return false
		}
		v, err1 := parseSemver(s)
		lo, err2 := parseSemver(m.From)
		hi, err3 := parseSemver(m.To)
		if err1 != nil || err2 != nil || err3 != nil {
			return false
		}
		return v.compare(lo) >= 0 && v.compare(hi) <= 0

	case MatcherInSemverList:
		s, ok := m.stringAttribute(ctx)
		if !ok {
			return false
		}
		v, err := parseSemver(s)
		if err != nil {
			return false
		}
		for _, candidate := range m.Strings {
			c, err := parseSemver(candidate)
			if err == nil && v.compare(c) == 0 {
				return true
			}
		}
		return false

	case MatcherInSplitTreatment:
		if ctx.Flags == nil {
			return false
		}
		if ctx.Depth+1 > MaxDependencyDepth {
			ctx.Unsupported = true
			return false
		}
		treatment, unsupported := ctx.Flags.EvaluateDependency(m.DependencyFlag, ctx.MatchingKey, ctx.BucketingKey, ctx.Attributes, ctx.Depth+1)
		if unsupported {
			return false
		}
		for _, accepted := range m.DependencyTreatments {
			if accepted == treatment {
				return true
			}
		}
		return false

	default:
		ctx.Unsupported = true
		return false
	}
}

func (m Matcher) matchesWhitelist(key string) bool {
	for _, w := range m.Strings {
		if w == key {
			return true
		}
	}
	return false
}

func (m Matcher) stringAttribute(ctx *MatchContext) (string, bool) {
	v, ok := m.attributeValue(ctx)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// numericAttribute coerces an attribute to a float64 the way the backend
// does: integers and floats compare on value, including fractional floats
// against >=, <= and BETWEEN bounds (EQUAL_TO simply never matches a
// fractional value against an integer bound, since they aren't equal).
// DATETIME matchers additionally truncate to minute boundaries before
// comparison.
func (m Matcher) numericAttribute(ctx *MatchContext) (float64, bool) {
	v, ok := m.attributeValue(ctx)
	if !ok {
		return 0, false
	}

	var num float64
	switch n := v.(type) {
	case int:
		num = float64(n)
	case int32:
		num = float64(n)
	case int64:
		num = float64(n)
	case float32:
		num = float64(n)
	case float64:
		num = n
	case time.Time:
		num = float64(n.UnixMilli())
	default:
		return 0, false
	}
	if math.IsNaN(num) || math.IsInf(num, 0) {
		return 0, false
	}

	if m.DataType == DataDatetime {
		num = float64(truncateToMinute(int64(num)))
	}
	return num, true
}

func truncateToMinute(millis int64) int64 {
	const minuteMillis = 60_000
	return millis - (millis % minuteMillis)
}

func anyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func anySuffix(s string, suffixes []string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}

func anyContains(s string, substrs []string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// stringSetAttribute coerces an attribute into a set of strings: either a
// []string / []any of strings already, or a single string (yielding a
// one-element set).
func (m Matcher) stringSetAttribute(ctx *MatchContext) (map[string]struct{}, bool) {
	v, ok := m.attributeValue(ctx)
	if !ok {
		return nil, false
	}
	set := make(map[string]struct{})
	switch vv := v.(type) {
	case []string:
		for _, s := range vv {
			set[s] = struct{}{}
		}
	case []any:
		for _, e := range vv {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			set[s] = struct{}{}
		}
	case string:
		set[vv] = struct{}{}
	default:
		return nil, false
	}
	return set, true
}

func intersects(set map[string]struct{}, candidates []string) bool {
	for _, c := range candidates {
		if _, ok := set[c]; ok {
			return true
		}
	}
	return false
}

func containsAll(set map[string]struct{}, candidates []string) bool {
	for _, c := range candidates {
		if _, ok := set[c]; !ok {
			return false
		}
	}
	return true
}

func setsEqual(set map[string]struct{}, candidates []string) bool {
	if len(set) != len(candidates) {
		return false
	}
	return containsAll(set, candidates)
}

func isSubsetOf(set map[string]struct{}, superset []string) bool {
	super := make(map[string]struct{}, len(superset))
	for _, s := range superset {
		super[s] = struct{}{}
	}
	for k := range set {
		if _, ok := super[k]; !ok {
			return false
		}
	}
	return true
}

// semver is a parsed MAJOR.MINOR.PATCH[-pre][+build] value, ordered per
// semver.org with build metadata ignored.
type semver struct {
	major, minor, patch int64
	pre                 []string
	hasPre              bool
}

func parseSemver(s string) (semver, error) {
	if idx := strings.IndexByte(s, '+'); idx >= 0 {
		s = s[:idx]
	}

	var pre string
	hasPre := false
	if idx := strings.IndexByte(s, '-'); idx >= 0 {
		pre = s[idx+1:]
		s = s[:idx]
		hasPre = true
	}

	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return semver{}, strconv.ErrSyntax
	}
	nums := make([]int64, 3)
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil || n < 0 {
			return semver{}, strconv.ErrSyntax
		}
		nums[i] = n
	}

	sv := semver{major: nums[0], minor: nums[1], patch: nums[2], hasPre: hasPre}
	if hasPre {
		sv.pre = strings.Split(pre, ".")
	}
	return sv, nil
}

func (s semver) compare(o semver) int {
	if c := cmpInt(s.major, o.major); c != 0 {
		return c
	}
	if c := cmpInt(s.minor, o.minor); c != 0 {
		return c
	}
	if c := cmpInt(s.patch, o.patch); c != 0 {
		return c
	}
	// A pre-release version has lower precedence than the associated
	// normal version.
	if s.hasPre && !o.hasPre {
		return -1
	}
	if !s.hasPre && o.hasPre {
		return 1
	}
	if !s.hasPre && !o.hasPre {
		return 0
	}
	return comparePreRelease(s.pre, o.pre)
}

func comparePreRelease(a, b []string) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] == b[i] {
			continue
		}
		an, aErr := strconv.ParseInt(a[i], 10, 64)
		bn, bErr := strconv.ParseInt(b[i], 10, 64)
		switch {
		case aErr == nil && bErr == nil:
			return cmpInt(an, bn)
		case aErr == nil:
			return -1 // numeric identifiers have lower precedence than alphanumeric
		case bErr == nil:
			return 1
		default:
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return cmpInt(int64(len(a)), int64(len(b)))
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
