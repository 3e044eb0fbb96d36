package telemetry

import (
	"fmt"

	"github.com/splitkit/splitkit-go/internal/engine"
)

// ImpressionsMode selects how aggressively impressions are deduplicated
// before being queued for reporting.
type ImpressionsMode string

const (
	ModeOptimized ImpressionsMode = "OPTIMIZED"
	ModeDebug     ImpressionsMode = "DEBUG"
	ModeNone      ImpressionsMode = "NONE"
)

const observerCacheSize = 500000

const hourMillis = int64(3600 * 1000)

func truncateHour(timestampMs int64) int64 {
	return timestampMs - (timestampMs % hourMillis)
}

// observer stamps an impression's PreviousTime field from a bounded LRU
// keyed by a hash of the impression's identity fields, so downstream
// strategies can tell whether this exact (key, feature, treatment) result
// was already seen.
type observer struct {
	cache *lruCache
}

func newObserver() *observer {
	return &observer{cache: newLRUCache(observerCacheSize)}
}

func (o *observer) testAndSet(imp engine.Impression) engine.Impression {
	key := hashImpression(imp)
	prev, ok := o.cache.TestAndSet(key, imp.Timestamp)
	imp.PreviousTime = -1
	if ok {
		imp.PreviousTime = prev
	}
	return imp
}

func hashImpression(imp engine.Impression) uint64 {
	s := fmt.Sprintf("%s:%s:%s:%s:%d", nonEmpty(imp.MatchingKey), nonEmpty(imp.FeatureName), nonEmpty(imp.Treatment), nonEmpty(imp.Label), imp.ChangeNumber)
	return uint64(uint32(engine.Hash(engine.HashMurmur3, s, 0)))
}

func nonEmpty(s string) string {
	if s == "" {
		return "UNKNOWN"
	}
	return s
}

// CounterKey identifies one hour bucket's suppressed-impression count for
// a feature, the unit OPTIMIZED mode reports via HINCRBY/telemetry.
type CounterKey struct {
	Feature   string
	TimeFrame int64
}

// Pipeline processes evaluation results into impressions ready to log,
// impressions ready to count (OPTIMIZED/NONE modes), and unique
// (key, feature) pairs for the unique-keys tracker (NONE mode).
type Pipeline struct {
	mode     ImpressionsMode
	observer *observer
	metrics  *Metrics

	counters   map[CounterKey]int64
	uniqueKeys map[string]map[string]struct{}
}

// NewPipeline constructs a Pipeline for the given mode.
func NewPipeline(mode ImpressionsMode, metrics *Metrics) *Pipeline {
	p := &Pipeline{
		mode:       mode,
		metrics:    metrics,
		counters:   make(map[CounterKey]int64),
		uniqueKeys: make(map[string]map[string]struct{}),
	}
	if mode != ModeNone {
		p.observer = newObserver()
	}
	return p
}

// Process applies the configured strategy to one impression and returns
// the impressions that should be appended to the log/report queue. Its
// side effects (counter increments, unique-key tracking) are queryable
// via Counters/UniqueKeys.
func (p *Pipeline) Process(imp engine.Impression) []engine.Impression {
	switch p.mode {
	case ModeDebug:
		return p.processDebug(imp)
	case ModeNone:
		return p.processNone(imp)
	default:
		return p.processOptimized(imp)
	}
}

func (p *Pipeline) processDebug(imp engine.Impression) []engine.Impression {
	observed := p.observer.testAndSet(imp)
	if p.metrics != nil {
		p.metrics.ImpressionsQueued.Inc()
	}
	return []engine.Impression{observed}
}

func (p *Pipeline) processOptimized(imp engine.Impression) []engine.Impression {
	observed := p.observer.testAndSet(imp)
	if observed.PreviousTime >= 0 {
		p.bumpCounter(observed)
	}

	thisHour := truncateHour(observed.Timestamp)
	if observed.PreviousTime >= 0 && observed.PreviousTime >= thisHour {
		if p.metrics != nil {
			p.metrics.ImpressionsDeduped.Inc()
		}
		return nil
	}
	if p.metrics != nil {
		p.metrics.ImpressionsQueued.Inc()
	}
	return []engine.Impression{observed}
}

func (p *Pipeline) processNone(imp engine.Impression) []engine.Impression {
	p.bumpCounter(imp)
	p.trackUniqueKey(imp.MatchingKey, imp.FeatureName)
	return nil
}

func (p *Pipeline) bumpCounter(imp engine.Impression) {
	key := CounterKey{Feature: imp.FeatureName, TimeFrame: truncateHour(imp.Timestamp)}
	p.counters[key]++
}

func (p *Pipeline) trackUniqueKey(matchingKey, feature string) {
	set, ok := p.uniqueKeys[feature]
	if !ok {
		set = make(map[string]struct{})
		p.uniqueKeys[feature] = set
	}
	set[matchingKey] = struct{}{}
}

// DrainCounters returns and clears the accumulated per-feature hour-bucket
// suppressed-impression counts, for periodic flush by the reporting loop.
func (p *Pipeline) DrainCounters() map[CounterKey]int64 {
	out := p.counters
	p.counters = make(map[CounterKey]int64)
	return out
}

// ImpressionQueue buffers impressions accepted by the pipeline until the
// reporting loop drains and posts them, dropping the oldest entry on
// overflow rather than blocking the evaluation hot path.
type ImpressionQueue struct {
	capacity int
	items    []engine.Impression
	metrics  *Metrics
	listener func(engine.Impression)
}

// NewImpressionQueue constructs a queue with the given capacity and an
// optional listener invoked once per accepted impression.
func NewImpressionQueue(capacity int, metrics *Metrics, listener func(engine.Impression)) *ImpressionQueue {
	return &ImpressionQueue{capacity: capacity, metrics: metrics, listener: listener}
}

// Push appends an impression, dropping the oldest queued one if the queue
// is already at capacity. A panic in the caller-supplied listener is
// recovered and counted rather than propagated.
func (q *ImpressionQueue) Push(imp engine.Impression) {
	q.notifyListener(imp)
	if len(q.items) >= q.capacity {
		q.items = q.items[1:]
		if q.metrics != nil {
			q.metrics.ImpressionsDropped.Inc()
		}
	}
	q.items = append(q.items, imp)
}

// Drain returns and clears the buffered impressions.
func (q *ImpressionQueue) Drain() []engine.Impression {
	out := q.items
	q.items = nil
	return out
}

func (q *ImpressionQueue) notifyListener(imp engine.Impression) {
	if q.listener == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil && q.metrics != nil {
			q.metrics.ImpressionListenerPanics.Inc()
		}
	}()
	q.listener(imp)
}

// DrainUniqueKeys returns and clears the accumulated per-feature unique
// matching keys.
func (p *Pipeline) DrainUniqueKeys() map[string][]string {
	out := make(map[string][]string, len(p.uniqueKeys))
	for feature, set := range p.uniqueKeys {
		keys := make([]string, 0, len(set))
		for k := range set {
			keys = append(keys, k)
		}
		out[feature] = keys
	}
	p.uniqueKeys = make(map[string]map[string]struct{})
	return out
}
