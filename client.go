package splitkit

import (
	"time"

	"github.com/splitkit/splitkit-go/internal/engine"
)

// Client evaluates flags and tracks events against one Factory's
// storage snapshot. It has no state of its own; every method reads
// straight through to the owning factory.
type Client struct {
	factory *Factory
}

func (c *Client) degraded() (engine.Result, bool) {
	switch {
	case c.factory.isDestroyed():
		return engine.Result{Treatment: engine.Control, Label: engine.LabelSDKDestroyed}, true
	case !c.factory.isReady():
		return engine.Result{Treatment: engine.Control, Label: engine.LabelSDKNotReady}, true
	default:
		return engine.Result{}, false
	}
}

func (c *Client) key(matchingKey, bucketingKey string) engine.Key {
	return engine.Key{Matching: matchingKey, Bucketing: bucketingKey}
}

// maxKeyLength mirrors the reference SDK's input validator: a matching or
// bucketing key longer than this is rejected rather than sent upstream.
const maxKeyLength = 250

// validKey reports whether key is non-empty and within maxKeyLength, the
// same rule the reference SDK's input validator applies before ever
// building an evaluation context from it.
func validKey(key string) bool {
	return key != "" && len(key) <= maxKeyLength
}

// GetTreatment evaluates flagName for key and returns the winning
// treatment, or "control" if the flag doesn't exist, the SDK isn't ready,
// or has been destroyed.
func (c *Client) GetTreatment(key, flagName string, attributes map[string]any) string {
	treatment, _ := c.GetTreatmentWithConfig(key, flagName, attributes)
	return treatment
}

// GetTreatmentWithConfig behaves like GetTreatment but also returns the
// treatment's associated configuration JSON, or "" if none is set.
func (c *Client) GetTreatmentWithConfig(key, flagName string, attributes map[string]any) (string, string) {
	start := time.Now()
	if res, degraded := c.degraded(); degraded {
		return res.Treatment, ""
	}
	if !validKey(key) || flagName == "" {
		c.factory.logger.Warn("splitkit: getTreatment called with an invalid key or flag name, returning control", "key", key, "flagName", flagName)
		c.factory.metrics.RecordEvaluation("getTreatment", engine.LabelException, time.Since(start))
		return engine.Control, ""
	}
	result := c.factory.evaluator.Evaluate(flagName, c.key(key, ""), attributes)
	c.factory.metrics.RecordEvaluation("getTreatment", result.Label, time.Since(start))
	if result.Label != engine.LabelSplitNotFound {
		c.emitImpression(flagName, key, "", result)
	}
	return result.Treatment, result.Configuration
}

// GetTreatments evaluates every named flag for key in one pass and
// returns a map from flag name to treatment.
func (c *Client) GetTreatments(key string, flagNames []string, attributes map[string]any) map[string]string {
	full := c.GetTreatmentsWithConfig(key, flagNames, attributes)
	out := make(map[string]string, len(full))
	for name, tc := range full {
		out[name] = tc.Treatment
	}
	return out
}

// TreatmentConfig pairs a treatment with its optional configuration.
type TreatmentConfig struct {
	Treatment     string
	Configuration string
}

// GetTreatmentsWithConfig is the batch form of GetTreatmentWithConfig.
func (c *Client) GetTreatmentsWithConfig(key string, flagNames []string, attributes map[string]any) map[string]TreatmentConfig {
	start := time.Now()
	out := make(map[string]TreatmentConfig, len(flagNames))
	if res, degraded := c.degraded(); degraded {
		for _, name := range flagNames {
			out[name] = TreatmentConfig{Treatment: res.Treatment}
		}
		return out
	}
	if !validKey(key) {
		c.factory.logger.Warn("splitkit: getTreatments called with an invalid key, returning control", "key", key)
		for _, name := range flagNames {
			c.factory.metrics.RecordEvaluation("getTreatments", engine.LabelException, time.Since(start))
			out[name] = TreatmentConfig{Treatment: engine.Control}
		}
		return out
	}

	var names []string
	for _, name := range flagNames {
		if name == "" {
			c.factory.logger.Warn("splitkit: getTreatments skipped an empty flag name")
			continue
		}
		names = append(names, name)
	}

	results := c.factory.evaluator.EvaluateBatch(names, c.key(key, ""), attributes)
	for name, result := range results {
		c.factory.metrics.RecordEvaluation("getTreatments", result.Label, time.Since(start))
		if result.Label != engine.LabelSplitNotFound {
			c.emitImpression(name, key, "", result)
		}
		out[name] = TreatmentConfig{Treatment: result.Treatment, Configuration: result.Configuration}
	}
	return out
}

// GetTreatmentsByFlagSet evaluates every flag tagged with setName.
func (c *Client) GetTreatmentsByFlagSet(key, setName string, attributes map[string]any) map[string]string {
	return c.GetTreatments(key, c.factory.store.FlagsInSet(setName), attributes)
}

// GetTreatmentsByFlagSets evaluates the union of flags tagged with any of
// setNames.
func (c *Client) GetTreatmentsByFlagSets(key string, setNames []string, attributes map[string]any) map[string]string {
	seen := make(map[string]struct{})
	var names []string
	for _, set := range setNames {
		for _, n := range c.factory.store.FlagsInSet(set) {
			if _, ok := seen[n]; !ok {
				seen[n] = struct{}{}
				names = append(names, n)
			}
		}
	}
	return c.GetTreatments(key, names, attributes)
}

// emitImpression builds and queues an impression for one evaluation
// outcome, running it through the configured impression pipeline first.
// Not-ready/destroyed evaluations never reach here.
func (c *Client) emitImpression(flagName, matchingKey, bucketingKey string, result engine.Result) {
	if c.factory.impQueue == nil {
		return
	}
	imp := engine.Impression{
		FeatureName:  flagName,
		MatchingKey:  matchingKey,
		BucketingKey: bucketingKey,
		Treatment:    result.Treatment,
		Label:        result.Label,
		ChangeNumber: result.ChangeNumber,
		Timestamp:    time.Now().UnixMilli(),
		PreviousTime: -1,
	}
	var queued []engine.Impression
	if c.factory.impPipe != nil {
		queued = c.factory.impPipe.Process(imp)
	} else {
		queued = []engine.Impression{imp}
	}
	for _, q := range queued {
		c.factory.impQueue.Push(q)
	}
}

// Track records an application event for later reporting. It returns
// false without error if the event was dropped because the queue was
// full, and a non-nil error if the event itself failed validation.
func (c *Client) Track(key, trafficType, eventType string, value *float64, properties map[string]any) (bool, error) {
	if c.factory.isDestroyed() {
		return false, ErrDestroyed
	}
	ev := engine.Event{
		Key:         key,
		TrafficType: trafficType,
		EventType:   eventType,
		Value:       value,
		Properties:  properties,
		Timestamp:   time.Now().UnixMilli(),
	}
	if c.factory.eventQ == nil {
		return false, nil
	}
	return c.factory.eventQ.Push(ev)
}
