package splitkit

import (
	"os"
	"path/filepath"
	"time"

	"github.com/splitkit/splitkit-go/internal/config"
	"github.com/splitkit/splitkit-go/internal/engine"
)

// ImpressionsMode selects how aggressively impressions are deduplicated
// before being queued for reporting.
type ImpressionsMode = config.ImpressionsMode

const (
	ImpressionsOptimized = config.ImpressionsOptimized
	ImpressionsDebug     = config.ImpressionsDebug
	ImpressionsNone      = config.ImpressionsNone
)

// settings accumulates everything an Option can configure, including the
// impression listener hook, which lives outside internal/config because
// it carries an engine type that package intentionally doesn't import.
type settings struct {
	configOpts []config.Option
	listener   func(engine.Impression)
}

// Option configures a Factory at construction time.
type Option func(*settings)

func (s *settings) apply(opts []Option) {
	for _, o := range opts {
		o(s)
	}
}

func configOption(o config.Option) Option {
	return func(s *settings) { s.configOpts = append(s.configOpts, o) }
}

// WithStreamingEnabled toggles the SSE streaming subsystem. Disabled
// deployments poll exclusively.
func WithStreamingEnabled(enabled bool) Option { return configOption(config.WithStreamingEnabled(enabled)) }

// WithImpressionsMode selects DEBUG, OPTIMIZED, or NONE impression
// handling.
func WithImpressionsMode(mode ImpressionsMode) Option {
	return configOption(config.WithImpressionsMode(mode))
}

// WithFeaturesRefreshRate overrides the flag polling interval.
func WithFeaturesRefreshRate(d time.Duration) Option {
	return configOption(config.WithFeaturesRefreshRate(d))
}

// WithSegmentsRefreshRate overrides the segment polling interval.
func WithSegmentsRefreshRate(d time.Duration) Option {
	return configOption(config.WithSegmentsRefreshRate(d))
}

// WithEventsPushRate overrides how often queued events are flushed.
func WithEventsPushRate(d time.Duration) Option {
	return configOption(config.WithEventsPushRate(d))
}

// WithImpressionsRefreshRate overrides how often queued impressions are
// flushed.
func WithImpressionsRefreshRate(d time.Duration) Option {
	return configOption(config.WithImpressionsRefreshRate(d))
}

// WithConnectTimeout overrides the HTTP client's request timeout, which
// covers connecting and reading the response.
func WithConnectTimeout(d time.Duration) Option {
	return configOption(config.WithConnectTimeout(d))
}

// WithReadTimeout records a response-read timeout in the configuration.
// No HTTP client reads this value; responses are bounded only by the
// WithConnectTimeout request timeout.
func WithReadTimeout(d time.Duration) Option {
	return configOption(config.WithReadTimeout(d))
}

// WithReadyTimeout overrides BlockUntilReady's default wait budget when
// called with a zero duration.
func WithReadyTimeout(d time.Duration) Option {
	return configOption(config.WithReadyTimeout(d))
}

// WithFlagSets restricts synchronization to the named flag-set tags.
func WithFlagSets(sets ...string) Option {
	return configOption(config.WithFlagSets(sets...))
}

// WithQueueSizes overrides the impression and event queue capacities.
func WithQueueSizes(impressions, events int) Option {
	return configOption(config.WithQueueSizes(impressions, events))
}

// WithLogLevel sets the structured logger's minimum level.
func WithLogLevel(level string) Option {
	return configOption(config.WithLogLevel(level))
}

// WithIPAddressesEnabled records whether machine IP/name headers are
// enabled. The factory never fills in a machine IP or name, so outbound
// requests carry neither header whatever this is set to.
func WithIPAddressesEnabled(enabled bool) Option {
	return configOption(config.WithIPAddressesEnabled(enabled))
}

// WithRandomizeIntervals adds jitter to refresh tickers.
func WithRandomizeIntervals(enabled bool) Option {
	return configOption(config.WithRandomizeIntervals(enabled))
}

// WithURLs overrides the backend endpoints, for testing or private
// deployments.
func WithURLs(sdkURL, eventsURL, authURL, streamingURL string) Option {
	return configOption(config.WithURLs(sdkURL, eventsURL, authURL, streamingURL))
}

// WithRedis switches to consumer mode, reading flags/segments and queuing
// impressions/events through a shared Redis instance populated by an
// external synchronizer.
func WithRedis(url, prefix string) Option {
	return configOption(config.WithRedis(url, prefix))
}

// WithLocalhostFile switches to localhost mode, reading flag definitions
// from a local file instead of the network. Pass "" to use the reference
// SDK's default of "$HOME/.split".
func WithLocalhostFile(path string) Option {
	if path == "" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, ".split")
	}
	return configOption(config.WithLocalhostFile(path))
}

// WithImpressionListener registers a hook invoked once per impression
// accepted onto the reporting queue. It runs synchronously on the
// goroutine of the evaluation call that produced the impression, so a
// slow hook slows that call down. Panics inside fn are recovered and
// counted, never propagated to the caller that triggered the evaluation.
func WithImpressionListener(fn func(engine.Impression)) Option {
	return func(s *settings) { s.listener = fn }
}
