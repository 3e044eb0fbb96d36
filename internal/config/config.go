// Package config builds and validates the settings a Factory is
// constructed with: refresh rates, impressions mode, streaming toggle,
// queue sizes, and the operation mode (in-memory standalone, Redis-backed
// consumer, or localhost file mode).
package config

import (
	"errors"
	"fmt"
	"time"
)

// OperationMode selects where flag/segment data comes from.
type OperationMode int

const (
	ModeStandalone OperationMode = iota
	ModeConsumer
	ModeLocalhost
)

// ImpressionsMode selects the impression-deduplication strategy.
type ImpressionsMode string

const (
	ImpressionsOptimized ImpressionsMode = "OPTIMIZED"
	ImpressionsDebug     ImpressionsMode = "DEBUG"
	ImpressionsNone      ImpressionsMode = "NONE"
)

const (
	DefaultSDKURL       = "https://sdk.split.io/api"
	DefaultEventsURL    = "https://events.split.io/api"
	DefaultAuthURL      = "https://auth.split.io/api"
	DefaultStreamingURL = "https://streaming.split.io/event-stream"

	// DefaultFeaturesRefreshRate: the reference SDK has shipped both 30s and
	// 60s defaults across versions; this settles on 30s.
	DefaultFeaturesRefreshRate    = 30 * time.Second
	DefaultSegmentsRefreshRate    = 60 * time.Second
	DefaultImpressionsRefreshRate = 60 * time.Second
	DefaultEventsPushRate         = 60 * time.Second
	DefaultMetricsRefreshRate     = time.Hour
	DefaultConnectTimeout         = 1500 * time.Millisecond
	DefaultReadTimeout            = 1500 * time.Millisecond
	DefaultReadyTimeout           = 15 * time.Second

	DefaultImpressionsQueueSize = 5000
	DefaultEventsQueueSize      = 10000

	DefaultRedisPrefix = "SPLITIO"
)

// Config holds a fully-resolved, validated Factory configuration.
type Config struct {
	APIKey string
	Mode   OperationMode

	SDKURL       string
	EventsURL    string
	AuthURL      string
	StreamingURL string

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	ReadyTimeout   time.Duration

	FeaturesRefreshRate    time.Duration
	SegmentsRefreshRate    time.Duration
	ImpressionsRefreshRate time.Duration
	EventsPushRate         time.Duration
	MetricsRefreshRate     time.Duration
	RandomizeIntervals     bool

	StreamingEnabled  bool
	IPAddressesEnabled bool
	ImpressionsMode  ImpressionsMode
	ImpressionsQueueSize int
	EventsQueueSize      int

	FlagSets []string

	LogLevel string

	RedisURL    string
	RedisPrefix string

	LocalhostFile string
}

// Option mutates a Config during construction.
type Option func(*Config)

// New builds a Config from the given API key and options, applying
// defaults for anything unset, then validates the result.
func New(apiKey string, opts ...Option) (Config, error) {
	cfg := Config{
		APIKey:                 apiKey,
		Mode:                   ModeStandalone,
		SDKURL:                 DefaultSDKURL,
		EventsURL:              DefaultEventsURL,
		AuthURL:                DefaultAuthURL,
		StreamingURL:           DefaultStreamingURL,
		ConnectTimeout:         DefaultConnectTimeout,
		ReadTimeout:            DefaultReadTimeout,
		ReadyTimeout:           DefaultReadyTimeout,
		FeaturesRefreshRate:    DefaultFeaturesRefreshRate,
		SegmentsRefreshRate:    DefaultSegmentsRefreshRate,
		ImpressionsRefreshRate: DefaultImpressionsRefreshRate,
		EventsPushRate:         DefaultEventsPushRate,
		MetricsRefreshRate:     DefaultMetricsRefreshRate,
		StreamingEnabled:       true,
		IPAddressesEnabled:     true,
		ImpressionsMode:        ImpressionsOptimized,
		ImpressionsQueueSize:   DefaultImpressionsQueueSize,
		EventsQueueSize:        DefaultEventsQueueSize,
		LogLevel:               "info",
		RedisPrefix:            DefaultRedisPrefix,
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Mode == ModeLocalhost {
		if c.LocalhostFile == "" {
			return errors.New("config: localhost mode requires WithLocalhostFile")
		}
		return nil
	}
	if c.APIKey == "" {
		return errors.New("config: an SDK key is required outside localhost mode")
	}
	if c.Mode == ModeConsumer && c.RedisURL == "" {
		return errors.New("config: consumer mode requires WithRedis")
	}
	if c.FeaturesRefreshRate <= 0 {
		return fmt.Errorf("config: features refresh rate must be > 0")
	}
	if c.SegmentsRefreshRate <= 0 {
		return fmt.Errorf("config: segments refresh rate must be > 0")
	}
	switch c.ImpressionsMode {
	case ImpressionsOptimized, ImpressionsDebug, ImpressionsNone:
	default:
		return fmt.Errorf("config: unknown impressions mode %q", c.ImpressionsMode)
	}
	return nil
}

// WithStreamingEnabled toggles the SSE streaming subsystem. Disabled
// deployments poll exclusively.
func WithStreamingEnabled(enabled bool) Option {
	return func(c *Config) { c.StreamingEnabled = enabled }
}

// WithImpressionsMode selects DEBUG, OPTIMIZED, or NONE impression
// handling.
func WithImpressionsMode(mode ImpressionsMode) Option {
	return func(c *Config) { c.ImpressionsMode = mode }
}

// WithFeaturesRefreshRate overrides the flag polling interval.
func WithFeaturesRefreshRate(d time.Duration) Option {
	return func(c *Config) { c.FeaturesRefreshRate = d }
}

// WithSegmentsRefreshRate overrides the segment polling interval.
func WithSegmentsRefreshRate(d time.Duration) Option {
	return func(c *Config) { c.SegmentsRefreshRate = d }
}

// WithEventsPushRate overrides how often queued events are flushed.
func WithEventsPushRate(d time.Duration) Option {
	return func(c *Config) { c.EventsPushRate = d }
}

// WithImpressionsRefreshRate overrides how often queued impressions are
// flushed.
func WithImpressionsRefreshRate(d time.Duration) Option {
	return func(c *Config) { c.ImpressionsRefreshRate = d }
}

// WithConnectTimeout overrides the HTTP client's connect/request timeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Config) { c.ConnectTimeout = d }
}

// WithReadTimeout sets ReadTimeout. No HTTP client reads this field;
// responses are bounded only by ConnectTimeout.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Config) { c.ReadTimeout = d }
}

// WithIPAddressesEnabled sets IPAddressesEnabled. The factory never fills
// in a machine IP or name, so the SplitSDKMachineIP/MachineName headers
// are not sent whatever this is set to.
func WithIPAddressesEnabled(enabled bool) Option {
	return func(c *Config) { c.IPAddressesEnabled = enabled }
}

// WithRandomizeIntervals adds jitter to refresh tickers, spreading load
// across many SDK instances started at the same time.
func WithRandomizeIntervals(enabled bool) Option {
	return func(c *Config) { c.RandomizeIntervals = enabled }
}

// WithReadyTimeout overrides BlockUntilReady's default wait budget.
func WithReadyTimeout(d time.Duration) Option {
	return func(c *Config) { c.ReadyTimeout = d }
}

// WithFlagSets restricts synchronization to the named flag-set tags.
func WithFlagSets(sets ...string) Option {
	return func(c *Config) { c.FlagSets = sets }
}

// WithQueueSizes overrides the impression and event queue capacities.
func WithQueueSizes(impressions, events int) Option {
	return func(c *Config) {
		c.ImpressionsQueueSize = impressions
		c.EventsQueueSize = events
	}
}

// WithLogLevel sets the structured logger's minimum level.
func WithLogLevel(level string) Option {
	return func(c *Config) { c.LogLevel = level }
}

// WithURLs overrides the backend endpoints, for testing or private
// deployments.
func WithURLs(sdkURL, eventsURL, authURL, streamingURL string) Option {
	return func(c *Config) {
		if sdkURL != "" {
			c.SDKURL = sdkURL
		}
		if eventsURL != "" {
			c.EventsURL = eventsURL
		}
		if authURL != "" {
			c.AuthURL = authURL
		}
		if streamingURL != "" {
			c.StreamingURL = streamingURL
		}
	}
}

// WithRedis switches to consumer mode, reading flags/segments and
// queuing impressions/events through a shared Redis instance.
func WithRedis(url, prefix string) Option {
	return func(c *Config) {
		c.Mode = ModeConsumer
		c.RedisURL = url
		if prefix != "" {
			c.RedisPrefix = prefix
		}
	}
}

// WithLocalhostFile switches to localhost mode, reading flag definitions
// from a local file instead of the network.
func WithLocalhostFile(path string) Option {
	return func(c *Config) {
		c.Mode = ModeLocalhost
		c.LocalhostFile = path
	}
}
