package splitkit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/splitkit/splitkit-go/internal/config"
	"github.com/splitkit/splitkit-go/internal/engine"
	"github.com/splitkit/splitkit-go/internal/fetcher"
	"github.com/splitkit/splitkit-go/internal/localhost"
	"github.com/splitkit/splitkit-go/internal/logging"
	"github.com/splitkit/splitkit-go/internal/poller"
	"github.com/splitkit/splitkit-go/internal/push"
	"github.com/splitkit/splitkit-go/internal/storage"
	"github.com/splitkit/splitkit-go/internal/storage/redisstore"
	"github.com/splitkit/splitkit-go/internal/syncmanager"
	"github.com/splitkit/splitkit-go/internal/telemetry"
	"github.com/splitkit/splitkit-go/internal/tracing"
)

// localhostAPIKey is the sentinel that switches a factory into localhost
// mode even without an explicit WithLocalhostFile option, matching the
// reference SDK's api_key == "localhost" convention.
const localhostAPIKey = "localhost"

// Factory is the sole owner of a Storage instance, its evaluator, and
// every background task that keeps it in sync. Client and Manager are
// thin handles onto the factory; they never outlive it.
type Factory struct {
	apiKey     string
	instanceID string
	cfg        config.Config
	logger     *slog.Logger

	store     storage.Storage
	evaluator *engine.Evaluator
	metrics   *telemetry.Metrics
	impPipe   *telemetry.Pipeline
	impQueue  *telemetry.ImpressionQueue
	eventQ    *telemetry.EventQueue
	reporter  *telemetry.Reporter
	sync      *syncmanager.Manager

	cancel        context.CancelFunc
	shutdownTrace func(context.Context) error
	wg            sync.WaitGroup
	ready         <-chan struct{}
	destroyed     atomic.Bool

	client  *Client
	manager *Manager
}

// NewFactory builds a Factory for apiKey and starts its background
// synchronization tasks. It returns as soon as construction succeeds;
// callers should follow with BlockUntilReady before evaluating.
func NewFactory(apiKey string, opts ...Option) (*Factory, error) {
	s := &settings{}
	if apiKey == localhostAPIKey {
		home, _ := os.UserHomeDir()
		s.configOpts = append(s.configOpts, config.WithLocalhostFile(filepath.Join(home, ".split")))
	}
	s.apply(opts)

	cfg, err := config.New(apiKey, s.configOpts...)
	if err != nil {
		return nil, err
	}

	logger := logging.New(cfg.LogLevel)
	metrics := telemetry.New()

	f := &Factory{
		apiKey:     apiKey,
		instanceID: uuid.NewString(),
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
	}

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel

	shutdownTrace, err := tracing.Init(ctx)
	if err != nil {
		logger.Warn("splitkit: tracing init failed, continuing without spans", "error", err)
		shutdownTrace = func(context.Context) error { return nil }
	}
	f.shutdownTrace = shutdownTrace

	switch cfg.Mode {
	case config.ModeLocalhost:
		if err := f.initLocalhost(ctx); err != nil {
			cancel()
			return nil, err
		}
	case config.ModeConsumer:
		if err := f.initConsumer(ctx); err != nil {
			cancel()
			return nil, err
		}
	default:
		if err := f.initStandalone(ctx, s.listener); err != nil {
			cancel()
			return nil, err
		}
	}

	f.client = &Client{factory: f}
	f.manager = &Manager{factory: f}

	registerFactory(apiKey, logger)
	return f, nil
}

func (f *Factory) initLocalhost(ctx context.Context) error {
	f.store = storage.NewMemory()
	f.evaluator = engine.NewEvaluator(f.store, f.store).WithLogger(f.logger)

	format := localhost.FormatFor(f.cfg.LocalhostFile)
	if err := localhost.Sync(f.cfg.LocalhostFile, format, f.store); err != nil {
		return fmt.Errorf("splitkit: localhost sync: %w", err)
	}

	ready := make(chan struct{})
	close(ready)
	f.ready = ready

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		ticker := time.NewTicker(f.cfg.FeaturesRefreshRate)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := localhost.Sync(f.cfg.LocalhostFile, format, f.store); err != nil {
					f.logger.Warn("splitkit: localhost reload failed", "error", err)
				}
			}
		}
	}()
	return nil
}

func (f *Factory) initConsumer(ctx context.Context) error {
	client, err := redisstore.Connect(ctx, redisstore.Config{ConnectionURL: f.cfg.RedisURL, Prefix: f.cfg.RedisPrefix})
	if err != nil {
		return fmt.Errorf("splitkit: redis connect: %w", err)
	}
	store := redisstore.New(client, f.cfg.RedisPrefix)
	f.store = store
	f.evaluator = engine.NewEvaluator(store, store).WithLogger(f.logger)
	telemetry.RegisterRedisPoolMetrics(f.metrics.Registry, client)

	f.impQueue = telemetry.NewImpressionQueue(f.cfg.ImpressionsQueueSize, f.metrics, nil)
	f.eventQ = telemetry.NewEventQueue(f.cfg.EventsQueueSize, f.metrics)

	ready := make(chan struct{})
	close(ready)
	f.ready = ready

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.drainConsumerQueues(ctx, store)
	}()
	return nil
}

// drainConsumerQueues periodically pushes locally-queued impressions and
// events into Redis via RPUSH, since consumer mode has no HTTP reporter
// of its own.
func (f *Factory) drainConsumerQueues(ctx context.Context, store *redisstore.Store) {
	ticker := time.NewTicker(f.cfg.ImpressionsRefreshRate)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, imp := range f.impQueue.Drain() {
				payload, err := encodeImpressionJSON(imp)
				if err != nil {
					continue
				}
				if err := store.PushImpression(ctx, payload); err != nil {
					f.logger.Warn("splitkit: push impression to redis failed", "error", err)
				}
			}
			for _, ev := range f.eventQ.Drain() {
				payload, err := encodeEventJSON(ev)
				if err != nil {
					continue
				}
				if err := store.PushEvent(ctx, payload); err != nil {
					f.logger.Warn("splitkit: push event to redis failed", "error", err)
				}
			}
		}
	}
}

func (f *Factory) initStandalone(ctx context.Context, listener func(engine.Impression)) error {
	mem := storage.NewMemory()
	f.store = mem
	f.evaluator = engine.NewEvaluator(mem, mem).WithLogger(f.logger)

	httpClient := &http.Client{Timeout: f.cfg.ConnectTimeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}
	fc := fetcher.New(fetcher.Config{
		SDKURL:         f.cfg.SDKURL,
		EventsURL:      f.cfg.EventsURL,
		APIKey:         f.apiKey,
		SDKVersion:     "splitkit-go-1.0.0",
		ConnectTimeout: f.cfg.ConnectTimeout,
	}, httpClient)

	p := poller.New(fc, fc, mem, f.cfg.FeaturesRefreshRate, f.cfg.SegmentsRefreshRate, f.cfg.FlagSets, f.logger).
		WithRandomizedIntervals(f.cfg.RandomizeIntervals)

	var pushClient *push.Client
	if f.cfg.StreamingEnabled {
		streamingClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
		pushClient = push.New(push.Config{
			AuthURL:      f.cfg.AuthURL,
			StreamingURL: f.cfg.StreamingURL,
			APIKey:       f.apiKey,
		}, fc, streamingClient, f.logger)
	}

	f.sync = syncmanager.New(p, pushClient, f.cfg.StreamingEnabled, f.logger)
	f.ready = f.sync.Ready()

	f.impPipe = telemetry.NewPipeline(telemetry.ImpressionsMode(f.cfg.ImpressionsMode), f.metrics)
	f.impQueue = telemetry.NewImpressionQueue(f.cfg.ImpressionsQueueSize, f.metrics, listener)
	f.eventQ = telemetry.NewEventQueue(f.cfg.EventsQueueSize, f.metrics)
	f.reporter = telemetry.NewReporter(telemetry.ReporterConfig{
		EventsURL:          f.cfg.EventsURL,
		APIKey:             f.apiKey,
		ImpressionInterval: f.cfg.ImpressionsRefreshRate,
		EventInterval:      f.cfg.EventsPushRate,
	}, f.impPipe, f.impQueue, f.eventQ, f.logger)

	f.wg.Add(2)
	go func() {
		defer f.wg.Done()
		if err := f.sync.Run(ctx); err != nil {
			f.logger.Error("splitkit: sync manager stopped", "error", err)
		}
	}()
	go func() {
		defer f.wg.Done()
		f.reporter.Run(ctx)
	}()

	go func() {
		if err := f.reporter.PostConfig(ctx, f.initConfigEcho()); err != nil {
			f.logger.Debug("splitkit: config echo failed", "error", err)
		}
	}()

	return nil
}

func (f *Factory) initConfigEcho() telemetry.InitConfig {
	return telemetry.InitConfig{
		InstanceID:             f.instanceID,
		OperationMode:          "STANDALONE",
		StorageType:            "MEMORY",
		StreamingEnabled:       f.cfg.StreamingEnabled,
		ImpressionsQueueSize:   f.cfg.ImpressionsQueueSize,
		EventsQueueSize:        f.cfg.EventsQueueSize,
		ImpressionsMode:        string(f.cfg.ImpressionsMode),
		RefreshRateFlags:       int(f.cfg.FeaturesRefreshRate.Seconds()),
		RefreshRateSegments:    int(f.cfg.SegmentsRefreshRate.Seconds()),
		RefreshRateImpression:  int(f.cfg.ImpressionsRefreshRate.Seconds()),
		RefreshRateEvent:       int(f.cfg.EventsPushRate.Seconds()),
		ActiveFactories:        1,
		TotalFlagSets:          len(f.cfg.FlagSets),
	}
}

// BlockUntilReady waits up to timeout for the factory's first successful
// sync. A zero timeout uses the configured default.
func (f *Factory) BlockUntilReady(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = f.cfg.ReadyTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-f.ready:
		return nil
	case <-timer.C:
		return ErrReadyTimeout
	}
}

// Client returns the factory's evaluation and tracking handle.
func (f *Factory) Client() *Client { return f.client }

// Manager returns the factory's read-only storage introspection handle.
func (f *Factory) Manager() *Manager { return f.manager }

// MetricsHandler exposes this factory's Prometheus registry for a host
// application to mount under its own path (e.g. "/internal/metrics"),
// alongside the periodic HTTP push the reporter performs.
func (f *Factory) MetricsHandler() http.Handler { return f.metrics.Handler() }

// Destroy signals every background task to stop, waits up to a grace
// window for final flushes, and marks the factory dead: subsequent
// Client evaluation calls degrade to control with label "sdk destroyed".
// Manager calls are not gated and keep returning the flags left in
// storage.
func (f *Factory) Destroy() {
	if !f.destroyed.CompareAndSwap(false, true) {
		return
	}
	unregisterFactory(f.apiKey)
	f.cancel()

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		f.logger.Warn("splitkit: destroy grace period exceeded, dropping residual work")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := f.shutdownTrace(shutdownCtx); err != nil {
		f.logger.Warn("splitkit: trace shutdown failed", "error", err)
	}
}

func (f *Factory) isDestroyed() bool { return f.destroyed.Load() }

func (f *Factory) isReady() bool {
	select {
	case <-f.ready:
		return true
	default:
		return false
	}
}
