package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/splitkit/splitkit-go/internal/engine"
)

// Reporter periodically pushes queued impressions, events, and counters
// to the Split events backend.
type Reporter struct {
	eventsURL string
	apiKey    string
	http      *http.Client
	logger    *slog.Logger

	impressions *Pipeline
	impQueue    *ImpressionQueue
	events      *EventQueue

	impressionInterval time.Duration
	eventInterval      time.Duration
}

// ReporterConfig configures a Reporter's endpoints and flush cadence.
type ReporterConfig struct {
	EventsURL          string
	APIKey             string
	ImpressionInterval time.Duration
	EventInterval      time.Duration
}

// NewReporter constructs a Reporter bound to the given pipelines.
func NewReporter(cfg ReporterConfig, impressions *Pipeline, impQueue *ImpressionQueue, events *EventQueue, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ImpressionInterval <= 0 {
		cfg.ImpressionInterval = 60 * time.Second
	}
	if cfg.EventInterval <= 0 {
		cfg.EventInterval = 60 * time.Second
	}
	return &Reporter{
		eventsURL:          cfg.EventsURL,
		apiKey:             cfg.APIKey,
		http:               &http.Client{Timeout: 10 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		logger:             logger,
		impressions:        impressions,
		impQueue:           impQueue,
		events:             events,
		impressionInterval: cfg.ImpressionInterval,
		eventInterval:      cfg.EventInterval,
	}
}

// Run blocks, flushing impressions and events on their respective
// intervals, until ctx is cancelled — at which point it performs one
// final flush so nothing queued is lost on shutdown.
func (r *Reporter) Run(ctx context.Context) {
	impTicker := time.NewTicker(r.impressionInterval)
	defer impTicker.Stop()
	evTicker := time.NewTicker(r.eventInterval)
	defer evTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.flushEvents(context.Background())
			r.flushImpressions(context.Background())
			r.flushCounters(context.Background())
			return
		case <-impTicker.C:
			r.flushImpressions(ctx)
			r.flushCounters(ctx)
		case <-evTicker.C:
			r.flushEvents(ctx)
		}
	}
}

func (r *Reporter) flushImpressions(ctx context.Context) {
	if r.impQueue == nil {
		return
	}
	batch := r.impQueue.Drain()
	if len(batch) == 0 {
		return
	}
	if err := r.PostImpressions(ctx, batch); err != nil {
		r.logger.Warn("telemetry: flush impressions failed", "error", err)
	}
}

func (r *Reporter) flushEvents(ctx context.Context) {
	batch := r.events.Drain()
	if len(batch) == 0 {
		return
	}
	if err := r.post(ctx, "/api/events/bulk", batch); err != nil {
		r.logger.Warn("telemetry: flush events failed", "error", err)
	}
}

func (r *Reporter) flushCounters(ctx context.Context) {
	counts := r.impressions.DrainCounters()
	if len(counts) == 0 {
		return
	}
	type wireCount struct {
		Feature string `json:"f"`
		Time    int64  `json:"m"`
		Count   int64  `json:"rc"`
	}
	items := make([]wireCount, 0, len(counts))
	for k, v := range counts {
		items = append(items, wireCount{Feature: k.Feature, Time: k.TimeFrame, Count: v})
	}
	if err := r.post(ctx, "/api/testImpressions/count", items); err != nil {
		r.logger.Warn("telemetry: flush impression counts failed", "error", err)
	}
}

func (r *Reporter) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.eventsURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("telemetry: %s: HTTP %d", path, resp.StatusCode)
	}
	return nil
}

// wireImpression is the flat shape the events backend expects for
// testImpressions/bulk, grouped by feature name.
type wireImpression struct {
	KeyName      string `json:"keyName"`
	Treatment    string `json:"treatment"`
	Time         int64  `json:"time"`
	ChangeNumber int64  `json:"changeNumber"`
	Label        string `json:"label"`
	BucketingKey string `json:"bucketingKey,omitempty"`
	Pt           int64  `json:"pt,omitempty"`
}

type wireImpressionsPerFeature struct {
	TestName        string           `json:"testName"`
	KeyImpressions  []wireImpression `json:"keyImpressions"`
}

// PostConfig sends the one-time startup config echo the reference SDK
// pushes to /metrics/config. Runtime counters and latency histograms are
// exposed via Prometheus instead of the reference SDK's periodic HTTP
// push (see package doc); the config echo is the one telemetry payload
// this rewrite still sends over HTTP, since it has no Prometheus
// equivalent.
func (r *Reporter) PostConfig(ctx context.Context, cfg InitConfig) error {
	return r.post(ctx, "/metrics/config", cfg)
}

// PostImpressions flushes a batch of impressions grouped by feature.
func (r *Reporter) PostImpressions(ctx context.Context, impressions []engine.Impression) error {
	if len(impressions) == 0 {
		return nil
	}
	grouped := map[string][]wireImpression{}
	for _, imp := range impressions {
		grouped[imp.FeatureName] = append(grouped[imp.FeatureName], wireImpression{
			KeyName:      imp.MatchingKey,
			Treatment:    imp.Treatment,
			Time:         imp.Timestamp,
			ChangeNumber: imp.ChangeNumber,
			Label:        imp.Label,
			BucketingKey: imp.BucketingKey,
			Pt:           imp.PreviousTime,
		})
	}
	payload := make([]wireImpressionsPerFeature, 0, len(grouped))
	for feature, imps := range grouped {
		payload = append(payload, wireImpressionsPerFeature{TestName: feature, KeyImpressions: imps})
	}
	return r.post(ctx, "/api/testImpressions/bulk", payload)
}
