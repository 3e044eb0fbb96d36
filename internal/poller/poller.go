// Package poller drives the periodic and on-demand refresh of flags and
// segments: a flag-feed ticker, a per-segment ticker fan-out, and the
// fetch-until-till loop the streaming reconciler calls after a
// SPLIT_UPDATE/SPLIT_KILL notification names a specific target
// change-number.
package poller

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/splitkit/splitkit-go/internal/fetcher"
	"github.com/splitkit/splitkit-go/internal/storage"
)

// FlagFetcher and SegmentFetcher narrow fetcher.Client to what the poller
// needs, so tests can supply fakes without standing up an HTTP server.
type FlagFetcher interface {
	FetchFlags(ctx context.Context, since int64, sets []string) (storage.FlagUpdate, error)
}

type SegmentFetcher interface {
	FetchSegment(ctx context.Context, name string, since int64) (storage.SegmentUpdate, error)
}

const (
	onDemandBackoffBase    = 10 * time.Second
	onDemandBackoffMax     = 60 * time.Second
	onDemandMaxRetries     = 10
)

// Poller owns the flag and segment refresh loops. It never runs both a
// polling ticker and streaming reconciliation concurrently for the same
// feed; the sync manager is responsible for pausing Poll() while
// streaming is healthy.
type Poller struct {
	flags    FlagFetcher
	segments SegmentFetcher
	store    storage.Storage
	logger   *slog.Logger

	flagInterval    time.Duration
	segmentInterval time.Duration
	flagSets        []string
	randomize       bool

	segMu      sync.Mutex
	tracked    map[string]struct{}
	stopTicker context.CancelFunc
}

// New constructs a Poller bound to a fetcher and storage instance.
func New(flags FlagFetcher, segments SegmentFetcher, store storage.Storage, flagInterval, segmentInterval time.Duration, flagSets []string, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		flags:           flags,
		segments:        segments,
		store:           store,
		logger:          logger,
		flagInterval:    flagInterval,
		segmentInterval: segmentInterval,
		flagSets:        flagSets,
		tracked:         make(map[string]struct{}),
	}
}

// WithRandomizedIntervals enables jitter on the flag/segment tickers, so
// many SDK instances started at the same time don't all poll in lockstep.
func (p *Poller) WithRandomizedIntervals(enabled bool) *Poller {
	p.randomize = enabled
	return p
}

func (p *Poller) jitter(d time.Duration) time.Duration {
	if !p.randomize || d <= 0 {
		return d
	}
	spread := float64(d) * 0.2
	return d + time.Duration(rand.Float64()*spread-spread/2)
}

// Run blocks, alternately refreshing flags on flagInterval and any
// tracked segments on segmentInterval, until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	flagTicker := time.NewTicker(p.jitter(p.flagInterval))
	defer flagTicker.Stop()
	segTicker := time.NewTicker(p.jitter(p.segmentInterval))
	defer segTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-flagTicker.C:
			if err := p.RefreshFlags(ctx); err != nil {
				p.logger.Warn("poller: flag refresh failed", "error", err)
			}
		case <-segTicker.C:
			p.refreshTrackedSegments(ctx)
		}
	}
}

// RefreshFlags fetches and applies splitChanges pages until the backend
// reports since==till, then enqueues any newly-referenced segments for
// tracking, mirroring the reference SDK's _fetch_until loop.
func (p *Poller) RefreshFlags(ctx context.Context) error {
	for {
		since := p.store.ChangeNumber()
		update, err := p.flags.FetchFlags(ctx, since, p.flagSets)
		if err != nil {
			return err
		}
		if err := p.store.ApplyFlags(update); err != nil {
			return err
		}
		for _, name := range flagNames(update) {
			for _, seg := range p.store.SegmentsReferencedBy(name) {
				p.TrackSegment(seg)
			}
		}
		if update.Till <= since {
			return nil
		}
	}
}

func flagNames(update storage.FlagUpdate) []string {
	names := make([]string, 0, len(update.Upserts))
	for _, f := range update.Upserts {
		names = append(names, f.Name)
	}
	return names
}

// TrackSegment registers a segment name for periodic refresh. Idempotent.
func (p *Poller) TrackSegment(name string) {
	p.segMu.Lock()
	defer p.segMu.Unlock()
	p.tracked[name] = struct{}{}
}

// TrackedSegments returns the names of every segment currently registered
// for periodic refresh.
func (p *Poller) TrackedSegments() []string {
	p.segMu.Lock()
	defer p.segMu.Unlock()
	names := make([]string, 0, len(p.tracked))
	for n := range p.tracked {
		names = append(names, n)
	}
	return names
}

func (p *Poller) refreshTrackedSegments(ctx context.Context) {
	names := p.TrackedSegments()
	for _, name := range names {
		if err := p.RefreshSegment(ctx, name); err != nil {
			p.logger.Warn("poller: segment refresh failed", "segment", name, "error", err)
		}
	}
}

// RefreshSegment fetches and applies segmentChanges pages for one segment
// until since==till.
func (p *Poller) RefreshSegment(ctx context.Context, name string) error {
	for {
		since, _ := p.store.SegmentChangeNumber(name)
		if since == 0 {
			since = -1
		}
		update, err := p.segments.FetchSegment(ctx, name, since)
		if err != nil {
			return err
		}
		if err := p.store.ApplySegment(update); err != nil {
			return err
		}
		if update.Till <= since {
			return nil
		}
	}
}

// FetchUntil polls FetchFlags repeatedly with capped exponential backoff
// until the store's change-number reaches targetTill or the retry budget
// is exhausted, used by the streaming reconciler after a notification
// names a specific change-number to converge on.
func (p *Poller) FetchUntil(ctx context.Context, targetTill int64) error {
	backoff := fetcher.Backoff{Base: onDemandBackoffBase, MaxInterval: onDemandBackoffMax}
	for attempt := 0; attempt < onDemandMaxRetries; attempt++ {
		if err := p.RefreshFlags(ctx); err != nil {
			return err
		}
		if p.store.ChangeNumber() >= targetTill {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff.Next(attempt)):
		}
	}
	return nil
}
