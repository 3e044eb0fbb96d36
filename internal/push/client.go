// Package push implements the SSE streaming client: JWT auth, connection
// lifecycle, keep-alive timeout detection, and reconnect with backoff.
// Wire framing is grounded on the reference SDK's SSEClient; notification
// shapes on its parser module.
package push

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/splitkit/splitkit-go/internal/fetcher"
)

// KeepAliveTimeout is how long the client waits between frames before
// treating the connection as dead and reconnecting.
const KeepAliveTimeout = 70 * time.Second

// AuthClient is the narrow view of fetcher.Client the push client needs
// to obtain a streaming token.
type AuthClient interface {
	AuthToken(ctx context.Context, authURL string) ([]byte, error)
}

// Config configures a streaming Client.
type Config struct {
	AuthURL     string
	StreamingURL string
	APIKey      string
}

func (c Config) withDefaults() Config {
	if c.AuthURL == "" {
		c.AuthURL = "https://auth.split.io/api"
	}
	if c.StreamingURL == "" {
		c.StreamingURL = "https://streaming.split.io/event-stream"
	}
	return c
}

// Client owns one SSE connection at a time and republishes decoded
// Notifications and Status transitions on its channels. Callers pump
// Run in a goroutine and read from Notifications()/Status() until ctx is
// cancelled.
type Client struct {
	cfg    Config
	auth   AuthClient
	http   *http.Client
	tracker *StatusTracker
	logger *slog.Logger

	notifications chan Notification
	statusCh      chan Status
}

// New builds a Client. httpClient may be nil, in which case
// http.DefaultClient is used (the SSE connection itself has no per-request
// timeout — keep-alive detection is done at the framing layer instead).
func New(cfg Config, auth AuthClient, httpClient *http.Client, logger *slog.Logger) *Client {
	cfg = cfg.withDefaults()
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:           cfg,
		auth:          auth,
		http:          httpClient,
		tracker:       NewStatusTracker(),
		logger:        logger,
		notifications: make(chan Notification, 64),
		statusCh:      make(chan Status, 8),
	}
}

// Notifications returns the channel decoded SSE notifications are
// published on.
func (c *Client) Notifications() <-chan Notification { return c.notifications }

// Status returns the channel status transitions are published on.
func (c *Client) Status() <-chan Status { return c.statusCh }

// Run connects, streams, and reconnects with exponential backoff until
// ctx is cancelled or the account is found to have streaming disabled
// (a non-retryable condition the sync manager should react to by falling
// back to polling permanently).
func (c *Client) Run(ctx context.Context) {
	backoff := fetcher.DefaultBackoff()
	attempt := 0

	for {
		if ctx.Err() != nil {
			return
		}

		token, err := c.fetchToken(ctx)
		if err != nil {
			c.logger.Warn("push: auth failed", "error", err)
			c.publishStatus(StatusNonRetryableError)
			return
		}

		c.tracker.Reset()
		connErr := c.connectAndStream(ctx, token)
		if ctx.Err() != nil {
			return
		}

		if connErr != nil {
			c.logger.Info("push: connection ended", "error", connErr)
		}
		status, changed := c.tracker.HandleDisconnect()
		if changed {
			c.publishStatus(status)
		}
		if status == StatusNonRetryableError {
			return
		}

		attempt++
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff.Next(attempt)):
		}
	}
}

func (c *Client) fetchToken(ctx context.Context) (Token, error) {
	body, err := c.auth.AuthToken(ctx, c.cfg.AuthURL)
	if err != nil {
		return Token{}, err
	}
	return decodeToken(body)
}

func (c *Client) connectAndStream(ctx context.Context, token Token) error {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, c.cfg.StreamingURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+token.Raw)
	q := req.URL.Query()
	if len(token.Channels) > 0 {
		q.Set("channel", strings.Join(token.Channels, ","))
	}
	req.URL.RawQuery = q.Encode()

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("push: connect: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("push: connect: HTTP %d", resp.StatusCode)
	}

	c.publishStatus(StatusUp)

	refreshTimer := time.NewTimer(token.RefreshAt())
	defer refreshTimer.Stop()

	frames := make(chan rawFrame, 16)
	readErr := make(chan error, 1)
	go func() {
		br := bufio.NewReaderSize(resp.Body, 1<<20)
		readErr <- readFrames(br, func(f rawFrame) { frames <- f })
		close(frames)
	}()

	keepAlive := time.NewTimer(KeepAliveTimeout)
	defer keepAlive.Stop()

	for {
		select {
		case <-streamCtx.Done():
			return streamCtx.Err()
		case <-refreshTimer.C:
			// token nearing expiry: force a reconnect so a fresh one is fetched.
			return nil
		case <-keepAlive.C:
			return fmt.Errorf("push: keep-alive timeout")
		case f, ok := <-frames:
			if !ok {
				return <-readErr
			}
			if !keepAlive.Stop() {
				<-keepAlive.C
			}
			keepAlive.Reset(KeepAliveTimeout)
			c.handleFrame(f)
		}
	}
}

func (c *Client) handleFrame(f rawFrame) {
	n, ok, err := parseFrame(f)
	if err != nil {
		c.logger.Warn("push: frame parse error", "error", err)
		return
	}
	if !ok {
		return
	}

	switch n.Kind {
	case NotificationOccupancy:
		if status, changed := c.tracker.HandleOccupancy(n.Occupancy); changed {
			c.publishStatus(status)
		}
	case NotificationControl:
		if status, changed := c.tracker.HandleControl(n.Control); changed {
			c.publishStatus(status)
		}
	case NotificationError:
		if status, changed := c.tracker.HandleAblyError(n.Error); changed {
			c.publishStatus(status)
		}
	}

	select {
	case c.notifications <- n:
	default:
		c.logger.Warn("push: notification channel full, dropping", "kind", n.Kind)
	}
}

func (c *Client) publishStatus(s Status) {
	select {
	case c.statusCh <- s:
	default:
	}
}
