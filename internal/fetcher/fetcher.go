// Package fetcher implements the conditional-GET HTTP synchronization
// client the poller and streaming reconciler use to pull splitChanges and
// segmentChanges pages from the Split backend.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/splitkit/splitkit-go/internal/storage"
)

// APIError is returned when the backend responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fetcher: %s: HTTP %d", e.Endpoint, e.StatusCode)
}

// Config configures a Client's endpoints and credentials.
type Config struct {
	SDKURL        string
	EventsURL     string
	APIKey        string
	SDKVersion    string
	MachineIP     string
	MachineName   string
	ConnectTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.SDKURL == "" {
		c.SDKURL = "https://sdk.split.io/api"
	}
	if c.EventsURL == "" {
		c.EventsURL = "https://events.split.io/api"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	return c
}

// Client fetches flag and segment change pages over HTTPS. Every request
// carries the standard SDK metadata headers and is wrapped by otelhttp so
// each fetch produces a span, matching how the rest of this module traces
// outbound calls.
type Client struct {
	cfg  Config
	http *http.Client
}

// New builds a Client. httpClient may be nil, in which case a default
// client wrapped with otelhttp's transport is used.
func New(cfg Config, httpClient *http.Client) *Client {
	cfg = cfg.withDefaults()
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   cfg.ConnectTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Client{cfg: cfg, http: httpClient}
}

func (c *Client) newRequest(ctx context.Context, baseURL, path string, query url.Values) (*http.Request, error) {
	u := baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("fetcher: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("SplitSDKVersion", c.cfg.SDKVersion)
	if c.cfg.MachineIP != "" {
		req.Header.Set("SplitSDKMachineIP", c.cfg.MachineIP)
	}
	if c.cfg.MachineName != "" {
		req.Header.Set("SplitSDKMachineName", c.cfg.MachineName)
	}
	return req, nil
}

func (c *Client) doGet(ctx context.Context, baseURL, path string, query url.Values) ([]byte, error) {
	req, err := c.newRequest(ctx, baseURL, path, query)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetcher: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return nil, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetcher: %s: read body: %w", path, err)
	}
	if resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Endpoint: path}
	}
	return body, nil
}

// FetchFlags requests one page of splitChanges since the given
// change-number, optionally scoped to a set of flag-set tags.
func (c *Client) FetchFlags(ctx context.Context, since int64, sets []string) (storage.FlagUpdate, error) {
	q := url.Values{"since": {strconv.FormatInt(since, 10)}}
	if len(sets) > 0 {
		q.Set("sets", joinCSV(sets))
	}
	body, err := c.doGet(ctx, c.cfg.SDKURL, "/splitChanges", q)
	if err != nil {
		return storage.FlagUpdate{}, err
	}
	if body == nil {
		return storage.FlagUpdate{Till: since}, nil
	}
	return decodeSplitChanges(body)
}

// FetchSegment requests one page of segmentChanges for a single segment.
func (c *Client) FetchSegment(ctx context.Context, name string, since int64) (storage.SegmentUpdate, error) {
	q := url.Values{"since": {strconv.FormatInt(since, 10)}}
	body, err := c.doGet(ctx, c.cfg.SDKURL, "/segmentChanges/"+name, q)
	if err != nil {
		return storage.SegmentUpdate{}, err
	}
	if body == nil {
		return storage.SegmentUpdate{Name: name, Till: since}, nil
	}
	var resp segmentChangesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return storage.SegmentUpdate{}, fmt.Errorf("fetcher: decode segmentChanges: %w", err)
	}
	return storage.SegmentUpdate{Name: resp.Name, Added: resp.Added, Removed: resp.Removed, Till: resp.Till}, nil
}

// AuthToken requests a streaming JWT from the auth server.
func (c *Client) AuthToken(ctx context.Context, authURL string) ([]byte, error) {
	return c.doGet(ctx, authURL, "/v2/auth", nil)
}

func joinCSV(items []string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}
