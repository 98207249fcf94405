package doccache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/inventorycmdb/server/internal/domain"
	"github.com/inventorycmdb/server/internal/metrics"
)

// maxDocumentSize bounds how much of a response body is read
const maxDocumentSize = 10 * 1024 * 1024

// Cache fetches YAML documents over HTTP and keeps every result, success or
// failure, keyed by URL until Clear is called. The whole mapping is persisted
// to disk after every miss.
type Cache struct {
	path      string
	client    *retryablehttp.Client
	logger    *slog.Logger
	entries   map[string]Entry
	mu        sync.RWMutex
	persistMu sync.Mutex
	restored  atomic.Bool
}

// Config holds document cache configuration
type Config struct {
	// Path of the persisted cache file. Empty disables persistence.
	Path string
	// Timeout applies to each HTTP attempt
	Timeout time.Duration
	// RetryMax is the number of extra attempts after a transport failure.
	// Non-2xx responses are never retried.
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Logger       *slog.Logger
}

// New creates a cache and loads the persisted file if there is one
func New(cfg Config) (*Cache, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RetryMax < 0 {
		return nil, errors.New("retry max must not be negative")
	}
	if cfg.RetryWaitMin <= 0 {
		cfg.RetryWaitMin = 500 * time.Millisecond
	}
	if cfg.RetryWaitMax < cfg.RetryWaitMin {
		cfg.RetryWaitMax = cfg.RetryWaitMin * 4
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()

	client := retryablehttp.NewClient()
	client.HTTPClient = &http.Client{
		Timeout:   cfg.Timeout,
		Transport: otelhttp.NewTransport(transport),
	}
	client.RetryMax = cfg.RetryMax
	client.RetryWaitMin = cfg.RetryWaitMin
	client.RetryWaitMax = cfg.RetryWaitMax
	client.CheckRetry = retryTransportErrors
	client.Logger = cfg.Logger

	c := &Cache{
		path:    cfg.Path,
		client:  client,
		logger:  cfg.Logger,
		entries: make(map[string]Entry),
	}

	c.loadPersisted()
	metrics.DocumentCacheEntries.Set(float64(c.Len()))

	return c, nil
}

// retryTransportErrors retries only when no response was received
func retryTransportErrors(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	return err != nil, nil
}

// Fetch returns the document at url. It never fails: transport, HTTP and
// parse errors are returned (and cached) as an Entry carrying a Failure.
func (c *Cache) Fetch(ctx context.Context, url string) Entry {
	c.mu.RLock()
	entry, ok := c.entries[url]
	c.mu.RUnlock()

	if ok {
		metrics.DocumentFetches.WithLabelValues(metrics.FetchHit).Inc()
		c.logger.Debug("using cached document", "url", url)
		return entry
	}

	c.logger.Debug("fetching document", "url", url)
	start := time.Now()
	entry = c.get(ctx, url)
	metrics.DocumentFetchDuration.Observe(time.Since(start).Seconds())

	// A cancelled lookup says nothing about the remote document
	if ctx.Err() != nil {
		return entry
	}

	c.mu.Lock()
	c.entries[url] = entry
	size := len(c.entries)
	c.mu.Unlock()
	metrics.DocumentCacheEntries.Set(float64(size))

	if err := c.Persist(); err != nil {
		c.logger.Warn("failed to persist document cache", "path", c.path, "error", err)
	}

	return entry
}

func (c *Cache) get(ctx context.Context, url string) Entry {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		metrics.DocumentFetches.WithLabelValues(metrics.FetchTransportError).Inc()
		return failedEntry(url, Failure{Message: "Request error", Exception: err.Error()})
	}

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.DocumentFetches.WithLabelValues(metrics.FetchTransportError).Inc()
		c.logger.Warn("document fetch failed", "url", url, "error", err)
		return failedEntry(url, transportFailure(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.DocumentFetches.WithLabelValues(metrics.FetchHTTPError).Inc()
		c.logger.Debug("document not available", "url", url, "status", resp.StatusCode)
		return failedEntry(url, Failure{
			Message: fmt.Sprintf("error getting inventory, HTTP %d", resp.StatusCode),
			Status:  resp.StatusCode,
		})
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		metrics.DocumentFetches.WithLabelValues(metrics.FetchTransportError).Inc()
		return failedEntry(url, transportFailure(err))
	}

	doc, err := domain.ParseDocument(body)
	if err != nil {
		metrics.DocumentFetches.WithLabelValues(metrics.FetchParseError).Inc()
		c.logger.Warn("document is not valid YAML", "url", url, "error", err)
		message := "YAML parse error"
		if errors.Is(err, domain.ErrNotMapping) {
			message = domain.ErrNotMapping.Error()
		}
		return failedEntry(url, Failure{Message: message, Exception: err.Error()})
	}

	metrics.DocumentFetches.WithLabelValues(metrics.FetchOK).Inc()
	return okEntry(url, doc)
}

func transportFailure(err error) Failure {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return Failure{Message: "Timeout error", Exception: err.Error()}
	}
	return Failure{Message: "Request error", Exception: err.Error()}
}

// Clear drops every entry, forcing the next lookups back to the network
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]Entry)
	c.mu.Unlock()
	metrics.DocumentCacheEntries.Set(0)
}

// Len returns the number of cached entries
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Entries returns a copy of the cached entries
func (c *Cache) Entries() map[string]Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]Entry, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}

// Restored reports whether the cache was loaded from a previous run (or a
// persisted file existed but was unreadable). Such a cache may be older than
// the remote source and needs a refresh.
func (c *Cache) Restored() bool {
	return c.restored.Load()
}
