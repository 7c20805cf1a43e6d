// Package mal resolves MyAnimeList entries, searches titles and fetches statistics pages.
package mal

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/falchooser/internal/clock/system"
	"github.com/JakeFAU/falchooser/internal/fetcher"
	"github.com/JakeFAU/falchooser/internal/metrics"
)

// DefaultBaseURL is the public MyAnimeList site.
const DefaultBaseURL = "https://myanimelist.net"

// Fetcher issues GET requests.
type Fetcher interface {
	Fetch(ctx context.Context, request fetcher.Request) (fetcher.Response, error)
}

// BlobStore persists raw pages.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Hasher produces a hex digest used in archive object names.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// Config holds the site location and search credentials.
type Config struct {
	BaseURL     string
	Credentials fetcher.BasicAuth
}

// Client talks to MyAnimeList through a Fetcher.
type Client struct {
	fetcher Fetcher
	cfg     Config
	archive BlobStore
	hasher  Hasher
	clock   Clock
	logger  *zap.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithArchive stores every fetched statistics page in store.
func WithArchive(store BlobStore, hasher Hasher) Option {
	return func(c *Client) {
		c.archive = store
		c.hasher = hasher
	}
}

// WithClock overrides the clock used for archive paths.
func WithClock(clock Clock) Option {
	return func(c *Client) {
		c.clock = clock
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New builds a Client.
func New(f Fetcher, cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	c := &Client{
		fetcher: f,
		cfg:     cfg,
		clock:   system.New(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("mal")
	return c
}

func (c *Client) get(ctx context.Context, target string) ([]byte, error) {
	resp, err := c.fetcher.Fetch(ctx, fetcher.Request{URL: target})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", target, err)
	}
	return resp.Body, nil
}

// archivePage stores a raw statistics page. Failures are logged and swallowed.
func (c *Client) archivePage(ctx context.Context, id int, pageURL string, body []byte) {
	if c.archive == nil {
		return
	}
	digest := "nohash"
	if c.hasher != nil {
		if sum, err := c.hasher.Hash([]byte(pageURL)); err == nil {
			digest = sum
		}
	}
	path := fmt.Sprintf("stats/%s/%d-%s.html", c.clock.Now().UTC().Format("2006-01-02"), id, digest)
	uri, err := c.archive.PutObject(ctx, path, "text/html; charset=utf-8", bytes.NewReader(body))
	metrics.ObserveArchive(err == nil)
	if err != nil {
		c.logger.Warn("Failed to archive statistics page", zap.String("url", pageURL), zap.Error(err))
		return
	}
	c.logger.Debug("Archived statistics page", zap.String("url", pageURL), zap.String("uri", uri))
}
