// Package fetcher issues GET requests through a Colly collector and retries
// any response that is not 200 OK.
package fetcher

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/falchooser/internal/metrics"
)

// Config controls collector and retry behavior.
type Config struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultConfig retries three more times, one second apart.
func DefaultConfig() Config {
	return Config{
		UserAgent:  "falchooser/1.0",
		Timeout:    15 * time.Second,
		MaxRetries: 3,
		RetryDelay: time.Second,
	}
}

// BasicAuth carries fixed credentials sent with a request.
type BasicAuth struct {
	Username string
	Password string
}

// Request describes a single GET.
type Request struct {
	URL    string
	Params url.Values
	Auth   *BasicAuth
	// Accept lists extra status codes treated as success next to 200.
	Accept []int
}

// Response is the raw result of a successful GET.
type Response struct {
	URL        string
	StatusCode int
	Body       []byte
}

// Fetcher performs GETs with bounded retries.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	logger        *zap.Logger
	sleep         func(context.Context, time.Duration) error
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.ParseHTTPErrorResponse(),
	)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		logger:        logger.Named("fetcher"),
		sleep:         sleepWithContext,
	}
}

// Fetch GETs the request URL. Anything other than 200 (or an accepted status) is retried
// up to MaxRetries more times; the final failure is returned as a *TransportError.
func (f *Fetcher) Fetch(ctx context.Context, request Request) (Response, error) {
	target, err := request.target()
	if err != nil {
		return Response{}, err
	}

	attempts := f.cfg.MaxRetries + 1
	var (
		last    Response
		lastErr error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := f.fetchOnce(ctx, target, request.Auth)
		metrics.ObserveFetch(resp.StatusCode)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Response{}, fmt.Errorf("fetch %s: %w", target, ctxErr)
		}
		if err == nil && request.accepts(resp.StatusCode) {
			return resp, nil
		}
		last, lastErr = resp, err
		if attempt == attempts {
			break
		}

		f.logger.Warn("Fetch failed, trying again",
			zap.String("url", target),
			zap.Int("attempt", attempt),
			zap.Int("status_code", resp.StatusCode),
			zap.ByteString("body", truncate(resp.Body, maxLoggedBody)),
			zap.Error(err),
		)
		metrics.ObserveRetry()
		if err := f.sleep(ctx, f.cfg.RetryDelay); err != nil {
			return Response{}, fmt.Errorf("fetch %s: %w", target, err)
		}
	}

	return Response{}, &TransportError{
		URL:        target,
		Attempts:   attempts,
		StatusCode: last.StatusCode,
		Body:       last.Body,
		Err:        lastErr,
	}
}

type visitResult struct {
	resp Response
	err  error
}

// fetchOnce runs one visit. The collector callbacks write only to state owned by
// the visiting goroutine; the caller sees it after the visit has returned.
func (f *Fetcher) fetchOnce(ctx context.Context, target string, auth *BasicAuth) (Response, error) {
	collector := f.baseCollector.Clone()
	done := make(chan visitResult, 1)
	go func() {
		var (
			result   Response
			fetchErr error
		)
		f.configureCollectorHooks(collector, auth, &result, &fetchErr)
		err := collector.Visit(target)
		switch {
		case err != nil:
			err = fmt.Errorf("colly visit failed: %w", err)
		case fetchErr != nil:
			err = fmt.Errorf("colly response failed: %w", fetchErr)
		}
		done <- visitResult{resp: result, err: err}
	}()

	select {
	case <-ctx.Done():
		return Response{}, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case r := <-done:
		return r.resp, r.err
	}
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	auth *BasicAuth,
	result *Response,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		if auth != nil {
			r.Headers.Set("Authorization", basicAuthHeader(auth))
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.StatusCode = r.StatusCode
			result.Body = append([]byte(nil), r.Body...)
		}
		*fetchErr = err
	})
}

func (r Request) target() (string, error) {
	u, err := url.Parse(r.URL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", r.URL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("parse url %q: %w", r.URL, errors.New("absolute url required"))
	}
	if len(r.Params) > 0 {
		q := u.Query()
		for key, values := range r.Params {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (r Request) accepts(status int) bool {
	if status == http.StatusOK {
		return true
	}
	for _, s := range r.Accept {
		if s == status {
			return true
		}
	}
	return false
}

func basicAuthHeader(auth *BasicAuth) string {
	creds := auth.Username + ":" + auth.Password
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(creds))
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
