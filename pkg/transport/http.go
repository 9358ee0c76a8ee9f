package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/me/fetchq/pkg/model"
)

// HTTPClient is a Transport backed by net/http with connection pooling.
// Handles opened with credentials share a cookie jar; the rest send no
// stored cookies.
type HTTPClient struct {
	timeout   time.Duration
	tlsConfig *tls.Config
	limiter   *rate.Limiter
	logger    *slog.Logger
	userAgent string

	withJar *http.Client
	bare    *http.Client
}

// ClientOption configures optional HTTPClient behavior.
type ClientOption func(*HTTPClient)

// WithTimeout sets the per-attempt timeout. Default 30s.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.timeout = d
	}
}

// WithTLSConfig sets the TLS configuration. If unset, the default system
// TLS configuration is used.
func WithTLSConfig(cfg *tls.Config) ClientOption {
	return func(c *HTTPClient) {
		c.tlsConfig = cfg
	}
}

// WithRateLimit caps outgoing attempts at rps requests per second with the
// given burst. The limiter waits before each attempt, retries included.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *HTTPClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithLogger sets the logger for attempt-level debug output.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *HTTPClient) {
		c.logger = logger
	}
}

// WithUserAgent sets the User-Agent header applied to attempts that do not
// carry their own.
func WithUserAgent(ua string) ClientOption {
	return func(c *HTTPClient) {
		c.userAgent = ua
	}
}

// NewHTTPClient creates an HTTP transport with connection pooling.
func NewHTTPClient(opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		timeout: 30 * time.Second,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "transport")

	pool := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSClientConfig:     c.tlsConfig,
	}
	jar, _ := cookiejar.New(nil)
	c.withJar = &http.Client{Timeout: c.timeout, Transport: pool, Jar: jar}
	c.bare = &http.Client{Timeout: c.timeout, Transport: pool}
	return c
}

// Open implements Transport.
func (c *HTTPClient) Open(method model.Method, rawURL string, withCredentials bool) (Handle, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	client := c.bare
	if withCredentials {
		client = c.withJar
	}
	return &httpHandle{owner: c, client: client, method: method, url: u.String()}, nil
}

type httpHandle struct {
	owner  *HTTPClient
	client *http.Client
	method model.Method
	url    string

	mu      sync.Mutex
	cancel  context.CancelFunc
	aborted bool
}

// Abort implements Handle.
func (h *httpHandle) Abort() {
	h.mu.Lock()
	h.aborted = true
	cancel := h.cancel
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Send implements Handle.
func (h *httpHandle) Send(ctx context.Context, body []byte, headers http.Header, progress func(loaded, total int64)) Outcome {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h.mu.Lock()
	if h.aborted {
		h.mu.Unlock()
		return Outcome{Kind: KindAborted}
	}
	h.cancel = cancel
	h.mu.Unlock()

	if lim := h.owner.limiter; lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return h.settleErr(err, "rate limit")
		}
	}

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, string(h.method), h.url, bodyReader)
	if err != nil {
		return Outcome{Kind: KindNetworkError, Err: &model.TransportError{Reason: "build request", Err: err}}
	}
	for name, values := range headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	if h.owner.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", h.owner.userAgent)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/octet-stream")
	}

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return h.settleErr(err, "round trip")
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if progress != nil {
		reader = &countingReader{r: resp.Body, total: resp.ContentLength, fn: progress}
	}
	respBody, err := io.ReadAll(reader)
	if err != nil {
		return h.settleErr(err, "read body")
	}

	// An abort that raced the final read wins: the caller must never
	// observe a status from an attempt it gave up on.
	h.mu.Lock()
	aborted := h.aborted
	h.mu.Unlock()
	if aborted {
		return Outcome{Kind: KindAborted}
	}

	h.owner.logger.Debug("attempt settled",
		"method", h.method,
		"url", h.url,
		"status", resp.StatusCode,
		"bytes", len(respBody),
		"elapsed", time.Since(start))

	kind := KindHTTPError
	if SuccessStatus(resp.StatusCode) {
		kind = KindSuccess
	}
	return Outcome{Kind: kind, Status: resp.StatusCode, Header: resp.Header, Body: respBody}
}

// settleErr classifies a failed send, folding aborts and context
// cancellation into KindAborted.
func (h *httpHandle) settleErr(err error, reason string) Outcome {
	h.mu.Lock()
	aborted := h.aborted
	h.mu.Unlock()
	if aborted || errors.Is(err, context.Canceled) {
		return Outcome{Kind: KindAborted}
	}
	return Outcome{Kind: KindNetworkError, Err: &model.TransportError{Reason: reason, Err: err}}
}

// countingReader reports cumulative bytes read to a progress callback.
type countingReader struct {
	r      io.Reader
	total  int64
	loaded int64
	fn     func(loaded, total int64)
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.loaded += int64(n)
		cr.fn(cr.loaded, cr.total)
	}
	return n, err
}
