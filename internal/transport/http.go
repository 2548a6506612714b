package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// Config for the HTTP transport.
type Config struct {
	Credentials    *Credentials
	Timeout        time.Duration // default 30s
	RequestsPerSec float64       // 0 disables pacing
	UserAgent      string
	CacheSize      int // cached GET responses kept, default 256
}

// HTTP sends requests with net/http. It never retries.
type HTTP struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
	cache   *lru.Cache[string, *Response]
}

func NewHTTP(cfg Config, client *http.Client, logger *slog.Logger) *HTTP {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "casda-stager/1.0"
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 256
	}
	if client == nil {
		client = &http.Client{}
	}
	// lru.New only fails for a non-positive size.
	cache, _ := lru.New[string, *Response](cfg.CacheSize)
	t := &HTTP{
		cfg:    cfg,
		client: client,
		logger: logger,
		cache:  cache,
	}
	if cfg.RequestsPerSec > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1)
	}
	return t
}

// HasCredentials reports whether authenticated requests can be made.
func (t *HTTP) HasCredentials() bool {
	return t.cfg.Credentials != nil && t.cfg.Credentials.User != ""
}

// Send performs one request and reads the whole body.
func (t *HTTP) Send(ctx context.Context, r Request) (*Response, error) {
	full, err := r.fullURL()
	if err != nil {
		return nil, err
	}
	cacheable := r.Cache && r.Method == http.MethodGet
	if cacheable {
		if resp, ok := t.cached(r.cacheKey(full)); ok {
			t.logger.Debug("casda.http.cache_hit", "method", r.Method, "url", full)
			return resp, nil
		}
	}

	resp, body, err := t.do(ctx, r, full)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp.Body, t.logger)

	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", r.Method, full, err)
	}
	out := &Response{
		StatusCode: resp.StatusCode,
		FinalURL:   resp.Request.URL.String(),
		Header:     resp.Header,
		Body:       raw,
	}
	if resp.StatusCode/100 != 2 {
		return out, &StatusError{Method: r.Method, URL: full, StatusCode: resp.StatusCode, Body: raw}
	}
	if cacheable {
		t.store(r.cacheKey(full), out)
	}
	return out, nil
}

// Download streams a GET response into w and returns the number of bytes written.
func (t *HTTP) Download(ctx context.Context, r Request, w io.Writer) (int64, error) {
	r.Method = http.MethodGet
	full, err := r.fullURL()
	if err != nil {
		return 0, err
	}
	resp, body, err := t.do(ctx, r, full)
	if err != nil {
		return 0, err
	}
	defer closeBody(resp.Body, t.logger)

	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(body, 512))
		return 0, &StatusError{Method: r.Method, URL: full, StatusCode: resp.StatusCode, Body: snippet}
	}
	n, err := io.Copy(w, body)
	if err != nil {
		return n, fmt.Errorf("download %s: %w", full, err)
	}
	return n, nil
}

// do returns the response together with the reader to consume.
// A per-request timeout stays active until the body has been read.
func (t *HTTP) do(ctx context.Context, r Request, full string) (*http.Response, io.Reader, error) {
	reqID := uuid.New().String()
	start := time.Now()

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, nil, err
		}
	}

	timeout := t.cfg.Timeout
	if r.Timeout > 0 {
		timeout = r.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)

	var payload io.Reader
	if len(r.Form) > 0 {
		payload = strings.NewReader(r.Form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, full, payload)
	if err != nil {
		cancel()
		t.logger.Error("casda.http.build_request_error", "req_id", reqID, "error", err)
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("User-Agent", t.cfg.UserAgent)
	if r.Authenticated && t.cfg.Credentials != nil {
		req.SetBasicAuth(t.cfg.Credentials.User, t.cfg.Credentials.Password)
	}

	t.logger.Info("casda.http.request",
		"req_id", reqID,
		"method", r.Method,
		"url", full,
		"authenticated", r.Authenticated,
	)

	resp, err := t.client.Do(req)
	if err != nil {
		cancel()
		t.logger.Error("casda.http.send_error", "req_id", reqID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, nil, err
	}
	t.logger.Info("casda.http.response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"final_url", resp.Request.URL.String(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, resp.Body, nil
}

func (t *HTTP) cached(key string) (*Response, bool) {
	return t.cache.Get(key)
}

func (t *HTTP) store(key string, resp *Response) {
	if evicted := t.cache.Add(key, resp); evicted {
		t.logger.Debug("casda.http.cache_evict", "size", t.cfg.CacheSize)
	}
}

// ClearCache drops every cached GET response.
func (t *HTTP) ClearCache() {
	t.cache.Purge()
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func closeBody(body io.ReadCloser, logger *slog.Logger) {
	if err := body.Close(); err != nil {
		logger.Warn("casda.http.response_body_close_error", "error", err)
	}
}
