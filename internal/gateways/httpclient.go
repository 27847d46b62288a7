package gateways

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"passpay/internal/observability/tracing"
)

const maxBodyBytes = 1 << 20

type HTTPOptions struct {
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerSecond float64
	Backoff           time.Duration
}

func (o HTTPOptions) withDefaults() HTTPOptions {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.Backoff <= 0 {
		o.Backoff = 250 * time.Millisecond
	}
	return o
}

// Response is a fully read operator response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// HTTPClient performs operator calls with a per-attempt timeout, a small retry
// budget for transport errors and 5xx, and a request rate limit.
type HTTPClient struct {
	operator string
	client   *http.Client
	limiter  *rate.Limiter
	opts     HTTPOptions
	log      *zap.Logger
}

func NewHTTPClient(operator string, opts HTTPOptions, log *zap.Logger) *HTTPClient {
	opts = opts.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	return &HTTPClient{
		operator: operator,
		client:   tracing.WrapHTTPClient(&http.Client{Timeout: opts.Timeout}, operator),
		limiter:  rate.NewLimiter(limit, 1+int(opts.RequestsPerSecond)),
		opts:     opts,
		log:      log,
	}
}

// RequestBuilder creates a fresh request per attempt so bodies can be resent.
type RequestBuilder func(ctx context.Context) (*http.Request, error)

// Do returns the response for any status below 500. Transport errors and 5xx
// are retried and finally reported as a transient Failure.
func (c *HTTPClient) Do(ctx context.Context, operation string, build RequestBuilder) (*Response, error) {
	var lastErr error
	var lastStatus int
	var lastBody []byte
	sent := false

	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				f := c.failure(operation, "context done", 0, true, ctx.Err())
				f.Sent = sent
				return nil, f
			case <-time.After(c.opts.Backoff * time.Duration(attempt)):
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			f := c.failure(operation, "rate limiter", 0, true, err)
			f.Sent = sent
			return nil, f
		}

		req, err := build(ctx)
		if err != nil {
			return nil, c.failure(operation, "build request", 0, false, err)
		}
		sent = true
		resp, err := c.client.Do(req)
		if err != nil {
			lastErr, lastStatus, lastBody = err, 0, nil
			c.log.Warn("gateway call failed",
				zap.String("operation", operation),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			continue
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		_ = resp.Body.Close()
		if err != nil {
			lastErr, lastStatus, lastBody = err, resp.StatusCode, nil
			continue
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			lastErr, lastStatus, lastBody = fmt.Errorf("http %d", resp.StatusCode), resp.StatusCode, body
			c.log.Warn("gateway returned server error",
				zap.String("operation", operation),
				zap.Int("attempt", attempt+1),
				zap.Int("status", resp.StatusCode))
			continue
		}
		return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
	}

	f := c.failure(operation, "gateway unavailable", lastStatus, true, lastErr)
	f.Sent = sent
	if json.Valid(lastBody) {
		f.Raw = lastBody
	}
	return nil, f
}

// DecodeJSON unmarshals a response body, reporting malformed payloads as a transient Failure.
func (c *HTTPClient) DecodeJSON(operation string, resp *Response, out any) error {
	if err := json.Unmarshal(resp.Body, out); err != nil {
		f := c.failure(operation, "malformed response", resp.StatusCode, true, err)
		f.Sent = true
		return f
	}
	return nil
}

func (c *HTTPClient) Failure(operation, reason string, status int, transient bool, raw []byte) *Failure {
	f := c.failure(operation, reason, status, transient, nil)
	if json.Valid(raw) {
		f.Raw = raw
	}
	return f
}

func (c *HTTPClient) failure(operation, reason string, status int, transient bool, err error) *Failure {
	if err != nil && reason != "" {
		reason = reason + ": " + err.Error()
	}
	return &Failure{
		Operator:   c.operator,
		Operation:  operation,
		Reason:     reason,
		StatusCode: status,
		Transient:  transient,
		Err:        err,
	}
}
