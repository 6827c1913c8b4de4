// Package graphql is a minimal client for a single GraphQL endpoint.
//
// Every request is a POST with either a JSON body or a multipart upload body.
// All failures are returned as one of NetworkError, HTTPError or
// ResponseError so callers can classify them uniformly.
package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/block/storefront/internal/log"
	"github.com/block/storefront/internal/observability"
	"github.com/block/storefront/internal/session"
)

const (
	CSRFHeader      = "X-CSRFToken"
	RequestIDHeader = "X-Request-ID"

	DefaultTimeout = 30 * time.Second
	DefaultRetries = 2
)

// Executor runs operations against the API. *Client implements it.
type Executor interface {
	Query(ctx context.Context, query string, vars Variables) (json.RawMessage, error)
	Mutate(ctx context.Context, query string, vars Variables) (json.RawMessage, error)
	MutateMultipart(ctx context.Context, query string, vars Variables) (json.RawMessage, error)
}

var _ Executor = (*Client)(nil)

// Client sends operations to the session's endpoint.
type Client struct {
	session *session.Session
	http    *http.Client
	timeout time.Duration
	retries int
	backoff backoff.Backoff
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPTransport replaces the underlying round tripper. It is still
// wrapped for tracing.
func WithHTTPTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.http.Transport = otelhttp.NewTransport(rt) }
}

// WithTimeout bounds every individual request.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithRetries sets how many times a query is retried after a network error or
// 5xx response. Mutations are never retried.
func WithRetries(retries int, policy backoff.Backoff) Option {
	return func(c *Client) {
		c.retries = max(retries, 0)
		c.backoff = policy
	}
}

// New creates a client for the given session.
func New(sess *session.Session, options ...Option) *Client {
	c := &Client{
		session: sess,
		http: &http.Client{
			Jar:       sess.Jar(),
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		timeout: DefaultTimeout,
		retries: DefaultRetries,
		backoff: backoff.Backoff{Min: 200 * time.Millisecond, Max: 2 * time.Second, Factor: 2, Jitter: true},
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Query executes a read operation, retrying transient failures.
func (c *Client) Query(ctx context.Context, query string, vars Variables) (json.RawMessage, error) {
	op := NewOperation(query, vars)
	body, err := json.Marshal(op)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", op.Name(), err)
	}
	logger := log.FromContext(ctx).Scope("graphql")
	retry := c.backoff
	for attempt := 0; ; attempt++ {
		data, err := c.roundTrip(ctx, "query", op.Name(), "application/json", bytes.NewReader(body))
		if err == nil || attempt >= c.retries || !isTransient(err) {
			return data, err
		}
		delay := retry.Duration()
		logger.Warnf("%s failed (attempt %d/%d), retrying in %s: %s", op.Name(), attempt+1, c.retries+1, delay, err)
		observability.GraphQL.Retry(ctx, op.Name())
		select {
		case <-ctx.Done():
			return nil, &NetworkError{Err: ctx.Err()}
		case <-time.After(delay):
		}
	}
}

// Mutate executes a write operation exactly once.
func (c *Client) Mutate(ctx context.Context, query string, vars Variables) (json.RawMessage, error) {
	op := NewOperation(query, vars)
	body, err := json.Marshal(op)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", op.Name(), err)
	}
	return c.roundTrip(ctx, "mutation", op.Name(), "application/json", bytes.NewReader(body))
}

// MutateMultipart executes a write operation whose variables carry files.
// Callers choose it statically when their variables include a File.
func (c *Client) MutateMultipart(ctx context.Context, query string, vars Variables) (json.RawMessage, error) {
	op := NewOperation(query, vars)
	encoded, err := EncodeMultipart(op)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", op.Name(), err)
	}
	return c.roundTrip(ctx, "mutation", op.Name(), encoded.ContentType, encoded.Body)
}

func (c *Client) roundTrip(ctx context.Context, kind, name, contentType string, body io.Reader) (data json.RawMessage, err error) {
	requestID := uuid.NewString()
	logger := log.FromContext(ctx).Scope("graphql").Attrs(map[string]string{"request": requestID})
	start := time.Now()
	ctx, endSpan := observability.StartOperation(ctx, kind, name)
	defer func() {
		endSpan(err)
		observability.GraphQL.Request(ctx, kind, name, start, errorKind(err))
		if err != nil {
			logger.Debugf("%s %s failed after %s: %s", kind, name, time.Since(start), err)
		} else {
			logger.Debugf("%s %s completed in %s", kind, name, time.Since(start))
		}
	}()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.session.Endpoint().String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)
	if token, ok := c.session.CSRFToken(); ok {
		req.Header.Set(CSRFHeader, token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck
	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Err: fmt.Errorf("failed to read response: %w", err)}
	}
	return decodeResponse(resp.StatusCode, text)
}

func isTransient(err error) bool {
	if netErr := (*NetworkError)(nil); errors.As(err, &netErr) {
		return !errors.Is(err, context.Canceled)
	}
	if httpErr := (*HTTPError)(nil); errors.As(err, &httpErr) {
		return httpErr.Status >= 500
	}
	return false
}

func errorKind(err error) string {
	var (
		netErr  *NetworkError
		httpErr *HTTPError
		respErr *ResponseError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &netErr):
		return "network"
	case errors.As(err, &httpErr):
		return "http"
	case errors.As(err, &respErr):
		return "graphql"
	default:
		return "unknown"
	}
}

// QueryInto runs a query and decodes its data into T.
func QueryInto[T any](ctx context.Context, e Executor, query string, vars Variables) (T, error) {
	return decodeInto[T](e.Query(ctx, query, vars))
}

// MutateInto runs a mutation and decodes its data into T.
func MutateInto[T any](ctx context.Context, e Executor, query string, vars Variables) (T, error) {
	return decodeInto[T](e.Mutate(ctx, query, vars))
}

// MutateMultipartInto runs a file upload mutation and decodes its data into T.
func MutateMultipartInto[T any](ctx context.Context, e Executor, query string, vars Variables) (T, error) {
	return decodeInto[T](e.MutateMultipart(ctx, query, vars))
}

func decodeInto[T any](data json.RawMessage, err error) (T, error) {
	var out T
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return out, nil
}
