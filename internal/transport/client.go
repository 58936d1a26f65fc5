// Package transport is the single HTTP client every backend call goes
// through. It attaches the session token to each request and tears the
// session down when the backend reports an authorization failure.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/vetclinic-booking/internal/config"
	"github.com/wolfman30/vetclinic-booking/internal/observability/metrics"
	"github.com/wolfman30/vetclinic-booking/internal/session"
	"github.com/wolfman30/vetclinic-booking/pkg/logging"
)

const defaultTimeout = 15 * time.Second

// SessionStore is the part of session.Store the transport needs.
type SessionStore interface {
	Token() string
	Expired() bool
	Invalidate(ctx context.Context, reason session.Reason) error
}

// Config configures a Client.
type Config struct {
	BaseURL             string
	Timeout             time.Duration
	DeactivationPhrases []string
	HTTPClient          *http.Client
	Metrics             *metrics.ClientMetrics
	Tracer              trace.Tracer
}

// Client sends JSON requests to the clinic backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      SessionStore
	matcher    DeactivationMatcher
	logger     *logging.Logger
	metrics    *metrics.ClientMetrics
	tracer     trace.Tracer
}

// New constructs a transport client bound to store.
func New(cfg Config, store SessionStore, logger *logging.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("transport: base url is required")
	}
	if store == nil {
		return nil, errors.New("transport: session store is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	phrases := cfg.DeactivationPhrases
	if len(phrases) == 0 {
		phrases = config.DefaultDeactivationPhrases
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer("vetclinic.internal.transport")
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		httpClient: httpClient,
		store:      store,
		matcher:    NewDeactivationMatcher(phrases),
		logger:     logger,
		metrics:    cfg.Metrics,
		tracer:     tracer,
	}, nil
}

// Request describes one backend call. Route is the path template used for
// metrics and spans; Path is the concrete path.
type Request struct {
	Method string
	Route  string
	Path   string
	Query  url.Values
	Body   any
}

// Do sends req and decodes a 2xx JSON body into out (when out is non-nil).
// Non-2xx responses are returned as *APIError after the session hook ran.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	route := req.Route
	if route == "" {
		route = req.Path
	}
	ctx, span := c.tracer.Start(ctx, "transport."+strings.ToLower(req.Method))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", req.Method),
		attribute.String("http.route", route),
	)

	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if err := c.attachToken(ctx, httpReq); err != nil {
		span.RecordError(err)
		return err
	}

	started := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.ObserveRequest(req.Method, route, "error", time.Since(started).Seconds())
		span.RecordError(err)
		return fmt.Errorf("transport: %s %s: %w", req.Method, req.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	c.metrics.ObserveRequest(req.Method, route, strconv.Itoa(resp.StatusCode), time.Since(started).Seconds())
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("transport: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{
			Method:  req.Method,
			Path:    req.Path,
			Status:  resp.StatusCode,
			Message: extractMessage(body),
			Body:    truncate(string(body), maxBodyInError),
		}
		c.onResponseError(ctx, apiErr)
		span.RecordError(apiErr)
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		span.RecordError(err)
		return fmt.Errorf("transport: decode %s response: %w", route, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	endpoint := c.baseURL + req.Path
	if len(req.Query) > 0 {
		endpoint += "?" + req.Query.Encode()
	}

	var bodyReader io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("transport: marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, endpoint, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("transport: build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", uuid.NewString())
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	return httpReq, nil
}

// attachToken sets the bearer credential whenever a token is held. A token
// already past its exp claim is not sent; the session is cleared instead.
func (c *Client) attachToken(ctx context.Context, httpReq *http.Request) error {
	token := c.store.Token()
	if token == "" {
		return nil
	}
	if c.store.Expired() {
		c.invalidate(ctx, session.ReasonExpired, httpReq.URL.Path, 0)
		return ErrSessionExpired
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// onResponseError applies the fail-closed session policy: deactivation or
// 401/403 clears the session, and the original error is always propagated.
func (c *Client) onResponseError(ctx context.Context, apiErr *APIError) {
	switch {
	case c.matcher.Matches(apiErr.Message):
		apiErr.Deactivated = true
		c.invalidate(ctx, session.ReasonDeactivated, apiErr.Path, apiErr.Status)
	case IsAuthStatus(apiErr.Status):
		c.invalidate(ctx, session.ReasonUnauthorized, apiErr.Path, apiErr.Status)
	default:
		c.logger.Warn("vetclinic API non-2xx response",
			"status", apiErr.Status,
			"path", apiErr.Path,
			"body", apiErr.Body,
		)
	}
}

func (c *Client) invalidate(ctx context.Context, reason session.Reason, path string, status int) {
	// a rejected anonymous call has no session to tear down
	if c.store.Token() != "" {
		c.logger.Warn("invalidating session", "reason", string(reason), "path", path, "status", status)
		c.metrics.ObserveInvalidation(string(reason))
	}
	// the caller's context may already be cancelled; the clear must still run
	if err := c.store.Invalidate(context.WithoutCancel(ctx), reason); err != nil {
		c.logger.Error("session invalidation incomplete", "reason", string(reason), "error", err)
	}
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
