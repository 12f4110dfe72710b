// Package fabric is the resilient client for the Fabric ontology REST API.
// Every request flows through one pipeline: bearer token, rate-limit permit,
// circuit breaker, HTTP, response classification, retry with backoff.
package fabric

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/ontoforge/ontoforge/pkg/bundle"
	"github.com/ontoforge/ontoforge/pkg/model"
)

// DefaultBaseURL is the public Fabric API host.
const DefaultBaseURL = "https://api.fabric.microsoft.com/v1"

// Retry budgets and timeouts.
const (
	maxAttempts           = 5
	maxDefinitionAttempts = 15 // getDefinition may race an in-flight LRO
	maxBackoff            = 60 * time.Second

	defaultRequestTimeout = 30 * time.Second
	defaultWriteTimeout   = 60 * time.Second
)

// maxDisplayNameLength is the service cap on ontology display names.
const maxDisplayNameLength = 90

// Config tunes the client. WorkspaceID is required.
type Config struct {
	BaseURL     string
	WorkspaceID string
	Credentials Credentials

	// Rate limiting; zero values take the 10/minute default.
	RateRequests int
	RatePer      time.Duration
	RateBurst    int

	// Circuit breaker thresholds; zero values take defaults.
	FailureThreshold int
	SuccessThreshold int
	RecoveryTimeout  time.Duration

	// RequestTimeout bounds reads (default 30s); WriteTimeout bounds
	// create/update calls (default 60s).
	RequestTimeout time.Duration
	WriteTimeout   time.Duration
}

// Item is an ontology item as the service lists it.
type Item struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type,omitempty"`
	WorkspaceID string `json:"workspaceId,omitempty"`
}

// Client talks to the Fabric ontology API. Safe for concurrent use; the
// token cache, rate limiter, and breaker are shared across callers.
type Client struct {
	cfg     Config
	http    *http.Client
	tokens  TokenProvider
	limiter *RateLimiter
	breaker *CircuitBreaker
	log     *slog.Logger
	tracer  trace.Tracer
	sleep   func(ctx context.Context, d time.Duration) error
}

// Option customizes a client.
type Option func(*Client)

// WithHTTPClient swaps the transport, for tests and instrumentation.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTokenProvider bypasses the credential chain.
func WithTokenProvider(p TokenProvider) Option {
	return func(c *Client) { c.tokens = p }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithSleep replaces the backoff/poll sleeper, for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = fn }
}

// NewClient builds a client. Credentials resolve through the chain unless a
// token provider option is given.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.WorkspaceID == "" {
		return nil, fmt.Errorf("fabric: workspace id is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}

	c := &Client{
		cfg:     cfg,
		http:    &http.Client{},
		limiter: NewRateLimiter(cfg.RateRequests, cfg.RatePer, cfg.RateBurst),
		breaker: NewCircuitBreaker(cfg.FailureThreshold, cfg.SuccessThreshold, cfg.RecoveryTimeout),
		log:     slog.Default(),
		tracer:  otel.Tracer("ontoforge/fabric"),
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tokens == nil {
		tokens, err := NewTokenProvider(cfg.Credentials)
		if err != nil {
			return nil, err
		}
		c.tokens = tokens
	}
	return c, nil
}

// Breaker exposes the circuit breaker, mainly for reset and health probes.
func (c *Client) Breaker() *CircuitBreaker { return c.breaker }

// LimiterStats exposes rate limiter counters.
func (c *Client) LimiterStats() RateLimiterStats { return c.limiter.Stats() }

func (c *Client) ontologiesURL() string {
	return fmt.Sprintf("%s/workspaces/%s/ontologies", c.cfg.BaseURL, url.PathEscape(c.cfg.WorkspaceID))
}

func (c *Client) ontologyURL(id string) string {
	return c.ontologiesURL() + "/" + url.PathEscape(id)
}

// SanitizeDisplayName conforms a name to the service pattern
// ^[A-Za-z][A-Za-z0-9_]{0,89}$.
func SanitizeDisplayName(name string) string {
	return model.SanitizeWithLimit(name, maxDisplayNameLength)
}

// List returns every ontology in the workspace, following continuation
// tokens.
func (c *Client) List(ctx context.Context) ([]Item, error) {
	ctx, span := c.tracer.Start(ctx, "fabric.List")
	defer span.End()

	var items []Item
	next := c.ontologiesURL()
	for next != "" {
		_, body, err := c.do(ctx, http.MethodGet, next, nil, c.cfg.RequestTimeout, maxAttempts)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		var page struct {
			Value             []Item `json:"value"`
			ContinuationToken string `json:"continuationToken"`
			ContinuationURI   string `json:"continuationUri"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("decode ontology list: %w", err)
		}
		items = append(items, page.Value...)

		switch {
		case page.ContinuationURI != "":
			next = page.ContinuationURI
		case page.ContinuationToken != "":
			next = c.ontologiesURL() + "?continuationToken=" + url.QueryEscape(page.ContinuationToken)
		default:
			next = ""
		}
	}
	return items, nil
}

// Get fetches one ontology by ID.
func (c *Client) Get(ctx context.Context, id string) (*Item, error) {
	ctx, span := c.tracer.Start(ctx, "fabric.Get")
	defer span.End()

	_, body, err := c.do(ctx, http.MethodGet, c.ontologyURL(id), nil, c.cfg.RequestTimeout, maxAttempts)
	if err != nil {
		span.RecordError(err)
		return nil, wrapNotFound(err, id)
	}
	var item Item
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, fmt.Errorf("decode ontology: %w", err)
	}
	return &item, nil
}

// GetDefinition fetches the definition bundle of an ontology. The wider
// retry budget absorbs races with an in-flight update LRO.
func (c *Client) GetDefinition(ctx context.Context, id string) (*bundle.Definition, error) {
	ctx, span := c.tracer.Start(ctx, "fabric.GetDefinition")
	defer span.End()

	resp, body, err := c.do(ctx, http.MethodPost, c.ontologyURL(id)+"/getDefinition", nil,
		c.cfg.RequestTimeout, maxDefinitionAttempts)
	if err != nil {
		span.RecordError(err)
		return nil, wrapNotFound(err, id)
	}
	if resp.StatusCode == http.StatusAccepted {
		body, err = c.awaitOperation(ctx, resp)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
	}
	var payload struct {
		Definition bundle.Definition `json:"definition"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode definition: %w", err)
	}
	return &payload.Definition, nil
}

// Create uploads a new ontology and returns the created item.
func (c *Client) Create(ctx context.Context, displayName, description string, def *bundle.Definition) (*Item, error) {
	ctx, span := c.tracer.Start(ctx, "fabric.Create")
	defer span.End()

	displayName = SanitizeDisplayName(displayName)
	reqBody, err := json.Marshal(map[string]interface{}{
		"displayName": displayName,
		"description": description,
		"definition":  def,
	})
	if err != nil {
		return nil, err
	}

	resp, body, err := c.do(ctx, http.MethodPost, c.ontologiesURL(), reqBody, c.cfg.WriteTimeout, maxAttempts)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if resp.StatusCode == http.StatusAccepted {
		body, err = c.awaitOperation(ctx, resp)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	var item Item
	if err := json.Unmarshal(body, &item); err == nil && item.ID != "" {
		return &item, nil
	}
	// Some LRO results omit the item body; resolve it by name.
	return c.FindByName(ctx, displayName)
}

// UpdateDefinition replaces the definition of an existing ontology. When
// updateMetadata is set, the bundle's .platform metadata is applied too.
func (c *Client) UpdateDefinition(ctx context.Context, id string, def *bundle.Definition, updateMetadata bool) error {
	ctx, span := c.tracer.Start(ctx, "fabric.UpdateDefinition")
	defer span.End()

	reqBody, err := json.Marshal(map[string]interface{}{"definition": def})
	if err != nil {
		return err
	}
	u := c.ontologyURL(id) + "/updateDefinition"
	if updateMetadata {
		u += "?updateMetadata=True"
	}

	resp, _, err := c.do(ctx, http.MethodPost, u, reqBody, c.cfg.WriteTimeout, maxAttempts)
	if err != nil {
		span.RecordError(err)
		return wrapNotFound(err, id)
	}
	if resp.StatusCode == http.StatusAccepted {
		if _, err := c.awaitOperation(ctx, resp); err != nil {
			span.RecordError(err)
			return err
		}
	}
	return nil
}

// UpdateMetadata patches display name and description.
func (c *Client) UpdateMetadata(ctx context.Context, id, displayName, description string) (*Item, error) {
	ctx, span := c.tracer.Start(ctx, "fabric.UpdateMetadata")
	defer span.End()

	reqBody, err := json.Marshal(map[string]string{
		"displayName": SanitizeDisplayName(displayName),
		"description": description,
	})
	if err != nil {
		return nil, err
	}
	_, body, err := c.do(ctx, http.MethodPatch, c.ontologyURL(id), reqBody, c.cfg.WriteTimeout, maxAttempts)
	if err != nil {
		span.RecordError(err)
		return nil, wrapNotFound(err, id)
	}
	var item Item
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, fmt.Errorf("decode ontology: %w", err)
	}
	return &item, nil
}

// Delete removes an ontology.
func (c *Client) Delete(ctx context.Context, id string) error {
	ctx, span := c.tracer.Start(ctx, "fabric.Delete")
	defer span.End()

	_, _, err := c.do(ctx, http.MethodDelete, c.ontologyURL(id), nil, c.cfg.RequestTimeout, maxAttempts)
	if err != nil {
		span.RecordError(err)
		return wrapNotFound(err, id)
	}
	return nil
}

// FindByName locates an ontology whose display name matches the sanitized
// input. Returns nil without error when nothing matches.
func (c *Client) FindByName(ctx context.Context, displayName string) (*Item, error) {
	want := SanitizeDisplayName(displayName)
	items, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].DisplayName == want {
			return &items[i], nil
		}
	}
	return nil, nil
}

// CreateOrUpdate upserts by display name: update the definition when the
// name already exists, create otherwise. A create racing another writer into
// ItemDisplayNameAlreadyInUse downgrades to update.
func (c *Client) CreateOrUpdate(ctx context.Context, displayName, description string, def *bundle.Definition, updateMetadata bool) (*Item, error) {
	ctx, span := c.tracer.Start(ctx, "fabric.CreateOrUpdate")
	defer span.End()

	existing, err := c.FindByName(ctx, displayName)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		item, err := c.Create(ctx, displayName, description, def)
		if err == nil {
			return item, nil
		}
		if !IsDisplayNameInUse(err) {
			span.RecordError(err)
			return nil, err
		}
		c.log.Info("display name already in use; switching to update", "displayName", displayName)
		if existing, err = c.FindByName(ctx, displayName); err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, fmt.Errorf("ontology %q reported in use but not listed", displayName)
		}
	}

	if err := c.UpdateDefinition(ctx, existing.ID, def, updateMetadata); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if updateMetadata && existing.Description != description {
		if _, err := c.UpdateMetadata(ctx, existing.ID, displayName, description); err != nil {
			return nil, err
		}
	}
	return existing, nil
}

// do runs the request pipeline with retries on transient classifications.
func (c *Client) do(ctx context.Context, method, rawURL string, body []byte, timeout time.Duration, attempts int) (*http.Response, []byte, error) {
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if attempt > 0 {
			if err := c.sleep(ctx, backoffFor(lastErr, attempt)); err != nil {
				return nil, nil, err
			}
			c.log.Debug("retrying request", "method", method, "url", rawURL, "attempt", attempt+1)
		}

		resp, respBody, err := c.once(ctx, method, rawURL, body, timeout)
		if err == nil {
			return resp, respBody, nil
		}
		lastErr = err
		if !IsTransient(err) {
			return nil, nil, err
		}
	}
	return nil, nil, lastErr
}

// once runs a single pass of the pipeline.
func (c *Client) once(ctx context.Context, method, rawURL string, body []byte, timeout time.Duration) (*http.Response, []byte, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, nil, err
	}
	if err := c.breaker.Allow(); err != nil {
		return nil, nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, reader)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		return nil, nil, err
	}
	respBody, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		c.breaker.RecordFailure()
		return nil, nil, err
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.breaker.RecordSuccess()
		return resp, respBody, nil
	}

	apiErr := classifyError(resp, respBody)
	if apiErr.Transient() {
		c.breaker.RecordFailure()
	} else {
		// The service answered; a permanent rejection is not an outage.
		c.breaker.RecordSuccess()
	}
	return nil, nil, apiErr
}

// authedGet is the bare fetch used by LRO polling: token and HTTP only, no
// limiter, breaker, or retry.
func (c *Client) authedGet(ctx context.Context, rawURL string) (*http.Response, []byte, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, nil, err
	}
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, err
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, nil, classifyError(resp, body)
	}
	return resp, body, nil
}

func classifyError(resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		RetryAfter: parseRetryAfter(resp.Header, 0),
	}

	var envelope struct {
		ErrorCode string `json:"errorCode"`
		Message   string `json:"message"`
		Error     struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		apiErr.ErrorCode = envelope.ErrorCode
		apiErr.Message = envelope.Message
		if apiErr.ErrorCode == "" {
			apiErr.ErrorCode = envelope.Error.Code
		}
		if apiErr.Message == "" {
			apiErr.Message = envelope.Error.Message
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// backoffFor derives the pre-retry wait: the server's Retry-After when
// present, else exponential backoff capped at 60s.
func backoffFor(err error, attempt int) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return apiErr.RetryAfter
	}
	backoff := time.Duration(math.Pow(2, float64(attempt))) * time.Second
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	return backoff
}

func wrapNotFound(err error, id string) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s: %v", ErrNotFound, id, err)
	}
	return err
}

// sleepCtx waits d or until the context ends, whichever comes first, so
// cancellation latency is independent of the backoff length.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
