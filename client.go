package tessera

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client is a resilient API client for the Tessera platform. Every call runs
// through the same pipeline: bearer attachment, dispatch, coordinated token
// refresh on authentication failure, classified retries with backoff, and
// error normalization. It is safe for concurrent use.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	userAgent     string
	timeout       time.Duration
	timeoutSet    bool
	retryAttempts int
	retryDelay    time.Duration
	maxRetryDelay time.Duration
	retryPolicy   RetryPolicy
	store         CredentialStore
	events        EventSink
	logger        Logger
	debug         *DebugConfig
	metrics       *MetricsCollector
	auth          *authenticator

	validationError error
}

// New constructs a Client using the provided functional options. A best
// effort validation is performed; call IsValid / ValidationError for errors.
func New(options ...Option) *Client {
	client := &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		userAgent:     "tessera-go/" + Version,
		retryAttempts: defaultRetryAttempts,
		retryDelay:    defaultRetryDelay,
		maxRetryDelay: defaultMaxRetryDelay,
		store:         NewMemoryStore(),
		events:        nopSink{},
		debug:         DefaultDebugConfig(),
	}

	for _, option := range options {
		option(client)
	}

	// Applied after all options so WithTimeout works regardless of its
	// position relative to WithHTTPClient.
	if client.timeoutSet && client.httpClient != nil {
		client.httpClient.Timeout = client.timeout
	}

	if client.retryPolicy == nil {
		client.retryPolicy = NewDefaultRetryPolicy(client.retryAttempts, client.retryDelay, client.maxRetryDelay)
	}

	client.auth = &authenticator{
		store:   client.store,
		events:  client.events,
		logger:  client.logger,
		debug:   client.debug,
		metrics: client.metrics,
		refresh: client.refreshSession,
	}

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	return client
}

// Request describes one outbound operation. Body, when non-nil, is JSON
// encoded. Retry overrides the client-wide retry settings for this call.
// SkipAuth marks calls that must neither carry a bearer token nor trigger
// refresh (login, OTP, and the refresh call itself).
type Request struct {
	Method   string
	Path     string
	Query    url.Values
	Body     interface{}
	Header   http.Header
	Retry    *RetryOverride
	SkipAuth bool

	// noErrorEvent marks pipeline-internal calls (the token refresh) whose
	// failures surface only through the refresh cycle's own broadcast.
	noErrorEvent bool
}

// RetryOverride adjusts retry behavior for a single call. Zero fields keep
// the client-wide value.
type RetryOverride struct {
	Attempts int
	Delay    time.Duration
}

// Response is a successful (2xx/3xx) API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the response body into out. Empty bodies decode to the
// zero value.
func (r *Response) Decode(out interface{}) error {
	if len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Call executes one operation through the full pipeline and returns the
// response or a normalized *APIError. No raw transport errors escape.
func (c *Client) Call(ctx context.Context, req Request) (*Response, error) {
	if c.validationError != nil {
		return nil, &APIError{
			Message: "Client is misconfigured.",
			Code:    "CONFIG_INVALID",
			cause:   c.validationError,
		}
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	endpoint := req.Path

	target, err := c.buildURL(req.Path, req.Query)
	if err != nil {
		return nil, &APIError{Message: "Invalid request.", Code: "INVALID_REQUEST", cause: err}
	}
	var payload []byte
	if req.Body != nil {
		payload, err = json.Marshal(req.Body)
		if err != nil {
			return nil, &APIError{Message: "Invalid request.", Code: "INVALID_REQUEST", cause: err}
		}
	}

	policy := c.retryPolicy
	if req.Retry != nil {
		attempts := req.Retry.Attempts
		if attempts <= 0 {
			attempts = c.retryAttempts
		}
		delay := req.Retry.Delay
		if delay <= 0 {
			delay = c.retryDelay
		}
		policy = NewDefaultRetryPolicy(attempts, delay, c.maxRetryDelay)
	}

	start := time.Now()
	var requestID string
	if c.debug != nil && c.debug.Enabled && c.debug.RequestIDGen != nil {
		requestID = c.debug.RequestIDGen()
	}
	if c.debug != nil && c.debug.Enabled && c.debug.LogRequests && c.logger != nil {
		c.logger.Debug("Starting request", "requestID", requestID, "method", method, "path", req.Path)
	}
	if c.metrics != nil {
		c.metrics.RecordRequestStart(method, endpoint)
		defer c.metrics.RecordRequestEnd(method, endpoint)
	}

	finish := func(statusCode int) {
		if c.metrics != nil {
			c.metrics.RecordRequest(method, endpoint, statusCode, time.Since(start))
		}
	}

	attempt := 1
	authRetried := false
	refreshedToken := ""
	for {
		resp, body, netErr := c.dispatch(ctx, method, target, payload, req, refreshedToken)

		if netErr == nil {
			if resp.StatusCode < http.StatusBadRequest {
				finish(resp.StatusCode)
				return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
			}

			apiErr := parseAPIError(resp.StatusCode, body)

			if isAuthFailure(resp.StatusCode, apiErr) && !req.SkipAuth {
				if authRetried {
					// Already refreshed once for this request: terminal.
					finish(resp.StatusCode)
					if resp.StatusCode >= http.StatusInternalServerError {
						apiErr = genericizeServerError(apiErr)
					}
					if c.metrics != nil {
						c.metrics.RecordError("auth", method, endpoint)
					}
					return nil, apiErr
				}
				authRetried = true
				creds, refreshErr := c.auth.refreshCredentials(ctx)
				if refreshErr != nil {
					finish(resp.StatusCode)
					if c.metrics != nil {
						c.metrics.RecordError("auth", method, endpoint)
					}
					return nil, normalizeError(refreshErr)
				}
				// Attach the pair the coordinator just returned rather than
				// re-reading the store: a failed Save must not send the retry
				// out with the stale token.
				if creds != nil {
					refreshedToken = creds.AccessToken
				}
				if c.debug != nil && c.debug.Enabled && c.debug.LogRefresh && c.logger != nil {
					c.logger.Debug("Retrying request with refreshed token", "requestID", requestID, "path", req.Path)
				}
				// Re-dispatch with the new token; this does not consume a
				// backoff attempt.
				continue
			}

			delay, retry := policy.ShouldRetry(resp, nil, attempt)
			if retry {
				if c.metrics != nil {
					c.metrics.RecordRetry(method, endpoint, attempt)
				}
				if c.debug != nil && c.debug.Enabled && c.debug.LogRetries && c.logger != nil {
					c.logger.Info("Scheduling retry", "requestID", requestID, "attempt", attempt+1, "backoff", delay, "status", resp.StatusCode)
				}
				if err := sleepContext(ctx, delay); err != nil {
					finish(0)
					return nil, &APIError{Message: "Request cancelled.", Code: "CANCELLED", cause: err}
				}
				attempt++
				continue
			}

			finish(resp.StatusCode)
			if resp.StatusCode >= http.StatusInternalServerError {
				apiErr = genericizeServerError(apiErr)
				if c.metrics != nil {
					c.metrics.RecordError("server", method, endpoint)
				}
			} else if c.metrics != nil {
				c.metrics.RecordError("client", method, endpoint)
			}
			if !req.noErrorEvent {
				c.events.APIError(apiErr)
			}
			return nil, apiErr
		}

		// No response was received.
		delay, retry := policy.ShouldRetry(nil, netErr, attempt)
		if retry {
			if c.metrics != nil {
				c.metrics.RecordRetry(method, endpoint, attempt)
			}
			if c.debug != nil && c.debug.Enabled && c.debug.LogRetries && c.logger != nil {
				c.logger.Info("Scheduling retry", "requestID", requestID, "attempt", attempt+1, "backoff", delay, "error", netErr.Error())
			}
			if err := sleepContext(ctx, delay); err != nil {
				finish(0)
				return nil, &APIError{Message: "Request cancelled.", Code: "CANCELLED", cause: err}
			}
			attempt++
			continue
		}

		finish(0)
		if c.metrics != nil {
			c.metrics.RecordError("network", method, endpoint)
		}
		cause := netErr
		if attempt > 1 {
			cause = fmt.Errorf("%w: %v", ErrRetriesExhausted, netErr)
		}
		apiErr := &APIError{
			Message: "Network error. Please check your connection and try again.",
			Code:    "NETWORK_ERROR",
			cause:   cause,
		}
		if !req.noErrorEvent {
			c.events.APIError(apiErr)
		}
		return nil, apiErr
	}
}

// dispatch performs a single attempt: build the request, attach the bearer
// token, send, and drain the body. A non-empty overrideToken takes precedence
// over the stored pair.
func (c *Client) dispatch(ctx context.Context, method, target string, payload []byte, req Request, overrideToken string) (*http.Response, []byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
	for key, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}
	if !req.SkipAuth {
		token := overrideToken
		if token == "" {
			token = c.auth.bearerToken(ctx)
		}
		if token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, nil, err
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, nil, err
	}
	return resp, body, nil
}

func (c *Client) buildURL(path string, query url.Values) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parse path: %w", err)
	}
	u := base.ResolveReference(ref)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

// Get performs a GET against the given API path.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Call(ctx, Request{Method: http.MethodGet, Path: path, Query: query})
}

// Post performs a POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Call(ctx, Request{Method: http.MethodPost, Path: path, Body: body})
}

// Put performs a PUT with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Call(ctx, Request{Method: http.MethodPut, Path: path, Body: body})
}

// Delete performs a DELETE against the given API path.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Call(ctx, Request{Method: http.MethodDelete, Path: path})
}

// GetTyped performs a GET and decodes the response body into out.
func (c *Client) GetTyped(ctx context.Context, path string, query url.Values, out interface{}) error {
	resp, err := c.Get(ctx, path, query)
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

// PostTyped performs a POST and decodes the response body into out.
func (c *Client) PostTyped(ctx context.Context, path string, body, out interface{}) error {
	resp, err := c.Post(ctx, path, body)
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

// refreshSession calls the remote refresh endpoint. It runs through the same
// pipeline for transport retries but is excluded from the refresh path
// itself, so a 401 here is terminal rather than recursive.
func (c *Client) refreshSession(ctx context.Context, refreshToken string) (*Credentials, error) {
	resp, err := c.Call(ctx, Request{
		Method:       http.MethodPost,
		Path:         refreshTokenPath,
		Body:         map[string]string{"refresh": refreshToken},
		SkipAuth:     true,
		noErrorEvent: true,
	})
	if err != nil {
		return nil, err
	}
	var out struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
	}
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	if out.Access == "" {
		return nil, errors.New("refresh response missing access token")
	}
	return NewCredentials(out.Access, out.Refresh), nil
}

// normalizeError guarantees the pipeline's error contract for errors raised
// outside the response path (refresh coordinator, cancellation).
func normalizeError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &APIError{Message: "Request cancelled.", Code: "CANCELLED", cause: err}
	}
	return &APIError{Message: "The request could not be completed.", cause: err}
}

// sleepContext pauses the calling goroutine without blocking other requests,
// returning early if ctx is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}
