// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package http provides the JSON client shared by the geolocation and places providers.
package http

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/wneessen/waybar-locshare/internal/logger"
)

const (
	// DefaultTimeout is the default timeout of a single request
	DefaultTimeout = time.Second * 10

	maxBodySize = 4 << 20
)

var (
	// version is set at build time
	version = "dev"
	// UserAgent identifies the application, some public APIs (e.g. Nominatim) require it
	UserAgent = fmt.Sprintf("Mozilla/5.0 (%s; %s) waybar-locshare/%s (+https://github.com/wneessen/waybar-locshare/)",
		runtime.GOOS,
		runtime.GOARCH,
		version,
	)

	ErrNonPointerTarget = errors.New("target must be a non-nil pointer")
	ErrUnexpectedStatus = errors.New("unexpected HTTP status code")
)

// StatusError is returned for responses with a status code of 400 or above.
type StatusError struct {
	Code int
	// RetryAfter is the delay requested by the server, if any
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: %d (retry after %s)", ErrUnexpectedStatus, e.Code, e.RetryAfter)
	}
	return fmt.Sprintf("%s: %d", ErrUnexpectedStatus, e.Code)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrUnexpectedStatus
}

// Client wraps the stdlib http.Client. Requests to the same host are spaced by at least the
// configured minimum interval.
type Client struct {
	*http.Client
	logger      *logger.Logger
	minInterval time.Duration

	mu   sync.Mutex
	next map[string]time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithMinInterval spaces consecutive requests to the same host by at least d.
func WithMinInterval(d time.Duration) Option {
	return func(c *Client) {
		c.minInterval = d
	}
}

// New returns a new HTTP client
func New(logger *logger.Logger, opts ...Option) *Client {
	httpClient := &http.Client{
		Timeout: DefaultTimeout,
		Transport: &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		},
	}
	client := &Client{
		Client: httpClient,
		logger: logger,
		next:   make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Get performs a HTTP GET request for the given URL and JSON-decodes the response into target
func (h *Client) Get(ctx context.Context, endpoint string, target any, query url.Values, headers map[string]string) (int, error) {
	return h.GetWithTimeout(ctx, endpoint, target, query, headers, DefaultTimeout)
}

// GetWithTimeout is Get with a custom timeout
func (h *Client) GetWithTimeout(ctx context.Context, endpoint string, target any, query url.Values, headers map[string]string, timeout time.Duration) (int, error) {
	reqURL, err := url.Parse(endpoint)
	if err != nil {
		return 0, fmt.Errorf("failed to parse URL: %w", err)
	}
	if len(query) > 0 {
		reqURL.RawQuery = query.Encode()
	}
	return h.doJSON(ctx, http.MethodGet, reqURL, target, nil, headers, timeout)
}

// Post performs a HTTP POST request for the given URL and JSON-decodes the response into target
func (h *Client) Post(ctx context.Context, endpoint string, target any, body io.Reader, headers map[string]string) (int, error) {
	return h.PostWithTimeout(ctx, endpoint, target, body, headers, DefaultTimeout)
}

// PostWithTimeout is Post with a custom timeout
func (h *Client) PostWithTimeout(ctx context.Context, endpoint string, target any, body io.Reader, headers map[string]string, timeout time.Duration) (int, error) {
	reqURL, err := url.Parse(endpoint)
	if err != nil {
		return 0, fmt.Errorf("failed to parse URL: %w", err)
	}
	return h.doJSON(ctx, http.MethodPost, reqURL, target, body, headers, timeout)
}

// doJSON executes the request and decodes a successful JSON response into target. Responses with
// a status code of 400 or above are not decoded and return a *StatusError.
func (h *Client) doJSON(ctx context.Context, method string, reqURL *url.URL, target any, body io.Reader,
	headers map[string]string, timeout time.Duration,
) (int, error) {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return 0, ErrNonPointerTarget
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := h.wait(ctx, reqURL.Host); err != nil {
		return 0, err
	}

	request, err := http.NewRequestWithContext(ctx, method, reqURL.String(), body)
	if err != nil {
		return 0, fmt.Errorf("failed create new HTTP request with context: %w", err)
	}
	request.Header.Set("User-Agent", UserAgent)
	request.Header.Set("Accept", "application/json")
	for k, v := range headers {
		request.Header.Set(k, v)
	}

	response, err := h.Do(request)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return 0, err
		}
		return 0, fmt.Errorf("failed to perform HTTP request: %w", err)
	}
	if response == nil {
		return 0, errors.New("nil response received")
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			h.logger.Error("failed to close HTTP response body", logger.Err(err))
		}
	}(response.Body)

	if response.StatusCode >= http.StatusBadRequest {
		return response.StatusCode, &StatusError{
			Code:       response.StatusCode,
			RetryAfter: retryAfter(response.Header.Get("Retry-After")),
		}
	}
	if err = json.NewDecoder(io.LimitReader(response.Body, maxBodySize)).Decode(target); err != nil {
		return response.StatusCode, fmt.Errorf("failed to decode JSON: %w", err)
	}

	return response.StatusCode, nil
}

// wait blocks until the next request to host may be sent and reserves that slot.
func (h *Client) wait(ctx context.Context, host string) error {
	if h.minInterval <= 0 {
		return nil
	}

	h.mu.Lock()
	now := time.Now()
	slot := h.next[host]
	if slot.Before(now) {
		slot = now
	}
	h.next[host] = slot.Add(h.minInterval)
	h.mu.Unlock()

	delay := slot.Sub(now)
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryAfter parses a Retry-After header given in seconds. HTTP dates are not supported.
func retryAfter(value string) time.Duration {
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
