/*
Copyright 2025 The Edgeplane Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package cloudflare is a hand written JSON-over-HTTP client for the edge
// platform's v4-style API, plus the per-kind drivers built on it. Every
// response is wrapped in the platform's result envelope; this package decodes
// the envelope once and surfaces failures as provider.APIError so the
// reconciler can classify them without knowing the wire format.
package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/crossplane/crossplane-runtime/pkg/errors"
	"github.com/crossplane/crossplane-runtime/pkg/logging"

	"github.com/edgeplane/edgeplane/internal/provider"
)

const (
	defaultTimeout = 30 * time.Second
	defaultQPS     = 4

	maxResponseBody = 1 << 20
)

// Error strings.
const (
	errRateLimit = "cannot wait for rate limiter"
	errEncode    = "cannot encode request body"
	errRequest   = "cannot build request"
	errDo        = "cannot call platform API"
	errDecode    = "cannot decode platform response"
)

type envelope struct {
	Success bool            `json:"success"`
	Errors  []envelopeError `json:"errors,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

type envelopeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// A Client calls the platform API for one account.
type Client struct {
	base    string
	token   string
	account string

	http    *http.Client
	limiter *rate.Limiter
	log     logging.Logger
}

// A ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient configures the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// WithRateLimit configures the client side request rate limit.
func WithRateLimit(qps float64) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(qps), 1)
	}
}

// WithLogger configures how the client logs requests.
func WithLogger(log logging.Logger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

// NewClient returns a client for the account at the supplied API base URL.
func NewClient(baseURL, token, account string, o ...ClientOption) *Client {
	c := &Client{
		base:    strings.TrimSuffix(baseURL, "/"),
		token:   token,
		account: account,
		http:    &http.Client{Timeout: defaultTimeout},
		limiter: rate.NewLimiter(rate.Limit(defaultQPS), 1),
		log:     logging.NewNopLogger(),
	}
	for _, fn := range o {
		fn(c)
	}
	return c
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) put(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPut, path, body, out)
}

func (c *Client) delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, errRateLimit)
	}

	var buf io.Reader
	if body != nil {
		j, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, errEncode)
		}
		buf = bytes.NewReader(j)
	}

	url := c.base + "/accounts/" + c.account + path
	req, err := http.NewRequestWithContext(ctx, method, url, buf)
	if err != nil {
		return errors.Wrap(err, errRequest)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.log.Debug("Calling platform API", "method", method, "path", path)

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, errDo)
	}
	defer resp.Body.Close() //nolint:errcheck // Nothing to do about it.

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return errors.Wrap(err, errDo)
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			if resp.StatusCode >= 400 {
				return &provider.APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
			}
			return errors.Wrap(err, errDecode)
		}
	}

	if resp.StatusCode >= 400 || (len(raw) > 0 && !env.Success) {
		return apiError(resp.StatusCode, env)
	}

	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return errors.Wrap(err, errDecode)
		}
	}
	return nil
}

// apiError maps an envelope failure to a provider.APIError. Some platform
// endpoints signal a name collision with HTTP 200 and an "already exists"
// error message; those are normalised to 409 so adoption kicks in.
func apiError(statusCode int, env envelope) error {
	apiErr := &provider.APIError{StatusCode: statusCode, Message: http.StatusText(statusCode)}
	if len(env.Errors) > 0 {
		apiErr.Code = env.Errors[0].Code
		apiErr.Message = env.Errors[0].Message
	}
	if statusCode < 400 {
		apiErr.StatusCode = http.StatusBadRequest
	}
	if strings.Contains(strings.ToLower(apiErr.Message), "already exists") {
		apiErr.StatusCode = http.StatusConflict
	}
	return apiErr
}
