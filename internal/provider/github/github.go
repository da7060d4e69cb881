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

// Package github is a minimal client for the code hosting releases API. The
// ReleaseDeploy orchestrator uses it as the source of truth for what to
// deploy; nothing else in edgeplane talks to it.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/crossplane/crossplane-runtime/pkg/errors"

	"github.com/edgeplane/edgeplane/internal/provider"
)

const (
	defaultBaseURL = "https://api.github.com"
	defaultTimeout = 30 * time.Second

	maxResponseBody = 1 << 20
)

// Error strings.
const (
	errRequest = "cannot build request"
	errDo      = "cannot call releases API"
	errDecode  = "cannot decode release"
)

// A Release is a published release of a repository.
type Release struct {
	ID      int64   `json:"id"`
	TagName string  `json:"tag_name"`
	Name    string  `json:"name"`
	Assets  []Asset `json:"assets"`
}

// An Asset is a downloadable artifact attached to a release.
type Asset struct {
	Name        string `json:"name"`
	DownloadURL string `json:"browser_download_url"`
}

// A Client fetches release metadata.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// An Option configures the client.
type Option func(*Client)

// WithBaseURL points the client at a different API host.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.base = strings.TrimSuffix(url, "/")
	}
}

// WithHTTPClient configures the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// NewClient returns a releases client. An empty token makes unauthenticated
// requests, which is fine for public repositories.
func NewClient(token string, o ...Option) *Client {
	c := &Client{
		base:  defaultBaseURL,
		token: token,
		http:  &http.Client{Timeout: defaultTimeout},
	}
	for _, fn := range o {
		fn(c)
	}
	return c
}

// Release returns the release of the repository at the supplied tag, or the
// latest release when the tag is empty.
func (c *Client) Release(ctx context.Context, owner, repo, tag string) (*Release, error) {
	path := fmt.Sprintf("%s/repos/%s/%s/releases/latest", c.base, owner, repo)
	if tag != "" {
		path = fmt.Sprintf("%s/repos/%s/%s/releases/tags/%s", c.base, owner, repo, tag)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, errors.Wrap(err, errRequest)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errDo)
	}
	defer resp.Body.Close() //nolint:errcheck // Nothing to do about it.

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, errors.Wrap(err, errDo)
	}

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(raw, &body)
		return nil, &provider.APIError{StatusCode: resp.StatusCode, Message: body.Message}
	}

	var rel Release
	if err := json.Unmarshal(raw, &rel); err != nil {
		return nil, errors.Wrap(err, errDecode)
	}
	return &rel, nil
}
