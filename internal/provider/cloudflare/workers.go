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

package cloudflare

import (
	"context"
	"net/http"
	"strings"

	"github.com/crossplane/crossplane-runtime/pkg/errors"

	"github.com/edgeplane/edgeplane/internal/provider"
)

// WorkerIDKey is the status field that carries a script's platform
// identifier.
const WorkerIDKey = "script_id"

// Error strings.
const (
	errHealthRequest = "cannot build health probe request"
	errHealthDo      = "cannot probe endpoint"
)

type workerScript struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Endpoint string `json:"endpoint,omitempty"`
}

// A Workers driver provisions edge scripts. Scripts carry bindings to other
// platform objects and serve traffic on a hostname, so this driver also
// implements the binding and health capabilities.
type Workers struct {
	client *Client
	probe  *http.Client
}

// A WorkersOption configures the driver.
type WorkersOption func(*Workers)

// WithProbeClient configures the HTTP client used for health probes. Probes
// hit the script's public hostname, not the platform API.
func WithProbeClient(hc *http.Client) WorkersOption {
	return func(w *Workers) {
		w.probe = hc
	}
}

// NewWorkers returns a driver for edge scripts.
func NewWorkers(client *Client, o ...WorkersOption) *Workers {
	w := &Workers{
		client: client,
		probe:  &http.Client{Timeout: defaultTimeout},
	}
	for _, fn := range o {
		fn(w)
	}
	return w
}

var (
	_ provider.Driver        = &Workers{}
	_ provider.BindingClient = &Workers{}
	_ provider.HealthChecker = &Workers{}
)

// IDKey returns the status field that carries the script identifier.
func (w *Workers) IDKey() string { return WorkerIDKey }

// Create uploads a script under the supplied name. The script body and its
// initial bindings come from the instance spec.
func (w *Workers) Create(ctx context.Context, name string, spec map[string]any) (*provider.Creation, error) {
	body := map[string]any{
		"script":   spec["script"],
		"bindings": spec["bindings"],
	}

	var script workerScript
	if err := w.client.put(ctx, "/workers/scripts/"+name, body, &script); err != nil {
		return nil, err
	}
	return &provider.Creation{ID: script.ID, Endpoint: script.Endpoint}, nil
}

// List returns every script on the account.
func (w *Workers) List(ctx context.Context) ([]provider.Object, error) {
	var scripts []workerScript
	if err := w.client.get(ctx, "/workers/scripts", &scripts); err != nil {
		return nil, err
	}

	out := make([]provider.Object, 0, len(scripts))
	for _, s := range scripts {
		out = append(out, provider.Object{Name: s.Name, ID: s.ID, Endpoint: s.Endpoint})
	}
	return out, nil
}

// Delete removes the script recorded in the carried status.
func (w *Workers) Delete(ctx context.Context, status map[string]any) error {
	id, _ := status[WorkerIDKey].(string)
	if id == "" {
		return nil
	}

	err := w.client.delete(ctx, "/workers/scripts/"+id)
	if provider.IsNotFound(err) {
		return nil
	}
	return err
}

// GetBindings returns the script's live bindings.
func (w *Workers) GetBindings(ctx context.Context, id string) ([]provider.Binding, error) {
	var bindings []provider.Binding
	err := w.client.get(ctx, "/workers/scripts/"+id+"/bindings", &bindings)
	return bindings, err
}

// PutBindings replaces the script's bindings.
func (w *Workers) PutBindings(ctx context.Context, id string, bindings []provider.Binding) error {
	return w.client.put(ctx, "/workers/scripts/"+id+"/bindings", map[string]any{"bindings": bindings}, nil)
}

// Health probes the supplied endpoint, a bare hostname or a full URL. Any
// 2xx response is healthy; anything else is surfaced as an APIError carrying
// the response status.
func (w *Workers) Health(ctx context.Context, endpoint string) error {
	url := endpoint
	if !strings.Contains(url, "://") {
		url = "https://" + url
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, errHealthRequest)
	}

	resp, err := w.probe.Do(req)
	if err != nil {
		return errors.Wrap(err, errHealthDo)
	}
	defer resp.Body.Close() //nolint:errcheck // Nothing to do about it.

	if resp.StatusCode >= 400 {
		return &provider.APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	return nil
}
