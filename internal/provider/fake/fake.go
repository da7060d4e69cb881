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

// Package fake provides a driver with function fields for testing the
// reconciler and drift scanner.
package fake

import (
	"context"

	"github.com/edgeplane/edgeplane/internal/provider"
)

// A Driver whose behaviour is supplied as function fields. Nil fields
// succeed and return zero values.
type Driver struct {
	IDKeyVal string

	CreateFn      func(ctx context.Context, name string, spec map[string]any) (*provider.Creation, error)
	ListFn        func(ctx context.Context) ([]provider.Object, error)
	DeleteFn      func(ctx context.Context, status map[string]any) error
	GetBindingsFn func(ctx context.Context, id string) ([]provider.Binding, error)
	PutBindingsFn func(ctx context.Context, id string, bindings []provider.Binding) error
	HealthFn      func(ctx context.Context, endpoint string) error
}

var (
	_ provider.Driver        = &Driver{}
	_ provider.BindingClient = &Driver{}
	_ provider.HealthChecker = &Driver{}
)

// IDKey returns the configured status identifier key, defaulting to "id".
func (d *Driver) IDKey() string {
	if d.IDKeyVal == "" {
		return "id"
	}
	return d.IDKeyVal
}

// Create calls CreateFn.
func (d *Driver) Create(ctx context.Context, name string, spec map[string]any) (*provider.Creation, error) {
	if d.CreateFn == nil {
		return &provider.Creation{}, nil
	}
	return d.CreateFn(ctx, name, spec)
}

// List calls ListFn.
func (d *Driver) List(ctx context.Context) ([]provider.Object, error) {
	if d.ListFn == nil {
		return nil, nil
	}
	return d.ListFn(ctx)
}

// Delete calls DeleteFn.
func (d *Driver) Delete(ctx context.Context, status map[string]any) error {
	if d.DeleteFn == nil {
		return nil
	}
	return d.DeleteFn(ctx, status)
}

// GetBindings calls GetBindingsFn.
func (d *Driver) GetBindings(ctx context.Context, id string) ([]provider.Binding, error) {
	if d.GetBindingsFn == nil {
		return nil, nil
	}
	return d.GetBindingsFn(ctx, id)
}

// PutBindings calls PutBindingsFn.
func (d *Driver) PutBindings(ctx context.Context, id string, bindings []provider.Binding) error {
	if d.PutBindingsFn == nil {
		return nil
	}
	return d.PutBindingsFn(ctx, id, bindings)
}

// Health calls HealthFn.
func (d *Driver) Health(ctx context.Context, endpoint string) error {
	if d.HealthFn == nil {
		return nil
	}
	return d.HealthFn(ctx, endpoint)
}
