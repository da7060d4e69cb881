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

// Package provider defines the closed interface between the reconciler and
// the external systems it provisions. Each declared kind maps to one Driver;
// the reconciler knows nothing about any provider's wire protocol beyond this
// contract and the error predicates in this package.
package provider

import "context"

// A Creation reports a successfully provisioned external object.
type Creation struct {
	// ID is the provider assigned identifier, recorded in status under the
	// driver's IDKey.
	ID string

	// Endpoint is where the object can be reached, when the kind has one.
	Endpoint string

	// Extra carries additional status fields the driver wants recorded, e.g.
	// identifiers of derived child objects.
	Extra map[string]any

	// Degraded is set when the primary object was provisioned but a
	// secondary side effect failed. The instance lands in PartiallyReady
	// with this message instead of Ready.
	Degraded string
}

// An Object is one entry of a provider listing.
type Object struct {
	Name     string
	ID       string
	Endpoint string
}

// A Binding connects a provisioned object to another one, e.g. a database
// bound into a worker script under a name.
type Binding struct {
	Name string `json:"name"`
	Type string `json:"type"`
	ID   string `json:"id"`
}

// A Driver provisions external objects of one kind. Drivers are stateless and
// must be idempotent under concurrent duplicate calls; the queue may deliver
// the same message twice.
type Driver interface {
	// Create provisions an external object under the supplied deterministic
	// name. An IsAlreadyExists error tells the reconciler to adopt the
	// existing object instead.
	Create(ctx context.Context, name string, spec map[string]any) (*Creation, error)

	// List returns every external object of this driver's kind.
	List(ctx context.Context) ([]Object, error)

	// Delete removes the external object recorded in the carried status.
	// Deletion is best effort; a status without identifiers is nothing to do,
	// not an error.
	Delete(ctx context.Context, status map[string]any) error

	// IDKey names the status field under which the provider assigned
	// identifier is recorded, e.g. "database_id".
	IDKey() string
}

// A BindingClient is a Driver whose objects carry bindings to other objects.
// The drift scanner reconciles live bindings against declared ones.
type BindingClient interface {
	GetBindings(ctx context.Context, id string) ([]Binding, error)
	PutBindings(ctx context.Context, id string, bindings []Binding) error
}

// A HealthChecker is a Driver whose objects expose a network endpoint that
// can be probed.
type HealthChecker interface {
	Health(ctx context.Context, endpoint string) error
}
