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

// Package store defines durable storage of CustomResourceDefinitions and
// resource instances. Implementations must serialize their own writes; the
// reconciler and the API surface share one store and rely on its atomicity.
package store

import (
	"context"

	"github.com/crossplane/crossplane-runtime/pkg/errors"

	v1 "github.com/edgeplane/edgeplane/apis/apiextensions/v1"
	"github.com/edgeplane/edgeplane/internal/xresource"
)

// Sentinel errors returned by all Store implementations. Callers match them
// with the Is* predicates rather than comparing directly, so implementations
// are free to wrap them with context.
var (
	// ErrNotFound indicates that the named CRD or instance does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a name collision on create.
	ErrAlreadyExists = errors.New("already exists")

	// ErrUnknownKind indicates an instance whose (group, version, plural)
	// matches no live CustomResourceDefinition.
	ErrUnknownKind = errors.New("no CustomResourceDefinition defines this kind")
)

// IsNotFound returns true if the supplied error indicates a missing CRD or
// instance.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsAlreadyExists returns true if the supplied error indicates a name
// collision.
func IsAlreadyExists(err error) bool { return errors.Is(err, ErrAlreadyExists) }

// IsUnknownKind returns true if the supplied error indicates an undefined
// kind.
func IsUnknownKind(err error) bool { return errors.Is(err, ErrUnknownKind) }

// A ResourceQuery selects instances. Group is required; the remaining fields
// narrow the selection when set. An empty Namespace with ClusterOnly unset
// matches instances in every namespace.
type ResourceQuery struct {
	Group       string
	Kind        string
	Plural      string
	Namespace   string
	ClusterOnly bool
}

// A Store durably holds CRDs and the instances of the kinds they declare.
type Store interface {
	CRDStore
	ResourceStore

	// Ping verifies connectivity to the backing storage.
	Ping(ctx context.Context) error
}

// A CRDStore holds CustomResourceDefinitions.
type CRDStore interface {
	// CreateCRD stores a new definition. It returns ErrAlreadyExists when a
	// definition with the same name is already stored.
	CreateCRD(ctx context.Context, crd *v1.CustomResourceDefinition) error

	// GetCRD returns the definition of the supplied kind identity.
	GetCRD(ctx context.Context, group, version, plural string) (*v1.CustomResourceDefinition, error)

	// GetCRDByName returns the definition stored under the supplied name.
	GetCRDByName(ctx context.Context, name string) (*v1.CustomResourceDefinition, error)

	// DeleteCRD removes the named definition and cascades deletion of every
	// instance of its (group, version, plural).
	DeleteCRD(ctx context.Context, name string) error

	// ListCRDs returns all stored definitions.
	ListCRDs(ctx context.Context) ([]v1.CustomResourceDefinition, error)

	// ListVersions returns the distinct versions declared for a group.
	ListVersions(ctx context.Context, group string) ([]string, error)
}

// A ResourceStore holds instances of declared kinds.
type ResourceStore interface {
	// CreateResource stores a new instance. The instance's (group, version,
	// plural) must match a stored CRD or ErrUnknownKind is returned. The store
	// assigns the instance's UID and creation timestamp, and generates a name
	// when none is supplied.
	CreateResource(ctx context.Context, r *xresource.Resource) error

	// GetResource returns the instance with the supplied key.
	GetResource(ctx context.Context, key xresource.Key) (*xresource.Resource, error)

	// ListResources returns instances matching the query.
	ListResources(ctx context.Context, q ResourceQuery) ([]xresource.Resource, error)

	// DeleteResource removes an instance, returning its last stored form so
	// the caller can emit a delete message carrying the final spec and status.
	DeleteResource(ctx context.Context, key xresource.Key) (*xresource.Resource, error)

	// PatchResourceSpec overlays the supplied partial spec onto the stored
	// spec, top-level key by top-level key, and returns the merged instance.
	PatchResourceSpec(ctx context.Context, key xresource.Key, partial map[string]any) (*xresource.Resource, error)

	// SetStatus overwrites the instance's status. Overwrites are idempotent
	// and last-writer-wins.
	SetStatus(ctx context.Context, key xresource.Key, status map[string]any) error

	// QueryPending returns instances of the supplied kind whose status state
	// is Pending.
	QueryPending(ctx context.Context, group, kind string) ([]xresource.Resource, error)
}
