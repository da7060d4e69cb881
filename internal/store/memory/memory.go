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

// Package memory implements the store in process memory. It backs tests and
// the --store=memory development mode; nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	ktypes "k8s.io/apimachinery/pkg/types"
	kname "k8s.io/apiserver/pkg/storage/names"
	"k8s.io/utils/clock"

	"github.com/crossplane/crossplane-runtime/pkg/errors"

	v1 "github.com/edgeplane/edgeplane/apis/apiextensions/v1"
	"github.com/edgeplane/edgeplane/internal/store"
	"github.com/edgeplane/edgeplane/internal/xresource"
)

const maxGenerateTries = 10

// Error strings.
const (
	errGenerateName = "cannot generate an available name"
)

// A Store holds CRDs and instances in maps guarded by one mutex. Reads return
// deep copies so callers can never alias stored state.
type Store struct {
	mu        sync.RWMutex
	crds      map[string]*v1.CustomResourceDefinition
	resources map[xresource.Key]*xresource.Resource

	clock clock.Clock
	namer kname.NameGenerator
}

// An Option configures the in-memory store.
type Option func(*Store)

// WithClock configures the clock used for creation timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

// New returns an empty in-memory store.
func New(o ...Option) *Store {
	s := &Store{
		crds:      map[string]*v1.CustomResourceDefinition{},
		resources: map[xresource.Key]*xresource.Resource{},
		clock:     clock.RealClock{},
		namer:     kname.SimpleNameGenerator,
	}
	for _, fn := range o {
		fn(s)
	}
	return s
}

// CreateCRD stores a new definition.
func (s *Store) CreateCRD(_ context.Context, crd *v1.CustomResourceDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.crds[crd.Name]; ok {
		return errors.Wrap(store.ErrAlreadyExists, crd.Name)
	}

	cp := copyCRD(crd)
	if cp.CreationTimestamp.IsZero() {
		cp.CreationTimestamp = metav1.NewTime(s.clock.Now())
	}

	s.crds[cp.Name] = cp
	return nil
}

// GetCRD returns the definition of the supplied kind identity.
func (s *Store) GetCRD(_ context.Context, group, version, plural string) (*v1.CustomResourceDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, crd := range s.crds {
		if crd.Spec.Group == group && crd.Spec.Version == version && crd.Spec.Plural == plural {
			return copyCRD(crd), nil
		}
	}
	return nil, errors.Wrap(store.ErrNotFound, v1.DefinitionName(plural, group))
}

// GetCRDByName returns the definition stored under the supplied name.
func (s *Store) GetCRDByName(_ context.Context, name string) (*v1.CustomResourceDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	crd, ok := s.crds[name]
	if !ok {
		return nil, errors.Wrap(store.ErrNotFound, name)
	}
	return copyCRD(crd), nil
}

// DeleteCRD removes the named definition and every instance of its kind.
func (s *Store) DeleteCRD(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	crd, ok := s.crds[name]
	if !ok {
		return errors.Wrap(store.ErrNotFound, name)
	}

	for key := range s.resources {
		if key.Group == crd.Spec.Group && key.Version == crd.Spec.Version && key.Plural == crd.Spec.Plural {
			delete(s.resources, key)
		}
	}

	delete(s.crds, name)
	return nil
}

// ListCRDs returns all stored definitions ordered by name.
func (s *Store) ListCRDs(_ context.Context) ([]v1.CustomResourceDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]v1.CustomResourceDefinition, 0, len(s.crds))
	for _, crd := range s.crds {
		out = append(out, *copyCRD(crd))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ListVersions returns the distinct versions declared for a group.
func (s *Store) ListVersions(_ context.Context, group string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := map[string]bool{}
	for _, crd := range s.crds {
		if crd.Spec.Group == group {
			seen[crd.Spec.Version] = true
		}
	}

	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

// CreateResource stores a new instance of a declared kind.
func (s *Store) CreateResource(_ context.Context, r *xresource.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.kindExists(r.Group, r.Version, r.Plural) {
		return errors.Wrapf(store.ErrUnknownKind, "%s/%s, Resource=%s", r.Group, r.Version, r.Plural)
	}

	if r.Name == "" {
		name, err := s.generateName(r)
		if err != nil {
			return err
		}
		r.Name = name
	}

	if _, ok := s.resources[r.Key()]; ok {
		return errors.Wrap(store.ErrAlreadyExists, r.Key().String())
	}

	r.UID = ktypes.UID(uuid.NewString())
	r.CreationTimestamp = metav1.NewTime(s.clock.Now())

	s.resources[r.Key()] = r.DeepCopy()
	return nil
}

// GetResource returns the instance with the supplied key.
func (s *Store) GetResource(_ context.Context, key xresource.Key) (*xresource.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.resources[key]
	if !ok {
		return nil, errors.Wrap(store.ErrNotFound, key.String())
	}
	return r.DeepCopy(), nil
}

// ListResources returns instances matching the query, ordered by namespace
// then name.
func (s *Store) ListResources(_ context.Context, q store.ResourceQuery) ([]xresource.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []xresource.Resource
	for _, r := range s.resources {
		if !matches(r, q) {
			continue
		}
		out = append(out, *r.DeepCopy())
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Namespace != out[j].Namespace {
			return out[i].Namespace < out[j].Namespace
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// DeleteResource removes an instance and returns its last stored form.
func (s *Store) DeleteResource(_ context.Context, key xresource.Key) (*xresource.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.resources[key]
	if !ok {
		return nil, errors.Wrap(store.ErrNotFound, key.String())
	}

	delete(s.resources, key)
	return r, nil
}

// PatchResourceSpec overlays the partial spec onto the stored spec.
func (s *Store) PatchResourceSpec(_ context.Context, key xresource.Key, partial map[string]any) (*xresource.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.resources[key]
	if !ok {
		return nil, errors.Wrap(store.ErrNotFound, key.String())
	}

	if r.Spec == nil {
		r.Spec = map[string]any{}
	}
	for k, v := range partial {
		r.Spec[k] = v
	}

	return r.DeepCopy(), nil
}

// SetStatus overwrites the instance's status.
func (s *Store) SetStatus(_ context.Context, key xresource.Key, status map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.resources[key]
	if !ok {
		return errors.Wrap(store.ErrNotFound, key.String())
	}

	r.Status = (&xresource.Resource{Status: status}).DeepCopy().Status
	return nil
}

// QueryPending returns instances of the kind whose status state is Pending.
func (s *Store) QueryPending(ctx context.Context, group, kind string) ([]xresource.Resource, error) {
	all, err := s.ListResources(ctx, store.ResourceQuery{Group: group, Kind: kind})
	if err != nil {
		return nil, err
	}

	var out []xresource.Resource
	for _, r := range all {
		if xresource.ParseStatus(r.Status).State == xresource.StatePending {
			out = append(out, r)
		}
	}
	return out, nil
}

// Ping always succeeds; memory is always connected.
func (s *Store) Ping(_ context.Context) error { return nil }

func (s *Store) kindExists(group, version, plural string) bool {
	for _, crd := range s.crds {
		if crd.Spec.Group == group && crd.Spec.Version == version && crd.Spec.Plural == plural {
			return true
		}
	}
	return false
}

func (s *Store) generateName(r *xresource.Resource) (string, error) {
	if r.GenerateName == "" {
		return uuid.NewString(), nil
	}

	for range maxGenerateTries {
		name := s.namer.GenerateName(r.GenerateName)
		key := r.Key()
		key.Name = name
		if _, taken := s.resources[key]; !taken {
			return name, nil
		}
	}
	return "", errors.New(errGenerateName)
}

func matches(r *xresource.Resource, q store.ResourceQuery) bool {
	if q.Group != "" && r.Group != q.Group {
		return false
	}
	if q.Kind != "" && r.Kind != q.Kind {
		return false
	}
	if q.Plural != "" && r.Plural != q.Plural {
		return false
	}
	if q.ClusterOnly && r.Namespace != "" {
		return false
	}
	if q.Namespace != "" && r.Namespace != q.Namespace {
		return false
	}
	return true
}

func copyCRD(crd *v1.CustomResourceDefinition) *v1.CustomResourceDefinition {
	cp := *crd
	crd.ObjectMeta.DeepCopyInto(&cp.ObjectMeta)
	cp.Spec.ShortNames = append([]string(nil), crd.Spec.ShortNames...)
	return &cp
}
