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

package provider

import (
	"sort"
	"sync"
)

// A GroupKind identifies a declared kind independent of version.
type GroupKind struct {
	Group string
	Kind  string
}

// A Registration binds a declared kind to the driver that provisions it, and
// carries the kind's routing metadata the reconciler needs when it builds
// names and messages for the kind.
type Registration struct {
	GroupKind GroupKind
	Version   string
	Plural    string
	Driver    Driver
}

// A Registry maps declared kinds to drivers. The reconciler dispatches every
// message through it; kinds without a driver are declaration-only and are
// never reconciled.
type Registry struct {
	mu      sync.RWMutex
	drivers map[GroupKind]Registration
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{drivers: map[GroupKind]Registration{}}
}

// Register binds a kind to a driver. Later registrations replace earlier
// ones.
func (r *Registry) Register(reg Registration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[reg.GroupKind] = reg
}

// Lookup returns the registration for a kind, if any.
func (r *Registry) Lookup(group, kind string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.drivers[GroupKind{Group: group, Kind: kind}]
	return reg, ok
}

// Registrations returns all registrations in stable order.
func (r *Registry) Registrations() []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Registration, 0, len(r.drivers))
	for _, reg := range r.drivers {
		out = append(out, reg)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GroupKind.Group != out[j].GroupKind.Group {
			return out[i].GroupKind.Group < out[j].GroupKind.Group
		}
		return out[i].GroupKind.Kind < out[j].GroupKind.Kind
	})
	return out
}
