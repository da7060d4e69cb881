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

package xresource

import (
	"encoding/json"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/crossplane/crossplane-runtime/pkg/fieldpath"
)

// A State summarises where an instance is in its provisioning lifecycle.
type State string

// States an instance may report.
const (
	StatePending        State = "Pending"
	StateReady          State = "Ready"
	StatePartiallyReady State = "PartiallyReady"
	StateFailed         State = "Failed"
)

// A Status is the typed view of the well-known keys of an instance's status.
// Drivers record additional keys (provider assigned identifiers, endpoints)
// alongside these; MergeStatus preserves them.
type Status struct {
	State               State        `json:"state,omitempty"`
	Message             string       `json:"message,omitempty"`
	Error               string       `json:"error,omitempty"`
	PendingDependencies []Dependency `json:"pendingDependencies,omitempty"`
	LastDependencyCheck *metav1.Time `json:"lastDependencyCheck,omitempty"`
	ReconciledAt        *metav1.Time `json:"reconciledAt,omitempty"`
	LastHealthCheck     *metav1.Time `json:"lastHealthCheck,omitempty"`
	HealthCheckStatus   int          `json:"healthCheckStatus,omitempty"`
	HealthCheckError    string       `json:"healthCheckError,omitempty"`
}

// ParseStatus decodes the typed view of a status map. A malformed status is
// treated as empty rather than as an error, so a corrupt stored status can
// never wedge reconciliation.
func ParseStatus(m map[string]any) Status {
	if m == nil {
		return Status{}
	}

	var s Status

	j, err := json.Marshal(m)
	if err != nil {
		return Status{}
	}
	if err := json.Unmarshal(j, &s); err != nil {
		return Status{}
	}

	return s
}

// Map encodes the typed view back into a status map, dropping zero fields.
func (s Status) Map() map[string]any {
	j, err := json.Marshal(s)
	if err != nil {
		return map[string]any{}
	}

	m := map[string]any{}
	if err := json.Unmarshal(j, &m); err != nil {
		return map[string]any{}
	}

	return m
}

// MergeStatus overlays updates onto a copy of an existing status map. Keys not
// present in updates, such as provider assigned identifiers, survive.
func MergeStatus(existing, updates map[string]any) map[string]any {
	out := copyMap(existing)
	if out == nil {
		out = map[string]any{}
	}
	for k, v := range updates {
		out[k] = v
	}
	return out
}

// A Dependency is a declared edge to another instance. Dependencies gate
// provisioning: an instance is not provisioned until every dependency is
// Ready. Referents are looked up at cluster scope.
type Dependency struct {
	Group string `json:"group,omitempty"`
	Kind  string `json:"kind"`
	Name  string `json:"name"`
}

// Dependencies returns the instance's declared dependency edges. A dependency
// that does not name a group defaults to the instance's own group. Instances
// whose specs carry no dependencies, or carry ones this view cannot decode,
// have none.
func (r *Resource) Dependencies() []Dependency {
	var deps []Dependency
	if err := fieldpath.Pave(r.Spec).GetValueInto("dependencies", &deps); err != nil {
		return nil
	}

	for i := range deps {
		if deps[i].Group == "" {
			deps[i].Group = r.Group
		}
	}

	return deps
}

// A BindingRef names another instance whose provisioned object should be bound
// into this one, e.g. a database bound into a worker script. As overrides the
// name the binding is exposed under; it defaults to the referent's name.
type BindingRef struct {
	Group string `json:"group,omitempty"`
	Kind  string `json:"kind"`
	Name  string `json:"name"`
	As    string `json:"as,omitempty"`
}

// Bindings returns the instance's declared binding references, with groups
// defaulted like Dependencies.
func (r *Resource) Bindings() []BindingRef {
	var refs []BindingRef
	if err := fieldpath.Pave(r.Spec).GetValueInto("bindings", &refs); err != nil {
		return nil
	}

	for i := range refs {
		if refs[i].Group == "" {
			refs[i].Group = r.Group
		}
		if refs[i].As == "" {
			refs[i].As = refs[i].Name
		}
	}

	return refs
}
