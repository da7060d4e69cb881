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

// Package xresource models instances of user-defined kinds. Specs and
// statuses are schemaless maps at this layer; callers that need structure
// decode the typed views defined in this package.
package xresource

import (
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// A Resource is an instance of a kind declared by a CustomResourceDefinition.
// Group, Version and Plural identify the declaring CRD; they are carried out
// of band of the JSON envelope, which encodes them as apiVersion and is routed
// by plural.
type Resource struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Group   string `json:"-"`
	Version string `json:"-"`
	Plural  string `json:"-"`

	Spec   map[string]any `json:"spec,omitempty"`
	Status map[string]any `json:"status,omitempty"`
}

// A Key uniquely identifies a Resource. Namespace is empty for cluster scoped
// instances.
type Key struct {
	Group     string
	Version   string
	Plural    string
	Namespace string
	Name      string
}

// Key returns the unique identity of the resource.
func (r *Resource) Key() Key {
	return Key{
		Group:     r.Group,
		Version:   r.Version,
		Plural:    r.Plural,
		Namespace: r.Namespace,
		Name:      r.Name,
	}
}

func (k Key) String() string {
	if k.Namespace == "" {
		return fmt.Sprintf("%s/%s/%s/%s", k.Group, k.Version, k.Plural, k.Name)
	}
	return fmt.Sprintf("%s/%s/%s/%s/%s", k.Group, k.Version, k.Plural, k.Namespace, k.Name)
}

// DeepCopy returns a copy of the resource whose spec and status maps do not
// alias the originals.
func (r *Resource) DeepCopy() *Resource {
	out := &Resource{
		TypeMeta: r.TypeMeta,
		Group:    r.Group,
		Version:  r.Version,
		Plural:   r.Plural,
		Spec:     copyMap(r.Spec),
		Status:   copyMap(r.Status),
	}
	r.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	return out
}

func copyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch v := v.(type) {
		case map[string]any:
			out[k] = copyMap(v)
		case []any:
			s := make([]any, len(v))
			for i := range v {
				if m, ok := v[i].(map[string]any); ok {
					s[i] = copyMap(m)
				} else {
					s[i] = v[i]
				}
			}
			out[k] = s
		default:
			out[k] = v
		}
	}
	return out
}
