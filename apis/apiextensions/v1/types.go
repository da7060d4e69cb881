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

// Package v1 contains the built-in API for defining new resource kinds.
// CustomResourceDefinitions are the only kind edgeplane knows about a priori;
// every other kind is declared by posting one of these.
package v1

import (
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
)

// API identity of the built-in CRD kind.
const (
	Group   = "apiextensions.edgeplane.io"
	Version = "v1"

	CustomResourceDefinitionKind   = "CustomResourceDefinition"
	CustomResourceDefinitionPlural = "customresourcedefinitions"
)

// APIVersion of the built-in CRD kind.
var APIVersion = Group + "/" + Version

// ResourceScope declares whether instances of a kind live in a namespace or
// at cluster scope.
type ResourceScope string

// Resource scopes.
const (
	ClusterScoped   ResourceScope = "Cluster"
	NamespaceScoped ResourceScope = "Namespaced"
)

// A CustomResourceDefinition declares a new resource kind. It is immutable
// after creation; deleting it cascades deletion of all its instances.
type CustomResourceDefinition struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec CustomResourceDefinitionSpec `json:"spec"`
}

// CustomResourceDefinitionSpec identifies the declared kind and how it is
// served. The schema is opaque to edgeplane; it is stored and echoed back but
// instance specs are not validated against it.
type CustomResourceDefinitionSpec struct {
	Group      string               `json:"group"                validate:"required,fqdn"`
	Version    string               `json:"version"              validate:"required,alphanum,lowercase"`
	Kind       string               `json:"kind"                 validate:"required,alphanum"`
	Plural     string               `json:"plural"               validate:"required,lowercase,alphanum"`
	ShortNames []string             `json:"shortNames,omitempty" validate:"omitempty,dive,lowercase,alphanum"`
	Schema     runtime.RawExtension `json:"schema,omitempty"`
	Scope      ResourceScope        `json:"scope,omitempty"      validate:"omitempty,oneof=Cluster Namespaced"`
}

// A CustomResourceDefinitionList is a list of CustomResourceDefinitions.
type CustomResourceDefinitionList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`

	Items []CustomResourceDefinition `json:"items"`
}

// Default fills in the derived and defaulted fields of a freshly posted CRD:
// the stored name is always "{plural}.{group}", and scope defaults to Cluster.
func (c *CustomResourceDefinition) Default() {
	c.APIVersion = APIVersion
	c.Kind = CustomResourceDefinitionKind
	c.Name = DefinitionName(c.Spec.Plural, c.Spec.Group)

	if c.Spec.Scope == "" {
		c.Spec.Scope = ClusterScoped
	}
}

// DefinitionName returns the stored primary key of a CRD.
func DefinitionName(plural, group string) string {
	return fmt.Sprintf("%s.%s", plural, group)
}
