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

// Package v1 names the built-in platform kinds. These kinds are ordinary
// CustomResourceDefinitions seeded at startup; what makes them special is
// only that drivers ship in-tree for them.
package v1

import (
	apiextensionsv1 "github.com/edgeplane/edgeplane/apis/apiextensions/v1"
)

// API identity of the built-in platform kinds.
const (
	Group   = "platform.edgeplane.io"
	Version = "v1"
)

// Built-in kinds.
const (
	D1DatabaseKind   = "D1Database"
	D1DatabasePlural = "d1databases"

	QueueKind   = "Queue"
	QueuePlural = "queues"

	WorkerKind   = "Worker"
	WorkerPlural = "workers"

	ReleaseDeployKind   = "ReleaseDeploy"
	ReleaseDeployPlural = "releasedeploys"
)

// Definitions returns the CRDs for the built-in platform kinds, ready to be
// seeded into the store.
func Definitions() []*apiextensionsv1.CustomResourceDefinition {
	kinds := []struct {
		kind       string
		plural     string
		shortNames []string
	}{
		{kind: D1DatabaseKind, plural: D1DatabasePlural, shortNames: []string{"d1"}},
		{kind: QueueKind, plural: QueuePlural, shortNames: []string{"q"}},
		{kind: WorkerKind, plural: WorkerPlural, shortNames: []string{"wk"}},
		{kind: ReleaseDeployKind, plural: ReleaseDeployPlural, shortNames: []string{"rd"}},
	}

	out := make([]*apiextensionsv1.CustomResourceDefinition, 0, len(kinds))
	for _, k := range kinds {
		crd := &apiextensionsv1.CustomResourceDefinition{
			Spec: apiextensionsv1.CustomResourceDefinitionSpec{
				Group:      Group,
				Version:    Version,
				Kind:       k.kind,
				Plural:     k.plural,
				ShortNames: k.shortNames,
				Scope:      apiextensionsv1.ClusterScoped,
			},
		}
		crd.Default()
		out = append(out, crd)
	}
	return out
}
