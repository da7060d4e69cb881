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

// Package features defines edgeplane feature flags.
package features

import "github.com/crossplane/crossplane-runtime/pkg/feature"

// Beta feature flags.
const (
	// EnableBetaOrphanDeletion enables deletion of external objects that
	// match the deterministic naming pattern but have no corresponding local
	// instance. Orphan deletion is destructive against the external account,
	// so it ships behind a flag.
	EnableBetaOrphanDeletion feature.Flag = "EnableBetaOrphanDeletion"

	// EnableBetaHealthProbes enables periodic health probes of
	// network-exposed instances during the drift scan, flipping instances
	// between Ready and Failed based on the probe result.
	EnableBetaHealthProbes feature.Flag = "EnableBetaHealthProbes"
)
