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

// Package names constructs the deterministic external names under which
// edgeplane provisions objects on the platform. The same construction is used
// twice: once when creating or adopting an external object, and once as the
// orphan filter during drift scans. Changing the pattern therefore changes
// which external objects edgeplane considers its own.
package names

import (
	"fmt"
	"strings"
)

// ClusterToken substitutes for the namespace segment of an external name when
// the instance is cluster scoped.
const ClusterToken = "c"

// An Identity carries the control plane's naming parameters. Instance
// distinguishes external objects owned by this control plane from those owned
// by another one sharing the same account; Domain is the hostname suffix under
// which network-exposed kinds are served.
type Identity struct {
	Instance string
	Domain   string
}

// External returns the deterministic name of the external object backing the
// given instance. Dots in the group are dashed so the result is a single
// DNS-safe label sequence.
func (i Identity) External(name, namespace, plural, group string) string {
	if namespace == "" {
		namespace = ClusterToken
	}
	return fmt.Sprintf("%s-%s-%s-%s-%s", name, namespace, plural, Dashed(group), i.Instance)
}

// Hostname returns the custom hostname of a network-exposed instance.
func (i Identity) Hostname(name string) string {
	return fmt.Sprintf("%s.%s.%s", name, i.Instance, i.Domain)
}

// Matcher returns a predicate that reports whether an external object name was
// produced by External for the given kind under this control plane instance.
// The drift scanner uses it as the orphan filter; names that don't match are
// never deleted.
func (i Identity) Matcher(plural, group string) func(string) bool {
	suffix := fmt.Sprintf("-%s-%s-%s", plural, Dashed(group), i.Instance)
	return func(external string) bool {
		return strings.HasSuffix(external, suffix) && len(external) > len(suffix)
	}
}

// Dashed replaces the dots of an API group with dashes.
func Dashed(group string) string {
	return strings.ReplaceAll(group, ".", "-")
}
