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

package names

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExternal(t *testing.T) {
	type args struct {
		name      string
		namespace string
		plural    string
		group     string
	}

	id := Identity{Instance: "prod", Domain: "edge.example.com"}

	cases := map[string]struct {
		reason string
		args   args
		want   string
	}{
		"ClusterScoped": {
			reason: "A cluster scoped instance should use the cluster token in place of a namespace",
			args: args{
				name:   "a",
				plural: "foos",
				group:  "x.io",
			},
			want: "a-c-foos-x-io-prod",
		},
		"Namespaced": {
			reason: "A namespaced instance should carry its namespace verbatim",
			args: args{
				name:      "a",
				namespace: "default",
				plural:    "foos",
				group:     "x.io",
			},
			want: "a-default-foos-x-io-prod",
		},
		"MultiDotGroup": {
			reason: "Every dot of the group should become a dash",
			args: args{
				name:   "db",
				plural: "d1databases",
				group:  "platform.edgeplane.io",
			},
			want: "db-c-d1databases-platform-edgeplane-io-prod",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got := id.External(tc.args.name, tc.args.namespace, tc.args.plural, tc.args.group)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("\n%s\nExternal(...): -want, +got:\n%s", tc.reason, diff)
			}
		})
	}
}

func TestHostname(t *testing.T) {
	id := Identity{Instance: "prod", Domain: "edge.example.com"}

	got := id.Hostname("api")
	want := "api.prod.edge.example.com"

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("\nHostname(...): -want, +got:\n%s", diff)
	}
}

func TestMatcher(t *testing.T) {
	type args struct {
		plural   string
		group    string
		external string
	}

	id := Identity{Instance: "prod"}

	cases := map[string]struct {
		reason string
		args   args
		want   bool
	}{
		"Match": {
			reason: "A name produced by External should match",
			args: args{
				plural:   "foos",
				group:    "x.io",
				external: id.External("a", "", "foos", "x.io"),
			},
			want: true,
		},
		"MatchNamespaced": {
			reason: "A namespaced name produced by External should match",
			args: args{
				plural:   "foos",
				group:    "x.io",
				external: id.External("a", "team-a", "foos", "x.io"),
			},
			want: true,
		},
		"OtherKind": {
			reason: "A name produced for another kind should not match",
			args: args{
				plural:   "foos",
				group:    "x.io",
				external: id.External("a", "", "bars", "x.io"),
			},
			want: false,
		},
		"OtherInstance": {
			reason: "A name owned by another control plane instance should not match",
			args: args{
				plural:   "foos",
				group:    "x.io",
				external: Identity{Instance: "staging"}.External("a", "", "foos", "x.io"),
			},
			want: false,
		},
		"UnrelatedName": {
			reason: "A name that predates edgeplane should never match",
			args: args{
				plural:   "foos",
				group:    "x.io",
				external: "customer-database",
			},
			want: false,
		},
		"SuffixOnly": {
			reason: "The bare suffix without an instance name should not match",
			args: args{
				plural:   "foos",
				group:    "x.io",
				external: "-foos-x-io-prod",
			},
			want: false,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got := id.Matcher(tc.args.plural, tc.args.group)(tc.args.external)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("\n%s\nMatcher(...): -want, +got:\n%s", tc.reason, diff)
			}
		})
	}
}
