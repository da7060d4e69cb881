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

package memory

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	v1 "github.com/edgeplane/edgeplane/apis/apiextensions/v1"
	"github.com/edgeplane/edgeplane/internal/store"
	"github.com/edgeplane/edgeplane/internal/xresource"
)

func fooCRD() *v1.CustomResourceDefinition {
	crd := &v1.CustomResourceDefinition{
		Spec: v1.CustomResourceDefinitionSpec{
			Group:   "x.io",
			Version: "v1",
			Kind:    "Foo",
			Plural:  "foos",
		},
	}
	crd.Default()
	return crd
}

func fooResource(name string, spec map[string]any) *xresource.Resource {
	r := &xresource.Resource{
		Group:   "x.io",
		Version: "v1",
		Plural:  "foos",
		Spec:    spec,
	}
	r.Kind = "Foo"
	r.Name = name
	return r
}

func TestCreateCRD(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.CreateCRD(ctx, fooCRD()); err != nil {
		t.Fatalf("CreateCRD(...): unexpected error: %v", err)
	}

	if err := s.CreateCRD(ctx, fooCRD()); !store.IsAlreadyExists(err) {
		t.Errorf("CreateCRD(...): want AlreadyExists, got %v", err)
	}

	got, err := s.GetCRD(ctx, "x.io", "v1", "foos")
	if err != nil {
		t.Fatalf("GetCRD(...): unexpected error: %v", err)
	}
	if diff := cmp.Diff("foos.x.io", got.Name); diff != "" {
		t.Errorf("GetCRD(...): -want, +got:\n%s", diff)
	}
	if got.CreationTimestamp.IsZero() {
		t.Errorf("GetCRD(...): want a creation timestamp, got zero")
	}
}

func TestCreateResourceUnknownKind(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.CreateResource(ctx, fooResource("a", nil))
	if !store.IsUnknownKind(err) {
		t.Errorf("CreateResource(...): want UnknownKind, got %v", err)
	}
}

func TestCreateResourceUniqueness(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.CreateCRD(ctx, fooCRD()); err != nil {
		t.Fatalf("CreateCRD(...): unexpected error: %v", err)
	}
	if err := s.CreateResource(ctx, fooResource("a", nil)); err != nil {
		t.Fatalf("CreateResource(...): unexpected error: %v", err)
	}

	// No two instances may share (group, version, plural, namespace, name).
	if err := s.CreateResource(ctx, fooResource("a", nil)); !store.IsAlreadyExists(err) {
		t.Errorf("CreateResource(...): want AlreadyExists, got %v", err)
	}

	// The same name in another namespace is a different instance.
	other := fooResource("a", nil)
	other.Namespace = "team-a"
	if err := s.CreateResource(ctx, other); err != nil {
		t.Errorf("CreateResource(...): unexpected error: %v", err)
	}
}

func TestCreateResourceGeneratesIdentity(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.CreateCRD(ctx, fooCRD()); err != nil {
		t.Fatalf("CreateCRD(...): unexpected error: %v", err)
	}

	r := fooResource("", nil)
	r.GenerateName = "foo-"
	if err := s.CreateResource(ctx, r); err != nil {
		t.Fatalf("CreateResource(...): unexpected error: %v", err)
	}

	if r.Name == "" || r.Name == "foo-" {
		t.Errorf("CreateResource(...): want a generated name with suffix, got %q", r.Name)
	}
	if r.UID == "" {
		t.Errorf("CreateResource(...): want a UID, got none")
	}

	anon := fooResource("", nil)
	if err := s.CreateResource(ctx, anon); err != nil {
		t.Fatalf("CreateResource(...): unexpected error: %v", err)
	}
	if anon.Name == "" {
		t.Errorf("CreateResource(...): want a fallback name, got none")
	}
}

func TestDeleteCRDCascades(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.CreateCRD(ctx, fooCRD()); err != nil {
		t.Fatalf("CreateCRD(...): unexpected error: %v", err)
	}
	for _, name := range []string{"a", "b"} {
		if err := s.CreateResource(ctx, fooResource(name, nil)); err != nil {
			t.Fatalf("CreateResource(...): unexpected error: %v", err)
		}
	}

	if err := s.DeleteCRD(ctx, "foos.x.io"); err != nil {
		t.Fatalf("DeleteCRD(...): unexpected error: %v", err)
	}

	// After the cascade no instance of the kind is queryable.
	if _, err := s.GetResource(ctx, xresource.Key{Group: "x.io", Version: "v1", Plural: "foos", Name: "a"}); !store.IsNotFound(err) {
		t.Errorf("GetResource(...): want NotFound after cascade, got %v", err)
	}
	got, err := s.ListResources(ctx, store.ResourceQuery{Group: "x.io"})
	if err != nil {
		t.Fatalf("ListResources(...): unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ListResources(...): want no instances after cascade, got %d", len(got))
	}
}

func TestPatchResourceSpec(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.CreateCRD(ctx, fooCRD()); err != nil {
		t.Fatalf("CreateCRD(...): unexpected error: %v", err)
	}
	r := fooResource("a", map[string]any{"a": float64(0), "b": float64(2)})
	if err := s.CreateResource(ctx, r); err != nil {
		t.Fatalf("CreateResource(...): unexpected error: %v", err)
	}

	got, err := s.PatchResourceSpec(ctx, r.Key(), map[string]any{"a": float64(1)})
	if err != nil {
		t.Fatalf("PatchResourceSpec(...): unexpected error: %v", err)
	}

	// The patch is a shallow overlay: patched keys replaced, others kept.
	want := map[string]any{"a": float64(1), "b": float64(2)}
	if diff := cmp.Diff(want, got.Spec); diff != "" {
		t.Errorf("PatchResourceSpec(...): -want, +got:\n%s", diff)
	}
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.CreateCRD(ctx, fooCRD()); err != nil {
		t.Fatalf("CreateCRD(...): unexpected error: %v", err)
	}
	r := fooResource("a", nil)
	if err := s.CreateResource(ctx, r); err != nil {
		t.Fatalf("CreateResource(...): unexpected error: %v", err)
	}

	status := map[string]any{"state": "Ready", "database_id": "id-a"}
	for range 2 { // Overwrites are idempotent.
		if err := s.SetStatus(ctx, r.Key(), status); err != nil {
			t.Fatalf("SetStatus(...): unexpected error: %v", err)
		}
	}

	got, err := s.GetResource(ctx, r.Key())
	if err != nil {
		t.Fatalf("GetResource(...): unexpected error: %v", err)
	}
	if diff := cmp.Diff(status, got.Status); diff != "" {
		t.Errorf("SetStatus(...): -want, +got:\n%s", diff)
	}
}

func TestQueryPending(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.CreateCRD(ctx, fooCRD()); err != nil {
		t.Fatalf("CreateCRD(...): unexpected error: %v", err)
	}

	pending := fooResource("p", nil)
	ready := fooResource("r", nil)
	unset := fooResource("u", nil)
	for _, r := range []*xresource.Resource{pending, ready, unset} {
		if err := s.CreateResource(ctx, r); err != nil {
			t.Fatalf("CreateResource(...): unexpected error: %v", err)
		}
	}
	if err := s.SetStatus(ctx, pending.Key(), map[string]any{"state": "Pending"}); err != nil {
		t.Fatalf("SetStatus(...): unexpected error: %v", err)
	}
	if err := s.SetStatus(ctx, ready.Key(), map[string]any{"state": "Ready"}); err != nil {
		t.Fatalf("SetStatus(...): unexpected error: %v", err)
	}

	got, err := s.QueryPending(ctx, "x.io", "Foo")
	if err != nil {
		t.Fatalf("QueryPending(...): unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Name != "p" {
		t.Errorf("QueryPending(...): want exactly instance p, got %v", got)
	}
}

func TestListResources(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.CreateCRD(ctx, fooCRD()); err != nil {
		t.Fatalf("CreateCRD(...): unexpected error: %v", err)
	}

	cluster := fooResource("a", nil)
	namespaced := fooResource("b", nil)
	namespaced.Namespace = "team-a"
	for _, r := range []*xresource.Resource{cluster, namespaced} {
		if err := s.CreateResource(ctx, r); err != nil {
			t.Fatalf("CreateResource(...): unexpected error: %v", err)
		}
	}

	type args struct{ q store.ResourceQuery }

	cases := map[string]struct {
		reason string
		args   args
		want   []string
	}{
		"All": {
			reason: "A group query should match every scope",
			args:   args{q: store.ResourceQuery{Group: "x.io"}},
			want:   []string{"a", "b"},
		},
		"ClusterOnly": {
			reason: "ClusterOnly should exclude namespaced instances",
			args:   args{q: store.ResourceQuery{Group: "x.io", ClusterOnly: true}},
			want:   []string{"a"},
		},
		"Namespace": {
			reason: "A namespace query should match only that namespace",
			args:   args{q: store.ResourceQuery{Group: "x.io", Namespace: "team-a"}},
			want:   []string{"b"},
		},
		"ByKind": {
			reason: "A kind query should match the declared kind",
			args:   args{q: store.ResourceQuery{Group: "x.io", Kind: "Foo"}},
			want:   []string{"a", "b"},
		},
		"WrongKind": {
			reason: "A kind query for an undeclared kind should match nothing",
			args:   args{q: store.ResourceQuery{Group: "x.io", Kind: "Bar"}},
			want:   nil,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rs, err := s.ListResources(ctx, tc.args.q)
			if err != nil {
				t.Fatalf("ListResources(...): unexpected error: %v", err)
			}
			var got []string
			for _, r := range rs {
				got = append(got, r.Name)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("\n%s\nListResources(...): -want, +got:\n%s", tc.reason, diff)
			}
		})
	}
}
