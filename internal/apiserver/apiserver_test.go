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

package apiserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	v1 "github.com/edgeplane/edgeplane/apis/apiextensions/v1"
	"github.com/edgeplane/edgeplane/internal/queue"
	smemory "github.com/edgeplane/edgeplane/internal/store/memory"
)

const tableAccept = "application/json;as=Table;v=v1;g=meta.k8s.io"

// recorder captures emitted reconcile messages.
type recorder struct {
	sent []queue.Message
}

func (r *recorder) Send(_ context.Context, m queue.Message) error {
	r.sent = append(r.sent, m)
	return nil
}

func newTestServer(t *testing.T) (*Server, *smemory.Store, *recorder) {
	t.Helper()

	st := smemory.New()
	rec := &recorder{}
	return New(st, rec), st, rec
}

func do(t *testing.T, s *Server, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()

	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	for i := 0; i+1 < len(header); i += 2 {
		r.Header.Set(header[i], header[i+1])
	}

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("cannot decode response %q: %v", w.Body.String(), err)
	}
	return out
}

const d1CRD = `{"spec": {"group": "platform.edgeplane.io", "version": "v1", "kind": "D1Database", "plural": "d1databases"}}`
const appCRD = `{"spec": {"group": "platform.edgeplane.io", "version": "v1", "kind": "App", "plural": "apps", "scope": "Namespaced"}}`

func TestCRDLifecycle(t *testing.T) {
	s, _, rec := newTestServer(t)

	w := do(t, s, http.MethodPost, "/apis/apiextensions.edgeplane.io/v1/customresourcedefinitions", d1CRD)
	if w.Code != http.StatusCreated {
		t.Fatalf("POST crd: want 201, got %d: %s", w.Code, w.Body.String())
	}
	created := decode[v1.CustomResourceDefinition](t, w)
	if created.Name != "d1databases.platform.edgeplane.io" {
		t.Errorf("POST crd: want derived name, got %q", created.Name)
	}
	if created.Spec.Scope != v1.ClusterScoped {
		t.Errorf("POST crd: want scope defaulted to Cluster, got %q", created.Spec.Scope)
	}

	if w := do(t, s, http.MethodPost, "/apis/apiextensions.edgeplane.io/v1/customresourcedefinitions", d1CRD); w.Code != http.StatusConflict {
		t.Errorf("POST duplicate crd: want 409, got %d", w.Code)
	}

	if w := do(t, s, http.MethodGet, "/apis/apiextensions.edgeplane.io/v1/customresourcedefinitions/d1databases.platform.edgeplane.io", ""); w.Code != http.StatusOK {
		t.Errorf("GET crd: want 200, got %d", w.Code)
	}
	if w := do(t, s, http.MethodGet, "/apis/apiextensions.edgeplane.io/v1/customresourcedefinitions/nope", ""); w.Code != http.StatusNotFound {
		t.Errorf("GET missing crd: want 404, got %d", w.Code)
	}

	list := decode[v1.CustomResourceDefinitionList](t, do(t, s, http.MethodGet, "/apis/apiextensions.edgeplane.io/v1/customresourcedefinitions", ""))
	if len(list.Items) != 1 {
		t.Errorf("GET crds: want 1 item, got %d", len(list.Items))
	}

	if w := do(t, s, http.MethodDelete, "/apis/apiextensions.edgeplane.io/v1/customresourcedefinitions/d1databases.platform.edgeplane.io", ""); w.Code != http.StatusOK {
		t.Errorf("DELETE crd: want 200, got %d", w.Code)
	}
	if len(rec.sent) != 0 {
		t.Errorf("CRD lifecycle: want no reconcile messages, got %d", len(rec.sent))
	}
}

func TestCreateCRDValidation(t *testing.T) {
	s, _, _ := newTestServer(t)

	cases := map[string]struct {
		reason string
		body   string
	}{
		"Garbage":       {reason: "A body that is not JSON is a 400.", body: "{"},
		"MissingGroup":  {reason: "group is required.", body: `{"spec": {"version": "v1", "kind": "Thing", "plural": "things"}}`},
		"BadGroup":      {reason: "group must be DNS shaped.", body: `{"spec": {"group": "not a group", "version": "v1", "kind": "Thing", "plural": "things"}}`},
		"UppercaseKind": {reason: "plural must be lowercase.", body: `{"spec": {"group": "x.example.org", "version": "v1", "kind": "Thing", "plural": "Things"}}`},
		"BadScope":      {reason: "scope must be Cluster or Namespaced.", body: `{"spec": {"group": "x.example.org", "version": "v1", "kind": "Thing", "plural": "things", "scope": "Global"}}`},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if w := do(t, s, http.MethodPost, "/apis/apiextensions.edgeplane.io/v1/customresourcedefinitions", tc.body); w.Code != http.StatusBadRequest {
				t.Errorf("\n%s\nPOST crd: want 400, got %d: %s", tc.reason, w.Code, w.Body.String())
			}
		})
	}
}

func TestDiscovery(t *testing.T) {
	s, _, _ := newTestServer(t)
	do(t, s, http.MethodPost, "/apis/apiextensions.edgeplane.io/v1/customresourcedefinitions", d1CRD)

	groups := decode[metav1.APIGroupList](t, do(t, s, http.MethodGet, "/apis", ""))
	var names []string
	for _, g := range groups.Groups {
		names = append(names, g.Name)
	}
	want := []string{"apiextensions.edgeplane.io", "platform.edgeplane.io"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("GET /apis: groups -want, +got:\n%s", diff)
	}

	group := decode[metav1.APIGroup](t, do(t, s, http.MethodGet, "/apis/platform.edgeplane.io", ""))
	if len(group.Versions) != 1 || group.Versions[0].Version != "v1" {
		t.Errorf("GET /apis/{group}: want one v1 version, got %+v", group.Versions)
	}

	if w := do(t, s, http.MethodGet, "/apis/unknown.example.org", ""); w.Code != http.StatusNotFound {
		t.Errorf("GET unknown group: want 404, got %d", w.Code)
	}

	resources := decode[metav1.APIResourceList](t, do(t, s, http.MethodGet, "/apis/platform.edgeplane.io/v1", ""))
	if len(resources.APIResources) != 1 || resources.APIResources[0].Name != "d1databases" {
		t.Errorf("GET /apis/{group}/{version}: want d1databases, got %+v", resources.APIResources)
	}

	builtin := decode[metav1.APIResourceList](t, do(t, s, http.MethodGet, "/apis/apiextensions.edgeplane.io/v1", ""))
	if len(builtin.APIResources) == 0 || builtin.APIResources[0].Name != v1.CustomResourceDefinitionPlural {
		t.Errorf("GET built-in group: want customresourcedefinitions, got %+v", builtin.APIResources)
	}
}

func TestResourceLifecycle(t *testing.T) {
	s, _, rec := newTestServer(t)
	do(t, s, http.MethodPost, "/apis/apiextensions.edgeplane.io/v1/customresourcedefinitions", d1CRD)

	// Create.
	w := do(t, s, http.MethodPost, "/apis/platform.edgeplane.io/v1/d1databases",
		`{"metadata": {"name": "users"}, "spec": {"size": "small"}}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("POST resource: want 201, got %d: %s", w.Code, w.Body.String())
	}

	var created map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("POST resource: cannot decode response: %v", err)
	}
	if created["kind"] != "D1Database" || created["apiVersion"] != "platform.edgeplane.io/v1" {
		t.Errorf("POST resource: want stamped envelope, got kind=%v apiVersion=%v", created["kind"], created["apiVersion"])
	}
	meta := created["metadata"].(map[string]any)
	if meta["uid"] == nil || meta["uid"] == "" {
		t.Error("POST resource: want a uid assigned")
	}

	if len(rec.sent) != 1 || rec.sent[0].Action != queue.ActionCreate || rec.sent[0].Name != "users" {
		t.Fatalf("POST resource: want one create message for users, got %+v", rec.sent)
	}

	// Duplicate.
	if w := do(t, s, http.MethodPost, "/apis/platform.edgeplane.io/v1/d1databases",
		`{"metadata": {"name": "users"}, "spec": {}}`); w.Code != http.StatusConflict {
		t.Errorf("POST duplicate resource: want 409, got %d", w.Code)
	}

	// Get.
	if w := do(t, s, http.MethodGet, "/apis/platform.edgeplane.io/v1/d1databases/users", ""); w.Code != http.StatusOK {
		t.Errorf("GET resource: want 200, got %d", w.Code)
	}
	if w := do(t, s, http.MethodGet, "/apis/platform.edgeplane.io/v1/d1databases/nope", ""); w.Code != http.StatusNotFound {
		t.Errorf("GET missing resource: want 404, got %d", w.Code)
	}

	// Patch overlays top-level spec keys and emits nothing.
	sentBefore := len(rec.sent)
	w = do(t, s, http.MethodPatch, "/apis/platform.edgeplane.io/v1/d1databases/users",
		`{"spec": {"region": "weur"}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("PATCH resource: want 200, got %d: %s", w.Code, w.Body.String())
	}
	var patched struct {
		Spec map[string]any `json:"spec"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &patched); err != nil {
		t.Fatalf("PATCH resource: cannot decode response: %v", err)
	}
	wantSpec := map[string]any{"size": "small", "region": "weur"}
	if diff := cmp.Diff(wantSpec, patched.Spec); diff != "" {
		t.Errorf("PATCH resource: merged spec -want, +got:\n%s", diff)
	}
	if len(rec.sent) != sentBefore {
		t.Errorf("PATCH resource: want no message emitted, got %d new", len(rec.sent)-sentBefore)
	}

	// Delete emits a message carrying the final spec.
	if w := do(t, s, http.MethodDelete, "/apis/platform.edgeplane.io/v1/d1databases/users", ""); w.Code != http.StatusOK {
		t.Fatalf("DELETE resource: want 200, got %d", w.Code)
	}
	last := rec.sent[len(rec.sent)-1]
	if last.Action != queue.ActionDelete || last.Name != "users" {
		t.Errorf("DELETE resource: want delete message for users, got %+v", last)
	}
	if diff := cmp.Diff(wantSpec, last.Spec); diff != "" {
		t.Errorf("DELETE resource: message spec -want, +got:\n%s", diff)
	}

	if w := do(t, s, http.MethodGet, "/apis/platform.edgeplane.io/v1/d1databases/users", ""); w.Code != http.StatusNotFound {
		t.Errorf("GET deleted resource: want 404, got %d", w.Code)
	}
}

func TestResourceUnknownKind(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := do(t, s, http.MethodPost, "/apis/platform.edgeplane.io/v1/d1databases",
		`{"metadata": {"name": "users"}, "spec": {}}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("POST without crd: want 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestResourceScopeRouting(t *testing.T) {
	s, _, rec := newTestServer(t)
	do(t, s, http.MethodPost, "/apis/apiextensions.edgeplane.io/v1/customresourcedefinitions", d1CRD)
	do(t, s, http.MethodPost, "/apis/apiextensions.edgeplane.io/v1/customresourcedefinitions", appCRD)

	// A namespaced kind must not be created on the cluster path, and vice
	// versa.
	if w := do(t, s, http.MethodPost, "/apis/platform.edgeplane.io/v1/apps",
		`{"metadata": {"name": "web"}, "spec": {}}`); w.Code != http.StatusBadRequest {
		t.Errorf("POST namespaced kind on cluster path: want 400, got %d", w.Code)
	}
	if w := do(t, s, http.MethodPost, "/apis/platform.edgeplane.io/v1/namespaces/team-a/d1databases",
		`{"metadata": {"name": "users"}, "spec": {}}`); w.Code != http.StatusBadRequest {
		t.Errorf("POST cluster kind on namespaced path: want 400, got %d", w.Code)
	}

	w := do(t, s, http.MethodPost, "/apis/platform.edgeplane.io/v1/namespaces/team-a/apps",
		`{"metadata": {"name": "web"}, "spec": {}}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("POST namespaced resource: want 201, got %d: %s", w.Code, w.Body.String())
	}
	if got := rec.sent[len(rec.sent)-1]; got.Namespace != "team-a" {
		t.Errorf("POST namespaced resource: want message namespace team-a, got %q", got.Namespace)
	}

	// The same name in another namespace does not collide.
	if w := do(t, s, http.MethodPost, "/apis/platform.edgeplane.io/v1/namespaces/team-b/apps",
		`{"metadata": {"name": "web"}, "spec": {}}`); w.Code != http.StatusCreated {
		t.Errorf("POST same name other namespace: want 201, got %d", w.Code)
	}

	list := do(t, s, http.MethodGet, "/apis/platform.edgeplane.io/v1/namespaces/team-a/apps", "")
	var body struct {
		Items []map[string]any `json:"items"`
	}
	if err := json.Unmarshal(list.Body.Bytes(), &body); err != nil {
		t.Fatalf("GET namespaced list: cannot decode: %v", err)
	}
	if len(body.Items) != 1 {
		t.Errorf("GET namespaced list: want 1 item in team-a, got %d", len(body.Items))
	}
}

func TestCRDDeleteCascades(t *testing.T) {
	s, _, rec := newTestServer(t)
	do(t, s, http.MethodPost, "/apis/apiextensions.edgeplane.io/v1/customresourcedefinitions", d1CRD)
	do(t, s, http.MethodPost, "/apis/platform.edgeplane.io/v1/d1databases",
		`{"metadata": {"name": "users"}, "spec": {}}`)

	sentBefore := len(rec.sent)
	if w := do(t, s, http.MethodDelete, "/apis/apiextensions.edgeplane.io/v1/customresourcedefinitions/d1databases.platform.edgeplane.io", ""); w.Code != http.StatusOK {
		t.Fatalf("DELETE crd: want 200, got %d", w.Code)
	}

	// The cascade is silent: no delete messages for the instances it removed.
	if len(rec.sent) != sentBefore {
		t.Errorf("DELETE crd: want no messages from the cascade, got %d new", len(rec.sent)-sentBefore)
	}
	if w := do(t, s, http.MethodGet, "/apis/platform.edgeplane.io/v1/d1databases/users", ""); w.Code != http.StatusNotFound {
		t.Errorf("GET cascaded instance: want 404, got %d", w.Code)
	}
}

func TestListAsTable(t *testing.T) {
	s, _, _ := newTestServer(t)
	do(t, s, http.MethodPost, "/apis/apiextensions.edgeplane.io/v1/customresourcedefinitions", d1CRD)
	do(t, s, http.MethodPost, "/apis/platform.edgeplane.io/v1/d1databases",
		`{"metadata": {"name": "users"}, "spec": {}}`)

	w := do(t, s, http.MethodGet, "/apis/platform.edgeplane.io/v1/d1databases", "", "Accept", tableAccept)
	if w.Code != http.StatusOK {
		t.Fatalf("GET list as table: want 200, got %d", w.Code)
	}

	table := decode[metav1.Table](t, w)
	if table.Kind != "Table" || table.APIVersion != "meta.k8s.io/v1" {
		t.Errorf("GET list as table: want a meta.k8s.io/v1 Table, got %s/%s", table.APIVersion, table.Kind)
	}

	var cols []string
	for _, c := range table.ColumnDefinitions {
		cols = append(cols, c.Name)
	}
	if diff := cmp.Diff([]string{"Name", "Age"}, cols); diff != "" {
		t.Errorf("GET list as table: columns -want, +got:\n%s", diff)
	}
	if len(table.Rows) != 1 || table.Rows[0].Cells[0] != "users" {
		t.Errorf("GET list as table: want one row for users, got %+v", table.Rows)
	}
	if len(table.Rows) == 1 && len(table.Rows[0].Object.Raw) == 0 {
		t.Error("GET list as table: want rows to carry the object")
	}

	// Without the negotiation header the plain list is served.
	plain := decode[map[string]any](t, do(t, s, http.MethodGet, "/apis/platform.edgeplane.io/v1/d1databases", ""))
	if plain["kind"] != "D1DatabaseList" {
		t.Errorf("GET list: want kind D1DatabaseList, got %v", plain["kind"])
	}
}

func TestDependencyGraph(t *testing.T) {
	s, _, _ := newTestServer(t)
	do(t, s, http.MethodPost, "/apis/apiextensions.edgeplane.io/v1/customresourcedefinitions", d1CRD)
	do(t, s, http.MethodPost, "/apis/apiextensions.edgeplane.io/v1/customresourcedefinitions",
		`{"spec": {"group": "platform.edgeplane.io", "version": "v1", "kind": "Worker", "plural": "workers"}}`)
	do(t, s, http.MethodPost, "/apis/platform.edgeplane.io/v1/d1databases",
		`{"metadata": {"name": "users"}, "spec": {}}`)
	do(t, s, http.MethodPost, "/apis/platform.edgeplane.io/v1/workers",
		`{"metadata": {"name": "api"}, "spec": {"dependencies": [{"kind": "D1Database", "name": "users"}]}}`)

	w := do(t, s, http.MethodGet, "/apis/apiextensions.edgeplane.io/v1/dependencygraph", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET dependencygraph: want 200, got %d", w.Code)
	}
	got := w.Body.String()
	for _, want := range []string{"digraph", "Worker/api", "D1Database/users", "->"} {
		if !strings.Contains(got, want) {
			t.Errorf("GET dependencygraph: want output containing %q, got:\n%s", want, got)
		}
	}
}

func TestReadyz(t *testing.T) {
	s, _, _ := newTestServer(t)
	if w := do(t, s, http.MethodGet, "/readyz", ""); w.Code != http.StatusOK {
		t.Errorf("GET /readyz: want 200, got %d", w.Code)
	}
	if w := do(t, s, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
		t.Errorf("GET /healthz: want 200, got %d", w.Code)
	}
}
