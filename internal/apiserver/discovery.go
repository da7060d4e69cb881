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
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	v1 "github.com/edgeplane/edgeplane/apis/apiextensions/v1"
)

var resourceVerbs = metav1.Verbs{"get", "list", "create", "patch", "delete"}

// handleDiscoverGroups serves GET /apis: every group with declared kinds plus
// the built-in apiextensions group.
func (s *Server) handleDiscoverGroups(w http.ResponseWriter, r *http.Request) {
	crds, err := s.store.ListCRDs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	versions := map[string][]string{
		v1.Group: {v1.Version},
	}
	for _, crd := range crds {
		if !lo.Contains(versions[crd.Spec.Group], crd.Spec.Version) {
			versions[crd.Spec.Group] = append(versions[crd.Spec.Group], crd.Spec.Version)
		}
	}

	groups := make([]metav1.APIGroup, 0, len(versions))
	for group, vs := range versions {
		sort.Strings(vs)
		groups = append(groups, apiGroup(group, vs))
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })

	writeJSON(w, http.StatusOK, metav1.APIGroupList{
		TypeMeta: metav1.TypeMeta{Kind: "APIGroupList", APIVersion: "v1"},
		Groups:   groups,
	})
}

// handleDiscoverVersions serves GET /apis/{group}.
func (s *Server) handleDiscoverVersions(w http.ResponseWriter, r *http.Request) {
	group := chi.URLParam(r, "group")
	if group == "" {
		// Reached through the built-in group's static route.
		group = v1.Group
	}

	versions, err := s.store.ListVersions(r.Context(), group)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if group == v1.Group && !lo.Contains(versions, v1.Version) {
		versions = append([]string{v1.Version}, versions...)
	}
	if len(versions) == 0 {
		writeError(w, http.StatusNotFound, "no kinds declared in group "+group)
		return
	}

	writeJSON(w, http.StatusOK, apiGroup(group, versions))
}

// handleDiscoverResources serves GET /apis/{group}/{version}.
func (s *Server) handleDiscoverResources(w http.ResponseWriter, r *http.Request) {
	group, version := chi.URLParam(r, "group"), chi.URLParam(r, "version")
	if group == "" {
		// Reached through the built-in group's static route.
		group, version = v1.Group, v1.Version
	}

	crds, err := s.store.ListCRDs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var resources []metav1.APIResource
	if group == v1.Group && version == v1.Version {
		resources = append(resources, metav1.APIResource{
			Name:  v1.CustomResourceDefinitionPlural,
			Kind:  v1.CustomResourceDefinitionKind,
			Verbs: metav1.Verbs{"get", "list", "create", "delete"},
		})
	}
	for _, crd := range crds {
		if crd.Spec.Group != group || crd.Spec.Version != version {
			continue
		}
		resources = append(resources, metav1.APIResource{
			Name:       crd.Spec.Plural,
			Kind:       crd.Spec.Kind,
			ShortNames: crd.Spec.ShortNames,
			Namespaced: crd.Spec.Scope == v1.NamespaceScoped,
			Verbs:      resourceVerbs,
		})
	}
	if len(resources) == 0 {
		writeError(w, http.StatusNotFound, "no kinds declared in "+group+"/"+version)
		return
	}

	writeJSON(w, http.StatusOK, metav1.APIResourceList{
		TypeMeta:     metav1.TypeMeta{Kind: "APIResourceList", APIVersion: "v1"},
		GroupVersion: group + "/" + version,
		APIResources: resources,
	})
}

func apiGroup(group string, versions []string) metav1.APIGroup {
	vs := make([]metav1.GroupVersionForDiscovery, 0, len(versions))
	for _, v := range versions {
		vs = append(vs, metav1.GroupVersionForDiscovery{GroupVersion: group + "/" + v, Version: v})
	}
	return metav1.APIGroup{
		TypeMeta:         metav1.TypeMeta{Kind: "APIGroup", APIVersion: "v1"},
		Name:             group,
		Versions:         vs,
		PreferredVersion: vs[len(vs)-1],
	}
}
