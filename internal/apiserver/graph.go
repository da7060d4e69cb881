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

	"github.com/emicklei/dot"

	"github.com/edgeplane/edgeplane/internal/store"
	"github.com/edgeplane/edgeplane/internal/xresource"
)

// handleDependencyGraph renders the declared dependency edges of every stored
// instance as a DOT digraph, one node per instance labelled Kind/name. Edges
// point from an instance to what it waits on.
func (s *Server) handleDependencyGraph(w http.ResponseWriter, r *http.Request) {
	crds, err := s.store.ListCRDs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	g := dot.NewGraph(dot.Directed)
	nodes := map[string]dot.Node{}
	node := func(kind, namespace, name string) dot.Node {
		label := kind + "/" + name
		if namespace != "" {
			label = kind + "/" + namespace + "/" + name
		}
		if n, ok := nodes[label]; ok {
			return n
		}
		n := g.Node(label)
		nodes[label] = n
		return n
	}

	for _, crd := range crds {
		items, err := s.store.ListResources(r.Context(), store.ResourceQuery{
			Group:  crd.Spec.Group,
			Plural: crd.Spec.Plural,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		for i := range items {
			res := &items[i]
			from := node(crd.Spec.Kind, res.Namespace, res.Name)
			if state := xresource.ParseStatus(res.Status).State; state != "" {
				from.Attr("xlabel", string(state))
			}
			for _, dep := range res.Dependencies() {
				// Referents are cluster scoped.
				g.Edge(from, node(dep.Kind, "", dep.Name))
			}
		}
	}

	w.Header().Set("Content-Type", "text/vnd.graphviz")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(g.String()))
}
