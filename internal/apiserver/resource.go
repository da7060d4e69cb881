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
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	v1 "github.com/edgeplane/edgeplane/apis/apiextensions/v1"
	"github.com/edgeplane/edgeplane/internal/queue"
	"github.com/edgeplane/edgeplane/internal/store"
	"github.com/edgeplane/edgeplane/internal/xresource"
)

// kindContext is everything a resource handler needs: the declaring CRD and
// the request's routing parameters, scope-checked.
type kindContext struct {
	crd       *v1.CustomResourceDefinition
	namespace string
}

// resolveKind looks up the CRD addressed by the request path and checks the
// path's scope against the CRD's. It writes the error response itself and
// returns nil when the request cannot proceed.
func (s *Server) resolveKind(w http.ResponseWriter, r *http.Request) *kindContext {
	group := chi.URLParam(r, "group")
	version := chi.URLParam(r, "version")
	plural := chi.URLParam(r, "plural")
	namespace := chi.URLParam(r, "namespace")

	crd, err := s.store.GetCRD(r.Context(), group, version, plural)
	if store.IsNotFound(err) {
		writeError(w, http.StatusNotFound, "no CustomResourceDefinition defines "+group+"/"+version+", Resource="+plural)
		return nil
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil
	}

	if crd.Spec.Scope == v1.NamespaceScoped && namespace == "" {
		writeError(w, http.StatusBadRequest, crd.Spec.Kind+" is namespaced; use the namespaces/{namespace} path")
		return nil
	}
	if crd.Spec.Scope == v1.ClusterScoped && namespace != "" {
		writeError(w, http.StatusBadRequest, crd.Spec.Kind+" is cluster scoped; it has no namespace")
		return nil
	}

	return &kindContext{crd: crd, namespace: namespace}
}

func (kc *kindContext) key(name string) xresource.Key {
	return xresource.Key{
		Group:     kc.crd.Spec.Group,
		Version:   kc.crd.Spec.Version,
		Plural:    kc.crd.Spec.Plural,
		Namespace: kc.namespace,
		Name:      name,
	}
}

// envelope stamps the wire identity onto a stored instance.
func (kc *kindContext) envelope(r *xresource.Resource) *xresource.Resource {
	r.APIVersion = kc.crd.Spec.Group + "/" + kc.crd.Spec.Version
	r.Kind = kc.crd.Spec.Kind
	return r
}

func (s *Server) handleListResources(w http.ResponseWriter, r *http.Request) {
	kc := s.resolveKind(w, r)
	if kc == nil {
		return
	}

	items, err := s.store.ListResources(r.Context(), store.ResourceQuery{
		Group:     kc.crd.Spec.Group,
		Plural:    kc.crd.Spec.Plural,
		Namespace: kc.namespace,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for i := range items {
		kc.envelope(&items[i])
	}

	if wantsTable(r) {
		namespaced := kc.crd.Spec.Scope == v1.NamespaceScoped
		rows := make([]tableRow, 0, len(items))
		for i := range items {
			rows = append(rows, tableRow{
				name:      items[i].Name,
				namespace: items[i].Namespace,
				created:   items[i].CreationTimestamp,
				object:    &items[i],
			})
		}
		writeTable(w, s.clockNow(), namespaced, rows)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		metav1.TypeMeta `json:",inline"`
		metav1.ListMeta `json:"metadata,omitempty"`
		Items           []xresource.Resource `json:"items"`
	}{
		TypeMeta: metav1.TypeMeta{
			Kind:       kc.crd.Spec.Kind + "List",
			APIVersion: kc.crd.Spec.Group + "/" + kc.crd.Spec.Version,
		},
		Items: items,
	})
}

func (s *Server) handleCreateResource(w http.ResponseWriter, r *http.Request) {
	kc := s.resolveKind(w, r)
	if kc == nil {
		return
	}

	var res xresource.Resource
	if err := json.NewDecoder(r.Body).Decode(&res); err != nil {
		writeError(w, http.StatusBadRequest, "cannot decode body: "+err.Error())
		return
	}
	if res.Name == "" && res.GenerateName == "" {
		writeError(w, http.StatusBadRequest, "metadata.name or metadata.generateName is required")
		return
	}

	res.Group = kc.crd.Spec.Group
	res.Version = kc.crd.Spec.Version
	res.Plural = kc.crd.Spec.Plural
	res.Namespace = kc.namespace
	res.Status = nil

	if err := s.store.CreateResource(r.Context(), &res); err != nil {
		switch {
		case store.IsAlreadyExists(err):
			writeError(w, http.StatusConflict, err.Error())
		case store.IsUnknownKind(err):
			// The CRD was deleted between resolution and create.
			writeError(w, http.StatusNotFound, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	if err := s.producer.Send(r.Context(), messageFor(queue.ActionCreate, kc, &res)); err != nil {
		// The instance is stored; the drift scanner converges it if this
		// message never makes it out.
		s.log.Info("Cannot enqueue create message", "kind", kc.crd.Spec.Kind, "name", res.Name, "error", err)
	}

	s.log.Debug("Created resource", "kind", kc.crd.Spec.Kind, "name", res.Name, "namespace", res.Namespace)
	writeJSON(w, http.StatusCreated, kc.envelope(&res))
}

func (s *Server) handleGetResource(w http.ResponseWriter, r *http.Request) {
	kc := s.resolveKind(w, r)
	if kc == nil {
		return
	}

	res, err := s.store.GetResource(r.Context(), kc.key(chi.URLParam(r, "name")))
	if store.IsNotFound(err) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, kc.envelope(res))
}

// handlePatchResource overlays the body's spec onto the stored spec, top-level
// key by top-level key. Patches do not emit reconcile messages; the drift
// scanner picks the change up.
func (s *Server) handlePatchResource(w http.ResponseWriter, r *http.Request) {
	kc := s.resolveKind(w, r)
	if kc == nil {
		return
	}

	var body struct {
		Spec map[string]any `json:"spec"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "cannot decode body: "+err.Error())
		return
	}
	if len(body.Spec) == 0 {
		writeError(w, http.StatusBadRequest, "spec with at least one key is required")
		return
	}

	res, err := s.store.PatchResourceSpec(r.Context(), kc.key(chi.URLParam(r, "name")), body.Spec)
	if store.IsNotFound(err) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, kc.envelope(res))
}

// handleDeleteResource removes an instance and emits a delete message carrying
// its last stored spec and status, which is all the reconciler has to find the
// external object.
func (s *Server) handleDeleteResource(w http.ResponseWriter, r *http.Request) {
	kc := s.resolveKind(w, r)
	if kc == nil {
		return
	}

	res, err := s.store.DeleteResource(r.Context(), kc.key(chi.URLParam(r, "name")))
	if store.IsNotFound(err) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := s.producer.Send(r.Context(), messageFor(queue.ActionDelete, kc, res)); err != nil {
		s.log.Info("Cannot enqueue delete message", "kind", kc.crd.Spec.Kind, "name", res.Name, "error", err)
	}

	s.log.Debug("Deleted resource", "kind", kc.crd.Spec.Kind, "name", res.Name, "namespace", res.Namespace)
	writeJSON(w, http.StatusOK, kc.envelope(res))
}

func messageFor(action queue.Action, kc *kindContext, res *xresource.Resource) queue.Message {
	return queue.Message{
		Action:    action,
		Kind:      kc.crd.Spec.Kind,
		Plural:    kc.crd.Spec.Plural,
		Group:     kc.crd.Spec.Group,
		Namespace: res.Namespace,
		Name:      res.Name,
		Spec:      res.Spec,
		Status:    res.Status,
	}
}
