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
	"github.com/edgeplane/edgeplane/internal/store"
)

func (s *Server) handleListCRDs(w http.ResponseWriter, r *http.Request) {
	crds, err := s.store.ListCRDs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if wantsTable(r) {
		rows := make([]tableRow, 0, len(crds))
		for i := range crds {
			rows = append(rows, tableRow{
				name:    crds[i].Name,
				created: crds[i].CreationTimestamp,
				object:  &crds[i],
			})
		}
		writeTable(w, s.clockNow(), false, rows)
		return
	}

	writeJSON(w, http.StatusOK, v1.CustomResourceDefinitionList{
		TypeMeta: metav1.TypeMeta{Kind: v1.CustomResourceDefinitionKind + "List", APIVersion: v1.APIVersion},
		Items:    crds,
	})
}

func (s *Server) handleCreateCRD(w http.ResponseWriter, r *http.Request) {
	var crd v1.CustomResourceDefinition
	if err := json.NewDecoder(r.Body).Decode(&crd); err != nil {
		writeError(w, http.StatusBadRequest, "cannot decode body: "+err.Error())
		return
	}

	if err := s.validate.Struct(crd.Spec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid definition: "+err.Error())
		return
	}
	crd.Default()

	if err := s.store.CreateCRD(r.Context(), &crd); err != nil {
		if store.IsAlreadyExists(err) {
			writeError(w, http.StatusConflict, crd.Name+" already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.log.Debug("Created CustomResourceDefinition", "name", crd.Name)
	writeJSON(w, http.StatusCreated, crd)
}

func (s *Server) handleGetCRD(w http.ResponseWriter, r *http.Request) {
	crd, err := s.store.GetCRDByName(r.Context(), chi.URLParam(r, "name"))
	if store.IsNotFound(err) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, crd)
}

// handleDeleteCRD removes a definition and every instance of its kind. The
// cascade is silent: no per-instance delete messages are emitted, external
// cleanup converges through the orphan sweep.
func (s *Server) handleDeleteCRD(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	crd, err := s.store.GetCRDByName(r.Context(), name)
	if store.IsNotFound(err) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := s.store.DeleteCRD(r.Context(), name); err != nil {
		if store.IsNotFound(err) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.log.Debug("Deleted CustomResourceDefinition", "name", name)
	writeJSON(w, http.StatusOK, crd)
}
