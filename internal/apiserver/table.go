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
	"strings"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/duration"
)

// wantsTable reports whether the client negotiated the kubectl-style Table
// rendering of a list.
func wantsTable(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "as=Table") && strings.Contains(accept, "g=meta.k8s.io")
}

// A tableRow is one object of a list rendered as a Table.
type tableRow struct {
	name      string
	namespace string
	created   metav1.Time
	object    any
}

// writeTable renders rows as a meta.k8s.io/v1 Table with Name, optional
// Namespace, and humanized Age columns. Each row carries the full object.
func writeTable(w http.ResponseWriter, now time.Time, namespaced bool, rows []tableRow) {
	cols := []metav1.TableColumnDefinition{
		{Name: "Name", Type: "string", Format: "name"},
	}
	if namespaced {
		cols = append(cols, metav1.TableColumnDefinition{Name: "Namespace", Type: "string"})
	}
	cols = append(cols, metav1.TableColumnDefinition{Name: "Age", Type: "string"})

	trs := make([]metav1.TableRow, 0, len(rows))
	for _, row := range rows {
		cells := []any{row.name}
		if namespaced {
			cells = append(cells, row.namespace)
		}
		cells = append(cells, duration.HumanDuration(now.Sub(row.created.Time)))

		raw, err := json.Marshal(row.object)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		trs = append(trs, metav1.TableRow{
			Cells:  cells,
			Object: runtime.RawExtension{Raw: raw},
		})
	}

	writeJSON(w, http.StatusOK, metav1.Table{
		TypeMeta:          metav1.TypeMeta{Kind: "Table", APIVersion: "meta.k8s.io/v1"},
		ColumnDefinitions: cols,
		Rows:              trs,
	})
}
