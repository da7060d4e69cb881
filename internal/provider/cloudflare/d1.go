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

package cloudflare

import (
	"context"

	"github.com/edgeplane/edgeplane/internal/provider"
)

// D1IDKey is the status field that carries a database's platform identifier.
const D1IDKey = "database_id"

type d1Database struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

// A D1 driver provisions serverless SQL databases.
type D1 struct {
	client *Client
}

// NewD1 returns a driver for serverless SQL databases.
func NewD1(client *Client) *D1 {
	return &D1{client: client}
}

var _ provider.Driver = &D1{}

// IDKey returns the status field that carries the database identifier.
func (d *D1) IDKey() string { return D1IDKey }

// Create provisions a database under the supplied name.
func (d *D1) Create(ctx context.Context, name string, _ map[string]any) (*provider.Creation, error) {
	var db d1Database
	if err := d.client.post(ctx, "/d1/database", map[string]any{"name": name}, &db); err != nil {
		return nil, err
	}
	return &provider.Creation{ID: db.UUID}, nil
}

// List returns every database on the account.
func (d *D1) List(ctx context.Context) ([]provider.Object, error) {
	var dbs []d1Database
	if err := d.client.get(ctx, "/d1/database", &dbs); err != nil {
		return nil, err
	}

	out := make([]provider.Object, 0, len(dbs))
	for _, db := range dbs {
		out = append(out, provider.Object{Name: db.Name, ID: db.UUID})
	}
	return out, nil
}

// Delete removes the database recorded in the carried status. A status
// without a database identifier, or a database that is already gone, is
// nothing to do.
func (d *D1) Delete(ctx context.Context, status map[string]any) error {
	id, _ := status[D1IDKey].(string)
	if id == "" {
		return nil
	}

	err := d.client.delete(ctx, "/d1/database/"+id)
	if provider.IsNotFound(err) {
		return nil
	}
	return err
}
