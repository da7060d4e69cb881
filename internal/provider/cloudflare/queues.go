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

// QueueIDKey is the status field that carries a queue's platform identifier.
const QueueIDKey = "queue_id"

type platformQueue struct {
	QueueID   string `json:"queue_id"`
	QueueName string `json:"queue_name"`
}

// A Queues driver provisions message queues.
type Queues struct {
	client *Client
}

// NewQueues returns a driver for message queues.
func NewQueues(client *Client) *Queues {
	return &Queues{client: client}
}

var _ provider.Driver = &Queues{}

// IDKey returns the status field that carries the queue identifier.
func (q *Queues) IDKey() string { return QueueIDKey }

// Create provisions a queue under the supplied name.
func (q *Queues) Create(ctx context.Context, name string, _ map[string]any) (*provider.Creation, error) {
	var created platformQueue
	if err := q.client.post(ctx, "/queues", map[string]any{"queue_name": name}, &created); err != nil {
		return nil, err
	}
	return &provider.Creation{ID: created.QueueID}, nil
}

// List returns every queue on the account.
func (q *Queues) List(ctx context.Context) ([]provider.Object, error) {
	var queues []platformQueue
	if err := q.client.get(ctx, "/queues", &queues); err != nil {
		return nil, err
	}

	out := make([]provider.Object, 0, len(queues))
	for _, pq := range queues {
		out = append(out, provider.Object{Name: pq.QueueName, ID: pq.QueueID})
	}
	return out, nil
}

// Delete removes the queue recorded in the carried status.
func (q *Queues) Delete(ctx context.Context, status map[string]any) error {
	id, _ := status[QueueIDKey].(string)
	if id == "" {
		return nil
	}

	err := q.client.delete(ctx, "/queues/"+id)
	if provider.IsNotFound(err) {
		return nil
	}
	return err
}
