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

// Package queue defines at-least-once delivery of reconcile messages. There
// are no ordering guarantees and a message may be delivered more than once;
// consumers must be idempotent. Producers must never block on a full queue, so
// a message handler can safely enqueue fan-out messages mid-delivery.
package queue

import "context"

// An Action requested by a reconcile message.
type Action string

// Actions a message may request.
const (
	ActionCreate Action = "create"
	ActionDelete Action = "delete"
)

// A Message asks the reconciler to drive one instance toward its declared
// state. Delete messages carry the instance's last stored spec and status,
// because by the time they are handled the instance is gone from the store.
type Message struct {
	Action    Action         `json:"action"`
	Kind      string         `json:"kind"`
	Plural    string         `json:"plural"`
	Group     string         `json:"group"`
	Namespace string         `json:"namespace,omitempty"`
	Name      string         `json:"name"`
	Spec      map[string]any `json:"spec,omitempty"`
	Status    map[string]any `json:"status,omitempty"`
}

// A Producer sends reconcile messages.
type Producer interface {
	// Send enqueues a message. It must not block on queue capacity.
	Send(ctx context.Context, m Message) error
}

// A Consumer receives batches of deliveries.
type Consumer interface {
	// Receive blocks until at least one message is available or the context
	// is done, then returns up to max deliveries.
	Receive(ctx context.Context, max int) ([]Delivery, error)
}

// A Delivery is one received message plus its settlement handle. Exactly one
// of Ack or Retry should be called per delivery.
type Delivery interface {
	// Message returns the delivered message.
	Message() Message

	// Ack settles the delivery; the message will not be redelivered.
	Ack(ctx context.Context) error

	// Retry requeues the message for another delivery attempt.
	Retry(ctx context.Context) error
}
