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

// Package memory implements the work queue in process on a client-go rate
// limiting workqueue. Messages are keyed by their JSON encoding, so duplicate
// enqueues of an identical message coalesce while in the queue, and retries
// back off per message. Nothing survives a restart; the Redis adapter exists
// for deployments that need that.
package memory

import (
	"context"
	"encoding/json"

	"k8s.io/client-go/util/workqueue"

	"github.com/crossplane/crossplane-runtime/pkg/errors"

	"github.com/edgeplane/edgeplane/internal/queue"
)

// Error strings.
const (
	errClosed = "queue is shut down"
	errEncode = "cannot encode message"
	errDecode = "cannot decode message"
)

// A Queue delivers messages in process.
type Queue struct {
	q workqueue.RateLimitingInterface
}

// New returns an empty in-process queue.
func New() *Queue {
	return &Queue{q: workqueue.NewRateLimitingQueue(workqueue.DefaultControllerRateLimiter())}
}

// Send enqueues a message. Add never blocks, so sending from inside a message
// handler cannot deadlock the queue.
func (q *Queue) Send(_ context.Context, m queue.Message) error {
	j, err := json.Marshal(m)
	if err != nil {
		return errors.Wrap(err, errEncode)
	}
	q.q.Add(string(j))
	return nil
}

// Receive blocks until a message is available, the queue is shut down, or the
// context is done. The in-process adapter delivers one message per call
// regardless of max; batching only pays off over a network.
func (q *Queue) Receive(ctx context.Context, _ int) ([]queue.Delivery, error) {
	type got struct {
		item     any
		shutdown bool
	}

	ch := make(chan got)
	go func() {
		item, shutdown := q.q.Get()
		if shutdown {
			ch <- got{shutdown: true}
			return
		}
		select {
		case ch <- got{item: item}:
		case <-ctx.Done():
			// The receiver gave up; put the item back for the next call.
			q.q.Done(item)
			q.q.Add(item)
		}
	}()

	select {
	case g := <-ch:
		if g.shutdown {
			return nil, errors.New(errClosed)
		}
		key, ok := g.item.(string)
		if !ok {
			q.q.Forget(g.item)
			q.q.Done(g.item)
			return nil, errors.New(errDecode)
		}

		var m queue.Message
		if err := json.Unmarshal([]byte(key), &m); err != nil {
			q.q.Forget(g.item)
			q.q.Done(g.item)
			return nil, errors.Wrap(err, errDecode)
		}

		return []queue.Delivery{&delivery{q: q.q, key: key, m: m}}, nil

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ShutDown stops delivery. Blocked Receive calls return an error.
func (q *Queue) ShutDown() {
	q.q.ShutDown()
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	return q.q.Len()
}

type delivery struct {
	q   workqueue.RateLimitingInterface
	key string
	m   queue.Message
}

func (d *delivery) Message() queue.Message { return d.m }

// Ack settles the delivery and resets the message's backoff.
func (d *delivery) Ack(_ context.Context) error {
	d.q.Forget(d.key)
	d.q.Done(d.key)
	return nil
}

// Retry requeues the message with rate limited backoff.
func (d *delivery) Retry(_ context.Context) error {
	d.q.AddRateLimited(d.key)
	d.q.Done(d.key)
	return nil
}
