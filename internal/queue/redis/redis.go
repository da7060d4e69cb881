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

// Package redis implements the work queue on a Redis stream with a consumer
// group. XADD never blocks on capacity, acknowledgement is XACK, and an
// XAUTOCLAIM pass on every receive reclaims messages whose consumer died
// mid-delivery, which is what makes delivery at-least-once across process
// restarts.
package redis

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/crossplane/crossplane-runtime/pkg/errors"

	"github.com/edgeplane/edgeplane/internal/queue"
)

const payloadField = "message"

const (
	defaultBlock   = 5 * time.Second
	defaultMinIdle = time.Minute
)

// Error strings.
const (
	errCreateGroup = "cannot create consumer group"
	errSend        = "cannot add message to stream"
	errClaim       = "cannot reclaim abandoned messages"
	errRead        = "cannot read from stream"
	errEncode      = "cannot encode message"
	errAck         = "cannot acknowledge message"
	errRetry       = "cannot requeue message"
)

// A Queue delivers messages through a Redis stream.
type Queue struct {
	client   redis.UniversalClient
	stream   string
	group    string
	consumer string

	block   time.Duration
	minIdle time.Duration
}

// An Option configures the queue.
type Option func(*Queue)

// WithBlock configures how long a receive blocks waiting for messages before
// returning empty handed.
func WithBlock(d time.Duration) Option {
	return func(q *Queue) {
		q.block = d
	}
}

// WithMinIdle configures how long a pending message may sit with a dead
// consumer before being reclaimed.
func WithMinIdle(d time.Duration) Option {
	return func(q *Queue) {
		q.minIdle = d
	}
}

// New returns a queue on the supplied stream, creating the consumer group if
// it does not exist yet.
func New(ctx context.Context, client redis.UniversalClient, stream, group, consumer string, o ...Option) (*Queue, error) {
	q := &Queue{
		client:   client,
		stream:   stream,
		group:    group,
		consumer: consumer,
		block:    defaultBlock,
		minIdle:  defaultMinIdle,
	}
	for _, fn := range o {
		fn(q)
	}

	err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return nil, errors.Wrap(err, errCreateGroup)
	}
	return q, nil
}

// Send adds a message to the stream.
func (q *Queue) Send(ctx context.Context, m queue.Message) error {
	j, err := json.Marshal(m)
	if err != nil {
		return errors.Wrap(err, errEncode)
	}

	return errors.Wrap(q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]any{payloadField: string(j)},
	}).Err(), errSend)
}

// Receive returns up to max deliveries. Reclaimed messages from dead
// consumers are delivered before new ones.
func (q *Queue) Receive(ctx context.Context, max int) ([]queue.Delivery, error) {
	claimed, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: q.consumer,
		MinIdle:  q.minIdle,
		Start:    "0",
		Count:    int64(max),
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, errors.Wrap(err, errClaim)
	}

	msgs := claimed
	if len(msgs) < max {
		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: q.consumer,
			Streams:  []string{q.stream, ">"},
			Count:    int64(max - len(msgs)),
			Block:    q.block,
		}).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, errors.Wrap(err, errRead)
		}
		for _, s := range streams {
			msgs = append(msgs, s.Messages...)
		}
	}

	ds := make([]queue.Delivery, 0, len(msgs))
	for _, raw := range msgs {
		payload, ok := raw.Values[payloadField].(string)
		if !ok {
			// Junk on the stream; settle it so it never comes back.
			q.client.XAck(ctx, q.stream, q.group, raw.ID)
			continue
		}

		var m queue.Message
		if err := json.Unmarshal([]byte(payload), &m); err != nil {
			q.client.XAck(ctx, q.stream, q.group, raw.ID)
			continue
		}

		ds = append(ds, &delivery{q: q, id: raw.ID, payload: payload, m: m})
	}
	return ds, nil
}

type delivery struct {
	q       *Queue
	id      string
	payload string
	m       queue.Message
}

func (d *delivery) Message() queue.Message { return d.m }

// Ack settles the delivery and trims it from the stream.
func (d *delivery) Ack(ctx context.Context) error {
	if err := d.q.client.XAck(ctx, d.q.stream, d.q.group, d.id).Err(); err != nil {
		return errors.Wrap(err, errAck)
	}
	return errors.Wrap(d.q.client.XDel(ctx, d.q.stream, d.id).Err(), errAck)
}

// Retry re-adds the message to the tail of the stream, then settles the
// original delivery. Re-adding first keeps delivery at-least-once even if the
// process dies between the two calls.
func (d *delivery) Retry(ctx context.Context) error {
	err := d.q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: d.q.stream,
		Values: map[string]any{payloadField: d.payload},
	}).Err()
	if err != nil {
		return errors.Wrap(err, errRetry)
	}

	if err := d.q.client.XAck(ctx, d.q.stream, d.q.group, d.id).Err(); err != nil {
		return errors.Wrap(err, errRetry)
	}
	return errors.Wrap(d.q.client.XDel(ctx, d.q.stream, d.id).Err(), errRetry)
}
