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

package initializer

import (
	"context"
	"time"

	"github.com/avast/retry-go"

	"github.com/crossplane/crossplane-runtime/pkg/errors"
	"github.com/crossplane/crossplane-runtime/pkg/logging"

	"github.com/edgeplane/edgeplane/internal/store"
)

const errStoreNotReady = "store did not become ready"

// NewStoreWaiter returns a new *StoreWaiter initializer.
func NewStoreWaiter(attempts uint, delay time.Duration, log logging.Logger) *StoreWaiter {
	return &StoreWaiter{Attempts: attempts, Delay: delay, log: log}
}

// StoreWaiter blocks execution until the store answers a ping. A control plane
// typically starts alongside its database; this absorbs the window where the
// database is still coming up.
type StoreWaiter struct {
	Attempts uint
	Delay    time.Duration
	log      logging.Logger
}

// Run pings the store until it answers or the attempts run out.
func (w *StoreWaiter) Run(ctx context.Context, s store.Store) error {
	err := retry.Do(
		func() error { return s.Ping(ctx) },
		retry.Context(ctx),
		retry.Attempts(w.Attempts),
		retry.Delay(w.Delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			w.log.Info("Waiting for store to become ready", "attempt", n+1, "error", err)
		}),
	)
	return errors.Wrap(err, errStoreNotReady)
}
