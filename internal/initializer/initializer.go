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

// Package initializer initializes a new installation of edgeplane: it waits
// for the store, migrates its schema, and seeds the built-in definitions.
// Every step is idempotent, so re-running on restart is safe.
package initializer

import (
	"context"
	"fmt"
	"reflect"

	"github.com/crossplane/crossplane-runtime/pkg/logging"

	"github.com/edgeplane/edgeplane/internal/store"
)

// New returns a new *Initializer.
func New(s store.Store, log logging.Logger, steps ...Step) *Initializer {
	return &Initializer{store: s, log: log, steps: steps}
}

// Step is a blocking step of the initialization process.
type Step interface {
	Run(ctx context.Context, s store.Store) error
}

// StepFunc is a function that implements Step.
type StepFunc func(ctx context.Context, s store.Store) error

// Run calls the step function.
func (f StepFunc) Run(ctx context.Context, s store.Store) error {
	return f(ctx, s)
}

// Initializer makes sure the store is reachable, migrated and seeded before
// the main edgeplane routines start.
type Initializer struct {
	steps []Step
	store store.Store
	log   logging.Logger
}

// Init runs all steps in order, failing on the first error.
func (c *Initializer) Init(ctx context.Context) error {
	for _, s := range c.steps {
		if s == nil {
			continue
		}
		if err := s.Run(ctx, c.store); err != nil {
			return err
		}
		t := reflect.TypeOf(s)
		var name string
		if t != nil {
			if t.Kind() == reflect.Ptr {
				t = t.Elem()
			}
			name = t.Name()
		} else {
			name = fmt.Sprintf("%T", s)
		}
		c.log.Info("Step has been completed", "Name", name)
	}
	return nil
}
