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

	"github.com/crossplane/crossplane-runtime/pkg/errors"
	"github.com/crossplane/crossplane-runtime/pkg/logging"

	"github.com/edgeplane/edgeplane/internal/store"
)

const errMigrateStore = "cannot migrate store schema"

// NewStoreMigrator returns a new *StoreMigrator.
func NewStoreMigrator(log logging.Logger) *StoreMigrator {
	return &StoreMigrator{log: log}
}

// StoreMigrator brings the store schema up to date. Stores without a schema,
// like the in-memory one, have nothing to migrate and pass through.
type StoreMigrator struct {
	log logging.Logger
}

// Run migrates stores that support migration.
func (m *StoreMigrator) Run(ctx context.Context, s store.Store) error {
	type migratable interface {
		Migrate(ctx context.Context) error
	}

	mg, ok := s.(migratable)
	if !ok {
		return nil
	}

	if err := mg.Migrate(ctx); err != nil {
		return errors.Wrap(err, errMigrateStore)
	}
	m.log.Debug("Store schema migrated")
	return nil
}
