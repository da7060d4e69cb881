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
	"path/filepath"

	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"

	"github.com/crossplane/crossplane-runtime/pkg/errors"
	"github.com/crossplane/crossplane-runtime/pkg/logging"

	apiextensionsv1 "github.com/edgeplane/edgeplane/apis/apiextensions/v1"
	platformv1 "github.com/edgeplane/edgeplane/apis/platform/v1"
	"github.com/edgeplane/edgeplane/internal/store"
)

// Error strings.
const (
	errSeedCRD   = "cannot seed CustomResourceDefinition"
	errReadSeed  = "cannot read seed directory"
	errParseSeed = "cannot parse seed manifest"
)

// NewCoreCRDs returns a new *CoreCRDs.
func NewCoreCRDs(log logging.Logger) *CoreCRDs {
	return &CoreCRDs{log: log}
}

// CoreCRDs makes sure the built-in platform kinds are defined. Definitions
// that already exist are left untouched.
type CoreCRDs struct {
	log logging.Logger
}

// Run seeds the built-in platform CRDs.
func (c *CoreCRDs) Run(ctx context.Context, s store.Store) error {
	for _, crd := range platformv1.Definitions() {
		err := s.CreateCRD(ctx, crd)
		if store.IsAlreadyExists(err) {
			continue
		}
		if err != nil {
			return errors.Wrap(err, errSeedCRD)
		}
		c.log.Debug("Seeded built-in CustomResourceDefinition", "name", crd.Name)
	}
	return nil
}

// NewSeedDirectory returns a new *SeedDirectory.
func NewSeedDirectory(fs afero.Fs, path string, log logging.Logger) *SeedDirectory {
	return &SeedDirectory{fs: fs, Path: path, log: log}
}

// SeedDirectory applies CustomResourceDefinition manifests from a directory of
// YAML files, so an installation can declare its kinds ahead of first boot.
// Definitions that already exist are left untouched.
type SeedDirectory struct {
	Path string

	fs  afero.Fs
	log logging.Logger
}

// Run applies all YAML manifests in the directory. A missing directory is
// nothing to seed, not an error.
func (d *SeedDirectory) Run(ctx context.Context, s store.Store) error {
	exists, err := afero.DirExists(d.fs, d.Path)
	if err != nil {
		return errors.Wrap(err, errReadSeed)
	}
	if !exists {
		return nil
	}

	entries, err := afero.ReadDir(d.fs, d.Path)
	if err != nil {
		return errors.Wrap(err, errReadSeed)
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		raw, err := afero.ReadFile(d.fs, filepath.Join(d.Path, e.Name()))
		if err != nil {
			return errors.Wrap(err, errReadSeed)
		}

		var crd apiextensionsv1.CustomResourceDefinition
		if err := yaml.Unmarshal(raw, &crd); err != nil {
			return errors.Wrapf(err, "%s: %s", errParseSeed, e.Name())
		}
		crd.Default()

		err = s.CreateCRD(ctx, &crd)
		if store.IsAlreadyExists(err) {
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "%s: %s", errSeedCRD, e.Name())
		}
		d.log.Debug("Seeded CustomResourceDefinition from manifest", "file", e.Name(), "name", crd.Name)
	}
	return nil
}
