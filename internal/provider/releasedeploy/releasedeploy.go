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

// Package releasedeploy implements the composite deployment orchestrator. One
// ReleaseDeploy instance resolves a repository release through the code
// hosting API, then derives a fixed chain of platform objects from it: an
// application, an immutable version snapshotting the release tag, and a
// deployment serving that version. The application is the primary object;
// failures further down the chain are logged and recorded, never fatal.
package releasedeploy

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/Masterminds/semver"

	"github.com/crossplane/crossplane-runtime/pkg/errors"
	"github.com/crossplane/crossplane-runtime/pkg/logging"

	"github.com/edgeplane/edgeplane/internal/provider"
	"github.com/edgeplane/edgeplane/internal/provider/cloudflare"
	"github.com/edgeplane/edgeplane/internal/provider/github"
)

// Status fields recorded by this driver.
const (
	ApplicationIDKey = "application_id"
	VersionIDKey     = "version_id"
	DeploymentIDKey  = "deployment_id"
	ReleaseTagKey    = "release_tag"
)

// Error strings.
const (
	errDecodeSpec = "cannot decode ReleaseDeploy spec"
	errRepository = "spec.repository must be owner/name"
	errTag        = "spec.tag is not a semantic version"
	errRelease    = "cannot resolve release"
	errCreateApp  = "cannot create application"
)

// A Releases client resolves release metadata.
type Releases interface {
	Release(ctx context.Context, owner, repo, tag string) (*github.Release, error)
}

// A Driver orchestrates composite deployments.
type Driver struct {
	apps     *cloudflare.Apps
	releases Releases
	log      logging.Logger
}

// An Option configures the driver.
type Option func(*Driver)

// WithLogger configures how the driver logs child provisioning failures.
func WithLogger(log logging.Logger) Option {
	return func(d *Driver) {
		d.log = log
	}
}

// New returns a composite deployment driver.
func New(apps *cloudflare.Apps, releases Releases, o ...Option) *Driver {
	d := &Driver{
		apps:     apps,
		releases: releases,
		log:      logging.NewNopLogger(),
	}
	for _, fn := range o {
		fn(d)
	}
	return d
}

var _ provider.Driver = &Driver{}

type spec struct {
	Repository string `json:"repository"`
	Tag        string `json:"tag,omitempty"`
}

func decodeSpec(m map[string]any) (spec, error) {
	var s spec

	j, err := json.Marshal(m)
	if err != nil {
		return s, errors.Wrap(err, errDecodeSpec)
	}
	if err := json.Unmarshal(j, &s); err != nil {
		return s, errors.Wrap(err, errDecodeSpec)
	}

	if s.Tag != "" {
		if _, err := semver.NewVersion(strings.TrimPrefix(s.Tag, "v")); err != nil {
			return s, errors.Wrap(err, errTag)
		}
	}
	return s, nil
}

// IDKey returns the status field that carries the application identifier.
func (d *Driver) IDKey() string { return ApplicationIDKey }

// Create resolves the declared release and provisions the derived chain. The
// application is created first and is the object the returned creation
// reports; version and deployment identifiers ride along in Extra. A failure
// after the application exists is logged and the creation still succeeds.
// Later reconciles adopt the existing application and do not rebuild missing
// children.
func (d *Driver) Create(ctx context.Context, name string, specMap map[string]any) (*provider.Creation, error) {
	s, err := decodeSpec(specMap)
	if err != nil {
		return nil, err
	}

	owner, repo, ok := strings.Cut(s.Repository, "/")
	if !ok || owner == "" || repo == "" {
		return nil, errors.New(errRepository)
	}

	rel, err := d.releases.Release(ctx, owner, repo, s.Tag)
	if err != nil {
		return nil, errors.Wrap(err, errRelease)
	}

	app, err := d.apps.CreateApplication(ctx, name, s.Repository)
	if err != nil {
		return nil, errors.Wrap(err, errCreateApp)
	}

	extra := map[string]any{ReleaseTagKey: rel.TagName}

	ver, err := d.apps.CreateVersion(ctx, app.ID, rel.TagName)
	if err != nil {
		d.log.Info("Cannot create version; application left undeployed", "application", app.ID, "tag", rel.TagName, "error", err)
		return &provider.Creation{ID: app.ID, Extra: extra, Degraded: "version creation failed: " + err.Error()}, nil
	}
	extra[VersionIDKey] = ver.ID

	dep, err := d.apps.CreateDeployment(ctx, app.ID, ver.ID)
	if err != nil {
		d.log.Info("Cannot create deployment; application left undeployed", "application", app.ID, "version", ver.ID, "error", err)
		return &provider.Creation{ID: app.ID, Extra: extra, Degraded: "deployment creation failed: " + err.Error()}, nil
	}
	extra[DeploymentIDKey] = dep.ID

	return &provider.Creation{ID: app.ID, Extra: extra}, nil
}

// List returns every application on the account.
func (d *Driver) List(ctx context.Context) ([]provider.Object, error) {
	return d.apps.ListApplications(ctx)
}

// Delete removes the derived chain in reverse order of creation: deployment,
// then version, then application. Identifiers missing from the carried status
// are skipped silently, as are objects that are already gone.
func (d *Driver) Delete(ctx context.Context, status map[string]any) error {
	appID, _ := status[ApplicationIDKey].(string)

	if depID, _ := status[DeploymentIDKey].(string); depID != "" && appID != "" {
		if err := d.apps.DeleteDeployment(ctx, appID, depID); err != nil && !provider.IsNotFound(err) {
			return err
		}
	}

	if verID, _ := status[VersionIDKey].(string); verID != "" && appID != "" {
		if err := d.apps.DeleteVersion(ctx, appID, verID); err != nil && !provider.IsNotFound(err) {
			return err
		}
	}

	if appID == "" {
		return nil
	}
	err := d.apps.DeleteApplication(ctx, appID)
	if provider.IsNotFound(err) {
		return nil
	}
	return err
}
