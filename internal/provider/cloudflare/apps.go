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

// An Application is a deployable unit on the platform. Applications own
// immutable Versions, and a Deployment points one application at one version.
type Application struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Repository string `json:"repository,omitempty"`
}

// A Version is an immutable snapshot of an application at a release tag.
type Version struct {
	ID  string `json:"id"`
	Tag string `json:"tag"`
}

// A Deployment serves one version of one application.
type Deployment struct {
	ID        string `json:"id"`
	AppID     string `json:"app_id"`
	VersionID string `json:"version_id"`
}

// An Apps client manages applications, their versions and their deployments.
type Apps struct {
	client *Client
}

// NewApps returns a client for the applications API.
func NewApps(client *Client) *Apps {
	return &Apps{client: client}
}

// CreateApplication creates an application tracking the supplied repository.
func (a *Apps) CreateApplication(ctx context.Context, name, repository string) (*Application, error) {
	var app Application
	err := a.client.post(ctx, "/apps", map[string]any{"name": name, "repository": repository}, &app)
	if err != nil {
		return nil, err
	}
	return &app, nil
}

// ListApplications returns every application on the account.
func (a *Apps) ListApplications(ctx context.Context) ([]provider.Object, error) {
	var apps []Application
	if err := a.client.get(ctx, "/apps", &apps); err != nil {
		return nil, err
	}

	out := make([]provider.Object, 0, len(apps))
	for _, app := range apps {
		out = append(out, provider.Object{Name: app.Name, ID: app.ID})
	}
	return out, nil
}

// DeleteApplication removes an application.
func (a *Apps) DeleteApplication(ctx context.Context, id string) error {
	return a.client.delete(ctx, "/apps/"+id)
}

// CreateVersion snapshots an application at a release tag.
func (a *Apps) CreateVersion(ctx context.Context, appID, tag string) (*Version, error) {
	var v Version
	err := a.client.post(ctx, "/apps/"+appID+"/versions", map[string]any{"tag": tag}, &v)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// DeleteVersion removes a version of an application.
func (a *Apps) DeleteVersion(ctx context.Context, appID, id string) error {
	return a.client.delete(ctx, "/apps/"+appID+"/versions/"+id)
}

// CreateDeployment points an application at a version.
func (a *Apps) CreateDeployment(ctx context.Context, appID, versionID string) (*Deployment, error) {
	var d Deployment
	err := a.client.post(ctx, "/apps/"+appID+"/deployments", map[string]any{"version_id": versionID}, &d)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// DeleteDeployment removes a deployment of an application.
func (a *Apps) DeleteDeployment(ctx context.Context, appID, id string) error {
	return a.client.delete(ctx, "/apps/"+appID+"/deployments/"+id)
}
