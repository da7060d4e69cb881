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

// Package version exposes the edgeplane build version.
package version

import (
	"github.com/Masterminds/semver"
)

// Set at build time via -ldflags.
var version string

// A Versioner reports the running build's version.
type Versioner struct {
	version string
}

// New returns a Versioner for the running build.
func New() *Versioner {
	return &Versioner{version: version}
}

// GetVersionString returns the build version as a string.
func (v *Versioner) GetVersionString() string {
	return v.version
}

// GetSemVer returns the build version as a semantic version.
func (v *Versioner) GetSemVer() (*semver.Version, error) {
	return semver.NewVersion(v.version)
}

// InConstraints reports whether the build version satisfies the supplied
// semantic version constraints.
func (v *Versioner) InConstraints(c string) (bool, error) {
	ver, err := v.GetSemVer()
	if err != nil {
		return false, err
	}
	constraint, err := semver.NewConstraint(c)
	if err != nil {
		return false, err
	}
	return constraint.Check(ver), nil
}
