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

// Package main implements the edgeplane control plane binary.
package main

import (
	"fmt"

	"github.com/alecthomas/kong"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"

	"github.com/crossplane/crossplane-runtime/pkg/logging"

	"github.com/edgeplane/edgeplane/cmd/edgeplane/core"
	"github.com/edgeplane/edgeplane/internal/version"
)

type versionCmd struct{}

func (versionCmd) Run(k *kong.Context) error {
	_, err := fmt.Fprintln(k.Stdout, version.New().GetVersionString())
	return err
}

type cli struct {
	Debug bool `short:"d" help:"Run with debug logging."`

	Core    core.Cmd   `cmd:"" help:"Start or initialize the edgeplane control plane."`
	Version versionCmd `cmd:"" help:"Print the client version."`
}

func main() {
	c := &cli{}
	ctx := kong.Parse(c,
		kong.Name("edgeplane"),
		kong.Description("A minimal self-hosted declarative control plane."),
		kong.ConfigureHelp(kong.HelpOptions{
			FlagsLast:      true,
			Compact:        true,
			WrapUpperBound: 80,
		}),
		kong.UsageOnError())

	zl, err := zapConfig(c.Debug).Build()
	ctx.FatalIfErrorf(err)
	defer func() { _ = zl.Sync() }()

	ctx.FatalIfErrorf(ctx.Run(logging.NewLogrLogger(zapr.NewLogger(zl))))
}

func zapConfig(debug bool) zap.Config {
	if debug {
		return zap.NewDevelopmentConfig()
	}
	return zap.NewProductionConfig()
}
