/*
Copyright 2024-2025 the Unikorn Authors.
Copyright 2026 Nscale.

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

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/unikorn-cloud/dcos-harness/pkg/config"
	"github.com/unikorn-cloud/dcos-harness/pkg/constants"
	"github.com/unikorn-cloud/dcos-harness/pkg/diagnostics"
	"github.com/unikorn-cloud/dcos-harness/pkg/session"

	coreoptions "github.com/unikorn-cloud/core/pkg/options"

	cr "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

var errDiagnostics = errors.New("diagnostics collection failed")

type options struct {
	envFile        string
	url            string
	waitForHosts   bool
	timeout        time.Duration
	diagnosticsDir string
	core           coreoptions.CoreOptions
}

func (o *options) addFlags(f *pflag.FlagSet) {
	f.StringVar(&o.envFile, "env-file", ".env", "Environment file to load before reading the environment.")
	f.StringVar(&o.url, "url", "", "Cluster gateway URL, overrides DCOS_DNS_ADDRESS.")
	f.BoolVar(&o.waitForHosts, "wait-for-hosts", true, "Require the full topology to be defined, overrides WAIT_FOR_HOSTS.")
	f.DurationVar(&o.timeout, "timeout", 0, "Maximum time to wait for the cluster, zero waits forever.")
	f.StringVar(&o.diagnosticsDir, "diagnostics-dir", "", "Collect diagnostics bundles into this directory if the cluster does not become ready.")

	o.core.AddFlags(f)
}

// apply overrides the environment with any flags explicitly set.
func (o *options) apply(f *pflag.FlagSet, c *config.Config) {
	if f.Changed("url") {
		c.URL = o.url
	}

	if f.Changed("wait-for-hosts") {
		c.WaitForHosts = o.waitForHosts
	}
}

// collectDiagnostics creates a diagnostics bundle and downloads every
// bundle the cluster holds.
func collectDiagnostics(ctx context.Context, health *diagnostics.Client, dir string) error {
	if _, err := health.StartJob(ctx); err != nil {
		return err
	}

	if err := health.WaitForJob(ctx); err != nil {
		return err
	}

	ids, err := health.Reports(ctx)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return health.Download(ctx, ids, dir)
}

func run(o *options) error {
	logger := log.Log.WithName("init")
	logger.Info("starting", "application", constants.Application, "version", constants.Version, "revision", constants.Revision)

	c, err := config.Load(o.envFile)
	if err != nil {
		return err
	}

	o.apply(pflag.CommandLine, c)

	s, err := session.NewFromConfig(c)
	if err != nil {
		return err
	}

	ctx := log.IntoContext(cr.SetupSignalHandler(), log.Log)

	if o.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	if err := s.WaitUntilReady(ctx); err != nil {
		if o.diagnosticsDir != "" {
			// The wait context may have expired.
			if derr := collectDiagnostics(log.IntoContext(context.Background(), log.Log), s.Health(), o.diagnosticsDir); derr != nil {
				return fmt.Errorf("%w: %w: %w", errDiagnostics, derr, err)
			}
		}

		return err
	}

	version, err := s.Version(ctx)
	if err != nil {
		return err
	}

	fmt.Println(version)

	return nil
}

func main() {
	var o options

	o.addFlags(pflag.CommandLine)

	pflag.Parse()

	o.core.SetupLogging()

	if err := run(&o); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
