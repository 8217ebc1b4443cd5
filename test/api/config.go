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

package api

import (
	"os"
	"time"

	"github.com/unikorn-cloud/dcos-harness/pkg/config"
)

// TestConfig is the harness configuration plus test only settings.
type TestConfig struct {
	*config.Config

	// Enabled is true when a cluster has been explicitly configured.
	Enabled bool
	// ReadyTimeout bounds the wait for the cluster to become ready.
	ReadyTimeout time.Duration
	// JobTimeout bounds one-off job runs.
	JobTimeout time.Duration
	// DiagnosticsDir, if set, enables diagnostics bundle tests, which are
	// slow, and downloads the bundles there.
	DiagnosticsDir string
}

// LoadTestConfig loads configuration from environment variables and .env files.
func LoadTestConfig() (*TestConfig, error) {
	c, err := config.Load("../../.env", "../../../.env")
	if err != nil {
		return nil, err
	}

	_, enabled := os.LookupEnv("DCOS_DNS_ADDRESS")

	readyTimeout, err := getDurationWithDefault("TEST_READY_TIMEOUT", 30*time.Minute)
	if err != nil {
		return nil, err
	}

	jobTimeout, err := getDurationWithDefault("TEST_JOB_TIMEOUT", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	testConfig := &TestConfig{
		Config:         c,
		Enabled:        enabled,
		ReadyTimeout:   readyTimeout,
		JobTimeout:     jobTimeout,
		DiagnosticsDir: os.Getenv("TEST_DIAGNOSTICS_DIR"),
	}

	return testConfig, nil
}

// getDurationWithDefault gets a duration from environment variable or returns default.
func getDurationWithDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	return time.ParseDuration(value)
}
