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

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultURL is used when no cluster address is configured, it resolves
// to the leading master from inside the cluster.
const DefaultURL = "http://leader.mesos"

// ErrInvalidValue is raised when an environment variable cannot be parsed.
var ErrInvalidValue = errors.New("invalid configuration value")

// Config describes the cluster under test and how to talk to it.
type Config struct {
	// URL is the gateway address.
	URL string
	// AuthToken, if set, is used as-is and login is skipped.
	AuthToken string
	// Credentials are posted to the login endpoint when no token is set.
	Credentials map[string]any
	// Masters, Agents and PublicAgents are the expected cluster topology.
	// A nil list is unknown and will be discovered.
	Masters      []string
	Agents       []string
	PublicAgents []string
	// WaitForHosts requires the full topology to be supplied when waiting
	// for the cluster to become ready.
	WaitForHosts bool
	// ExhibitorAdminPassword enables direct basic authenticated access to
	// exhibitor on the first master.
	ExhibitorAdminPassword string
	RequestTimeout         time.Duration
	LogRequests            bool
	LogResponses           bool
}

// Load loads configuration from environment variables and an optional .env file.
func Load(envPaths ...string) (*Config, error) {
	loadEnvFile(envPaths)

	requestTimeout, err := getDurationWithDefault("REQUEST_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	waitForHosts, err := getBoolWithDefault("WAIT_FOR_HOSTS", true)
	if err != nil {
		return nil, err
	}

	logRequests, err := getBoolWithDefault("LOG_REQUESTS", false)
	if err != nil {
		return nil, err
	}

	logResponses, err := getBoolWithDefault("LOG_RESPONSES", false)
	if err != nil {
		return nil, err
	}

	config := &Config{
		URL:                    getWithDefault("DCOS_DNS_ADDRESS", DefaultURL),
		AuthToken:              os.Getenv("DCOS_ACS_TOKEN"),
		Credentials:            credentials(),
		Masters:                getHosts("MASTER_HOSTS"),
		Agents:                 getHosts("SLAVE_HOSTS", "WINDOWS_HOSTS"),
		PublicAgents:           getHosts("PUBLIC_SLAVE_HOSTS", "WINDOWS_PUBLIC_HOSTS"),
		WaitForHosts:           waitForHosts,
		ExhibitorAdminPassword: os.Getenv("EXHIBITOR_ADMIN_PASSWORD"),
		RequestTimeout:         requestTimeout,
		LogRequests:            logRequests,
		LogResponses:           logResponses,
	}

	return config, nil
}

// NodeListsSet returns true when the full topology has been supplied.
func (c *Config) NodeListsSet() bool {
	return c.Masters != nil && c.Agents != nil && c.PublicAgents != nil
}

// credentials returns the login payload, a uid/password pair takes precedence
// over a login token.  Nil means there is nobody to log in as.
func credentials() map[string]any {
	if uid := os.Getenv("DCOS_LOGIN_UID"); uid != "" {
		return map[string]any{
			"uid":      uid,
			"password": os.Getenv("DCOS_LOGIN_PASSWORD"),
		}
	}

	if token := os.Getenv("DCOS_LOGIN_TOKEN"); token != "" {
		return map[string]any{
			"token": token,
		}
	}

	return nil
}

// getHosts parses comma separated host lists, the first key is the primary
// list and determines whether the result is nil, any further keys are appended.
func getHosts(key string, extra ...string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}

	hosts := splitHosts(value)

	for _, k := range extra {
		hosts = append(hosts, splitHosts(os.Getenv(k))...)
	}

	return hosts
}

func splitHosts(value string) []string {
	hosts := []string{}

	for _, host := range strings.Split(value, ",") {
		if host = strings.TrimSpace(host); host != "" {
			hosts = append(hosts, host)
		}
	}

	return hosts
}

func getWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

// getDurationWithDefault gets a duration from environment variable or returns default.
func getDurationWithDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q: %w", ErrInvalidValue, key, value, err)
	}

	return duration, nil
}

// getBoolWithDefault gets a boolean from environment variable or returns default.
func getBoolWithDefault(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q: %w", ErrInvalidValue, key, value, err)
	}

	return boolValue, nil
}

// loadEnvFile loads the first .env file found, variables already present in
// the environment take precedence.
func loadEnvFile(envPaths []string) {
	if len(envPaths) == 0 {
		envPaths = []string{".env"}
	}

	for _, path := range envPaths {
		if _, err := os.Stat(path); err != nil {
			continue
		}

		absPath, err := filepath.Abs(path)
		if err != nil {
			continue
		}

		if err := godotenv.Load(absPath); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file from %s: %v\n", absPath, err)
		}

		return
	}
}
