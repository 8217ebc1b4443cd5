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

// Package api provides integration test utilities for running the harness
// against a live cluster.
//
// The suites exercise the same session a test would use, so they double as a
// smoke test of the cluster itself: the suite waits for readiness once, and
// every test then verifies a different subsystem through the session's
// service clients and helpers.
//
// Suites are skipped unless DCOS_DNS_ADDRESS is set, either in the
// environment or in test/.env, so they are safe to run alongside the unit
// tests.
package api
