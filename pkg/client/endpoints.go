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

package client

import (
	"fmt"
	"net/url"
)

// Endpoints contains all API endpoint patterns.
type Endpoints struct{}

// NewEndpoints creates a new Endpoints instance.
func NewEndpoints() *Endpoints {
	return &Endpoints{}
}

// Gateway endpoints.
func (e *Endpoints) Root() string {
	return "/"
}

func (e *Endpoints) Login() string {
	return "/acs/api/v1/auth/login"
}

func (e *Endpoints) Version() string {
	return "/dcos-metadata/dcos-version.json"
}

// Topology endpoints.
func (e *Endpoints) ExhibitorClusterList() string {
	return "/exhibitor/exhibitor/v1/cluster/list"
}

func (e *Endpoints) ExhibitorClusterStatus() string {
	return "/exhibitor/exhibitor/v1/cluster/status"
}

// Agents lists agents known to the leading master via the gateway's
// topology cache.
func (e *Endpoints) Agents() string {
	return "/mesos/slaves"
}

// MasterAgents lists agents straight from the leading master, no caching
// is involved.
func (e *Endpoints) MasterAgents() string {
	return "/mesos/master/slaves"
}

// Scheduler endpoints.
func (e *Endpoints) MarathonInfo() string {
	return "/marathon/v2/info"
}

// Agent endpoints.

// CachedAgentState is served by the gateway using cached state to resolve
// the agent, so recently joined agents may not resolve yet.
func (e *Endpoints) CachedAgentState(agentID string) string {
	return fmt.Sprintf("/slave/%s/slave%%281%%29/state", url.PathEscape(agentID))
}

func (e *Endpoints) AgentState(agentID string) string {
	return fmt.Sprintf("/agent/%s/state", url.PathEscape(agentID))
}

func (e *Endpoints) AgentFileDownload(agentID string) string {
	return fmt.Sprintf("/agent/%s/files/download", url.PathEscape(agentID))
}

// Service path prefixes.
func (e *Endpoints) MarathonService() string {
	return "/marathon"
}

func (e *Endpoints) MetronomeService() string {
	return "/service/metronome"
}

func (e *Endpoints) CosmosService() string {
	return "/package"
}

func (e *Endpoints) HealthService() string {
	return "/system/health/v1"
}

func (e *Endpoints) LogsService() string {
	return "/system/v1/logs"
}

func (e *Endpoints) MetricsService() string {
	return "/system/v1/metrics/v0"
}

func (e *Endpoints) ExhibitorService() string {
	return "/exhibitor"
}

// Batch job endpoints, relative to the metronome service.
func (e *Endpoints) Jobs() string {
	return "/v1/jobs"
}

func (e *Endpoints) Job(jobID string) string {
	return fmt.Sprintf("/v1/jobs/%s", url.PathEscape(jobID))
}

func (e *Endpoints) JobRuns(jobID string) string {
	return fmt.Sprintf("/v1/jobs/%s/runs", url.PathEscape(jobID))
}

func (e *Endpoints) JobRun(jobID, runID string) string {
	return fmt.Sprintf("/v1/jobs/%s/runs/%s", url.PathEscape(jobID), url.PathEscape(runID))
}

// Health endpoints, relative to the health service.
func (e *Endpoints) Units() string {
	return "/units"
}

func (e *Endpoints) Diagnostics() string {
	return "/diagnostics"
}

func (e *Endpoints) DiagnosticsBundle(bundleID string) string {
	return fmt.Sprintf("/diagnostics/%s", url.PathEscape(bundleID))
}

func (e *Endpoints) DiagnosticsBundleFile(bundleID string) string {
	return fmt.Sprintf("/diagnostics/%s/file", url.PathEscape(bundleID))
}
