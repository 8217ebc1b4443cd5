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

package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/spjmurray/go-util/pkg/set"

	"github.com/unikorn-cloud/dcos-harness/pkg/client"
	"github.com/unikorn-cloud/dcos-harness/pkg/diagnostics"
	"github.com/unikorn-cloud/dcos-harness/pkg/retry"

	"k8s.io/apimachinery/pkg/util/sets"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// ErrAgentMismatch is raised when the gateway resolves an agent ID to the
// wrong agent.
var ErrAgentMismatch = errors.New("agent mismatch")

// Policies define the retry policy of each readiness check.
type Policies struct {
	Gateway       retry.Policy
	Login         retry.Policy
	Scheduler     retry.Policy
	Quorum        retry.Policy
	Workers       retry.Policy
	EndpointCache retry.Policy
	BatchJobs     retry.Policy
	Health        retry.Policy
}

// DefaultPolicies returns the policies used against real clusters.
func DefaultPolicies() Policies {
	return Policies{
		Gateway: retry.Policy{
			Interval: time.Second,
		},
		Login: retry.Policy{
			Interval:    5 * time.Second,
			MaxElapsed:  2 * time.Minute,
			RetryErrors: true,
		},
		Scheduler: retry.Policy{
			Interval: time.Second,
		},
		Quorum: retry.Policy{
			Interval:    time.Second,
			RetryErrors: true,
		},
		Workers: retry.Policy{
			Interval: time.Second,
		},
		// Unbounded retries on both 404 and 502 could hang forever on a
		// broken agent.
		EndpointCache: retry.Policy{
			Interval:    2 * time.Second,
			MaxAttempts: 60,
		},
		BatchJobs: retry.Policy{
			Interval: 2 * time.Second,
		},
		Health: retry.Policy{
			Interval: 2 * time.Second,
		},
	}
}

// WithInterval returns the policies with every interval replaced.
func (p Policies) WithInterval(interval time.Duration) Policies {
	for _, policy := range []*retry.Policy{&p.Gateway, &p.Login, &p.Scheduler, &p.Quorum, &p.Workers, &p.EndpointCache, &p.BatchJobs, &p.Health} {
		policy.Interval = interval
	}

	return p
}

// WaitUntilReady waits for the gateway to come up, authentication to
// succeed, the topology to be resolved, every expected node to register and
// every subsystem to become healthy.  Checks run in order and the first
// fatal error aborts the whole sequence.
func (s *Session) WaitUntilReady(ctx context.Context) error {
	checks := []struct {
		name  string
		check func(context.Context) error
	}{
		{"gateway", s.waitForGateway},
		{"login", s.Login},
		{"topology", s.resolveTopology},
		{"scheduler", s.waitForScheduler},
		{"quorum", s.waitForQuorum},
		{"workers", s.waitForWorkers},
		{"endpoint cache", s.waitForEndpointCache},
		{"batch jobs", s.waitForBatchJobs},
		{"health", s.waitForHealth},
	}

	log := log.FromContext(ctx)

	for _, c := range checks {
		log.V(1).Info("running readiness check", "check", c.name)

		if err := c.check(ctx); err != nil {
			return fmt.Errorf("waiting for cluster: %w", err)
		}
	}

	log.Info("cluster is ready", "masters", s.Masters(), "agents", s.Agents(), "publicAgents", s.PublicAgents())

	return nil
}

// waitForGateway waits until the gateway accepts connections.
func (s *Session) waitForGateway(ctx context.Context) error {
	probe := func(ctx context.Context) error {
		resp, err := s.client.Get(ctx, s.endpoints.Root(), nil)
		if err != nil {
			if client.IsRequestError(err) {
				return retry.NotReady("cannot connect to gateway: %v", err)
			}

			return err
		}

		if retry.IsServerError(resp.StatusCode) {
			return retry.NotReady("gateway returned status %d", resp.StatusCode)
		}

		return nil
	}

	return retry.Until(ctx, "gateway", s.policies.Gateway, probe)
}

// resolveTopology ensures the node lists are known.
func (s *Session) resolveTopology(ctx context.Context) error {
	if s.waitForHosts && !s.NodeListsSet() {
		return fmt.Errorf("%w: this cluster is set to wait for hosts, however, not all host lists "+
			"were supplied. Please set all three environment variables of MASTER_HOSTS, "+
			"SLAVE_HOSTS, and PUBLIC_SLAVE_HOSTS to the appropriate cluster IPs (comma separated). "+
			"Alternatively, set WAIT_FOR_HOSTS=false in the environment to use whichever hosts "+
			"are currently registered", ErrHostListsIncomplete)
	}

	return s.DiscoverNodes(ctx)
}

// waitForScheduler waits for the application scheduler to report its info.
func (s *Session) waitForScheduler(ctx context.Context) error {
	probe := func(ctx context.Context) error {
		resp, err := s.client.Get(ctx, s.endpoints.MarathonInfo(), nil)
		if err != nil {
			return err
		}

		if resp.StatusCode != http.StatusOK {
			return retry.NotReady("scheduler returned status %d", resp.StatusCode)
		}

		return nil
	}

	return retry.Until(ctx, "scheduler", s.policies.Scheduler, probe)
}

// waitForQuorum waits for every master to join the coordination quorum.
// Coordination nodes are private, but masters may be public, so only the
// counts are compared.
func (s *Session) waitForQuorum(ctx context.Context) error {
	log := log.FromContext(ctx)

	probe := func(ctx context.Context) error {
		var nodes []exhibitorNode

		if err := s.client.GetJSON(ctx, s.endpoints.ExhibitorClusterStatus(), nil, &nodes); err != nil {
			log.V(1).Info("exhibitor status not available", "error", err.Error())

			return err
		}

		if len(nodes) != len(s.masters) {
			return retry.NotReady("quorum has %d of %d masters", len(nodes), len(s.masters))
		}

		return nil
	}

	return retry.Until(ctx, "quorum", s.policies.Quorum, probe)
}

// waitForWorkers waits for at least as many agents as expected to register
// with the leading master.
func (s *Session) waitForWorkers(ctx context.Context) error {
	expected := s.AllAgents()

	probe := func(ctx context.Context) error {
		resp, err := s.client.Get(ctx, s.endpoints.MasterAgents(), nil)
		if err != nil {
			return err
		}

		if resp.StatusCode != http.StatusOK {
			return retry.NotReady("master returned status %d", resp.StatusCode)
		}

		var agents agentList

		if err := resp.JSON(&agents); err != nil {
			return err
		}

		if len(agents.Agents) >= len(expected) {
			return nil
		}

		return retry.NotReady("%d of %d agents joined, missing %v", len(agents.Agents), len(expected), missingHosts(expected, agents.Agents))
	}

	return retry.Until(ctx, "workers", s.policies.Workers, probe)
}

// missingHosts returns the sorted expected hosts that have not registered.
func missingHosts(expected []string, agents []agent) []string {
	joined := make([]string, len(agents))

	for i := range agents {
		joined[i] = agents[i].Hostname
	}

	var missing []string

	for host := range set.New[string](expected...).Difference(set.New[string](joined...)).All() {
		missing = append(missing, host)
	}

	slices.Sort(missing)

	return missing
}

// waitForEndpointCache waits until the gateway can route to every expected
// agent.  The gateway resolves agents with cached state, so recently joined
// agents are unknown to it for a while, and agents that are restarting or
// recovering are unreachable.
func (s *Session) waitForEndpointCache(ctx context.Context) error {
	expected := sets.New[string](s.AllAgents()...)

	probe := func(ctx context.Context) error {
		// Served straight from the master, the gateway cache is not involved.
		resp, err := s.client.Get(ctx, s.endpoints.MasterAgents(), nil)
		if err != nil {
			return err
		}

		// Restarted agents can cause a brief bad gateway.
		if resp.StatusCode == http.StatusBadGateway {
			return retry.NotReady("master returned status %d", resp.StatusCode)
		}

		if resp.StatusCode != http.StatusOK {
			return resp.Err()
		}

		var agents agentList

		if err := resp.JSON(&agents); err != nil {
			return err
		}

		// Only check expected agents, after a failure the cluster may have
		// both replacement and dead agents registered.
		agentIDs := sets.New[string]()

		for i := range agents.Agents {
			if expected.Has(agents.Agents[i].Hostname) {
				agentIDs.Insert(agents.Agents[i].ID)
			}
		}

		for _, agentID := range sets.List(agentIDs) {
			if err := s.checkAgentEndpoint(ctx, agentID); err != nil {
				return err
			}
		}

		return nil
	}

	return retry.Until(ctx, "endpoint cache", s.policies.EndpointCache, probe)
}

func (s *Session) checkAgentEndpoint(ctx context.Context, agentID string) error {
	resp, err := s.client.Get(ctx, s.endpoints.CachedAgentState(agentID), nil)
	if err != nil {
		return err
	}

	if retry.AgentRecoveryStatuses.Contains(resp.StatusCode) {
		return retry.NotReady("agent %s returned status %d", agentID, resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		return resp.Err()
	}

	var state struct {
		ID string `json:"id"`
	}

	if err := resp.JSON(&state); err != nil {
		return err
	}

	if state.ID != agentID {
		return fmt.Errorf("%w: expected %s, got %q", ErrAgentMismatch, agentID, state.ID)
	}

	return nil
}

// waitForBatchJobs waits for the batch job service to be routable.  The
// gateway caches service discovery so may return not found for a while after
// the service exists, and the service itself times out while starting.
func (s *Session) waitForBatchJobs(ctx context.Context) error {
	log := log.FromContext(ctx)

	metronome := s.Metronome()

	probe := func(ctx context.Context) error {
		resp, err := metronome.Get(ctx, s.endpoints.Jobs(), nil)
		if err != nil {
			return err
		}

		log.V(1).Info("batch job service response", "status", resp.StatusCode, "body", resp.Text())

		if retry.ServiceStartupStatuses.Contains(resp.StatusCode) || retry.IsServerError(resp.StatusCode) {
			return retry.NotReady("batch job service returned status %d", resp.StatusCode)
		}

		if resp.StatusCode != http.StatusOK {
			return resp.Err()
		}

		return nil
	}

	return retry.Until(ctx, "batch jobs", s.policies.BatchJobs, probe)
}

// waitForHealth waits for every system unit to report healthy.
func (s *Session) waitForHealth(ctx context.Context) error {
	health := s.Health()

	probe := func(ctx context.Context) error {
		units, err := health.Units(ctx)
		if err != nil {
			return err
		}

		if unhealthy := diagnostics.Unhealthy(units); len(unhealthy) > 0 {
			ids := make([]string, len(unhealthy))

			for i := range unhealthy {
				ids[i] = fmt.Sprintf("%s=%d", unhealthy[i].ID, unhealthy[i].Health)
			}

			return retry.NotReady("unhealthy units %v", ids)
		}

		return nil
	}

	return retry.Until(ctx, "health", s.policies.Health, probe)
}
