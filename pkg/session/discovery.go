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
	"fmt"

	"sigs.k8s.io/controller-runtime/pkg/log"
)

// exhibitorClusterList is the coordination service ensemble.
type exhibitorClusterList struct {
	Servers []string `json:"servers"`
	Port    int      `json:"port"`
}

// exhibitorNode is a member of the coordination service quorum.
type exhibitorNode struct {
	Hostname    string `json:"hostname"`
	IsLeader    bool   `json:"isLeader"`
	Description string `json:"description"`
	Code        int    `json:"code"`
}

// agent is a registered worker node.
type agent struct {
	ID         string         `json:"id"`
	Hostname   string         `json:"hostname"`
	Active     bool           `json:"active"`
	Attributes map[string]any `json:"attributes"`
}

// public reports whether the agent is publicly reachable, attribute values
// may be any scalar, only the string "true" counts.
func (a *agent) public() bool {
	value, ok := a.Attributes["public_ip"].(string)

	return ok && value == "true"
}

type agentList struct {
	Agents []agent `json:"slaves"`
}

// DiscoverNodes sets any unknown node lists to the topology currently
// registered with the cluster.  Lists that are already set are never
// modified, and if all are set no requests are made.
func (s *Session) DiscoverNodes(ctx context.Context) error {
	log := log.FromContext(ctx)

	if s.masters == nil {
		log.V(1).Info("master list not provided, discovering")

		var ensemble exhibitorClusterList

		if err := s.client.GetJSON(ctx, s.endpoints.ExhibitorClusterList(), nil, &ensemble); err != nil {
			return fmt.Errorf("discovering masters: %w", err)
		}

		s.masters = sorted(nonNil(ensemble.Servers))

		log.Info("master list set", "masters", s.masters)
	}

	if s.agents != nil && s.publicAgents != nil {
		return nil
	}

	var agents agentList

	if err := s.client.GetJSON(ctx, s.endpoints.Agents(), nil, &agents); err != nil {
		return fmt.Errorf("discovering agents: %w", err)
	}

	private := []string{}
	public := []string{}

	for i := range agents.Agents {
		if agents.Agents[i].public() {
			public = append(public, agents.Agents[i].Hostname)
		} else {
			private = append(private, agents.Agents[i].Hostname)
		}
	}

	if s.agents == nil {
		s.agents = sorted(private)

		log.Info("private agent list set", "agents", s.agents)
	}

	if s.publicAgents == nil {
		s.publicAgents = sorted(public)

		log.Info("public agent list set", "publicAgents", s.publicAgents)
	}

	return nil
}

// nonNil ensures a discovered empty list is distinguishable from an unknown one.
func nonNil(hosts []string) []string {
	if hosts == nil {
		return []string{}
	}

	return hosts
}
