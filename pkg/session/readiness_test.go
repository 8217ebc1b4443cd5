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

package session_test

import (
	"context"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive
	. "github.com/onsi/gomega"    //nolint:revive

	"github.com/unikorn-cloud/dcos-harness/pkg/client"
	"github.com/unikorn-cloud/dcos-harness/pkg/retry"
	"github.com/unikorn-cloud/dcos-harness/pkg/session"
	"github.com/unikorn-cloud/dcos-harness/pkg/testing/fake"
)

var _ = Describe("Readiness", func() {
	var (
		ctx     context.Context
		cluster *fake.Cluster
	)

	BeforeEach(func() {
		ctx = testContext()
		cluster = fake.New(GinkgoT()).SetLogger(GinkgoLogr).Healthy()
	})

	Context("When the full topology is supplied", func() {
		It("should wait for every subsystem in order without discovery", func() {
			s := newHealthySession(cluster, session.NewUser(map[string]any{"uid": "admin", "password": "admin"}))

			Expect(s.WaitUntilReady(ctx)).To(Succeed())

			for _, route := range []string{routeRoot, routeLogin, routeMarathonInfo, routeClusterStatus, routeMasterAgents, routeAgentCache, routeJobs, routeUnits} {
				Expect(cluster.Requests(route)).To(BeNumerically(">", 0), route)
			}

			Expect(cluster.Requests(routeClusterList)).To(BeZero())
			Expect(cluster.Requests(routeAgents)).To(BeZero())
		})

		It("should authenticate every request after login", func() {
			cluster.RequireAuth(true)

			s := newHealthySession(cluster, session.NewUser(map[string]any{"uid": "admin", "password": "admin"}))

			Expect(s.WaitUntilReady(ctx)).To(Succeed())
			Expect(cluster.LastRequest(routeUnits).Header.Get("Authorization")).To(Equal("token=fake-token"))
		})

		It("should bypass the health cache", func() {
			s := newHealthySession(cluster, nil)

			Expect(s.WaitUntilReady(ctx)).To(Succeed())
			Expect(cluster.LastRequest(routeUnits).URL.Query().Get("cache")).To(Equal("0"))
		})
	})

	Context("When the topology is incomplete", func() {
		It("should fail immediately if waiting for hosts", func() {
			s, err := session.New(cluster.URL(), nil, nil, nil, nil, fastOptions()...)
			Expect(err).NotTo(HaveOccurred())

			err = s.WaitUntilReady(ctx)
			Expect(err).To(MatchError(session.ErrHostListsIncomplete))

			Expect(cluster.Requests(routeClusterList)).To(BeZero())
			Expect(cluster.Requests(routeAgents)).To(BeZero())
			Expect(cluster.Requests(routeMarathonInfo)).To(BeZero())
		})

		It("should fail if any one list is missing", func() {
			masters, agents, _ := expectedTopology()

			s, err := session.New(cluster.URL(), masters, agents, nil, nil, fastOptions()...)
			Expect(err).NotTo(HaveOccurred())

			Expect(s.WaitUntilReady(ctx)).To(MatchError(session.ErrHostListsIncomplete))
		})

		It("should discover the topology when not waiting for hosts", func() {
			s, err := session.New(cluster.URL(), nil, nil, nil, nil, fastOptions(session.WithWaitForHosts(false))...)
			Expect(err).NotTo(HaveOccurred())

			Expect(s.WaitUntilReady(ctx)).To(Succeed())

			Expect(s.Masters()).To(Equal([]string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}))
			Expect(s.Agents()).To(Equal([]string{"10.0.1.1", "10.0.1.2"}))
			Expect(s.PublicAgents()).To(Equal([]string{"10.0.2.1"}))
			Expect(s.AllAgents()).To(Equal([]string{"10.0.1.1", "10.0.1.2", "10.0.2.1"}))
		})
	})

	Context("When the gateway is not up", func() {
		It("should retry gateway errors", func() {
			cluster.Script(routeRoot, http.StatusBadGateway, http.StatusServiceUnavailable)

			s := newHealthySession(cluster, nil)

			Expect(s.WaitUntilReady(ctx)).To(Succeed())
			Expect(cluster.Requests(routeRoot)).To(Equal(3))
		})

		It("should retry connection failures until cancelled", func() {
			s, err := session.New("http://127.0.0.1:1", []string{}, []string{}, []string{}, nil, fastOptions()...)
			Expect(err).NotTo(HaveOccurred())

			timeoutCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
			defer cancel()

			err = s.WaitUntilReady(timeoutCtx)
			Expect(err).To(MatchError(context.DeadlineExceeded))
			Expect(err).NotTo(MatchError(retry.ErrExhausted))
		})
	})

	Context("When the scheduler is starting", func() {
		It("should retry until it reports OK", func() {
			cluster.Script(routeMarathonInfo, http.StatusServiceUnavailable, http.StatusNotFound, http.StatusUnauthorized)

			s := newHealthySession(cluster, nil)

			Expect(s.WaitUntilReady(ctx)).To(Succeed())
			Expect(cluster.Requests(routeMarathonInfo)).To(Equal(4))
		})
	})

	Context("When the quorum is forming", func() {
		It("should wait for every master to join", func() {
			cluster.SetQuorum("10.0.0.1")
			cluster.Script(routeClusterStatus, http.StatusServiceUnavailable)
			cluster.Hook(routeClusterStatus, func(call int) {
				if call == 3 {
					cluster.SetQuorum("10.0.0.1", "10.0.0.2", "10.0.0.3")
				}
			})

			s := newHealthySession(cluster, nil)

			Expect(s.WaitUntilReady(ctx)).To(Succeed())
			Expect(cluster.Requests(routeClusterStatus)).To(Equal(3))
		})
	})

	Context("When agents are joining", func() {
		It("should wait for all expected agents", func() {
			cluster.SetJoined(1)
			cluster.Script(routeMasterAgents, http.StatusServiceUnavailable)
			cluster.Hook(routeMasterAgents, func(call int) {
				if call == 4 {
					cluster.SetJoined(-1)
				}
			})

			s := newHealthySession(cluster, nil)

			Expect(s.WaitUntilReady(ctx)).To(Succeed())
			Expect(cluster.Requests(routeMasterAgents)).To(BeNumerically(">=", 4))
		})
	})

	Context("When the gateway endpoint cache is warming", func() {
		DescribeTable("should retry transient statuses",
			func(status int) {
				cluster.Script(routeAgentCache, status, status)

				s := newHealthySession(cluster, nil)

				Expect(s.WaitUntilReady(ctx)).To(Succeed())
				// Three agents, each checked once on success, plus two failed attempts.
				Expect(cluster.Requests(routeAgentCache)).To(Equal(5))
			},
			Entry("not found", http.StatusNotFound),
			Entry("bad gateway", http.StatusBadGateway),
			Entry("service unavailable", http.StatusServiceUnavailable),
		)

		It("should retry a bad gateway from the master", func() {
			// The first listing is made by the worker check.
			cluster.Hook(routeMasterAgents, func(call int) {
				if call == 2 {
					cluster.Script(routeMasterAgents, http.StatusBadGateway)
				}
			})

			s := newHealthySession(cluster, nil)

			Expect(s.WaitUntilReady(ctx)).To(Succeed())
			Expect(cluster.Requests(routeMasterAgents)).To(Equal(3))
			Expect(cluster.Requests(routeAgentCache)).To(Equal(3))
		})

		It("should fail on other statuses", func() {
			cluster.Script(routeAgentCache, http.StatusUnauthorized)

			s := newHealthySession(cluster, nil)

			err := s.WaitUntilReady(ctx)
			Expect(client.IsStatus(err, http.StatusUnauthorized)).To(BeTrue())
			Expect(cluster.Requests(routeJobs)).To(BeZero())
		})

		It("should give up after a bounded number of attempts", func() {
			statuses := make([]int, 70)
			for i := range statuses {
				statuses[i] = http.StatusNotFound
			}

			cluster.Script(routeAgentCache, statuses...)

			s := newHealthySession(cluster, nil)

			err := s.WaitUntilReady(ctx)
			Expect(err).To(MatchError(retry.ErrExhausted))
			Expect(cluster.Requests(routeAgentCache)).To(Equal(60))
		})

		It("should only check expected agents", func() {
			cluster.SetAgents(
				fake.Agent{ID: "agent-1", Hostname: "10.0.1.1"},
				fake.Agent{ID: "agent-2", Hostname: "10.0.1.2"},
				fake.Agent{ID: "agent-3", Hostname: "10.0.2.1", Public: true},
				fake.Agent{ID: "agent-dead", Hostname: "10.0.9.9"},
			)

			s := newHealthySession(cluster, nil)

			Expect(s.WaitUntilReady(ctx)).To(Succeed())
			Expect(cluster.Requests(routeAgentCache)).To(Equal(3))
		})
	})

	Context("When the batch job service is starting", func() {
		DescribeTable("should retry transient statuses",
			func(status int) {
				cluster.Script(routeJobs, status, status)

				s := newHealthySession(cluster, nil)

				Expect(s.WaitUntilReady(ctx)).To(Succeed())
				Expect(cluster.Requests(routeJobs)).To(Equal(3))
			},
			Entry("not found", http.StatusNotFound),
			Entry("internal server error", http.StatusInternalServerError),
			Entry("bad gateway", http.StatusBadGateway),
			Entry("service unavailable", http.StatusServiceUnavailable),
			Entry("gateway timeout", http.StatusGatewayTimeout),
		)

		It("should fail on client errors", func() {
			cluster.Script(routeJobs, http.StatusForbidden)

			s := newHealthySession(cluster, nil)

			err := s.WaitUntilReady(ctx)
			Expect(client.IsStatus(err, http.StatusForbidden)).To(BeTrue())
			Expect(cluster.Requests(routeUnits)).To(BeZero())
		})
	})

	Context("When system units are unhealthy", func() {
		It("should wait for all units to become healthy", func() {
			cluster.SetUnitHealth("dcos-marathon.service", 1)
			cluster.Hook(routeUnits, func(call int) {
				if call == 3 {
					cluster.SetUnitHealth("dcos-marathon.service", 0)
				}
			})

			s := newHealthySession(cluster, nil)

			Expect(s.WaitUntilReady(ctx)).To(Succeed())
			Expect(cluster.Requests(routeUnits)).To(Equal(3))
		})

		It("should fail if the health service errors", func() {
			cluster.Script(routeUnits, http.StatusInternalServerError)

			s := newHealthySession(cluster, nil)

			err := s.WaitUntilReady(ctx)
			Expect(client.IsStatus(err, http.StatusInternalServerError)).To(BeTrue())
			Expect(cluster.Requests(routeUnits)).To(Equal(1))
		})
	})
})
