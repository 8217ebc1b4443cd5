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

	. "github.com/onsi/ginkgo/v2" //nolint:revive
	. "github.com/onsi/gomega"    //nolint:revive

	"github.com/unikorn-cloud/dcos-harness/pkg/client"
	"github.com/unikorn-cloud/dcos-harness/pkg/session"
	"github.com/unikorn-cloud/dcos-harness/pkg/testing/fake"
)

var _ = Describe("Discovery", func() {
	var (
		ctx     context.Context
		cluster *fake.Cluster
	)

	BeforeEach(func() {
		ctx = testContext()
		cluster = fake.New(GinkgoT()).SetLogger(GinkgoLogr).Healthy()
	})

	It("should not make requests when the topology is known", func() {
		s := newHealthySession(cluster, nil)

		Expect(s.DiscoverNodes(ctx)).To(Succeed())
		Expect(cluster.Requests(routeClusterList)).To(BeZero())
		Expect(cluster.Requests(routeAgents)).To(BeZero())
	})

	It("should discover everything that is unknown", func() {
		s, err := session.New(cluster.URL(), nil, nil, nil, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.NodeListsSet()).To(BeFalse())

		Expect(s.DiscoverNodes(ctx)).To(Succeed())
		Expect(s.NodeListsSet()).To(BeTrue())
		Expect(s.Masters()).To(Equal([]string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}))
		Expect(s.Agents()).To(Equal([]string{"10.0.1.1", "10.0.1.2"}))
		Expect(s.PublicAgents()).To(Equal([]string{"10.0.2.1"}))
	})

	It("should leave supplied lists untouched", func() {
		s, err := session.New(cluster.URL(), []string{"192.168.0.1"}, nil, []string{}, nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(s.DiscoverNodes(ctx)).To(Succeed())
		Expect(cluster.Requests(routeClusterList)).To(BeZero())
		Expect(cluster.Requests(routeAgents)).To(Equal(1))
		Expect(s.Masters()).To(Equal([]string{"192.168.0.1"}))
		Expect(s.Agents()).To(Equal([]string{"10.0.1.1", "10.0.1.2"}))
		Expect(s.PublicAgents()).To(BeEmpty())
		Expect(s.PublicAgents()).NotTo(BeNil())
	})

	It("should only treat a public_ip of true as public", func() {
		cluster.SetAgents(
			fake.Agent{ID: "agent-1", Hostname: "10.0.1.1"},
			fake.Agent{ID: "agent-2", Hostname: "10.0.2.1", Public: true},
		)

		s, err := session.New(cluster.URL(), []string{}, nil, nil, nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(s.DiscoverNodes(ctx)).To(Succeed())
		Expect(s.Agents()).To(Equal([]string{"10.0.1.1"}))
		Expect(s.PublicAgents()).To(Equal([]string{"10.0.2.1"}))
	})

	It("should yield empty lists for an empty cluster", func() {
		cluster.SetMasters()
		cluster.SetAgents()

		s, err := session.New(cluster.URL(), nil, nil, nil, nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(s.DiscoverNodes(ctx)).To(Succeed())
		Expect(s.NodeListsSet()).To(BeTrue())
		Expect(s.Masters()).To(BeEmpty())
		Expect(s.AllAgents()).To(BeEmpty())
	})

	It("should propagate errors", func() {
		cluster.Script(routeClusterList, http.StatusServiceUnavailable)

		s, err := session.New(cluster.URL(), nil, nil, nil, nil)
		Expect(err).NotTo(HaveOccurred())

		err = s.DiscoverNodes(ctx)
		Expect(client.IsStatus(err, http.StatusServiceUnavailable)).To(BeTrue())
		Expect(s.Masters()).To(BeNil())
	})
})
