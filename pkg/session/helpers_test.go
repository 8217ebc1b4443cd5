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
	"strings"

	. "github.com/onsi/ginkgo/v2" //nolint:revive
	. "github.com/onsi/gomega"    //nolint:revive

	"github.com/unikorn-cloud/dcos-harness/pkg/client"
	"github.com/unikorn-cloud/dcos-harness/pkg/session"
	"github.com/unikorn-cloud/dcos-harness/pkg/testing/fake"
)

var _ = Describe("Helpers", func() {
	var (
		ctx     context.Context
		cluster *fake.Cluster
		s       *session.Session
	)

	BeforeEach(func() {
		ctx = testContext()
		cluster = fake.New(GinkgoT()).SetLogger(GinkgoLogr).Healthy()
		s = newHealthySession(cluster, nil)
	})

	Context("Sandboxes", func() {
		BeforeEach(func() {
			cluster.AddFramework("agent-1", fake.Framework{
				ID: "marathon",
				Executors: []fake.Executor{
					{ID: "app.1234", Directory: "/var/lib/mesos/slave/slaves/agent-1/frameworks/marathon/executors/app.1234/runs/latest"},
					{ID: "pod.5678", Directory: "/var/lib/mesos/slave/slaves/agent-1/frameworks/marathon/executors/pod.5678/runs/latest"},
				},
			})
			cluster.AddFile("agent-1", "/var/lib/mesos/slave/slaves/agent-1/frameworks/marathon/executors/app.1234/runs/latest/stdout", "hello")
			cluster.AddFile("agent-1", "/var/lib/mesos/slave/slaves/agent-1/frameworks/marathon/executors/pod.5678/runs/latest/tasks/pod.container/stdout", "pod hello")
		})

		It("should find a task's sandbox", func() {
			directory, err := s.SandboxDirectory(ctx, "agent-1", "marathon", "app.1234")
			Expect(err).NotTo(HaveOccurred())
			Expect(directory).To(HaveSuffix("/executors/app.1234/runs/latest"))
		})

		It("should find a pod task's sandbox", func() {
			directory, err := s.PodSandboxDirectory(ctx, "agent-1", "marathon", "pod.5678", "pod.container")
			Expect(err).NotTo(HaveOccurred())
			Expect(directory).To(HaveSuffix("/executors/pod.5678/runs/latest/tasks/pod.container"))
		})

		It("should read sandbox files", func() {
			content, err := s.SandboxFile(ctx, "agent-1", "marathon", "app.1234", "stdout")
			Expect(err).NotTo(HaveOccurred())
			Expect(content).To(Equal("hello"))

			content, err = s.PodSandboxFile(ctx, "agent-1", "marathon", "pod.5678", "pod.container", "stdout")
			Expect(err).NotTo(HaveOccurred())
			Expect(content).To(Equal("pod hello"))
		})

		It("should report missing frameworks and executors", func() {
			_, err := s.SandboxDirectory(ctx, "agent-1", "metronome", "app.1234")
			Expect(err).To(MatchError(session.ErrFrameworkNotFound))

			_, err = s.SandboxDirectory(ctx, "agent-1", "marathon", "app.0000")
			Expect(err).To(MatchError(session.ErrExecutorNotFound))
		})

		It("should report missing files", func() {
			_, err := s.SandboxFile(ctx, "agent-1", "marathon", "app.1234", "stderr")
			Expect(client.IsStatus(err, http.StatusNotFound)).To(BeTrue())
		})
	})

	Context("Version", func() {
		It("should return the cluster version", func() {
			cluster.SetVersion("2.3.0-dev")

			version, err := s.Version(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(version).To(Equal("2.3.0-dev"))
		})
	})

	Context("Service clients", func() {
		It("should root clients at their service paths", func() {
			Expect(s.Marathon().BaseURL()).To(Equal(cluster.URL() + "/marathon"))
			Expect(s.Metronome().BaseURL()).To(Equal(cluster.URL() + "/service/metronome"))
			Expect(s.Cosmos().BaseURL()).To(Equal(cluster.URL() + "/package"))
			Expect(s.Logs().BaseURL()).To(Equal(cluster.URL() + "/system/v1/logs"))
			Expect(s.Metrics().BaseURL()).To(Equal(cluster.URL() + "/system/v1/metrics/v0"))
		})

		It("should access exhibitor through the gateway by default", func() {
			exhibitor, err := s.Exhibitor()
			Expect(err).NotTo(HaveOccurred())
			Expect(exhibitor.BaseURL()).To(Equal(cluster.URL() + "/exhibitor"))
		})

		It("should access exhibitor directly with an admin password", func() {
			s = newHealthySession(cluster, nil, session.WithExhibitorAdminPassword("secret"))

			exhibitor, err := s.Exhibitor()
			Expect(err).NotTo(HaveOccurred())
			Expect(exhibitor.BaseURL()).To(Equal("http://10.0.0.1:8181"))
			Expect(exhibitor.Authorizer()).To(Equal(client.BasicAuth{Username: "admin", Password: "secret"}))
		})

		It("should require a master for direct exhibitor access", func() {
			s, err := session.New(cluster.URL(), nil, nil, nil, nil, session.WithExhibitorAdminPassword("secret"))
			Expect(err).NotTo(HaveOccurred())

			_, err = s.Exhibitor()
			Expect(err).To(MatchError(session.ErrNoMasters))
		})

		It("should share authentication with service clients", func() {
			s = newHealthySession(cluster, session.NewTokenUser("fake-token"))
			Expect(s.Login(ctx)).To(Succeed())

			Expect(s.Marathon().Authorizer()).To(Equal(client.TokenAuth("fake-token")))
		})

		It("should read health bypassing the cache", func() {
			cluster.SetUnitHealth("dcos-metronome.service", 1)

			health := s.Health()
			Expect(health.Masters()).To(Equal(s.Masters()))
			Expect(health.Agents()).To(Equal(s.AllAgents()))

			units, err := health.Units(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(units).To(HaveLen(3))
			Expect(cluster.LastRequest(routeUnits).URL.Query().Get("cache")).To(Equal("0"))
		})
	})

	Context("Copies", func() {
		It("should not share node lists", func() {
			s, err := session.New(cluster.URL(), nil, nil, nil, nil)
			Expect(err).NotTo(HaveOccurred())

			c := s.Copy()
			Expect(c.DiscoverNodes(ctx)).To(Succeed())

			Expect(c.NodeListsSet()).To(BeTrue())
			Expect(s.NodeListsSet()).To(BeFalse())
		})

		It("should not share cookies", func() {
			c := s.Copy()

			Expect(c.Client()).NotTo(BeIdenticalTo(s.Client()))
			Expect(strings.TrimSuffix(c.Client().BaseURL(), "/")).To(Equal(cluster.URL()))
		})
	})
})
