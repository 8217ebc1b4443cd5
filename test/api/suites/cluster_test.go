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

//nolint:revive,staticcheck // dot imports are standard for Ginkgo/Gomega test code
package suites

import (
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/unikorn-cloud/dcos-harness/pkg/client"
	"github.com/unikorn-cloud/dcos-harness/pkg/diagnostics"
)

var _ = Describe("Cluster", func() {
	Context("When the cluster is ready", func() {
		It("should report a version", func() {
			version, err := cluster.Version(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(version).NotTo(BeEmpty())

			GinkgoWriter.Printf("Cluster version %s\n", version)
		})

		It("should have a known topology", func() {
			Expect(cluster.NodeListsSet()).To(BeTrue())
			Expect(cluster.Masters()).NotTo(BeEmpty())
		})

		It("should report all units healthy", func() {
			units, err := cluster.Health().Units(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(units).NotTo(BeEmpty())
			Expect(diagnostics.Unhealthy(units)).To(BeEmpty())
		})

		It("should have every master in the quorum", func() {
			exhibitor, err := cluster.Exhibitor()
			Expect(err).NotTo(HaveOccurred())

			var nodes []map[string]any

			Expect(exhibitor.GetJSON(ctx, "/exhibitor/v1/cluster/status", nil, &nodes)).To(Succeed())
			Expect(nodes).To(HaveLen(len(cluster.Masters())))
		})
	})

	Context("When accessing services", func() {
		It("should route to the application scheduler", func() {
			resp, err := cluster.Marathon().Get(ctx, "/v2/info", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("should route to the batch job service", func() {
			jobs, err := cluster.Jobs().List(ctx)
			Expect(err).NotTo(HaveOccurred())

			GinkgoWriter.Printf("Found %d jobs\n", len(jobs))
		})
	})

	Context("When unauthenticated", func() {
		It("should reject requests if the cluster requires authentication", func() {
			if cluster.User() == nil {
				Skip("no credentials configured")
			}

			anonymous, err := cluster.UserSession(ctx, nil)
			Expect(err).NotTo(HaveOccurred())

			_, err = anonymous.Version(ctx)
			Expect(client.IsStatus(err, http.StatusUnauthorized)).To(BeTrue())
		})
	})
})
