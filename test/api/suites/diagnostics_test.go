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
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Diagnostics", Label("slow"), func() {
	BeforeEach(func() {
		if config.DiagnosticsDir == "" {
			Skip("TEST_DIAGNOSTICS_DIR is not set")
		}
	})

	It("should create and download a bundle", func() {
		health := cluster.Health()

		bundle, err := health.StartJob(ctx)
		Expect(err).NotTo(HaveOccurred())

		GinkgoWriter.Printf("Started diagnostics bundle %s\n", bundle.ID)

		Expect(health.WaitForJob(ctx)).To(Succeed())

		reports, err := health.Reports(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(reports).NotTo(BeEmpty())

		Expect(health.Download(ctx, reports, config.DiagnosticsDir)).To(Succeed())
	})
})
