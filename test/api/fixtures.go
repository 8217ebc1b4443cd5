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
package api

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/unikorn-cloud/dcos-harness/pkg/jobs"
	"github.com/unikorn-cloud/dcos-harness/pkg/session"

	"sigs.k8s.io/controller-runtime/pkg/log"
)

// TestContext returns a context that logs to the ginkgo writer.
func TestContext() context.Context {
	return log.IntoContext(context.Background(), GinkgoLogr)
}

// ReadySession creates a session for the configured cluster and waits for it
// to become ready.  The suite is skipped if no cluster is configured.
func ReadySession(ctx context.Context, config *TestConfig) *session.Session {
	if !config.Enabled {
		Skip("DCOS_DNS_ADDRESS is not set, skipping live cluster tests")
	}

	s, err := session.NewFromConfig(config.Config)
	Expect(err).NotTo(HaveOccurred())

	ctx, cancel := context.WithTimeout(ctx, config.ReadyTimeout)
	defer cancel()

	Expect(s.WaitUntilReady(ctx)).To(Succeed())

	GinkgoWriter.Printf("Cluster ready with masters %v, agents %v and public agents %v\n", s.Masters(), s.Agents(), s.PublicAgents())

	return s
}

// CreateJobWithCleanup creates a batch job that is deleted when the test
// completes, whether it passes or not.
func CreateJobWithCleanup(ctx context.Context, client *jobs.Client, job *jobs.Job) {
	Expect(client.Create(ctx, job)).To(Succeed())

	GinkgoWriter.Printf("Created job with ID: %s\n", job.ID)

	DeferCleanup(func() {
		GinkgoWriter.Printf("Cleaning up job: %s\n", job.ID)

		if err := client.Destroy(ctx, job.ID); err != nil {
			GinkgoWriter.Printf("Warning: Failed to delete job %s: %v\n", job.ID, err)
		}
	})
}
