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
	"time"

	"github.com/unikorn-cloud/dcos-harness/pkg/jobs"

	"sigs.k8s.io/controller-runtime/pkg/log"
)

// ErrJobFailed is raised when a one-off job does not succeed.
var ErrJobFailed = errors.New("job failed")

// DefaultJobTimeout is how long a one-off job may take by default.
const DefaultJobTimeout = 5 * time.Minute

func (s *Session) jobs() JobRunner {
	if s.jobRunner != nil {
		return s.jobRunner
	}

	return s.Jobs()
}

// MetronomeOneOff creates a batch job, runs it once and blocks until it
// completes, then deletes it.  A failed run is an error unless failures are
// ignored, in which case the job is still deleted.  A job that fails with an
// error is left in place for inspection.
func (s *Session) MetronomeOneOff(ctx context.Context, job *jobs.Job, timeout time.Duration, ignoreFailures bool) error {
	log := log.FromContext(ctx).WithValues("job", job.ID)

	runner := s.jobs()

	log.Info("creating one-off job")

	if err := runner.Create(ctx, job); err != nil {
		return err
	}

	log.Info("starting one-off job")

	succeeded, run, _, err := runner.Run(ctx, job.ID, timeout)
	if err != nil {
		return err
	}

	if !succeeded {
		log.Info("one-off job failed", "run", run)

		if !ignoreFailures {
			return fmt.Errorf("%w: %s", ErrJobFailed, job.ID)
		}
	} else {
		log.Info("one-off job succeeded")
	}

	log.Info("deleting one-off job")

	return runner.Destroy(ctx, job.ID)
}
