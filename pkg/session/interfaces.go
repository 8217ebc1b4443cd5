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

//go:generate mockgen -source=interfaces.go -destination=mock/interfaces.go -package=mock

import (
	"context"
	"time"

	"github.com/unikorn-cloud/dcos-harness/pkg/jobs"
)

// JobRunner creates, runs and destroys batch jobs.
type JobRunner interface {
	Create(ctx context.Context, job *jobs.Job) error
	Run(ctx context.Context, jobID string, timeout time.Duration) (bool, *jobs.Run, *jobs.Job, error)
	Destroy(ctx context.Context, jobID string) error
}
