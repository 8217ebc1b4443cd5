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

// Package jobs provides a client for the batch job service, used to run one
// off workloads on the cluster and wait for their completion.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/unikorn-cloud/dcos-harness/pkg/client"
	"github.com/unikorn-cloud/dcos-harness/pkg/retry"

	"k8s.io/apimachinery/pkg/util/rand"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// ErrMissingID is raised when a job definition has no ID.
var ErrMissingID = errors.New("job has no id")

// Docker describes a container image to run the job in.
type Docker struct {
	Image string `json:"image"`
}

// RunSpec describes what a job run executes and with what resources.
type RunSpec struct {
	Cmd            string            `json:"cmd,omitempty"`
	Args           []string          `json:"args,omitempty"`
	CPUs           float64           `json:"cpus"`
	Mem            int               `json:"mem"`
	Disk           int               `json:"disk"`
	Env            map[string]string `json:"env,omitempty"`
	Docker         *Docker           `json:"docker,omitempty"`
	MaxLaunchDelay *int              `json:"maxLaunchDelay,omitempty"`
}

// RunRef identifies a finished run in a job's history.
type RunRef struct {
	ID         string `json:"id"`
	CreatedAt  string `json:"createdAt,omitempty"`
	FinishedAt string `json:"finishedAt,omitempty"`
}

// History is a job's run history.
type History struct {
	SuccessCount           int      `json:"successCount"`
	FailureCount           int      `json:"failureCount"`
	SuccessfulFinishedRuns []RunRef `json:"successfulFinishedRuns"`
	FailedFinishedRuns     []RunRef `json:"failedFinishedRuns"`
}

// Job is a batch job definition.
type Job struct {
	ID          string            `json:"id"`
	Description *string           `json:"description,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
	Run         RunSpec           `json:"run"`
	History     *History          `json:"history,omitempty"`
}

// Run is a single execution of a job.
type Run struct {
	ID     string `json:"id"`
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

// NewJob returns a minimal command job with a unique ID.
func NewJob(prefix, cmd string) *Job {
	return &Job{
		ID:          NewID(prefix),
		Description: ptr.To("one-off job " + prefix),
		Run: RunSpec{
			Cmd:  cmd,
			CPUs: 0.1,
			Mem:  32,
			Disk: 0,
		},
	}
}

// NewID generates a job ID, the service only accepts lower case
// alphanumerics so the random suffix is compatible.
func NewID(prefix string) string {
	return prefix + "-" + rand.String(6)
}

// Client talks to the batch job service.
type Client struct {
	client       *client.Client
	endpoints    *client.Endpoints
	pollInterval time.Duration
}

// New returns a client, the HTTP client must be rooted at the service path.
func New(cli *client.Client) *Client {
	return &Client{
		client:       cli,
		endpoints:    client.NewEndpoints(),
		pollInterval: time.Second,
	}
}

// WithPollInterval returns a copy of the client that polls run status at the
// given interval.
func (c *Client) WithPollInterval(interval time.Duration) *Client {
	out := *c
	out.pollInterval = interval

	return &out
}

// List lists all jobs.
func (c *Client) List(ctx context.Context) ([]Job, error) {
	var jobs []Job

	if err := c.client.GetJSON(ctx, c.endpoints.Jobs(), nil, &jobs); err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}

	return jobs, nil
}

// Get returns a job with its run history.
func (c *Client) Get(ctx context.Context, jobID string) (*Job, error) {
	query := url.Values{
		"embed": []string{"history"},
	}

	job := &Job{}

	if err := c.client.GetJSON(ctx, c.endpoints.Job(jobID), query, job); err != nil {
		return nil, fmt.Errorf("getting job %s: %w", jobID, err)
	}

	return job, nil
}

// Create creates a job.
func (c *Client) Create(ctx context.Context, job *Job) error {
	if job.ID == "" {
		return ErrMissingID
	}

	resp, err := c.client.Post(ctx, c.endpoints.Jobs(), job)
	if err != nil {
		return fmt.Errorf("creating job %s: %w", job.ID, err)
	}

	if err := resp.Err(); err != nil {
		return fmt.Errorf("creating job %s: %w", job.ID, err)
	}

	return nil
}

// Start starts a new run of the job.
func (c *Client) Start(ctx context.Context, jobID string) (*Run, error) {
	resp, err := c.client.Post(ctx, c.endpoints.JobRuns(jobID), struct{}{})
	if err != nil {
		return nil, fmt.Errorf("starting job %s: %w", jobID, err)
	}

	if err := resp.Err(); err != nil {
		return nil, fmt.Errorf("starting job %s: %w", jobID, err)
	}

	run := &Run{}

	if err := resp.JSON(run); err != nil {
		return nil, err
	}

	return run, nil
}

// Run starts a run and waits for it to finish, returning whether it
// succeeded, the last observed run state and the job with its history.
// A run is active while the service still reports it, once it disappears
// the job history records its outcome.
func (c *Client) Run(ctx context.Context, jobID string, timeout time.Duration) (bool, *Run, *Job, error) {
	log := log.FromContext(ctx)

	run, err := c.Start(ctx, jobID)
	if err != nil {
		return false, nil, nil, err
	}

	log.Info("started job run", "job", jobID, "run", run.ID)

	policy := retry.Policy{
		Interval:   c.pollInterval,
		MaxElapsed: timeout,
	}

	probe := func(ctx context.Context) error {
		resp, err := c.client.Get(ctx, c.endpoints.JobRun(jobID, run.ID), nil)
		if err != nil {
			return err
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil
		case !resp.OK():
			return resp.Err()
		}

		if err := resp.JSON(run); err != nil {
			return err
		}

		return retry.NotReady("run %s is %s", run.ID, run.Status)
	}

	if err := retry.Until(ctx, "job run "+jobID, policy, probe); err != nil {
		return false, run, nil, err
	}

	job, err := c.Get(ctx, jobID)
	if err != nil {
		return false, run, nil, err
	}

	succeeded := job.History != nil && slices.ContainsFunc(job.History.SuccessfulFinishedRuns, func(r RunRef) bool {
		return r.ID == run.ID
	})

	return succeeded, run, job, nil
}

// Destroy deletes a job, stopping any active runs.
func (c *Client) Destroy(ctx context.Context, jobID string) error {
	query := url.Values{
		"stopCurrentJobRuns": []string{"true"},
	}

	resp, err := c.client.Delete(ctx, c.endpoints.Job(jobID), query)
	if err != nil {
		return fmt.Errorf("deleting job %s: %w", jobID, err)
	}

	if err := resp.Err(); err != nil {
		return fmt.Errorf("deleting job %s: %w", jobID, err)
	}

	return nil
}
