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

// Package diagnostics provides access to the cluster's health service:
// aggregate unit health and diagnostics bundle management.
package diagnostics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/unikorn-cloud/dcos-harness/pkg/client"
	"github.com/unikorn-cloud/dcos-harness/pkg/retry"

	"sigs.k8s.io/controller-runtime/pkg/log"
)

// Bundle statuses.
const (
	StatusStarted    = "Started"
	StatusInProgress = "InProgress"
	StatusDone       = "Done"
	StatusDeleted    = "Deleted"
)

// Unit is a system unit's health, zero is healthy.
type Unit struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Health      int    `json:"health"`
	Description string `json:"description,omitempty"`
}

type unitList struct {
	Units []Unit `json:"units"`
}

// Bundle is a diagnostics bundle.
type Bundle struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	StartedAt string `json:"started_at,omitempty"`
	StoppedAt string `json:"stopped_at,omitempty"`
	Size      int64  `json:"size,omitempty"`
}

// Client talks to the health service.
type Client struct {
	client       *client.Client
	endpoints    *client.Endpoints
	masters      []string
	agents       []string
	pollInterval time.Duration
	timeout      time.Duration
}

// New returns a new client, the HTTP client must be rooted at the health
// service.  The node lists are the topology the caller expects to be
// reporting health.
func New(cli *client.Client, masters, agents []string) *Client {
	return &Client{
		client:       cli,
		endpoints:    client.NewEndpoints(),
		masters:      masters,
		agents:       agents,
		pollInterval: 2 * time.Second,
		timeout:      10 * time.Minute,
	}
}

// WithPolling returns a copy of the client with the given bundle polling
// interval and timeout.
func (c *Client) WithPolling(interval, timeout time.Duration) *Client {
	out := *c
	out.pollInterval = interval
	out.timeout = timeout

	return &out
}

// Masters returns the expected masters.
func (c *Client) Masters() []string {
	return c.masters
}

// Agents returns the expected agents.
func (c *Client) Agents() []string {
	return c.agents
}

// Units returns the health of all system units.
func (c *Client) Units(ctx context.Context) ([]Unit, error) {
	var units unitList

	if err := c.client.GetJSON(ctx, c.endpoints.Units(), nil, &units); err != nil {
		return nil, fmt.Errorf("listing units: %w", err)
	}

	return units.Units, nil
}

// Unhealthy returns all units that are not healthy.
func Unhealthy(units []Unit) []Unit {
	return slices.DeleteFunc(slices.Clone(units), func(u Unit) bool {
		return u.Health == 0
	})
}

// StartJob starts creation of a new diagnostics bundle.
func (c *Client) StartJob(ctx context.Context) (*Bundle, error) {
	id, err := uuid.NewUUID()
	if err != nil {
		return nil, fmt.Errorf("generating diagnostics bundle id: %w", err)
	}

	resp, err := c.client.Put(ctx, c.endpoints.DiagnosticsBundle(id.String()), struct{}{})
	if err != nil {
		return nil, fmt.Errorf("starting diagnostics bundle: %w", err)
	}

	if err := resp.Err(); err != nil {
		return nil, fmt.Errorf("starting diagnostics bundle: %w", err)
	}

	bundle := &Bundle{}

	if err := resp.JSON(bundle); err != nil {
		return nil, err
	}

	return bundle, nil
}

// List lists all diagnostics bundles.
func (c *Client) List(ctx context.Context) ([]Bundle, error) {
	var bundles []Bundle

	if err := c.client.GetJSON(ctx, c.endpoints.Diagnostics(), nil, &bundles); err != nil {
		return nil, fmt.Errorf("listing diagnostics bundles: %w", err)
	}

	return bundles, nil
}

// WaitForJob waits until no bundles are being created.
func (c *Client) WaitForJob(ctx context.Context) error {
	policy := retry.Policy{
		Interval:   c.pollInterval,
		MaxElapsed: c.timeout,
	}

	probe := func(ctx context.Context) error {
		bundles, err := c.List(ctx)
		if err != nil {
			return err
		}

		for _, bundle := range bundles {
			if bundle.Status == StatusStarted || bundle.Status == StatusInProgress {
				return retry.NotReady("bundle %s is %s", bundle.ID, bundle.Status)
			}
		}

		return nil
	}

	return retry.Until(ctx, "diagnostics bundle", policy, probe)
}

// Reports returns the IDs of all bundles that have not been deleted, in the
// order the service lists them.
func (c *Client) Reports(ctx context.Context) ([]string, error) {
	bundles, err := c.List(ctx)
	if err != nil {
		return nil, err
	}

	var ids []string

	for _, bundle := range bundles {
		if bundle.Status == StatusDeleted || slices.Contains(ids, bundle.ID) {
			continue
		}

		ids = append(ids, bundle.ID)
	}

	return ids, nil
}

// Download downloads the given bundles into a directory, each file is named
// after its bundle.
func (c *Client) Download(ctx context.Context, ids []string, dir string) error {
	log := log.FromContext(ctx)

	for _, id := range ids {
		resp, err := c.client.Get(ctx, c.endpoints.DiagnosticsBundleFile(id), nil)
		if err != nil {
			return fmt.Errorf("downloading diagnostics bundle %s: %w", id, err)
		}

		if err := resp.Err(); err != nil {
			return fmt.Errorf("downloading diagnostics bundle %s: %w", id, err)
		}

		path := filepath.Join(dir, id)

		if err := os.WriteFile(path, resp.Body, 0o600); err != nil {
			return fmt.Errorf("writing diagnostics bundle %s: %w", id, err)
		}

		log.Info("downloaded diagnostics bundle", "id", id, "path", path, "size", len(resp.Body))
	}

	return nil
}
