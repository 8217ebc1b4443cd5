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
	"net/url"
	"path"
)

var (
	// ErrFrameworkNotFound is raised when an agent isn't running a framework.
	ErrFrameworkNotFound = errors.New("framework not found")

	// ErrExecutorNotFound is raised when a framework has no such executor.
	ErrExecutorNotFound = errors.New("executor not found")
)

type executorState struct {
	ID        string `json:"id"`
	Directory string `json:"directory"`
}

type frameworkState struct {
	ID        string          `json:"id"`
	Executors []executorState `json:"executors"`
}

type agentState struct {
	Frameworks []frameworkState `json:"frameworks"`
}

// SandboxDirectory returns the sandbox directory of a task on an agent.
func (s *Session) SandboxDirectory(ctx context.Context, agentID, frameworkID, taskID string) (string, error) {
	var state agentState

	if err := s.client.GetJSON(ctx, s.endpoints.AgentState(agentID), nil, &state); err != nil {
		return "", fmt.Errorf("reading agent %s state: %w", agentID, err)
	}

	for _, framework := range state.Frameworks {
		if framework.ID != frameworkID {
			continue
		}

		for _, executor := range framework.Executors {
			if executor.ID == taskID {
				return executor.Directory, nil
			}
		}

		return "", fmt.Errorf("%w: executor %s on framework %s on agent %s", ErrExecutorNotFound, taskID, frameworkID, agentID)
	}

	return "", fmt.Errorf("%w: framework %s on agent %s", ErrFrameworkNotFound, frameworkID, agentID)
}

// PodSandboxDirectory returns the sandbox directory of a task within a pod
// that is currently running.
func (s *Session) PodSandboxDirectory(ctx context.Context, agentID, frameworkID, executorID, taskID string) (string, error) {
	directory, err := s.SandboxDirectory(ctx, agentID, frameworkID, executorID)
	if err != nil {
		return "", err
	}

	return path.Join(directory, "tasks", taskID), nil
}

// SandboxFile returns the content of a file in a task's sandbox.
func (s *Session) SandboxFile(ctx context.Context, agentID, frameworkID, taskID, filename string) (string, error) {
	directory, err := s.SandboxDirectory(ctx, agentID, frameworkID, taskID)
	if err != nil {
		return "", err
	}

	return s.downloadFile(ctx, agentID, path.Join(directory, filename))
}

// PodSandboxFile returns the content of a file in a pod task's sandbox.
func (s *Session) PodSandboxFile(ctx context.Context, agentID, frameworkID, executorID, taskID, filename string) (string, error) {
	directory, err := s.PodSandboxDirectory(ctx, agentID, frameworkID, executorID, taskID)
	if err != nil {
		return "", err
	}

	return s.downloadFile(ctx, agentID, path.Join(directory, filename))
}

func (s *Session) downloadFile(ctx context.Context, agentID, filePath string) (string, error) {
	query := url.Values{
		"path": []string{filePath},
	}

	resp, err := s.client.Get(ctx, s.endpoints.AgentFileDownload(agentID), query)
	if err != nil {
		return "", err
	}

	if err := resp.Err(); err != nil {
		return "", fmt.Errorf("downloading %s from agent %s: %w", filePath, agentID, err)
	}

	return resp.Text(), nil
}

type versionMetadata struct {
	Version string `json:"version"`
}

// Version returns the cluster's version.
func (s *Session) Version(ctx context.Context) (string, error) {
	var metadata versionMetadata

	if err := s.client.GetJSON(ctx, s.endpoints.Version(), nil, &metadata); err != nil {
		return "", fmt.Errorf("reading version: %w", err)
	}

	return metadata.Version, nil
}
