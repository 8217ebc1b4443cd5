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

// Package fake provides an in-process cluster control plane for testing
// clients without a real cluster.  Each route can be scripted to return a
// sequence of status codes before behaving normally, and every request is
// counted so tests can assert what was, or wasn't, called.
package fake

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-logr/logr"
)

// Agent is a worker node.
type Agent struct {
	ID       string
	Hostname string
	Public   bool
}

// Unit is a health reporting system unit.
type Unit struct {
	ID     string
	Health int
}

// Executor is a task executor running on an agent.
type Executor struct {
	ID        string
	Directory string
}

// Framework is a scheduler framework with executors on an agent.
type Framework struct {
	ID        string
	Executors []Executor
}

// Hook is called before a route is handled, with the 1-indexed call count.
type Hook func(call int)

type job struct {
	definition map[string]any
	runs       map[string]int
	succeeded  []string
	failed     []string
	nextRun    int
}

type bundle struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Cluster is a fake control plane.
type Cluster struct {
	lock sync.Mutex

	server *httptest.Server
	logger logr.Logger

	token        string
	credentials  map[string]any
	requireAuth  bool
	masters      []string
	quorum       []string
	agents       []Agent
	joined       int
	units        []Unit
	version      string
	frameworks   map[string][]Framework
	files        map[string]string
	jobs         map[string]*job
	runPolls     int
	failJobs     bool
	bundles      []bundle
	bundleFiles  map[string]string
	scripts      map[string][]int
	hooks        map[string]Hook
	requests     map[string]int
	lastRequests map[string]*http.Request
}

// New starts a fake cluster, it is shut down when the test completes.
func New(t interface {
	Cleanup(f func())
}) *Cluster {
	c := &Cluster{
		logger:       logr.Discard(),
		token:        "fake-token",
		joined:       -1,
		version:      "2.2.0",
		frameworks:   map[string][]Framework{},
		files:        map[string]string{},
		jobs:         map[string]*job{},
		runPolls:     1,
		bundleFiles:  map[string]string{},
		scripts:      map[string][]int{},
		hooks:        map[string]Hook{},
		requests:     map[string]int{},
		lastRequests: map[string]*http.Request{},
	}

	c.server = httptest.NewServer(c.router())

	t.Cleanup(c.server.Close)

	return c
}

// URL returns the gateway URL.
func (c *Cluster) URL() string {
	return c.server.URL
}

// SetLogger logs every request handled, and how, at verbosity 1.
func (c *Cluster) SetLogger(logger logr.Logger) *Cluster {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.logger = logger

	return c
}

// SetToken sets the token returned on login.
func (c *Cluster) SetToken(token string) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.token = token
}

// SetCredentials restricts login to the given payload.
func (c *Cluster) SetCredentials(credentials map[string]any) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.credentials = credentials
}

// RequireAuth rejects requests without the login token, other than the
// gateway root and login itself.
func (c *Cluster) RequireAuth(require bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.requireAuth = require
}

// SetMasters sets the masters, and the quorum to match.
func (c *Cluster) SetMasters(masters ...string) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.masters = masters
	c.quorum = masters
}

// SetQuorum sets the coordination nodes that have joined the quorum.
func (c *Cluster) SetQuorum(nodes ...string) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.quorum = nodes
}

// SetAgents sets the registered agents.
func (c *Cluster) SetAgents(agents ...Agent) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.agents = agents
}

// SetJoined limits the number of agents the leading master reports, a
// negative value reports them all.
func (c *Cluster) SetJoined(n int) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.joined = n
}

// SetUnits sets the health units.
func (c *Cluster) SetUnits(units ...Unit) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.units = units
}

// SetUnitHealth updates the health of a single unit.
func (c *Cluster) SetUnitHealth(id string, health int) {
	c.lock.Lock()
	defer c.lock.Unlock()

	for i := range c.units {
		if c.units[i].ID == id {
			c.units[i].Health = health
		}
	}
}

// SetVersion sets the reported cluster version.
func (c *Cluster) SetVersion(version string) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.version = version
}

// AddFramework adds framework state to an agent.
func (c *Cluster) AddFramework(agentID string, framework Framework) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.frameworks[agentID] = append(c.frameworks[agentID], framework)
}

// AddFile adds a downloadable file to an agent.
func (c *Cluster) AddFile(agentID, path, content string) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.files[agentID+":"+path] = content
}

// SetRunPolls sets how many times a job run is reported active.
func (c *Cluster) SetRunPolls(n int) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.runPolls = n
}

// FailJobs makes all job runs fail.
func (c *Cluster) FailJobs(fail bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.failJobs = fail
}

// HasJob returns whether a job exists.
func (c *Cluster) HasJob(id string) bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	_, ok := c.jobs[id]

	return ok
}

// AddBundleFile makes a diagnostics bundle downloadable.
func (c *Cluster) AddBundleFile(id, content string) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.bundleFiles[id] = content
}

// AddBundle adds an existing diagnostics bundle.
func (c *Cluster) AddBundle(id, status string) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.bundles = append(c.bundles, bundle{ID: id, Status: status})
}

// Script makes the route respond with each status in turn before it is
// handled normally.  The route is a method and chi pattern, e.g.
// "GET /marathon/v2/info".
func (c *Cluster) Script(route string, statuses ...int) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.scripts[route] = append(c.scripts[route], statuses...)
}

// Hook registers a function called before each request to the route.
func (c *Cluster) Hook(route string, hook Hook) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.hooks[route] = hook
}

// Requests returns how many times a route was called.
func (c *Cluster) Requests(route string) int {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.requests[route]
}

// LastRequest returns the last request made to a route.
func (c *Cluster) LastRequest(route string) *http.Request {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.lastRequests[route]
}

// Healthy configures a small, fully healthy cluster.
func (c *Cluster) Healthy() *Cluster {
	c.SetMasters("10.0.0.1", "10.0.0.2", "10.0.0.3")
	c.SetAgents(
		Agent{ID: "agent-1", Hostname: "10.0.1.1"},
		Agent{ID: "agent-2", Hostname: "10.0.1.2"},
		Agent{ID: "agent-3", Hostname: "10.0.2.1", Public: true},
	)
	c.SetUnits(
		Unit{ID: "dcos-mesos-master.service"},
		Unit{ID: "dcos-marathon.service"},
		Unit{ID: "dcos-metronome.service"},
	)

	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"code":  status,
		"error": message,
	})
}

// handle registers a route wrapped with request accounting, hooks and
// scripted responses.
func (c *Cluster) handle(r chi.Router, method, pattern string, handler http.HandlerFunc) {
	route := method + " " + pattern

	r.MethodFunc(method, pattern, func(w http.ResponseWriter, req *http.Request) {
		c.lock.Lock()
		c.requests[route]++
		c.lastRequests[route] = req
		call := c.requests[route]
		hook := c.hooks[route]
		logger := c.logger.WithValues("route", route, "call", call)
		c.lock.Unlock()

		if hook != nil {
			hook(call)
		}

		c.lock.Lock()

		if script := c.scripts[route]; len(script) > 0 {
			status := script[0]
			c.scripts[route] = script[1:]
			c.lock.Unlock()

			logger.V(1).Info("scripted response", "status", status)

			writeError(w, status, "scripted failure")

			return
		}

		if c.requireAuth && pattern != "/" && !strings.HasSuffix(pattern, "/auth/login") {
			if req.Header.Get("Authorization") != "token="+c.token {
				c.lock.Unlock()

				logger.V(1).Info("unauthorized")

				writeError(w, http.StatusUnauthorized, "authentication required")

				return
			}
		}

		c.lock.Unlock()

		logger.V(1).Info("handling request")

		handler(w, req)
	})
}

func (c *Cluster) router() http.Handler {
	r := chi.NewRouter()

	c.handle(r, http.MethodGet, "/", c.root)
	c.handle(r, http.MethodPost, "/acs/api/v1/auth/login", c.login)
	c.handle(r, http.MethodGet, "/dcos-metadata/dcos-version.json", c.getVersion)
	c.handle(r, http.MethodGet, "/exhibitor/exhibitor/v1/cluster/list", c.clusterList)
	c.handle(r, http.MethodGet, "/exhibitor/exhibitor/v1/cluster/status", c.clusterStatus)
	c.handle(r, http.MethodGet, "/mesos/slaves", c.listAgents)
	c.handle(r, http.MethodGet, "/mesos/master/slaves", c.listJoinedAgents)
	c.handle(r, http.MethodGet, "/marathon/v2/info", c.marathonInfo)
	c.handle(r, http.MethodGet, "/slave/{agentID}/slave(1)/state", c.cachedAgentState)
	c.handle(r, http.MethodGet, "/agent/{agentID}/state", c.agentState)
	c.handle(r, http.MethodGet, "/agent/{agentID}/files/download", c.downloadFile)
	c.handle(r, http.MethodGet, "/system/health/v1/units", c.listUnits)
	c.handle(r, http.MethodGet, "/system/health/v1/diagnostics", c.listBundles)
	c.handle(r, http.MethodPut, "/system/health/v1/diagnostics/{bundleID}", c.createBundle)
	c.handle(r, http.MethodGet, "/system/health/v1/diagnostics/{bundleID}/file", c.downloadBundle)
	c.handle(r, http.MethodGet, "/service/metronome/v1/jobs", c.listJobs)
	c.handle(r, http.MethodPost, "/service/metronome/v1/jobs", c.createJob)
	c.handle(r, http.MethodGet, "/service/metronome/v1/jobs/{jobID}", c.getJob)
	c.handle(r, http.MethodDelete, "/service/metronome/v1/jobs/{jobID}", c.deleteJob)
	c.handle(r, http.MethodPost, "/service/metronome/v1/jobs/{jobID}/runs", c.startRun)
	c.handle(r, http.MethodGet, "/service/metronome/v1/jobs/{jobID}/runs/{runID}", c.getRun)

	return r
}

func (c *Cluster) root(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("<html>gateway</html>"))
}

func (c *Cluster) login(w http.ResponseWriter, r *http.Request) {
	var credentials map[string]any

	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	if c.credentials != nil {
		for k, v := range c.credentials {
			if credentials[k] != v {
				writeError(w, http.StatusUnauthorized, "invalid credentials")
				return
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"token": c.token})
}

func (c *Cluster) getVersion(w http.ResponseWriter, _ *http.Request) {
	c.lock.Lock()
	defer c.lock.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"version":           c.version,
		"dcos-image-commit": "0000000",
	})
}

func (c *Cluster) clusterList(w http.ResponseWriter, _ *http.Request) {
	c.lock.Lock()
	defer c.lock.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"servers": c.masters,
		"port":    2181,
	})
}

func (c *Cluster) clusterStatus(w http.ResponseWriter, _ *http.Request) {
	c.lock.Lock()
	defer c.lock.Unlock()

	nodes := make([]map[string]any, len(c.quorum))

	for i, hostname := range c.quorum {
		nodes[i] = map[string]any{
			"hostname":    hostname,
			"isLeader":    i == 0,
			"description": "serving",
			"code":        3,
		}
	}

	writeJSON(w, http.StatusOK, nodes)
}

func (c *Cluster) agentsJSON(agents []Agent) map[string]any {
	out := make([]map[string]any, len(agents))

	for i, agent := range agents {
		attributes := map[string]any{}
		if agent.Public {
			attributes["public_ip"] = "true"
		}

		out[i] = map[string]any{
			"id":         agent.ID,
			"hostname":   agent.Hostname,
			"active":     true,
			"attributes": attributes,
		}
	}

	return map[string]any{"slaves": out}
}

func (c *Cluster) listAgents(w http.ResponseWriter, _ *http.Request) {
	c.lock.Lock()
	defer c.lock.Unlock()

	writeJSON(w, http.StatusOK, c.agentsJSON(c.agents))
}

func (c *Cluster) listJoinedAgents(w http.ResponseWriter, _ *http.Request) {
	c.lock.Lock()
	defer c.lock.Unlock()

	agents := c.agents
	if c.joined >= 0 && c.joined < len(agents) {
		agents = agents[:c.joined]
	}

	writeJSON(w, http.StatusOK, c.agentsJSON(agents))
}

func (c *Cluster) marathonInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "marathon",
		"version": "1.10.0",
		"leader":  "10.0.0.1:8080",
	})
}

func (c *Cluster) cachedAgentState(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	c.lock.Lock()
	defer c.lock.Unlock()

	for _, agent := range c.agents {
		if agent.ID == agentID {
			writeJSON(w, http.StatusOK, map[string]any{
				"id":       agent.ID,
				"hostname": agent.Hostname,
			})

			return
		}
	}

	writeError(w, http.StatusNotFound, "agent not found")
}

func (c *Cluster) agentState(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	c.lock.Lock()
	defer c.lock.Unlock()

	frameworks := []map[string]any{}

	for _, framework := range c.frameworks[agentID] {
		executors := []map[string]any{}

		for _, executor := range framework.Executors {
			executors = append(executors, map[string]any{
				"id":        executor.ID,
				"directory": executor.Directory,
			})
		}

		frameworks = append(frameworks, map[string]any{
			"id":        framework.ID,
			"executors": executors,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":         agentID,
		"frameworks": frameworks,
	})
}

func (c *Cluster) downloadFile(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	path := r.URL.Query().Get("path")

	c.lock.Lock()
	content, ok := c.files[agentID+":"+path]
	c.lock.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "file not found: "+path)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write([]byte(content))
}

func (c *Cluster) listUnits(w http.ResponseWriter, _ *http.Request) {
	c.lock.Lock()
	defer c.lock.Unlock()

	units := make([]map[string]any, len(c.units))

	for i, unit := range c.units {
		units[i] = map[string]any{
			"id":     unit.ID,
			"name":   unit.ID,
			"health": unit.Health,
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"units": units})
}

// listBundles advances every in flight bundle one state per call.
func (c *Cluster) listBundles(w http.ResponseWriter, _ *http.Request) {
	c.lock.Lock()
	defer c.lock.Unlock()

	out := make([]bundle, len(c.bundles))
	copy(out, c.bundles)

	for i := range c.bundles {
		switch c.bundles[i].Status {
		case "Started":
			c.bundles[i].Status = "InProgress"
		case "InProgress":
			c.bundles[i].Status = "Done"
		}
	}

	writeJSON(w, http.StatusOK, out)
}

// createBundle starts a bundle, which is downloadable with generated content
// unless a file was added for it.
func (c *Cluster) createBundle(w http.ResponseWriter, r *http.Request) {
	bundleID := chi.URLParam(r, "bundleID")

	c.lock.Lock()
	defer c.lock.Unlock()

	c.bundles = append(c.bundles, bundle{ID: bundleID, Status: "Started"})

	if _, ok := c.bundleFiles[bundleID]; !ok {
		c.bundleFiles[bundleID] = "bundle " + bundleID
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":         bundleID,
		"status":     "Started",
		"started_at": "2019-08-05T11:31:53.238640571Z",
	})
}

func (c *Cluster) downloadBundle(w http.ResponseWriter, r *http.Request) {
	bundleID := chi.URLParam(r, "bundleID")

	c.lock.Lock()
	content, ok := c.bundleFiles[bundleID]
	c.lock.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "bundle not found")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	_, _ = w.Write([]byte(content))
}

func (c *Cluster) listJobs(w http.ResponseWriter, _ *http.Request) {
	c.lock.Lock()
	defer c.lock.Unlock()

	out := []map[string]any{}

	for _, j := range c.jobs {
		out = append(out, j.definition)
	}

	writeJSON(w, http.StatusOK, out)
}

func (c *Cluster) createJob(w http.ResponseWriter, r *http.Request) {
	var definition map[string]any

	if err := json.NewDecoder(r.Body).Decode(&definition); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, _ := definition["id"].(string)

	c.lock.Lock()
	defer c.lock.Unlock()

	if _, ok := c.jobs[id]; ok {
		writeError(w, http.StatusConflict, "job exists")
		return
	}

	c.jobs[id] = &job{
		definition: definition,
		runs:       map[string]int{},
	}

	writeJSON(w, http.StatusCreated, definition)
}

func runRefs(ids []string) []map[string]any {
	out := make([]map[string]any, len(ids))

	for i, id := range ids {
		out[i] = map[string]any{"id": id}
	}

	return out
}

func (c *Cluster) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	c.lock.Lock()
	defer c.lock.Unlock()

	j, ok := c.jobs[jobID]
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	out := map[string]any{}

	for k, v := range j.definition {
		out[k] = v
	}

	if r.URL.Query().Get("embed") == "history" {
		out["history"] = map[string]any{
			"successCount":           len(j.succeeded),
			"failureCount":           len(j.failed),
			"successfulFinishedRuns": runRefs(j.succeeded),
			"failedFinishedRuns":     runRefs(j.failed),
		}
	}

	writeJSON(w, http.StatusOK, out)
}

func (c *Cluster) deleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	c.lock.Lock()
	defer c.lock.Unlock()

	if _, ok := c.jobs[jobID]; !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	delete(c.jobs, jobID)

	w.WriteHeader(http.StatusOK)
}

func (c *Cluster) startRun(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	c.lock.Lock()
	defer c.lock.Unlock()

	j, ok := c.jobs[jobID]
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	j.nextRun++
	runID := jobID + "-run-" + strconv.Itoa(j.nextRun)
	j.runs[runID] = c.runPolls

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":     runID,
		"jobId":  jobID,
		"status": "INITIAL",
	})
}

// getRun reports a run as active for the configured number of polls, after
// which it is moved into the job history.
func (c *Cluster) getRun(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	runID := chi.URLParam(r, "runID")

	c.lock.Lock()
	defer c.lock.Unlock()

	j, ok := c.jobs[jobID]
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	remaining, ok := j.runs[runID]
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}

	if remaining <= 0 {
		delete(j.runs, runID)

		if c.failJobs {
			j.failed = append(j.failed, runID)
		} else {
			j.succeeded = append(j.succeeded, runID)
		}

		writeError(w, http.StatusNotFound, "run not found")

		return
	}

	j.runs[runID] = remaining - 1

	writeJSON(w, http.StatusOK, map[string]any{
		"id":     runID,
		"jobId":  jobID,
		"status": "ACTIVE",
	})
}
