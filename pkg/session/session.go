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

// Package session provides a client session for a cluster under test.
//
// A session authenticates against the control plane gateway, resolves the
// cluster topology and can block until every subsystem reports ready, after
// which tests can use the sub-service clients and helpers it exposes.
//
// If the expected topology (masters, agents and public agents) is supplied,
// readiness waits for exactly that topology to register.  Otherwise there is
// no ground truth and whatever is currently registered is accepted.
//
// Sessions are not safe for concurrent use, use Copy to hand a session to
// another goroutine.
package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"

	"github.com/unikorn-cloud/dcos-harness/pkg/client"
	"github.com/unikorn-cloud/dcos-harness/pkg/config"
	"github.com/unikorn-cloud/dcos-harness/pkg/diagnostics"
	"github.com/unikorn-cloud/dcos-harness/pkg/jobs"
)

var (
	// ErrHostListsIncomplete is raised when waiting for hosts is requested
	// but the expected topology is not fully defined.
	ErrHostListsIncomplete = errors.New("host lists incomplete")

	// ErrNoMasters is raised when an operation requires a known master.
	ErrNoMasters = errors.New("no masters known")
)

// User is a user that can authenticate with the cluster.
type User struct {
	// Credentials is the login request payload.
	Credentials map[string]any
	// AuthToken is set after a successful login.
	AuthToken string
}

// NewUser returns a user that is yet to log in.
func NewUser(credentials map[string]any) *User {
	return &User{
		Credentials: credentials,
	}
}

// NewTokenUser returns a user with a pre-issued token.
func NewTokenUser(token string) *User {
	return &User{
		Credentials: map[string]any{"token": ""},
		AuthToken:   token,
	}
}

// Authorizer returns the request authorizer for the user's token.
func (u *User) Authorizer() client.Authorizer {
	return client.TokenAuth(u.AuthToken)
}

// Session is a client session for a cluster.
type Session struct {
	client        *client.Client
	clientOptions client.Options
	endpoints     *client.Endpoints

	masters      []string
	agents       []string
	publicAgents []string

	user                   *User
	exhibitorAdminPassword string
	waitForHosts           bool
	policies               Policies
	jobRunner              JobRunner
}

// Option modifies a session at creation time.
type Option func(*Session)

// WithClientOptions sets HTTP client options.
func WithClientOptions(options *client.Options) Option {
	return func(s *Session) {
		s.clientOptions = *options
	}
}

// WithWaitForHosts controls whether readiness requires the full topology to
// be supplied, it defaults to true.
func WithWaitForHosts(wait bool) Option {
	return func(s *Session) {
		s.waitForHosts = wait
	}
}

// WithExhibitorAdminPassword enables direct access to exhibitor.
func WithExhibitorAdminPassword(password string) Option {
	return func(s *Session) {
		s.exhibitorAdminPassword = password
	}
}

// WithPolicies overrides the readiness retry policies.
func WithPolicies(policies Policies) Option {
	return func(s *Session) {
		s.policies = policies
	}
}

// WithJobRunner overrides the batch job client used by MetronomeOneOff.
func WithJobRunner(runner JobRunner) Option {
	return func(s *Session) {
		s.jobRunner = runner
	}
}

// New creates a session.  A nil node list means it is unknown, and it will
// be discovered from the cluster when required.  A nil user means requests
// are unauthenticated.
func New(baseURL string, masters, agents, publicAgents []string, user *User, options ...Option) (*Session, error) {
	s := &Session{
		endpoints:    client.NewEndpoints(),
		masters:      slices.Clone(masters),
		agents:       slices.Clone(agents),
		publicAgents: slices.Clone(publicAgents),
		user:         user,
		waitForHosts: true,
		policies:     DefaultPolicies(),
	}

	for _, o := range options {
		o(s)
	}

	cli, err := client.New(baseURL, &s.clientOptions)
	if err != nil {
		return nil, err
	}

	s.client = cli

	return s, nil
}

// NewFromConfig creates a session as described by the configuration.
func NewFromConfig(c *config.Config, options ...Option) (*Session, error) {
	var user *User

	switch {
	case c.AuthToken != "":
		user = NewTokenUser(c.AuthToken)
	case c.Credentials != nil:
		user = NewUser(c.Credentials)
	}

	clientOptions := &client.Options{
		Timeout:      c.RequestTimeout,
		LogRequests:  c.LogRequests,
		LogResponses: c.LogResponses,
	}

	defaults := []Option{
		WithClientOptions(clientOptions),
		WithWaitForHosts(c.WaitForHosts),
		WithExhibitorAdminPassword(c.ExhibitorAdminPassword),
	}

	return New(c.URL, c.Masters, c.Agents, c.PublicAgents, user, append(defaults, options...)...)
}

// Create creates a session from the configuration and logs in.
func Create(ctx context.Context, c *config.Config, options ...Option) (*Session, error) {
	s, err := NewFromConfig(c, options...)
	if err != nil {
		return nil, err
	}

	if err := s.Login(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

// Client returns the gateway client.
func (s *Session) Client() *client.Client {
	return s.client
}

// User returns the session's user, if any.
func (s *Session) User() *User {
	return s.user
}

func sorted(hosts []string) []string {
	if hosts == nil {
		return nil
	}

	out := slices.Clone(hosts)
	slices.Sort(out)

	return out
}

// Masters returns a sorted list of master addresses.
func (s *Session) Masters() []string {
	return sorted(s.masters)
}

// Agents returns a sorted list of private agent addresses.
func (s *Session) Agents() []string {
	return sorted(s.agents)
}

// PublicAgents returns a sorted list of public agent addresses.
func (s *Session) PublicAgents() []string {
	return sorted(s.publicAgents)
}

// AllAgents returns a sorted list of all agent addresses.
func (s *Session) AllAgents() []string {
	return sorted(slices.Concat(s.agents, s.publicAgents))
}

// NodeListsSet returns true if the full topology is known.
func (s *Session) NodeListsSet() bool {
	return s.masters != nil && s.agents != nil && s.publicAgents != nil
}

// Copy returns a new session with the same authentication but without any
// cookies.
func (s *Session) Copy() *Session {
	out := *s
	out.client = s.client.Copy()
	out.masters = slices.Clone(s.masters)
	out.agents = slices.Clone(s.agents)
	out.publicAgents = slices.Clone(s.publicAgents)

	if s.user != nil {
		user := *s.user
		out.user = &user
	}

	return &out
}

// UserSession returns a copy of the session authenticated as a different
// user, or unauthenticated if the user is nil.
func (s *Session) UserSession(ctx context.Context, user *User) (*Session, error) {
	out := s.Copy()
	out.client.SetAuthorizer(nil)
	out.user = nil

	if user == nil {
		return out, nil
	}

	out.user = user

	if err := out.Login(ctx); err != nil {
		return nil, err
	}

	return out, nil
}

// service returns a cookie-less client rooted at a service path.
func (s *Session) service(path string) *client.Client {
	return s.client.Copy().WithPath(path)
}

// Marathon returns a client for the application scheduler.
func (s *Session) Marathon() *client.Client {
	return s.service(s.endpoints.MarathonService())
}

// Metronome returns a client for the batch job service.
func (s *Session) Metronome() *client.Client {
	return s.service(s.endpoints.MetronomeService())
}

// Cosmos returns a client for the package manager.
func (s *Session) Cosmos() *client.Client {
	return s.service(s.endpoints.CosmosService())
}

// Logs returns a client for the logging API.
func (s *Session) Logs() *client.Client {
	return s.service(s.endpoints.LogsService())
}

// Metrics returns a client for the metrics API.
func (s *Session) Metrics() *client.Client {
	return s.service(s.endpoints.MetricsService())
}

// Exhibitor returns a client for the coordination service supervisor.  When
// an admin password is set, exhibitor is protected with basic auth, which
// conflicts with the gateway's, so the first master is accessed directly.
func (s *Session) Exhibitor() (*client.Client, error) {
	if s.exhibitorAdminPassword == "" {
		return s.service(s.endpoints.ExhibitorService()), nil
	}

	masters := s.Masters()
	if len(masters) == 0 {
		return nil, fmt.Errorf("%w: exhibitor requires a master address", ErrNoMasters)
	}

	u := url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(masters[0], "8181"),
	}

	cli := s.client.Copy().WithBaseURL(u.String())
	cli.SetAuthorizer(client.BasicAuth{
		Username: "admin",
		Password: s.exhibitorAdminPassword,
	})

	return cli, nil
}

// Jobs returns a batch job client.
func (s *Session) Jobs() *jobs.Client {
	return jobs.New(s.Metronome())
}

// Health returns a health service client, responses bypass the service's
// cache.
func (s *Session) Health() *diagnostics.Client {
	query := url.Values{
		"cache": []string{"0"},
	}

	return diagnostics.New(s.service(s.endpoints.HealthService()).WithQuery(query), s.Masters(), s.AllAgents())
}
