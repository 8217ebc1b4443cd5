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
	"net/http"

	"github.com/unikorn-cloud/dcos-harness/pkg/client"
	"github.com/unikorn-cloud/dcos-harness/pkg/retry"

	"sigs.k8s.io/controller-runtime/pkg/log"
)

// ErrLoginFailed is raised when login returns no token.
var ErrLoginFailed = errors.New("login failed")

type loginResponse struct {
	Token string `json:"token"`
}

// Login authenticates the session's user.  It does nothing if there is no
// user, and makes no request if the user already has a token.
//
// The login endpoint may not be routable immediately after the gateway is
// up, so login is retried at a slow interval.  Credentials being rejected
// is fatal.
func (s *Session) Login(ctx context.Context) error {
	log := log.FromContext(ctx)

	if s.user == nil {
		log.Info("no credentials are defined")

		return nil
	}

	if s.user.AuthToken != "" {
		log.V(1).Info("already logged in")
		s.client.SetAuthorizer(s.user.Authorizer())

		return nil
	}

	log.Info("attempting login")

	var token string

	probe := func(ctx context.Context) error {
		resp, err := s.client.Post(ctx, s.endpoints.Login(), s.user.Credentials)
		if err != nil {
			return err
		}

		if err := resp.Err(); err != nil {
			if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
				return retry.Permanent(err)
			}

			return err
		}

		var result loginResponse

		if err := resp.JSON(&result); err != nil {
			return err
		}

		if result.Token == "" {
			return retry.Permanent(fmt.Errorf("%w: no token in response", ErrLoginFailed))
		}

		token = result.Token

		return nil
	}

	if err := retry.Until(ctx, "login", s.policies.Login, probe); err != nil {
		return err
	}

	s.user.AuthToken = token
	s.client.SetAuthorizer(client.TokenAuth(token))

	log.Info("login successful")

	return nil
}
