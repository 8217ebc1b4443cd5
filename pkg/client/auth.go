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

package client

import (
	"net/http"
)

// Authorizer decorates requests with credentials.
type Authorizer interface {
	Authorize(req *http.Request)
}

// TokenAuth authorizes with the gateway's "token=" authorization scheme.
type TokenAuth string

func (t TokenAuth) Authorize(req *http.Request) {
	req.Header.Set("Authorization", "token="+string(t))
}

// BasicAuth authorizes with HTTP basic authentication, used when a service
// is accessed directly rather than through the gateway.
type BasicAuth struct {
	Username string
	Password string
}

func (b BasicAuth) Authorize(req *http.Request) {
	req.SetBasicAuth(b.Username, b.Password)
}
