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

package retry

import (
	"net/http"
	"slices"
)

// StatusSet is a set of HTTP status codes.
type StatusSet []int

// Contains returns true if the code is a member of the set.
func (s StatusSet) Contains(code int) bool {
	return slices.Contains(s, code)
}

var (
	// AgentRecoveryStatuses are returned by the gateway while an agent is
	// unknown to its cache, restarting, or recovering.
	AgentRecoveryStatuses = StatusSet{
		http.StatusNotFound,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
	}

	// ServiceStartupStatuses are returned by the gateway while a service is
	// not yet routable or is starting up.
	ServiceStartupStatuses = StatusSet{
		http.StatusNotFound,
		http.StatusGatewayTimeout,
	}
)

// IsServerError returns true for any 5XX status.
func IsServerError(code int) bool {
	return code >= http.StatusInternalServerError
}
