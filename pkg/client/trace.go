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
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/google/uuid"
)

// traceState identifies harness traffic in the gateway logs.
const traceState = "test-automation=dcos-harness"

// traceContext is the W3C trace context of a single request, every request
// starts a new trace so a failure can be found in the gateway logs by ID.
type traceContext struct {
	traceID string
	spanID  string
}

func newTraceContext() traceContext {
	traceID := uuid.New()

	spanID := make([]byte, 8)
	_, _ = rand.Read(spanID)

	return traceContext{
		traceID: hex.EncodeToString(traceID[:]),
		spanID:  hex.EncodeToString(spanID),
	}
}

// inject sets the sampled traceparent and tracestate headers.
func (t traceContext) inject(header http.Header) {
	header.Set("Traceparent", "00-"+t.traceID+"-"+t.spanID+"-01")
	header.Set("Tracestate", traceState)
}
