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

// Package retry implements bounded, fixed interval probing of a condition.
//
// A probe either succeeds, reports that the condition is not ready yet, or
// fails.  Only "not ready" is retried by default, everything else aborts the
// wait immediately.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"sigs.k8s.io/controller-runtime/pkg/log"
)

var (
	// ErrNotReady is returned by probes when the condition does not hold yet.
	ErrNotReady = errors.New("not ready")

	// ErrExhausted is returned when a policy's bounds are reached before the
	// probe succeeds.
	ErrExhausted = errors.New("retries exhausted")
)

// Probe checks a condition.
type Probe func(ctx context.Context) error

// Policy defines how often, and for how long, a probe is retried.
type Policy struct {
	// Interval is the fixed delay between attempts.
	Interval time.Duration
	// MaxAttempts caps the number of probe invocations, zero is unbounded.
	MaxAttempts int
	// MaxElapsed caps the total time spent, zero is unbounded.
	MaxElapsed time.Duration
	// RetryErrors retries all non-permanent errors, not just ErrNotReady.
	RetryErrors bool
}

// NotReady returns an error that causes the probe to be retried.
func NotReady(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotReady, fmt.Sprintf(format, args...))
}

// Permanent marks an error as fatal regardless of policy.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// backOff builds a constant back off, an exponential back off with a unit
// multiplier is used as it's the only implementation that enforces an elapsed
// time limit.
func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Interval
	b.MaxInterval = p.Interval
	b.Multiplier = 1
	b.RandomizationFactor = 0
	b.MaxElapsedTime = p.MaxElapsed
	b.Reset()

	var out backoff.BackOff = b

	if p.MaxAttempts > 0 {
		//nolint:gosec
		out = backoff.WithMaxRetries(out, uint64(p.MaxAttempts-1))
	}

	return backoff.WithContext(out, ctx)
}

// Until invokes the probe until it succeeds, the policy is exhausted, or a
// fatal error occurs.
func Until(ctx context.Context, name string, policy Policy, probe Probe) error {
	log := log.FromContext(ctx).WithValues("check", name)

	var (
		attempts int
		fatal    bool
	)

	operation := func() error {
		attempts++

		err := probe(ctx)
		if err == nil {
			return nil
		}

		var permanent *backoff.PermanentError

		if errors.As(err, &permanent) {
			fatal = true

			return err
		}

		if errors.Is(err, ErrNotReady) || policy.RetryErrors {
			return err
		}

		fatal = true

		return backoff.Permanent(err)
	}

	notify := func(err error, next time.Duration) {
		log.Info("waiting", "attempt", attempts, "reason", err.Error(), "retryIn", next)
	}

	err := backoff.RetryNotify(operation, policy.backOff(ctx), notify)
	if err == nil {
		log.V(1).Info("ready", "attempts", attempts)

		return nil
	}

	if fatal || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", name, err)
	}

	return fmt.Errorf("%w: %s after %d attempts: %w", ErrExhausted, name, attempts, err)
}
