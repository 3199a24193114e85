// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package utils

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/luxfi/log"
)

// WithRetriesTimeout uses an exponential backoff to run the operation
// until it succeeds or the timeout has elapsed.
func WithRetriesTimeout(
	logger log.Logger,
	operation backoff.Operation,
	timeout time.Duration,
) error {
	expBackOff := backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(timeout),
	)
	notify := func(err error, duration time.Duration) {
		logger.Warn("operation failed, retrying...", log.Err(err))
	}
	return backoff.RetryNotify(operation, expBackOff, notify)
}

// PollPolicy bounds a fixed-interval poll
type PollPolicy struct {
	Interval time.Duration
	Deadline time.Duration
}

// Outcome is the terminal state of a bounded poll
type Outcome int

const (
	// Done means the condition was met before the deadline
	Done Outcome = iota
	// TimedOut means the deadline elapsed with the condition still pending
	TimedOut
)

// Poll runs fn at the policy's fixed interval until it reports done,
// the policy deadline elapses, or ctx is canceled. A pending condition
// is an expected state, not an error: fn returns done=false to keep
// polling and callers branch on the returned Outcome.
func Poll(ctx context.Context, policy PollPolicy, fn func(ctx context.Context) (done bool, err error)) (Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, policy.Deadline)
	defer cancel()

	ticker := time.NewTicker(policy.Interval)
	defer ticker.Stop()

	for {
		done, err := fn(ctx)
		if err != nil {
			return Done, err
		}
		if done {
			return Done, nil
		}

		select {
		case <-ctx.Done():
			return TimedOut, nil
		case <-ticker.C:
		}
	}
}
