// Package waiter provides the two blocking primitives the reconcilers share:
// retry-on-conflict around mutating calls, and fixed-interval polling until
// an asynchronously provisioned resource reaches a terminal state.
//
// The external control plane offers no push notification for status changes,
// so coarse fixed-interval polling is deliberate. Each reconciler invocation
// is short-lived and single-purpose; blocking here is acceptable.
package waiter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"studioprov/internal/controlplane"
	"studioprov/pkg/logging"
)

// Config carries the timing knobs for both primitives. The zero value uses
// the real clock and the default intervals.
type Config struct {
	// Clock defaults to RealClock.
	Clock Clock

	// Interval between describe polls. Default 5s.
	Interval time.Duration

	// ConflictRetryDelay between retries of a conflicted mutation. Default 10s.
	ConflictRetryDelay time.Duration

	// SettleDelay applied after asynchronous updates before any dependent
	// read, compensating for eventual-consistency lag. Default 10s.
	SettleDelay time.Duration

	// MaxWait bounds a single poll loop. Zero means unbounded (the
	// invocation-level wall-clock timeout is the only limit then).
	MaxWait time.Duration
}

const (
	defaultInterval           = 5 * time.Second
	defaultConflictRetryDelay = 10 * time.Second
	defaultSettleDelay        = 10 * time.Second
)

func (c Config) clock() Clock {
	if c.Clock != nil {
		return c.Clock
	}
	return RealClock
}

func (c Config) interval() time.Duration {
	if c.Interval > 0 {
		return c.Interval
	}
	return defaultInterval
}

func (c Config) conflictRetryDelay() time.Duration {
	if c.ConflictRetryDelay > 0 {
		return c.ConflictRetryDelay
	}
	return defaultConflictRetryDelay
}

func (c Config) settleDelay() time.Duration {
	if c.SettleDelay > 0 {
		return c.SettleDelay
	}
	return defaultSettleDelay
}

// TerminalFailureError reports that a polled resource reached a failure
// status. The resource identifier is embedded so callers surface it.
type TerminalFailureError struct {
	Resource string
	Status   string
}

func (e *TerminalFailureError) Error() string {
	return fmt.Sprintf("%s entered status %s", e.Resource, e.Status)
}

// IsFailureStatus reports whether a status string is the control plane's
// failure marker (any status containing "fail", case-insensitive).
func IsFailureStatus(status string) bool {
	return strings.Contains(strings.ToLower(status), "fail")
}

// RetryOnConflict invokes op; while it fails because the target resource is
// already being updated, it sleeps the conflict retry delay and tries again
// indefinitely. Any other error propagates immediately. The external control
// plane serializes mutations per resource, so concurrent attach/detach
// traffic surfaces as transient conflicts rather than queued writes.
func RetryOnConflict(ctx context.Context, cfg Config, op func() error) error {
	clock := cfg.clock()
	for {
		err := op()
		if err == nil {
			return nil
		}
		if !controlplane.IsConflict(err) {
			return err
		}
		logging.Debug("Waiter", "Target already updating - waiting %s to retry", cfg.conflictRetryDelay())
		clock.Sleep(cfg.conflictRetryDelay())
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
}

// Poll repeatedly invokes describe until statusOf(payload) equals target,
// returning the final payload. A failure status is a terminal error carrying
// the resource identifier. Errors from describe propagate immediately.
func Poll[T any](
	ctx context.Context,
	cfg Config,
	resource string,
	describe func(context.Context) (T, error),
	statusOf func(T) string,
	target string,
) (T, error) {
	var zero T
	clock := cfg.clock()
	deadline := time.Time{}
	if cfg.MaxWait > 0 {
		deadline = clock.Now().Add(cfg.MaxWait)
	}
	for {
		payload, err := describe(ctx)
		if err != nil {
			return zero, err
		}
		status := statusOf(payload)
		if status == target {
			return payload, nil
		}
		if IsFailureStatus(status) {
			return zero, &TerminalFailureError{Resource: resource, Status: status}
		}
		logging.Debug("Waiter", "%s not yet %s (status %s)", resource, target, status)
		if !deadline.IsZero() && !clock.Now().Before(deadline) {
			return zero, fmt.Errorf("timed out waiting for %s to reach %s (last status %s)", resource, target, status)
		}
		clock.Sleep(cfg.interval())
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
	}
}

// PollUntilGone repeatedly invokes probe until it reports not-found, which
// is the success signal for asynchronous deletion (the control plane exposes
// no "deleted" status - the describe call itself starts failing). If verify
// is non-nil it is applied to each observed status and may reject statuses
// that indicate deletion has stalled.
func PollUntilGone(
	ctx context.Context,
	cfg Config,
	resource string,
	probe func(context.Context) (string, error),
	verify func(status string) error,
) error {
	clock := cfg.clock()
	deadline := time.Time{}
	if cfg.MaxWait > 0 {
		deadline = clock.Now().Add(cfg.MaxWait)
	}
	for {
		status, err := probe(ctx)
		if err != nil {
			if controlplane.IsNotFound(err) {
				logging.Debug("Waiter", "%s no longer present", resource)
				return nil
			}
			return err
		}
		if verify != nil {
			if err := verify(status); err != nil {
				return err
			}
		}
		logging.Debug("Waiter", "%s still present (status %s)", resource, status)
		if !deadline.IsZero() && !clock.Now().Before(deadline) {
			return fmt.Errorf("timed out waiting for %s to be deleted (last status %s)", resource, status)
		}
		clock.Sleep(cfg.interval())
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
}

// Settle sleeps the configured settle delay. Called after asynchronous
// updates whose effects an immediately-following read might not observe.
func Settle(cfg Config) {
	cfg.clock().Sleep(cfg.settleDelay())
}
