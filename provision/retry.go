package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"
	"go.uber.org/zap"

	"github.com/nextensio/ctrlseed/internal/logging"
	"github.com/nextensio/ctrlseed/internal/metrics"
	"github.com/nextensio/ctrlseed/sdk"
)

// RetryPolicy controls how a failed step is retried.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, the first included.
	// Zero or negative retries until the context is cancelled.
	MaxAttempts int

	// InitialDelay is the wait after the first failure.
	InitialDelay time.Duration

	// MaxDelay caps the wait between attempts.
	MaxDelay time.Duration

	// Multiplier grows the wait after every failure.
	Multiplier float64
}

// DefaultRetryPolicy returns the policy used when none is configured:
// 1s, 2s, 4s, 8s, then 15s between attempts, 40 attempts in total.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  40,
		InitialDelay: 1 * time.Second,
		MaxDelay:     15 * time.Second,
		Multiplier:   2.0,
	}
}

// withDefaults fills zero durations and multiplier from DefaultRetryPolicy.
func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.InitialDelay <= 0 {
		p.InitialDelay = def.InitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = def.Multiplier
	}
	return p
}

// Delay returns the wait after the given failed attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	p = p.withDefaults()
	delay := float64(p.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= p.Multiplier
		if delay >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	return time.Duration(delay)
}

// Step identifies one create-operation of a provisioning run.
type Step struct {
	// Name is a human-readable description, e.g. "user test1@nextensio.net".
	Name string

	// Endpoint is the controller endpoint the step calls.
	Endpoint string
}

// StepError is returned when a step gives up.
type StepError struct {
	Step     Step
	Attempts int
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q (%s) failed after %d attempt(s): %v", e.Step.Name, e.Step.Endpoint, e.Attempts, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// PermanentError marks an error that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent marks err as non-retryable. Permanent(nil) is nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var permanent *PermanentError
	return errors.As(err, &permanent)
}

// Retry runs fn until it succeeds, returns a Permanent error, the policy's
// attempts are used up, or ctx is done. Every failure kind is retried: the
// controller is assumed to accept repeated creates.
//
// Returns:
//   - int: The number of attempts made
//   - error: nil on success, otherwise a *StepError wrapping the last failure
func Retry(ctx context.Context, policy RetryPolicy, step Step, fn func(context.Context) error) (int, error) {
	policy = policy.withDefaults()
	logger := logging.FromContext(ctx).With(
		zap.String(logging.FieldStep, step.Name),
		zap.String(logging.FieldEndpoint, step.Endpoint),
	)

	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = -1
	}

	var (
		attempt int
		lastErr error
	)
	callErr := retry.Call(retry.CallArgs{
		Func: func() error {
			attempt++
			metrics.StepAttempts.WithLabelValues(step.Endpoint).Inc()
			lastErr = fn(ctx)
			if lastErr != nil {
				metrics.StepFailures.WithLabelValues(step.Endpoint, failureKind(lastErr)).Inc()
			}
			return lastErr
		},
		IsFatalError: IsPermanent,
		NotifyFunc: func(err error, n int) {
			if attempts > 0 && n >= attempts {
				return
			}
			logger.Warn("Step failed, retrying",
				zap.Int(logging.FieldAttempt, n),
				zap.String(logging.FieldKind, failureKind(err)),
				zap.Duration(logging.FieldDelay, policy.Delay(n)),
				zap.Error(err),
			)
		},
		Attempts: attempts,
		Delay:    policy.InitialDelay,
		MaxDelay: policy.MaxDelay,
		BackoffFunc: func(_ time.Duration, n int) time.Duration {
			return policy.Delay(n)
		},
		Clock: clock.WallClock,
		Stop:  ctx.Done(),
	})
	if callErr == nil {
		if attempt > 1 {
			logger.Info("Step succeeded after retries", zap.Int(logging.FieldAttempt, attempt))
		}
		return attempt, nil
	}
	if lastErr == nil {
		lastErr = callErr
	}

	switch {
	case IsPermanent(lastErr):
		logger.Error("Step failed permanently", zap.Int(logging.FieldAttempt, attempt), zap.Error(lastErr))
	case retry.IsRetryStopped(callErr) || ctx.Err() != nil:
		return attempt, &StepError{
			Step:     step,
			Attempts: attempt,
			Err:      fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr),
		}
	default:
		logger.Error("Step failed, giving up",
			zap.Int(logging.FieldAttempt, attempt),
			zap.String(logging.FieldKind, failureKind(lastErr)),
			zap.Error(lastErr),
		)
	}
	return attempt, &StepError{Step: step, Attempts: attempt, Err: lastErr}
}

// failureKind labels an error for logs and metrics.
func failureKind(err error) string {
	if kind, ok := sdk.KindOf(err); ok {
		return kind.String()
	}
	if IsPermanent(err) {
		return "permanent"
	}
	return "other"
}
