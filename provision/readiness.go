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
)

// Readiness defaults.
const (
	DefaultReadyInterval = 5 * time.Second
	DefaultReadyTimeout  = 10 * time.Minute
)

// ErrNotReady is returned when the controller did not answer a probe
// successfully before the readiness timeout.
var ErrNotReady = errors.New("controller not ready")

// Pinger probes whether the controller is serving its API.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadinessConfig controls the wait for the controller to come up.
type ReadinessConfig struct {
	// Interval is the pause between failed probes.
	Interval time.Duration

	// Timeout bounds the whole wait. Negative waits until ctx is done.
	Timeout time.Duration
}

func (c ReadinessConfig) withDefaults() ReadinessConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultReadyInterval
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultReadyTimeout
	}
	return c
}

// WaitReady probes the controller until one probe succeeds. It returns the
// number of probes made, the successful one included.
func WaitReady(ctx context.Context, pinger Pinger, cfg ReadinessConfig) (int, error) {
	cfg = cfg.withDefaults()
	logger := logging.FromContext(ctx)

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	var (
		probes  int
		lastErr error
	)
	callErr := retry.Call(retry.CallArgs{
		Func: func() error {
			probes++
			lastErr = pinger.Ping(ctx)
			if lastErr != nil {
				metrics.ReadinessProbes.WithLabelValues(metrics.ProbeNotReady).Inc()
			}
			return lastErr
		},
		NotifyFunc: func(err error, n int) {
			logger.Info("Controller not ready, waiting",
				zap.Int("probes", n),
				zap.Duration(logging.FieldDelay, cfg.Interval),
				zap.Error(err))
		},
		Attempts: -1,
		Delay:    cfg.Interval,
		Clock:    clock.WallClock,
		Stop:     ctx.Done(),
	})
	if callErr == nil {
		metrics.ReadinessProbes.WithLabelValues(metrics.ProbeReady).Inc()
		logger.Info("Controller is ready",
			zap.Int("probes", probes),
			zap.Int64(logging.FieldDuration, time.Since(start).Milliseconds()))
		return probes, nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) && cfg.Timeout > 0 {
		return probes, fmt.Errorf("%w after %d probe(s) in %s: %v", ErrNotReady, probes, cfg.Timeout, lastErr)
	}
	if ctx.Err() != nil {
		return probes, fmt.Errorf("waiting for controller: %w", ctx.Err())
	}
	return probes, fmt.Errorf("waiting for controller: %w", callErr)
}
