package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/livesync/core/logger"
)

// ErrNotReady wraps every failed probe.
var ErrNotReady = errors.New("health: dependency not ready")

// Check is a named readiness probe.
type Check struct {
	Name  string
	Probe func(context.Context) error
}

// Result is the outcome of one probe.
type Result struct {
	Name    string
	Err     error
	Elapsed time.Duration
}

// Run executes checks in order and returns one result per check.
func Run(ctx context.Context, checks ...Check) []Result {
	results := make([]Result, 0, len(checks))
	for _, c := range checks {
		start := time.Now()
		var err error
		if c.Probe != nil {
			err = c.Probe(ctx)
		}
		results = append(results, Result{Name: c.Name, Err: err, Elapsed: time.Since(start)})
	}
	return results
}

// Readiness runs checks and returns nil when all pass. Failures are logged
// and joined under ErrNotReady.
func Readiness(ctx context.Context, log *slog.Logger, checks ...Check) error {
	var errs []error
	for _, r := range Run(ctx, checks...) {
		if r.Err == nil {
			continue
		}
		if log != nil {
			log.ErrorContext(ctx, "readiness check failed",
				logger.Component(r.Name),
				logger.Duration(r.Elapsed),
				logger.Error(r.Err),
			)
		}
		errs = append(errs, fmt.Errorf("%s: %w", r.Name, r.Err))
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(append([]error{ErrNotReady}, errs...)...)
}
