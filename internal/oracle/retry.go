package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/signalsfoundry/midcourse-planner/internal/logging"
	"github.com/signalsfoundry/midcourse-planner/internal/observability"
	"github.com/signalsfoundry/midcourse-planner/model"
)

// RetryPolicy bounds how often a failed query is attempted.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy returns three attempts starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialInterval: time.Second, MaxInterval: 10 * time.Second}
}

// Retrying retries transient failures of the wrapped oracle with exponential
// backoff. Any failure it gives up on is reported as ErrCoverageUnavailable
// wrapping the last underlying error.
type Retrying struct {
	next    Oracle
	policy  RetryPolicy
	log     logging.Logger
	metrics *observability.OracleCollector
}

// NewRetrying wraps next with policy.
func NewRetrying(next Oracle, policy RetryPolicy, log logging.Logger, metrics *observability.OracleCollector) *Retrying {
	if log == nil {
		log = logging.Noop()
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = DefaultRetryPolicy().InitialInterval
	}
	if policy.MaxInterval < policy.InitialInterval {
		policy.MaxInterval = policy.InitialInterval
	}
	return &Retrying{next: next, policy: policy, log: log, metrics: metrics}
}

func (r *Retrying) QueryVisibility(ctx context.Context, satelliteID, missileID string, start, end time.Time) ([]model.VisibilityInterval, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.policy.InitialInterval
	b.MaxInterval = r.policy.MaxInterval

	attempts := 0
	op := func() ([]model.VisibilityInterval, error) {
		attempts++
		res, err := r.next.QueryVisibility(ctx, satelliteID, missileID, start, end)
		if err == nil {
			return res, nil
		}
		if !IsTransient(err) || ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	log := logging.FromContext(ctx, r.log)
	res, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(r.policy.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			r.metrics.IncRetries()
			log.Warn(ctx, "oracle query failed; retrying",
				logging.String("satellite_id", satelliteID),
				logging.Missile(missileID),
				logging.Int("attempt", attempts),
				logging.Duration("backoff", wait),
				logging.Err(err),
			)
		}),
	)
	r.metrics.ObserveQuery(Outcome(err))
	if err == nil {
		return res, nil
	}

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("oracle query abandoned: %w", ctxErr)
	}
	return nil, fmt.Errorf("%w: satellite %s missile %s after %d attempt(s): %w",
		ErrCoverageUnavailable, satelliteID, missileID, attempts, err)
}
