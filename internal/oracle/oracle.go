// Package oracle provides the visibility oracle abstraction consumed by the
// planner and its implementations: a pooled gRPC client, an in-process
// geometry oracle, a deterministic in-memory double and a retry decorator.
package oracle

import (
	"context"
	"errors"
	"time"

	"github.com/signalsfoundry/midcourse-planner/model"
)

var (
	ErrConnectionTimeout = errors.New("oracle connection timeout")
	ErrConnectionRefused = errors.New("oracle connection refused")
	ErrMalformedResponse = errors.New("malformed oracle response")

	ErrNotFound     = errors.New("oracle entity not found")
	ErrInvalidQuery = errors.New("invalid visibility query")

	// ErrCoverageUnavailable is returned once retries are exhausted or a
	// failure cannot be retried. It aborts a single missile's pipeline.
	ErrCoverageUnavailable = errors.New("coverage unavailable")
)

// Oracle answers visibility queries for one satellite and one missile over
// the half-open range [start, end).
type Oracle interface {
	QueryVisibility(ctx context.Context, satelliteID, missileID string, start, end time.Time) ([]model.VisibilityInterval, error)
}

// Func adapts an ordinary function to the Oracle interface.
type Func func(ctx context.Context, satelliteID, missileID string, start, end time.Time) ([]model.VisibilityInterval, error)

func (f Func) QueryVisibility(ctx context.Context, satelliteID, missileID string, start, end time.Time) ([]model.VisibilityInterval, error) {
	return f(ctx, satelliteID, missileID, start, end)
}

// IsTransient reports whether a failed query is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrConnectionTimeout) || errors.Is(err, ErrConnectionRefused)
}

// Outcome classifies err into a short metrics label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrConnectionTimeout):
		return "timeout"
	case errors.Is(err, ErrConnectionRefused):
		return "refused"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

func validateRange(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return ErrInvalidQuery
	}
	return nil
}
