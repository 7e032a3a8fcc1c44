package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/signalsfoundry/midcourse-planner/internal/observability"
	"github.com/signalsfoundry/midcourse-planner/model"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestRetryingRecoversFromTransientFailures(t *testing.T) {
	collector, err := observability.NewOracleCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewOracleCollector: %v", err)
	}
	backend := NewStatic(vis("S1", "M1", 0, 100))
	backend.FailNext(ErrConnectionRefused, ErrConnectionTimeout)

	r := NewRetrying(backend, fastPolicy(3), nil, collector)
	got, err := r.QueryVisibility(context.Background(), "S1", "M1", at(0), at(100))
	if err != nil {
		t.Fatalf("QueryVisibility error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("intervals = %d, want 1", len(got))
	}
	if backend.Calls() != 3 {
		t.Fatalf("backend calls = %d, want 3", backend.Calls())
	}
	if got := testutil.ToFloat64(collector.Retries); got != 2 {
		t.Fatalf("retries = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.Queries.WithLabelValues("ok")); got != 1 {
		t.Fatalf("ok queries = %v, want 1", got)
	}
}

func TestRetryingExhaustionIsCoverageUnavailable(t *testing.T) {
	backend := NewStatic()
	backend.FailNext(ErrConnectionTimeout, ErrConnectionTimeout, ErrConnectionTimeout, ErrConnectionTimeout)

	r := NewRetrying(backend, fastPolicy(3), nil, nil)
	_, err := r.QueryVisibility(context.Background(), "S1", "M1", at(0), at(100))
	if !errors.Is(err, ErrCoverageUnavailable) {
		t.Fatalf("error = %v, want ErrCoverageUnavailable", err)
	}
	if !errors.Is(err, ErrConnectionTimeout) {
		t.Fatalf("error = %v, want wrapped ErrConnectionTimeout", err)
	}
	if backend.Calls() != 3 {
		t.Fatalf("backend calls = %d, want 3", backend.Calls())
	}
}

func TestRetryingDoesNotRetryMalformedResponses(t *testing.T) {
	backend := NewStatic()
	backend.FailNext(ErrMalformedResponse)

	r := NewRetrying(backend, fastPolicy(5), nil, nil)
	_, err := r.QueryVisibility(context.Background(), "S1", "M1", at(0), at(100))
	if !errors.Is(err, ErrCoverageUnavailable) || !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("error = %v, want ErrCoverageUnavailable wrapping ErrMalformedResponse", err)
	}
	if backend.Calls() != 1 {
		t.Fatalf("backend calls = %d, want 1", backend.Calls())
	}
}

func TestRetryingStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	backend := Func(func(ctx context.Context, satelliteID, missileID string, start, end time.Time) ([]model.VisibilityInterval, error) {
		calls++
		cancel()
		return nil, ErrConnectionRefused
	})

	r := NewRetrying(backend, RetryPolicy{MaxAttempts: 5, InitialInterval: time.Hour}, nil, nil)
	_, err := r.QueryVisibility(ctx, "S1", "M1", at(0), at(100))
	if errors.Is(err, ErrCoverageUnavailable) {
		t.Fatalf("canceled query reported as coverage unavailable: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}
