package oracle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/signalsfoundry/midcourse-planner/internal/observability"
	"github.com/signalsfoundry/midcourse-planner/model"
)

func TestPoolAcquireTimesOutWhenExhausted(t *testing.T) {
	collector, err := observability.NewOracleCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewOracleCollector: %v", err)
	}
	pool := NewPool(2, 20*time.Millisecond, collector)

	seen := map[int]bool{}
	var releases []func()
	for range 2 {
		slot, release, err := pool.Acquire(context.Background())
		if err != nil {
			t.Fatalf("Acquire: %v", err)
		}
		seen[slot] = true
		releases = append(releases, release)
	}
	if len(seen) != 2 {
		t.Fatalf("slots = %v, want two distinct", seen)
	}
	if got := testutil.ToFloat64(collector.PoolBusy); got != 2 {
		t.Fatalf("pool in use gauge = %v, want 2", got)
	}

	if _, _, err := pool.Acquire(context.Background()); !errors.Is(err, ErrConnectionTimeout) {
		t.Fatalf("Acquire on exhausted pool error = %v, want ErrConnectionTimeout", err)
	}

	releases[0]()
	releases[0]()
	if pool.InUse() != 1 {
		t.Fatalf("InUse = %d after double release, want 1", pool.InUse())
	}
	if _, release, err := pool.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire after release: %v", err)
	} else {
		release()
	}
	releases[1]()
}

func TestPoolAcquireHonoursContext(t *testing.T) {
	pool := NewPool(1, 0, nil)
	_, release, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, _, err := pool.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Acquire error = %v, want context.DeadlineExceeded", err)
	}
}

func TestBoundedLimitsConcurrentQueries(t *testing.T) {
	var inFlight, peak atomic.Int64
	slow := Func(func(ctx context.Context, satelliteID, missileID string, start, end time.Time) ([]model.VisibilityInterval, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return nil, nil
	})

	bounded := Bounded(slow, NewPool(3, time.Second, nil))
	var wg sync.WaitGroup
	for range 12 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := bounded.QueryVisibility(context.Background(), "S", "M", at(0), at(1)); err != nil {
				t.Errorf("QueryVisibility: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := peak.Load(); got > 3 {
		t.Fatalf("peak concurrency = %d, want <= 3", got)
	}
}
