package oracle

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/signalsfoundry/midcourse-planner/internal/observability"
	"github.com/signalsfoundry/midcourse-planner/model"
)

// Pool hands out a bounded number of connection slots. A slot index
// identifies the connection the holder may use until it releases.
type Pool struct {
	free    chan int
	size    int
	timeout time.Duration
	inUse   atomic.Int64
	metrics *observability.OracleCollector
}

// NewPool creates a pool of size slots. Acquire gives up after timeout; a
// non-positive timeout waits for the context only.
func NewPool(size int, timeout time.Duration, metrics *observability.OracleCollector) *Pool {
	if size < 1 {
		size = 1
	}
	free := make(chan int, size)
	for i := range size {
		free <- i
	}
	return &Pool{free: free, size: size, timeout: timeout, metrics: metrics}
}

// Size returns the number of slots.
func (p *Pool) Size() int { return p.size }

// InUse returns the number of slots currently held.
func (p *Pool) InUse() int { return int(p.inUse.Load()) }

// Acquire blocks until a slot is free, the timeout elapses or ctx is done.
// The returned release func is safe to call more than once.
func (p *Pool) Acquire(ctx context.Context) (int, func(), error) {
	start := time.Now()

	var slot int
	select {
	case slot = <-p.free:
	default:
		var expired <-chan time.Time
		if p.timeout > 0 {
			timer := time.NewTimer(p.timeout)
			defer timer.Stop()
			expired = timer.C
		}
		select {
		case slot = <-p.free:
		case <-expired:
			p.metrics.ObservePoolWait(time.Since(start))
			return 0, nil, fmt.Errorf("%w: no connection available after %s", ErrConnectionTimeout, p.timeout)
		case <-ctx.Done():
			return 0, nil, ctx.Err()
		}
	}

	p.metrics.ObservePoolWait(time.Since(start))
	p.metrics.SetPoolInUse(int(p.inUse.Add(1)))

	var once sync.Once
	release := func() {
		once.Do(func() {
			p.metrics.SetPoolInUse(int(p.inUse.Add(-1)))
			p.free <- slot
		})
	}
	return slot, release, nil
}

// Bounded wraps an oracle so that every query holds a pool slot.
func Bounded(next Oracle, pool *Pool) Oracle {
	return Func(func(ctx context.Context, satelliteID, missileID string, start, end time.Time) ([]model.VisibilityInterval, error) {
		_, release, err := pool.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		defer release()
		return next.QueryVisibility(ctx, satelliteID, missileID, start, end)
	})
}
