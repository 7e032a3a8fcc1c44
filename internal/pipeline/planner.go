package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/signalsfoundry/midcourse-planner/internal/lifecycle"
	"github.com/signalsfoundry/midcourse-planner/internal/logging"
	"github.com/signalsfoundry/midcourse-planner/internal/observability"
	"github.com/signalsfoundry/midcourse-planner/internal/scenario"
	"github.com/signalsfoundry/midcourse-planner/model"
	"github.com/signalsfoundry/midcourse-planner/timectrl"
)

// ErrPlannerUsed is returned by a second call to Planner.Run.
var ErrPlannerUsed = errors.New("planner already ran")

// Report summarises a planning run.
type Report struct {
	RunID string
	// Planned holds the results emitted to the sink.
	Planned map[string]*Result
	// Failed holds missiles whose planning aborted with an error.
	Failed map[string]error
	// Abandoned lists missiles terminated before their plan was emitted.
	Abandoned []string
	// Rejections counts admission requests refused for capacity.
	Rejections int
	Archived   []model.Missile
}

// Planner tracks a scenario's missiles through their phases on a simulation
// clock and plans each one as it is admitted into midcourse. Missiles that
// cannot be admitted wait in a FIFO queue until a slot is released.
type Planner struct {
	mgr         *lifecycle.Manager
	pipeline    *Pipeline
	sink        Sink
	flights     []scenario.Flight
	byID        map[string]scenario.Flight
	thresholdKm float64

	log     logging.Logger
	metrics *observability.PlannerCollector

	mu         sync.Mutex
	used       bool
	tracked    map[string]bool
	terminated map[string]bool
	queue      []string
	running    map[string]context.CancelFunc
	report     *Report

	group *errgroup.Group
	// slots bounds concurrently running pipelines. A pipeline can outlive
	// its missile's midcourse phase, so the lifecycle ceiling alone does
	// not bound them.
	slots *semaphore.Weighted
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithPlannerLogger sets the planner logger.
func WithPlannerLogger(l logging.Logger) PlannerOption {
	return func(p *Planner) {
		if l != nil {
			p.log = l
		}
	}
}

// WithPlannerMetrics records queue depth.
func WithPlannerMetrics(c *observability.PlannerCollector) PlannerOption {
	return func(p *Planner) { p.metrics = c }
}

// NewPlanner wires mgr, pipeline and sink over flights. thresholdKm must
// match the one mgr was built with.
func NewPlanner(mgr *lifecycle.Manager, pipeline *Pipeline, sink Sink, flights []scenario.Flight, thresholdKm float64, opts ...PlannerOption) *Planner {
	p := &Planner{
		mgr:         mgr,
		pipeline:    pipeline,
		sink:        sink,
		flights:     append([]scenario.Flight(nil), flights...),
		byID:        make(map[string]scenario.Flight, len(flights)),
		thresholdKm: thresholdKm,
		log:         logging.Noop(),
		tracked:     make(map[string]bool),
		terminated:  make(map[string]bool),
		running:     make(map[string]context.CancelFunc),
		report: &Report{
			Planned: make(map[string]*Result),
			Failed:  make(map[string]error),
		},
	}
	for _, f := range p.flights {
		p.byID[f.ID] = f
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run drives clock until end, then waits for in-flight plans. The report
// is returned even when ctx is cancelled.
func (p *Planner) Run(ctx context.Context, clock *timectrl.TimeController, end time.Time) (*Report, error) {
	p.mu.Lock()
	if p.used {
		p.mu.Unlock()
		return nil, ErrPlannerUsed
	}
	p.used = true
	p.mu.Unlock()

	ctx, log := logging.WithRunLogger(ctx, p.log)
	p.log = log
	p.report.RunID = logging.RunIDFromContext(ctx)

	g, gctx := errgroup.WithContext(ctx)
	p.group = g
	p.slots = semaphore.NewWeighted(int64(p.mgr.Ceiling()))

	unsubscribe := p.mgr.Subscribe(func(ev lifecycle.Event) { p.handle(gctx, ev) })
	defer unsubscribe()
	clock.AddListener(func(now time.Time) { p.tick(gctx, now) })

	log.Info(ctx, "planning run started",
		logging.Int("missiles", len(p.flights)),
		logging.Int("ceiling", p.mgr.Ceiling()),
		logging.Time("start", clock.Now()),
		logging.Time("end", end),
	)
	runErr := clock.Run(ctx, end)
	waitErr := g.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.report.Archived = p.mgr.Archived()
	sort.Strings(p.report.Abandoned)
	log.Info(ctx, "planning run finished",
		logging.Int("planned", len(p.report.Planned)),
		logging.Int("failed", len(p.report.Failed)),
		logging.Int("abandoned", len(p.report.Abandoned)),
		logging.Int("rejections", p.report.Rejections),
	)
	return p.report, errors.Join(runErr, waitErr)
}

// tick feeds the manager one observation per launched missile.
func (p *Planner) tick(ctx context.Context, now time.Time) {
	for _, f := range p.flights {
		if now.Before(f.Trajectory.LaunchTime) {
			continue
		}
		id := f.ID

		p.mu.Lock()
		tracked, done := p.tracked[id], p.terminated[id]
		if !tracked {
			p.tracked[id] = true
		}
		p.mu.Unlock()
		if done {
			continue
		}
		if !tracked {
			if err := p.mgr.Track(f.Missile(p.thresholdKm)); err != nil {
				p.log.Warn(ctx, "track missile failed", logging.Missile(id), logging.Err(err))
				continue
			}
			p.log.Debug(ctx, "missile detected", logging.Missile(id), logging.Time("at", now))
		}

		if !now.Before(f.Trajectory.ImpactTime()) {
			if err := p.mgr.Terminate(id, now); err != nil {
				p.log.Warn(ctx, "terminate missile failed", logging.Missile(id), logging.Err(err))
			}
			continue
		}
		if _, err := p.mgr.AdvancePhase(id, now, f.Trajectory.AltitudeAt(now)); err != nil {
			p.log.Warn(ctx, "advance phase failed", logging.Missile(id), logging.Err(err))
		}
	}
}

func (p *Planner) handle(ctx context.Context, ev lifecycle.Event) {
	switch ev.Type {
	case lifecycle.EventAdmitted:
		p.dequeue(ev.MissileID)
		p.start(ctx, ev)
	case lifecycle.EventAdmissionRejected:
		p.enqueue(ev.MissileID)
	case lifecycle.EventCapacityAvailable:
		p.admitQueued(ev.Time)
	case lifecycle.EventPhaseChanged:
		if ev.Phase == model.PhasePostMidcourse {
			p.dequeue(ev.MissileID)
		}
	case lifecycle.EventTerminated:
		p.terminate(ctx, ev)
	}
}

func (p *Planner) enqueue(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.report.Rejections++
	for _, queued := range p.queue {
		if queued == id {
			return
		}
	}
	p.queue = append(p.queue, id)
	p.metrics.SetQueued(len(p.queue))
}

func (p *Planner) dequeue(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, queued := range p.queue {
		if queued == id {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			break
		}
	}
	p.metrics.SetQueued(len(p.queue))
}

// admitQueued offers the freed slot to the oldest queued missile that is
// still above the threshold. Ineligible heads are dropped.
func (p *Planner) admitQueued(now time.Time) {
	for {
		p.mu.Lock()
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		id := p.queue[0]
		p.mu.Unlock()

		m, ok := p.mgr.Get(id)
		f, known := p.byID[id]
		if !ok || !known || m.Phase != model.PhasePreMidcourse || f.Trajectory.AltitudeAt(now) < p.thresholdKm {
			p.dequeue(id)
			continue
		}
		// Acceptance dequeues through EventAdmitted. A capacity rejection
		// leaves the missile at the head.
		adm := p.mgr.Admit(m, now)
		if !adm.Accepted && adm.Reason == lifecycle.ReasonPhase {
			p.dequeue(id)
			continue
		}
		return
	}
}

// start launches the pipeline for a newly admitted missile. The plan spans
// from admission to the predicted end of midcourse. It runs on the clock
// goroutine and must not block; the pipeline waits for a slot instead.
func (p *Planner) start(ctx context.Context, ev lifecycle.Event) {
	m, ok := p.mgr.Get(ev.MissileID)
	if !ok {
		return
	}
	if f, ok := p.byID[m.ID]; ok {
		m.MidcourseEnd = f.Trajectory.MidcourseWindow(p.thresholdKm).End
	}
	if m.MidcourseEnd.Before(m.MidcourseStart) {
		m.MidcourseEnd = m.MidcourseStart
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.running[m.ID] = cancel
	p.mu.Unlock()

	p.log.Info(ctx, "missile admitted",
		logging.Missile(m.ID),
		logging.Int("active", ev.Active),
		logging.Time("window_start", m.MidcourseStart),
		logging.Time("window_end", m.MidcourseEnd),
	)
	p.group.Go(func() error {
		defer cancel()
		p.plan(runCtx, m)
		return nil
	})
}

func (p *Planner) plan(ctx context.Context, m model.Missile) {
	if err := p.slots.Acquire(ctx, 1); err != nil {
		p.metrics.IncFailure(FailureAbandoned)
		p.settle(ctx, m, nil, fmt.Errorf("%w: waiting for a pipeline slot: %w", ErrAbandoned, err))
		return
	}
	defer p.slots.Release(1)

	res, err := p.pipeline.Run(ctx, m)
	p.settle(ctx, m, res, err)
}

// settle records the outcome of one missile's planning and emits its
// records unless the missile was terminated first.
func (p *Planner) settle(ctx context.Context, m model.Missile, res *Result, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.running, m.ID)
	switch {
	case err != nil && FailureReason(err) == FailureAbandoned:
		p.report.Abandoned = append(p.report.Abandoned, m.ID)
		p.log.Info(ctx, "planning abandoned", logging.Missile(m.ID))
	case err != nil:
		p.report.Failed[m.ID] = err
		p.log.Error(ctx, "planning failed", logging.Missile(m.ID), logging.Err(err))
	case p.terminated[m.ID]:
		// Terminated after planning finished but before emission.
		p.report.Abandoned = append(p.report.Abandoned, m.ID)
		p.metrics.IncFailure(FailureAbandoned)
	default:
		// Emission happens under p.mu so it can never follow the
		// termination notice.
		if err := p.sink.Emit(ctx, m.ID, res.Records); err != nil {
			p.report.Failed[m.ID] = err
			p.log.Error(ctx, "emit timeline failed", logging.Missile(m.ID), logging.Err(err))
			return
		}
		p.report.Planned[m.ID] = res
	}
}

func (p *Planner) terminate(ctx context.Context, ev lifecycle.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.terminated[ev.MissileID] = true
	for i, queued := range p.queue {
		if queued == ev.MissileID {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			p.metrics.SetQueued(len(p.queue))
			break
		}
	}
	if cancel, ok := p.running[ev.MissileID]; ok {
		cancel()
	}
	if err := p.sink.Terminated(ctx, ev.MissileID, ev.Time); err != nil {
		p.log.Warn(ctx, "terminated notice failed", logging.Missile(ev.MissileID), logging.Err(err))
	}
	p.log.Info(ctx, "missile terminated", logging.Missile(ev.MissileID), logging.Time("at", ev.Time))
}
