// Package pipeline runs the per-missile planning chain (visibility, coverage,
// meta-tasks, atomic tasks, timeline records) and the planner that drives
// it from lifecycle events.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/midcourse-planner/internal/coverage"
	"github.com/signalsfoundry/midcourse-planner/internal/logging"
	"github.com/signalsfoundry/midcourse-planner/internal/observability"
	"github.com/signalsfoundry/midcourse-planner/internal/oracle"
	"github.com/signalsfoundry/midcourse-planner/internal/tasking"
	"github.com/signalsfoundry/midcourse-planner/internal/timeline"
	"github.com/signalsfoundry/midcourse-planner/model"
)

// ErrAbandoned is returned when a missile's planning context is cancelled,
// typically because the missile was terminated mid-run.
var ErrAbandoned = errors.New("planning abandoned")

// Failure reasons recorded on the planner metrics.
const (
	FailureCoverageUnavailable = "coverage_unavailable"
	FailureCoverageMismatch    = "coverage_mismatch"
	FailureAbandoned           = "abandoned"
	FailureOther               = "error"
)

// Settings are the task sizing parameters.
type Settings struct {
	MetaDuration   time.Duration
	AtomicDuration time.Duration
	Timeline       timeline.Config
}

// DefaultSettings matches the configuration defaults.
func DefaultSettings() Settings {
	return Settings{
		MetaDuration:   300 * time.Second,
		AtomicDuration: 300 * time.Second,
		Timeline:       timeline.DefaultConfig(),
	}
}

// Result is everything produced for one missile.
type Result struct {
	Missile     model.Missile
	Coverage    model.CoverageTimeline
	MetaTasks   []model.MetaTask
	AtomicTasks map[string][]model.AtomicTask
	Records     []model.TimelineRecord
	Stats       timeline.Stats
}

// Pipeline turns one admitted missile into timeline records.
type Pipeline struct {
	oracle     oracle.Oracle
	satellites []string
	settings   Settings
	log        logging.Logger
	metrics    *observability.PlannerCollector
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(l logging.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// WithMetrics records stage durations, task counts and failures.
func WithMetrics(c *observability.PlannerCollector) Option {
	return func(p *Pipeline) { p.metrics = c }
}

// New builds a pipeline querying o for every satellite in satellites.
func New(o oracle.Oracle, satellites []string, settings Settings, opts ...Option) *Pipeline {
	def := DefaultSettings()
	if settings.MetaDuration <= 0 {
		settings.MetaDuration = def.MetaDuration
	}
	if settings.AtomicDuration <= 0 {
		settings.AtomicDuration = def.AtomicDuration
	}
	if settings.Timeline.DisplayInterval <= 0 {
		settings.Timeline.DisplayInterval = def.Timeline.DisplayInterval
	}
	p := &Pipeline{
		oracle:     o,
		satellites: append([]string(nil), satellites...),
		settings:   settings,
		log:        logging.Noop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Settings returns the effective task sizing.
func (p *Pipeline) Settings() Settings { return p.settings }

// Run plans missile over its MidcourseWindow. Any oracle failure aborts
// the whole missile; no partial timeline is returned.
func (p *Pipeline) Run(ctx context.Context, missile model.Missile) (*Result, error) {
	ctx, span := observability.StartSpan(ctx, "pipeline.Run", missile.ID)
	defer span.End()
	log := logging.FromContext(ctx, p.log).With(logging.Missile(missile.ID))
	started := time.Now()

	res, err := p.run(ctx, log, missile)
	if err != nil {
		reason := FailureReason(err)
		p.metrics.IncFailure(reason)
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		return nil, err
	}
	p.metrics.ObservePipeline(time.Since(started))
	p.recordTasks(res)
	span.SetAttributes(
		attribute.Int("planner.meta_tasks", len(res.MetaTasks)),
		attribute.Int("planner.records", len(res.Records)),
	)
	log.Info(ctx, "missile planned",
		logging.Int("meta_tasks", res.Stats.MetaTasks),
		logging.Int("atomic_tasks", res.Stats.AtomicTasks),
		logging.Int("suppressed", res.Stats.Suppressed),
		logging.Float("visibility_ratio", res.Stats.VisibilityRatio()),
	)
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, log logging.Logger, missile model.Missile) (*Result, error) {
	window := missile.MidcourseWindow()

	raw, err := p.queryAll(ctx, missile.ID, window)
	if err != nil {
		return nil, err
	}
	if err := abandoned(ctx); err != nil {
		return nil, err
	}

	cov := coverage.Aggregate(missile.ID, window, raw)
	log.Debug(ctx, "coverage aggregated",
		logging.Int("raw_intervals", len(raw)),
		logging.Int("merged_intervals", len(cov.Intervals)),
	)

	_, span := observability.StartSpan(ctx, "pipeline.GenerateTasks", missile.ID)
	metas, err := tasking.Generate(missile, cov, p.settings.MetaDuration)
	if err != nil {
		span.End()
		return nil, err
	}
	atomics, err := tasking.DecomposeAll(metas, cov, p.settings.AtomicDuration)
	span.End()
	if err != nil {
		return nil, err
	}
	if err := abandoned(ctx); err != nil {
		return nil, err
	}

	records := timeline.Convert(missile, metas, atomics, p.settings.Timeline)
	return &Result{
		Missile:     missile,
		Coverage:    cov,
		MetaTasks:   metas,
		AtomicTasks: atomics,
		Records:     records,
		Stats:       timeline.Summarize(records, atomics),
	}, nil
}

// queryAll asks the oracle about every satellite. Queries run concurrently;
// the oracle's own pool bounds how many are in flight.
func (p *Pipeline) queryAll(ctx context.Context, missileID string, window model.Interval) ([]model.VisibilityInterval, error) {
	if window.Empty() || len(p.satellites) == 0 {
		return nil, nil
	}
	ctx, span := observability.StartSpan(ctx, "pipeline.QueryVisibility", missileID)
	defer span.End()
	span.SetAttributes(attribute.Int("planner.satellites", len(p.satellites)))

	perSat := make([][]model.VisibilityInterval, len(p.satellites))
	g, gctx := errgroup.WithContext(ctx)
	for i, satID := range p.satellites {
		g.Go(func() error {
			ivs, err := p.oracle.QueryVisibility(gctx, satID, missileID, window.Start, window.End)
			if err != nil {
				return err
			}
			perSat[i] = ivs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrAbandoned, ctxErr)
		}
		return nil, err
	}

	var raw []model.VisibilityInterval
	for _, ivs := range perSat {
		raw = append(raw, ivs...)
	}
	return raw, nil
}

// recordTasks counts every generated task, including virtual atomic tasks
// that sampling keeps out of the records.
func (p *Pipeline) recordTasks(res *Result) {
	if p.metrics == nil {
		return
	}
	counts := make(map[model.Classification]int)
	for _, mt := range res.MetaTasks {
		counts[mt.Classification]++
	}
	for class, n := range counts {
		p.metrics.AddTasks(string(model.LevelMeta), string(class), n)
	}
	clear(counts)
	for _, atomics := range res.AtomicTasks {
		for _, a := range atomics {
			counts[a.Classification]++
		}
	}
	for class, n := range counts {
		p.metrics.AddTasks(string(model.LevelAtomic), string(class), n)
	}
}

func abandoned(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrAbandoned, err)
	}
	return nil
}

// FailureReason maps a pipeline error to its metric label.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, ErrAbandoned), errors.Is(err, context.Canceled):
		return FailureAbandoned
	case errors.Is(err, oracle.ErrCoverageUnavailable):
		return FailureCoverageUnavailable
	case errors.Is(err, tasking.ErrCoverageMismatch):
		return FailureCoverageMismatch
	default:
		return FailureOther
	}
}
