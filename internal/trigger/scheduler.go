package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/weather-ingest-service/internal/domain"
	"github.com/couchcryptid/weather-ingest-service/internal/observability"
	"github.com/robfig/cron/v3"
)

// Emitter delivers a trigger command somewhere it will be run.
type Emitter interface {
	Emit(ctx context.Context, cmd string) error
}

// DispatchEmitter runs commands in-process.
type DispatchEmitter struct {
	Dispatcher *Dispatcher
}

func (e DispatchEmitter) Emit(ctx context.Context, cmd string) error {
	_, err := e.Dispatcher.Dispatch(ctx, cmd)
	return err
}

// Scheduler emits stage commands on cron schedules. An entry is skipped
// while its previous run is still in progress.
type Scheduler struct {
	cron    *cron.Cron
	emitter Emitter
	logger  *slog.Logger
	metrics *observability.Metrics
	ctx     context.Context
}

// NewScheduler creates a Scheduler evaluating specs in UTC. Specs use the
// standard five fields or descriptors such as "@every 15m".
func NewScheduler(emitter Emitter, logger *slog.Logger, metrics *observability.Metrics) *Scheduler {
	cl := cronLogger{logger: logger.With("component", "scheduler")}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(
				cron.SkipIfStillRunning(cl),
				cron.Recover(cl),
			),
		),
		emitter: emitter,
		logger:  logger,
		metrics: metrics,
		ctx:     context.Background(),
	}
}

// Add schedules stage. An empty spec leaves the stage unscheduled.
func (s *Scheduler) Add(stage domain.Stage, spec string) error {
	if spec == "" {
		return nil
	}
	if _, err := s.cron.AddFunc(spec, s.job(stage)); err != nil {
		return fmt.Errorf("schedule %s %q: %w", stage, spec, err)
	}
	s.logger.Info("stage scheduled", "stage", stage, "spec", spec)
	return nil
}

// Len returns the number of scheduled entries.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Start runs the scheduler in the background. Jobs inherit ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
}

// Stop prevents new runs and returns a context done when running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) job(stage domain.Stage) func() {
	cmd := stage.Command()
	return func() {
		if s.ctx.Err() != nil {
			return
		}
		s.metrics.Triggers.WithLabelValues("cron", "accepted").Inc()
		if err := s.emitter.Emit(s.ctx, cmd); err != nil {
			s.logger.Error("scheduled trigger failed", "command", cmd, "error", err)
		}
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
