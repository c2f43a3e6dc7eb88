package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Task is a unit of periodic work. The context is cancelled when the scheduler stops.
type Task func(ctx context.Context) error

// Scheduler runs named cron jobs on top of gocron.
type Scheduler struct {
	cron   gocron.Scheduler
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	jobs map[string]gocron.Job
}

// New builds a scheduler pinned to UTC. Call Start to begin running jobs.
func New(logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cron, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(newGocronLogger(logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]gocron.Job),
	}, nil
}

// AddCron registers task under name using a five field cron expression.
// A run that is still in progress when the next tick fires is skipped.
func (s *Scheduler) AddCron(name, expr string, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %q already scheduled", name)
	}

	job, err := s.cron.NewJob(
		gocron.CronJob(expr, false),
		gocron.NewTask(func() { s.run(name, task) }),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule job %q: %w", name, err)
	}
	s.jobs[name] = job
	s.logger.Info("job scheduled", zap.String("job", name), zap.String("cron", expr))
	return nil
}

// Jobs returns the names of the registered jobs.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}

// Start begins executing registered jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels in-flight tasks and shuts the scheduler down.
func (s *Scheduler) Stop() error {
	s.cancel()
	if err := s.cron.Shutdown(); err != nil {
		return fmt.Errorf("shutdown scheduler: %w", err)
	}
	return nil
}

func (s *Scheduler) run(name string, task Task) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled job panicked", zap.String("job", name), zap.Any("panic", r))
		}
	}()
	if err := task(s.ctx); err != nil {
		s.logger.Error("scheduled job failed", zap.String("job", name), zap.Error(err), zap.Duration("duration", time.Since(start)))
		return
	}
	s.logger.Debug("scheduled job finished", zap.String("job", name), zap.Duration("duration", time.Since(start)))
}

type gocronLogger struct {
	sugar *zap.SugaredLogger
}

func newGocronLogger(logger *zap.Logger) gocron.Logger {
	return &gocronLogger{sugar: logger.Named("gocron").Sugar()}
}

func (l *gocronLogger) Debug(msg string, args ...any) { l.sugar.Debugw(msg, args...) }
func (l *gocronLogger) Info(msg string, args ...any)  { l.sugar.Infow(msg, args...) }
func (l *gocronLogger) Warn(msg string, args ...any)  { l.sugar.Warnw(msg, args...) }
func (l *gocronLogger) Error(msg string, args ...any) { l.sugar.Errorw(msg, args...) }
