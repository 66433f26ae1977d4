package worker

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/Klasique-art/cafa-tickets-backend/internal/metrics"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/logger"
)

// JobLocker runs fn only while holding a named lock shared by all replicas
type JobLocker interface {
	WithLock(ctx context.Context, name string, ttl time.Duration, fn func(ctx context.Context) error) (bool, error)
}

// JobFunc is one run of a scheduled job
type JobFunc func(ctx context.Context) error

// SchedulerConfig contains configuration for the job scheduler
type SchedulerConfig struct {
	// LockTTL bounds how long one replica may hold a job's lock
	LockTTL time.Duration
	// LockPrefix namespaces job locks
	LockPrefix string
	Location   *time.Location
}

// DefaultSchedulerConfig returns default configuration
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		LockTTL:    5 * time.Minute,
		LockPrefix: "sweeper:",
		Location:   time.UTC,
	}
}

// Scheduler runs named cron jobs. Every run is recovered from panics, skipped while
// the previous run of the same job is still going, and guarded by a distributed lock
// when a locker is configured.
type Scheduler struct {
	cron   *cron.Cron
	chain  cron.Chain
	locker JobLocker
	config *SchedulerConfig
	log    *logger.Logger

	mu   sync.RWMutex
	ctx  context.Context
	jobs map[string]JobFunc
}

// NewScheduler creates a new scheduler. locker may be nil for single-replica setups.
func NewScheduler(locker JobLocker, config *SchedulerConfig, log *logger.Logger) *Scheduler {
	defaults := DefaultSchedulerConfig()
	if config == nil {
		config = defaults
	}
	if config.LockTTL <= 0 {
		config.LockTTL = defaults.LockTTL
	}
	if config.Location == nil {
		config.Location = defaults.Location
	}
	if log == nil {
		log = logger.Get()
	}

	cl := cronLogger{log: log}
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(config.Location), cron.WithLogger(cl)),
		chain:  cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		locker: locker,
		config: config,
		log:    log,
		ctx:    context.Background(),
		jobs:   make(map[string]JobFunc),
	}
}

// AddJob registers fn under name on a cron spec ("@every 15m", "0 * * * *", ...)
func (s *Scheduler) AddJob(name, spec string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}
	job := s.chain.Then(cron.FuncJob(func() {
		s.run(s.context(), name, fn)
	}))
	if _, err := s.cron.AddJob(spec, job); err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", spec, name, err)
	}
	s.jobs[name] = fn
	return nil
}

// RunNow runs a registered job once with ctx, outside its schedule. The run is
// recovered and locked like a scheduled one.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.RLock()
	fn, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("job %s not registered", name)
	}
	cron.NewChain(cron.Recover(cronLogger{log: s.log})).Then(cron.FuncJob(func() {
		s.run(ctx, name, fn)
	})).Run()
	return nil
}

// Jobs returns the registered job names
func (s *Scheduler) Jobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Start starts the cron loop. Jobs receive ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.log.Info("starting job scheduler", zap.Strings("jobs", s.Jobs()))
	s.cron.Start()
}

// Stop stops scheduling new runs. The returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) context() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctx
}

func (s *Scheduler) run(ctx context.Context, name string, fn JobFunc) {
	start := time.Now()

	ran := true
	var err error
	if s.locker != nil {
		ran, err = s.locker.WithLock(ctx, s.config.LockPrefix+name, s.config.LockTTL, fn)
	} else {
		err = fn(ctx)
	}

	switch {
	case err != nil:
		s.log.ErrorContext(ctx, "job failed", zap.String("job", name), zap.Error(err))
		metrics.JobRuns.WithLabelValues(name, "error").Inc()
	case !ran:
		s.log.Debug("job skipped, lock held by another replica", zap.String("job", name))
		metrics.JobRuns.WithLabelValues(name, "skipped").Inc()
	default:
		s.log.Debug("job finished", zap.String("job", name), zap.Duration("took", time.Since(start)))
		metrics.JobRuns.WithLabelValues(name, "success").Inc()
	}
}

// cronLogger adapts the zap wrapper to cron.Logger
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), zap.Error(err))...)
}

func kvFields(keysAndValues []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields = append(fields, zap.Any(fmt.Sprint(keysAndValues[i]), keysAndValues[i+1]))
	}
	return fields
}

// RevenueReleaser matures pending revenue
type RevenueReleaser interface {
	ReleaseMatured(ctx context.Context, now time.Time) (int, error)
}

// TransferReconciler polls the provider for transfers stuck in processing
type TransferReconciler interface {
	ReconcileProcessing(ctx context.Context, olderThan time.Duration) (int, error)
}

// Sweeper job names
const (
	JobRevenueRelease    = "revenue-release"
	JobTransferReconcile = "transfer-reconcile"
)

// SweeperJobsConfig holds the schedules of the sweeper jobs
type SweeperJobsConfig struct {
	RevenueReleaseSchedule string
	ReconcileSchedule      string
	ReconcileAfter         time.Duration
}

// RegisterSweeperJobs adds revenue release and transfer reconciliation to s
func RegisterSweeperJobs(s *Scheduler, revenue RevenueReleaser, transfers TransferReconciler, cfg *SweeperJobsConfig) error {
	if err := s.AddJob(JobRevenueRelease, cfg.RevenueReleaseSchedule, func(ctx context.Context) error {
		_, err := revenue.ReleaseMatured(ctx, time.Now())
		return err
	}); err != nil {
		return err
	}

	return s.AddJob(JobTransferReconcile, cfg.ReconcileSchedule, func(ctx context.Context) error {
		n, err := transfers.ReconcileProcessing(ctx, cfg.ReconcileAfter)
		if n > 0 {
			s.log.Info("reconciled withdrawals", zap.Int("count", n))
		}
		return err
	})
}
