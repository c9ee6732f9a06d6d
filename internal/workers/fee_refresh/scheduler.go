package fee_refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/antidetect/dashboard_service/pkg/logger"
)

const (
	defaultSpec    = "@every 5m"
	defaultTimeout = 30 * time.Second
)

// Refresher reloads a cached upstream schedule
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Config holds configuration for the scheduler
type Config struct {
	Spec       string
	Timeout    time.Duration
	RunOnStart bool
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Spec:       defaultSpec,
		Timeout:    defaultTimeout,
		RunOnStart: true,
	}
}

// Scheduler refreshes the fee schedule on a cron spec and runs other
// periodic maintenance jobs on the same cron instance
type Scheduler struct {
	cron    *cron.Cron
	fees    Refresher
	cfg     Config
	logger  *logger.Logger
	started bool

	wg             sync.WaitGroup
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
}

// NewScheduler creates a scheduler. An invalid spec is reported here, not at Start.
func NewScheduler(cfg Config, fees Refresher, log *logger.Logger) (*Scheduler, error) {
	if cfg.Spec == "" {
		cfg.Spec = defaultSpec
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	cronLogger := cron.PrintfLogger(zap.NewStdLog(log.Zap()))
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger),
			cron.SkipIfStillRunning(cronLogger),
		)),
		fees:           fees,
		cfg:            cfg,
		logger:         log,
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
	}

	if _, err := s.cron.AddFunc(cfg.Spec, s.refreshFees); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid fee refresh schedule %q: %w", cfg.Spec, err)
	}
	return s, nil
}

// AddJob schedules a maintenance job
func (s *Scheduler) AddJob(name, spec string, job func(ctx context.Context)) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(s.shutdownCtx, s.cfg.Timeout)
		defer cancel()
		s.logger.Debug("Running scheduled job", "job", name)
		job(ctx)
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", spec, name, err)
	}
	return nil
}

// Start begins running scheduled jobs
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("Starting fee refresh scheduler", "spec", s.cfg.Spec)

	if s.cfg.RunOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.refreshFees()
		}()
	}

	s.cron.Start()
	s.started = true
	return nil
}

// Shutdown stops scheduling and waits for running jobs
func (s *Scheduler) Shutdown(timeout time.Duration) error {
	s.shutdownCancel()

	done := make(chan struct{})
	go func() {
		if s.started {
			<-s.cron.Stop().Done()
		}
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("shutdown timeout exceeded")
	}
}

func (s *Scheduler) refreshFees() {
	ctx, cancel := context.WithTimeout(s.shutdownCtx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	if err := s.fees.Refresh(ctx); err != nil {
		s.logger.Warn("Fee schedule refresh failed, keeping previous schedule",
			"error", err,
			"duration", time.Since(start),
		)
		return
	}
	s.logger.Debug("Fee schedule refreshed", "duration", time.Since(start))
}
