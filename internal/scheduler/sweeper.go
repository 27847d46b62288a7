package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"passpay/internal/services"
)

type Config struct {
	Interval     time.Duration
	SweepTimeout time.Duration
	// ExpireAfter moves transactions still open after this long to timeout.
	// Zero disables expiry on the schedule.
	ExpireAfter time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.SweepTimeout <= 0 {
		c.SweepTimeout = 2 * time.Minute
	}
	return c
}

// Sweeper drives the reconciliation sweep on a fixed interval. Ticks are
// not serialized: a slow sweep does not delay the next one.
type Sweeper struct {
	reconciler services.ReconciliationService
	cfg        Config
	log        *zap.Logger
	wg         sync.WaitGroup
}

func NewSweeper(reconciler services.ReconciliationService, cfg Config, log *zap.Logger) *Sweeper {
	return &Sweeper{
		reconciler: reconciler,
		cfg:        cfg.withDefaults(),
		log:        log.Named("scheduler.sweep"),
	}
}

func (s *Sweeper) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	defer s.wg.Wait()

	for {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.RunOnce(ctx)
		}()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) RunOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SweepTimeout)
	defer cancel()

	report, err := s.reconciler.Sweep(ctx)
	if err != nil {
		s.log.Warn("reconciliation sweep failed", zap.Error(err))
		return
	}
	if report.Scanned > 0 {
		s.log.Info("reconciliation sweep",
			zap.Int("scanned", report.Scanned),
			zap.Int("settled", report.Settled),
			zap.Int("fallbacks", report.Fallbacks),
			zap.Int("errors", report.Errors),
			zap.Duration("duration", report.Duration))
	}

	if s.cfg.ExpireAfter <= 0 {
		return
	}
	expired, err := s.reconciler.Expire(ctx, s.cfg.ExpireAfter)
	if err != nil {
		s.log.Warn("expiry pass failed", zap.Error(err))
		return
	}
	if expired > 0 {
		s.log.Info("expired abandoned transactions", zap.Int("count", expired))
	}
}

// Wait blocks until in-flight ticks have returned.
func (s *Sweeper) Wait() {
	s.wg.Wait()
}
