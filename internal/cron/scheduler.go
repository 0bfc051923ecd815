// Package cron schedules housekeeping for the shell's run history.
package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// RunPruner deletes finished runs older than a cutoff.
type RunPruner interface {
	PruneRuns(before time.Time) (int64, error)
}

// Pruner periodically removes run history past the retention window.
type Pruner struct {
	cron      *cron.Cron
	store     RunPruner
	retention time.Duration
	logger    zerolog.Logger
	now       func() time.Time

	mu      sync.Mutex
	running bool
}

// NewPruner creates a pruner. A non-positive retention disables pruning.
func NewPruner(store RunPruner, retention time.Duration, logger zerolog.Logger) *Pruner {
	logger = logger.With().Str("component", "cron").Logger()
	return &Pruner{
		cron:      cron.New(cron.WithLogger(cronLogger{logger: logger})),
		store:     store,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}
}

// ValidateSchedule checks a standard five-field spec or a descriptor such as @daily.
func ValidateSchedule(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	return nil
}

// Start registers the prune job on spec and starts the scheduler.
func (p *Pruner) Start(spec string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return errors.New("pruner already running")
	}
	if p.retention <= 0 {
		p.logger.Info().Msg("History retention disabled, pruner not started")
		return nil
	}
	if err := ValidateSchedule(spec); err != nil {
		return err
	}

	if _, err := p.cron.AddFunc(spec, func() {
		if _, err := p.PruneNow(); err != nil {
			p.logger.Error().Err(err).Msg("Scheduled prune failed")
		}
	}); err != nil {
		return fmt.Errorf("register prune job: %w", err)
	}

	p.cron.Start()
	p.running = true
	p.logger.Info().Str("schedule", spec).Dur("retention", p.retention).Msg("History pruner started")
	return nil
}

// PruneNow removes runs that ended before now minus the retention window.
func (p *Pruner) PruneNow() (int64, error) {
	if p.retention <= 0 {
		return 0, nil
	}
	cutoff := p.now().Add(-p.retention)
	n, err := p.store.PruneRuns(cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		p.logger.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("Pruned run history")
	}
	return n, nil
}

// Stop stops the scheduler. The returned context is done once a running
// prune has finished.
func (p *Pruner) Stop() context.Context {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	p.running = false
	return p.cron.Stop()
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
