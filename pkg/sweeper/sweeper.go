// Package sweeper periodically reaps executions whose loop stopped
// making progress, so abandoned runs fail visibly instead of lingering
// in the live registry forever.
package sweeper

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Aborter is the sequencer surface the sweeper needs.
type Aborter interface {
	AbortStale(olderThan time.Duration) int
}

type Sweeper struct {
	aborter    Aborter
	staleAfter time.Duration
	schedule   string
	logger     *slog.Logger
	cron       *cron.Cron
}

// New builds a sweeper with a cron schedule (standard 5-field spec)
// and the staleness threshold past which a live execution is failed.
func New(aborter Aborter, schedule string, staleAfter time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		aborter:    aborter,
		staleAfter: staleAfter,
		schedule:   schedule,
		logger:     logger.With("module", "sweeper"),
	}
}

func (s *Sweeper) Start() error {
	s.cron = cron.New()

	_, err := s.cron.AddFunc(s.schedule, s.sweep)
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("Stale execution sweeper started", "schedule", s.schedule, "stale_after", s.staleAfter)

	return nil
}

// Stop halts scheduling and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}

	<-s.cron.Stop().Done()
}

func (s *Sweeper) sweep() {
	aborted := s.aborter.AbortStale(s.staleAfter)
	if aborted > 0 {
		s.logger.Warn("Aborted stale executions", "count", aborted)
	}
}
