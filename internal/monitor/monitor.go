// Package monitor drives periodic assessment and decision cycles.
package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/metislabs/metis/internal/assess"
	"github.com/metislabs/metis/internal/decide"
)

// #region runner

// Assessor is the assessment surface the monitor drives each tick.
type Assessor interface {
	Assess() (assess.Assessment, error)
	DetectPatterns() ([]assess.Pattern, error)
}

// Decider runs autonomous decision cycles from the tick's assessment.
type Decider interface {
	RunCycleWith(a assess.Assessment) ([]decide.Decision, error)
}

// Runner ticks the assessment and decision engines at a fixed interval.
type Runner struct {
	interval time.Duration
	assessor Assessor
	decider  Decider
	log      *zap.Logger
}

// New creates a monitor runner. A nil logger disables logging.
func New(interval time.Duration, assessor Assessor, decider Decider, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{interval: interval, assessor: assessor, decider: decider, log: log}
}

// Run ticks until ctx is cancelled. The first tick fires immediately.
// Per-tick failures are logged and the loop keeps going.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("monitor started", zap.Duration("interval", r.interval))
	r.tick()
	for {
		select {
		case <-ctx.Done():
			r.log.Info("monitor stopped")
			return
		case <-ticker.C:
			r.tick()
		}
	}
}

// tick runs one assessment, pattern detection, and decision pass. The
// tick's single assessment feeds the decision cycle; a failed
// assessment skips decisions until the next tick.
func (r *Runner) tick() {
	assessment, assessErr := r.assessor.Assess()
	if assessErr != nil {
		r.log.Warn("assessment failed", zap.Error(assessErr))
	}
	patterns, err := r.assessor.DetectPatterns()
	if err != nil {
		r.log.Warn("pattern detection failed", zap.Error(err))
	} else if len(patterns) > 0 {
		r.log.Info("patterns detected", zap.Int("count", len(patterns)))
	}
	if assessErr != nil {
		return
	}
	if _, err := r.decider.RunCycleWith(assessment); err != nil {
		r.log.Warn("decision cycle failed", zap.Error(err))
	}
}

// #endregion runner
