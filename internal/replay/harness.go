// Package replay feeds recorded metric fixtures through the assessment
// and decision engines so a run can be reproduced and inspected offline.
package replay

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/metislabs/metis/internal/assess"
	"github.com/metislabs/metis/internal/decide"
	"github.com/metislabs/metis/internal/journal"
)

// #region harness-types

// Config bundles the engine configs for a replay run.
type Config struct {
	Assess assess.Config
	Decide decide.Config
}

// DefaultConfig returns engine defaults for both stages.
func DefaultConfig() Config {
	return Config{
		Assess: assess.DefaultConfig(),
		Decide: decide.DefaultConfig(),
	}
}

// BatchResult captures the outcome of replaying one fixture batch.
type BatchResult struct {
	Label       string
	Metrics     int
	Assessment  assess.Assessment
	Patterns    int
	Synthesized int
	Executed    int
	Failed      int
}

// Summary aggregates a full replay run.
type Summary struct {
	Batches     int
	Metrics     int
	Decisions   int
	Executed    int
	Failed      int
	FinalStatus decide.Status
}

// #endregion harness-types

// #region harness

// Run replays fixture batches through a fresh assessment and decision
// engine pair backed by store. The fixture's autonomy flag overrides
// cfg.Decide.Autonomous so a recorded run is self-contained.
func Run(f *Fixture, store *journal.Store, cfg Config, log *zap.Logger) ([]BatchResult, Summary, error) {
	if log == nil {
		log = zap.NewNop()
	}
	cfg.Decide.Autonomous = f.Autonomous

	// 1. Build the pipeline: the store feeds the assessor, both feed the decider.
	assessor := assess.New(cfg.Assess, store, store, log)
	decider := decide.New(cfg.Decide, assessor, store, store, log)

	// 2. Seed goals before the first batch.
	for _, g := range f.Goals {
		spec, err := g.ToSpec()
		if err != nil {
			return nil, Summary{}, err
		}
		if _, ok := decider.AddGoal(spec); !ok {
			return nil, Summary{}, fmt.Errorf("invalid goal %q", g.Description)
		}
	}

	results := make([]BatchResult, 0, len(f.Batches))
	for i, batch := range f.Batches {
		label := batch.Label
		if label == "" {
			label = fmt.Sprintf("batch %d", i+1)
		}

		// 3. Record the batch's metrics as if they arrived live.
		metrics := make([]journal.Metric, len(batch.Metrics))
		for j, m := range batch.Metrics {
			metrics[j] = m.ToMetric()
		}
		if err := store.RecordMetrics(metrics); err != nil {
			return nil, Summary{}, fmt.Errorf("record %s: %w", label, err)
		}

		// 4. Assess and scan, mirroring a monitor tick.
		assessment, err := assessor.Assess()
		if err != nil {
			return nil, Summary{}, fmt.Errorf("assess %s: %w", label, err)
		}
		patterns, err := assessor.DetectPatterns()
		if err != nil {
			return nil, Summary{}, fmt.Errorf("scan %s: %w", label, err)
		}

		// 5. Let the decision engine react to the tick's assessment.
		decisions, err := decider.RunCycleWith(assessment)
		if err != nil {
			return nil, Summary{}, fmt.Errorf("decide %s: %w", label, err)
		}

		result := BatchResult{
			Label:       label,
			Metrics:     len(batch.Metrics),
			Assessment:  assessment,
			Patterns:    len(patterns),
			Synthesized: len(decisions),
		}
		for _, d := range decisions {
			switch d.Status {
			case decide.StatusCompleted:
				result.Executed++
			case decide.StatusFailed:
				result.Failed++
			}
		}
		results = append(results, result)
	}

	return results, Summarize(results, decider.Status()), nil
}

// Summarize folds per-batch results into run totals.
func Summarize(results []BatchResult, final decide.Status) Summary {
	s := Summary{Batches: len(results), FinalStatus: final}
	for _, r := range results {
		s.Metrics += r.Metrics
		s.Decisions += r.Synthesized
		s.Executed += r.Executed
		s.Failed += r.Failed
	}
	return s
}

// #endregion harness
