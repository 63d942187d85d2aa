package decide

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/metislabs/metis/internal/journal"
)

// #region batch

// runBatch pulls the eligible pending decisions and executes them on the
// worker pool, returning snapshots of the decisions that ran. The top
// MaxConcurrent critical/high decisions claim the batch slots; of those,
// only the ones meeting the confidence threshold execute, and the rest
// wait for a future cycle.
func (e *Engine) runBatch() []Decision {
	e.mu.Lock()
	// 1. Priority order, oldest first within a priority.
	sort.SliceStable(e.pending, func(i, j int) bool {
		if e.pending[i].Priority != e.pending[j].Priority {
			return e.pending[i].Priority < e.pending[j].Priority
		}
		return e.pending[i].CreatedAt.Before(e.pending[j].CreatedAt)
	})

	// 2. Split off the batch. Slots are claimed by priority alone; a
	// below-threshold decision holds its slot but stays queued for a
	// later cycle, so lower-ranked decisions cannot jump past it.
	var batch, remaining []*Decision
	slots := 0
	for _, d := range e.pending {
		if slots < e.cfg.MaxConcurrent && d.Priority <= PriorityHigh {
			slots++
			if d.Confidence >= e.cfg.ConfidenceThreshold {
				batch = append(batch, d)
				continue
			}
		}
		remaining = append(remaining, d)
	}
	e.pending = remaining
	e.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	// 3. Handlers run outside the lock on a bounded pool. Failures land
	// on the decision, never on the group.
	var g errgroup.Group
	g.SetLimit(e.cfg.Workers)
	for _, d := range batch {
		g.Go(func() error {
			e.execute(d)
			return nil
		})
	}
	_ = g.Wait()

	// 4. Settled decisions move to history.
	e.mu.Lock()
	e.history = append(e.history, batch...)
	e.mu.Unlock()

	out := make([]Decision, len(batch))
	for i, d := range batch {
		e.journalResult(d)
		out[i] = snapshotDecision(d)
	}
	return out
}

// execute runs one decision to completion. Unhandled kinds complete with
// a not_implemented result; handler errors mark the decision failed.
func (e *Engine) execute(d *Decision) {
	start := time.Now().UTC()
	d.Status = StatusExecuting
	d.ExecutedAt = &start

	e.mu.Lock()
	handler, ok := e.handlers[d.Kind]
	e.mu.Unlock()

	var (
		result map[string]any
		err    error
	)
	if ok {
		result, err = handler(d)
	} else {
		result = map[string]any{"status": "not_implemented"}
	}
	done := time.Now().UTC()
	d.CompletedAt = &done

	if err != nil {
		d.Status = StatusFailed
		d.FailureReason = err.Error()
		e.log.Warn("decision failed",
			zap.String("decision_id", d.ID),
			zap.String("kind", string(d.Kind)),
			zap.Error(err))
		return
	}
	d.Status = StatusCompleted
	d.Result = result
	e.log.Info("decision executed",
		zap.String("decision_id", d.ID),
		zap.String("kind", string(d.Kind)),
		zap.Duration("elapsed", done.Sub(start)))
}

// journalResult records a decision's final state, logging and swallowing
// sink failures.
func (e *Engine) journalResult(d *Decision) {
	payload := map[string]any{
		"decision_id":     d.ID,
		"decision_type":   string(d.Kind),
		"priority":        int(d.Priority),
		"description":     d.Description,
		"parameters":      d.Params,
		"expected_impact": d.ExpectedImpact,
		"confidence":      d.Confidence,
		"status":          string(d.Status),
		"result":          d.Result,
	}
	if d.ExecutedAt != nil && d.CompletedAt != nil {
		payload["execution_seconds"] = d.CompletedAt.Sub(*d.ExecutedAt).Seconds()
	}
	if d.FailureReason != "" {
		payload["error"] = d.FailureReason
	}
	e.journal(EventDecisionResult, payload)
}

// #endregion batch

// #region handlers

// applyParameterAdjustment records each parameter as a metric so the
// training loop can pick it up. Non-numeric values record as 1.0.
func (e *Engine) applyParameterAdjustment(d *Decision) (map[string]any, error) {
	for _, name := range sortedParamKeys(d.Params) {
		value := 1.0
		if f, ok := toFloat(d.Params[name]); ok {
			value = f
		}
		m := journal.Metric{
			Name:    "decision_param_" + name,
			Value:   value,
			Context: map[string]string{"decision_id": d.ID},
		}
		if err := e.metrics.RecordMetric(m); err != nil {
			return nil, fmt.Errorf("record %s: %w", name, err)
		}
	}
	return map[string]any{"status": "applied", "parameters": cloneMap(d.Params)}, nil
}

// applyStrategyChange journals the strategy switch for the learning loop.
func (e *Engine) applyStrategyChange(d *Decision) (map[string]any, error) {
	strategy, _ := d.Params["new_strategy"].(string)
	if strategy == "" {
		strategy, _ = d.Params["recommended_strategy"].(string)
	}
	if strategy == "" {
		return nil, errors.New("missing strategy parameter")
	}
	e.journal(EventStrategyChange, map[string]any{
		"new_strategy": strategy,
		"decision_id":  d.ID,
	})
	return map[string]any{"status": "applied", "new_strategy": strategy}, nil
}

// applyResourceAllocation updates the known fields of the live resource
// record. Unknown parameters are ignored.
func (e *Engine) applyResourceAllocation(d *Decision) (map[string]any, error) {
	applied := map[string]any{}
	e.mu.Lock()
	for _, key := range sortedParamKeys(d.Params) {
		f, ok := toFloat(d.Params[key])
		if !ok {
			continue
		}
		switch key {
		case "compute_budget":
			e.resources.ComputeBudget = f
		case "memory_budget":
			e.resources.MemoryBudget = f
		case "evaluation_frequency":
			e.resources.EvaluationFrequency = int(f)
		case "exploration_ratio":
			e.resources.ExplorationRatio = f
		default:
			continue
		}
		applied[key] = f
	}
	e.mu.Unlock()
	return map[string]any{"status": "applied", "allocation": applied}, nil
}

// applyGoalPrioritization rewrites each listed goal's priority to its
// rank in the order, capped at the lowest priority. Unknown ids are
// skipped.
func (e *Engine) applyGoalPrioritization(d *Decision) (map[string]any, error) {
	order, ok := stringSliceParam(d.Params["goal_order"])
	if !ok {
		return nil, errors.New("missing goal_order parameter")
	}
	e.mu.Lock()
	reordered := 0
	for i, goalID := range order {
		g, exists := e.goals[goalID]
		if !exists {
			continue
		}
		g.Priority = Priority(min(i+1, int(PriorityLow)))
		reordered++
	}
	e.mu.Unlock()
	return map[string]any{"status": "applied", "reordered": reordered, "new_order": order}, nil
}

// #endregion handlers

// #region params

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func sortedParamKeys(params map[string]any) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// stringSliceParam accepts both []string and the []any shape produced by
// JSON decoding.
func stringSliceParam(v any) ([]string, bool) {
	switch s := v.(type) {
	case []string:
		return s, len(s) > 0
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, str)
		}
		return out, len(out) > 0
	}
	return nil, false
}

// #endregion params
