package decide

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (s *stubSink) lastPayload(kind string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out map[string]any
	for _, ev := range s.events {
		if ev.kind == kind {
			out = ev.payload
		}
	}
	return out
}

func queueDecisions(e *Engine, ds ...*Decision) {
	e.mu.Lock()
	e.pending = append(e.pending, ds...)
	e.mu.Unlock()
}

func TestRunBatchEmptyQueue(t *testing.T) {
	e := newTestEngine(&stubAssessor{}, &stubMetrics{}, &stubSink{})
	assert.Nil(t, e.runBatch())
}

func TestRunBatchRespectsMaxConcurrent(t *testing.T) {
	e := newTestEngine(&stubAssessor{}, &stubMetrics{}, &stubSink{})
	for i := 0; i < 5; i++ {
		queueDecisions(e, newDecision(KindTrainingSchedule, PriorityHigh, "queued", nil, 0, 1.0))
	}

	first := e.runBatch()
	assert.Len(t, first, 3)
	assert.Len(t, e.Pending(), 2)

	second := e.runBatch()
	assert.Len(t, second, 2)
	assert.Empty(t, e.Pending())
	assert.Len(t, e.History(0), 5)
}

func TestRunBatchPriorityAndConfidenceGates(t *testing.T) {
	e := newTestEngine(&stubAssessor{}, &stubMetrics{}, &stubSink{})
	medium := newDecision(KindTrainingSchedule, PriorityMedium, "medium", nil, 0, 1.0)
	timid := newDecision(KindTrainingSchedule, PriorityHigh, "under threshold", nil, 0, 0.5)
	critical := newDecision(KindTrainingSchedule, PriorityCritical, "critical", nil, 0, 0.7)
	confident := newDecision(KindTrainingSchedule, PriorityHigh, "confident", nil, 0, 0.9)
	queueDecisions(e, medium, timid, critical, confident)

	executed := e.runBatch()
	require.Len(t, executed, 2)
	// Critical outranks high regardless of queue order.
	assert.Equal(t, critical.ID, executed[0].ID)
	assert.Equal(t, confident.ID, executed[1].ID)

	pending := e.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, timid.ID, pending[0].ID)
	assert.Equal(t, medium.ID, pending[1].ID)
	for _, d := range pending {
		assert.Equal(t, StatusPending, d.Status)
	}
}

func TestRunBatchThresholdBoundary(t *testing.T) {
	e := newTestEngine(&stubAssessor{}, &stubMetrics{}, &stubSink{})
	atThreshold := newDecision(KindTrainingSchedule, PriorityHigh, "exactly at threshold", nil, 0, 0.6)
	queueDecisions(e, atThreshold)

	executed := e.runBatch()
	require.Len(t, executed, 1)
	assert.Equal(t, StatusCompleted, executed[0].Status)
}

func TestRunBatchWorkerPoolLimit(t *testing.T) {
	e := newTestEngine(&stubAssessor{}, &stubMetrics{}, &stubSink{})
	var current, peak int32
	e.RegisterHandler(KindEvaluationTrigger, func(d *Decision) (map[string]any, error) {
		n := atomic.AddInt32(&current, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&current, -1)
		return map[string]any{"status": "applied"}, nil
	})
	for i := 0; i < 3; i++ {
		queueDecisions(e, newDecision(KindEvaluationTrigger, PriorityHigh, "slow", nil, 0, 1.0))
	}

	executed := e.runBatch()
	assert.Len(t, executed, 3)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&peak), int32(1))
}

func TestRunBatchHandlerFailure(t *testing.T) {
	sink := &stubSink{}
	e := newTestEngine(&stubAssessor{}, &stubMetrics{}, sink)
	e.RegisterHandler(KindEvaluationTrigger, func(d *Decision) (map[string]any, error) {
		return nil, errors.New("evaluator offline")
	})
	ok := newDecision(KindTrainingSchedule, PriorityHigh, "fine", nil, 0, 1.0)
	bad := newDecision(KindEvaluationTrigger, PriorityHigh, "doomed", nil, 0, 1.0)
	queueDecisions(e, ok, bad)

	executed := e.runBatch()
	require.Len(t, executed, 2)

	byID := map[string]Decision{}
	for _, d := range executed {
		byID[d.ID] = d
	}
	assert.Equal(t, StatusCompleted, byID[ok.ID].Status)
	assert.Equal(t, StatusFailed, byID[bad.ID].Status)
	assert.Equal(t, "evaluator offline", byID[bad.ID].FailureReason)

	// One failure never blocks the rest of the batch.
	assert.Len(t, e.History(0), 2)

	payload := sink.lastPayload(EventDecisionResult)
	require.NotNil(t, payload)
	assert.Contains(t, payload, "execution_seconds")
}

func TestExecuteNotImplementedKinds(t *testing.T) {
	e := newTestEngine(&stubAssessor{}, &stubMetrics{}, &stubSink{})
	for _, kind := range []DecisionKind{KindTrainingSchedule, KindEvaluationTrigger} {
		d := newDecision(kind, PriorityHigh, "no handler", nil, 0, 1.0)
		e.execute(d)
		assert.Equal(t, StatusCompleted, d.Status, string(kind))
		assert.Equal(t, "not_implemented", d.Result["status"], string(kind))
		assert.NotNil(t, d.ExecutedAt, string(kind))
		assert.NotNil(t, d.CompletedAt, string(kind))
	}
}

func TestRegisterHandlerOverride(t *testing.T) {
	e := newTestEngine(&stubAssessor{}, &stubMetrics{}, &stubSink{})
	e.RegisterHandler(KindTrainingSchedule, func(d *Decision) (map[string]any, error) {
		return map[string]any{"status": "applied", "scheduled": true}, nil
	})

	d, err := e.MakeDecision(KindTrainingSchedule, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, d.Status)
	assert.Equal(t, true, d.Result["scheduled"])
}

func TestApplyParameterAdjustmentRecordsMetrics(t *testing.T) {
	metrics := &stubMetrics{}
	e := newTestEngine(&stubAssessor{}, metrics, &stubSink{})

	d, err := e.MakeDecision(KindParameterAdjustment, map[string]any{
		"batch_size_multiplier": 1.5,
		"note":                  "resume from checkpoint",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, d.Status)

	recorded := metrics.metrics()
	require.Len(t, recorded, 2)
	assert.Equal(t, "decision_param_batch_size_multiplier", recorded[0].Name)
	assert.Equal(t, 1.5, recorded[0].Value)
	// Non-numeric parameters record presence as 1.0.
	assert.Equal(t, "decision_param_note", recorded[1].Name)
	assert.Equal(t, 1.0, recorded[1].Value)
	for _, m := range recorded {
		assert.Equal(t, d.ID, m.Context["decision_id"])
	}
}

func TestApplyParameterAdjustmentRecordFailure(t *testing.T) {
	metrics := &stubMetrics{recErr: errors.New("db locked")}
	e := newTestEngine(&stubAssessor{}, metrics, &stubSink{})

	d, err := e.MakeDecision(KindParameterAdjustment, map[string]any{"learning_rate": 0.01})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, d.Status)
	assert.Contains(t, d.FailureReason, "record learning_rate")
}

func TestApplyStrategyChangeParamFallback(t *testing.T) {
	sink := &stubSink{}
	e := newTestEngine(&stubAssessor{}, &stubMetrics{}, sink)

	d, err := e.MakeDecision(KindStrategyChange, map[string]any{"recommended_strategy": "adaptive"})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, d.Status)
	assert.Equal(t, "adaptive", d.Result["new_strategy"])

	payload := sink.lastPayload(EventStrategyChange)
	require.NotNil(t, payload)
	assert.Equal(t, "adaptive", payload["new_strategy"])
}

func TestApplyStrategyChangeMissingParam(t *testing.T) {
	e := newTestEngine(&stubAssessor{}, &stubMetrics{}, &stubSink{})

	d, err := e.MakeDecision(KindStrategyChange, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, d.Status)
	assert.Contains(t, d.FailureReason, "missing strategy parameter")
}

func TestApplyResourceAllocation(t *testing.T) {
	e := newTestEngine(&stubAssessor{}, &stubMetrics{}, &stubSink{})

	d, err := e.MakeDecision(KindResourceAllocation, map[string]any{
		"compute_budget":       2.0,
		"memory_budget":        0.5,
		"evaluation_frequency": 50,
		"exploration_ratio":    0.6,
		"quantum_budget":       9.9,
		"label":                "ignored",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, d.Status)

	res := e.Resources()
	assert.Equal(t, 2.0, res.ComputeBudget)
	assert.Equal(t, 0.5, res.MemoryBudget)
	assert.Equal(t, 50, res.EvaluationFrequency)
	assert.Equal(t, 0.6, res.ExplorationRatio)

	applied, ok := d.Result["allocation"].(map[string]any)
	require.True(t, ok)
	assert.Len(t, applied, 4)
	assert.NotContains(t, applied, "quantum_budget")
	assert.NotContains(t, applied, "label")
}

func TestApplyGoalPrioritization(t *testing.T) {
	e := newTestEngine(&stubAssessor{}, &stubMetrics{}, &stubSink{})
	var ids []string
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		ids = append(ids, addTestGoal(t, e, GoalSpec{Description: name, Priority: PriorityMedium, TargetValue: 1.0}))
	}

	// Reverse the order; ranks past the lowest priority cap at low.
	order := []string{ids[4], ids[3], ids[2], ids[1], ids[0]}
	d, err := e.MakeDecision(KindGoalPrioritization, map[string]any{"goal_order": order})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, d.Status)
	assert.Equal(t, 5, d.Result["reordered"])

	want := map[string]Priority{
		ids[4]: PriorityCritical,
		ids[3]: PriorityHigh,
		ids[2]: PriorityMedium,
		ids[1]: PriorityLow,
		ids[0]: PriorityLow,
	}
	for _, g := range e.Goals() {
		assert.Equal(t, want[g.ID], g.Priority, g.Description)
	}
}

func TestApplyGoalPrioritizationSkipsUnknownIDs(t *testing.T) {
	e := newTestEngine(&stubAssessor{}, &stubMetrics{}, &stubSink{})
	a := addTestGoal(t, e, GoalSpec{Description: "a", Priority: PriorityLow, TargetValue: 1.0})
	b := addTestGoal(t, e, GoalSpec{Description: "b", Priority: PriorityLow, TargetValue: 1.0})

	// The unknown id still consumes its rank slot.
	d, err := e.MakeDecision(KindGoalPrioritization, map[string]any{
		"goal_order": []string{a, "missing", b},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, d.Status)
	assert.Equal(t, 2, d.Result["reordered"])

	byID := map[string]Priority{}
	for _, g := range e.Goals() {
		byID[g.ID] = g.Priority
	}
	assert.Equal(t, PriorityCritical, byID[a])
	assert.Equal(t, PriorityMedium, byID[b])
}

func TestApplyGoalPrioritizationMissingParam(t *testing.T) {
	e := newTestEngine(&stubAssessor{}, &stubMetrics{}, &stubSink{})

	d, err := e.MakeDecision(KindGoalPrioritization, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, d.Status)
	assert.Contains(t, d.FailureReason, "goal_order")
}

func TestStringSliceParam(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want []string
		ok   bool
	}{
		{"string slice", []string{"a", "b"}, []string{"a", "b"}, true},
		{"any slice", []any{"a", "b"}, []string{"a", "b"}, true},
		{"mixed any slice", []any{"a", 7}, nil, false},
		{"empty", []string{}, nil, false},
		{"nil", nil, nil, false},
		{"wrong type", "a,b", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := stringSliceParam(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestToFloat(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want float64
		ok   bool
	}{
		{"float64", 0.25, 0.25, true},
		{"float32", float32(2), 2.0, true},
		{"int", 7, 7.0, true},
		{"int64", int64(-3), -3.0, true},
		{"string", "1.5", 0, false},
		{"bool", true, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := toFloat(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunBatchLowConfidenceHoldsSlot(t *testing.T) {
	e := newTestEngine(&stubAssessor{}, &stubMetrics{}, &stubSink{})
	hesitant := newDecision(KindTrainingSchedule, PriorityCritical, "critical but unsure", nil, 0, 0.5)
	first := newDecision(KindTrainingSchedule, PriorityHigh, "high 1", nil, 0, 0.9)
	second := newDecision(KindTrainingSchedule, PriorityHigh, "high 2", nil, 0, 0.9)
	third := newDecision(KindTrainingSchedule, PriorityHigh, "high 3", nil, 0, 0.9)
	queueDecisions(e, hesitant, first, second, third)

	// The critical decision claims a slot even below the confidence
	// threshold, so only two of the high decisions run this cycle.
	executed := e.runBatch()
	require.Len(t, executed, 2)
	assert.Equal(t, first.ID, executed[0].ID)
	assert.Equal(t, second.ID, executed[1].ID)

	pending := e.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, hesitant.ID, pending[0].ID)
	assert.Equal(t, third.ID, pending[1].ID)
	for _, d := range pending {
		assert.Equal(t, StatusPending, d.Status)
	}
}
