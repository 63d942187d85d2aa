package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metislabs/metis/internal/assess"
	"github.com/metislabs/metis/internal/config"
	"github.com/metislabs/metis/internal/decide"
	"github.com/metislabs/metis/internal/journal"
)

type stubAssessor struct{}

func (stubAssessor) Assess() (assess.Assessment, error) { return assess.Assessment{}, nil }
func (stubAssessor) Scores() []float64                  { return nil }

type stubMetrics struct{}

func (stubMetrics) Snapshot() (map[string]float64, error) { return nil, nil }
func (stubMetrics) RecordMetric(journal.Metric) error     { return nil }

type stubSink struct{}

func (stubSink) AppendEvent(string, map[string]any) error { return nil }

func newTestDecider(t *testing.T) *decide.Engine {
	t.Helper()
	return decide.New(decide.DefaultConfig(), stubAssessor{}, stubMetrics{}, stubSink{}, nil)
}

func newTestStore(t *testing.T) *journal.Store {
	t.Helper()
	store, err := journal.Open(filepath.Join(t.TempDir(), "metis.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestParseParams(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    map[string]any
		wantErr bool
	}{
		{name: "empty", pairs: nil, want: nil},
		{
			name:  "typed values",
			pairs: []string{"rate=0.5", "steps=100", "enabled=true", "mode=fast"},
			want:  map[string]any{"rate": 0.5, "steps": 100.0, "enabled": true, "mode": "fast"},
		},
		{name: "missing separator", pairs: []string{"rate"}, wantErr: true},
		{name: "empty key", pairs: []string{"=0.5"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseParams(tt.pairs)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDeadline(t *testing.T) {
	t.Run("days from now", func(t *testing.T) {
		got, err := parseDeadline("7")
		require.NoError(t, err)
		want := time.Now().UTC().AddDate(0, 0, 7)
		assert.WithinDuration(t, want, got, time.Minute)
	})

	t.Run("calendar date", func(t *testing.T) {
		got, err := parseDeadline("2026-12-31")
		require.NoError(t, err)
		assert.Equal(t, 2026, got.Year())
		assert.Equal(t, time.December, got.Month())
	})

	t.Run("negative days", func(t *testing.T) {
		_, err := parseDeadline("-3")
		require.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := parseDeadline("soon")
		require.Error(t, err)
	})
}

func TestSeedGoals(t *testing.T) {
	writeSeed := func(t *testing.T, content string) config.Config {
		t.Helper()
		path := filepath.Join(t.TempDir(), "goals.yaml")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		cfg := config.Default()
		cfg.Goals.SeedFile = path
		return cfg
	}

	t.Run("seeds goals with index dependencies", func(t *testing.T) {
		cfg := writeSeed(t, `
- description: reach baseline accuracy
  priority: high
  target_metric: accuracy
  target_value: 0.8
- description: reduce loss
  priority: medium
  target_metric: loss
  target_value: 0.1
  initial_value: 1.0
  dependencies: ["0"]
`)
		decider := newTestDecider(t)
		require.NoError(t, seedGoals(cfg, decider))

		goals := decider.Goals()
		require.Len(t, goals, 2)
		assert.Equal(t, "reach baseline accuracy", goals[0].Description)
		assert.Equal(t, decide.PriorityHigh, goals[0].Priority)
		// The second goal's dependency resolved to the first goal's id.
		require.Len(t, goals[1].Dependencies, 1)
		assert.Equal(t, goals[0].ID, goals[1].Dependencies[0])
	})

	t.Run("no seed file is a no-op", func(t *testing.T) {
		decider := newTestDecider(t)
		require.NoError(t, seedGoals(config.Default(), decider))
		assert.Empty(t, decider.Goals())
	})

	t.Run("forward dependency index rejected", func(t *testing.T) {
		cfg := writeSeed(t, `
- description: first
  priority: high
  dependencies: ["1"]
- description: second
  priority: low
`)
		decider := newTestDecider(t)
		require.Error(t, seedGoals(cfg, decider))
	})

	t.Run("unknown priority rejected", func(t *testing.T) {
		cfg := writeSeed(t, `
- description: first
  priority: urgent
`)
		decider := newTestDecider(t)
		require.Error(t, seedGoals(cfg, decider))
	})
}

func TestRehydrate(t *testing.T) {
	t.Run("restores goals and autonomy from the journal", func(t *testing.T) {
		store := newTestStore(t)

		// First process: add goals, make progress, flip autonomy.
		first := decide.New(decide.DefaultConfig(), stubAssessor{}, store, store, nil)
		id1, ok := first.AddGoal(decide.GoalSpec{
			Description:  "accuracy target",
			Priority:     decide.PriorityHigh,
			TargetMetric: "accuracy",
			TargetValue:  1.0,
		})
		require.True(t, ok)
		id2, ok := first.AddGoal(decide.GoalSpec{
			Description:  "loss target",
			Priority:     decide.PriorityMedium,
			TargetMetric: "loss",
			TargetValue:  0.1,
			InitialValue: 1.0,
		})
		require.True(t, ok)
		require.True(t, first.UpdateGoalProgress(id1, 0.5))
		first.SetAutonomy(true)

		// Second process: a fresh engine rehydrated from the same journal.
		second := decide.New(decide.DefaultConfig(), stubAssessor{}, store, store, nil)
		require.NoError(t, rehydrate(store, second))

		assert.True(t, second.Autonomous())
		goals := second.Goals()
		require.Len(t, goals, 2)
		byID := map[string]decide.Goal{}
		for _, g := range goals {
			byID[g.ID] = g
		}
		assert.InDelta(t, 0.5, byID[id1].Progress, 1e-9)
		assert.InDelta(t, 0.5, byID[id1].CurrentValue, 1e-9)
		assert.True(t, byID[id1].Active)
		assert.Equal(t, decide.PriorityMedium, byID[id2].Priority)
	})

	t.Run("completed goals stay inactive", func(t *testing.T) {
		store := newTestStore(t)

		first := decide.New(decide.DefaultConfig(), stubAssessor{}, store, store, nil)
		id, ok := first.AddGoal(decide.GoalSpec{
			Description:  "finish line",
			Priority:     decide.PriorityHigh,
			TargetMetric: "accuracy",
			TargetValue:  0.9,
		})
		require.True(t, ok)
		require.True(t, first.UpdateGoalProgress(id, 0.95))

		second := decide.New(decide.DefaultConfig(), stubAssessor{}, store, store, nil)
		require.NoError(t, rehydrate(store, second))

		goals := second.Goals()
		require.Len(t, goals, 1)
		assert.False(t, goals[0].Active)
		// A rehydrated completed goal must not accept further updates.
		assert.False(t, second.UpdateGoalProgress(id, 0.99))
	})

	t.Run("empty journal leaves defaults", func(t *testing.T) {
		store := newTestStore(t)
		decider := decide.New(decide.DefaultConfig(), stubAssessor{}, store, store, nil)
		require.NoError(t, rehydrate(store, decider))
		assert.False(t, decider.Autonomous())
		assert.Empty(t, decider.Goals())
	})
}

func TestGoalFromEvent(t *testing.T) {
	deadline := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	created := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		payload map[string]any
		wantNil bool
	}{
		{
			name: "full payload",
			payload: map[string]any{
				"goal_id":       "g-1",
				"description":   "reach target",
				"priority":      2.0,
				"target_metric": "accuracy",
				"target_value":  0.9,
				"initial_value": 0.4,
				"deadline":      deadline.Format(time.RFC3339Nano),
				"dependencies":  []any{"g-0"},
			},
		},
		{name: "missing id", payload: map[string]any{"description": "x", "priority": 2.0}, wantNil: true},
		{name: "missing description", payload: map[string]any{"goal_id": "g", "priority": 2.0}, wantNil: true},
		{name: "invalid priority", payload: map[string]any{"goal_id": "g", "description": "x", "priority": 9.0}, wantNil: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := goalFromEvent(journal.Event{Kind: decide.EventGoalAdded, CreatedAt: created, Payload: tt.payload})
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, "g-1", got.ID)
			assert.Equal(t, decide.PriorityHigh, got.Priority)
			assert.Equal(t, created, got.CreatedAt)
			require.NotNil(t, got.Deadline)
			assert.True(t, got.Deadline.Equal(deadline))
			assert.Equal(t, []string{"g-0"}, got.Dependencies)
			assert.True(t, got.Active)
		})
	}
}

func TestRehydrateDecisionHistory(t *testing.T) {
	store := newTestStore(t)

	first := decide.New(decide.DefaultConfig(), stubAssessor{}, store, store, nil)
	executed, err := first.MakeDecision(decide.KindStrategyChange, map[string]any{"new_strategy": "conservative"})
	require.NoError(t, err)

	second := decide.New(decide.DefaultConfig(), stubAssessor{}, store, store, nil)
	require.NoError(t, rehydrate(store, second))

	history := second.History(0)
	require.Len(t, history, 1)
	assert.Equal(t, executed.ID, history[0].ID)
	assert.Equal(t, decide.StatusCompleted, history[0].Status)
	assert.Equal(t, "conservative", history[0].Result["new_strategy"])
}

func TestDecisionFromEvent(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		wantNil bool
	}{
		{
			name: "completed decision",
			payload: map[string]any{
				"decision_id":     "d-1",
				"decision_type":   "parameter_adjustment",
				"priority":        2.0,
				"description":     "tune learning rate",
				"parameters":      map[string]any{"learning_rate": 0.002},
				"expected_impact": 0.3,
				"confidence":      0.7,
				"status":          "completed",
				"result":          map[string]any{"status": "applied"},
			},
		},
		{
			name: "failed decision keeps reason",
			payload: map[string]any{
				"decision_id":   "d-2",
				"decision_type": "strategy_change",
				"status":        "failed",
				"error":         "missing strategy parameter",
			},
		},
		{name: "missing id", payload: map[string]any{"decision_type": "strategy_change", "status": "completed"}, wantNil: true},
		{name: "unknown kind", payload: map[string]any{"decision_id": "d", "decision_type": "mystery", "status": "completed"}, wantNil: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decisionFromEvent(journal.Event{Kind: decide.EventDecisionResult, Payload: tt.payload})
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.payload["decision_id"], got.ID)
			assert.Equal(t, decide.DecisionKind(tt.payload["decision_type"].(string)), got.Kind)
			if reason, ok := tt.payload["error"].(string); ok {
				assert.Equal(t, reason, got.FailureReason)
			}
		})
	}
}
