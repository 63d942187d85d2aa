package decide

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// #region engine

// Engine synthesizes and executes autonomous decisions. One mutex guards
// goals, pending and executed decisions, the resource record, and the
// autonomy flag; handlers run outside it on a bounded worker pool.
type Engine struct {
	cfg      Config
	assessor Assessor
	metrics  MetricStore
	sink     Sink
	log      *zap.Logger

	mu         sync.Mutex
	autonomous bool
	goals      map[string]*Goal
	pending    []*Decision
	history    []*Decision
	resources  ResourceAllocation
	handlers   map[DecisionKind]HandlerFunc
}

// New creates a decision engine. A nil logger disables logging.
func New(cfg Config, assessor Assessor, metrics MetricStore, sink Sink, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		cfg:        cfg,
		assessor:   assessor,
		metrics:    metrics,
		sink:       sink,
		log:        log,
		autonomous: cfg.Autonomous,
		goals:      make(map[string]*Goal),
		resources:  DefaultResources(),
	}
	e.handlers = map[DecisionKind]HandlerFunc{
		KindParameterAdjustment: e.applyParameterAdjustment,
		KindStrategyChange:      e.applyStrategyChange,
		KindResourceAllocation:  e.applyResourceAllocation,
		KindGoalPrioritization:  e.applyGoalPrioritization,
	}
	return e
}

// RegisterHandler installs or replaces the handler for kind. Kinds
// without a handler complete with a not_implemented result.
func (e *Engine) RegisterHandler(kind DecisionKind, fn HandlerFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[kind] = fn
}

// journal appends an event, logging and swallowing sink failures.
func (e *Engine) journal(kind string, payload map[string]any) {
	if err := e.sink.AppendEvent(kind, payload); err != nil {
		e.log.Warn("journal event", zap.String("kind", kind), zap.Error(err))
	}
}

// #endregion engine

// #region autonomy

// SetAutonomy flips autonomous mode and journals the change.
func (e *Engine) SetAutonomy(on bool) {
	e.mu.Lock()
	e.autonomous = on
	e.mu.Unlock()

	e.journal(EventAutonomy, map[string]any{"autonomous": on})
	e.log.Info("autonomous mode", zap.Bool("enabled", on))
}

// Autonomous reports whether autonomous cycles are enabled.
func (e *Engine) Autonomous() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.autonomous
}

// #endregion autonomy

// #region goals

// AddGoal registers a new active goal and returns its id. It returns
// false when the spec has no description or an invalid priority.
func (e *Engine) AddGoal(spec GoalSpec) (string, bool) {
	if spec.Description == "" || !spec.Priority.IsValid() {
		return "", false
	}
	g := &Goal{
		ID:           uuid.New().String(),
		Description:  spec.Description,
		Priority:     spec.Priority,
		CreatedAt:    time.Now().UTC(),
		Deadline:     spec.Deadline,
		TargetMetric: spec.TargetMetric,
		TargetValue:  spec.TargetValue,
		CurrentValue: spec.InitialValue,
		Active:       true,
		Dependencies: append([]string(nil), spec.Dependencies...),
	}

	e.mu.Lock()
	e.goals[g.ID] = g
	e.mu.Unlock()

	payload := map[string]any{
		"goal_id":       g.ID,
		"description":   g.Description,
		"priority":      int(g.Priority),
		"target_metric": g.TargetMetric,
		"target_value":  g.TargetValue,
		"initial_value": g.CurrentValue,
		"dependencies":  g.Dependencies,
	}
	if g.Deadline != nil {
		payload["deadline"] = g.Deadline.UTC().Format(time.RFC3339Nano)
	}
	e.journal(EventGoalAdded, payload)
	e.log.Info("goal added",
		zap.String("goal_id", g.ID),
		zap.String("description", g.Description),
		zap.String("priority", g.Priority.String()))
	return g.ID, true
}

// UpdateGoalProgress moves a goal's current value and recomputes progress
// against the span from the previous value to the target. Reaching the
// target deactivates the goal once and promotes its dependent goals.
// Unknown or inactive goals return false.
func (e *Engine) UpdateGoalProgress(goalID string, current float64) bool {
	e.mu.Lock()
	g, ok := e.goals[goalID]
	if !ok || !g.Active {
		e.mu.Unlock()
		return false
	}
	old := g.CurrentValue
	g.CurrentValue = current
	if g.TargetValue != old {
		g.Progress = clamp01((current - old) / (g.TargetValue - old))
	}
	progress := g.Progress

	var completed *Goal
	if g.Progress >= 1.0 {
		g.Active = false
		for _, depID := range g.Dependencies {
			if dep, exists := e.goals[depID]; exists && dep.Priority > PriorityCritical {
				dep.Priority--
			}
		}
		c := *g
		completed = &c
	}
	e.mu.Unlock()

	e.journal(EventGoalProgress, map[string]any{
		"goal_id":   goalID,
		"old_value": old,
		"new_value": current,
		"progress":  progress,
	})
	if completed != nil {
		e.journal(EventGoalCompleted, map[string]any{
			"goal_id":     completed.ID,
			"description": completed.Description,
			"final_value": completed.CurrentValue,
		})
		e.log.Info("goal completed",
			zap.String("goal_id", completed.ID),
			zap.String("description", completed.Description))
	}
	return true
}

// RestoreGoal reinstates a previously journaled goal, keeping its id and
// progress, without emitting journal events. Used to rehydrate engine
// state from the journal; it overwrites any goal with the same id.
func (e *Engine) RestoreGoal(g Goal) bool {
	if g.ID == "" || g.Description == "" || !g.Priority.IsValid() {
		return false
	}
	restored := snapshotGoal(&g)
	e.mu.Lock()
	e.goals[g.ID] = &restored
	e.mu.Unlock()
	return true
}

// RestoreDecision appends a previously journaled decision to the
// history without re-executing or re-journaling it. Only settled
// decisions can be restored.
func (e *Engine) RestoreDecision(d Decision) bool {
	if d.ID == "" || !d.Kind.IsValid() {
		return false
	}
	if d.Status != StatusCompleted && d.Status != StatusFailed {
		return false
	}
	restored := snapshotDecision(&d)
	e.mu.Lock()
	e.history = append(e.history, &restored)
	e.mu.Unlock()
	return true
}

// RestoreAutonomy sets the autonomy flag without journaling, for use
// during state rehydration.
func (e *Engine) RestoreAutonomy(on bool) {
	e.mu.Lock()
	e.autonomous = on
	e.mu.Unlock()
}

// Goals returns copies of all goals, oldest first.
func (e *Engine) Goals() []Goal {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Goal, 0, len(e.goals))
	for _, g := range e.goals {
		out = append(out, snapshotGoal(g))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// #endregion goals

// #region views

// Pending returns copies of the queued decisions in execution order.
func (e *Engine) Pending() []Decision {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Decision, len(e.pending))
	for i, d := range e.pending {
		out[i] = snapshotDecision(d)
	}
	sortDecisions(out)
	return out
}

// History returns copies of executed decisions, newest first. A limit
// of zero or less returns everything.
func (e *Engine) History(limit int) []Decision {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Decision, 0, n)
	for i := len(e.history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, snapshotDecision(e.history[i]))
	}
	return out
}

// HistoryFiltered returns decisions created within the trailing number
// of days, optionally restricted to one kind, newest first. Zero or
// negative days means no time bound; an empty kind matches all kinds.
func (e *Engine) HistoryFiltered(days int, kind DecisionKind) []Decision {
	var cutoff time.Time
	if days > 0 {
		cutoff = time.Now().UTC().AddDate(0, 0, -days)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []Decision
	for i := len(e.history) - 1; i >= 0; i-- {
		d := e.history[i]
		if !cutoff.IsZero() && d.CreatedAt.Before(cutoff) {
			continue
		}
		if kind != "" && d.Kind != kind {
			continue
		}
		out = append(out, snapshotDecision(d))
	}
	return out
}

// Status summarizes the engine state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := Status{
		Autonomous:       e.autonomous,
		PendingDecisions: len(e.pending),
		TotalDecisions:   len(e.history),
		Resources:        e.resources,
	}
	var progress float64
	for _, g := range e.goals {
		if g.Active {
			st.ActiveGoals++
			progress += g.Progress
		} else {
			st.CompletedGoals++
		}
	}
	if st.ActiveGoals > 0 {
		st.AvgGoalProgress = progress / float64(st.ActiveGoals)
	}
	cutoff := time.Now().Add(-24 * time.Hour)
	for _, d := range e.history {
		if d.CreatedAt.After(cutoff) {
			st.RecentDecisions++
		}
	}
	return st
}

// Resources returns the current resource allocation.
func (e *Engine) Resources() ResourceAllocation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resources
}

// #endregion views

// #region manual

// MakeDecision builds and immediately executes a single decision of the
// given kind, bypassing the autonomy gate and the confidence threshold.
func (e *Engine) MakeDecision(kind DecisionKind, params map[string]any) (Decision, error) {
	if !kind.IsValid() {
		return Decision{}, fmt.Errorf("unknown decision kind %q", kind)
	}
	d := newDecision(kind, PriorityHigh, "Manually requested decision", cloneMap(params), 0, 1.0)
	e.journal(EventDecision, decisionPayload(d))

	e.execute(d)

	e.mu.Lock()
	e.history = append(e.history, d)
	e.mu.Unlock()
	e.journalResult(d)
	return snapshotDecision(d), nil
}

// #endregion manual

// #region helpers

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func snapshotGoal(g *Goal) Goal {
	out := *g
	out.Dependencies = append([]string(nil), g.Dependencies...)
	return out
}

func snapshotDecision(d *Decision) Decision {
	out := *d
	out.Params = cloneMap(d.Params)
	out.Result = cloneMap(d.Result)
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortDecisions(ds []Decision) {
	sort.SliceStable(ds, func(i, j int) bool {
		if ds[i].Priority != ds[j].Priority {
			return ds[i].Priority < ds[j].Priority
		}
		return ds[i].CreatedAt.Before(ds[j].CreatedAt)
	})
}

// #endregion helpers
