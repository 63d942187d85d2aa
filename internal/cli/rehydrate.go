package cli

import (
	"time"

	"github.com/metislabs/metis/internal/decide"
	"github.com/metislabs/metis/internal/journal"
)

// #region rehydrate

// rehydrate folds journaled goal and autonomy events back into a fresh
// decision engine so one-shot commands see the state earlier runs left
// behind. Resource allocation is not restored: it is a live tunable
// that resource decisions reapply each cycle.
func rehydrate(store *journal.Store, decider *decide.Engine) error {
	events, err := store.Events("", -1)
	if err != nil {
		return err
	}

	// Events arrive newest first; fold oldest first so later updates win.
	goals := make(map[string]*decide.Goal)
	order := []string{}
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		switch ev.Kind {
		case decide.EventGoalAdded:
			g := goalFromEvent(ev)
			if g == nil {
				continue
			}
			if _, seen := goals[g.ID]; !seen {
				order = append(order, g.ID)
			}
			goals[g.ID] = g
		case decide.EventGoalProgress:
			id, _ := ev.Payload["goal_id"].(string)
			g, ok := goals[id]
			if !ok || !g.Active {
				continue
			}
			if v, ok := asFloat(ev.Payload["new_value"]); ok {
				g.CurrentValue = v
			}
			if p, ok := asFloat(ev.Payload["progress"]); ok {
				g.Progress = p
			}
		case decide.EventGoalCompleted:
			id, _ := ev.Payload["goal_id"].(string)
			g, ok := goals[id]
			if !ok {
				continue
			}
			g.Active = false
			// Completion promoted dependent goals; replay the boost.
			for _, depID := range g.Dependencies {
				if dep, exists := goals[depID]; exists && dep.Priority > decide.PriorityCritical {
					dep.Priority--
				}
			}
		case decide.EventDecisionResult:
			d := decisionFromEvent(ev)
			if d == nil {
				continue
			}
			decider.RestoreDecision(*d)
			// Completed goal-prioritization decisions rewrote priorities;
			// replay the ranks from the recorded order.
			if d.Kind != decide.KindGoalPrioritization || d.Status != decide.StatusCompleted {
				continue
			}
			order, ok := d.Result["new_order"].([]any)
			if !ok {
				continue
			}
			for i, raw := range order {
				id, ok := raw.(string)
				if !ok {
					continue
				}
				if g, exists := goals[id]; exists {
					g.Priority = decide.Priority(min(i+1, int(decide.PriorityLow)))
				}
			}
		case decide.EventAutonomy:
			if on, ok := ev.Payload["autonomous"].(bool); ok {
				decider.RestoreAutonomy(on)
			}
		}
	}

	for _, id := range order {
		decider.RestoreGoal(*goals[id])
	}
	return nil
}

// goalFromEvent rebuilds a goal from its goal_added payload. The event
// timestamp stands in for the creation time.
func goalFromEvent(ev journal.Event) *decide.Goal {
	id, _ := ev.Payload["goal_id"].(string)
	description, _ := ev.Payload["description"].(string)
	priority, ok := asFloat(ev.Payload["priority"])
	if id == "" || description == "" || !ok {
		return nil
	}
	g := &decide.Goal{
		ID:          id,
		Description: description,
		Priority:    decide.Priority(int(priority)),
		CreatedAt:   ev.CreatedAt,
		Active:      true,
	}
	g.TargetMetric, _ = ev.Payload["target_metric"].(string)
	g.TargetValue, _ = asFloat(ev.Payload["target_value"])
	g.CurrentValue, _ = asFloat(ev.Payload["initial_value"])
	if raw, ok := ev.Payload["deadline"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			g.Deadline = &t
		}
	}
	if deps, ok := ev.Payload["dependencies"].([]any); ok {
		for _, dep := range deps {
			if s, ok := dep.(string); ok {
				g.Dependencies = append(g.Dependencies, s)
			}
		}
	}
	if !g.Priority.IsValid() {
		return nil
	}
	return g
}

// decisionFromEvent rebuilds a settled decision from its decision_result
// payload. The event timestamp stands in for the creation time; pending
// decisions are per-process candidates and are not restored.
func decisionFromEvent(ev journal.Event) *decide.Decision {
	id, _ := ev.Payload["decision_id"].(string)
	kind, _ := ev.Payload["decision_type"].(string)
	status, _ := ev.Payload["status"].(string)
	if id == "" {
		return nil
	}
	d := &decide.Decision{
		ID:        id,
		Kind:      decide.DecisionKind(kind),
		Status:    decide.DecisionStatus(status),
		CreatedAt: ev.CreatedAt,
	}
	if !d.Kind.IsValid() {
		return nil
	}
	d.Description, _ = ev.Payload["description"].(string)
	if p, ok := asFloat(ev.Payload["priority"]); ok {
		d.Priority = decide.Priority(int(p))
	}
	d.Confidence, _ = asFloat(ev.Payload["confidence"])
	d.ExpectedImpact, _ = asFloat(ev.Payload["expected_impact"])
	d.Params, _ = ev.Payload["parameters"].(map[string]any)
	d.Result, _ = ev.Payload["result"].(map[string]any)
	d.FailureReason, _ = ev.Payload["error"].(string)
	return d
}

// asFloat coerces JSON-decoded numbers, which arrive as float64, plus
// the int values tests hand in directly.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

// #endregion rehydrate
