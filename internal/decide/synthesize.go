package decide

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/metislabs/metis/internal/assess"
)

// #region cycle

// RunCycle runs one autonomous pass: assess, synthesize decision
// candidates, queue them, and execute the eligible batch. It returns the
// synthesized decisions with their post-execution statuses. When
// autonomous mode is off it returns nil without assessing.
func (e *Engine) RunCycle() ([]Decision, error) {
	if !e.Autonomous() {
		return nil, nil
	}
	a, err := e.assessor.Assess()
	if err != nil {
		return nil, fmt.Errorf("assess: %w", err)
	}
	return e.RunCycleWith(a)
}

// RunCycleWith is RunCycle for callers that already assessed this tick.
// Reusing the tick's assessment keeps the metric window from being
// folded into the sample history twice.
func (e *Engine) RunCycleWith(a assess.Assessment) ([]Decision, error) {
	if !e.Autonomous() {
		return nil, nil
	}

	// 1. The current metric snapshot alongside the given assessment.
	current, err := e.metrics.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("metric snapshot: %w", err)
	}

	// 2. Synthesize candidates and queue them.
	candidates := e.synthesize(a, e.assessor.Scores(), current)
	e.mu.Lock()
	e.pending = append(e.pending, candidates...)
	e.mu.Unlock()
	for _, d := range candidates {
		e.journal(EventDecision, decisionPayload(d))
	}

	// 3. Execute what clears the priority and confidence gates.
	executed := e.runBatch()

	e.log.Info("decision cycle",
		zap.Float64("confidence", a.ConfidenceScore),
		zap.Int("synthesized", len(candidates)),
		zap.Int("executed", len(executed)))

	e.mu.Lock()
	out := make([]Decision, len(candidates))
	for i, d := range candidates {
		out[i] = snapshotDecision(d)
	}
	e.mu.Unlock()
	return out, nil
}

// synthesize applies the decision rules in a fixed order.
func (e *Engine) synthesize(a assess.Assessment, scores []float64, current map[string]float64) []*Decision {
	var out []*Decision
	out = append(out, e.parameterDecisions(a, current)...)
	out = append(out, e.strategyDecisions(a, scores)...)
	out = append(out, e.resourceDecisions(a)...)
	out = append(out, e.goalDecisions(current)...)
	return out
}

// #endregion cycle

// #region rules

// parameterDecisions reacts to weak assessments and unstable training.
func (e *Engine) parameterDecisions(a assess.Assessment, current map[string]float64) []*Decision {
	var out []*Decision
	if a.ConfidenceScore < 0.4 || a.UncertaintyEstimate > 0.7 {
		lr := assess.RecommendLearningRate(a.RecommendedStrategy)
		out = append(out, newDecision(KindParameterAdjustment, PriorityHigh,
			fmt.Sprintf("Low confidence (%.2f) or high uncertainty (%.2f)", a.ConfidenceScore, a.UncertaintyEstimate),
			map[string]any{
				"learning_rate":       lr.Effective,
				"learning_rate_decay": lr.Decay,
			},
			0.3, a.ConfidenceScore))
	}
	if stability, ok := current["training_stability"]; ok && stability < 0.5 {
		multiplier := 1.2
		if stability < 0.3 {
			multiplier = 1.5
		}
		out = append(out, newDecision(KindParameterAdjustment, PriorityMedium,
			fmt.Sprintf("Training instability detected: %.2f", stability),
			map[string]any{"batch_size_multiplier": multiplier},
			0.2, 0.7))
	}
	return out
}

// strategyDecisions switches course on plateaus and follows the
// assessment's recommendation whenever it departs from balanced.
func (e *Engine) strategyDecisions(a assess.Assessment, scores []float64) []*Decision {
	var out []*Decision
	if assess.Plateau(scores, e.cfg.PlateauSlope) {
		out = append(out, newDecision(KindStrategyChange, PriorityHigh,
			"Performance plateau detected; switching to aggressive exploration",
			map[string]any{"new_strategy": "aggressive_exploration"},
			0.4, 0.8))
	}
	if a.RecommendedStrategy != assess.Balanced {
		out = append(out, newDecision(KindStrategyChange, PriorityMedium,
			fmt.Sprintf("Adopting recommended strategy: %s", a.RecommendedStrategy),
			map[string]any{"recommended_strategy": string(a.RecommendedStrategy)},
			0.25, a.ConfidenceScore))
	}
	return out
}

// resourceDecisions retunes evaluation frequency from the assessment.
// Uncertainty outranks confidence, halving the interval down to 50; high
// confidence doubles it up to 200.
func (e *Engine) resourceDecisions(a assess.Assessment) []*Decision {
	e.mu.Lock()
	freq := e.resources.EvaluationFrequency
	e.mu.Unlock()

	switch {
	case a.UncertaintyEstimate > 0.7:
		return []*Decision{newDecision(KindResourceAllocation, PriorityMedium,
			fmt.Sprintf("High uncertainty (%.2f) warrants more frequent evaluation", a.UncertaintyEstimate),
			map[string]any{"evaluation_frequency": max(50, freq/2)},
			0.15, 0.7)}
	case a.ConfidenceScore > 0.8:
		return []*Decision{newDecision(KindResourceAllocation, PriorityLow,
			fmt.Sprintf("High confidence (%.2f) allows less frequent evaluation", a.ConfidenceScore),
			map[string]any{"evaluation_frequency": min(200, freq*2)},
			0.1, 0.8)}
	}
	return nil
}

// goalDecisions refreshes goal progress from the metric snapshot and
// proposes a reprioritization when two or more goals remain active.
func (e *Engine) goalDecisions(current map[string]float64) []*Decision {
	for _, g := range e.Goals() {
		if !g.Active || g.TargetMetric == "" {
			continue
		}
		if v, ok := current[g.TargetMetric]; ok {
			e.UpdateGoalProgress(g.ID, v)
		}
	}

	ranked := e.rankGoals(time.Now())
	if len(ranked) < 2 {
		return nil
	}
	order := make([]string, len(ranked))
	for i, g := range ranked {
		order[i] = g.ID
	}
	return []*Decision{newDecision(KindGoalPrioritization, PriorityMedium,
		fmt.Sprintf("Reprioritizing %d active goals", len(order)),
		map[string]any{"goal_order": order},
		0.2, 0.6)}
}

// rankGoals scores active goals by priority weight, remaining work, and
// deadline urgency, highest score first. Ties keep creation order.
func (e *Engine) rankGoals(now time.Time) []Goal {
	type scored struct {
		goal  Goal
		score float64
	}
	e.mu.Lock()
	ranked := make([]scored, 0, len(e.goals))
	for _, g := range e.goals {
		if !g.Active {
			continue
		}
		urgency := 1.0
		if g.Deadline != nil {
			daysLeft := int(g.Deadline.Sub(now).Hours() / 24)
			if daysLeft < 1 {
				daysLeft = 1
			}
			urgency = math.Max(0.1, 1.0/float64(daysLeft))
		}
		score := 0.3*float64(g.Priority) + 0.4*(1-g.Progress) + 0.3*urgency
		ranked = append(ranked, scored{snapshotGoal(g), score})
	}
	e.mu.Unlock()

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		if !ranked[i].goal.CreatedAt.Equal(ranked[j].goal.CreatedAt) {
			return ranked[i].goal.CreatedAt.Before(ranked[j].goal.CreatedAt)
		}
		return ranked[i].goal.ID < ranked[j].goal.ID
	})
	out := make([]Goal, len(ranked))
	for i, s := range ranked {
		out[i] = s.goal
	}
	return out
}

// #endregion rules

// #region construct

func newDecision(kind DecisionKind, priority Priority, description string, params map[string]any, impact, confidence float64) *Decision {
	return &Decision{
		ID:             uuid.New().String(),
		Kind:           kind,
		Description:    description,
		Priority:       priority,
		Confidence:     confidence,
		ExpectedImpact: impact,
		Params:         params,
		Status:         StatusPending,
		CreatedAt:      time.Now().UTC(),
	}
}

func decisionPayload(d *Decision) map[string]any {
	return map[string]any{
		"decision_id":     d.ID,
		"decision_type":   string(d.Kind),
		"priority":        int(d.Priority),
		"description":     d.Description,
		"parameters":      d.Params,
		"expected_impact": d.ExpectedImpact,
		"confidence":      d.Confidence,
	}
}

// #endregion construct
