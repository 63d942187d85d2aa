package assess

import "go.uber.org/zap"

// #region recommend

// Recommend derives concrete tuning advice from an assessment and
// journals it.
func (e *Engine) Recommend(a Assessment) Recommendations {
	recs := Recommendations{
		LearningRate:        RecommendLearningRate(a.RecommendedStrategy),
		FocusAreas:          recommendFocusAreas(a),
		ExplorationStrategy: recommendExploration(a.ConfidenceScore),
		Memory:              recommendMemoryPolicy(a),
		EvaluationFrequency: RecommendEvalFrequency(a),
	}
	if err := e.sink.AppendEvent(EventRecommendation, recommendationsPayload(recs)); err != nil {
		e.log.Warn("journal recommendations", zap.Error(err))
	}
	return recs
}

// RecommendLearningRate maps a strategy to a learning-rate adjustment.
// Aggressive doubles the base rate with fast decay; conservative halves
// it with slow decay.
func RecommendLearningRate(s Strategy) LearningRate {
	const base = 0.001
	switch s {
	case Aggressive:
		return LearningRate{Base: base, Multiplier: 2.0, Effective: base * 2.0, Decay: 0.9}
	case Conservative:
		return LearningRate{Base: base, Multiplier: 0.5, Effective: base * 0.5, Decay: 0.99}
	default:
		return LearningRate{Base: base, Multiplier: 1.0, Effective: base, Decay: 0.95}
	}
}

// RecommendEvalFrequency returns how many steps to run between
// evaluations: tighter when uncertain, looser when confident.
func RecommendEvalFrequency(a Assessment) int {
	switch {
	case a.UncertaintyEstimate > 0.7:
		return 50
	case a.ConfidenceScore > 0.8:
		return 200
	default:
		return 100
	}
}

func recommendFocusAreas(a Assessment) []string {
	var areas []string
	for i, gap := range a.KnowledgeGaps {
		if i == 3 {
			break
		}
		areas = append(areas, gap)
	}
	if a.ConfidenceScore < 0.5 {
		areas = append(areas, "fundamental_concepts")
	}
	if a.UncertaintyEstimate > 0.7 {
		areas = append(areas, "uncertainty_reduction")
	}
	return areas
}

func recommendExploration(confidence float64) string {
	switch {
	case confidence < 0.4:
		return "high_exploration"
	case confidence > 0.8:
		return "exploitation_focused"
	default:
		return "balanced_exploration"
	}
}

func recommendMemoryPolicy(a Assessment) MemoryPolicy {
	p := MemoryPolicy{Retention: "medium", Compression: "medium", UpdateFrequency: "normal"}
	if a.ConfidenceScore > 0.7 {
		p.Retention = "high"
	}
	if a.UncertaintyEstimate > 0.5 {
		p.Compression = "low"
	}
	if a.RecommendedStrategy == Aggressive {
		p.UpdateFrequency = "high"
	}
	return p
}

func recommendationsPayload(r Recommendations) map[string]any {
	return map[string]any{
		"learning_rate": map[string]any{
			"base_rate":    r.LearningRate.Effective,
			"decay_factor": r.LearningRate.Decay,
		},
		"focus_areas":          r.FocusAreas,
		"exploration_strategy": r.ExplorationStrategy,
		"memory_management": map[string]any{
			"retention_priority": r.Memory.Retention,
			"compression_level":  r.Memory.Compression,
			"update_frequency":   r.Memory.UpdateFrequency,
		},
		"evaluation_frequency": r.EvaluationFrequency,
	}
}

// #endregion recommend
