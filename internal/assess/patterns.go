package assess

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// #region detect

// DetectPatterns analyzes the trailing metric window for recurring
// structure: sustained trends, cycles, and anomaly clusters. Every
// detected pattern is journaled.
func (e *Engine) DetectPatterns() ([]Pattern, error) {
	window, err := e.metrics.QueryMetrics(e.cfg.GapWindow)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	if len(window) < e.cfg.MinPatternMetrics {
		e.log.Debug("insufficient data for pattern analysis", zap.Int("metrics", len(window)))
		return nil, nil
	}

	groups := groupByName(window)
	var patterns []Pattern
	for _, name := range sortedKeys(groups) {
		group := groups[name]
		if len(group) < e.cfg.MinGroupSamples {
			continue
		}
		values := valuesOf(group)
		last := group[len(group)-1].Timestamp

		if p, ok := detectTrend(name, values, last, e.cfg); ok {
			patterns = append(patterns, p)
		}
		if p, ok := detectCycle(name, values, last, e.cfg); ok {
			patterns = append(patterns, p)
		}
		if p, ok := detectAnomalies(name, values, last, e.cfg); ok {
			patterns = append(patterns, p)
		}
	}

	for _, p := range patterns {
		if err := e.sink.AppendEvent(EventPattern, patternPayload(p)); err != nil {
			e.log.Warn("journal pattern", zap.Error(err))
		}
	}
	e.log.Info("pattern analysis complete", zap.Int("patterns", len(patterns)))
	return patterns, nil
}

// #endregion detect

// #region detectors

// detectTrend flags a sustained slope in the value series.
func detectTrend(name string, values []float64, last time.Time, cfg Config) (Pattern, bool) {
	if len(values) < 5 {
		return Pattern{}, false
	}
	slope := linearSlope(values)
	if math.Abs(slope) <= cfg.TrendSlope {
		return Pattern{}, false
	}
	kind, direction := PatternIncreasingTrend, "improving"
	if slope < 0 {
		kind, direction = PatternDecreasingTrend, "declining"
	}
	strength := math.Min(1, math.Abs(slope)*10)
	return Pattern{
		Kind:         kind,
		Metric:       name,
		Description:  fmt.Sprintf("%s %s (slope %.4f)", name, direction, slope),
		Strength:     strength,
		Impact:       strength,
		Frequency:    len(values),
		LastObserved: last,
	}, true
}

// detectCycle finds the lag with the strongest autocorrelation. Constant
// slices produce no correlation and are skipped.
func detectCycle(name string, values []float64, last time.Time, cfg Config) (Pattern, bool) {
	if len(values) < 10 {
		return Pattern{}, false
	}
	maxLag := len(values) / 2
	if maxLag > 10 {
		maxLag = 10
	}
	bestLag, bestCorr := 0, 0.0
	for lag := 1; lag < maxLag; lag++ {
		if r, ok := autocorrelation(values, lag); ok && math.Abs(r) > bestCorr {
			bestCorr = math.Abs(r)
			bestLag = lag
		}
	}
	if bestLag == 0 || bestCorr <= cfg.CycleCorrelation {
		return Pattern{}, false
	}
	return Pattern{
		Kind:         PatternCyclical,
		Metric:       name,
		Description:  fmt.Sprintf("%s repeats every %d samples", name, bestLag),
		Strength:     bestCorr,
		Impact:       bestCorr,
		Frequency:    len(values) / bestLag,
		LastObserved: last,
	}, true
}

// detectAnomalies flags a cluster of two or more outliers beyond the
// z-score threshold.
func detectAnomalies(name string, values []float64, last time.Time, cfg Config) (Pattern, bool) {
	if len(values) < 5 {
		return Pattern{}, false
	}
	m := mean(values)
	sd := stddev(values)
	if sd == 0 {
		return Pattern{}, false
	}
	outliers := 0
	var zSum float64
	for _, v := range values {
		if z := math.Abs(v-m) / sd; z > cfg.AnomalyZ {
			outliers++
			zSum += z
		}
	}
	if outliers < 2 {
		return Pattern{}, false
	}
	avgZ := zSum / float64(outliers)
	return Pattern{
		Kind:         PatternAnomalyCluster,
		Metric:       name,
		Description:  fmt.Sprintf("%d outliers beyond %.1f sigma in %s", outliers, cfg.AnomalyZ, name),
		Strength:     math.Min(1, avgZ/3),
		Impact:       float64(outliers) / float64(len(values)),
		Frequency:    outliers,
		LastObserved: last,
	}, true
}

func patternPayload(p Pattern) map[string]any {
	return map[string]any{
		"pattern_type":  p.Kind,
		"metric_name":   p.Metric,
		"description":   p.Description,
		"strength":      p.Strength,
		"impact":        p.Impact,
		"frequency":     p.Frequency,
		"last_observed": p.LastObserved.Format(time.RFC3339Nano),
	}
}

// #endregion detectors
