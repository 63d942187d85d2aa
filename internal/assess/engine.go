package assess

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// #region engine

// Engine computes self-assessments over a metric source and journals the
// results. One mutex guards the sample history.
type Engine struct {
	cfg     Config
	metrics MetricSource
	sink    Sink
	log     *zap.Logger

	mu      sync.Mutex
	history []Sample
}

// New creates an assessment engine. A nil logger disables logging.
func New(cfg Config, metrics MetricSource, sink Sink, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{cfg: cfg, metrics: metrics, sink: sink, log: log}
}

// #endregion engine

// #region assess

// Assess runs one full self-assessment pass: fold the recent metric
// window into the sample history, score it, and journal the result.
func (e *Engine) Assess() (Assessment, error) {
	// 1. Fold the recent metric window into one normalized sample.
	window, err := e.metrics.QueryMetrics(e.cfg.MetricWindow)
	if err != nil {
		return Assessment{}, fmt.Errorf("query metrics: %w", err)
	}
	current := latestByName(window)

	e.mu.Lock()
	if len(current) > 0 {
		e.history = append(e.history, Sample{Score: scoreFromMetrics(current), At: time.Now().UTC()})
		if e.cfg.MaxHistory > 0 && len(e.history) > e.cfg.MaxHistory {
			e.history = e.history[len(e.history)-e.cfg.MaxHistory:]
		}
	}
	scores := e.scoresLocked()
	e.mu.Unlock()

	// 2. Score the history.
	confidence := Confidence(scores)
	predicted := PredictPerformance(scores)
	uncertainty := Uncertainty(scores)

	// 3. Gap analysis over current metrics plus the trailing window.
	gaps := e.KnowledgeGaps(current)

	// 4. Strategy selection.
	strategy := RecommendStrategy(scores, confidence, uncertainty, e.cfg)

	a := Assessment{
		ID:                   uuid.New().String(),
		CreatedAt:            time.Now().UTC(),
		ConfidenceScore:      confidence,
		PredictedPerformance: predicted,
		UncertaintyEstimate:  uncertainty,
		KnowledgeGaps:        gaps,
		RecommendedStrategy:  strategy,
		Samples:              len(scores),
	}

	// 5. Journal; append failures are logged and swallowed.
	if err := e.sink.AppendEvent(EventAssessment, assessmentPayload(a)); err != nil {
		e.log.Warn("journal assessment", zap.Error(err))
	}
	e.log.Info("assessment complete",
		zap.Float64("confidence", confidence),
		zap.Float64("predicted", predicted),
		zap.Float64("uncertainty", uncertainty),
		zap.String("strategy", string(strategy)),
		zap.Int("samples", len(scores)))
	return a, nil
}

// Scores returns a copy of the normalized performance score history.
func (e *Engine) Scores() []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scoresLocked()
}

// History returns a copy of the sample history.
func (e *Engine) History() []Sample {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Sample, len(e.history))
	copy(out, e.history)
	return out
}

func (e *Engine) scoresLocked() []float64 {
	scores := make([]float64, len(e.history))
	for i, s := range e.history {
		scores[i] = s.Score
	}
	return scores
}

func assessmentPayload(a Assessment) map[string]any {
	return map[string]any{
		"assessment_id":         a.ID,
		"confidence_score":      a.ConfidenceScore,
		"predicted_performance": a.PredictedPerformance,
		"uncertainty_estimate":  a.UncertaintyEstimate,
		"knowledge_gaps":        a.KnowledgeGaps,
		"recommended_strategy":  string(a.RecommendedStrategy),
		"samples":               a.Samples,
	}
}

// #endregion assess

// #region scoring

// Confidence scores trust in current capability from the sample history:
// 0.4 weight on the latest sample, 0.3 on consistency (inverse deviation),
// 0.3 on the fitted trend. Empty history is neutral 0.5.
func Confidence(scores []float64) float64 {
	if len(scores) == 0 {
		return 0.5
	}
	consistency := math.Max(0, 1-stddev(scores))
	trend := 0.5
	if len(scores) >= 5 {
		trend = clamp01(0.5 + linearSlope(scores))
	}
	last := clamp01(scores[len(scores)-1])
	return clamp01(0.4*last + 0.3*consistency + 0.3*trend)
}

// PredictPerformance extrapolates the fitted trend one step past the
// history. Short histories fall back to the mean of the last samples;
// empty history is neutral 0.5.
func PredictPerformance(scores []float64) float64 {
	if len(scores) == 0 {
		return 0.5
	}
	if len(scores) >= 3 {
		slope, intercept := linearFit(scores)
		return clamp01(slope*float64(len(scores)) + intercept)
	}
	return clamp01(mean(tail(scores, 5)))
}

// Uncertainty combines sample variance with the mean rolling prediction
// error (trailing 5-sample mean as predictor, needs 10+ samples). Empty
// history is maximal 1.0.
func Uncertainty(scores []float64) float64 {
	if len(scores) == 0 {
		return 1.0
	}
	v := variance(scores)
	var rolling float64
	if len(scores) >= 10 {
		var errs []float64
		for i := 5; i < len(scores); i++ {
			predicted := mean(scores[i-5 : i])
			errs = append(errs, math.Abs(scores[i]-predicted))
		}
		rolling = mean(errs)
	}
	return math.Min(1, v+rolling)
}

// RecommendStrategy picks a learning strategy. Rules are ordered: strong
// confidence wins conservative, weak confidence wins aggressive, then a
// plateau forces aggressive and volatility forces conservative.
func RecommendStrategy(scores []float64, confidence, uncertainty float64, cfg Config) Strategy {
	if confidence > 0.8 && uncertainty < 0.2 {
		return Conservative
	}
	if confidence < 0.4 && uncertainty > 0.6 {
		return Aggressive
	}
	if Plateau(scores, cfg.PlateauSlope) {
		return Aggressive
	}
	if len(scores) > 5 && variance(tail(scores, 10)) > cfg.VolatilityVar {
		return Conservative
	}
	return Balanced
}

// Plateau reports whether the last ten scores fit a flat trend. Fewer
// than ten samples never count as a plateau.
func Plateau(scores []float64, threshold float64) bool {
	return len(scores) >= 10 && math.Abs(linearSlope(tail(scores, 10))) < threshold
}

// #endregion scoring

// #region gaps

// KnowledgeGaps lists weak areas: current metrics below the low-performance
// threshold, plus metric groups in the trailing window whose average stays
// poor. Output order is deterministic (names sorted within each pass).
func (e *Engine) KnowledgeGaps(current map[string]float64) []string {
	var gaps []string

	for _, name := range sortedKeys(current) {
		if v := current[name]; v < e.cfg.LowPerformance {
			gaps = append(gaps, fmt.Sprintf("Low performance in %s: %.3f", name, v))
		}
	}

	window, err := e.metrics.QueryMetrics(e.cfg.GapWindow)
	if err != nil {
		e.log.Warn("query gap window", zap.Error(err))
		return gaps
	}
	groups := groupByName(window)
	for _, name := range sortedKeys(groups) {
		values := valuesOf(groups[name])
		if len(values) < e.cfg.MinGroupSamples {
			continue
		}
		if avg := mean(values); avg < e.cfg.PoorAverage {
			gaps = append(gaps, fmt.Sprintf("Consistently poor %s: avg %.3f", name, avg))
		}
	}
	return gaps
}

// #endregion gaps
