package assess

import (
	"time"

	"github.com/metislabs/metis/internal/journal"
)

// #region strategy

// Strategy is a learning strategy recommendation.
type Strategy string

const (
	Conservative   Strategy = "conservative"
	Balanced       Strategy = "balanced"
	Aggressive     Strategy = "aggressive"
	Adaptive       Strategy = "adaptive"
	ActiveLearning Strategy = "active_learning"
)

// IsValid reports whether s is one of the known strategies.
func (s Strategy) IsValid() bool {
	switch s {
	case Conservative, Balanced, Aggressive, Adaptive, ActiveLearning:
		return true
	}
	return false
}

// #endregion strategy

// #region assessment

// Assessment is the result of one self-assessment pass. All scores are
// in [0,1].
type Assessment struct {
	ID                   string
	CreatedAt            time.Time
	ConfidenceScore      float64
	PredictedPerformance float64
	UncertaintyEstimate  float64
	KnowledgeGaps        []string
	RecommendedStrategy  Strategy
	Samples              int // history length the scores were computed over
}

// Sample is one normalized performance observation.
type Sample struct {
	Score float64
	At    time.Time
}

// #endregion assessment

// #region pattern

// Pattern kinds produced by DetectPatterns.
const (
	PatternIncreasingTrend = "increasing_trend"
	PatternDecreasingTrend = "decreasing_trend"
	PatternCyclical        = "cyclical_pattern"
	PatternAnomalyCluster  = "anomaly_cluster"
)

// Pattern is a recurring structure found in historical metrics.
type Pattern struct {
	Kind         string
	Metric       string
	Description  string
	Strength     float64
	Impact       float64
	Frequency    int
	LastObserved time.Time
}

// #endregion pattern

// #region recommendations

// LearningRate is a recommended learning-rate adjustment.
type LearningRate struct {
	Base       float64
	Multiplier float64
	Effective  float64
	Decay      float64
}

// MemoryPolicy describes recommended memory handling.
type MemoryPolicy struct {
	Retention       string // "high" | "medium"
	Compression     string // "low" | "medium"
	UpdateFrequency string // "high" | "normal"
}

// Recommendations bundles concrete tuning advice derived from an assessment.
type Recommendations struct {
	LearningRate        LearningRate
	FocusAreas          []string
	ExplorationStrategy string
	Memory              MemoryPolicy
	EvaluationFrequency int
}

// #endregion recommendations

// #region collaborators

// MetricSource provides time-windowed metric history.
type MetricSource interface {
	QueryMetrics(window time.Duration) ([]journal.Metric, error)
}

// Sink receives append-only journal events.
type Sink interface {
	AppendEvent(kind string, payload map[string]any) error
}

// Journal event kinds emitted by the assessment engine.
const (
	EventAssessment     = "self_assessment"
	EventPattern        = "performance_pattern"
	EventRecommendation = "learning_recommendation"
)

// #endregion collaborators

// #region config

// Config holds assessment thresholds and windows.
type Config struct {
	MetricWindow      time.Duration // window folded into one sample per Assess
	GapWindow         time.Duration // lookback for gap and pattern analysis
	LowPerformance    float64       // current metric below this is a gap
	PoorAverage       float64       // historical group mean below this is a gap
	MinGroupSamples   int           // samples required per metric group
	MinPatternMetrics int           // total metrics required for pattern analysis
	TrendSlope        float64       // |slope| above this is a trend
	CycleCorrelation  float64       // |autocorrelation| above this is a cycle
	AnomalyZ          float64       // z-score above this is an outlier
	PlateauSlope      float64       // |trailing slope| below this is a plateau
	VolatilityVar     float64       // trailing variance above this is volatile
	MaxHistory        int           // sample history cap, 0 = unbounded
}

// DefaultConfig returns the standard assessment thresholds.
func DefaultConfig() Config {
	return Config{
		MetricWindow:      time.Hour,
		GapWindow:         7 * 24 * time.Hour,
		LowPerformance:    0.6,
		PoorAverage:       0.5,
		MinGroupSamples:   5,
		MinPatternMetrics: 10,
		TrendSlope:        0.01,
		CycleCorrelation:  0.6,
		AnomalyZ:          2.0,
		PlateauSlope:      0.001,
		VolatilityVar:     0.1,
		MaxHistory:        1000,
	}
}

// #endregion config
