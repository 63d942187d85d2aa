package decide

import (
	"strings"
	"time"

	"github.com/metislabs/metis/internal/assess"
	"github.com/metislabs/metis/internal/journal"
)

// #region priority

// Priority orders decisions and goals. Lower values execute first.
type Priority int

const (
	PriorityCritical Priority = 1
	PriorityHigh     Priority = 2
	PriorityMedium   Priority = 3
	PriorityLow      Priority = 4
)

// IsValid reports whether p is within the known range.
func (p Priority) IsValid() bool {
	return p >= PriorityCritical && p <= PriorityLow
}

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	}
	return "unknown"
}

// ParsePriority maps a priority name to its value.
func ParsePriority(s string) (Priority, bool) {
	switch strings.ToLower(s) {
	case "critical":
		return PriorityCritical, true
	case "high":
		return PriorityHigh, true
	case "medium":
		return PriorityMedium, true
	case "low":
		return PriorityLow, true
	}
	return 0, false
}

// #endregion priority

// #region decision

// DecisionKind names the action a decision performs.
type DecisionKind string

const (
	KindParameterAdjustment DecisionKind = "parameter_adjustment"
	KindStrategyChange      DecisionKind = "strategy_change"
	KindResourceAllocation  DecisionKind = "resource_allocation"
	KindGoalPrioritization  DecisionKind = "goal_prioritization"
	// Known kinds without a registered handler; they complete with a
	// not_implemented result.
	KindTrainingSchedule  DecisionKind = "training_schedule"
	KindEvaluationTrigger DecisionKind = "evaluation_trigger"
)

// IsValid reports whether k is a known decision kind.
func (k DecisionKind) IsValid() bool {
	switch k {
	case KindParameterAdjustment, KindStrategyChange, KindResourceAllocation,
		KindGoalPrioritization, KindTrainingSchedule, KindEvaluationTrigger:
		return true
	}
	return false
}

// DecisionStatus tracks a decision through its lifecycle. The only legal
// transitions are pending -> executing -> completed or failed.
type DecisionStatus string

const (
	StatusPending   DecisionStatus = "pending"
	StatusExecuting DecisionStatus = "executing"
	StatusCompleted DecisionStatus = "completed"
	StatusFailed    DecisionStatus = "failed"
)

// Decision is one autonomous action candidate.
type Decision struct {
	ID             string
	Kind           DecisionKind
	Description    string
	Priority       Priority
	Confidence     float64
	ExpectedImpact float64
	Params         map[string]any
	Status         DecisionStatus
	CreatedAt      time.Time
	ExecutedAt     *time.Time
	CompletedAt    *time.Time
	Result         map[string]any
	FailureReason  string
}

// HandlerFunc executes one decision and returns its result payload.
type HandlerFunc func(d *Decision) (map[string]any, error)

// #endregion decision

// #region goal

// Goal is a target the engine steers toward. Progress is measured from
// the value at the previous update toward the target.
type Goal struct {
	ID           string
	Description  string
	Priority     Priority
	CreatedAt    time.Time
	Deadline     *time.Time
	TargetMetric string
	TargetValue  float64
	CurrentValue float64
	Progress     float64
	Active       bool
	Dependencies []string // goal ids promoted when this goal completes
}

// GoalSpec is the caller-facing shape for AddGoal.
type GoalSpec struct {
	Description  string
	Priority     Priority
	TargetMetric string
	TargetValue  float64
	InitialValue float64
	Deadline     *time.Time
	Dependencies []string
}

// #endregion goal

// #region resources

// ResourceAllocation is the single live resource record the engine owns.
type ResourceAllocation struct {
	ComputeBudget       float64
	MemoryBudget        float64
	EvaluationFrequency int
	ExplorationRatio    float64
}

// DefaultResources returns the baseline allocation.
func DefaultResources() ResourceAllocation {
	return ResourceAllocation{
		ComputeBudget:       1.0,
		MemoryBudget:        1.0,
		EvaluationFrequency: 100,
		ExplorationRatio:    0.3,
	}
}

// Status summarizes the engine for inspection surfaces.
type Status struct {
	Autonomous       bool
	PendingDecisions int
	TotalDecisions   int
	RecentDecisions  int // executed within the last day
	ActiveGoals      int
	CompletedGoals   int
	AvgGoalProgress  float64
	Resources        ResourceAllocation
}

// #endregion resources

// #region collaborators

// Assessor produces self-assessments and exposes the score history the
// synthesis rules read.
type Assessor interface {
	Assess() (assess.Assessment, error)
	Scores() []float64
}

// MetricStore provides the current metric snapshot and records decision
// side effects as metrics.
type MetricStore interface {
	Snapshot() (map[string]float64, error)
	RecordMetric(m journal.Metric) error
}

// Sink receives append-only journal events.
type Sink interface {
	AppendEvent(kind string, payload map[string]any) error
}

// Journal event kinds emitted by the decision engine.
const (
	EventDecision       = "decision"
	EventDecisionResult = "decision_result"
	EventStrategyChange = "strategy_change"
	EventGoalAdded      = "goal_added"
	EventGoalProgress   = "goal_progress_update"
	EventGoalCompleted  = "goal_completed"
	EventAutonomy       = "autonomy_mode"
)

// #endregion collaborators

// #region config

// Config holds decision engine tunables.
type Config struct {
	MaxConcurrent       int     // decisions executed per cycle
	Workers             int     // executor pool size
	ConfidenceThreshold float64 // minimum confidence to execute
	PlateauSlope        float64 // |trailing slope| below this is a plateau
	Autonomous          bool    // start in autonomous mode
}

// DefaultConfig returns the standard decision engine tunables.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:       3,
		Workers:             2,
		ConfidenceThreshold: 0.6,
		PlateauSlope:        0.001,
	}
}

// #endregion config
