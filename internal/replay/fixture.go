package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/metislabs/metis/internal/decide"
	"github.com/metislabs/metis/internal/journal"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture: a goal
// setup plus batches of recorded metrics, each batch standing in for one
// monitor tick.
type Fixture struct {
	Description string         `json:"description"`
	Autonomous  bool           `json:"autonomous"`
	Goals       []FixtureGoal  `json:"goals,omitempty"`
	Batches     []FixtureBatch `json:"batches"`
}

// FixtureGoal mirrors decide.GoalSpec with JSON tags.
type FixtureGoal struct {
	Description  string   `json:"description"`
	Priority     string   `json:"priority"`
	TargetMetric string   `json:"target_metric"`
	TargetValue  float64  `json:"target_value"`
	InitialValue float64  `json:"initial_value"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// FixtureBatch is one tick's worth of metrics.
type FixtureBatch struct {
	Label   string          `json:"label"`
	Metrics []FixtureMetric `json:"metrics"`
}

// FixtureMetric mirrors journal.Metric with JSON tags. Timestamps are
// assigned at replay time so window queries behave as they would live.
type FixtureMetric struct {
	Name    string            `json:"name"`
	Value   float64           `json:"value"`
	Context map[string]string `json:"context,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// ToSpec converts a FixtureGoal to a domain GoalSpec.
func (g *FixtureGoal) ToSpec() (decide.GoalSpec, error) {
	priority, ok := decide.ParsePriority(g.Priority)
	if !ok {
		return decide.GoalSpec{}, fmt.Errorf("goal %q: unknown priority %q", g.Description, g.Priority)
	}
	return decide.GoalSpec{
		Description:  g.Description,
		Priority:     priority,
		TargetMetric: g.TargetMetric,
		TargetValue:  g.TargetValue,
		InitialValue: g.InitialValue,
		Dependencies: g.Dependencies,
	}, nil
}

// ToMetric converts a FixtureMetric to a domain Metric stamped now.
func (m *FixtureMetric) ToMetric() journal.Metric {
	return journal.Metric{
		Name:      m.Name,
		Value:     m.Value,
		Timestamp: time.Now().UTC(),
		Context:   m.Context,
	}
}

// #endregion fixture-loader
