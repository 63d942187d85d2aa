package journal

import "time"

// #region types

// Metric is a single named measurement with optional context tags.
type Metric struct {
	Name      string
	Value     float64
	Timestamp time.Time
	Context   map[string]string
}

// Event is one append-only journal entry. IDs are ULIDs, so ordering by
// ID matches ordering by creation time.
type Event struct {
	ID        string
	Kind      string
	CreatedAt time.Time
	Payload   map[string]any
}

// Stats summarizes the journal database contents.
type Stats struct {
	Events     int
	Metrics    int
	EventKinds map[string]int
	DBBytes    int64
}

// #endregion types
