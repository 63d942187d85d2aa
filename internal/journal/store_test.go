package journal

import (
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndListEvents(t *testing.T) {
	s := tempStore(t)

	if err := s.AppendEvent("assessment", map[string]any{"confidence": 0.7}); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if err := s.AppendEvent("decision", map[string]any{"id": "d1"}); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if err := s.AppendEvent("decision", nil); err != nil {
		t.Fatalf("AppendEvent nil payload: %v", err)
	}

	all, err := s.Events("", 10)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d", len(all))
	}
	// Newest first.
	if all[0].Kind != "decision" || all[2].Kind != "assessment" {
		t.Fatalf("unexpected order: %s .. %s", all[0].Kind, all[2].Kind)
	}

	decisions, err := s.Events("decision", 10)
	if err != nil {
		t.Fatalf("Events filtered: %v", err)
	}
	if len(decisions) != 2 {
		t.Fatalf("expected 2 decision events, got %d", len(decisions))
	}
	if decisions[1].Payload["id"] != "d1" {
		t.Fatalf("expected payload id d1, got %v", decisions[1].Payload["id"])
	}
}

func TestEventIDsSortByTime(t *testing.T) {
	s := tempStore(t)

	for i := 0; i < 5; i++ {
		if err := s.AppendEvent("goal", nil); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}
	events, err := s.Events("", 5)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	for i := 1; i < len(events); i++ {
		if events[i-1].ID < events[i].ID {
			t.Fatalf("expected descending IDs, got %s before %s", events[i-1].ID, events[i].ID)
		}
	}
}

func TestRecordAndQueryMetrics(t *testing.T) {
	s := tempStore(t)
	now := time.Now().UTC()

	old := Metric{Name: "accuracy", Value: 0.4, Timestamp: now.Add(-2 * time.Hour)}
	recent := Metric{Name: "accuracy", Value: 0.8, Timestamp: now.Add(-5 * time.Minute)}
	tagged := Metric{
		Name: "loss", Value: 0.3, Timestamp: now.Add(-1 * time.Minute),
		Context: map[string]string{"phase": "eval"},
	}
	if err := s.RecordMetrics([]Metric{old, recent, tagged}); err != nil {
		t.Fatalf("RecordMetrics: %v", err)
	}

	within, err := s.QueryMetrics(time.Hour)
	if err != nil {
		t.Fatalf("QueryMetrics: %v", err)
	}
	if len(within) != 2 {
		t.Fatalf("expected 2 metrics in window, got %d", len(within))
	}
	// Oldest first.
	if within[0].Name != "accuracy" || within[1].Name != "loss" {
		t.Fatalf("unexpected order: %s, %s", within[0].Name, within[1].Name)
	}
	if within[1].Context["phase"] != "eval" {
		t.Fatalf("expected context round-trip, got %v", within[1].Context)
	}

	all, err := s.QueryMetrics(24 * time.Hour)
	if err != nil {
		t.Fatalf("QueryMetrics wide: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 metrics in wide window, got %d", len(all))
	}

	named, err := s.QueryMetricsNamed("accuracy", 24*time.Hour)
	if err != nil {
		t.Fatalf("QueryMetricsNamed: %v", err)
	}
	if len(named) != 2 {
		t.Fatalf("expected 2 accuracy metrics, got %d", len(named))
	}
}

func TestSnapshotLatestPerName(t *testing.T) {
	s := tempStore(t)
	now := time.Now().UTC()

	ms := []Metric{
		{Name: "accuracy", Value: 0.2, Timestamp: now.Add(-3 * time.Minute)},
		{Name: "accuracy", Value: 0.9, Timestamp: now.Add(-1 * time.Minute)},
		{Name: "loss", Value: 0.5, Timestamp: now},
	}
	if err := s.RecordMetrics(ms); err != nil {
		t.Fatalf("RecordMetrics: %v", err)
	}

	snap, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap) != 2 {
		t.Fatalf("expected 2 names, got %d", len(snap))
	}
	if snap["accuracy"] != 0.9 {
		t.Fatalf("expected latest accuracy 0.9, got %f", snap["accuracy"])
	}
	if snap["loss"] != 0.5 {
		t.Fatalf("expected loss 0.5, got %f", snap["loss"])
	}
}

func TestSnapshotEmpty(t *testing.T) {
	s := tempStore(t)
	snap, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap) != 0 {
		t.Fatalf("expected empty snapshot, got %v", snap)
	}
}

func TestStats(t *testing.T) {
	s := tempStore(t)

	s.AppendEvent("assessment", nil)
	s.AppendEvent("decision", nil)
	s.AppendEvent("decision", nil)
	s.RecordMetric(Metric{Name: "accuracy", Value: 0.5})

	st, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Events != 3 {
		t.Fatalf("expected 3 events, got %d", st.Events)
	}
	if st.Metrics != 1 {
		t.Fatalf("expected 1 metric, got %d", st.Metrics)
	}
	if st.EventKinds["decision"] != 2 {
		t.Fatalf("expected 2 decision events, got %d", st.EventKinds["decision"])
	}
	if st.DBBytes == 0 {
		t.Fatal("expected non-zero db size")
	}
}

func TestEventOrderStableWithinMillisecond(t *testing.T) {
	s := tempStore(t)

	// A tight loop mints many ids inside the same millisecond; the
	// monotonic entropy must keep id order equal to append order.
	const n = 50
	for i := 0; i < n; i++ {
		if err := s.AppendEvent("burst", map[string]any{"seq": i}); err != nil {
			t.Fatalf("AppendEvent %d: %v", i, err)
		}
	}

	events, err := s.Events("burst", n)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != n {
		t.Fatalf("expected %d events, got %d", n, len(events))
	}
	// Newest first: the last appended sequence leads.
	for i, ev := range events {
		want := float64(n - 1 - i)
		if got := ev.Payload["seq"]; got != want {
			t.Fatalf("event %d: expected seq %v, got %v", i, want, got)
		}
	}
}

func TestConcurrentAppends(t *testing.T) {
	s := tempStore(t)

	const workers, perWorker = 8, 25
	errs := make(chan error, workers*perWorker*2)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				errs <- s.AppendEvent("concurrent", map[string]any{"worker": w, "seq": i})
				errs <- s.RecordMetric(Metric{Name: "accuracy", Value: 0.5})
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent write: %v", err)
		}
	}

	events, err := s.Events("concurrent", -1)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != workers*perWorker {
		t.Fatalf("expected %d events, got %d", workers*perWorker, len(events))
	}
	seen := make(map[string]bool, len(events))
	for _, ev := range events {
		if seen[ev.ID] {
			t.Fatalf("duplicate event id %s", ev.ID)
		}
		seen[ev.ID] = true
	}

	metrics, err := s.QueryMetrics(time.Hour)
	if err != nil {
		t.Fatalf("QueryMetrics: %v", err)
	}
	if len(metrics) != workers*perWorker {
		t.Fatalf("expected %d metrics, got %d", workers*perWorker, len(metrics))
	}
}
