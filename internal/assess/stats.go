package assess

import (
	"math"
	"sort"

	"github.com/metislabs/metis/internal/journal"
)

// #region moments

// mean returns the arithmetic mean, or 0 for an empty slice.
func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// variance returns the population variance.
func variance(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return sum / float64(len(xs))
}

// stddev returns the population standard deviation.
func stddev(xs []float64) float64 {
	return math.Sqrt(variance(xs))
}

// #endregion moments

// #region regression

// linearFit least-squares fits y = slope*i + intercept over sample index.
// Degenerate inputs (fewer than 2 points, zero x-variance) fit flat.
func linearFit(ys []float64) (slope, intercept float64) {
	n := float64(len(ys))
	if len(ys) < 2 {
		return 0, mean(ys)
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range ys {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, mean(ys)
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}

// linearSlope returns just the fitted slope.
func linearSlope(ys []float64) float64 {
	slope, _ := linearFit(ys)
	return slope
}

// autocorrelation returns the Pearson correlation between the series and
// itself shifted by lag. ok is false when either slice is constant.
func autocorrelation(xs []float64, lag int) (r float64, ok bool) {
	if lag <= 0 || lag >= len(xs) {
		return 0, false
	}
	a := xs[:len(xs)-lag]
	b := xs[lag:]
	ma, mb := mean(a), mean(b)
	var cov, va, vb float64
	for i := range a {
		da := a[i] - ma
		db := b[i] - mb
		cov += da * db
		va += da * da
		vb += db * db
	}
	if va == 0 || vb == 0 {
		return 0, false
	}
	return cov / math.Sqrt(va*vb), true
}

// #endregion regression

// #region helpers

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}

// tail returns the last n elements, or all of xs when shorter.
func tail(xs []float64, n int) []float64 {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}

// latestByName folds a metric window into the most recent value per name.
// Input is expected oldest first, so later values win.
func latestByName(ms []journal.Metric) map[string]float64 {
	if len(ms) == 0 {
		return nil
	}
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		out[m.Name] = m.Value
	}
	return out
}

// sortedKeys returns the map keys in ascending order so iteration is
// deterministic.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// groupByName splits a metric window into per-name series, preserving the
// input order within each group.
func groupByName(ms []journal.Metric) map[string][]journal.Metric {
	groups := make(map[string][]journal.Metric)
	for _, m := range ms {
		groups[m.Name] = append(groups[m.Name], m)
	}
	return groups
}

// valuesOf extracts the value series from a metric group.
func valuesOf(ms []journal.Metric) []float64 {
	values := make([]float64, len(ms))
	for i, m := range ms {
		values[i] = m.Value
	}
	return values
}

// scoreFromMetrics normalizes a metric snapshot into one performance score.
// Preference order: accuracy, then inverted loss, then score, then the
// first numeric value by sorted name, then neutral 0.5.
func scoreFromMetrics(current map[string]float64) float64 {
	if v, ok := current["accuracy"]; ok {
		return clamp01(v)
	}
	if v, ok := current["loss"]; ok {
		return clamp01(math.Max(0, 1-v))
	}
	if v, ok := current["score"]; ok {
		return clamp01(v)
	}
	if names := sortedKeys(current); len(names) > 0 {
		return clamp01(current[names[0]])
	}
	return 0.5
}

// #endregion helpers
