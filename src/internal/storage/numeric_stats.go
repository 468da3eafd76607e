package storage

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// NumericStats holds distributional statistics for a numeric column,
// computed in Go rather than SQL so the same arithmetic covers both the
// JSON-extracted property columns and the native event/profile columns.
type NumericStats struct {
	Mean   float64
	StdDev float64
	Median float64
	P95    float64
	P99    float64
	Max    float64
}

// distribution is a sorted sample with its mean and sum-of-squared-deviations
// precomputed via Welford's online algorithm, so stddev and every quantile
// reuse the same single pass over the data instead of re-walking it.
type distribution struct {
	sorted []float64
	mean   float64
	m2     float64
}

func newDistribution(values []float64) distribution {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var mean, m2 float64
	for i, v := range sorted {
		delta := v - mean
		mean += delta / float64(i+1)
		m2 += delta * (v - mean)
	}
	return distribution{sorted: sorted, mean: mean, m2: m2}
}

func (d distribution) stddev() float64 {
	if len(d.sorted) < 2 {
		return 0
	}
	return math.Sqrt(d.m2 / float64(len(d.sorted)-1))
}

// quantile linearly interpolates between the two nearest ranks for q in
// [0, 1]. q=0.5 is the median, q=0.95/0.99 are the upper-tail percentiles.
func (d distribution) quantile(q float64) float64 {
	n := len(d.sorted)
	switch {
	case n == 0:
		return 0
	case n == 1:
		return d.sorted[0]
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if hi >= n {
		return d.sorted[n-1]
	}
	return d.sorted[lo] + (d.sorted[hi]-d.sorted[lo])*(pos-float64(lo))
}

func (d distribution) max() float64 {
	if len(d.sorted) == 0 {
		return 0
	}
	return d.sorted[len(d.sorted)-1]
}

// numericColumnStats loads every non-null value of column as float64 and
// computes NumericStats over it. It returns ok=false when the column holds
// no values that parse as numbers, in which case ColumnStats omits the
// distributional fields and callers fall back to Min/Max/Count/Distinct.
func (s *StorageEngine) numericColumnStats(ctx context.Context, table, column string) (NumericStats, bool, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %q FROM %q WHERE %q IS NOT NULL AND typeof(%q) IN ('integer','real')`,
		column, table, column, column))
	if err != nil {
		return NumericStats{}, false, fmt.Errorf("loading numeric values: %w", err)
	}
	defer rows.Close()

	var values []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return NumericStats{}, false, fmt.Errorf("scanning numeric value: %w", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return NumericStats{}, false, err
	}
	if len(values) == 0 {
		return NumericStats{}, false, nil
	}

	d := newDistribution(values)
	return NumericStats{
		Mean:   d.mean,
		StdDev: d.stddev(),
		Median: d.quantile(0.5),
		P95:    d.quantile(0.95),
		P99:    d.quantile(0.99),
		Max:    d.max(),
	}, true, nil
}
