// Package analytics derives daily equity, trend runs and consistency labels
// from persisted backtest results.
package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yourusername/backtest-orchestrator/internal/models"
)

// trendThreshold is the minimum absolute daily return that sets a direction
const trendThreshold = 0.01

// DailyPoint is the portfolio value on one day
type DailyPoint struct {
	Date  time.Time
	Value float64
}

// Direction of a trend run
type Direction string

const (
	Rising  Direction = "rising"
	Falling Direction = "falling"
)

// TrendRun is a stretch of days that moved in one direction
type TrendRun struct {
	Direction  Direction
	StartDate  time.Time
	EndDate    time.Time
	Days       int
	StartValue float64
	EndValue   float64
	Return     float64
	Closed     bool
}

// Consistency labels the overall shape of the equity curve
type Consistency string

const (
	InsufficientData Consistency = "insufficient_data"
	SustainedRising  Consistency = "sustained_rising"
	SustainedFalling Consistency = "sustained_falling"
	Flat             Consistency = "flat"
	Choppy           Consistency = "choppy"
)

// ConsistencyStats carries the label and the numbers it was derived from
type ConsistencyStats struct {
	Label      Consistency
	MeanReturn float64
	StdDev     float64
}

// DailyTotals sums holding values per recorded day, oldest first
func DailyTotals(holdings []models.HoldingSnapshot) []DailyPoint {
	sums := make(map[time.Time]decimal.Decimal)
	for _, h := range holdings {
		day := truncateDay(h.RecordedAt)
		sums[day] = sums[day].Add(h.Value)
	}

	points := make([]DailyPoint, 0, len(sums))
	for day, total := range sums {
		points = append(points, DailyPoint{Date: day, Value: total.InexactFloat64()})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points
}

// DetectTrendRuns splits the curve into rising and falling runs.
// Days whose move stays within the threshold extend the current run.
// The last run is returned with Closed=false.
func DetectTrendRuns(points []DailyPoint) []TrendRun {
	var runs []TrendRun
	var current *TrendRun

	for i := 1; i < len(points); i++ {
		prev, cur := points[i-1], points[i]

		dir := classify(prev.Value, cur.Value)
		if dir != "" && (current == nil || current.Direction != dir) {
			if current != nil {
				current.Closed = true
				runs = append(runs, *current)
			}
			current = &TrendRun{
				Direction:  dir,
				StartDate:  cur.Date,
				EndDate:    cur.Date,
				Days:       1,
				StartValue: cur.Value,
				EndValue:   cur.Value,
			}
			continue
		}

		if current != nil {
			current.EndDate = cur.Date
			current.EndValue = cur.Value
			current.Days++
			current.Return = runReturn(current.StartValue, current.EndValue)
		}
	}

	if current != nil {
		runs = append(runs, *current)
	}
	return runs
}

// ClassifyConsistency labels the curve from the mean and population
// standard deviation of its daily returns.
func ClassifyConsistency(points []DailyPoint) ConsistencyStats {
	returns := dailyReturns(points)
	if len(points) < 2 || len(returns) == 0 {
		return ConsistencyStats{Label: InsufficientData}
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var sq float64
	for _, r := range returns {
		sq += (r - mean) * (r - mean)
	}
	std := math.Sqrt(sq / float64(len(returns)))

	stats := ConsistencyStats{MeanReturn: mean, StdDev: std}
	switch {
	case std < 0.02 && math.Abs(mean) > 0.005:
		if mean > 0 {
			stats.Label = SustainedRising
		} else {
			stats.Label = SustainedFalling
		}
	case std < 0.005:
		stats.Label = Flat
	default:
		stats.Label = Choppy
	}
	return stats
}

func dailyReturns(points []DailyPoint) []float64 {
	out := make([]float64, 0, len(points))
	for i := 1; i < len(points); i++ {
		if points[i-1].Value == 0 {
			continue
		}
		out = append(out, (points[i].Value-points[i-1].Value)/points[i-1].Value)
	}
	return out
}

func classify(prev, cur float64) Direction {
	if prev == 0 {
		return ""
	}
	r := (cur - prev) / prev
	switch {
	case r > trendThreshold:
		return Rising
	case r < -trendThreshold:
		return Falling
	default:
		return ""
	}
}

func runReturn(start, end float64) float64 {
	if start == 0 {
		return 0
	}
	return (end - start) / start
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
