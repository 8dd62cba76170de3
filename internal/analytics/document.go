package analytics

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/yourusername/backtest-orchestrator/internal/models"
)

const dateLayout = "2006-01-02"

// DocumentInput is everything the analysis document is built from
type DocumentInput struct {
	Backtest   *models.Backtest
	Snapshot   *models.PortfolioSnapshot
	Holdings   []models.HoldingSnapshot
	Executions []models.ExecutionLog
}

// BuildDocument renders the plain-text analysis document handed to the report renderer
func BuildDocument(in DocumentInput) string {
	p := message.NewPrinter(language.English)
	var b strings.Builder

	writeHeader(p, &b, in)
	writeBenchmark(p, &b, in)
	writeMetrics(p, &b, in.Snapshot)
	writeHoldings(p, &b, in.Holdings)
	writeEquityTrend(p, &b, DailyTotals(in.Holdings))
	writeExecutions(p, &b, in.Executions)

	return b.String()
}

func writeHeader(p *message.Printer, b *strings.Builder, in DocumentInput) {
	if in.Backtest != nil {
		b.WriteString(p.Sprintf("Backtest: %s\n", in.Backtest.Title))
		b.WriteString(p.Sprintf("Period: %s ~ %s\n",
			in.Backtest.StartAt.Format(dateLayout), in.Backtest.EndAt.Format(dateLayout)))
	}
	if in.Snapshot != nil && in.Snapshot.ExecutionTime != nil {
		b.WriteString(p.Sprintf("Execution time: %.2fs\n", *in.Snapshot.ExecutionTime))
	}
}

func writeBenchmark(p *message.Printer, b *strings.Builder, in DocumentInput) {
	b.WriteString("\n=== Benchmark comparison ===\n")

	code := ""
	if in.Backtest != nil {
		code = in.Backtest.Benchmark()
	}
	if strings.TrimSpace(code) == "" {
		b.WriteString("No benchmark selected\n")
		return
	}

	b.WriteString(p.Sprintf("Benchmark index: %s\n", code))
	if idx, err := models.ParseBenchmarkIndex(code); err == nil {
		b.WriteString(p.Sprintf("-> %s: %s\n", code, idx.DisplayName()))
	}

	var blob *models.MetricsBlob
	if in.Snapshot != nil {
		blob, _ = in.Snapshot.DecodeMetrics()
	}
	if blob == nil || blob.Benchmark == nil {
		b.WriteString("No benchmark performance data\n")
		return
	}

	bm := blob.Benchmark
	b.WriteString(p.Sprintf("Benchmark total return: %.2f%%\n", deref(bm.BenchmarkTotalReturn)))
	b.WriteString(p.Sprintf("Benchmark volatility: %.2f%%\n", deref(bm.BenchmarkVolatility)))
	b.WriteString(p.Sprintf("Period high: %.2f\n", deref(bm.BenchmarkMaxPrice)))
	b.WriteString(p.Sprintf("Period low: %.2f\n", deref(bm.BenchmarkMinPrice)))
	b.WriteString(p.Sprintf("Alpha: %.2f%%\n", deref(bm.Alpha)))
	if avg := deref(bm.BenchmarkDailyAverage); avg != 0 {
		b.WriteString(p.Sprintf("Benchmark daily average: %.3f%%\n", avg*100))
	}

	alpha := deref(bm.Alpha)
	switch {
	case alpha > 0:
		b.WriteString("-> The portfolio outperformed the benchmark\n")
	case alpha < 0:
		b.WriteString("-> The portfolio underperformed the benchmark\n")
	default:
		b.WriteString("-> The portfolio matched the benchmark\n")
	}
}

func writeMetrics(p *message.Printer, b *strings.Builder, snapshot *models.PortfolioSnapshot) {
	if snapshot == nil {
		return
	}
	m, err := snapshot.DecodeMetrics()
	if err != nil || m == nil {
		return
	}

	b.WriteString("\n=== Performance metrics ===\n")
	b.WriteString(p.Sprintf("Total return: %.2f%%\n", m.TotalReturn))
	b.WriteString(p.Sprintf("Annualized return: %.2f%%\n", m.AnnualizedReturn))
	b.WriteString(p.Sprintf("Volatility: %.2f%%\n", m.Volatility))
	b.WriteString(p.Sprintf("Sharpe ratio: %.2f\n", m.SharpeRatio))
	b.WriteString(p.Sprintf("Max drawdown: %.2f%%\n", m.MaxDrawdown))
	b.WriteString(p.Sprintf("Win rate: %.2f%%\n", m.WinRate))
	b.WriteString(p.Sprintf("Profit/loss ratio: %.2f\n", m.ProfitLossRatio))
}

// writeHoldings lists the positions of the last recorded day
func writeHoldings(p *message.Printer, b *strings.Builder, holdings []models.HoldingSnapshot) {
	latest := LatestHoldings(holdings)
	if len(latest) == 0 {
		return
	}

	b.WriteString("\n=== Holdings ===\n")
	for _, h := range latest {
		b.WriteString(p.Sprintf("- %s: %d shares\n", h.StockCode, h.Quantity))
	}
}

func writeEquityTrend(p *message.Printer, b *strings.Builder, points []DailyPoint) {
	if len(points) == 0 {
		return
	}

	b.WriteString("\n=== Daily equity trend ===\n")
	first, last := points[0], points[len(points)-1]
	b.WriteString(p.Sprintf("Start: %s, value %.0f\n", first.Date.Format(dateLayout), first.Value))
	b.WriteString(p.Sprintf("End: %s, value %.0f\n", last.Date.Format(dateLayout), last.Value))
	if first.Value != 0 {
		b.WriteString(p.Sprintf("Total return: %.2f%% over %d days\n",
			(last.Value-first.Value)/first.Value*100, len(points)))
	}

	stats := ClassifyConsistency(points)
	b.WriteString(p.Sprintf("Pattern: %s (mean %.3f%%/day, volatility %.3f%%)\n",
		stats.Label, stats.MeanReturn*100, stats.StdDev*100))

	runs := DetectTrendRuns(points)
	if len(runs) == 0 {
		b.WriteString("No clear trend changes detected\n")
		return
	}
	for _, r := range runs {
		state := "closed"
		if !r.Closed {
			state = "ongoing"
		}
		b.WriteString(p.Sprintf("%s -> %s run from %.0f to %.0f (%.2f%%) over %d days, %s\n",
			r.StartDate.Format(dateLayout), r.Direction, r.StartValue, r.EndValue, r.Return*100, r.Days, state))
	}
}

func writeExecutions(p *message.Printer, b *strings.Builder, logs []models.ExecutionLog) {
	if len(logs) == 0 {
		return
	}

	b.WriteString("\n=== Execution log ===\n")
	for _, l := range logs {
		b.WriteString(p.Sprintf("%s | %s | %s | %s\n", l.LogDate.Format(dateLayout), l.ActionType, l.Category, l.Reason))
	}
}

// LatestHoldings returns the holding rows of the most recent day, sorted by stock code
func LatestHoldings(holdings []models.HoldingSnapshot) []models.HoldingSnapshot {
	if len(holdings) == 0 {
		return nil
	}

	var latest time.Time
	for _, h := range holdings {
		if day := truncateDay(h.RecordedAt); day.After(latest) {
			latest = day
		}
	}

	var out []models.HoldingSnapshot
	for _, h := range holdings {
		if truncateDay(h.RecordedAt).Equal(latest) {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StockCode < out[j].StockCode })
	return out
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
