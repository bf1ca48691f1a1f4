package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Summary holds the dashboard totals across every recorded day.
type Summary struct {
	TotalRealProfit    float64 `json:"totalRealProfit"`
	TotalPaperProfit   float64 `json:"totalPaperProfit"`
	TotalProfit        float64 `json:"totalProfit"`
	AvgRealPercentage  float64 `json:"avgRealPercentage"`
	AvgPaperPercentage float64 `json:"avgPaperPercentage"`
	TotalDays          int     `json:"totalDays"`
}

// SeriesPoint is one day of the cumulative profit chart.
type SeriesPoint struct {
	Date            Date    `json:"date"`
	RealProfit      float64 `json:"realProfit"`
	PaperProfit     float64 `json:"paperProfit"`
	CumulativeReal  float64 `json:"cumulativeReal"`
	CumulativePaper float64 `json:"cumulativePaper"`
	TotalCumulative float64 `json:"totalCumulative"`
	RealPercentage  float64 `json:"realPercentage"`
	PaperPercentage float64 `json:"paperPercentage"`
}

// Summarize computes totals and average percentages. Averages are zero for
// an empty input.
func Summarize(entries []ProfitEntry) Summary {
	var real, paper, realPct, paperPct decimal.Decimal
	for _, e := range entries {
		real = real.Add(decimal.NewFromFloat(e.RealAccountProfit))
		paper = paper.Add(decimal.NewFromFloat(e.PaperTradingProfit))
		realPct = realPct.Add(decimal.NewFromFloat(e.RealAccountPercentage))
		paperPct = paperPct.Add(decimal.NewFromFloat(e.PaperTradingPercentage))
	}

	s := Summary{
		TotalRealProfit:  real.InexactFloat64(),
		TotalPaperProfit: paper.InexactFloat64(),
		TotalProfit:      real.Add(paper).InexactFloat64(),
		TotalDays:        len(entries),
	}
	if n := len(entries); n > 0 {
		count := decimal.NewFromInt(int64(n))
		s.AvgRealPercentage = realPct.Div(count).InexactFloat64()
		s.AvgPaperPercentage = paperPct.Div(count).InexactFloat64()
	}
	return s
}

// CumulativeSeries returns running totals in ascending date order. The input
// slice is not modified.
func CumulativeSeries(entries []ProfitEntry) []SeriesPoint {
	sorted := SortByDate(entries)
	points := make([]SeriesPoint, 0, len(sorted))

	var cumReal, cumPaper decimal.Decimal
	for _, e := range sorted {
		cumReal = cumReal.Add(decimal.NewFromFloat(e.RealAccountProfit))
		cumPaper = cumPaper.Add(decimal.NewFromFloat(e.PaperTradingProfit))
		points = append(points, SeriesPoint{
			Date:            e.Date,
			RealProfit:      e.RealAccountProfit,
			PaperProfit:     e.PaperTradingProfit,
			CumulativeReal:  cumReal.InexactFloat64(),
			CumulativePaper: cumPaper.InexactFloat64(),
			TotalCumulative: cumReal.Add(cumPaper).InexactFloat64(),
			RealPercentage:  e.RealAccountPercentage,
			PaperPercentage: e.PaperTradingPercentage,
		})
	}
	return points
}

// Recent returns at most n entries, newest first.
func Recent(entries []ProfitEntry, n int) []ProfitEntry {
	sorted := SortByDate(entries)
	if n < 0 || n > len(sorted) {
		n = len(sorted)
	}
	out := make([]ProfitEntry, 0, n)
	for i := len(sorted) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, sorted[i])
	}
	return out
}

// SortByDate returns a copy of entries ordered by ascending date.
func SortByDate(entries []ProfitEntry) []ProfitEntry {
	sorted := make([]ProfitEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})
	return sorted
}
