package valuation

import (
	"fmt"
	"sort"
	"time"

	"stock-portfolio-go/internal/calendar"
)

// DailyBar is one externally sourced intraday price point. Bar sequences
// arrive in no guaranteed order and are normalized before use.
type DailyBar struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// HoldingDailyChange is the derived per-symbol view for one trading day.
// It is recomputed on every price or holdings update, never persisted.
type HoldingDailyChange struct {
	Symbol        string     `json:"symbol"`
	PercentChange float64    `json:"percent_change"`
	HasChange     bool       `json:"has_change"`
	Series        []DailyBar `json:"series"`
}

// Projector combines holdings and historical bars into chart-ready daily
// change series, filtered through the trading calendar. It holds no state
// between calls.
type Projector struct {
	cal *calendar.Calendar
}

// NewProjector creates a Projector using the given calendar.
func NewProjector(cal *calendar.Calendar) *Projector {
	return &Projector{cal: cal}
}

// Project computes the daily change for every visible symbol with a
// positive quantity. On a day the market is closed the series is empty
// and the percent change undefined; no partial-day data is fabricated.
func (p *Projector) Project(symbols []string, holdings map[string]int64, barsBySymbol map[string][]DailyBar, now time.Time) map[string]HoldingDailyChange {
	out := make(map[string]HoldingDailyChange)
	displayDate := p.cal.ResolveDisplayDate(now)
	closed := p.cal.IsMarketClosedAllDay(displayDate)

	for _, symbol := range symbols {
		if holdings[symbol] <= 0 {
			continue
		}

		change := HoldingDailyChange{Symbol: symbol, Series: []DailyBar{}}
		if !closed {
			series := filterDay(normalize(barsBySymbol[symbol]), displayDate)
			change.Series = series
			if len(series) > 0 {
				first := series[0].Close
				last := series[len(series)-1].Close
				if first != 0 {
					change.PercentChange = (last - first) / first
					change.HasChange = true
				}
			}
		}
		out[symbol] = change
	}
	return out
}

// normalize returns a copy of bars sorted into chronological ascending
// order regardless of the order they arrived in.
func normalize(bars []DailyBar) []DailyBar {
	sorted := make([]DailyBar, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})
	return sorted
}

// filterDay restricts a sorted bar sequence to entries on the given date.
func filterDay(bars []DailyBar, day time.Time) []DailyBar {
	out := make([]DailyBar, 0, len(bars))
	for _, bar := range bars {
		if calendar.SameDay(bar.Date, day) {
			out = append(out, bar)
		}
	}
	return out
}

// FormatPercent renders a fractional change as a percentage, e.g. 0.0123
// becomes "1.23%".
func FormatPercent(change float64) string {
	return fmt.Sprintf("%.2f%%", change*100)
}
