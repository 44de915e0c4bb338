package calendar

import (
	"fmt"
	"time"
)

// DateFormat is the layout used for holiday dates in configuration.
const DateFormat = "2006-01-02"

// HolidaySource reports whether a given date is a recognized public or
// bank holiday. Calendar data is an external, swappable input.
type HolidaySource interface {
	IsHoliday(d time.Time) bool
}

// StaticHolidaySource is a HolidaySource backed by a fixed set of dates,
// typically loaded from configuration.
type StaticHolidaySource struct {
	days map[string]struct{}
}

// NewStaticHolidaySource parses a list of YYYY-MM-DD dates into a source.
func NewStaticHolidaySource(dates []string) (*StaticHolidaySource, error) {
	days := make(map[string]struct{}, len(dates))
	for _, d := range dates {
		if _, err := time.Parse(DateFormat, d); err != nil {
			return nil, fmt.Errorf("invalid holiday date %q: %w", d, err)
		}
		days[d] = struct{}{}
	}
	return &StaticHolidaySource{days: days}, nil
}

// IsHoliday reports whether the date component of d is a configured holiday.
func (s *StaticHolidaySource) IsHoliday(d time.Time) bool {
	_, ok := s.days[d.Format(DateFormat)]
	return ok
}

// Calendar answers trading-day questions for a single market.
type Calendar struct {
	holidays HolidaySource
}

// New creates a Calendar using the given holiday source.
func New(holidays HolidaySource) *Calendar {
	return &Calendar{holidays: holidays}
}

// ResolveDisplayDate returns the date whose intraday series should be
// shown "as of today": the preceding Friday when now falls on a weekend,
// otherwise now itself.
func (c *Calendar) ResolveDisplayDate(now time.Time) time.Time {
	switch now.Weekday() {
	case time.Saturday:
		return now.AddDate(0, 0, -1)
	case time.Sunday:
		return now.AddDate(0, 0, -2)
	default:
		return now
	}
}

// IsMarketClosedAllDay reports whether the market is closed for the whole
// day: weekends and recognized holidays. When it returns true, the daily
// change series for that date is defined to be empty.
func (c *Calendar) IsMarketClosedAllDay(d time.Time) bool {
	if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		return true
	}
	return c.holidays.IsHoliday(d)
}

// SameDay reports whether a and b fall on the same calendar date.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
