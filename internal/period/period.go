package period

import (
	"fmt"
	"time"
)

// Symbolic period ids
const (
	Fixed       = "FIXED"
	Today       = "TODAY"
	Yesterday   = "YESTERDAY"
	Last7Days   = "LAST_7_DAYS"
	Last14Days  = "LAST_14_DAYS"
	ThisWeek    = "THIS_WEEK"
	LastWeek    = "LAST_WEEK"
	ThisMonth   = "THIS_MONTH"
	LastMonth   = "LAST_MONTH"
	ThisQuarter = "THIS_QUARTER"
	LastQuarter = "LAST_QUARTER"
	ThisYear    = "THIS_YEAR"
	LastYear    = "LAST_YEAR"
)

// Unit is a calendar unit used by relative period offsets
type Unit string

// Calendar units
const (
	Day     Unit = "day"
	Week    Unit = "week"
	Month   Unit = "month"
	Quarter Unit = "quarter"
	Year    Unit = "year"
)

// Option is a symbolic period selector. StartDate/EndDate are only
// meaningful when Type is FIXED (or empty).
type Option struct {
	Type      string     `json:"type"`
	StartDate *time.Time `json:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`
}

// Interval is a concrete resolved date pair, both at UTC midnight. The
// upstream geospatial query treats End as not included.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// UnsupportedPeriodError signals a period id outside the known set
type UnsupportedPeriodError struct {
	ID string
}

func (e *UnsupportedPeriodError) Error() string {
	return fmt.Sprintf("unsupported period type: %q", e.ID)
}

type offset struct {
	amount int
	unit   Unit
}

type definition struct {
	start offset
	end   *offset // nil = same as start
}

// Relative offsets per symbolic id. The end offset defaults to the start
// offset when unspecified.
var definitions = map[string]definition{
	Today:       {start: offset{0, Day}},
	Yesterday:   {start: offset{1, Day}},
	Last7Days:   {start: offset{7, Day}, end: &offset{0, Day}},
	Last14Days:  {start: offset{14, Day}, end: &offset{0, Day}},
	ThisWeek:    {start: offset{0, Week}},
	LastWeek:    {start: offset{1, Week}},
	ThisMonth:   {start: offset{0, Month}},
	LastMonth:   {start: offset{1, Month}},
	ThisQuarter: {start: offset{0, Quarter}},
	LastQuarter: {start: offset{1, Quarter}},
	ThisYear:    {start: offset{0, Year}},
	LastYear:    {start: offset{1, Year}},
}

// Resolve converts a symbolic period selector into a concrete date
// interval relative to now. Pure and deterministic for a given now.
func Resolve(opt Option, now time.Time) (Interval, error) {
	now = now.UTC()

	if opt.Type == "" || opt.Type == Fixed {
		start := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
		if opt.StartDate != nil {
			start = truncateDay(*opt.StartDate)
		}
		end := endOf(Year, now.AddDate(10, 0, 0))
		if opt.EndDate != nil {
			end = truncateDay(*opt.EndDate)
		}
		return Interval{Start: start, End: end}, nil
	}

	def, ok := definitions[opt.Type]
	if !ok {
		return Interval{}, &UnsupportedPeriodError{ID: opt.Type}
	}

	endOffset := def.start
	if def.end != nil {
		endOffset = *def.end
	}

	start := startOf(def.start.unit, subtract(now, def.start.amount, def.start.unit))
	end := endOf(endOffset.unit, subtract(now, endOffset.amount, endOffset.unit))
	return Interval{Start: start, End: end}, nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func subtract(t time.Time, amount int, unit Unit) time.Time {
	switch unit {
	case Week:
		return t.AddDate(0, 0, -7*amount)
	case Month:
		return t.AddDate(0, -amount, 0)
	case Quarter:
		return t.AddDate(0, -3*amount, 0)
	case Year:
		return t.AddDate(-amount, 0, 0)
	default:
		return t.AddDate(0, 0, -amount)
	}
}

// startOf floors a date to the first day of the unit (ISO weeks)
func startOf(unit Unit, t time.Time) time.Time {
	t = truncateDay(t)
	switch unit {
	case Week:
		weekday := int(t.Weekday())
		if weekday == 0 { // Sunday
			weekday = 7
		}
		return t.AddDate(0, 0, -(weekday - 1))
	case Month:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case Quarter:
		quarterMonth := time.Month((int(t.Month())-1)/3*3 + 1)
		return time.Date(t.Year(), quarterMonth, 1, 0, 0, 0, 0, time.UTC)
	case Year:
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	default:
		return t
	}
}

// endOf ceils a date to the last day of the unit, at UTC midnight
func endOf(unit Unit, t time.Time) time.Time {
	switch unit {
	case Day:
		return truncateDay(t)
	default:
		return startOf(unit, t).AddDate(0, 0, spanDays(unit, t)-1)
	}
}

func spanDays(unit Unit, t time.Time) int {
	start := startOf(unit, t)
	var next time.Time
	switch unit {
	case Week:
		next = start.AddDate(0, 0, 7)
	case Month:
		next = start.AddDate(0, 1, 0)
	case Quarter:
		next = start.AddDate(0, 3, 0)
	case Year:
		next = start.AddDate(1, 0, 0)
	default:
		next = start.AddDate(0, 0, 1)
	}
	return int(next.Sub(start).Hours() / 24)
}
