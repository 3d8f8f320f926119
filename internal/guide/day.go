package guide

import (
	"fmt"
	"slices"
	"time"
)

const dayLayout = "2006-01-02"

// Day is a civil calendar date without time or zone. The zero value means
// "unset".
type Day struct {
	t time.Time
}

// NewDay builds a Day from calendar components.
func NewDay(year int, month time.Month, day int) Day {
	return Day{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DayOf projects a wall-clock instant onto its calendar date.
func DayOf(t time.Time) Day {
	y, m, d := t.Date()
	return NewDay(y, m, d)
}

// Today returns the current local calendar date.
func Today() Day {
	return DayOf(time.Now())
}

// ParseDay parses an ISO date ("2006-01-02").
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return Day{}, fmt.Errorf("parse day %q: %w", s, err)
	}
	return Day{t: t}, nil
}

func (d Day) IsZero() bool { return d.t.IsZero() }

// String renders the ISO form; the zero value renders empty.
func (d Day) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(dayLayout)
}

// Date returns the calendar components.
func (d Day) Date() (int, time.Month, int) { return d.t.Date() }

func (d Day) Year() int         { return d.t.Year() }
func (d Day) Month() time.Month { return d.t.Month() }

func (d Day) Before(o Day) bool { return d.t.Before(o.t) }
func (d Day) After(o Day) bool  { return d.t.After(o.t) }
func (d Day) Equal(o Day) bool  { return d.t.Equal(o.t) }

// Compare orders days chronologically (-1, 0, +1).
func (d Day) Compare(o Day) int { return d.t.Compare(o.t) }

// AddDays returns the date n days later (or earlier for negative n).
func (d Day) AddDays(n int) Day { return Day{t: d.t.AddDate(0, 0, n)} }

// MarshalText renders the ISO form, making Day usable as a JSON value and
// map key.
func (d Day) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText accepts the ISO form; empty input yields the zero value.
func (d *Day) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Day{}
		return nil
	}
	parsed, err := ParseDay(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MergeDays unions the given day lists into a sorted, de-duplicated slice.
func MergeDays(lists ...[]Day) []Day {
	var out []Day
	for _, list := range lists {
		out = append(out, list...)
	}
	slices.SortFunc(out, Day.Compare)
	return slices.CompactFunc(out, Day.Equal)
}
