package calendar

import (
	"fmt"
	"time"
)

const layout = "2006-01-02"

// Date is a civil calendar day without a time of day or zone.
// The zero value is "no date".
type Date struct {
	t time.Time
}

// New builds a Date; out-of-range values are normalised the way time.Date does.
func New(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// FromTime drops the clock part of t, keeping its local calendar day.
func FromTime(t time.Time) Date {
	return New(t.Year(), t.Month(), t.Day())
}

// Today returns the current local calendar day.
func Today() Date {
	return FromTime(time.Now())
}

// Parse reads an ISO date (YYYY-MM-DD).
func Parse(s string) (Date, error) {
	t, err := time.Parse(layout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{t: t}, nil
}

func (d Date) Year() int          { return d.t.Year() }
func (d Date) Month() time.Month  { return d.t.Month() }
func (d Date) Day() int           { return d.t.Day() }
func (d Date) IsZero() bool       { return d.t.IsZero() }
func (d Date) Time() time.Time    { return d.t }
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

// AddMonths moves by calendar months. When the target month is shorter the
// result is clamped to its last day (2025-01-31 + 1 month = 2025-02-28).
func (d Date) AddMonths(n int) Date {
	first := time.Date(d.t.Year(), d.t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	last := first.AddDate(0, 1, -1).Day()
	day := d.t.Day()
	if day > last {
		day = last
	}
	return New(first.Year(), first.Month(), day)
}

func (d Date) Before(o Date) bool     { return d.t.Before(o.t) }
func (d Date) After(o Date) bool      { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool      { return d.t.Equal(o.t) }
func (d Date) OnOrBefore(o Date) bool { return !d.t.After(o.t) }
func (d Date) OnOrAfter(o Date) bool  { return !d.t.Before(o.t) }

// Between reports whether d lies in [from, to], both ends inclusive.
func (d Date) Between(from, to Date) bool {
	return d.OnOrAfter(from) && d.OnOrBefore(to)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(layout)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
