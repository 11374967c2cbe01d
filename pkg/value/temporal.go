// Package value - temporal kinds.
//
// Temporal values are stored as ISO-8601 strings by the property codec and
// exposed as distinct kinds at the expression layer. Arithmetic follows the
// common ISO-8601 convention: month and year components are calendar-aware,
// day and sub-day components are absolute.
package value

import (
	"fmt"
	"strings"
	"time"
)

// Date is a calendar date without a time component.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf truncates a time.Time to its calendar date.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses an ISO-8601 date (2006-01-02).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Time returns the date at midnight UTC.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// Add applies a duration to the date. Months and years shift the calendar;
// days are added absolutely. Sub-day components of dur are ignored.
func (d Date) Add(dur Duration) Date {
	t := d.Time().AddDate(0, int(dur.Months), int(dur.Days))
	return DateOf(t)
}

// Compare orders dates chronologically.
func (d Date) Compare(o Date) int {
	if d.Year != o.Year {
		return intCompare(d.Year, o.Year)
	}
	if d.Month != o.Month {
		return intCompare(int(d.Month), int(o.Month))
	}
	return intCompare(d.Day, o.Day)
}

// DateTime is an instant with timezone.
type DateTime struct {
	Time time.Time
}

// ParseDateTime parses an ISO-8601 datetime, accepting both full RFC 3339
// and a timezone-less local form (interpreted as UTC).
func ParseDateTime(s string) (DateTime, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return DateTime{Time: t}, nil
		}
	}
	return DateTime{}, fmt.Errorf("invalid datetime %q", s)
}

func (d DateTime) String() string {
	return d.Time.Format(time.RFC3339Nano)
}

// Add applies a duration: calendar shift for months, absolute addition for
// days, seconds and nanoseconds.
func (d DateTime) Add(dur Duration) DateTime {
	t := d.Time.AddDate(0, int(dur.Months), int(dur.Days))
	t = t.Add(time.Duration(dur.Seconds)*time.Second + time.Duration(dur.Nanos))
	return DateTime{Time: t}
}

// Compare orders datetimes chronologically.
func (d DateTime) Compare(o DateTime) int {
	return d.Time.Compare(o.Time)
}

// LocalTime is a wall-clock time without a date.
type LocalTime struct {
	Hour   int
	Minute int
	Second int
	Nanos  int
}

// ParseLocalTime parses an ISO-8601 time (15:04:05 or 15:04:05.999999999).
func ParseLocalTime(s string) (LocalTime, error) {
	for _, layout := range []string{"15:04:05.999999999", "15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return LocalTime{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second(), Nanos: t.Nanosecond()}, nil
		}
	}
	return LocalTime{}, fmt.Errorf("invalid time %q", s)
}

func (l LocalTime) String() string {
	if l.Nanos == 0 {
		return fmt.Sprintf("%02d:%02d:%02d", l.Hour, l.Minute, l.Second)
	}
	s := fmt.Sprintf("%02d:%02d:%02d.%09d", l.Hour, l.Minute, l.Second, l.Nanos)
	return strings.TrimRight(s, "0")
}

// Compare orders times within a day.
func (l LocalTime) Compare(o LocalTime) int {
	if l.Hour != o.Hour {
		return intCompare(l.Hour, o.Hour)
	}
	if l.Minute != o.Minute {
		return intCompare(l.Minute, o.Minute)
	}
	if l.Second != o.Second {
		return intCompare(l.Second, o.Second)
	}
	return intCompare(l.Nanos, o.Nanos)
}

// Duration is an ISO-8601 duration split into calendar months, absolute
// days, and sub-day seconds plus nanoseconds. The split keeps calendar
// arithmetic well-defined: P1M is always one calendar month while P30D is
// always thirty absolute days.
type Duration struct {
	Months  int64
	Days    int64
	Seconds int64
	Nanos   int64
}

// ParseDuration parses an ISO-8601 duration such as P1Y2M3DT4H5M6.5S.
func ParseDuration(s string) (Duration, error) {
	orig := s
	if len(s) == 0 || (s[0] != 'P' && s[0] != 'p') {
		return Duration{}, fmt.Errorf("invalid duration %q", orig)
	}
	s = s[1:]
	var d Duration
	inTime := false
	num := ""
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == 'T' || c == 't':
			inTime = true
		case c >= '0' && c <= '9' || c == '-' || c == '+' || c == '.':
			num += string(c)
		default:
			n, fr, err := splitDurationNumber(num)
			if err != nil {
				return Duration{}, fmt.Errorf("invalid duration %q", orig)
			}
			switch {
			case (c == 'Y' || c == 'y') && !inTime:
				d.Months += n * 12
			case (c == 'M' || c == 'm') && !inTime:
				d.Months += n
			case (c == 'W' || c == 'w') && !inTime:
				d.Days += n * 7
			case (c == 'D' || c == 'd') && !inTime:
				d.Days += n
			case (c == 'H' || c == 'h') && inTime:
				d.Seconds += n * 3600
			case (c == 'M' || c == 'm') && inTime:
				d.Seconds += n * 60
			case (c == 'S' || c == 's') && inTime:
				d.Seconds += n
				d.Nanos += fr
			default:
				return Duration{}, fmt.Errorf("invalid duration %q", orig)
			}
			num = ""
		}
	}
	if num != "" {
		return Duration{}, fmt.Errorf("invalid duration %q", orig)
	}
	return d, nil
}

// splitDurationNumber splits a duration component into its whole part and,
// for fractional seconds, a nanosecond remainder.
func splitDurationNumber(num string) (int64, int64, error) {
	if num == "" {
		return 0, 0, fmt.Errorf("empty component")
	}
	frac := ""
	if i := strings.IndexByte(num, '.'); i >= 0 {
		frac = num[i:]
		num = num[:i]
	}
	var n int64
	if _, err := fmt.Sscanf(num, "%d", &n); err != nil {
		return 0, 0, err
	}
	var nanos int64
	if len(frac) > 1 {
		digits := frac[1:]
		for len(digits) < 9 {
			digits += "0"
		}
		digits = digits[:9]
		if _, err := fmt.Sscanf(digits, "%d", &nanos); err != nil {
			return 0, 0, err
		}
		if n < 0 {
			nanos = -nanos
		}
	}
	return n, nanos, nil
}

func (d Duration) String() string {
	var b strings.Builder
	b.WriteByte('P')
	years := d.Months / 12
	months := d.Months % 12
	if years != 0 {
		fmt.Fprintf(&b, "%dY", years)
	}
	if months != 0 {
		fmt.Fprintf(&b, "%dM", months)
	}
	if d.Days != 0 {
		fmt.Fprintf(&b, "%dD", d.Days)
	}
	if d.Seconds != 0 || d.Nanos != 0 {
		b.WriteByte('T')
		hours := d.Seconds / 3600
		minutes := (d.Seconds % 3600) / 60
		secs := d.Seconds % 60
		if hours != 0 {
			fmt.Fprintf(&b, "%dH", hours)
		}
		if minutes != 0 {
			fmt.Fprintf(&b, "%dM", minutes)
		}
		if secs != 0 || d.Nanos != 0 {
			if d.Nanos != 0 {
				fmt.Fprintf(&b, "%s", strings.TrimRight(fmt.Sprintf("%d.%09d", secs, absInt64(d.Nanos)), "0"))
				b.WriteByte('S')
			} else {
				fmt.Fprintf(&b, "%dS", secs)
			}
		}
	}
	if b.Len() == 1 {
		return "PT0S"
	}
	return b.String()
}

// Compare orders durations by their nominal length, treating a month as 30
// absolute days. The ordering is total but, as with ISO-8601 itself, mixed
// calendar/absolute durations have no exact length.
func (d Duration) Compare(o Duration) int {
	a := d.approxNanos()
	b := o.approxNanos()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (d Duration) approxNanos() int64 {
	days := d.Months*30 + d.Days
	return days*24*3600*1e9 + d.Seconds*1e9 + d.Nanos
}

func intCompare(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func absInt64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
