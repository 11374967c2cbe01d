package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDateRoundTrip(t *testing.T) {
	d, err := ParseDate("2024-01-15")
	require.NoError(t, err)
	assert.Equal(t, Date{Year: 2024, Month: 1, Day: 15}, d)
	assert.Equal(t, "2024-01-15", d.String())

	_, err = ParseDate("2024-13-01")
	assert.Error(t, err)
	_, err = ParseDate("not a date")
	assert.Error(t, err)
}

func TestDateAddCalendarMonths(t *testing.T) {
	d, err := ParseDate("2024-01-31")
	require.NoError(t, err)
	// Adding a calendar month past the end of February normalizes forward.
	got := d.Add(Duration{Months: 1})
	assert.Equal(t, "2024-03-02", got.String())

	d2, err := ParseDate("2024-02-28")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", d2.Add(Duration{Days: 1}).String())
	assert.Equal(t, "2025-02-28", d2.Add(Duration{Months: 12}).String())
}

func TestParseDateTimeVariants(t *testing.T) {
	for _, s := range []string{
		"2024-01-15T10:30:00Z",
		"2024-01-15T10:30:00+02:00",
		"2024-01-15T10:30:00",
		"2024-01-15 10:30:00",
	} {
		_, err := ParseDateTime(s)
		assert.NoError(t, err, s)
	}
	_, err := ParseDateTime("10:30")
	assert.Error(t, err)
}

func TestDateTimeAdd(t *testing.T) {
	dt, err := ParseDateTime("2024-01-31T12:00:00Z")
	require.NoError(t, err)
	got := dt.Add(Duration{Months: 1, Seconds: 3600})
	assert.Equal(t, "2024-03-02T13:00:00Z", got.String())
}

func TestParseLocalTime(t *testing.T) {
	lt, err := ParseLocalTime("10:30:05")
	require.NoError(t, err)
	assert.Equal(t, LocalTime{Hour: 10, Minute: 30, Second: 5}, lt)
	assert.Equal(t, "10:30:05", lt.String())

	lt, err = ParseLocalTime("10:30:05.5")
	require.NoError(t, err)
	assert.Equal(t, 500000000, lt.Nanos)
	assert.Equal(t, "10:30:05.5", lt.String())

	_, err = ParseLocalTime("25:00:00")
	assert.Error(t, err)
}

func TestParseDurationComponents(t *testing.T) {
	cases := []struct {
		in   string
		want Duration
	}{
		{"P1Y", Duration{Months: 12}},
		{"P2M", Duration{Months: 2}},
		{"P3W", Duration{Days: 21}},
		{"P4D", Duration{Days: 4}},
		{"PT5H", Duration{Seconds: 18000}},
		{"PT6M", Duration{Seconds: 360}},
		{"PT7S", Duration{Seconds: 7}},
		{"PT0.5S", Duration{Nanos: 500000000}},
		{"P1Y2M3DT4H5M6S", Duration{Months: 14, Days: 3, Seconds: 14706}},
	}
	for _, c := range cases {
		got, err := ParseDuration(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

func TestParseDurationRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "1Y", "P", "PT", "P1X", "PTH", "P1"} {
		if s == "P" || s == "PT" {
			// Bare designators parse to the zero duration.
			d, err := ParseDuration(s)
			assert.NoError(t, err, s)
			assert.Equal(t, Duration{}, d)
			continue
		}
		_, err := ParseDuration(s)
		assert.Error(t, err, s)
	}
}

func TestDurationString(t *testing.T) {
	cases := []struct {
		d    Duration
		want string
	}{
		{Duration{}, "PT0S"},
		{Duration{Months: 14}, "P1Y2M"},
		{Duration{Days: 3, Seconds: 3661}, "P3DT1H1M1S"},
		{Duration{Nanos: 500000000}, "PT0.5S"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.d.String())
	}
}

func TestDurationCompareNominal(t *testing.T) {
	month := Duration{Months: 1}
	days29 := Duration{Days: 29}
	days31 := Duration{Days: 31}
	assert.Positive(t, month.Compare(days29))
	assert.Negative(t, month.Compare(days31))
	assert.Zero(t, month.Compare(Duration{Days: 30}))
}
