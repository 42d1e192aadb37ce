package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestTradingDatesSkipsWeekends(t *testing.T) {
	// Fri 2024-01-05 through Tue 2024-01-09.
	dates := TradingDates(day("2024-01-05"), day("2024-01-09"), nil)

	require.Len(t, dates, 3)
	assert.Equal(t, day("2024-01-05"), dates[0])
	assert.Equal(t, day("2024-01-08"), dates[1])
	assert.Equal(t, day("2024-01-09"), dates[2])
}

func TestTradingDatesFullWeek(t *testing.T) {
	// Mon 2024-01-01 through Sun 2024-01-07.
	dates := TradingDates(day("2024-01-01"), day("2024-01-07"), Weekdays)
	assert.Len(t, dates, 5)
}

func TestTradingDatesSingleDay(t *testing.T) {
	dates := TradingDates(day("2024-01-03"), day("2024-01-03"), Weekdays)
	require.Len(t, dates, 1)

	assert.Empty(t, TradingDates(day("2024-01-06"), day("2024-01-07"), Weekdays))
}

func TestTradingDatesEmptyWhenInverted(t *testing.T) {
	assert.Empty(t, TradingDates(day("2024-01-09"), day("2024-01-05"), Weekdays))
}

func TestTradingDatesCustomPredicate(t *testing.T) {
	noNinth := func(d time.Time) bool { return Weekdays(d) && d.Day() != 9 }
	dates := TradingDates(day("2024-01-05"), day("2024-01-09"), noNinth)

	require.Len(t, dates, 2)
	assert.Equal(t, day("2024-01-08"), dates[1])
}

func TestResolveRangeDefaults(t *testing.T) {
	now := day("2024-06-15").Add(14 * time.Hour)

	start, end := ResolveRange(time.Time{}, time.Time{}, now, 0)
	assert.Equal(t, day("2024-06-14"), end)
	assert.Equal(t, day("2024-06-14").AddDate(0, 0, -DefaultRangeDays), start)
}

func TestResolveRangeConfiguredDays(t *testing.T) {
	now := day("2024-06-15")

	start, end := ResolveRange(time.Time{}, time.Time{}, now, 30)
	assert.Equal(t, day("2024-06-14"), end)
	assert.Equal(t, day("2024-05-15"), start)
}

func TestResolveRangeExplicitDatesTruncated(t *testing.T) {
	start, end := ResolveRange(
		day("2024-01-02").Add(9*time.Hour),
		day("2024-03-28").Add(16*time.Hour),
		day("2024-06-15"),
		0,
	)
	assert.Equal(t, day("2024-01-02"), start)
	assert.Equal(t, day("2024-03-28"), end)
}
