package bonus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeekDateRange_PartitionsEveryMonth(t *testing.T) {
	for _, year := range []int{2023, 2024, 2100} {
		for month := 1; month <= 12; month++ {
			days := DaysInMonth(year, month)
			covered := make(map[int]int)
			nextDay := 1

			for week := 1; week <= WeeksPerMonth; week++ {
				w, err := WeekDateRange(year, month, week, time.UTC)
				require.NoError(t, err)

				if w.Empty() {
					continue
				}
				require.Equal(t, nextDay, w.StartDay, "year %d month %d week %d", year, month, week)
				for d := w.StartDay; d <= w.EndDay; d++ {
					covered[d]++
				}
				nextDay = w.EndDay + 1
			}

			require.Equal(t, days+1, nextDay, "year %d month %d", year, month)
			for d := 1; d <= days; d++ {
				assert.Equal(t, 1, covered[d], "year %d month %d day %d", year, month, d)
			}
		}
	}
}

func TestWeekDateRange_LeapYear(t *testing.T) {
	leap, err := WeekDateRange(2024, 2, 5, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 29, leap.StartDay)
	assert.Equal(t, 29, leap.EndDay)
	assert.False(t, leap.Empty())

	common, err := WeekDateRange(2023, 2, 5, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 28, common.EndDay)
	assert.True(t, common.Empty())
	assert.False(t, common.Contains(time.Date(2023, 2, 28, 12, 0, 0, 0, time.UTC)))

	april, err := WeekDateRange(2024, 4, 5, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 30, april.EndDay)
}

func TestWeekDateRange_FullDayBounds(t *testing.T) {
	loc := time.FixedZone("AST", 3*60*60)

	w, err := WeekDateRange(2024, 3, 2, loc)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 3, 8, 0, 0, 0, 0, loc), w.Start)
	assert.Equal(t, time.Date(2024, 3, 14, 23, 59, 59, 999000000, loc), w.End)
	assert.True(t, w.Contains(time.Date(2024, 3, 14, 23, 59, 59, 0, loc)))
	assert.False(t, w.Contains(time.Date(2024, 3, 15, 0, 0, 0, 0, loc)))
}

func TestWeekDateRange_Invalid(t *testing.T) {
	_, err := WeekDateRange(2024, 1, 0, time.UTC)
	assert.ErrorIs(t, err, ErrInvalidWeek)

	_, err = WeekDateRange(2024, 1, 6, time.UTC)
	assert.ErrorIs(t, err, ErrInvalidWeek)

	_, err = WeekDateRange(2024, 13, 1, time.UTC)
	assert.ErrorIs(t, err, ErrInvalidWeek)
}

func TestComputeWeekWindow(t *testing.T) {
	tests := []struct {
		day      int
		week     int
		startDay int
		endDay   int
	}{
		{day: 1, week: 1, startDay: 1, endDay: 7},
		{day: 7, week: 1, startDay: 1, endDay: 7},
		{day: 8, week: 2, startDay: 8, endDay: 14},
		{day: 21, week: 3, startDay: 15, endDay: 21},
		{day: 22, week: 4, startDay: 22, endDay: 28},
		{day: 31, week: 5, startDay: 29, endDay: 31},
	}

	for _, tt := range tests {
		w := ComputeWeekWindow(time.Date(2024, 1, tt.day, 15, 30, 0, 0, time.UTC))
		assert.Equal(t, tt.week, w.WeekNumber, "day %d", tt.day)
		assert.Equal(t, tt.startDay, w.StartDay, "day %d", tt.day)
		assert.Equal(t, tt.endDay, w.EndDay, "day %d", tt.day)
		assert.Equal(t, 2024, w.Year)
		assert.Equal(t, 1, w.Month)
	}
}

func TestPreviousWindow(t *testing.T) {
	cur := ComputeWeekWindow(time.Date(2024, 3, 8, 9, 0, 0, 0, time.UTC))
	prev := PreviousWindow(cur)
	assert.Equal(t, 1, prev.WeekNumber)
	assert.Equal(t, 3, prev.Month)

	// 1 марта невисокосного года: пятая неделя февраля пуста
	cur = ComputeWeekWindow(time.Date(2023, 3, 1, 9, 0, 0, 0, time.UTC))
	prev = PreviousWindow(cur)
	assert.Equal(t, 2023, prev.Year)
	assert.Equal(t, 2, prev.Month)
	assert.Equal(t, 4, prev.WeekNumber)

	cur = ComputeWeekWindow(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	prev = PreviousWindow(cur)
	assert.Equal(t, 2, prev.Month)
	assert.Equal(t, 5, prev.WeekNumber)

	cur = ComputeWeekWindow(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	prev = PreviousWindow(cur)
	assert.Equal(t, 2023, prev.Year)
	assert.Equal(t, 12, prev.Month)
	assert.Equal(t, 5, prev.WeekNumber)
	assert.Equal(t, 31, prev.EndDay)
}

func TestIsApprovalDay(t *testing.T) {
	for day := 1; day <= 31; day++ {
		want := day == 8 || day == 15 || day == 22 || day == 29
		assert.Equal(t, want, IsApprovalDay(day), "day %d", day)
	}
}
