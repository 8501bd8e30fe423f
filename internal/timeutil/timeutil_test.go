package timeutil

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCeil_RoundsUpToNextSecond(t *testing.T) {
	in := time.Date(2026, 1, 1, 0, 0, 0, 500_000_000, time.UTC)
	out := Ceil(in)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC), out)
}

func TestCeil_LeavesExactSecondUnchanged(t *testing.T) {
	in := time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC)
	assert.Equal(t, in, Ceil(in))
}

func TestToTimestamp_NilInputReturnsNil(t *testing.T) {
	assert.Nil(t, ToTimestamp(nil))
}

func TestToTimestampAndFromTimestamp_RoundTrip(t *testing.T) {
	in := time.Date(2026, 3, 15, 10, 20, 30, 0, time.UTC)
	ts := ToTimestamp(&in)
	a := assert.New(t)
	a.NotNil(ts)

	out := FromTimestamp(ts)
	a.NotNil(out)
	a.True(in.Equal(*out))
}

func TestFromTimestamp_NilInputReturnsNil(t *testing.T) {
	assert.Nil(t, FromTimestamp(nil))
}

func TestInfinityTimestamp_IsPositiveInfinity(t *testing.T) {
	assert.True(t, math.IsInf(InfinityTimestamp(), 1))
}

func TestTimestampLess(t *testing.T) {
	a := 1.0
	b := 2.0
	assert.True(t, TimestampLess(&a, &b))
	assert.False(t, TimestampLess(&b, &a))
	assert.False(t, TimestampLess(nil, nil))
	assert.False(t, TimestampLess(nil, &a), "nil sorts last, never less than a real value")
	assert.True(t, TimestampLess(&a, nil), "any real value is less than nil")
}

func TestTimePtr_PointsToAnIndependentCopy(t *testing.T) {
	original := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := TimePtr(original)
	*p = p.Add(time.Hour)
	assert.NotEqual(t, original, *p)
}

func TestDurationPtr_PointsToGivenValue(t *testing.T) {
	p := DurationPtr(5 * time.Second)
	a := assert.New(t)
	a.NotNil(p)
	a.Equal(5*time.Second, *p)
}

func TestMinTimeAndMaxTime(t *testing.T) {
	earlier := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	later := earlier.Add(time.Hour)

	assert.True(t, MinTime(earlier, later).Equal(earlier))
	assert.True(t, MinTime(later, earlier).Equal(earlier))
	assert.True(t, MaxTime(earlier, later).Equal(later))
	assert.True(t, MaxTime(later, earlier).Equal(later))
}

func TestDaysInMonth(t *testing.T) {
	cases := []struct {
		year  int
		month time.Month
		want  int
	}{
		{2026, time.January, 31},
		{2026, time.February, 28},
		{2024, time.February, 29}, // leap year
		{2026, time.April, 30},
		{2026, time.December, 31},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, DaysInMonth(c.year, c.month), "%d-%s", c.year, c.month)
	}
}
