package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDay(t *testing.T) {
	in := time.Date(2024, 5, 17, 18, 42, 3, 999, time.FixedZone("CET", 3600))
	got := Day(in)
	assert.Equal(t, time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC), got)
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2023-11-05")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 11, 5, 0, 0, 0, 0, time.UTC), got)

	_, err = ParseDate("05.11.2023")
	assert.Error(t, err)

	_, err = ParseDate("")
	assert.Error(t, err)
}

func TestDaysBetween(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want int
	}{
		{name: "same_day", a: "2024-01-01", b: "2024-01-01", want: 0},
		{name: "one_day", a: "2024-01-01", b: "2024-01-02", want: 1},
		{name: "across_leap_day", a: "2024-02-28", b: "2024-03-01", want: 2},
		{name: "full_year", a: "2023-01-01", b: "2024-01-01", want: 365},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := ParseDate(tt.a)
			require.NoError(t, err)
			b, err := ParseDate(tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.want, DaysBetween(a, b))
		})
	}
}
