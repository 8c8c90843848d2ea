package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deadline-bot/internal/service"
)

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"1d12h30m", 36*time.Hour + 30*time.Minute},
		{"2d", 48 * time.Hour},
		{"45m", 45 * time.Minute},
		{" 1D 2H ", 26 * time.Hour},
		{"1h 1h", 2 * time.Hour},
		{"106751d", 106751 * 24 * time.Hour},
	}
	for _, tt := range tests {
		got, err := service.ParsePeriod(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "abc", "0m", "5", "1w", "1h and 2m", "-1h"} {
		_, err := service.ParsePeriod(bad)
		assert.ErrorIs(t, err, service.ErrInvalidPeriod, bad)
	}
}

func TestParsePeriodRejectsOverflow(t *testing.T) {
	for _, in := range []string{"213504d", "300000d", "106751d24h", "2562048h", "99999999999999999999m"} {
		got, err := service.ParsePeriod(in)
		assert.ErrorIs(t, err, service.ErrInvalidPeriod, in)
		assert.Zero(t, got, in)
	}
}

func TestParseDateTime(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	got, err := service.ParseDateTime(" 2025-04-03 18:30 ", loc)
	require.NoError(t, err)
	assert.True(t, time.Date(2025, 4, 3, 15, 30, 0, 0, time.UTC).Equal(got))

	for _, bad := range []string{"2025-04-03", "03.04.2025 18:30", "2025-13-01 10:00", "tomorrow"} {
		_, err := service.ParseDateTime(bad, loc)
		assert.ErrorIs(t, err, service.ErrInvalidDateTime, bad)
	}
}

func TestParseDate(t *testing.T) {
	got, err := service.ParseDate("2025-04-03", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 4, 3, 0, 0, 0, 0, time.UTC), got)

	_, err = service.ParseDate("2025-04-03 10:00", time.UTC)
	assert.ErrorIs(t, err, service.ErrInvalidDate)
}

func TestParseCountAndYesNo(t *testing.T) {
	n, err := service.ParseCount(" 3 ")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	for _, bad := range []string{"0", "-2", "many"} {
		_, err := service.ParseCount(bad)
		assert.ErrorIs(t, err, service.ErrInvalidCount, bad)
	}

	for in, want := range map[string]bool{"yes": true, "Y": true, "no": false, " N ": false} {
		got, err := service.ParseYesNo(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err = service.ParseYesNo("maybe")
	assert.Error(t, err)
}
