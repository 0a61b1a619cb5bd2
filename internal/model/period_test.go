package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePeriod(t *testing.T) {
	cases := []struct {
		raw  string
		want Period
	}{
		{"2021", Period{Frequency: FrequencyAnnual, Year: 2021}},
		{"2021-Q3", Period{Frequency: FrequencyQuarterly, Year: 2021, Sub: 3}},
		{"2021q4", Period{Frequency: FrequencyQuarterly, Year: 2021, Sub: 4}},
		{"2021-07", Period{Frequency: FrequencyMonthly, Year: 2021, Sub: 7}},
		{"202112", Period{Frequency: FrequencyMonthly, Year: 2021, Sub: 12}},
		{" 2010-Q1 ", Period{Frequency: FrequencyQuarterly, Year: 2010, Sub: 1}},
	}
	for _, tc := range cases {
		got, ok := ParsePeriod(tc.raw)
		require.True(t, ok, tc.raw)
		assert.Equal(t, tc.want, got, tc.raw)
	}
}

func TestParsePeriodRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "20", "2021-Q5", "2021-13", "abcd", "2021-W01"} {
		_, ok := ParsePeriod(raw)
		assert.False(t, ok, raw)
	}
}

func TestPeriodStringSortsLexicographically(t *testing.T) {
	a := Period{Frequency: FrequencyMonthly, Year: 2020, Sub: 9}
	b := Period{Frequency: FrequencyMonthly, Year: 2020, Sub: 10}
	assert.Equal(t, "2020-09", a.String())
	assert.Less(t, a.String(), b.String())
}

func TestPeriodYearAndAnnual(t *testing.T) {
	year, ok := PeriodYear("2010-Q2")
	require.True(t, ok)
	assert.Equal(t, 2010, year)

	assert.True(t, IsAnnual("2019"))
	assert.False(t, IsAnnual("2019-Q1"))
	assert.Equal(t, "Provisional", StatusProvisional.Label())
	assert.Equal(t, "unknown", StatusUnknown.Label())
	assert.Equal(t, "E", ObsStatus("E").Label())
}
