package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macrodb/internal/model"
)

func series(values map[string]float64, order ...string) []model.Observation {
	observations := make([]model.Observation, 0, len(order))
	for _, period := range order {
		observations = append(observations, model.Observation{
			IndicatorCode: "EU_GDP",
			Period:        period,
			Value:         values[period],
			Status:        model.StatusActual,
		})
	}
	return observations
}

func values(observations []model.Observation) []float64 {
	result := make([]float64, 0, len(observations))
	for _, observation := range observations {
		result = append(result, observation.Value)
	}
	return result
}

func TestRebaseMeanAlreadyHundred(t *testing.T) {
	in := series(map[string]float64{"2010-Q1": 95, "2010-Q2": 105, "2011-Q1": 110}, "2010-Q1", "2010-Q2", "2011-Q1")

	got := Rebase(in, 2010)
	require.True(t, got.Applied)
	assert.Empty(t, got.Skipped)
	assert.Equal(t, []float64{95, 105, 110}, values(got.Observations))
}

func TestRebaseScales(t *testing.T) {
	in := series(map[string]float64{"2009-Q4": 45, "2010-Q1": 40, "2010-Q3": 60, "2011-Q1": 110}, "2009-Q4", "2010-Q1", "2010-Q3", "2011-Q1")

	got := Rebase(in, 2010)
	require.True(t, got.Applied)
	assert.Equal(t, []float64{90, 80, 120, 220}, values(got.Observations))
	assert.Equal(t, 45.0, in[0].Value, "input must not be modified")
}

func TestRebaseRounds(t *testing.T) {
	in := series(map[string]float64{"2010": 3, "2011": 1}, "2010", "2011")

	got := Rebase(in, 2010)
	assert.Equal(t, []float64{100, 33.33}, values(got.Observations))

	tie := series(map[string]float64{"2010": 800, "2011": 801}, "2010", "2011")
	got = Rebase(tie, 2010)
	assert.Equal(t, []float64{100, 100.12}, values(got.Observations))
}

func TestRebaseSkipped(t *testing.T) {
	noBase := series(map[string]float64{"2012-01": 4, "2013-01": 5}, "2012-01", "2013-01")
	got := Rebase(noBase, 2010)
	assert.False(t, got.Applied)
	assert.Contains(t, got.Skipped, "no observations")
	assert.Equal(t, []float64{4, 5}, values(got.Observations))

	zero := series(map[string]float64{"2010-Q1": -1, "2010-Q2": 1, "2011-Q1": 7}, "2010-Q1", "2010-Q2", "2011-Q1")
	got = Rebase(zero, 2010)
	assert.False(t, got.Applied)
	assert.Contains(t, got.Skipped, "zero")
	assert.Equal(t, []float64{-1, 1, 7}, values(got.Observations))

	got = Rebase(nil, 2010)
	assert.False(t, got.Applied)
	assert.Empty(t, got.Observations)
}

func TestBaseYear(t *testing.T) {
	year, ok := BaseYear("index_2010")
	require.True(t, ok)
	assert.Equal(t, 2010, year)

	for _, unit := range []string{"pct_yoy", "index_", "index_20x0", "index_20100", "EUR_mn", ""} {
		_, ok := BaseYear(unit)
		assert.False(t, ok, unit)
	}
}
