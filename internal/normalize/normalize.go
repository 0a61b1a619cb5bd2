// Package normalize rebases index series onto a reference year.
package normalize

import (
	"fmt"
	"strconv"
	"strings"

	"macrodb/internal/model"
)

const indexUnitPrefix = "index_"

// Result carries the rebased observations. When the rebase could not be
// applied, Observations is an unchanged copy and Skipped explains why.
type Result struct {
	Observations []model.Observation
	Applied      bool
	Skipped      string
}

// BaseYear extracts the reference year from an "index_YYYY" unit.
func BaseYear(unit string) (int, bool) {
	if !strings.HasPrefix(unit, indexUnitPrefix) {
		return 0, false
	}
	raw := strings.TrimPrefix(unit, indexUnitPrefix)
	if len(raw) != 4 {
		return 0, false
	}
	year, err := strconv.Atoi(raw)
	if err != nil || year <= 0 {
		return 0, false
	}
	return year, true
}

// Rebase scales the series so that the mean of the base-year observations
// equals 100. Values are rounded to two decimals, ties to even.
func Rebase(observations []model.Observation, baseYear int) Result {
	out := make([]model.Observation, len(observations))
	copy(out, observations)

	var (
		sum   float64
		count int
	)
	for _, observation := range out {
		year, ok := model.PeriodYear(observation.Period)
		if !ok || year != baseYear {
			continue
		}
		sum += observation.Value
		count++
	}
	if count == 0 {
		return Result{
			Observations: out,
			Skipped:      fmt.Sprintf("no observations in base year %d", baseYear),
		}
	}
	mean := sum / float64(count)
	if mean == 0 {
		return Result{
			Observations: out,
			Skipped:      fmt.Sprintf("base year %d averages to zero", baseYear),
		}
	}

	for i := range out {
		out[i].Value = model.Round2(out[i].Value / mean * 100)
	}
	return Result{Observations: out, Applied: true}
}
