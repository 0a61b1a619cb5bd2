package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Period is a parsed calendar bucket. Sub is the month (1-12) for monthly
// periods, the quarter (1-4) for quarterly ones and zero for annual ones.
type Period struct {
	Frequency Frequency
	Year      int
	Sub       int
}

// String renders the canonical zero-padded form, which sorts lexicographically.
func (p Period) String() string {
	switch p.Frequency {
	case FrequencyMonthly:
		return fmt.Sprintf("%04d-%02d", p.Year, p.Sub)
	case FrequencyQuarterly:
		return fmt.Sprintf("%04d-Q%d", p.Year, p.Sub)
	default:
		return fmt.Sprintf("%04d", p.Year)
	}
}

func ParsePeriod(raw string) (Period, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Period{}, false
	}
	if year, month, ok := parseYearMonth(trimmed); ok {
		return Period{Frequency: FrequencyMonthly, Year: year, Sub: month}, true
	}
	if year, quarter, ok := parseYearQuarter(trimmed); ok {
		return Period{Frequency: FrequencyQuarterly, Year: year, Sub: quarter}, true
	}
	if year, ok := parseYear(trimmed); ok {
		return Period{Frequency: FrequencyAnnual, Year: year}, true
	}
	return Period{}, false
}

// PeriodYear returns the calendar year a period string belongs to.
func PeriodYear(raw string) (int, bool) {
	period, ok := ParsePeriod(raw)
	if !ok {
		return 0, false
	}
	return period.Year, true
}

func IsAnnual(raw string) bool {
	period, ok := ParsePeriod(raw)
	return ok && period.Frequency == FrequencyAnnual
}

func parseYearMonth(value string) (int, int, bool) {
	if len(value) == 6 && isDigits(value) {
		year, _ := strconv.Atoi(value[:4])
		month, _ := strconv.Atoi(value[4:])
		if month >= 1 && month <= 12 {
			return year, month, true
		}
	}

	parts := strings.Split(value, "-")
	if len(parts) == 2 && len(parts[0]) == 4 && isDigits(parts[1]) {
		year, errYear := strconv.Atoi(parts[0])
		month, errMonth := strconv.Atoi(parts[1])
		if errYear == nil && errMonth == nil && month >= 1 && month <= 12 {
			return year, month, true
		}
	}
	return 0, 0, false
}

func parseYearQuarter(value string) (int, int, bool) {
	value = strings.ToUpper(value)
	separator := "Q"
	if strings.Contains(value, "-Q") {
		separator = "-Q"
	}
	parts := strings.Split(value, separator)
	if len(parts) != 2 || len(parts[0]) != 4 {
		return 0, 0, false
	}
	year, errYear := strconv.Atoi(parts[0])
	quarter, errQuarter := strconv.Atoi(parts[1])
	if errYear == nil && errQuarter == nil && quarter >= 1 && quarter <= 4 {
		return year, quarter, true
	}
	return 0, 0, false
}

func parseYear(value string) (int, bool) {
	if len(value) != 4 || !isDigits(value) {
		return 0, false
	}
	year, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return year, true
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
