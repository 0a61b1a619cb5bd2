package model

import "strconv"

// Round2 rounds to two decimals using the exact binary value of v, so ties
// such as 100.125 go to the even digit and 2.675 (stored just below) rounds down.
func Round2(v float64) float64 {
	rounded, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	if err != nil {
		return v
	}
	return rounded
}
