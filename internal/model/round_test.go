package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRound2(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{801.0 / 800 * 100, 100.12},
		{0.125, 0.12},
		{0.375, 0.38},
		{2.675, 2.67},
		{-4.125, -4.12},
		{1.234, 1.23},
		{100, 100},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Round2(tc.in), "%v", tc.in)
	}
}
