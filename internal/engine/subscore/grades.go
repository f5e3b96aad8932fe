// Package subscore implements the five calculators that feed the composite
// score: momentum quality, fundamental quality, technical oversold, market
// regime and valuation context. Each returns a score on [0,100].
package subscore

import (
	"strings"

	"threshold-engine/internal/engine/model"
)

// gradeToNum maps letter grades to their 13-point scale, A+ high.
var gradeToNum = map[string]int{
	"A+": 13, "A": 12, "A-": 11,
	"B+": 10, "B": 9, "B-": 8,
	"C+": 7, "C": 6, "C-": 5,
	"D+": 4, "D": 3, "D-": 2,
	"F": 1,
}

// GradeNorm converts a letter grade to a normalized score in [0,1], with
// A+ = 1.0 and F = 0.0. The boolean is false for empty or unrecognized
// grades; callers treat those as unavailable components rather than neutral.
func GradeNorm(g model.Grade) (float64, bool) {
	s := strings.ToUpper(strings.TrimSpace(string(g)))
	if s == "" || s == "N/A" || s == "NONE" || s == "-" {
		return 0, false
	}
	num, ok := gradeToNum[s]
	if !ok {
		return 0, false
	}
	return float64(num-1) / 12.0, true
}
