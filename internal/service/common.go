package service

import (
	"math"
	"strings"
)

func validateIntRange(field string, value, min, max int) error {
	if value < min || value > max {
		return invalid(field, "must be between %d and %d", min, max)
	}
	return nil
}

func validateFloatRange(field string, value, min, max float64) error {
	if math.IsNaN(value) || value < min || value > max {
		return invalid(field, "must be between %g and %g", min, max)
	}
	return nil
}

func normalizeName(name string) string {
	return strings.TrimSpace(strings.ToLower(name))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// percentOf is value/target*100 rounded to one decimal; zero when target <= 0.
func percentOf(value, target float64) float64 {
	if target <= 0 {
		return 0
	}
	return round1(value / target * 100)
}
