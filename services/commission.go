package services

import "math"

// CalculateCommission returns the platform's cut of total at rate, rounded to
// cents, and the rate expressed as a percentage.
func CalculateCommission(total, rate float64) (amount, percentage float64) {
	amount = math.Round(total*rate*100) / 100
	percentage = math.Round(rate*10000) / 100
	return amount, percentage
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
