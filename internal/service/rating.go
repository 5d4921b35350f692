package service

import "math"

// AggregateRating returns the mean of ratings rounded half-up to one decimal,
// or 0 for no ratings.
func AggregateRating(ratings []float64) float64 {
	if len(ratings) == 0 {
		return 0
	}
	var sum float64
	for _, r := range ratings {
		sum += r
	}
	return RoundRating(sum / float64(len(ratings)))
}

// RoundRating rounds v half-up to one decimal place.
func RoundRating(v float64) float64 {
	return math.Floor(v*10+0.5) / 10
}
