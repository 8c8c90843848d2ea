package service

import (
	"math"
	"time"
)

const (
	defaultBackoffBase = time.Second
	defaultBackoffMax  = time.Minute
)

func expBackoff(base time.Duration, attempt int, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := math.Pow(2, float64(attempt-1))
	d := time.Duration(float64(base) * mult)
	if d > max || d <= 0 {
		return max
	}
	return d
}
