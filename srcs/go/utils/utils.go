package utils

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"
)

func ExitErr(err error) {
	fmt.Fprintf(os.Stderr, "exit on error: %v\n", err)
	os.Exit(1)
}

func Measure(f func() error) (time.Duration, error) {
	t0 := time.Now()
	err := f()
	d := time.Since(t0)
	return d, err
}

// Rate returns n per second, 0 if d is not positive.
func Rate(n int64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / d.Seconds()
}

func ShowSize(n int64) string {
	const Ki = 1 << 10
	const Mi = 1 << 20
	const Gi = 1 << 30
	switch {
	case n < Ki:
		return fmt.Sprintf("%dB", n)
	case n < Mi:
		return fmt.Sprintf("%.2fKiB", float64(n)/Ki)
	case n < Gi:
		return fmt.Sprintf("%.2fMiB", float64(n)/Mi)
	default:
		return fmt.Sprintf("%.2fGiB", float64(n)/Gi)
	}
}

// SeedFor derives the random seed of a worker from its rank.
func SeedFor(rank int) int64 {
	const base = 1234
	return base + int64(rank)
}

func NewRand(rank int) *rand.Rand {
	return rand.New(rand.NewSource(SeedFor(rank)))
}

// Perplexity returns exp(loss), saturating instead of overflowing.
func Perplexity(loss float64) float64 {
	if loss > 700 {
		return math.Inf(1)
	}
	return math.Exp(loss)
}

func pluralize(n int, singular, plural string) string {
	if n > 1 {
		return plural
	}
	return singular
}

func Pluralize(n int, singular, plural string) string {
	return fmt.Sprintf("%d %s", n, pluralize(n, singular, plural))
}
