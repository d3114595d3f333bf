// Package utils provides shared utility functions.
package utils

import (
	"fmt"
	"math"
)

// FormatPercent formats a percentage with an explicit sign.
func FormatPercent(value float64) string {
	return fmt.Sprintf("%+.2f%%", value)
}

// FormatVolume formats a share volume in compact form (K/M/B).
func FormatVolume(volume float64) string {
	abs := math.Abs(volume)
	switch {
	case abs >= 1e9:
		return fmt.Sprintf("%.2fB", volume/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("%.2fM", volume/1e6)
	case abs >= 1e3:
		return fmt.Sprintf("%.2fK", volume/1e3)
	default:
		return fmt.Sprintf("%.0f", volume)
	}
}

// Clamp bounds v to the inclusive range [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Truncate shortens s to at most n runes.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
