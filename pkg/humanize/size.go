// Package humanize renders quantities for people.
package humanize

import "fmt"

func Size(i int64) (float64, string) {
	switch {
	case i < 1024:
		return float64(i), "B"
	case i < 1024*1024:
		return float64(i) / 1024, "KB"
	case i < 1024*1024*1024:
		return float64(i) / (1024 * 1024), "MB"
	default:
		return float64(i) / (1024 * 1024 * 1024), "GB"
	}
}

// Bytes formats a byte count with one decimal place, or none for plain
// bytes.
func Bytes(i int64) string {
	n, unit := Size(i)
	if unit == "B" {
		return fmt.Sprintf("%d B", i)
	}

	return fmt.Sprintf("%.1f %s", n, unit)
}
