package exporter

import (
	"strconv"
)

// formatFloat writes the shortest representation that round-trips, so
// 23.1 stays "23.1" and 25 becomes "25"
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// formatYear formats a TimeDim value
func formatYear(y int) string {
	return strconv.Itoa(y)
}
