// Package utils holds small helpers shared by the HTTP layer.
package utils

import "fmt"

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB", "PB", "EB"}

// FormatFileSize renders an object size in a human-readable binary unit,
// e.g. "1.5 GB". Negative sizes render as "0 B".
func FormatFileSize(size int64) string {
	if size < 0 {
		size = 0
	}
	if size < 1024 {
		return fmt.Sprintf("%d B", size)
	}
	value := float64(size)
	unit := 0
	for value >= 1024 && unit < len(sizeUnits)-1 {
		value /= 1024
		unit++
	}
	return fmt.Sprintf("%.1f %s", value, sizeUnits[unit])
}
