package crawl

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// ComputeHash returns the hex xxhash of a page body. Records carry it so
// duplicate content served under different URLs can be spotted downstream.
func ComputeHash(content string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(content))
}

// TruncateURL shortens a URL for progress output, keeping the end.
func TruncateURL(url string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	switch {
	case len(url) <= maxLen:
		return url
	case maxLen < 4:
		// no room for an ellipsis
		return url[:maxLen]
	default:
		return "..." + url[len(url)-maxLen+3:]
	}
}

// FormatBytes renders a body size for summaries, e.g. "1.5 KB".
func FormatBytes(n int) string {
	units := []string{"KB", "MB", "GB"}
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}
	size := float64(n) / 1024
	unit := 0
	for size >= 1024 && unit < len(units)-1 {
		size /= 1024
		unit++
	}
	return fmt.Sprintf("%.1f %s", size, units[unit])
}
