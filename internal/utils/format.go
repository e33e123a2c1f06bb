package utils

import (
	"fmt"
	"strings"
)

// FormatSpanDuration renders a span duration for display.
// Backends report durations without a unit field; values above one
// million are assumed to be microseconds and converted to milliseconds
// before formatting. Below that the value is taken as milliseconds.
// Examples: "45 ms", "1.50 s", "2.10 min"
func FormatSpanDuration(value float64) string {
	ms := value
	if ms > 1000000 {
		ms = ms / 1000
	}
	if ms < 1000 {
		return fmt.Sprintf("%.0f ms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.2f s", ms/1000)
	}
	return fmt.Sprintf("%.2f min", ms/60000)
}

// FormatNumber formats a number with comma separators
// Examples: 123 -> "123", 1234 -> "1,234", 1234567 -> "1,234,567"
func FormatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}

	str := fmt.Sprintf("%d", n)
	var result []rune
	for i, c := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, c)
	}
	return string(result)
}

// FormatCount renders a float error count without trailing decimals when
// it is whole, which is the common case for windowed increase() results.
func FormatCount(v float64) string {
	if v == float64(int64(v)) && v >= 0 {
		return FormatNumber(int(v))
	}
	return fmt.Sprintf("%.1f", v)
}

// TruncateText truncates text to maxLen characters, adding "..." if truncated
// Also removes newlines for single-line display
func TruncateText(text string, maxLen int) string {
	// Remove newlines for single-line display
	text = strings.ReplaceAll(text, "\n", " ")
	text = strings.TrimSpace(text)

	if len(text) <= maxLen {
		return text
	}
	if maxLen <= 3 {
		return "..."
	}
	return text[:maxLen-3] + "..."
}
