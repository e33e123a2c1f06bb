package traces

import (
	"strconv"
	"strings"
)

// Tag vocabularies differ across instrumentation libraries; the
// classifier checks each known encoding of error state in priority order.
var (
	statusCodeTagKeys = []string{
		"http.statusCode", "http.status_code", "httpResponseCode", "response.status", "response.statusCode",
	}
	errorPresenceTagKeys = []string{
		"error.class", "error.expected", "otel.status_description",
	}
)

// IsErrorSpan determines whether the tags mark a span as an error.
// Rules are evaluated in order until one matches:
//  1. a status-bearing tag holds a 5xx value
//  2. the OpenTelemetry status equals ERROR (case-insensitive)
//  3. a true-like "error" tag is present
//  4. an error class / expected / status description tag is present at all
//
// Missing and mixed-typed tag values never cause a failure.
func IsErrorSpan(tags Tags) bool {
	for _, key := range statusCodeTagKeys {
		v, ok := tags[key]
		if !ok || v == "" {
			continue
		}
		if is5xx(v) {
			return true
		}
	}

	if v, ok := tags["otel.status_code"]; ok && strings.EqualFold(v, "ERROR") {
		return true
	}

	if v, ok := tags["error"]; ok && strings.EqualFold(v, "true") {
		return true
	}

	return tags.Has(errorPresenceTagKeys...)
}

// is5xx accepts both the 3-digit string form ("503") and numeric values
// in [500, 599] that arrive as int or float encodings.
func is5xx(v string) bool {
	if len(v) == 3 && v[0] == '5' && isDigits(v) {
		return true
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		n := int(f)
		return n >= 500 && n <= 599
	}
	return false
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}
