package traces

import "testing"

func TestIsErrorSpan(t *testing.T) {
	tests := []struct {
		name string
		tags Tags
		want bool
	}{
		{"empty tags", Tags{}, false},
		{"5xx string status", Tags{"http.status_code": "503"}, true},
		{"5xx alternate key", Tags{"httpResponseCode": "500"}, true},
		{"5xx float encoding", Tags{"http.statusCode": "503.0"}, true},
		{"2xx status", Tags{"http.status_code": "200"}, false},
		{"4xx status", Tags{"http.status_code": "404"}, false},
		{"otel error", Tags{"otel.status_code": "ERROR"}, true},
		{"otel error lowercase", Tags{"otel.status_code": "error"}, true},
		{"otel ok", Tags{"otel.status_code": "OK"}, false},
		{"error flag true", Tags{"error": "true"}, true},
		{"error flag false", Tags{"error": "false"}, false},
		{"error class present", Tags{"error.class": "java.io.IOException"}, true},
		{"error expected present even empty", Tags{"error.expected": ""}, true},
		{"status description present", Tags{"otel.status_description": "deadline exceeded"}, true},
		{"status wins over healthy otel", Tags{"http.status_code": "503", "otel.status_code": "OK"}, true},
		{"garbage status ignored", Tags{"http.status_code": "5xx"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsErrorSpan(tt.tags); got != tt.want {
				t.Errorf("IsErrorSpan(%v) = %v; want %v", tt.tags, got, tt.want)
			}
		})
	}
}

func TestIsErrorSpanKeyOrderIrrelevant(t *testing.T) {
	// Same semantic content under different status keys must classify
	// identically.
	variants := []Tags{
		{"http.status_code": "502", "component": "http"},
		{"httpResponseCode": "502", "component": "http"},
		{"response.status": "502", "component": "http"},
		{"response.statusCode": "502", "component": "http"},
	}
	for i, tags := range variants {
		if !IsErrorSpan(tags) {
			t.Errorf("variant %d should classify as error: %v", i, tags)
		}
	}
}

func TestIs5xx(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"500", true},
		{"599", true},
		{"503.0", true},
		{"499", false},
		{"600", false},
		{"200", false},
		{"", false},
		{"abc", false},
	}
	for _, tt := range tests {
		if got := is5xx(tt.input); got != tt.want {
			t.Errorf("is5xx(%q) = %v; want %v", tt.input, got, tt.want)
		}
	}
}
