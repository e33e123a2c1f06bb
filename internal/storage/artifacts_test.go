package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spikewatch/spikewatch/internal/cards"
	"github.com/spikewatch/spikewatch/internal/correlation"
	"github.com/spikewatch/spikewatch/internal/timewindow"
)

func testCard() *cards.ErrorCard {
	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	return &cards.ErrorCard{
		Service: "checkout/api",
		Window:  timewindow.Window{Start: start, End: start.Add(5 * time.Minute)},
	}
}

func TestCreateCardDir(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}

	artifact, err := store.CreateCardDir(testCard())
	if err != nil {
		t.Fatalf("CreateCardDir error: %v", err)
	}

	if !strings.HasPrefix(artifact.ID, "error_checkout_api_20250601_100000_") {
		t.Errorf("artifact ID = %q; want sanitized service and window stamp prefix", artifact.ID)
	}
	if info, err := os.Stat(artifact.Dir); err != nil || !info.IsDir() {
		t.Errorf("artifact dir %s not created: %v", artifact.Dir, err)
	}

	// A second card for the same window gets a distinct directory.
	other, err := store.CreateCardDir(testCard())
	if err != nil {
		t.Fatalf("second CreateCardDir error: %v", err)
	}
	if other.ID == artifact.ID {
		t.Error("two cards should never share an artifact directory")
	}
}

func TestSaveJSONAndRaw(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}
	artifact, err := store.CreateCardDir(testCard())
	if err != nil {
		t.Fatalf("CreateCardDir error: %v", err)
	}

	if err := store.SaveJSON(artifact, "error_card.json", testCard()); err != nil {
		t.Fatalf("SaveJSON error: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(artifact.Dir, "error_card.json"))
	if err != nil {
		t.Fatalf("failed to read saved JSON: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("saved JSON is not valid: %v", err)
	}
	if decoded["service"] != "checkout/api" {
		t.Errorf("saved service = %v; want checkout/api", decoded["service"])
	}

	raw := []byte(`{"anything": true}`)
	if err := store.SaveRaw(artifact, "trace.json", raw); err != nil {
		t.Fatalf("SaveRaw error: %v", err)
	}
	back, err := os.ReadFile(filepath.Join(artifact.Dir, "trace.json"))
	if err != nil || string(back) != string(raw) {
		t.Errorf("raw body not persisted verbatim: %v", err)
	}
}

func TestSaveReport(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}
	artifact, err := store.CreateCardDir(testCard())
	if err != nil {
		t.Fatalf("CreateCardDir error: %v", err)
	}

	if err := store.SaveReport(artifact, "# Report\n"); err != nil {
		t.Fatalf("SaveReport error: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(artifact.Dir, "detailed_rca.md"))
	if err != nil || string(data) != "# Report\n" {
		t.Errorf("report not persisted: %v", err)
	}
}

func TestTimelineRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}
	artifact, err := store.CreateCardDir(testCard())
	if err != nil {
		t.Fatalf("CreateCardDir error: %v", err)
	}

	timeline := []correlation.Event{
		{
			Timestamp:        "2025-06-01 15:31:00.000 IST",
			TraceID:          "abc",
			SpanID:           "s1",
			OperationName:    "POST /pay",
			ServiceName:      "checkout",
			Duration:         "12 ms",
			CauseTags:        "http.status_code: 503",
			AffectedFields:   "http.url: /pay",
			LogMessages:      "line one\nline two, with comma",
			FirstEncountered: "2025-06-01 15:30:30.000 IST",
			LastEncountered:  "2025-06-01 15:32:00.000 IST",
		},
		{
			Timestamp:     "2025-06-01 15:31:05.000 IST",
			TraceID:       "def",
			OperationName: "charge",
			ServiceName:   "payments",
			Duration:      "1.20 s",
		},
	}

	path, err := store.SaveTimeline(artifact, timeline)
	if err != nil {
		t.Fatalf("SaveTimeline error: %v", err)
	}

	loaded, err := LoadTimeline(path)
	if err != nil {
		t.Fatalf("LoadTimeline error: %v", err)
	}
	if len(loaded) != len(timeline) {
		t.Fatalf("round trip lost events: %d -> %d", len(timeline), len(loaded))
	}
	for i := range timeline {
		if loaded[i] != timeline[i] {
			t.Errorf("event %d changed in round trip:\n got %+v\nwant %+v", i, loaded[i], timeline[i])
		}
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"checkout", "checkout"},
		{"checkout/api", "checkout_api"},
		{"svc name:v2", "svc_name_v2"},
		{"UP-low_9", "UP-low_9"},
	}
	for _, tt := range tests {
		if got := sanitize(tt.input); got != tt.want {
			t.Errorf("sanitize(%q) = %q; want %q", tt.input, got, tt.want)
		}
	}
}
