package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/spikewatch/spikewatch/internal/cards"
	"github.com/spikewatch/spikewatch/internal/correlation"
)

// Store persists per-card artifacts: one directory per error card holding
// the card as JSON, the raw trace/log fetches, the deduplicated timeline
// as CSV, and the rendered report. The layout is consumed read-only by
// the report browser.
type Store struct {
	root string
}

// NewStore creates the artifact root if needed.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact root %s: %w", root, err)
	}
	return &Store{root: root}, nil
}

// Root returns the artifact root directory.
func (s *Store) Root() string { return s.root }

// Artifact addresses one card's artifact directory.
type Artifact struct {
	ID  string
	Dir string
}

// CreateCardDir allocates a directory for one card. The name embeds the
// service and window start for human browsing plus a short unique suffix.
func (s *Store) CreateCardDir(card *cards.ErrorCard) (*Artifact, error) {
	stamp := card.Window.Start.UTC().Format("20060102_150405")
	id := uuid.NewString()[:8]
	name := fmt.Sprintf("error_%s_%s_%s", sanitize(card.Service), stamp, id)

	dir := filepath.Join(s.root, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create card directory: %w", err)
	}
	return &Artifact{ID: name, Dir: dir}, nil
}

// SaveJSON writes v as indented JSON under the artifact directory.
func (s *Store) SaveJSON(a *Artifact, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(a.Dir, name), data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// SaveRaw writes a raw fetch body verbatim under the artifact directory.
func (s *Store) SaveRaw(a *Artifact, name string, data []byte) error {
	if err := os.WriteFile(filepath.Join(a.Dir, name), data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// SaveReport writes the rendered report text.
func (s *Store) SaveReport(a *Artifact, text string) error {
	if err := os.WriteFile(filepath.Join(a.Dir, "detailed_rca.md"), []byte(text), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// timelineHeader is the CSV column order; the report browser reads these
// names.
var timelineHeader = []string{
	"timestamp", "trace_id", "span_id", "operation_name", "service_name",
	"duration", "why", "affected", "log_messages", "first_encountered", "last_encountered",
}

// SaveTimeline writes the deduplicated timeline as CSV and returns its path.
func (s *Store) SaveTimeline(a *Artifact, timeline []correlation.Event) (string, error) {
	path := filepath.Join(a.Dir, "correlation_timeline.csv")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create timeline CSV: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(timelineHeader); err != nil {
		return "", fmt.Errorf("failed to write timeline header: %w", err)
	}
	for _, e := range timeline {
		row := []string{
			e.Timestamp, e.TraceID, e.SpanID, e.OperationName, e.ServiceName,
			e.Duration, e.CauseTags, e.AffectedFields, e.LogMessages,
			e.FirstEncountered, e.LastEncountered,
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("failed to write timeline row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to flush timeline CSV: %w", err)
	}
	return path, nil
}

// LoadTimeline reads a timeline CSV back into events, preserving order.
func LoadTimeline(path string) ([]correlation.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open timeline CSV: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read timeline CSV: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("timeline CSV %s is empty", path)
	}

	events := make([]correlation.Event, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) != len(timelineHeader) {
			continue
		}
		events = append(events, correlation.Event{
			Timestamp:        row[0],
			TraceID:          row[1],
			SpanID:           row[2],
			OperationName:    row[3],
			ServiceName:      row[4],
			Duration:         row[5],
			CauseTags:        row[6],
			AffectedFields:   row[7],
			LogMessages:      row[8],
			FirstEncountered: row[9],
			LastEncountered:  row[10],
		})
	}
	return events, nil
}

// sanitize keeps directory names shell- and URL-friendly.
func sanitize(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	return sb.String()
}
