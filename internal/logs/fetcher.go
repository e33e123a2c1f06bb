package logs

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spikewatch/spikewatch/internal/timewindow"
)

// Record is one log line correlated to a trace. The (TraceID, SpanID)
// pair is a weak reference to a span, resolved by lookup during
// correlation.
type Record struct {
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
	TraceID   string `json:"trace_id"`
	SpanID    string `json:"span_id"`
	Host      string `json:"host"`
	Env       string `json:"env"`
	Service   string `json:"service"`
}

// Fetcher queries the log backend for lines scoped to a trace ID.
type Fetcher struct {
	url    string
	limit  int
	client *http.Client
}

// NewFetcher creates a log fetcher against the LogsQL query endpoint.
func NewFetcher(queryURL string, limit int, timeout time.Duration) *Fetcher {
	return &Fetcher{
		url:    queryURL,
		limit:  limit,
		client: &http.Client{Timeout: timeout},
	}
}

// FetchLogs fetches logs for one trace ID within the window. Absent logs
// are common: any failure yields an empty result, never an error. The raw
// response body is returned alongside for artifact persistence.
func (f *Fetcher) FetchLogs(ctx context.Context, traceID string, window timewindow.Window) ([]Record, []byte) {
	query := fmt.Sprintf(`{} _time:[%d,%d) (trace_id:=%q OR trace.id:=%q)`,
		window.StartEpoch(), window.EndEpoch(), traceID, traceID)

	form := url.Values{}
	form.Set("query", query)
	form.Set("limit", strconv.Itoa(f.limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, nil
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil
	}

	return ParseRecords(body), body
}

// ParseRecords decodes a log query response body: either one JSON array
// of objects or line-delimited JSON. Unparseable lines are skipped.
func ParseRecords(body []byte) []Record {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}

	var rows []map[string]any
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return nil
		}
	} else {
		scanner := bufio.NewScanner(bytes.NewReader(trimmed))
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var row map[string]any
			if err := json.Unmarshal(line, &row); err != nil {
				continue
			}
			rows = append(rows, row)
		}
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, Record{
			Timestamp: firstField(row, "_time", "timestamp"),
			Message:   firstField(row, "_msg", "message"),
			TraceID:   firstField(row, "trace.id", "trace_id"),
			SpanID:    firstField(row, "span.id", "span_id"),
			Host:      firstField(row, "host.name", "host"),
			Env:       firstField(row, "env"),
			Service:   firstField(row, "service.name", "service"),
		})
	}
	return records
}

// firstField returns the first non-empty candidate field as a string.
// Backends disagree on field naming and sometimes on value types.
func firstField(row map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := row[k]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			if t != "" {
				return t
			}
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(t)
		}
	}
	return ""
}

// ParseTime parses a record's timestamp using the shared tolerant parser.
func (r Record) ParseTime() (time.Time, error) {
	return timewindow.ParseTimestamp(r.Timestamp)
}
