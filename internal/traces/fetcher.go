package traces

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spikewatch/spikewatch/internal/cards"
	"github.com/spikewatch/spikewatch/internal/timewindow"
)

// Span is one unit of work in a distributed trace, with trace and span
// identifiers decoded to canonical hex. Referenced, never mutated, once
// parsed.
type Span struct {
	TraceID       string  `json:"trace_id"`
	SpanID        string  `json:"span_id"`
	OperationName string  `json:"operation_name"`
	StartTime     string  `json:"start_time"`
	Duration      float64 `json:"duration"`
	Tags          Tags    `json:"tags"`
	IsError       bool    `json:"is_error"`
	ServiceName   string  `json:"service_name"`
}

// Fetcher resolves trace IDs matching an error card and fetches full
// trace details per ID.
type Fetcher struct {
	searchURL string
	detailURL string
	limit     int
	client    *http.Client
}

// NewFetcher creates a trace fetcher against the search and detail backends.
func NewFetcher(searchURL, detailURL string, limit int, timeout time.Duration) *Fetcher {
	return &Fetcher{
		searchURL: searchURL,
		detailURL: detailURL,
		limit:     limit,
		client:    &http.Client{Timeout: timeout},
	}
}

// searchBundle is the trace-search response: a list of trace wrappers
// whose spans carry base64-encoded binary identifiers.
type searchBundle []struct {
	Trace struct {
		Spans []struct {
			TraceID string `json:"trace_id"`
		} `json:"spans"`
	} `json:"trace"`
}

// SearchTraceIDs queries the trace-search backend for traces matching the
// card within the window and returns deduplicated hex trace IDs plus the
// raw response body for artifact persistence.
func (f *Fetcher) SearchTraceIDs(ctx context.Context, card *cards.ErrorCard, window timewindow.Window) ([]string, []byte, error) {
	params := url.Values{}
	params.Set("query", `"span_kind":in("server","consumer")`)
	params.Set("sortBy", "")
	params.Set("index", "-")
	params.Set("env", card.Env)
	params.Set("service", card.Service)
	params.Set("host", "-")
	params.Set("version", "-")
	params.Set("category", "")
	params.Set("rootName", card.RootName)
	params.Set("spanName", "")
	params.Set("spanKind", "-")
	params.Set("start", strconv.FormatInt(window.StartEpoch(), 10))
	params.Set("end", strconv.FormatInt(window.EndEpoch(), 10))
	params.Set("exception", card.Exception)
	params.Set("limit", strconv.Itoa(f.limit))
	// "ERROR" cards match on generic status; real HTTP codes pass through
	params.Set("status_code", card.HTTPCode)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.searchURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build trace search request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("trace search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, fmt.Errorf("trace search backend returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read trace search response: %w", err)
	}

	var bundle searchBundle
	if err := json.Unmarshal(body, &bundle); err != nil {
		return nil, body, fmt.Errorf("failed to decode trace search response: %w", err)
	}

	seen := make(map[string]bool)
	var ids []string
	for _, t := range bundle {
		for _, span := range t.Trace.Spans {
			id := DecodeTraceID(span.TraceID)
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, body, nil
}

// RawTrace is one full trace as returned by the detail backend.
type RawTrace struct {
	Spans []rawSpan `json:"spans"`
}

type rawSpan struct {
	TraceID       string   `json:"trace_id"`
	SpanID        string   `json:"span_id"`
	OperationName string   `json:"operation_name"`
	StartTime     jsonText `json:"start_time"`
	Duration      float64  `json:"duration"`
	Tags          []rawTag `json:"tags"`
	Process       struct {
		ServiceName string `json:"service_name"`
	} `json:"process"`
}

// jsonText accepts a JSON string or number and keeps its text form.
type jsonText string

func (j *jsonText) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*j = jsonText(s)
		return nil
	}
	*j = jsonText(strings.Trim(string(data), `"`))
	return nil
}

// FetchTrace fetches one full trace by hex ID and returns the parsed
// trace plus the raw body for artifact persistence.
func (f *Fetcher) FetchTrace(ctx context.Context, traceID string, window timewindow.Window) (*RawTrace, []byte, error) {
	u := fmt.Sprintf("%s/%s?start=%d&end=%d", f.detailURL, url.PathEscape(traceID), window.StartEpoch(), window.EndEpoch())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build trace detail request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("trace detail fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, fmt.Errorf("trace detail backend returned %d for %s", resp.StatusCode, traceID)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read trace detail response: %w", err)
	}

	var trace RawTrace
	if err := json.Unmarshal(body, &trace); err != nil {
		return nil, body, fmt.Errorf("failed to decode trace %s: %w", traceID, err)
	}
	return &trace, body, nil
}

// ParseSpans flattens a raw trace into spans with normalized tags,
// decoded identifiers, and the error classification applied.
func ParseSpans(trace *RawTrace) []Span {
	spans := make([]Span, 0, len(trace.Spans))
	for _, rs := range trace.Spans {
		tags := tagMap(rs.Tags)
		spans = append(spans, Span{
			TraceID:       DecodeTraceID(rs.TraceID),
			SpanID:        DecodeTraceID(rs.SpanID),
			OperationName: rs.OperationName,
			StartTime:     string(rs.StartTime),
			Duration:      rs.Duration,
			Tags:          tags,
			IsError:       IsErrorSpan(tags),
			ServiceName:   rs.Process.ServiceName,
		})
	}
	return spans
}

// ErrorSpans filters spans to those classified as errors.
func ErrorSpans(spans []Span) []Span {
	var errs []Span
	for _, s := range spans {
		if s.IsError {
			errs = append(errs, s)
		}
	}
	return errs
}

// DecodeTraceID converts a base64-encoded binary identifier to lowercase
// hex, padding the input as needed. Inputs that do not decode are
// returned verbatim so already-hex identifiers pass through.
func DecodeTraceID(b64 string) string {
	if b64 == "" {
		return ""
	}
	padded := b64 + strings.Repeat("=", (4-len(b64)%4)%4)
	raw, err := base64.StdEncoding.DecodeString(padded)
	if err != nil {
		return b64
	}
	return hex.EncodeToString(raw)
}

// topTagKeys are the request-identifying tags surfaced in notifications.
var topTagKeys = []string{
	"url", "http.url", "user_id", "user", "http.method", "component", "resource.name", "request.uri", "operation_name", "span.kind",
}

// TagKV is one extracted tag for display.
type TagKV struct {
	Key   string
	Value string
}

// TopTags extracts up to limit notable tags across spans, keeping the
// first value seen per key in priority order.
func TopTags(spans []Span, limit int) []TagKV {
	found := make(map[string]bool)
	var out []TagKV
	for _, span := range spans {
		for _, k := range topTagKeys {
			if len(out) >= limit {
				return out
			}
			v, ok := span.Tags[k]
			if ok && v != "" && !found[k] {
				found[k] = true
				out = append(out, TagKV{Key: k, Value: v})
			}
		}
	}
	return out
}
