package correlation

import (
	"log"
	"sort"
	"strings"
	"time"

	"github.com/spikewatch/spikewatch/internal/cards"
	"github.com/spikewatch/spikewatch/internal/logs"
	"github.com/spikewatch/spikewatch/internal/timewindow"
	"github.com/spikewatch/spikewatch/internal/traces"
	"github.com/spikewatch/spikewatch/internal/utils"
)

// Event is one reconstructed, deduplicated observation point in an
// incident's causal chain. Derived from exactly one error span plus the
// log records sharing its trace; FirstEncountered/LastEncountered are the
// bounds of the owning trace, not of this span.
type Event struct {
	Timestamp        string `json:"timestamp"`
	TraceID          string `json:"trace_id"`
	SpanID           string `json:"span_id"`
	OperationName    string `json:"operation_name"`
	ServiceName      string `json:"service_name"`
	Duration         string `json:"duration"`
	CauseTags        string `json:"why"`
	AffectedFields   string `json:"affected"`
	LogMessages      string `json:"log_messages"`
	FirstEncountered string `json:"first_encountered"`
	LastEncountered  string `json:"last_encountered"`
}

// dedupKey identifies one observation: two events agreeing on all six
// fields are the same observation.
type dedupKey struct {
	Timestamp     string
	OperationName string
	ServiceName   string
	CauseTags     string
	Affected      string
	Duration      string
}

func (e Event) key() dedupKey {
	return dedupKey{
		Timestamp:     e.Timestamp,
		OperationName: e.OperationName,
		ServiceName:   e.ServiceName,
		CauseTags:     e.CauseTags,
		Affected:      e.AffectedFields,
		Duration:      e.Duration,
	}
}

// Summary aggregates a deduplicated timeline for one card. Computed once,
// immutable thereafter.
type Summary struct {
	Env                       string  `json:"env"`
	Service                   string  `json:"service"`
	RootName                  string  `json:"root_name"`
	HTTPCode                  string  `json:"http_code"`
	Exception                 string  `json:"exception"`
	ErrorCount                float64 `json:"error_count"`
	WindowStart               string  `json:"window_start"`
	WindowEnd                 string  `json:"window_end"`
	UniqueTraces              int     `json:"unique_traces"`
	OriginalTimelineCount     int     `json:"original_timeline_count"`
	DeduplicatedTimelineCount int     `json:"deduplicated_timeline_count"`
	FirstOverall              string  `json:"first_overall"`
	LastOverall               string  `json:"last_overall"`
}

// Tag keys tried in priority order when extracting the causal "why" and
// the request-identifying "affected" extracts.
var (
	causeTagKeys = []string{
		"http.status_code", "httpResponseCode", "exception", "error.class",
		"error.message", "otel.status_code", "category", "component",
	}
	affectedTagKeys = []string{"http.url", "request.uri", "user_id", "user"}
)

const maxCauseTags = 3

// ExtractCauseTags builds the short causal extract from a span's tags,
// bounded to the first matching prioritized keys.
func ExtractCauseTags(tags traces.Tags) string {
	var parts []string
	for _, key := range causeTagKeys {
		if len(parts) >= maxCauseTags {
			break
		}
		if v, ok := tags[key]; ok && v != "" {
			parts = append(parts, key+": "+v)
		}
	}
	return strings.Join(parts, "; ")
}

// ExtractAffectedFields builds the request-identifying extract.
func ExtractAffectedFields(tags traces.Tags) string {
	var parts []string
	for _, key := range affectedTagKeys {
		if v, ok := tags[key]; ok {
			parts = append(parts, key+": "+v)
		}
	}
	return strings.Join(parts, "; ")
}

// BuildTimeline joins error spans and their logs by trace ID into an
// ordered, deduplicated timeline plus its aggregate summary.
func BuildTimeline(card *cards.ErrorCard, spans []traces.Span, logRecords []logs.Record) (Summary, []Event) {
	// 1. Group logs by lower-cased trace ID.
	logsByTrace := make(map[string][]logs.Record)
	for _, rec := range logRecords {
		tid := strings.ToLower(rec.TraceID)
		logsByTrace[tid] = append(logsByTrace[tid], rec)
	}

	// 2. Per-trace time bounds across span start times and log timestamps.
	// A trace contributing no parseable timestamp gets no bound but its
	// spans still produce events.
	type bound struct {
		min, max time.Time
	}
	bounds := make(map[string]*bound)
	observe := func(tid string, t time.Time) {
		b, ok := bounds[tid]
		if !ok {
			bounds[tid] = &bound{min: t, max: t}
			return
		}
		if t.Before(b.min) {
			b.min = t
		}
		if t.After(b.max) {
			b.max = t
		}
	}
	for _, span := range spans {
		tid := strings.ToLower(span.TraceID)
		if t, err := timewindow.ParseTimestamp(span.StartTime); err == nil {
			observe(tid, t)
		}
	}
	for tid, recs := range logsByTrace {
		for _, rec := range recs {
			if t, err := rec.ParseTime(); err == nil {
				observe(tid, t)
			}
		}
	}

	// 3. One candidate event per error span.
	timeline := make([]Event, 0, len(spans))
	for _, span := range spans {
		tid := strings.ToLower(span.TraceID)

		var msgs []string
		for _, rec := range logsByTrace[tid] {
			msgs = append(msgs, rec.Message)
		}

		var first, last string
		if b, ok := bounds[tid]; ok {
			first = timewindow.FormatIST(b.min)
			last = timewindow.FormatIST(b.max)
		}

		var ts string
		if t, err := timewindow.ParseTimestamp(span.StartTime); err == nil {
			ts = timewindow.FormatIST(t)
		} else {
			ts = span.StartTime
		}

		timeline = append(timeline, Event{
			Timestamp:        ts,
			TraceID:          tid,
			SpanID:           span.SpanID,
			OperationName:    span.OperationName,
			ServiceName:      span.ServiceName,
			Duration:         utils.FormatSpanDuration(span.Duration),
			CauseTags:        ExtractCauseTags(span.Tags),
			AffectedFields:   ExtractAffectedFields(span.Tags),
			LogMessages:      strings.Join(msgs, "\n"),
			FirstEncountered: first,
			LastEncountered:  last,
		})
	}

	// 4. Deduplicate, then sort by timestamp. The fixed IST format sorts
	// chronologically as a string.
	originalCount := len(timeline)
	timeline = Deduplicate(timeline)
	sort.SliceStable(timeline, func(i, j int) bool {
		return timeline[i].Timestamp < timeline[j].Timestamp
	})

	// 5. Aggregate summary over trace bounds.
	var firstOverall, lastOverall time.Time
	for _, b := range bounds {
		if firstOverall.IsZero() || b.min.Before(firstOverall) {
			firstOverall = b.min
		}
		if lastOverall.IsZero() || b.max.After(lastOverall) {
			lastOverall = b.max
		}
	}

	summary := Summary{
		Env:                       card.Env,
		Service:                   card.Service,
		RootName:                  card.RootName,
		HTTPCode:                  card.HTTPCode,
		Exception:                 card.Exception,
		ErrorCount:                card.Count,
		WindowStart:               card.WindowStart,
		WindowEnd:                 card.WindowEnd,
		UniqueTraces:              len(bounds),
		OriginalTimelineCount:     originalCount,
		DeduplicatedTimelineCount: len(timeline),
		FirstOverall:              timewindow.FormatIST(firstOverall),
		LastOverall:               timewindow.FormatIST(lastOverall),
	}
	return summary, timeline
}

// Deduplicate collapses events with identical six-field keys, keeping
// insertion order of first occurrence. Idempotent.
func Deduplicate(timeline []Event) []Event {
	seen := make(map[dedupKey]bool, len(timeline))
	out := make([]Event, 0, len(timeline))
	for _, event := range timeline {
		k := event.key()
		if seen[k] {
			log.Printf("[INFO] Found duplicate event: %s at %s", event.OperationName, event.Timestamp)
			continue
		}
		seen[k] = true
		out = append(out, event)
	}
	return out
}
