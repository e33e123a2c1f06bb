package rca

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spikewatch/spikewatch/internal/cards"
	"github.com/spikewatch/spikewatch/internal/correlation"
)

// Severity grades an incident from error volume and trace spread.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// ClassifySeverity applies fixed thresholds on error count and unique
// trace count.
func ClassifySeverity(errorCount float64, uniqueTraces int) Severity {
	switch {
	case errorCount > 100 || uniqueTraces > 50:
		return SeverityCritical
	case errorCount > 50 || uniqueTraces > 20:
		return SeverityHigh
	case errorCount > 20 || uniqueTraces > 10:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Keyword precedence for primary-cause classification, fixed as:
// connection > timeout > database/sql > authentication > validation.
// Dual-keyword exceptions like ConnectionTimeoutException therefore land
// in the network bucket.
var causeRules = []struct {
	keywords []string
	cause    string
}{
	{[]string{"connection", "network"}, "Network connectivity issues"},
	{[]string{"timeout", "deadline"}, "Service timeout or performance degradation"},
	{[]string{"database", "sql"}, "Database-related issues"},
	{[]string{"authentication", "authorization"}, "Authentication or authorization failure"},
	{[]string{"validation", "format"}, "Data validation failure"},
}

// ClassifyPrimaryCause maps an exception string to a cause bucket.
func ClassifyPrimaryCause(exception string) string {
	lowered := strings.ToLower(exception)
	for _, rule := range causeRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lowered, kw) {
				return rule.cause
			}
		}
	}
	return fmt.Sprintf("Application error: %s", exception)
}

// ServiceImpact is one ranked row of the service-impact table.
type ServiceImpact struct {
	Service    string `json:"service"`
	Events     int    `json:"events"`
	ErrorTypes int    `json:"error_types"`
}

// ErrorTypeCount is one error-type cluster with its occurrence count.
type ErrorTypeCount struct {
	ErrorType string `json:"error_type"`
	Count     int    `json:"count"`
}

// LogPattern is one repeated log message pattern across the timeline.
type LogPattern struct {
	Message  string   `json:"message"`
	Count    int      `json:"count"`
	Services []string `json:"services"`
}

// Report is the synthesized root-cause document. Built once from a
// summary and timeline; a pure function of its inputs apart from the
// explicit GeneratedAt stamp.
type Report struct {
	GeneratedAt         time.Time             `json:"generated_at"`
	Summary             correlation.Summary   `json:"summary"`
	Severity            Severity              `json:"severity"`
	PrimaryCause        string                `json:"primary_cause"`
	ContributingFactors []string              `json:"contributing_factors"`
	TriggerEvent        string                `json:"trigger_event"`
	ServiceImpact       []ServiceImpact       `json:"service_impact"`
	ErrorTypes          []ErrorTypeCount      `json:"error_types"`
	PropagationPath     []string              `json:"propagation_path"`
	KeyEvents           []correlation.Event   `json:"key_events"`
	LogPatterns         []LogPattern          `json:"log_patterns"`
	ImmediateActions    []string              `json:"immediate_actions"`
}

// Synthesize classifies severity, cause, and impact from the timeline
// and produces the structured report. Deterministic: no randomness, no
// wall clock beyond the explicit generatedAt stamp.
func Synthesize(card *cards.ErrorCard, summary correlation.Summary, timeline []correlation.Event, generatedAt time.Time) *Report {
	report := &Report{
		GeneratedAt:  generatedAt,
		Summary:      summary,
		Severity:     ClassifySeverity(summary.ErrorCount, summary.UniqueTraces),
		PrimaryCause: ClassifyPrimaryCause(card.Exception),
	}

	errorTypes := clusterErrorTypes(timeline)
	report.ErrorTypes = errorTypes
	report.ServiceImpact = rankServiceImpact(timeline, 5)
	report.PropagationPath = propagationPath(timeline)
	report.KeyEvents = keyEvents(timeline)
	report.LogPatterns = consolidateLogPatterns(timeline)
	report.TriggerEvent = triggerEvent(timeline)
	report.ContributingFactors = contributingFactors(timeline, errorTypes, report.PropagationPath)
	report.ImmediateActions = immediateActions(card.Service, report.Severity, len(errorTypes))

	return report
}

// errorType is the leading cause-tag segment of an event.
func errorType(e correlation.Event) string {
	if e.CauseTags == "" {
		return "Unknown"
	}
	return strings.TrimSpace(strings.SplitN(e.CauseTags, ";", 2)[0])
}

func clusterErrorTypes(timeline []correlation.Event) []ErrorTypeCount {
	counts := make(map[string]int)
	var order []string
	for _, e := range timeline {
		t := errorType(e)
		if counts[t] == 0 {
			order = append(order, t)
		}
		counts[t]++
	}
	out := make([]ErrorTypeCount, 0, len(order))
	for _, t := range order {
		out = append(out, ErrorTypeCount{ErrorType: t, Count: counts[t]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

func rankServiceImpact(timeline []correlation.Event, top int) []ServiceImpact {
	events := make(map[string]int)
	types := make(map[string]map[string]bool)
	var order []string
	for _, e := range timeline {
		svc := e.ServiceName
		if events[svc] == 0 {
			order = append(order, svc)
			types[svc] = make(map[string]bool)
		}
		events[svc]++
		types[svc][errorType(e)] = true
	}
	out := make([]ServiceImpact, 0, len(order))
	for _, svc := range order {
		out = append(out, ServiceImpact{Service: svc, Events: events[svc], ErrorTypes: len(types[svc])})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Events > out[j].Events })
	if len(out) > top {
		out = out[:top]
	}
	return out
}

// propagationPath lists affected services in first-seen timeline order.
func propagationPath(timeline []correlation.Event) []string {
	seen := make(map[string]bool)
	var path []string
	for _, e := range timeline {
		if e.ServiceName == "" || seen[e.ServiceName] {
			continue
		}
		seen[e.ServiceName] = true
		path = append(path, e.ServiceName)
	}
	return path
}

// keyEvents selects the first, middle and last timeline events.
func keyEvents(timeline []correlation.Event) []correlation.Event {
	var out []correlation.Event
	if len(timeline) > 0 {
		out = append(out, timeline[0])
	}
	if len(timeline) > 2 {
		out = append(out, timeline[len(timeline)/2])
	}
	if len(timeline) > 1 {
		out = append(out, timeline[len(timeline)-1])
	}
	return out
}

func triggerEvent(timeline []correlation.Event) string {
	if len(timeline) == 0 {
		return "Unknown trigger event"
	}
	first := timeline[0]
	op := first.OperationName
	if op == "" {
		op = "Unknown"
	}
	ts := first.Timestamp
	if ts == "" {
		ts = "Unknown"
	}
	return fmt.Sprintf("%s at %s", op, ts)
}

func contributingFactors(timeline []correlation.Event, errorTypes []ErrorTypeCount, services []string) []string {
	var factors []string
	if len(errorTypes) > 1 {
		factors = append(factors, "Multiple error types indicating complex failure")
	}
	if len(services) > 2 {
		factors = append(factors, "Service dependency chain complexity")
	}
	if hasTemporalClustering(timeline) {
		factors = append(factors, "Temporal clustering of errors")
	}
	if len(factors) == 0 {
		factors = append(factors, "Single point of failure")
	}
	return factors
}

// hasTemporalClustering reports whether events bunch into one hour-of-day
// bucket: at least three events with more than half sharing a bucket.
func hasTemporalClustering(timeline []correlation.Event) bool {
	if len(timeline) < 3 {
		return false
	}
	buckets := make(map[string]int)
	total := 0
	for _, e := range timeline {
		// Timestamps are "2006-01-02 15:04:05.000 IST"; bucket on the hour.
		parts := strings.SplitN(e.Timestamp, " ", 3)
		if len(parts) < 2 || len(parts[1]) < 2 {
			continue
		}
		buckets[parts[1][:2]]++
		total++
	}
	for _, n := range buckets {
		if total >= 3 && n*2 > total {
			return true
		}
	}
	return false
}

func immediateActions(service string, severity Severity, errorTypeCount int) []string {
	var actions []string
	if severity == SeverityCritical || severity == SeverityHigh {
		actions = append(actions,
			"Isolate the affected service from inbound traffic",
			"Escalate to the on-call team")
	}
	actions = append(actions,
		fmt.Sprintf("Investigate %s logs", service),
		"Monitor error rate for changes")
	if errorTypeCount > 1 {
		actions = append(actions, "Analyze the multiple error patterns for a shared trigger")
	}
	return actions
}

func consolidateLogPatterns(timeline []correlation.Event) []LogPattern {
	type patternData struct {
		message  string
		count    int
		services []string
		seenSvc  map[string]bool
	}
	patterns := make(map[string]*patternData)
	var order []string

	for _, e := range timeline {
		msg := strings.TrimSpace(e.LogMessages)
		if len(msg) <= 50 {
			continue
		}
		key := msg
		if len(key) > 100 {
			key = key[:100]
		}
		p, ok := patterns[key]
		if !ok {
			p = &patternData{message: msg, seenSvc: make(map[string]bool)}
			patterns[key] = p
			order = append(order, key)
		}
		p.count++
		if e.ServiceName != "" && !p.seenSvc[e.ServiceName] {
			p.seenSvc[e.ServiceName] = true
			p.services = append(p.services, e.ServiceName)
		}
	}

	var out []LogPattern
	for _, key := range order {
		p := patterns[key]
		if p.count > 1 {
			out = append(out, LogPattern{Message: p.message, Count: p.count, Services: p.services})
		}
	}
	return out
}
