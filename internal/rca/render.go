package rca

import (
	"fmt"
	"strings"

	"github.com/spikewatch/spikewatch/internal/timewindow"
	"github.com/spikewatch/spikewatch/internal/utils"
)

// Emoji returns the marker for a severity level.
func (s Severity) Emoji() string {
	switch s {
	case SeverityCritical:
		return "🔴"
	case SeverityHigh:
		return "🟠"
	case SeverityMedium:
		return "🟡"
	case SeverityLow:
		return "🟢"
	default:
		return "⚠️"
	}
}

// Render formats a report as markdown. A pure formatting step over the
// structured report: rendering the same report twice yields identical
// text.
func Render(r *Report) string {
	var sb strings.Builder

	sb.WriteString("# Root Cause Analysis Report\n\n")

	sb.WriteString("## Executive Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Severity | %s %s |\n", r.Severity.Emoji(), r.Severity))
	sb.WriteString(fmt.Sprintf("| Service Affected | %s |\n", r.Summary.Service))
	sb.WriteString(fmt.Sprintf("| Environment | %s |\n", r.Summary.Env))
	sb.WriteString(fmt.Sprintf("| Error Type | HTTP %s - %s |\n", r.Summary.HTTPCode, r.Summary.Exception))
	sb.WriteString(fmt.Sprintf("| Root Operation | %s |\n", r.Summary.RootName))
	sb.WriteString(fmt.Sprintf("| Error Count | %s |\n", utils.FormatCount(r.Summary.ErrorCount)))
	sb.WriteString(fmt.Sprintf("| Unique Traces | %d |\n", r.Summary.UniqueTraces))
	sb.WriteString(fmt.Sprintf("| Timeline Events | %d unique (from %d total) |\n",
		r.Summary.DeduplicatedTimelineCount, r.Summary.OriginalTimelineCount))
	sb.WriteString(fmt.Sprintf("| First Encountered | %s |\n", orUnknown(r.Summary.FirstOverall)))
	sb.WriteString(fmt.Sprintf("| Latest Encountered | %s |\n", orUnknown(r.Summary.LastOverall)))
	sb.WriteString(fmt.Sprintf("| Detection Window | %s to %s |\n\n", r.Summary.WindowStart, r.Summary.WindowEnd))

	sb.WriteString("## Root Cause Determination\n\n")
	sb.WriteString(fmt.Sprintf("**Primary Cause**: %s\n\n", r.PrimaryCause))
	sb.WriteString("**Contributing Factors**:\n")
	for _, factor := range r.ContributingFactors {
		sb.WriteString(fmt.Sprintf("- %s\n", factor))
	}
	sb.WriteString(fmt.Sprintf("\n**Trigger Event**: %s\n\n", r.TriggerEvent))

	if len(r.ErrorTypes) > 0 {
		sb.WriteString("## Error Pattern Analysis\n\n")
		for _, et := range r.ErrorTypes {
			sb.WriteString(fmt.Sprintf("- **%s**: %d occurrences\n", et.ErrorType, et.Count))
		}
		sb.WriteString("\n")
	}

	if len(r.ServiceImpact) > 0 {
		sb.WriteString("## Service Impact\n\n")
		for _, impact := range r.ServiceImpact {
			sb.WriteString(fmt.Sprintf("- **%s**: %d errors, %d unique error types\n",
				impact.Service, impact.Events, impact.ErrorTypes))
		}
		sb.WriteString("\n")
	}

	if len(r.PropagationPath) > 0 {
		sb.WriteString("## Error Propagation\n\n")
		if len(r.PropagationPath) > 1 {
			sb.WriteString(fmt.Sprintf("**Path**: %s\n", strings.Join(r.PropagationPath, " -> ")))
			sb.WriteString(fmt.Sprintf("- Entry point: %s\n", r.PropagationPath[0]))
			sb.WriteString(fmt.Sprintf("- Exit point: %s\n", r.PropagationPath[len(r.PropagationPath)-1]))
			sb.WriteString(fmt.Sprintf("- Chain length: %d services\n\n", len(r.PropagationPath)))
		} else {
			sb.WriteString(fmt.Sprintf("Single service impact: **%s**, no cross-service propagation detected.\n\n",
				r.PropagationPath[0]))
		}
	}

	if len(r.KeyEvents) > 0 {
		sb.WriteString("## Key Events Timeline\n\n")
		for i, event := range r.KeyEvents {
			sb.WriteString(fmt.Sprintf("**Event %d** - %s\n", i+1, event.Timestamp))
			sb.WriteString(fmt.Sprintf("- Service: %s\n", event.ServiceName))
			sb.WriteString(fmt.Sprintf("- Operation: %s\n", event.OperationName))
			sb.WriteString(fmt.Sprintf("- Error: %s\n", orUnknown(firstSegment(event.CauseTags))))
			sb.WriteString(fmt.Sprintf("- Duration: %s\n\n", event.Duration))
		}
	}

	if len(r.LogPatterns) > 0 {
		sb.WriteString("## Consolidated Log Patterns\n\n")
		for i, pattern := range r.LogPatterns {
			sb.WriteString(fmt.Sprintf("**Pattern %d** (occurred %d times, services: %s)\n",
				i+1, pattern.Count, strings.Join(pattern.Services, ", ")))
			sb.WriteString(fmt.Sprintf("```\n%s\n```\n\n", utils.TruncateText(pattern.Message, 400)))
		}
	}

	sb.WriteString("## Immediate Actions\n\n")
	for _, action := range r.ImmediateActions {
		sb.WriteString(fmt.Sprintf("- %s\n", action))
	}

	sb.WriteString(fmt.Sprintf("\n---\n\nGenerated at %s\n", timewindow.FormatIST(r.GeneratedAt)))

	return sb.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func firstSegment(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(strings.SplitN(s, ";", 2)[0])
}
