package notify

import (
	"strings"
	"testing"

	"github.com/spikewatch/spikewatch/internal/cards"
	"github.com/spikewatch/spikewatch/internal/correlation"
	"github.com/spikewatch/spikewatch/internal/rca"
	"github.com/spikewatch/spikewatch/internal/traces"
)

func TestBuildMessage(t *testing.T) {
	card := &cards.ErrorCard{
		Env:       "prod",
		Service:   "checkout",
		RootName:  "POST /pay",
		HTTPCode:  "503",
		Exception: "UpstreamError",
		Count:     1234,
	}
	report := &rca.Report{
		Severity:     rca.SeverityCritical,
		PrimaryCause: "Network connectivity issues",
		Summary: correlation.Summary{
			FirstOverall: "2025-06-01 15:31:00.000 IST",
			LastOverall:  "2025-06-01 15:34:00.000 IST",
		},
	}
	topTags := []traces.TagKV{
		{Key: "http.url", Value: "/pay"},
		{Key: "user_id", Value: "u-1"},
	}

	msg := buildMessage(card, report, "https://portal/?error_dir=abc", topTags)

	for _, want := range []string{
		"🔴 *ERROR ALERT* (CRITICAL)",
		"*Service*: checkout",
		"*Environment*: prod",
		"*Root Operation*: POST /pay",
		"*HTTP Status*: 503",
		"*Exception*: UpstreamError",
		"*Error Count*: 1,234",
		"*First Encountered*: 2025-06-01 15:31:00.000 IST",
		"*Primary Cause*: Network connectivity issues",
		"• http.url: /pay",
		"• user_id: u-1",
		"*Report*: https://portal/?error_dir=abc",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestBuildMessageOmitsEmptySections(t *testing.T) {
	card := &cards.ErrorCard{Service: "checkout"}
	report := &rca.Report{Severity: rca.SeverityLow, PrimaryCause: "Application error: X"}

	msg := buildMessage(card, report, "abc", nil)
	if strings.Contains(msg, "*Tags*") {
		t.Error("no tags should omit the tags section")
	}
	if strings.Contains(msg, "*First Encountered*") {
		t.Error("empty bounds should be omitted")
	}
}

func TestArtifactLink(t *testing.T) {
	tests := []struct {
		name       string
		portalBase string
		want       string
	}{
		{"no portal", "", "abc"},
		{"portal", "https://portal", "https://portal/?error_dir=abc"},
		{"portal trailing slash", "https://portal/", "https://portal/?error_dir=abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewSlackNotifier("https://hooks.example", tt.portalBase)
			if got := n.artifactLink("abc"); got != tt.want {
				t.Errorf("artifactLink = %q; want %q", got, tt.want)
			}
		})
	}
}
