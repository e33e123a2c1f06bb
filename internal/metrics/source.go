package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spikewatch/spikewatch/internal/timewindow"
)

// Sample is one (epoch, value) point of a counter series.
type Sample struct {
	Epoch float64 `json:"epoch"`
	Value float64 `json:"value"`
}

// RawSeries is one labelled error-count result from the metrics backend.
// Count holds the last in-window sample of the windowed increase.
type RawSeries struct {
	Env       string   `json:"env"`
	Service   string   `json:"service"`
	RootName  string   `json:"root_name"`
	HTTPCode  string   `json:"http_code"`
	Exception string   `json:"exception"`
	SpanKind  string   `json:"span_kind"`
	Count     float64  `json:"count"`
	Samples   []Sample `json:"samples"`
}

// Source issues windowed aggregate queries against the metrics backend.
type Source struct {
	url           string
	env           string
	windowMinutes int
	client        *http.Client
}

// NewSource creates a metrics query source for one environment.
func NewSource(queryURL, env string, windowMinutes int, timeout time.Duration) *Source {
	return &Source{
		url:           queryURL,
		env:           env,
		windowMinutes: windowMinutes,
		client:        &http.Client{Timeout: timeout},
	}
}

// Query fetches error-count series for the window across the service
// allow-list. Two aggregate queries run: one for 5xx HTTP-coded calls and
// one for calls flagged with a generic ERROR status (transports that never
// set an HTTP code). A failing query is logged and skipped; both failing
// yields an empty, valid result.
func (s *Source) Query(ctx context.Context, window timewindow.Window, services []string) []RawSeries {
	serviceFilter := strings.Join(services, "|")

	queries := []string{
		fmt.Sprintf(`sum by (env,service,root_name,http_code,exception,span_kind) (increase(cube_apm_calls_total{env=%q,service=~"(%s)",span_kind=~"server|consumer",http_code=~"5.."}[%dm]))`,
			s.env, serviceFilter, s.windowMinutes),
		fmt.Sprintf(`sum by (env,service,root_name,http_code,exception,span_kind) (increase(cube_apm_calls_total{env=%q,service=~"(%s)",span_kind=~"server|consumer",status_code="ERROR"}[%dm]))`,
			s.env, serviceFilter, s.windowMinutes),
	}

	var all []RawSeries
	for i, query := range queries {
		series, err := s.runQuery(ctx, query, window)
		if err != nil {
			log.Printf("[WARN] Error fetching metrics for query %d: %v", i+1, err)
			continue
		}
		all = append(all, series...)
	}
	return all
}

// rangeResponse mirrors the query_range JSON envelope.
type rangeResponse struct {
	Status string `json:"status"`
	Data   struct {
		Result []struct {
			Metric map[string]string    `json:"metric"`
			Values [][2]json.RawMessage `json:"values"`
		} `json:"result"`
	} `json:"data"`
}

func (s *Source) runQuery(ctx context.Context, query string, window timewindow.Window) ([]RawSeries, error) {
	form := url.Values{}
	form.Set("query", query)
	form.Set("start", strconv.FormatInt(window.StartEpoch(), 10))
	form.Set("end", strconv.FormatInt(window.EndEpoch(), 10))
	form.Set("step", "30")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build metrics request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("metrics query failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("metrics backend returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed rangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode metrics response: %w", err)
	}

	var series []RawSeries
	for _, m := range parsed.Data.Result {
		samples := parseSamples(m.Values)
		if len(samples) == 0 {
			continue
		}
		count := samples[len(samples)-1].Value
		if count <= 0 {
			continue
		}

		httpCode := m.Metric["http_code"]
		if httpCode == "" || httpCode == "NA" {
			httpCode = "ERROR"
		}

		series = append(series, RawSeries{
			Env:       valueOr(m.Metric, "env", "Unknown"),
			Service:   valueOr(m.Metric, "service", "Unknown"),
			RootName:  valueOr(m.Metric, "root_name", "Unknown"),
			HTTPCode:  httpCode,
			Exception: valueOr(m.Metric, "exception", "Unknown Error"),
			SpanKind:  m.Metric["span_kind"],
			Count:     count,
			Samples:   samples,
		})
	}
	return series, nil
}

// parseSamples converts the [epoch, "value"] pairs of a range result.
// Malformed pairs are skipped.
func parseSamples(values [][2]json.RawMessage) []Sample {
	samples := make([]Sample, 0, len(values))
	for _, pair := range values {
		var epoch float64
		if err := json.Unmarshal(pair[0], &epoch); err != nil {
			continue
		}
		var raw string
		if err := json.Unmarshal(pair[1], &raw); err != nil {
			continue
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		samples = append(samples, Sample{Epoch: epoch, Value: value})
	}
	return samples
}

func valueOr(labels map[string]string, key, fallback string) string {
	if v := labels[key]; v != "" {
		return v
	}
	return fallback
}
