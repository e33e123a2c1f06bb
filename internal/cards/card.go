package cards

import (
	"github.com/spikewatch/spikewatch/internal/metrics"
	"github.com/spikewatch/spikewatch/internal/timewindow"
)

// ErrorCard identifies one error signature within a window, carrying the
// aggregate count and the raw counter series for downstream charting.
// Cards are never mutated after the merge step.
type ErrorCard struct {
	Env       string            `json:"env"`
	Service   string            `json:"service"`
	SpanKind  string            `json:"span_kind"`
	HTTPCode  string            `json:"http_code"`
	Exception string            `json:"exception"`
	RootName  string            `json:"root_name"`
	Count     float64           `json:"count"`
	Window    timewindow.Window `json:"-"`
	Samples   []metrics.Sample  `json:"values"`

	WindowStart string `json:"window_start"`
	WindowEnd   string `json:"window_end"`
}

// Key is the identity of an error signature. Cards sharing a key describe
// the same logical error and are merged by summing counts.
type Key struct {
	Service   string
	RootName  string
	HTTPCode  string
	Exception string
}

// Key returns the card's identity key.
func (c *ErrorCard) Key() Key {
	return Key{
		Service:   c.Service,
		RootName:  c.RootName,
		HTTPCode:  c.HTTPCode,
		Exception: c.Exception,
	}
}

// Build merges raw series into one ErrorCard per unique identity key.
// The same logical error can be found by both the HTTP-code and the
// ERROR-status query; duplicates are collapsed by summing counts, so the
// result is independent of input order. Output preserves first-seen order
// of keys, though callers must not rely on ordering.
func Build(window timewindow.Window, series []metrics.RawSeries) []ErrorCard {
	byKey := make(map[Key]int)
	var merged []ErrorCard

	for _, s := range series {
		card := ErrorCard{
			Env:         s.Env,
			Service:     s.Service,
			SpanKind:    s.SpanKind,
			HTTPCode:    s.HTTPCode,
			Exception:   s.Exception,
			RootName:    s.RootName,
			Count:       s.Count,
			Window:      window,
			Samples:     s.Samples,
			WindowStart: window.StartIST(),
			WindowEnd:   window.EndIST(),
		}
		if idx, ok := byKey[card.Key()]; ok {
			merged[idx].Count += card.Count
			continue
		}
		byKey[card.Key()] = len(merged)
		merged = append(merged, card)
	}
	return merged
}
