package pipeline

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"time"

	"gorm.io/gorm"

	"github.com/spikewatch/spikewatch/internal/cards"
	"github.com/spikewatch/spikewatch/internal/config"
	"github.com/spikewatch/spikewatch/internal/correlation"
	"github.com/spikewatch/spikewatch/internal/database"
	"github.com/spikewatch/spikewatch/internal/logs"
	"github.com/spikewatch/spikewatch/internal/metrics"
	"github.com/spikewatch/spikewatch/internal/rca"
	"github.com/spikewatch/spikewatch/internal/storage"
	"github.com/spikewatch/spikewatch/internal/timewindow"
	"github.com/spikewatch/spikewatch/internal/traces"
)

// Notifier delivers one processed card to the notification sink.
type Notifier interface {
	NotifyCard(ctx context.Context, card *cards.ErrorCard, report *rca.Report, artifactID string, topTags []traces.TagKV) error
}

// Orchestrator drives the pipeline per time window: metrics query, card
// build, trace/log correlation, report synthesis, persistence and
// notification, then watermark advance.
type Orchestrator struct {
	cfg       *config.Config
	metrics   *metrics.Source
	traces    *traces.Fetcher
	logs      *logs.Fetcher
	store     *storage.Store
	watermark *storage.WatermarkStore
	db        *gorm.DB
	notifier  Notifier

	// cardTimeout bounds one card's processing so a shutdown request
	// waits for the in-flight card without waiting forever.
	cardTimeout time.Duration
}

// New assembles an orchestrator. db and notifier may be nil, which
// disables the incident index and the notification sink respectively.
func New(cfg *config.Config, m *metrics.Source, t *traces.Fetcher, l *logs.Fetcher,
	store *storage.Store, watermark *storage.WatermarkStore, db *gorm.DB, notifier Notifier) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		metrics:     m,
		traces:      t,
		logs:        l,
		store:       store,
		watermark:   watermark,
		db:          db,
		notifier:    notifier,
		cardTimeout: 5 * time.Minute,
	}
}

// CycleStats summarizes one cycle's outcome.
type CycleStats struct {
	CardsFound     int
	CardsProcessed int
	CardsSkipped   int
}

// RunCycle processes one window completely: all cards, sequentially.
// A failure inside one card never aborts the remaining cards. The error
// return covers only cycle-level failures.
func (o *Orchestrator) RunCycle(ctx context.Context, window timewindow.Window) (CycleStats, error) {
	log.Printf("[Cycle] Fetching error metrics for %d %s environment services from %s to %s",
		len(o.cfg.TargetServices), o.cfg.Environment, window.StartIST(), window.EndIST())

	series := o.metrics.Query(ctx, window, o.cfg.TargetServices)
	cardList := cards.Build(window, series)
	log.Printf("Found %d error cards", len(cardList))

	stats := CycleStats{CardsFound: len(cardList)}
	for i := range cardList {
		// A shutdown request stops before the next card, never mid-card.
		if ctx.Err() != nil {
			log.Printf("[Cycle] Shutdown requested, stopping after %d of %d cards", i, len(cardList))
			break
		}

		card := &cardList[i]
		skipped, err := o.runCard(card)
		switch {
		case err != nil:
			log.Printf("[WARN] Card %d (%s %s) failed: %v", i+1, card.Service, card.RootName, err)
		case skipped:
			stats.CardsSkipped++
		default:
			stats.CardsProcessed++
		}
	}

	o.recordCycle(window, stats, nil)
	return stats, nil
}

// runCard processes one card under its own timeout context, converting
// panics into errors so one bad card cannot take down the cycle.
func (o *Orchestrator) runCard(card *cards.ErrorCard) (skipped bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing card: %v\n%s", r, debug.Stack())
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), o.cardTimeout)
	defer cancel()

	return o.processCard(ctx, card)
}

// processCard runs the per-card pipeline: trace search, span
// classification, log fetch, correlation, synthesis, persistence,
// notification.
func (o *Orchestrator) processCard(ctx context.Context, card *cards.ErrorCard) (bool, error) {
	artifact, err := o.store.CreateCardDir(card)
	if err != nil {
		return false, err
	}

	if err := o.store.SaveJSON(artifact, "error_card.json", card); err != nil {
		log.Printf("[WARN] Failed to persist card JSON: %v", err)
	}

	traceIDs, rawBundle, err := o.traces.SearchTraceIDs(ctx, card, card.Window)
	if err != nil {
		return false, fmt.Errorf("trace search failed: %w", err)
	}
	if rawBundle != nil {
		if err := o.store.SaveRaw(artifact, "error_trace_bundle.json", rawBundle); err != nil {
			log.Printf("[WARN] Failed to persist trace bundle: %v", err)
		}
	}

	var errorSpans []traces.Span
	var logRecords []logs.Record
	for _, tid := range traceIDs {
		trace, rawTrace, err := o.traces.FetchTrace(ctx, tid, card.Window)
		if err != nil {
			// One trace failing is non-fatal for the card.
			log.Printf("[WARN] Full trace fetch failed for %s: %v", tid, err)
			continue
		}
		if err := o.store.SaveRaw(artifact, tid+".json", rawTrace); err != nil {
			log.Printf("[WARN] Failed to persist trace %s: %v", tid, err)
		}

		spans := traces.ErrorSpans(traces.ParseSpans(trace))
		if len(spans) == 0 {
			continue
		}
		errorSpans = append(errorSpans, spans...)

		// Logs are only fetched for traces that produced error spans.
		records, rawLogs := o.logs.FetchLogs(ctx, tid, card.Window)
		if rawLogs != nil {
			if err := o.store.SaveRaw(artifact, tid+"_logs.json", rawLogs); err != nil {
				log.Printf("[WARN] Failed to persist logs for %s: %v", tid, err)
			}
		}
		logRecords = append(logRecords, records...)
	}

	if len(errorSpans) == 0 {
		log.Printf("[INFO] Skipping card %s %s — no error spans found", card.Service, card.RootName)
		return true, nil
	}

	summary, timeline := correlation.BuildTimeline(card, errorSpans, logRecords)

	if _, err := o.store.SaveTimeline(artifact, timeline); err != nil {
		// Notification still goes out from in-memory data; the alert
		// outranks durable storage.
		log.Printf("[WARN] Failed to persist timeline: %v", err)
	}

	report := rca.Synthesize(card, summary, timeline, time.Now())
	if err := o.store.SaveReport(artifact, rca.Render(report)); err != nil {
		log.Printf("[WARN] Failed to persist report: %v", err)
	}

	o.indexCard(card, artifact, report)

	if o.notifier != nil {
		topTags := traces.TopTags(errorSpans, 5)
		if err := o.notifier.NotifyCard(ctx, card, report, artifact.ID, topTags); err != nil {
			log.Printf("[WARN] Notification failed for %s: %v", card.Service, err)
		} else if o.db != nil {
			if err := database.MarkNotified(o.db, artifact.ID); err != nil {
				log.Printf("[WARN] Failed to mark card notified: %v", err)
			}
		}
	}

	log.Printf("[✓] Processed card %s %s: %d events, severity %s",
		card.Service, card.RootName, summary.DeduplicatedTimelineCount, report.Severity)
	return false, nil
}

// indexCard records the card in the incident index when a database is
// configured.
func (o *Orchestrator) indexCard(card *cards.ErrorCard, artifact *storage.Artifact, report *rca.Report) {
	if o.db == nil {
		return
	}
	rec := &database.CardRecord{
		ArtifactID:     artifact.ID,
		Env:            card.Env,
		Service:        card.Service,
		RootName:       card.RootName,
		HTTPCode:       card.HTTPCode,
		Exception:      card.Exception,
		ErrorCount:     card.Count,
		Severity:       string(report.Severity),
		UniqueTraces:   report.Summary.UniqueTraces,
		TimelineEvents: report.Summary.DeduplicatedTimelineCount,
		WindowStart:    card.Window.Start,
		WindowEnd:      card.Window.End,
		ArtifactDir:    artifact.Dir,
	}
	if err := database.InsertCardRecord(o.db, rec); err != nil {
		log.Printf("[WARN] Failed to index card: %v", err)
	}
}

func (o *Orchestrator) recordCycle(window timewindow.Window, stats CycleStats, cycleErr error) {
	if o.db == nil {
		return
	}
	rec := &database.CycleRecord{
		WindowStart:    window.Start,
		WindowEnd:      window.End,
		CardsFound:     stats.CardsFound,
		CardsProcessed: stats.CardsProcessed,
		CardsSkipped:   stats.CardsSkipped,
		Succeeded:      cycleErr == nil,
	}
	if cycleErr != nil {
		rec.Error = cycleErr.Error()
	}
	if err := database.InsertCycleRecord(o.db, rec); err != nil {
		log.Printf("[WARN] Failed to record cycle: %v", err)
	}
}

// Run drives the monitoring loop until ctx is cancelled: each pass
// processes the window ending now, advances the watermark on success,
// and backs off on failure instead of crash-looping.
func (o *Orchestrator) Run(ctx context.Context) {
	windowSize := time.Duration(o.cfg.WindowMinutes) * time.Minute
	backoff := time.Duration(o.cfg.CycleBackoffSeconds) * time.Second

	if epoch, ok := o.watermark.Load(); ok {
		log.Printf("[START] Resuming after watermark %d (%s)", epoch,
			timewindow.FormatIST(time.Unix(epoch, 0)))
	} else {
		log.Printf("[START] No watermark found, starting fresh")
	}

	scheduler := NewScheduler(windowSize, backoff)
	scheduler.Run(ctx, func(cycleCtx context.Context) error {
		window := timewindow.Last(time.Now(), windowSize)
		if _, err := o.RunCycle(cycleCtx, window); err != nil {
			return err
		}
		if cycleCtx.Err() != nil {
			// Interrupted cycles do not advance the watermark.
			return nil
		}
		if err := o.watermark.Save(window.EndEpoch()); err != nil {
			log.Printf("[WARN] Failed to save watermark: %v", err)
		}
		return nil
	})
}
