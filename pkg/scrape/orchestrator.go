package scrape

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/scraper-bots/jobnet-az/pkg/logging"
)

// Prometheus metrics for the detail-fetch phase.
var (
	itemsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scraper_items_processed_total",
		Help: "Items processed by outcome status",
	}, []string{"status"})

	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scraper_batch_duration_seconds",
		Help:    "Wall time per detail-fetch batch",
		Buckets: []float64{1, 5, 15, 30, 60, 120},
	})
)

// Fetcher is the transport detail requests go through. The transport owns
// concurrency limits and retries; the orchestrator only shapes the workload
// into batches.
type Fetcher interface {
	GetJSON(ctx context.Context, rawURL string, params url.Values) (map[string]any, error)
}

// Cache is an optional read-through cache for detail payloads.
type Cache interface {
	Get(ctx context.Context, key string) (map[string]any, bool)
	Set(ctx context.Context, key string, payload map[string]any)
}

// Config holds orchestrator configuration.
type Config struct {
	// DetailURL is the detail-endpoint template; the item reference
	// replaces the {ref} placeholder.
	DetailURL string

	// RefField names the listing-item field holding the reference
	// (slug or id) used to address the detail endpoint.
	RefField string

	// IDField names the record field that must be non-empty for a record
	// to count as valid output.
	IDField string

	// MergeSummaryFields are listing-page fields copied into the detail
	// record when the detail payload lacks them (view counts often only
	// appear on the listing).
	MergeSummaryFields []string

	// BatchSize bounds how many items are in flight per batch.
	BatchSize int

	// BatchCooldown is the pause between batches.
	BatchCooldown time.Duration
}

// DefaultConfig returns the standard batch shape.
func DefaultConfig() Config {
	return Config{
		RefField:      "slug",
		IDField:       "id",
		BatchSize:     50,
		BatchCooldown: 500 * time.Millisecond,
	}
}

// Result is everything a finished (or interrupted) run produced.
type Result struct {
	Records  []Record
	Failures *FailureLog
	Summary  Summary
}

// Orchestrator drives the detail-fetch phase over batches of item stubs.
type Orchestrator struct {
	fetcher   Fetcher
	extractor Extractor
	cache     Cache
	cfg       Config
	logger    zerolog.Logger
}

// New creates an orchestrator. cache may be nil.
func New(fetcher Fetcher, extractor Extractor, cache Cache, cfg Config) *Orchestrator {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.BatchCooldown < 0 {
		cfg.BatchCooldown = def.BatchCooldown
	}
	if cfg.RefField == "" {
		cfg.RefField = def.RefField
	}
	if cfg.IDField == "" {
		cfg.IDField = def.IDField
	}
	return &Orchestrator{
		fetcher:   fetcher,
		extractor: extractor,
		cache:     cache,
		cfg:       cfg,
		logger:    logging.NewLogger("orchestrator"),
	}
}

// StubsFromItems converts listing items into stubs, dropping items whose
// reference field is missing or empty.
func (o *Orchestrator) StubsFromItems(items []map[string]any) []ItemStub {
	stubs := make([]ItemStub, 0, len(items))
	for _, item := range items {
		ref := stringField(item, o.cfg.RefField)
		if ref == "" {
			o.logger.Warn().Str("field", o.cfg.RefField).Msg("listing item without reference, dropped")
			continue
		}
		stubs = append(stubs, ItemStub{Reference: ref, Summary: item})
	}
	return stubs
}

// Run processes all stubs in batches. On context cancellation it returns
// early with every record completed so far; failures in one batch never
// prevent later batches from running.
func (o *Orchestrator) Run(ctx context.Context, stubs []ItemStub) Result {
	state := NewRunState()
	state.discovered.Store(int64(len(stubs)))
	failures := &FailureLog{}
	records := make([]Record, 0, len(stubs))

	o.logger.Info().
		Str("run_id", state.ID).
		Int("items", len(stubs)).
		Int("batch_size", o.cfg.BatchSize).
		Msg("detail fetch starting")

	totalBatches := (len(stubs) + o.cfg.BatchSize - 1) / o.cfg.BatchSize

	for start := 0; start < len(stubs); start += o.cfg.BatchSize {
		if ctx.Err() != nil {
			remaining := int64(len(stubs) - start)
			state.canceled.Add(remaining)
			itemsProcessed.WithLabelValues(string(StatusCanceled)).Add(float64(remaining))
			break
		}

		end := start + o.cfg.BatchSize
		if end > len(stubs) {
			end = len(stubs)
		}
		batch := stubs[start:end]
		batchNum := start/o.cfg.BatchSize + 1

		batchStart := time.Now()
		outcomes := o.runBatch(ctx, batch)
		batchDuration.Observe(time.Since(batchStart).Seconds())

		batchOK := 0
		for _, out := range outcomes {
			state.addOutcome(out.Status)
			itemsProcessed.WithLabelValues(string(out.Status)).Inc()
			switch out.Status {
			case StatusOK:
				records = append(records, out.Record)
				batchOK++
			case StatusFailed, StatusSkipped:
				failures.Add(out.Reference, failureStage(out.Err), out.Err)
			}
		}

		snap := state.Snapshot()
		o.logger.Info().
			Int("batch", batchNum).
			Int("batches", totalBatches).
			Str("batch_ratio", fmt.Sprintf("%d/%d", batchOK, len(batch))).
			Int64("succeeded", snap.Succeeded).
			Int64("failed", snap.Failed).
			Msg("batch complete")

		if end < len(stubs) && o.cfg.BatchCooldown > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(o.cfg.BatchCooldown):
			}
		}
	}

	summary := state.Snapshot()
	o.logger.Info().
		Str("run_id", summary.RunID).
		Int64("succeeded", summary.Succeeded).
		Int64("failed", summary.Failed).
		Int64("canceled", summary.Canceled).
		Bool("partial", summary.Partial).
		Dur("duration", summary.Duration).
		Msg("detail fetch finished")

	return Result{Records: records, Failures: failures, Summary: summary}
}

// runBatch fans one batch out and collects outcomes in stub order. The
// transport's permit pool is the real concurrency bound; the batch only
// caps how much work is outstanding at once.
func (o *Orchestrator) runBatch(ctx context.Context, batch []ItemStub) []Outcome {
	outcomes := make([]Outcome, len(batch))
	done := make(chan int, len(batch))

	for i, stub := range batch {
		go func(i int, stub ItemStub) {
			outcomes[i] = o.processItem(ctx, stub)
			done <- i
		}(i, stub)
	}
	for range batch {
		<-done
	}
	return outcomes
}

// processItem fetches, extracts, merges, and validates a single item.
func (o *Orchestrator) processItem(ctx context.Context, stub ItemStub) Outcome {
	payload, hit := o.cachedPayload(ctx, stub.Reference)
	if !hit {
		target := strings.ReplaceAll(o.cfg.DetailURL, "{ref}", stub.Reference)
		var err error
		payload, err = o.fetcher.GetJSON(ctx, target, nil)
		if err != nil {
			if ctx.Err() != nil {
				return Outcome{Reference: stub.Reference, Status: StatusCanceled, Err: err}
			}
			o.logger.Warn().Str("ref", stub.Reference).Err(err).Msg("detail fetch failed")
			return Outcome{Reference: stub.Reference, Status: StatusFailed, Err: err}
		}
		if o.cache != nil {
			o.cache.Set(ctx, stub.Reference, payload)
		}
	}

	record, err := o.extractor.Extract(payload)
	if err != nil {
		o.logger.Warn().Str("ref", stub.Reference).Err(err).Msg("extraction failed")
		return Outcome{Reference: stub.Reference, Status: StatusFailed, Err: err}
	}

	for _, field := range o.cfg.MergeSummaryFields {
		if _, present := record[field]; !present {
			if v, ok := stub.Summary[field]; ok {
				record[field] = v
			}
		}
	}

	if stringify(record[o.cfg.IDField]) == "" {
		return Outcome{
			Reference: stub.Reference,
			Status:    StatusSkipped,
			Err:       &ExtractionError{Field: o.cfg.IDField, Reason: "identifier empty"},
		}
	}

	return Outcome{Reference: stub.Reference, Status: StatusOK, Record: record}
}

func (o *Orchestrator) cachedPayload(ctx context.Context, ref string) (map[string]any, bool) {
	if o.cache == nil {
		return nil, false
	}
	payload, ok := o.cache.Get(ctx, ref)
	return payload, ok
}

func failureStage(err error) string {
	var ee *ExtractionError
	if errors.As(err, &ee) {
		return "extract"
	}
	return "fetch"
}

func stringField(m map[string]any, key string) string {
	return stringify(m[key])
}

func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		if s == float64(int64(s)) {
			return fmt.Sprintf("%d", int64(s))
		}
		return fmt.Sprintf("%v", s)
	default:
		return fmt.Sprintf("%v", s)
	}
}
