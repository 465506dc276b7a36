// Package sink accumulates extracted records and flushes them to their
// destinations: timestamped JSON and CSV files and, optionally, a relational
// store. Flushing never loses completed work; an interrupted run flushes
// whatever is accumulated under a partial filename.
package sink

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/scraper-bots/jobnet-az/pkg/logging"
	"github.com/scraper-bots/jobnet-az/pkg/scrape"
)

// Accumulator is a concurrency-safe, append-only record collector.
type Accumulator struct {
	mu      sync.Mutex
	records []scrape.Record
}

// Add appends one record.
func (a *Accumulator) Add(rec scrape.Record) {
	a.mu.Lock()
	a.records = append(a.records, rec)
	a.mu.Unlock()
}

// AddAll appends a batch of records.
func (a *Accumulator) AddAll(recs []scrape.Record) {
	a.mu.Lock()
	a.records = append(a.records, recs...)
	a.mu.Unlock()
}

// Len returns the number of accumulated records.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

// Records returns a copy of the accumulated records.
func (a *Accumulator) Records() []scrape.Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]scrape.Record, len(a.records))
	copy(out, a.records)
	return out
}

// Filename builds the timestamped output filename. Interrupted runs carry a
// "partial" marker so complete and partial outputs are never confused.
func Filename(dir, prefix, ext string, partial bool, at time.Time) string {
	name := prefix
	if partial {
		name += "_partial"
	}
	name += "_" + at.Format("20060102_150405") + "." + ext
	return filepath.Join(dir, name)
}

// FlushJSON writes records as an indented JSON array with full nesting
// preserved. HTML escaping is off so URLs and text stay readable.
func FlushJSON(path string, records []scrape.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return nil
}

// FlushCSV writes records as CSV. The header is the sorted key set of the
// first record; later records are padded with empty strings for missing
// columns and keys outside the header are dropped. Nested values are
// embedded as JSON text.
func FlushCSV(path string, records []scrape.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if len(records) == 0 {
		return w.Error()
	}

	header := make([]string, 0, len(records[0]))
	for key := range records[0] {
		header = append(header, key)
	}
	sort.Strings(header)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	row := make([]string, len(header))
	for _, rec := range records {
		for i, key := range header {
			v, ok := rec[key]
			if !ok {
				row[i] = ""
				continue
			}
			row[i] = csvCell(v)
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

// csvCell renders one value for a CSV cell. Scalars render plainly; maps
// and lists become embedded JSON.
func csvCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		encoded, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(encoded)
	}
}

// FlushFailures writes the failure log as an indented JSON array.
func FlushFailures(path string, entries []scrape.FailureEntry) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return nil
}

// Persister upserts one record into durable storage.
type Persister interface {
	InsertOrUpdate(ctx context.Context, id string, rec scrape.Record) (inserted bool, err error)
}

// StoreResult reports the outcome of a store flush.
type StoreResult struct {
	Inserted int
	Updated  int
	Failed   int
}

// FlushStore upserts every record. A failed record is logged and counted,
// never fatal; the remaining records still get stored.
func FlushStore(ctx context.Context, p Persister, idField string, records []scrape.Record) StoreResult {
	logger := logging.NewLogger("sink")
	var result StoreResult

	for _, rec := range records {
		if ctx.Err() != nil {
			result.Failed += len(records) - result.Inserted - result.Updated - result.Failed
			break
		}
		id := csvCell(rec[idField])
		if id == "" {
			result.Failed++
			continue
		}
		inserted, err := p.InsertOrUpdate(ctx, id, rec)
		if err != nil {
			logStoreFailure(logger, id, err)
			result.Failed++
			continue
		}
		if inserted {
			result.Inserted++
		} else {
			result.Updated++
		}
	}

	logger.Info().
		Int("inserted", result.Inserted).
		Int("updated", result.Updated).
		Int("failed", result.Failed).
		Msg("store flush complete")
	return result
}

func logStoreFailure(logger zerolog.Logger, id string, err error) {
	logger.Warn().Str("id", id).Err(err).Msg("store upsert failed")
}
