package sink

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/scraper-bots/jobnet-az/pkg/scrape"
)

func TestFilename(t *testing.T) {
	at := time.Date(2024, 5, 11, 9, 30, 0, 0, time.UTC)

	got := Filename("/out", "jobnet_candidates_async", "json", false, at)
	if got != filepath.Join("/out", "jobnet_candidates_async_20240511_093000.json") {
		t.Errorf("complete filename = %q", got)
	}

	got = Filename("/out", "jobnet_candidates_async", "csv", true, at)
	if !strings.Contains(got, "_partial_") {
		t.Errorf("partial filename missing marker: %q", got)
	}
}

func TestFlushJSON_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")

	records := []scrape.Record{
		{"id": "1", "name": "Rəşad", "tags": []any{"a", "b"}, "url": "http://x?a=1&b=2"},
		{"id": "2", "salary": 1500.5},
	}
	if err := FlushJSON(path, records); err != nil {
		t.Fatalf("FlushJSON failed: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	// HTML escaping must stay off: the ampersand survives as-is.
	if !strings.Contains(string(raw), "a=1&b=2") {
		t.Errorf("url was HTML-escaped: %s", raw)
	}

	var decoded []map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != 2 || decoded[0]["name"] != "Rəşad" {
		t.Errorf("decoded = %v", decoded)
	}
	if tags, ok := decoded[0]["tags"].([]any); !ok || len(tags) != 2 {
		t.Errorf("nesting lost: %v", decoded[0]["tags"])
	}
}

func TestFlushCSV_HeaderAndPadding(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")

	records := []scrape.Record{
		{"id": "1", "name": "Aysel", "skills": []any{"Go", "SQL"}},
		{"id": "2"}, // missing name and skills, must be padded
		{"id": "3", "name": "Tural", "extra": "dropped"},
	}
	if err := FlushCSV(path, records); err != nil {
		t.Fatalf("FlushCSV failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}

	// Header is the sorted key set of the first record.
	wantHeader := []string{"id", "name", "skills"}
	if len(rows[0]) != 3 {
		t.Fatalf("header = %v, want %v", rows[0], wantHeader)
	}
	for i, col := range wantHeader {
		if rows[0][i] != col {
			t.Errorf("header[%d] = %q, want %q", i, rows[0][i], col)
		}
	}

	if rows[2][1] != "" || rows[2][2] != "" {
		t.Errorf("missing fields not padded: %v", rows[2])
	}
	// Nested list embedded as JSON text.
	if rows[1][2] != `["Go","SQL"]` {
		t.Errorf("skills cell = %q", rows[1][2])
	}
	// Keys outside the header are dropped, not appended.
	if len(rows[3]) != 3 {
		t.Errorf("row 3 = %v, want 3 columns", rows[3])
	}
}

func TestFlushCSV_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	if err := FlushCSV(path, nil); err != nil {
		t.Fatalf("FlushCSV on empty input failed: %v", err)
	}
	raw, _ := os.ReadFile(path)
	if len(raw) != 0 {
		t.Errorf("empty flush wrote %q", raw)
	}
}

func TestAccumulatorConcurrent(t *testing.T) {
	acc := &Accumulator{}
	done := make(chan struct{})
	for i := 0; i < 20; i++ {
		go func() {
			acc.Add(scrape.Record{"id": "x"})
			done <- struct{}{}
		}()
	}
	for i := 0; i < 20; i++ {
		<-done
	}
	if acc.Len() != 20 {
		t.Errorf("len = %d, want 20", acc.Len())
	}
}

type fakePersister struct {
	existing map[string]bool
	failOn   map[string]bool
	calls    int
}

func (p *fakePersister) InsertOrUpdate(ctx context.Context, id string, rec scrape.Record) (bool, error) {
	p.calls++
	if p.failOn[id] {
		return false, errors.New("constraint violation")
	}
	if p.existing[id] {
		return false, nil
	}
	p.existing[id] = true
	return true, nil
}

func TestFlushStore(t *testing.T) {
	p := &fakePersister{
		existing: map[string]bool{"2": true},
		failOn:   map[string]bool{"3": true},
	}
	records := []scrape.Record{
		{"id": "1"},
		{"id": "2"},
		{"id": "3"},
		{"id": ""}, // invalid identifier
		{"id": "4"},
	}

	result := FlushStore(context.Background(), p, "id", records)
	if result.Inserted != 2 || result.Updated != 1 || result.Failed != 2 {
		t.Errorf("result = %+v, want 2 inserted, 1 updated, 2 failed", result)
	}
	// The empty-id record never reaches the persister.
	if p.calls != 4 {
		t.Errorf("persister calls = %d, want 4", p.calls)
	}
}

func TestFlushFailures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failures.json")
	entries := []scrape.FailureEntry{
		{Reference: "a", Stage: "fetch", Error: "status 500"},
	}
	if err := FlushFailures(path, entries); err != nil {
		t.Fatalf("FlushFailures failed: %v", err)
	}

	raw, _ := os.ReadFile(path)
	var decoded []scrape.FailureEntry
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != 1 || decoded[0].Reference != "a" {
		t.Errorf("decoded = %v", decoded)
	}
}
