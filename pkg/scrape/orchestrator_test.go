package scrape

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeDetailAPI serves canned detail payloads keyed by reference and can
// fail specific references.
type fakeDetailAPI struct {
	mu       sync.Mutex
	payloads map[string]map[string]any
	failures map[string]error
	calls    []string
	delay    time.Duration
}

func (f *fakeDetailAPI) GetJSON(ctx context.Context, rawURL string, params url.Values) (map[string]any, error) {
	ref := rawURL[strings.LastIndex(rawURL, "/")+1:]
	f.mu.Lock()
	f.calls = append(f.calls, ref)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if err, ok := f.failures[ref]; ok {
		return nil, err
	}
	if payload, ok := f.payloads[ref]; ok {
		return payload, nil
	}
	return nil, fmt.Errorf("no payload for %s", ref)
}

func (f *fakeDetailAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// passthroughExtractor copies the payload into a record as-is.
type passthroughExtractor struct{}

func (passthroughExtractor) Extract(payload map[string]any) (Record, error) {
	rec := Record{}
	for k, v := range payload {
		rec[k] = v
	}
	return rec, nil
}

// failingExtractor rejects payloads carrying a "bad" marker.
type failingExtractor struct{}

func (failingExtractor) Extract(payload map[string]any) (Record, error) {
	if payload["bad"] == true {
		return nil, &ExtractionError{Field: "bad", Reason: "marked bad"}
	}
	rec := Record{}
	for k, v := range payload {
		rec[k] = v
	}
	return rec, nil
}

func stubsFor(refs ...string) []ItemStub {
	stubs := make([]ItemStub, 0, len(refs))
	for _, r := range refs {
		stubs = append(stubs, ItemStub{Reference: r, Summary: map[string]any{"slug": r}})
	}
	return stubs
}

func testOrchestratorConfig() Config {
	cfg := DefaultConfig()
	cfg.DetailURL = "http://api.test/detail/{ref}"
	cfg.BatchCooldown = time.Millisecond
	return cfg
}

func TestRun_AllSucceed(t *testing.T) {
	api := &fakeDetailAPI{payloads: map[string]map[string]any{
		"a": {"id": "a", "name": "Anar"},
		"b": {"id": "b", "name": "Banu"},
	}}

	o := New(api, passthroughExtractor{}, nil, testOrchestratorConfig())
	result := o.Run(context.Background(), stubsFor("a", "b"))

	if len(result.Records) != 2 {
		t.Fatalf("records = %d, want 2", len(result.Records))
	}
	if result.Summary.Succeeded != 2 || result.Summary.Failed != 0 {
		t.Errorf("summary = %+v, want 2 succeeded", result.Summary)
	}
	if result.Summary.Partial {
		t.Error("complete run must not be partial")
	}
}

func TestRun_FailedItemDoesNotAbortRun(t *testing.T) {
	api := &fakeDetailAPI{
		payloads: map[string]map[string]any{
			"a": {"id": "a"},
			"c": {"id": "c"},
		},
		failures: map[string]error{"b": errors.New("status 500")},
	}

	o := New(api, passthroughExtractor{}, nil, testOrchestratorConfig())
	result := o.Run(context.Background(), stubsFor("a", "b", "c"))

	if len(result.Records) != 2 {
		t.Fatalf("records = %d, want 2", len(result.Records))
	}
	if result.Failures.Len() != 1 {
		t.Fatalf("failures = %d, want 1", result.Failures.Len())
	}
	entry := result.Failures.Entries()[0]
	if entry.Reference != "b" || entry.Stage != "fetch" {
		t.Errorf("failure entry = %+v, want fetch failure for b", entry)
	}
}

func TestRun_BatchIsolation(t *testing.T) {
	// Every item of batch 1 fails; batch 2 must still run and succeed.
	api := &fakeDetailAPI{
		payloads: map[string]map[string]any{
			"c": {"id": "c"},
			"d": {"id": "d"},
		},
		failures: map[string]error{
			"a": errors.New("boom"),
			"b": errors.New("boom"),
		},
	}

	cfg := testOrchestratorConfig()
	cfg.BatchSize = 2
	o := New(api, passthroughExtractor{}, nil, cfg)
	result := o.Run(context.Background(), stubsFor("a", "b", "c", "d"))

	if result.Summary.Failed != 2 || result.Summary.Succeeded != 2 {
		t.Errorf("summary = %+v, want 2 failed and 2 succeeded", result.Summary)
	}
}

func TestRun_ExtractionFailureRecorded(t *testing.T) {
	api := &fakeDetailAPI{payloads: map[string]map[string]any{
		"a": {"id": "a"},
		"b": {"id": "b", "bad": true},
	}}

	o := New(api, failingExtractor{}, nil, testOrchestratorConfig())
	result := o.Run(context.Background(), stubsFor("a", "b"))

	if len(result.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(result.Records))
	}
	entry := result.Failures.Entries()[0]
	if entry.Reference != "b" || entry.Stage != "extract" {
		t.Errorf("failure entry = %+v, want extract failure for b", entry)
	}
}

func TestRun_EmptyIdentifierSkipped(t *testing.T) {
	api := &fakeDetailAPI{payloads: map[string]map[string]any{
		"a": {"id": ""},
		"b": {"name": "no id at all"},
		"c": {"id": "c"},
	}}

	o := New(api, passthroughExtractor{}, nil, testOrchestratorConfig())
	result := o.Run(context.Background(), stubsFor("a", "b", "c"))

	if len(result.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(result.Records))
	}
	if result.Summary.Skipped != 2 {
		t.Errorf("skipped = %d, want 2", result.Summary.Skipped)
	}
}

func TestRun_MergesSummaryFields(t *testing.T) {
	api := &fakeDetailAPI{payloads: map[string]map[string]any{
		"a": {"id": "a", "view_count": float64(10)},
		"b": {"id": "b"},
	}}

	cfg := testOrchestratorConfig()
	cfg.MergeSummaryFields = []string{"view_count"}
	o := New(api, passthroughExtractor{}, nil, cfg)

	stubs := []ItemStub{
		{Reference: "a", Summary: map[string]any{"slug": "a", "view_count": float64(99)}},
		{Reference: "b", Summary: map[string]any{"slug": "b", "view_count": float64(7)}},
	}
	result := o.Run(context.Background(), stubs)

	byID := map[string]Record{}
	for _, rec := range result.Records {
		byID[rec["id"].(string)] = rec
	}
	// Detail value wins when present; summary fills the gap otherwise.
	if byID["a"]["view_count"] != float64(10) {
		t.Errorf("a view_count = %v, want detail value 10", byID["a"]["view_count"])
	}
	if byID["b"]["view_count"] != float64(7) {
		t.Errorf("b view_count = %v, want summary value 7", byID["b"]["view_count"])
	}
}

func TestRun_CancellationReturnsPartial(t *testing.T) {
	payloads := map[string]map[string]any{}
	refs := make([]string, 0, 6)
	for i := 0; i < 6; i++ {
		ref := fmt.Sprintf("item-%d", i)
		refs = append(refs, ref)
		payloads[ref] = map[string]any{"id": ref}
	}
	api := &fakeDetailAPI{payloads: payloads, delay: 5 * time.Millisecond}

	cfg := testOrchestratorConfig()
	cfg.BatchSize = 2
	cfg.BatchCooldown = 200 * time.Millisecond
	o := New(api, passthroughExtractor{}, nil, cfg)

	// Cancel during the cooldown after the first batch.
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	result := o.Run(ctx, stubsFor(refs...))

	if !result.Summary.Partial {
		t.Error("interrupted run must be marked partial")
	}
	if result.Summary.Canceled == 0 {
		t.Error("expected canceled items after interrupt")
	}
	// Completed batches survive the interrupt.
	if len(result.Records) == 0 {
		t.Error("expected records from batches completed before cancel")
	}
	if got := int64(len(result.Records)); got != result.Summary.Succeeded {
		t.Errorf("records = %d but succeeded = %d", got, result.Summary.Succeeded)
	}
}

func TestRun_CacheHitSkipsFetch(t *testing.T) {
	api := &fakeDetailAPI{payloads: map[string]map[string]any{
		"b": {"id": "b"},
	}}
	cache := &fakeCache{entries: map[string]map[string]any{
		"a": {"id": "a", "cached": true},
	}}

	o := New(api, passthroughExtractor{}, cache, testOrchestratorConfig())
	result := o.Run(context.Background(), stubsFor("a", "b"))

	if len(result.Records) != 2 {
		t.Fatalf("records = %d, want 2", len(result.Records))
	}
	if api.callCount() != 1 {
		t.Errorf("api calls = %d, want 1 (a served from cache)", api.callCount())
	}
	// Fetched payloads are written back to the cache.
	if _, ok := cache.entries["b"]; !ok {
		t.Error("expected fetched payload to be cached")
	}
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]map[string]any
}

func (c *fakeCache) Get(ctx context.Context, key string) (map[string]any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	payload, ok := c.entries[key]
	return payload, ok
}

func (c *fakeCache) Set(ctx context.Context, key string, payload map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = payload
}

func TestStubsFromItems(t *testing.T) {
	items := []map[string]any{
		{"slug": "good-one"},
		{"slug": ""},
		{"name": "no slug"},
		{"slug": float64(42)},
	}
	o := New(nil, nil, nil, testOrchestratorConfig())
	stubs := o.StubsFromItems(items)

	if len(stubs) != 2 {
		t.Fatalf("stubs = %d, want 2", len(stubs))
	}
	if stubs[0].Reference != "good-one" || stubs[1].Reference != "42" {
		t.Errorf("references = %q, %q", stubs[0].Reference, stubs[1].Reference)
	}
}

func TestFailureLogConcurrentAppend(t *testing.T) {
	log := &FailureLog{}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			log.Add(fmt.Sprintf("ref-%d", i), "fetch", errors.New("x"))
		}(i)
	}
	wg.Wait()
	if log.Len() != 50 {
		t.Errorf("entries = %d, want 50", log.Len())
	}
}

func TestRunStateCounters(t *testing.T) {
	state := NewRunState()
	if state.ID == "" {
		t.Fatal("run id must be set")
	}
	state.discovered.Store(4)
	state.addOutcome(StatusOK)
	state.addOutcome(StatusOK)
	state.addOutcome(StatusFailed)
	state.addOutcome(StatusCanceled)

	snap := state.Snapshot()
	if snap.Succeeded != 2 || snap.Failed != 1 || snap.Canceled != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
	if !snap.Partial {
		t.Error("snapshot with canceled items must be partial")
	}
}
